package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	payrolldomain "github.com/smallbiznis/payrun/internal/payroll/domain"
	"github.com/smallbiznis/payrun/pkg/db"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) payrolldomain.Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) payrolldomain.Repository {
	return &repository{db: tx}
}

func (r *repository) CreateRun(ctx context.Context, run *payrolldomain.PayrollRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

func (r *repository) FinishRun(ctx context.Context, run *payrolldomain.PayrollRun) error {
	result := r.db.WithContext(ctx).Exec(
		`UPDATE payroll_runs
		SET status = ?, processed_count = ?, error_count = ?, errors = ?, finished_at = ?
		WHERE id = ?`,
		run.Status, run.ProcessedCount, run.ErrorCount, run.Errors, run.FinishedAt, run.ID,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return payrolldomain.ErrNotFound
	}
	return nil
}

func (r *repository) FindRun(ctx context.Context, id snowflake.ID) (*payrolldomain.PayrollRun, error) {
	var run payrolldomain.PayrollRun
	err := r.db.WithContext(ctx).Raw(
		`SELECT id, employer_id, pay_period_start, pay_period_end, pay_date, tax_year, processed_by,
		status, processed_count, error_count, errors, started_at, finished_at
		FROM payroll_runs WHERE id = ?`,
		id,
	).Scan(&run).Error
	if err != nil {
		return nil, err
	}
	if run.ID == 0 {
		return nil, payrolldomain.ErrNotFound
	}
	return &run, nil
}

func (r *repository) CreateEntry(ctx context.Context, entry *payrolldomain.PayrollEntry) error {
	if entry.Status != payrolldomain.EntryStatusPending {
		return fmt.Errorf("%w: new entries must be pending", payrolldomain.ErrInvalidTransition)
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

// CompleteEntry writes the computed amounts. Only a pending entry moves,
// and at most one entry per employee and pay period may be completed.
func (r *repository) CompleteEntry(ctx context.Context, entry *payrolldomain.PayrollEntry) error {
	result := r.db.WithContext(ctx).Exec(
		`UPDATE payroll_entries SET
			hours_worked = ?, regular_hours = ?, overtime_hours = ?,
			regular_pay = ?, overtime_pay = ?, gross_pay = ?,
			federal_tax = ?, state_tax = ?, social_security = ?, medicare = ?, local_tax = ?,
			net_pay = ?, status = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		entry.HoursWorked, entry.RegularHours, entry.OvertimeHours,
		entry.RegularPay, entry.OvertimePay, entry.GrossPay,
		entry.FederalTax, entry.StateTax, entry.SocialSecurity, entry.Medicare, entry.LocalTax,
		entry.NetPay, payrolldomain.EntryStatusCompleted, entry.UpdatedAt,
		entry.ID, payrolldomain.EntryStatusPending,
	)
	if result.Error != nil {
		if db.IsDuplicateKeyErr(result.Error) {
			return fmt.Errorf("%w: employee %s period %s", payrolldomain.ErrAlreadyCompleted,
				entry.EmployeeID, entry.PayPeriodStart.Format(time.DateOnly))
		}
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: entry %s is not pending", payrolldomain.ErrInvalidTransition, entry.ID)
	}
	entry.Status = payrolldomain.EntryStatusCompleted
	return nil
}

func (r *repository) FailEntry(ctx context.Context, entryID snowflake.ID, message string, at time.Time) error {
	result := r.db.WithContext(ctx).Exec(
		`UPDATE payroll_entries SET status = ?, error_message = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		payrolldomain.EntryStatusError, message, at,
		entryID, payrolldomain.EntryStatusPending,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: entry %s is not pending", payrolldomain.ErrInvalidTransition, entryID)
	}
	return nil
}

const entryColumns = `id, run_id, employee_id, employer_id, pay_period_start, pay_period_end, pay_date,
	hours_worked, regular_hours, overtime_hours, regular_pay, overtime_pay, gross_pay,
	federal_tax, state_tax, social_security, medicare, local_tax, net_pay,
	status, error_message, processed_by, created_at, updated_at`

func (r *repository) FindEntry(ctx context.Context, id snowflake.ID) (*payrolldomain.PayrollEntry, error) {
	var entry payrolldomain.PayrollEntry
	err := r.db.WithContext(ctx).Raw(
		`SELECT `+entryColumns+` FROM payroll_entries WHERE id = ?`,
		id,
	).Scan(&entry).Error
	if err != nil {
		return nil, err
	}
	if entry.ID == 0 {
		return nil, payrolldomain.ErrNotFound
	}
	return &entry, nil
}

func (r *repository) FindCompletedEntry(ctx context.Context, employeeID snowflake.ID, start, end time.Time) (*payrolldomain.PayrollEntry, error) {
	var entry payrolldomain.PayrollEntry
	err := r.db.WithContext(ctx).Raw(
		`SELECT `+entryColumns+` FROM payroll_entries
		WHERE employee_id = ? AND pay_period_start = ? AND pay_period_end = ? AND status = ?
		ORDER BY id ASC LIMIT 1`,
		employeeID, start, end, payrolldomain.EntryStatusCompleted,
	).Scan(&entry).Error
	if err != nil {
		return nil, err
	}
	if entry.ID == 0 {
		return nil, payrolldomain.ErrNotFound
	}
	return &entry, nil
}

// ListCompletedEntries returns completed entries whose pay period starts
// in [start, end).
func (r *repository) ListCompletedEntries(ctx context.Context, employerID snowflake.ID, start, end time.Time) ([]payrolldomain.PayrollEntry, error) {
	var items []payrolldomain.PayrollEntry
	err := r.db.WithContext(ctx).Raw(
		`SELECT `+entryColumns+` FROM payroll_entries
		WHERE employer_id = ? AND status = ? AND pay_period_start >= ? AND pay_period_start < ?
		ORDER BY pay_period_start ASC, employee_id ASC, id ASC`,
		employerID, payrolldomain.EntryStatusCompleted, start, end,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) CreateTaxCalculation(ctx context.Context, calc *payrolldomain.TaxCalculation) error {
	if err := r.db.WithContext(ctx).Create(calc).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return payrolldomain.ErrTaxCalculationExists
		}
		return err
	}
	return nil
}

func (r *repository) FindTaxCalculationByEntry(ctx context.Context, entryID snowflake.ID) (*payrolldomain.TaxCalculation, error) {
	var calc payrolldomain.TaxCalculation
	err := r.db.WithContext(ctx).
		Where("payroll_entry_id = ?", entryID).
		Limit(1).
		Find(&calc).Error
	if err != nil {
		return nil, err
	}
	if calc.ID == 0 {
		return nil, payrolldomain.ErrNotFound
	}
	return &calc, nil
}
