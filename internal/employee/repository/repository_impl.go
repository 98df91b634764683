package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	employeedomain "github.com/smallbiznis/payrun/internal/employee/domain"
	"gorm.io/gorm"
)

// Directory reads employees and their tax profiles. Payroll never writes
// these tables.
type Directory struct {
	db *gorm.DB
}

func NewDirectory(db *gorm.DB) *Directory {
	return &Directory{db: db}
}

// GetEmployeeTaxProfile returns nil, nil when the employee has no profile
// for year.
func (d *Directory) GetEmployeeTaxProfile(ctx context.Context, employeeID snowflake.ID, year int) (*employeedomain.EmployeeTaxProfile, error) {
	var profile employeedomain.EmployeeTaxProfile
	err := d.db.WithContext(ctx).Raw(
		`SELECT id, employee_id, year, filing_status, allowances, additional_withholding,
		exempt_from_federal_tax, exempt_from_state_tax, exempt_from_local_tax,
		state_of_residence, state_of_employment, local_tax_rate, created_at, updated_at
		FROM employee_tax_profiles
		WHERE employee_id = ? AND year = ?`,
		employeeID, year,
	).Scan(&profile).Error
	if err != nil {
		return nil, err
	}
	if profile.ID == 0 {
		return nil, nil
	}
	return &profile, nil
}

func (d *Directory) GetActiveEmployees(ctx context.Context, employerID snowflake.ID) ([]employeedomain.Employee, error) {
	var items []employeedomain.Employee
	err := d.db.WithContext(ctx).Raw(
		`SELECT id, employer_id, name, regular_rate, overtime_rate, pre_tax_deductions,
		direct_deposit, wallet_id, active, created_at
		FROM employees
		WHERE employer_id = ? AND active = ?
		ORDER BY id ASC`,
		employerID, true,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

type TimeTracker struct {
	db *gorm.DB
}

func NewTimeTracker(db *gorm.DB) *TimeTracker {
	return &TimeTracker{db: db}
}

// ListApprovedTimeEntries returns approved entries dated on or between the
// calendar dates of start and end.
func (t *TimeTracker) ListApprovedTimeEntries(ctx context.Context, employeeID snowflake.ID, start, end time.Time) ([]employeedomain.TimeEntry, error) {
	from := truncateDate(start)
	to := truncateDate(end).AddDate(0, 0, 1)

	var items []employeedomain.TimeEntry
	err := t.db.WithContext(ctx).Raw(
		`SELECT id, employee_id, work_date, hours_worked, status, created_at
		FROM time_entries
		WHERE employee_id = ? AND status = ? AND work_date >= ? AND work_date < ?
		ORDER BY work_date ASC, id ASC`,
		employeeID, employeedomain.TimeEntryStatusApproved, from, to,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func truncateDate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
