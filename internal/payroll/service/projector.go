package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	payrolldomain "github.com/smallbiznis/payrun/internal/payroll/domain"
)

// GeneratePayStub projects a completed entry with the YTD totals recorded
// when it was computed.
func (s *Service) GeneratePayStub(ctx context.Context, entryID snowflake.ID) (*payrolldomain.PayStub, error) {
	if entryID == 0 {
		return nil, payrolldomain.ErrNotFound
	}
	entry, err := s.repo.FindEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.Status != payrolldomain.EntryStatusCompleted {
		return nil, payrolldomain.ErrEntryNotCompleted
	}
	calc, err := s.repo.FindTaxCalculationByEntry(ctx, entryID)
	if err != nil {
		if errors.Is(err, payrolldomain.ErrNotFound) {
			return nil, fmt.Errorf("tax calculation for entry %s: %w", entryID, err)
		}
		return nil, err
	}

	return &payrolldomain.PayStub{
		EntryID:        entry.ID,
		EmployeeID:     entry.EmployeeID,
		EmployerID:     entry.EmployerID,
		PayPeriodStart: entry.PayPeriodStart.Format(time.DateOnly),
		PayPeriodEnd:   entry.PayPeriodEnd.Format(time.DateOnly),
		PayDate:        entry.PayDate.Format(time.DateOnly),
		HoursWorked:    entry.HoursWorked,
		RegularHours:   entry.RegularHours,
		OvertimeHours:  entry.OvertimeHours,
		RegularPay:     entry.RegularPay,
		OvertimePay:    entry.OvertimePay,
		GrossPay:       entry.GrossPay,
		FederalTax:     entry.FederalTax,
		StateTax:       entry.StateTax,
		SocialSecurity: entry.SocialSecurity,
		Medicare:       entry.Medicare,
		LocalTax:       entry.LocalTax,
		TotalTaxes:     entry.TotalTaxes(),
		NetPay:         entry.NetPay,
		YTD: payrolldomain.YTDSnapshot{
			GrossPay:       calc.YtdGrossPay,
			FederalTax:     calc.YtdFederalTax,
			StateTax:       calc.YtdStateTax,
			SocialSecurity: calc.YtdSocialSecurity,
			Medicare:       calc.YtdMedicare,
			LocalTax:       calc.YtdLocalTax,
			NetPay:         calc.YtdNetPay,
		},
	}, nil
}

// GeneratePayrollReport summarizes completed entries whose pay period
// starts on a date within [start, end].
func (s *Service) GeneratePayrollReport(ctx context.Context, employerID snowflake.ID, start, end time.Time) (*payrolldomain.PayrollReport, error) {
	if employerID == 0 {
		return nil, payrolldomain.ErrInvalidEmployer
	}
	if start.IsZero() || end.IsZero() {
		return nil, payrolldomain.ErrInvalidPeriod
	}
	start, end = dateOnly(start), dateOnly(end)
	if end.Before(start) {
		return nil, payrolldomain.ErrInvalidPeriod
	}

	entries, err := s.repo.ListCompletedEntries(ctx, employerID, start, end.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}

	report := &payrolldomain.PayrollReport{
		EmployerID: employerID,
		StartDate:  start.Format(time.DateOnly),
		EndDate:    end.Format(time.DateOnly),
		Summary: payrolldomain.ReportSummary{
			TotalGrossPay: decimal.Zero,
			TotalTaxes:    decimal.Zero,
			TotalNetPay:   decimal.Zero,
		},
		Entries: make([]payrolldomain.ReportEntry, 0, len(entries)),
	}
	employees := map[snowflake.ID]struct{}{}
	for _, e := range entries {
		taxes := e.TotalTaxes()
		employees[e.EmployeeID] = struct{}{}
		report.Summary.TotalGrossPay = report.Summary.TotalGrossPay.Add(e.GrossPay)
		report.Summary.TotalTaxes = report.Summary.TotalTaxes.Add(taxes)
		report.Summary.TotalNetPay = report.Summary.TotalNetPay.Add(e.NetPay)
		report.Entries = append(report.Entries, payrolldomain.ReportEntry{
			EntryID:        e.ID,
			EmployeeID:     e.EmployeeID,
			PayPeriodStart: e.PayPeriodStart.Format(time.DateOnly),
			PayPeriodEnd:   e.PayPeriodEnd.Format(time.DateOnly),
			PayDate:        e.PayDate.Format(time.DateOnly),
			GrossPay:       e.GrossPay,
			TotalTaxes:     taxes,
			NetPay:         e.NetPay,
		})
	}
	report.Summary.TotalEmployees = len(employees)
	return report, nil
}
