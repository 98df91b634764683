// Package ytd sums an employee's completed payroll history for a tax year.
package ytd

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	payrolldomain "github.com/smallbiznis/payrun/internal/payroll/domain"
	"gorm.io/gorm"
)

// Totals are year-to-date sums prior to the check being computed.
type Totals struct {
	GrossPay       decimal.Decimal
	FederalTax     decimal.Decimal
	StateTax       decimal.Decimal
	SocialSecurity decimal.Decimal
	Medicare       decimal.Decimal
	LocalTax       decimal.Decimal
	NetPay         decimal.Decimal
	Entries        int
}

// Add returns the totals after one more check.
func (t Totals) Add(e payrolldomain.PayrollEntry) Totals {
	return Totals{
		GrossPay:       t.GrossPay.Add(e.GrossPay),
		FederalTax:     t.FederalTax.Add(e.FederalTax),
		StateTax:       t.StateTax.Add(e.StateTax),
		SocialSecurity: t.SocialSecurity.Add(e.SocialSecurity),
		Medicare:       t.Medicare.Add(e.Medicare),
		LocalTax:       t.LocalTax.Add(e.LocalTax),
		NetPay:         t.NetPay.Add(e.NetPay),
		Entries:        t.Entries + 1,
	}
}

type Aggregator struct{}

func NewAggregator() *Aggregator {
	return &Aggregator{}
}

type ytdRow struct {
	GrossPay       decimal.Decimal
	FederalTax     decimal.Decimal
	StateTax       decimal.Decimal
	SocialSecurity decimal.Decimal
	Medicare       decimal.Decimal
	LocalTax       decimal.Decimal
	NetPay         decimal.Decimal
}

// Aggregate recomputes totals from the employee's completed entries whose
// pay period starts in year. excludeEntryID (0 for none) is left out so the
// check being computed never counts itself. Rows are summed here rather
// than in SQL so every dialect yields the same decimal result.
func (a *Aggregator) Aggregate(ctx context.Context, tx *gorm.DB, employeeID snowflake.ID, year int, excludeEntryID snowflake.ID) (Totals, error) {
	if tx == nil {
		return Totals{}, fmt.Errorf("ytd: nil transaction")
	}
	from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(1, 0, 0)

	var rows []ytdRow
	err := tx.WithContext(ctx).Raw(
		`SELECT gross_pay, federal_tax, state_tax, social_security, medicare, local_tax, net_pay
		FROM payroll_entries
		WHERE employee_id = ? AND status = ? AND pay_period_start >= ? AND pay_period_start < ? AND id <> ?`,
		employeeID, payrolldomain.EntryStatusCompleted, from, to, excludeEntryID,
	).Scan(&rows).Error
	if err != nil {
		return Totals{}, fmt.Errorf("ytd: load history employee=%s year=%d: %w", employeeID, year, err)
	}

	totals := Totals{
		GrossPay:       decimal.Zero,
		FederalTax:     decimal.Zero,
		StateTax:       decimal.Zero,
		SocialSecurity: decimal.Zero,
		Medicare:       decimal.Zero,
		LocalTax:       decimal.Zero,
		NetPay:         decimal.Zero,
	}
	for _, row := range rows {
		totals = totals.Add(payrolldomain.PayrollEntry{
			GrossPay:       row.GrossPay,
			FederalTax:     row.FederalTax,
			StateTax:       row.StateTax,
			SocialSecurity: row.SocialSecurity,
			Medicare:       row.Medicare,
			LocalTax:       row.LocalTax,
			NetPay:         row.NetPay,
		})
	}
	return totals, nil
}
