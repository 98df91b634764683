package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	employeedomain "github.com/smallbiznis/payrun/internal/employee/domain"
	ledgerdomain "github.com/smallbiznis/payrun/internal/ledger/domain"
)

// TimeTracker lists approved time entries dated within [start, end].
type TimeTracker interface {
	ListApprovedTimeEntries(ctx context.Context, employeeID snowflake.ID, start, end time.Time) ([]employeedomain.TimeEntry, error)
}

// EmployeeDirectory returns a nil profile without error when none exists
// for the year.
type EmployeeDirectory interface {
	GetEmployeeTaxProfile(ctx context.Context, employeeID snowflake.ID, year int) (*employeedomain.EmployeeTaxProfile, error)
	GetActiveEmployees(ctx context.Context, employerID snowflake.ID) ([]employeedomain.Employee, error)
}

type Disburser interface {
	Credit(ctx context.Context, walletID snowflake.ID, amount decimal.Decimal, memo string) (*ledgerdomain.Transaction, error)
}
