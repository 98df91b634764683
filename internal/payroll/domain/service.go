package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ProcessRequest struct {
	EmployerID  snowflake.ID
	StartDate   time.Time
	EndDate     time.Time
	PayDate     time.Time
	ProcessedBy string
}

// ErrorKind classifies why an employee was not processed.
type ErrorKind string

const (
	ErrorKindMissingTaxProfile    ErrorKind = "missing_tax_profile"
	ErrorKindMissingReferenceData ErrorKind = "missing_reference_data"
	ErrorKindTimeTracking         ErrorKind = "time_tracking"
	ErrorKindComputation          ErrorKind = "computation"
	ErrorKindPersistence          ErrorKind = "persistence"
	ErrorKindCanceled             ErrorKind = "canceled"
	ErrorKindDisbursement         ErrorKind = "disbursement"
)

type ProcessedEntry struct {
	EntryID           snowflake.ID    `yaml:"entryId"`
	EmployeeID        snowflake.ID    `yaml:"employeeId"`
	EmployeeName      string          `yaml:"employeeName"`
	GrossPay          decimal.Decimal `yaml:"grossPay"`
	TotalTaxes        decimal.Decimal `yaml:"totalTaxes"`
	NetPay            decimal.Decimal `yaml:"netPay"`
	NegativeNet       bool            `yaml:"negativeNet,omitempty"`
	StateFallbackUsed bool            `yaml:"stateFallbackUsed,omitempty"`
	Disbursed         bool            `yaml:"disbursed"`
	TransactionRef    string          `yaml:"transactionRef,omitempty"`
}

// EmployeeError is one failed employee. EntryID is 0 when no entry was
// created. A disbursement error can sit beside a processed entry for the
// same employee.
type EmployeeError struct {
	EmployeeID snowflake.ID `yaml:"employeeId" json:"employee_id"`
	EntryID    snowflake.ID `yaml:"entryId,omitempty" json:"entry_id,omitempty"`
	Kind       ErrorKind    `yaml:"kind" json:"kind"`
	Message    string       `yaml:"message" json:"message"`
}

// AlreadyProcessedEntry is an employee skipped because a completed entry
// for the same pay period exists. EntryID points at that entry.
type AlreadyProcessedEntry struct {
	EmployeeID snowflake.ID `yaml:"employeeId"`
	EntryID    snowflake.ID `yaml:"entryId"`
}

type RunResult struct {
	RunID            snowflake.ID            `yaml:"runId"`
	EmployerID       snowflake.ID            `yaml:"employerId"`
	TaxYear          int                     `yaml:"taxYear"`
	Status           RunStatus               `yaml:"status"`
	Processed        []ProcessedEntry        `yaml:"processed"`
	AlreadyProcessed []AlreadyProcessedEntry `yaml:"alreadyProcessed,omitempty"`
	Errors           []EmployeeError         `yaml:"errors"`
}

// YTDSnapshot is the year-to-date state recorded with a check, including it.
type YTDSnapshot struct {
	GrossPay       decimal.Decimal `yaml:"grossPay"`
	FederalTax     decimal.Decimal `yaml:"federalTax"`
	StateTax       decimal.Decimal `yaml:"stateTax"`
	SocialSecurity decimal.Decimal `yaml:"socialSecurity"`
	Medicare       decimal.Decimal `yaml:"medicare"`
	LocalTax       decimal.Decimal `yaml:"localTax"`
	NetPay         decimal.Decimal `yaml:"netPay"`
}

type PayStub struct {
	EntryID        snowflake.ID    `yaml:"entryId"`
	EmployeeID     snowflake.ID    `yaml:"employeeId"`
	EmployerID     snowflake.ID    `yaml:"employerId"`
	PayPeriodStart string          `yaml:"payPeriodStart"`
	PayPeriodEnd   string          `yaml:"payPeriodEnd"`
	PayDate        string          `yaml:"payDate"`
	HoursWorked    decimal.Decimal `yaml:"hoursWorked"`
	RegularHours   decimal.Decimal `yaml:"regularHours"`
	OvertimeHours  decimal.Decimal `yaml:"overtimeHours"`
	RegularPay     decimal.Decimal `yaml:"regularPay"`
	OvertimePay    decimal.Decimal `yaml:"overtimePay"`
	GrossPay       decimal.Decimal `yaml:"grossPay"`
	FederalTax     decimal.Decimal `yaml:"federalTax"`
	StateTax       decimal.Decimal `yaml:"stateTax"`
	SocialSecurity decimal.Decimal `yaml:"socialSecurity"`
	Medicare       decimal.Decimal `yaml:"medicare"`
	LocalTax       decimal.Decimal `yaml:"localTax"`
	TotalTaxes     decimal.Decimal `yaml:"totalTaxes"`
	NetPay         decimal.Decimal `yaml:"netPay"`
	YTD            YTDSnapshot     `yaml:"ytd"`
}

type ReportSummary struct {
	TotalEmployees int             `yaml:"totalEmployees"`
	TotalGrossPay  decimal.Decimal `yaml:"totalGrossPay"`
	TotalTaxes     decimal.Decimal `yaml:"totalTaxes"`
	TotalNetPay    decimal.Decimal `yaml:"totalNetPay"`
}

type ReportEntry struct {
	EntryID        snowflake.ID    `yaml:"entryId"`
	EmployeeID     snowflake.ID    `yaml:"employeeId"`
	PayPeriodStart string          `yaml:"payPeriodStart"`
	PayPeriodEnd   string          `yaml:"payPeriodEnd"`
	PayDate        string          `yaml:"payDate"`
	GrossPay       decimal.Decimal `yaml:"grossPay"`
	TotalTaxes     decimal.Decimal `yaml:"totalTaxes"`
	NetPay         decimal.Decimal `yaml:"netPay"`
}

type PayrollReport struct {
	EmployerID snowflake.ID  `yaml:"employerId"`
	StartDate  string        `yaml:"startDate"`
	EndDate    string        `yaml:"endDate"`
	Summary    ReportSummary `yaml:"summary"`
	Entries    []ReportEntry `yaml:"entries"`
}

type Service interface {
	ProcessPayroll(ctx context.Context, req ProcessRequest) (*RunResult, error)
	GeneratePayStub(ctx context.Context, entryID snowflake.ID) (*PayStub, error)
	GeneratePayrollReport(ctx context.Context, employerID snowflake.ID, start, end time.Time) (*PayrollReport, error)
}

type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateRun(ctx context.Context, run *PayrollRun) error
	FinishRun(ctx context.Context, run *PayrollRun) error
	FindRun(ctx context.Context, id snowflake.ID) (*PayrollRun, error)

	CreateEntry(ctx context.Context, entry *PayrollEntry) error
	CompleteEntry(ctx context.Context, entry *PayrollEntry) error
	FailEntry(ctx context.Context, entryID snowflake.ID, message string, at time.Time) error

	FindEntry(ctx context.Context, id snowflake.ID) (*PayrollEntry, error)
	// FindCompletedEntry returns ErrNotFound when the employee has no
	// completed entry for exactly [start, end].
	FindCompletedEntry(ctx context.Context, employeeID snowflake.ID, start, end time.Time) (*PayrollEntry, error)
	ListCompletedEntries(ctx context.Context, employerID snowflake.ID, start, end time.Time) ([]PayrollEntry, error)

	CreateTaxCalculation(ctx context.Context, calc *TaxCalculation) error
	FindTaxCalculationByEntry(ctx context.Context, entryID snowflake.ID) (*TaxCalculation, error)
}
