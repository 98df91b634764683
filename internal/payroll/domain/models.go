package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// EntryStatus moves pending -> completed or pending -> error. Both targets
// are terminal.
type EntryStatus string

const (
	EntryStatusPending   EntryStatus = "pending"
	EntryStatusCompleted EntryStatus = "completed"
	EntryStatusError     EntryStatus = "error"
)

type PayrollEntry struct {
	ID             snowflake.ID    `gorm:"primaryKey"`
	RunID          snowflake.ID    `gorm:"column:run_id;not null;index"`
	EmployeeID     snowflake.ID    `gorm:"column:employee_id;not null;index:idx_payroll_entries_employee_period"`
	EmployerID     snowflake.ID    `gorm:"column:employer_id;not null;index"`
	PayPeriodStart time.Time       `gorm:"column:pay_period_start;not null;index:idx_payroll_entries_employee_period"`
	PayPeriodEnd   time.Time       `gorm:"column:pay_period_end;not null"`
	PayDate        time.Time       `gorm:"column:pay_date;not null"`
	HoursWorked    decimal.Decimal `gorm:"column:hours_worked;type:numeric(10,4);not null;default:0"`
	RegularHours   decimal.Decimal `gorm:"column:regular_hours;type:numeric(10,4);not null;default:0"`
	OvertimeHours  decimal.Decimal `gorm:"column:overtime_hours;type:numeric(10,4);not null;default:0"`
	RegularPay     decimal.Decimal `gorm:"column:regular_pay;type:numeric(20,2);not null;default:0"`
	OvertimePay    decimal.Decimal `gorm:"column:overtime_pay;type:numeric(20,2);not null;default:0"`
	GrossPay       decimal.Decimal `gorm:"column:gross_pay;type:numeric(20,2);not null;default:0"`
	FederalTax     decimal.Decimal `gorm:"column:federal_tax;type:numeric(20,2);not null;default:0"`
	StateTax       decimal.Decimal `gorm:"column:state_tax;type:numeric(20,2);not null;default:0"`
	SocialSecurity decimal.Decimal `gorm:"column:social_security;type:numeric(20,2);not null;default:0"`
	Medicare       decimal.Decimal `gorm:"column:medicare;type:numeric(20,2);not null;default:0"`
	LocalTax       decimal.Decimal `gorm:"column:local_tax;type:numeric(20,2);not null;default:0"`
	NetPay         decimal.Decimal `gorm:"column:net_pay;type:numeric(20,2);not null;default:0"`
	Status         EntryStatus     `gorm:"type:text;not null;index"`
	ErrorMessage   *string         `gorm:"column:error_message;type:text"`
	ProcessedBy    string          `gorm:"column:processed_by;type:text;not null"`
	CreatedAt      time.Time       `gorm:"not null"`
	UpdatedAt      time.Time       `gorm:"not null"`
}

func (PayrollEntry) TableName() string { return "payroll_entries" }

// TotalTaxes is the sum of every withholding component.
func (e PayrollEntry) TotalTaxes() decimal.Decimal {
	return e.FederalTax.Add(e.StateTax).Add(e.SocialSecurity).Add(e.Medicare).Add(e.LocalTax)
}

// TaxCalculation is the append-only record of how an entry's withholding
// was derived. Ytd* columns hold totals including this entry.
type TaxCalculation struct {
	ID                      snowflake.ID    `gorm:"primaryKey"`
	PayrollEntryID          snowflake.ID    `gorm:"column:payroll_entry_id;not null;uniqueIndex"`
	EmployeeID              snowflake.ID    `gorm:"column:employee_id;not null;index"`
	TaxYear                 int             `gorm:"column:tax_year;not null"`
	FilingStatus            string          `gorm:"column:filing_status;type:text;not null"`
	StateJurisdiction       string          `gorm:"column:state_jurisdiction;type:text"`
	StateFallbackUsed       bool            `gorm:"column:state_fallback_used;not null;default:false"`
	FederalBracketOrder     int             `gorm:"column:federal_bracket_order;not null;default:0"`
	FederalTaxable          decimal.Decimal `gorm:"column:federal_taxable;type:numeric(20,2);not null"`
	FederalAnnualized       decimal.Decimal `gorm:"column:federal_annualized;type:numeric(20,2);not null"`
	StateTaxable            decimal.Decimal `gorm:"column:state_taxable;type:numeric(20,2);not null"`
	SocialSecurityWages     decimal.Decimal `gorm:"column:social_security_wages;type:numeric(20,2);not null"`
	MedicareWages           decimal.Decimal `gorm:"column:medicare_wages;type:numeric(20,2);not null"`
	AdditionalMedicareWages decimal.Decimal `gorm:"column:additional_medicare_wages;type:numeric(20,2);not null"`

	FederalTax         decimal.Decimal `gorm:"column:federal_tax;type:numeric(20,2);not null"`
	StateTax           decimal.Decimal `gorm:"column:state_tax;type:numeric(20,2);not null"`
	SocialSecurity     decimal.Decimal `gorm:"column:social_security;type:numeric(20,2);not null"`
	Medicare           decimal.Decimal `gorm:"column:medicare;type:numeric(20,2);not null"`
	AdditionalMedicare decimal.Decimal `gorm:"column:additional_medicare;type:numeric(20,2);not null"`
	LocalTax           decimal.Decimal `gorm:"column:local_tax;type:numeric(20,2);not null"`

	YtdGrossPay       decimal.Decimal `gorm:"column:ytd_gross_pay;type:numeric(20,2);not null"`
	YtdFederalTax     decimal.Decimal `gorm:"column:ytd_federal_tax;type:numeric(20,2);not null"`
	YtdStateTax       decimal.Decimal `gorm:"column:ytd_state_tax;type:numeric(20,2);not null"`
	YtdSocialSecurity decimal.Decimal `gorm:"column:ytd_social_security;type:numeric(20,2);not null"`
	YtdMedicare       decimal.Decimal `gorm:"column:ytd_medicare;type:numeric(20,2);not null"`
	YtdLocalTax       decimal.Decimal `gorm:"column:ytd_local_tax;type:numeric(20,2);not null"`
	YtdNetPay         decimal.Decimal `gorm:"column:ytd_net_pay;type:numeric(20,2);not null"`

	CreatedAt time.Time `gorm:"not null"`
}

func (TaxCalculation) TableName() string { return "tax_calculations" }

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusPartial   RunStatus = "partial"
	RunStatusFailed    RunStatus = "failed"
)

// PayrollRun records one invocation of ProcessPayroll and its outcome.
type PayrollRun struct {
	ID             snowflake.ID   `gorm:"primaryKey"`
	EmployerID     snowflake.ID   `gorm:"column:employer_id;not null;index"`
	PayPeriodStart time.Time      `gorm:"column:pay_period_start;not null"`
	PayPeriodEnd   time.Time      `gorm:"column:pay_period_end;not null"`
	PayDate        time.Time      `gorm:"column:pay_date;not null"`
	TaxYear        int            `gorm:"column:tax_year;not null"`
	ProcessedBy    string         `gorm:"column:processed_by;type:text;not null"`
	Status         RunStatus      `gorm:"type:text;not null"`
	ProcessedCount int            `gorm:"column:processed_count;not null;default:0"`
	ErrorCount     int            `gorm:"column:error_count;not null;default:0"`
	Errors         datatypes.JSON `gorm:"column:errors"`
	StartedAt      time.Time      `gorm:"column:started_at;not null"`
	FinishedAt     *time.Time     `gorm:"column:finished_at"`
}

func (PayrollRun) TableName() string { return "payroll_runs" }
