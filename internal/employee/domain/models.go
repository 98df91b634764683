package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	taxrefdomain "github.com/smallbiznis/payrun/internal/taxref/domain"
)

type TimeEntryStatus string

const (
	TimeEntryStatusPending  TimeEntryStatus = "pending"
	TimeEntryStatusApproved TimeEntryStatus = "approved"
	TimeEntryStatusRejected TimeEntryStatus = "rejected"
)

// Employee is the directory view the payroll run needs: pay rates and
// disbursement routing.
type Employee struct {
	ID               snowflake.ID     `gorm:"primaryKey"`
	EmployerID       snowflake.ID     `gorm:"column:employer_id;not null;index"`
	Name             string           `gorm:"type:text;not null"`
	RegularRate      decimal.Decimal  `gorm:"column:regular_rate;type:numeric(20,6);not null"`
	OvertimeRate     *decimal.Decimal `gorm:"column:overtime_rate;type:numeric(20,6)"`
	PreTaxDeductions decimal.Decimal  `gorm:"column:pre_tax_deductions;type:numeric(20,6);not null;default:0"`
	DirectDeposit    bool             `gorm:"column:direct_deposit;not null;default:false"`
	WalletID         *snowflake.ID    `gorm:"column:wallet_id"`
	Active           bool             `gorm:"not null;default:true"`
	CreatedAt        time.Time        `gorm:"not null"`
}

func (Employee) TableName() string { return "employees" }

// EmployeeTaxProfile holds the withholding elections for one tax year.
// Owned by the employee record; payroll only reads it.
type EmployeeTaxProfile struct {
	ID                    snowflake.ID              `gorm:"primaryKey"`
	EmployeeID            snowflake.ID              `gorm:"column:employee_id;not null;uniqueIndex:ux_employee_tax_profiles_year"`
	Year                  int                       `gorm:"not null;uniqueIndex:ux_employee_tax_profiles_year"`
	FilingStatus          taxrefdomain.FilingStatus `gorm:"column:filing_status;type:text;not null"`
	Allowances            int                       `gorm:"not null;default:0"`
	AdditionalWithholding decimal.Decimal           `gorm:"column:additional_withholding;type:numeric(20,6);not null;default:0"`
	ExemptFromFederalTax  bool                      `gorm:"column:exempt_from_federal_tax;not null;default:false"`
	ExemptFromStateTax    bool                      `gorm:"column:exempt_from_state_tax;not null;default:false"`
	ExemptFromLocalTax    bool                      `gorm:"column:exempt_from_local_tax;not null;default:false"`
	StateOfResidence      string                    `gorm:"column:state_of_residence;type:text"`
	StateOfEmployment     string                    `gorm:"column:state_of_employment;type:text"`
	LocalTaxRate          decimal.Decimal           `gorm:"column:local_tax_rate;type:numeric(10,6);not null;default:0"`
	CreatedAt             time.Time                 `gorm:"not null"`
	UpdatedAt             time.Time                 `gorm:"not null"`
}

func (EmployeeTaxProfile) TableName() string { return "employee_tax_profiles" }

type TimeEntry struct {
	ID          snowflake.ID    `gorm:"primaryKey"`
	EmployeeID  snowflake.ID    `gorm:"column:employee_id;not null;index:idx_time_entries_employee_date"`
	Date        time.Time       `gorm:"column:work_date;not null;index:idx_time_entries_employee_date"`
	HoursWorked decimal.Decimal `gorm:"column:hours_worked;type:numeric(10,4);not null"`
	Status      TimeEntryStatus `gorm:"type:text;not null"`
	CreatedAt   time.Time       `gorm:"not null"`
}

func (TimeEntry) TableName() string { return "time_entries" }
