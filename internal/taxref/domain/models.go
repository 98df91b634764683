package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// FilingStatus selects the bracket table and standard deduction.
type FilingStatus string

const (
	FilingStatusSingle          FilingStatus = "single"
	FilingStatusMarriedJoint    FilingStatus = "married_joint"
	FilingStatusMarriedSeparate FilingStatus = "married_separate"
	FilingStatusHeadOfHousehold FilingStatus = "head_of_household"
)

func (s FilingStatus) Valid() bool {
	switch s {
	case FilingStatusSingle, FilingStatusMarriedJoint, FilingStatusMarriedSeparate, FilingStatusHeadOfHousehold:
		return true
	default:
		return false
	}
}

func ParseFilingStatus(raw string) (FilingStatus, error) {
	status := FilingStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !status.Valid() {
		return "", ErrInvalidFilingStatus
	}
	return status, nil
}

// TaxBracket is one row of a progressive table. Jurisdiction nil means federal.
// IncomeTo nil marks the open top bracket.
type TaxBracket struct {
	ID           snowflake.ID     `gorm:"primaryKey"`
	Year         int              `gorm:"not null;index:idx_tax_brackets_key"`
	Jurisdiction *string          `gorm:"type:text;index:idx_tax_brackets_key"`
	FilingStatus FilingStatus     `gorm:"column:filing_status;type:text;not null;index:idx_tax_brackets_key"`
	Order        int              `gorm:"column:bracket_order;not null"`
	IncomeFrom   decimal.Decimal  `gorm:"column:income_from;type:numeric(20,6);not null"`
	IncomeTo     *decimal.Decimal `gorm:"column:income_to;type:numeric(20,6)"`
	Rate         decimal.Decimal  `gorm:"type:numeric(10,6);not null"`
	BaseAmount   *decimal.Decimal `gorm:"column:base_amount;type:numeric(20,6)"`
	CreatedAt    time.Time        `gorm:"not null"`
}

func (TaxBracket) TableName() string { return "tax_brackets" }

// Contains reports whether annualized falls in [IncomeFrom, IncomeTo).
func (b TaxBracket) Contains(annualized decimal.Decimal) bool {
	if annualized.LessThan(b.IncomeFrom) {
		return false
	}
	return b.IncomeTo == nil || annualized.LessThan(*b.IncomeTo)
}

type FicaRates struct {
	ID                               snowflake.ID    `gorm:"primaryKey"`
	Year                             int             `gorm:"not null;uniqueIndex"`
	SocialSecurityRate               decimal.Decimal `gorm:"column:social_security_rate;type:numeric(10,6);not null"`
	SocialSecurityWageCap            decimal.Decimal `gorm:"column:social_security_wage_cap;type:numeric(20,6);not null"`
	MedicareRate                     decimal.Decimal `gorm:"column:medicare_rate;type:numeric(10,6);not null"`
	AdditionalMedicareRate           decimal.Decimal `gorm:"column:additional_medicare_rate;type:numeric(10,6);not null"`
	AdditionalMedicareThreshold      decimal.Decimal `gorm:"column:additional_medicare_threshold;type:numeric(20,6);not null"`
	AdditionalMedicareThresholdJoint decimal.Decimal `gorm:"column:additional_medicare_threshold_joint;type:numeric(20,6);not null"`
	CreatedAt                        time.Time       `gorm:"not null"`
}

func (FicaRates) TableName() string { return "fica_rates" }

type TaxAllowance struct {
	ID                               snowflake.ID    `gorm:"primaryKey"`
	Year                             int             `gorm:"not null;uniqueIndex"`
	StandardDeductionSingle          decimal.Decimal `gorm:"column:standard_deduction_single;type:numeric(20,6);not null"`
	StandardDeductionJoint           decimal.Decimal `gorm:"column:standard_deduction_joint;type:numeric(20,6);not null"`
	StandardDeductionHeadOfHousehold decimal.Decimal `gorm:"column:standard_deduction_head_of_household;type:numeric(20,6);not null"`
	PersonalExemptionAmount          decimal.Decimal `gorm:"column:personal_exemption_amount;type:numeric(20,6);not null"`
	PhaseoutStart                    decimal.Decimal `gorm:"column:phaseout_start;type:numeric(20,6);not null"`
	PhaseoutEnd                      decimal.Decimal `gorm:"column:phaseout_end;type:numeric(20,6);not null"`
	CreatedAt                        time.Time       `gorm:"not null"`
}

func (TaxAllowance) TableName() string { return "tax_allowances" }

// StandardDeduction picks the annual amount for a filing status. Married
// filing separately uses the single amount.
func (a TaxAllowance) StandardDeduction(status FilingStatus) decimal.Decimal {
	switch status {
	case FilingStatusMarriedJoint:
		return a.StandardDeductionJoint
	case FilingStatusHeadOfHousehold:
		return a.StandardDeductionHeadOfHousehold
	default:
		return a.StandardDeductionSingle
	}
}

// BracketInput is the admin-facing shape of one bracket.
type BracketInput struct {
	Order      int              `yaml:"order"`
	IncomeFrom decimal.Decimal  `yaml:"incomeFrom"`
	IncomeTo   *decimal.Decimal `yaml:"incomeTo,omitempty"`
	Rate       decimal.Decimal  `yaml:"rate"`
	BaseAmount *decimal.Decimal `yaml:"baseAmount,omitempty"`
}

type FicaRatesInput struct {
	SocialSecurityRate               decimal.Decimal `yaml:"socialSecurityRate"`
	SocialSecurityWageCap            decimal.Decimal `yaml:"socialSecurityWageCap"`
	MedicareRate                     decimal.Decimal `yaml:"medicareRate"`
	AdditionalMedicareRate           decimal.Decimal `yaml:"additionalMedicareRate"`
	AdditionalMedicareThreshold      decimal.Decimal `yaml:"additionalMedicareThreshold"`
	AdditionalMedicareThresholdJoint decimal.Decimal `yaml:"additionalMedicareThresholdJoint"`
}

type TaxAllowanceInput struct {
	StandardDeductionSingle          decimal.Decimal `yaml:"standardDeductionSingle"`
	StandardDeductionJoint           decimal.Decimal `yaml:"standardDeductionJoint"`
	StandardDeductionHeadOfHousehold decimal.Decimal `yaml:"standardDeductionHeadOfHousehold"`
	PersonalExemptionAmount          decimal.Decimal `yaml:"personalExemptionAmount"`
	PhaseoutStart                    decimal.Decimal `yaml:"phaseoutStart"`
	PhaseoutEnd                      decimal.Decimal `yaml:"phaseoutEnd"`
}
