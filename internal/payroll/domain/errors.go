package domain

import "errors"

var (
	ErrInvalidEmployer      = errors.New("invalid_employer")
	ErrInvalidPeriod        = errors.New("invalid_pay_period")
	ErrInvalidPayDate       = errors.New("invalid_pay_date")
	ErrInvalidProcessedBy   = errors.New("invalid_processed_by")
	ErrNoEmployees          = errors.New("no_active_employees")
	ErrRunInProgress        = errors.New("payroll_run_in_progress")
	ErrNotFound             = errors.New("not_found")
	ErrEntryNotCompleted    = errors.New("payroll_entry_not_completed")
	ErrInvalidTransition    = errors.New("invalid_payroll_entry_transition")
	ErrAlreadyCompleted     = errors.New("payroll_entry_already_completed")
	ErrMissingTaxProfile    = errors.New("missing_tax_profile")
	ErrDisbursementSkipped  = errors.New("disbursement_skipped")
	ErrMissingWallet        = errors.New("missing_wallet")
	ErrTaxCalculationExists = errors.New("tax_calculation_exists")
)
