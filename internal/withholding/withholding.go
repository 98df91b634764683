// Package withholding computes per-check federal, state, FICA and local
// withholding. It performs no I/O: reference data arrives as a Snapshot and
// year-to-date totals are supplied by the caller.
package withholding

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/payrun/internal/config"
	employeedomain "github.com/smallbiznis/payrun/internal/employee/domain"
	"github.com/smallbiznis/payrun/internal/money"
	taxrefdomain "github.com/smallbiznis/payrun/internal/taxref/domain"
	"github.com/smallbiznis/payrun/internal/ytd"
)

var (
	ErrInvalidInput   = errors.New("invalid_withholding_input")
	ErrInvalidOptions = errors.New("invalid_withholding_options")
)

type Options struct {
	PeriodsPerYear    int
	NoIncomeTaxStates []string
	StateFallbackRate decimal.Decimal
	// Annual standard deduction proxy per state code.
	StateStandardDeductions map[string]decimal.Decimal
	// When set, married_joint filers use the joint Additional Medicare
	// threshold. Otherwise every filer uses the single threshold.
	JointAdditionalMedicareThreshold bool
}

func DefaultOptions() Options {
	return OptionsFromConfig(config.DefaultPayrollConfig())
}

func OptionsFromConfig(cfg config.PayrollConfig) Options {
	deductions := make(map[string]decimal.Decimal, len(cfg.StateStandardDeductions))
	for state, amount := range cfg.StateStandardDeductions {
		deductions[taxrefdomain.NormalizeState(state)] = decimal.NewFromFloat(amount)
	}
	states := make([]string, 0, len(cfg.NoIncomeTaxStates))
	for _, state := range cfg.NoIncomeTaxStates {
		states = append(states, taxrefdomain.NormalizeState(state))
	}
	return Options{
		PeriodsPerYear:                   cfg.PeriodsPerYear,
		NoIncomeTaxStates:                states,
		StateFallbackRate:                decimal.NewFromFloat(cfg.StateFallbackRate),
		StateStandardDeductions:          deductions,
		JointAdditionalMedicareThreshold: cfg.JointAdditionalMedicareThreshold,
	}
}

func (o Options) noIncomeTax(state string) bool {
	for _, s := range o.NoIncomeTaxStates {
		if strings.EqualFold(s, state) {
			return true
		}
	}
	return false
}

func (o Options) stateDeduction(state string) decimal.Decimal {
	if amount, ok := o.StateStandardDeductions[taxrefdomain.NormalizeState(state)]; ok {
		return amount
	}
	return decimal.Zero
}

type Input struct {
	GrossPay         decimal.Decimal
	PreTaxDeductions decimal.Decimal
	Profile          employeedomain.EmployeeTaxProfile
	// YTD holds totals from checks before this one.
	YTD ytd.Totals
}

// Result carries each component rounded to cents. NetPay is gross minus the
// rounded components and is not clamped.
type Result struct {
	GrossPay decimal.Decimal

	FederalTax         decimal.Decimal
	StateTax           decimal.Decimal
	SocialSecurity     decimal.Decimal
	Medicare           decimal.Decimal
	AdditionalMedicare decimal.Decimal
	LocalTax           decimal.Decimal
	TotalTaxes         decimal.Decimal
	NetPay             decimal.Decimal

	FederalTaxable          decimal.Decimal
	FederalAnnualized       decimal.Decimal
	FederalBracketOrder     int
	StateJurisdiction       string
	StateTaxable            decimal.Decimal
	StateFallbackUsed       bool
	SocialSecurityWages     decimal.Decimal
	MedicareWages           decimal.Decimal
	AdditionalMedicareWages decimal.Decimal

	NegativeNet bool
}

// Calculate runs every component against one year's reference data.
// FICA rates are always required. Federal brackets and the allowance table
// are required unless the employee is exempt from federal tax.
func Calculate(in Input, snap *taxrefdomain.Snapshot, opts Options) (Result, error) {
	if snap == nil {
		return Result{}, fmt.Errorf("%w: nil snapshot", ErrInvalidInput)
	}
	if opts.PeriodsPerYear <= 0 {
		return Result{}, fmt.Errorf("%w: periods per year must be positive", ErrInvalidOptions)
	}
	if in.GrossPay.IsNegative() {
		return Result{}, fmt.Errorf("%w: negative gross pay", ErrInvalidInput)
	}
	if in.PreTaxDeductions.IsNegative() {
		return Result{}, fmt.Errorf("%w: negative pre-tax deductions", ErrInvalidInput)
	}

	fed, err := Federal(in, snap, opts)
	if err != nil {
		return Result{}, err
	}
	state, err := State(in, snap, opts)
	if err != nil {
		return Result{}, err
	}
	fica, err := FICA(in, snap, opts)
	if err != nil {
		return Result{}, err
	}
	local := Local(in)

	res := Result{
		GrossPay:                money.RoundCents(in.GrossPay),
		FederalTax:              money.RoundCents(fed.Tax),
		StateTax:                money.RoundCents(state.Tax),
		SocialSecurity:          money.RoundCents(fica.SocialSecurity),
		Medicare:                money.RoundCents(fica.Medicare),
		AdditionalMedicare:      money.RoundCents(fica.AdditionalMedicare),
		LocalTax:                money.RoundCents(local),
		FederalTaxable:          money.RoundCents(fed.Taxable),
		FederalAnnualized:       money.RoundCents(fed.Annualized),
		FederalBracketOrder:     fed.BracketOrder,
		StateJurisdiction:       state.Jurisdiction,
		StateTaxable:            money.RoundCents(state.Taxable),
		StateFallbackUsed:       state.FallbackUsed,
		SocialSecurityWages:     money.RoundCents(fica.SocialSecurityWages),
		MedicareWages:           money.RoundCents(fica.MedicareWages),
		AdditionalMedicareWages: money.RoundCents(fica.AdditionalMedicareWages),
	}
	res.TotalTaxes = money.Sum(res.FederalTax, res.StateTax, res.SocialSecurity, res.Medicare, res.LocalTax)
	res.NetPay = res.GrossPay.Sub(res.TotalTaxes)
	res.NegativeNet = res.NetPay.IsNegative()
	return res, nil
}

// IncomeTax is an unrounded federal or state computation.
type IncomeTax struct {
	Tax          decimal.Decimal
	Taxable      decimal.Decimal
	Annualized   decimal.Decimal
	BracketOrder int
}

func Federal(in Input, snap *taxrefdomain.Snapshot, opts Options) (IncomeTax, error) {
	if in.Profile.ExemptFromFederalTax {
		return zeroIncomeTax(), nil
	}
	brackets, err := snap.FederalBrackets(in.Profile.FilingStatus)
	if err != nil {
		return IncomeTax{}, err
	}
	allowance, err := snap.Allowance()
	if err != nil {
		return IncomeTax{}, err
	}

	exemptions := allowance.PersonalExemptionAmount.Mul(decimal.NewFromInt(int64(in.Profile.Allowances)))
	annualDeductions := allowance.StandardDeduction(in.Profile.FilingStatus).Add(exemptions)

	out := progressive(in.GrossPay.Sub(in.PreTaxDeductions), annualDeductions, brackets, opts.PeriodsPerYear)
	if in.Profile.AdditionalWithholding.IsPositive() {
		out.Tax = out.Tax.Add(in.Profile.AdditionalWithholding)
	}
	return out, nil
}

// StateTax is an unrounded state computation.
type StateTax struct {
	IncomeTax
	Jurisdiction string
	FallbackUsed bool
}

// State withholds for the state of residence, or the state of employment
// when no residence is on file.
func State(in Input, snap *taxrefdomain.Snapshot, opts Options) (StateTax, error) {
	jurisdiction := Jurisdiction(in.Profile)
	out := StateTax{IncomeTax: zeroIncomeTax(), Jurisdiction: jurisdiction}
	if in.Profile.ExemptFromStateTax || jurisdiction == "" || opts.noIncomeTax(jurisdiction) {
		return out, nil
	}

	annualDeduction := opts.stateDeduction(jurisdiction)
	if brackets, ok := snap.StateBrackets(jurisdiction, in.Profile.FilingStatus); ok {
		out.IncomeTax = progressive(in.GrossPay.Sub(in.PreTaxDeductions), annualDeduction, brackets, opts.PeriodsPerYear)
		return out, nil
	}

	// No authoritative table for this state; a flat approximation applies.
	periods := decimal.NewFromInt(int64(opts.PeriodsPerYear))
	annualized := money.ClampZero(in.GrossPay.Sub(in.PreTaxDeductions).Mul(periods).Sub(annualDeduction))
	taxable := annualized.Div(periods)
	out.Taxable = taxable
	out.Annualized = annualized
	out.Tax = money.ClampZero(taxable.Mul(opts.StateFallbackRate))
	out.FallbackUsed = true
	return out, nil
}

// Jurisdiction returns the upper-cased state the profile withholds for.
func Jurisdiction(profile employeedomain.EmployeeTaxProfile) string {
	if state := taxrefdomain.NormalizeState(profile.StateOfResidence); state != "" {
		return state
	}
	return taxrefdomain.NormalizeState(profile.StateOfEmployment)
}

// FicaTax is an unrounded FICA computation. Medicare includes the
// additional slice.
type FicaTax struct {
	SocialSecurity          decimal.Decimal
	SocialSecurityWages     decimal.Decimal
	Medicare                decimal.Decimal
	MedicareWages           decimal.Decimal
	AdditionalMedicare      decimal.Decimal
	AdditionalMedicareWages decimal.Decimal
}

func FICA(in Input, snap *taxrefdomain.Snapshot, opts Options) (FicaTax, error) {
	rates, err := snap.FicaRates()
	if err != nil {
		return FicaTax{}, err
	}
	gross := money.ClampZero(in.GrossPay)
	prior := money.ClampZero(in.YTD.GrossPay)

	remaining := money.ClampZero(rates.SocialSecurityWageCap.Sub(prior))
	ssWages := money.Min(gross, remaining)

	threshold := rates.AdditionalMedicareThreshold
	if opts.JointAdditionalMedicareThreshold && in.Profile.FilingStatus == taxrefdomain.FilingStatusMarriedJoint {
		threshold = rates.AdditionalMedicareThresholdJoint
	}
	// Only the part of this check above max(threshold, prior) is newly
	// over the threshold.
	addlWages := money.ClampZero(prior.Add(gross).Sub(money.Max(threshold, prior)))
	addl := addlWages.Mul(rates.AdditionalMedicareRate)

	return FicaTax{
		SocialSecurity:          ssWages.Mul(rates.SocialSecurityRate),
		SocialSecurityWages:     ssWages,
		Medicare:                gross.Mul(rates.MedicareRate).Add(addl),
		MedicareWages:           gross,
		AdditionalMedicare:      addl,
		AdditionalMedicareWages: addlWages,
	}, nil
}

func Local(in Input) decimal.Decimal {
	if in.Profile.ExemptFromLocalTax {
		return decimal.Zero
	}
	return money.ClampZero(money.ClampZero(in.GrossPay).Mul(in.Profile.LocalTaxRate))
}

// progressive annualizes one check, applies the annual deductions and
// de-annualizes the bracket tax. Annualizing before subtracting keeps the
// deduction exact instead of dividing it by the period count.
func progressive(periodIncome, annualDeductions decimal.Decimal, brackets []taxrefdomain.TaxBracket, periodsPerYear int) IncomeTax {
	periods := decimal.NewFromInt(int64(periodsPerYear))
	annualized := money.ClampZero(periodIncome.Mul(periods).Sub(annualDeductions))
	annualTax, order := AnnualTax(annualized, brackets)
	return IncomeTax{
		Tax:          money.ClampZero(annualTax.Div(periods)),
		Taxable:      annualized.Div(periods),
		Annualized:   annualized,
		BracketOrder: order,
	}
}

// AnnualTax applies an ordered bracket table. Income above every range uses
// the last bracket. Income below the first bracket owes nothing and reports
// order 0.
func AnnualTax(annualized decimal.Decimal, brackets []taxrefdomain.TaxBracket) (decimal.Decimal, int) {
	if len(brackets) == 0 {
		return decimal.Zero, 0
	}
	selected := -1
	for i, b := range brackets {
		if b.Contains(annualized) {
			selected = i
			break
		}
	}
	if selected < 0 {
		if annualized.LessThan(brackets[0].IncomeFrom) {
			return decimal.Zero, 0
		}
		selected = len(brackets) - 1
	}
	b := brackets[selected]
	tax := money.OrZero(b.BaseAmount).Add(annualized.Sub(b.IncomeFrom).Mul(b.Rate))
	return money.ClampZero(tax), b.Order
}

func zeroIncomeTax() IncomeTax {
	return IncomeTax{Tax: decimal.Zero, Taxable: decimal.Zero, Annualized: decimal.Zero}
}
