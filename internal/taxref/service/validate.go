package service

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/shopspring/decimal"
	taxrefdomain "github.com/smallbiznis/payrun/internal/taxref/domain"
)

const (
	minYear = 1900
	maxYear = 9999
)

var stateCodePattern = regexp.MustCompile(`^[A-Z]{2}$`)

var one = decimal.NewFromInt(1)

func validateYear(year int) error {
	if year < minYear || year > maxYear {
		return taxrefdomain.ErrInvalidYear
	}
	return nil
}

func validateState(state string) (string, error) {
	state = taxrefdomain.NormalizeState(state)
	if !stateCodePattern.MatchString(state) {
		return "", taxrefdomain.ErrInvalidState
	}
	return state, nil
}

func validRate(rate decimal.Decimal) bool {
	return !rate.IsNegative() && rate.LessThanOrEqual(one)
}

// normalizeBrackets validates a full bracket set and fills in missing base
// amounts with the cumulative tax of the lower brackets, so the resulting
// table is progressive at every boundary. Input order does not matter; rows
// are ordered by Order.
func normalizeBrackets(inputs []taxrefdomain.BracketInput) ([]taxrefdomain.BracketInput, error) {
	if len(inputs) == 0 {
		return nil, taxrefdomain.ErrEmptyBrackets
	}

	sorted := make([]taxrefdomain.BracketInput, len(inputs))
	copy(sorted, inputs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })

	cumulative := decimal.Zero
	for i := range sorted {
		b := &sorted[i]
		if i > 0 && b.Order == sorted[i-1].Order {
			return nil, fmt.Errorf("%w: duplicate order %d", taxrefdomain.ErrInvalidBracketOrder, b.Order)
		}
		if b.IncomeFrom.IsNegative() {
			return nil, fmt.Errorf("%w: order %d starts below zero", taxrefdomain.ErrInvalidBracketRange, b.Order)
		}
		if !validRate(b.Rate) {
			return nil, fmt.Errorf("%w: order %d rate %s", taxrefdomain.ErrInvalidRate, b.Order, b.Rate)
		}

		last := i == len(sorted)-1
		if b.IncomeTo == nil && !last {
			return nil, fmt.Errorf("%w: open bracket at order %d is not last", taxrefdomain.ErrInvalidTopBracket, b.Order)
		}
		if b.IncomeTo != nil && last {
			return nil, fmt.Errorf("%w: last bracket must be open ended", taxrefdomain.ErrInvalidTopBracket)
		}
		if b.IncomeTo != nil && !b.IncomeTo.GreaterThan(b.IncomeFrom) {
			return nil, fmt.Errorf("%w: order %d upper bound not above lower bound", taxrefdomain.ErrInvalidBracketRange, b.Order)
		}

		if i > 0 {
			prev := sorted[i-1]
			if !b.IncomeFrom.Equal(*prev.IncomeTo) {
				return nil, fmt.Errorf("%w: order %d starts at %s, previous ends at %s",
					taxrefdomain.ErrBracketNotContiguous, b.Order, b.IncomeFrom, prev.IncomeTo)
			}
			cumulative = prev.BaseAmount.Add(prev.IncomeTo.Sub(prev.IncomeFrom).Mul(prev.Rate))
		}

		if b.BaseAmount == nil {
			base := cumulative
			b.BaseAmount = &base
			continue
		}
		if b.BaseAmount.IsNegative() {
			return nil, fmt.Errorf("%w: order %d base amount", taxrefdomain.ErrInvalidAmount, b.Order)
		}
		if b.BaseAmount.LessThan(cumulative) {
			return nil, fmt.Errorf("%w: order %d base %s below cumulative %s",
				taxrefdomain.ErrNonMonotonicBrackets, b.Order, b.BaseAmount, cumulative)
		}
	}
	return sorted, nil
}

func validateFicaRates(in taxrefdomain.FicaRatesInput) error {
	for name, rate := range map[string]decimal.Decimal{
		"social_security_rate":     in.SocialSecurityRate,
		"medicare_rate":            in.MedicareRate,
		"additional_medicare_rate": in.AdditionalMedicareRate,
	} {
		if !validRate(rate) {
			return fmt.Errorf("%w: %s", taxrefdomain.ErrInvalidRate, name)
		}
	}
	for name, amount := range map[string]decimal.Decimal{
		"social_security_wage_cap":            in.SocialSecurityWageCap,
		"additional_medicare_threshold":       in.AdditionalMedicareThreshold,
		"additional_medicare_threshold_joint": in.AdditionalMedicareThresholdJoint,
	} {
		if !amount.IsPositive() {
			return fmt.Errorf("%w: %s must be positive", taxrefdomain.ErrInvalidAmount, name)
		}
	}
	return nil
}

func validateTaxAllowance(in taxrefdomain.TaxAllowanceInput) error {
	for name, amount := range map[string]decimal.Decimal{
		"standard_deduction_single":            in.StandardDeductionSingle,
		"standard_deduction_joint":             in.StandardDeductionJoint,
		"standard_deduction_head_of_household": in.StandardDeductionHeadOfHousehold,
		"personal_exemption_amount":            in.PersonalExemptionAmount,
		"phaseout_start":                       in.PhaseoutStart,
		"phaseout_end":                         in.PhaseoutEnd,
	} {
		if amount.IsNegative() {
			return fmt.Errorf("%w: %s", taxrefdomain.ErrInvalidAmount, name)
		}
	}
	if in.PhaseoutEnd.LessThan(in.PhaseoutStart) {
		return fmt.Errorf("%w: phaseout_end before phaseout_start", taxrefdomain.ErrInvalidAmount)
	}
	return nil
}
