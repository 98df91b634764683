package domain

import "errors"

var (
	ErrInvalidYear          = errors.New("invalid_year")
	ErrInvalidFilingStatus  = errors.New("invalid_filing_status")
	ErrInvalidState         = errors.New("invalid_state")
	ErrEmptyBrackets        = errors.New("empty_brackets")
	ErrInvalidBracketOrder  = errors.New("invalid_bracket_order")
	ErrBracketNotContiguous = errors.New("bracket_not_contiguous")
	ErrInvalidBracketRange  = errors.New("invalid_bracket_range")
	ErrInvalidTopBracket    = errors.New("invalid_top_bracket")
	ErrInvalidRate          = errors.New("invalid_rate")
	ErrInvalidAmount        = errors.New("invalid_amount")

	ErrMissingReferenceData = errors.New("missing_reference_data")
)

var ErrNonMonotonicBrackets = errors.New("non_monotonic_brackets")
