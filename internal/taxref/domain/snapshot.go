package domain

import (
	"fmt"
	"sort"
	"strings"
)

type stateKey struct {
	state  string
	status FilingStatus
}

// Snapshot is an immutable view of one tax year's reference data. A payroll
// run computes every employee against the same Snapshot.
type Snapshot struct {
	year      int
	federal   map[FilingStatus][]TaxBracket
	state     map[stateKey][]TaxBracket
	fica      *FicaRates
	allowance *TaxAllowance
}

// NewSnapshot groups rows by key and orders each group by bracket order.
// Inputs are copied.
func NewSnapshot(year int, brackets []TaxBracket, fica *FicaRates, allowance *TaxAllowance) *Snapshot {
	s := &Snapshot{
		year:    year,
		federal: map[FilingStatus][]TaxBracket{},
		state:   map[stateKey][]TaxBracket{},
	}
	for _, b := range brackets {
		if b.Year != year {
			continue
		}
		if b.Jurisdiction == nil {
			s.federal[b.FilingStatus] = append(s.federal[b.FilingStatus], b)
			continue
		}
		key := stateKey{state: NormalizeState(*b.Jurisdiction), status: b.FilingStatus}
		s.state[key] = append(s.state[key], b)
	}
	for _, group := range s.federal {
		sortBrackets(group)
	}
	for _, group := range s.state {
		sortBrackets(group)
	}
	if fica != nil {
		copied := *fica
		s.fica = &copied
	}
	if allowance != nil {
		copied := *allowance
		s.allowance = &copied
	}
	return s
}

func (s *Snapshot) Year() int { return s.year }

// FederalBrackets returns the ordered table for a filing status.
func (s *Snapshot) FederalBrackets(status FilingStatus) ([]TaxBracket, error) {
	group, ok := s.federal[status]
	if !ok || len(group) == 0 {
		return nil, fmt.Errorf("%w: federal brackets year=%d filing_status=%s", ErrMissingReferenceData, s.year, status)
	}
	return cloneBrackets(group), nil
}

// StateBrackets returns the ordered table for a state, or false when the
// state has no rows for this status.
func (s *Snapshot) StateBrackets(state string, status FilingStatus) ([]TaxBracket, bool) {
	group, ok := s.state[stateKey{state: NormalizeState(state), status: status}]
	if !ok || len(group) == 0 {
		return nil, false
	}
	return cloneBrackets(group), true
}

func (s *Snapshot) FicaRates() (FicaRates, error) {
	if s.fica == nil {
		return FicaRates{}, fmt.Errorf("%w: fica rates year=%d", ErrMissingReferenceData, s.year)
	}
	return *s.fica, nil
}

func (s *Snapshot) Allowance() (TaxAllowance, error) {
	if s.allowance == nil {
		return TaxAllowance{}, fmt.Errorf("%w: tax allowance year=%d", ErrMissingReferenceData, s.year)
	}
	return *s.allowance, nil
}

// NormalizeState upper-cases and trims a two-letter state code.
func NormalizeState(state string) string {
	return strings.ToUpper(strings.TrimSpace(state))
}

func sortBrackets(group []TaxBracket) {
	sort.SliceStable(group, func(i, j int) bool { return group[i].Order < group[j].Order })
}

func cloneBrackets(group []TaxBracket) []TaxBracket {
	out := make([]TaxBracket, len(group))
	copy(out, group)
	return out
}
