package domain

import "context"

// Service is the admin and read surface of the reference data store.
// Each upsert replaces the full set for its key atomically.
type Service interface {
	UpsertFederalBrackets(ctx context.Context, year int, status FilingStatus, brackets []BracketInput) ([]TaxBracket, error)
	UpsertStateBrackets(ctx context.Context, state string, year int, status FilingStatus, brackets []BracketInput) ([]TaxBracket, error)
	UpsertFicaRates(ctx context.Context, year int, rates FicaRatesInput) (*FicaRates, error)
	UpsertTaxAllowances(ctx context.Context, year int, allowance TaxAllowanceInput) (*TaxAllowance, error)

	Snapshot(ctx context.Context, year int) (*Snapshot, error)

	// Pin returns the year's snapshot and holds the year's read lock until
	// release is called; upserts for that year wait meanwhile.
	Pin(ctx context.Context, year int) (snap *Snapshot, release func(), err error)
}
