package service

import (
	"context"
	"database/sql"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payrun/internal/clock"
	obsmetrics "github.com/smallbiznis/payrun/internal/observability/metrics"
	taxrefdomain "github.com/smallbiznis/payrun/internal/taxref/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    taxrefdomain.Repository
	Locks   *YearLocks
	Metrics *obsmetrics.PayrollMetrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    taxrefdomain.Repository
	locks   *YearLocks
	metrics *obsmetrics.PayrollMetrics

	cacheMu sync.Mutex
	cache   map[int]*taxrefdomain.Snapshot
}

func NewService(p Params) taxrefdomain.Service {
	return newService(p)
}

func newService(p Params) *Service {
	locks := p.Locks
	if locks == nil {
		locks = NewYearLocks(p.Metrics)
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("taxref.service"),
		genID:   p.GenID,
		clock:   clk,
		repo:    p.Repo,
		locks:   locks,
		metrics: p.Metrics,
		cache:   map[int]*taxrefdomain.Snapshot{},
	}
}

func (s *Service) UpsertFederalBrackets(ctx context.Context, year int, status taxrefdomain.FilingStatus, brackets []taxrefdomain.BracketInput) ([]taxrefdomain.TaxBracket, error) {
	return s.upsertBrackets(ctx, nil, year, status, brackets)
}

func (s *Service) UpsertStateBrackets(ctx context.Context, state string, year int, status taxrefdomain.FilingStatus, brackets []taxrefdomain.BracketInput) ([]taxrefdomain.TaxBracket, error) {
	code, err := validateState(state)
	if err != nil {
		return nil, err
	}
	return s.upsertBrackets(ctx, &code, year, status, brackets)
}

func (s *Service) upsertBrackets(ctx context.Context, jurisdiction *string, year int, status taxrefdomain.FilingStatus, inputs []taxrefdomain.BracketInput) ([]taxrefdomain.TaxBracket, error) {
	if err := validateYear(year); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, taxrefdomain.ErrInvalidFilingStatus
	}
	normalized, err := normalizeBrackets(inputs)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	rows := make([]taxrefdomain.TaxBracket, 0, len(normalized))
	for _, in := range normalized {
		rows = append(rows, taxrefdomain.TaxBracket{
			ID:           s.genID.Generate(),
			Year:         year,
			Jurisdiction: jurisdiction,
			FilingStatus: status,
			Order:        in.Order,
			IncomeFrom:   in.IncomeFrom,
			IncomeTo:     in.IncomeTo,
			Rate:         in.Rate,
			BaseAmount:   in.BaseAmount,
			CreatedAt:    now,
		})
	}

	release := s.locks.Lock(year)
	defer release()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.repo.WithTx(tx).ReplaceBrackets(ctx, year, jurisdiction, status, rows)
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(year)

	scope := "federal"
	if jurisdiction != nil {
		scope = *jurisdiction
	}
	s.log.Info("tax brackets replaced",
		zap.Int("year", year),
		zap.String("jurisdiction", scope),
		zap.String("filing_status", string(status)),
		zap.Int("count", len(rows)),
	)
	s.metrics.IncRefdataUpsert("tax_brackets")
	return rows, nil
}

func (s *Service) UpsertFicaRates(ctx context.Context, year int, in taxrefdomain.FicaRatesInput) (*taxrefdomain.FicaRates, error) {
	if err := validateYear(year); err != nil {
		return nil, err
	}
	if err := validateFicaRates(in); err != nil {
		return nil, err
	}

	rates := &taxrefdomain.FicaRates{
		ID:                               s.genID.Generate(),
		Year:                             year,
		SocialSecurityRate:               in.SocialSecurityRate,
		SocialSecurityWageCap:            in.SocialSecurityWageCap,
		MedicareRate:                     in.MedicareRate,
		AdditionalMedicareRate:           in.AdditionalMedicareRate,
		AdditionalMedicareThreshold:      in.AdditionalMedicareThreshold,
		AdditionalMedicareThresholdJoint: in.AdditionalMedicareThresholdJoint,
		CreatedAt:                        s.clock.Now(),
	}

	release := s.locks.Lock(year)
	defer release()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.repo.WithTx(tx).ReplaceFicaRates(ctx, rates)
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(year)

	s.log.Info("fica rates replaced", zap.Int("year", year))
	s.metrics.IncRefdataUpsert("fica_rates")
	return rates, nil
}

func (s *Service) UpsertTaxAllowances(ctx context.Context, year int, in taxrefdomain.TaxAllowanceInput) (*taxrefdomain.TaxAllowance, error) {
	if err := validateYear(year); err != nil {
		return nil, err
	}
	if err := validateTaxAllowance(in); err != nil {
		return nil, err
	}

	allowance := &taxrefdomain.TaxAllowance{
		ID:                               s.genID.Generate(),
		Year:                             year,
		StandardDeductionSingle:          in.StandardDeductionSingle,
		StandardDeductionJoint:           in.StandardDeductionJoint,
		StandardDeductionHeadOfHousehold: in.StandardDeductionHeadOfHousehold,
		PersonalExemptionAmount:          in.PersonalExemptionAmount,
		PhaseoutStart:                    in.PhaseoutStart,
		PhaseoutEnd:                      in.PhaseoutEnd,
		CreatedAt:                        s.clock.Now(),
	}

	release := s.locks.Lock(year)
	defer release()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.repo.WithTx(tx).ReplaceTaxAllowance(ctx, allowance)
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(year)

	s.log.Info("tax allowance replaced", zap.Int("year", year))
	s.metrics.IncRefdataUpsert("tax_allowances")
	return allowance, nil
}

func (s *Service) Snapshot(ctx context.Context, year int) (*taxrefdomain.Snapshot, error) {
	if err := validateYear(year); err != nil {
		return nil, err
	}
	release := s.locks.RLock(year)
	defer release()
	return s.load(ctx, year)
}

func (s *Service) Pin(ctx context.Context, year int) (*taxrefdomain.Snapshot, func(), error) {
	if err := validateYear(year); err != nil {
		return nil, nil, err
	}
	release := s.locks.RLock(year)
	snap, err := s.load(ctx, year)
	if err != nil {
		release()
		return nil, nil, err
	}
	return snap, release, nil
}

// snapshotTxOptions gives the three reads one consistent view. sqlite
// ignores the isolation level; its deferred transaction already pins a
// snapshot at the first read.
var snapshotTxOptions = &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}

// load must run under the year's read or write lock.
func (s *Service) load(ctx context.Context, year int) (*taxrefdomain.Snapshot, error) {
	s.cacheMu.Lock()
	cached, ok := s.cache[year]
	s.cacheMu.Unlock()
	if ok {
		s.metrics.IncSnapshotLookup(obsmetrics.SnapshotCacheHit)
		return cached, nil
	}
	s.metrics.IncSnapshotLookup(obsmetrics.SnapshotCacheMiss)

	// YearLocks only serialize this process; a refdata load from another
	// process is fenced by reading all three tables in one snapshot.
	var (
		brackets  []taxrefdomain.TaxBracket
		fica      *taxrefdomain.FicaRates
		allowance *taxrefdomain.TaxAllowance
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		if brackets, err = repo.ListBrackets(ctx, year); err != nil {
			return err
		}
		if fica, err = repo.FindFicaRates(ctx, year); err != nil {
			return err
		}
		allowance, err = repo.FindTaxAllowance(ctx, year)
		return err
	}, snapshotTxOptions)
	if err != nil {
		return nil, err
	}

	snap := taxrefdomain.NewSnapshot(year, brackets, fica, allowance)

	s.cacheMu.Lock()
	s.cache[year] = snap
	s.cacheMu.Unlock()
	return snap, nil
}

func (s *Service) invalidate(year int) {
	s.cacheMu.Lock()
	delete(s.cache, year)
	s.cacheMu.Unlock()
}
