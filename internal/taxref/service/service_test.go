package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/payrun/internal/clock"
	taxrefdomain "github.com/smallbiznis/payrun/internal/taxref/domain"
	"github.com/smallbiznis/payrun/internal/taxref/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func dp(s string) *decimal.Decimal {
	v := d(s)
	return &v
}

func setupService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&taxrefdomain.TaxBracket{},
		&taxrefdomain.FicaRates{},
		&taxrefdomain.TaxAllowance{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := newService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)),
		Repo:  repository.NewRepository(db),
	})
	return svc, db
}

func single2023() []taxrefdomain.BracketInput {
	return []taxrefdomain.BracketInput{
		{Order: 1, IncomeFrom: d("0"), IncomeTo: dp("11000"), Rate: d("0.10")},
		{Order: 2, IncomeFrom: d("11000"), IncomeTo: dp("44725"), Rate: d("0.12")},
		{Order: 3, IncomeFrom: d("44725"), Rate: d("0.22")},
	}
}

func TestUpsertFederalBracketsFillsCumulativeBase(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	rows, err := svc.UpsertFederalBrackets(ctx, 2023, taxrefdomain.FilingStatusSingle, single2023())
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.True(t, rows[0].BaseAmount.IsZero())
	assert.True(t, rows[1].BaseAmount.Equal(d("1100")), "got %s", rows[1].BaseAmount)
	assert.True(t, rows[2].BaseAmount.Equal(d("5147")), "got %s", rows[2].BaseAmount)
	assert.Nil(t, rows[0].Jurisdiction)
}

func TestUpsertFederalBracketsReplacesWholeSet(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	_, err := svc.UpsertFederalBrackets(ctx, 2023, taxrefdomain.FilingStatusSingle, single2023())
	require.NoError(t, err)

	_, err = svc.UpsertFederalBrackets(ctx, 2023, taxrefdomain.FilingStatusSingle, []taxrefdomain.BracketInput{
		{Order: 1, IncomeFrom: d("0"), Rate: d("0.15")},
	})
	require.NoError(t, err)

	snap, err := svc.Snapshot(ctx, 2023)
	require.NoError(t, err)
	brackets, err := snap.FederalBrackets(taxrefdomain.FilingStatusSingle)
	require.NoError(t, err)
	require.Len(t, brackets, 1)
	assert.True(t, brackets[0].Rate.Equal(d("0.15")))
	assert.Nil(t, brackets[0].IncomeTo)
}

func TestUpsertBracketsRejectsMalformedSets(t *testing.T) {
	cases := []struct {
		name     string
		brackets []taxrefdomain.BracketInput
		want     error
	}{
		{name: "empty", brackets: nil, want: taxrefdomain.ErrEmptyBrackets},
		{
			name: "gap",
			brackets: []taxrefdomain.BracketInput{
				{Order: 1, IncomeFrom: d("0"), IncomeTo: dp("100"), Rate: d("0.1")},
				{Order: 2, IncomeFrom: d("150"), Rate: d("0.2")},
			},
			want: taxrefdomain.ErrBracketNotContiguous,
		},
		{
			name: "open bracket not last",
			brackets: []taxrefdomain.BracketInput{
				{Order: 1, IncomeFrom: d("0"), Rate: d("0.1")},
				{Order: 2, IncomeFrom: d("100"), Rate: d("0.2")},
			},
			want: taxrefdomain.ErrInvalidTopBracket,
		},
		{
			name: "closed top",
			brackets: []taxrefdomain.BracketInput{
				{Order: 1, IncomeFrom: d("0"), IncomeTo: dp("100"), Rate: d("0.1")},
			},
			want: taxrefdomain.ErrInvalidTopBracket,
		},
		{
			name: "duplicate order",
			brackets: []taxrefdomain.BracketInput{
				{Order: 1, IncomeFrom: d("0"), IncomeTo: dp("100"), Rate: d("0.1")},
				{Order: 1, IncomeFrom: d("100"), Rate: d("0.2")},
			},
			want: taxrefdomain.ErrInvalidBracketOrder,
		},
		{
			name: "rate above one",
			brackets: []taxrefdomain.BracketInput{
				{Order: 1, IncomeFrom: d("0"), Rate: d("1.5")},
			},
			want: taxrefdomain.ErrInvalidRate,
		},
		{
			name: "inverted range",
			brackets: []taxrefdomain.BracketInput{
				{Order: 1, IncomeFrom: d("100"), IncomeTo: dp("50"), Rate: d("0.1")},
				{Order: 2, IncomeFrom: d("50"), Rate: d("0.2")},
			},
			want: taxrefdomain.ErrInvalidBracketRange,
		},
		{
			name: "base below cumulative",
			brackets: []taxrefdomain.BracketInput{
				{Order: 1, IncomeFrom: d("0"), IncomeTo: dp("11000"), Rate: d("0.10")},
				{Order: 2, IncomeFrom: d("11000"), Rate: d("0.12"), BaseAmount: dp("900")},
			},
			want: taxrefdomain.ErrNonMonotonicBrackets,
		},
	}

	svc, _ := setupService(t)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.UpsertFederalBrackets(context.Background(), 2023, taxrefdomain.FilingStatusSingle, tc.brackets)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestUpsertRejectsBadKeys(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	_, err := svc.UpsertFederalBrackets(ctx, 1800, taxrefdomain.FilingStatusSingle, single2023())
	assert.ErrorIs(t, err, taxrefdomain.ErrInvalidYear)

	_, err = svc.UpsertFederalBrackets(ctx, 2023, taxrefdomain.FilingStatus("widowed"), single2023())
	assert.ErrorIs(t, err, taxrefdomain.ErrInvalidFilingStatus)

	_, err = svc.UpsertStateBrackets(ctx, "Cal", 2023, taxrefdomain.FilingStatusSingle, single2023())
	assert.ErrorIs(t, err, taxrefdomain.ErrInvalidState)
}

func TestUpsertStateBracketsNormalizesCode(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	rows, err := svc.UpsertStateBrackets(ctx, " ca ", 2023, taxrefdomain.FilingStatusSingle, []taxrefdomain.BracketInput{
		{Order: 1, IncomeFrom: d("0"), IncomeTo: dp("10000"), Rate: d("0.01")},
		{Order: 2, IncomeFrom: d("10000"), Rate: d("0.02")},
	})
	require.NoError(t, err)
	require.NotNil(t, rows[0].Jurisdiction)
	assert.Equal(t, "CA", *rows[0].Jurisdiction)

	snap, err := svc.Snapshot(ctx, 2023)
	require.NoError(t, err)
	brackets, ok := snap.StateBrackets("ca", taxrefdomain.FilingStatusSingle)
	require.True(t, ok)
	assert.Len(t, brackets, 2)

	_, ok = snap.StateBrackets("NY", taxrefdomain.FilingStatusSingle)
	assert.False(t, ok)

	_, err = snap.FederalBrackets(taxrefdomain.FilingStatusSingle)
	assert.ErrorIs(t, err, taxrefdomain.ErrMissingReferenceData)
}

func TestUpsertFicaAndAllowanceValidation(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	_, err := svc.UpsertFicaRates(ctx, 2023, taxrefdomain.FicaRatesInput{
		SocialSecurityRate:    d("0.062"),
		SocialSecurityWageCap: d("0"),
		MedicareRate:          d("0.0145"),
	})
	assert.ErrorIs(t, err, taxrefdomain.ErrInvalidAmount)

	_, err = svc.UpsertTaxAllowances(ctx, 2023, taxrefdomain.TaxAllowanceInput{
		StandardDeductionSingle: d("13850"),
		PhaseoutStart:           d("200"),
		PhaseoutEnd:             d("100"),
	})
	assert.ErrorIs(t, err, taxrefdomain.ErrInvalidAmount)
}

func TestSnapshotCacheInvalidatedOnUpsert(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	first, err := svc.Snapshot(ctx, 2023)
	require.NoError(t, err)
	_, err = first.FicaRates()
	assert.ErrorIs(t, err, taxrefdomain.ErrMissingReferenceData)

	again, err := svc.Snapshot(ctx, 2023)
	require.NoError(t, err)
	assert.Same(t, first, again)

	_, err = svc.UpsertFicaRates(ctx, 2023, fica2023())
	require.NoError(t, err)

	fresh, err := svc.Snapshot(ctx, 2023)
	require.NoError(t, err)
	assert.NotSame(t, first, fresh)
	rates, err := fresh.FicaRates()
	require.NoError(t, err)
	assert.True(t, rates.SocialSecurityWageCap.Equal(d("160200")))

	// The earlier snapshot is unaffected by the write.
	_, err = first.FicaRates()
	assert.ErrorIs(t, err, taxrefdomain.ErrMissingReferenceData)
}

func TestPinBlocksSameYearWritesOnly(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	_, release, err := svc.Pin(ctx, 2023)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := svc.UpsertFicaRates(ctx, 2023, fica2023())
		done <- err
	}()

	// Writes for another year proceed while 2023 is pinned.
	_, err = svc.UpsertFicaRates(ctx, 2024, fica2023())
	require.NoError(t, err)

	select {
	case <-done:
		t.Fatal("upsert for a pinned year completed before release")
	case <-time.After(100 * time.Millisecond):
	}

	release()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("upsert did not complete after release")
	}
}

func TestDecodeAndApplyDocument(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	doc, err := Decode(strings.NewReader(`
years:
  - year: 2023
    fica:
      socialSecurityRate: "0.062"
      socialSecurityWageCap: "160200"
      medicareRate: "0.0145"
      additionalMedicareRate: "0.009"
      additionalMedicareThreshold: "200000"
      additionalMedicareThresholdJoint: "250000"
    allowance:
      standardDeductionSingle: "13850"
      standardDeductionJoint: "27700"
      standardDeductionHeadOfHousehold: "20800"
      personalExemptionAmount: "0"
      phaseoutStart: "0"
      phaseoutEnd: "0"
    federal:
      - filingStatus: single
        brackets:
          - {order: 1, incomeFrom: "0", incomeTo: "11000", rate: "0.10"}
          - {order: 2, incomeFrom: "11000", incomeTo: "44725", rate: "0.12", baseAmount: "1100"}
          - {order: 3, incomeFrom: "44725", rate: "0.22"}
    states:
      - state: ca
        filingStatus: single
        brackets:
          - {order: 1, incomeFrom: "0", rate: "0.04"}
`))
	require.NoError(t, err)
	require.NoError(t, Apply(ctx, svc, doc))

	snap, err := svc.Snapshot(ctx, 2023)
	require.NoError(t, err)
	allowance, err := snap.Allowance()
	require.NoError(t, err)
	assert.True(t, allowance.StandardDeduction(taxrefdomain.FilingStatusMarriedSeparate).Equal(d("13850")))
	assert.True(t, allowance.StandardDeduction(taxrefdomain.FilingStatusMarriedJoint).Equal(d("27700")))

	brackets, err := snap.FederalBrackets(taxrefdomain.FilingStatusSingle)
	require.NoError(t, err)
	assert.True(t, brackets[2].BaseAmount.Equal(d("5147")))

	_, ok := snap.StateBrackets("CA", taxrefdomain.FilingStatusSingle)
	assert.True(t, ok)
}

func TestDecodeRejectsUnknownKeys(t *testing.T) {
	_, err := Decode(strings.NewReader("years:\n  - year: 2023\n    bogus: 1\n"))
	assert.Error(t, err)

	_, err = Decode(strings.NewReader(""))
	assert.Error(t, err)
}

func fica2023() taxrefdomain.FicaRatesInput {
	return taxrefdomain.FicaRatesInput{
		SocialSecurityRate:               d("0.062"),
		SocialSecurityWageCap:            d("160200"),
		MedicareRate:                     d("0.0145"),
		AdditionalMedicareRate:           d("0.009"),
		AdditionalMedicareThreshold:      d("200000"),
		AdditionalMedicareThresholdJoint: d("250000"),
	}
}

func TestLoadBundledReferenceData(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	doc, err := LoadFile("../../../refdata/2023.yml")
	require.NoError(t, err)
	require.NoError(t, Apply(ctx, svc, doc))

	snap, err := svc.Snapshot(ctx, 2023)
	require.NoError(t, err)
	for _, status := range []taxrefdomain.FilingStatus{
		taxrefdomain.FilingStatusSingle,
		taxrefdomain.FilingStatusMarriedJoint,
		taxrefdomain.FilingStatusMarriedSeparate,
		taxrefdomain.FilingStatusHeadOfHousehold,
	} {
		brackets, err := snap.FederalBrackets(status)
		require.NoError(t, err, status)
		assert.Len(t, brackets, 7, status)
	}

	single, err := snap.FederalBrackets(taxrefdomain.FilingStatusSingle)
	require.NoError(t, err)
	assert.True(t, single[6].BaseAmount.Equal(d("174238.25")), single[6].BaseAmount.String())
}

// txRecordingRepo notes which transaction handle served each read.
type txRecordingRepo struct {
	taxrefdomain.Repository
	tx    *gorm.DB
	reads *[]*gorm.DB
}

func (r *txRecordingRepo) WithTx(tx *gorm.DB) taxrefdomain.Repository {
	return &txRecordingRepo{Repository: r.Repository.WithTx(tx), tx: tx, reads: r.reads}
}

func (r *txRecordingRepo) ListBrackets(ctx context.Context, year int) ([]taxrefdomain.TaxBracket, error) {
	*r.reads = append(*r.reads, r.tx)
	return r.Repository.ListBrackets(ctx, year)
}

func (r *txRecordingRepo) FindFicaRates(ctx context.Context, year int) (*taxrefdomain.FicaRates, error) {
	*r.reads = append(*r.reads, r.tx)
	return r.Repository.FindFicaRates(ctx, year)
}

func (r *txRecordingRepo) FindTaxAllowance(ctx context.Context, year int) (*taxrefdomain.TaxAllowance, error) {
	*r.reads = append(*r.reads, r.tx)
	return r.Repository.FindTaxAllowance(ctx, year)
}

func TestSnapshotReadsInOneTransaction(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()
	_, err := svc.UpsertFederalBrackets(ctx, 2023, taxrefdomain.FilingStatusSingle, single2023())
	require.NoError(t, err)

	var reads []*gorm.DB
	svc.repo = &txRecordingRepo{Repository: repository.NewRepository(db), reads: &reads}

	snap, err := svc.Snapshot(ctx, 2023)
	require.NoError(t, err)
	brackets, err := snap.FederalBrackets(taxrefdomain.FilingStatusSingle)
	require.NoError(t, err)
	assert.NotEmpty(t, brackets)

	require.Len(t, reads, 3)
	require.NotNil(t, reads[0])
	assert.Same(t, reads[0], reads[1])
	assert.Same(t, reads[0], reads[2])
}
