package repository

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/payrun/internal/migration"
	payrolldomain "github.com/smallbiznis/payrun/internal/payroll/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupRepo(t *testing.T) (payrolldomain.Repository, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(db))
	return NewRepository(db), db
}

func pendingEntry(id snowflake.ID) *payrolldomain.PayrollEntry {
	at := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	return &payrolldomain.PayrollEntry{
		ID:             id,
		RunID:          1,
		EmployeeID:     2,
		EmployerID:     3,
		PayPeriodStart: at,
		PayPeriodEnd:   at.AddDate(0, 0, 13),
		PayDate:        at.AddDate(0, 0, 19),
		Status:         payrolldomain.EntryStatusPending,
		ProcessedBy:    "test",
		CreatedAt:      at,
		UpdatedAt:      at,
	}
}

func TestEntryTransitions(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	entry := pendingEntry(10)
	require.NoError(t, repo.CreateEntry(ctx, entry))

	entry.GrossPay = decimal.NewFromInt(2000)
	entry.NetPay = decimal.NewFromInt(1700)
	require.NoError(t, repo.CompleteEntry(ctx, entry))
	assert.Equal(t, payrolldomain.EntryStatusCompleted, entry.Status)

	// Completed entries are terminal.
	require.ErrorIs(t, repo.CompleteEntry(ctx, entry), payrolldomain.ErrInvalidTransition)
	require.ErrorIs(t, repo.FailEntry(ctx, entry.ID, "late failure", time.Now()), payrolldomain.ErrInvalidTransition)

	stored, err := repo.FindEntry(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, payrolldomain.EntryStatusCompleted, stored.Status)
	assert.True(t, stored.GrossPay.Equal(decimal.NewFromInt(2000)))

	failed := pendingEntry(11)
	require.NoError(t, repo.CreateEntry(ctx, failed))
	require.NoError(t, repo.FailEntry(ctx, failed.ID, "missing_tax_profile", time.Now()))
	require.ErrorIs(t, repo.CompleteEntry(ctx, failed), payrolldomain.ErrInvalidTransition)

	stored, err = repo.FindEntry(ctx, failed.ID)
	require.NoError(t, err)
	assert.Equal(t, payrolldomain.EntryStatusError, stored.Status)
	require.NotNil(t, stored.ErrorMessage)
	assert.Equal(t, "missing_tax_profile", *stored.ErrorMessage)

	notPending := pendingEntry(12)
	notPending.Status = payrolldomain.EntryStatusCompleted
	require.ErrorIs(t, repo.CreateEntry(ctx, notPending), payrolldomain.ErrInvalidTransition)

	_, err = repo.FindEntry(ctx, 99)
	require.ErrorIs(t, err, payrolldomain.ErrNotFound)
}

func TestOneCompletedEntryPerPeriod(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	first := pendingEntry(10)
	require.NoError(t, repo.CreateEntry(ctx, first))
	require.NoError(t, repo.CompleteEntry(ctx, first))

	// A pending duplicate can be created but never completed.
	second := pendingEntry(11)
	require.NoError(t, repo.CreateEntry(ctx, second))
	require.ErrorIs(t, repo.CompleteEntry(ctx, second), payrolldomain.ErrAlreadyCompleted)
	require.NoError(t, repo.FailEntry(ctx, second.ID, "already completed", time.Now()))

	found, err := repo.FindCompletedEntry(ctx, first.EmployeeID, first.PayPeriodStart, first.PayPeriodEnd)
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(10), found.ID)

	next := pendingEntry(12)
	next.PayPeriodStart = first.PayPeriodEnd.AddDate(0, 0, 1)
	next.PayPeriodEnd = next.PayPeriodStart.AddDate(0, 0, 13)
	_, err = repo.FindCompletedEntry(ctx, next.EmployeeID, next.PayPeriodStart, next.PayPeriodEnd)
	require.ErrorIs(t, err, payrolldomain.ErrNotFound)
	require.NoError(t, repo.CreateEntry(ctx, next))
	require.NoError(t, repo.CompleteEntry(ctx, next))
}

func TestTaxCalculationIsUniquePerEntry(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	calc := func(id snowflake.ID) *payrolldomain.TaxCalculation {
		return &payrolldomain.TaxCalculation{
			ID:             id,
			PayrollEntryID: 10,
			EmployeeID:     2,
			TaxYear:        2023,
			FilingStatus:   "single",
			CreatedAt:      time.Date(2023, 1, 16, 0, 0, 0, 0, time.UTC),
		}
	}
	require.NoError(t, repo.CreateTaxCalculation(ctx, calc(1)))
	require.ErrorIs(t, repo.CreateTaxCalculation(ctx, calc(2)), payrolldomain.ErrTaxCalculationExists)

	found, err := repo.FindTaxCalculationByEntry(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(1), found.ID)

	_, err = repo.FindTaxCalculationByEntry(ctx, 11)
	require.ErrorIs(t, err, payrolldomain.ErrNotFound)
}

func TestRunLifecycle(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()
	at := time.Date(2023, 1, 16, 0, 0, 0, 0, time.UTC)

	run := &payrolldomain.PayrollRun{
		ID:             5,
		EmployerID:     3,
		PayPeriodStart: at,
		PayPeriodEnd:   at,
		PayDate:        at,
		TaxYear:        2023,
		ProcessedBy:    "test",
		Status:         payrolldomain.RunStatusRunning,
		StartedAt:      at,
	}
	require.NoError(t, repo.CreateRun(ctx, run))

	finished := at.Add(time.Minute)
	run.Status = payrolldomain.RunStatusSucceeded
	run.ProcessedCount = 3
	run.Errors = []byte("[]")
	run.FinishedAt = &finished
	require.NoError(t, repo.FinishRun(ctx, run))

	stored, err := repo.FindRun(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, payrolldomain.RunStatusSucceeded, stored.Status)
	assert.Equal(t, 3, stored.ProcessedCount)

	_, err = repo.FindRun(ctx, 6)
	require.ErrorIs(t, err, payrolldomain.ErrNotFound)
	require.ErrorIs(t, repo.FinishRun(ctx, &payrolldomain.PayrollRun{ID: 6}), payrolldomain.ErrNotFound)
}
