package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/payrun/internal/clock"
	ledgerdomain "github.com/smallbiznis/payrun/internal/ledger/domain"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupLedger(t *testing.T) (ledgerdomain.Service, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&ledgerdomain.Wallet{}, &ledgerdomain.Transaction{}))

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)

	svc := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2023, 1, 20, 0, 0, 0, 0, time.UTC)),
	})
	return svc, db
}

func seedWallet(t *testing.T, db *gorm.DB, id snowflake.ID) {
	t.Helper()
	now := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, db.Create(&ledgerdomain.Wallet{
		ID:        id,
		OwnerID:   snowflake.ID(900),
		Currency:  "USD",
		Balance:   decimal.Zero,
		CreatedAt: now,
		UpdatedAt: now,
	}).Error)
}

func TestCreditBumpsBalance(t *testing.T) {
	svc, db := setupLedger(t)
	ctx := context.Background()
	seedWallet(t, db, snowflake.ID(10))

	txn, err := svc.Credit(ctx, snowflake.ID(10), decimal.RequireFromString("1679.25"), "net pay")
	require.NoError(t, err)
	assert.Equal(t, ledgerdomain.TransactionDirectionCredit, txn.Direction)
	assert.NotEmpty(t, txn.Reference)

	_, err = svc.Credit(ctx, snowflake.ID(10), decimal.RequireFromString("20.75"), "bonus")
	require.NoError(t, err)

	wallet, err := svc.GetWallet(ctx, snowflake.ID(10))
	require.NoError(t, err)
	assert.True(t, wallet.Balance.Equal(decimal.RequireFromString("1700")), "got %s", wallet.Balance)

	items, err := svc.ListTransactions(ctx, snowflake.ID(10))
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.NotEqual(t, items[0].Reference, items[1].Reference)
}

func TestCreditValidation(t *testing.T) {
	svc, db := setupLedger(t)
	ctx := context.Background()
	seedWallet(t, db, snowflake.ID(10))

	_, err := svc.Credit(ctx, snowflake.ID(11), decimal.NewFromInt(5), "net pay")
	assert.ErrorIs(t, err, ledgerdomain.ErrWalletNotFound)

	_, err = svc.Credit(ctx, snowflake.ID(10), decimal.Zero, "net pay")
	assert.ErrorIs(t, err, ledgerdomain.ErrInvalidAmount)

	_, err = svc.Credit(ctx, snowflake.ID(10), decimal.NewFromInt(-5), "net pay")
	assert.ErrorIs(t, err, ledgerdomain.ErrInvalidAmount)

	_, err = svc.Credit(ctx, snowflake.ID(10), decimal.NewFromInt(5), " ")
	assert.ErrorIs(t, err, ledgerdomain.ErrInvalidMemo)

	_, err = svc.Credit(ctx, 0, decimal.NewFromInt(5), "net pay")
	assert.ErrorIs(t, err, ledgerdomain.ErrInvalidWallet)

	_, err = svc.GetWallet(ctx, snowflake.ID(11))
	assert.ErrorIs(t, err, ledgerdomain.ErrWalletNotFound)

	items, err := svc.ListTransactions(ctx, snowflake.ID(10))
	require.NoError(t, err)
	assert.Empty(t, items)
}

type flakyCrediter struct {
	failures int
	err      error
	calls    int
}

func (f *flakyCrediter) Credit(ctx context.Context, walletID snowflake.ID, amount decimal.Decimal, memo string) (*ledgerdomain.Transaction, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, f.err
	}
	return &ledgerdomain.Transaction{WalletID: walletID, Amount: amount, Memo: memo}, nil
}

func TestResilientDisburserRetriesTransientErrors(t *testing.T) {
	next := &flakyCrediter{failures: 2, err: errors.New("connection reset")}
	d := NewResilientDisburser(next, RetryConfig{MaxRetries: 2, InitialBackoff: time.Millisecond}, zap.NewNop())

	txn, err := d.Credit(context.Background(), snowflake.ID(1), decimal.NewFromInt(10), "net pay")
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(1), txn.WalletID)
	assert.Equal(t, 3, next.calls)
}

func TestResilientDisburserGivesUp(t *testing.T) {
	next := &flakyCrediter{failures: 10, err: errors.New("connection reset")}
	d := NewResilientDisburser(next, RetryConfig{MaxRetries: 1, InitialBackoff: time.Millisecond}, zap.NewNop())

	_, err := d.Credit(context.Background(), snowflake.ID(1), decimal.NewFromInt(10), "net pay")
	require.Error(t, err)
	assert.Equal(t, 2, next.calls)
}

func TestResilientDisburserDoesNotRetryPermanentErrors(t *testing.T) {
	next := &flakyCrediter{failures: 10, err: ledgerdomain.ErrWalletNotFound}
	d := NewResilientDisburser(next, RetryConfig{MaxRetries: 3, InitialBackoff: time.Millisecond}, zap.NewNop())

	for i := 0; i < 6; i++ {
		_, err := d.Credit(context.Background(), snowflake.ID(1), decimal.NewFromInt(10), "net pay")
		require.ErrorIs(t, err, ledgerdomain.ErrWalletNotFound)
	}
	assert.Equal(t, 6, next.calls)
	assert.Equal(t, gobreaker.StateClosed, d.State())
}

func TestResilientDisburserOpensCircuit(t *testing.T) {
	next := &flakyCrediter{failures: 100, err: errors.New("connection refused")}
	d := NewResilientDisburser(next, RetryConfig{MaxRetries: 0}, zap.NewNop())

	for i := 0; i < 5; i++ {
		_, err := d.Credit(context.Background(), snowflake.ID(1), decimal.NewFromInt(10), "net pay")
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, d.State())

	_, err := d.Credit(context.Background(), snowflake.ID(1), decimal.NewFromInt(10), "net pay")
	require.ErrorIs(t, err, ledgerdomain.ErrUnavailable)
	assert.Equal(t, 5, next.calls)
}

func TestRetryWithBackoffHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := RetryWithBackoff(ctx, RetryConfig{MaxRetries: 3, InitialBackoff: time.Millisecond}, func() error {
		calls++
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}
