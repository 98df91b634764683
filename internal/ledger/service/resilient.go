package service

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/payrun/internal/config"
	ledgerdomain "github.com/smallbiznis/payrun/internal/ledger/domain"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// RetryConfig bounds the retries around one disbursement.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
}

func RetryConfigFrom(cfg config.PayrollConfig) RetryConfig {
	return RetryConfig{
		MaxRetries:     cfg.Disbursement.MaxRetries,
		InitialBackoff: time.Duration(cfg.Disbursement.InitialBackoffMillis) * time.Millisecond,
	}
}

// Crediter is the single operation the payroll run needs from a ledger.
type Crediter interface {
	Credit(ctx context.Context, walletID snowflake.ID, amount decimal.Decimal, memo string) (*ledgerdomain.Transaction, error)
}

// ResilientDisburser wraps a Crediter with a circuit breaker and bounded
// retry. Permanent errors are returned at once and do not trip the breaker.
type ResilientDisburser struct {
	next Crediter
	cb   *gobreaker.CircuitBreaker
	cfg  RetryConfig
	log  *zap.Logger
}

func NewResilientDisburser(next Crediter, cfg RetryConfig, log *zap.Logger) *ResilientDisburser {
	if log == nil {
		log = zap.NewNop()
	}
	return &ResilientDisburser{
		next: next,
		cb:   NewCircuitBreaker("ledger.credit"),
		cfg:  cfg,
		log:  log.Named("ledger.disburser"),
	}
}

func (d *ResilientDisburser) Credit(ctx context.Context, walletID snowflake.ID, amount decimal.Decimal, memo string) (*ledgerdomain.Transaction, error) {
	var permanent error
	result, err := d.cb.Execute(func() (any, error) {
		var txn *ledgerdomain.Transaction
		innerErr := RetryWithBackoff(ctx, d.cfg, func() error {
			var err error
			txn, err = d.next.Credit(ctx, walletID, amount, memo)
			if ledgerdomain.IsPermanent(err) {
				permanent = err
				return nil
			}
			return err
		})
		if innerErr != nil {
			return nil, innerErr
		}
		return txn, nil
	})
	if permanent != nil {
		return nil, permanent
	}
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			d.log.Warn("ledger circuit open", zap.String("wallet_id", walletID.String()))
			return nil, errors.Join(ledgerdomain.ErrUnavailable, err)
		}
		return nil, err
	}
	return result.(*ledgerdomain.Transaction), nil
}

// State exposes the breaker state for logs and tests.
func (d *ResilientDisburser) State() gobreaker.State {
	return d.cb.State()
}

// RetryWithBackoff executes fn with exponential backoff and jitter until it
// succeeds, retries run out or ctx ends.
func RetryWithBackoff(ctx context.Context, cfg RetryConfig, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if attempt < cfg.MaxRetries {
			wait := time.Duration(math.Pow(2, float64(attempt))) * cfg.InitialBackoff
			if half := int64(wait / 2); half > 0 {
				wait += time.Duration(rand.Int63n(half))
			}

			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	return lastErr
}

func NewCircuitBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
	})
}
