package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/payrun/internal/clock"
	ledgerdomain "github.com/smallbiznis/payrun/internal/ledger/domain"
	"github.com/smallbiznis/payrun/internal/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
}

func NewService(p Params) ledgerdomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("ledger.service"),
		genID: p.GenID,
		clock: clk,
	}
}

// Credit posts amount to the wallet and bumps its balance in one transaction.
func (s *Service) Credit(ctx context.Context, walletID snowflake.ID, amount decimal.Decimal, memo string) (*ledgerdomain.Transaction, error) {
	if walletID == 0 {
		return nil, ledgerdomain.ErrInvalidWallet
	}
	amount = money.RoundCents(amount)
	if !amount.IsPositive() {
		return nil, ledgerdomain.ErrInvalidAmount
	}
	memo = strings.TrimSpace(memo)
	if memo == "" {
		return nil, ledgerdomain.ErrInvalidMemo
	}

	now := s.clock.Now()
	txn := &ledgerdomain.Transaction{
		ID:        s.genID.Generate(),
		WalletID:  walletID,
		Direction: ledgerdomain.TransactionDirectionCredit,
		Amount:    amount,
		Memo:      memo,
		Reference: ulid.Make().String(),
		CreatedAt: now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.WithContext(ctx).Exec(
			`UPDATE wallets SET balance = balance + ?, updated_at = ? WHERE id = ?`,
			amount, now, walletID,
		)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ledgerdomain.ErrWalletNotFound
		}
		return tx.WithContext(ctx).Create(txn).Error
	})
	if err != nil {
		if !errors.Is(err, ledgerdomain.ErrWalletNotFound) {
			s.log.Warn("wallet credit failed", zap.String("wallet_id", walletID.String()), zap.Error(err))
		}
		return nil, err
	}

	s.log.Info("wallet credited",
		zap.String("wallet_id", walletID.String()),
		zap.String("transaction_id", txn.ID.String()),
		zap.String("reference", txn.Reference),
		zap.String("amount", amount.StringFixed(money.CentPlaces)),
	)
	return txn, nil
}

func (s *Service) GetWallet(ctx context.Context, walletID snowflake.ID) (*ledgerdomain.Wallet, error) {
	if walletID == 0 {
		return nil, ledgerdomain.ErrInvalidWallet
	}
	var wallet ledgerdomain.Wallet
	err := s.db.WithContext(ctx).Raw(
		`SELECT id, owner_id, currency, balance, created_at, updated_at
		FROM wallets WHERE id = ?`,
		walletID,
	).Scan(&wallet).Error
	if err != nil {
		return nil, err
	}
	if wallet.ID == 0 {
		return nil, ledgerdomain.ErrWalletNotFound
	}
	return &wallet, nil
}

func (s *Service) ListTransactions(ctx context.Context, walletID snowflake.ID) ([]ledgerdomain.Transaction, error) {
	if walletID == 0 {
		return nil, ledgerdomain.ErrInvalidWallet
	}
	var items []ledgerdomain.Transaction
	err := s.db.WithContext(ctx).Raw(
		`SELECT id, wallet_id, direction, amount, memo, reference, created_at
		FROM wallet_transactions WHERE wallet_id = ?
		ORDER BY created_at ASC, id ASC`,
		walletID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
