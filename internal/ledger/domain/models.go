package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidWallet  = errors.New("invalid_wallet")
	ErrWalletNotFound = errors.New("wallet_not_found")
	ErrInvalidAmount  = errors.New("invalid_amount")
	ErrInvalidMemo    = errors.New("invalid_memo")
	ErrUnavailable    = errors.New("ledger_unavailable")
)

// TransactionDirection represents debit or credit postings.
type TransactionDirection string

const (
	TransactionDirectionDebit  TransactionDirection = "debit"
	TransactionDirectionCredit TransactionDirection = "credit"
)

// Wallet holds an employee's disbursed balance.
type Wallet struct {
	ID        snowflake.ID    `gorm:"primaryKey"`
	OwnerID   snowflake.ID    `gorm:"column:owner_id;not null;index"`
	Currency  string          `gorm:"type:text;not null"`
	Balance   decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0"`
	CreatedAt time.Time       `gorm:"not null"`
	UpdatedAt time.Time       `gorm:"not null"`
}

// TableName sets the database table name.
func (Wallet) TableName() string { return "wallets" }

// Transaction is an immutable posting against a wallet.
type Transaction struct {
	ID        snowflake.ID         `gorm:"primaryKey"`
	WalletID  snowflake.ID         `gorm:"column:wallet_id;not null;index"`
	Direction TransactionDirection `gorm:"type:text;not null"`
	Amount    decimal.Decimal      `gorm:"type:numeric(20,2);not null"`
	Memo      string               `gorm:"type:text;not null"`
	Reference string               `gorm:"type:text;not null;uniqueIndex"`
	CreatedAt time.Time            `gorm:"not null"`
}

// TableName sets the database table name.
func (Transaction) TableName() string { return "wallet_transactions" }

type Service interface {
	Credit(ctx context.Context, walletID snowflake.ID, amount decimal.Decimal, memo string) (*Transaction, error)
	GetWallet(ctx context.Context, walletID snowflake.ID) (*Wallet, error)
	ListTransactions(ctx context.Context, walletID snowflake.ID) ([]Transaction, error)
}

// IsPermanent reports errors a retry cannot fix.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrWalletNotFound) ||
		errors.Is(err, ErrInvalidWallet) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidMemo)
}
