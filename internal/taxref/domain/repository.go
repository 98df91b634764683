package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository

	ReplaceBrackets(ctx context.Context, year int, jurisdiction *string, status FilingStatus, rows []TaxBracket) error
	ReplaceFicaRates(ctx context.Context, rates *FicaRates) error
	ReplaceTaxAllowance(ctx context.Context, allowance *TaxAllowance) error

	ListBrackets(ctx context.Context, year int) ([]TaxBracket, error)
	FindFicaRates(ctx context.Context, year int) (*FicaRates, error)
	FindTaxAllowance(ctx context.Context, year int) (*TaxAllowance, error)
}
