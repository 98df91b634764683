package repository

import (
	"context"

	taxrefdomain "github.com/smallbiznis/payrun/internal/taxref/domain"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) taxrefdomain.Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) taxrefdomain.Repository {
	return &repository{db: tx}
}

func (r *repository) ReplaceBrackets(ctx context.Context, year int, jurisdiction *string, status taxrefdomain.FilingStatus, rows []taxrefdomain.TaxBracket) error {
	db := r.db.WithContext(ctx)

	var err error
	if jurisdiction == nil {
		err = db.Exec(
			`DELETE FROM tax_brackets
			 WHERE year = ? AND filing_status = ? AND jurisdiction IS NULL`,
			year, status,
		).Error
	} else {
		err = db.Exec(
			`DELETE FROM tax_brackets
			 WHERE year = ? AND filing_status = ? AND jurisdiction = ?`,
			year, status, *jurisdiction,
		).Error
	}
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	return db.Create(&rows).Error
}

func (r *repository) ReplaceFicaRates(ctx context.Context, rates *taxrefdomain.FicaRates) error {
	db := r.db.WithContext(ctx)
	if err := db.Exec(`DELETE FROM fica_rates WHERE year = ?`, rates.Year).Error; err != nil {
		return err
	}
	return db.Create(rates).Error
}

func (r *repository) ReplaceTaxAllowance(ctx context.Context, allowance *taxrefdomain.TaxAllowance) error {
	db := r.db.WithContext(ctx)
	if err := db.Exec(`DELETE FROM tax_allowances WHERE year = ?`, allowance.Year).Error; err != nil {
		return err
	}
	return db.Create(allowance).Error
}

func (r *repository) ListBrackets(ctx context.Context, year int) ([]taxrefdomain.TaxBracket, error) {
	var items []taxrefdomain.TaxBracket
	err := r.db.WithContext(ctx).Raw(
		`SELECT id, year, jurisdiction, filing_status, bracket_order, income_from, income_to, rate, base_amount, created_at
		 FROM tax_brackets
		 WHERE year = ?
		 ORDER BY jurisdiction, filing_status, bracket_order ASC`,
		year,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) FindFicaRates(ctx context.Context, year int) (*taxrefdomain.FicaRates, error) {
	var rates taxrefdomain.FicaRates
	err := r.db.WithContext(ctx).Raw(
		`SELECT id, year, social_security_rate, social_security_wage_cap, medicare_rate,
		        additional_medicare_rate, additional_medicare_threshold, additional_medicare_threshold_joint, created_at
		 FROM fica_rates
		 WHERE year = ?
		 LIMIT 1`,
		year,
	).Scan(&rates).Error
	if err != nil {
		return nil, err
	}
	if rates.ID == 0 {
		return nil, nil
	}
	return &rates, nil
}

func (r *repository) FindTaxAllowance(ctx context.Context, year int) (*taxrefdomain.TaxAllowance, error) {
	var allowance taxrefdomain.TaxAllowance
	err := r.db.WithContext(ctx).Raw(
		`SELECT id, year, standard_deduction_single, standard_deduction_joint, standard_deduction_head_of_household,
		        personal_exemption_amount, phaseout_start, phaseout_end, created_at
		 FROM tax_allowances
		 WHERE year = ?
		 LIMIT 1`,
		year,
	).Scan(&allowance).Error
	if err != nil {
		return nil, err
	}
	if allowance.ID == 0 {
		return nil, nil
	}
	return &allowance, nil
}
