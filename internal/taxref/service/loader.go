package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	taxrefdomain "github.com/smallbiznis/payrun/internal/taxref/domain"
	"gopkg.in/yaml.v3"
)

// Document is the on-disk form of reference data, one entry per tax year.
type Document struct {
	Years []YearDocument `yaml:"years"`
}

type YearDocument struct {
	Year      int                             `yaml:"year"`
	Fica      *taxrefdomain.FicaRatesInput    `yaml:"fica,omitempty"`
	Allowance *taxrefdomain.TaxAllowanceInput `yaml:"allowance,omitempty"`
	Federal   []BracketSetDocument            `yaml:"federal,omitempty"`
	States    []BracketSetDocument            `yaml:"states,omitempty"`
}

type BracketSetDocument struct {
	State        string                      `yaml:"state,omitempty"`
	FilingStatus string                      `yaml:"filingStatus"`
	Brackets     []taxrefdomain.BracketInput `yaml:"brackets"`
}

func LoadFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}

// Decode parses a reference data document, rejecting unknown keys.
func Decode(r io.Reader) (*Document, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("reference data document is empty")
		}
		return nil, fmt.Errorf("decode reference data: %w", err)
	}
	return &doc, nil
}

// Apply replaces every table named in doc. It stops at the first rejected
// set; sets already applied stay applied.
func Apply(ctx context.Context, svc taxrefdomain.Service, doc *Document) error {
	if doc == nil {
		return errors.New("reference data document is nil")
	}
	for _, y := range doc.Years {
		if y.Fica != nil {
			if _, err := svc.UpsertFicaRates(ctx, y.Year, *y.Fica); err != nil {
				return fmt.Errorf("year %d fica: %w", y.Year, err)
			}
		}
		if y.Allowance != nil {
			if _, err := svc.UpsertTaxAllowances(ctx, y.Year, *y.Allowance); err != nil {
				return fmt.Errorf("year %d allowance: %w", y.Year, err)
			}
		}
		for _, set := range y.Federal {
			status, err := taxrefdomain.ParseFilingStatus(set.FilingStatus)
			if err != nil {
				return fmt.Errorf("year %d federal: %w", y.Year, err)
			}
			if _, err := svc.UpsertFederalBrackets(ctx, y.Year, status, set.Brackets); err != nil {
				return fmt.Errorf("year %d federal %s: %w", y.Year, status, err)
			}
		}
		for _, set := range y.States {
			status, err := taxrefdomain.ParseFilingStatus(set.FilingStatus)
			if err != nil {
				return fmt.Errorf("year %d state %s: %w", y.Year, set.State, err)
			}
			if _, err := svc.UpsertStateBrackets(ctx, set.State, y.Year, status, set.Brackets); err != nil {
				return fmt.Errorf("year %d state %s %s: %w", y.Year, set.State, status, err)
			}
		}
	}
	return nil
}
