package service

import (
	"context"
	"errors"

	"github.com/smallbiznis/payrun/internal/grosspay"
	payrolldomain "github.com/smallbiznis/payrun/internal/payroll/domain"
	taxrefdomain "github.com/smallbiznis/payrun/internal/taxref/domain"
	"github.com/smallbiznis/payrun/internal/withholding"
)

// stageError tags an error with the step that produced it.
type stageError struct {
	kind payrolldomain.ErrorKind
	err  error
}

func (e *stageError) Error() string { return e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

func stageErr(kind payrolldomain.ErrorKind, err error) error {
	return &stageError{kind: kind, err: err}
}

func classify(err error) payrolldomain.ErrorKind {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return payrolldomain.ErrorKindCanceled
	case errors.Is(err, payrolldomain.ErrMissingTaxProfile):
		return payrolldomain.ErrorKindMissingTaxProfile
	case errors.Is(err, taxrefdomain.ErrMissingReferenceData):
		return payrolldomain.ErrorKindMissingReferenceData
	}
	var stage *stageError
	if errors.As(err, &stage) {
		return stage.kind
	}
	switch {
	case errors.Is(err, grosspay.ErrNegativeHours),
		errors.Is(err, grosspay.ErrInvalidRate),
		errors.Is(err, grosspay.ErrInvalidPeriod),
		errors.Is(err, grosspay.ErrInvalidOptions),
		errors.Is(err, withholding.ErrInvalidInput),
		errors.Is(err, withholding.ErrInvalidOptions):
		return payrolldomain.ErrorKindComputation
	}
	return payrolldomain.ErrorKindPersistence
}
