package lshann

import (
	"errors"
	"fmt"

	"github.com/hupe1980/lshann/dataset"
)

var (
	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("k must be positive")

	// ErrInvalidRecall is returned when the recall target is outside (0, 1].
	ErrInvalidRecall = errors.New("recall must be in (0, 1]")

	// ErrInsufficientMemory is returned when the byte budget cannot hold a
	// single hash repetition for the current dataset.
	ErrInsufficientMemory = errors.New("memory budget too small")
)

// ErrDimensionMismatch indicates a point whose shape does not match the
// index configuration.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
	cause    error
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *ErrDimensionMismatch) Unwrap() error { return e.cause }

// ErrInvalidDimension indicates an invalid configured dimensionality or
// universe size.
type ErrInvalidDimension struct {
	Dimension int
}

func (e *ErrInvalidDimension) Error() string {
	return fmt.Sprintf("invalid dimension: %d", e.Dimension)
}

// translateError normalizes errors from inner packages into the package
// level error types.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	var dm *dataset.ErrDimensionMismatch
	if errors.As(err, &dm) {
		return &ErrDimensionMismatch{Expected: dm.Expected, Actual: dm.Actual, cause: err}
	}

	return err
}
