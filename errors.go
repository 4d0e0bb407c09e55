package vex

import (
	"errors"
	"fmt"

	"github.com/vexsearch/vex/internal/engine"
	"github.com/vexsearch/vex/internal/graph"
	"github.com/vexsearch/vex/model"
)

var (
	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("k must be positive")

	// ErrClosed is returned for operations on a closed instance.
	ErrClosed = errors.New("vex: closed")
)

// ErrDimensionMismatch indicates a vector/query dimensionality mismatch.
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

// ErrCapacityExceeded indicates an insert with an id at or beyond the fixed
// element capacity.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrCapacityExceeded struct {
	ID    model.VectorID
	Max   int
	cause error
}

func (e *ErrCapacityExceeded) Error() string {
	return fmt.Sprintf("capacity exceeded: id %d not in [0, %d)", e.ID, e.Max)
}

func (e *ErrCapacityExceeded) Unwrap() error { return e.cause }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	var dm *graph.ErrDimensionMismatch
	if errors.As(err, &dm) {
		return &ErrDimensionMismatch{Expected: dm.Expected, Actual: dm.Actual, cause: err}
	}
	var ce *graph.ErrCapacityExceeded
	if errors.As(err, &ce) {
		return &ErrCapacityExceeded{ID: ce.ID, Max: ce.Max, cause: err}
	}
	if errors.Is(err, engine.ErrClosed) {
		return fmt.Errorf("%w: %w", ErrClosed, err)
	}

	return err
}
