package graph

import (
	"fmt"

	"github.com/vexsearch/vex/model"
)

// ErrDimensionMismatch indicates a vector/query dimensionality mismatch.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// ErrCapacityExceeded indicates an insert with an id outside the fixed node
// storage.
type ErrCapacityExceeded struct {
	ID  model.VectorID
	Max int
}

func (e *ErrCapacityExceeded) Error() string {
	return fmt.Sprintf("capacity exceeded: id %d not in [0, %d)", e.ID, e.Max)
}
