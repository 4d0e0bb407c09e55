package model

import "fmt"

// VectorID is the caller-supplied identifier for a vector.
// IDs are dense in [0, MaxElements); uniqueness is the caller's responsibility.
type VectorID uint32

// SearchResult represents a single nearest-neighbor match.
type SearchResult struct {
	ID       VectorID
	Distance float32
}

func (r SearchResult) String() string {
	return fmt.Sprintf("Result(%d: %f)", r.ID, r.Distance)
}
