package searcher

import "github.com/vexsearch/vex/model"

// VisitedSet tracks visited nodes with a version-stamped scratch array:
// resetting bumps the version instead of rewriting memory. When the version
// counter wraps to zero the array is zero-filled and the version set to 1.
type VisitedSet struct {
	versions []uint32
	version  uint32
}

// NewVisitedSet creates a visited set sized for the given number of nodes.
func NewVisitedSet(capacity int) *VisitedSet {
	return &VisitedSet{
		versions: make([]uint32, capacity),
		version:  1,
	}
}

// Reset invalidates all visited marks.
func (v *VisitedSet) Reset() {
	v.version++
	if v.version == 0 {
		clear(v.versions)
		v.version = 1
	}
}

// Visit marks a node as visited.
func (v *VisitedSet) Visit(id model.VectorID) {
	idx := int(id)
	if idx >= len(v.versions) {
		v.grow(idx + 1)
	}
	v.versions[idx] = v.version
}

// Visited returns true if the node has been visited since the last Reset.
func (v *VisitedSet) Visited(id model.VectorID) bool {
	idx := int(id)
	if idx >= len(v.versions) {
		return false
	}
	return v.versions[idx] == v.version
}

func (v *VisitedSet) grow(newLen int) {
	newCap := max(len(v.versions)*2, newLen)
	grown := make([]uint32, newCap)
	copy(grown, v.versions)
	v.versions = grown
}
