package graph

import (
	"runtime"
	"sync/atomic"
)

// MaxLevels is the fixed upper bound on graph layers.
const MaxLevels = 16

// NeighborList is a header plus a contiguous array of neighbor ids.
//
// In the streaming phase a published list is immutable; updates build a fresh
// list and swing the node's layer pointer with a CAS, retiring the old list
// to the epoch manager. During bulk load the single writer mutates entries in
// place under the node spin lock; entries are therefore always read and
// written with atomic word operations.
type NeighborList struct {
	count    atomic.Uint32
	capacity uint32
	ids      []uint32
}

func newNeighborList(capacity int) *NeighborList {
	return &NeighborList{
		capacity: uint32(capacity),
		ids:      make([]uint32, capacity),
	}
}

// snapshotLen returns the entry count clamped to the backing array.
func (l *NeighborList) snapshotLen() int {
	n := int(l.count.Load())
	if n > len(l.ids) {
		n = len(l.ids)
	}
	return n
}

// spinLock gates in-place neighbor updates during bulk load. Hold times are
// O(degree · dim) distance work and must stay short.
type spinLock struct {
	state atomic.Uint32
}

func (l *spinLock) lock() {
	for !l.state.CompareAndSwap(0, 1) {
		runtime.Gosched()
	}
}

func (l *spinLock) unlock() {
	l.state.Store(0)
}

// node is a graph vertex. Vector data lives in the graph's arena; the node
// holds one atomic list pointer per layer. levelPlus1 is zero until the node
// is initialized, then topLevel+1.
type node struct {
	levelPlus1 atomic.Int32
	lists      [MaxLevels]atomic.Pointer[NeighborList]
	lock       spinLock
}
