// Package buffer implements the flat append-only write buffer that absorbs
// streaming inserts before background compaction folds them into the graph.
package buffer

import (
	"runtime"
	"sync/atomic"
	"unsafe"

	"github.com/vexsearch/vex/internal/math32"
	"github.com/vexsearch/vex/internal/searcher"
	"github.com/vexsearch/vex/model"
)

// dataAlignment matches the widest vector load the distance kernels issue.
const dataAlignment = 32

// Flat is an aligned SoA buffer of (vector, id) pairs with wait-free append
// and brute-force scan.
//
// Appenders reserve a slot with a fetch-add on reserved, copy the payload and
// then publish the slot through its ready flag (release). Scanners check the
// flag (acquire) before touching a slot, so a slot is either fully visible or
// skipped.
type Flat struct {
	data     []float32
	ids      []uint32
	ready    []atomic.Uint32
	reserved atomic.Int64

	capacity int
	dim      int
}

// NewFlat allocates a buffer of capacity slots for dim-sized vectors. The
// vector block is aligned to 32 bytes for the SIMD kernels.
func NewFlat(capacity, dim int) *Flat {
	raw := make([]float32, capacity*dim+dataAlignment/4)
	off := 0
	if rem := uintptr(unsafe.Pointer(&raw[0])) % dataAlignment; rem != 0 {
		off = int((dataAlignment - rem) / 4)
	}

	return &Flat{
		data:     raw[off : off+capacity*dim],
		ids:      make([]uint32, capacity),
		ready:    make([]atomic.Uint32, capacity),
		capacity: capacity,
		dim:      dim,
	}
}

// Append copies (vec, id) into the next free slot. Returns false when the
// buffer is full and a rotation is required.
func (f *Flat) Append(vec []float32, id model.VectorID) bool {
	slot := f.reserved.Add(1) - 1
	if slot >= int64(f.capacity) {
		return false
	}

	copy(f.data[int(slot)*f.dim:(int(slot)+1)*f.dim], vec)
	f.ids[slot] = uint32(id)
	f.ready[slot].Store(1)
	return true
}

// Len returns the number of reserved slots, clamped to capacity. A slot
// counted here may not be committed yet; its ready flag tells.
func (f *Flat) Len() int {
	n := f.reserved.Load()
	if n > int64(f.capacity) {
		n = int64(f.capacity)
	}
	return int(n)
}

// Capacity returns the slot capacity.
func (f *Flat) Capacity() int { return f.capacity }

// Dim returns the vector dimension.
func (f *Flat) Dim() int { return f.dim }

// Scan brute-forces the committed slots against query, folding each hit into
// the caller's bounded max-heap of size k.
func (f *Flat) Scan(query []float32, k int, top *searcher.PriorityQueue) {
	n := f.Len()
	for i := 0; i < n; i++ {
		if f.ready[i].Load() == 0 {
			continue
		}
		d := math32.SquaredL2(query, f.data[i*f.dim:(i+1)*f.dim])
		top.PushBounded(searcher.Candidate{ID: model.VectorID(f.ids[i]), Distance: d}, k)
	}
}

// Row returns the vector and id at slot i, spinning briefly if the slot has
// been reserved but not yet committed. Used by compaction after the buffer is
// sealed, when any in-flight append finishes within a memcpy.
func (f *Flat) Row(i int) ([]float32, model.VectorID) {
	for f.ready[i].Load() == 0 {
		runtime.Gosched()
	}
	return f.data[i*f.dim : (i+1)*f.dim], model.VectorID(f.ids[i])
}
