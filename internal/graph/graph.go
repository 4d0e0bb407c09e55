// Package graph implements the hierarchical proximity graph: a multi-layer
// small-world index with lock-free readers, copy-on-write streaming writers
// reclaimed through epochs, and an in-place spin-locked bulk-load path.
package graph

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vexsearch/vex/internal/ebr"
	"github.com/vexsearch/vex/internal/math32"
	"github.com/vexsearch/vex/model"
)

const (
	// DefaultM is the default target degree for layers above 0.
	DefaultM = 16

	// DefaultEFConstruction is the default candidate pool size during insert.
	DefaultEFConstruction = 200

	// minimumM is the smallest valid value for M.
	minimumM = 2

	// m0Multiplier relates the layer-0 degree target to M.
	m0Multiplier = 2
)

// Options configures the graph. All fields are fixed at construction.
type Options struct {
	Dimension      int
	MaxElements    int
	M              int
	EFConstruction int

	// RandomSeed pins the level RNG for reproducible builds.
	RandomSeed *int64

	// Reclaimer overrides the process-wide epoch manager.
	Reclaimer *ebr.Manager
}

// DefaultOptions contains the default graph options.
var DefaultOptions = Options{
	M:              DefaultM,
	EFConstruction: DefaultEFConstruction,
}

// Graph is the hierarchical proximity graph index. Node storage and the
// vector arena are allocated once and never move.
type Graph struct {
	dim            int
	maxElements    int
	m              int
	m0             int
	efConstruction int
	levelMult      float64

	nodes   []node
	vectors []float32

	entryPoint atomic.Uint32
	maxLevel   atomic.Int32
	epMu       sync.Mutex

	rngSeed atomic.Uint64
	count   atomic.Int64

	rec *ebr.Manager
}

// New creates a graph for Options.MaxElements vectors of Options.Dimension.
func New(optFns ...func(o *Options)) (*Graph, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Dimension <= 0 {
		return nil, &ErrDimensionMismatch{Expected: 1, Actual: opts.Dimension}
	}
	if opts.MaxElements <= 0 {
		return nil, &ErrCapacityExceeded{ID: 0, Max: opts.MaxElements}
	}
	if opts.M < minimumM {
		opts.M = minimumM
	}
	if opts.EFConstruction <= 0 {
		opts.EFConstruction = DefaultEFConstruction
	}
	if opts.Reclaimer == nil {
		opts.Reclaimer = ebr.Default
	}

	g := &Graph{
		dim:            opts.Dimension,
		maxElements:    opts.MaxElements,
		m:              opts.M,
		m0:             m0Multiplier * opts.M,
		efConstruction: opts.EFConstruction,
		levelMult:      1.0 / math.Log(float64(opts.M)),
		nodes:          make([]node, opts.MaxElements),
		vectors:        make([]float32, opts.MaxElements*opts.Dimension),
		rec:            opts.Reclaimer,
	}
	g.maxLevel.Store(-1)

	if opts.RandomSeed != nil {
		g.rngSeed.Store(uint64(*opts.RandomSeed))
	} else {
		g.rngSeed.Store(uint64(time.Now().UnixNano()))
	}

	return g, nil
}

// Dimension returns the vector dimension.
func (g *Graph) Dimension() int { return g.dim }

// MaxElements returns the node storage capacity.
func (g *Graph) MaxElements() int { return g.maxElements }

// Count returns the number of inserted vectors.
func (g *Graph) Count() int64 { return g.count.Load() }

// MaxLevel returns the current top layer, or -1 while the graph is empty.
func (g *Graph) MaxLevel() int { return int(g.maxLevel.Load()) }

// EntryPoint returns the current entry point id. Meaningless while empty.
func (g *Graph) EntryPoint() model.VectorID {
	return model.VectorID(g.entryPoint.Load())
}

// Contains reports whether an id has been initialized.
func (g *Graph) Contains(id model.VectorID) bool {
	if int(id) >= g.maxElements {
		return false
	}
	return g.nodes[id].levelPlus1.Load() != 0
}

// VectorByID returns the arena slice for id. The slice is read-only.
func (g *Graph) VectorByID(id model.VectorID) ([]float32, bool) {
	if !g.Contains(id) {
		return nil, false
	}
	return g.vectorAt(id), true
}

// Neighbors returns a snapshot of id's layer-level neighbor ids.
func (g *Graph) Neighbors(id model.VectorID, level int) []model.VectorID {
	if int(id) >= g.maxElements || level < 0 || level >= MaxLevels {
		return nil
	}
	list := g.nodes[id].lists[level].Load()
	if list == nil {
		return nil
	}
	n := list.snapshotLen()
	out := make([]model.VectorID, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, model.VectorID(atomic.LoadUint32(&list.ids[i])))
	}
	return out
}

func (g *Graph) vectorAt(id model.VectorID) []float32 {
	off := int(id) * g.dim
	return g.vectors[off : off+g.dim]
}

func (g *Graph) dist(v []float32, id model.VectorID) float32 {
	return math32.SquaredL2(v, g.vectorAt(id))
}

func (g *Graph) neighbors(id model.VectorID, level int) *NeighborList {
	return g.nodes[id].lists[level].Load()
}

func (g *Graph) validate(vec []float32, id model.VectorID) error {
	if len(vec) != g.dim {
		return &ErrDimensionMismatch{Expected: g.dim, Actual: len(vec)}
	}
	if int(id) >= g.maxElements {
		return &ErrCapacityExceeded{ID: id, Max: g.maxElements}
	}
	return nil
}

func (g *Graph) initNode(id model.VectorID, vec []float32, level int) {
	copy(g.vectorAt(id), vec)
	g.nodes[id].levelPlus1.Store(int32(level) + 1)
}

// randomLevel draws ⌊−ln(u)·levelMult⌋ clamped to MaxLevels−1, using a
// lock-free xorshift64* generator on the shared seed.
func (g *Graph) randomLevel() int {
	seed := g.rngSeed.Add(0x9E3779B97F4A7C15)
	seed ^= seed >> 12
	seed ^= seed << 25
	seed ^= seed >> 27

	const inv = 1.0 / (1 << 53)
	u := float64(seed*0x2545F4914F6CDD1D>>11) * inv
	if u == 0 {
		u = inv
	}

	level := int(math.Floor(-math.Log(u) * g.levelMult))
	if level >= MaxLevels {
		level = MaxLevels - 1
	}
	return level
}
