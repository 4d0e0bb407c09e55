// Package engine blends three substrates into a single logical index: the
// hierarchical graph, an active append-only buffer absorbing inserts, and a
// bounded FIFO of sealed buffers that background workers fold into the graph.
package engine

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vexsearch/vex/internal/buffer"
	"github.com/vexsearch/vex/internal/ebr"
	"github.com/vexsearch/vex/internal/graph"
	"github.com/vexsearch/vex/internal/math32"
	"github.com/vexsearch/vex/internal/searcher"
	"github.com/vexsearch/vex/model"
)

const (
	// DefaultBufferCapacity is the default number of slots per flat buffer.
	DefaultBufferCapacity = 50000

	// DefaultBGThreads is the default number of compaction workers.
	DefaultBGThreads = 2

	// DefaultSoftLimit is the queue depth at which inserts are throttled.
	DefaultSoftLimit = 3

	// DefaultHardLimit is the queue depth at which inserts block.
	DefaultHardLimit = 6

	// throttleSleep is the soft-backpressure pause.
	throttleSleep = 2 * time.Millisecond
)

// Options configures the engine. All fields are fixed at construction.
type Options struct {
	Dimension      int
	MaxElements    int
	M              int
	EFConstruction int
	BufferCapacity int
	BGThreads      int
	SoftLimit      int
	HardLimit      int

	RandomSeed *int64
	Reclaimer  *ebr.Manager
	Logger     *slog.Logger
}

// Engine owns the index, the active buffer, the sealed-buffer queue and the
// background compaction workers.
type Engine struct {
	dim            int
	bufferCapacity int
	softLimit      int
	hardLimit      int

	index  *graph.Graph
	rec    *ebr.Manager
	logger *slog.Logger

	active atomic.Pointer[buffer.Flat]

	// swapMu guards rotation state: the immutable queue, the archive and the
	// running flag. Both condition variables share it.
	swapMu    sync.Mutex
	swapCond  *sync.Cond // space freed in the immutable queue
	bgCond    *sync.Cond // work available for compaction
	immutable []*buffer.Flat
	archive   []*buffer.Flat
	running   bool

	compacting atomic.Int32

	wg        sync.WaitGroup
	closed    atomic.Bool
	closeOnce sync.Once
}

// New creates an engine and starts its compaction workers.
func New(optFns ...func(o *Options)) (*Engine, error) {
	opts := Options{
		M:              graph.DefaultM,
		EFConstruction: graph.DefaultEFConstruction,
		BufferCapacity: DefaultBufferCapacity,
		BGThreads:      DefaultBGThreads,
		SoftLimit:      DefaultSoftLimit,
		HardLimit:      DefaultHardLimit,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.M <= 0 {
		opts.M = graph.DefaultM
	}
	if opts.EFConstruction <= 0 {
		opts.EFConstruction = graph.DefaultEFConstruction
	}
	if opts.BufferCapacity <= 0 {
		opts.BufferCapacity = DefaultBufferCapacity
	}
	if opts.BGThreads <= 0 {
		opts.BGThreads = DefaultBGThreads
	}
	if opts.SoftLimit <= 0 {
		opts.SoftLimit = DefaultSoftLimit
	}
	if opts.HardLimit <= opts.SoftLimit {
		opts.HardLimit = opts.SoftLimit + (DefaultHardLimit - DefaultSoftLimit)
	}
	if opts.Reclaimer == nil {
		opts.Reclaimer = ebr.Default
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	idx, err := graph.New(func(o *graph.Options) {
		o.Dimension = opts.Dimension
		o.MaxElements = opts.MaxElements
		o.M = opts.M
		o.EFConstruction = opts.EFConstruction
		o.RandomSeed = opts.RandomSeed
		o.Reclaimer = opts.Reclaimer
	})
	if err != nil {
		return nil, err
	}

	e := &Engine{
		dim:            opts.Dimension,
		bufferCapacity: opts.BufferCapacity,
		softLimit:      opts.SoftLimit,
		hardLimit:      opts.HardLimit,
		index:          idx,
		rec:            opts.Reclaimer,
		logger:         opts.Logger,
		running:        true,
	}
	e.swapCond = sync.NewCond(&e.swapMu)
	e.bgCond = sync.NewCond(&e.swapMu)
	e.active.Store(buffer.NewFlat(opts.BufferCapacity, opts.Dimension))

	e.wg.Add(opts.BGThreads)
	for i := 0; i < opts.BGThreads; i++ {
		go e.compactionLoop(i)
	}

	e.logger.Info("engine started",
		"dimension", opts.Dimension,
		"max_elements", opts.MaxElements,
		"bg_threads", opts.BGThreads,
		"buffer_capacity", opts.BufferCapacity,
		"kernel", math32.Kernel(),
	)

	return e, nil
}

// Index exposes the underlying graph for the bulk-load boot phase.
func (e *Engine) Index() *graph.Graph { return e.index }

// Dimension returns the vector dimension.
func (e *Engine) Dimension() int { return e.dim }

// QueueDepth returns the current immutable-queue length.
func (e *Engine) QueueDepth() int {
	e.swapMu.Lock()
	defer e.swapMu.Unlock()
	return len(e.immutable)
}

// Quiescent reports whether no sealed buffer is queued or being compacted:
// every insert outside the active buffer has been folded into the graph.
func (e *Engine) Quiescent() bool {
	e.swapMu.Lock()
	defer e.swapMu.Unlock()
	return len(e.immutable) == 0 && e.compacting.Load() == 0
}

// BulkInsert writes directly into the graph, bypassing the buffer tier. Only
// valid while no searches or streaming inserts are running.
func (e *Engine) BulkInsert(vec []float32, id model.VectorID) error {
	return e.index.InsertBulk(vec, id)
}

// Insert appends (vec, id) to the active buffer, rotating it into the sealed
// queue when full. Inserts throttle once the queue reaches the soft limit and
// block at the hard limit until a worker drains a buffer.
func (e *Engine) Insert(vec []float32, id model.VectorID) error {
	if len(vec) != e.dim {
		return &graph.ErrDimensionMismatch{Expected: e.dim, Actual: len(vec)}
	}
	if int(id) >= e.index.MaxElements() {
		return &graph.ErrCapacityExceeded{ID: id, Max: e.index.MaxElements()}
	}
	if e.closed.Load() {
		return ErrClosed
	}

	if e.active.Load().Append(vec, id) {
		return nil
	}

	e.swapMu.Lock()
	if !e.running {
		e.swapMu.Unlock()
		return ErrClosed
	}

	// Another inserter may have rotated while we waited for the lock.
	if e.active.Load().Append(vec, id) {
		e.swapMu.Unlock()
		return nil
	}

	// Soft backpressure: shed speed without blocking.
	if q := len(e.immutable); q >= e.softLimit && q < e.hardLimit {
		e.swapMu.Unlock()
		time.Sleep(throttleSleep)
		e.swapMu.Lock()
	}

	// Hard backpressure: wait for a worker to drain a buffer.
	for len(e.immutable) >= e.hardLimit && e.running {
		e.swapCond.Wait()
	}
	if !e.running {
		e.swapMu.Unlock()
		return ErrClosed
	}

	if e.active.Load().Append(vec, id) {
		e.swapMu.Unlock()
		return nil
	}

	full := e.active.Load()
	e.immutable = append(e.immutable, full)

	fresh := buffer.NewFlat(e.bufferCapacity, e.dim)
	fresh.Append(vec, id)
	e.active.Store(fresh)

	e.bgCond.Signal()
	e.swapMu.Unlock()
	return nil
}

// Search merges brute-force scans of every live buffer with a graph search,
// returning the k nearest ids ordered by ascending distance. Buffers are
// snapshotted under the rotation lock; scans run lock-free afterwards.
func (e *Engine) Search(query []float32, k, efSearch int) ([]model.SearchResult, error) {
	if len(query) != e.dim {
		return nil, &graph.ErrDimensionMismatch{Expected: e.dim, Actual: len(query)}
	}
	if k <= 0 {
		return nil, nil
	}

	e.swapMu.Lock()
	activeSnap := e.active.Load()
	imm := make([]*buffer.Flat, len(e.immutable))
	copy(imm, e.immutable)
	e.swapMu.Unlock()

	s := searcher.Get()
	defer searcher.Put(s)

	top := s.Results
	top.Reset()

	for _, b := range imm {
		b.Scan(query, k, top)
	}
	activeSnap.Scan(query, k, top)

	graphHits := make([]model.SearchResult, 0, k)
	if err := e.index.KNNSearchInto(query, k, efSearch, &graphHits); err != nil {
		return nil, err
	}
	for _, r := range graphHits {
		v, ok := e.index.VectorByID(r.ID)
		if !ok {
			continue
		}
		// Recompute against the query so buffer and graph hits share one
		// metric baseline.
		d := math32.SquaredL2(query, v)
		top.PushBounded(searcher.Candidate{ID: r.ID, Distance: d}, k)
	}

	results := make([]model.SearchResult, 0, top.Len())
	for top.Len() > 0 {
		c, _ := top.Pop()
		results = append(results, model.SearchResult{ID: c.ID, Distance: c.Distance})
	}
	// The heap pops worst first; reverse to ascending.
	for i, j := 0, len(results)-1; i < j; i, j = i+1, j-1 {
		results[i], results[j] = results[j], results[i]
	}

	// An id caught mid-compaction can surface from both a buffer and the
	// graph; keep the first (nearest) occurrence.
	return dedupeResults(results, k), nil
}

func dedupeResults(results []model.SearchResult, k int) []model.SearchResult {
	out := results[:0]
	for _, r := range results {
		dup := false
		for _, seen := range out {
			if seen.ID == r.ID {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, r)
		}
		if len(out) == k {
			break
		}
	}
	return out
}

// compactionLoop drains sealed buffers into the graph one at a time.
func (e *Engine) compactionLoop(worker int) {
	defer e.wg.Done()

	for {
		e.swapMu.Lock()
		for len(e.immutable) == 0 && e.running {
			e.bgCond.Wait()
		}
		if len(e.immutable) == 0 && !e.running {
			e.swapMu.Unlock()
			return
		}
		full := e.immutable[0]
		e.immutable = e.immutable[1:]
		e.compacting.Add(1)
		e.swapMu.Unlock()

		n := full.Len()
		start := time.Now()
		for i := 0; i < n; i++ {
			vec, id := full.Row(i)
			if err := e.index.Insert(vec, id); err != nil {
				e.logger.Error("compaction insert failed", "worker", worker, "id", id, "error", err)
			}
		}
		e.rec.Collect()

		e.swapMu.Lock()
		e.archive = append(e.archive, full)
		e.compacting.Add(-1)
		e.swapMu.Unlock()
		e.swapCond.Broadcast()

		e.logger.Debug("buffer compacted",
			"worker", worker,
			"vectors", n,
			"elapsed", time.Since(start),
		)
	}
}

// Close stops the workers, drains the sealed queue and releases retired
// memory. The index is torn down last.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		e.swapMu.Lock()
		e.running = false
		e.swapMu.Unlock()

		e.bgCond.Broadcast()
		e.swapCond.Broadcast()
		e.wg.Wait()

		e.rec.Drain()
		e.logger.Info("engine stopped")
	})
	return nil
}
