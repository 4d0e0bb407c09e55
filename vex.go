package vex

import (
	"context"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/vexsearch/vex/internal/engine"
	"github.com/vexsearch/vex/model"
)

// Vex is an in-process approximate-nearest-neighbor search engine for
// fixed-dimension float32 vectors under squared L2. It supports an offline
// bulk-load phase followed by a streaming phase of concurrent searches and
// inserts.
type Vex struct {
	engine *engine.Engine
	logger *Logger
	dim    int
	closed atomic.Bool
}

// New creates an engine for maxElements vectors of the given dimension. The
// dimension is fixed for the lifetime of the process.
func New(dimension, maxElements int, optFns ...Option) (*Vex, error) {
	o := applyOptions(optFns)

	eng, err := engine.New(func(eo *engine.Options) {
		eo.Dimension = dimension
		eo.MaxElements = maxElements
		eo.M = o.m
		eo.EFConstruction = o.efConstruction
		eo.BufferCapacity = o.bufferCapacity
		eo.BGThreads = o.bgThreads
		eo.SoftLimit = o.softLimit
		eo.HardLimit = o.hardLimit
		eo.RandomSeed = o.randomSeed
		eo.Logger = o.logger.Logger
	})
	if err != nil {
		return nil, translateError(err)
	}

	return &Vex{
		engine: eng,
		logger: o.logger,
		dim:    dimension,
	}, nil
}

// Dimension returns the configured vector dimension.
func (v *Vex) Dimension() int { return v.dim }

// Insert enqueues (id, vec) on the streaming write path. The vector becomes
// searchable immediately through the buffer tier and is folded into the graph
// by a background worker. Inserts may block briefly under backpressure.
//
// Reinserting an id is safe but produces no replacement semantics; id
// uniqueness is the caller's responsibility.
func (v *Vex) Insert(ctx context.Context, id model.VectorID, vec []float32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if v.closed.Load() {
		return ErrClosed
	}

	err := translateError(v.engine.Insert(vec, id))
	v.logger.LogInsert(ctx, uint32(id), len(vec), err)
	return err
}

// Search returns the k nearest neighbors of query ordered by ascending
// distance, merging the graph with all live write buffers. efSearch bounds
// the graph frontier; values below k are raised to k.
func (v *Vex) Search(ctx context.Context, query []float32, k, efSearch int) ([]model.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if v.closed.Load() {
		return nil, ErrClosed
	}
	if k <= 0 {
		return nil, ErrInvalidK
	}

	results, err := v.engine.Search(query, k, efSearch)
	err = translateError(err)
	v.logger.LogSearch(ctx, k, len(results), err)
	return results, err
}

// BulkInsert writes a single vector directly into the graph, bypassing the
// buffer tier. Only valid while no searches or streaming inserts run.
func (v *Vex) BulkInsert(id model.VectorID, vec []float32) error {
	if v.closed.Load() {
		return ErrClosed
	}
	return translateError(v.engine.BulkInsert(vec, id))
}

// BulkLoad ingests a flattened base corpus (count × dimension floats) with
// dense ids starting at start, fanning the build across all cores. It must
// complete before the first Search or Insert.
func (v *Vex) BulkLoad(ctx context.Context, vectors []float32, start model.VectorID) error {
	if v.closed.Load() {
		return ErrClosed
	}
	if len(vectors)%v.dim != 0 {
		return &ErrDimensionMismatch{Expected: v.dim, Actual: len(vectors) % v.dim}
	}

	n := len(vectors) / v.dim
	workers := runtime.GOMAXPROCS(0)
	if workers > n {
		workers = max(n, 1)
	}

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for i := w; i < n; i += workers {
				if err := ctx.Err(); err != nil {
					return err
				}
				vec := vectors[i*v.dim : (i+1)*v.dim]
				if err := v.engine.BulkInsert(vec, start+model.VectorID(i)); err != nil {
					return translateError(err)
				}
			}
			return nil
		})
	}

	err := g.Wait()
	v.logger.LogBulkLoad(ctx, n, err)
	return err
}

// QueueDepth reports the current sealed-buffer queue length. Intended for
// operational visibility and tests.
func (v *Vex) QueueDepth() int {
	return v.engine.QueueDepth()
}

// Quiescent reports whether every sealed buffer has been folded into the
// graph. Inserts still in the active buffer remain searchable either way.
func (v *Vex) Quiescent() bool {
	return v.engine.Quiescent()
}

// Close stops the background workers, drains pending buffers into the graph
// and releases retired memory. Further calls are no-ops.
func (v *Vex) Close() error {
	if v.closed.Swap(true) {
		return nil
	}
	return v.engine.Close()
}
