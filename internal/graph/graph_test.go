package graph

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vexsearch/vex/model"
	"github.com/vexsearch/vex/testutil"
)

func newTestGraph(t *testing.T, dim, maxElements int, optFns ...func(o *Options)) *Graph {
	t.Helper()
	seed := int64(42)
	g, err := New(append([]func(o *Options){func(o *Options) {
		o.Dimension = dim
		o.MaxElements = maxElements
		o.RandomSeed = &seed
	}}, optFns...)...)
	require.NoError(t, err)
	return g
}

func TestEmptySearch(t *testing.T) {
	g := newTestGraph(t, 8, 16)

	res, err := g.KNNSearch(make([]float32, 8), 10, 50)
	require.NoError(t, err)
	require.Empty(t, res)
	require.Equal(t, -1, g.MaxLevel())
}

func TestSingleInsertExactMatch(t *testing.T) {
	g := newTestGraph(t, 8, 16)

	vec := make([]float32, 8)
	require.NoError(t, g.Insert(vec, 7))

	res, err := g.KNNSearch(vec, 1, 50)
	require.NoError(t, err)
	require.Len(t, res, 1)
	require.Equal(t, model.VectorID(7), res[0].ID)
	require.Zero(t, res[0].Distance)

	require.Equal(t, model.VectorID(7), g.EntryPoint())
}

func TestValidation(t *testing.T) {
	g := newTestGraph(t, 8, 4)

	err := g.Insert(make([]float32, 9), 0)
	var dm *ErrDimensionMismatch
	require.ErrorAs(t, err, &dm)
	require.Equal(t, 8, dm.Expected)

	err = g.Insert(make([]float32, 8), 4)
	var ce *ErrCapacityExceeded
	require.ErrorAs(t, err, &ce)
	require.Equal(t, model.VectorID(4), ce.ID)

	_, err = g.KNNSearch(make([]float32, 3), 1, 10)
	require.ErrorAs(t, err, &dm)
}

func TestSelfRecallBulk(t *testing.T) {
	const (
		dim = 16
		n   = 1000
	)
	g := newTestGraph(t, dim, n, func(o *Options) {
		o.M = 8
		o.EFConstruction = 100
	})

	vecs := testutil.NewRNG(7).UniformVectors(n, dim)
	for i, v := range vecs {
		require.NoError(t, g.InsertBulk(v, model.VectorID(i)))
	}
	require.Equal(t, int64(n), g.Count())

	hits := 0
	for i, v := range vecs {
		res, err := g.KNNSearch(v, 1, 50)
		require.NoError(t, err)
		require.NotEmpty(t, res)
		if res[0].ID == model.VectorID(i) {
			hits++
		}
	}
	require.GreaterOrEqual(t, hits, n*99/100, "self-recall below 99 percent")
}

func TestRecallBulk(t *testing.T) {
	const (
		dim     = 32
		n       = 2000
		queries = 100
		k       = 10
	)
	g := newTestGraph(t, dim, n, func(o *Options) {
		o.M = 16
		o.EFConstruction = 200
	})

	rng := testutil.NewRNG(11)
	corpus := rng.FlatUniformVectors(n, dim)
	for i := 0; i < n; i++ {
		require.NoError(t, g.InsertBulk(corpus[i*dim:(i+1)*dim], model.VectorID(i)))
	}

	var totalRecall float64
	query := make([]float32, dim)
	for q := 0; q < queries; q++ {
		rng.FillUniform(query)
		want := testutil.GroundTruth(corpus, dim, query, k)

		got, err := g.KNNSearch(query, k, 100)
		require.NoError(t, err)
		totalRecall += testutil.Recall(got, want)
	}

	avg := totalRecall / queries
	require.GreaterOrEqual(t, avg, 0.95, "recall@%d = %f", k, avg)
}

func TestResultsAscendingAndRepeatable(t *testing.T) {
	const (
		dim = 16
		n   = 500
	)
	g := newTestGraph(t, dim, n)

	vecs := testutil.NewRNG(3).UniformVectors(n, dim)
	for i, v := range vecs {
		require.NoError(t, g.InsertBulk(v, model.VectorID(i)))
	}

	query := vecs[123]
	first, err := g.KNNSearch(query, 10, 100)
	require.NoError(t, err)
	require.Len(t, first, 10)

	for i := 1; i < len(first); i++ {
		require.LessOrEqual(t, first[i-1].Distance, first[i].Distance)
	}

	seen := map[model.VectorID]bool{}
	for _, r := range first {
		require.False(t, seen[r.ID], "duplicate id %d", r.ID)
		seen[r.ID] = true
	}

	// The built graph is static, so repeated searches are repeatable.
	second, err := g.KNNSearch(query, 10, 100)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestBulkDegreeBounds(t *testing.T) {
	const (
		dim = 8
		n   = 400
		m   = 4
	)
	g := newTestGraph(t, dim, n, func(o *Options) {
		o.M = m
		o.EFConstruction = 64
	})

	vecs := testutil.NewRNG(5).UniformVectors(n, dim)
	for i, v := range vecs {
		require.NoError(t, g.InsertBulk(v, model.VectorID(i)))
	}

	for id := 0; id < n; id++ {
		for level := 0; level < MaxLevels; level++ {
			neighbors := g.Neighbors(model.VectorID(id), level)
			maxM := m
			if level == 0 {
				maxM = 2 * m
			}
			require.LessOrEqual(t, len(neighbors), maxM,
				"id %d level %d degree %d", id, level, len(neighbors))
		}
	}
}

func TestStreamingDegreeBounded(t *testing.T) {
	const (
		dim = 8
		n   = 400
		m   = 4
	)
	g := newTestGraph(t, dim, n, func(o *Options) {
		o.M = m
		o.EFConstruction = 64
	})

	vecs := testutil.NewRNG(9).UniformVectors(n, dim)
	for i, v := range vecs {
		require.NoError(t, g.Insert(v, model.VectorID(i)))
	}

	for id := 0; id < n; id++ {
		for level := 0; level < MaxLevels; level++ {
			neighbors := g.Neighbors(model.VectorID(id), level)
			maxM := m
			if level == 0 {
				maxM = 2 * m
			}
			require.LessOrEqual(t, len(neighbors), 2*maxM,
				"id %d level %d degree %d", id, level, len(neighbors))

			seen := map[model.VectorID]bool{}
			for _, nb := range neighbors {
				require.False(t, seen[nb], "duplicate edge %d->%d", id, nb)
				seen[nb] = true
			}
		}
	}
}

// Every inserted id must be reachable from the entry point through layer-0
// edges.
func TestLayer0Reachability(t *testing.T) {
	const (
		dim = 8
		n   = 300
	)
	g := newTestGraph(t, dim, n, func(o *Options) {
		o.M = 8
		o.EFConstruction = 100
	})

	vecs := testutil.NewRNG(13).UniformVectors(n, dim)
	for i, v := range vecs {
		require.NoError(t, g.Insert(v, model.VectorID(i)))
	}

	visited := make([]bool, n)
	queue := []model.VectorID{g.EntryPoint()}
	visited[g.EntryPoint()] = true
	reached := 1

	for len(queue) > 0 {
		curr := queue[0]
		queue = queue[1:]
		for _, nb := range g.Neighbors(curr, 0) {
			if !visited[nb] {
				visited[nb] = true
				reached++
				queue = append(queue, nb)
			}
		}
	}

	require.Equal(t, n, reached, "graph is not connected at layer 0")
}

// Concurrent streaming inserts and searches; run under the race detector.
func TestConcurrentInsertSearch(t *testing.T) {
	const (
		dim       = 16
		base      = 500
		extra     = 500
		searchers = 4
		inserters = 4
	)
	g := newTestGraph(t, dim, base+extra)

	rng := testutil.NewRNG(17)
	baseVecs := rng.UniformVectors(base, dim)
	for i, v := range baseVecs {
		require.NoError(t, g.InsertBulk(v, model.VectorID(i)))
	}

	extraVecs := rng.UniformVectors(extra, dim)

	var wg sync.WaitGroup
	wg.Add(searchers + inserters)

	for w := 0; w < inserters; w++ {
		go func(w int) {
			defer wg.Done()
			for i := w; i < extra; i += inserters {
				if err := g.Insert(extraVecs[i], model.VectorID(base+i)); err != nil {
					t.Errorf("insert: %v", err)
				}
			}
		}(w)
	}

	for w := 0; w < searchers; w++ {
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				res, err := g.KNNSearch(baseVecs[(w*31+i)%base], 10, 50)
				if err != nil {
					t.Errorf("search: %v", err)
					return
				}
				for _, r := range res {
					// Vectors live in [0,1)^dim; any distance outside
					// [0, dim] indicates a torn read.
					if r.Distance < 0 || r.Distance > dim {
						t.Errorf("distance out of range: %v", r)
					}
				}
			}
		}(w)
	}

	wg.Wait()
	require.Equal(t, int64(base+extra), g.Count())

	// At least 90% of the streamed ids must now come back as their own
	// nearest neighbor.
	found := 0
	for i := 0; i < extra; i++ {
		res, err := g.KNNSearch(extraVecs[i], 1, 100)
		require.NoError(t, err)
		if len(res) > 0 && res[0].ID == model.VectorID(base+i) {
			found++
		}
	}
	require.GreaterOrEqual(t, found, extra*9/10)
}

func TestRandomLevelDistribution(t *testing.T) {
	g := newTestGraph(t, 4, 4)

	counts := map[int]int{}
	const draws = 100000
	for i := 0; i < draws; i++ {
		l := g.randomLevel()
		require.GreaterOrEqual(t, l, 0)
		require.Less(t, l, MaxLevels)
		counts[l]++
	}

	// With levelMult = 1/ln(M), P(level=0) = 1 - 1/M.
	p0 := float64(counts[0]) / draws
	expected := 1 - 1/float64(g.m)
	require.InDelta(t, expected, p0, 0.02)
}
