package vex_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	vex "github.com/vexsearch/vex"
	"github.com/vexsearch/vex/model"
	"github.com/vexsearch/vex/testutil"
)

func newDB(t *testing.T, dim, maxElements int, optFns ...vex.Option) *vex.Vex {
	t.Helper()
	db, err := vex.New(dim, maxElements, append([]vex.Option{vex.WithRandomSeed(99)}, optFns...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSearchEmptyIndex(t *testing.T) {
	db := newDB(t, 128, 100)

	res, err := db.Search(context.Background(), make([]float32, 128), 10, 50)
	require.NoError(t, err)
	require.Empty(t, res)
}

func TestInsertThenExactSearch(t *testing.T) {
	db := newDB(t, 128, 100)
	ctx := context.Background()

	zero := make([]float32, 128)
	require.NoError(t, db.Insert(ctx, 7, zero))

	res, err := db.Search(ctx, zero, 1, 50)
	require.NoError(t, err)
	require.Len(t, res, 1)
	require.Equal(t, model.VectorID(7), res[0].ID)
	require.Zero(t, res[0].Distance)
}

func TestInvalidArguments(t *testing.T) {
	db := newDB(t, 16, 100)
	ctx := context.Background()

	_, err := db.Search(ctx, make([]float32, 16), 0, 50)
	require.ErrorIs(t, err, vex.ErrInvalidK)

	var dm *vex.ErrDimensionMismatch
	_, err = db.Search(ctx, make([]float32, 15), 1, 50)
	require.ErrorAs(t, err, &dm)
	require.Equal(t, 16, dm.Expected)
	require.Equal(t, 15, dm.Actual)

	require.ErrorAs(t, db.Insert(ctx, 0, make([]float32, 17)), &dm)

	var ce *vex.ErrCapacityExceeded
	require.ErrorAs(t, db.Insert(ctx, 100, make([]float32, 16)), &ce)
}

// Scenario: 1000 streamed unit-range vectors, then a self-query for each; at
// least 99% must come back at position 0.
func TestStreamingSelfRecall(t *testing.T) {
	const (
		dim = 32
		n   = 1000
	)
	db := newDB(t, dim, n, vex.WithBufferCapacity(128))
	ctx := context.Background()

	vecs := testutil.NewRNG(31).UniformVectors(n, dim)
	for i, v := range vecs {
		require.NoError(t, db.Insert(ctx, model.VectorID(i), v))
	}

	require.Eventually(t, db.Quiescent, 10*time.Second, 10*time.Millisecond)

	hits := 0
	for i, v := range vecs {
		res, err := db.Search(ctx, v, 1, 50)
		require.NoError(t, err)
		require.NotEmpty(t, res)
		if res[0].ID == model.VectorID(i) {
			hits++
		}
	}
	require.GreaterOrEqual(t, hits, n*99/100)
}

// Bulk-load recall against exact ground truth, the CI-scale version of the
// SIFT workload: k=10, efSearch=100, average recall at least 0.95.
func TestBulkLoadRecall(t *testing.T) {
	const (
		dim     = 32
		n       = 2000
		queries = 50
		k       = 10
	)
	db := newDB(t, dim, n, vex.WithM(16), vex.WithEFConstruction(200))
	ctx := context.Background()

	rng := testutil.NewRNG(37)
	corpus := rng.FlatUniformVectors(n, dim)
	require.NoError(t, db.BulkLoad(ctx, corpus, 0))

	var total float64
	query := make([]float32, dim)
	for q := 0; q < queries; q++ {
		rng.FillUniform(query)
		want := testutil.GroundTruth(corpus, dim, query, k)

		got, err := db.Search(ctx, query, k, 100)
		require.NoError(t, err)
		total += testutil.Recall(got, want)
	}

	require.GreaterOrEqual(t, total/queries, 0.95)
}

func TestContextCancellation(t *testing.T) {
	db := newDB(t, 8, 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, db.Insert(ctx, 0, make([]float32, 8)), context.Canceled)
	_, err := db.Search(ctx, make([]float32, 8), 1, 10)
	require.ErrorIs(t, err, context.Canceled)
}

func TestClose(t *testing.T) {
	db := newDB(t, 8, 10)
	require.NoError(t, db.Close())
	require.NoError(t, db.Close())

	require.ErrorIs(t, db.Insert(context.Background(), 0, make([]float32, 8)), vex.ErrClosed)
	_, err := db.Search(context.Background(), make([]float32, 8), 1, 10)
	require.ErrorIs(t, err, vex.ErrClosed)
}
