package searcher

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vexsearch/vex/model"
)

func TestMinHeapOrdering(t *testing.T) {
	pq := NewPriorityQueue(false)
	for _, d := range []float32{5, 1, 4, 2, 3} {
		pq.Push(Candidate{ID: model.VectorID(d), Distance: d})
	}

	var got []float32
	for pq.Len() > 0 {
		c, ok := pq.Pop()
		require.True(t, ok)
		got = append(got, c.Distance)
	}
	require.Equal(t, []float32{1, 2, 3, 4, 5}, got)
}

func TestMaxHeapOrdering(t *testing.T) {
	pq := NewPriorityQueue(true)
	for _, d := range []float32{5, 1, 4, 2, 3} {
		pq.Push(Candidate{ID: model.VectorID(d), Distance: d})
	}

	var got []float32
	for pq.Len() > 0 {
		c, _ := pq.Pop()
		got = append(got, c.Distance)
	}
	require.Equal(t, []float32{5, 4, 3, 2, 1}, got)
}

func TestPushBoundedKeepsNearest(t *testing.T) {
	const k = 10
	pq := NewPriorityQueue(true)
	rng := rand.New(rand.NewSource(3))

	all := make([]float32, 100)
	for i := range all {
		all[i] = rng.Float32()
		pq.PushBounded(Candidate{ID: model.VectorID(i), Distance: all[i]}, k)
	}
	require.Equal(t, k, pq.Len())

	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })

	var got []float32
	for pq.Len() > 0 {
		c, _ := pq.Pop()
		got = append(got, c.Distance)
	}
	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	require.Equal(t, all[:k], got)
}

func TestTopAndMin(t *testing.T) {
	pq := NewPriorityQueue(true)
	_, ok := pq.Top()
	require.False(t, ok)

	pq.Push(Candidate{ID: 1, Distance: 3})
	pq.Push(Candidate{ID: 2, Distance: 1})
	pq.Push(Candidate{ID: 3, Distance: 2})

	top, _ := pq.Top()
	require.Equal(t, float32(3), top.Distance)

	minItem, _ := pq.Min()
	require.Equal(t, float32(1), minItem.Distance)
	require.Equal(t, model.VectorID(2), minItem.ID)
}

func TestReset(t *testing.T) {
	pq := NewPriorityQueue(false)
	pq.Push(Candidate{ID: 1, Distance: 1})
	pq.Reset()
	require.Zero(t, pq.Len())
	_, ok := pq.Pop()
	require.False(t, ok)
}
