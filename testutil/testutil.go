// Package testutil provides seeded random vector generation and recall
// helpers shared by tests and benchmarks.
package testutil

import (
	"math/rand"
	"sort"
	"sync"

	"github.com/vexsearch/vex/internal/math32"
	"github.com/vexsearch/vex/model"
)

// RNG encapsulates a seeded random number generator. It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Float32 returns, as a float32, a pseudo-random number in [0.0,1.0).
func (r *RNG) Float32() float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float32()
}

// FillUniform fills dst with random values in range [0, 1).
// Locks only once per call (preferred over calling Float32 in a loop).
func (r *RNG) FillUniform(dst []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range dst {
		dst[i] = r.rand.Float32()
	}
}

// FillUniformRange fills dst with random values in range [minVal, maxVal).
func (r *RNG) FillUniformRange(dst []float32, minVal, maxVal float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	span := maxVal - minVal
	for i := range dst {
		dst[i] = minVal + r.rand.Float32()*span
	}
}

// UniformVectors generates random vectors with values in range [0, 1).
// Uses a single backing array for efficiency.
func (r *RNG) UniformVectors(num, dimensions int) [][]float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	data := make([]float32, num*dimensions)
	vectors := make([][]float32, num)

	for i := range num {
		vec := data[i*dimensions : (i+1)*dimensions]
		for j := range vec {
			vec[j] = r.rand.Float32()
		}
		vectors[i] = vec
	}

	return vectors
}

// FlatUniformVectors generates num×dimensions floats in [0, 1) as one
// contiguous block, the shape a dataset loader produces.
func (r *RNG) FlatUniformVectors(num, dimensions int) []float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	data := make([]float32, num*dimensions)
	for i := range data {
		data[i] = r.rand.Float32()
	}
	return data
}

// GroundTruth computes the exact k nearest ids of query within the flattened
// corpus by brute force.
func GroundTruth(corpus []float32, dim int, query []float32, k int) []model.VectorID {
	n := len(corpus) / dim

	type pair struct {
		id   model.VectorID
		dist float32
	}
	pairs := make([]pair, n)
	for i := 0; i < n; i++ {
		pairs[i] = pair{
			id:   model.VectorID(i),
			dist: math32.SquaredL2Scalar(query, corpus[i*dim:(i+1)*dim]),
		}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].dist < pairs[j].dist })

	if k > n {
		k = n
	}
	out := make([]model.VectorID, k)
	for i := 0; i < k; i++ {
		out[i] = pairs[i].id
	}
	return out
}

// Recall returns |got ∩ want| / |want|.
func Recall(got []model.SearchResult, want []model.VectorID) float64 {
	if len(want) == 0 {
		return 1
	}
	hits := 0
	for _, w := range want {
		for _, g := range got {
			if g.ID == w {
				hits++
				break
			}
		}
	}
	return float64(hits) / float64(len(want))
}
