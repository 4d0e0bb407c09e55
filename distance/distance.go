// Package distance provides the public API for vector distance calculations.
// The engine is monomorphic over float32 and squared L2; accelerated kernels
// live in internal/math32 and are selected at init.
package distance

import "github.com/vexsearch/vex/internal/math32"

// Func is a function type for distance calculation.
type Func func(a, b []float32) float32

// SquaredL2 calculates the squared L2 (Euclidean) distance between two
// vectors, using the fastest kernel available on this CPU.
// Assumes vectors are the same length (caller's responsibility).
func SquaredL2(a, b []float32) float32 {
	return math32.SquaredL2(a, b)
}

// SquaredL2Scalar is the scalar reference kernel. Accelerated variants agree
// with it up to floating-point reassociation.
func SquaredL2Scalar(a, b []float32) float32 {
	return math32.SquaredL2Scalar(a, b)
}

// Kernel reports the name of the active squared-L2 implementation.
func Kernel() string {
	return math32.Kernel()
}
