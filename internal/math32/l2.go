// Package math32 provides the squared-L2 kernels shared by the index and the
// write path. A function-variable dispatch selects the fastest available
// implementation at init; the scalar reference stays exported so tests can
// pin the accelerated variants against it.
package math32

var squaredL2Impl = SquaredL2Blocked

// SquaredL2 calculates the squared L2 (Euclidean) distance between two
// vectors using the fastest implementation available on this CPU.
//
// SAFETY: This function assumes len(a) == len(b).
// It does NOT perform bounds checks for performance reasons.
// Callers MUST ensure lengths match to avoid over-reads.
func SquaredL2(a, b []float32) float32 {
	return squaredL2Impl(a, b)
}

// SquaredL2Scalar is the reference implementation. All accelerated variants
// must agree with it up to floating-point reassociation.
func SquaredL2Scalar(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// SquaredL2Blocked accumulates eight independent lanes per iteration and
// folds the remainder with the scalar path. It is the portable fallback for
// platforms without a vectorized kernel.
func SquaredL2Blocked(a, b []float32) float32 {
	n := len(a)
	var l0, l1, l2, l3, l4, l5, l6, l7 float32

	i := 0
	for ; i+8 <= n; i += 8 {
		d0 := a[i] - b[i]
		d1 := a[i+1] - b[i+1]
		d2 := a[i+2] - b[i+2]
		d3 := a[i+3] - b[i+3]
		d4 := a[i+4] - b[i+4]
		d5 := a[i+5] - b[i+5]
		d6 := a[i+6] - b[i+6]
		d7 := a[i+7] - b[i+7]
		l0 += d0 * d0
		l1 += d1 * d1
		l2 += d2 * d2
		l3 += d3 * d3
		l4 += d4 * d4
		l5 += d5 * d5
		l6 += d6 * d6
		l7 += d7 * d7
	}

	sum := ((l0 + l4) + (l1 + l5)) + ((l2 + l6) + (l3 + l7))
	for ; i < n; i++ {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

var kernelName = "blocked8"

// Kernel reports which squared-L2 implementation is active.
func Kernel() string {
	return kernelName
}
