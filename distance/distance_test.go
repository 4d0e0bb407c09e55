package distance

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSquaredL2(t *testing.T) {
	require.InDelta(t, 8.0, SquaredL2([]float32{1, 2}, []float32{3, 4}), 1e-6)
	require.InDelta(t, 8.0, SquaredL2Scalar([]float32{1, 2}, []float32{3, 4}), 1e-6)
}

func TestKernelAgreement(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	a := make([]float32, 128)
	b := make([]float32, 128)
	for i := range a {
		a[i] = rng.Float32()
		b[i] = rng.Float32()
	}

	want := SquaredL2Scalar(a, b)
	require.InDelta(t, want, SquaredL2(a, b), 1e-3*float64(want))
	require.NotEmpty(t, Kernel())
}
