//go:build amd64 && !noasm

package math32

import (
	"sync"

	"github.com/viterin/vek/vek32"
	"golang.org/x/sys/cpu"
)

func init() {
	if cpu.X86.HasAVX2 {
		squaredL2Impl = squaredL2Vek
		kernelName = "avx2"
	}
}

// diffPool holds scratch buffers for the sub-then-dot kernel so the hot path
// stays allocation-free in the steady state.
var diffPool = sync.Pool{
	New: func() any {
		s := make([]float32, 0, 2048)
		return &s
	},
}

func squaredL2Vek(a, b []float32) float32 {
	bufp := diffPool.Get().(*[]float32)
	buf := *bufp
	if cap(buf) < len(a) {
		buf = make([]float32, len(a))
	}
	buf = buf[:len(a)]

	copy(buf, a)
	vek32.Sub_Inplace(buf, b)
	d := vek32.Dot(buf, buf)

	*bufp = buf
	diffPool.Put(bufp)
	return d
}
