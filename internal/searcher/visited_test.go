package searcher

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVisitedBasics(t *testing.T) {
	v := NewVisitedSet(16)

	require.False(t, v.Visited(3))
	v.Visit(3)
	require.True(t, v.Visited(3))
	require.False(t, v.Visited(4))
}

func TestVisitedResetIsCheap(t *testing.T) {
	v := NewVisitedSet(16)
	v.Visit(1)
	v.Visit(2)

	v.Reset()
	require.False(t, v.Visited(1))
	require.False(t, v.Visited(2))

	v.Visit(1)
	require.True(t, v.Visited(1))
}

func TestVisitedGrows(t *testing.T) {
	v := NewVisitedSet(4)
	v.Visit(1000)
	require.True(t, v.Visited(1000))
	require.False(t, v.Visited(999))
}

// The version counter wrapping to zero must zero-fill the array and restart
// at version 1, so stale stamps can never alias the fresh version.
func TestVisitedVersionWraparound(t *testing.T) {
	v := NewVisitedSet(8)
	v.Visit(5)

	v.version = math.MaxUint32
	v.Visit(6) // stamped MaxUint32

	v.Reset() // wraps: zero-fill, version = 1
	require.Equal(t, uint32(1), v.version)
	require.False(t, v.Visited(5))
	require.False(t, v.Visited(6))

	v.Visit(7)
	require.True(t, v.Visited(7))
}
