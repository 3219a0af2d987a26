package sketches

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// requireFault runs fn and checks that it panics with a Fault of the given kind.
func requireFault(t *testing.T, kind FaultKind, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected a %s fault", kind)
		err, ok := r.(error)
		require.True(t, ok, "panic value %v is not an error", r)
		assert.True(t, IsFault(err, kind), "got %v", err)
	}()
	fn()
}

// permutation returns 0..n-1 in a fixed scrambled order. n must be prime.
func permutation(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i * 7919 % n
	}
	return out
}
