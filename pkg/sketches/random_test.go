package sketches

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRandomSource_Range(t *testing.T) {
	for _, rng := range []*RandomSource{NewRandomSource(DefaultSeed), NewSteppingSource(DefaultCompactorSeed)} {
		sum := 0.0
		for i := 0; i < 100000; i++ {
			x := rng.Float64()
			assert.GreaterOrEqual(t, x, 0.0)
			assert.Less(t, x, 1.0)
			sum += x
		}
		assert.InDelta(t, 0.5, sum/100000, 0.01)
	}
}

func TestRandomSource_Deterministic(t *testing.T) {
	a := NewRandomSource(DefaultSeed)
	b := NewRandomSource(DefaultSeed)
	for i := 0; i < 1000; i++ {
		assert.Equal(t, a.Float64(), b.Float64())
	}

	c := NewRandomSource(42)
	d := NewRandomSource(DefaultSeed)
	same := 0
	for i := 0; i < 100; i++ {
		if c.Float64() == d.Float64() {
			same++
		}
	}
	assert.Less(t, same, 5)
}

func TestRandomSource_Buckets(t *testing.T) {
	rng := NewRandomSource(DefaultSeed)
	var buckets [10]int
	for i := 0; i < 100000; i++ {
		buckets[int(rng.Float64()*10)]++
	}
	for i, n := range buckets {
		assert.InDelta(t, 10000, n, 500, "bucket %d", i)
	}
}

func TestRandomSource_DistinctSeeds(t *testing.T) {
	rng := NewRandomSource(DefaultSeed)
	seen := make(map[uint64]bool)
	for i := 0; i < 10000; i++ {
		seen[rng.Uint64()] = true
	}
	assert.Len(t, seen, 10000)
}
