package sketches

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCompactor_Config(t *testing.T) {
	_, err := NewCompactor[int](0, NewSteppingSource(DefaultCompactorSeed))
	assert.True(t, IsFault(err, FaultConfig))

	_, err = NewCompactor[int](10, nil)
	assert.True(t, IsFault(err, FaultConfig))
}

func TestCompactor_Add(t *testing.T) {
	c, err := NewCompactor[int](3, NewSteppingSource(DefaultCompactorSeed))
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())
	assert.False(t, c.Add(1))
	assert.False(t, c.Add(2))
	assert.True(t, c.Add(3))
	assert.Equal(t, 3, c.Len())
	assert.Equal(t, 3, c.Cap())
}

func TestCompactor_AdditiveCompact(t *testing.T) {
	c, err := NewCompactor[int](100, NewSteppingSource(DefaultCompactorSeed))
	require.NoError(t, err)

	var out []int
	for i := 4999; i >= 0; i-- {
		if c.Add(i) {
			batch := slices.Collect(c.AdditiveCompact())
			assert.Len(t, batch, 50)
			assert.IsIncreasing(t, batch)
			out = append(out, batch...)
		}
	}
	assert.Len(t, out, 2500)
	assert.True(t, c.IsEmpty())

	slices.Sort(out)
	assert.Len(t, slices.Compact(out), 2500)
}

func TestCompactor_AdditiveCompactOddLength(t *testing.T) {
	c, err := NewCompactor[int](5, NewSteppingSource(DefaultCompactorSeed))
	require.NoError(t, err)
	requireFault(t, FaultConfig, func() { c.AdditiveCompact() })
}

func TestCompactor_RelativeCompact(t *testing.T) {
	c, err := NewCompactor[int](7, NewSteppingSource(DefaultCompactorSeed))
	require.NoError(t, err)
	for i := 0; i < 7; i++ {
		c.Add(i)
	}

	out := c.RelativeCompact(nil)
	assert.True(t, c.IsEmpty())
	assert.LessOrEqual(t, len(out), 3)
	// one survivor at most from each of [0], [1 2] and [3 4 5 6]
	var levels []int
	for _, v := range out {
		switch {
		case v == 0:
			levels = append(levels, 0)
		case v <= 2:
			levels = append(levels, 1)
		default:
			levels = append(levels, 2)
		}
	}
	assert.IsIncreasing(t, levels)
}

func TestCompactor_RelativeCompactPowerOfTwo(t *testing.T) {
	c, err := NewCompactor[int](8, NewSteppingSource(DefaultCompactorSeed))
	require.NoError(t, err)
	requireFault(t, FaultConfig, func() { c.RelativeCompact(nil) })
}

func TestCompactor_LinearRelativeCompactFull(t *testing.T) {
	c, err := NewCompactor[int](144, NewSteppingSource(DefaultCompactorSeed))
	require.NoError(t, err)
	for i := 143; i >= 0; i-- {
		c.Add(i)
	}

	out := c.LinearRelativeCompact(nil)
	assert.True(t, c.IsEmpty())
	// chunk n of 12 loses n elements
	assert.Len(t, out, 144-66)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}, out[:12])
	assert.IsIncreasing(t, out)
	assert.Len(t, out[12:], 66)
}

func TestCompactor_LinearRelativeCompactWeighted(t *testing.T) {
	c, err := NewCompactor[int](144, NewSteppingSource(DefaultCompactorSeed))
	require.NoError(t, err)
	for i := 143; i >= 0; i-- {
		c.AddWeighted(i, 2)
	}

	out := c.LinearRelativeCompactWeighted(nil)
	assert.True(t, c.IsEmpty())
	require.Len(t, out, 144-66)
	mass := 0.0
	for i, o := range out {
		if i < 12 {
			assert.Equal(t, Weighted[int]{Value: i, Weight: 2}, o)
		}
		mass += o.Weight
	}
	// chunk 1 keeps 11 of 12
	assert.InDelta(t, 2*12.0/11, out[12].Weight, 1e-9)
	assert.InDelta(t, 288, mass, 1e-9)
}

func TestCompactor_LinearRelativeCompactTrailingChunk(t *testing.T) {
	c, err := NewCompactor[int](150, NewSteppingSource(DefaultCompactorSeed))
	require.NoError(t, err)
	for i := 0; i < 150; i++ {
		c.Add(i)
	}
	out := c.LinearRelativeCompact(nil)
	assert.True(t, c.IsEmpty())
	assert.Len(t, out, 78)
	for _, v := range out {
		assert.Less(t, v, 144)
	}
}

func TestCompactor_LinearRelativeCompactPartial(t *testing.T) {
	c, err := NewCompactor[int](144, NewSteppingSource(DefaultCompactorSeed))
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		c.Add(i)
	}
	out := c.LinearRelativeCompact(nil)
	assert.True(t, c.IsEmpty())
	// four full chunks lose 0+1+2+3, the last two elements may lose some
	assert.GreaterOrEqual(t, len(out), 42)
	assert.LessOrEqual(t, len(out), 44)
}

func TestCompactor_LinearRelativeCompactOverfull(t *testing.T) {
	c, err := NewCompactor[int](4, NewSteppingSource(DefaultCompactorSeed))
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		c.Add(i)
	}
	requireFault(t, FaultInternal, func() { c.LinearRelativeCompact(nil) })
}

func TestRank(t *testing.T) {
	sorted := []int{1, 3, 3, 5, 9}
	assert.Equal(t, 0, Rank(sorted, 0))
	assert.Equal(t, 0, Rank(sorted, 1))
	assert.Equal(t, 1, Rank(sorted, 3))
	assert.Equal(t, 3, Rank(sorted, 4))
	assert.Equal(t, 5, Rank(sorted, 10))
	assert.Equal(t, 0, Rank([]int(nil), 10))
}
