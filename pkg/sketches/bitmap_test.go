package sketches

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBitmap(t *testing.T) {
	b, err := NewBitmap(4)
	require.NoError(t, err)
	assert.Equal(t, 32, b.Bits())
	for i := 0; i < b.Bits(); i++ {
		assert.False(t, b.Get(i))
	}

	_, err = NewBitmap(0)
	assert.True(t, IsFault(err, FaultConfig))
}

func TestBitmap_SetGet(t *testing.T) {
	b, err := NewBitmap(2)
	require.NoError(t, err)

	b.Set(0)
	b.Set(9)
	b.Set(15)
	assert.True(t, b.Get(0))
	assert.True(t, b.Get(9))
	assert.True(t, b.Get(15))
	assert.False(t, b.Get(8))
	assert.Equal(t, []byte{0x01, 0x82}, b.Bytes())
	assert.Equal(t, 3, b.OnesCount())
}

func TestBitmap_RangeFaults(t *testing.T) {
	b, err := NewBitmap(1)
	require.NoError(t, err)

	requireFault(t, FaultRange, func() { b.Set(8) })
	requireFault(t, FaultRange, func() { b.Get(8) })
	requireFault(t, FaultRange, func() { b.Get(-1) })
}

func TestBitmap_SetOrMax(t *testing.T) {
	b, err := NewBitmap(2)
	require.NoError(t, err)

	b.SetOrMax(3)
	assert.True(t, b.Get(3))
	assert.False(t, b.Get(15))

	b.SetOrMax(16)
	assert.True(t, b.Get(15))
	b.SetOrMax(1000)
	assert.Equal(t, 2, b.OnesCount())
}
