package sketches

import (
	"math"
	"math/bits"
)

// phi is the Flajolet-Martin bias correction.
const phi = 0.77351

// FlajoletMartin estimates the number of distinct elements in a stream. Bit z
// of the bitmap records that some element hashed to a value with z trailing
// zero bits; re-observing an element never changes the estimate.
type FlajoletMartin[T any] struct {
	hash   hasher
	bitmap *Bitmap
}

// NewFlajoletMartin returns an empty sketch over a bitmap of the given byte size.
func NewFlajoletMartin[T any](bytes int, rng *RandomSource) (*FlajoletMartin[T], error) {
	if rng == nil {
		return nil, configFault("NewFlajoletMartin", "random source required")
	}
	bitmap, err := NewBitmap(bytes)
	if err != nil {
		return nil, err
	}
	return &FlajoletMartin[T]{hash: newHashers(1, rng)[0], bitmap: bitmap}, nil
}

func (fm *FlajoletMartin[T]) Process(v T) {
	fm.bitmap.SetOrMax(bits.TrailingZeros64(fm.hash.sum(v)))
}

// Query returns round(2^z / phi) - 1 where z is the index of the lowest unset
// bit. A fully saturated bitmap reports z as its bit capacity.
func (fm *FlajoletMartin[T]) Query(None) uint64 {
	for i, b := range fm.bitmap.Bytes() {
		if b == math.MaxUint8 {
			continue
		}
		return fmEstimate(i*8 + bits.TrailingZeros8(^b))
	}
	return fmEstimate(fm.bitmap.Bits())
}

// LowestUnset returns z, the position the estimate is derived from.
func (fm *FlajoletMartin[T]) LowestUnset() int {
	for i, b := range fm.bitmap.Bytes() {
		if b != math.MaxUint8 {
			return i*8 + bits.TrailingZeros8(^b)
		}
	}
	return fm.bitmap.Bits()
}

func fmEstimate(z int) uint64 {
	approx := math.Round(math.Exp2(float64(z))/phi) - 1
	if approx >= math.MaxUint64 {
		return math.MaxUint64
	}
	return uint64(approx)
}
