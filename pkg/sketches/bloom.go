package sketches

// BloomFilter answers set membership with no false negatives. The false
// positive rate grows with the fraction of set bits and shrinks with more
// hash functions and a larger bitmap.
type BloomFilter[T any] struct {
	hashers []hasher
	bitmap  *Bitmap
}

// NewBloomFilter returns an empty filter over a bitmap of the given byte size
// probed by the given number of hash functions.
func NewBloomFilter[T any](bytes, hashes int, rng *RandomSource) (*BloomFilter[T], error) {
	if hashes <= 0 {
		return nil, configFault("NewBloomFilter", "hash function count must be positive, got %d", hashes)
	}
	if rng == nil {
		return nil, configFault("NewBloomFilter", "random source required")
	}
	bitmap, err := NewBitmap(bytes)
	if err != nil {
		return nil, err
	}
	return &BloomFilter[T]{hashers: newHashers(hashes, rng), bitmap: bitmap}, nil
}

func (f *BloomFilter[T]) Process(v T) {
	for _, h := range f.hashers {
		f.bitmap.Set(h.index(v, f.bitmap.Bits()))
	}
}

// Query reports whether v may have been observed.
func (f *BloomFilter[T]) Query(v T) bool {
	for _, h := range f.hashers {
		if !f.bitmap.Get(h.index(v, f.bitmap.Bits())) {
			return false
		}
	}
	return true
}

// Bits returns the bitmap capacity.
func (f *BloomFilter[T]) Bits() int {
	return f.bitmap.Bits()
}

// Hashes returns the number of hash functions.
func (f *BloomFilter[T]) Hashes() int {
	return len(f.hashers)
}

// LoadFactor returns the fraction of set bits.
func (f *BloomFilter[T]) LoadFactor() float64 {
	return float64(f.bitmap.OnesCount()) / float64(f.bitmap.Bits())
}
