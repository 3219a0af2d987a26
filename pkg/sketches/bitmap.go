package sketches

import "math/bits"

// Bitmap is a fixed-capacity bit vector. Its size is set at construction and
// never changes.
type Bitmap struct {
	bytes []byte
}

// NewBitmap returns a zeroed bitmap of n bytes.
func NewBitmap(n int) (*Bitmap, error) {
	if n <= 0 {
		return nil, configFault("NewBitmap", "byte count must be positive, got %d", n)
	}
	return &Bitmap{bytes: make([]byte, n)}, nil
}

// Bits returns the capacity in bits.
func (b *Bitmap) Bits() int {
	return len(b.bytes) * 8
}

// Bytes exposes the backing bytes, least significant first. Callers must not
// modify the returned slice.
func (b *Bitmap) Bytes() []byte {
	return b.bytes
}

// Set sets bit i. It panics with a range fault if i is outside the bitmap.
func (b *Bitmap) Set(i int) {
	if i < 0 || i >= b.Bits() {
		panic(rangeFault("Bitmap.Set", i, b.Bits()))
	}
	b.bytes[i/8] |= 1 << (i % 8)
}

// SetOrMax sets bit i, or the highest bit of the bitmap when i is past the
// end. The highest bit doubles as the saturation sentinel.
func (b *Bitmap) SetOrMax(i int) {
	if i < 0 || i >= b.Bits() {
		b.bytes[len(b.bytes)-1] |= 1 << 7
		return
	}
	b.bytes[i/8] |= 1 << (i % 8)
}

// Get reports whether bit i is set. It panics with a range fault if i is
// outside the bitmap.
func (b *Bitmap) Get(i int) bool {
	if i < 0 || i >= b.Bits() {
		panic(rangeFault("Bitmap.Get", i, b.Bits()))
	}
	return b.bytes[i/8]>>(i%8)&1 == 1
}

// OnesCount returns the number of set bits.
func (b *Bitmap) OnesCount() int {
	n := 0
	for _, x := range b.bytes {
		n += bits.OnesCount8(x)
	}
	return n
}
