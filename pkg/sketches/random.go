package sketches

import (
	"math"
	"sync"
)

const (
	// DefaultSeed seeds the generator handed to sketches.
	DefaultSeed = 13.37
	// DefaultCompactorSeed seeds the stepping generator handed to compactors.
	DefaultCompactorSeed = 1.0

	seedModulus = 1 << 24
)

// Rand yields pseudo-random fractions in [0, 1).
type Rand interface {
	Float64() float64
}

// RandomSource is the deterministic generator every probabilistic sketch draws
// from. It is not cryptographic and cannot be reseeded; the same seed always
// produces the same sequence. A single instance may be shared between sketches
// and goroutines.
type RandomSource struct {
	mu      sync.Mutex
	state   float64
	advance func(float64) float64
	angle   func(float64) float64
}

// NewRandomSource returns the multiply-add-then-sine generator: every draw
// advances the state to state*9473 + 13 and takes the sine of it.
func NewRandomSource(seed float64) *RandomSource {
	return &RandomSource{
		state:   seed,
		advance: func(s float64) float64 { return math.Mod(s*9473+13, seedModulus) },
		angle:   func(s float64) float64 { return s },
	}
}

// NewSteppingSource returns the generator the compactors were tuned with:
// every draw advances the state by one and takes sin(3996.3*state + 42.7).
func NewSteppingSource(seed float64) *RandomSource {
	return &RandomSource{
		state:   seed,
		advance: func(s float64) float64 { return math.Mod(s+1, seedModulus) },
		angle:   func(s float64) float64 { return 3996.3*s + 42.7 },
	}
}

// Float64 advances the state and returns the next fraction in [0, 1).
func (r *RandomSource) Float64() float64 {
	r.mu.Lock()
	r.state = r.advance(r.state)
	x := math.Sin(r.angle(r.state)) * 43758.5453
	r.mu.Unlock()

	f := x - math.Floor(x)
	if f >= 1 {
		return 0
	}
	return f
}

// Uint64 draws a 53-bit value, used to seed hash functions.
func (r *RandomSource) Uint64() uint64 {
	return uint64(r.Float64() * (1 << 53))
}
