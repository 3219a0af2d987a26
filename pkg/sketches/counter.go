package sketches

import "math"

// Counter is a processor that only counts observations. Quantile owns one.
type Counter = StreamProcessor[None, None, uint64]

// ExactCounter counts every observation.
type ExactCounter[T any] struct {
	count uint64
}

// NewExactCounter returns an empty exact counter.
func NewExactCounter[T any]() *ExactCounter[T] {
	return &ExactCounter[T]{}
}

func (c *ExactCounter[T]) Process(T) {
	c.count++
}

func (c *ExactCounter[T]) Query(None) uint64 {
	return c.count
}

// MorrisCounter approximates the length of a very long stream with a counter
// that grows logarithmically. A larger alpha keeps the counter smaller at the
// cost of accuracy.
type MorrisCounter[T any] struct {
	alpha float64
	count int
	rng   Rand
}

// NewMorrisCounter returns an empty Morris counter with base 1+alpha.
func NewMorrisCounter[T any](alpha float64, rng Rand) (*MorrisCounter[T], error) {
	if !(alpha > 0) || math.IsInf(alpha, 0) {
		return nil, configFault("NewMorrisCounter", "alpha must be positive and finite, got %v", alpha)
	}
	if rng == nil {
		return nil, configFault("NewMorrisCounter", "random source required")
	}
	return &MorrisCounter[T]{alpha: alpha, rng: rng}, nil
}

// Process bumps the internal counter c with probability (1+alpha)^-c.
func (c *MorrisCounter[T]) Process(T) {
	if c.rng.Float64() < math.Pow(1+c.alpha, -float64(c.count)) {
		c.count++
	}
}

// Query returns ((1+alpha)^c - 1) / alpha, rounded.
func (c *MorrisCounter[T]) Query(None) uint64 {
	return uint64(math.Round((math.Pow(1+c.alpha, float64(c.count)) - 1) / c.alpha))
}

// Exponent returns the raw counter value c.
func (c *MorrisCounter[T]) Exponent() int {
	return c.count
}

// Alpha returns the configured alpha.
func (c *MorrisCounter[T]) Alpha() float64 {
	return c.alpha
}
