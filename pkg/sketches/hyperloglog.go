package sketches

import (
	"math"
	"math/bits"
)

// HyperLogLog implements the HyperLogLog algorithm for cardinality estimation
type HyperLogLog[T any] struct {
	hash      hasher
	registers []uint8
	b         uint8   // number of bits for register selection (m = 2^b)
	m         uint32  // number of registers
	alpha     float64 // bias correction constant
}

// NewHyperLogLog creates a new HyperLogLog with 2^b registers
// Standard values: b=10 (1024 registers), b=12 (4096 registers)
func NewHyperLogLog[T any](b uint8, rng *RandomSource) (*HyperLogLog[T], error) {
	if b < 4 || b > 16 {
		return nil, configFault("NewHyperLogLog", "precision must be within [4, 16], got %d", b)
	}
	if rng == nil {
		return nil, configFault("NewHyperLogLog", "random source required")
	}

	m := uint32(1) << b

	var alpha float64
	switch {
	case m >= 128:
		alpha = 0.7213 / (1 + 1.079/float64(m))
	case m >= 64:
		alpha = 0.709
	case m >= 32:
		alpha = 0.697
	default:
		alpha = 0.673
	}

	return &HyperLogLog[T]{
		hash:      newHashers(1, rng)[0],
		registers: make([]uint8, m),
		b:         b,
		m:         m,
		alpha:     alpha,
	}, nil
}

func (hll *HyperLogLog[T]) Process(v T) {
	hash := hll.hash.sum(v)

	// Use first b bits for register selection
	j := hash & uint64(hll.m-1)

	// Rank of the remaining bits: position of the lowest set bit, 1-based
	w := hash >> hll.b
	rank := uint8(bits.TrailingZeros64(w)) + 1
	if limit := 64 - hll.b + 1; rank > limit {
		rank = limit
	}

	if rank > hll.registers[j] {
		hll.registers[j] = rank
	}
}

// Query estimates the cardinality
func (hll *HyperLogLog[T]) Query(None) uint64 {
	m := float64(hll.m)
	rawEstimate := hll.alpha * m * m / hll.harmonicSum()

	// Small range correction
	if rawEstimate <= 2.5*m {
		if zeros := hll.countZeros(); zeros != 0 {
			return uint64(math.Round(m * math.Log(m/float64(zeros))))
		}
	}

	return uint64(math.Round(rawEstimate))
}

// StandardError returns the theoretical relative standard error
func (hll *HyperLogLog[T]) StandardError() float64 {
	return 1.04 / math.Sqrt(float64(hll.m))
}

// Registers returns the number of registers.
func (hll *HyperLogLog[T]) Registers() int {
	return int(hll.m)
}

func (hll *HyperLogLog[T]) harmonicSum() float64 {
	sum := 0.0
	for _, reg := range hll.registers {
		sum += math.Exp2(-float64(reg))
	}
	return sum
}

func (hll *HyperLogLog[T]) countZeros() int {
	count := 0
	for _, reg := range hll.registers {
		if reg == 0 {
			count++
		}
	}
	return count
}
