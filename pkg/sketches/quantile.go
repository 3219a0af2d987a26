package sketches

import (
	"cmp"
	"slices"
)

// Quantile estimates the rank of a value from a sorted, duplicate-free sample
// of the stream plus an exact (or approximate) running count.
//
// An element enters the sample unless a draw exceeds expSize/sampleSize, so
// the gate only thins the stream when the expected stream is shorter than the
// sample budget. The sample never holds more than sampleSize elements: once
// full, candidates replace a random sample with reservoir probability.
type Quantile[T cmp.Ordered] struct {
	chance     float64
	sampleSize int
	samples    []T
	offered    uint64
	counter    Counter
	rng        Rand
}

// NewQuantile returns an empty rank estimator. A nil counter means an exact one.
func NewQuantile[T cmp.Ordered](expSize, sampleSize int, counter Counter, rng Rand) (*Quantile[T], error) {
	if expSize <= 0 {
		return nil, configFault("NewQuantile", "expected stream size must be positive, got %d", expSize)
	}
	if sampleSize <= 0 {
		return nil, configFault("NewQuantile", "sample size must be positive, got %d", sampleSize)
	}
	if rng == nil {
		return nil, configFault("NewQuantile", "random source required")
	}
	if counter == nil {
		counter = NewExactCounter[None]()
	}
	return &Quantile[T]{
		chance:     float64(expSize) / float64(sampleSize),
		sampleSize: sampleSize,
		samples:    make([]T, 0, sampleSize),
		counter:    counter,
		rng:        rng,
	}, nil
}

func (q *Quantile[T]) Process(v T) {
	q.counter.Process(None{})
	if q.rng.Float64() > q.chance {
		return
	}
	if _, found := slices.BinarySearch(q.samples, v); found {
		return
	}
	q.offered++
	if len(q.samples) == q.sampleSize {
		j := uint64(q.rng.Float64() * float64(q.offered))
		if j >= uint64(q.sampleSize) {
			return
		}
		q.samples = slices.Delete(q.samples, int(j), int(j)+1)
	}
	idx, _ := slices.BinarySearch(q.samples, v)
	q.samples = slices.Insert(q.samples, idx, v)
}

// Query returns floor(count * rank_in_sample(v) / sample_len), where the
// sample rank counts samples strictly below v.
func (q *Quantile[T]) Query(v T) uint64 {
	if len(q.samples) == 0 {
		return 0
	}
	i, _ := slices.BinarySearch(q.samples, v)
	return q.counter.Query(None{}) * uint64(i) / uint64(len(q.samples))
}

// Count returns the counter's view of the stream length.
func (q *Quantile[T]) Count() uint64 {
	return q.counter.Query(None{})
}

// Samples returns the current sample in ascending order. Callers must not
// modify it.
func (q *Quantile[T]) Samples() []T {
	return q.samples
}

// Chance returns the inclusion threshold expSize/sampleSize.
func (q *Quantile[T]) Chance() float64 {
	return q.chance
}
