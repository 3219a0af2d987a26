package sketches

import (
	"slices"
)

// BoolGroup runs n independent boolean processors side by side and answers
// with the AND of their results. With independent false positives this drives
// the false positive rate down exponentially in n; it adds no false negatives
// as long as none of the members has any.
type BoolGroup[T any] struct {
	subs []StreamProcessor[T, T, bool]
}

// NewBoolGroup builds n members with newSub. Members must not share state.
func NewBoolGroup[T any](n int, newSub func() (StreamProcessor[T, T, bool], error)) (*BoolGroup[T], error) {
	if n <= 0 {
		return nil, configFault("NewBoolGroup", "group size must be positive, got %d", n)
	}
	subs := make([]StreamProcessor[T, T, bool], n)
	for i := range subs {
		s, err := newSub()
		if err != nil {
			return nil, err
		}
		subs[i] = s
	}
	return &BoolGroup[T]{subs: subs}, nil
}

func (g *BoolGroup[T]) Process(v T) {
	for _, s := range g.subs {
		s.Process(v)
	}
}

func (g *BoolGroup[T]) Query(v T) bool {
	for _, s := range g.subs {
		if !s.Query(v) {
			return false
		}
	}
	return true
}

// Number is a numeric query result MedianOfMeans can aggregate.
type Number interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// Aggregator reduces the results of one group to a single estimate.
type Aggregator func(xs []float64) float64

// Mean is the default group aggregator.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// Median returns the median of xs, averaging the middle pair for even lengths.
func Median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	s := slices.Clone(xs)
	slices.Sort(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid]
	}
	return (s[mid-1] + s[mid]) / 2
}

// MedianOfMeans holds m groups of n independent processors. Each group's
// results are combined by the aggregator (the mean unless configured
// otherwise) and the query answers with the median of the m group estimates.
type MedianOfMeans[T, A any, R Number] struct {
	groups    [][]StreamProcessor[T, A, R]
	aggregate Aggregator
}

// NewMedianOfMeans builds m groups of n members with newSub. A nil aggregate
// means Mean.
func NewMedianOfMeans[T, A any, R Number](n, m int, newSub func() (StreamProcessor[T, A, R], error), aggregate Aggregator) (*MedianOfMeans[T, A, R], error) {
	if n <= 0 || m <= 0 {
		return nil, configFault("NewMedianOfMeans", "group size and group count must be positive, got %d and %d", n, m)
	}
	if aggregate == nil {
		aggregate = Mean
	}
	groups := make([][]StreamProcessor[T, A, R], m)
	for i := range groups {
		groups[i] = make([]StreamProcessor[T, A, R], n)
		for j := range groups[i] {
			s, err := newSub()
			if err != nil {
				return nil, err
			}
			groups[i][j] = s
		}
	}
	return &MedianOfMeans[T, A, R]{groups: groups, aggregate: aggregate}, nil
}

func (mm *MedianOfMeans[T, A, R]) Process(v T) {
	for _, group := range mm.groups {
		for _, s := range group {
			s.Process(v)
		}
	}
}

// Query returns the median of the group estimates.
func (mm *MedianOfMeans[T, A, R]) Query(args A) float64 {
	return Median(mm.GroupEstimates(args))
}

// GroupEstimates returns the aggregated estimate of every group, in group
// order.
func (mm *MedianOfMeans[T, A, R]) GroupEstimates(args A) []float64 {
	estimates := make([]float64, len(mm.groups))
	results := make([]float64, len(mm.groups[0]))
	for i, group := range mm.groups {
		for j, s := range group {
			results[j] = float64(s.Query(args))
		}
		estimates[i] = mm.aggregate(results)
	}
	return estimates
}
