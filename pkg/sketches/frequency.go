package sketches

import (
	"maps"
	"math"
)

// MisraGries tracks at most k candidate heavy hitters. Any element whose
// frequency exceeds total/(k+1) is guaranteed to be among them; some tracked
// elements may be false positives.
type MisraGries[T comparable] struct {
	k      int
	counts map[T]uint64
}

// NewMisraGries returns an empty heavy-hitter sketch tracking up to k elements.
func NewMisraGries[T comparable](k int) (*MisraGries[T], error) {
	if k <= 0 {
		return nil, configFault("NewMisraGries", "capacity must be positive, got %d", k)
	}
	return &MisraGries[T]{k: k, counts: make(map[T]uint64, k)}, nil
}

// NewMajority returns the k=1 specialization: the only candidate it keeps is
// the majority element, if the stream has one.
func NewMajority[T comparable]() *MisraGries[T] {
	return &MisraGries[T]{k: 1, counts: make(map[T]uint64, 1)}
}

// Process increments v's counter, starts tracking it if there is room, or
// otherwise decrements every counter and evicts those reaching zero. In the
// last case v itself is dropped.
func (mg *MisraGries[T]) Process(v T) {
	if _, ok := mg.counts[v]; ok {
		mg.counts[v]++
		return
	}
	if len(mg.counts) < mg.k {
		mg.counts[v] = 1
		return
	}
	for key := range mg.counts {
		mg.counts[key]--
		if mg.counts[key] == 0 {
			delete(mg.counts, key)
		}
	}
}

// Query returns the tracked candidates in no particular order.
func (mg *MisraGries[T]) Query(None) []T {
	keys := make([]T, 0, len(mg.counts))
	for key := range mg.counts {
		keys = append(keys, key)
	}
	return keys
}

// Counts returns a copy of the tracked counters. A counter is a lower bound
// on the element's true frequency.
func (mg *MisraGries[T]) Counts() map[T]uint64 {
	return maps.Clone(mg.counts)
}

// Capacity returns k.
func (mg *MisraGries[T]) Capacity() int {
	return mg.k
}

// CountMin estimates per-element frequencies with rows of counters. It never
// underestimates; collisions can only inflate a counter.
type CountMin[T any] struct {
	hashers []hasher
	table   [][]uint64 // table[row][bucket]
	total   uint64
}

// NewCountMin returns an empty sketch of the given number of buckets per row
// and rows.
func NewCountMin[T any](buckets, rows int, rng *RandomSource) (*CountMin[T], error) {
	if buckets <= 0 {
		return nil, configFault("NewCountMin", "bucket count must be positive, got %d", buckets)
	}
	if rows <= 0 {
		return nil, configFault("NewCountMin", "row count must be positive, got %d", rows)
	}
	if rng == nil {
		return nil, configFault("NewCountMin", "random source required")
	}
	table := make([][]uint64, rows)
	for i := range table {
		table[i] = make([]uint64, buckets)
	}
	return &CountMin[T]{hashers: newHashers(rows, rng), table: table}, nil
}

func (cm *CountMin[T]) Process(v T) {
	for i, h := range cm.hashers {
		cm.table[i][h.index(v, len(cm.table[i]))]++
	}
	cm.total++
}

// Query returns the minimum counter across rows for v.
func (cm *CountMin[T]) Query(v T) uint64 {
	minCount := uint64(math.MaxUint64)
	for i, h := range cm.hashers {
		if c := cm.table[i][h.index(v, len(cm.table[i]))]; c < minCount {
			minCount = c
		}
	}
	return minCount
}

// Total returns the number of processed elements.
func (cm *CountMin[T]) Total() uint64 {
	return cm.total
}

// Buckets returns the number of counters per row.
func (cm *CountMin[T]) Buckets() int {
	return len(cm.table[0])
}

// Rows returns the number of rows.
func (cm *CountMin[T]) Rows() int {
	return len(cm.table)
}
