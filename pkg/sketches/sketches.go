// Package sketches provides single-pass streaming approximation algorithms:
// counting, membership, cardinality, frequency and rank estimation in memory
// that does not grow with the length of the stream.
//
// Every sketch is a StreamProcessor: it is created empty, fed observations
// through Process and read any number of times through Query. Sketches are not
// safe for concurrent mutation; wrap them (see pkg/registry) when sharing.
package sketches

import "iter"

// None is the argument type of queries that take no input.
type None = struct{}

// StreamProcessor is the contract shared by every sketch. Process folds one
// observation into the state; Query reads the state without changing it.
type StreamProcessor[T, A, R any] interface {
	Process(v T)
	Query(args A) R
}

// Apply feeds every element of seq into p and returns the query result.
func Apply[T, A, R any](p StreamProcessor[T, A, R], seq iter.Seq[T], args A) R {
	for v := range seq {
		p.Process(v)
	}
	return p.Query(args)
}

// SketchType names a sketch kind.
type SketchType string

const (
	ExactCounterType    SketchType = "exact"
	MorrisCounterType   SketchType = "morris"
	BloomFilterType     SketchType = "bloom"
	BloomGroupType      SketchType = "bloom_group"
	FlajoletMartinType  SketchType = "fm"
	HyperLogLogType     SketchType = "hll"
	MisraGriesType      SketchType = "misra_gries"
	CountMinSketchType  SketchType = "count_min"
	QuantileType        SketchType = "quantile"
	RankSketchType      SketchType = "kll"
	MedianOfMeansMorris SketchType = "median_of_means_morris"
)

// EstimateResult contains the result of a sketch query
type EstimateResult struct {
	Estimate   any     `json:"estimate"`
	ErrorBound float64 `json:"error_bound,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Lower      float64 `json:"ci_low,omitempty"`
	Upper      float64 `json:"ci_high,omitempty"`
	SketchType string  `json:"sketch_type"`
}

// Ensure implementations satisfy the contract
var _ StreamProcessor[string, None, uint64] = (*ExactCounter[string])(nil)
var _ StreamProcessor[string, None, uint64] = (*MorrisCounter[string])(nil)
var _ StreamProcessor[string, string, bool] = (*BloomFilter[string])(nil)
var _ StreamProcessor[string, None, uint64] = (*FlajoletMartin[string])(nil)
var _ StreamProcessor[string, None, uint64] = (*HyperLogLog[string])(nil)
var _ StreamProcessor[string, None, []string] = (*MisraGries[string])(nil)
var _ StreamProcessor[string, string, uint64] = (*CountMin[string])(nil)
var _ StreamProcessor[float64, float64, uint64] = (*Quantile[float64])(nil)
var _ StreamProcessor[float64, float64, uint64] = (*RankSketch[float64])(nil)
var _ StreamProcessor[string, string, bool] = (*BoolGroup[string])(nil)
var _ StreamProcessor[string, None, float64] = (*MedianOfMeans[string, None, uint64])(nil)
