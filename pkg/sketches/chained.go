package sketches

import (
	"cmp"
	"math"
	"slices"
)

// ChainedCompactors cascades a fixed sequence of compactors: stage 0 receives
// raw input and the survivors of stage i feed stage i+1. Survivors of the last
// stage leave the chain. Each stage fills exponentially less often than the
// one before it, so the chain holds a logarithmic amount of the stream.
type ChainedCompactors[T cmp.Ordered] struct {
	stages []*Compactor[T]
}

// NewChainedCompactors chains the given stages in order. Every stage must be
// distinct; a compactor cannot appear twice in the chain.
func NewChainedCompactors[T cmp.Ordered](stages ...*Compactor[T]) (*ChainedCompactors[T], error) {
	if len(stages) == 0 {
		return nil, configFault("NewChainedCompactors", "at least one stage required")
	}
	for i, s := range stages {
		if s == nil {
			return nil, configFault("NewChainedCompactors", "stage %d is nil", i)
		}
		if slices.Index(stages[:i], s) >= 0 {
			return nil, configFault("NewChainedCompactors", "stage %d is already part of the chain", i)
		}
	}
	return &ChainedCompactors[T]{stages: stages}, nil
}

// Add feeds v into stage 0 and reports whether stage 0 must be compacted.
func (c *ChainedCompactors[T]) Add(v T) bool {
	return c.stages[0].Add(v)
}

// LinearRelativeCompact compacts stage 0 and cascades: whenever a survivor
// fills the next stage, that stage is compacted the same way. Survivors of the
// last stage are appended to out.
func (c *ChainedCompactors[T]) LinearRelativeCompact(out []T) []T {
	return values(out, c.compactStage(0, nil, linearRelative[T]))
}

// LinearRelativeCompactAll compacts every stage once, in order, leaving the
// whole chain empty.
func (c *ChainedCompactors[T]) LinearRelativeCompactAll(out []T) []T {
	return values(out, c.LinearRelativeCompactAllWeighted(nil))
}

// LinearRelativeCompactWeighted is LinearRelativeCompact keeping survivor
// weights through every stage. Summing the weights of the outputs below a
// point estimates the stream rank of that point.
func (c *ChainedCompactors[T]) LinearRelativeCompactWeighted(out []Weighted[T]) []Weighted[T] {
	return c.compactStage(0, out, linearRelative[T])
}

// LinearRelativeCompactAllWeighted is LinearRelativeCompactAll keeping
// survivor weights.
func (c *ChainedCompactors[T]) LinearRelativeCompactAllWeighted(out []Weighted[T]) []Weighted[T] {
	for i := range c.stages {
		out = c.compactStage(i, out, linearRelative[T])
	}
	return out
}

// AdditiveCompact is LinearRelativeCompact with additive compaction at every
// stage: each stage keeps exactly half of what it drains, so an element
// stored at stage i stands for 2^i inputs. Every stage must have an even
// capacity.
func (c *ChainedCompactors[T]) AdditiveCompact(out []T) []T {
	return values(out, c.compactStage(0, nil, additive[T]))
}

// compactFunc drains one stage and returns its survivors.
type compactFunc[T cmp.Ordered] func(c *Compactor[T]) []Weighted[T]

func linearRelative[T cmp.Ordered](c *Compactor[T]) []Weighted[T] {
	return c.LinearRelativeCompactWeighted(nil)
}

func additive[T cmp.Ordered](c *Compactor[T]) []Weighted[T] {
	var out []Weighted[T]
	for v := range c.AdditiveCompact() {
		out = append(out, Weighted[T]{Value: v, Weight: 1})
	}
	return out
}

func (c *ChainedCompactors[T]) compactStage(idx int, out []Weighted[T], compact compactFunc[T]) []Weighted[T] {
	survivors := compact(c.stages[idx])
	if idx == len(c.stages)-1 {
		return append(out, survivors...)
	}
	next := c.stages[idx+1]
	for _, s := range survivors {
		if next.AddWeighted(s.Value, s.Weight) {
			out = c.compactStage(idx+1, out, compact)
		}
	}
	return out
}

func values[T cmp.Ordered](out []T, ws []Weighted[T]) []T {
	for _, w := range ws {
		out = append(out, w.Value)
	}
	return out
}

// Len returns the number of elements buffered across all stages.
func (c *ChainedCompactors[T]) Len() int {
	n := 0
	for _, s := range c.stages {
		n += s.Len()
	}
	return n
}

func (c *ChainedCompactors[T]) IsEmpty() bool {
	for _, s := range c.stages {
		if !s.IsEmpty() {
			return false
		}
	}
	return true
}

// Stages returns the number of stages.
func (c *ChainedCompactors[T]) Stages() int {
	return len(c.stages)
}

// Stage returns stage i.
func (c *ChainedCompactors[T]) Stage(i int) *Compactor[T] {
	return c.stages[i]
}

// RankSketch is a KLL-style rank estimator over a ChainedCompactors using
// additive compaction. An element retained at stage i stands for 2^i stream
// elements; elements that left the last stage stand for 2^stages.
type RankSketch[T cmp.Ordered] struct {
	chain   *ChainedCompactors[T]
	emitted []T
	count   uint64
}

// NewRankSketch returns an empty rank sketch of the given number of stages,
// each holding up to capacity elements. capacity must be even.
func NewRankSketch[T cmp.Ordered](stages, capacity int, rng Rand) (*RankSketch[T], error) {
	if stages <= 0 {
		return nil, configFault("NewRankSketch", "stage count must be positive, got %d", stages)
	}
	if capacity%2 != 0 {
		return nil, configFault("NewRankSketch", "capacity must be even, got %d", capacity)
	}
	cs := make([]*Compactor[T], stages)
	for i := range cs {
		c, err := NewCompactor[T](capacity, rng)
		if err != nil {
			return nil, err
		}
		cs[i] = c
	}
	chain, err := NewChainedCompactors(cs...)
	if err != nil {
		return nil, err
	}
	return &RankSketch[T]{chain: chain}, nil
}

func (r *RankSketch[T]) Process(v T) {
	r.count++
	if r.chain.Add(v) {
		r.emitted = r.chain.AdditiveCompact(r.emitted)
	}
}

// Query estimates the number of stream elements less than v.
func (r *RankSketch[T]) Query(v T) uint64 {
	var less, total float64
	for i := 0; i < r.chain.Stages(); i++ {
		w := math.Exp2(float64(i))
		for _, x := range r.chain.Stage(i).Items() {
			if x < v {
				less += w
			}
			total += w
		}
	}
	w := math.Exp2(float64(r.chain.Stages()))
	for _, x := range r.emitted {
		if x < v {
			less += w
		}
		total += w
	}
	if total == 0 {
		return 0
	}
	return uint64(math.Round(float64(r.count) * less / total))
}

// Count returns the number of processed elements.
func (r *RankSketch[T]) Count() uint64 {
	return r.count
}

// Retained returns how many elements the sketch currently holds.
func (r *RankSketch[T]) Retained() int {
	return r.chain.Len() + len(r.emitted)
}

// RankError is the estimation error at one query point.
type RankError[T cmp.Ordered] struct {
	Point     T
	Expected  int
	Estimated int
	Additive  int
	Relative  float64
}

// ProportionalCorrection maps a rank among n compacted outputs back to a
// stream rank by scaling it to a stream of total elements.
func ProportionalCorrection(total int) func(g, n int) float64 {
	return func(g, n int) float64 {
		if n == 0 {
			return 0
		}
		return float64(g) * float64(total) / float64(n)
	}
}

// RankErrors compares, at every point, the true rank among inputs with the
// rank among outputs mapped through correct. Relative error is
// 1 - min(exp/got, got/exp); it is 0 when both ranks are 0 and 1 when only one
// of them is. inputs and outputs are sorted in place.
func RankErrors[T cmp.Ordered](inputs, outputs, points []T, correct func(g, n int) float64) []RankError[T] {
	slices.Sort(inputs)
	slices.Sort(outputs)

	errs := make([]RankError[T], 0, len(points))
	for _, p := range points {
		got := int(correct(Rank(outputs, p), len(outputs)))
		errs = append(errs, rankError(p, Rank(inputs, p), got))
	}
	return errs
}

// WeightedRankErrors is RankErrors for weighted outputs: the estimated rank of
// a point is the rounded total weight of the outputs below it. inputs and
// outputs are sorted in place.
func WeightedRankErrors[T cmp.Ordered](inputs []T, outputs []Weighted[T], points []T) []RankError[T] {
	slices.Sort(inputs)
	slices.SortFunc(outputs, func(a, b Weighted[T]) int {
		return cmp.Compare(a.Value, b.Value)
	})

	// below[i] is the weight of outputs[:i]
	below := make([]float64, len(outputs)+1)
	for i, o := range outputs {
		below[i+1] = below[i] + o.Weight
	}
	errs := make([]RankError[T], 0, len(points))
	for _, p := range points {
		g, _ := slices.BinarySearchFunc(outputs, p, func(o Weighted[T], v T) int {
			return cmp.Compare(o.Value, v)
		})
		errs = append(errs, rankError(p, Rank(inputs, p), int(math.Round(below[g]))))
	}
	return errs
}

func rankError[T cmp.Ordered](p T, exp, got int) RankError[T] {
	e := RankError[T]{Point: p, Expected: exp, Estimated: got, Additive: exp - got}
	if e.Additive < 0 {
		e.Additive = -e.Additive
	}
	switch {
	case exp == 0 && got == 0:
		e.Relative = 0
	case exp == 0 || got == 0:
		e.Relative = 1
	default:
		ex, g := float64(exp), float64(got)
		e.Relative = 1 - min(ex/g, g/ex)
	}
	return e
}

// MaxRelativeError returns the largest relative error in errs.
func MaxRelativeError[T cmp.Ordered](errs []RankError[T]) float64 {
	worst := 0.0
	for _, e := range errs {
		worst = max(worst, e.Relative)
	}
	return worst
}
