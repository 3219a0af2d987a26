package registry

import (
	"math"
	"math/bits"
	"slices"

	"github.com/pkg/errors"

	"github.com/sahithikokkula/streamsketch/pkg/estimator"
	"github.com/sahithikokkula/streamsketch/pkg/sketches"
)

// sketch is the uniform face the registry puts on every sketch kind.
type sketch interface {
	process(v value)
	// query answers for arg, which is nil when the caller gave no value.
	// observed is the number of values the stream has seen.
	query(arg *value, observed uint64) (sketches.EstimateResult, error)
	// footprint approximates the memory held by the sketch in bytes.
	footprint() int
}

type kind struct {
	defaults Params
	numeric  bool
	// size bounds the bytes the sketch can grow to. It returns 0 when a
	// parameter is out of range, leaving the error to the constructor.
	size  func(p Params) uint64
	build func(p Params) (sketch, error)
}

// hasherSize approximates one seeded hasher.
const hasherSize = 16

var kinds = map[sketches.SketchType]kind{
	sketches.ExactCounterType: {
		size: func(Params) uint64 { return 8 },
		build: func(Params) (sketch, error) {
			return &countSketch{p: sketches.NewExactCounter[string](), size: 8}, nil
		},
	},
	sketches.MorrisCounterType: {
		defaults: Params{Seed: sketches.DefaultSeed, Alpha: 0.05},
		size:     func(Params) uint64 { return 24 },
		build: func(p Params) (sketch, error) {
			c, err := sketches.NewMorrisCounter[string](p.Alpha, sketches.NewRandomSource(p.Seed))
			if err != nil {
				return nil, err
			}
			return &countSketch{
				p:    c,
				size: 24,
				ci: func(est float64) estimator.CIResult {
					return estimator.MorrisCI(est, p.Alpha, estimator.DefaultConfidence)
				},
			}, nil
		},
	},
	sketches.BloomFilterType: {
		defaults: Params{Seed: sketches.DefaultSeed, Bytes: 1024, Hashes: 4},
		size:     func(p Params) uint64 { return sum(product(p.Bytes), product(hasherSize, p.Hashes)) },
		build: func(p Params) (sketch, error) {
			f, err := sketches.NewBloomFilter[string](p.Bytes, p.Hashes, sketches.NewRandomSource(p.Seed))
			if err != nil {
				return nil, err
			}
			return &membershipSketch{
				p:    f,
				size: p.Bytes,
				fpr: func(n uint64) float64 {
					return estimator.BloomFalsePositiveRate(f.Bits(), f.Hashes(), n)
				},
			}, nil
		},
	},
	sketches.BloomGroupType: {
		defaults: Params{Seed: sketches.DefaultSeed, Bytes: 1024, Hashes: 2, Members: 3},
		size: func(p Params) uint64 {
			return sum(product(p.Members, p.Bytes), product(p.Members, hasherSize, p.Hashes))
		},
		build: func(p Params) (sketch, error) {
			rng := sketches.NewRandomSource(p.Seed)
			g, err := sketches.NewBoolGroup(p.Members, func() (sketches.StreamProcessor[string, string, bool], error) {
				return sketches.NewBloomFilter[string](p.Bytes, p.Hashes, rng)
			})
			if err != nil {
				return nil, err
			}
			return &membershipSketch{
				p:    g,
				size: p.Members * p.Bytes,
				fpr: func(n uint64) float64 {
					// members hash independently, so false positives must coincide
					return math.Pow(estimator.BloomFalsePositiveRate(p.Bytes*8, p.Hashes, n), float64(p.Members))
				},
			}, nil
		},
	},
	sketches.FlajoletMartinType: {
		defaults: Params{Seed: sketches.DefaultSeed, Bytes: 8},
		size:     func(p Params) uint64 { return product(p.Bytes) },
		build: func(p Params) (sketch, error) {
			fm, err := sketches.NewFlajoletMartin[string](p.Bytes, sketches.NewRandomSource(p.Seed))
			if err != nil {
				return nil, err
			}
			return &countSketch{
				p:    fm,
				size: p.Bytes,
				ci: func(est float64) estimator.CIResult {
					return estimator.FlajoletMartinCI(est, estimator.DefaultConfidence)
				},
			}, nil
		},
	},
	sketches.HyperLogLogType: {
		defaults: Params{Seed: sketches.DefaultSeed, Precision: 12},
		size:     func(p Params) uint64 { return uint64(1) << min(p.Precision, 16) },
		build: func(p Params) (sketch, error) {
			hll, err := sketches.NewHyperLogLog[string](p.Precision, sketches.NewRandomSource(p.Seed))
			if err != nil {
				return nil, err
			}
			return &countSketch{
				p:    hll,
				size: hll.Registers(),
				ci: func(est float64) estimator.CIResult {
					return estimator.HyperLogLogCI(est, hll.Registers(), estimator.DefaultConfidence)
				},
			}, nil
		},
	},
	sketches.MisraGriesType: {
		defaults: Params{K: 10},
		size:     func(p Params) uint64 { return product(48, p.K) },
		build: func(p Params) (sketch, error) {
			mg, err := sketches.NewMisraGries[string](p.K)
			if err != nil {
				return nil, err
			}
			return &heavyHitterSketch{mg: mg}, nil
		},
	},
	sketches.CountMinSketchType: {
		defaults: Params{Seed: sketches.DefaultSeed, Buckets: 272, Rows: 5},
		size:     func(p Params) uint64 { return sum(product(8, p.Buckets, p.Rows), product(hasherSize, p.Rows)) },
		build: func(p Params) (sketch, error) {
			cm, err := sketches.NewCountMin[string](p.Buckets, p.Rows, sketches.NewRandomSource(p.Seed))
			if err != nil {
				return nil, err
			}
			return &countMinSketch{cm: cm}, nil
		},
	},
	sketches.QuantileType: {
		defaults: Params{Seed: sketches.DefaultSeed, ExpSize: 100000, SampleSize: 1024},
		numeric:  true,
		size:     func(p Params) uint64 { return product(8, p.SampleSize) },
		build: func(p Params) (sketch, error) {
			q, err := sketches.NewQuantile[float64](p.ExpSize, p.SampleSize, nil, sketches.NewRandomSource(p.Seed))
			if err != nil {
				return nil, err
			}
			return &rankSketch{
				p:    q,
				size: func() int { return 8 * len(q.Samples()) },
				ci: func(est float64) estimator.CIResult {
					return estimator.QuantileCI(est, q.Count(), len(q.Samples()), estimator.DefaultConfidence)
				},
			}, nil
		},
	},
	sketches.RankSketchType: {
		defaults: Params{Seed: sketches.DefaultCompactorSeed, Stages: 8, Capacity: 144},
		numeric:  true,
		size:     func(p Params) uint64 { return product(16, p.Stages, p.Capacity) },
		build: func(p Params) (sketch, error) {
			rs, err := sketches.NewRankSketch[float64](p.Stages, p.Capacity, sketches.NewSteppingSource(p.Seed))
			if err != nil {
				return nil, err
			}
			return &rankSketch{
				p:    rs,
				size: func() int { return 16 * rs.Retained() },
			}, nil
		},
	},
	sketches.MedianOfMeansMorris: {
		defaults: Params{Seed: sketches.DefaultSeed, Alpha: 0.05, Members: 4, Groups: 5},
		size:     func(p Params) uint64 { return product(24, p.Members, p.Groups) },
		build: func(p Params) (sketch, error) {
			rng := sketches.NewRandomSource(p.Seed)
			mm, err := sketches.NewMedianOfMeans(p.Members, p.Groups, func() (sketches.StreamProcessor[string, sketches.None, uint64], error) {
				return sketches.NewMorrisCounter[string](p.Alpha, rng)
			}, nil)
			if err != nil {
				return nil, err
			}
			return &medianOfMeansSketch{mm: mm, size: 24 * p.Members * p.Groups, seed: p.Seed}, nil
		},
	},
}

// product multiplies its factors, saturating at math.MaxUint64. It returns 0
// if any factor is not positive.
func product(fs ...int) uint64 {
	out := uint64(1)
	for _, f := range fs {
		if f <= 0 {
			return 0
		}
		hi, lo := bits.Mul64(out, uint64(f))
		if hi != 0 {
			return math.MaxUint64
		}
		out = lo
	}
	return out
}

// sum adds a and b, saturating at math.MaxUint64, and is 0 if either is 0.
func sum(a, b uint64) uint64 {
	if a == 0 || b == 0 {
		return 0
	}
	if a+b < a {
		return math.MaxUint64
	}
	return a + b
}

// countSketch answers a count or a cardinality and takes no argument.
type countSketch struct {
	p    sketches.StreamProcessor[string, sketches.None, uint64]
	ci   func(est float64) estimator.CIResult // nil when exact
	size int
}

func (s *countSketch) process(v value) {
	s.p.Process(v.key)
}

func (s *countSketch) query(_ *value, _ uint64) (sketches.EstimateResult, error) {
	est := s.p.Query(sketches.None{})
	res := sketches.EstimateResult{Estimate: est}
	if s.ci == nil {
		res.Confidence = 1
		res.Lower, res.Upper = float64(est), float64(est)
		return res, nil
	}
	applyCI(&res, s.ci(float64(est)))
	return res, nil
}

func (s *countSketch) footprint() int {
	return s.size
}

// membershipSketch answers whether a value may have been observed. A
// negative answer is certain; a positive one is wrong with the filter's false
// positive rate.
type membershipSketch struct {
	p    sketches.StreamProcessor[string, string, bool]
	fpr  func(n uint64) float64
	size int
}

func (s *membershipSketch) process(v value) {
	s.p.Process(v.key)
}

func (s *membershipSketch) query(arg *value, observed uint64) (sketches.EstimateResult, error) {
	if arg == nil {
		return sketches.EstimateResult{}, errors.Wrap(ErrBadValue, "membership query needs a value")
	}
	present := s.p.Query(arg.key)
	res := sketches.EstimateResult{Estimate: present, Confidence: 1}
	if present {
		res.ErrorBound = s.fpr(observed)
		res.Confidence = 1 - res.ErrorBound
	}
	return res, nil
}

func (s *membershipSketch) footprint() int {
	return s.size
}

// HeavyHitter is one Misra-Gries candidate with its lower-bound count.
type HeavyHitter struct {
	Value string `json:"value"`
	Count uint64 `json:"count"`
}

type heavyHitterSketch struct {
	mg *sketches.MisraGries[string]
}

func (s *heavyHitterSketch) process(v value) {
	s.mg.Process(v.key)
}

// query lists the candidates by descending count, or with arg, returns the
// tracked count of arg: a lower bound at most total/(k+1) below the truth.
func (s *heavyHitterSketch) query(arg *value, observed uint64) (sketches.EstimateResult, error) {
	bound := estimator.MisraGriesBound(s.mg.Capacity(), observed)
	counts := s.mg.Counts()
	if arg != nil {
		n := counts[arg.key]
		return sketches.EstimateResult{
			Estimate:   n,
			ErrorBound: bound,
			Confidence: 1,
			Lower:      float64(n),
			Upper:      float64(n) + bound,
		}, nil
	}

	hitters := make([]HeavyHitter, 0, len(counts))
	for v, n := range counts {
		hitters = append(hitters, HeavyHitter{Value: v, Count: n})
	}
	slices.SortFunc(hitters, func(a, b HeavyHitter) int {
		if a.Count != b.Count {
			if a.Count > b.Count {
				return -1
			}
			return 1
		}
		if a.Value < b.Value {
			return -1
		}
		if a.Value > b.Value {
			return 1
		}
		return 0
	})
	return sketches.EstimateResult{Estimate: hitters, ErrorBound: bound, Confidence: 1}, nil
}

func (s *heavyHitterSketch) footprint() int {
	// map entry overhead plus an average short key
	return 48 * s.mg.Capacity()
}

type countMinSketch struct {
	cm *sketches.CountMin[string]
}

func (s *countMinSketch) process(v value) {
	s.cm.Process(v.key)
}

// query returns the frequency estimate of arg. The truth lies in
// [est - e/B*total, est] with probability 1 - e^-rows.
func (s *countMinSketch) query(arg *value, _ uint64) (sketches.EstimateResult, error) {
	if arg == nil {
		return sketches.EstimateResult{}, errors.Wrap(ErrBadValue, "frequency query needs a value")
	}
	est := s.cm.Query(arg.key)
	bound, confidence := estimator.CountMinBound(s.cm.Buckets(), s.cm.Rows(), s.cm.Total())
	return sketches.EstimateResult{
		Estimate:   est,
		ErrorBound: bound,
		Confidence: confidence,
		Lower:      math.Max(0, float64(est)-bound),
		Upper:      float64(est),
	}, nil
}

func (s *countMinSketch) footprint() int {
	return 8 * s.cm.Buckets() * s.cm.Rows()
}

// rankSketch estimates how many observed values are below the argument.
type rankSketch struct {
	p    sketches.StreamProcessor[float64, float64, uint64]
	ci   func(est float64) estimator.CIResult // nil when no closed form is known
	size func() int
}

func (s *rankSketch) process(v value) {
	s.p.Process(v.num)
}

func (s *rankSketch) query(arg *value, _ uint64) (sketches.EstimateResult, error) {
	if arg == nil || !arg.isNum {
		return sketches.EstimateResult{}, errors.Wrap(ErrBadValue, "rank query needs a numeric value")
	}
	est := s.p.Query(arg.num)
	res := sketches.EstimateResult{Estimate: est}
	if s.ci != nil {
		applyCI(&res, s.ci(float64(est)))
	}
	return res, nil
}

func (s *rankSketch) footprint() int {
	return s.size()
}

// bootstrapRounds is the number of resamples behind a median-of-means interval.
const bootstrapRounds = 200

type medianOfMeansSketch struct {
	mm   *sketches.MedianOfMeans[string, sketches.None, uint64]
	size int
	seed float64
}

func (s *medianOfMeansSketch) process(v value) {
	s.mm.Process(v.key)
}

// query returns the median of the group means with a bootstrap interval over
// the group estimates. The bootstrap draws from a fresh source, so repeated
// queries of an unchanged stream agree.
func (s *medianOfMeansSketch) query(_ *value, _ uint64) (sketches.EstimateResult, error) {
	groups := s.mm.GroupEstimates(sketches.None{})
	res := sketches.EstimateResult{Estimate: sketches.Median(groups)}
	ci := estimator.BootstrapCI(groups, sketches.Median, bootstrapRounds, estimator.DefaultConfidence, sketches.NewRandomSource(s.seed))
	applyCI(&res, ci)
	return res, nil
}

func (s *medianOfMeansSketch) footprint() int {
	return s.size
}

func applyCI(res *sketches.EstimateResult, ci estimator.CIResult) {
	res.ErrorBound = ci.StdError
	res.Confidence = ci.ConfidenceLevel
	res.Lower = ci.Lower
	res.Upper = ci.Upper
}
