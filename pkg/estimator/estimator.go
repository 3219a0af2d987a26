package estimator

import (
	"math"
	"slices"

	"github.com/sahithikokkula/streamsketch/pkg/sketches"
)

// CIResult contains confidence interval metadata.
type CIResult struct {
	Estimate        float64 `json:"estimate"`
	StdError        float64 `json:"std_error"`
	ConfidenceLevel float64 `json:"confidence_level"`
	Lower           float64 `json:"ci_low"`
	Upper           float64 `json:"ci_high"`
	RelativeError   float64 `json:"relative_error"`
}

// DefaultConfidence is used when a caller passes no confidence level.
const DefaultConfidence = 0.95

// ZScore returns z for a two-sided confidence level (e.g., 0.95 -> ~1.96).
func ZScore(confidence float64) float64 {
	switch {
	case math.Abs(confidence-0.90) < 1e-9:
		return 1.6448536269514722
	case math.Abs(confidence-0.95) < 1e-9:
		return 1.959963984540054
	case math.Abs(confidence-0.99) < 1e-9:
		return 2.5758293035489004
	case confidence > 0 && confidence < 1:
		return math.Sqrt2 * math.Erfinv(confidence)
	default:
		// default to 95%
		return 1.959963984540054
	}
}

// normalCI builds a symmetric interval est ± z*se. Counts and cardinalities
// cannot be negative, so the lower end is clamped at zero.
func normalCI(est, se, confidence float64) CIResult {
	z := ZScore(confidence)
	rel := 0.0
	if est != 0 {
		rel = se / math.Abs(est)
	}
	return CIResult{
		Estimate:        est,
		StdError:        se,
		ConfidenceLevel: confidence,
		Lower:           math.Max(0, est-z*se),
		Upper:           est + z*se,
		RelativeError:   rel,
	}
}

// MorrisCI bounds a Morris counter estimate. The estimator is unbiased with
// variance n(n-1)*alpha/2, so the standard error is about sqrt(alpha/2)*n.
func MorrisCI(estimate, alpha, confidence float64) CIResult {
	return normalCI(estimate, math.Sqrt(alpha/2)*estimate, confidence)
}

// HyperLogLogCI bounds a HyperLogLog estimate over m registers using the
// 1.04/sqrt(m) relative standard error.
func HyperLogLogCI(estimate float64, registers int, confidence float64) CIResult {
	return normalCI(estimate, 1.04/math.Sqrt(float64(registers))*estimate, confidence)
}

// fmStdDev is the standard deviation, in bits, of the Flajolet-Martin
// statistic for a single bitmap.
const fmStdDev = 1.12

// FlajoletMartinCI bounds a single-bitmap Flajolet-Martin estimate. The error
// is multiplicative: the interval is est*2^(±z*1.12).
func FlajoletMartinCI(estimate, confidence float64) CIResult {
	spread := math.Exp2(ZScore(confidence) * fmStdDev)
	return CIResult{
		Estimate:        estimate,
		StdError:        0.78 * estimate,
		ConfidenceLevel: confidence,
		Lower:           estimate / spread,
		Upper:           estimate * spread,
		RelativeError:   0.78,
	}
}

// BloomFalsePositiveRate returns the theoretical false positive rate
// (1 - e^(-kn/m))^k of a filter with m bits and k hash functions after n
// insertions.
func BloomFalsePositiveRate(bits, hashes int, inserted uint64) float64 {
	if bits <= 0 || hashes <= 0 {
		return 1
	}
	k := float64(hashes)
	return math.Pow(1-math.Exp(-k*float64(inserted)/float64(bits)), k)
}

// CountMinBound returns the additive overestimate bound e/B * total of a
// Count-Min sketch with B buckets per row and the probability 1 - e^(-rows)
// that a query stays within it.
func CountMinBound(buckets, rows int, total uint64) (bound, confidence float64) {
	if buckets <= 0 || rows <= 0 {
		return float64(total), 0
	}
	return math.E / float64(buckets) * float64(total), 1 - math.Exp(-float64(rows))
}

// MisraGriesBound returns the largest amount by which a tracked counter of a
// k-counter Misra-Gries sketch can underestimate the true frequency.
func MisraGriesBound(k int, total uint64) float64 {
	return float64(total) / float64(k+1)
}

// QuantileCI bounds a sampled rank estimate. The fraction of a uniform sample
// of size k below v has standard error sqrt(p(1-p)/k).
func QuantileCI(estimate float64, count uint64, sampleLen int, confidence float64) CIResult {
	if count == 0 || sampleLen == 0 {
		return CIResult{ConfidenceLevel: confidence}
	}
	n := float64(count)
	p := math.Min(1, estimate/n)
	se := n * math.Sqrt(p*(1-p)/float64(sampleLen))
	ci := normalCI(estimate, se, confidence)
	ci.Upper = math.Min(ci.Upper, n)
	return ci
}

// BootstrapCI computes a bootstrap percentile interval for statistic over
// values, resampling with replacement B times. Draws come from rng so the
// interval is reproducible.
func BootstrapCI(values []float64, statistic func([]float64) float64, B int, confidence float64, rng sketches.Rand) CIResult {
	if len(values) == 0 || B <= 1 {
		return CIResult{}
	}

	n := len(values)
	originalEst := statistic(values)

	bootstrapEsts := make([]float64, B)
	resample := make([]float64, n)
	for i := 0; i < B; i++ {
		for j := range resample {
			resample[j] = values[int(rng.Float64()*float64(n))]
		}
		bootstrapEsts[i] = statistic(resample)
	}
	slices.Sort(bootstrapEsts)

	// percentile bounds
	alpha := 1.0 - confidence
	lowerIdx := max(int(math.Floor(float64(B)*alpha/2.0)), 0)
	upperIdx := min(int(math.Ceil(float64(B)*(1.0-alpha/2.0)))-1, B-1)

	mean := 0.0
	for _, est := range bootstrapEsts {
		mean += est
	}
	mean /= float64(B)

	variance := 0.0
	for _, est := range bootstrapEsts {
		variance += (est - mean) * (est - mean)
	}
	variance /= float64(B - 1)
	stdErr := math.Sqrt(variance)

	relErr := 0.0
	if originalEst != 0 {
		relErr = stdErr / math.Abs(originalEst)
	}

	return CIResult{
		Estimate:        originalEst,
		StdError:        stdErr,
		ConfidenceLevel: confidence,
		Lower:           bootstrapEsts[lowerIdx],
		Upper:           bootstrapEsts[upperIdx],
		RelativeError:   relErr,
	}
}
