package sim

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat/distuv"
)

// maxAutocorrelation bounds the lag-1 autocorrelation used for the
// statistical inefficiency so a nearly frozen chain yields a large but finite
// error estimate.
const maxAutocorrelation = 0.999

// Sampler accumulates the observations of one scalar property (or one
// component of a vector property) at each sampling instant.
type Sampler struct {
	name       string
	confidence float64
	precision  float64
	hasTarget  bool
	values     []float64
}

// NewSampler creates a sampler without a precision target. confidence must
// lie in (0, 1).
func NewSampler(name string, confidence float64) (*Sampler, error) {
	if !(confidence > 0 && confidence < 1) {
		return nil, configErrorf("confidence", "must be in (0, 1), got %v", confidence)
	}
	return &Sampler{name: name, confidence: confidence}, nil
}

// NewSamplerWithPrecision creates a sampler that converges once the
// calculated precision is at most precision.
func NewSamplerWithPrecision(name string, confidence, precision float64) (*Sampler, error) {
	s, err := NewSampler(name, confidence)
	if err != nil {
		return nil, err
	}
	if !(precision > 0) {
		return nil, configErrorf("precision", "%s: must be positive, got %v", name, precision)
	}
	s.precision = precision
	s.hasTarget = true
	return s, nil
}

// Name returns the property name, e.g. "formation_energy" or "corr(3)".
func (s *Sampler) Name() string { return s.name }

// Confidence returns the confidence level of the precision interval.
func (s *Sampler) Confidence() float64 { return s.confidence }

// RequestedPrecision returns the precision target, if any.
func (s *Sampler) RequestedPrecision() (float64, bool) { return s.precision, s.hasTarget }

// Push appends one observation.
func (s *Sampler) Push(v float64) { s.values = append(s.values, v) }

// Len is the number of observations.
func (s *Sampler) Len() int { return len(s.values) }

// Values returns a copy of the observation history.
func (s *Sampler) Values() []float64 { return append([]float64(nil), s.values...) }

// Last returns the most recent observation.
func (s *Sampler) Last() (float64, bool) {
	if len(s.values) == 0 {
		return 0, false
	}
	return s.values[len(s.values)-1], true
}

// Clear drops all observations. Called when conditions change.
func (s *Sampler) Clear() { s.values = s.values[:0] }

func (s *Sampler) suffix(nExclude int) []float64 {
	if nExclude < 0 {
		nExclude = 0
	}
	if nExclude >= len(s.values) {
		return nil
	}
	return s.values[nExclude:]
}

// Mean averages the observations after the first nExclude.
func (s *Sampler) Mean(nExclude int) (float64, error) {
	data := s.suffix(nExclude)
	if len(data) == 0 {
		return 0, fmt.Errorf("%s: %w", s.name, ErrEmptySampler)
	}
	return stats.Mean(data)
}

// CalculatedPrecision returns the half-width of the two-sided confidence
// interval of the mean of the observations after the first nExclude,
// corrected for autocorrelation. Errors wrap ErrPrecisionUnavailable and
// either ErrEmptySampler (fewer than two observations) or ErrZeroVariance.
func (s *Sampler) CalculatedPrecision(nExclude int) (float64, error) {
	se, err := standardErrorOfMean(s.suffix(nExclude))
	if err != nil {
		return 0, fmt.Errorf("%s: %w: %w", s.name, ErrPrecisionUnavailable, err)
	}
	return NormalQuantile(s.confidence) * se, nil
}

// IsConverged reports whether the calculated precision meets the target.
// A sampler without a target is always converged. Statistics that cannot be
// computed yet count as not converged.
func (s *Sampler) IsConverged(nExclude int) bool {
	if !s.hasTarget {
		return true
	}
	p, err := s.CalculatedPrecision(nExclude)
	if err != nil {
		return false
	}
	return p <= s.precision
}

// NormalQuantile returns z such that a standard normal variable lies in
// [-z, z] with probability confidence.
func NormalQuantile(confidence float64) float64 {
	return distuv.UnitNormal.Quantile(1 - (1-confidence)/2)
}

// standardErrorOfMean estimates the standard error of the mean of a
// correlated series as sqrt(s^2 * g / n), with the statistical inefficiency
// g = (1 + rho) / (1 - rho) from the lag-1 autocorrelation rho of an AR(1)
// model. rho is clamped to [0, maxAutocorrelation].
func standardErrorOfMean(data []float64) (float64, error) {
	n := len(data)
	if n < 2 {
		return 0, ErrEmptySampler
	}
	variance, err := stats.SampleVariance(data)
	if err != nil {
		return 0, ErrEmptySampler
	}
	if variance <= 0 || math.IsNaN(variance) {
		return 0, ErrZeroVariance
	}
	rho := lag1Autocorrelation(data)
	g := (1 + rho) / (1 - rho)
	return math.Sqrt(variance * g / float64(n)), nil
}

func lag1Autocorrelation(data []float64) float64 {
	mean, _ := stats.Mean(data)
	var num, den float64
	for i, v := range data {
		d := v - mean
		den += d * d
		if i > 0 {
			num += d * (data[i-1] - mean)
		}
	}
	if den == 0 {
		return 0
	}
	rho := num / den
	return math.Max(0, math.Min(rho, maxAutocorrelation))
}
