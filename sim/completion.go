package sim

// CutoffParams bounds the length of a run segment. Count is passes when
// sampling by pass and steps when sampling by step; Time is steps divided by
// steps per pass; Sample is the number of samples taken. Unset fields do not
// constrain the run.
type CutoffParams struct {
	MinCount  *int64   `yaml:"min_count,omitempty" validate:"omitempty,gte=0"`
	MaxCount  *int64   `yaml:"max_count,omitempty" validate:"omitempty,gte=0"`
	MinTime   *float64 `yaml:"min_time,omitempty" validate:"omitempty,gte=0"`
	MaxTime   *float64 `yaml:"max_time,omitempty" validate:"omitempty,gte=0"`
	MinSample *int64   `yaml:"min_sample,omitempty" validate:"omitempty,gte=0"`
	MaxSample *int64   `yaml:"max_sample,omitempty" validate:"omitempty,gte=0"`
}

// HasMaximum reports whether any maximum is configured.
func (c CutoffParams) HasMaximum() bool {
	return c.MaxCount != nil || c.MaxTime != nil || c.MaxSample != nil
}

// Validate rejects negative cutoffs and minimums greater than maximums.
func (c CutoffParams) Validate() error {
	ints := []struct {
		field    string
		min, max *int64
	}{
		{"count", c.MinCount, c.MaxCount},
		{"sample", c.MinSample, c.MaxSample},
	}
	for _, p := range ints {
		if p.min != nil && *p.min < 0 {
			return configErrorf("completion.min_"+p.field, "must be non-negative, got %d", *p.min)
		}
		if p.max != nil && *p.max < 0 {
			return configErrorf("completion.max_"+p.field, "must be non-negative, got %d", *p.max)
		}
		if p.min != nil && p.max != nil && *p.min > *p.max {
			return configErrorf("completion.min_"+p.field, "minimum %d exceeds maximum %d", *p.min, *p.max)
		}
	}
	if c.MinTime != nil && !(*c.MinTime >= 0) {
		return configErrorf("completion.min_time", "must be non-negative, got %v", *c.MinTime)
	}
	if c.MaxTime != nil && !(*c.MaxTime >= 0) {
		return configErrorf("completion.max_time", "must be non-negative, got %v", *c.MaxTime)
	}
	if c.MinTime != nil && c.MaxTime != nil && *c.MinTime > *c.MaxTime {
		return configErrorf("completion.min_time", "minimum %v exceeds maximum %v", *c.MinTime, *c.MaxTime)
	}
	return nil
}

// MinimumsMet reports whether every configured minimum is reached.
func (c CutoffParams) MinimumsMet(count int64, time float64, nSamples int64) bool {
	if c.MinCount != nil && count < *c.MinCount {
		return false
	}
	if c.MinTime != nil && time < *c.MinTime {
		return false
	}
	if c.MinSample != nil && nSamples < *c.MinSample {
		return false
	}
	return true
}

// MaximumsMet reports whether any configured maximum is reached.
func (c CutoffParams) MaximumsMet(count int64, time float64, nSamples int64) bool {
	if c.MaxCount != nil && count >= *c.MaxCount {
		return true
	}
	if c.MaxTime != nil && time >= *c.MaxTime {
		return true
	}
	if c.MaxSample != nil && nSamples >= *c.MaxSample {
		return true
	}
	return false
}

// CompletionCheckParams configures the completion checker. The properties
// tracked for automatic convergence are the samplers given a precision.
type CompletionCheckParams struct {
	Cutoff CutoffParams `yaml:",inline"`
	// CheckBegin is the number of samples before the first full check.
	CheckBegin int `yaml:"check_begin" validate:"gte=0"`
	// CheckPeriod is the number of samples between full checks.
	CheckPeriod int `yaml:"check_period" validate:"gte=0"`
}

// WithDefaults fills an unset check period.
func (p CompletionCheckParams) WithDefaults() CompletionCheckParams {
	if p.CheckPeriod == 0 {
		p.CheckPeriod = 10
	}
	return p
}

// Validate checks the cutoffs and the check schedule.
func (p CompletionCheckParams) Validate() error {
	if err := p.Cutoff.Validate(); err != nil {
		return err
	}
	if p.CheckBegin < 0 {
		return configErrorf("completion.check_begin", "must be non-negative, got %d", p.CheckBegin)
	}
	if p.CheckPeriod < 1 {
		return configErrorf("completion.check_period", "must be >= 1, got %d", p.CheckPeriod)
	}
	return nil
}

// Due reports whether a full check should run after the nSamples-th sample.
func (p CompletionCheckParams) Due(nSamples int) bool {
	if nSamples < p.CheckBegin {
		return false
	}
	return (nSamples-p.CheckBegin)%p.CheckPeriod == 0
}

// CompletionState is the furthest stage a completion check reached.
type CompletionState string

const (
	StateRunning            CompletionState = "running"
	StateEquilibrationCheck CompletionState = "equilibration-check"
	StateConvergenceCheck   CompletionState = "convergence-check"
	StateComplete           CompletionState = "complete"
)

// PropertyCheck is the per-property part of CompletionResults.
type PropertyCheck struct {
	Name                string  `json:"name"`
	IsEquilibrated      bool    `json:"is_equilibrated"`
	NEquilSamples       int     `json:"N_equil_samples"`
	IsConverged         bool    `json:"is_converged"`
	Mean                float64 `json:"mean"`
	CalculatedPrecision float64 `json:"calculated_precision"`
	RequestedPrecision  float64 `json:"requested_precision"`
	// PrecisionAvailable is false when the precision could not be computed
	// (too few samples or zero variance).
	PrecisionAvailable bool `json:"precision_available"`
}

// CompletionResults is the outcome of one completion check.
type CompletionResults struct {
	Count    int64           `json:"count"`
	Time     float64         `json:"time"`
	NSamples int64           `json:"N_samples"`
	State    CompletionState `json:"state"`

	MinimumsMet bool `json:"minimums_met"`
	MaximumsMet bool `json:"maximums_met"`

	Properties                  []PropertyCheck `json:"properties,omitempty"`
	AllEquilibrated             bool            `json:"all_equilibrated"`
	NSamplesForAllToEquilibrate int             `json:"N_samples_for_all_to_equilibrate"`
	AllConverged                bool            `json:"all_converged"`

	IsComplete bool `json:"is_complete"`
}

// CheckCompletion evaluates the stopping rule. It reads the samplers and
// never modifies them, so repeated calls on unchanged data give identical
// results.
//
//  1. Any unmet minimum: not complete.
//  2. With tracked properties: every one must equilibrate to within its
//     requested precision; the equilibration prefix is the largest
//     per-property prefix. Every tracked property must
//     then reach its precision over the remaining samples. Both hold: complete.
//  3. Any maximum reached: complete.
func CheckCompletion(params CompletionCheckParams, count int64, time float64, samplers *SamplerSet) CompletionResults {
	nSamples := int64(samplers.Len())
	r := CompletionResults{
		Count:    count,
		Time:     time,
		NSamples: nSamples,
		State:    StateRunning,
	}
	r.MinimumsMet = params.Cutoff.MinimumsMet(count, time, nSamples)
	if !r.MinimumsMet {
		return r
	}
	r.MaximumsMet = params.Cutoff.MaximumsMet(count, time, nSamples)

	tracked := samplers.Tracked()
	if len(tracked) > 0 {
		r.State = StateEquilibrationCheck
		r.Properties = make([]PropertyCheck, len(tracked))
		r.AllEquilibrated = true
		for i, s := range tracked {
			target, _ := s.RequestedPrecision()
			eq := CheckEquilibration(s.values, target)
			r.Properties[i] = PropertyCheck{
				Name:               s.Name(),
				IsEquilibrated:     eq.IsEquilibrated,
				NEquilSamples:      eq.NEquilSamples,
				RequestedPrecision: target,
			}
			if !eq.IsEquilibrated {
				r.AllEquilibrated = false
				continue
			}
			if eq.NEquilSamples > r.NSamplesForAllToEquilibrate {
				r.NSamplesForAllToEquilibrate = eq.NEquilSamples
			}
		}

		if r.AllEquilibrated {
			r.State = StateConvergenceCheck
			r.AllConverged = true
			for i, s := range tracked {
				pc := &r.Properties[i]
				pc.Mean, _ = s.Mean(r.NSamplesForAllToEquilibrate)
				prec, err := s.CalculatedPrecision(r.NSamplesForAllToEquilibrate)
				if err == nil {
					pc.CalculatedPrecision = prec
					pc.PrecisionAvailable = true
					pc.IsConverged = prec <= pc.RequestedPrecision
				}
				if !pc.IsConverged {
					r.AllConverged = false
				}
			}
			if r.AllConverged {
				r.State = StateComplete
				r.IsComplete = true
				return r
			}
		}
	}

	if r.MaximumsMet {
		r.State = StateComplete
		r.IsComplete = true
	}
	return r
}

// SegmentSummary is the final statistics of one property in a segment.
type SegmentSummary struct {
	Name                string  `json:"name"`
	Mean                float64 `json:"mean"`
	CalculatedPrecision float64 `json:"calculated_precision"`
	PrecisionAvailable  bool    `json:"precision_available"`
	IsConverged         bool    `json:"is_converged"`
	RequestedPrecision  float64 `json:"requested_precision,omitempty"`
}

// Summarize computes the mean and precision of every sampler after excluding
// nEquil samples. An empty suffix reports a zero mean without precision.
func Summarize(samplers *SamplerSet, nEquil int) []SegmentSummary {
	out := make([]SegmentSummary, 0, len(samplers.props))
	for _, s := range samplers.Samplers() {
		sum := SegmentSummary{Name: s.Name()}
		sum.Mean, _ = s.Mean(nEquil)
		if p, err := s.CalculatedPrecision(nEquil); err == nil {
			sum.CalculatedPrecision = p
			sum.PrecisionAvailable = true
		}
		sum.RequestedPrecision, _ = s.RequestedPrecision()
		sum.IsConverged = s.IsConverged(nEquil)
		out = append(out, sum)
	}
	return out
}
