package sim

import (
	"fmt"
)

// Sampling modes.
const (
	SampleByPass = "pass"
	SampleByStep = "step"
)

var validSampleBy = map[string]bool{SampleByPass: true, SampleByStep: true}

// Required properties; always sampled so the completion summary and the
// output files can report them.
const (
	PropFormationEnergy = "formation_energy"
	PropPotentialEnergy = "potential_energy"
	PropCorr            = "corr"
	PropNonZeroECICorr  = "non_zero_eci_correlations"
	PropCompN           = "comp_n"
	PropComp            = "comp"
	PropOrderParameter  = "order_parameter"
)

// MeasurementSettings requests sampling of one property. Quantity is a
// property name or a custom query expression. Precision, if set, makes the
// property (every component of it) tracked for automatic convergence.
type MeasurementSettings struct {
	Quantity  string   `yaml:"quantity" validate:"required"`
	Precision *float64 `yaml:"precision,omitempty" validate:"omitempty,gt=0"`
}

// SamplingConfig controls when and what is sampled.
type SamplingConfig struct {
	SampleBy     string                `yaml:"sample_by"`
	Period       int                   `yaml:"sample_period" validate:"gte=0"`
	Confidence   float64               `yaml:"confidence" validate:"gte=0,lt=1"`
	Measurements []MeasurementSettings `yaml:"measurements" validate:"dive"`
}

// WithDefaults fills unset sampling fields: sample by pass, every pass, 95%
// confidence.
func (c SamplingConfig) WithDefaults() SamplingConfig {
	if c.SampleBy == "" {
		c.SampleBy = SampleByPass
	}
	if c.Period == 0 {
		c.Period = 1
	}
	if c.Confidence == 0 {
		c.Confidence = 0.95
	}
	return c
}

// Validate checks the sampling mode and period.
func (c SamplingConfig) Validate() error {
	if !validSampleBy[c.SampleBy] {
		return configErrorf("data.sample_by", "unknown mode %q; valid options: pass, step", c.SampleBy)
	}
	if c.Period < 1 {
		return configErrorf("data.sample_period", "must be >= 1, got %d", c.Period)
	}
	if !(c.Confidence > 0 && c.Confidence < 1) {
		return configErrorf("data.confidence", "must be in (0, 1), got %v", c.Confidence)
	}
	return nil
}

// SampleTime is the pass and step at which a sample was taken.
type SampleTime struct {
	Pass int64 `json:"pass"`
	Step int64 `json:"step"`
}

type sampledProperty struct {
	sampler *Sampler
	observe func(p *PropertySnapshot) (float64, error)
}

// SamplerSet is the ordered collection of samplers of one chain. All
// samplers hold the same number of observations.
type SamplerSet struct {
	props []sampledProperty
	index map[string]int
	times []SampleTime
	buf   []float64
}

// NewSamplerSet builds every requested sampler or none. proto provides the
// vector lengths and is used to test-evaluate custom queries.
func NewSamplerSet(cfg SamplingConfig, proto PropertySnapshot, model EnergyModel) (*SamplerSet, error) {
	set := &SamplerSet{index: map[string]int{}}
	requested := map[string]bool{}
	for _, m := range cfg.Measurements {
		requested[m.Quantity] = true
		if err := set.addMeasurement(m, cfg.Confidence, &proto, model); err != nil {
			return nil, err
		}
	}
	required := []string{PropFormationEnergy, PropPotentialEnergy}
	if proto.Eta != nil {
		required = append(required, PropOrderParameter)
	}
	for _, name := range required {
		if requested[name] {
			continue
		}
		if err := set.addMeasurement(MeasurementSettings{Quantity: name}, cfg.Confidence, &proto, model); err != nil {
			return nil, err
		}
	}
	return set, nil
}

func (set *SamplerSet) addMeasurement(m MeasurementSettings, confidence float64, proto *PropertySnapshot, model EnergyModel) error {
	switch m.Quantity {
	case PropFormationEnergy, PropPotentialEnergy:
		get := queryScalars[m.Quantity]
		return set.add(m.Quantity, m.Precision, confidence, func(p *PropertySnapshot) (float64, error) {
			return get(p), nil
		})
	case PropCorr, PropCompN, PropComp, PropOrderParameter:
		vec := queryVectors[m.Quantity]
		n := len(vec(proto))
		if n == 0 {
			return configErrorf("data.measurements", "%s has no components for this energy model", m.Quantity)
		}
		for i := 0; i < n; i++ {
			if err := set.addComponent(m.Quantity, i, m.Precision, confidence, vec); err != nil {
				return err
			}
		}
		return nil
	case PropNonZeroECICorr:
		nz, ok := model.(NonZeroECIProvider)
		if !ok {
			return configErrorf("data.measurements", "%s requires an energy model that reports its non-zero ECI", m.Quantity)
		}
		vec := queryVectors[PropCorr]
		for _, i := range nz.NonZeroECI() {
			if i < 0 || i >= len(proto.Corr) {
				return configErrorf("data.measurements", "non-zero ECI index %d out of range", i)
			}
			if err := set.addComponent(PropCorr, i, m.Precision, confidence, vec); err != nil {
				return err
			}
		}
		return nil
	}

	q, err := ParseQuery(m.Quantity)
	if err != nil {
		return &ConfigError{Field: "data.measurements", Reason: err.Error()}
	}
	if q.IsBool() {
		return configErrorf("data.measurements", "%q is a predicate; measurements must be numeric", m.Quantity)
	}
	if _, err := q.Float(proto); err != nil {
		return &ConfigError{Field: "data.measurements", Reason: err.Error()}
	}
	return set.add(m.Quantity, m.Precision, confidence, q.Float)
}

func (set *SamplerSet) addComponent(prop string, i int, precision *float64, confidence float64,
	vec func(p *PropertySnapshot) []float64) error {
	return set.add(fmt.Sprintf("%s(%d)", prop, i), precision, confidence, func(p *PropertySnapshot) (float64, error) {
		v := vec(p)
		if i >= len(v) {
			return 0, fmt.Errorf("%s(%d) out of range, property has %d components", prop, i, len(v))
		}
		return v[i], nil
	})
}

func (set *SamplerSet) add(name string, precision *float64, confidence float64, observe func(p *PropertySnapshot) (float64, error)) error {
	if _, dup := set.index[name]; dup {
		return configErrorf("data.measurements", "%s requested more than once", name)
	}
	var s *Sampler
	var err error
	if precision != nil {
		s, err = NewSamplerWithPrecision(name, confidence, *precision)
	} else {
		s, err = NewSampler(name, confidence)
	}
	if err != nil {
		return err
	}
	set.index[name] = len(set.props)
	set.props = append(set.props, sampledProperty{sampler: s, observe: observe})
	return nil
}

// Sample pushes one observation of every property of p. When any property
// cannot be observed nothing is pushed.
func (set *SamplerSet) Sample(p *PropertySnapshot, t SampleTime) error {
	if cap(set.buf) < len(set.props) {
		set.buf = make([]float64, len(set.props))
	}
	vals := set.buf[:len(set.props)]
	for i, sp := range set.props {
		v, err := sp.observe(p)
		if err != nil {
			return fmt.Errorf("sampling %s: %w", sp.sampler.Name(), err)
		}
		vals[i] = v
	}
	for i, sp := range set.props {
		sp.sampler.Push(vals[i])
	}
	set.times = append(set.times, t)
	return nil
}

// Len is the number of samples taken.
func (set *SamplerSet) Len() int { return len(set.times) }

// Times returns the pass and step of every sample.
func (set *SamplerSet) Times() []SampleTime { return append([]SampleTime(nil), set.times...) }

// Names returns the sampler names in insertion order.
func (set *SamplerSet) Names() []string {
	names := make([]string, len(set.props))
	for i, sp := range set.props {
		names[i] = sp.sampler.Name()
	}
	return names
}

// Get returns the sampler for name.
func (set *SamplerSet) Get(name string) (*Sampler, bool) {
	i, ok := set.index[name]
	if !ok {
		return nil, false
	}
	return set.props[i].sampler, true
}

// Samplers returns all samplers in insertion order.
func (set *SamplerSet) Samplers() []*Sampler {
	out := make([]*Sampler, len(set.props))
	for i, sp := range set.props {
		out[i] = sp.sampler
	}
	return out
}

// Tracked returns the samplers with a precision target.
func (set *SamplerSet) Tracked() []*Sampler {
	var out []*Sampler
	for _, sp := range set.props {
		if _, ok := sp.sampler.RequestedPrecision(); ok {
			out = append(out, sp.sampler)
		}
	}
	return out
}

// Clear drops every observation.
func (set *SamplerSet) Clear() {
	for _, sp := range set.props {
		sp.sampler.Clear()
	}
	set.times = set.times[:0]
}
