package sim

import (
	"fmt"
	"math"
	"strings"
)

// KB is the Boltzmann constant in eV/K.
const KB = 8.6173303e-05

// Conditions are the grand-canonical control variables of one run segment:
// temperature and one chemical potential per independent composition axis.
// Conditions are immutable within a segment; replacing them invalidates all
// accumulated statistics.
type Conditions struct {
	Temperature  float64   // Kelvin; 0 means deterministic downhill-only acceptance
	ParamChemPot []float64 // one per composition axis, eV per unit cell
	Tolerance    float64   // used when comparing conditions
}

// NewConditions copies mu so the returned Conditions share no state with the caller.
func NewConditions(temperature float64, mu []float64, tolerance float64) Conditions {
	return Conditions{
		Temperature:  temperature,
		ParamChemPot: append([]float64(nil), mu...),
		Tolerance:    tolerance,
	}
}

// Beta returns 1/(kB*T). Returns +Inf when T <= 0.
func (c Conditions) Beta() float64 {
	if c.Temperature <= 0 {
		return math.Inf(1)
	}
	return 1.0 / (KB * c.Temperature)
}

// Validate checks that the conditions match nAxes composition axes and hold
// finite numbers.
func (c Conditions) Validate(nAxes int) error {
	if len(c.ParamChemPot) != nAxes {
		return configErrorf("param_chem_pot", "expected %d chemical potentials (one per composition axis), got %d",
			nAxes, len(c.ParamChemPot))
	}
	if math.IsNaN(c.Temperature) || math.IsInf(c.Temperature, 0) {
		return configErrorf("temperature", "must be finite, got %v", c.Temperature)
	}
	for i, mu := range c.ParamChemPot {
		if math.IsNaN(mu) || math.IsInf(mu, 0) {
			return configErrorf("param_chem_pot", "component %d must be finite, got %v", i, mu)
		}
	}
	if c.Tolerance < 0 {
		return configErrorf("tolerance", "must be non-negative, got %v", c.Tolerance)
	}
	return nil
}

// Equal compares temperature and chemical potentials within c.Tolerance.
func (c Conditions) Equal(other Conditions) bool {
	if len(c.ParamChemPot) != len(other.ParamChemPot) {
		return false
	}
	if math.Abs(c.Temperature-other.Temperature) > c.Tolerance {
		return false
	}
	for i := range c.ParamChemPot {
		if math.Abs(c.ParamChemPot[i]-other.ParamChemPot[i]) > c.Tolerance {
			return false
		}
	}
	return true
}

func (c Conditions) add(incr Conditions, k float64) Conditions {
	mu := make([]float64, len(c.ParamChemPot))
	for i := range mu {
		mu[i] = c.ParamChemPot[i] + k*incr.ParamChemPot[i]
	}
	return Conditions{
		Temperature:  c.Temperature + k*incr.Temperature,
		ParamChemPot: mu,
		Tolerance:    c.Tolerance,
	}
}

func (c Conditions) String() string {
	mu := make([]string, len(c.ParamChemPot))
	for i, v := range c.ParamChemPot {
		mu[i] = fmt.Sprintf("%s=%g", AxisName(i), v)
	}
	return fmt.Sprintf("T=%g mu={%s}", c.Temperature, strings.Join(mu, ", "))
}

// AxisName returns the conventional name of composition axis i: "a", "b", ...
func AxisName(i int) string {
	if i < 26 {
		return string(rune('a' + i))
	}
	return fmt.Sprintf("axis%d", i)
}

// IncrementalConditions expands initial/final/incremental conditions into the
// inclusive list initial, initial+incr, ..., final. Every component with a
// non-zero increment must reach final after the same number of increments.
func IncrementalConditions(initial, final, incr Conditions) ([]Conditions, error) {
	n := len(initial.ParamChemPot)
	if len(final.ParamChemPot) != n || len(incr.ParamChemPot) != n {
		return nil, configErrorf("driver", "initial, final and incremental conditions must have the same number of chemical potentials")
	}
	tol := initial.Tolerance
	if tol <= 0 {
		tol = 1e-8
	}

	initVals := append([]float64{initial.Temperature}, initial.ParamChemPot...)
	finalVals := append([]float64{final.Temperature}, final.ParamChemPot...)
	incrVals := append([]float64{incr.Temperature}, incr.ParamChemPot...)

	steps := -1
	for i := range initVals {
		span := finalVals[i] - initVals[i]
		if math.Abs(incrVals[i]) <= tol {
			if math.Abs(span) > tol {
				return nil, configErrorf("incremental_conditions", "component %d is zero but final differs from initial", i)
			}
			continue
		}
		ratio := span / incrVals[i]
		k := int(math.Round(ratio))
		if k < 0 || math.Abs(ratio-float64(k))*math.Abs(incrVals[i]) > tol {
			return nil, configErrorf("incremental_conditions", "component %d does not step from %g to %g in whole increments of %g",
				i, initVals[i], finalVals[i], incrVals[i])
		}
		if steps >= 0 && k != steps {
			return nil, configErrorf("incremental_conditions", "components reach final conditions after different numbers of increments (%d vs %d)", steps, k)
		}
		steps = k
	}
	if steps < 0 {
		steps = 0
	}

	list := make([]Conditions, 0, steps+1)
	for k := 0; k <= steps; k++ {
		list = append(list, initial.add(incr, float64(k)))
	}
	return list, nil
}
