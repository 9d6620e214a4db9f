package sim

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
)

// PropertySnapshot holds per-unit-cell property values of one configuration.
// Slices are copies and may be retained.
type PropertySnapshot struct {
	FormationEnergy float64   `json:"formation_energy"`
	PotentialEnergy float64   `json:"potential_energy"`
	Corr            []float64 `json:"corr"`
	CompN           []float64 `json:"comp_n"`
	Comp            []float64 `json:"comp"`
	Eta             []float64 `json:"order_parameter,omitempty"`
}

// GrandCanonical is one Markov chain in the grand-canonical ensemble. It owns
// the occupation and the cached per-unit-cell property totals, which are
// updated incrementally on every accepted event.
//
// Thread-safety: NOT thread-safe. A GrandCanonical and its RNG belong to a
// single goroutine.
type GrandCanonical struct {
	model EnergyModel
	conv  *CompositionConverter
	exch  *SiteExchanger
	rng   *rand.Rand
	cond  Conditions
	beta  float64

	occ    []int
	volume float64

	formationEnergy float64
	potentialEnergy float64
	corr            []float64
	compN           []float64
	comp            []float64
	eta             []float64

	event Event
}

// NewGrandCanonical validates cond against the composition axes and
// initializes the property caches from a full evaluation of occ.
func NewGrandCanonical(model EnergyModel, conv *CompositionConverter, exch *SiteExchanger,
	cond Conditions, occ []int, rng *rand.Rand) (*GrandCanonical, error) {
	if err := conv.CheckModel(model); err != nil {
		return nil, err
	}
	if model.Volume() <= 0 {
		return nil, configErrorf("model", "supercell volume must be positive, got %d", model.Volume())
	}
	if len(occ) != model.NumSites() {
		return nil, configErrorf("occupation", "has %d sites, supercell has %d", len(occ), model.NumSites())
	}
	gc := &GrandCanonical{
		model:  model,
		conv:   conv,
		exch:   exch,
		rng:    rng,
		occ:    append([]int(nil), occ...),
		volume: float64(model.Volume()),
	}
	if err := gc.SetConditions(cond); err != nil {
		return nil, err
	}
	return gc, nil
}

// SetConditions replaces the conditions and recomputes all caches.
// Statistics collected under the old conditions are no longer valid.
func (gc *GrandCanonical) SetConditions(cond Conditions) error {
	if err := cond.Validate(gc.conv.NumAxes()); err != nil {
		return err
	}
	gc.cond = NewConditions(cond.Temperature, cond.ParamChemPot, cond.Tolerance)
	gc.beta = gc.cond.Beta()
	return gc.Recompute()
}

// SetOccupation replaces the occupation and recomputes all caches.
func (gc *GrandCanonical) SetOccupation(occ []int) error {
	if len(occ) != len(gc.occ) {
		return configErrorf("occupation", "has %d sites, supercell has %d", len(occ), len(gc.occ))
	}
	copy(gc.occ, occ)
	return gc.Recompute()
}

// Recompute evaluates the current occupation from scratch and overwrites
// every cached property.
func (gc *GrandCanonical) Recompute() error {
	p, err := gc.model.Evaluate(gc.occ)
	if err != nil {
		return fmt.Errorf("evaluating configuration: %w", err)
	}
	if len(p.CompN) != gc.conv.NumSpecies() {
		return fmt.Errorf("evaluating configuration: model returned %d species counts, want %d", len(p.CompN), gc.conv.NumSpecies())
	}
	inv := 1.0 / gc.volume
	gc.formationEnergy = p.FormationEnergy * inv
	gc.corr = scaled(p.Corr, inv)
	gc.compN = scaled(p.CompN, inv)
	gc.eta = nil
	if p.Eta != nil {
		gc.eta = scaled(p.Eta, inv)
	}
	gc.comp = gc.conv.ParamComposition(gc.compN)
	gc.potentialEnergy = gc.formationEnergy - floats.Dot(gc.cond.ParamChemPot, gc.comp)
	return nil
}

func scaled(v []float64, k float64) []float64 {
	out := append([]float64(nil), v...)
	floats.Scale(k, out)
	return out
}

// StepsPerPass is the number of variable sites; one pass is that many steps.
func (gc *GrandCanonical) StepsPerPass() int { return gc.exch.VariableSites() }

// Conditions returns the current conditions.
func (gc *GrandCanonical) Conditions() Conditions { return gc.cond }

// Model returns the energy model.
func (gc *GrandCanonical) Model() EnergyModel { return gc.model }

// Converter returns the composition converter.
func (gc *GrandCanonical) Converter() *CompositionConverter { return gc.conv }

// Occupation returns a copy of the current occupation.
func (gc *GrandCanonical) Occupation() []int { return append([]int(nil), gc.occ...) }

// Configuration returns a copy of the current configuration.
func (gc *GrandCanonical) Configuration() Configuration { return NewConfiguration(gc.occ) }

// PotentialEnergy returns the cached per-unit-cell grand-canonical potential energy.
func (gc *GrandCanonical) PotentialEnergy() float64 { return gc.potentialEnergy }

// FormationEnergy returns the cached per-unit-cell formation energy.
func (gc *GrandCanonical) FormationEnergy() float64 { return gc.formationEnergy }

// Snapshot copies the cached per-unit-cell properties.
func (gc *GrandCanonical) Snapshot() PropertySnapshot {
	return PropertySnapshot{
		FormationEnergy: gc.formationEnergy,
		PotentialEnergy: gc.potentialEnergy,
		Corr:            append([]float64(nil), gc.corr...),
		CompN:           append([]float64(nil), gc.compN...),
		Comp:            append([]float64(nil), gc.comp...),
		Eta:             cloneOrNil(gc.eta),
	}
}

// Propose draws a site and a new occupant and evaluates the resulting
// property changes. The state is not modified. The returned Event is reused
// by the next call to Propose.
func (gc *GrandCanonical) Propose() (*Event, error) {
	site, cand := gc.exch.Draw(gc.rng, gc.occ)
	if err := gc.evaluateEvent(&gc.event, site, cand); err != nil {
		return nil, err
	}
	return &gc.event, nil
}

func (gc *GrandCanonical) evaluateEvent(e *Event, site, cand int) error {
	cur := gc.occ[site]
	d, err := gc.model.EvaluateDelta(gc.occ, site, cand)
	if err == nil {
		err = gc.checkDeltaShape(d)
	}
	if err != nil {
		return &ModelEvaluationError{Site: site, CurrentOccupant: cur, CandidateOccupant: cand, Err: err}
	}
	dComp := gc.conv.DParamComposition(d.CompN)
	e.fill(site, cur, cand, d, dComp, gc.cond.ParamChemPot)
	return nil
}

func (gc *GrandCanonical) checkDeltaShape(d Properties) error {
	switch {
	case len(d.Corr) != len(gc.corr):
		return fmt.Errorf("correlation delta has %d components, want %d", len(d.Corr), len(gc.corr))
	case len(d.CompN) != len(gc.compN):
		return fmt.Errorf("composition delta has %d components, want %d", len(d.CompN), len(gc.compN))
	case len(d.Eta) != len(gc.eta):
		return fmt.Errorf("order parameter delta has %d components, want %d", len(d.Eta), len(gc.eta))
	case math.IsNaN(d.FormationEnergy):
		return errors.New("formation energy delta is NaN")
	}
	return nil
}

// Check applies the Metropolis rule to e. Downhill and flat moves are always
// accepted; at T <= 0 uphill moves are always rejected. Otherwise one uniform
// draw is compared against exp(-beta * dPhi).
func (gc *GrandCanonical) Check(e *Event) bool {
	if e.DPotentialEnergy <= 0 {
		return true
	}
	if gc.cond.Temperature <= 0 {
		return false
	}
	return gc.rng.Float64() < math.Exp(-gc.beta*e.DPotentialEnergy)
}

// Accept commits e: the occupant changes and every cached total is updated
// by the event's deltas.
func (gc *GrandCanonical) Accept(e *Event) {
	inv := 1.0 / gc.volume
	gc.occ[e.Site] = e.CandidateOccupant
	gc.formationEnergy += e.DFormationEnergy * inv
	gc.potentialEnergy += e.DPotentialEnergy * inv
	floats.AddScaled(gc.corr, inv, e.DCorr)
	floats.AddScaled(gc.compN, inv, e.DCompN)
	floats.AddScaled(gc.comp, inv, e.DComp)
	if gc.eta != nil {
		floats.AddScaled(gc.eta, inv, e.DEta)
	}
}

// Reject discards e. The state is unchanged.
func (gc *GrandCanonical) Reject(e *Event) {}

// CheckConsistency compares the incrementally maintained caches with a full
// evaluation of the current occupation.
func (gc *GrandCanonical) CheckConsistency(tol float64) error {
	inc := gc.Snapshot()
	if err := gc.Recompute(); err != nil {
		return err
	}
	full := gc.Snapshot()
	if math.Abs(inc.FormationEnergy-full.FormationEnergy) > tol {
		return fmt.Errorf("formation_energy drifted: incremental %g, full %g", inc.FormationEnergy, full.FormationEnergy)
	}
	if math.Abs(inc.PotentialEnergy-full.PotentialEnergy) > tol {
		return fmt.Errorf("potential_energy drifted: incremental %g, full %g", inc.PotentialEnergy, full.PotentialEnergy)
	}
	for name, pair := range map[string][2][]float64{
		"corr":            {inc.Corr, full.Corr},
		"comp_n":          {inc.CompN, full.CompN},
		"comp":            {inc.Comp, full.Comp},
		"order_parameter": {inc.Eta, full.Eta},
	} {
		if !floats.EqualApprox(pair[0], pair[1], tol) {
			return fmt.Errorf("%s drifted: incremental %v, full %v", name, pair[0], pair[1])
		}
	}
	return nil
}

// LTEGrandCanonicalFreeEnergy returns the single-spin-flip low temperature
// expansion of the grand-canonical free energy per unit cell around the
// current configuration:
//
//	phi = phi0 - 1/(beta*V) * sum over single flips of exp(-beta*dPhi)
//
// A warning is logged when some flip lowers the potential energy, since the
// current configuration is then not a ground state. At T <= 0 phi0 is returned.
func (gc *GrandCanonical) LTEGrandCanonicalFreeEnergy() (float64, error) {
	phi0 := gc.potentialEnergy
	if gc.cond.Temperature <= 0 {
		return phi0, nil
	}
	var sum float64
	lower := 0
	var e Event
	for _, site := range gc.exch.variable {
		for cand := 0; cand < gc.exch.NumAllowed(site); cand++ {
			if cand == gc.occ[site] {
				continue
			}
			if err := gc.evaluateEvent(&e, site, cand); err != nil {
				return 0, err
			}
			if e.DPotentialEnergy < 0 {
				lower++
			}
			sum += math.Exp(-gc.beta * e.DPotentialEnergy)
		}
	}
	if lower > 0 {
		logrus.Warnf("LTE: %d single-site flips lower the potential energy; configuration is not a ground state at %v", lower, gc.cond)
	}
	return phi0 - sum/(gc.beta*gc.volume), nil
}
