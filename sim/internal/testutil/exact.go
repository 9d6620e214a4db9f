// Package testutil provides shared test infrastructure for the Monte Carlo
// engine: exact ensemble averages of small systems and float assertions,
// used by the test packages of sim/ sub-packages.
package testutil

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/floats"

	"github.com/lattice-mc/lattice-mc/sim"
)

// maxExactConfigurations bounds brute-force enumeration.
const maxExactConfigurations = 1 << 20

// ExactAverages are grand-canonical ensemble averages per unit cell.
type ExactAverages struct {
	FormationEnergy float64
	PotentialEnergy float64
	Comp            []float64
	// GroundState is the occupation with the lowest potential energy.
	GroundState []int
}

// ExactGrandCanonical enumerates every occupation of model and returns the
// Boltzmann-weighted averages at cond. Only usable for small supercells.
func ExactGrandCanonical(t *testing.T, model sim.EnergyModel, conv *sim.CompositionConverter, cond sim.Conditions) ExactAverages {
	t.Helper()

	n := model.NumSites()
	total := 1
	for site := 0; site < n; site++ {
		total *= len(model.AllowedOccupants(site))
		if total > maxExactConfigurations {
			t.Fatalf("%d sites are too many to enumerate", n)
		}
	}
	volume := float64(model.Volume())

	type state struct {
		occ         []int
		energy, phi float64
		comp        []float64
	}
	states := make([]state, 0, total)
	occ := make([]int, n)
	minPhi := math.Inf(1)
	var best []int
	for {
		p, err := model.Evaluate(occ)
		if err != nil {
			t.Fatalf("evaluating %v: %v", occ, err)
		}
		compN := append([]float64(nil), p.CompN...)
		floats.Scale(1/volume, compN)
		comp := conv.ParamComposition(compN)
		e := p.FormationEnergy / volume
		phi := e - floats.Dot(cond.ParamChemPot, comp)
		states = append(states, state{occ: append([]int(nil), occ...), energy: e, phi: phi, comp: comp})
		if phi < minPhi {
			minPhi = phi
			best = append([]int(nil), occ...)
		}
		if !nextOccupation(model, occ) {
			break
		}
	}

	beta := cond.Beta()
	avg := ExactAverages{Comp: make([]float64, conv.NumAxes()), GroundState: best}
	var z float64
	for _, s := range states {
		w := 1.0
		if math.IsInf(beta, 1) {
			if s.phi > minPhi {
				w = 0
			}
		} else {
			w = math.Exp(-beta * volume * (s.phi - minPhi))
		}
		z += w
		avg.FormationEnergy += w * s.energy
		avg.PotentialEnergy += w * s.phi
		floats.AddScaled(avg.Comp, w, s.comp)
	}
	avg.FormationEnergy /= z
	avg.PotentialEnergy /= z
	floats.Scale(1/z, avg.Comp)
	return avg
}

// nextOccupation advances occ like an odometer; false after the last one.
func nextOccupation(model sim.EnergyModel, occ []int) bool {
	for site := range occ {
		occ[site]++
		if occ[site] < len(model.AllowedOccupants(site)) {
			return true
		}
		occ[site] = 0
	}
	return false
}

// AssertFloat64Equal compares two float64 values with relative tolerance.
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	if want == 0 && got == 0 {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}
