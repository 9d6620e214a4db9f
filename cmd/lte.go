package cmd

import (
	"fmt"
	"io"

	"github.com/lattice-mc/lattice-mc/sim"
)

// LTEPoint is the low-temperature expansion at one conditions point.
type LTEPoint struct {
	Conditions      sim.Conditions
	PotentialEnergy float64 // phi0 of the motif, per unit cell
	FreeEnergy      float64 // phi_LTE, per unit cell
}

// LTE evaluates the single-flip low-temperature expansion around the initial
// motif at every conditions point of settings. The motif is not relaxed.
func LTE(settings *sim.Settings) ([]LTEPoint, error) {
	model, err := sim.NewEnergyModel(settings.Model)
	if err != nil {
		return nil, err
	}
	conv, err := sim.NewCompositionConverter(settings.CompositionAxes)
	if err != nil {
		return nil, err
	}
	conds, err := settings.Driver.ConditionsList(conv.NumAxes())
	if err != nil {
		return nil, err
	}
	occ, err := settings.Driver.Motif.InitialOccupation(model)
	if err != nil {
		return nil, err
	}
	exch, err := sim.NewSiteExchanger(model)
	if err != nil {
		return nil, err
	}
	rng := sim.NewPartitionedRNG(settings.Seed).ForSubsystem(sim.SubsystemLTE)

	points := make([]LTEPoint, 0, len(conds))
	for i, cond := range conds {
		gc, err := sim.NewGrandCanonical(model, conv, exch, cond, occ, rng)
		if err != nil {
			return nil, fmt.Errorf("conditions %d: %w", i, err)
		}
		phi, err := gc.LTEGrandCanonicalFreeEnergy()
		if err != nil {
			return nil, fmt.Errorf("conditions %d: %w", i, err)
		}
		points = append(points, LTEPoint{Conditions: cond, PotentialEnergy: gc.PotentialEnergy(), FreeEnergy: phi})
	}
	return points, nil
}

// PrintLTE writes one line per conditions point.
func PrintLTE(w io.Writer, points []LTEPoint) {
	fmt.Fprintln(w, "=== Low Temperature Expansion ===")
	fmt.Fprintf(w, "%-6s %-40s %16s %16s\n", "index", "conditions", "phi0", "phi_LTE")
	for i, p := range points {
		fmt.Fprintf(w, "%-6d %-40s %16.8g %16.8g\n", i, p.Conditions.String(), p.PotentialEnergy, p.FreeEnergy)
	}
}
