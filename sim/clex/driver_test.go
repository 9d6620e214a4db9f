package clex_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattice-mc/lattice-mc/sim"
	"github.com/lattice-mc/lattice-mc/sim/clex"
	"github.com/lattice-mc/lattice-mc/sim/internal/testutil"
)

func int64Ptr(v int64) *int64 { return &v }
func float64Ptr(v float64) *float64 { return &v }

// pointModel has independent sites: B costs eps per site and nothing else.
func pointModel(t *testing.T, eps float64) (*clex.Model, *sim.CompositionConverter) {
	t.Helper()
	m, err := clex.NewModel(clex.Params{
		Lattice: clex.LatticeChain,
		Size:    []int{2},
		Species: []string{"A", "B"},
		Shells:  1,
		ECI:     []float64{0, eps, 0},
	})
	require.NoError(t, err)
	conv, err := sim.NewCompositionConverter(sim.CompositionAxesSettings{
		Origin:     []float64{1, 0},
		EndMembers: [][]float64{{0, 1}},
	})
	require.NoError(t, err)
	return m, conv
}

func pointModelConfig(conds ...sim.Conditions) sim.DriverConfig {
	return sim.DriverConfig{
		Conditions:    conds,
		DependentRuns: true,
		Sampling: sim.SamplingConfig{
			Measurements: []sim.MeasurementSettings{
				{Quantity: sim.PropFormationEnergy, Precision: float64Ptr(0.01)},
			},
		}.WithDefaults(),
		Completion: sim.CompletionCheckParams{
			Cutoff: sim.CutoffParams{MinSample: int64Ptr(1000), MaxCount: int64Ptr(10000)},
		}.WithDefaults(),
		Seed: 42,
	}
}

func formationEnergy(t *testing.T, res sim.SegmentResult) sim.SegmentSummary {
	t.Helper()
	for _, p := range res.Properties {
		if p.Name == sim.PropFormationEnergy {
			return p
		}
	}
	t.Fatalf("no formation_energy summary in %+v", res.Properties)
	return sim.SegmentSummary{}
}

func TestDriver_IndependentSitesMatchBoltzmann(t *testing.T) {
	// GIVEN two independent sites where B costs 0.1 eV, at 500 K and mu = 0
	eps := 0.1
	m, conv := pointModel(t, eps)
	cfg := pointModelConfig(sim.NewConditions(500, []float64{0}, 1e-6))
	d, err := sim.NewDriver(m, conv, cfg)
	require.NoError(t, err)

	// WHEN the segment runs to completion
	results, err := d.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	res := results[0]

	// THEN the minimum sample count is honored and no maximum is exceeded
	assert.GreaterOrEqual(t, res.NSamples, 1000)
	assert.LessOrEqual(t, res.NPasses, int64(10000))
	assert.True(t, res.Completion.IsComplete)

	// AND the mean formation energy per site follows the Boltzmann weight of B
	boltz := math.Exp(-eps / (sim.KB * 500))
	want := eps * boltz / (1 + boltz)
	fe := formationEnergy(t, res)
	assert.InDelta(t, want, fe.Mean, 0.02)
}

func TestDriver_SameSeedSameResults(t *testing.T) {
	m, conv := pointModel(t, 0.1)
	cfg := pointModelConfig(
		sim.NewConditions(500, []float64{0}, 1e-6),
		sim.NewConditions(800, []float64{0}, 1e-6),
	)
	run := func() []sim.SegmentResult {
		d, err := sim.NewDriver(m, conv, cfg)
		require.NoError(t, err)
		results, err := d.Run(context.Background())
		require.NoError(t, err)
		return results
	}
	assert.Equal(t, run(), run())
}

func TestDriver_IndependentRunsDoNotDependOnParallelism(t *testing.T) {
	m, conv := pointModel(t, 0.1)
	cfg := pointModelConfig(
		sim.NewConditions(300, []float64{0}, 1e-6),
		sim.NewConditions(600, []float64{0}, 1e-6),
		sim.NewConditions(900, []float64{0}, 1e-6),
	)
	cfg.DependentRuns = false
	run := func(parallel int) []sim.SegmentResult {
		c := cfg
		c.Parallel = parallel
		d, err := sim.NewDriver(m, conv, c)
		require.NoError(t, err)
		results, err := d.Run(context.Background())
		require.NoError(t, err)
		return results
	}
	assert.Equal(t, run(1), run(3))
}

func TestDriver_CancelledContextStopsRun(t *testing.T) {
	m, conv := pointModel(t, 0.1)
	d, err := sim.NewDriver(m, conv, pointModelConfig(sim.NewConditions(500, []float64{0}, 1e-6)))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = d.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDriver_ZeroTemperatureReachesGroundState(t *testing.T) {
	// GIVEN B is favored by its chemical potential at T = 0
	m, conv := pointModel(t, 0.1)
	cfg := pointModelConfig(sim.NewConditions(0, []float64{0.5}, 1e-6))
	cfg.Sampling.Measurements = nil
	cfg.Completion.Cutoff = sim.CutoffParams{MaxCount: int64Ptr(50)}
	d, err := sim.NewDriver(m, conv, cfg)
	require.NoError(t, err)

	results, err := d.Run(context.Background())
	require.NoError(t, err)

	// THEN every site holds B and the run stopped at the maximum
	assert.Equal(t, []int{1, 1}, results[0].FinalOccupation)
	assert.Equal(t, int64(50), results[0].NPasses)
}

func TestDriver_LTEFreeEnergyReported(t *testing.T) {
	m, conv := pointModel(t, 0.1)
	cfg := pointModelConfig(sim.NewConditions(300, []float64{0}, 1e-6))
	cfg.LTE = true
	d, err := sim.NewDriver(m, conv, cfg)
	require.NoError(t, err)

	results, err := d.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, results[0].LTEFreeEnergy)
	// below the ground-state potential energy of zero
	assert.Less(t, *results[0].LTEFreeEnergy, 0.0)
}

func TestDriver_InteractingChainMatchesExactEnumeration(t *testing.T) {
	// GIVEN a six-site chain with a nearest-neighbor interaction, small
	// enough to enumerate all 64 configurations
	m, err := clex.NewModel(clex.Params{
		Lattice: clex.LatticeChain,
		Size:    []int{6},
		Species: []string{"A", "B"},
		Shells:  1,
		ECI:     []float64{0, 0.02, -0.03},
	})
	require.NoError(t, err)
	_, conv := pointModel(t, 0)
	cond := sim.NewConditions(300, []float64{0.01}, 1e-6)
	exact := testutil.ExactGrandCanonical(t, m, conv, cond)

	// WHEN sampled until both properties converge
	cfg := pointModelConfig(cond)
	cfg.Sampling.Measurements = []sim.MeasurementSettings{
		{Quantity: sim.PropFormationEnergy, Precision: float64Ptr(0.002)},
		{Quantity: sim.PropComp, Precision: float64Ptr(0.01)},
	}
	cfg.Completion.Cutoff = sim.CutoffParams{MinSample: int64Ptr(2000), MaxCount: int64Ptr(100000)}
	d, err := sim.NewDriver(m, conv, cfg)
	require.NoError(t, err)
	results, err := d.Run(context.Background())
	require.NoError(t, err)

	// THEN the Monte Carlo averages agree with the exact ensemble averages
	require.Len(t, results, 1)
	fe := formationEnergy(t, results[0])
	assert.InDelta(t, exact.FormationEnergy, fe.Mean, 0.006)
	for _, p := range results[0].Properties {
		if p.Name == "comp(0)" {
			assert.InDelta(t, exact.Comp[0], p.Mean, 0.03)
		}
	}
}

func TestExactGrandCanonical_ZeroTemperatureGroundState(t *testing.T) {
	// an attractive B-B bond with a favorable chemical potential fills the chain
	m, err := clex.NewModel(clex.Params{
		Lattice: clex.LatticeChain,
		Size:    []int{4},
		Species: []string{"A", "B"},
		Shells:  1,
		ECI:     []float64{0, 0.1, -0.2},
	})
	require.NoError(t, err)
	_, conv := pointModel(t, 0)
	exact := testutil.ExactGrandCanonical(t, m, conv, sim.NewConditions(0, []float64{0}, 1e-6))
	assert.Equal(t, []int{1, 1, 1, 1}, exact.GroundState)
	testutil.AssertFloat64Equal(t, "formation_energy", -0.1, exact.FormationEnergy, 1e-9)
	testutil.AssertFloat64Equal(t, "comp", 1, exact.Comp[0], 1e-9)
}
