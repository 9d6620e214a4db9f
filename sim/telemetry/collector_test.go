package telemetry

import (
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattice-mc/lattice-mc/sim"
)

func TestChainCollector_CountsSteps(t *testing.T) {
	// GIVEN a collector on a fresh registry
	reg := prometheus.NewRegistry()
	c := NewChainCollector(reg)

	// WHEN chains report concurrently
	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				c.ObserveStep(i%4 == 0)
			}
			c.ObservePass()
		}()
	}
	wg.Wait()

	// THEN every event is counted once
	assert.Equal(t, 100.0, testutil.ToFloat64(c.steps.WithLabelValues("accepted")))
	assert.Equal(t, 300.0, testutil.ToFloat64(c.steps.WithLabelValues("rejected")))
	assert.Equal(t, 4.0, testutil.ToFloat64(c.passes))
	assert.InDelta(t, 0.25, c.AcceptanceRatio(), 1e-12)

	err := testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP lattice_mc_chain_acceptance_ratio Accepted over proposed events since start
# TYPE lattice_mc_chain_acceptance_ratio gauge
lattice_mc_chain_acceptance_ratio 0.25
`), "lattice_mc_chain_acceptance_ratio")
	assert.NoError(t, err)
}

func TestChainCollector_InsertOutcomes(t *testing.T) {
	c := NewChainCollector(prometheus.NewRegistry())
	c.ObserveInsert(sim.InsertResult{Outcome: sim.OutcomeInserted})
	c.ObserveInsert(sim.InsertResult{Outcome: sim.OutcomeInserted})
	c.ObserveInsert(sim.InsertResult{Outcome: sim.OutcomeExcluded})
	assert.Equal(t, 2.0, testutil.ToFloat64(c.inserts.WithLabelValues("inserted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.inserts.WithLabelValues("excluded")))
}

func TestChainCollector_NilRegistererStillCounts(t *testing.T) {
	c := NewChainCollector(nil)
	assert.Equal(t, 0.0, c.AcceptanceRatio())
	c.ObserveStep(true)
	assert.Equal(t, 1.0, c.AcceptanceRatio())
}

func TestChainCollector_RegistersOncePerRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewChainCollector(reg)
	assert.Panics(t, func() { NewChainCollector(reg) })

	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	// steps has no series until the first step; passes and the gauge do
	assert.Equal(t, 2, n)
}
