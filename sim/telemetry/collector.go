// Package telemetry exports Monte Carlo chain counters as Prometheus metrics.
package telemetry

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/lattice-mc/lattice-mc/sim"
)

const namespace = "lattice_mc"

// ChainCollector is a sim.ChainObserver backed by Prometheus collectors.
// Counters aggregate over every chain of a run. Safe for concurrent use.
type ChainCollector struct {
	steps   *prometheus.CounterVec
	passes  prometheus.Counter
	inserts *prometheus.CounterVec

	nSteps, nAccepted atomic.Int64
}

var _ sim.ChainObserver = (*ChainCollector)(nil)

// NewChainCollector creates the collectors and registers them on reg. With
// a nil reg the collectors still count but are not exported.
func NewChainCollector(reg prometheus.Registerer) *ChainCollector {
	factory := promauto.With(reg)
	c := &ChainCollector{
		steps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "steps_total",
			Help:      "Proposed events by Metropolis outcome",
		}, []string{"result"}),
		passes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "passes_total",
			Help:      "Completed passes during data collection",
		}),
		inserts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "halloffame",
			Name:      "offers_total",
			Help:      "Hall-of-fame insertion attempts by outcome",
		}, []string{"outcome"}),
	}
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "chain",
		Name:      "acceptance_ratio",
		Help:      "Accepted over proposed events since start",
	}, c.AcceptanceRatio)
	return c
}

func (c *ChainCollector) ObserveStep(accepted bool) {
	c.nSteps.Add(1)
	if accepted {
		c.nAccepted.Add(1)
		c.steps.WithLabelValues("accepted").Inc()
		return
	}
	c.steps.WithLabelValues("rejected").Inc()
}

func (c *ChainCollector) ObservePass() { c.passes.Inc() }

func (c *ChainCollector) ObserveInsert(res sim.InsertResult) {
	c.inserts.WithLabelValues(string(res.Outcome)).Inc()
}

// AcceptanceRatio is accepted over proposed events; 0 before the first step.
func (c *ChainCollector) AcceptanceRatio() float64 {
	n := c.nSteps.Load()
	if n == 0 {
		return 0
	}
	return float64(c.nAccepted.Load()) / float64(n)
}
