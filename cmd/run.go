package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/lattice-mc/lattice-mc/sim"
	"github.com/lattice-mc/lattice-mc/sim/catalog"
	_ "github.com/lattice-mc/lattice-mc/sim/clex"
	"github.com/lattice-mc/lattice-mc/sim/output"
	"github.com/lattice-mc/lattice-mc/sim/telemetry"
	"github.com/lattice-mc/lattice-mc/sim/trace"
)

// RunOptions are the CLI-only knobs of a run.
type RunOptions struct {
	Parallel   int
	Registerer prometheus.Registerer // nil disables metric export
	// TraceOut receives the decision trace summary when tracing is enabled.
	TraceOut io.Writer
}

// Run builds the model, catalog, output writer, telemetry and trace from
// settings and executes every conditions segment.
func Run(ctx context.Context, settings *sim.Settings, opts RunOptions) ([]sim.SegmentResult, error) {
	runID := uuid.NewString()
	log := logrus.WithField("run", runID)

	model, err := sim.NewEnergyModel(settings.Model)
	if err != nil {
		return nil, err
	}
	conv, err := sim.NewCompositionConverter(settings.CompositionAxes)
	if err != nil {
		return nil, err
	}
	cfg, err := settings.DriverConfig(conv)
	if err != nil {
		return nil, err
	}
	cfg.Parallel = opts.Parallel
	log.Infof("%d conditions, %d sites, composition axes %v", len(cfg.Conditions), model.NumSites(), conv)

	driverOpts := []sim.DriverOption{sim.WithObserver(telemetry.NewChainCollector(opts.Registerer))}

	if settings.Enumeration != nil {
		store, err := catalog.NewStore(settings.Catalog.Backend, settings.Catalog.Path)
		if err != nil {
			return nil, err
		}
		if err := store.Init(ctx); err != nil {
			return nil, fmt.Errorf("opening %s catalog: %w", settings.Catalog.Backend, err)
		}
		defer func() {
			if err := catalog.CloseIfSupported(store); err != nil {
				log.Warnf("closing catalog: %v", err)
			}
		}()
		driverOpts = append(driverOpts, sim.WithCatalog(store))
	}

	if settings.Data.Storage.OutputDirectory != "" {
		w, err := output.NewWriter(settings.Data.Storage, model)
		if err != nil {
			return nil, err
		}
		driverOpts = append(driverOpts, sim.WithRecorder(w))
	}

	var st *trace.SimulationTrace
	if settings.Trace.Level != "" && settings.Trace.Level != string(trace.TraceLevelNone) {
		st = trace.NewSimulationTrace(trace.TraceConfig{Level: trace.TraceLevel(settings.Trace.Level)})
		driverOpts = append(driverOpts, sim.WithTrace(st))
	}

	d, err := sim.NewDriver(model, conv, cfg, driverOpts...)
	if err != nil {
		return nil, err
	}
	results, err := d.Run(ctx)
	if err != nil {
		return results, err
	}
	if st != nil && opts.TraceOut != nil {
		printTraceSummary(opts.TraceOut, trace.Summarize(st))
	}
	return results, nil
}

func printTraceSummary(w io.Writer, s *trace.TraceSummary) {
	fmt.Fprintln(w, "=== Decision Trace ===")
	fmt.Fprintf(w, "Completion Checks : %d (%d complete, %d equilibrated, %d converged)\n",
		s.TotalChecks, s.CompleteChecks, s.EquilibratedCount, s.ConvergedCount)
	fmt.Fprintf(w, "Hall-of-Fame Offers: %d (%d successful)\n", s.TotalInserts, s.SuccessfulInserts)
	if s.SuccessfulInserts > 0 {
		fmt.Fprintf(w, "Best Score        : %.8g\n", s.BestScore)
	}
}
