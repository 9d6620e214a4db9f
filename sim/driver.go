package sim

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/lattice-mc/lattice-mc/sim/trace"
)

// DriverConfig is the immutable configuration of a run.
type DriverConfig struct {
	Conditions                  []Conditions
	DependentRuns               bool
	Motif                       MotifSettings
	EquilibrationPassesFirstRun int
	EquilibrationPassesEachRun  int
	Sampling                    SamplingConfig
	Completion                  CompletionCheckParams
	Enumeration                 *EnumConfig // nil disables enumeration
	LTE                         bool
	Seed                        int64
	// Parallel bounds the number of independent chains run at once; values
	// below 1 mean one chain at a time. Ignored for dependent runs.
	Parallel int
}

// Validate checks the run configuration without consulting the model.
func (c DriverConfig) Validate() error {
	if len(c.Conditions) == 0 {
		return configErrorf("driver", "no conditions to run")
	}
	if c.EquilibrationPassesFirstRun < 0 || c.EquilibrationPassesEachRun < 0 {
		return configErrorf("driver", "equilibration passes must be non-negative")
	}
	if err := c.Sampling.Validate(); err != nil {
		return err
	}
	if err := c.Completion.Validate(); err != nil {
		return err
	}
	if !c.Completion.Cutoff.HasMaximum() && !c.hasPrecisionTarget() {
		return configErrorf("completion", "no maximum cutoff and no measurement precision: the run would never complete")
	}
	// Count and samples are tied by the sample period; a minimum of one that
	// implies more than the maximum of the other can never be satisfied.
	cut, period := c.Completion.Cutoff, int64(c.Sampling.Period)
	if cut.MinSample != nil && cut.MaxCount != nil && *cut.MinSample*period > *cut.MaxCount {
		return configErrorf("completion.min_sample", "%d samples every %d cannot be reached within max_count %d",
			*cut.MinSample, period, *cut.MaxCount)
	}
	if cut.MinCount != nil && cut.MaxSample != nil && *cut.MinCount > *cut.MaxSample*period {
		return configErrorf("completion.min_count", "%d cannot be reached within max_sample %d every %d",
			*cut.MinCount, *cut.MaxSample, period)
	}
	if c.Enumeration != nil {
		if err := c.Enumeration.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c DriverConfig) hasPrecisionTarget() bool {
	for _, m := range c.Sampling.Measurements {
		if m.Precision != nil {
			return true
		}
	}
	return false
}

// SegmentResult is the outcome of one conditions segment.
type SegmentResult struct {
	Index           int               `json:"index"`
	Temperature     float64           `json:"temperature"`
	ParamChemPot    []float64         `json:"param_chem_pot"`
	NPasses         int64             `json:"N_passes"`
	NSteps          int64             `json:"N_steps"`
	NAccepted       int64             `json:"N_accepted"`
	NSamples        int               `json:"N_samples"`
	Completion      CompletionResults `json:"completion_check_results"`
	IsEquilibrated  bool              `json:"is_equilibrated"`
	IsConverged     bool              `json:"is_converged"`
	NEquilSamples   int               `json:"N_equil_samples"`
	NAvgSamples     int               `json:"N_avg_samples"`
	Properties      []SegmentSummary  `json:"properties"`
	LTEFreeEnergy   *float64          `json:"phi_LTE,omitempty"`
	FinalOccupation []int             `json:"final_occupation"`
	HallOfFame      []SaveResult      `json:"hall_of_fame,omitempty"`
}

// SegmentRecorder persists per-segment data. Implementations live in
// sim/output. RecordSegment may be called concurrently for different
// segments of independent runs.
type SegmentRecorder interface {
	// RecordsTrajectory reports whether occupation snapshots are wanted.
	RecordsTrajectory() bool
	RecordSegment(res *SegmentResult, samplers *SamplerSet, trajectory [][]int) error
	Finish(results []SegmentResult) error
}

// ChainObserver receives per-step counters. Implementations must be safe
// for concurrent use by independent chains.
type ChainObserver interface {
	ObserveStep(accepted bool)
	ObservePass()
	ObserveInsert(res InsertResult)
}

// Driver runs the Monte Carlo loop over every conditions segment.
type Driver struct {
	model    EnergyModel
	conv     *CompositionConverter
	exch     *SiteExchanger
	cfg      DriverConfig
	catalog  Catalog
	recorder SegmentRecorder
	observer ChainObserver
	trace    *trace.SimulationTrace

	// saveMu serializes promotion so that independent chains saving the
	// same key agree on which one was new.
	saveMu sync.Mutex
}

// DriverOption configures optional collaborators.
type DriverOption func(*Driver)

// WithCatalog sets the catalog used for existence checks and promotion.
func WithCatalog(c Catalog) DriverOption { return func(d *Driver) { d.catalog = c } }

// WithRecorder sets the segment output writer.
func WithRecorder(r SegmentRecorder) DriverOption { return func(d *Driver) { d.recorder = r } }

// WithObserver sets the per-step telemetry sink.
func WithObserver(o ChainObserver) DriverOption { return func(d *Driver) { d.observer = o } }

// WithTrace records completion checks and hall-of-fame inserts.
func WithTrace(t *trace.SimulationTrace) DriverOption { return func(d *Driver) { d.trace = t } }

// NewDriver validates cfg against the model and composition axes. All
// configuration errors are reported here, before any step is taken.
func NewDriver(model EnergyModel, conv *CompositionConverter, cfg DriverConfig, opts ...DriverOption) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := conv.CheckModel(model); err != nil {
		return nil, err
	}
	for i, c := range cfg.Conditions {
		if err := c.Validate(conv.NumAxes()); err != nil {
			return nil, fmt.Errorf("conditions %d: %w", i, err)
		}
	}
	exch, err := NewSiteExchanger(model)
	if err != nil {
		return nil, err
	}
	d := &Driver{model: model, conv: conv, exch: exch, cfg: cfg}
	for _, opt := range opts {
		opt(d)
	}

	// Build one chain to surface sampler, query and enumeration errors now.
	if _, err := d.newChain(cfg.Conditions[0], rand.New(rand.NewSource(cfg.Seed))); err != nil {
		return nil, err
	}
	return d, nil
}

type chain struct {
	gc       *GrandCanonical
	samplers *SamplerSet
	enum     *MonteCarloEnum
}

func (d *Driver) newChain(cond Conditions, rng *rand.Rand) (*chain, error) {
	occ, err := d.cfg.Motif.InitialOccupation(d.model)
	if err != nil {
		return nil, err
	}
	gc, err := NewGrandCanonical(d.model, d.conv, d.exch, cond, occ, rng)
	if err != nil {
		return nil, err
	}
	proto := gc.Snapshot()
	samplers, err := NewSamplerSet(d.cfg.Sampling, proto, d.model)
	if err != nil {
		return nil, err
	}
	ch := &chain{gc: gc, samplers: samplers}
	if d.cfg.Enumeration != nil {
		ch.enum, err = NewMonteCarloEnum(*d.cfg.Enumeration, d.model, proto, d.catalog)
		if err != nil {
			return nil, err
		}
	}
	return ch, nil
}

// Run executes every segment and returns their results in conditions order.
func (d *Driver) Run(ctx context.Context) ([]SegmentResult, error) {
	var results []SegmentResult
	var err error
	if d.cfg.DependentRuns {
		results, err = d.runDependent(ctx)
	} else {
		results, err = d.runIndependent(ctx)
	}
	if err != nil {
		return results, err
	}
	if d.recorder != nil {
		if err := d.recorder.Finish(results); err != nil {
			return results, fmt.Errorf("writing results: %w", err)
		}
	}
	return results, nil
}

func (d *Driver) runDependent(ctx context.Context) ([]SegmentResult, error) {
	rngs := NewPartitionedRNG(d.cfg.Seed)
	ch, err := d.newChain(d.cfg.Conditions[0], rngs.ForSubsystem(SubsystemChain))
	if err != nil {
		return nil, err
	}
	results := make([]SegmentResult, 0, len(d.cfg.Conditions))
	for i, cond := range d.cfg.Conditions {
		passes := d.cfg.EquilibrationPassesEachRun
		if i == 0 {
			passes = d.cfg.EquilibrationPassesFirstRun
		}
		res, err := d.runSegment(ctx, ch, i, cond, passes)
		if err != nil {
			return results, fmt.Errorf("conditions %d (%v): %w", i, cond, err)
		}
		results = append(results, res)
	}
	return results, nil
}

func (d *Driver) runIndependent(ctx context.Context) ([]SegmentResult, error) {
	rngs := NewPartitionedRNG(d.cfg.Seed)
	chainRNG := make([]*rand.Rand, len(d.cfg.Conditions))
	for i := range chainRNG {
		chainRNG[i] = rngs.ForSubsystem(SubsystemIndependentChain(i))
	}

	results := make([]SegmentResult, len(d.cfg.Conditions))
	g, gctx := errgroup.WithContext(ctx)
	limit := d.cfg.Parallel
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)
	for i, cond := range d.cfg.Conditions {
		g.Go(func() error {
			ch, err := d.newChain(cond, chainRNG[i])
			if err != nil {
				return err
			}
			res, err := d.runSegment(gctx, ch, i, cond, d.cfg.EquilibrationPassesFirstRun)
			if err != nil {
				return fmt.Errorf("conditions %d (%v): %w", i, cond, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// segmentCounters track progress within one segment.
type segmentCounters struct {
	pass, step, accepted int64
	stepsPerPass         int64
}

func (c *segmentCounters) count(sampleBy string) int64 {
	if sampleBy == SampleByStep {
		return c.step
	}
	return c.pass
}

func (c *segmentCounters) time() float64 {
	return float64(c.step) / float64(c.stepsPerPass)
}

func (d *Driver) runSegment(ctx context.Context, ch *chain, index int, cond Conditions, equilPasses int) (SegmentResult, error) {
	gc := ch.gc
	if err := gc.SetConditions(cond); err != nil {
		return SegmentResult{}, err
	}
	logrus.Infof("conditions.%d: %v", index, cond)

	stepsPerPass := int64(gc.StepsPerPass())
	for p := 0; p < equilPasses; p++ {
		if err := ctx.Err(); err != nil {
			return SegmentResult{}, err
		}
		for s := int64(0); s < stepsPerPass; s++ {
			e, err := gc.Propose()
			if err != nil {
				return SegmentResult{}, err
			}
			if gc.Check(e) {
				gc.Accept(e)
			} else {
				gc.Reject(e)
			}
		}
	}
	if equilPasses > 0 {
		logrus.Debugf("conditions.%d: %d equilibration passes done", index, equilPasses)
	}

	ch.samplers.Clear()
	if ch.enum != nil {
		if err := ch.enum.Reset(ctx); err != nil {
			return SegmentResult{}, err
		}
	}

	sampling := d.cfg.Sampling
	params := d.cfg.Completion
	period := int64(sampling.Period)
	recordTraj := d.recorder != nil && d.recorder.RecordsTrajectory()
	var trajectory [][]int
	ctr := segmentCounters{stepsPerPass: stepsPerPass}
	var results CompletionResults

	for {
		if ctr.step%stepsPerPass == 0 {
			if err := ctx.Err(); err != nil {
				return SegmentResult{}, err
			}
		}

		e, err := gc.Propose()
		if err != nil {
			return SegmentResult{}, err
		}
		accepted := gc.Check(e)
		if accepted {
			gc.Accept(e)
			ctr.accepted++
		} else {
			gc.Reject(e)
		}
		if d.observer != nil {
			d.observer.ObserveStep(accepted)
		}
		ctr.step++
		passDone := ctr.step%stepsPerPass == 0
		if passDone {
			ctr.pass++
			if d.observer != nil {
				d.observer.ObservePass()
			}
		}

		if accepted && ch.enum != nil && ch.enum.Config().SampleMode == EnumOnAccept {
			snap := gc.Snapshot()
			if err := d.insert(ch, index, &ctr, &snap); err != nil {
				return SegmentResult{}, err
			}
		}

		var sampled bool
		if sampling.SampleBy == SampleByPass {
			sampled = passDone && ctr.pass%period == 0
		} else {
			sampled = ctr.step%period == 0
		}
		if sampled {
			snap := gc.Snapshot()
			if err := ch.samplers.Sample(&snap, SampleTime{Pass: ctr.pass, Step: ctr.step}); err != nil {
				return SegmentResult{}, err
			}
			if recordTraj {
				trajectory = append(trajectory, gc.Occupation())
			}
			if ch.enum != nil && ch.enum.Config().SampleMode == EnumOnSample {
				if err := d.insert(ch, index, &ctr, &snap); err != nil {
					return SegmentResult{}, err
				}
			}
		}

		count, t, n := ctr.count(sampling.SampleBy), ctr.time(), int64(ch.samplers.Len())
		if (sampled && params.Due(int(n))) || params.Cutoff.MaximumsMet(count, t, n) {
			results = CheckCompletion(params, count, t, ch.samplers)
			d.recordCompletion(index, &ctr, results)
			if results.IsComplete {
				break
			}
		}
	}

	return d.finishSegment(ctx, ch, index, cond, &ctr, results, trajectory)
}

func (d *Driver) insert(ch *chain, index int, ctr *segmentCounters, snap *PropertySnapshot) error {
	res, err := ch.enum.Insert(ch.gc.occ, snap)
	if err != nil {
		return err
	}
	if d.observer != nil {
		d.observer.ObserveInsert(res)
	}
	if d.trace.Enabled() && res.Outcome != OutcomeCheckFailed {
		d.trace.RecordInsert(trace.InsertRecord{
			Segment: index,
			Pass:    ctr.pass,
			Step:    ctr.step,
			Key:     res.Key,
			Score:   res.Score,
			Outcome: string(res.Outcome),
			Success: res.Success,
			Pos:     res.Pos,
		})
	}
	return nil
}

func (d *Driver) recordCompletion(index int, ctr *segmentCounters, r CompletionResults) {
	logrus.Debugf("conditions.%d: completion check at pass %d: %s (samples=%d equilibrated=%v converged=%v)",
		index, ctr.pass, r.State, r.NSamples, r.AllEquilibrated, r.AllConverged)
	if !d.trace.Enabled() {
		return
	}
	d.trace.RecordCompletion(trace.CompletionRecord{
		Segment:         index,
		Pass:            ctr.pass,
		Step:            ctr.step,
		NSamples:        r.NSamples,
		State:           string(r.State),
		MinimumsMet:     r.MinimumsMet,
		AllEquilibrated: r.AllEquilibrated,
		NEquilSamples:   r.NSamplesForAllToEquilibrate,
		AllConverged:    r.AllConverged,
		IsComplete:      r.IsComplete,
	})
}

func (d *Driver) finishSegment(ctx context.Context, ch *chain, index int, cond Conditions,
	ctr *segmentCounters, r CompletionResults, trajectory [][]int) (SegmentResult, error) {
	nEquil := 0
	if r.AllEquilibrated {
		nEquil = r.NSamplesForAllToEquilibrate
	}
	res := SegmentResult{
		Index:           index,
		Temperature:     cond.Temperature,
		ParamChemPot:    append([]float64(nil), cond.ParamChemPot...),
		NPasses:         ctr.pass,
		NSteps:          ctr.step,
		NAccepted:       ctr.accepted,
		NSamples:        ch.samplers.Len(),
		Completion:      r,
		IsEquilibrated:  r.AllEquilibrated,
		IsConverged:     r.AllConverged,
		NEquilSamples:   nEquil,
		NAvgSamples:     ch.samplers.Len() - nEquil,
		Properties:      Summarize(ch.samplers, nEquil),
		FinalOccupation: ch.gc.Occupation(),
	}
	logrus.Infof("conditions.%d complete: %d passes, %d samples (%d excluded), converged=%v",
		index, ctr.pass, res.NSamples, nEquil, res.IsConverged)

	if d.cfg.LTE {
		phi, err := ch.gc.LTEGrandCanonicalFreeEnergy()
		if err != nil {
			return res, err
		}
		res.LTEFreeEnergy = &phi
	}

	if ch.enum != nil {
		if d.catalog != nil {
			saved, err := d.saveConfigs(ctx, ch.enum, cond)
			if err != nil {
				return res, err
			}
			res.HallOfFame = saved
		} else {
			for pos, e := range ch.enum.Entries() {
				res.HallOfFame = append(res.HallOfFame, SaveResult{Pos: pos, Key: e.Key, Score: e.Score})
			}
		}
	}

	if d.recorder != nil {
		if err := d.recorder.RecordSegment(&res, ch.samplers, trajectory); err != nil {
			return res, fmt.Errorf("writing segment output: %w", err)
		}
	}
	return res, nil
}

func (d *Driver) saveConfigs(ctx context.Context, enum *MonteCarloEnum, cond Conditions) ([]SaveResult, error) {
	d.saveMu.Lock()
	defer d.saveMu.Unlock()
	return enum.SaveConfigs(ctx, cond, !enum.Config().SaveConfigs)
}
