// Tracks run-wide Monte Carlo statistics such as acceptance and sampling totals.

package sim

import (
	"fmt"
	"io"
)

// Metrics aggregates statistics about a run for final reporting.
type Metrics struct {
	Segments          int   // Number of conditions segments completed
	TotalPasses       int64 // Sum of passes over all segments
	TotalSteps        int64 // Sum of steps over all segments
	TotalAccepted     int64 // Accepted events over all segments
	TotalSamples      int64 // Samples taken over all segments
	ConvergedSegments int   // Segments stopped by convergence rather than a maximum
	SavedConfigs      int   // New catalog entries promoted from halls of fame
}

// NewMetrics aggregates segment results.
func NewMetrics(results []SegmentResult) *Metrics {
	m := &Metrics{}
	for _, r := range results {
		m.Segments++
		m.TotalPasses += r.NPasses
		m.TotalSteps += r.NSteps
		m.TotalAccepted += r.NAccepted
		m.TotalSamples += int64(r.NSamples)
		if r.IsConverged {
			m.ConvergedSegments++
		}
		for _, h := range r.HallOfFame {
			if h.IsNew && h.Saved {
				m.SavedConfigs++
			}
		}
	}
	return m
}

// Print displays aggregated metrics at the end of the run, followed by the
// per-segment property means.
func (m *Metrics) Print(w io.Writer, results []SegmentResult) {
	fmt.Fprintln(w, "=== Monte Carlo Metrics ===")
	fmt.Fprintf(w, "Segments             : %d\n", m.Segments)
	fmt.Fprintf(w, "Total Passes         : %d\n", m.TotalPasses)
	fmt.Fprintf(w, "Total Steps          : %d\n", m.TotalSteps)
	if m.TotalSteps > 0 {
		fmt.Fprintf(w, "Acceptance Ratio     : %.4f\n", float64(m.TotalAccepted)/float64(m.TotalSteps))
	}
	fmt.Fprintf(w, "Total Samples        : %d\n", m.TotalSamples)
	fmt.Fprintf(w, "Converged Segments   : %d/%d\n", m.ConvergedSegments, m.Segments)
	fmt.Fprintf(w, "Saved Configurations : %d\n", m.SavedConfigs)
	for _, r := range results {
		fmt.Fprintf(w, "--- conditions.%d: T=%g mu=%v (%d samples, %d excluded) ---\n",
			r.Index, r.Temperature, r.ParamChemPot, r.NSamples, r.NEquilSamples)
		for _, p := range r.Properties {
			if p.PrecisionAvailable {
				fmt.Fprintf(w, "  %-24s %14.8g +/- %-12.4g\n", p.Name, p.Mean, p.CalculatedPrecision)
			} else {
				fmt.Fprintf(w, "  %-24s %14.8g\n", p.Name, p.Mean)
			}
		}
		if r.LTEFreeEnergy != nil {
			fmt.Fprintf(w, "  %-24s %14.8g\n", "phi_LTE", *r.LTEFreeEnergy)
		}
	}
}
