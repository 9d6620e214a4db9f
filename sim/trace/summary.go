package trace

// TraceSummary aggregates statistics from a SimulationTrace.
type TraceSummary struct {
	TotalChecks       int
	CompleteChecks    int
	EquilibratedCount int
	ConvergedCount    int
	// FirstCompleteSamples maps segment → samples at its first complete check.
	FirstCompleteSamples map[int]int64
	TotalInserts         int
	SuccessfulInserts    int
	OutcomeDistribution  map[string]int // outcome → count
	BestScore            float64
}

// Summarize computes aggregate statistics from a SimulationTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *SimulationTrace) *TraceSummary {
	summary := &TraceSummary{
		FirstCompleteSamples: make(map[int]int64),
		OutcomeDistribution:  make(map[string]int),
	}
	if st == nil {
		return summary
	}

	summary.TotalChecks = len(st.Completions)
	for _, c := range st.Completions {
		if c.AllEquilibrated {
			summary.EquilibratedCount++
		}
		if c.AllConverged {
			summary.ConvergedCount++
		}
		if c.IsComplete {
			summary.CompleteChecks++
			if _, seen := summary.FirstCompleteSamples[c.Segment]; !seen {
				summary.FirstCompleteSamples[c.Segment] = c.NSamples
			}
		}
	}

	summary.TotalInserts = len(st.Inserts)
	first := true
	for _, r := range st.Inserts {
		summary.OutcomeDistribution[r.Outcome]++
		if !r.Success {
			continue
		}
		summary.SuccessfulInserts++
		if first || r.Score > summary.BestScore {
			summary.BestScore = r.Score
			first = false
		}
	}

	return summary
}
