package trace

import "testing"

func TestSummarize_EmptyTrace_ZeroValues(t *testing.T) {
	// GIVEN an empty trace
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelDecisions})

	// WHEN summarized
	summary := Summarize(st)

	// THEN all counts are zero
	if summary.TotalChecks != 0 || summary.CompleteChecks != 0 {
		t.Error("expected 0 checks")
	}
	if summary.TotalInserts != 0 || summary.SuccessfulInserts != 0 {
		t.Error("expected 0 inserts")
	}
	if len(summary.OutcomeDistribution) != 0 {
		t.Error("expected empty outcome distribution")
	}
}

func TestSummarize_NilTrace_ZeroValues(t *testing.T) {
	summary := Summarize(nil)
	if summary.TotalChecks != 0 || summary.FirstCompleteSamples == nil {
		t.Error("expected zero-value summary with initialized maps")
	}
}

func TestSummarize_PopulatedTrace_CorrectCounts(t *testing.T) {
	// GIVEN a trace with checks in two segments and mixed inserts
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelDecisions, RecordRejectedInserts: true})
	st.RecordCompletion(CompletionRecord{Segment: 0, NSamples: 10})
	st.RecordCompletion(CompletionRecord{Segment: 0, NSamples: 20, AllEquilibrated: true})
	st.RecordCompletion(CompletionRecord{Segment: 0, NSamples: 30, AllEquilibrated: true, AllConverged: true, IsComplete: true})
	st.RecordCompletion(CompletionRecord{Segment: 1, NSamples: 50, IsComplete: true})
	st.RecordInsert(InsertRecord{Key: "a", Score: -1.5, Outcome: "inserted", Success: true})
	st.RecordInsert(InsertRecord{Key: "b", Score: -0.5, Outcome: "inserted", Success: true})
	st.RecordInsert(InsertRecord{Key: "a", Score: -1.5, Outcome: "duplicate_not_better"})

	// WHEN summarized
	summary := Summarize(st)

	// THEN counts match
	if summary.TotalChecks != 4 {
		t.Errorf("expected 4 checks, got %d", summary.TotalChecks)
	}
	if summary.CompleteChecks != 2 {
		t.Errorf("expected 2 complete checks, got %d", summary.CompleteChecks)
	}
	if summary.EquilibratedCount != 2 || summary.ConvergedCount != 1 {
		t.Errorf("expected 2 equilibrated and 1 converged, got %d and %d", summary.EquilibratedCount, summary.ConvergedCount)
	}
	if summary.FirstCompleteSamples[0] != 30 || summary.FirstCompleteSamples[1] != 50 {
		t.Errorf("unexpected first complete samples: %v", summary.FirstCompleteSamples)
	}
	if summary.TotalInserts != 3 || summary.SuccessfulInserts != 2 {
		t.Errorf("expected 3 inserts with 2 successful, got %d and %d", summary.TotalInserts, summary.SuccessfulInserts)
	}
	if summary.OutcomeDistribution["inserted"] != 2 || summary.OutcomeDistribution["duplicate_not_better"] != 1 {
		t.Errorf("unexpected outcome distribution: %v", summary.OutcomeDistribution)
	}
	if summary.BestScore != -0.5 {
		t.Errorf("expected best score -0.5, got %v", summary.BestScore)
	}
}
