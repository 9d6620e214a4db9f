// Package trace provides decision-trace recording for Monte Carlo runs.
// This package has no dependencies on sim/; it stores pure data types.
package trace

// CompletionRecord captures a single completion check.
type CompletionRecord struct {
	Segment         int
	Pass            int64
	Step            int64
	NSamples        int64
	State           string
	MinimumsMet     bool
	AllEquilibrated bool
	NEquilSamples   int
	AllConverged    bool
	IsComplete      bool
}

// InsertRecord captures a single hall-of-fame offer.
type InsertRecord struct {
	Segment int
	Pass    int64
	Step    int64
	Key     string
	Score   float64
	Outcome string
	Success bool
	Pos     int
}
