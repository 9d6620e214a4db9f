package trace

import "sync"

// TraceLevel controls the verbosity of run tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelDecisions captures completion checks and hall-of-fame insertions.
	TraceLevelDecisions TraceLevel = "decisions"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:      true,
	TraceLevelDecisions: true,
	"":                  true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel
	// RecordRejectedInserts also records hall-of-fame offers that were not inserted.
	RecordRejectedInserts bool
}

// SimulationTrace collects decision records during a run. Independent chains
// may record concurrently.
type SimulationTrace struct {
	Config      TraceConfig
	Completions []CompletionRecord
	Inserts     []InsertRecord

	mu sync.Mutex
}

// NewSimulationTrace creates a SimulationTrace ready for recording.
func NewSimulationTrace(config TraceConfig) *SimulationTrace {
	return &SimulationTrace{
		Config:      config,
		Completions: make([]CompletionRecord, 0),
		Inserts:     make([]InsertRecord, 0),
	}
}

// Enabled reports whether records should be collected.
func (st *SimulationTrace) Enabled() bool {
	return st != nil && st.Config.Level == TraceLevelDecisions
}

// RecordCompletion appends a completion-check record.
func (st *SimulationTrace) RecordCompletion(record CompletionRecord) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.Completions = append(st.Completions, record)
}

// RecordInsert appends a hall-of-fame insertion record. Unsuccessful offers
// are dropped unless RecordRejectedInserts is set.
func (st *SimulationTrace) RecordInsert(record InsertRecord) {
	if !record.Success && !st.Config.RecordRejectedInserts {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.Inserts = append(st.Inserts, record)
}
