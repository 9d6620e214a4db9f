package sim

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by Sampler statistics. The completion checker treats
// all of them as "not computable yet" rather than as failures.
var (
	// ErrEmptySampler is returned when fewer than two observations remain after
	// excluding the equilibration prefix.
	ErrEmptySampler = errors.New("not enough observations")
	// ErrZeroVariance is returned when the retained observations are all identical.
	ErrZeroVariance = errors.New("zero variance in observations")
	// ErrPrecisionUnavailable is returned when a precision is requested
	// from a sampler whose statistics cannot be computed yet.
	ErrPrecisionUnavailable = errors.New("precision unavailable")
)

// ModelEvaluationError reports that the energy model could not evaluate a
// proposed event. It is fatal for the conditions segment in which it occurs.
type ModelEvaluationError struct {
	Site              int
	CurrentOccupant   int
	CandidateOccupant int
	Err               error
}

func (e *ModelEvaluationError) Error() string {
	return fmt.Sprintf("energy model failed at site %d (occupant %d -> %d): %v",
		e.Site, e.CurrentOccupant, e.CandidateOccupant, e.Err)
}

func (e *ModelEvaluationError) Unwrap() error {
	return e.Err
}

// ConfigError reports a missing or inconsistent setting. Configuration errors
// are raised before a run starts and are never silently defaulted.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid setting %s: %s", e.Field, e.Reason)
}

func configErrorf(field, format string, args ...any) error {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
