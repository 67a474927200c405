package domain

import "fmt"

// GenerationStatus tracks one artifact kind on a document.
type GenerationStatus string

const (
	StatusNone       GenerationStatus = "none"
	StatusInProgress GenerationStatus = "in_progress"
	StatusCompleted  GenerationStatus = "completed"
	StatusFailed     GenerationStatus = "failed"
)

// completed -> failed exists for compensation after the artifact was already marked done.
var statusTransitions = map[GenerationStatus][]GenerationStatus{
	StatusNone:       {StatusInProgress},
	StatusInProgress: {StatusCompleted, StatusFailed},
	StatusCompleted:  {StatusInProgress, StatusFailed},
	StatusFailed:     {StatusInProgress},
}

func (s GenerationStatus) Valid() bool {
	_, ok := statusTransitions[s]
	return ok
}

// CanTransition reports whether from -> to is allowed. Self transitions are allowed and
// treated by callers as idempotent no-ops.
func CanTransition(from, to GenerationStatus) bool {
	if from == "" {
		from = StatusNone
	}
	if from == to {
		return to.Valid()
	}
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TransitionSources returns every status that may move to `to`, including `to` itself.
func TransitionSources(to GenerationStatus) []GenerationStatus {
	sources := make([]GenerationStatus, 0, len(statusTransitions))
	for _, from := range []GenerationStatus{StatusNone, StatusInProgress, StatusCompleted, StatusFailed} {
		if CanTransition(from, to) {
			sources = append(sources, from)
		}
	}
	return sources
}

func ValidateTransition(from, to GenerationStatus) error {
	if !to.Valid() {
		return WrapError(ErrInvalidInput, "validate status", fmt.Errorf("unknown status %q", to))
	}
	if !CanTransition(from, to) {
		return WrapError(ErrInvalidTransition, "validate status", fmt.Errorf("%s -> %s", from, to))
	}
	return nil
}
