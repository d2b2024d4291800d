package orchestrator

import "thirdcoast.systems/clipfit/internal/quality"

// State is a caller-visible step of a request. Ready and Failed are terminal.
type State string

const (
	StatePending        State = "pending"
	StateProbing        State = "probing"
	StateFetching       State = "fetching"
	StateFetched        State = "fetched"
	StatePostProcessing State = "post_processing"
	StateReady          State = "ready"
	StateFailed         State = "failed"
)

// Terminal reports whether no further transition follows s.
func (s State) Terminal() bool {
	return s == StateReady || s == StateFailed
}

// Event is one state transition. Attempt and Tier are set for Fetching, Fetched and
// Ready; Err only for Failed.
type Event struct {
	RequestID string
	Op        string
	State     State
	Attempt   int
	Tier      quality.Tier
	Err       error
}

// Observer receives events synchronously on the request's goroutine.
type Observer func(Event)
