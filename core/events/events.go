// Package events defines the typed events published on the internal bus.
// Events are emitted strictly after the state they describe has been
// committed.
package events

import (
	"time"

	"github.com/google/uuid"
)

// SolveEvent is published when a solver run finishes and its result has
// been committed.
type SolveEvent struct {
	RunID       uuid.UUID
	Algorithm   string
	Success     bool
	Complete    bool
	Assignments int
	Score       float64
	Duration    time.Duration
}

// ValidationEvent is published after a compliance audit completes.
type ValidationEvent struct {
	Start      time.Time
	End        time.Time
	PersonID   uuid.UUID // uuid.Nil for cohort-wide audits
	Valid      bool
	Violations int
}

// ConflictEvent is published when a conflict scan finds problems.
type ConflictEvent struct {
	Start     time.Time
	End       time.Time
	Conflicts int
}

// SwapEvent is published on each swap lifecycle transition.
// Action is one of "requested", "approved", "rejected", "cancelled",
// "executed", "rolled_back".
type SwapEvent struct {
	SwapID uuid.UUID
	Action string
	Actor  string
	Err    error
}
