package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SwapState is a swap lifecycle state. Transitions are monotonic except
// for the single EXECUTED -> ROLLED_BACK edge.
type SwapState int

const (
	SwapPending SwapState = iota
	SwapApproved
	SwapExecuted
	SwapRolledBack
	SwapRejected
	SwapCancelled
)

// String returns a human-readable representation of the swap state.
func (s SwapState) String() string {
	switch s {
	case SwapPending:
		return "PENDING"
	case SwapApproved:
		return "APPROVED"
	case SwapExecuted:
		return "EXECUTED"
	case SwapRolledBack:
		return "ROLLED_BACK"
	case SwapRejected:
		return "REJECTED"
	case SwapCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// CanTransition reports whether the lifecycle permits moving from s to
// next.
func (s SwapState) CanTransition(next SwapState) bool {
	switch s {
	case SwapPending:
		return next == SwapApproved || next == SwapRejected || next == SwapCancelled
	case SwapApproved:
		return next == SwapExecuted || next == SwapCancelled
	case SwapExecuted:
		return next == SwapRolledBack
	default:
		return false
	}
}

// Approval records one approver's response to a swap request.
type Approval struct {
	Approver  string
	Approved  bool
	Comment   string
	Timestamp time.Time
}

// SwapRecord is one post-publication swap lifecycle instance. The
// pre-swap snapshot captured at execution time backs the bounded
// rollback.
type SwapRecord struct {
	ID          uuid.UUID
	State       SwapState
	RequestedBy string
	Reason      string

	// The two sides of the swap. TargetID may be uuid.Nil for a giveaway
	// into an open slot.
	RequesterID uuid.UUID
	TargetID    uuid.UUID
	BlockIDs    []uuid.UUID

	Approvers []string
	Approvals []Approval

	Snapshot []Assignment // pre-swap rows captured at execution

	RequestedAt  time.Time
	ExecutedAt   time.Time
	RolledBackAt time.Time
	ClosedAt     time.Time
}

// FullyApproved reports whether every named approver has responded
// affirmatively.
func (r SwapRecord) FullyApproved() bool {
	if len(r.Approvers) == 0 {
		return false
	}
	granted := make(map[string]bool, len(r.Approvals))
	for _, a := range r.Approvals {
		if a.Approved {
			granted[a.Approver] = true
		} else {
			delete(granted, a.Approver)
		}
	}
	for _, name := range r.Approvers {
		if !granted[name] {
			return false
		}
	}
	return true
}

// Transition moves the record to next, enforcing lifecycle order.
func (r *SwapRecord) Transition(next SwapState, at time.Time) error {
	if !r.State.CanTransition(next) {
		return fmt.Errorf("swap %s: illegal transition %s -> %s", r.ID, r.State, next)
	}
	r.State = next
	switch next {
	case SwapExecuted:
		r.ExecutedAt = at
	case SwapRolledBack:
		r.RolledBackAt = at
	case SwapRejected, SwapCancelled:
		r.ClosedAt = at
	}
	return nil
}
