package model

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus describes the outcome of one solver invocation.
type RunStatus int

const (
	RunPending RunStatus = iota
	RunSucceeded
	RunIncomplete // timed out with a feasible best-found result
	RunInfeasible
	RunFailed
)

// String returns a human-readable representation of the run status.
func (s RunStatus) String() string {
	switch s {
	case RunSucceeded:
		return "succeeded"
	case RunIncomplete:
		return "incomplete"
	case RunInfeasible:
		return "infeasible"
	case RunFailed:
		return "failed"
	default:
		return "pending"
	}
}

// ScheduleRun is the audit record of one solver invocation.
type ScheduleRun struct {
	ID             uuid.UUID
	Algorithm      string
	Status         RunStatus
	Actor          string
	Start          time.Time
	End            time.Time
	HardViolations int
	SoftViolations int
	Acknowledged   int
	Score          float64
	Config         map[string]any // configuration snapshot at solve time
	StartedAt      time.Time
	FinishedAt     time.Time
}
