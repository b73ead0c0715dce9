package model

import (
	"time"

	"github.com/google/uuid"
)

// ViolationKind identifies the rule or constraint that was breached.
type ViolationKind string

const (
	ViolationDutyHours   ViolationKind = "duty_hours"
	ViolationRestPeriod  ViolationKind = "rest_period"
	ViolationSupervision ViolationKind = "supervision_ratio"
	ViolationCallEquity  ViolationKind = "call_equity"
	ViolationOverlap     ViolationKind = "overlap"
	ViolationCapacity    ViolationKind = "capacity"
	ViolationEligibility ViolationKind = "eligibility"
	ViolationPreference  ViolationKind = "preference"
)

// Severity ranks violations. Hard severities block publication unless
// acknowledged.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityHard
)

// String returns a human-readable representation of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityHard:
		return "hard"
	case SeverityWarning:
		return "warning"
	default:
		return "info"
	}
}

// Violation is a rule breach. Violations are always data and never
// returned as Go errors: structural failures use the error channel,
// rule outcomes travel in results.
type Violation struct {
	Kind     ViolationKind
	Severity Severity
	PersonID uuid.UUID
	BlockID  uuid.UUID
	Date     time.Time
	Message  string
	Penalty  float64

	// Acknowledgment. An acknowledged violation stays visible in reports
	// but no longer blocks publication.
	Acknowledged bool
	AckActor     string
	AckReason    string
	AckAt        time.Time
}

// Acknowledge records that the violation was reviewed and accepted.
func (v *Violation) Acknowledge(actor, reason string, at time.Time) {
	v.Acknowledged = true
	v.AckActor = actor
	v.AckReason = reason
	v.AckAt = at
}

// CountUnacknowledgedHard returns the number of hard violations that have
// not been acknowledged.
func CountUnacknowledgedHard(violations []Violation) int {
	n := 0
	for _, v := range violations {
		if v.Severity == SeverityHard && !v.Acknowledged {
			n++
		}
	}
	return n
}
