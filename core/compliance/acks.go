package compliance

import (
	"sync"
	"time"

	"github.com/openrota/openrota/core/model"
)

// Acknowledgment records that a specific violation was reviewed and
// accepted by an actor. Acknowledged violations stay visible in reports
// but no longer block publication.
type Acknowledgment struct {
	Key    string
	Actor  string
	Reason string
	At     time.Time
}

// AckRegistry remembers acknowledged violations across validation runs,
// keyed by (kind, person, block, date). It is the only stateful piece of
// the compliance layer and is safe for concurrent use.
type AckRegistry struct {
	mu    sync.RWMutex
	acks  map[string]Acknowledgment
	count int
}

// NewAckRegistry returns an empty registry.
func NewAckRegistry() *AckRegistry {
	return &AckRegistry{acks: make(map[string]Acknowledgment)}
}

// Key derives the stable identity of a violation for acknowledgment
// matching.
func Key(v model.Violation) string {
	return string(v.Kind) + "|" + v.PersonID.String() + "|" + v.BlockID.String() + "|" + v.Date.Format("2006-01-02")
}

// Acknowledge records the acknowledgment and bumps the audit counter.
func (r *AckRegistry) Acknowledge(v model.Violation, actor, reason string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.acks[Key(v)] = Acknowledgment{Key: Key(v), Actor: actor, Reason: reason, At: at}
	r.count++
}

// Count returns the total number of acknowledgments recorded.
func (r *AckRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

// Apply marks acknowledged violations in the report in place and returns
// the number of hard violations that remain unacknowledged.
func (r *AckRegistry) Apply(report *Report) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := range report.Violations {
		if ack, ok := r.acks[Key(report.Violations[i])]; ok {
			report.Violations[i].Acknowledge(ack.Actor, ack.Reason, ack.At)
		}
	}
	remaining := model.CountUnacknowledgedHard(report.Violations)
	report.Valid = remaining == 0
	return remaining
}
