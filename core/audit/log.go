// Package audit keeps the append-only trail of schedule mutations:
// solver commits, validations, swap lifecycle transitions and
// acknowledgments. Records are never updated or deleted.
package audit

import (
	"context"
	"time"
)

// Event kinds recorded in the trail.
const (
	KindSolve    = "solve"
	KindCommit   = "commit"
	KindValidate = "validate"
	KindConflict = "conflict"
	KindSwap     = "swap"
	KindAck      = "acknowledge"
	KindRollback = "rollback"
)

// EventRecord is one audit trail entry.
type EventRecord struct {
	Timestamp time.Time      `json:"timestamp"`
	Kind      string         `json:"kind"`
	Actor     string         `json:"actor"`
	Entity    string         `json:"entity"` // run, swap or assignment ID
	Detail    map[string]any `json:"detail,omitempty"`
}

// Query defines filters for retrieving records.
type Query struct {
	Start time.Time
	End   time.Time
	Kind  string
	Actor string
}

func (q Query) matches(r EventRecord) bool {
	if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Timestamp.After(q.End) {
		return false
	}
	if q.Kind != "" && r.Kind != q.Kind {
		return false
	}
	if q.Actor != "" && r.Actor != q.Actor {
		return false
	}
	return true
}

// Log persists EventRecords and supports querying.
type Log interface {
	Append(ctx context.Context, rec EventRecord) error
	Query(ctx context.Context, q Query) ([]EventRecord, error)
	Close() error
}

// NopLog discards every record.
type NopLog struct{}

func (NopLog) Append(context.Context, EventRecord) error          { return nil }
func (NopLog) Query(context.Context, Query) ([]EventRecord, error) { return nil, nil }
func (NopLog) Close() error                                        { return nil }
