// Package rangelock provides in-process advisory locks over calendar
// date ranges. Mutating schedule operations take a lease on the range
// they touch; overlapping acquisitions block until the holder releases
// or the bounded wait expires with a retryable timeout.
package rangelock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TimeoutError reports that a lease could not be acquired before the
// deadline. It is retryable: the caller may back off and try again.
type TimeoutError struct {
	Start  time.Time
	End    time.Time
	Holder string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("range lock timeout: [%s, %s] held by %s",
		e.Start.Format("2006-01-02"), e.End.Format("2006-01-02"), e.Holder)
}

// Retryable marks the error as transient.
func (e *TimeoutError) Retryable() bool { return true }

type span struct {
	start, end time.Time // inclusive calendar days
	owner      string
}

// Manager hands out leases over date ranges. The zero value is not
// usable; call New.
type Manager struct {
	mu    sync.Mutex
	held  map[uuid.UUID]span
	waitc chan struct{} // closed and replaced on every release
}

func New() *Manager {
	return &Manager{
		held:  make(map[uuid.UUID]span),
		waitc: make(chan struct{}),
	}
}

// Lease is a held range lock. Release is idempotent.
type Lease struct {
	id  uuid.UUID
	m   *Manager
	rel sync.Once
}

func (l *Lease) Release() {
	l.rel.Do(func() {
		l.m.mu.Lock()
		delete(l.m.held, l.id)
		close(l.m.waitc)
		l.m.waitc = make(chan struct{})
		l.m.mu.Unlock()
	})
}

// Acquire blocks until the range [start, end] (inclusive days) is free
// of overlapping leases, then returns a lease on it. It gives up after
// timeout with a *TimeoutError naming the current holder, or earlier if
// the context is cancelled.
func (m *Manager) Acquire(ctx context.Context, start, end time.Time, owner string, timeout time.Duration) (*Lease, error) {
	start = midnight(start)
	end = midnight(end)
	if end.Before(start) {
		return nil, fmt.Errorf("range lock: end %s before start %s", end.Format("2006-01-02"), start.Format("2006-01-02"))
	}
	deadline := time.Now().Add(timeout)

	for {
		m.mu.Lock()
		holder, busy := m.conflict(start, end)
		if !busy {
			id := uuid.New()
			m.held[id] = span{start: start, end: end, owner: owner}
			m.mu.Unlock()
			return &Lease{id: id, m: m}, nil
		}
		wait := m.waitc
		m.mu.Unlock()

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, &TimeoutError{Start: start, End: end, Holder: holder}
		}
		timer := time.NewTimer(remaining)
		select {
		case <-wait:
			timer.Stop()
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("range lock: %w", ctx.Err())
		case <-timer.C:
			return nil, &TimeoutError{Start: start, End: end, Holder: holder}
		}
	}
}

// conflict returns the owner of the first lease overlapping the range.
func (m *Manager) conflict(start, end time.Time) (string, bool) {
	for _, s := range m.held {
		if !start.After(s.end) && !s.start.After(end) {
			return s.owner, true
		}
	}
	return "", false
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
