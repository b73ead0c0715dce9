// Package notify defines the outbound notification contract. The engine
// notifies affected people strictly after the corresponding schedule
// state has been committed; a failed notification never rolls back a
// commit.
package notify

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Notification kinds.
const (
	KindSchedulePublished = "schedule_published"
	KindSwapRequested     = "swap_requested"
	KindSwapDecision      = "swap_decision"
	KindSwapExecuted      = "swap_executed"
	KindSwapRolledBack    = "swap_rolled_back"
	KindConflictDetected  = "conflict_detected"
)

// Notification is one outbound message.
type Notification struct {
	Kind      string    `json:"kind"`
	Recipient string    `json:"recipient"` // person name or broadcast topic suffix
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	Entity    string    `json:"entity"` // run, swap or conflict identity
	At        time.Time `json:"at"`
}

// Notifier delivers notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
	Close() error
}

// NopNotifier discards every notification.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Notification) error { return nil }
func (NopNotifier) Close() error                               { return nil }

// MockNotifier records notifications for tests.
type MockNotifier struct {
	mu   sync.Mutex
	Sent []Notification
	Fail bool
}

func NewMockNotifier() *MockNotifier { return &MockNotifier{} }

func (m *MockNotifier) Notify(_ context.Context, n Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail {
		return errFail
	}
	m.Sent = append(m.Sent, n)
	return nil
}

func (m *MockNotifier) Close() error { return nil }

// Delivered returns a copy of the recorded notifications.
func (m *MockNotifier) Delivered() []Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Notification(nil), m.Sent...)
}

var errFail = errors.New("notify: delivery failed")
