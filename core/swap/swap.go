// Package swap manages the post-publication swap lifecycle: request,
// multi-party approval, atomic execution against the committed store
// and a bounded rollback window. Execution re-validates compliance and
// aborts without mutating anything when the resulting schedule would
// carry unacknowledged hard violations.
package swap

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/openrota/openrota/core/model"
)

// Config tunes the lifecycle.
type Config struct {
	// RollbackWindow is how long after execution a swap may be rolled
	// back. Zero means the default of 24 hours.
	RollbackWindow time.Duration `json:"rollback_window" yaml:"rollback_window"`
	// LockTimeout bounds the wait for the date-range lock during
	// execution and rollback. Zero means the default of 5 seconds.
	LockTimeout time.Duration `json:"lock_timeout" yaml:"lock_timeout"`
}

func (c *Config) SetDefaults() {
	if c.RollbackWindow <= 0 {
		c.RollbackWindow = 24 * time.Hour
	}
	if c.LockTimeout <= 0 {
		c.LockTimeout = 5 * time.Second
	}
}

// ExecutionAbortedError reports that executing a swap would have left
// the schedule with unacknowledged hard violations. The store was not
// touched and the swap remains approved.
type ExecutionAbortedError struct {
	SwapID     uuid.UUID
	Violations []model.Violation
}

func (e *ExecutionAbortedError) Error() string {
	return fmt.Sprintf("swap %s execution aborted: %d unacknowledged hard violations", e.SwapID, len(e.Violations))
}

// RollbackWindowError reports a rollback attempted after the window
// closed.
type RollbackWindowError struct {
	SwapID     uuid.UUID
	ExecutedAt time.Time
	Window     time.Duration
}

func (e *RollbackWindowError) Error() string {
	return fmt.Sprintf("swap %s: rollback window of %s expired (executed %s)",
		e.SwapID, e.Window, e.ExecutedAt.Format(time.RFC3339))
}

// DependencyConflictError reports that rows committed after the swap
// block its rollback: either they occupy slots the rollback would
// restore, or the restored schedule would carry unacknowledged hard
// violations against them.
type DependencyConflictError struct {
	SwapID     uuid.UUID
	Slots      []string
	Violations []model.Violation
}

func (e *DependencyConflictError) Error() string {
	if len(e.Slots) > 0 {
		return fmt.Sprintf("swap %s: rollback blocked by %d dependent rows", e.SwapID, len(e.Slots))
	}
	return fmt.Sprintf("swap %s: rollback blocked by %d unacknowledged hard violations", e.SwapID, len(e.Violations))
}
