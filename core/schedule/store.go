// Package schedule persists the committed schedule: blocks, assignment
// rows, solver runs and swap records. Assignments are never deleted;
// superseded rows are voided in place so the audit trail stays intact.
package schedule

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/openrota/openrota/core/model"
)

// ErrNotFound is returned when a looked-up entity does not exist.
var ErrNotFound = errors.New("schedule: not found")

// VoidRequest asks the store to void one committed assignment.
type VoidRequest struct {
	ID     uuid.UUID
	Reason string
	At     time.Time
}

// Store is the committed-schedule persistence contract. ReplaceRows is
// atomic: either every void lands and every new row is inserted, or the
// store is left untouched.
type Store interface {
	SaveBlocks(ctx context.Context, blocks []model.Block) error
	Block(ctx context.Context, id uuid.UUID) (model.Block, error)
	Blocks(ctx context.Context, start, end time.Time) ([]model.Block, error)

	SaveRun(ctx context.Context, run model.ScheduleRun) error
	Run(ctx context.Context, id uuid.UUID) (model.ScheduleRun, error)
	Runs(ctx context.Context) ([]model.ScheduleRun, error)

	CommitAssignments(ctx context.Context, assignments []model.Assignment) error
	Assignment(ctx context.Context, id uuid.UUID) (model.Assignment, error)
	// AssignmentsInRange returns rows whose block date falls inside
	// [start, end]. Voided rows are included only when includeVoided.
	AssignmentsInRange(ctx context.Context, start, end time.Time, includeVoided bool) ([]model.Assignment, error)
	AssignmentsFor(ctx context.Context, personID uuid.UUID, includeVoided bool) ([]model.Assignment, error)
	ReplaceRows(ctx context.Context, void []VoidRequest, add []model.Assignment) error

	SaveSwap(ctx context.Context, rec model.SwapRecord) error
	Swap(ctx context.Context, id uuid.UUID) (model.SwapRecord, error)
	SwapsInState(ctx context.Context, state model.SwapState) ([]model.SwapRecord, error)

	Close() error
}
