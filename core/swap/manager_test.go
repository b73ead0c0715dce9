package swap

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openrota/openrota/core/compliance"
	"github.com/openrota/openrota/core/model"
	"github.com/openrota/openrota/core/schedctx"
	"github.com/openrota/openrota/core/schedule"
	"github.com/openrota/openrota/internal/rangelock"
)

type fixture struct {
	mgr       *Manager
	store     *schedule.MemoryStore
	locks     *rangelock.Manager
	view      *schedctx.Context
	requester model.Person
	target    model.Person
	blocks    []model.Block
	rowA      model.Assignment // requester's row on blocks[0]
	rowB      model.Assignment // target's row on blocks[2]
}

// newFixture commits one row per side over a three-day window. A junior
// target makes the swapped schedule violate supervision rules.
func newFixture(t *testing.T, juniorTarget bool) *fixture {
	t.Helper()
	ctx := context.Background()

	targetYear := 3
	if juniorTarget {
		targetYear = 1
	}
	requester := model.Person{
		ID: uuid.New(), Name: "resident-a", Role: model.RoleTrainee,
		TrainingYear: 3, Specialties: []string{"general"},
	}
	target := model.Person{
		ID: uuid.New(), Name: "resident-b", Role: model.RoleTrainee,
		TrainingYear: targetYear, Specialties: []string{"general"},
	}

	start := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	blocks := model.GenerateBlocks(start, start.AddDate(0, 0, 2), nil)

	view, err := schedctx.Build(schedctx.Input{
		Residents: []model.Person{requester, target},
		Blocks:    blocks,
		Templates: []model.RotationTemplate{
			{ID: uuid.New(), Name: "general ward", Rotation: "general", MinHeads: 1},
		},
	})
	require.NoError(t, err)

	store := schedule.NewMemoryStore()
	require.NoError(t, store.SaveBlocks(ctx, blocks))

	rowA := model.Assignment{
		ID: uuid.New(), PersonID: requester.ID, BlockID: blocks[0].ID,
		Role: model.AssignClinical, Rotation: "general", CreatedAt: start,
	}
	rowA.Seal()
	rowB := model.Assignment{
		ID: uuid.New(), PersonID: target.ID, BlockID: blocks[2].ID,
		Role: model.AssignClinical, Rotation: "general", CreatedAt: start,
	}
	rowB.Seal()
	require.NoError(t, store.CommitAssignments(ctx, []model.Assignment{rowA, rowB}))

	locks := rangelock.New()
	mgr := NewManager(store, compliance.New(compliance.Config{}), compliance.NewAckRegistry(),
		locks, nil, nil, nil, Config{LockTimeout: 50 * time.Millisecond})
	return &fixture{
		mgr: mgr, store: store, locks: locks, view: view,
		requester: requester, target: target, blocks: blocks, rowA: rowA, rowB: rowB,
	}
}

func (f *fixture) request(t *testing.T) model.SwapRecord {
	t.Helper()
	rec, err := f.mgr.Submit(context.Background(), Request{
		RequesterID: f.requester.ID,
		TargetID:    f.target.ID,
		BlockIDs:    []uuid.UUID{f.blocks[0].ID},
		RequestedBy: "resident-a",
		Reason:      "childcare",
		Approvers:   []string{"chief", "resident-b"},
	})
	require.NoError(t, err)
	return rec
}

func (f *fixture) approveAll(t *testing.T, id uuid.UUID) model.SwapRecord {
	t.Helper()
	_, err := f.mgr.Approve(context.Background(), id, "chief", "ok")
	require.NoError(t, err)
	rec, err := f.mgr.Approve(context.Background(), id, "resident-b", "ok")
	require.NoError(t, err)
	require.Equal(t, model.SwapApproved, rec.State)
	return rec
}

func TestSwapLifecycleHappyPath(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	rec := f.request(t)
	assert.Equal(t, model.SwapPending, rec.State)

	// One approval is not enough.
	rec, err := f.mgr.Approve(ctx, rec.ID, "chief", "ok")
	require.NoError(t, err)
	assert.Equal(t, model.SwapPending, rec.State)

	rec, err = f.mgr.Approve(ctx, rec.ID, "resident-b", "ok")
	require.NoError(t, err)
	require.Equal(t, model.SwapApproved, rec.State)

	rec, err = f.mgr.Execute(ctx, rec.ID, "chief", f.view)
	require.NoError(t, err)
	assert.Equal(t, model.SwapExecuted, rec.State)
	require.Len(t, rec.Snapshot, 1)
	assert.Equal(t, f.rowA.ID, rec.Snapshot[0].ID)

	// The requester's row is voided and the target now holds the block.
	voided, err := f.store.Assignment(ctx, f.rowA.ID)
	require.NoError(t, err)
	assert.True(t, voided.Voided)

	active, err := f.store.AssignmentsInRange(ctx, f.blocks[0].Date, f.blocks[0].Date, false)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, f.target.ID, active[0].PersonID)
	assert.Equal(t, rec.ID, active[0].SwapID)
	assert.True(t, active[0].VerifySeal())
}

func TestExecuteRequiresApproval(t *testing.T) {
	f := newFixture(t, false)
	rec := f.request(t)

	_, err := f.mgr.Execute(context.Background(), rec.ID, "chief", f.view)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "illegal transition")

	got, err := f.store.Swap(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SwapPending, got.State)
}

func TestExecuteAbortsOnHardViolation(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	rec := f.request(t)
	f.approveAll(t, rec.ID)

	_, err := f.mgr.Execute(ctx, rec.ID, "chief", f.view)
	var aborted *ExecutionAbortedError
	require.ErrorAs(t, err, &aborted)
	assert.NotEmpty(t, aborted.Violations)

	// Nothing moved: the original row is still active, no swap rows
	// exist, and the record stays approved for a later retry.
	orig, err := f.store.Assignment(ctx, f.rowA.ID)
	require.NoError(t, err)
	assert.False(t, orig.Voided)

	active, err := f.store.AssignmentsInRange(ctx, f.blocks[0].Date, f.blocks[2].Date, false)
	require.NoError(t, err)
	assert.Len(t, active, 2)

	got, err := f.store.Swap(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SwapApproved, got.State)
}

func TestExecuteProceedsAfterAcknowledgment(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	rec := f.request(t)
	f.approveAll(t, rec.ID)

	_, err := f.mgr.Execute(ctx, rec.ID, "chief", f.view)
	var aborted *ExecutionAbortedError
	require.ErrorAs(t, err, &aborted)

	for _, v := range aborted.Violations {
		f.mgr.acks.Acknowledge(v, "chief", "accepted risk", time.Now())
	}
	rec, err = f.mgr.Execute(ctx, rec.ID, "chief", f.view)
	require.NoError(t, err)
	assert.Equal(t, model.SwapExecuted, rec.State)
}

func TestRollbackRestoresExactRows(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	rec := f.request(t)
	f.approveAll(t, rec.ID)
	rec, err := f.mgr.Execute(ctx, rec.ID, "chief", f.view)
	require.NoError(t, err)

	rec, err = f.mgr.Rollback(ctx, rec.ID, "chief", f.view)
	require.NoError(t, err)
	assert.Equal(t, model.SwapRolledBack, rec.State)

	restored, err := f.store.Assignment(ctx, f.rowA.ID)
	require.NoError(t, err)
	assert.False(t, restored.Voided)
	assert.Equal(t, f.requester.ID, restored.PersonID)
	assert.Equal(t, f.rowA.Integrity, restored.Integrity)
	assert.True(t, restored.VerifySeal())

	active, err := f.store.AssignmentsInRange(ctx, f.blocks[0].Date, f.blocks[0].Date, false)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, f.rowA.ID, active[0].ID)
}

func TestRollbackWindowExpires(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	rec := f.request(t)
	f.approveAll(t, rec.ID)
	rec, err := f.mgr.Execute(ctx, rec.ID, "chief", f.view)
	require.NoError(t, err)

	f.mgr.clock = func() time.Time { return rec.ExecutedAt.Add(25 * time.Hour) }
	_, err = f.mgr.Rollback(ctx, rec.ID, "chief", f.view)
	var window *RollbackWindowError
	require.ErrorAs(t, err, &window)

	// Just inside the window still works.
	f.mgr.clock = func() time.Time { return rec.ExecutedAt.Add(23 * time.Hour) }
	_, err = f.mgr.Rollback(ctx, rec.ID, "chief", f.view)
	require.NoError(t, err)
}

func TestRollbackBlockedByDependentRows(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	rec := f.request(t)
	f.approveAll(t, rec.ID)
	rec, err := f.mgr.Execute(ctx, rec.ID, "chief", f.view)
	require.NoError(t, err)

	// A later commit occupies the slot rollback would restore.
	dependent := model.Assignment{
		ID: uuid.New(), PersonID: f.requester.ID, BlockID: f.blocks[0].ID,
		Role: model.AssignCall, Rotation: "call", CreatedAt: time.Now(),
	}
	require.NoError(t, f.store.CommitAssignments(ctx, []model.Assignment{dependent}))

	_, err = f.mgr.Rollback(ctx, rec.ID, "chief", f.view)
	var conflict *DependencyConflictError
	require.ErrorAs(t, err, &conflict)
	assert.NotEmpty(t, conflict.Slots)

	got, err := f.store.Swap(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SwapExecuted, got.State)
}

func TestRollbackBlockedByRuleClash(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	// Tighten the rest rule so the clash below is detectable inside the
	// three-day fixture window.
	f.mgr.validator = compliance.New(compliance.Config{RestWindowDays: 2, RestHours: 21})

	// A giveaway: executing voids the requester's row on blocks[0].
	rec, err := f.mgr.Submit(ctx, Request{
		RequesterID: f.requester.ID,
		BlockIDs:    []uuid.UUID{f.blocks[0].ID},
		RequestedBy: "resident-a",
		Reason:      "conference",
		Approvers:   []string{"chief"},
	})
	require.NoError(t, err)
	_, err = f.mgr.Approve(ctx, rec.ID, "chief", "ok")
	require.NoError(t, err)
	rec, err = f.mgr.Execute(ctx, rec.ID, "chief", f.view)
	require.NoError(t, err)

	// Later commits load the requester's next day. No restored slot is
	// occupied, but restoring blocks[0] would leave no 21h rest gap.
	day2AM := model.Assignment{
		ID: uuid.New(), PersonID: f.requester.ID, BlockID: f.blocks[2].ID,
		Role: model.AssignClinical, Rotation: "general", CreatedAt: time.Now(),
	}
	day2PM := model.Assignment{
		ID: uuid.New(), PersonID: f.requester.ID, BlockID: f.blocks[3].ID,
		Role: model.AssignClinical, Rotation: "general", CreatedAt: time.Now(),
	}
	require.NoError(t, f.store.CommitAssignments(ctx, []model.Assignment{day2AM, day2PM}))

	_, err = f.mgr.Rollback(ctx, rec.ID, "chief", f.view)
	var conflict *DependencyConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Empty(t, conflict.Slots)
	require.NotEmpty(t, conflict.Violations)
	assert.Equal(t, model.ViolationRestPeriod, conflict.Violations[0].Kind)

	// Nothing moved and the swap stays executed.
	voided, err := f.store.Assignment(ctx, f.rowA.ID)
	require.NoError(t, err)
	assert.True(t, voided.Voided)
	got, err := f.store.Swap(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SwapExecuted, got.State)
}

func TestExecuteContendsOnRangeLock(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	rec := f.request(t)
	f.approveAll(t, rec.ID)

	lease, err := f.locks.Acquire(ctx, f.blocks[0].Date, f.blocks[0].Date, "maintenance", time.Second)
	require.NoError(t, err)

	_, err = f.mgr.Execute(ctx, rec.ID, "chief", f.view)
	var timeout *rangelock.TimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.True(t, timeout.Retryable())

	lease.Release()
	rec, err = f.mgr.Execute(ctx, rec.ID, "chief", f.view)
	require.NoError(t, err)
	assert.Equal(t, model.SwapExecuted, rec.State)
}

func TestRejectAndCancel(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	rec := f.request(t)
	rec, err := f.mgr.Reject(ctx, rec.ID, "chief", "coverage too thin")
	require.NoError(t, err)
	assert.Equal(t, model.SwapRejected, rec.State)

	_, err = f.mgr.Approve(ctx, rec.ID, "resident-b", "ok")
	require.Error(t, err)

	second := f.request(t)
	second, err = f.mgr.Cancel(ctx, second.ID, "resident-a")
	require.NoError(t, err)
	assert.Equal(t, model.SwapCancelled, second.State)
}

func TestSubmitRejectsUnheldBlocks(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.mgr.Submit(context.Background(), Request{
		RequesterID: f.requester.ID,
		TargetID:    f.target.ID,
		BlockIDs:    []uuid.UUID{f.blocks[1].ID}, // requester holds blocks[0] only
		RequestedBy: "resident-a",
		Approvers:   []string{"chief"},
	})
	require.Error(t, err)
}
