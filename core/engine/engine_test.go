package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openrota/openrota/core/audit"
	"github.com/openrota/openrota/core/compliance"
	"github.com/openrota/openrota/core/conflict"
	"github.com/openrota/openrota/core/constraint"
	"github.com/openrota/openrota/core/model"
	"github.com/openrota/openrota/core/notify"
	"github.com/openrota/openrota/core/schedctx"
	"github.com/openrota/openrota/core/schedule"
	"github.com/openrota/openrota/core/solver"
	"github.com/openrota/openrota/core/swap"
)

type fixture struct {
	engine   *Engine
	store    *schedule.MemoryStore
	notifier *notify.MockNotifier
	trail    audit.Log
	input    schedctx.Input
}

// newFixture wires an engine around an in-memory store and a one-week
// snapshot: four senior residents, two supervisors, one rotation
// needing one head per block.
func newFixture(t *testing.T, absences ...model.Absence) *fixture {
	t.Helper()

	var residents []model.Person
	for i := 0; i < 4; i++ {
		residents = append(residents, model.Person{
			ID:           uuid.New(),
			Name:         fmt.Sprintf("resident-%d", i),
			Role:         model.RoleTrainee,
			TrainingYear: 3,
			Specialties:  []string{"general"},
		})
	}
	var faculty []model.Person
	for i := 0; i < 2; i++ {
		faculty = append(faculty, model.Person{
			ID:          uuid.New(),
			Name:        fmt.Sprintf("attending-%d", i),
			Role:        model.RoleSupervisor,
			Specialties: []string{"general"},
		})
	}

	start := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC) // Monday
	end := start.AddDate(0, 0, 4)
	in := schedctx.Input{
		Residents: residents,
		Faculty:   faculty,
		Blocks:    model.GenerateBlocks(start, end, nil),
		Absences:  absences,
		Templates: []model.RotationTemplate{
			{ID: uuid.New(), Name: "general ward", Rotation: "general", MinHeads: 1},
		},
	}

	validator := compliance.New(compliance.Config{})
	mgr, err := constraint.NewManagerFromConfig(constraint.DefaultConfigs(), validator)
	require.NoError(t, err)

	store := schedule.NewMemoryStore()
	notifier := notify.NewMockNotifier()
	trail, err := audit.NewJSONLLog(filepath.Join(t.TempDir(), "audit.jsonl"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = trail.Close() })

	eng, err := New(Deps{
		Store:       store,
		Validator:   validator,
		Constraints: mgr,
		Solver:      solver.NewGreedySolver(nil),
		Trail:       trail,
		Notifier:    notifier,
	})
	require.NoError(t, err)
	return &fixture{engine: eng, store: store, notifier: notifier, trail: trail, input: in}
}

func (f *fixture) snapshot(t *testing.T) *schedctx.Context {
	t.Helper()
	sctx, err := schedctx.Build(f.input)
	require.NoError(t, err)
	return sctx
}

func delivered(n *notify.MockNotifier, kind string) []notify.Notification {
	var out []notify.Notification
	for _, msg := range n.Delivered() {
		if msg.Kind == kind {
			out = append(out, msg)
		}
	}
	return out
}

func TestResolveVoidsSupersededRows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, first, err := f.engine.Solve(ctx, f.input, "scheduler", 5*time.Second)
	require.NoError(t, err)
	_, second, err := f.engine.Solve(ctx, f.input, "scheduler", 5*time.Second)
	require.NoError(t, err)

	active, err := f.store.AssignmentsInRange(ctx, second.Start, second.End, false)
	require.NoError(t, err)
	seen := make(map[string]bool)
	for _, a := range active {
		assert.Equal(t, second.ID, a.RunID, "active row %s must belong to the latest run", a.ID)
		require.False(t, seen[a.SlotKey()], "two active rows share slot %s", a.SlotKey())
		seen[a.SlotKey()] = true
	}

	all, err := f.store.AssignmentsInRange(ctx, second.Start, second.End, true)
	require.NoError(t, err)
	voided := 0
	for _, a := range all {
		if a.Voided {
			assert.Equal(t, first.ID, a.RunID)
			voided++
		}
	}
	assert.Equal(t, len(all)-len(active), voided)
	assert.Positive(t, voided)
}

func TestSolveCommitsRunAndAssignments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, run, err := f.engine.Solve(ctx, f.input, "scheduler", 5*time.Second)
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, model.RunSucceeded, run.Status)
	assert.Equal(t, "scheduler", run.Actor)

	stored, err := f.store.Run(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.Status, stored.Status)

	rows, err := f.store.AssignmentsInRange(ctx, run.Start, run.End, false)
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	for _, a := range rows {
		assert.Equal(t, run.ID, a.RunID)
		assert.True(t, a.VerifySeal())
	}

	published := delivered(f.notifier, notify.KindSchedulePublished)
	require.Len(t, published, 1)
	assert.Equal(t, run.ID.String(), published[0].Entity)

	events, err := f.trail.Query(ctx, audit.Query{Kind: audit.KindCommit})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, run.ID.String(), events[0].Entity)
}

func TestSolveInfeasibleSavesRun(t *testing.T) {
	f := newFixture(t)
	start := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	solo := f.input.Residents[0]
	f.input.Residents = []model.Person{solo}
	f.input.Absences = []model.Absence{{
		ID: uuid.New(), PersonID: solo.ID,
		Start: start, End: start.AddDate(0, 0, 4),
		Type: model.AbsenceVacation, Blocking: true,
	}}
	ctx := context.Background()

	_, run, err := f.engine.Solve(ctx, f.input, "scheduler", 5*time.Second)
	require.Error(t, err)
	var infeasible *solver.InfeasibleError
	require.ErrorAs(t, err, &infeasible)
	assert.Equal(t, model.RunInfeasible, run.Status)

	stored, err := f.store.Run(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunInfeasible, stored.Status)

	rows, err := f.store.AssignmentsInRange(ctx, run.Start, run.End, true)
	require.NoError(t, err)
	assert.Empty(t, rows)

	assert.Empty(t, delivered(f.notifier, notify.KindSchedulePublished))
}

func TestValidateCommittedSchedule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.engine.Solve(ctx, f.input, "scheduler", 5*time.Second)
	require.NoError(t, err)

	report, err := f.engine.Validate(ctx, f.snapshot(t))
	require.NoError(t, err)
	assert.True(t, report.Valid)

	events, err := f.trail.Query(ctx, audit.Query{Kind: audit.KindValidate})
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestValidateForScopesToPerson(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.engine.Solve(ctx, f.input, "scheduler", 5*time.Second)
	require.NoError(t, err)

	report, err := f.engine.ValidateFor(ctx, f.snapshot(t), f.input.Residents[0].ID)
	require.NoError(t, err)
	assert.True(t, report.Valid)
	for _, v := range report.Violations {
		assert.Equal(t, f.input.Residents[0].ID, v.PersonID)
	}
}

func TestAcknowledgeIsAudited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	v := model.Violation{
		Kind: "max_consecutive_days", Severity: model.SeverityHard,
		PersonID: f.input.Residents[0].ID,
		Date:     time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC),
	}
	f.engine.Acknowledge(ctx, v, "chief", "coverage emergency")

	events, err := f.trail.Query(ctx, audit.Query{Kind: audit.KindAck, Actor: "chief"})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "coverage emergency", events[0].Detail["reason"])
}

func TestDetectConflictsAndPropose(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, run, err := f.engine.Solve(ctx, f.input, "scheduler", 5*time.Second)
	require.NoError(t, err)

	// Manually double-book one committed clinical row.
	rows, err := f.store.AssignmentsInRange(ctx, run.Start, run.End, false)
	require.NoError(t, err)
	var clinical model.Assignment
	for _, a := range rows {
		if a.Role == model.AssignClinical {
			clinical = a
			break
		}
	}
	require.NotEqual(t, uuid.Nil, clinical.ID)
	dup := clinical
	dup.ID = uuid.New()
	dup.CreatedAt = time.Now()
	dup.Seal()
	require.NoError(t, f.store.CommitAssignments(ctx, []model.Assignment{dup}))

	sctx := f.snapshot(t)
	conflicts, err := f.engine.DetectConflicts(ctx, sctx)
	require.NoError(t, err)
	require.NotEmpty(t, conflicts)
	found := false
	for _, c := range conflicts {
		if c.Kind == conflict.KindDoubleBooking {
			found = true
			assert.Contains(t, c.AssignmentIDs, dup.ID)
		}
	}
	assert.True(t, found)

	resolutions, err := f.engine.ProposeResolutions(ctx, sctx, conflicts)
	require.NoError(t, err)
	require.NotEmpty(t, resolutions)
}

func TestSwapLifecycleNotifies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, run, err := f.engine.Solve(ctx, f.input, "scheduler", 5*time.Second)
	require.NoError(t, err)

	rows, err := f.store.AssignmentsFor(ctx, f.input.Residents[0].ID, false)
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	var blockID uuid.UUID
	for _, a := range rows {
		if a.Role == model.AssignClinical {
			blockID = a.BlockID
			break
		}
	}
	require.NotEqual(t, uuid.Nil, blockID)

	rec, err := f.engine.RequestSwap(ctx, swap.Request{
		RequesterID: f.input.Residents[0].ID,
		TargetID:    f.input.Residents[1].ID,
		BlockIDs:    []uuid.UUID{blockID},
		RequestedBy: f.input.Residents[0].Name,
		Reason:      "conference travel",
		Approvers:   []string{"chief"},
	})
	require.NoError(t, err)
	assert.Equal(t, model.SwapPending, rec.State)
	assert.Len(t, delivered(f.notifier, notify.KindSwapRequested), 1)

	rec, err = f.engine.ApproveSwap(ctx, rec.ID, "chief", "fine by me")
	require.NoError(t, err)
	assert.Equal(t, model.SwapApproved, rec.State)
	assert.Len(t, delivered(f.notifier, notify.KindSwapDecision), 1)

	rec, err = f.engine.ExecuteSwap(ctx, rec.ID, "chief", f.snapshot(t))
	require.NoError(t, err)
	assert.Equal(t, model.SwapExecuted, rec.State)
	assert.Len(t, delivered(f.notifier, notify.KindSwapExecuted), 1)

	held, err := f.store.AssignmentsFor(ctx, f.input.Residents[1].ID, false)
	require.NoError(t, err)
	swapped := false
	for _, a := range held {
		if a.BlockID == blockID && a.SwapID == rec.ID {
			swapped = true
		}
	}
	assert.True(t, swapped)

	rec, err = f.engine.RollbackSwap(ctx, rec.ID, "chief", f.snapshot(t))
	require.NoError(t, err)
	assert.Equal(t, model.SwapRolledBack, rec.State)
	assert.Len(t, delivered(f.notifier, notify.KindSwapRolledBack), 1)

	restored, err := f.store.AssignmentsFor(ctx, f.input.Residents[0].ID, false)
	require.NoError(t, err)
	back := false
	for _, a := range restored {
		if a.BlockID == blockID && a.RunID == run.ID {
			back = true
		}
	}
	assert.True(t, back)
}

func TestRejectAndCancelSwap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.engine.Solve(ctx, f.input, "scheduler", 5*time.Second)
	require.NoError(t, err)

	rows, err := f.store.AssignmentsFor(ctx, f.input.Residents[0].ID, false)
	require.NoError(t, err)
	require.NotEmpty(t, rows)

	req := swap.Request{
		RequesterID: f.input.Residents[0].ID,
		TargetID:    f.input.Residents[1].ID,
		BlockIDs:    []uuid.UUID{rows[0].BlockID},
		RequestedBy: f.input.Residents[0].Name,
		Approvers:   []string{"chief"},
	}

	rec, err := f.engine.RequestSwap(ctx, req)
	require.NoError(t, err)
	rec, err = f.engine.RejectSwap(ctx, rec.ID, "chief", "coverage too thin")
	require.NoError(t, err)
	assert.Equal(t, model.SwapRejected, rec.State)

	rec, err = f.engine.RequestSwap(ctx, req)
	require.NoError(t, err)
	rec, err = f.engine.CancelSwap(ctx, rec.ID, req.RequestedBy)
	require.NoError(t, err)
	assert.Equal(t, model.SwapCancelled, rec.State)

	_, err = f.engine.ExecuteSwap(ctx, rec.ID, "chief", f.snapshot(t))
	require.Error(t, err)
	assert.False(t, errors.Is(err, context.Canceled))
}

func TestNewRequiresCoreDeps(t *testing.T) {
	_, err := New(Deps{})
	require.Error(t, err)
}
