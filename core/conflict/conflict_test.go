package conflict

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openrota/openrota/core/compliance"
	"github.com/openrota/openrota/core/constraint"
	"github.com/openrota/openrota/core/model"
	"github.com/openrota/openrota/core/schedctx"
)

func manager(t *testing.T) *constraint.Manager {
	t.Helper()
	m, err := constraint.NewManagerFromConfig(constraint.DefaultConfigs(), compliance.New(compliance.Config{}))
	require.NoError(t, err)
	return m
}

func snapshot(t *testing.T, absences ...model.Absence) *schedctx.Context {
	t.Helper()
	people := []model.Person{
		{ID: uuid.New(), Name: "resident-a", Role: model.RoleTrainee, TrainingYear: 3, Specialties: []string{"general"}},
		{ID: uuid.New(), Name: "resident-b", Role: model.RoleTrainee, TrainingYear: 3, Specialties: []string{"general"}},
		{ID: uuid.New(), Name: "resident-c", Role: model.RoleTrainee, TrainingYear: 3, Specialties: []string{"general"}},
	}
	start := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	blocks := model.GenerateBlocks(start, start.AddDate(0, 0, 2), nil)
	sctx, err := schedctx.Build(schedctx.Input{
		Residents: people,
		Blocks:    blocks,
		Absences:  absences,
		Templates: []model.RotationTemplate{
			{ID: uuid.New(), Name: "general ward", Rotation: "general", MinHeads: 1, MaxHeads: 2},
		},
	})
	require.NoError(t, err)
	return sctx
}

func row(person model.Person, block model.Block) model.Assignment {
	return model.Assignment{
		ID:       uuid.New(),
		PersonID: person.ID,
		BlockID:  block.ID,
		Role:     model.AssignClinical,
		Rotation: "general",
	}
}

func conflictsOf(kind Kind, conflicts []Conflict) []Conflict {
	var out []Conflict
	for _, c := range conflicts {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

func TestDetectDoubleBooking(t *testing.T) {
	sctx := snapshot(t)
	people, blocks := sctx.Residents(), sctx.Blocks()

	first := row(people[0], blocks[0])
	second := row(people[0], blocks[0])
	committed := coverAll(sctx, first, second)

	d := NewDetector(compliance.New(compliance.Config{}), nil)
	found := conflictsOf(KindDoubleBooking, d.Detect(context.Background(), sctx, committed))
	require.Len(t, found, 1)
	assert.Equal(t, model.SeverityHard, found[0].Severity)
	assert.Len(t, found[0].AssignmentIDs, 2)
}

func TestVoidedRowsDoNotConflict(t *testing.T) {
	sctx := snapshot(t)
	people, blocks := sctx.Residents(), sctx.Blocks()

	first := row(people[0], blocks[0])
	second := row(people[0], blocks[0])
	second.Void("superseded", time.Now())
	committed := coverAll(sctx, first, second)

	d := NewDetector(compliance.New(compliance.Config{}), nil)
	assert.Empty(t, conflictsOf(KindDoubleBooking, d.Detect(context.Background(), sctx, committed)))
}

func TestDetectAbsenceClash(t *testing.T) {
	personID := uuid.New()
	start := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	people := []model.Person{
		{ID: personID, Name: "resident-a", Role: model.RoleTrainee, TrainingYear: 3, Specialties: []string{"general"}},
		{ID: uuid.New(), Name: "resident-b", Role: model.RoleTrainee, TrainingYear: 3, Specialties: []string{"general"}},
	}
	sctx, err := schedctx.Build(schedctx.Input{
		Residents: people,
		Blocks:    model.GenerateBlocks(start, start, nil),
		Absences: []model.Absence{{
			ID: uuid.New(), PersonID: personID, Start: start, End: start,
			Type: model.AbsenceVacation, Blocking: true,
		}},
		Templates: []model.RotationTemplate{
			{ID: uuid.New(), Name: "general ward", Rotation: "general", MinHeads: 1},
		},
	})
	require.NoError(t, err)

	blocks := sctx.Blocks()
	clashing := row(people[0], blocks[0])
	committed := coverAll(sctx, clashing)

	d := NewDetector(nil, nil)
	found := conflictsOf(KindAbsenceClash, d.Detect(context.Background(), sctx, committed))
	require.Len(t, found, 1)
	assert.Equal(t, []uuid.UUID{personID}, found[0].PersonIDs)

	r := NewResolver(manager(t), nil)
	resolutions := r.Propose(context.Background(), sctx, committed, found)
	require.Len(t, resolutions, 1)
	require.NotEmpty(t, resolutions[0].Remedies)
	best := resolutions[0].Remedies[0]
	assert.Equal(t, ActionReassign, best.Action)
	assert.NotEqual(t, personID, best.ReplacementID)
}

func TestDetectUncoveredAndOverCapacity(t *testing.T) {
	sctx := snapshot(t)
	people, blocks := sctx.Residents(), sctx.Blocks()

	// Block 0 has three heads against a capacity of two; the remaining
	// blocks are uncovered.
	committed := []model.Assignment{
		row(people[0], blocks[0]),
		row(people[1], blocks[0]),
		row(people[2], blocks[0]),
	}

	d := NewDetector(nil, nil)
	conflicts := d.Detect(context.Background(), sctx, committed)

	over := conflictsOf(KindCapacityExceeded, conflicts)
	require.Len(t, over, 1)
	assert.Len(t, over[0].AssignmentIDs, 3)

	uncovered := conflictsOf(KindUncoveredSlot, conflicts)
	assert.Len(t, uncovered, len(blocks)-1)

	r := NewResolver(manager(t), nil)
	resolutions := r.Propose(context.Background(), sctx, committed, over)
	require.Len(t, resolutions, 1)
	require.Len(t, resolutions[0].Remedies, 3)
	assert.Equal(t, ActionVoid, resolutions[0].Remedies[0].Action)

	fills := r.Propose(context.Background(), sctx, committed, uncovered[:1])
	require.NotEmpty(t, fills[0].Remedies)
	assert.Equal(t, ActionFill, fills[0].Remedies[0].Action)
}

func TestReassignScreensHardRules(t *testing.T) {
	absent := model.Person{ID: uuid.New(), Name: "resident-a", Role: model.RoleTrainee, TrainingYear: 3, Specialties: []string{"general"}}
	senior := model.Person{ID: uuid.New(), Name: "resident-b", Role: model.RoleTrainee, TrainingYear: 3, Specialties: []string{"general"}}
	junior := model.Person{ID: uuid.New(), Name: "resident-c", Role: model.RoleTrainee, TrainingYear: 1, Specialties: []string{"general"}}

	start := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	sctx, err := schedctx.Build(schedctx.Input{
		Residents: []model.Person{absent, senior, junior},
		Blocks:    model.GenerateBlocks(start, start, nil),
		Absences: []model.Absence{{
			ID: uuid.New(), PersonID: absent.ID, Start: start, End: start,
			Type: model.AbsenceSick, Blocking: true,
		}},
		Templates: []model.RotationTemplate{
			{ID: uuid.New(), Name: "general ward", Rotation: "general", MinHeads: 1, MaxHeads: 2},
		},
	})
	require.NoError(t, err)
	blocks := sctx.Blocks()

	clashing := row(absent, blocks[0])
	committed := []model.Assignment{clashing, row(senior, blocks[1])}

	d := NewDetector(nil, nil)
	found := conflictsOf(KindAbsenceClash, d.Detect(context.Background(), sctx, committed))
	require.Len(t, found, 1)

	r := NewResolver(manager(t), nil)
	resolutions := r.Propose(context.Background(), sctx, committed, found)
	require.Len(t, resolutions, 1)

	// The junior is free and covers the rotation, but handing them the
	// block alone would leave a first-year unsupervised. Only the senior
	// survives the screen.
	require.Len(t, resolutions[0].Remedies, 1)
	assert.Equal(t, senior.ID, resolutions[0].Remedies[0].ReplacementID)
}

func TestDetectDeterministicOrder(t *testing.T) {
	sctx := snapshot(t)
	people, blocks := sctx.Residents(), sctx.Blocks()
	committed := []model.Assignment{row(people[0], blocks[0])}

	d := NewDetector(nil, nil)
	first := d.Detect(context.Background(), sctx, committed)
	second := d.Detect(context.Background(), sctx, committed)
	assert.Equal(t, first, second)
}

// coverAll pads the committed set so every block meets the one-head
// floor, keeping coverage conflicts out of tests aimed at other kinds.
func coverAll(sctx *schedctx.Context, rows ...model.Assignment) []model.Assignment {
	covered := make(map[uuid.UUID]bool)
	for _, a := range rows {
		if !a.Voided {
			covered[a.BlockID] = true
		}
	}
	out := append([]model.Assignment(nil), rows...)
	people := sctx.Residents()
	for _, b := range sctx.Blocks() {
		if covered[b.ID] {
			continue
		}
		for _, p := range people {
			if sctx.Availability(p.ID, b.ID) != schedctx.Unavailable {
				out = append(out, row(p, b))
				break
			}
		}
	}
	return out
}
