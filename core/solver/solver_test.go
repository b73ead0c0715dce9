package solver

import (
	"context"
	"errors"
	"fmt"
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

// weekFixture builds a one-week snapshot: four senior residents, two
// supervisors, one rotation needing one head per block.
func weekFixture(t *testing.T, absences ...model.Absence) (*schedctx.Context, *constraint.Manager) {
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
	blocks := model.GenerateBlocks(start, end, nil)

	sctx, err := schedctx.Build(schedctx.Input{
		Residents: residents,
		Faculty:   faculty,
		Blocks:    blocks,
		Absences:  absences,
		Templates: []model.RotationTemplate{
			{ID: uuid.New(), Name: "general ward", Rotation: "general", MinHeads: 1},
		},
	})
	require.NoError(t, err)

	mgr, err := constraint.NewManagerFromConfig(constraint.DefaultConfigs(), compliance.New(compliance.Config{}))
	require.NoError(t, err)
	return sctx, mgr
}

func assignmentKeys(assignments []model.Assignment) []string {
	keys := make([]string, 0, len(assignments))
	for _, a := range assignments {
		keys = append(keys, fmt.Sprintf("%s|%s|%d|%s", a.PersonID, a.BlockID, a.Role, a.Rotation))
	}
	return keys
}

func hardCount(violations []model.Violation) int {
	n := 0
	for _, v := range violations {
		if v.Severity == model.SeverityHard {
			n++
		}
	}
	return n
}

func TestGreedySolverDeterministic(t *testing.T) {
	sctx, mgr := weekFixture(t)

	first, err := NewGreedySolver(nil).Solve(context.Background(), sctx, mgr, 5*time.Second)
	require.NoError(t, err)
	second, err := NewGreedySolver(nil).Solve(context.Background(), sctx, mgr, 5*time.Second)
	require.NoError(t, err)

	assert.Equal(t, assignmentKeys(first.Assignments), assignmentKeys(second.Assignments))
	assert.Equal(t, assignmentKeys(first.CallAssignments), assignmentKeys(second.CallAssignments))
	assert.Equal(t, first.Score, second.Score)
}

func TestGreedySolverFillsAllDemand(t *testing.T) {
	sctx, mgr := weekFixture(t)

	res, err := NewGreedySolver(nil).Solve(context.Background(), sctx, mgr, 5*time.Second)
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.True(t, res.Complete)
	// 10 blocks, one clinical head plus one supervision row each.
	assert.Len(t, res.Assignments, 20)
	// One call slot per PM block.
	assert.Len(t, res.CallAssignments, 5)
	assert.Zero(t, hardCount(res.Violations))

	for _, a := range res.Assignments {
		assert.True(t, a.VerifySeal(), "assignment %s must carry a valid seal", a.ID)
		assert.GreaterOrEqual(t, a.Confidence, 0.0)
		assert.LessOrEqual(t, a.Confidence, 1.0)
	}
}

// juniorFixture mirrors weekFixture with first-year trainees only, so
// every clinical row depends on the block's supervision row being
// staffed first.
func juniorFixture(t *testing.T) (*schedctx.Context, *constraint.Manager) {
	t.Helper()

	var residents []model.Person
	for i := 0; i < 4; i++ {
		residents = append(residents, model.Person{
			ID:           uuid.New(),
			Name:         fmt.Sprintf("intern-%d", i),
			Role:         model.RoleTrainee,
			TrainingYear: 1,
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

	start := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 4)
	sctx, err := schedctx.Build(schedctx.Input{
		Residents: residents,
		Faculty:   faculty,
		Blocks:    model.GenerateBlocks(start, end, nil),
		Templates: []model.RotationTemplate{
			{ID: uuid.New(), Name: "general ward", Rotation: "general", MinHeads: 1},
		},
	})
	require.NoError(t, err)

	mgr, err := constraint.NewManagerFromConfig(constraint.DefaultConfigs(), compliance.New(compliance.Config{}))
	require.NoError(t, err)
	return sctx, mgr
}

func clinicalCount(assignments []model.Assignment) int {
	n := 0
	for _, a := range assignments {
		if a.Role == model.AssignClinical {
			n++
		}
	}
	return n
}

func TestSolversStaffJuniorsUnderSupervision(t *testing.T) {
	solvers := map[string]Solver{
		"greedy": NewGreedySolver(nil),
		"exact":  NewExactSolver(nil),
		"anneal": NewMetaheuristicSolver(AnnealConfig{Seed: 11}, nil),
	}
	for name, s := range solvers {
		t.Run(name, func(t *testing.T) {
			sctx, mgr := juniorFixture(t)

			res, err := s.Solve(context.Background(), sctx, mgr, 10*time.Second)
			require.NoError(t, err)
			require.True(t, res.Success)
			assert.True(t, res.Complete)

			// 10 blocks demand one clinical head each; every one must be
			// filled even though the whole pool is first-year.
			assert.Equal(t, 10, clinicalCount(res.Assignments))
			assert.Len(t, res.Assignments, 20)
			assert.Zero(t, hardCount(res.Violations))
		})
	}
}

func TestSlotOrderPlacesSupervisionFirst(t *testing.T) {
	sctx, _ := juniorFixture(t)

	slots := buildSlots(sctx)
	seenSupervision := make(map[uuid.UUID]bool)
	for _, s := range slots {
		switch s.role {
		case model.AssignSupervision:
			seenSupervision[s.block.ID] = true
		case model.AssignClinical:
			assert.True(t, seenSupervision[s.block.ID],
				"clinical slot for block %s ordered before its supervision slot", s.block.Key())
		}
	}
}

func TestGreedySolverHonorsLockedRows(t *testing.T) {
	sctx, mgr := weekFixture(t)
	blocks := sctx.Blocks()
	residents := sctx.Residents()

	locked := model.Assignment{
		ID:       uuid.New(),
		PersonID: residents[0].ID,
		BlockID:  blocks[0].ID,
		Role:     model.AssignClinical,
		Rotation: "general",
	}
	lockedCtx, err := schedctx.Build(schedctx.Input{
		Residents: residents,
		Faculty:   sctx.Faculty(),
		Blocks:    blocks,
		Templates: []model.RotationTemplate{
			{ID: uuid.New(), Name: "general ward", Rotation: "general", MinHeads: 1},
		},
		Locked: []model.Assignment{locked},
	})
	require.NoError(t, err)

	res, err := NewGreedySolver(nil).Solve(context.Background(), lockedCtx, mgr, 5*time.Second)
	require.NoError(t, err)
	require.True(t, res.Success)

	// The locked slot is already covered; the solver must not re-fill it
	// and must not double-book the locked person for that block.
	for _, a := range res.Assignments {
		if a.BlockID == locked.BlockID && a.Role == model.AssignClinical {
			t.Fatalf("solver re-filled a locked slot with %s", a.PersonID)
		}
	}
}

func TestMetaheuristicSolverSeededDeterminism(t *testing.T) {
	sctx, mgr := weekFixture(t)
	cfg := AnnealConfig{Seed: 42}

	first, err := NewMetaheuristicSolver(cfg, nil).Solve(context.Background(), sctx, mgr, 10*time.Second)
	require.NoError(t, err)
	second, err := NewMetaheuristicSolver(cfg, nil).Solve(context.Background(), sctx, mgr, 10*time.Second)
	require.NoError(t, err)

	assert.Equal(t, assignmentKeys(first.Assignments), assignmentKeys(second.Assignments))
	assert.Equal(t, assignmentKeys(first.CallAssignments), assignmentKeys(second.CallAssignments))
	assert.Equal(t, first.Score, second.Score)
	assert.Zero(t, hardCount(first.Violations))
}

func TestExactSolverFeasible(t *testing.T) {
	sctx, mgr := weekFixture(t)

	res, err := NewExactSolver(nil).Solve(context.Background(), sctx, mgr, 10*time.Second)
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.True(t, res.Complete)
	assert.Len(t, res.Assignments, 20)
	assert.Zero(t, hardCount(res.Violations))
}

func TestExactSolverFallsBackWhenRelaxationFails(t *testing.T) {
	orig := lpSolve
	lpSolve = func(p *lpProblem, scores []float64) ([]float64, error) {
		return nil, errors.New("simplex blew up")
	}
	defer func() { lpSolve = orig }()

	sctx, mgr := weekFixture(t)
	res, err := NewExactSolver(nil).Solve(context.Background(), sctx, mgr, 10*time.Second)
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Len(t, res.Assignments, 20)
	assert.Zero(t, hardCount(res.Violations))
}

func TestSolverInfeasibleInstance(t *testing.T) {
	resident := model.Person{
		ID:           uuid.New(),
		Name:         "resident-0",
		Role:         model.RoleTrainee,
		TrainingYear: 3,
		Specialties:  []string{"general"},
	}
	start := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 4)
	sctx, err := schedctx.Build(schedctx.Input{
		Residents: []model.Person{resident},
		Blocks:    model.GenerateBlocks(start, end, nil),
		Absences: []model.Absence{{
			ID:       uuid.New(),
			PersonID: resident.ID,
			Start:    start,
			End:      end,
			Type:     model.AbsenceVacation,
			Blocking: true,
		}},
		Templates: []model.RotationTemplate{
			{ID: uuid.New(), Name: "general ward", Rotation: "general", MinHeads: 1},
		},
	})
	require.NoError(t, err)
	mgr, err := constraint.NewManagerFromConfig(constraint.DefaultConfigs(), compliance.New(compliance.Config{}))
	require.NoError(t, err)

	_, err = NewGreedySolver(nil).Solve(context.Background(), sctx, mgr, time.Second)
	var infeasible *InfeasibleError
	require.ErrorAs(t, err, &infeasible)
	assert.Positive(t, infeasible.Slots)
}

func TestGreedySolverTimeoutIsIncompleteNotFailed(t *testing.T) {
	sctx, mgr := weekFixture(t)

	res, err := NewGreedySolver(nil).Solve(context.Background(), sctx, mgr, time.Nanosecond)
	require.NoError(t, err)
	assert.False(t, res.Complete)
	assert.True(t, res.Success)
}

func TestOrchestratorSelectsFeasibleResult(t *testing.T) {
	sctx, mgr := weekFixture(t)
	orc := NewOrchestrator(nil,
		NewGreedySolver(nil),
		NewMetaheuristicSolver(AnnealConfig{Seed: 7}, nil),
	)

	res, err := orc.Solve(context.Background(), sctx, mgr, 10*time.Second)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.NotEmpty(t, res.Algorithm)
	assert.Len(t, res.Assignments, 20)
}

func TestBetterResultOrdering(t *testing.T) {
	feasible := &Result{Success: true, Complete: true, Score: -3}
	better := &Result{Success: true, Complete: true, Score: -1}
	partial := &Result{Success: true, Complete: false, Score: 0}
	infeasible := &Result{Success: false, Complete: true, Score: 10}

	assert.True(t, betterResult(feasible, nil))
	assert.True(t, betterResult(better, feasible))
	assert.False(t, betterResult(partial, feasible))
	assert.False(t, betterResult(infeasible, better))
}
