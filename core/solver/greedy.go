package solver

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/openrota/openrota/core/constraint"
	"github.com/openrota/openrota/core/logger"
	"github.com/openrota/openrota/core/model"
	"github.com/openrota/openrota/core/schedctx"
)

// GreedySolver fills slots in a single deterministic pass over blocks
// ordered by (date, AM/PM). For each slot it picks the highest-scoring
// hard-feasible candidate. Used as the fast baseline and as the fallback
// when the exact solver cannot finish in budget.
type GreedySolver struct {
	Weights Weights
	Log     logger.Logger
}

// NewGreedySolver returns a greedy solver with default weights.
func NewGreedySolver(log logger.Logger) *GreedySolver {
	return &GreedySolver{Weights: DefaultWeights(), Log: log}
}

// Name implements Solver.
func (s *GreedySolver) Name() string { return "greedy" }

// Solve implements Solver. The pass is deterministic: identical input
// yields identical output.
func (s *GreedySolver) Solve(ctx context.Context, sctx *schedctx.Context, cons *constraint.Manager, timeout time.Duration) (*Result, error) {
	started := time.Now()
	deadline := deadlineFrom(ctx, timeout, started)

	res := &Result{Algorithm: s.Name(), Complete: true}
	partial := sctx.Locked()
	workload := newWorkloadState(sctx)
	maxLoad := len(sctx.Blocks())

	blocked := make(map[string]bool)
	unfillable := 0

	fill := func(slots []slot, isCall bool) {
		for _, sl := range slots {
			if time.Now().After(deadline) || ctx.Err() != nil {
				res.Complete = false
				return
			}
			pick, alternatives, why := s.pickCandidate(sl, partial, workload, maxLoad, sctx, cons)
			if pick == nil {
				unfillable++
				if len(why) == 0 {
					blocked["availability"] = true
				}
				for _, name := range why {
					blocked[name] = true
				}
				continue
			}
			a := model.Assignment{
				ID:           uuid.New(),
				PersonID:     pick.person.ID,
				BlockID:      sl.block.ID,
				Role:         sl.role,
				Rotation:     sl.rotation,
				Score:        pick.score,
				Confidence:   confidence(pick.score, alternatives),
				Alternatives: alternativeIDs(alternatives),
				CreatedAt:    started,
			}
			a.Seal()
			partial = append(partial, a)
			workload.add(a, sctx)
			if isCall {
				res.CallAssignments = append(res.CallAssignments, a)
			} else {
				res.Assignments = append(res.Assignments, a)
			}
			res.Iterations++
		}
	}

	fill(buildSlots(sctx), false)
	if res.Complete {
		fill(callSlots(sctx), true)
	}

	if unfillable > 0 && len(res.Assignments) == 0 {
		return nil, &InfeasibleError{Constraints: sortedKeys(blocked), Slots: unfillable}
	}

	finishResult(res, cons, sctx, started)
	if s.Log != nil {
		s.Log.Infof("greedy solved %d slots in %s (unfillable %d)", res.Iterations, res.Duration, unfillable)
	}
	return res, nil
}

// pickCandidate scores the hard-feasible candidates for the slot and
// returns the winner plus the ranked alternatives. The why slice names
// the constraints that blocked candidates when none survive.
func (s *GreedySolver) pickCandidate(sl slot, partial []model.Assignment, w *workloadState, maxLoad int, sctx *schedctx.Context, cons *constraint.Manager) (*scored, []scored, []string) {
	pool := candidatePool(sctx, sl)
	var feasible []scored
	var why []string
	for _, p := range pool {
		cand := model.Assignment{
			ID:       uuid.Nil, // probe row, identity assigned on accept
			PersonID: p.ID,
			BlockID:  sl.block.ID,
			Role:     sl.role,
			Rotation: sl.rotation,
		}
		if ok, name := cons.CanAssign(partial, cand, sctx); !ok {
			why = append(why, name)
			continue
		}
		feasible = append(feasible, scored{person: p, score: s.Weights.candidateScore(p, sl, w, sctx, maxLoad)})
	}
	if len(feasible) == 0 {
		return nil, nil, why
	}
	rankCandidates(feasible, w)
	return &feasible[0], feasible[1:], nil
}

// confidence expresses how clearly the winner beat the runner-up.
func confidence(best float64, alternatives []scored) float64 {
	if len(alternatives) == 0 {
		return 1
	}
	if best <= 0 {
		return 0
	}
	gap := (best - alternatives[0].score) / best
	if gap < 0 {
		gap = 0
	}
	if gap > 1 {
		gap = 1
	}
	return 0.5 + gap/2
}

func alternativeIDs(alternatives []scored) []uuid.UUID {
	n := len(alternatives)
	if n > 3 {
		n = 3
	}
	out := make([]uuid.UUID, 0, n)
	for _, alt := range alternatives[:n] {
		out = append(out, alt.person.ID)
	}
	return out
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
