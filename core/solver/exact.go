package solver

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"

	"github.com/openrota/openrota/core/constraint"
	"github.com/openrota/openrota/core/logger"
	"github.com/openrota/openrota/core/model"
	"github.com/openrota/openrota/core/schedctx"
)

// ExactSolver models person x block x role selection as boolean decision
// variables, relaxes them to an LP solved with the simplex method, and
// rounds the fractional optimum back to a feasible schedule. It is an
// anytime algorithm: a local improvement loop runs until the wall-clock
// budget expires, and on timeout the best solution found so far is
// returned with Complete=false.
type ExactSolver struct {
	Weights Weights
	Log     logger.Logger
}

// NewExactSolver returns an exact solver with default weights.
func NewExactSolver(log logger.Logger) *ExactSolver {
	return &ExactSolver{Weights: DefaultWeights(), Log: log}
}

// Name implements Solver.
func (s *ExactSolver) Name() string { return "exact" }

// lpProblem is the variable layout of the relaxation.
type lpProblem struct {
	slots []slot
	// vars[i] lists the candidate people of slot i, aligned with the
	// variable columns varOf[i][j].
	vars  [][]model.Person
	varOf [][]int
	nvars int
}

// lpSolve points to the simplex call so tests can simulate solver
// failures.
var lpSolve = solveRelaxation

func buildLP(sctx *schedctx.Context, slots []slot) *lpProblem {
	p := &lpProblem{slots: slots}
	for _, sl := range slots {
		pool := candidatePool(sctx, sl)
		cols := make([]int, len(pool))
		for j := range pool {
			cols[j] = p.nvars
			p.nvars++
		}
		p.vars = append(p.vars, pool)
		p.varOf = append(p.varOf, cols)
	}
	return p
}

// solveRelaxation minimizes the negated score subject to one-person-per
// slot equalities and one-slot-per-(person, block) inequalities.
func solveRelaxation(p *lpProblem, scores []float64) ([]float64, error) {
	if p.nvars == 0 {
		return nil, nil
	}
	c := make([]float64, p.nvars)
	for i, s := range scores {
		c[i] = -s
	}

	// Inequalities: per (person, block) at most one slot, plus unit
	// upper bounds keeping the relaxation in [0,1].
	type personBlock struct {
		person uuid.UUID
		block  uuid.UUID
	}
	pbRows := make(map[personBlock][]int)
	for i, sl := range p.slots {
		for j, person := range p.vars[i] {
			key := personBlock{person.ID, sl.block.ID}
			pbRows[key] = append(pbRows[key], p.varOf[i][j])
		}
	}
	rows := 0
	for _, cols := range pbRows {
		if len(cols) > 1 {
			rows++
		}
	}
	g := mat.NewDense(rows+p.nvars, p.nvars, nil)
	h := make([]float64, rows+p.nvars)
	r := 0
	for _, cols := range pbRows {
		if len(cols) <= 1 {
			continue
		}
		for _, col := range cols {
			g.Set(r, col, 1)
		}
		h[r] = 1
		r++
	}
	for i := 0; i < p.nvars; i++ {
		g.Set(rows+i, i, 1)
		h[rows+i] = 1
	}

	// Equalities: every slot with candidates takes exactly one person.
	eqRows := 0
	for i := range p.slots {
		if len(p.varOf[i]) > 0 {
			eqRows++
		}
	}
	A := mat.NewDense(eqRows, p.nvars, nil)
	b := make([]float64, eqRows)
	r = 0
	for i := range p.slots {
		if len(p.varOf[i]) == 0 {
			continue
		}
		for _, col := range p.varOf[i] {
			A.Set(r, col, 1)
		}
		b[r] = 1
		r++
	}

	cStd, AStd, bStd := lp.Convert(c, g, h, A, b)
	_, sol, err := lp.Simplex(cStd, AStd, bStd, 1e-7, nil)
	if err != nil {
		return nil, err
	}
	return sol[:p.nvars], nil
}

// Solve implements Solver.
func (s *ExactSolver) Solve(ctx context.Context, sctx *schedctx.Context, cons *constraint.Manager, timeout time.Duration) (*Result, error) {
	started := time.Now()
	deadline := deadlineFrom(ctx, timeout, started)
	res := &Result{Algorithm: s.Name(), Complete: true}

	slots := buildSlots(sctx)
	prob := buildLP(sctx, slots)
	workload := newWorkloadState(sctx)
	maxLoad := len(sctx.Blocks())

	scores := make([]float64, prob.nvars)
	for i, sl := range prob.slots {
		for j, person := range prob.vars[i] {
			scores[prob.varOf[i][j]] = s.Weights.candidateScore(person, sl, workload, sctx, maxLoad)
		}
	}

	fractions, err := lpSolve(prob, scores)
	if err != nil {
		// The relaxation failing does not mean the instance is
		// infeasible; rounding proceeds on raw scores.
		if s.Log != nil {
			s.Log.Warnf("lp relaxation failed, rounding on raw scores: %v", err)
		}
		fractions = scores
	}

	partial, unfillable, blocked := s.round(prob, fractions, workload, maxLoad, sctx, cons, deadline, ctx)
	if unfillable == len(slots) && len(slots) > 0 {
		return nil, &InfeasibleError{Constraints: sortedKeys(blocked), Slots: unfillable}
	}
	res.Assignments = partial[len(sctx.Locked()):]

	// On-call demand rides on the rounded schedule.
	greedy := &GreedySolver{Weights: s.Weights, Log: s.Log}
	for _, sl := range callSlots(sctx) {
		if expired(ctx, deadline) {
			res.Complete = false
			break
		}
		pick, alternatives, _ := greedy.pickCandidate(sl, partial, workload, maxLoad, sctx, cons)
		if pick == nil {
			continue
		}
		a := newAssignment(pick, sl, alternatives, started)
		partial = append(partial, a)
		workload.add(a, sctx)
		res.CallAssignments = append(res.CallAssignments, a)
	}

	res.Iterations = s.improve(res, sctx, cons, deadline, ctx)
	if expired(ctx, deadline) {
		res.Complete = false
	}
	finishResult(res, cons, sctx, started)
	if s.Log != nil {
		s.Log.Infof("exact solved %d/%d slots in %s (complete=%v)", len(res.Assignments), len(slots), res.Duration, res.Complete)
	}
	return res, nil
}

// round walks slots in deterministic order and accepts, per slot, the
// hard-feasible candidate with the largest fractional value.
func (s *ExactSolver) round(p *lpProblem, fractions []float64, w *workloadState, maxLoad int, sctx *schedctx.Context, cons *constraint.Manager, deadline time.Time, ctx context.Context) ([]model.Assignment, int, map[string]bool) {
	partial := sctx.Locked()
	blocked := make(map[string]bool)
	unfillable := 0
	started := time.Now()

	for i, sl := range p.slots {
		if expired(ctx, deadline) {
			break
		}
		ranked := make([]scored, 0, len(p.vars[i]))
		for j, person := range p.vars[i] {
			ranked = append(ranked, scored{person: person, score: fractions[p.varOf[i][j]]})
		}
		rankCandidates(ranked, w)

		placed := false
		var why string
		for k := range ranked {
			cand := model.Assignment{
				PersonID: ranked[k].person.ID,
				BlockID:  sl.block.ID,
				Role:     sl.role,
				Rotation: sl.rotation,
			}
			ok, name := cons.CanAssign(partial, cand, sctx)
			if !ok {
				why = name
				continue
			}
			a := newAssignment(&ranked[k], sl, ranked[k+1:], started)
			partial = append(partial, a)
			w.add(a, sctx)
			placed = true
			break
		}
		if !placed {
			unfillable++
			if why != "" {
				blocked[why] = true
			} else {
				blocked["availability"] = true
			}
		}
	}
	return partial, unfillable, blocked
}

// improve runs a local search over pairs of assignments, swapping people
// between slots whenever the soft penalty drops. It returns the number
// of accepted improvements and stops at the deadline, making the solve
// anytime.
func (s *ExactSolver) improve(res *Result, sctx *schedctx.Context, cons *constraint.Manager, deadline time.Time, ctx context.Context) int {
	improved := 0
	for pass := 0; pass < 3; pass++ {
		changed := false
		base := append(sctx.Locked(), res.Assignments...)
		base = append(base, res.CallAssignments...)
		penalty := cons.SoftPenalty(base, sctx)

		for i := 0; i < len(res.Assignments); i++ {
			for j := i + 1; j < len(res.Assignments); j++ {
				if expired(ctx, deadline) {
					return improved
				}
				a, b := res.Assignments[i], res.Assignments[j]
				if a.Role != b.Role || a.PersonID == b.PersonID {
					continue
				}
				trial := append(sctx.Locked(), res.CallAssignments...)
				for k, cur := range res.Assignments {
					switch k {
					case i:
						cur.PersonID = b.PersonID
					case j:
						cur.PersonID = a.PersonID
					}
					trial = append(trial, cur)
				}
				verdict := cons.Validate(trial, sctx)
				if !verdict.Satisfied || verdict.Penalty >= penalty {
					continue
				}
				res.Assignments[i].PersonID = b.PersonID
				res.Assignments[j].PersonID = a.PersonID
				res.Assignments[i].Seal()
				res.Assignments[j].Seal()
				penalty = verdict.Penalty
				improved++
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return improved
}

func newAssignment(pick *scored, sl slot, alternatives []scored, at time.Time) model.Assignment {
	a := model.Assignment{
		ID:           uuid.New(),
		PersonID:     pick.person.ID,
		BlockID:      sl.block.ID,
		Role:         sl.role,
		Rotation:     sl.rotation,
		Score:        pick.score,
		Confidence:   confidence(pick.score, alternatives),
		Alternatives: alternativeIDs(alternatives),
		CreatedAt:    at,
	}
	a.Seal()
	return a
}

func expired(ctx context.Context, deadline time.Time) bool {
	return ctx.Err() != nil || time.Now().After(deadline)
}
