package solver

import (
	"context"
	"math"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/openrota/openrota/core/constraint"
	"github.com/openrota/openrota/core/logger"
	"github.com/openrota/openrota/core/model"
	"github.com/openrota/openrota/core/schedctx"
)

// AnnealConfig tunes the simulated annealing schedule. The seed makes
// runs reproducible; identical seeds on identical input yield identical
// schedules.
type AnnealConfig struct {
	Seed          int64   `json:"seed"`
	InitialTemp   float64 `json:"initial_temp"`
	MinTemp       float64 `json:"min_temp"`
	Cooling       float64 `json:"cooling"`
	SweepsPerTemp int     `json:"sweeps_per_temp"`
}

// SetDefaults fills unset fields with a geometric schedule that cools in
// a few thousand sweeps.
func (c *AnnealConfig) SetDefaults() {
	if c.InitialTemp <= 0 {
		c.InitialTemp = 10
	}
	if c.MinTemp <= 0 {
		c.MinTemp = 1e-3
	}
	if c.Cooling <= 0 || c.Cooling >= 1 {
		c.Cooling = 0.95
	}
	if c.SweepsPerTemp <= 0 {
		c.SweepsPerTemp = 20
	}
}

// MetaheuristicSolver reformulates slot filling as a quadratic
// unconstrained binary objective and optimizes it with simulated
// annealing. It is the choice when problem size makes the exact solver
// intractable within budget.
type MetaheuristicSolver struct {
	Weights Weights
	Config  AnnealConfig
	Log     logger.Logger
}

// NewMetaheuristicSolver returns an annealing solver with default
// weights and schedule.
func NewMetaheuristicSolver(cfg AnnealConfig, log logger.Logger) *MetaheuristicSolver {
	cfg.SetDefaults()
	return &MetaheuristicSolver{Weights: DefaultWeights(), Config: cfg, Log: log}
}

// Name implements Solver.
func (s *MetaheuristicSolver) Name() string { return "anneal" }

// quboModel holds the symmetric objective matrix over the slot-candidate
// variables. Diagonal entries carry the linear terms (z^2 = z for
// binaries); off-diagonal entries carry one-hot and conflict penalties.
type quboModel struct {
	prob *lpProblem
	q    *mat.SymDense
}

const (
	onehotPenalty   = 50.0
	conflictPenalty = 50.0
)

func buildQUBO(prob *lpProblem, scores []float64) *quboModel {
	n := prob.nvars
	q := mat.NewSymDense(n, nil)

	for i := 0; i < n; i++ {
		// Reward taking the variable, minus the expanded one-hot term.
		q.SetSym(i, i, -scores[i]-onehotPenalty)
	}
	for si := range prob.slots {
		cols := prob.varOf[si]
		for a := 0; a < len(cols); a++ {
			for b := a + 1; b < len(cols); b++ {
				q.SetSym(cols[a], cols[b], q.At(cols[a], cols[b])+onehotPenalty)
			}
		}
	}
	// Same person cannot take two slots of one block.
	byPersonBlock := make(map[string][]int)
	for si, sl := range prob.slots {
		for j, person := range prob.vars[si] {
			key := person.ID.String() + "/" + sl.block.ID.String()
			byPersonBlock[key] = append(byPersonBlock[key], prob.varOf[si][j])
		}
	}
	for _, cols := range byPersonBlock {
		for a := 0; a < len(cols); a++ {
			for b := a + 1; b < len(cols); b++ {
				q.SetSym(cols[a], cols[b], q.At(cols[a], cols[b])+conflictPenalty)
			}
		}
	}
	return &quboModel{prob: prob, q: q}
}

// energy evaluates z^T Q z for the binary state.
func (m *quboModel) energy(state []bool) float64 {
	var e float64
	n := len(state)
	for i := 0; i < n; i++ {
		if !state[i] {
			continue
		}
		e += m.q.At(i, i)
		for j := i + 1; j < n; j++ {
			if state[j] {
				e += 2 * m.q.At(i, j)
			}
		}
	}
	return e
}

// flipDelta returns the energy change of toggling variable i.
func (m *quboModel) flipDelta(state []bool, i int) float64 {
	delta := m.q.At(i, i)
	for j := range state {
		if j != i && state[j] {
			delta += 2 * m.q.At(i, j)
		}
	}
	if state[i] {
		return -delta
	}
	return delta
}

// Solve implements Solver.
func (s *MetaheuristicSolver) Solve(ctx context.Context, sctx *schedctx.Context, cons *constraint.Manager, timeout time.Duration) (*Result, error) {
	started := time.Now()
	deadline := deadlineFrom(ctx, timeout, started)
	res := &Result{Algorithm: s.Name()}

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
	qubo := buildQUBO(prob, scores)

	state := make([]bool, prob.nvars)
	for i := range prob.slots {
		// Deterministic warm start: first best-scoring candidate per
		// slot.
		bestCol, bestScore := -1, math.Inf(-1)
		for _, col := range prob.varOf[i] {
			if scores[col] > bestScore {
				bestCol, bestScore = col, scores[col]
			}
		}
		if bestCol >= 0 {
			state[bestCol] = true
		}
	}

	rng := rand.New(rand.NewSource(s.Config.Seed))
	best := append([]bool(nil), state...)
	bestE := qubo.energy(state)
	curE := bestE
	cooled := true

	for temp := s.Config.InitialTemp; temp > s.Config.MinTemp; temp *= s.Config.Cooling {
		if expired(ctx, deadline) {
			cooled = false
			break
		}
		for sweep := 0; sweep < s.Config.SweepsPerTemp; sweep++ {
			if prob.nvars == 0 {
				break
			}
			i := rng.Intn(prob.nvars)
			delta := qubo.flipDelta(state, i)
			if delta <= 0 || rng.Float64() < math.Exp(-delta/temp) {
				state[i] = !state[i]
				curE += delta
				if curE < bestE {
					bestE = curE
					copy(best, state)
				}
			}
			res.Iterations++
		}
	}
	res.Complete = cooled

	partial := s.decode(best, prob, workload, sctx, cons, started)
	res.Assignments = partial[len(sctx.Locked()):]

	// On-call demand is assigned greedily on top of the annealed core.
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

	finishResult(res, cons, sctx, started)
	if s.Log != nil {
		s.Log.Infof("anneal finished at energy %.2f after %d moves in %s", bestE, res.Iterations, res.Duration)
	}
	return res, nil
}

// decode turns the best binary state into hard-feasible assignments,
// repairing slots whose annealed pick violates a hard constraint.
func (s *MetaheuristicSolver) decode(state []bool, prob *lpProblem, w *workloadState, sctx *schedctx.Context, cons *constraint.Manager, started time.Time) []model.Assignment {
	partial := sctx.Locked()
	for i, sl := range prob.slots {
		ranked := make([]scored, 0, len(prob.vars[i]))
		for j, person := range prob.vars[i] {
			score := 0.0
			if state[prob.varOf[i][j]] {
				score = 1
			}
			ranked = append(ranked, scored{person: person, score: score})
		}
		rankCandidates(ranked, w)
		for k := range ranked {
			cand := model.Assignment{
				PersonID: ranked[k].person.ID,
				BlockID:  sl.block.ID,
				Role:     sl.role,
				Rotation: sl.rotation,
			}
			if ok, _ := cons.CanAssign(partial, cand, sctx); !ok {
				continue
			}
			a := newAssignment(&ranked[k], sl, ranked[k+1:], started)
			partial = append(partial, a)
			w.add(a, sctx)
			break
		}
	}
	return partial
}
