package solver

import (
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/openrota/openrota/core/model"
	"github.com/openrota/openrota/core/schedctx"
)

// Weights tunes the candidate scoring shared by the solvers. The score
// combines workload equity, availability tier, weekend wear and call
// load; higher is better.
type Weights struct {
	Equity      float64 `json:"equity"`
	Replacement float64 `json:"replacement"`
	Weekend     float64 `json:"weekend"`
	CallLoad    float64 `json:"call_load"`
	Seniority   float64 `json:"seniority"`
}

// DefaultWeights returns the scoring weights used when configuration
// does not override them.
func DefaultWeights() Weights {
	return Weights{
		Equity:      0.5,
		Replacement: 0.2,
		Weekend:     0.15,
		CallLoad:    0.1,
		Seniority:   0.05,
	}
}

// workloadState tracks the evolving load of every person during a solve
// pass. It starts from the snapshot's locked assignments.
type workloadState struct {
	blocks   map[uuid.UUID]int
	calls    map[uuid.UUID]int
	weekends map[uuid.UUID]int
	eligible map[uuid.UUID]int // index of first fully available block
}

func newWorkloadState(sctx *schedctx.Context) *workloadState {
	w := &workloadState{
		blocks:   make(map[uuid.UUID]int),
		calls:    make(map[uuid.UUID]int),
		weekends: make(map[uuid.UUID]int),
		eligible: make(map[uuid.UUID]int),
	}
	blocks := sctx.Blocks()
	for _, p := range append(sctx.Residents(), sctx.Faculty()...) {
		w.eligible[p.ID] = math.MaxInt32
		for i, b := range blocks {
			if sctx.Availability(p.ID, b.ID) == schedctx.Available {
				w.eligible[p.ID] = i
				break
			}
		}
	}
	for _, a := range sctx.Locked() {
		w.add(a, sctx)
	}
	return w
}

func (w *workloadState) add(a model.Assignment, sctx *schedctx.Context) {
	w.blocks[a.PersonID]++
	if a.Role == model.AssignCall {
		w.calls[a.PersonID]++
	}
	if b, ok := sctx.Block(a.BlockID); ok && b.Weekend {
		w.weekends[a.PersonID]++
	}
}

// candidateScore computes the weighted desirability of assigning p to s.
// More loaded people score lower, pushing the solvers toward equitable
// schedules.
func (weights Weights) candidateScore(p model.Person, s slot, w *workloadState, sctx *schedctx.Context, maxLoad int) float64 {
	loadNorm := 0.0
	if maxLoad > 0 {
		loadNorm = float64(w.blocks[p.ID]) / float64(maxLoad)
	}
	score := weights.Equity * (1 - loadNorm)

	if sctx.Availability(p.ID, s.block.ID) == schedctx.Available {
		score += weights.Replacement
	}
	if s.block.Weekend || s.block.Holiday {
		score += weights.Weekend * math.Exp(-float64(w.weekends[p.ID]))
	}
	if s.role == model.AssignCall {
		score += weights.CallLoad * math.Exp(-float64(w.calls[p.ID]))
	}
	if p.Role == model.RoleTrainee && p.TrainingYear > 2 {
		// Seniors absorb unsupervised load without tripping ratios.
		score += weights.Seniority
	}
	if score < 0 {
		return 0
	}
	return score
}

// scored pairs a candidate with its score for ranking.
type scored struct {
	person model.Person
	score  float64
}

// rankCandidates orders candidates by descending score with the shared
// deterministic tie-break: equal scores break by (a) lowest cumulative
// workload, (b) earliest eligibility, (c) stable identity order.
func rankCandidates(cands []scored, w *workloadState) {
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if w.blocks[a.person.ID] != w.blocks[b.person.ID] {
			return w.blocks[a.person.ID] < w.blocks[b.person.ID]
		}
		if w.eligible[a.person.ID] != w.eligible[b.person.ID] {
			return w.eligible[a.person.ID] < w.eligible[b.person.ID]
		}
		return a.person.ID.String() < b.person.ID.String()
	})
}
