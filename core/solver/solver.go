// Package solver implements the scheduling solver stack: a deterministic
// greedy baseline, an LP-based exact solver and a simulated-annealing
// metaheuristic, all sharing one result contract and one deterministic
// tie-break policy.
package solver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openrota/openrota/core/constraint"
	"github.com/openrota/openrota/core/model"
	"github.com/openrota/openrota/core/schedctx"
)

// Result is the common outcome of every solver.
type Result struct {
	Algorithm       string
	Success         bool
	Complete        bool // false when a timeout cut the search short
	Assignments     []model.Assignment
	CallAssignments []model.Assignment
	Violations      []model.Violation
	Score           float64
	Iterations      int
	Duration        time.Duration
}

// Solver is the common contract of the solver stack. Implementations
// honor the wall-clock timeout cooperatively: on expiry they return the
// best feasible solution found so far with Complete=false rather than
// blocking or failing.
type Solver interface {
	Name() string
	Solve(ctx context.Context, sctx *schedctx.Context, cons *constraint.Manager, timeout time.Duration) (*Result, error)
}

// InfeasibleError reports that no hard-feasible solution exists. It
// names the minimal set of constraints that blocked every candidate.
type InfeasibleError struct {
	Constraints []string
	Slots       int
}

func (e *InfeasibleError) Error() string {
	return fmt.Sprintf("no feasible solution: %d slots blocked by constraints [%s]",
		e.Slots, strings.Join(e.Constraints, ", "))
}

// deadlineFrom resolves the effective deadline from a context and a
// timeout, whichever comes first.
func deadlineFrom(ctx context.Context, timeout time.Duration, now time.Time) time.Time {
	deadline := now.Add(timeout)
	if timeout <= 0 {
		deadline = now.Add(30 * time.Second)
	}
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	return deadline
}

// finishResult evaluates the final candidate set (including the
// snapshot's pre-locked rows) against the manager and fills the shared
// result fields.
func finishResult(res *Result, cons *constraint.Manager, sctx *schedctx.Context, started time.Time) {
	all := append(sctx.Locked(), res.Assignments...)
	all = append(all, res.CallAssignments...)
	verdict := cons.Validate(all, sctx)
	res.Violations = verdict.Violations
	res.Score = -verdict.Penalty
	res.Success = verdict.Satisfied
	res.Duration = time.Since(started)
}
