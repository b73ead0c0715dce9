package solver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/openrota/openrota/core/constraint"
	"github.com/openrota/openrota/core/logger"
	"github.com/openrota/openrota/core/schedctx"
)

// Orchestrator runs several solvers as independent parallel trials over
// the same read-only snapshot and selects the best feasible result:
// highest score among complete feasible runs, falling back to the best
// incomplete one.
type Orchestrator struct {
	Solvers []Solver
	Log     logger.Logger
}

// NewOrchestrator returns an orchestrator over the given solvers.
func NewOrchestrator(log logger.Logger, solvers ...Solver) *Orchestrator {
	return &Orchestrator{Solvers: solvers, Log: log}
}

// Name implements Solver.
func (o *Orchestrator) Name() string { return "orchestrator" }

// Solve implements Solver by racing the configured solvers.
func (o *Orchestrator) Solve(ctx context.Context, sctx *schedctx.Context, cons *constraint.Manager, timeout time.Duration) (*Result, error) {
	if len(o.Solvers) == 0 {
		return nil, fmt.Errorf("orchestrator: no solvers configured")
	}

	type outcome struct {
		res *Result
		err error
	}
	outcomes := make([]outcome, len(o.Solvers))
	var wg sync.WaitGroup
	for i, s := range o.Solvers {
		wg.Add(1)
		go func(i int, s Solver) {
			defer wg.Done()
			res, err := s.Solve(ctx, sctx, cons, timeout)
			outcomes[i] = outcome{res: res, err: err}
		}(i, s)
	}
	wg.Wait()

	var best *Result
	var firstErr error
	for _, oc := range outcomes {
		if oc.err != nil {
			if firstErr == nil {
				firstErr = oc.err
			}
			continue
		}
		if betterResult(oc.res, best) {
			best = oc.res
		}
	}
	if best == nil {
		return nil, firstErr
	}
	if o.Log != nil {
		o.Log.Infof("selected %s result (score %.3f, complete=%v)", best.Algorithm, best.Score, best.Complete)
	}
	return best, nil
}

// betterResult prefers feasible over infeasible, complete over
// incomplete, then higher score, then the earlier solver in the
// configured order for stability.
func betterResult(candidate, incumbent *Result) bool {
	if candidate == nil {
		return false
	}
	if incumbent == nil {
		return true
	}
	if candidate.Success != incumbent.Success {
		return candidate.Success
	}
	if candidate.Complete != incumbent.Complete {
		return candidate.Complete
	}
	return candidate.Score > incumbent.Score
}
