// Package constraint defines the constraint interface and the ordered
// manager evaluated against candidate assignment sets. Constraints are
// pure functions of (candidate set, snapshot): the same instances serve
// solver search, standalone audits and swap re-validation, so what was
// enforced is always what is reported.
package constraint

import (
	"github.com/openrota/openrota/core/model"
	"github.com/openrota/openrota/core/schedctx"
)

// Kind separates feasibility-defining hard constraints from
// quality-defining soft constraints.
type Kind int

const (
	Hard Kind = iota
	Soft
)

// String returns a human-readable representation of the constraint kind.
func (k Kind) String() string {
	if k == Soft {
		return "soft"
	}
	return "hard"
}

// Constraint evaluates a candidate assignment set against one rule.
type Constraint interface {
	Name() string
	Kind() Kind
	// Priority orders constraints within a kind; higher runs first and
	// weights soft penalties.
	Priority() int
	// Evaluate returns whether the rule holds, the penalty contribution
	// and the individual violations. Implementations must be pure.
	Evaluate(assignments []model.Assignment, sctx *schedctx.Context) (ok bool, penalty float64, violations []model.Violation)
}

// Incremental is implemented by hard constraints that can cheaply decide
// whether adding one assignment to a partial set stays feasible. Solvers
// use it in the inner search loop.
type Incremental interface {
	FeasibleAdd(partial []model.Assignment, candidate model.Assignment, sctx *schedctx.Context) bool
}

// Result aggregates one manager evaluation.
type Result struct {
	Satisfied  bool
	Violations []model.Violation
	Penalty    float64
}
