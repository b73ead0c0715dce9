package constraint

import (
	"sort"
	"sync"

	"github.com/openrota/openrota/core/model"
	"github.com/openrota/openrota/core/schedctx"
)

// Manager holds an ordered set of constraints: hard before soft, then by
// descending priority, then by name for a stable order.
type Manager struct {
	mu          sync.RWMutex
	constraints []Constraint
}

// NewManager returns an empty manager.
func NewManager() *Manager {
	return &Manager{}
}

// Register adds a constraint, replacing any existing constraint with the
// same name.
func (m *Manager) Register(c Constraint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.constraints {
		if existing.Name() == c.Name() {
			m.constraints[i] = c
			m.sortLocked()
			return
		}
	}
	m.constraints = append(m.constraints, c)
	m.sortLocked()
}

func (m *Manager) sortLocked() {
	sort.SliceStable(m.constraints, func(i, j int) bool {
		ci, cj := m.constraints[i], m.constraints[j]
		if ci.Kind() != cj.Kind() {
			return ci.Kind() == Hard
		}
		if ci.Priority() != cj.Priority() {
			return ci.Priority() > cj.Priority()
		}
		return ci.Name() < cj.Name()
	})
}

// All returns the constraints in evaluation order.
func (m *Manager) All() []Constraint {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Constraint(nil), m.constraints...)
}

// ByKind returns the constraints of the given kind in evaluation order.
func (m *Manager) ByKind(kind Kind) []Constraint {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Constraint
	for _, c := range m.constraints {
		if c.Kind() == kind {
			out = append(out, c)
		}
	}
	return out
}

// Validate evaluates every constraint against the candidate set.
// Satisfied means no hard constraint reported a violation; soft
// penalties are weighted by constraint priority.
func (m *Manager) Validate(assignments []model.Assignment, sctx *schedctx.Context) Result {
	res := Result{Satisfied: true}
	for _, c := range m.All() {
		ok, penalty, violations := c.Evaluate(assignments, sctx)
		if c.Kind() == Hard {
			if !ok {
				res.Satisfied = false
			}
			res.Violations = append(res.Violations, violations...)
			continue
		}
		weight := float64(c.Priority())
		if weight <= 0 {
			weight = 1
		}
		res.Penalty += penalty * weight
		res.Violations = append(res.Violations, violations...)
	}
	return res
}

// CanAssign reports whether adding candidate to the partial set keeps
// every hard constraint feasible. Constraints implementing Incremental
// are consulted cheaply; the rest are evaluated on the extended set.
func (m *Manager) CanAssign(partial []model.Assignment, candidate model.Assignment, sctx *schedctx.Context) (bool, string) {
	extended := append(append([]model.Assignment(nil), partial...), candidate)
	for _, c := range m.ByKind(Hard) {
		if inc, ok := c.(Incremental); ok {
			if !inc.FeasibleAdd(partial, candidate, sctx) {
				return false, c.Name()
			}
			continue
		}
		if ok, _, _ := c.Evaluate(extended, sctx); !ok {
			return false, c.Name()
		}
	}
	return true, ""
}

// SoftPenalty returns the weighted soft penalty of the candidate set.
func (m *Manager) SoftPenalty(assignments []model.Assignment, sctx *schedctx.Context) float64 {
	var total float64
	for _, c := range m.ByKind(Soft) {
		_, penalty, _ := c.Evaluate(assignments, sctx)
		weight := float64(c.Priority())
		if weight <= 0 {
			weight = 1
		}
		total += penalty * weight
	}
	return total
}

// Count returns the number of registered constraints.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.constraints)
}
