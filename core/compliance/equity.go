package compliance

import (
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/openrota/openrota/core/model"
)

// checkCallEquity is the soft call-equity rule: it flags, without
// blocking, trainees whose call counts deviate beyond the threshold from
// the cohort mean.
func (v *Validator) checkCallEquity(assignments []model.Assignment, view View) []model.Violation {
	calls := make(map[uuid.UUID]int)
	seen := make(map[uuid.UUID]bool)
	for _, a := range assignments {
		p, ok := view.Person(a.PersonID)
		if !ok || p.Role != model.RoleTrainee {
			continue
		}
		seen[p.ID] = true
		if a.Role == model.AssignCall {
			calls[p.ID]++
		}
	}
	if len(seen) == 0 {
		return nil
	}

	var total int
	for id := range seen {
		total += calls[id]
	}
	mean := float64(total) / float64(len(seen))

	var out []model.Violation
	for id := range seen {
		deviation := math.Abs(float64(calls[id]) - mean)
		if deviation <= v.cfg.CallEquityThreshold {
			continue
		}
		p, _ := view.Person(id)
		out = append(out, model.Violation{
			Kind:     model.ViolationCallEquity,
			Severity: model.SeverityWarning,
			PersonID: id,
			Message: fmt.Sprintf("%s has %d calls against a cohort mean of %.1f",
				p.Name, calls[id], mean),
			Penalty: deviation - v.cfg.CallEquityThreshold,
		})
	}
	return out
}
