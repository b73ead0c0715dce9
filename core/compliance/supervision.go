package compliance

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/openrota/openrota/core/model"
)

// checkSupervision enforces the per-block supervision ratio. A junior
// trainee in a block with no supervisor at all is always a violation,
// regardless of the configured ratio.
func (v *Validator) checkSupervision(assignments []model.Assignment, view View) []model.Violation {
	byBlock := make(map[uuid.UUID][]model.Assignment)
	for _, a := range assignments {
		byBlock[a.BlockID] = append(byBlock[a.BlockID], a)
	}

	var out []model.Violation
	for blockID, list := range byBlock {
		block, ok := view.Block(blockID)
		if !ok {
			continue
		}
		juniors := 0
		supervisors := 0
		ratio := v.cfg.SupervisionRatio
		var firstJunior uuid.UUID
		for _, a := range list {
			p, ok := view.Person(a.PersonID)
			if !ok {
				continue
			}
			switch {
			case p.Role == model.RoleSupervisor || a.Role == model.AssignSupervision:
				supervisors++
				// A supervisor with a stricter personal ratio lowers the
				// ceiling for the whole block.
				if p.SupervisionRatio > 0 && p.SupervisionRatio < ratio {
					ratio = p.SupervisionRatio
				}
			case p.IsJunior():
				juniors++
				if firstJunior == uuid.Nil {
					firstJunior = p.ID
				}
			}
		}
		if juniors == 0 {
			continue
		}
		switch {
		case supervisors == 0:
			out = append(out, model.Violation{
				Kind:     model.ViolationSupervision,
				Severity: model.SeverityHard,
				PersonID: firstJunior,
				BlockID:  blockID,
				Date:     block.Date,
				Message: fmt.Sprintf("block %s has %d junior trainees and no supervisor",
					block.Key(), juniors),
				Penalty: float64(juniors),
			})
		case juniors > ratio*supervisors:
			out = append(out, model.Violation{
				Kind:     model.ViolationSupervision,
				Severity: model.SeverityHard,
				PersonID: firstJunior,
				BlockID:  blockID,
				Date:     block.Date,
				Message: fmt.Sprintf("block %s has %d juniors for %d supervisors (max ratio %d:1)",
					block.Key(), juniors, supervisors, ratio),
				Penalty: float64(juniors - ratio*supervisors),
			})
		}
	}
	return out
}
