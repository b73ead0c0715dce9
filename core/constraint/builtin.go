package constraint

import (
	"fmt"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"github.com/openrota/openrota/core/compliance"
	"github.com/openrota/openrota/core/model"
	"github.com/openrota/openrota/core/schedctx"
)

type base struct {
	name     string
	kind     Kind
	priority int
}

func (b base) Name() string  { return b.name }
func (b base) Kind() Kind    { return b.kind }
func (b base) Priority() int { return b.priority }

// AvailabilityConstraint forbids assigning people to blocks their
// absences make them unavailable for.
type AvailabilityConstraint struct{ base }

// NewAvailabilityConstraint returns the hard availability constraint.
func NewAvailabilityConstraint(priority int) *AvailabilityConstraint {
	return &AvailabilityConstraint{base{name: "availability", kind: Hard, priority: priority}}
}

func (c *AvailabilityConstraint) Evaluate(assignments []model.Assignment, sctx *schedctx.Context) (bool, float64, []model.Violation) {
	var violations []model.Violation
	for _, a := range assignments {
		if a.Voided {
			continue
		}
		if sctx.Availability(a.PersonID, a.BlockID) == schedctx.Unavailable {
			b, _ := sctx.Block(a.BlockID)
			p, _ := sctx.Person(a.PersonID)
			violations = append(violations, model.Violation{
				Kind:     model.ViolationEligibility,
				Severity: model.SeverityHard,
				PersonID: a.PersonID,
				BlockID:  a.BlockID,
				Date:     b.Date,
				Message:  fmt.Sprintf("%s is absent for block %s", p.Name, b.Key()),
				Penalty:  1,
			})
		}
	}
	return len(violations) == 0, float64(len(violations)), violations
}

// FeasibleAdd implements Incremental.
func (c *AvailabilityConstraint) FeasibleAdd(_ []model.Assignment, candidate model.Assignment, sctx *schedctx.Context) bool {
	return sctx.Availability(candidate.PersonID, candidate.BlockID) != schedctx.Unavailable
}

// SingleAssignmentConstraint enforces the invariant of at most one
// assignment per (person, block).
type SingleAssignmentConstraint struct{ base }

// NewSingleAssignmentConstraint returns the hard uniqueness constraint.
func NewSingleAssignmentConstraint(priority int) *SingleAssignmentConstraint {
	return &SingleAssignmentConstraint{base{name: "single_assignment", kind: Hard, priority: priority}}
}

func (c *SingleAssignmentConstraint) Evaluate(assignments []model.Assignment, sctx *schedctx.Context) (bool, float64, []model.Violation) {
	seen := make(map[string]bool)
	var violations []model.Violation
	for _, a := range assignments {
		if a.Voided {
			continue
		}
		key := a.SlotKey()
		if seen[key] {
			b, _ := sctx.Block(a.BlockID)
			p, _ := sctx.Person(a.PersonID)
			violations = append(violations, model.Violation{
				Kind:     model.ViolationOverlap,
				Severity: model.SeverityHard,
				PersonID: a.PersonID,
				BlockID:  a.BlockID,
				Date:     b.Date,
				Message:  fmt.Sprintf("%s is assigned twice to block %s", p.Name, b.Key()),
				Penalty:  1,
			})
		}
		seen[key] = true
	}
	return len(violations) == 0, float64(len(violations)), violations
}

// FeasibleAdd implements Incremental.
func (c *SingleAssignmentConstraint) FeasibleAdd(partial []model.Assignment, candidate model.Assignment, _ *schedctx.Context) bool {
	key := candidate.SlotKey()
	for _, a := range partial {
		if !a.Voided && a.SlotKey() == key {
			return false
		}
	}
	return true
}

// EligibilityConstraint requires specialty coverage and role sanity:
// only supervisors hold supervision assignments.
type EligibilityConstraint struct{ base }

// NewEligibilityConstraint returns the hard eligibility constraint.
func NewEligibilityConstraint(priority int) *EligibilityConstraint {
	return &EligibilityConstraint{base{name: "eligibility", kind: Hard, priority: priority}}
}

func (c *EligibilityConstraint) eligible(a model.Assignment, sctx *schedctx.Context) (bool, string) {
	p, ok := sctx.Person(a.PersonID)
	if !ok {
		return false, "unknown person"
	}
	if a.Role == model.AssignSupervision && p.Role != model.RoleSupervisor {
		return false, fmt.Sprintf("%s cannot supervise", p.Name)
	}
	if a.Rotation != "" && !p.CanCover(a.Rotation) {
		return false, fmt.Sprintf("%s lacks specialty for rotation %s", p.Name, a.Rotation)
	}
	return true, ""
}

func (c *EligibilityConstraint) Evaluate(assignments []model.Assignment, sctx *schedctx.Context) (bool, float64, []model.Violation) {
	var violations []model.Violation
	for _, a := range assignments {
		if a.Voided {
			continue
		}
		if ok, why := c.eligible(a, sctx); !ok {
			b, _ := sctx.Block(a.BlockID)
			violations = append(violations, model.Violation{
				Kind:     model.ViolationEligibility,
				Severity: model.SeverityHard,
				PersonID: a.PersonID,
				BlockID:  a.BlockID,
				Date:     b.Date,
				Message:  why,
				Penalty:  1,
			})
		}
	}
	return len(violations) == 0, float64(len(violations)), violations
}

// FeasibleAdd implements Incremental.
func (c *EligibilityConstraint) FeasibleAdd(_ []model.Assignment, candidate model.Assignment, sctx *schedctx.Context) bool {
	ok, _ := c.eligible(candidate, sctx)
	return ok
}

// CapacityConstraint enforces the rotation template head capacity per
// block.
type CapacityConstraint struct{ base }

// NewCapacityConstraint returns the hard capacity constraint.
func NewCapacityConstraint(priority int) *CapacityConstraint {
	return &CapacityConstraint{base{name: "capacity", kind: Hard, priority: priority}}
}

type rotationBlock struct {
	rotation string
	blockID  uuid.UUID
}

func (c *CapacityConstraint) Evaluate(assignments []model.Assignment, sctx *schedctx.Context) (bool, float64, []model.Violation) {
	counts := make(map[rotationBlock]int)
	for _, a := range assignments {
		if !a.Voided {
			counts[rotationBlock{a.Rotation, a.BlockID}]++
		}
	}
	var violations []model.Violation
	for key, n := range counts {
		tmpl, ok := sctx.Templates().ByRotation(key.rotation)
		if !ok || tmpl.MaxHeads <= 0 || n <= tmpl.MaxHeads {
			continue
		}
		b, _ := sctx.Block(key.blockID)
		violations = append(violations, model.Violation{
			Kind:     model.ViolationCapacity,
			Severity: model.SeverityHard,
			BlockID:  key.blockID,
			Date:     b.Date,
			Message:  fmt.Sprintf("rotation %s block %s holds %d people (capacity %d)", key.rotation, b.Key(), n, tmpl.MaxHeads),
			Penalty:  float64(n - tmpl.MaxHeads),
		})
	}
	return len(violations) == 0, float64(len(violations)), violations
}

// FeasibleAdd implements Incremental.
func (c *CapacityConstraint) FeasibleAdd(partial []model.Assignment, candidate model.Assignment, sctx *schedctx.Context) bool {
	tmpl, ok := sctx.Templates().ByRotation(candidate.Rotation)
	if !ok || tmpl.MaxHeads <= 0 {
		return true
	}
	n := 1
	for _, a := range partial {
		if !a.Voided && a.Rotation == candidate.Rotation && a.BlockID == candidate.BlockID {
			n++
		}
	}
	return n <= tmpl.MaxHeads
}

// ComplianceConstraint surfaces the hard regulatory rules (duty hours,
// rest periods, supervision ratio) as a solving constraint, delegating
// to the same validator used for post-hoc audits.
type ComplianceConstraint struct {
	base
	validator *compliance.Validator
}

// NewComplianceConstraint wraps the validator as a hard constraint.
func NewComplianceConstraint(priority int, v *compliance.Validator) *ComplianceConstraint {
	return &ComplianceConstraint{base: base{name: "compliance", kind: Hard, priority: priority}, validator: v}
}

func (c *ComplianceConstraint) Evaluate(assignments []model.Assignment, sctx *schedctx.Context) (bool, float64, []model.Violation) {
	report := c.validator.Validate(assignments, sctx)
	var violations []model.Violation
	var penalty float64
	for _, v := range report.Violations {
		if v.Severity != model.SeverityHard {
			continue
		}
		violations = append(violations, v)
		penalty += v.Penalty
	}
	return len(violations) == 0, penalty, violations
}

// CallEquityConstraint surfaces the soft call-equity rule.
type CallEquityConstraint struct {
	base
	validator *compliance.Validator
}

// NewCallEquityConstraint wraps the validator's equity rule as a soft
// constraint.
func NewCallEquityConstraint(priority int, v *compliance.Validator) *CallEquityConstraint {
	return &CallEquityConstraint{base: base{name: "call_equity", kind: Soft, priority: priority}, validator: v}
}

func (c *CallEquityConstraint) Evaluate(assignments []model.Assignment, sctx *schedctx.Context) (bool, float64, []model.Violation) {
	report := c.validator.Validate(assignments, sctx)
	var violations []model.Violation
	var penalty float64
	for _, v := range report.Violations {
		if v.Kind != model.ViolationCallEquity {
			continue
		}
		violations = append(violations, v)
		penalty += v.Penalty
	}
	return len(violations) == 0, penalty, violations
}

// WorkloadBalanceConstraint penalizes uneven block counts across the
// trainee cohort. The penalty is the standard deviation of per-person
// assignment counts.
type WorkloadBalanceConstraint struct{ base }

// NewWorkloadBalanceConstraint returns the soft workload balance
// constraint.
func NewWorkloadBalanceConstraint(priority int) *WorkloadBalanceConstraint {
	return &WorkloadBalanceConstraint{base{name: "workload_balance", kind: Soft, priority: priority}}
}

func (c *WorkloadBalanceConstraint) Evaluate(assignments []model.Assignment, sctx *schedctx.Context) (bool, float64, []model.Violation) {
	counts := make(map[uuid.UUID]float64)
	for _, a := range assignments {
		if a.Voided {
			continue
		}
		if p, ok := sctx.Person(a.PersonID); ok && p.Role == model.RoleTrainee {
			counts[a.PersonID]++
		}
	}
	residents := sctx.Residents()
	if len(residents) < 2 {
		return true, 0, nil
	}
	loads := make([]float64, 0, len(residents))
	for _, p := range residents {
		loads = append(loads, counts[p.ID])
	}
	sd := stat.StdDev(loads, nil)
	return sd == 0, sd, nil
}

// WeekendSpreadConstraint penalizes back-to-back weekend duty for the
// same person.
type WeekendSpreadConstraint struct{ base }

// NewWeekendSpreadConstraint returns the soft weekend spread constraint.
func NewWeekendSpreadConstraint(priority int) *WeekendSpreadConstraint {
	return &WeekendSpreadConstraint{base{name: "weekend_spread", kind: Soft, priority: priority}}
}

func (c *WeekendSpreadConstraint) Evaluate(assignments []model.Assignment, sctx *schedctx.Context) (bool, float64, []model.Violation) {
	weekends := make(map[uuid.UUID]map[string]bool)
	for _, a := range assignments {
		if a.Voided {
			continue
		}
		b, ok := sctx.Block(a.BlockID)
		if !ok || !b.Weekend {
			continue
		}
		year, week := b.Date.ISOWeek()
		key := fmt.Sprintf("%d-%02d", year, week)
		if weekends[a.PersonID] == nil {
			weekends[a.PersonID] = make(map[string]bool)
		}
		weekends[a.PersonID][key] = true
	}
	var penalty float64
	for _, weeks := range weekends {
		if n := len(weeks); n > 1 {
			penalty += float64(n - 1)
		}
	}
	return penalty == 0, penalty, nil
}

// ReplacementPenaltyConstraint prefers fully available people over
// replacement-tier ones.
type ReplacementPenaltyConstraint struct{ base }

// NewReplacementPenaltyConstraint returns the soft replacement penalty.
func NewReplacementPenaltyConstraint(priority int) *ReplacementPenaltyConstraint {
	return &ReplacementPenaltyConstraint{base{name: "replacement_penalty", kind: Soft, priority: priority}}
}

func (c *ReplacementPenaltyConstraint) Evaluate(assignments []model.Assignment, sctx *schedctx.Context) (bool, float64, []model.Violation) {
	var penalty float64
	for _, a := range assignments {
		if a.Voided {
			continue
		}
		if sctx.Availability(a.PersonID, a.BlockID) == schedctx.Replacement {
			penalty++
		}
	}
	return penalty == 0, penalty, nil
}
