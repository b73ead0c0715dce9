package constraint

import (
	"fmt"

	"github.com/openrota/openrota/core/compliance"
	"github.com/openrota/openrota/core/factory"
)

// priorityConf is the common decoded shape of constraint configuration.
type priorityConf struct {
	Priority int `json:"priority"`
}

// NewRegistry returns a factory registry over the closed set of known
// constraint kinds. Compliance-backed kinds share the given validator so
// solving, auditing and swap re-validation enforce identical rules.
func NewRegistry(v *compliance.Validator) *factory.Registry[Constraint] {
	reg := factory.NewRegistry[Constraint]()
	register := func(name string, build func(priority int) Constraint) {
		// Registration of the builtin set cannot collide.
		_ = reg.Register(name, func(conf map[string]any) (Constraint, error) {
			var c priorityConf
			if err := factory.Decode(conf, &c); err != nil {
				return nil, fmt.Errorf("constraint %s: %w", name, err)
			}
			return build(c.Priority), nil
		})
	}
	register("availability", func(p int) Constraint { return NewAvailabilityConstraint(p) })
	register("single_assignment", func(p int) Constraint { return NewSingleAssignmentConstraint(p) })
	register("eligibility", func(p int) Constraint { return NewEligibilityConstraint(p) })
	register("capacity", func(p int) Constraint { return NewCapacityConstraint(p) })
	register("compliance", func(p int) Constraint { return NewComplianceConstraint(p, v) })
	register("call_equity", func(p int) Constraint { return NewCallEquityConstraint(p, v) })
	register("workload_balance", func(p int) Constraint { return NewWorkloadBalanceConstraint(p) })
	register("weekend_spread", func(p int) Constraint { return NewWeekendSpreadConstraint(p) })
	register("replacement_penalty", func(p int) Constraint { return NewReplacementPenaltyConstraint(p) })
	return reg
}

// DefaultConfigs is the constraint set used when the configuration does
// not name one explicitly.
func DefaultConfigs() []factory.ModuleConfig {
	mods := []string{
		"single_assignment", "availability", "eligibility", "capacity", "compliance",
		"call_equity", "workload_balance", "weekend_spread", "replacement_penalty",
	}
	out := make([]factory.ModuleConfig, 0, len(mods))
	for i, name := range mods {
		out = append(out, factory.ModuleConfig{Type: name, Conf: map[string]any{"priority": len(mods) - i}})
	}
	return out
}

// NewManagerFromConfig builds a manager from module configurations,
// falling back to the default set when none are given.
func NewManagerFromConfig(cfgs []factory.ModuleConfig, v *compliance.Validator) (*Manager, error) {
	if len(cfgs) == 0 {
		cfgs = DefaultConfigs()
	}
	reg := NewRegistry(v)
	m := NewManager()
	for _, cfg := range cfgs {
		c, err := reg.Create(cfg)
		if err != nil {
			return nil, err
		}
		m.Register(c)
	}
	return m, nil
}
