// Package compliance implements the stateless regulatory rule engine:
// duty-hour averaging, rest periods, supervision ratios and call equity.
// The same validator serves as a solver constraint source, a standalone
// auditor over committed schedules, and the re-validation step of swap
// execution. All rule outcomes are data; the validator never returns an
// error for a rule breach.
package compliance

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/openrota/openrota/core/model"
)

// View resolves the people and blocks referenced by assignments. Both
// the planning snapshot and the committed store satisfy it.
type View interface {
	Person(id uuid.UUID) (model.Person, bool)
	Block(id uuid.UUID) (model.Block, bool)
}

// Report aggregates the outcome of one validation pass.
type Report struct {
	Valid           bool
	TotalViolations int
	CoverageRate    float64
	Violations      []model.Violation
}

// Validator evaluates the regulatory rules. It holds only configuration
// and is safe for concurrent use.
type Validator struct {
	cfg Config
}

// New returns a Validator with the given configuration; zero fields fall
// back to regulatory defaults.
func New(cfg Config) *Validator {
	cfg.SetDefaults()
	return &Validator{cfg: cfg}
}

// Config returns the effective configuration.
func (v *Validator) Config() Config { return v.cfg }

// Validate runs every rule over the given assignments. Voided rows are
// ignored. The report is deterministic: violations are ordered by
// (person, date, kind).
func (v *Validator) Validate(assignments []model.Assignment, view View) Report {
	live := make([]model.Assignment, 0, len(assignments))
	for _, a := range assignments {
		if !a.Voided {
			live = append(live, a)
		}
	}

	var violations []model.Violation
	violations = append(violations, v.checkDutyHours(live, view)...)
	violations = append(violations, v.checkRestPeriods(live, view)...)
	violations = append(violations, v.checkSupervision(live, view)...)
	violations = append(violations, v.checkCallEquity(live, view)...)

	sort.SliceStable(violations, func(i, j int) bool {
		a, b := violations[i], violations[j]
		if a.PersonID != b.PersonID {
			return a.PersonID.String() < b.PersonID.String()
		}
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.BlockID != b.BlockID {
			return a.BlockID.String() < b.BlockID.String()
		}
		return a.Message < b.Message
	})

	valid := true
	for _, viol := range violations {
		if viol.Severity == model.SeverityHard {
			valid = false
			break
		}
	}
	return Report{
		Valid:           valid,
		TotalViolations: len(violations),
		CoverageRate:    coverageRate(live, view),
		Violations:      violations,
	}
}

// byPerson groups live assignments into per-person histories sorted by
// block start.
func byPerson(assignments []model.Assignment, view View) map[uuid.UUID][]model.Assignment {
	grouped := make(map[uuid.UUID][]model.Assignment)
	for _, a := range assignments {
		grouped[a.PersonID] = append(grouped[a.PersonID], a)
	}
	for id, list := range grouped {
		sort.SliceStable(list, func(i, j int) bool {
			bi, iok := view.Block(list[i].BlockID)
			bj, jok := view.Block(list[j].BlockID)
			if !iok || !jok {
				return list[i].BlockID.String() < list[j].BlockID.String()
			}
			return bi.Before(bj)
		})
		grouped[id] = list
	}
	return grouped
}

// coverageRate reports the fraction of distinct blocks carrying at least
// one live assignment, relative to all blocks referenced or known.
func coverageRate(assignments []model.Assignment, view View) float64 {
	type blocker interface{ Blocks() []model.Block }
	covered := make(map[uuid.UUID]bool)
	for _, a := range assignments {
		covered[a.BlockID] = true
	}
	if b, ok := view.(blocker); ok {
		total := len(b.Blocks())
		if total == 0 {
			return 1
		}
		return float64(len(covered)) / float64(total)
	}
	if len(assignments) == 0 {
		return 1
	}
	return 1
}

func dayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
