package compliance

import (
	"fmt"
	"time"

	"github.com/openrota/openrota/core/model"
)

// checkDutyHours enforces the average-duty-hour ceiling: for every
// trailing duty window ending on each day of a person's history, the
// average weekly clinical hours (block credit plus moonlighting) must
// not exceed the configured ceiling. Days before the first assignment
// count as zero hours, not as violations.
func (v *Validator) checkDutyHours(assignments []model.Assignment, view View) []model.Violation {
	var out []model.Violation
	weeks := float64(v.cfg.DutyWindowDays) / 7.0

	for personID, history := range byPerson(assignments, view) {
		person, _ := view.Person(personID)
		if person.Role != model.RoleTrainee {
			continue
		}

		hoursByDay := make(map[time.Time]float64)
		var first, last time.Time
		for _, a := range history {
			b, ok := view.Block(a.BlockID)
			if !ok {
				continue
			}
			day := dayOf(b.Date)
			hoursByDay[day] += v.cfg.HoursPerBlock
			if first.IsZero() || day.Before(first) {
				first = day
			}
			if day.After(last) {
				last = day
			}
		}
		if first.IsZero() {
			continue
		}
		moonlightPerDay := person.MoonlightHours / 7.0

		for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
			var total float64
			for i := 0; i < v.cfg.DutyWindowDays; i++ {
				d := day.AddDate(0, 0, -i)
				total += hoursByDay[d]
				if !d.Before(first) {
					total += moonlightPerDay
				}
			}
			avgWeekly := total / weeks
			if avgWeekly > v.cfg.MaxWeeklyHours {
				out = append(out, model.Violation{
					Kind:     model.ViolationDutyHours,
					Severity: model.SeverityHard,
					PersonID: personID,
					Date:     day,
					Message: fmt.Sprintf("%s averages %.1fh/week over the %d days ending %s (limit %.0fh)",
						person.Name, avgWeekly, v.cfg.DutyWindowDays, day.Format("2006-01-02"), v.cfg.MaxWeeklyHours),
					Penalty: avgWeekly - v.cfg.MaxWeeklyHours,
				})
			}
		}
	}
	return out
}
