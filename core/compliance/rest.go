package compliance

import (
	"fmt"
	"sort"
	"time"

	"github.com/openrota/openrota/core/model"
)

type interval struct {
	start time.Time
	end   time.Time
}

// checkRestPeriods enforces the rest-period rule: every trailing rest
// window must contain at least one contiguous assignment-free period of
// the configured length.
func (v *Validator) checkRestPeriods(assignments []model.Assignment, view View) []model.Violation {
	var out []model.Violation
	rest := time.Duration(v.cfg.RestHours * float64(time.Hour))

	for personID, history := range byPerson(assignments, view) {
		person, _ := view.Person(personID)
		if person.Role != model.RoleTrainee {
			continue
		}

		busy := make([]interval, 0, len(history))
		var first, last time.Time
		for _, a := range history {
			b, ok := view.Block(a.BlockID)
			if !ok {
				continue
			}
			start := b.Start()
			busy = append(busy, interval{start: start, end: start.Add(time.Duration(v.cfg.HoursPerBlock * float64(time.Hour)))})
			day := dayOf(b.Date)
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
		busy = mergeIntervals(busy)

		for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
			winStart := day.AddDate(0, 0, -(v.cfg.RestWindowDays - 1))
			winEnd := day.AddDate(0, 0, 1)
			if maxFreeGap(busy, winStart, winEnd) >= rest {
				continue
			}
			out = append(out, model.Violation{
				Kind:     model.ViolationRestPeriod,
				Severity: model.SeverityHard,
				PersonID: personID,
				Date:     day,
				Message: fmt.Sprintf("%s has no %.0fh rest period in the %d days ending %s",
					person.Name, v.cfg.RestHours, v.cfg.RestWindowDays, day.Format("2006-01-02")),
				Penalty: 1,
			})
		}
	}
	return out
}

// mergeIntervals sorts and coalesces overlapping or touching intervals.
func mergeIntervals(in []interval) []interval {
	if len(in) == 0 {
		return in
	}
	sort.Slice(in, func(i, j int) bool { return in[i].start.Before(in[j].start) })
	out := []interval{in[0]}
	for _, iv := range in[1:] {
		lastIdx := len(out) - 1
		if !iv.start.After(out[lastIdx].end) {
			if iv.end.After(out[lastIdx].end) {
				out[lastIdx].end = iv.end
			}
			continue
		}
		out = append(out, iv)
	}
	return out
}

// maxFreeGap returns the longest assignment-free span inside
// [winStart, winEnd).
func maxFreeGap(busy []interval, winStart, winEnd time.Time) time.Duration {
	cursor := winStart
	var best time.Duration
	for _, iv := range busy {
		if !iv.end.After(winStart) {
			continue
		}
		if !iv.start.Before(winEnd) {
			break
		}
		start := iv.start
		if start.After(winEnd) {
			start = winEnd
		}
		if gap := start.Sub(cursor); gap > best {
			best = gap
		}
		if iv.end.After(cursor) {
			cursor = iv.end
		}
	}
	if cursor.Before(winEnd) {
		if gap := winEnd.Sub(cursor); gap > best {
			best = gap
		}
	}
	return best
}
