package model

import (
	"time"

	"github.com/google/uuid"
)

// AbsenceType classifies why the person is away.
type AbsenceType int

const (
	AbsenceVacation AbsenceType = iota
	AbsenceSick
	AbsenceConference
	AbsenceOther
)

// String returns a human-readable representation of the absence type.
func (t AbsenceType) String() string {
	switch t {
	case AbsenceVacation:
		return "vacation"
	case AbsenceSick:
		return "sick"
	case AbsenceConference:
		return "conference"
	default:
		return "other"
	}
}

// Absence is a date range during which a person is away. Blocking
// absences remove the person from solver eligibility; non-blocking ones
// only lower the soft preference for assigning them.
type Absence struct {
	ID       uuid.UUID
	PersonID uuid.UUID
	Start    time.Time
	End      time.Time // inclusive calendar day
	Type     AbsenceType
	Blocking bool
}

// Covers reports whether the absence spans the given calendar day.
func (a Absence) Covers(day time.Time) bool {
	d := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	return !d.Before(a.Start) && !d.After(a.End)
}
