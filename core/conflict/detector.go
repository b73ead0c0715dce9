// Package conflict inspects the committed schedule for structural and
// regulatory conflicts and proposes ranked remediations. Detection is
// read-only and remediations are proposals: nothing here mutates the
// schedule.
package conflict

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/openrota/openrota/core/compliance"
	"github.com/openrota/openrota/core/logger"
	"github.com/openrota/openrota/core/model"
	"github.com/openrota/openrota/core/schedctx"
)

// Kind classifies a detected conflict.
type Kind int

const (
	KindDoubleBooking Kind = iota
	KindAbsenceClash
	KindUncoveredSlot
	KindCapacityExceeded
	KindCompliance
)

// String returns a human-readable representation of the conflict kind.
func (k Kind) String() string {
	switch k {
	case KindDoubleBooking:
		return "double_booking"
	case KindAbsenceClash:
		return "absence_clash"
	case KindUncoveredSlot:
		return "uncovered_slot"
	case KindCapacityExceeded:
		return "capacity_exceeded"
	default:
		return "compliance"
	}
}

// Conflict is one detected problem in the committed schedule.
type Conflict struct {
	Kind          Kind
	Severity      model.Severity
	BlockID       uuid.UUID
	Date          time.Time
	Rotation      string
	PersonIDs     []uuid.UUID
	AssignmentIDs []uuid.UUID
	Message       string
}

// Detector scans committed assignments against the planning snapshot.
type Detector struct {
	validator *compliance.Validator
	log       logger.Logger
}

func NewDetector(v *compliance.Validator, log logger.Logger) *Detector {
	return &Detector{validator: v, log: log}
}

// Detect returns every conflict in the committed rows, deterministically
// ordered. Voided rows are ignored.
func (d *Detector) Detect(_ context.Context, sctx *schedctx.Context, committed []model.Assignment) []Conflict {
	active := make([]model.Assignment, 0, len(committed))
	for _, a := range committed {
		if !a.Voided {
			active = append(active, a)
		}
	}

	var conflicts []Conflict
	conflicts = append(conflicts, d.doubleBookings(sctx, active)...)
	conflicts = append(conflicts, d.absenceClashes(sctx, active)...)
	conflicts = append(conflicts, d.coverage(sctx, active)...)
	conflicts = append(conflicts, d.regulatory(sctx, active)...)

	sort.SliceStable(conflicts, func(i, j int) bool {
		a, b := conflicts[i], conflicts[j]
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
	if d.log != nil && len(conflicts) > 0 {
		d.log.Warnf("detected %d conflicts in committed schedule", len(conflicts))
	}
	return conflicts
}

func (d *Detector) doubleBookings(sctx *schedctx.Context, active []model.Assignment) []Conflict {
	bySlot := make(map[string][]model.Assignment)
	for _, a := range active {
		bySlot[a.SlotKey()] = append(bySlot[a.SlotKey()], a)
	}
	var out []Conflict
	for _, rows := range bySlot {
		if len(rows) < 2 {
			continue
		}
		sort.Slice(rows, func(i, j int) bool { return rows[i].ID.String() < rows[j].ID.String() })
		c := Conflict{
			Kind:     KindDoubleBooking,
			Severity: model.SeverityHard,
			BlockID:  rows[0].BlockID,
			Message:  fmt.Sprintf("person %s holds %d assignments for the same block", rows[0].PersonID, len(rows)),
		}
		if b, ok := sctx.Block(rows[0].BlockID); ok {
			c.Date = b.Date
		}
		c.PersonIDs = []uuid.UUID{rows[0].PersonID}
		for _, r := range rows {
			c.AssignmentIDs = append(c.AssignmentIDs, r.ID)
		}
		out = append(out, c)
	}
	return out
}

func (d *Detector) absenceClashes(sctx *schedctx.Context, active []model.Assignment) []Conflict {
	var out []Conflict
	for _, a := range active {
		if sctx.Availability(a.PersonID, a.BlockID) != schedctx.Unavailable {
			continue
		}
		c := Conflict{
			Kind:          KindAbsenceClash,
			Severity:      model.SeverityHard,
			BlockID:       a.BlockID,
			Rotation:      a.Rotation,
			PersonIDs:     []uuid.UUID{a.PersonID},
			AssignmentIDs: []uuid.UUID{a.ID},
			Message:       fmt.Sprintf("person %s is assigned during a blocking absence", a.PersonID),
		}
		if b, ok := sctx.Block(a.BlockID); ok {
			c.Date = b.Date
		}
		out = append(out, c)
	}
	return out
}

// coverage checks per-rotation head counts against the template floor
// and ceiling.
func (d *Detector) coverage(sctx *schedctx.Context, active []model.Assignment) []Conflict {
	type key struct {
		blockID  uuid.UUID
		rotation string
	}
	heads := make(map[key][]model.Assignment)
	for _, a := range active {
		if a.Role != model.AssignClinical {
			continue
		}
		k := key{blockID: a.BlockID, rotation: a.Rotation}
		heads[k] = append(heads[k], a)
	}

	var out []Conflict
	var templates []model.RotationTemplate
	seen := make(map[string]bool)
	for _, t := range sctx.Templates().Snapshot() {
		if !seen[t.Rotation] {
			seen[t.Rotation] = true
			templates = append(templates, t)
		}
	}
	for _, b := range sctx.Blocks() {
		for _, t := range templates {
			k := key{blockID: b.ID, rotation: t.Rotation}
			n := len(heads[k])
			if t.MinHeads > 0 && n < t.MinHeads {
				out = append(out, Conflict{
					Kind:     KindUncoveredSlot,
					Severity: model.SeverityHard,
					BlockID:  b.ID,
					Date:     b.Date,
					Rotation: t.Rotation,
					Message:  fmt.Sprintf("rotation %s has %d of %d required heads", t.Rotation, n, t.MinHeads),
				})
			}
			if t.MaxHeads > 0 && n > t.MaxHeads {
				c := Conflict{
					Kind:     KindCapacityExceeded,
					Severity: model.SeverityHard,
					BlockID:  b.ID,
					Date:     b.Date,
					Rotation: t.Rotation,
					Message:  fmt.Sprintf("rotation %s has %d heads over capacity %d", t.Rotation, n, t.MaxHeads),
				}
				for _, a := range heads[k] {
					c.AssignmentIDs = append(c.AssignmentIDs, a.ID)
					c.PersonIDs = append(c.PersonIDs, a.PersonID)
				}
				out = append(out, c)
			}
		}
	}
	return out
}

// regulatory surfaces compliance violations as conflicts so remediation
// can be proposed alongside structural problems.
func (d *Detector) regulatory(sctx *schedctx.Context, active []model.Assignment) []Conflict {
	if d.validator == nil {
		return nil
	}
	report := d.validator.Validate(active, sctx)
	var out []Conflict
	for _, v := range report.Violations {
		if v.Severity != model.SeverityHard {
			continue
		}
		c := Conflict{
			Kind:     KindCompliance,
			Severity: v.Severity,
			BlockID:  v.BlockID,
			Date:     v.Date,
			Message:  v.Message,
		}
		if v.PersonID != uuid.Nil {
			c.PersonIDs = []uuid.UUID{v.PersonID}
		}
		out = append(out, c)
	}
	return out
}
