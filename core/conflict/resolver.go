package conflict

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/openrota/openrota/core/constraint"
	"github.com/openrota/openrota/core/logger"
	"github.com/openrota/openrota/core/model"
	"github.com/openrota/openrota/core/schedctx"
)

// Remedy actions.
const (
	ActionVoid     = "void"     // void one of the conflicting rows
	ActionReassign = "reassign" // void and hand the slot to a replacement
	ActionFill     = "fill"     // cover an open slot with a replacement
)

// Remedy is one proposed remediation step. Remedies are proposals: the
// resolver never applies them.
type Remedy struct {
	Action        string
	AssignmentID  uuid.UUID // row to void, when applicable
	ReplacementID uuid.UUID // person to receive the slot, when applicable
	Score         float64
	Rationale     string
}

// Resolution pairs a conflict with its ranked remediation candidates,
// best first.
type Resolution struct {
	Conflict Conflict
	Remedies []Remedy
}

// Resolver proposes remediations for detected conflicts. Replacement
// candidates are screened through the hard constraints against the
// committed rows, so a proposal never introduces a new violation.
type Resolver struct {
	cons *constraint.Manager
	log  logger.Logger
}

func NewResolver(cons *constraint.Manager, log logger.Logger) *Resolver {
	return &Resolver{cons: cons, log: log}
}

// Propose returns ranked remediation candidates for each conflict. The
// committed rows are consulted read-only.
func (r *Resolver) Propose(_ context.Context, sctx *schedctx.Context, committed []model.Assignment, conflicts []Conflict) []Resolution {
	load := activeLoad(committed)
	byID := make(map[uuid.UUID]model.Assignment, len(committed))
	active := make([]model.Assignment, 0, len(committed))
	for _, a := range committed {
		byID[a.ID] = a
		if !a.Voided {
			active = append(active, a)
		}
	}

	out := make([]Resolution, 0, len(conflicts))
	for _, c := range conflicts {
		res := Resolution{Conflict: c}
		switch c.Kind {
		case KindDoubleBooking, KindCapacityExceeded:
			res.Remedies = r.voidSurplus(c, byID)
		case KindAbsenceClash:
			res.Remedies = r.reassign(c, sctx, active, byID, load)
		case KindUncoveredSlot:
			res.Remedies = r.fill(c, sctx, active, load)
		case KindCompliance:
			res.Remedies = r.reassign(c, sctx, active, byID, load)
		}
		out = append(out, res)
	}
	return out
}

// voidSurplus proposes voiding conflicting rows, lowest solver score
// first so the strongest placement survives.
func (r *Resolver) voidSurplus(c Conflict, byID map[uuid.UUID]model.Assignment) []Remedy {
	var remedies []Remedy
	for _, id := range c.AssignmentIDs {
		a, ok := byID[id]
		if !ok {
			continue
		}
		remedies = append(remedies, Remedy{
			Action:       ActionVoid,
			AssignmentID: id,
			Score:        -a.Score,
			Rationale:    fmt.Sprintf("void row scored %.3f to clear the slot", a.Score),
		})
	}
	rankRemedies(remedies)
	return remedies
}

// reassign proposes handing each implicated row to the least-loaded
// eligible replacement. The voided row is dropped from the partial the
// candidates are screened against.
func (r *Resolver) reassign(c Conflict, sctx *schedctx.Context, active []model.Assignment, byID map[uuid.UUID]model.Assignment, load map[uuid.UUID]int) []Remedy {
	var target uuid.UUID
	role, rotation := model.AssignClinical, c.Rotation
	partial := active
	if len(c.AssignmentIDs) > 0 {
		target = c.AssignmentIDs[0]
		if a, ok := byID[target]; ok {
			role, rotation = a.Role, a.Rotation
			partial = withoutRow(active, target)
		}
	}
	var remedies []Remedy
	for _, p := range r.replacements(c, sctx, partial, role, rotation) {
		remedies = append(remedies, Remedy{
			Action:        ActionReassign,
			AssignmentID:  target,
			ReplacementID: p.ID,
			Score:         -float64(load[p.ID]),
			Rationale:     fmt.Sprintf("reassign to %s carrying %d committed blocks", p.Name, load[p.ID]),
		})
	}
	rankRemedies(remedies)
	return remedies
}

// fill proposes covering an open slot, least-loaded candidates first.
func (r *Resolver) fill(c Conflict, sctx *schedctx.Context, active []model.Assignment, load map[uuid.UUID]int) []Remedy {
	var remedies []Remedy
	for _, p := range r.replacements(c, sctx, active, model.AssignClinical, c.Rotation) {
		remedies = append(remedies, Remedy{
			Action:        ActionFill,
			ReplacementID: p.ID,
			Score:         -float64(load[p.ID]),
			Rationale:     fmt.Sprintf("assign %s carrying %d committed blocks", p.Name, load[p.ID]),
		})
	}
	rankRemedies(remedies)
	return remedies
}

// replacements lists people eligible to take over the conflicted slot,
// excluding the people already implicated. Each surviving candidate is
// probed against the hard constraints over the given partial.
func (r *Resolver) replacements(c Conflict, sctx *schedctx.Context, partial []model.Assignment, role model.AssignmentRole, rotation string) []model.Person {
	implicated := make(map[uuid.UUID]bool)
	for _, id := range c.PersonIDs {
		implicated[id] = true
	}
	var out []model.Person
	for _, p := range append(sctx.Residents(), sctx.Faculty()...) {
		if implicated[p.ID] {
			continue
		}
		if sctx.Availability(p.ID, c.BlockID) == schedctx.Unavailable {
			continue
		}
		if rotation != "" && !p.CanCover(rotation) {
			continue
		}
		if r.cons != nil {
			cand := model.Assignment{
				PersonID: p.ID,
				BlockID:  c.BlockID,
				Role:     role,
				Rotation: rotation,
			}
			if ok, name := r.cons.CanAssign(partial, cand, sctx); !ok {
				if r.log != nil {
					r.log.Debugf("replacement %s rejected by %s for block %s", p.Name, name, c.BlockID)
				}
				continue
			}
		}
		out = append(out, p)
	}
	return out
}

// withoutRow copies the rows minus the one with the given ID.
func withoutRow(rows []model.Assignment, id uuid.UUID) []model.Assignment {
	out := make([]model.Assignment, 0, len(rows))
	for _, a := range rows {
		if a.ID != id {
			out = append(out, a)
		}
	}
	return out
}

func activeLoad(committed []model.Assignment) map[uuid.UUID]int {
	load := make(map[uuid.UUID]int)
	for _, a := range committed {
		if !a.Voided {
			load[a.PersonID]++
		}
	}
	return load
}

// rankRemedies orders candidates best first with a stable tie-break on
// the identifiers.
func rankRemedies(remedies []Remedy) {
	sort.SliceStable(remedies, func(i, j int) bool {
		if remedies[i].Score != remedies[j].Score {
			return remedies[i].Score > remedies[j].Score
		}
		if remedies[i].ReplacementID != remedies[j].ReplacementID {
			return remedies[i].ReplacementID.String() < remedies[j].ReplacementID.String()
		}
		return remedies[i].AssignmentID.String() < remedies[j].AssignmentID.String()
	})
}
