package solver

import (
	"sort"

	"github.com/google/uuid"

	"github.com/openrota/openrota/core/model"
	"github.com/openrota/openrota/core/schedctx"
)

// slot is one position to fill: a block within a rotation, in a given
// capacity. Slots are ordered by (date, half, rotation, role, index) so
// every solver walks them identically. Within a rotation-block the
// supervision slot comes first: the supervision rule evaluates partial
// schedules during feasibility probes, so a junior offered a clinical
// slot must already see the block's supervisor.
type slot struct {
	block    model.Block
	rotation string
	role     model.AssignmentRole
	index    int // 0-based head index within the rotation-block
}

// fillOrder ranks roles for slot ordering; supervision is staffed
// before the clinical heads it covers.
func fillOrder(r model.AssignmentRole) int {
	if r == model.AssignSupervision {
		return 0
	}
	return 1
}

// buildSlots derives the demand from the snapshot: for every block and
// every template, MinHeads clinical slots (default one), and one
// supervision slot per block that carries clinical demand. Slots already
// satisfied by pre-locked assignments are excluded.
func buildSlots(sctx *schedctx.Context) []slot {
	var rotations []model.RotationTemplate
	seen := make(map[string]bool)
	arena := sctx.Templates()
	for _, t := range arenaTemplates(arena) {
		if !seen[t.Rotation] {
			seen[t.Rotation] = true
			rotations = append(rotations, t)
		}
	}
	sort.Slice(rotations, func(i, j int) bool { return rotations[i].Rotation < rotations[j].Rotation })

	lockedHeads := make(map[string]int) // rotation/block -> heads already locked
	lockedSup := make(map[uuid.UUID]bool)
	for _, l := range sctx.Locked() {
		if l.Role == model.AssignSupervision {
			lockedSup[l.BlockID] = true
			continue
		}
		lockedHeads[l.Rotation+"/"+l.BlockID.String()]++
	}

	var slots []slot
	for _, b := range sctx.Blocks() {
		for _, t := range rotations {
			heads := t.MinHeads
			if heads <= 0 {
				heads = 1
			}
			heads -= lockedHeads[t.Rotation+"/"+b.ID.String()]
			for i := 0; i < heads; i++ {
				slots = append(slots, slot{block: b, rotation: t.Rotation, role: model.AssignClinical, index: i})
			}
			if heads > 0 && !lockedSup[b.ID] {
				slots = append(slots, slot{block: b, rotation: t.Rotation, role: model.AssignSupervision, index: 0})
				lockedSup[b.ID] = true
			}
		}
	}
	sort.SliceStable(slots, func(i, j int) bool {
		a, b := slots[i], slots[j]
		if !a.block.Date.Equal(b.block.Date) {
			return a.block.Date.Before(b.block.Date)
		}
		if a.block.Half != b.block.Half {
			return a.block.Half < b.block.Half
		}
		if a.rotation != b.rotation {
			return a.rotation < b.rotation
		}
		if a.role != b.role {
			return fillOrder(a.role) < fillOrder(b.role)
		}
		return a.index < b.index
	})
	return slots
}

// arenaTemplates lists the arena contents in stable ID order.
func arenaTemplates(arena *model.TemplateArena) []model.RotationTemplate {
	var ids []uuid.UUID
	walked := make(map[uuid.UUID]bool)
	// The arena has no global iterator by design; resolve from every
	// known rotation entry point. Fall back to a synthetic general
	// rotation when the arena is empty.
	for _, t := range arena.Snapshot() {
		if !walked[t.ID] {
			walked[t.ID] = true
			ids = append(ids, t.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	out := make([]model.RotationTemplate, 0, len(ids))
	for _, id := range ids {
		if t, ok := arena.Get(id); ok {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		out = append(out, model.RotationTemplate{Rotation: "general", MinHeads: 1})
	}
	return out
}

// candidatePool returns the people eligible for a slot before hard
// constraint filtering: availability and role fit.
func candidatePool(sctx *schedctx.Context, s slot) []model.Person {
	var pool []model.Person
	if s.role == model.AssignSupervision {
		pool = sctx.Faculty()
	} else {
		pool = sctx.Residents()
	}
	out := make([]model.Person, 0, len(pool))
	for _, p := range pool {
		if sctx.Availability(p.ID, s.block.ID) == schedctx.Unavailable {
			continue
		}
		if s.role != model.AssignCall && !p.CanCover(s.rotation) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// callSlots returns one on-call slot per calendar day, anchored to the
// PM block.
func callSlots(sctx *schedctx.Context) []slot {
	var out []slot
	for _, b := range sctx.Blocks() {
		if b.Half == model.HalfPM {
			out = append(out, slot{block: b, rotation: "call", role: model.AssignCall})
		}
	}
	return out
}
