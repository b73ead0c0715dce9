package model

import (
	"sort"

	"github.com/google/uuid"
)

// RotationTemplate describes the composition requirements of a rotation:
// how many heads a block needs, which specialties qualify, and which
// component templates a composite rotation is built from.
//
// Templates form a flat ID-keyed arena. Composite templates reference
// their components by ID and are resolved by lookup at use time, never
// embedded by value.
type RotationTemplate struct {
	ID        uuid.UUID
	Name      string
	Rotation  string
	MinHeads  int         // minimum people per block, 0 = no floor
	MaxHeads  int         // capacity per block, 0 = unbounded
	Specialty string      // required specialty, empty = any
	Component []uuid.UUID // component template IDs for composites
}

// TemplateArena stores templates in a flat map and resolves composite
// references by ID lookup.
type TemplateArena struct {
	templates map[uuid.UUID]RotationTemplate
}

// NewTemplateArena builds an arena from the given templates.
func NewTemplateArena(templates []RotationTemplate) *TemplateArena {
	m := make(map[uuid.UUID]RotationTemplate, len(templates))
	for _, t := range templates {
		m[t.ID] = t
	}
	return &TemplateArena{templates: m}
}

// Get returns the template with the given ID.
func (a *TemplateArena) Get(id uuid.UUID) (RotationTemplate, bool) {
	t, ok := a.templates[id]
	return t, ok
}

// ByRotation returns the first template covering the named rotation.
func (a *TemplateArena) ByRotation(rotation string) (RotationTemplate, bool) {
	for _, t := range a.templates {
		if t.Rotation == rotation {
			return t, true
		}
	}
	return RotationTemplate{}, false
}

// Resolve returns the template and, transitively, all component
// templates. Cycles are tolerated: each template is visited once.
func (a *TemplateArena) Resolve(id uuid.UUID) []RotationTemplate {
	seen := make(map[uuid.UUID]bool)
	var out []RotationTemplate
	var walk func(uuid.UUID)
	walk = func(tid uuid.UUID) {
		if seen[tid] {
			return
		}
		seen[tid] = true
		t, ok := a.templates[tid]
		if !ok {
			return
		}
		out = append(out, t)
		for _, c := range t.Component {
			walk(c)
		}
	}
	walk(id)
	return out
}

// Dangling returns component references that do not resolve to a stored
// template.
func (a *TemplateArena) Dangling() []uuid.UUID {
	var missing []uuid.UUID
	for _, t := range a.templates {
		for _, c := range t.Component {
			if _, ok := a.templates[c]; !ok {
				missing = append(missing, c)
			}
		}
	}
	return missing
}

// Snapshot returns all stored templates in stable ID order.
func (a *TemplateArena) Snapshot() []RotationTemplate {
	out := make([]RotationTemplate, 0, len(a.templates))
	for _, t := range a.templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out
}

// Len returns the number of stored templates.
func (a *TemplateArena) Len() int { return len(a.templates) }
