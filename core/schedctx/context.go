// Package schedctx builds the immutable snapshot a planning run operates
// on: roster, calendar blocks, absences, templates, the availability
// matrix and any pre-locked assignments. A built Context is read-only,
// so multiple solver trials can share one snapshot without locking.
package schedctx

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/openrota/openrota/core/model"
)

// Availability describes whether a person can take a block.
type Availability int

const (
	// Unavailable people are removed from solver eligibility.
	Unavailable Availability = iota
	// Replacement people are eligible but only as a fallback choice.
	Replacement
	// Available people are fully eligible.
	Available
)

// ContextBuildError reports a referential integrity failure during
// snapshot construction. It names the offending entity and reference.
type ContextBuildError struct {
	Entity string
	Ref    string
}

func (e *ContextBuildError) Error() string {
	return fmt.Sprintf("context build: %s references missing %s", e.Entity, e.Ref)
}

// Input collects the raw records a snapshot is built from.
type Input struct {
	Residents []model.Person
	Faculty   []model.Person
	Blocks    []model.Block
	Absences  []model.Absence
	Templates []model.RotationTemplate
	Locked    []model.Assignment // pre-locked assignments the solver must honor
}

// Context is the immutable planning snapshot. All accessors return
// copies or read-only views; nothing mutates after Build.
type Context struct {
	residents []model.Person
	faculty   []model.Person
	blocks    []model.Block
	absences  []model.Absence
	arena     *model.TemplateArena
	locked    []model.Assignment

	people   map[uuid.UUID]model.Person
	blockIdx map[uuid.UUID]model.Block
	avail    map[uuid.UUID]map[uuid.UUID]Availability
	lockedBy map[string]model.Assignment // slot key -> assignment
}

// Build validates referential integrity and derives the availability
// matrix. It fails with *ContextBuildError on any dangling reference.
func Build(in Input) (*Context, error) {
	c := &Context{
		residents: sortPeople(in.Residents),
		faculty:   sortPeople(in.Faculty),
		blocks:    sortBlocks(in.Blocks),
		absences:  append([]model.Absence(nil), in.Absences...),
		arena:     model.NewTemplateArena(in.Templates),
		locked:    append([]model.Assignment(nil), in.Locked...),
		people:    make(map[uuid.UUID]model.Person),
		blockIdx:  make(map[uuid.UUID]model.Block),
		avail:     make(map[uuid.UUID]map[uuid.UUID]Availability),
		lockedBy:  make(map[string]model.Assignment),
	}

	for _, p := range append(append([]model.Person(nil), c.residents...), c.faculty...) {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("context build: %w", err)
		}
		c.people[p.ID] = p
	}
	for _, b := range c.blocks {
		c.blockIdx[b.ID] = b
	}

	for _, a := range c.absences {
		if _, ok := c.people[a.PersonID]; !ok {
			return nil, &ContextBuildError{Entity: fmt.Sprintf("absence %s", a.ID), Ref: fmt.Sprintf("person %s", a.PersonID)}
		}
	}
	for _, missing := range c.arena.Dangling() {
		return nil, &ContextBuildError{Entity: "template", Ref: fmt.Sprintf("component template %s", missing)}
	}
	for _, l := range c.locked {
		if _, ok := c.people[l.PersonID]; !ok {
			return nil, &ContextBuildError{Entity: fmt.Sprintf("locked assignment %s", l.ID), Ref: fmt.Sprintf("person %s", l.PersonID)}
		}
		if _, ok := c.blockIdx[l.BlockID]; !ok {
			return nil, &ContextBuildError{Entity: fmt.Sprintf("locked assignment %s", l.ID), Ref: fmt.Sprintf("block %s", l.BlockID)}
		}
		if prev, dup := c.lockedBy[l.SlotKey()]; dup {
			return nil, fmt.Errorf("context build: locked assignments %s and %s occupy the same slot", prev.ID, l.ID)
		}
		c.lockedBy[l.SlotKey()] = l
	}

	c.buildAvailability()
	return c, nil
}

// buildAvailability derives the person x block availability matrix from
// absences. Blocking absences make the person unavailable; non-blocking
// absences demote them to replacement.
func (c *Context) buildAvailability() {
	absences := make(map[uuid.UUID][]model.Absence)
	for _, a := range c.absences {
		absences[a.PersonID] = append(absences[a.PersonID], a)
	}
	for id := range c.people {
		row := make(map[uuid.UUID]Availability, len(c.blocks))
		for _, b := range c.blocks {
			row[b.ID] = Available
			for _, a := range absences[id] {
				if !a.Covers(b.Date) {
					continue
				}
				if a.Blocking {
					row[b.ID] = Unavailable
					break
				}
				row[b.ID] = Replacement
			}
		}
		c.avail[id] = row
	}
}

// Residents returns the trainee roster in stable ID order.
func (c *Context) Residents() []model.Person {
	return append([]model.Person(nil), c.residents...)
}

// Faculty returns the supervisor roster in stable ID order.
func (c *Context) Faculty() []model.Person {
	return append([]model.Person(nil), c.faculty...)
}

// Blocks returns the calendar blocks in (date, AM/PM) order.
func (c *Context) Blocks() []model.Block {
	return append([]model.Block(nil), c.blocks...)
}

// Locked returns the pre-locked assignments.
func (c *Context) Locked() []model.Assignment {
	return append([]model.Assignment(nil), c.locked...)
}

// LockedAt returns the pre-locked assignment occupying the slot, if any.
func (c *Context) LockedAt(personID, blockID uuid.UUID) (model.Assignment, bool) {
	a, ok := c.lockedBy[personID.String()+"/"+blockID.String()]
	return a, ok
}

// Person resolves a person by ID.
func (c *Context) Person(id uuid.UUID) (model.Person, bool) {
	p, ok := c.people[id]
	return p, ok
}

// Block resolves a block by ID.
func (c *Context) Block(id uuid.UUID) (model.Block, bool) {
	b, ok := c.blockIdx[id]
	return b, ok
}

// Templates returns the template arena.
func (c *Context) Templates() *model.TemplateArena { return c.arena }

// Absences returns the absence records.
func (c *Context) Absences() []model.Absence {
	return append([]model.Absence(nil), c.absences...)
}

// Availability returns the derived availability of a person for a block.
// Unknown IDs report Unavailable.
func (c *Context) Availability(personID, blockID uuid.UUID) Availability {
	row, ok := c.avail[personID]
	if !ok {
		return Unavailable
	}
	return row[blockID]
}

func sortPeople(people []model.Person) []model.Person {
	out := append([]model.Person(nil), people...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out
}

func sortBlocks(blocks []model.Block) []model.Block {
	out := append([]model.Block(nil), blocks...)
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
