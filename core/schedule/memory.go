package schedule

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openrota/openrota/core/model"
)

// MemoryStore is an in-memory Store for tests and ephemeral runs.
type MemoryStore struct {
	mu          sync.RWMutex
	blocks      map[uuid.UUID]model.Block
	runs        map[uuid.UUID]model.ScheduleRun
	assignments map[uuid.UUID]model.Assignment
	swaps       map[uuid.UUID]model.SwapRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		blocks:      make(map[uuid.UUID]model.Block),
		runs:        make(map[uuid.UUID]model.ScheduleRun),
		assignments: make(map[uuid.UUID]model.Assignment),
		swaps:       make(map[uuid.UUID]model.SwapRecord),
	}
}

func (s *MemoryStore) SaveBlocks(_ context.Context, blocks []model.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range blocks {
		s.blocks[b.ID] = b
	}
	return nil
}

func (s *MemoryStore) Block(_ context.Context, id uuid.UUID) (model.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blocks[id]
	if !ok {
		return model.Block{}, fmt.Errorf("block %s: %w", id, ErrNotFound)
	}
	return b, nil
}

func (s *MemoryStore) Blocks(_ context.Context, start, end time.Time) ([]model.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Block
	for _, b := range s.blocks {
		if !b.Date.Before(start) && !b.Date.After(end) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		if out[i].Half != out[j].Half {
			return out[i].Half < out[j].Half
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run model.ScheduleRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = run
	return nil
}

func (s *MemoryStore) Run(_ context.Context, id uuid.UUID) (model.ScheduleRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return model.ScheduleRun{}, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return run, nil
}

func (s *MemoryStore) Runs(_ context.Context) ([]model.ScheduleRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.ScheduleRun, 0, len(s.runs))
	for _, r := range s.runs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (s *MemoryStore) CommitAssignments(_ context.Context, assignments []model.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range assignments {
		if _, ok := s.blocks[a.BlockID]; !ok {
			return fmt.Errorf("commit assignment %s: unknown block %s", a.ID, a.BlockID)
		}
	}
	for _, a := range assignments {
		s.assignments[a.ID] = a
	}
	return nil
}

func (s *MemoryStore) Assignment(_ context.Context, id uuid.UUID) (model.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assignments[id]
	if !ok {
		return model.Assignment{}, fmt.Errorf("assignment %s: %w", id, ErrNotFound)
	}
	return a, nil
}

func (s *MemoryStore) AssignmentsInRange(_ context.Context, start, end time.Time, includeVoided bool) ([]model.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Assignment
	for _, a := range s.assignments {
		b, ok := s.blocks[a.BlockID]
		if !ok || b.Date.Before(start) || b.Date.After(end) {
			continue
		}
		if a.Voided && !includeVoided {
			continue
		}
		out = append(out, a)
	}
	sortAssignments(out)
	return out, nil
}

func (s *MemoryStore) AssignmentsFor(_ context.Context, personID uuid.UUID, includeVoided bool) ([]model.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Assignment
	for _, a := range s.assignments {
		if a.PersonID != personID {
			continue
		}
		if a.Voided && !includeVoided {
			continue
		}
		out = append(out, a)
	}
	sortAssignments(out)
	return out, nil
}

// ReplaceRows validates the whole batch before touching anything, so a
// failed replace leaves the store untouched.
func (s *MemoryStore) ReplaceRows(_ context.Context, void []VoidRequest, add []model.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range void {
		target, ok := s.assignments[v.ID]
		if !ok {
			return fmt.Errorf("void assignment %s: %w", v.ID, ErrNotFound)
		}
		if target.Voided {
			return fmt.Errorf("void assignment %s: already voided", v.ID)
		}
	}
	for _, a := range add {
		if _, ok := s.blocks[a.BlockID]; !ok {
			return fmt.Errorf("add assignment %s: unknown block %s", a.ID, a.BlockID)
		}
	}
	for _, v := range void {
		target := s.assignments[v.ID]
		target.Void(v.Reason, v.At)
		s.assignments[v.ID] = target
	}
	for _, a := range add {
		s.assignments[a.ID] = a
	}
	return nil
}

func (s *MemoryStore) SaveSwap(_ context.Context, rec model.SwapRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.swaps[rec.ID] = rec
	return nil
}

func (s *MemoryStore) Swap(_ context.Context, id uuid.UUID) (model.SwapRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.swaps[id]
	if !ok {
		return model.SwapRecord{}, fmt.Errorf("swap %s: %w", id, ErrNotFound)
	}
	return rec, nil
}

func (s *MemoryStore) SwapsInState(_ context.Context, state model.SwapState) ([]model.SwapRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.SwapRecord
	for _, rec := range s.swaps {
		if rec.State == state {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RequestedAt.Equal(out[j].RequestedAt) {
			return out[i].RequestedAt.Before(out[j].RequestedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }

func sortAssignments(rows []model.Assignment) {
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.Before(rows[j].CreatedAt)
		}
		return rows[i].ID.String() < rows[j].ID.String()
	})
}
