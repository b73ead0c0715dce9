// Package metrics defines the observability sink contract for the
// scheduling engine. Sinks receive solve, validation, conflict and swap
// events; concrete backends live in infra/metrics.
package metrics

import "time"

// SolveEvent describes one finished solver run.
type SolveEvent struct {
	RunID       string
	Algorithm   string
	Success     bool
	Complete    bool
	Assignments int
	Unfilled    int
	Score       float64
	Duration    time.Duration
	Time        time.Time
}

// ValidationEvent describes one compliance audit.
type ValidationEvent struct {
	Valid          bool
	HardViolations int
	SoftViolations int
	Acknowledged   int
	CoverageRate   float64
	Time           time.Time
}

// ConflictEvent describes one conflict scan over the committed range.
type ConflictEvent struct {
	Conflicts int
	ByKind    map[string]int
	Time      time.Time
}

// SwapEvent describes one swap lifecycle transition.
type SwapEvent struct {
	SwapID  string
	Action  string
	Outcome string // ok | aborted | error
	Time    time.Time
}

// Sink records scheduling events for observability purposes.
type Sink interface {
	RecordSolve(ev SolveEvent) error
	RecordValidation(ev ValidationEvent) error
	RecordConflicts(ev ConflictEvent) error
	RecordSwap(ev SwapEvent) error
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) RecordSolve(SolveEvent) error           { return nil }
func (NopSink) RecordValidation(ValidationEvent) error { return nil }
func (NopSink) RecordConflicts(ConflictEvent) error    { return nil }
func (NopSink) RecordSwap(SwapEvent) error             { return nil }

// MultiSink fans events out to multiple sinks, returning the first
// error encountered.
type MultiSink struct {
	Sinks []Sink
}

func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

func (m *MultiSink) RecordSolve(ev SolveEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordSolve(ev); err != nil {
			return err
		}
	}
	return nil
}

func (m *MultiSink) RecordValidation(ev ValidationEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordValidation(ev); err != nil {
			return err
		}
	}
	return nil
}

func (m *MultiSink) RecordConflicts(ev ConflictEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordConflicts(ev); err != nil {
			return err
		}
	}
	return nil
}

func (m *MultiSink) RecordSwap(ev SwapEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordSwap(ev); err != nil {
			return err
		}
	}
	return nil
}
