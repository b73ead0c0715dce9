package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/openrota/openrota/core/metrics"
)

// PromSink records scheduling events in Prometheus metrics.
type PromSink struct {
	solves      *prometheus.CounterVec
	solveTime   *prometheus.HistogramVec
	score       prometheus.Gauge
	violations  *prometheus.GaugeVec
	coverage    prometheus.Gauge
	conflicts   prometheus.Gauge
	swapActions *prometheus.CounterVec
}

// NewPromSink registers metrics on the default Prometheus registerer.
func NewPromSink() (coremetrics.Sink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (coremetrics.Sink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	solves := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "schedule_solve_runs_total",
		Help: "Total number of solver runs",
	}, []string{"algorithm", "success", "complete"})
	solveTime := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "schedule_solve_duration_seconds",
		Help:    "Wall-clock duration of solver runs",
		Buckets: prometheus.DefBuckets,
	}, []string{"algorithm"})
	score := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "schedule_solve_score",
		Help: "Objective score of the most recent solver run",
	})
	violations := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "schedule_compliance_violations",
		Help: "Violations found by the most recent compliance audit",
	}, []string{"severity"})
	coverage := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "schedule_coverage_rate",
		Help: "Fraction of demanded blocks covered in the most recent audit",
	})
	conflicts := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "schedule_conflicts",
		Help: "Conflicts found by the most recent conflict scan",
	})
	swapActions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "schedule_swap_actions_total",
		Help: "Total number of swap lifecycle transitions",
	}, []string{"action", "outcome"})

	collectors := []prometheus.Collector{solves, solveTime, score, violations, coverage, conflicts, swapActions}
	for i, c := range collectors {
		if err := reg.Register(c); err != nil {
			if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
				collectors[i] = are.ExistingCollector
				continue
			}
			return nil, err
		}
	}
	sink := &PromSink{score: score, coverage: coverage, conflicts: conflicts}
	sink.solves = collectors[0].(*prometheus.CounterVec)
	sink.solveTime = collectors[1].(*prometheus.HistogramVec)
	sink.score = collectors[2].(prometheus.Gauge)
	sink.violations = collectors[3].(*prometheus.GaugeVec)
	sink.coverage = collectors[4].(prometheus.Gauge)
	sink.conflicts = collectors[5].(prometheus.Gauge)
	sink.swapActions = collectors[6].(*prometheus.CounterVec)
	return sink, nil
}

func (s *PromSink) RecordSolve(ev coremetrics.SolveEvent) error {
	s.solves.WithLabelValues(ev.Algorithm,
		strconv.FormatBool(ev.Success), strconv.FormatBool(ev.Complete)).Inc()
	s.solveTime.WithLabelValues(ev.Algorithm).Observe(ev.Duration.Seconds())
	s.score.Set(ev.Score)
	return nil
}

func (s *PromSink) RecordValidation(ev coremetrics.ValidationEvent) error {
	s.violations.WithLabelValues("hard").Set(float64(ev.HardViolations))
	s.violations.WithLabelValues("soft").Set(float64(ev.SoftViolations))
	s.coverage.Set(ev.CoverageRate)
	return nil
}

func (s *PromSink) RecordConflicts(ev coremetrics.ConflictEvent) error {
	s.conflicts.Set(float64(ev.Conflicts))
	return nil
}

func (s *PromSink) RecordSwap(ev coremetrics.SwapEvent) error {
	s.swapActions.WithLabelValues(ev.Action, ev.Outcome).Inc()
	return nil
}
