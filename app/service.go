// Package app assembles the scheduling service from configuration.
package app

import (
	"fmt"
	"time"

	"github.com/openrota/openrota/config"
	"github.com/openrota/openrota/core/audit"
	"github.com/openrota/openrota/core/compliance"
	"github.com/openrota/openrota/core/constraint"
	"github.com/openrota/openrota/core/engine"
	coremetrics "github.com/openrota/openrota/core/metrics"
	"github.com/openrota/openrota/core/notify"
	"github.com/openrota/openrota/core/schedule"
	"github.com/openrota/openrota/core/solver"
	"github.com/openrota/openrota/core/swap"
	"github.com/openrota/openrota/infra/logger"
	infranotify "github.com/openrota/openrota/infra/notify"
	"github.com/openrota/openrota/internal/eventbus"
	"github.com/openrota/openrota/internal/rangelock"

	_ "github.com/openrota/openrota/infra/metrics" // register sink backends
)

// Service owns the engine and every backend built from the config.
type Service struct {
	Engine   *engine.Engine
	Store    schedule.Store
	Trail    audit.Log
	Notifier notify.Notifier
	Sink     coremetrics.Sink
	Bus      *eventbus.Bus

	log logger.Logger
	cfg *config.Config
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")

	store, err := schedule.NewStore(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("schedule store: %w", err)
	}
	trail, err := audit.NewLog(cfg.Audit)
	if err != nil {
		return nil, fmt.Errorf("audit log: %w", err)
	}
	sink, err := coremetrics.NewSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}
	notifier, err := newNotifier(cfg.Notify)
	if err != nil {
		return nil, fmt.Errorf("notifier: %w", err)
	}

	validator := compliance.New(cfg.Compliance)
	constraintCfgs := cfg.Constraints
	if len(constraintCfgs) == 0 {
		constraintCfgs = constraint.DefaultConfigs()
	}
	cons, err := constraint.NewManagerFromConfig(constraintCfgs, validator)
	if err != nil {
		return nil, fmt.Errorf("constraints: %w", err)
	}

	acks := compliance.NewAckRegistry()
	locks := rangelock.New()
	bus := eventbus.New()
	swaps := swap.NewManager(store, validator, acks, locks, bus, trail, logg, cfg.Swap)

	eng, err := engine.New(engine.Deps{
		Store:       store,
		Validator:   validator,
		Acks:        acks,
		Constraints: cons,
		Solver:      newSolver(cfg.Solver, logg),
		Swaps:       swaps,
		Locks:       locks,
		Bus:         bus,
		Trail:       trail,
		Sink:        sink,
		Notifier:    notifier,
		Log:         logg,
	})
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	return &Service{
		Engine:   eng,
		Store:    store,
		Trail:    trail,
		Notifier: notifier,
		Sink:     sink,
		Bus:      bus,
		log:      logg,
		cfg:      cfg,
	}, nil
}

// SolveTimeout returns the per-solve budget from the configuration.
func (s *Service) SolveTimeout() time.Duration {
	return time.Duration(s.cfg.Solver.TimeoutMS) * time.Millisecond
}

// Close releases the backends. Errors are logged, not returned: shutdown
// should proceed past a failing store.
func (s *Service) Close() {
	if err := s.Notifier.Close(); err != nil {
		s.log.Warnf("notifier close: %v", err)
	}
	if err := s.Trail.Close(); err != nil {
		s.log.Warnf("audit log close: %v", err)
	}
	if err := s.Store.Close(); err != nil {
		s.log.Warnf("store close: %v", err)
	}
}

func newSolver(cfg config.SolverConfig, logg logger.Logger) solver.Solver {
	weights := solverWeights(cfg.Weights)
	anneal := solver.AnnealConfig{
		Seed:          cfg.Anneal.Seed,
		InitialTemp:   cfg.Anneal.InitialTemp,
		MinTemp:       cfg.Anneal.MinTemp,
		Cooling:       cfg.Anneal.Cooling,
		SweepsPerTemp: cfg.Anneal.SweepsPerTemp,
	}
	switch cfg.Algorithm {
	case "greedy":
		s := solver.NewGreedySolver(logg)
		s.Weights = weights
		return s
	case "exact":
		s := solver.NewExactSolver(logg)
		s.Weights = weights
		return s
	case "anneal":
		s := solver.NewMetaheuristicSolver(anneal, logg)
		s.Weights = weights
		return s
	default:
		greedy := solver.NewGreedySolver(logg)
		greedy.Weights = weights
		exact := solver.NewExactSolver(logg)
		exact.Weights = weights
		meta := solver.NewMetaheuristicSolver(anneal, logg)
		meta.Weights = weights
		return solver.NewOrchestrator(logg, greedy, exact, meta)
	}
}

func solverWeights(w config.WeightSettings) solver.Weights {
	if w == (config.WeightSettings{}) {
		return solver.DefaultWeights()
	}
	return solver.Weights{
		Equity:      w.Equity,
		Replacement: w.Replacement,
		Weekend:     w.Weekend,
		CallLoad:    w.CallLoad,
		Seniority:   w.Seniority,
	}
}

func newNotifier(cfg config.NotifyConfig) (notify.Notifier, error) {
	switch cfg.Backend {
	case "", "nop":
		return notify.NopNotifier{}, nil
	case "mqtt":
		return infranotify.NewMQTTNotifier(cfg.MQTT)
	default:
		return nil, fmt.Errorf("unknown notify backend %q", cfg.Backend)
	}
}
