// Package config loads the service configuration from a JSON or YAML
// file with optional environment overrides (OR__ prefix, double
// underscore as the path separator).
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/openrota/openrota/core/audit"
	"github.com/openrota/openrota/core/compliance"
	"github.com/openrota/openrota/core/factory"
	"github.com/openrota/openrota/core/metrics"
	"github.com/openrota/openrota/core/schedule"
	"github.com/openrota/openrota/core/swap"
	infranotify "github.com/openrota/openrota/infra/notify"
)

// SolverConfig tunes solver selection and behavior.
type SolverConfig struct {
	// Algorithm selects the solver: greedy, exact, anneal or
	// orchestrator (races all three).
	Algorithm string `json:"algorithm" yaml:"algorithm"`
	// TimeoutMS bounds each solve; expired solves return the best
	// feasible result found so far.
	TimeoutMS int            `json:"timeout_ms" yaml:"timeout_ms"`
	Anneal    AnnealSettings `json:"anneal" yaml:"anneal"`
	Weights   WeightSettings `json:"weights" yaml:"weights"`
}

// AnnealSettings mirrors the metaheuristic schedule parameters.
type AnnealSettings struct {
	Seed          int64   `json:"seed" yaml:"seed"`
	InitialTemp   float64 `json:"initial_temp" yaml:"initial_temp"`
	MinTemp       float64 `json:"min_temp" yaml:"min_temp"`
	Cooling       float64 `json:"cooling" yaml:"cooling"`
	SweepsPerTemp int     `json:"sweeps_per_temp" yaml:"sweeps_per_temp"`
}

// WeightSettings mirrors the candidate scoring weights. Zero values fall
// back to the solver defaults.
type WeightSettings struct {
	Equity      float64 `json:"equity" yaml:"equity"`
	Replacement float64 `json:"replacement" yaml:"replacement"`
	Weekend     float64 `json:"weekend" yaml:"weekend"`
	CallLoad    float64 `json:"call_load" yaml:"call_load"`
	Seniority   float64 `json:"seniority" yaml:"seniority"`
}

// NotifyConfig selects the notifier backend.
type NotifyConfig struct {
	Backend string             `json:"backend" yaml:"backend"` // nop | mqtt
	MQTT    infranotify.Config `json:"mqtt" yaml:"mqtt"`
}

// Config is the root service configuration.
type Config struct {
	Compliance  compliance.Config      `json:"compliance"`
	Solver      SolverConfig           `json:"solver"`
	Constraints []factory.ModuleConfig `json:"constraints"`
	Store       schedule.Config        `json:"store"`
	Audit       audit.Config           `json:"audit"`
	Metrics     metrics.Config         `json:"metrics"`
	Notify      NotifyConfig           `json:"notify"`
	Swap        swap.Config            `json:"swap"`
}

// Load reads, overlays and validates the configuration at path.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("OR_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "or_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults applies sane defaults to every section.
func (c *Config) SetDefaults() {
	c.Compliance.SetDefaults()
	c.Swap.SetDefaults()
	if c.Solver.Algorithm == "" {
		c.Solver.Algorithm = "orchestrator"
	}
	if c.Solver.TimeoutMS <= 0 {
		c.Solver.TimeoutMS = 30_000
	}
	if c.Store.Backend == "" {
		c.Store.Backend = "memory"
	}
	if c.Audit.Backend == "" {
		c.Audit.Backend = "nop"
	}
	if c.Notify.Backend == "" {
		c.Notify.Backend = "nop"
	}
}

// Validate checks cross-field consistency.
func (c Config) Validate() error {
	switch c.Solver.Algorithm {
	case "greedy", "exact", "anneal", "orchestrator":
	default:
		return fmt.Errorf("unknown solver algorithm %q", c.Solver.Algorithm)
	}
	switch c.Notify.Backend {
	case "nop", "mqtt":
	default:
		return fmt.Errorf("unknown notify backend %q", c.Notify.Backend)
	}
	if c.Notify.Backend == "mqtt" && c.Notify.MQTT.Broker == "" {
		return fmt.Errorf("notify: mqtt backend requires a broker")
	}
	if c.Store.Backend == "sqlite" && c.Store.Path == "" {
		return fmt.Errorf("store: sqlite backend requires a path")
	}
	return nil
}
