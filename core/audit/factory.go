package audit

import "fmt"

// Config selects the audit backend.
type Config struct {
	Backend    string `json:"backend" yaml:"backend"` // nop | jsonl | rotating | sqlite
	Path       string `json:"path" yaml:"path"`
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" yaml:"max_age_days"`
}

// NewLog builds the configured Log. An empty backend defaults to nop.
func NewLog(cfg Config) (Log, error) {
	switch cfg.Backend {
	case "", "nop":
		return NopLog{}, nil
	case "jsonl":
		if cfg.Path == "" {
			return nil, fmt.Errorf("audit log: jsonl backend requires a path")
		}
		return NewJSONLLog(cfg.Path)
	case "rotating":
		if cfg.Path == "" {
			return nil, fmt.Errorf("audit log: rotating backend requires a path")
		}
		return NewRotatingLog(cfg.Path, cfg.MaxSizeMB, cfg.MaxBackups, cfg.MaxAgeDays)
	case "sqlite":
		if cfg.Path == "" {
			return nil, fmt.Errorf("audit log: sqlite backend requires a path")
		}
		return NewSQLiteLog(cfg.Path)
	default:
		return nil, fmt.Errorf("audit log: unknown backend %q", cfg.Backend)
	}
}
