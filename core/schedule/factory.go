package schedule

import "fmt"

// Config selects the persistence backend.
type Config struct {
	Backend string `json:"backend" yaml:"backend"` // memory | sqlite
	Path    string `json:"path" yaml:"path"`       // sqlite database file
}

// NewStore builds the configured Store. An empty backend defaults to
// memory.
func NewStore(cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		if cfg.Path == "" {
			return nil, fmt.Errorf("schedule store: sqlite backend requires a path")
		}
		return NewSQLiteStore(cfg.Path)
	default:
		return nil, fmt.Errorf("schedule store: unknown backend %q", cfg.Backend)
	}
}
