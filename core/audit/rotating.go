package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// RotatingLog stores the trail in a JSONL file with automatic rotation.
type RotatingLog struct {
	logger *lumberjack.Logger
	path   string
	mu     sync.Mutex
}

// NewRotatingLog creates a log with rotation options in megabytes and
// days.
func NewRotatingLog(path string, maxSizeMB, maxBackups, maxAgeDays int) (*RotatingLog, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return &RotatingLog{
		logger: &lumberjack.Logger{
			Filename:   path,
			MaxSize:    maxSizeMB,
			MaxBackups: maxBackups,
			MaxAge:     maxAgeDays,
		},
		path: path,
	}, nil
}

func (l *RotatingLog) Append(_ context.Context, rec EventRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return json.NewEncoder(l.logger).Encode(rec)
}

// Query reads all log files including rotated ones.
func (l *RotatingLog) Query(_ context.Context, q Query) ([]EventRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	files, err := filepath.Glob(l.path + "*")
	if err != nil {
		return nil, err
	}
	var res []EventRecord
	for _, name := range files {
		f, err := os.Open(name)
		if err != nil {
			continue
		}
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			var r EventRecord
			if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
				continue
			}
			if q.matches(r) {
				res = append(res, r)
			}
		}
		_ = f.Close()
	}
	return res, nil
}

func (l *RotatingLog) Close() error { return l.logger.Close() }
