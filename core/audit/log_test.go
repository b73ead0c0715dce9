package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openLogs(t *testing.T) map[string]Log {
	t.Helper()
	dir := t.TempDir()
	jsonl, err := NewJSONLLog(filepath.Join(dir, "audit.jsonl"))
	require.NoError(t, err)
	rotating, err := NewRotatingLog(filepath.Join(dir, "rotating", "audit.jsonl"), 10, 2, 7)
	require.NoError(t, err)
	sqlite, err := NewSQLiteLog(filepath.Join(dir, "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = rotating.Close()
		_ = sqlite.Close()
	})
	return map[string]Log{
		"jsonl":    jsonl,
		"rotating": rotating,
		"sqlite":   sqlite,
	}
}

func TestAppendAndQuery(t *testing.T) {
	base := time.Date(2025, 3, 3, 12, 0, 0, 0, time.UTC)
	for name, log := range openLogs(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			records := []EventRecord{
				{Timestamp: base, Kind: KindSolve, Actor: "chief", Entity: "run-1"},
				{Timestamp: base.Add(time.Hour), Kind: KindSwap, Actor: "resident-a", Entity: "swap-1",
					Detail: map[string]any{"action": "request"}},
				{Timestamp: base.Add(2 * time.Hour), Kind: KindSwap, Actor: "chief", Entity: "swap-1",
					Detail: map[string]any{"action": "approve"}},
			}
			for _, r := range records {
				require.NoError(t, log.Append(ctx, r))
			}

			all, err := log.Query(ctx, Query{})
			require.NoError(t, err)
			assert.Len(t, all, 3)

			swaps, err := log.Query(ctx, Query{Kind: KindSwap})
			require.NoError(t, err)
			assert.Len(t, swaps, 2)

			byActor, err := log.Query(ctx, Query{Kind: KindSwap, Actor: "chief"})
			require.NoError(t, err)
			require.Len(t, byActor, 1)
			assert.Equal(t, "swap-1", byActor[0].Entity)

			windowed, err := log.Query(ctx, Query{Start: base.Add(30 * time.Minute), End: base.Add(90 * time.Minute)})
			require.NoError(t, err)
			require.Len(t, windowed, 1)
			assert.Equal(t, "resident-a", windowed[0].Actor)
		})
	}
}

func TestNewLogFactory(t *testing.T) {
	log, err := NewLog(Config{})
	require.NoError(t, err)
	assert.IsType(t, NopLog{}, log)

	log, err = NewLog(Config{Backend: "jsonl", Path: filepath.Join(t.TempDir(), "a.jsonl")})
	require.NoError(t, err)
	assert.IsType(t, &JSONLLog{}, log)

	_, err = NewLog(Config{Backend: "jsonl"})
	require.Error(t, err)
	_, err = NewLog(Config{Backend: "bogus"})
	require.Error(t, err)
}
