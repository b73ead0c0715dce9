package schedule

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/openrota/openrota/core/model"
)

// SQLiteStore persists the committed schedule to a SQLite database.
// Rows carry a JSON blob of the full record plus indexed columns for
// the fields queries filter on.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database at path and ensures the
// schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	schema := `
    CREATE TABLE IF NOT EXISTS blocks (
        id TEXT PRIMARY KEY,
        date INTEGER,
        record TEXT
    );
    CREATE TABLE IF NOT EXISTS runs (
        id TEXT PRIMARY KEY,
        started INTEGER,
        record TEXT
    );
    CREATE TABLE IF NOT EXISTS assignments (
        id TEXT PRIMARY KEY,
        person_id TEXT,
        block_id TEXT,
        date INTEGER,
        voided INTEGER,
        created INTEGER,
        record TEXT
    );
    CREATE TABLE IF NOT EXISTS swaps (
        id TEXT PRIMARY KEY,
        state INTEGER,
        requested INTEGER,
        record TEXT
    );
    CREATE INDEX IF NOT EXISTS idx_assignments_date ON assignments (date);
    CREATE INDEX IF NOT EXISTS idx_assignments_person ON assignments (person_id);`
	if _, err := db.Exec(schema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) SaveBlocks(ctx context.Context, blocks []model.Block) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, b := range blocks {
		blob, err := json.Marshal(b)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO blocks (id, date, record) VALUES (?, ?, ?)`,
			b.ID.String(), b.Date.Unix(), string(blob)); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Block(ctx context.Context, id uuid.UUID) (model.Block, error) {
	var blob string
	err := s.db.QueryRowContext(ctx, `SELECT record FROM blocks WHERE id = ?`, id.String()).Scan(&blob)
	if err == sql.ErrNoRows {
		return model.Block{}, fmt.Errorf("block %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Block{}, err
	}
	var b model.Block
	if err := json.Unmarshal([]byte(blob), &b); err != nil {
		return model.Block{}, fmt.Errorf("unmarshal block: %w", err)
	}
	return b, nil
}

func (s *SQLiteStore) Blocks(ctx context.Context, start, end time.Time) ([]model.Block, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT record FROM blocks WHERE date >= ? AND date <= ? ORDER BY date, id`,
		start.Unix(), end.Unix())
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []model.Block
	for rows.Next() {
		var blob string
		if err := rows.Scan(&blob); err != nil {
			return nil, err
		}
		var b model.Block
		if err := json.Unmarshal([]byte(blob), &b); err != nil {
			return nil, fmt.Errorf("unmarshal block: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveRun(ctx context.Context, run model.ScheduleRun) error {
	blob, err := json.Marshal(run)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs (id, started, record) VALUES (?, ?, ?)`,
		run.ID.String(), run.StartedAt.Unix(), string(blob))
	return err
}

func (s *SQLiteStore) Run(ctx context.Context, id uuid.UUID) (model.ScheduleRun, error) {
	var blob string
	err := s.db.QueryRowContext(ctx, `SELECT record FROM runs WHERE id = ?`, id.String()).Scan(&blob)
	if err == sql.ErrNoRows {
		return model.ScheduleRun{}, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.ScheduleRun{}, err
	}
	var run model.ScheduleRun
	if err := json.Unmarshal([]byte(blob), &run); err != nil {
		return model.ScheduleRun{}, fmt.Errorf("unmarshal run: %w", err)
	}
	return run, nil
}

func (s *SQLiteStore) Runs(ctx context.Context) ([]model.ScheduleRun, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT record FROM runs ORDER BY started, id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []model.ScheduleRun
	for rows.Next() {
		var blob string
		if err := rows.Scan(&blob); err != nil {
			return nil, err
		}
		var run model.ScheduleRun
		if err := json.Unmarshal([]byte(blob), &run); err != nil {
			return nil, fmt.Errorf("unmarshal run: %w", err)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CommitAssignments(ctx context.Context, assignments []model.Assignment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := insertAssignments(ctx, tx, assignments); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) Assignment(ctx context.Context, id uuid.UUID) (model.Assignment, error) {
	var blob string
	err := s.db.QueryRowContext(ctx, `SELECT record FROM assignments WHERE id = ?`, id.String()).Scan(&blob)
	if err == sql.ErrNoRows {
		return model.Assignment{}, fmt.Errorf("assignment %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Assignment{}, err
	}
	return decodeAssignment(blob)
}

func (s *SQLiteStore) AssignmentsInRange(ctx context.Context, start, end time.Time, includeVoided bool) ([]model.Assignment, error) {
	query := `SELECT record FROM assignments WHERE date >= ? AND date <= ?`
	if !includeVoided {
		query += ` AND voided = 0`
	}
	query += ` ORDER BY created, id`
	return s.queryAssignments(ctx, query, start.Unix(), end.Unix())
}

func (s *SQLiteStore) AssignmentsFor(ctx context.Context, personID uuid.UUID, includeVoided bool) ([]model.Assignment, error) {
	query := `SELECT record FROM assignments WHERE person_id = ?`
	if !includeVoided {
		query += ` AND voided = 0`
	}
	query += ` ORDER BY created, id`
	return s.queryAssignments(ctx, query, personID.String())
}

// ReplaceRows voids and inserts within one transaction. Any missing or
// already-voided target aborts the whole batch.
func (s *SQLiteStore) ReplaceRows(ctx context.Context, void []VoidRequest, add []model.Assignment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, v := range void {
		var blob string
		err := tx.QueryRowContext(ctx, `SELECT record FROM assignments WHERE id = ?`, v.ID.String()).Scan(&blob)
		if err == sql.ErrNoRows {
			_ = tx.Rollback()
			return fmt.Errorf("void assignment %s: %w", v.ID, ErrNotFound)
		}
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		target, err := decodeAssignment(blob)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		if target.Voided {
			_ = tx.Rollback()
			return fmt.Errorf("void assignment %s: already voided", v.ID)
		}
		target.Void(v.Reason, v.At)
		updated, err := json.Marshal(target)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE assignments SET voided = 1, record = ? WHERE id = ?`,
			string(updated), v.ID.String()); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	if err := insertAssignments(ctx, tx, add); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) SaveSwap(ctx context.Context, rec model.SwapRecord) error {
	blob, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO swaps (id, state, requested, record) VALUES (?, ?, ?, ?)`,
		rec.ID.String(), int(rec.State), rec.RequestedAt.Unix(), string(blob))
	return err
}

func (s *SQLiteStore) Swap(ctx context.Context, id uuid.UUID) (model.SwapRecord, error) {
	var blob string
	err := s.db.QueryRowContext(ctx, `SELECT record FROM swaps WHERE id = ?`, id.String()).Scan(&blob)
	if err == sql.ErrNoRows {
		return model.SwapRecord{}, fmt.Errorf("swap %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.SwapRecord{}, err
	}
	var rec model.SwapRecord
	if err := json.Unmarshal([]byte(blob), &rec); err != nil {
		return model.SwapRecord{}, fmt.Errorf("unmarshal swap: %w", err)
	}
	return rec, nil
}

func (s *SQLiteStore) SwapsInState(ctx context.Context, state model.SwapState) ([]model.SwapRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT record FROM swaps WHERE state = ? ORDER BY requested, id`, int(state))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []model.SwapRecord
	for rows.Next() {
		var blob string
		if err := rows.Scan(&blob); err != nil {
			return nil, err
		}
		var rec model.SwapRecord
		if err := json.Unmarshal([]byte(blob), &rec); err != nil {
			return nil, fmt.Errorf("unmarshal swap: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) queryAssignments(ctx context.Context, query string, args ...any) ([]model.Assignment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []model.Assignment
	for rows.Next() {
		var blob string
		if err := rows.Scan(&blob); err != nil {
			return nil, err
		}
		a, err := decodeAssignment(blob)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// insertAssignments resolves each row's block date from the blocks
// table so range queries can filter on an indexed column.
func insertAssignments(ctx context.Context, tx *sql.Tx, assignments []model.Assignment) error {
	for _, a := range assignments {
		var date int64
		err := tx.QueryRowContext(ctx, `SELECT date FROM blocks WHERE id = ?`, a.BlockID.String()).Scan(&date)
		if err == sql.ErrNoRows {
			return fmt.Errorf("assignment %s: unknown block %s", a.ID, a.BlockID)
		}
		if err != nil {
			return err
		}
		blob, err := json.Marshal(a)
		if err != nil {
			return err
		}
		voided := 0
		if a.Voided {
			voided = 1
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO assignments (id, person_id, block_id, date, voided, created, record)
             VALUES (?, ?, ?, ?, ?, ?, ?)`,
			a.ID.String(), a.PersonID.String(), a.BlockID.String(), date, voided, a.CreatedAt.Unix(), string(blob)); err != nil {
			return err
		}
	}
	return nil
}

func decodeAssignment(blob string) (model.Assignment, error) {
	var a model.Assignment
	if err := json.Unmarshal([]byte(blob), &a); err != nil {
		return model.Assignment{}, fmt.Errorf("unmarshal assignment: %w", err)
	}
	return a, nil
}
