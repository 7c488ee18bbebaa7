// Package history records sampled modifier values per timestep in SQLite.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    label TEXT NOT NULL,
    started_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS samples (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    timestep INTEGER NOT NULL,
    name TEXT NOT NULL,
    value REAL,
    PRIMARY KEY (run_id, name, timestep)
);
`

// Run is one recorded run.
type Run struct {
	ID        string
	Label     string
	StartedAt time.Time
	Samples   int
}

// Store is a history database.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("history: create %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// BeginRun registers a new run and returns its id.
func (s *Store) BeginRun(ctx context.Context, label string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, label, started_at) VALUES (?, ?, ?)`,
		id, label, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return "", fmt.Errorf("history: begin run: %w", err)
	}
	return id, nil
}

// Record stores one sample per named value at timestep. A repeated
// timestep overwrites the earlier sample. NaN is stored as NULL.
func (s *Store) Record(ctx context.Context, runID string, timestep int64, values map[string]float64) error {
	if len(values) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO samples (run_id, timestep, name, value) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for name, v := range values {
		value := sql.NullFloat64{Float64: v, Valid: !math.IsNaN(v)}
		if _, err := stmt.ExecContext(ctx, runID, timestep, name, value); err != nil {
			return fmt.Errorf("history: record %s at %d: %w", name, timestep, err)
		}
	}
	return tx.Commit()
}

// Series returns the samples of name in timestep order. NULL reads back as
// NaN.
func (s *Store) Series(ctx context.Context, runID, name string) ([]int64, []float64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT timestep, value FROM samples WHERE run_id = ? AND name = ? ORDER BY timestep`,
		runID, name)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var (
		steps  []int64
		values []float64
	)
	for rows.Next() {
		var (
			step int64
			v    sql.NullFloat64
		)
		if err := rows.Scan(&step, &v); err != nil {
			return nil, nil, err
		}
		if !v.Valid {
			v.Float64 = math.NaN()
		}
		steps = append(steps, step)
		values = append(values, v.Float64)
	}
	return steps, values, rows.Err()
}

// Names lists the recorded value names of a run.
func (s *Store) Names(ctx context.Context, runID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT name FROM samples WHERE run_id = ? ORDER BY name`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Runs lists every run, newest first.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.label, r.started_at, COUNT(s.run_id)
		FROM runs r LEFT JOIN samples s ON s.run_id = r.id
		GROUP BY r.id
		ORDER BY r.started_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r       Run
			started string
		)
		if err := rows.Scan(&r.ID, &r.Label, &started, &r.Samples); err != nil {
			return nil, err
		}
		if r.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("history: run %s: %w", r.ID, err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// DeleteRun removes a run and its samples.
func (s *Store) DeleteRun(ctx context.Context, runID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, runID)
	return err
}
