// Package store keeps an append-only archive of emitted analysis reports in
// SQLite. The archive is bookkeeping outside the report bytes: wall-clock
// metadata lives here so reports themselves stay byte-identical across
// reruns of the same frozen plan.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Archive is the run history database.
type Archive struct {
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// RunRecord is one archived run.
type RunRecord struct {
	ID        string
	RunID     string
	PlanName  string
	Verdict   string
	Report    []byte
	CreatedAt time.Time
}

// Open initializes the archive database at the given path.
func Open(path string) (*Archive, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create archive directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open archive database: %w", err)
	}
	a := &Archive{db: db, path: path}
	if err := a.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

func (a *Archive) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		plan_name TEXT NOT NULL,
		verdict TEXT NOT NULL,
		report BLOB NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_runs_run_id ON runs(run_id);
	`
	if _, err := a.db.Exec(schema); err != nil {
		return fmt.Errorf("initialize archive schema: %w", err)
	}
	return nil
}

// Record appends one run. Records are never updated or deleted; repeat runs
// of the same plan append new rows with the same run_id.
func (a *Archive) Record(runID, planName, verdict string, report []byte) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	id := uuid.NewString()
	_, err := a.db.Exec(
		`INSERT INTO runs (id, run_id, plan_name, verdict, report) VALUES (?, ?, ?, ?, ?)`,
		id, runID, planName, verdict, report,
	)
	if err != nil {
		return "", fmt.Errorf("record run %s: %w", runID, err)
	}
	return id, nil
}

// ByRunID returns all archived records for a plan hash, oldest first.
func (a *Archive) ByRunID(runID string) ([]RunRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	rows, err := a.db.Query(
		`SELECT id, run_id, plan_name, verdict, report, created_at
		 FROM runs WHERE run_id = ? ORDER BY created_at, id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// List returns every archived record, oldest first.
func (a *Archive) List() ([]RunRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	rows, err := a.db.Query(
		`SELECT id, run_id, plan_name, verdict, report, created_at
		 FROM runs ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]RunRecord, error) {
	var out []RunRecord
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(&r.ID, &r.RunID, &r.PlanName, &r.Verdict, &r.Report, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan run record: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close releases the database handle.
func (a *Archive) Close() error { return a.db.Close() }
