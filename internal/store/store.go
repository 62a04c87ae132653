// Package store persists run snapshots in a local sqlite database. The
// engine never depends on it; the server and CLI write snapshots around
// each run.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"datapilot/internal/engine"
	"datapilot/internal/logging"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Run is one persisted run record.
type Run struct {
	ID          string           `json:"id"`
	Query       string           `json:"query"`
	Dataset     string           `json:"dataset"`
	Status      string           `json:"status"`
	CreatedAt   time.Time        `json:"created_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
	Result      *engine.Snapshot `json:"result,omitempty"`
	Error       string           `json:"error,omitempty"`
}

// Store wraps the sqlite database. Safe for concurrent use; sqlite gets a
// single connection plus a mutex to serialize writers.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	query        TEXT NOT NULL,
	dataset      TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL,
	created_at   TIMESTAMP NOT NULL,
	completed_at TIMESTAMP,
	result       TEXT,
	error        TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at DESC);
`

// Open creates (or opens) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	logging.Store("database opened at %s", path)
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateRun records a new run in the running state.
func (s *Store) CreateRun(id, query, dataset string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO runs (id, query, dataset, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, query, dataset, StatusRunning, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("create run %s: %w", id, err)
	}
	logging.Store("run %s created", id)
	return nil
}

// CompleteRun stores the final snapshot and marks the run completed.
func (s *Store) CompleteRun(id string, snap engine.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot for %s: %w", id, err)
	}

	res, err := s.db.Exec(
		`UPDATE runs SET status = ?, completed_at = ?, result = ? WHERE id = ?`,
		StatusCompleted, time.Now().UTC(), string(data), id,
	)
	if err != nil {
		return fmt.Errorf("complete run %s: %w", id, err)
	}
	return requireRow(res, id)
}

// FailRun marks the run failed with an error message.
func (s *Store) FailRun(id, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		`UPDATE runs SET status = ?, completed_at = ?, error = ? WHERE id = ?`,
		StatusFailed, time.Now().UTC(), errMsg, id,
	)
	if err != nil {
		return fmt.Errorf("fail run %s: %w", id, err)
	}
	return requireRow(res, id)
}

// GetRun fetches one run by id.
func (s *Store) GetRun(id string) (*Run, error) {
	row := s.db.QueryRow(
		`SELECT id, query, dataset, status, created_at, completed_at, result, error FROM runs WHERE id = ?`, id)
	return scanRun(row)
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT id, query, dataset, status, created_at, completed_at, result, error
		 FROM runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var r Run
	var completedAt sql.NullTime
	var result sql.NullString

	err := row.Scan(&r.ID, &r.Query, &r.Dataset, &r.Status, &r.CreatedAt, &completedAt, &result, &r.Error)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run not found")
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}

	if completedAt.Valid {
		t := completedAt.Time
		r.CompletedAt = &t
	}
	if result.Valid && result.String != "" {
		var snap engine.Snapshot
		if err := json.Unmarshal([]byte(result.String), &snap); err != nil {
			return nil, fmt.Errorf("decode snapshot for %s: %w", r.ID, err)
		}
		r.Result = &snap
	}
	return &r, nil
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("run %s not found", id)
	}
	return nil
}
