// Package history persists build run reports in a SQLite database so past
// runs can be listed and inspected after the fact.
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/calder/dirtree/internal/builder"
)

//go:embed schema.sql
var schemaSQL string

// Run is one persisted build run summary.
type Run struct {
	ID          int64
	RunID       string
	Root        string
	Policy      string
	DryRun      bool
	StartedAt   time.Time
	FinishedAt  time.Time
	Created     int
	Skipped     int
	Overwritten int
	Unchanged   int
	Failed      int
}

// Node is one persisted per-node outcome belonging to a run.
type Node struct {
	Path    string
	Kind    string
	Outcome string
	Error   string
}

// Store manages the SQLite database holding run history.
type Store struct {
	db     *sql.DB
	dbPath string
}

// NewStore opens (creating if necessary) the database at dbPath and applies
// the schema. Pass ":memory:" for an ephemeral store.
func NewStore(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// busy_timeout first so the remaining pragmas wait on locks instead of
	// failing when another process holds the database.
	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Store{db: db, dbPath: dbPath}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// RecordRun persists a build report and its per-node outcomes.
func (s *Store) RecordRun(ctx context.Context, report *builder.Report) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, root, policy, dry_run, started_at, finished_at, created, skipped, overwritten, unchanged, failed)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.RunID,
		report.Root,
		string(report.Policy),
		report.DryRun,
		report.StartedAt,
		report.FinishedAt,
		report.Created,
		report.Skipped,
		report.Overwritten,
		report.Unchanged,
		report.Failed,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO run_nodes (run_id, path, kind, outcome, error) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare node insert: %w", err)
	}
	defer stmt.Close()

	for _, res := range report.Results {
		if _, err := stmt.ExecContext(ctx, report.RunID, res.Path, string(res.Kind), string(res.Outcome), res.Err); err != nil {
			return fmt.Errorf("insert run node %s: %w", res.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first, up to limit. A
// non-positive limit returns all runs.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT id, run_id, root, policy, dry_run, started_at, finished_at, created, skipped, overwritten, unchanged, failed
		FROM runs ORDER BY started_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.RunID, &r.Root, &r.Policy, &r.DryRun, &r.StartedAt, &r.FinishedAt,
			&r.Created, &r.Skipped, &r.Overwritten, &r.Unchanged, &r.Failed); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun returns one run and its node outcomes by run ID.
func (s *Store) GetRun(ctx context.Context, runID string) (*Run, []Node, error) {
	var r Run
	err := s.db.QueryRowContext(ctx,
		`SELECT id, run_id, root, policy, dry_run, started_at, finished_at, created, skipped, overwritten, unchanged, failed
		 FROM runs WHERE run_id = ?`, runID).
		Scan(&r.ID, &r.RunID, &r.Root, &r.Policy, &r.DryRun, &r.StartedAt, &r.FinishedAt,
			&r.Created, &r.Skipped, &r.Overwritten, &r.Unchanged, &r.Failed)
	if err == sql.ErrNoRows {
		return nil, nil, fmt.Errorf("run %s not found", runID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("query run: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT path, kind, outcome, error FROM run_nodes WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, nil, fmt.Errorf("query run nodes: %w", err)
	}
	defer rows.Close()

	var nodes []Node
	for rows.Next() {
		var n Node
		if err := rows.Scan(&n.Path, &n.Kind, &n.Outcome, &n.Error); err != nil {
			return nil, nil, fmt.Errorf("scan run node: %w", err)
		}
		nodes = append(nodes, n)
	}
	return &r, nodes, rows.Err()
}

// PruneRuns deletes all but the most recent keep runs and returns how many
// were removed.
func (s *Store) PruneRuns(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM runs WHERE run_id NOT IN (
			SELECT run_id FROM runs ORDER BY started_at DESC, id DESC LIMIT ?
		)`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return res.RowsAffected()
}
