// Package journal keeps a local SQLite record of every ingestion run and the
// outcome of each record it submitted.
package journal

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	_ "github.com/mattn/go-sqlite3"

	"github.com/luizfilipeschaeffer/market-dashboard/internal/ingest"
)

var ErrRunNotFound = errors.New("run not found")

// Run is one row of the runs table.
type Run struct {
	ID             string
	Source         string
	Policy         string
	StartedAt      time.Time
	FinishedAt     time.Time
	TotalClients   int64
	ClientsCreated int64
	ClientsFailed  int64
	TotalBackups   int64
	BackupsCreated int64
	BackupsFailed  int64
	BackupsSkipped int64
}

// Entry is the outcome of one submitted record.
type Entry struct {
	RunID    string
	Kind     string // client, backup
	Name     string // client name; for backups the owning client
	Row      int
	RemoteID int64
	OK       bool
	Error    string
}

type Journal struct {
	db   *sql.DB
	path string
}

// Open creates or opens the journal at path. ":memory:" keeps it in memory.
func Open(path string) (*Journal, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, errors.Wrap(err, "creating journal directory")
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening journal %s", path)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	j := &Journal{db: db, path: path}
	if err := j.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			source TEXT,
			policy TEXT,
			started_at TIMESTAMP,
			finished_at TIMESTAMP,
			total_clients INTEGER,
			clients_created INTEGER,
			clients_failed INTEGER,
			total_backups INTEGER,
			backups_created INTEGER,
			backups_failed INTEGER,
			backups_skipped INTEGER
		);
		CREATE TABLE IF NOT EXISTS entries (
			run_id TEXT REFERENCES runs(id),
			kind TEXT,
			name TEXT,
			line INTEGER,
			remote_id INTEGER,
			ok BOOLEAN,
			error TEXT
		);
		CREATE INDEX IF NOT EXISTS runs_started_ndx ON runs(started_at);
		CREATE INDEX IF NOT EXISTS entries_run_ndx ON entries(run_id);
	`
	_, err := j.db.Exec(schema)
	return errors.Wrap(err, "creating journal schema")
}

func (j *Journal) Path() string { return j.path }

func (j *Journal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

// Record stores sum and all its outcomes in one transaction.
func (j *Journal) Record(ctx context.Context, source string, sum *ingest.Summary) error {
	s := sum.Stats
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "starting journal transaction")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, source, policy, started_at, finished_at, total_clients, clients_created,
			clients_failed, total_backups, backups_created, backups_failed, backups_skipped)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.RunID, source, string(sum.Policy), s.StartedAt.UTC(), s.FinishedAt.UTC(),
		s.TotalClients, s.ClientsCreated, s.ClientsFailed,
		s.TotalBackups, s.BackupsCreated, s.BackupsFailed, s.BackupsSkipped,
	)
	if err != nil {
		return errors.Wrapf(err, "recording run %s", s.RunID)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO entries (run_id, kind, name, line, remote_id, ok, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return errors.Wrap(err, "preparing entry insert")
	}
	defer stmt.Close()

	for _, c := range sum.Clients {
		if _, err := stmt.ExecContext(ctx, s.RunID, "client", c.Client.Name, c.Client.Row,
			c.Outcome.ID, c.Outcome.OK(), errText(c.Outcome.Err)); err != nil {
			return errors.Wrap(err, "recording client outcome")
		}
	}
	for _, b := range sum.Backups {
		owner := sum.Clients[b.ClientIndex].Client
		if _, err := stmt.ExecContext(ctx, s.RunID, "backup", owner.Name, owner.Row,
			b.Outcome.ID, b.Outcome.OK(), errText(b.Outcome.Err)); err != nil {
			return errors.Wrap(err, "recording backup outcome")
		}
	}

	return errors.Wrap(tx.Commit(), "committing journal")
}

// Runs returns the most recent runs first. limit <= 0 returns all of them.
func (j *Journal) Runs(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT id, source, policy, started_at, finished_at, total_clients, clients_created,
			clients_failed, total_backups, backups_created, backups_failed, backups_skipped
		FROM runs ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "listing runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Source, &r.Policy, &r.StartedAt, &r.FinishedAt,
			&r.TotalClients, &r.ClientsCreated, &r.ClientsFailed,
			&r.TotalBackups, &r.BackupsCreated, &r.BackupsFailed, &r.BackupsSkipped); err != nil {
			return nil, errors.Wrap(err, "scanning run")
		}
		runs = append(runs, r)
	}
	return runs, errors.Wrap(rows.Err(), "listing runs")
}

// ResolveRun expands a run id prefix, as printed by WriteRuns, to the full id.
func (j *Journal) ResolveRun(ctx context.Context, prefix string) (string, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT id FROM runs WHERE id LIKE ? LIMIT 2`, prefix+"%")
	if err != nil {
		return "", errors.Wrap(err, "resolving run")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", errors.Wrap(err, "scanning run id")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return "", errors.Wrap(err, "resolving run")
	}

	switch len(ids) {
	case 0:
		return "", errors.Wrapf(ErrRunNotFound, "%s", prefix)
	case 1:
		return ids[0], nil
	}
	return "", errors.Newf("run id %q is ambiguous", prefix)
}

// Entries returns the outcomes recorded for runID, clients first.
func (j *Journal) Entries(ctx context.Context, runID string) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT run_id, kind, name, line, remote_id, ok, error FROM entries
		 WHERE run_id = ? ORDER BY CASE kind WHEN 'client' THEN 0 ELSE 1 END, rowid`,
		runID,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "listing entries of run %s", runID)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.RunID, &e.Kind, &e.Name, &e.Row, &e.RemoteID, &e.OK, &e.Error); err != nil {
			return nil, errors.Wrap(err, "scanning entry")
		}
		entries = append(entries, e)
	}
	return entries, errors.Wrap(rows.Err(), "listing entries")
}

// ClearAll deletes every run and entry.
func (j *Journal) ClearAll(ctx context.Context) error {
	_, err := j.db.ExecContext(ctx, `DELETE FROM entries; DELETE FROM runs;`)
	return errors.Wrap(err, "clearing journal")
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
