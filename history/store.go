// Package history persists one row per sync or sweep run in sync_runs.
package history

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/teranos/exportsync/batch"
	"github.com/teranos/exportsync/db"
	"github.com/teranos/exportsync/errors"
)

// Record is one run.
type Record struct {
	ID          string      `json:"id"`
	Kind        string      `json:"kind"` // batch.KindSync or batch.KindSweep
	Mode        string      `json:"mode,omitempty"`
	StartedAt   time.Time   `json:"started_at"`
	FinishedAt  *time.Time  `json:"finished_at,omitempty"` // nil while running or after a crash
	Stats       batch.Stats `json:"stats"`
	AbortReason string      `json:"abort_reason,omitempty"`
}

// Finished reports whether the run closed its record.
func (r Record) Finished() bool {
	return r.FinishedAt != nil
}

// Duration is the run's wall time; zero while unfinished.
func (r Record) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Store handles persistence of run history.
type Store struct {
	db      *sql.DB
	dialect db.Dialect
	newID   func() string
}

// NewStore creates a history store over conn.
func NewStore(conn *sql.DB, dialect db.Dialect) *Store {
	return &Store{db: conn, dialect: dialect, newID: uuid.NewString}
}

// Begin inserts a running record and returns its id.
func (s *Store) Begin(ctx context.Context, kind, mode string, startedAt time.Time) (string, error) {
	id := s.newID()
	_, err := s.db.ExecContext(ctx, db.Rebind(s.dialect,
		`INSERT INTO sync_runs (id, kind, mode, started_at) VALUES (?, ?, ?, ?)`),
		id, kind, mode, startedAt.UTC(),
	)
	if err != nil {
		return "", errors.Wrap(err, "failed to create run record")
	}
	return id, nil
}

// Finish stores the final statistics of run id.
func (s *Store) Finish(ctx context.Context, id string, finishedAt time.Time, stats batch.Stats, abortReason string) error {
	result, err := s.db.ExecContext(ctx, db.Rebind(s.dialect, `
		UPDATE sync_runs
		SET finished_at = ?,
		    total = ?,
		    processed = ?,
		    success = ?,
		    failed = ?,
		    skipped = ?,
		    not_found = ?,
		    errors = ?,
		    abort_reason = ?
		WHERE id = ?`),
		finishedAt.UTC(),
		stats.Total,
		stats.Processed,
		stats.Success,
		stats.Failed,
		stats.Skipped,
		stats.NotFound,
		strings.Join(stats.Errors, "\n"),
		abortReason,
		id,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update run record")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check rows affected")
	}
	if rowsAffected == 0 {
		return errors.Wrapf(errors.ErrNotFound, "run %s", id)
	}
	return nil
}

const recordColumns = `id, kind, mode, started_at, finished_at, total, processed, success, failed, skipped, not_found, errors, abort_reason`

// List returns the most recent runs, newest first. limit <= 0 means 20.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, db.Rebind(s.dialect,
		`SELECT `+recordColumns+` FROM sync_runs ORDER BY started_at DESC, id LIMIT ?`), limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list runs")
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate runs")
	}
	return out, nil
}

// Get returns run id, or an error matching errors.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, db.Rebind(s.dialect,
		`SELECT `+recordColumns+` FROM sync_runs WHERE id = ?`), id)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(errors.ErrNotFound, "run %s", id)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(sc scanner) (Record, error) {
	var (
		r        Record
		finished sql.NullTime
		errText  string
	)
	err := sc.Scan(&r.ID, &r.Kind, &r.Mode, &r.StartedAt, &finished,
		&r.Stats.Total, &r.Stats.Processed, &r.Stats.Success, &r.Stats.Failed,
		&r.Stats.Skipped, &r.Stats.NotFound, &errText, &r.AbortReason)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, err
	}
	if err != nil {
		return Record{}, errors.Wrap(err, "failed to scan run")
	}
	if finished.Valid {
		t := finished.Time
		r.FinishedAt = &t
	}
	if errText != "" {
		r.Stats.Errors = strings.Split(errText, "\n")
	}
	return r, nil
}
