package runs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PGRegistry implements Registry using Postgres.
type PGRegistry struct {
	DB *sql.DB
}

const selectRun = `SELECT id, name, start_time, status, error, filename, content_type, updated_at FROM pipeline_runs`

// Create inserts a new run.
func (r *PGRegistry) Create(ctx context.Context, run Run) error {
	const query = `
INSERT INTO pipeline_runs (id, name, start_time, status, error, filename, content_type, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (id) DO NOTHING`
	if run.Status == "" {
		run.Status = StatusInitializing
	}
	res, err := r.DB.ExecContext(ctx, query,
		run.ID,
		run.Name,
		run.StartTime,
		string(run.Status),
		nullString(run.Error),
		run.Filename,
		run.ContentType,
		time.Now().UTC(),
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrAlreadyExists
	}
	return nil
}

// Get returns a run by ID.
func (r *PGRegistry) Get(ctx context.Context, id string) (Run, error) {
	row := r.DB.QueryRowContext(ctx, selectRun+` WHERE id = $1`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	return run, err
}

// UpdateStatus locks the row, validates the transition and writes the new status.
func (r *PGRegistry) UpdateStatus(ctx context.Context, id string, status Status, errMsg string) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, `SELECT status FROM pipeline_runs WHERE id = $1 FOR UPDATE`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	from, err := ParseStatus(current)
	if err != nil {
		return err
	}
	if err := checkTransition(id, from, status); err != nil {
		return err
	}

	var errArg any
	if status == StatusFailed {
		errArg = nullString(errMsg)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE pipeline_runs SET status = $2, error = $3, updated_at = $4 WHERE id = $1`,
		id, string(status), errArg, time.Now().UTC()); err != nil {
		return err
	}
	return tx.Commit()
}

// List returns all runs, newest first.
func (r *PGRegistry) List(ctx context.Context) ([]Run, error) {
	rows, err := r.DB.QueryContext(ctx, selectRun+` ORDER BY start_time DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		run     Run
		status  string
		errText sql.NullString
	)
	if err := row.Scan(&run.ID, &run.Name, &run.StartTime, &status, &errText, &run.Filename, &run.ContentType, &run.UpdatedAt); err != nil {
		return Run{}, err
	}
	parsed, err := ParseStatus(status)
	if err != nil {
		return Run{}, fmt.Errorf("run %s: %w", run.ID, err)
	}
	run.Status = parsed
	run.Error = errText.String
	return run, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
