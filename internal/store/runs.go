package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/trdsync/internal/diag"
)

// ErrRunNotFound is returned by GetRun for an unknown id.
var ErrRunNotFound = errors.New("run not found")

// Status is the outcome of a run.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Run is one ledger row.
type Run struct {
	ID       string    `json:"id"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
	Status   Status    `json:"status"`
	DryRun   bool      `json:"dry_run"`

	// FailedStage and Failure are set when Status is StatusFailed.
	FailedStage string `json:"failed_stage,omitempty"`
	Failure     string `json:"failure,omitempty"`

	NewParticipants int `json:"new_participants"`
	NewResponses    int `json:"new_responses"`
	Attempted       int `json:"attempted"`
	Imported        int `json:"imported"`
	Warnings        int `json:"warnings"`
	Errors          int `json:"errors"`
}

// Duration is the wall time the run took.
func (r Run) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}

const timeLayout = time.RFC3339Nano

// RecordRun stores a run and its diagnostics in one transaction.
// Recording the same id twice is an error.
func (s *Store) RecordRun(ctx context.Context, run Run, entries []diag.Entry) error {
	if run.ID == "" {
		return errors.New("record run: empty run id")
	}
	if run.Status != StatusSucceeded && run.Status != StatusFailed {
		return fmt.Errorf("record run: invalid status %q", run.Status)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record run: begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, started, finished, status, dry_run, failed_stage, failure,
		 new_participants, new_responses, attempted, imported, warnings, errors)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.Started.UTC().Format(timeLayout),
		run.Finished.UTC().Format(timeLayout),
		string(run.Status),
		run.DryRun,
		run.FailedStage,
		run.Failure,
		run.NewParticipants,
		run.NewResponses,
		run.Attempted,
		run.Imported,
		run.Warnings,
		run.Errors,
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}

	for i, e := range entries {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO diagnostics (run_id, seq, level, kind, message)
			VALUES (?, ?, ?, ?, ?)
		`, run.ID, i+1, e.Level.String(), string(e.Kind), e.Message)
		if err != nil {
			return fmt.Errorf("record run: diagnostic %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record run: commit: %w", err)
	}
	return nil
}

const runColumns = `id, started, finished, status, dry_run, failed_stage, failure,
	new_participants, new_responses, attempted, imported, warnings, errors`

// ListRuns returns the most recent runs, newest first. A limit of zero or
// less returns every run.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// GetRun returns one run by id.
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, err
}

// Diagnostics returns the diagnostics recorded for a run, in order.
func (s *Store) Diagnostics(ctx context.Context, runID string) ([]diag.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT level, kind, message FROM diagnostics
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query diagnostics: %w", err)
	}
	defer rows.Close()

	entries := []diag.Entry{}
	for rows.Next() {
		var level, kind, msg string
		if err := rows.Scan(&level, &kind, &msg); err != nil {
			return nil, fmt.Errorf("scan diagnostic: %w", err)
		}
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return nil, fmt.Errorf("scan diagnostic: level %q: %w", level, err)
		}
		entries = append(entries, diag.Entry{Level: lvl, Kind: diag.Kind(kind), Message: msg})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate diagnostics: %w", err)
	}
	return entries, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		run               Run
		started, finished string
		status            string
	)
	err := row.Scan(
		&run.ID, &started, &finished, &status, &run.DryRun, &run.FailedStage, &run.Failure,
		&run.NewParticipants, &run.NewResponses, &run.Attempted, &run.Imported, &run.Warnings, &run.Errors,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	run.Status = Status(status)
	if run.Started, err = time.Parse(timeLayout, started); err != nil {
		return Run{}, fmt.Errorf("scan run %s: started: %w", run.ID, err)
	}
	if run.Finished, err = time.Parse(timeLayout, finished); err != nil {
		return Run{}, fmt.Errorf("scan run %s: finished: %w", run.ID, err)
	}
	return run, nil
}
