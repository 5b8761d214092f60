// Package runlog keeps a ledger of indexing runs in PostgreSQL. The ledger is
// optional: a Recorder without a database accepts every call and does nothing.
package runlog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/indexgen/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/indexgen/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/indexgen/pkg/resilience"
)

const (
	StatusCompleted = "completed"
	StatusPartial   = "partial"
	StatusFailed    = "failed"
)

const schema = `
CREATE TABLE IF NOT EXISTS index_runs (
	run_id      TEXT PRIMARY KEY,
	status      TEXT NOT NULL,
	workers     INTEGER NOT NULL,
	lines       BIGINT NOT NULL,
	tokens      BIGINT NOT NULL,
	entries     BIGINT NOT NULL,
	skipped     BIGINT NOT NULL,
	bytes       BIGINT NOT NULL,
	duration_ms BIGINT NOT NULL,
	error       TEXT,
	finished_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS index_run_failures (
	run_id    TEXT NOT NULL REFERENCES index_runs(run_id) ON DELETE CASCADE,
	worker_id INTEGER NOT NULL,
	PRIMARY KEY (run_id, worker_id)
);`

// StatusOf classifies a finished run.
func StatusOf(sum *indexer.Summary, runErr error) string {
	switch {
	case runErr != nil:
		return StatusFailed
	case sum != nil && len(sum.FailedWorkers) > 0:
		return StatusPartial
	default:
		return StatusCompleted
	}
}

type Recorder struct {
	client *postgres.Client
	logger *slog.Logger
}

// NewRecorder returns a Recorder writing through client. A nil client yields a
// no-op Recorder.
func NewRecorder(client *postgres.Client) *Recorder {
	return &Recorder{
		client: client,
		logger: slog.Default().With("component", "runlog"),
	}
}

func (r *Recorder) Enabled() bool {
	return r != nil && r.client != nil
}

// EnsureSchema creates the ledger tables if they do not exist.
func (r *Recorder) EnsureSchema(ctx context.Context) error {
	if !r.Enabled() {
		return nil
	}
	if _, err := r.client.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating run ledger schema: %w", err)
	}
	return nil
}

// Record stores one run and the ids of its failed workers in a single
// transaction. Recording a run id twice is a no-op. Errors that a retry cannot
// fix are marked with resilience.Permanent.
func (r *Recorder) Record(ctx context.Context, sum *indexer.Summary, runErr error) error {
	if !r.Enabled() || sum == nil {
		return nil
	}
	status := StatusOf(sum, runErr)
	var errText sql.NullString
	if runErr != nil {
		errText = sql.NullString{String: runErr.Error(), Valid: true}
	}

	err := r.client.InTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO index_runs
				(run_id, status, workers, lines, tokens, entries, skipped, bytes, duration_ms, error)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			sum.RunID, status, sum.Workers, sum.Lines, sum.Tokens, sum.Entries,
			sum.Skipped, sum.Bytes, sum.Duration.Milliseconds(), errText,
		)
		if err != nil {
			return fmt.Errorf("inserting run: %w", err)
		}
		for _, worker := range sum.FailedWorkers {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO index_run_failures (run_id, worker_id) VALUES ($1, $2)`,
				sum.RunID, worker,
			)
			if err != nil {
				return fmt.Errorf("inserting failed worker %d: %w", worker, err)
			}
		}
		return nil
	})
	switch {
	case postgres.IsUniqueViolation(err):
		r.logger.Debug("run already recorded", "run_id", sum.RunID)
		return nil
	case err != nil && !postgres.IsTransient(err):
		return resilience.Permanent(fmt.Errorf("recording run %s: %w", sum.RunID, err))
	case err != nil:
		return fmt.Errorf("recording run %s: %w", sum.RunID, err)
	}
	r.logger.Debug("run recorded", "run_id", sum.RunID, "status", status)
	return nil
}

// Run is one ledger row.
type Run struct {
	RunID      string
	Status     string
	Workers    int
	Entries    int64
	Bytes      int64
	FinishedAt time.Time
}

// Get returns the ledger row for runID.
func (r *Recorder) Get(ctx context.Context, runID string) (Run, error) {
	if !r.Enabled() {
		return Run{}, fmt.Errorf("run ledger disabled")
	}
	var run Run
	err := r.client.DB.QueryRowContext(ctx,
		`SELECT run_id, status, workers, entries, bytes, finished_at
		   FROM index_runs WHERE run_id = $1`, runID,
	).Scan(&run.RunID, &run.Status, &run.Workers, &run.Entries, &run.Bytes, &run.FinishedAt)
	if err != nil {
		return Run{}, fmt.Errorf("loading run %s: %w", runID, err)
	}
	return run, nil
}
