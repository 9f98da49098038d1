// Package runlog records start, success and failure of staging runs in
// the pipeline_run_log table for observability and auditing.
package runlog

import (
	"context"
	"database/sql"
	"fmt"
	"unicode/utf8"
)

// maxErrorLen bounds the error text persisted for a failed run.
const maxErrorLen = 4000

// Ledger brackets staging runs: one running row per run_id, finalized
// exactly once with a terminal status.
type Ledger struct {
	db *sql.DB
}

// NewLedger creates a run ledger over an existing connection.
func NewLedger(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// Start inserts a running row, idempotently ignoring duplicate run ids.
func (l *Ledger) Start(ctx context.Context, runID, pipelineName, entityName string) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO pipeline_run_log (run_id, pipeline_name, entity, status, started_at)
		VALUES ($1, $2, $3, 'running', now())
		ON CONFLICT (run_id) DO NOTHING`,
		runID, pipelineName, entityName,
	)
	if err != nil {
		return fmt.Errorf("start run log %s: %w", runID, err)
	}
	return nil
}

// FinishSuccess transitions the row to success with the run's counts.
func (l *Ledger) FinishSuccess(ctx context.Context, runID string, rowsIn, insertedHistory, upsertedLatest int) error {
	_, err := l.db.ExecContext(ctx, `
		UPDATE pipeline_run_log
		SET status = 'success',
		    ended_at = now(),
		    rows_in = $2,
		    rows_inserted_history = $3,
		    rows_upserted_latest = $4,
		    error = NULL
		WHERE run_id = $1`,
		runID, rowsIn, insertedHistory, upsertedLatest,
	)
	if err != nil {
		return fmt.Errorf("finish run log %s: %w", runID, err)
	}
	return nil
}

// FinishFailed transitions the row to failed, truncating overlong error
// text.
func (l *Ledger) FinishFailed(ctx context.Context, runID, errorMessage string) error {
	errorMessage = truncateError(errorMessage)
	_, err := l.db.ExecContext(ctx, `
		UPDATE pipeline_run_log
		SET status = 'failed',
		    ended_at = now(),
		    error = $2
		WHERE run_id = $1`,
		runID, errorMessage,
	)
	if err != nil {
		return fmt.Errorf("fail run log %s: %w", runID, err)
	}
	return nil
}

// truncateError caps the message at maxErrorLen bytes without splitting
// a UTF-8 sequence; Postgres rejects text with a partial rune.
func truncateError(s string) string {
	if len(s) <= maxErrorLen {
		return s
	}
	cut := maxErrorLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
