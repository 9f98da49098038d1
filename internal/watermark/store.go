// Package watermark persists, per (pipeline, entity), the highest
// successfully processed record time. The upsert merge is monotonic on
// time: the stored value never regresses regardless of call order.
package watermark

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nguyenvanthanh0055-cyber/WMS-DATA-PIPELINE/internal/table"
)

// Store reads and advances extraction watermarks.
type Store struct {
	db *sql.DB
}

// NewStore creates a watermark store over an existing connection.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Get returns the stored watermark for (pipeline, entity), or the parsed
// default when no row exists yet.
func (s *Store) Get(ctx context.Context, pipelineName, entityName, defaultISO string) (time.Time, error) {
	var stored sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT last_success_time
		FROM etl_watermark
		WHERE pipeline_name = $1 AND entity = $2`,
		pipelineName, entityName,
	).Scan(&stored)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, fmt.Errorf("get watermark %s/%s: %w", pipelineName, entityName, err)
	}
	if err == nil && stored.Valid {
		return stored.Time.UTC(), nil
	}

	def, perr := table.ParseInstant(defaultISO)
	if perr != nil {
		return time.Time{}, fmt.Errorf("parse default start time: %w", perr)
	}
	return def, nil
}

// Upsert inserts the watermark row if absent, else merges with greatest():
// last_success_time never decreases, while last_success_run_id and
// updated_at always record the latest caller.
func (s *Store) Upsert(ctx context.Context, pipelineName, entityName string, candidate time.Time, runID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO etl_watermark (pipeline_name, entity, last_success_time, last_success_run_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (pipeline_name, entity)
		DO UPDATE SET
			last_success_time = greatest(etl_watermark.last_success_time, excluded.last_success_time),
			last_success_run_id = excluded.last_success_run_id,
			updated_at = now()`,
		pipelineName, entityName, candidate.UTC(), runID,
	)
	if err != nil {
		return fmt.Errorf("upsert watermark %s/%s: %w", pipelineName, entityName, err)
	}
	return nil
}
