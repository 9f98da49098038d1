package staging

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nguyenvanthanh0055-cyber/WMS-DATA-PIPELINE/internal/entity"
)

// Repository applies staged records to an entity's history and latest
// tables. Both targets are idempotent/monotonic by design, so any sub-run
// can be replayed in full after a mid-run crash.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a staging repository over an existing connection.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// InsertHistory appends records to the entity's history table, primary
// key (id, updated_at, payload_hash), conflict policy "do nothing". The
// returned count reflects only genuinely new facts; re-running an
// identical batch is a true no-op. Each batch runs in one transaction.
func (r *Repository) InsertHistory(ctx context.Context, ent entity.Entity, records []Record, batchSize int) (int, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s (
			id, updated_at, payload, payload_hash,
			_run_id, _extracted_at, _watermark_effective
		)
		VALUES ($1, $2, ($3)::jsonb, $4, $5, $6, $7)
		ON CONFLICT (id, updated_at, payload_hash)
		DO NOTHING`, ent.HistoryTable)

	return r.applyBatched(ctx, query, records, batchSize)
}

// UpsertLatest applies records to the entity's latest table, keyed by id.
// The update is gated on incoming.updated_at > stored.updated_at, so the
// view converges to the maximum-timestamp version of each id regardless
// of arrival order; older or identical-timestamp records are no-ops.
func (r *Repository) UpsertLatest(ctx context.Context, ent entity.Entity, records []Record, batchSize int) (int, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s (
			id, updated_at, payload, payload_hash,
			_run_id, _extracted_at, _watermark_effective
		)
		VALUES ($1, $2, ($3)::jsonb, $4, $5, $6, $7)
		ON CONFLICT (id)
		DO UPDATE SET
			updated_at = excluded.updated_at,
			payload = excluded.payload,
			payload_hash = excluded.payload_hash,
			_run_id = excluded._run_id,
			_extracted_at = excluded._extracted_at,
			_watermark_effective = excluded._watermark_effective
		WHERE excluded.updated_at > %s.updated_at`, ent.LatestTable, ent.LatestTable)

	return r.applyBatched(ctx, query, records, batchSize)
}

// applyBatched executes the statement per record, one transaction per
// batch, summing changed-row counts.
func (r *Repository) applyBatched(ctx context.Context, query string, records []Record, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 500
	}

	changed := 0
	for start := 0; start < len(records); start += batchSize {
		end := start + batchSize
		if end > len(records) {
			end = len(records)
		}

		n, err := r.applyBatch(ctx, query, records[start:end])
		if err != nil {
			return changed, err
		}
		changed += n
	}
	return changed, nil
}

func (r *Repository) applyBatch(ctx context.Context, query string, batch []Record) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin staging batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("prepare staging statement: %w", err)
	}
	defer stmt.Close()

	changed := 0
	for _, rec := range batch {
		res, err := stmt.ExecContext(ctx,
			rec.ID, rec.UpdatedAt.UTC(), rec.Payload, rec.PayloadHash,
			rec.RunID, rec.ExtractedAt.UTC(), rec.WatermarkEffective.UTC(),
		)
		if err != nil {
			return changed, fmt.Errorf("apply staging record id=%s: %w", rec.ID, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			changed += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return changed, fmt.Errorf("commit staging batch: %w", err)
	}
	return changed, nil
}
