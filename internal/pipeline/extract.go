// Package pipeline composes the components into the two run flows: the
// extraction-to-landing run and the landing-to-staging run.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/nguyenvanthanh0055-cyber/WMS-DATA-PIPELINE/internal/entity"
	"github.com/nguyenvanthanh0055-cyber/WMS-DATA-PIPELINE/internal/landing"
	"github.com/nguyenvanthanh0055-cyber/WMS-DATA-PIPELINE/internal/normalize"
	"github.com/nguyenvanthanh0055-cyber/WMS-DATA-PIPELINE/internal/wms"
)

// WatermarkStore is the watermark persistence the extraction run needs.
type WatermarkStore interface {
	Get(ctx context.Context, pipelineName, entityName, defaultISO string) (time.Time, error)
	Upsert(ctx context.Context, pipelineName, entityName string, candidate time.Time, runID string) error
}

// Archiver copies a published landing file to the object-store archive.
type Archiver interface {
	Archive(ctx context.Context, landingRoot, path string) (string, error)
}

// ExtractionRun pulls every registered entity since its effective
// watermark, lands the normalized batch, and advances the watermark.
// One run id covers all entities of an invocation.
type ExtractionRun struct {
	PipelineName     string
	LandingRoot      string
	OutputFormat     landing.Format
	Lookback         time.Duration
	DefaultStartTime string

	Extractor  *wms.Extractor
	Watermarks WatermarkStore

	// Archiver is optional; when set, archive failure aborts the entity's
	// run before the watermark advances.
	Archiver Archiver
}

// Run executes the extraction flow for all entities under the given run
// id. Failure on one entity aborts the invocation; the failed entity's
// watermark is untouched, so the next run retries the same window.
func (r *ExtractionRun) Run(ctx context.Context, runID string) error {
	extractedAt := time.Now().UTC()

	for _, entityName := range entity.Names() {
		if err := r.runEntity(ctx, entityName, runID, extractedAt); err != nil {
			return fmt.Errorf("extract %s: %w", entityName, err)
		}
	}
	return nil
}

func (r *ExtractionRun) runEntity(ctx context.Context, entityName, runID string, extractedAt time.Time) error {
	saved, err := r.Watermarks.Get(ctx, r.PipelineName, entityName, r.DefaultStartTime)
	if err != nil {
		return err
	}
	effective := saved.Add(-r.Lookback)

	log.Printf("[%s] watermark_saved=%s watermark_effective=%s lookback=%s run_id=%s",
		entityName, saved.Format(time.RFC3339), effective.Format(time.RFC3339), r.Lookback, runID)

	rows, err := r.Extractor.FetchAll(ctx, entityName, effective)
	if err != nil {
		return err
	}
	log.Printf("[%s] fetched_rows=%d", entityName, len(rows))

	tbl, err := normalize.Normalize(rows, entityName, runID, extractedAt, effective)
	if err != nil {
		return err
	}
	log.Printf("[%s] normalized_rows=%d", entityName, tbl.Len())

	path, err := landing.Publish(tbl, r.LandingRoot, entityName, runID, r.OutputFormat)
	if err != nil {
		return err
	}
	log.Printf("[%s] published landing file %s", entityName, path)

	if r.Archiver != nil {
		if _, err := r.Archiver.Archive(ctx, r.LandingRoot, path); err != nil {
			return err
		}
	}

	// An empty batch re-asserts the stored watermark; the merge is
	// monotonic, so this can never move it backwards.
	newWatermark := saved
	if !tbl.Empty() {
		newWatermark = tbl.MaxUpdatedAt()
	}
	if err := r.Watermarks.Upsert(ctx, r.PipelineName, entityName, newWatermark, runID); err != nil {
		return err
	}
	log.Printf("[%s] watermark advanced to %s", entityName, newWatermark.Format(time.RFC3339))

	return nil
}
