package pipeline

import (
	"context"
	"fmt"
	"log"

	"github.com/nguyenvanthanh0055-cyber/WMS-DATA-PIPELINE/internal/entity"
	"github.com/nguyenvanthanh0055-cyber/WMS-DATA-PIPELINE/internal/staging"
	"github.com/nguyenvanthanh0055-cyber/WMS-DATA-PIPELINE/internal/table"
)

// RunLedger brackets staging runs.
type RunLedger interface {
	Start(ctx context.Context, runID, pipelineName, entityName string) error
	FinishSuccess(ctx context.Context, runID string, rowsIn, insertedHistory, upsertedLatest int) error
	FinishFailed(ctx context.Context, runID, errorMessage string) error
}

// StagingRepo applies staged records to the history and latest tables.
type StagingRepo interface {
	InsertHistory(ctx context.Context, ent entity.Entity, records []staging.Record, batchSize int) (int, error)
	UpsertLatest(ctx context.Context, ent entity.Entity, records []staging.Record, batchSize int) (int, error)
}

// LandingLoader re-opens a published landing file.
type LandingLoader func(landingRoot, entityName, runID string) (*table.Table, error)

// StagingRun moves one published landing batch into the staging tables
// under the ledger's bracketing.
type StagingRun struct {
	PipelineName string
	LandingRoot  string
	BatchSize    int

	Ledger RunLedger
	Repo   StagingRepo
	Load   LandingLoader
}

// Run executes the staging flow for one (entity, run_id). Every failure
// downstream of the ledger start reaches exactly one FinishFailed call;
// a failure while recording the failure is logged, not masked.
func (r *StagingRun) Run(ctx context.Context, entityName, runID string) error {
	ent, err := entity.Lookup(entityName)
	if err != nil {
		return err
	}

	if err := r.Ledger.Start(ctx, runID, r.PipelineName, ent.Name); err != nil {
		return err
	}

	if err := r.stage(ctx, ent, runID); err != nil {
		if ferr := r.Ledger.FinishFailed(ctx, runID, err.Error()); ferr != nil {
			log.Printf("failed to record run failure entity=%s run_id=%s: %v", ent.Name, runID, ferr)
		}
		return err
	}
	return nil
}

func (r *StagingRun) stage(ctx context.Context, ent entity.Entity, runID string) error {
	tbl, err := r.Load(r.LandingRoot, ent.Name, runID)
	if err != nil {
		return err
	}
	rowsIn := tbl.Len()
	log.Printf("[%s] landing loaded run_id=%s rows_in=%d", ent.Name, runID, rowsIn)

	if rowsIn == 0 {
		return r.Ledger.FinishSuccess(ctx, runID, 0, 0, 0)
	}

	records, err := staging.BuildRecords(tbl)
	if err != nil {
		return err
	}

	insertedHistory, err := r.Repo.InsertHistory(ctx, ent, records, r.BatchSize)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	upsertedLatest, err := r.Repo.UpsertLatest(ctx, ent, records, r.BatchSize)
	if err != nil {
		return fmt.Errorf("upsert latest: %w", err)
	}

	log.Printf("[%s] staged run_id=%s rows_in=%d inserted_history=%d upserted_latest=%d",
		ent.Name, runID, rowsIn, insertedHistory, upsertedLatest)

	return r.Ledger.FinishSuccess(ctx, runID, rowsIn, insertedHistory, upsertedLatest)
}
