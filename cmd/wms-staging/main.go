// Command wms-staging moves one published landing batch into the staging
// tables: content-hash the rows, append to history, upsert the latest
// view, all bracketed by the run ledger.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/nguyenvanthanh0055-cyber/WMS-DATA-PIPELINE/internal/config"
	"github.com/nguyenvanthanh0055-cyber/WMS-DATA-PIPELINE/internal/database"
	"github.com/nguyenvanthanh0055-cyber/WMS-DATA-PIPELINE/internal/entity"
	"github.com/nguyenvanthanh0055-cyber/WMS-DATA-PIPELINE/internal/landing"
	"github.com/nguyenvanthanh0055-cyber/WMS-DATA-PIPELINE/internal/pipeline"
	"github.com/nguyenvanthanh0055-cyber/WMS-DATA-PIPELINE/internal/runlog"
	"github.com/nguyenvanthanh0055-cyber/WMS-DATA-PIPELINE/internal/staging"
)

func main() {
	entityName := flag.String("entity", "", "entity to stage (ib_receipts or ob_orders)")
	runID := flag.String("run-id", "", "run id of the landing batch to stage")
	batchSize := flag.Int("batch-size", 500, "records per staging transaction")
	flag.Parse()

	if *entityName == "" || *runID == "" {
		flag.Usage()
		os.Exit(2)
	}
	if _, err := entity.Lookup(*entityName); err != nil {
		log.Fatalf("invalid -entity: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	db, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connect to database: %v", err)
	}
	defer db.Close()

	if cfg.MigrationsPath != "" {
		if err := database.Migrate(db, cfg.MigrationsPath); err != nil {
			log.Fatalf("migrate database: %v", err)
		}
	}

	run := &pipeline.StagingRun{
		PipelineName: cfg.PipelineName,
		LandingRoot:  cfg.LandingRoot,
		BatchSize:    *batchSize,
		Ledger:       runlog.NewLedger(db),
		Repo:         staging.NewRepository(db),
		Load:         landing.Load,
	}

	if err := run.Run(ctx, *entityName, *runID); err != nil {
		log.Printf("staging run failed entity=%s run_id=%s: %v", *entityName, *runID, err)
		os.Exit(1)
	}
	log.Printf("staging run complete entity=%s run_id=%s", *entityName, *runID)
}
