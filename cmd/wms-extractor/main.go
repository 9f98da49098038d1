// Command wms-extractor runs the extraction-to-landing flow: for every
// registered entity, fetch records updated since the effective watermark,
// normalize them, publish an immutable landing file, and advance the
// watermark.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"

	"github.com/nguyenvanthanh0055-cyber/WMS-DATA-PIPELINE/internal/config"
	"github.com/nguyenvanthanh0055-cyber/WMS-DATA-PIPELINE/internal/database"
	"github.com/nguyenvanthanh0055-cyber/WMS-DATA-PIPELINE/internal/landing"
	"github.com/nguyenvanthanh0055-cyber/WMS-DATA-PIPELINE/internal/pipeline"
	"github.com/nguyenvanthanh0055-cyber/WMS-DATA-PIPELINE/internal/watermark"
	"github.com/nguyenvanthanh0055-cyber/WMS-DATA-PIPELINE/internal/wms"
)

func main() {
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

	format, err := landing.ParseFormat(cfg.OutputFormat)
	if err != nil {
		log.Fatalf("landing format: %v", err)
	}

	clientCfg := wms.DefaultClientConfig()
	clientCfg.BaseURL = cfg.WMSBaseURL
	clientCfg.Timeout = cfg.RequestTimeout

	run := &pipeline.ExtractionRun{
		PipelineName:     cfg.PipelineName,
		LandingRoot:      cfg.LandingRoot,
		OutputFormat:     format,
		Lookback:         cfg.Lookback,
		DefaultStartTime: cfg.DefaultStartTime,
		Extractor: &wms.Extractor{
			Client:   wms.NewClient(clientCfg),
			PageSize: cfg.FetchLimit,
		},
		Watermarks: watermark.NewStore(db),
	}

	if cfg.ArchiveEnabled() {
		archiver, err := landing.NewArchiver(ctx, landing.ArchiveConfig{
			EndpointURL:     cfg.ArchiveEndpoint,
			AccessKeyID:     cfg.ArchiveAccessKey,
			SecretAccessKey: cfg.ArchiveSecretKey,
			Bucket:          cfg.ArchiveBucket,
			UseSSL:          cfg.ArchiveUseSSL,
		})
		if err != nil {
			log.Fatalf("landing archive: %v", err)
		}
		run.Archiver = archiver
	}

	runID := strings.ReplaceAll(uuid.NewString(), "-", "")
	log.Printf("extraction run starting pipeline=%s run_id=%s", cfg.PipelineName, runID)

	if err := run.Run(ctx, runID); err != nil {
		log.Printf("extraction run failed run_id=%s: %v", runID, err)
		os.Exit(1)
	}
	log.Printf("extraction run complete run_id=%s", runID)
}
