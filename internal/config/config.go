// Package config provides configuration loading for the pipeline services.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds process configuration shared by the extractor and staging
// binaries. All values come from the environment.
type Config struct {
	// WMSBaseURL is the upstream WMS API base URL.
	WMSBaseURL string

	// DatabaseURL is the Postgres DSN. Required.
	DatabaseURL string

	// PipelineName partitions watermark and run-log rows.
	PipelineName string

	// FetchLimit is the page size for upstream pagination.
	FetchLimit int

	// Lookback is subtracted from the stored watermark to form the
	// effective extraction cursor.
	Lookback time.Duration

	// OutputFormat is the landing encoding: "csv" or "parquet".
	OutputFormat string

	// RequestTimeout bounds a single upstream HTTP request.
	RequestTimeout time.Duration

	// DefaultStartTime seeds the watermark on an entity's first run
	// (ISO 8601, UTC).
	DefaultStartTime string

	// LandingRoot is the local directory landing files are published under.
	LandingRoot string

	// MigrationsPath, when set, runs schema migrations at startup.
	MigrationsPath string

	// Landing archive settings. Archiving is enabled when ArchiveEndpoint
	// is non-empty.
	ArchiveEndpoint  string
	ArchiveAccessKey string
	ArchiveSecretKey string
	ArchiveBucket    string
	ArchiveUseSSL    bool
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		return nil, fmt.Errorf("missing required env var DATABASE_URL")
	}

	format := getEnv("OUTPUT_FORMAT", "parquet")
	if format != "csv" && format != "parquet" {
		log.Printf("invalid OUTPUT_FORMAT %q, falling back to parquet", format)
		format = "parquet"
	}

	return &Config{
		WMSBaseURL:       getEnv("WMS_BASE_URL", "http://localhost:8000"),
		DatabaseURL:      dsn,
		PipelineName:     getEnv("PIPELINE_NAME", "wms_dw"),
		FetchLimit:       getEnvInt("FETCH_LIMIT", 500),
		Lookback:         time.Duration(getEnvInt("LOOKBACK_SECONDS", 120)) * time.Second,
		OutputFormat:     format,
		RequestTimeout:   time.Duration(getEnvInt("REQUEST_TIMEOUT_SECONDS", 20)) * time.Second,
		DefaultStartTime: getEnv("DEFAULT_START_TIME", "1970-01-01T00:00:00Z"),
		LandingRoot:      getEnv("LANDING_ROOT", "./data/landing"),
		MigrationsPath:   os.Getenv("MIGRATIONS_PATH"),
		ArchiveEndpoint:  os.Getenv("LANDING_ARCHIVE_ENDPOINT"),
		ArchiveAccessKey: os.Getenv("LANDING_ARCHIVE_ACCESS_KEY"),
		ArchiveSecretKey: os.Getenv("LANDING_ARCHIVE_SECRET_KEY"),
		ArchiveBucket:    getEnv("LANDING_ARCHIVE_BUCKET", "wms-landing"),
		ArchiveUseSSL:    getEnvBool("LANDING_ARCHIVE_USE_SSL", false),
	}, nil
}

// ArchiveEnabled reports whether published landing files should be copied
// to the object-store archive.
func (c *Config) ArchiveEnabled() bool {
	return c.ArchiveEndpoint != ""
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}
