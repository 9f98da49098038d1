// Package landing materializes normalized batches as immutable,
// atomically-published files keyed by (entity, run_id), and re-opens them
// for the staging stage. Two encodings are supported: csv and parquet.
package landing

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/nguyenvanthanh0055-cyber/WMS-DATA-PIPELINE/internal/table"
)

// Format selects the landing file encoding.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatParquet Format = "parquet"
)

// ErrAlreadyPublished signals a landing file already exists for the
// (entity, run_id) pair. A retried run must use a fresh run_id.
var ErrAlreadyPublished = errors.New("landing file already exists")

// ErrNotFound signals no landing file exists at the expected path in
// either supported encoding.
var ErrNotFound = errors.New("landing file not found")

// ParseFormat validates a configured format string.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatParquet:
		return FormatParquet, nil
	default:
		return "", fmt.Errorf("unsupported output format: %q", s)
	}
}

func (f Format) ext() string { return string(f) }

// runDir returns {landingRoot}/{entity}/run_id={runID}.
func runDir(landingRoot, entityName, runID string) string {
	return filepath.Join(landingRoot, entityName, "run_id="+runID)
}

// Publish writes the table to a uniquely-named temporary file inside the
// destination directory, then atomically renames it to the canonical
// part-000 path. Publishing the same (entity, run_id) twice fails and
// leaves the first file intact. An empty table still produces a valid
// header-only file.
func Publish(tbl *table.Table, landingRoot, entityName, runID string, format Format) (string, error) {
	switch format {
	case FormatCSV, FormatParquet:
	default:
		return "", fmt.Errorf("unsupported output format: %q", format)
	}

	dir := runDir(landingRoot, entityName, runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create landing dir: %w", err)
	}

	finalPath := filepath.Join(dir, "part-000."+format.ext())
	if _, err := os.Stat(finalPath); err == nil {
		return "", fmt.Errorf("%w: %s", ErrAlreadyPublished, finalPath)
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("stat landing file: %w", err)
	}

	tmpName := fmt.Sprintf("part-000.%s.tmp.%s", uuid.NewString(), format.ext())
	tmpPath := filepath.Join(dir, tmpName)

	var err error
	switch format {
	case FormatCSV:
		err = writeCSV(tbl, tmpPath)
	case FormatParquet:
		err = writeParquet(tbl, tmpPath)
	}
	if err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("write landing file: %w", err)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("publish landing file: %w", err)
	}

	log.Printf("[%s] wrote landing file %s (rows=%d)", entityName, finalPath, tbl.Len())
	return finalPath, nil
}
