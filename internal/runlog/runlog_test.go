package runlog

import (
	"context"
	"database/sql"
	"os"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/nguyenvanthanh0055-cyber/WMS-DATA-PIPELINE/internal/database"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set, skipping database integration test")
	}
	db, err := database.Open(context.Background(), dsn)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := database.Migrate(db, "../../migrations"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newRunID(t *testing.T, db *sql.DB) string {
	t.Helper()
	runID := "test-" + uuid.NewString()
	t.Cleanup(func() {
		db.Exec("DELETE FROM pipeline_run_log WHERE run_id = $1", runID)
	})
	return runID
}

type runRow struct {
	status          string
	rowsIn          sql.NullInt64
	insertedHistory sql.NullInt64
	upsertedLatest  sql.NullInt64
	errText         sql.NullString
	endedAt         sql.NullTime
}

func queryRun(t *testing.T, db *sql.DB, runID string) runRow {
	t.Helper()
	var row runRow
	err := db.QueryRow(`
		SELECT status, rows_in, rows_inserted_history, rows_upserted_latest, error, ended_at
		FROM pipeline_run_log WHERE run_id = $1`, runID,
	).Scan(&row.status, &row.rowsIn, &row.insertedHistory, &row.upsertedLatest, &row.errText, &row.endedAt)
	if err != nil {
		t.Fatalf("query run log: %v", err)
	}
	return row
}

func TestStartIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	ledger := NewLedger(db)
	ctx := context.Background()
	runID := newRunID(t, db)

	if err := ledger.Start(ctx, runID, "wms_dw_test", "ib_receipts"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := ledger.Start(ctx, runID, "wms_dw_test", "ib_receipts"); err != nil {
		t.Fatalf("Start again: %v", err)
	}

	var count int
	if err := db.QueryRow("SELECT count(*) FROM pipeline_run_log WHERE run_id = $1", runID).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("rows = %d, want 1", count)
	}
	if row := queryRun(t, db, runID); row.status != "running" {
		t.Fatalf("status = %s, want running", row.status)
	}
}

func TestFinishSuccessRecordsCounts(t *testing.T) {
	db := openTestDB(t)
	ledger := NewLedger(db)
	ctx := context.Background()
	runID := newRunID(t, db)

	if err := ledger.Start(ctx, runID, "wms_dw_test", "ib_receipts"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := ledger.FinishSuccess(ctx, runID, 120, 80, 40); err != nil {
		t.Fatalf("FinishSuccess: %v", err)
	}

	row := queryRun(t, db, runID)
	if row.status != "success" {
		t.Fatalf("status = %s", row.status)
	}
	if row.rowsIn.Int64 != 120 || row.insertedHistory.Int64 != 80 || row.upsertedLatest.Int64 != 40 {
		t.Fatalf("counts = %+v", row)
	}
	if row.errText.Valid {
		t.Fatalf("error = %q, want NULL", row.errText.String)
	}
	if !row.endedAt.Valid {
		t.Fatal("ended_at not set")
	}
}

func TestTruncateErrorKeepsRuneBoundary(t *testing.T) {
	cases := []struct {
		name string
		in   string
	}{
		{"ascii", strings.Repeat("x", maxErrorLen+100)},
		{"two byte runes", strings.Repeat("é", maxErrorLen)},
		{"three byte runes", strings.Repeat("数", maxErrorLen)},
		{"four byte runes", strings.Repeat("\U0001F4E6", maxErrorLen)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := truncateError(tc.in)
			if len(got) > maxErrorLen {
				t.Fatalf("length = %d, want <= %d", len(got), maxErrorLen)
			}
			if !utf8.ValidString(got) {
				t.Fatalf("truncated message is not valid UTF-8: %q", got[len(got)-8:])
			}
			if !strings.HasPrefix(tc.in, got) {
				t.Fatal("truncated message is not a prefix of the input")
			}
		})
	}

	if got := truncateError("short"); got != "short" {
		t.Fatalf("got %q, want input unchanged", got)
	}
}

func TestFinishFailedTruncatesError(t *testing.T) {
	db := openTestDB(t)
	ledger := NewLedger(db)
	ctx := context.Background()
	runID := newRunID(t, db)

	if err := ledger.Start(ctx, runID, "wms_dw_test", "ob_orders"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	long := strings.Repeat("x", 10000)
	if err := ledger.FinishFailed(ctx, runID, long); err != nil {
		t.Fatalf("FinishFailed: %v", err)
	}

	row := queryRun(t, db, runID)
	if row.status != "failed" {
		t.Fatalf("status = %s", row.status)
	}
	if !row.errText.Valid || len(row.errText.String) != 4000 {
		t.Fatalf("error length = %d, want 4000", len(row.errText.String))
	}
	if !row.endedAt.Valid {
		t.Fatal("ended_at not set")
	}
}
