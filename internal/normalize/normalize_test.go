package normalize

import (
	"strings"
	"testing"
	"time"

	"github.com/nguyenvanthanh0055-cyber/WMS-DATA-PIPELINE/internal/table"
	"github.com/nguyenvanthanh0055-cyber/WMS-DATA-PIPELINE/internal/wms"
)

var (
	runID       = "run0001"
	extractedAt = time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	effective   = time.Date(2026, 8, 29, 6, 0, 0, 0, time.UTC)
)

func mustNormalize(t *testing.T, rows []wms.RawRecord) *table.Table {
	t.Helper()
	tbl, err := Normalize(rows, "ib_receipts", runID, extractedAt, effective)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	return tbl
}

func TestNormalizeEmptyInput(t *testing.T) {
	tbl := mustNormalize(t, nil)
	if !tbl.Empty() {
		t.Fatal("expected empty table")
	}
	if tbl.RunID != runID || !tbl.ExtractedAt.Equal(extractedAt) || !tbl.WatermarkEffective.Equal(effective) {
		t.Fatalf("metadata not stamped: %+v", tbl)
	}
}

func TestNormalizeTypesTemporalColumns(t *testing.T) {
	tbl := mustNormalize(t, []wms.RawRecord{{
		"id":          "r-1",
		"updated_at":  "2026-08-29T10:00:00+07:00",
		"created_at":  "2026-08-29 02:00:00",
		"finished_at": nil,
		"po_date":     "2026-08-28",
		"status":      "NEW",
	}})

	row := tbl.Rows[0]
	if !row.UpdatedAt.Equal(time.Date(2026, 8, 29, 3, 0, 0, 0, time.UTC)) {
		t.Fatalf("updated_at = %s, want 03:00Z", row.UpdatedAt)
	}
	created, ok := row.Fields["created_at"].(time.Time)
	if !ok || !created.Equal(time.Date(2026, 8, 29, 2, 0, 0, 0, time.UTC)) {
		t.Fatalf("created_at = %v", row.Fields["created_at"])
	}
	poDate, ok := row.Fields["po_date"].(time.Time)
	if !ok || !poDate.Equal(time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("po_date = %v", row.Fields["po_date"])
	}
	if row.Fields["finished_at"] != nil {
		t.Fatalf("finished_at = %v, want nil", row.Fields["finished_at"])
	}
	if row.Fields["status"] != "NEW" {
		t.Fatalf("status = %v", row.Fields["status"])
	}
}

func TestNormalizeUnparsableTemporalCoercesToNull(t *testing.T) {
	tbl := mustNormalize(t, []wms.RawRecord{{
		"id":          "r-1",
		"updated_at":  "2026-08-29T10:00:00Z",
		"finished_at": "not a timestamp",
		"po_date":     float64(20260828),
	}})
	row := tbl.Rows[0]
	if row.Fields["finished_at"] != nil {
		t.Fatalf("finished_at = %v, want nil", row.Fields["finished_at"])
	}
	if row.Fields["po_date"] != nil {
		t.Fatalf("po_date = %v, want nil", row.Fields["po_date"])
	}
}

func TestNormalizeCoercesNumericID(t *testing.T) {
	tbl := mustNormalize(t, []wms.RawRecord{{
		"id":         float64(42),
		"updated_at": "2026-08-29T10:00:00Z",
	}})
	if tbl.Rows[0].ID != "42" {
		t.Fatalf("id = %q, want \"42\"", tbl.Rows[0].ID)
	}
}

func TestNormalizeFlattensLines(t *testing.T) {
	tbl := mustNormalize(t, []wms.RawRecord{{
		"id":         "r-1",
		"updated_at": "2026-08-29T10:00:00Z",
		"lines": []any{
			map[string]any{"sku": "SKU-1001", "qty": float64(3)},
		},
	}})

	row := tbl.Rows[0]
	if _, ok := row.Fields["lines"]; ok {
		t.Fatal("raw lines column leaked through")
	}
	flat, ok := row.Fields["lines_flattened"].(string)
	if !ok {
		t.Fatalf("lines_flattened = %T, want string", row.Fields["lines_flattened"])
	}
	if !strings.Contains(flat, `"sku":"SKU-1001"`) {
		t.Fatalf("lines_flattened = %q", flat)
	}

	found := false
	for _, c := range tbl.Columns {
		if c == "lines" {
			t.Fatal("columns still list raw lines")
		}
		if c == "lines_flattened" {
			found = true
		}
	}
	if !found {
		t.Fatalf("columns = %v, missing lines_flattened", tbl.Columns)
	}
}

func TestNormalizeSortsAndDeduplicates(t *testing.T) {
	t1 := "2026-08-29T10:00:00Z"
	t2 := "2026-08-29T11:00:00Z"
	tbl := mustNormalize(t, []wms.RawRecord{
		{"id": "b", "updated_at": t2, "status": "PROCESSING"},
		{"id": "a", "updated_at": t1, "status": "NEW"},
		{"id": "a", "updated_at": t1, "status": "NEW-AGAIN"}, // same key, later occurrence wins
		{"id": "a", "updated_at": t2, "status": "PROCESSING"},
	})

	if tbl.Len() != 3 {
		t.Fatalf("rows = %d, want 3", tbl.Len())
	}
	wantOrder := []struct{ id, status string }{
		{"a", "NEW-AGAIN"},
		{"a", "PROCESSING"},
		{"b", "PROCESSING"},
	}
	for i, want := range wantOrder {
		row := tbl.Rows[i]
		if row.ID != want.id || row.Fields["status"] != want.status {
			t.Fatalf("row %d = (%s, %v), want (%s, %s)", i, row.ID, row.Fields["status"], want.id, want.status)
		}
	}
}

func TestNormalizeDistinctUpdatesKept(t *testing.T) {
	tbl := mustNormalize(t, []wms.RawRecord{
		{"id": "a", "updated_at": "2026-08-29T10:00:00Z"},
		{"id": "a", "updated_at": "2026-08-29T11:00:00Z"},
	})
	if tbl.Len() != 2 {
		t.Fatalf("rows = %d, want 2 (distinct updated_at values are separate updates)", tbl.Len())
	}
}

func TestNormalizeMissingRequiredColumn(t *testing.T) {
	_, err := Normalize([]wms.RawRecord{
		{"id": "a", "status": "NEW"},
	}, "ib_receipts", runID, extractedAt, effective)
	if err == nil || !strings.Contains(err.Error(), "missing required columns") {
		t.Fatalf("error = %v, want missing required columns", err)
	}
}

func TestNormalizeNullRequiredFieldFailsWithSample(t *testing.T) {
	_, err := Normalize([]wms.RawRecord{
		{"id": "a", "updated_at": "2026-08-29T10:00:00Z"},
		{"id": nil, "updated_at": "2026-08-29T10:00:00Z"},
		{"id": "c", "updated_at": "garbage"},
	}, "ib_receipts", runID, extractedAt, effective)
	if err == nil || !strings.Contains(err.Error(), "null in required fields") {
		t.Fatalf("error = %v, want null in required fields", err)
	}
	if !strings.Contains(err.Error(), "ib_receipts") {
		t.Fatalf("error %v does not name the entity", err)
	}
}

func TestNormalizeColumnOrderIsDeterministic(t *testing.T) {
	rows := []wms.RawRecord{
		{"id": "a", "updated_at": "2026-08-29T10:00:00Z", "status": "NEW", "po_code": "PO1"},
		{"id": "b", "updated_at": "2026-08-29T10:01:00Z", "status": "NEW", "po_code": "PO2", "note": "x"},
	}
	first := mustNormalize(t, rows)
	for i := 0; i < 10; i++ {
		again := mustNormalize(t, rows)
		if len(again.Columns) != len(first.Columns) {
			t.Fatalf("column count changed: %v vs %v", again.Columns, first.Columns)
		}
		for j := range first.Columns {
			if again.Columns[j] != first.Columns[j] {
				t.Fatalf("column order changed: %v vs %v", again.Columns, first.Columns)
			}
		}
	}
}
