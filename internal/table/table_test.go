package table

import (
	"testing"
	"time"
)

func TestParseInstantAcceptedForms(t *testing.T) {
	want := time.Date(2026, 8, 29, 10, 30, 0, 0, time.UTC)
	cases := []string{
		"2026-08-29T10:30:00Z",
		"2026-08-29T10:30:00+00:00",
		"2026-08-29T17:30:00+07:00",
		"2026-08-29T10:30:00",
		"2026-08-29 10:30:00",
		"  2026-08-29T10:30:00Z  ",
	}
	for _, in := range cases {
		got, err := ParseInstant(in)
		if err != nil {
			t.Fatalf("ParseInstant(%q): %v", in, err)
		}
		if !got.Equal(want) {
			t.Fatalf("ParseInstant(%q) = %s, want %s", in, got, want)
		}
		if got.Location() != time.UTC {
			t.Fatalf("ParseInstant(%q) not in UTC", in)
		}
	}
}

func TestParseInstantBareDate(t *testing.T) {
	got, err := ParseInstant("2026-08-29")
	if err != nil {
		t.Fatalf("ParseInstant: %v", err)
	}
	if !got.Equal(time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("got %s, want UTC midnight", got)
	}
}

func TestParseInstantRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "   ", "yesterday", "29/08/2026"} {
		if _, err := ParseInstant(in); err == nil {
			t.Fatalf("ParseInstant(%q): expected error", in)
		}
	}
}

func TestFormatInstantSubseconds(t *testing.T) {
	whole := time.Date(2026, 8, 29, 10, 30, 0, 0, time.UTC)
	if got := FormatInstant(whole); got != "2026-08-29T10:30:00Z" {
		t.Fatalf("whole-second form = %q", got)
	}
	frac := time.Date(2026, 8, 29, 10, 30, 0, 123000000, time.UTC)
	if got := FormatInstant(frac); got != "2026-08-29T10:30:00.123Z" {
		t.Fatalf("fractional form = %q", got)
	}
	offset := time.Date(2026, 8, 29, 17, 30, 0, 0, time.FixedZone("ICT", 7*3600))
	if got := FormatInstant(offset); got != "2026-08-29T10:30:00Z" {
		t.Fatalf("offset form = %q, want UTC", got)
	}
}

func TestCoerceID(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{"abc-123", "abc-123"},
		{float64(42), "42"},
		{float64(42.5), "42.5"},
		{true, "true"},
	}
	for _, tc := range cases {
		if got := CoerceID(tc.in); got != tc.want {
			t.Fatalf("CoerceID(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestColumnClassification(t *testing.T) {
	if !IsInstantColumn("created_at") || IsInstantColumn("po_date") || IsInstantColumn("status") {
		t.Fatal("instant classification wrong")
	}
	if !IsDateColumn("po_date") || IsDateColumn("created_at") {
		t.Fatal("date classification wrong")
	}
	if !IsMetaColumn("_run_id") || IsMetaColumn("run_id") {
		t.Fatal("meta classification wrong")
	}
}

func TestEncodeDecodeCellRoundTrip(t *testing.T) {
	cases := []struct {
		column string
		value  any
	}{
		{"status", "NEW"},
		{"note", nil},
		{"total_amount", float64(123456)},
		{"total_weight", float64(1.25)},
		{"is_priority", true},
		{"lines_flattened", `[{"sku":"SKU-1001"}]`},
		{"finished_at", nil},
		{"created_at", time.Date(2026, 8, 29, 10, 30, 0, 0, time.UTC)},
		{"po_date", time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		cell, err := EncodeCell(tc.column, tc.value)
		if err != nil {
			t.Fatalf("EncodeCell(%s): %v", tc.column, err)
		}
		got, err := DecodeCell(tc.column, cell)
		if err != nil {
			t.Fatalf("DecodeCell(%s): %v", tc.column, err)
		}
		switch want := tc.value.(type) {
		case time.Time:
			gt, ok := got.(time.Time)
			if !ok || !gt.Equal(want) {
				t.Fatalf("column %s: round trip = %v, want %v", tc.column, got, want)
			}
		default:
			if got != tc.value {
				t.Fatalf("column %s: round trip = %v (%T), want %v (%T)", tc.column, got, got, tc.value, tc.value)
			}
		}
	}
}

func TestDecodeCellUnparsableTemporalIsNull(t *testing.T) {
	got, err := DecodeCell("created_at", "not a time")
	if err != nil {
		t.Fatalf("DecodeCell: %v", err)
	}
	if got != nil {
		t.Fatalf("got %v, want nil", got)
	}
}

func TestAllColumnsOrder(t *testing.T) {
	tbl := &Table{Columns: []string{"status", "po_code"}}
	got := tbl.AllColumns()
	want := []string{"id", "updated_at", "status", "po_code", "_run_id", "_extracted_at", "_watermark_effective"}
	if len(got) != len(want) {
		t.Fatalf("columns = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("columns[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestMaxUpdatedAt(t *testing.T) {
	empty := &Table{}
	if !empty.MaxUpdatedAt().IsZero() {
		t.Fatal("empty table should report zero time")
	}
	t1 := time.Date(2026, 8, 29, 1, 0, 0, 0, time.UTC)
	t2 := time.Date(2026, 8, 29, 2, 0, 0, 0, time.UTC)
	tbl := &Table{Rows: []Row{{ID: "a", UpdatedAt: t1}, {ID: "b", UpdatedAt: t2}}}
	if !tbl.MaxUpdatedAt().Equal(t2) {
		t.Fatalf("MaxUpdatedAt = %s, want %s", tbl.MaxUpdatedAt(), t2)
	}
}
