// Package table provides the ordered in-memory batch representation used
// between extraction, landing, and staging. A row has a fixed required
// core (id, updated_at) plus an open map of pass-through business fields;
// temporal columns are recognized by name and carried as typed values.
package table

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Reserved internal-metadata column names. Columns carrying the metadata
// marker are excluded from staged payloads.
const (
	ColID                 = "id"
	ColUpdatedAt          = "updated_at"
	ColRunID              = "_run_id"
	ColExtractedAt        = "_extracted_at"
	ColWatermarkEffective = "_watermark_effective"

	metaMarker = "_"
)

// Row is one normalized record.
type Row struct {
	// ID is the upstream identifier, always text.
	ID string

	// UpdatedAt is the record's modification instant, UTC.
	UpdatedAt time.Time

	// Fields holds the business columns (everything except id, updated_at
	// and run metadata). Instant columns hold time.Time, calendar-date
	// columns hold time.Time at UTC midnight, everything else holds the
	// decoded JSON value. Nil means null.
	Fields map[string]any
}

// Table is an ordered batch of rows plus the run metadata stamped on
// every row when the batch is materialized.
type Table struct {
	// Columns lists the business columns in first-seen order.
	Columns []string

	Rows []Row

	RunID              string
	ExtractedAt        time.Time
	WatermarkEffective time.Time
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Rows) }

// Empty reports whether the table has no rows.
func (t *Table) Empty() bool { return len(t.Rows) == 0 }

// AllColumns returns the full on-disk column order: the required core,
// business columns, then run metadata.
func (t *Table) AllColumns() []string {
	cols := make([]string, 0, len(t.Columns)+5)
	cols = append(cols, ColID, ColUpdatedAt)
	cols = append(cols, t.Columns...)
	cols = append(cols, ColRunID, ColExtractedAt, ColWatermarkEffective)
	return cols
}

// MaxUpdatedAt returns the greatest updated_at in the table; the zero
// time for an empty table. Rows are ordered, so this is the last row.
func (t *Table) MaxUpdatedAt() time.Time {
	if len(t.Rows) == 0 {
		return time.Time{}
	}
	return t.Rows[len(t.Rows)-1].UpdatedAt
}

// =============================================================================
// COLUMN CLASSIFICATION
// =============================================================================

// IsMetaColumn reports whether a column carries the reserved
// internal-metadata marker.
func IsMetaColumn(name string) bool {
	return strings.HasPrefix(name, metaMarker)
}

// IsInstantColumn reports whether a column name signals instant
// semantics.
func IsInstantColumn(name string) bool {
	return strings.HasSuffix(name, "_at")
}

// IsDateColumn reports whether a column name signals calendar-date
// semantics.
func IsDateColumn(name string) bool {
	return strings.HasSuffix(name, "_date")
}

// =============================================================================
// CANONICAL VALUE ENCODING
// =============================================================================

// FormatInstant renders an instant in the canonical wire form: RFC 3339
// in UTC with sub-second digits only when present.
func FormatInstant(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// FormatDate renders a calendar date as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

var instantLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseInstant parses an instant from any of the accepted upstream forms
// into UTC. Naive timestamps are taken as UTC.
func ParseInstant(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty instant")
	}
	for _, layout := range instantLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable instant %q", s)
}

// ParseDate parses a YYYY-MM-DD calendar date to UTC midnight.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("unparsable date %q", s)
	}
	return t.UTC(), nil
}

// CoerceID renders an upstream id value as text.
func CoerceID(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(id)
	default:
		return fmt.Sprint(id)
	}
}

// EncodeCell renders a business value as its on-disk cell text. Temporal
// values become plain canonical text (empty when null); everything else
// becomes a JSON literal so the reader recovers the exact type.
func EncodeCell(column string, v any) (string, error) {
	if IsInstantColumn(column) || IsDateColumn(column) {
		if v == nil {
			return "", nil
		}
		t, ok := v.(time.Time)
		if !ok {
			return "", fmt.Errorf("column %s: expected time.Time, got %T", column, v)
		}
		if IsDateColumn(column) {
			return FormatDate(t), nil
		}
		return FormatInstant(t), nil
	}

	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("column %s: %w", column, err)
	}
	return string(b), nil
}

// DecodeCell is the inverse of EncodeCell. Temporal cells are re-parsed
// to timezone-aware UTC; unparsable temporal text coerces to null, since
// the on-disk format may not preserve timezone fidelity.
func DecodeCell(column, cell string) (any, error) {
	if IsInstantColumn(column) {
		if cell == "" {
			return nil, nil
		}
		t, err := ParseInstant(cell)
		if err != nil {
			return nil, nil
		}
		return t, nil
	}
	if IsDateColumn(column) {
		if cell == "" {
			return nil, nil
		}
		t, err := ParseDate(cell)
		if err != nil {
			return nil, nil
		}
		return t, nil
	}

	if cell == "" {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal([]byte(cell), &v); err != nil {
		return nil, fmt.Errorf("column %s: invalid cell %q: %w", column, cell, err)
	}
	return v, nil
}
