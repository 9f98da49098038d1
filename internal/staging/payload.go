// Package staging fingerprints normalized rows and applies them to the
// append-only history and last-writer-wins latest staging tables.
package staging

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nguyenvanthanh0055-cyber/WMS-DATA-PIPELINE/internal/table"
)

// Record is one staged row: the canonical payload, its content
// fingerprint, and the run metadata carried alongside.
type Record struct {
	ID                 string
	UpdatedAt          time.Time
	Payload            string
	PayloadHash        string
	RunID              string
	ExtractedAt        time.Time
	WatermarkEffective time.Time
}

// BuildRecords canonicalizes every row of a landing table. The payload is
// the row's non-metadata fields serialized as JSON with sorted keys and
// no extraneous whitespace; the hash is the SHA-256 hex digest of its
// UTF-8 bytes. Semantically identical rows from different runs hash
// identically.
func BuildRecords(tbl *table.Table) ([]Record, error) {
	records := make([]Record, 0, tbl.Len())
	for _, row := range tbl.Rows {
		payload, err := canonicalPayload(tbl, row)
		if err != nil {
			return nil, err
		}
		sum := sha256.Sum256([]byte(payload))

		records = append(records, Record{
			ID:                 row.ID,
			UpdatedAt:          row.UpdatedAt,
			Payload:            payload,
			PayloadHash:        hex.EncodeToString(sum[:]),
			RunID:              tbl.RunID,
			ExtractedAt:        tbl.ExtractedAt,
			WatermarkEffective: tbl.WatermarkEffective,
		})
	}
	return records, nil
}

// canonicalPayload serializes the row's business fields, excluding every
// column carrying the internal-metadata marker. encoding/json emits map
// keys sorted, which fixes the canonical key order.
func canonicalPayload(tbl *table.Table, row table.Row) (string, error) {
	payload := make(map[string]any, len(tbl.Columns)+2)
	payload[table.ColID] = row.ID
	payload[table.ColUpdatedAt] = table.FormatInstant(row.UpdatedAt)

	for _, col := range tbl.Columns {
		if table.IsMetaColumn(col) {
			continue
		}
		value, err := canonicalValue(col, row.Fields[col])
		if err != nil {
			return "", err
		}
		payload[col] = value
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload for id=%s: %w", row.ID, err)
	}
	return string(b), nil
}

// canonicalValue renders temporal values in their canonical text form;
// other values pass through as decoded JSON.
func canonicalValue(column string, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if table.IsInstantColumn(column) || table.IsDateColumn(column) {
		t, ok := v.(time.Time)
		if !ok {
			return nil, fmt.Errorf("column %s: expected time.Time, got %T", column, v)
		}
		if table.IsDateColumn(column) {
			return table.FormatDate(t), nil
		}
		return table.FormatInstant(t), nil
	}
	return v, nil
}
