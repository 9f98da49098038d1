// Package normalize turns raw upstream records into the canonical tabular
// form: validated required core, typed temporal columns, flattened line
// items, stamped run metadata, stable (updated_at, id) ordering, and
// exact-duplicate collapse.
package normalize

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/nguyenvanthanh0055-cyber/WMS-DATA-PIPELINE/internal/table"
	"github.com/nguyenvanthanh0055-cyber/WMS-DATA-PIPELINE/internal/wms"
)

// nestedLinesField is the upstream line-item collection flattened into a
// single JSON text column.
const (
	nestedLinesField  = "lines"
	flattenedLinesCol = "lines_flattened"

	// sampleLimit bounds how many offending rows a validation error reports.
	sampleLimit = 5
)

// Normalize validates, types, flattens and deduplicates extracted rows.
// Returns an empty table (with metadata set) for empty input.
func Normalize(rows []wms.RawRecord, entityName, runID string, extractedAt, watermarkEffective time.Time) (*table.Table, error) {
	out := &table.Table{
		RunID:              runID,
		ExtractedAt:        extractedAt.UTC(),
		WatermarkEffective: watermarkEffective.UTC(),
	}
	if len(rows) == 0 {
		return out, nil
	}

	if err := requireColumns(rows, entityName); err != nil {
		return nil, err
	}

	parsed := make([]table.Row, 0, len(rows))
	var badRows []map[string]any

	columns := make([]string, 0, 16)
	seen := make(map[string]bool)
	addColumn := func(name string) {
		if !seen[name] {
			seen[name] = true
			columns = append(columns, name)
		}
	}

	for _, raw := range rows {
		idVal, idOK := raw[table.ColID]
		updatedAt, updatedOK := parseUpdatedAt(raw[table.ColUpdatedAt])
		if !idOK || idVal == nil || !updatedOK {
			if len(badRows) < sampleLimit {
				badRows = append(badRows, map[string]any{
					table.ColID:        raw[table.ColID],
					table.ColUpdatedAt: raw[table.ColUpdatedAt],
				})
			}
			continue
		}

		row := table.Row{
			ID:        table.CoerceID(idVal),
			UpdatedAt: updatedAt,
			Fields:    make(map[string]any, len(raw)),
		}

		for name, value := range raw {
			switch name {
			case table.ColID, table.ColUpdatedAt:
				continue
			case nestedLinesField:
				flat, err := flattenLines(value)
				if err != nil {
					return nil, fmt.Errorf("flatten %s for entity %s: %w", nestedLinesField, entityName, err)
				}
				row.Fields[flattenedLinesCol] = flat
				continue
			}
			row.Fields[name] = normalizeField(name, value)
		}
		parsed = append(parsed, row)
	}

	if len(badRows) > 0 {
		return nil, fmt.Errorf("null in required fields for entity %s, sample=%v", entityName, badRows)
	}

	// Column order is first-seen across input rows, with lines replaced by
	// its flattened form in place.
	for _, raw := range rows {
		for _, name := range orderedKeys(raw) {
			switch name {
			case table.ColID, table.ColUpdatedAt:
				continue
			case nestedLinesField:
				addColumn(flattenedLinesCol)
			default:
				addColumn(name)
			}
		}
	}

	sort.SliceStable(parsed, func(i, j int) bool {
		if !parsed[i].UpdatedAt.Equal(parsed[j].UpdatedAt) {
			return parsed[i].UpdatedAt.Before(parsed[j].UpdatedAt)
		}
		return parsed[i].ID < parsed[j].ID
	})

	out.Columns = columns
	out.Rows = dedupeLastWins(parsed)
	return out, nil
}

// requireColumns fails unless id and updated_at appear as columns, i.e.
// at least one row carries each key.
func requireColumns(rows []wms.RawRecord, entityName string) error {
	var missing []string
	for _, required := range []string{table.ColID, table.ColUpdatedAt} {
		found := false
		for _, raw := range rows {
			if _, ok := raw[required]; ok {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, required)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required columns %v for entity %s", missing, entityName)
	}
	return nil
}

func parseUpdatedAt(v any) (time.Time, bool) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, false
	}
	t, err := table.ParseInstant(s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// normalizeField types a business value by column name. Unparsable
// temporal values coerce to null rather than failing.
func normalizeField(name string, value any) any {
	if value == nil {
		return nil
	}
	if table.IsInstantColumn(name) {
		s, ok := value.(string)
		if !ok {
			return nil
		}
		t, err := table.ParseInstant(s)
		if err != nil {
			return nil
		}
		return t
	}
	if table.IsDateColumn(name) {
		s, ok := value.(string)
		if !ok {
			return nil
		}
		t, err := table.ParseDate(s)
		if err != nil {
			return nil
		}
		return t
	}
	return value
}

// flattenLines serializes the nested line-item collection into
// deterministic JSON text.
func flattenLines(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// dedupeLastWins collapses rows sharing an identical (id, updated_at)
// pair, keeping the last occurrence after the stable sort. Distinct
// updates to the same id keep their own rows.
func dedupeLastWins(rows []table.Row) []table.Row {
	if len(rows) == 0 {
		return rows
	}
	out := make([]table.Row, 0, len(rows))
	for i, row := range rows {
		if i+1 < len(rows) {
			next := rows[i+1]
			if next.ID == row.ID && next.UpdatedAt.Equal(row.UpdatedAt) {
				continue
			}
		}
		out = append(out, row)
	}
	return out
}

// orderedKeys returns a record's keys in a stable order. JSON decoding
// loses the document order, so keys are sorted; the resulting column
// order is deterministic for a given input set.
func orderedKeys(raw wms.RawRecord) []string {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
