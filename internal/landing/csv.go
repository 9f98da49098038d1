package landing

import (
	"encoding/csv"
	"fmt"
	"os"

	"github.com/nguyenvanthanh0055-cyber/WMS-DATA-PIPELINE/internal/table"
)

// writeCSV writes the table with a header row. Business cells use the
// canonical cell encoding; temporal cells are plain text, empty on null.
func writeCSV(tbl *table.Table, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	columns := tbl.AllColumns()
	if err := w.Write(columns); err != nil {
		return err
	}

	for _, row := range tbl.Rows {
		record, err := encodeRow(tbl, row, columns)
		if err != nil {
			return err
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Sync()
}

// encodeRow renders one row in column order as cell text.
func encodeRow(tbl *table.Table, row table.Row, columns []string) ([]string, error) {
	record := make([]string, 0, len(columns))
	for _, col := range columns {
		switch col {
		case table.ColID:
			record = append(record, row.ID)
		case table.ColUpdatedAt:
			record = append(record, table.FormatInstant(row.UpdatedAt))
		case table.ColRunID:
			record = append(record, tbl.RunID)
		case table.ColExtractedAt:
			record = append(record, table.FormatInstant(tbl.ExtractedAt))
		case table.ColWatermarkEffective:
			record = append(record, table.FormatInstant(tbl.WatermarkEffective))
		default:
			cell, err := table.EncodeCell(col, row.Fields[col])
			if err != nil {
				return nil, err
			}
			record = append(record, cell)
		}
	}
	return record, nil
}

// readCSV loads the header and cells back. Null business cells come back
// through the cell decoding; temporal text is re-parsed by the caller.
func readCSV(path string) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("read csv: missing header")
	}
	return rows[0], rows[1:], nil
}
