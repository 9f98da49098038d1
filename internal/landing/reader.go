package landing

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/nguyenvanthanh0055-cyber/WMS-DATA-PIPELINE/internal/table"
)

// requiredColumns must be present in any landing file for the staging
// stage to proceed.
var requiredColumns = []string{
	table.ColID,
	table.ColUpdatedAt,
	table.ColRunID,
	table.ColExtractedAt,
}

// Load re-opens a previously published landing file. Temporal columns are
// re-parsed to timezone-aware UTC, since the on-disk encodings carry them
// as text.
func Load(landingRoot, entityName, runID string) (*table.Table, error) {
	dir := runDir(landingRoot, entityName, runID)
	parquetPath := filepath.Join(dir, "part-000.parquet")
	csvPath := filepath.Join(dir, "part-000.csv")

	var columns []string
	var cells [][]string
	var err error
	switch {
	case fileExists(parquetPath):
		columns, cells, err = readParquet(parquetPath)
	case fileExists(csvPath):
		columns, cells, err = readCSV(csvPath)
	default:
		return nil, fmt.Errorf("%w: %s or %s", ErrNotFound, parquetPath, csvPath)
	}
	if err != nil {
		return nil, err
	}

	return decodeTable(columns, cells)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// decodeTable reconstructs the in-memory table from column names and cell
// text shared by both encodings.
func decodeTable(columns []string, cells [][]string) (*table.Table, error) {
	index := make(map[string]int, len(columns))
	for i, col := range columns {
		index[col] = i
	}

	var missing []string
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("landing file missing columns %v", missing)
	}

	tbl := &table.Table{}
	for _, col := range columns {
		switch col {
		case table.ColID, table.ColUpdatedAt, table.ColRunID, table.ColExtractedAt, table.ColWatermarkEffective:
			continue
		}
		tbl.Columns = append(tbl.Columns, col)
	}

	for n, record := range cells {
		if len(record) != len(columns) {
			return nil, fmt.Errorf("landing row %d has %d cells, want %d", n, len(record), len(columns))
		}

		updatedAt, err := table.ParseInstant(record[index[table.ColUpdatedAt]])
		if err != nil {
			return nil, fmt.Errorf("landing row %d: %w", n, err)
		}

		row := table.Row{
			ID:        record[index[table.ColID]],
			UpdatedAt: updatedAt,
			Fields:    make(map[string]any, len(tbl.Columns)),
		}
		for _, col := range tbl.Columns {
			value, err := table.DecodeCell(col, record[index[col]])
			if err != nil {
				return nil, fmt.Errorf("landing row %d: %w", n, err)
			}
			row.Fields[col] = value
		}
		tbl.Rows = append(tbl.Rows, row)

		// Run metadata is constant per batch; take it from the first row.
		if n == 0 {
			tbl.RunID = record[index[table.ColRunID]]
			if t, err := table.ParseInstant(record[index[table.ColExtractedAt]]); err == nil {
				tbl.ExtractedAt = t
			}
			if i, ok := index[table.ColWatermarkEffective]; ok {
				if t, err := table.ParseInstant(record[i]); err == nil {
					tbl.WatermarkEffective = t
				}
			}
		}
	}

	return tbl, nil
}
