package landing

import (
	"encoding/json"
	"fmt"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/nguyenvanthanh0055-cyber/WMS-DATA-PIPELINE/internal/table"
)

const parquetRoot = "parquet_go_root"

// parquetColumnsKey is the footer metadata key holding the exact column
// names in write order. The parquet schema itself stores mangled
// identifiers ("Id", "PARGO_PREFIX__run_id"), so the real names must
// travel in key-value metadata.
const parquetColumnsKey = "landing.columns"

// buildParquetSchema renders the JSON schema for the table's columns.
// Every column is an optional UTF8 byte array holding the same canonical
// cell text the CSV encoding uses; typed values are recovered on load.
func buildParquetSchema(columns []string) string {
	fields := make([]map[string]string, 0, len(columns))
	for _, col := range columns {
		fields = append(fields, map[string]string{
			"Tag": fmt.Sprintf("name=%s, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL", col),
		})
	}
	out := map[string]any{
		"Tag":    fmt.Sprintf("name=%s, repetitiontype=REQUIRED", parquetRoot),
		"Fields": fields,
	}
	b, _ := json.Marshal(out)
	return string(b)
}

// writeParquet writes the table as a snappy-compressed parquet file.
// Rows go through the JSON writer, which accepts one JSON document of
// cell text per row.
func writeParquet(tbl *table.Table, path string) error {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("open parquet writer: %w", err)
	}

	columns := tbl.AllColumns()
	pw, err := writer.NewJSONWriter(buildParquetSchema(columns), fw, 4)
	if err != nil {
		fw.Close()
		return fmt.Errorf("create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	names, err := json.Marshal(columns)
	if err != nil {
		fw.Close()
		return fmt.Errorf("encode parquet column metadata: %w", err)
	}
	value := string(names)
	pw.Footer.KeyValueMetadata = append(pw.Footer.KeyValueMetadata,
		&parquet.KeyValue{Key: parquetColumnsKey, Value: &value})

	for _, row := range tbl.Rows {
		cells, err := encodeRow(tbl, row, columns)
		if err != nil {
			_ = pw.WriteStop()
			fw.Close()
			return err
		}
		out := make(map[string]any, len(columns))
		for i, col := range columns {
			// Empty temporal cells land as nulls, matching CSV's empty text.
			if cells[i] == "" && (table.IsInstantColumn(col) || table.IsDateColumn(col)) {
				out[col] = nil
				continue
			}
			out[col] = cells[i]
		}
		doc, err := json.Marshal(out)
		if err != nil {
			_ = pw.WriteStop()
			fw.Close()
			return fmt.Errorf("encode parquet row: %w", err)
		}
		if err := pw.Write(string(doc)); err != nil {
			_ = pw.WriteStop()
			fw.Close()
			return fmt.Errorf("write parquet row: %w", err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		fw.Close()
		return fmt.Errorf("finalize parquet file: %w", err)
	}
	return fw.Close()
}

// readParquet loads the column names and cell text back from a parquet
// landing file. Columns are read by schema index, which preserves write
// order; names come from the footer metadata.
func readParquet(path string) ([]string, [][]string, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, nil, err
	}
	defer fr.Close()

	pr, err := reader.NewParquetColumnReader(fr, 4)
	if err != nil {
		return nil, nil, fmt.Errorf("open parquet reader: %w", err)
	}
	defer pr.ReadStop()

	columns, err := parquetColumns(pr)
	if err != nil {
		return nil, nil, err
	}
	if leaves := len(pr.SchemaHandler.ValueColumns); leaves != len(columns) {
		return nil, nil, fmt.Errorf("parquet column metadata lists %d columns, schema has %d", len(columns), leaves)
	}

	num := int(pr.GetNumRows())
	cells := make([][]string, num)
	for i := range cells {
		cells[i] = make([]string, len(columns))
	}
	if num == 0 {
		return columns, cells, nil
	}

	for c, col := range columns {
		values, _, _, err := pr.ReadColumnByIndex(int64(c), int64(num))
		if err != nil {
			return nil, nil, fmt.Errorf("read parquet column %s: %w", col, err)
		}
		for i := 0; i < num && i < len(values); i++ {
			if values[i] == nil {
				continue
			}
			s, ok := values[i].(string)
			if !ok {
				return nil, nil, fmt.Errorf("read parquet column %s: unexpected value type %T", col, values[i])
			}
			cells[i][c] = s
		}
	}

	return columns, cells, nil
}

// parquetColumns recovers the exact column names the writer recorded.
func parquetColumns(pr *reader.ParquetReader) ([]string, error) {
	for _, kv := range pr.Footer.GetKeyValueMetadata() {
		if kv.GetKey() != parquetColumnsKey {
			continue
		}
		var columns []string
		if err := json.Unmarshal([]byte(kv.GetValue()), &columns); err != nil {
			return nil, fmt.Errorf("parquet column metadata: %w", err)
		}
		return columns, nil
	}
	return nil, fmt.Errorf("parquet file missing %s metadata", parquetColumnsKey)
}
