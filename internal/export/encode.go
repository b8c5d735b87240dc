// Package export writes executed query results to an object store so
// they can be shared outside the chat.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"

	"github.com/parquet-go/parquet-go"

	"github.com/sqltalk/sqltalk/internal/query"
)

const (
	FormatCSV     = "csv"
	FormatParquet = "parquet"
)

// parquetRecord keeps the export schema stable across arbitrary query
// shapes: one JSON document per result row.
type parquetRecord struct {
	RowNumber  int64  `parquet:"row_number"`
	RecordJSON string `parquet:"record_json"`
}

func encodeParquet(result query.Result) ([]byte, error) {
	if len(result.Rows) == 0 {
		return nil, fmt.Errorf("result has no rows to export")
	}

	records := make([]parquetRecord, 0, len(result.Rows))
	for i, row := range result.Rows {
		document := make(map[string]any, len(result.Columns))
		for j, column := range result.Columns {
			if j < len(row) {
				document[column] = row[j]
			}
		}
		encoded, err := json.Marshal(document)
		if err != nil {
			return nil, fmt.Errorf("marshal row %d: %w", i+1, err)
		}
		records = append(records, parquetRecord{
			RowNumber:  int64(i + 1),
			RecordJSON: string(encoded),
		})
	}

	buf := &bytes.Buffer{}
	writer := parquet.NewGenericWriter[parquetRecord](buf)
	if _, err := writer.Write(records); err != nil {
		return nil, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

func encodeCSV(result query.Result) ([]byte, error) {
	if len(result.Rows) == 0 {
		return nil, fmt.Errorf("result has no rows to export")
	}

	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write(result.Columns); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for i, row := range result.Rows {
		record := make([]string, len(result.Columns))
		for j := range result.Columns {
			if j < len(row) {
				record[j] = formatCSVValue(row[j])
			}
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row %d: %w", i+1, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

func formatCSVValue(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return typed
	case []byte:
		return string(typed)
	default:
		return fmt.Sprintf("%v", typed)
	}
}
