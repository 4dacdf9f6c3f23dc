package parquetfile

import (
	"bytes"
	"fmt"

	"github.com/parquet-go/parquet-go"
)

// Encode writes rows as a single Parquet file. Column names come from the
// `parquet` struct tags of T, in field declaration order.
func Encode[T any](rows []T) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[T](buf)
	if len(rows) > 0 {
		if _, err := writer.Write(rows); err != nil {
			return nil, fmt.Errorf("write parquet rows: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}
