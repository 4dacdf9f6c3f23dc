// Package duckdb decodes Parquet objects into tables by letting an embedded
// DuckDB instance scan them with read_parquet.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/s1-storage/s1/internal/table"
)

type Decoder struct {
	// Timeout bounds a single scan. Zero means no limit.
	Timeout time.Duration
}

func NewDecoder() *Decoder {
	return &Decoder{}
}

func (d *Decoder) Decode(ctx context.Context, data []byte) (*table.Table, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty object", table.ErrDecode)
	}

	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	path, cleanup, err := writeTempParquet(data)
	if err != nil {
		return nil, fmt.Errorf("write temp parquet file: %w", err)
	}
	defer cleanup()

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	defer func() { _ = db.Close() }()

	rows, err := db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM read_parquet(%s)", quoteString(path)))
	if err != nil {
		return nil, fmt.Errorf("%w: scan parquet: %v", table.ErrDecode, err)
	}
	defer func() { _ = rows.Close() }()

	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("%w: column types: %v", table.ErrDecode, err)
	}
	columns := make([]table.Column, len(columnTypes))
	for i, columnType := range columnTypes {
		columns[i] = table.Column{Name: columnType.Name(), Type: kindForDatabaseType(columnType.DatabaseTypeName())}
	}

	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, fmt.Errorf("%w: scan row: %v", table.ErrDecode, err)
		}
		for i, value := range values {
			converted, err := convertValue(value, columns[i].Type)
			if err != nil {
				return nil, fmt.Errorf("%w: column %q: %v", table.ErrDecode, columns[i].Name, err)
			}
			columns[i].Values = append(columns[i].Values, converted)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate rows: %v", table.ErrDecode, err)
	}

	decoded, err := table.New(columns...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", table.ErrDecode, err)
	}
	return decoded, nil
}

func kindForDatabaseType(name string) table.Kind {
	name = strings.ToUpper(strings.TrimSpace(name))
	switch name {
	case "TINYINT", "SMALLINT", "INTEGER", "BIGINT", "UTINYINT", "USMALLINT", "UINTEGER", "UBIGINT":
		return table.KindInt
	case "FLOAT", "DOUBLE", "REAL":
		return table.KindFloat
	case "BOOLEAN":
		return table.KindBool
	}
	if strings.HasPrefix(name, "DECIMAL") {
		return table.KindFloat
	}
	return table.KindString
}

func convertValue(value any, kind table.Kind) (table.Value, error) {
	if value == nil {
		return table.Null(), nil
	}
	switch kind {
	case table.KindInt:
		switch typed := value.(type) {
		case int8:
			return table.Int(int64(typed)), nil
		case int16:
			return table.Int(int64(typed)), nil
		case int32:
			return table.Int(int64(typed)), nil
		case int64:
			return table.Int(typed), nil
		case uint8:
			return table.Int(int64(typed)), nil
		case uint16:
			return table.Int(int64(typed)), nil
		case uint32:
			return table.Int(int64(typed)), nil
		case uint64:
			if typed > 1<<63-1 {
				return table.Value{}, fmt.Errorf("value %d overflows int64", typed)
			}
			return table.Int(int64(typed)), nil
		}
	case table.KindFloat:
		switch typed := value.(type) {
		case float32:
			return table.Float(float64(typed)), nil
		case float64:
			return table.Float(typed), nil
		case interface{ Float64() float64 }:
			return table.Float(typed.Float64()), nil
		}
	case table.KindBool:
		if typed, ok := value.(bool); ok {
			return table.Bool(typed), nil
		}
	default:
		switch typed := value.(type) {
		case string:
			return table.String(typed), nil
		case []byte:
			return table.String(string(typed)), nil
		case time.Time:
			return table.String(typed.UTC().Format(time.RFC3339Nano)), nil
		default:
			return table.String(fmt.Sprint(typed)), nil
		}
	}
	return table.Value{}, fmt.Errorf("unexpected %T value for %s column", value, kind)
}

func quoteString(value string) string {
	return `'` + strings.ReplaceAll(value, `'`, `''`) + `'`
}
