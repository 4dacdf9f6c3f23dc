package duckdb

import (
	"context"
	"errors"
	"testing"

	"github.com/s1-storage/s1/internal/table"
	"github.com/s1-storage/s1/internal/table/parquetfile"
)

type row struct {
	ID     int64   `parquet:"id"`
	Value  string  `parquet:"value"`
	Score  float64 `parquet:"score"`
	Active bool    `parquet:"active"`
}

func TestDecodeReadsParquetThroughDuckDB(t *testing.T) {
	data, err := parquetfile.Encode([]row{{ID: 1, Value: "a", Score: 0.5, Active: true}, {ID: 2, Value: "b", Score: 1.5}})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	decoded, err := NewDecoder().Decode(context.Background(), data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if decoded.NumRows() != 2 {
		t.Fatalf("NumRows() = %d", decoded.NumRows())
	}
	names := decoded.ColumnNames()
	if len(names) != 4 || names[0] != "id" || names[3] != "active" {
		t.Fatalf("unexpected columns: %v", names)
	}
	second := decoded.Row(1)
	if !second[0].Equal(table.Int(2)) || !second[1].Equal(table.String("b")) || !second[2].Equal(table.Float(1.5)) || !second[3].Equal(table.Bool(false)) {
		t.Fatalf("unexpected row: %v", second)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := NewDecoder().Decode(context.Background(), []byte("definitely not parquet")); !errors.Is(err, table.ErrDecode) {
		t.Fatalf("Decode() error = %v, want ErrDecode", err)
	}
	if _, err := NewDecoder().Decode(context.Background(), nil); !errors.Is(err, table.ErrDecode) {
		t.Fatalf("Decode(nil) error = %v, want ErrDecode", err)
	}
}

func TestKindForDatabaseType(t *testing.T) {
	cases := map[string]table.Kind{
		"BIGINT":        table.KindInt,
		"integer":       table.KindInt,
		"DOUBLE":        table.KindFloat,
		"DECIMAL(10,2)": table.KindFloat,
		"BOOLEAN":       table.KindBool,
		"VARCHAR":       table.KindString,
		"TIMESTAMP":     table.KindString,
	}
	for name, want := range cases {
		if got := kindForDatabaseType(name); got != want {
			t.Fatalf("kindForDatabaseType(%q) = %s, want %s", name, got, want)
		}
	}
}
