// Package parquetfile decodes flat Parquet objects into tables.
package parquetfile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"

	"github.com/s1-storage/s1/internal/table"
)

const readBatchSize = 256

type Decoder struct{}

func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode reads every row group of a Parquet file. Only flat schemas of
// non-repeated primitive columns are accepted.
func (d *Decoder) Decode(ctx context.Context, data []byte) (result *table.Table, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			result = nil
			err = fmt.Errorf("%w: parquet reader panic: %v", table.ErrDecode, recovered)
		}
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	file, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: open parquet file: %v", table.ErrDecode, err)
	}

	fields := file.Schema().Fields()
	columns := make([]table.Column, len(fields))
	for i, field := range fields {
		if !field.Leaf() || field.Repeated() {
			return nil, fmt.Errorf("%w: column %q is not a flat primitive column", table.ErrDecode, field.Name())
		}
		kind, err := columnKind(field.Type().Kind())
		if err != nil {
			return nil, fmt.Errorf("%w: column %q: %v", table.ErrDecode, field.Name(), err)
		}
		columns[i] = table.Column{Name: field.Name(), Type: kind, Values: make([]table.Value, 0, file.NumRows())}
	}

	for _, rowGroup := range file.RowGroups() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := readRowGroup(ctx, rowGroup, columns); err != nil {
			return nil, err
		}
	}

	decoded, err := table.New(columns...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", table.ErrDecode, err)
	}
	return decoded, nil
}

func readRowGroup(ctx context.Context, rowGroup parquet.RowGroup, columns []table.Column) error {
	rows := rowGroup.Rows()
	defer func() { _ = rows.Close() }()

	buffer := make([]parquet.Row, readBatchSize)
	for {
		n, err := rows.ReadRows(buffer)
		for _, row := range buffer[:n] {
			if err := appendRow(row, columns); err != nil {
				return err
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: read rows: %v", table.ErrDecode, err)
		}
		if n == 0 {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

func appendRow(row parquet.Row, columns []table.Column) error {
	if len(row) != len(columns) {
		return fmt.Errorf("%w: row has %d values, schema has %d columns", table.ErrDecode, len(row), len(columns))
	}
	for _, value := range row {
		index := value.Column()
		if index < 0 || index >= len(columns) {
			return fmt.Errorf("%w: value for unknown column index %d", table.ErrDecode, index)
		}
		columns[index].Values = append(columns[index].Values, convertValue(value, columns[index].Type))
	}
	return nil
}

func columnKind(kind parquet.Kind) (table.Kind, error) {
	switch kind {
	case parquet.Boolean:
		return table.KindBool, nil
	case parquet.Int32, parquet.Int64:
		return table.KindInt, nil
	case parquet.Float, parquet.Double:
		return table.KindFloat, nil
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return table.KindString, nil
	default:
		return table.KindNull, fmt.Errorf("unsupported physical type %s", kind)
	}
}

func convertValue(value parquet.Value, kind table.Kind) table.Value {
	if value.IsNull() {
		return table.Null()
	}
	switch kind {
	case table.KindBool:
		return table.Bool(value.Boolean())
	case table.KindInt:
		if value.Kind() == parquet.Int32 {
			return table.Int(int64(value.Int32()))
		}
		return table.Int(value.Int64())
	case table.KindFloat:
		if value.Kind() == parquet.Float {
			return table.Float(float64(value.Float()))
		}
		return table.Float(value.Double())
	default:
		return table.String(string(value.ByteArray()))
	}
}
