// Package table holds the in-memory columnar representation that query
// evaluation and output formatting operate on.
package table

import (
	"context"
	"errors"
	"fmt"
)

// ErrDecode marks failures to turn raw object bytes into a Table.
var ErrDecode = errors.New("decode error")

// Decoder turns raw object bytes into a Table. Implementations must report
// malformed input as an error wrapping ErrDecode and never panic. A done
// ctx stops decoding with ctx.Err().
type Decoder interface {
	Decode(ctx context.Context, data []byte) (*Table, error)
}

type Column struct {
	Name   string
	Type   Kind
	Values []Value
}

// Table is an ordered set of equally long columns. Tables are never mutated
// after construction; filtering and projection build new tables.
type Table struct {
	columns []Column
	rows    int
}

func New(columns ...Column) (*Table, error) {
	seen := make(map[string]struct{}, len(columns))
	rows := -1
	for _, column := range columns {
		if column.Name == "" {
			return nil, fmt.Errorf("column name is required")
		}
		if _, ok := seen[column.Name]; ok {
			return nil, fmt.Errorf("duplicate column %q", column.Name)
		}
		seen[column.Name] = struct{}{}
		if column.Type == KindNull {
			return nil, fmt.Errorf("column %q has no type", column.Name)
		}
		if rows >= 0 && len(column.Values) != rows {
			return nil, fmt.Errorf("column %q has %d values, want %d", column.Name, len(column.Values), rows)
		}
		rows = len(column.Values)
		for i, value := range column.Values {
			if !value.IsNull() && value.Kind() != column.Type {
				return nil, fmt.Errorf("column %q row %d: %s value in %s column", column.Name, i, value.Kind(), column.Type)
			}
		}
	}
	if rows < 0 {
		rows = 0
	}
	return &Table{columns: columns, rows: rows}, nil
}

func MustNew(columns ...Column) *Table {
	t, err := New(columns...)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *Table) NumRows() int {
	return t.rows
}

func (t *Table) NumColumns() int {
	return len(t.columns)
}

func (t *Table) Columns() []Column {
	return t.columns
}

func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.columns))
	for i, column := range t.columns {
		names[i] = column.Name
	}
	return names
}

// Lookup finds a column by exact name.
func (t *Table) Lookup(name string) (Column, bool) {
	for _, column := range t.columns {
		if column.Name == name {
			return column, true
		}
	}
	return Column{}, false
}

func (t *Table) Row(index int) []Value {
	row := make([]Value, len(t.columns))
	for i, column := range t.columns {
		row[i] = column.Values[index]
	}
	return row
}

// Filter keeps the rows whose mask entry is true, in their original order.
func (t *Table) Filter(mask []bool) (*Table, error) {
	if len(mask) != t.rows {
		return nil, fmt.Errorf("mask has %d entries, table has %d rows", len(mask), t.rows)
	}
	kept := 0
	for _, keep := range mask {
		if keep {
			kept++
		}
	}
	columns := make([]Column, len(t.columns))
	for i, column := range t.columns {
		values := make([]Value, 0, kept)
		for row, keep := range mask {
			if keep {
				values = append(values, column.Values[row])
			}
		}
		columns[i] = Column{Name: column.Name, Type: column.Type, Values: values}
	}
	return &Table{columns: columns, rows: kept}, nil
}

// Head keeps at most n leading rows.
func (t *Table) Head(n int) *Table {
	if n < 0 || n >= t.rows {
		return t
	}
	columns := make([]Column, len(t.columns))
	for i, column := range t.columns {
		columns[i] = Column{Name: column.Name, Type: column.Type, Values: column.Values[:n:n]}
	}
	return &Table{columns: columns, rows: n}
}

// Select builds a table with exactly the named columns in the given order.
func (t *Table) Select(names []string) (*Table, error) {
	columns := make([]Column, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if _, ok := seen[name]; ok {
			return nil, fmt.Errorf("column %q selected more than once", name)
		}
		seen[name] = struct{}{}
		column, ok := t.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("column not found: %q", name)
		}
		columns = append(columns, column)
	}
	return &Table{columns: columns, rows: t.rows}, nil
}
