// Package query compiles the restricted SELECT dialect accepted by
// SelectObjectContent and evaluates compiled queries against decoded tables.
package query

import (
	"errors"
	"fmt"

	"github.com/s1-storage/s1/internal/table"
)

var (
	ErrMalformedQuery = errors.New("malformed query")
	ErrQueryExecution = errors.New("query execution error")
)

type Operator string

const (
	OpEqual        Operator = "="
	OpNotEqual     Operator = "!="
	OpLess         Operator = "<"
	OpGreater      Operator = ">"
	OpLessEqual    Operator = "<="
	OpGreaterEqual Operator = ">="
)

// Projection is either every column in source order or an explicit list.
type Projection struct {
	All     bool
	Columns []string
}

type Predicate struct {
	Column  string
	Op      Operator
	Literal table.Value
}

func (p Predicate) String() string {
	return fmt.Sprintf("%s %s %s", p.Column, p.Op, p.Literal)
}

type CompiledQuery struct {
	Source     string
	Alias      string
	Projection Projection
	Predicate  *Predicate
	// Limit applies only when Limited is set; LIMIT 0 is a valid query.
	Limit   int
	Limited bool
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedQuery, fmt.Sprintf(format, args...))
}

func executionError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrQueryExecution, fmt.Sprintf(format, args...))
}
