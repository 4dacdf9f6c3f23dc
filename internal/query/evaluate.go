package query

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/s1-storage/s1/internal/table"
)

// Evaluate filters the table by the predicate, applies LIMIT, then projects.
// The input table is never modified.
func Evaluate(input *table.Table, q CompiledQuery) (*table.Table, error) {
	result := input
	if q.Predicate != nil {
		mask, err := buildMask(input, *q.Predicate)
		if err != nil {
			return nil, err
		}
		result, err = input.Filter(mask)
		if err != nil {
			return nil, executionError("%v", err)
		}
	}
	if q.Limited {
		result = result.Head(q.Limit)
	}
	if q.Projection.All {
		return result, nil
	}

	seen := make(map[string]struct{}, len(q.Projection.Columns))
	for _, name := range q.Projection.Columns {
		if _, ok := result.Lookup(name); !ok {
			return nil, executionError("column not found: %s", name)
		}
		if _, ok := seen[name]; ok {
			return nil, executionError("column selected more than once: %s", name)
		}
		seen[name] = struct{}{}
	}
	projected, err := result.Select(q.Projection.Columns)
	if err != nil {
		return nil, executionError("%v", err)
	}
	return projected, nil
}

func buildMask(input *table.Table, predicate Predicate) ([]bool, error) {
	column, ok := input.Lookup(predicate.Column)
	if !ok {
		return nil, executionError("column not found: %s", predicate.Column)
	}
	literal, err := coerceLiteral(predicate.Literal, column.Type)
	if err != nil {
		return nil, executionError("cannot compare column %s (%s) with %s: %v", column.Name, column.Type, predicate.Literal, err)
	}

	mask := make([]bool, len(column.Values))
	for i, value := range column.Values {
		if value.IsNull() {
			continue
		}
		mask[i] = matches(value, literal, predicate.Op)
	}
	return mask, nil
}

var (
	errNotNumeric   = errors.New("value is not numeric")
	errNotBoolean   = errors.New("value is not a boolean")
	errIncompatible = errors.New("incompatible literal type")
)

// coerceLiteral converts the literal into a value comparable with a column of
// the given kind. Against numeric columns a float literal stays a float and
// the comparison runs in float64.
func coerceLiteral(literal table.Value, kind table.Kind) (table.Value, error) {
	switch kind {
	case table.KindInt, table.KindFloat:
		switch literal.Kind() {
		case table.KindInt, table.KindFloat:
			return literal, nil
		case table.KindString:
			text, _ := literal.AsString()
			text = strings.TrimSpace(text)
			if i, err := strconv.ParseInt(text, 10, 64); err == nil {
				return table.Int(i), nil
			}
			if f, err := strconv.ParseFloat(text, 64); err == nil {
				return table.Float(f), nil
			}
			return table.Value{}, errNotNumeric
		}
	case table.KindBool:
		switch literal.Kind() {
		case table.KindBool:
			return literal, nil
		case table.KindInt:
			i, _ := literal.AsInt()
			if i == 0 || i == 1 {
				return table.Bool(i == 1), nil
			}
		case table.KindString:
			text, _ := literal.AsString()
			switch strings.ToLower(strings.TrimSpace(text)) {
			case "true", "1":
				return table.Bool(true), nil
			case "false", "0":
				return table.Bool(false), nil
			}
		}
		return table.Value{}, errNotBoolean
	case table.KindString:
		return table.String(literal.Text()), nil
	}
	return table.Value{}, errIncompatible
}

func matches(value, literal table.Value, op Operator) bool {
	cmp, ok := compareValues(value, literal)
	if !ok {
		return op == OpNotEqual
	}
	switch op {
	case OpEqual:
		return cmp == 0
	case OpNotEqual:
		return cmp != 0
	case OpLess:
		return cmp < 0
	case OpGreater:
		return cmp > 0
	case OpLessEqual:
		return cmp <= 0
	case OpGreaterEqual:
		return cmp >= 0
	default:
		return false
	}
}

// compareValues orders two non-null values of compatible kinds. ok is false
// when the values are unordered, which only happens for NaN.
func compareValues(a, b table.Value) (int, bool) {
	if ai, aInt := a.AsInt(); aInt {
		if bi, bInt := b.AsInt(); bInt {
			return compareOrdered(ai, bi), true
		}
	}
	if af, aNum := numeric(a); aNum {
		bf, bNum := numeric(b)
		if !bNum || math.IsNaN(af) || math.IsNaN(bf) {
			return 0, false
		}
		return compareOrdered(af, bf), true
	}
	if ab, ok := a.AsBool(); ok {
		bb, _ := b.AsBool()
		return compareOrdered(boolRank(ab), boolRank(bb)), true
	}
	return strings.Compare(a.Text(), b.Text()), true
}

func numeric(v table.Value) (float64, bool) {
	if i, ok := v.AsInt(); ok {
		return float64(i), true
	}
	return v.AsFloat()
}

func boolRank(b bool) int {
	if b {
		return 1
	}
	return 0
}

func compareOrdered[T int | int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
