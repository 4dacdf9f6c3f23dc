package query

import (
	"math"
	"strconv"
	"strings"

	"github.com/s1-storage/s1/internal/table"
)

// Compile parses
//
//	SELECT <cols|*> FROM <source> [[AS] alias] [WHERE <col> <op> <value>] [LIMIT n]
//
// Keywords are matched case-insensitively at word boundaries. WHERE is the
// first such occurrence after FROM; everything after it is the predicate.
func Compile(sql string) (CompiledQuery, error) {
	text := stripTrailingSemicolons(sql)
	if text == "" {
		return CompiledQuery{}, malformed("query is empty")
	}
	if !hasKeywordPrefix(text, "SELECT") {
		return CompiledQuery{}, malformed("query must start with SELECT")
	}
	fromIdx := indexKeyword(text, "FROM", len("SELECT"))
	if fromIdx < 0 {
		return CompiledQuery{}, malformed("missing FROM clause")
	}

	columnsPart := strings.TrimSpace(text[len("SELECT"):fromIdx])
	rest := text[fromIdx+len("FROM"):]

	sourcePart := rest
	wherePart := ""
	hasWhere := false
	if whereIdx := indexKeyword(rest, "WHERE", 0); whereIdx >= 0 {
		sourcePart = rest[:whereIdx]
		wherePart = rest[whereIdx+len("WHERE"):]
		hasWhere = true
	}

	var compiled CompiledQuery
	var err error

	tail := sourcePart
	if hasWhere {
		tail = wherePart
	}
	tail, compiled.Limit, compiled.Limited, err = splitLimit(tail)
	if err != nil {
		return CompiledQuery{}, err
	}
	if hasWhere {
		wherePart = tail
	} else {
		sourcePart = tail
	}

	compiled.Source, compiled.Alias, err = parseSource(sourcePart)
	if err != nil {
		return CompiledQuery{}, err
	}
	compiled.Projection, err = parseProjection(columnsPart, compiled.Alias)
	if err != nil {
		return CompiledQuery{}, err
	}
	if hasWhere {
		predicate, err := parsePredicate(wherePart, compiled.Alias)
		if err != nil {
			return CompiledQuery{}, err
		}
		compiled.Predicate = &predicate
	}
	return compiled, nil
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}

func parseSource(part string) (string, string, error) {
	fields := strings.Fields(part)
	switch {
	case len(fields) == 1:
		return fields[0], "", nil
	case len(fields) == 2 && !isKeyword(fields[1]):
		return fields[0], fields[1], nil
	case len(fields) == 3 && strings.EqualFold(fields[1], "AS") && !isKeyword(fields[2]):
		return fields[0], fields[2], nil
	case len(fields) == 0:
		return "", "", malformed("missing source after FROM")
	default:
		return "", "", malformed("unexpected tokens after FROM: %q", strings.TrimSpace(part))
	}
}

func splitLimit(part string) (string, int, bool, error) {
	idx := lastIndexKeyword(part, "LIMIT")
	if idx < 0 {
		return part, 0, false, nil
	}
	// Only a trailing "LIMIT <int>" counts; anything else is left for the
	// source or predicate parser to accept or reject.
	limit, err := strconv.Atoi(strings.TrimSpace(part[idx+len("LIMIT"):]))
	if err != nil {
		return part, 0, false, nil
	}
	if limit < 0 {
		return "", 0, false, malformed("LIMIT must not be negative")
	}
	return part[:idx], limit, true, nil
}

func parseProjection(part, alias string) (Projection, error) {
	if part == "" {
		return Projection{}, malformed("empty column list")
	}
	if part == "*" || (alias != "" && strings.EqualFold(part, alias+".*")) {
		return Projection{All: true}, nil
	}
	entries := strings.Split(part, ",")
	columns := make([]string, 0, len(entries))
	for _, entry := range entries {
		name, err := parseIdentifier(strings.TrimSpace(entry), alias)
		if err != nil {
			return Projection{}, err
		}
		if name == "*" {
			return Projection{}, malformed("* cannot be combined with other columns")
		}
		columns = append(columns, name)
	}
	return Projection{Columns: columns}, nil
}

// parseIdentifier strips an optional alias qualifier and one layer of double
// quotes or backticks.
func parseIdentifier(raw, alias string) (string, error) {
	name := stripAlias(raw, alias)
	if unquoted, ok := unquoteIdentifier(name); ok {
		name = unquoted
	} else if strings.ContainsAny(name, " \t\r\n\"`") {
		return "", malformed("invalid column identifier %q", raw)
	}
	if strings.TrimSpace(name) == "" {
		return "", malformed("empty column identifier")
	}
	return name, nil
}

func stripAlias(raw, alias string) string {
	if alias == "" {
		return raw
	}
	prefix := alias + "."
	if len(raw) > len(prefix) && strings.EqualFold(raw[:len(prefix)], prefix) {
		return raw[len(prefix):]
	}
	return raw
}

func unquoteIdentifier(raw string) (string, bool) {
	if len(raw) < 2 {
		return "", false
	}
	quote := raw[0]
	if (quote != '"' && quote != '`') || raw[len(raw)-1] != quote {
		return "", false
	}
	inner := raw[1 : len(raw)-1]
	if strings.IndexByte(inner, quote) >= 0 {
		return "", false
	}
	return inner, true
}

func parsePredicate(part, alias string) (Predicate, error) {
	body := strings.TrimSpace(part)
	if body == "" {
		return Predicate{}, malformed("empty WHERE clause")
	}

	identEnd := identifierEnd(body)
	if identEnd <= 0 {
		return Predicate{}, malformed("WHERE clause must start with a column")
	}
	column, err := parseIdentifier(body[:identEnd], alias)
	if err != nil {
		return Predicate{}, err
	}

	rest := strings.TrimLeft(body[identEnd:], " \t\r\n")
	opEnd := 0
	for opEnd < len(rest) && isOperatorByte(rest[opEnd]) {
		opEnd++
	}
	op, ok := parseOperator(rest[:opEnd])
	if !ok {
		if opEnd == 0 {
			return Predicate{}, malformed("WHERE clause must be <column> <operator> <value>")
		}
		return Predicate{}, malformed("unsupported operator %q", rest[:opEnd])
	}

	literal, err := parseLiteral(strings.TrimSpace(rest[opEnd:]))
	if err != nil {
		return Predicate{}, err
	}
	return Predicate{Column: column, Op: op, Literal: literal}, nil
}

func identifierEnd(body string) int {
	if body[0] == '"' || body[0] == '`' {
		closing := strings.IndexByte(body[1:], body[0])
		if closing < 0 {
			return -1
		}
		return closing + 2
	}
	end := 0
	for end < len(body) && !isOperatorByte(body[end]) && !isSpace(body[end]) {
		if body[end] == '"' || body[end] == '`' {
			// alias-qualified quoted identifier: s."col"
			closing := strings.IndexByte(body[end+1:], body[end])
			if closing < 0 {
				return -1
			}
			end += closing + 2
			continue
		}
		end++
	}
	return end
}

func parseOperator(token string) (Operator, bool) {
	switch token {
	case "=":
		return OpEqual, true
	case "!=", "<>":
		return OpNotEqual, true
	case "<":
		return OpLess, true
	case ">":
		return OpGreater, true
	case "<=":
		return OpLessEqual, true
	case ">=":
		return OpGreaterEqual, true
	default:
		return "", false
	}
}

func parseLiteral(raw string) (table.Value, error) {
	if raw == "" {
		return table.Value{}, malformed("missing value in WHERE clause")
	}
	if quote := raw[0]; quote == '\'' || quote == '"' {
		if len(raw) < 2 || raw[len(raw)-1] != quote || strings.IndexByte(raw[1:len(raw)-1], quote) >= 0 {
			return table.Value{}, malformed("invalid quoted value %s", raw)
		}
		return table.String(raw[1 : len(raw)-1]), nil
	}
	if strings.ContainsAny(raw, " \t\r\n") {
		return table.Value{}, malformed("WHERE supports a single comparison, got %q", raw)
	}
	switch strings.ToLower(raw) {
	case "true":
		return table.Bool(true), nil
	case "false":
		return table.Bool(false), nil
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return table.Int(i), nil
	}
	// inf, Infinity and NaN stay strings; only finite numbers are floats.
	if f, err := strconv.ParseFloat(raw, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return table.Float(f), nil
	}
	return table.String(raw), nil
}

var reservedWords = map[string]struct{}{
	"SELECT": {}, "FROM": {}, "WHERE": {}, "LIMIT": {}, "AS": {}, "AND": {}, "OR": {}, "NOT": {},
}

func isKeyword(token string) bool {
	_, ok := reservedWords[strings.ToUpper(token)]
	return ok
}

func hasKeywordPrefix(text, keyword string) bool {
	if len(text) < len(keyword) || !asciiEqualFold(text[:len(keyword)], keyword) {
		return false
	}
	return len(text) == len(keyword) || !isWordByte(text[len(keyword)])
}

func indexKeyword(text, keyword string, from int) int {
	for i := from; i+len(keyword) <= len(text); i++ {
		if keywordAt(text, keyword, i) {
			return i
		}
	}
	return -1
}

func lastIndexKeyword(text, keyword string) int {
	for i := len(text) - len(keyword); i >= 0; i-- {
		if keywordAt(text, keyword, i) {
			return i
		}
	}
	return -1
}

func keywordAt(text, keyword string, i int) bool {
	if !asciiEqualFold(text[i:i+len(keyword)], keyword) {
		return false
	}
	if i > 0 && isWordByte(text[i-1]) {
		return false
	}
	end := i + len(keyword)
	return end == len(text) || !isWordByte(text[end])
}

func asciiEqualFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		if toUpperASCII(a[i]) != toUpperASCII(b[i]) {
			return false
		}
	}
	return true
}

func toUpperASCII(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - ('a' - 'A')
	}
	return c
}

func isWordByte(c byte) bool {
	return c == '_' || c == '.' || c == '"' || c == '`' || c == '\'' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c >= 0x80
}

func isOperatorByte(c byte) bool {
	return c == '=' || c == '!' || c == '<' || c == '>'
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}
