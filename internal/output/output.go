// Package output renders result tables into the payload carried by a
// Records event.
package output

import (
	"fmt"
	"strings"

	"github.com/s1-storage/s1/internal/table"
)

type Format string

const (
	FormatCSV  Format = "CSV"
	FormatJSON Format = "JSON"
)

type JSONType string

const (
	JSONLines    JSONType = "LINES"
	JSONDocument JSONType = "DOCUMENT"
)

const (
	defaultFieldDelimiter  = ","
	defaultRecordDelimiter = "\n"
)

// Config describes the requested output serialization. Empty delimiters fall
// back to "," and "\n".
type Config struct {
	Format          Format
	FieldDelimiter  string
	RecordDelimiter string
	JSONType        JSONType
}

func DefaultConfig() Config {
	return Config{Format: FormatJSON, RecordDelimiter: defaultRecordDelimiter, JSONType: JSONLines}
}

func (c Config) Normalize() (Config, error) {
	switch Format(strings.ToUpper(string(c.Format))) {
	case "":
		c.Format = FormatJSON
	case FormatCSV:
		c.Format = FormatCSV
	case FormatJSON:
		c.Format = FormatJSON
	default:
		return Config{}, fmt.Errorf("unsupported output format %q", c.Format)
	}
	switch JSONType(strings.ToUpper(string(c.JSONType))) {
	case "", JSONLines:
		c.JSONType = JSONLines
	case JSONDocument:
		c.JSONType = JSONDocument
	default:
		return Config{}, fmt.Errorf("unsupported JSON type %q", c.JSONType)
	}
	if c.FieldDelimiter == "" {
		c.FieldDelimiter = defaultFieldDelimiter
	}
	if c.RecordDelimiter == "" {
		c.RecordDelimiter = defaultRecordDelimiter
	}
	return c, nil
}

// ContentType is the per-frame content type of the rendered payload.
func (c Config) ContentType() string {
	return "application/octet-stream"
}

// Render serializes every row of t according to cfg.
func Render(t *table.Table, cfg Config) ([]byte, error) {
	normalized, err := cfg.Normalize()
	if err != nil {
		return nil, err
	}
	if normalized.Format == FormatCSV {
		return renderCSV(t, normalized), nil
	}
	if normalized.JSONType == JSONDocument {
		return renderJSONDocument(t), nil
	}
	return renderJSONLines(t, normalized), nil
}
