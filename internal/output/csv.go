package output

import (
	"bytes"

	"github.com/s1-storage/s1/internal/table"
)

// renderCSV writes one record per row without a header. Values are written
// verbatim: a value containing a delimiter is not quoted.
func renderCSV(t *table.Table, cfg Config) []byte {
	var buf bytes.Buffer
	columns := t.Columns()
	for row := 0; row < t.NumRows(); row++ {
		if row > 0 {
			buf.WriteString(cfg.RecordDelimiter)
		}
		for i, column := range columns {
			if i > 0 {
				buf.WriteString(cfg.FieldDelimiter)
			}
			buf.WriteString(column.Values[row].Text())
		}
	}
	return buf.Bytes()
}
