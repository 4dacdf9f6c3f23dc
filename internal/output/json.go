package output

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"

	"github.com/s1-storage/s1/internal/table"
)

func renderJSONDocument(t *table.Table) []byte {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for row := 0; row < t.NumRows(); row++ {
		if row > 0 {
			buf.WriteByte(',')
		}
		writeJSONRow(&buf, t, row)
	}
	buf.WriteByte(']')
	return buf.Bytes()
}

func renderJSONLines(t *table.Table, cfg Config) []byte {
	var buf bytes.Buffer
	for row := 0; row < t.NumRows(); row++ {
		if row > 0 {
			buf.WriteString(cfg.RecordDelimiter)
		}
		writeJSONRow(&buf, t, row)
	}
	if buf.Len() > 0 && !bytes.HasSuffix(buf.Bytes(), []byte(cfg.RecordDelimiter)) {
		buf.WriteString(cfg.RecordDelimiter)
	}
	return buf.Bytes()
}

// writeJSONRow emits one object with keys in column order.
func writeJSONRow(buf *bytes.Buffer, t *table.Table, row int) {
	buf.WriteByte('{')
	for i, column := range t.Columns() {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeJSONString(buf, column.Name)
		buf.WriteByte(':')
		writeJSONValue(buf, column.Values[row])
	}
	buf.WriteByte('}')
}

func writeJSONValue(buf *bytes.Buffer, value table.Value) {
	switch value.Kind() {
	case table.KindInt:
		v, _ := value.AsInt()
		buf.WriteString(strconv.FormatInt(v, 10))
	case table.KindFloat:
		v, _ := value.AsFloat()
		if math.IsNaN(v) || math.IsInf(v, 0) {
			buf.WriteString("null")
			return
		}
		encoded, _ := json.Marshal(v)
		buf.Write(encoded)
	case table.KindBool:
		v, _ := value.AsBool()
		buf.WriteString(strconv.FormatBool(v))
	case table.KindString:
		v, _ := value.AsString()
		writeJSONString(buf, v)
	default:
		buf.WriteString("null")
	}
}

func writeJSONString(buf *bytes.Buffer, value string) {
	encoded, err := json.Marshal(value)
	if err != nil {
		buf.WriteString(`""`)
		return
	}
	buf.Write(encoded)
}
