package output

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/s1-storage/s1/internal/table"
)

func sampleTable() *table.Table {
	return table.MustNew(
		table.Column{Name: "name", Type: table.KindString, Values: []table.Value{table.String("Bob"), table.String(`Ca"ra`)}},
		table.Column{Name: "age", Type: table.KindInt, Values: []table.Value{table.Int(40), table.Null()}},
		table.Column{Name: "score", Type: table.KindFloat, Values: []table.Value{table.Float(2.5), table.Float(math.Inf(1))}},
		table.Column{Name: "active", Type: table.KindBool, Values: []table.Value{table.Bool(true), table.Bool(false)}},
	)
}

func emptyTable() *table.Table {
	return table.MustNew(table.Column{Name: "name", Type: table.KindString})
}

func TestRenderCSV(t *testing.T) {
	payload, err := Render(sampleTable(), Config{Format: FormatCSV})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	want := "Bob,40,2.5,true\nCa\"ra,,+Inf,false"
	if string(payload) != want {
		t.Fatalf("payload = %q, want %q", payload, want)
	}

	payload, err = Render(sampleTable(), Config{Format: "csv", FieldDelimiter: "|", RecordDelimiter: "\r\n"})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	want = "Bob|40|2.5|true\r\nCa\"ra||+Inf|false"
	if string(payload) != want {
		t.Fatalf("payload = %q, want %q", payload, want)
	}
}

func TestRenderCSVDoesNotQuoteDelimiters(t *testing.T) {
	tbl := table.MustNew(table.Column{Name: "city", Type: table.KindString, Values: []table.Value{table.String("Paris, France")}})
	payload, err := Render(tbl, Config{Format: FormatCSV})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if string(payload) != "Paris, France" {
		t.Fatalf("payload = %q", payload)
	}
}

func TestRenderJSONLines(t *testing.T) {
	payload, err := Render(sampleTable(), DefaultConfig())
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	want := `{"name":"Bob","age":40,"score":2.5,"active":true}` + "\n" +
		`{"name":"Ca\"ra","age":null,"score":null,"active":false}` + "\n"
	if string(payload) != want {
		t.Fatalf("payload = %q, want %q", payload, want)
	}

	payload, err = Render(sampleTable(), Config{Format: FormatJSON, RecordDelimiter: ";"})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if got := string(payload); got[len(got)-1] != ';' {
		t.Fatalf("expected trailing delimiter, got %q", got)
	}
}

func TestRenderJSONDocument(t *testing.T) {
	payload, err := Render(sampleTable(), Config{Format: FormatJSON, JSONType: "document"})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	var rows []map[string]any
	if err := json.Unmarshal(payload, &rows); err != nil {
		t.Fatalf("json.Unmarshal() error = %v (payload %q)", err, payload)
	}
	if len(rows) != 2 || rows[0]["name"] != "Bob" || rows[1]["age"] != nil {
		t.Fatalf("unexpected rows: %v", rows)
	}
}

func TestRenderEmptyTable(t *testing.T) {
	cases := map[string]Config{
		"":   {Format: FormatCSV},
		"[]": {Format: FormatJSON, JSONType: JSONDocument},
	}
	for want, cfg := range cases {
		payload, err := Render(emptyTable(), cfg)
		if err != nil {
			t.Fatalf("Render() error = %v", err)
		}
		if string(payload) != want {
			t.Fatalf("Render(%+v) = %q, want %q", cfg, payload, want)
		}
	}
	payload, err := Render(emptyTable(), DefaultConfig())
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if len(payload) != 0 {
		t.Fatalf("expected empty lines payload, got %q", payload)
	}
}

func TestNormalizeRejectsUnknownFormats(t *testing.T) {
	if _, err := (Config{Format: "XML"}).Normalize(); err == nil {
		t.Fatalf("expected unsupported format error")
	}
	if _, err := (Config{Format: FormatJSON, JSONType: "STREAM"}).Normalize(); err == nil {
		t.Fatalf("expected unsupported JSON type error")
	}
}
