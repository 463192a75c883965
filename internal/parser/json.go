package parser

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/KaramelBytes/vizloom-cli/internal/table"
)

type jsonParser struct{}

func (jsonParser) CanParse(filename string) bool {
	return strings.HasSuffix(strings.ToLower(filename), ".json")
}

func (jsonParser) Parse(path string, opt Options) (*table.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open json: %w", err)
	}
	defer f.Close()
	return ReadJSON(f, opt.MaxRows)
}

// ReadJSON reads an array of flat records. Column order follows first appearance
// of each key; nested values are kept as compact JSON text.
func ReadJSON(rd io.Reader, maxRows int) (*table.Table, error) {
	dec := json.NewDecoder(rd)
	dec.UseNumber()
	if err := expectDelim(dec, '['); err != nil {
		return nil, err
	}
	var names []string
	index := map[string]int{}
	var records []map[string]string
	for dec.More() {
		if err := expectDelim(dec, '{'); err != nil {
			return nil, fmt.Errorf("record %d: %w", len(records)+1, err)
		}
		rec := map[string]string{}
		for dec.More() {
			kt, err := dec.Token()
			if err != nil {
				return nil, fmt.Errorf("record %d: %w", len(records)+1, err)
			}
			key, _ := kt.(string)
			var v any
			if err := dec.Decode(&v); err != nil {
				return nil, fmt.Errorf("record %d field %q: %w", len(records)+1, key, err)
			}
			if _, ok := index[key]; !ok {
				index[key] = len(names)
				names = append(names, key)
			}
			rec[key] = jsonCell(v)
		}
		if err := expectDelim(dec, '}'); err != nil {
			return nil, fmt.Errorf("record %d: %w", len(records)+1, err)
		}
		if maxRows <= 0 || len(records) < maxRows {
			records = append(records, rec)
		}
	}
	raw := make([][]string, len(records))
	for r, rec := range records {
		row := make([]string, len(names))
		for i, n := range names {
			row[i] = rec[n]
		}
		raw[r] = row
	}
	return buildTable(uniqueNames(names), raw), nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("read json: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("read json: expected %q, got %v", want, tok)
	}
	return nil
}

func jsonCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		if x {
			return "true"
		}
		return "false"
	default:
		b, _ := json.Marshal(x)
		return string(b)
	}
}
