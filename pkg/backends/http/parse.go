package http

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/leapstack-labs/querypipe/pkg/backend"
)

// ParseCSV decodes a CSV body. The first record is the header, whose names
// are lower-cased. Empty records are skipped and fields beyond the header
// are dropped.
func ParseCSV(body []byte) ([]backend.Row, error) {
	r := csv.NewReader(bytes.NewReader(body))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &backend.ResponseParseError{Format: "csv", Err: errors.New("empty response")}
		}
		return nil, &backend.ResponseParseError{Format: "csv", Err: err}
	}
	for i, h := range header {
		header[i] = strings.ToLower(h)
	}

	rows := []backend.Row{}
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &backend.ResponseParseError{Format: "csv", Err: err}
		}
		if len(record) == 0 || (len(record) == 1 && record[0] == "") {
			continue
		}
		row := make(backend.Row, len(header))
		for i, val := range record {
			if i >= len(header) {
				break
			}
			row[header[i]] = val
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ParseJSON decodes a JSON body. An array yields one row per element, an
// object yields a single row.
func ParseJSON(body []byte) ([]backend.Row, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, &backend.ResponseParseError{Format: "json", Err: err}
	}

	switch v := normalizeJSON(raw).(type) {
	case map[string]any:
		return []backend.Row{v}, nil
	case []any:
		rows := make([]backend.Row, 0, len(v))
		for i, elem := range v {
			obj, ok := elem.(map[string]any)
			if !ok {
				return nil, &backend.ResponseParseError{
					Format: "json",
					Err:    fmt.Errorf("element %d is %s, expected object", i, jsonType(elem)),
				}
			}
			rows = append(rows, obj)
		}
		return rows, nil
	default:
		return nil, &backend.ResponseParseError{
			Format: "json",
			Err:    fmt.Errorf("unexpected JSON response type: %s", jsonType(v)),
		}
	}
}

// normalizeJSON converts json.Number values to int64 when integral and
// float64 otherwise.
func normalizeJSON(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case map[string]any:
		for k, item := range val {
			val[k] = normalizeJSON(item)
		}
		return val
	case []any:
		for i, item := range val {
			val[i] = normalizeJSON(item)
		}
		return val
	default:
		return v
	}
}

func jsonType(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case int64, float64:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
