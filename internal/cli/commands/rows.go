package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/leapstack-labs/querypipe/pkg/backend"
	"gopkg.in/yaml.v3"
)

// Row output formats accepted by --format.
const (
	FormatTable    = "table"
	FormatJSON     = "json"
	FormatCSV      = "csv"
	FormatMarkdown = "md"
	FormatYAML     = "yaml"
)

// RowFormats lists the supported row output formats.
var RowFormats = []string{FormatTable, FormatJSON, FormatCSV, FormatMarkdown, FormatYAML}

// renderRows writes rows to w in the given format.
func renderRows(w io.Writer, rows []backend.Row, format string) error {
	cols := columns(rows)

	switch format {
	case FormatJSON:
		return renderJSON(w, rows)
	case FormatCSV:
		return renderCSV(w, cols, rows)
	case FormatMarkdown, "markdown":
		return renderMarkdown(w, cols, rows)
	case FormatYAML:
		return renderYAML(w, rows)
	case FormatTable, "":
		return renderTable(w, cols, rows)
	default:
		return fmt.Errorf("unknown format %q (expected one of %v)", format, RowFormats)
	}
}

// columns returns the sorted union of row keys. Rows from HTTP adapters may
// carry different keys.
func columns(rows []backend.Row) []string {
	seen := make(map[string]struct{})
	var cols []string
	for _, r := range rows {
		for k := range r {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				cols = append(cols, k)
			}
		}
	}
	slices.Sort(cols)
	return cols
}

func newRowTable(cols []string, rows []backend.Row) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)

	header := make(table.Row, len(cols))
	for i, col := range cols {
		header[i] = col
	}
	t.AppendHeader(header)

	for _, r := range rows {
		row := make(table.Row, len(cols))
		for i, col := range cols {
			row[i] = formatValue(r, col)
		}
		t.AppendRow(row)
	}
	return t
}

func renderTable(w io.Writer, cols []string, rows []backend.Row) error {
	if len(rows) == 0 {
		_, _ = fmt.Fprintln(w, "(0 rows)")
		return nil
	}

	t := newRowTable(cols, rows)
	t.SetOutputMirror(w)
	t.Render()
	_, _ = fmt.Fprintf(w, "(%d rows)\n", len(rows))
	return nil
}

func renderMarkdown(w io.Writer, cols []string, rows []backend.Row) error {
	if len(rows) == 0 {
		_, _ = fmt.Fprintln(w, "(0 rows)")
		return nil
	}

	t := newRowTable(cols, rows)
	_, err := fmt.Fprintln(w, t.RenderMarkdown())
	return err
}

func renderJSON(w io.Writer, rows []backend.Row) error {
	if rows == nil {
		rows = []backend.Row{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

func renderYAML(w io.Writer, rows []backend.Row) error {
	if rows == nil {
		rows = []backend.Row{}
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(rows); err != nil {
		return err
	}
	return enc.Close()
}

func renderCSV(w io.Writer, cols []string, rows []backend.Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(cols); err != nil {
		return err
	}

	record := make([]string, len(cols))
	for _, r := range rows {
		for i, col := range cols {
			record[i] = formatValue(r, col)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// formatValue renders one cell. Missing keys render empty, SQL NULL as NULL.
func formatValue(r backend.Row, col string) string {
	v, ok := r[col]
	if !ok {
		return ""
	}
	switch val := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339)
	case map[string]any, []any:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	default:
		return fmt.Sprintf("%v", val)
	}
}
