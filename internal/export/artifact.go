package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/raphaelgruber/propchat/internal/models"
)

// ArtifactFormat is a target format for a single artifact.
type ArtifactFormat string

const (
	FormatCSV   ArtifactFormat = "csv"
	FormatTable ArtifactFormat = "markdown"
	FormatJSON  ArtifactFormat = "json"
)

// Artifact renders a into format. CSV and Markdown only apply to tables.
func Artifact(a models.Artifact, format ArtifactFormat) ([]byte, error) {
	switch format {
	case FormatCSV:
		return TableCSV(a)
	case FormatTable:
		s, err := TableMarkdown(a)
		return []byte(s), err
	case FormatJSON, "":
		return ArtifactJSON(a)
	default:
		return nil, fmt.Errorf("unknown artifact format %q", format)
	}
}

// ArtifactExtension returns the file extension for format.
func ArtifactExtension(format ArtifactFormat) string {
	switch format {
	case FormatCSV:
		return ".csv"
	case FormatTable:
		return ".md"
	default:
		return ".json"
	}
}

// TableCSV renders a table artifact as CSV with a header row.
func TableCSV(a models.Artifact) ([]byte, error) {
	table, err := a.Table()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(table.Columns); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, row := range table.Data {
		if err := w.Write(cells(row, len(table.Columns))); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// TableMarkdown renders a table artifact as a pipe table.
func TableMarkdown(a models.Artifact) (string, error) {
	table, err := a.Table()
	if err != nil {
		return "", err
	}
	if len(table.Columns) == 0 {
		return "", fmt.Errorf("artifact %s has no columns", a.ID)
	}

	var sb strings.Builder
	writeRow := func(vals []string) {
		sb.WriteString("|")
		for _, v := range vals {
			sb.WriteString(" ")
			sb.WriteString(escapeCell(v))
			sb.WriteString(" |")
		}
		sb.WriteString("\n")
	}

	writeRow(table.Columns)
	sep := make([]string, len(table.Columns))
	for i := range sep {
		sep[i] = "---"
	}
	sb.WriteString("|" + strings.Join(sep, "|") + "|\n")
	for _, row := range table.Data {
		writeRow(cells(row, len(table.Columns)))
	}
	return sb.String(), nil
}

// ArtifactJSON renders any artifact as indented JSON.
func ArtifactJSON(a models.Artifact) ([]byte, error) {
	out, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal artifact: %w", err)
	}
	return out, nil
}

// cells formats row to exactly n strings, padding short rows.
func cells(row []any, n int) []string {
	out := make([]string, n)
	for i := 0; i < n && i < len(row); i++ {
		out[i] = cell(row[i])
	}
	return out
}

func cell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}
