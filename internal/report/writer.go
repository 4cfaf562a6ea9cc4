package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format selects the report serialization.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatCSV  Format = "csv"
	FormatText Format = "text"
)

// ParseFormat resolves a user-supplied format name.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json", "":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "csv":
		return FormatCSV, nil
	case "text", "txt":
		return FormatText, nil
	default:
		return "", fmt.Errorf("unknown report format: %q", s)
	}
}

// Writer serializes reports.
type Writer struct {
	Pretty bool
}

// NewWriter creates a report writer.
func NewWriter(pretty bool) *Writer {
	return &Writer{Pretty: pretty}
}

// Write serializes the report to w in the given format.
func (wr *Writer) Write(w io.Writer, r *Report, format Format) error {
	switch format {
	case FormatJSON:
		return wr.writeJSON(w, r)
	case FormatYAML:
		return yaml.NewEncoder(w).Encode(r)
	case FormatCSV:
		return wr.writeCSV(w, r)
	case FormatText:
		return wr.writeText(w, r)
	default:
		return fmt.Errorf("unknown report format: %q", format)
	}
}

// WriteFile writes the report to path, inferring the format from the
// extension when format is empty.
func (wr *Writer) WriteFile(path string, r *Report, format Format) error {
	if format == "" {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			format = FormatYAML
		case ".csv":
			format = FormatCSV
		case ".txt":
			format = FormatText
		default:
			format = FormatJSON
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer f.Close()

	return wr.Write(f, r, format)
}

func (wr *Writer) writeJSON(w io.Writer, r *Report) error {
	enc := json.NewEncoder(w)
	if wr.Pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(r)
}

// writeCSV emits one row per endpoint, suitable for spreadsheets.
func (wr *Writer) writeCSV(w io.Writer, r *Report) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{"method", "path_template", "category", "priority", "status", "status_code", "attempts", "elapsed_ms", "error"}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, e := range r.Endpoints {
		row := []string{
			e.Method,
			e.PathTemplate,
			e.Category,
			strconv.Itoa(e.Priority),
			string(e.Status),
			strconv.Itoa(e.StatusCode),
			strconv.Itoa(e.Attempts),
			strconv.FormatInt(e.ElapsedMs, 10),
			e.Error,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// writeText renders a human-readable summary.
func (wr *Writer) writeText(w io.Writer, r *Report) error {
	var b strings.Builder

	b.WriteString("API Verification Report\n")
	b.WriteString("=======================\n\n")
	fmt.Fprintf(&b, "Run ID:       %s\n", r.RunID)
	if r.Target != "" {
		fmt.Fprintf(&b, "Target:       %s\n", r.Target)
	}
	fmt.Fprintf(&b, "Started:      %s\n", r.StartedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Finished:     %s\n", r.FinishedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Session:      %s\n", r.FinalSessionMode)
	fmt.Fprintf(&b, "Records:      %d parsed, %d skipped\n", r.Stats.TotalRecords, r.Stats.SkippedRecords)
	fmt.Fprintf(&b, "Endpoints:    %d\n", r.Stats.TotalEndpoints)
	fmt.Fprintf(&b, "Success rate: %.1f%%\n\n", r.Stats.SuccessRate*100)

	for _, e := range r.Endpoints {
		marker := "-"
		switch e.Status {
		case "success":
			marker = "+"
		case "skipped":
			marker = "~"
		case "http-error", "network-error", "auth-required":
			marker = "!"
		}
		fmt.Fprintf(&b, "[%s] %-7s %s\n", marker, e.Method, e.PathTemplate)
		fmt.Fprintf(&b, "    status=%s code=%d attempts=%d elapsed=%dms\n",
			e.Status, e.StatusCode, e.Attempts, e.ElapsedMs)
		if e.Error != "" {
			fmt.Fprintf(&b, "    error: %s\n", e.Error)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}
