// Package report exports a finished run to a YAML or JSON file.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"avif-converter-go/internal/batch"
	"avif-converter-go/internal/converter"
	"avif-converter-go/internal/statistics"

	"github.com/spf13/afero"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// Format selects the report encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// ParseFormat accepts "yaml", "yml" or "json", case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "yaml", "yml":
		return FormatYAML, nil
	case "json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unknown report format %q", s)
}

// FormatForPath picks the format from the file extension, falling back to def.
func FormatForPath(path string, def Format) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	}
	return def
}

// Report is the serialized form of a run.
type Report struct {
	RunID     string                  `json:"run_id" yaml:"run_id"`
	Directory string                  `json:"directory" yaml:"directory"`
	StartedAt time.Time               `json:"started_at" yaml:"started_at"`
	Duration  string                  `json:"duration" yaml:"duration"`
	Summary   statistics.BatchSummary `json:"summary" yaml:"summary"`
	Lines     []string                `json:"lines" yaml:"lines"`
	Notices   []string                `json:"notices,omitempty" yaml:"notices,omitempty"`
	Files     []FileEntry             `json:"files" yaml:"files"`
}

// FileEntry is one outcome in the report.
type FileEntry struct {
	Source         string `json:"source" yaml:"source"`
	Output         string `json:"output,omitempty" yaml:"output,omitempty"`
	Status         string `json:"status" yaml:"status"`
	OriginalBytes  int64  `json:"original_bytes,omitempty" yaml:"original_bytes,omitempty"`
	ConvertedBytes int64  `json:"converted_bytes,omitempty" yaml:"converted_bytes,omitempty"`
	SavedBytes     int64  `json:"saved_bytes,omitempty" yaml:"saved_bytes,omitempty"`
	ErrorKind      string `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
	Message        string `json:"message,omitempty" yaml:"message,omitempty"`
	Warning        string `json:"warning,omitempty" yaml:"warning,omitempty"`
}

// FromResult builds a Report from a batch result.
func FromResult(res *batch.Result) Report {
	files := make([]FileEntry, 0, len(res.Outcomes))
	for _, o := range res.Outcomes {
		files = append(files, EntryFor(o))
	}
	return Report{
		RunID:     res.RunID,
		Directory: res.Directory,
		StartedAt: res.StartedAt.UTC(),
		Duration:  res.Duration.String(),
		Summary:   res.Summary,
		Lines:     res.Lines,
		Notices:   res.Notices,
		Files:     files,
	}
}

// EntryFor converts one outcome to its report form.
func EntryFor(o converter.Outcome) FileEntry {
	e := FileEntry{
		Source:  o.SourcePath,
		Output:  o.OutputPath,
		Status:  o.Status.String(),
		Message: o.Message,
		Warning: o.Warning,
	}
	switch o.Status {
	case converter.StatusConverted:
		e.OriginalBytes = o.OriginalBytes
		e.ConvertedBytes = o.ConvertedBytes
		e.SavedBytes = o.Savings()
		e.Message = ""
	case converter.StatusFailed:
		e.ErrorKind = o.ErrorKind.String()
	}
	return e
}

// Encode writes r to w in the given format.
func Encode(w io.Writer, r Report, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		return multierr.Append(enc.Encode(r), enc.Close())
	}
	return fmt.Errorf("unknown report format %q", format)
}

// Write serializes the result to path, creating parent directories.
func Write(fs afero.Fs, path string, res *batch.Result, format Format) (err error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := fs.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}

	f, err := fs.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report %s: %w", path, err)
	}
	defer func() {
		err = multierr.Append(err, f.Close())
	}()

	if err := Encode(f, FromResult(res), format); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}
