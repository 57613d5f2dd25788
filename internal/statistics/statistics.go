package statistics

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"avif-converter-go/internal/converter"
)

// ErrSummaryFinalized is returned when an outcome is added to a sealed summary.
var ErrSummaryFinalized = errors.New("summary already finalized")

// BatchSummary holds run-level totals. Byte totals cover converted outcomes
// only. Folding is order-independent.
type BatchSummary struct {
	TotalOriginalBytes  int64 `json:"total_original_bytes" yaml:"total_original_bytes"`
	TotalConvertedBytes int64 `json:"total_converted_bytes" yaml:"total_converted_bytes"`
	TotalSavedBytes     int64 `json:"total_saved_bytes" yaml:"total_saved_bytes"`
	Converted           int   `json:"converted" yaml:"converted"`
	Skipped             int   `json:"skipped" yaml:"skipped"`
	Failed              int   `json:"failed" yaml:"failed"`

	finalized bool
}

// NewBatchSummary returns an empty summary.
func NewBatchSummary() *BatchSummary {
	return &BatchSummary{}
}

// Add folds one outcome into the totals.
func (s *BatchSummary) Add(o converter.Outcome) error {
	if s.finalized {
		return ErrSummaryFinalized
	}

	switch o.Status {
	case converter.StatusConverted:
		s.Converted++
		s.TotalOriginalBytes += o.OriginalBytes
		s.TotalConvertedBytes += o.ConvertedBytes
		s.TotalSavedBytes += o.Savings()
	case converter.StatusSkipped:
		s.Skipped++
	case converter.StatusFailed:
		s.Failed++
	}
	return nil
}

// Finalize seals the summary against further changes.
func (s *BatchSummary) Finalize() {
	s.finalized = true
}

// Finalized reports whether Finalize has been called.
func (s *BatchSummary) Finalized() bool {
	return s.finalized
}

// Total returns the number of outcomes folded in.
func (s *BatchSummary) Total() int {
	return s.Converted + s.Skipped + s.Failed
}

// Equal compares the totals and counts of two summaries.
func (s BatchSummary) Equal(other BatchSummary) bool {
	return s.TotalOriginalBytes == other.TotalOriginalBytes &&
		s.TotalConvertedBytes == other.TotalConvertedBytes &&
		s.TotalSavedBytes == other.TotalSavedBytes &&
		s.Converted == other.Converted &&
		s.Skipped == other.Skipped &&
		s.Failed == other.Failed
}

// String returns the totals block printed after a batch run.
func (s *BatchSummary) String() string {
	return fmt.Sprintf(`Total Summary:
Total Original Size: %s
Total Converted Size: %s
Total Savings: %s
Converted: %d | Skipped: %d | Failed: %d`,
		FormatKB(s.TotalOriginalBytes),
		FormatKB(s.TotalConvertedBytes),
		FormatKB(s.TotalSavedBytes),
		s.Converted, s.Skipped, s.Failed)
}

// Summarize folds outcomes into a finalized summary and returns one report
// line per converted outcome.
func Summarize(outcomes []converter.Outcome) ([]string, BatchSummary) {
	summary := NewBatchSummary()
	lines := make([]string, 0, len(outcomes))

	for _, o := range outcomes {
		_ = summary.Add(o)
		if o.Status == converter.StatusConverted {
			lines = append(lines, ReportLine(o))
		}
	}
	summary.Finalize()

	return lines, *summary
}

// ReportLine formats a converted outcome.
func ReportLine(o converter.Outcome) string {
	return fmt.Sprintf("Converted %s to %s | Original size: %s | Converted size: %s | Savings: %s",
		o.SourcePath,
		o.OutputPath,
		FormatKB(o.OriginalBytes),
		FormatKB(o.ConvertedBytes),
		FormatKB(o.Savings()))
}

// Notices returns one line per skipped or failed outcome, for display next
// to the report.
func Notices(outcomes []converter.Outcome) []string {
	var notices []string
	for _, o := range outcomes {
		switch o.Status {
		case converter.StatusSkipped:
			notices = append(notices, fmt.Sprintf("Skipped %s: %s", o.SourcePath, o.Message))
		case converter.StatusFailed:
			notices = append(notices, fmt.Sprintf("Error converting %s [%s]: %s", o.SourcePath, o.ErrorKind, o.Message))
		}
	}
	return notices
}

// FormatKB renders a byte count in kilobytes with two decimals.
func FormatKB(bytes int64) string {
	return fmt.Sprintf("%.2f KB", float64(bytes)/1024)
}

// FormatBytes returns a human-readable string for a byte count.
func FormatBytes(bytes int64) string {
	sign := ""
	if bytes < 0 {
		sign = "-"
		bytes = -bytes
	}
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%s%d B", sign, bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%s%.1f %cB", sign, float64(bytes)/float64(div), "KMGTPE"[exp])
}

// Breakdown returns a count of outcomes per status and error kind, e.g.
// "converted: 3, failed/decode_error: 1", sorted by key.
func Breakdown(outcomes []converter.Outcome) string {
	counts := make(map[string]int)
	var keys []string
	for _, o := range outcomes {
		key := o.Status.String()
		if o.Status == converter.StatusFailed {
			key += "/" + o.ErrorKind.String()
		}
		if _, ok := counts[key]; !ok {
			keys = append(keys, key)
		}
		counts[key]++
	}

	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %d", k, counts[k]))
	}
	return strings.Join(parts, ", ")
}
