package converter

import (
	"fmt"
	"time"
)

// Task is one source file to convert.
type Task struct {
	SourcePath string
	Overwrite  bool
}

// Status tags which variant an Outcome holds.
type Status int

const (
	StatusConverted Status = iota
	StatusSkipped
	StatusFailed
)

// String returns the string representation of the Status.
func (s Status) String() string {
	switch s {
	case StatusConverted:
		return "converted"
	case StatusSkipped:
		return "skipped"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// SkipReason explains why a task was skipped.
type SkipReason int

const (
	SkipNone SkipReason = iota
	SkipAlreadyExists
)

// String returns the string representation of the SkipReason.
func (r SkipReason) String() string {
	if r == SkipAlreadyExists {
		return "already_exists"
	}
	return "none"
}

// ErrorKind classifies a failed conversion.
type ErrorKind int

const (
	ErrorKindNone ErrorKind = iota
	ErrorKindDecode
	ErrorKindEncode
	ErrorKindIO
	ErrorKindOutputConflict
	ErrorKindCanceled
	ErrorKindInternal
)

// String returns the string representation of the ErrorKind.
func (k ErrorKind) String() string {
	switch k {
	case ErrorKindDecode:
		return "decode_error"
	case ErrorKindEncode:
		return "encode_error"
	case ErrorKindIO:
		return "io_error"
	case ErrorKindOutputConflict:
		return "output_conflict"
	case ErrorKindCanceled:
		return "canceled"
	case ErrorKindInternal:
		return "internal_error"
	default:
		return "none"
	}
}

// Outcome is the result of one task. Build it with Converted, Skipped or
// Failed; the Status field says which of the other fields are meaningful.
type Outcome struct {
	Status         Status
	SourcePath     string
	OutputPath     string
	OriginalBytes  int64
	ConvertedBytes int64
	SkipReason     SkipReason
	ErrorKind      ErrorKind
	Message        string
	Warning        string
	StartedAt      time.Time
	FinishedAt     time.Time
}

// Converted returns a successful outcome.
func Converted(source, output string, originalBytes, convertedBytes int64) Outcome {
	return Outcome{
		Status:         StatusConverted,
		SourcePath:     source,
		OutputPath:     output,
		OriginalBytes:  originalBytes,
		ConvertedBytes: convertedBytes,
	}
}

// Skipped returns an outcome for a task left alone because of the overwrite policy.
func Skipped(source, output string) Outcome {
	return Outcome{
		Status:     StatusSkipped,
		SourcePath: source,
		OutputPath: output,
		SkipReason: SkipAlreadyExists,
		Message:    fmt.Sprintf("File %s already exists. Use --force to overwrite.", output),
	}
}

// Failed returns a failed outcome.
func Failed(source string, kind ErrorKind, message string) Outcome {
	return Outcome{
		Status:     StatusFailed,
		SourcePath: source,
		ErrorKind:  kind,
		Message:    message,
	}
}

// Savings returns OriginalBytes minus ConvertedBytes. Negative when the
// converted file is larger; zero for anything but a converted outcome.
func (o Outcome) Savings() int64 {
	if o.Status != StatusConverted {
		return 0
	}
	return o.OriginalBytes - o.ConvertedBytes
}

// Duration returns how long the task took.
func (o Outcome) Duration() time.Duration {
	if o.StartedAt.IsZero() || o.FinishedAt.IsZero() {
		return 0
	}
	return o.FinishedAt.Sub(o.StartedAt)
}

// WithTiming returns a copy of o stamped with start and end times.
func (o Outcome) WithTiming(start, end time.Time) Outcome {
	o.StartedAt = start
	o.FinishedAt = end
	return o
}
