package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Log line encodings.
const (
	FormatJSON = "json"
	FormatText = "text"
)

// LoggerConfig defines the configuration for the logger.
type LoggerConfig struct {
	Level      string    // Log level (e.g., "info", "debug", "error")
	Format     string    // FormatJSON (default) or FormatText
	FilePath   string    // Path to the log file
	MaxSize    int       // Maximum size in megabytes before log rotation
	MaxBackups int       // Maximum number of old log files to retain
	MaxAge     int       // Maximum number of days to retain old log files
	Compress   bool      // Whether to compress rotated log files
	Console    bool      // Whether to also log to the console
	ConsoleOut io.Writer // Console destination, stderr when nil
}

// NewLogger returns a new logrus.Logger configured according to the provided LoggerConfig.
// The logger supports log rotation and either JSON or logfmt-style text output.
func NewLogger(config LoggerConfig) (*logrus.Logger, error) {
	logger := logrus.New()

	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		return nil, err
	}
	logger.SetLevel(level)

	formatter, err := newFormatter(config.Format)
	if err != nil {
		return nil, err
	}
	logger.SetFormatter(formatter)

	var writers []io.Writer

	if config.FilePath != "" {
		dir := filepath.Dir(config.FilePath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}

		fileWriter := &lumberjack.Logger{
			Filename:   config.FilePath,
			MaxSize:    config.MaxSize,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAge,
			Compress:   config.Compress,
		}
		writers = append(writers, fileWriter)
	}

	if config.Console || config.FilePath == "" {
		// Report lines go to stdout, so console logs stay on stderr.
		console := config.ConsoleOut
		if console == nil {
			console = os.Stderr
		}
		writers = append(writers, console)
	}

	if len(writers) > 1 {
		logger.SetOutput(io.MultiWriter(writers...))
	} else if len(writers) == 1 {
		logger.SetOutput(writers[0])
	}

	return logger, nil
}

func newFormatter(format string) (logrus.Formatter, error) {
	switch strings.ToLower(format) {
	case "", FormatJSON:
		return &logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
				logrus.FieldKeyFunc:  "function",
			},
		}, nil
	case FormatText:
		// Rotated files and pipes must not receive color codes.
		return &logrus.TextFormatter{
			DisableColors:   true,
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		}, nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

// Discard returns a logger that drops everything, for tests and library callers.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// WithFile returns a logger entry with the specified file context.
func WithFile(logger *logrus.Logger, filePath string) *logrus.Entry {
	return logger.WithField("file", filePath)
}

// WithFileOperation returns a logger entry with both file and operation context.
func WithFileOperation(logger *logrus.Logger, filePath, operation string) *logrus.Entry {
	return logger.WithFields(logrus.Fields{
		"file":      filePath,
		"operation": operation,
	})
}

// WithRun returns a logger entry tagged with a batch run ID.
func WithRun(logger *logrus.Logger, runID string) *logrus.Entry {
	return logger.WithField("run_id", runID)
}

// DefaultConfig returns the default LoggerConfig.
func DefaultConfig() LoggerConfig {
	return LoggerConfig{
		Level:      "info",
		Format:     FormatJSON,
		FilePath:   "avif-converter.log",
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     30,
		Compress:   true,
		Console:    true,
	}
}
