package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.TargetFormat != "avif" || cfg.Overwrite {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if !cfg.IsSupportedExtension(".SVG") || cfg.IsSupportedExtension(".avif") {
		t.Error("unexpected extension support")
	}
}

func TestLoadConfig_File(t *testing.T) {
	path := writeConfig(t, `
target_format: JPG
supported_extensions: [PNG, ".Jpg"]
overwrite: true
conversion:
  quality: 80
  background: "#000000"
performance:
  parallelism: auto
  max_files_per_run: 10
report:
  path: out/report.json
  format: JSON
watch:
  debounce: 2s
logging:
  level: debug
  format: Text
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.TargetFormat != "jpg" {
		t.Errorf("expected target jpg, got %s", cfg.TargetFormat)
	}
	if strings.Join(cfg.SupportedExtensions, ",") != ".png,.jpg" {
		t.Errorf("extensions not normalized: %v", cfg.SupportedExtensions)
	}
	if !cfg.Overwrite || cfg.Conversion.Quality != 80 || cfg.Performance.Parallelism != 0 {
		t.Errorf("unexpected values: %+v", cfg)
	}
	if cfg.Performance.MaxFilesPerRun != 10 || cfg.Report.Format != "json" {
		t.Errorf("unexpected performance/report: %+v %+v", cfg.Performance, cfg.Report)
	}
	if cfg.Watch.Debounce != 2*time.Second {
		t.Errorf("expected 2s debounce, got %v", cfg.Watch.Debounce)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("expected text log format, got %s", cfg.Logging.Format)
	}
	if cfg.Conversion.Speed != 8 {
		t.Errorf("unset keys should keep defaults, got speed %d", cfg.Conversion.Speed)
	}
}

func TestLoadConfig_SupportedExtensions(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"narrowed", "supported_extensions: [webp]\n", ".webp"},
		{"unset keeps defaults", "overwrite: true\n", strings.Join(DefaultConfig().SupportedExtensions, ",")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadConfig(writeConfig(t, tt.content))
			if err != nil {
				t.Fatalf("LoadConfig failed: %v", err)
			}
			if got := strings.Join(cfg.SupportedExtensions, ","); got != tt.want {
				t.Errorf("got extensions %s, want %s", got, tt.want)
			}
		})
	}
}

func TestLoadConfig_NumericParallelismAndEnv(t *testing.T) {
	path := writeConfig(t, "performance:\n  parallelism: \"3\"\n")
	t.Setenv("AVIF_CONVERTER_CONVERSION_QUALITY", "42")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Performance.Parallelism != 3 {
		t.Errorf("expected parallelism 3, got %d", cfg.Performance.Parallelism)
	}
	if cfg.Conversion.Quality != 42 {
		t.Errorf("expected env override quality 42, got %d", cfg.Conversion.Quality)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"bad target", "target_format: heic\n", "invalid target_format"},
		{"bad quality", "conversion:\n  quality: 0\n", "invalid conversion.quality"},
		{"bad background", "conversion:\n  background: blue\n", "invalid conversion.background"},
		{"bad parallelism", "performance:\n  parallelism: lots\n", "invalid performance.parallelism"},
		{"bad report format", "report:\n  format: xml\n", "invalid report.format"},
		{"bad level", "logging:\n  level: loud\n", "invalid log level"},
		{"bad log format", "logging:\n  format: xml\n", "invalid logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing explicit config file")
	}
}
