package config

import (
	"fmt"
	"strings"
	"time"

	"avif-converter-go/internal/codec"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// Config represents the main configuration structure
type Config struct {
	TargetFormat        string            `mapstructure:"target_format"`
	SupportedExtensions []string          `mapstructure:"supported_extensions"`
	Overwrite           bool              `mapstructure:"overwrite"`
	Conversion          ConversionConfig  `mapstructure:"conversion"`
	Performance         PerformanceConfig `mapstructure:"performance"`
	Report              ReportConfig      `mapstructure:"report"`
	Watch               WatchConfig       `mapstructure:"watch"`
	Server              ServerConfig      `mapstructure:"server"`
	Logging             LoggingConfig     `mapstructure:"logging"`
}

// ConversionConfig contains encoder and normalization settings
type ConversionConfig struct {
	Quality          int    `mapstructure:"quality"`
	Speed            int    `mapstructure:"speed"` // AVIF only
	Background       string `mapstructure:"background"`
	AutoOrient       bool   `mapstructure:"auto_orient"`
	PreserveMetadata bool   `mapstructure:"preserve_metadata"` // needs exiftool on PATH
}

// PerformanceConfig contains performance tuning settings
type PerformanceConfig struct {
	Parallelism    int  `mapstructure:"parallelism"` // 0 means one worker per CPU
	MaxFilesPerRun int  `mapstructure:"max_files_per_run"`
	ShowProgress   bool `mapstructure:"show_progress"`
}

// ReportConfig controls the optional run report file
type ReportConfig struct {
	Path   string `mapstructure:"path"`
	Format string `mapstructure:"format"` // yaml or json
}

// WatchConfig contains watch mode settings
type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce"`
}

// ServerConfig contains web server settings
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // json or text
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
	Compress   bool   `mapstructure:"compress"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		TargetFormat: "avif",
		SupportedExtensions: []string{
			".jpg", ".jpeg", ".png", ".bmp", ".gif",
			".tiff", ".tif", ".webp", ".svg",
		},
		Overwrite: false,
		Conversion: ConversionConfig{
			Quality:          60,
			Speed:            8,
			Background:       "#ffffff",
			AutoOrient:       true,
			PreserveMetadata: false,
		},
		Performance: PerformanceConfig{
			Parallelism:    0,
			MaxFilesPerRun: 0, // 0 means no limit
			ShowProgress:   true,
		},
		Report: ReportConfig{
			Format: "yaml",
		},
		Watch: WatchConfig{
			Debounce: 500 * time.Millisecond,
		},
		Server: ServerConfig{
			Port: 8080,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			FilePath:   "",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     30,
			Compress:   true,
		},
	}
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()
	v := viper.New()

	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Look for config file in current directory and home directory
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.avif-converter")
		v.AddConfigPath("/etc/avif-converter")
	}

	// Enable environment variable support
	v.SetEnvPrefix("AVIF_CONVERTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvKeys(v)

	// Try to read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || configPath != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults
	}

	if err := normalizeParallelism(v); err != nil {
		return nil, err
	}

	// A configured list replaces the defaults instead of merging into them.
	if v.IsSet("supported_extensions") {
		config.SupportedExtensions = nil
	}

	// Unmarshal config
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Validate and normalize config
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// bindEnvKeys registers every key so AutomaticEnv also applies to values
// that are absent from the config file.
func bindEnvKeys(v *viper.Viper) {
	for _, key := range []string{
		"target_format", "overwrite",
		"conversion.quality", "conversion.speed", "conversion.background",
		"conversion.auto_orient", "conversion.preserve_metadata",
		"performance.parallelism", "performance.max_files_per_run", "performance.show_progress",
		"report.path", "report.format", "watch.debounce", "server.port",
		"logging.level", "logging.format", "logging.file_path",
	} {
		_ = v.BindEnv(key)
	}
}

// normalizeParallelism accepts "auto" or any integer-like value.
func normalizeParallelism(v *viper.Viper) error {
	raw := v.Get("performance.parallelism")
	if raw == nil {
		return nil
	}
	if s, ok := raw.(string); ok && strings.EqualFold(strings.TrimSpace(s), "auto") {
		v.Set("performance.parallelism", 0)
		return nil
	}
	n, err := cast.ToIntE(raw)
	if err != nil {
		return fmt.Errorf("invalid performance.parallelism %v: %w", raw, err)
	}
	v.Set("performance.parallelism", n)
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	c.TargetFormat = strings.ToLower(strings.TrimPrefix(c.TargetFormat, "."))
	if c.TargetFormat == "" {
		c.TargetFormat = "avif"
	}
	if !codec.IsTargetFormat(c.TargetFormat) {
		return fmt.Errorf("invalid target_format: %s (valid: %s)",
			c.TargetFormat, strings.Join(codec.TargetFormats(), ", "))
	}

	// Validate extensions format
	c.SupportedExtensions = normalizeExtensions(c.SupportedExtensions)
	if len(c.SupportedExtensions) == 0 {
		return fmt.Errorf("supported_extensions must not be empty")
	}

	if c.Conversion.Quality < 1 || c.Conversion.Quality > 100 {
		return fmt.Errorf("invalid conversion.quality: %d (valid: 1-100)", c.Conversion.Quality)
	}
	if c.Conversion.Speed < 0 || c.Conversion.Speed > 10 {
		return fmt.Errorf("invalid conversion.speed: %d (valid: 0-10)", c.Conversion.Speed)
	}
	if c.Conversion.Background == "" {
		c.Conversion.Background = "#ffffff"
	}
	if _, err := codec.ParseColor(c.Conversion.Background); err != nil {
		return fmt.Errorf("invalid conversion.background: %w", err)
	}

	// Validate performance settings
	if c.Performance.Parallelism < 0 {
		c.Performance.Parallelism = 0
	}
	if c.Performance.MaxFilesPerRun < 0 {
		c.Performance.MaxFilesPerRun = 0
	}

	c.Report.Format = strings.ToLower(c.Report.Format)
	if c.Report.Format == "" {
		c.Report.Format = "yaml"
	}
	if c.Report.Format != "yaml" && c.Report.Format != "json" {
		return fmt.Errorf("invalid report.format: %s (valid: yaml, json)", c.Report.Format)
	}

	if c.Watch.Debounce <= 0 {
		c.Watch.Debounce = 500 * time.Millisecond
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		c.Server.Port = 8080
	}

	// Validate logging settings
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}
	c.Logging.Format = strings.ToLower(c.Logging.Format)
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("invalid logging.format: %s (valid: json, text)", c.Logging.Format)
	}

	return nil
}

// EncoderOptions returns the codec options derived from the conversion settings.
func (c *Config) EncoderOptions() codec.Options {
	return codec.Options{
		Quality: c.Conversion.Quality,
		Speed:   c.Conversion.Speed,
	}
}

// IsSupportedExtension checks if the extension qualifies a file for conversion
func (c *Config) IsSupportedExtension(ext string) bool {
	ext = strings.ToLower(ext)
	for _, supportedExt := range c.SupportedExtensions {
		if ext == supportedExt {
			return true
		}
	}
	return false
}

// Helper functions

func normalizeExtensions(extensions []string) []string {
	normalized := make([]string, 0, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		normalized = append(normalized, ext)
	}
	return normalized
}
