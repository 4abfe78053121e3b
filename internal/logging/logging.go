// Package logging builds the slog logger shared by every component.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds logging configuration
type Config struct {
	// Level is one of debug, info, warn, error. Default: info
	Level string `mapstructure:"level" yaml:"level"`

	// Format is text or json. Default: text
	Format string `mapstructure:"format" yaml:"format"`

	// Output is stderr, file or both. Default: both
	Output string `mapstructure:"output" yaml:"output"`

	// Dir is the directory holding the log file. Default: logs
	Dir string `mapstructure:"dir" yaml:"dir"`

	// FileName is the log file name inside Dir. Default: cas_scraper.log
	FileName string `mapstructure:"file_name" yaml:"file_name"`

	// RetentionDays is how long rotated files are kept. Default: 30
	RetentionDays int `mapstructure:"retention_days" yaml:"retention_days"`

	// MaxSizeMB is the size at which the file is rotated. Default: 10
	MaxSizeMB int `mapstructure:"max_size_mb" yaml:"max_size_mb"`

	// Compress gzips rotated files. Default: true
	Compress bool `mapstructure:"compress" yaml:"compress"`
}

// DefaultConfig returns the default logging configuration
func DefaultConfig() Config {
	return Config{
		Level:         "info",
		Format:        "text",
		Output:        "both",
		Dir:           "logs",
		FileName:      "cas_scraper.log",
		RetentionDays: 30,
		MaxSizeMB:     10,
		Compress:      true,
	}
}

// Validate checks if the configuration has valid values
func (c Config) Validate() error {
	if _, err := ParseLevel(c.Level); err != nil {
		return err
	}
	switch c.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log format must be text or json (got %q)", c.Format)
	}
	switch c.Output {
	case "stderr", "file", "both":
	default:
		return fmt.Errorf("log output must be stderr, file or both (got %q)", c.Output)
	}
	if c.Output != "stderr" {
		if c.Dir == "" || c.FileName == "" {
			return fmt.Errorf("log dir and file_name are required for output %q", c.Output)
		}
		if c.RetentionDays < 1 || c.RetentionDays > 365 {
			return fmt.Errorf("retention_days must be between 1 and 365 (got %d)", c.RetentionDays)
		}
		if c.MaxSizeMB < 1 {
			return fmt.Errorf("max_size_mb must be positive (got %d)", c.MaxSizeMB)
		}
	}
	return nil
}

// FilePath returns the full path of the active log file
func (c Config) FilePath() string {
	return filepath.Join(c.Dir, c.FileName)
}

// ParseLevel maps a level name to a slog level
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level: %q", name)
}

// New builds a logger from cfg. The returned closer flushes and closes the log
// file and must be called on shutdown; it is a no-op for stderr-only output.
func New(cfg Config, stderr io.Writer) (*slog.Logger, io.Closer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid log config: %w", err)
	}
	level, _ := ParseLevel(cfg.Level)

	var closer io.Closer = nopCloser{}
	var out io.Writer = stderr
	if cfg.Output != "stderr" {
		if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		file := &lumberjack.Logger{
			Filename: cfg.FilePath(),
			MaxSize:  cfg.MaxSizeMB,
			MaxAge:   cfg.RetentionDays,
			Compress: cfg.Compress,
		}
		closer = file
		out = file
		if cfg.Output == "both" {
			out = io.MultiWriter(stderr, file)
		}
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	return slog.New(handler), closer, nil
}

// Discard returns a logger that drops everything
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
