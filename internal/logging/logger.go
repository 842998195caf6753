// Package logging builds the zap loggers used across vframe.
package logging

import (
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options describes logger construction parameters.
type Options struct {
	Level            string
	Format           string
	OutputPaths      []string
	ErrorOutputPaths []string
	Development      bool
}

// Field keys shared by every component so log lines can be filtered.
const (
	FieldBatchID = "batch_id"
	FieldQueue   = "queue"
	FieldJob     = "job"
	FieldTab     = "tab"
)

// New constructs a zap logger. Console output gets colored levels when
// stderr is a terminal; caller information is only added at debug level.
func New(opts Options) (*zap.Logger, error) {
	level := ParseLevel(opts.Level)

	format := strings.ToLower(strings.TrimSpace(opts.Format))
	if format == "" {
		format = "console"
	}

	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "time"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeDuration = zapcore.StringDurationEncoder

	switch format {
	case "json":
	case "console":
		enc.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		enc.EncodeLevel = zapcore.CapitalLevelEncoder
		if colorTerminal(opts.OutputPaths) {
			enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
	default:
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}

	cfg := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       opts.Development,
		DisableCaller:     !opts.Development && level > zapcore.DebugLevel,
		DisableStacktrace: !opts.Development,
		Encoding:          format,
		EncoderConfig:     enc,
		OutputPaths:       defaultSlice(opts.OutputPaths, "stderr"),
		ErrorOutputPaths:  defaultSlice(opts.ErrorOutputPaths, "stderr"),
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}

// ParseLevel maps a level name to a zap level; unknown names mean info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error", "dpanic", "panic", "fatal":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func colorTerminal(outputs []string) bool {
	for _, p := range defaultSlice(outputs, "stderr") {
		var fd uintptr
		switch p {
		case "stdout":
			fd = os.Stdout.Fd()
		case "stderr":
			fd = os.Stderr.Fd()
		default:
			return false
		}
		if !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd) {
			return false
		}
	}
	return true
}

func defaultSlice(value []string, fallback string) []string {
	if len(value) == 0 {
		return []string{fallback}
	}
	out := make([]string, len(value))
	copy(out, value)
	return out
}
