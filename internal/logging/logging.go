// Package logging builds the structured logger shared by every component of the
// console plugin.
package logging

import (
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Format selects the log encoding.
type Format string

const (
	// FormatConsole is a human readable, tab separated encoding.
	FormatConsole Format = "console"
	// FormatJSON emits one JSON object per line.
	FormatJSON Format = "json"
)

// Config configures the logger.
type Config struct {
	// Level is the minimum level to emit (debug, info, warn, error).
	Level string
	// Format is the encoding. Defaults to FormatConsole.
	Format Format
	// Output is where logs are written. Defaults to os.Stderr.
	Output io.Writer
	// Name is the root logger name.
	Name string
}

// DefaultConfig returns the default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: FormatConsole,
		Output: os.Stderr,
		Name:   "hostconsole",
	}
}

// ParseLevel parses a level name. Unknown names map to info.
func ParseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// ParseFormat parses a format name. Unknown names map to FormatConsole.
func ParseFormat(s string) Format {
	if strings.EqualFold(strings.TrimSpace(s), string(FormatJSON)) {
		return FormatJSON
	}
	return FormatConsole
}

// New creates a logger from cfg.
func New(cfg Config) *zap.Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeDuration = zapcore.StringDurationEncoder

	var enc zapcore.Encoder
	switch cfg.Format {
	case FormatJSON:
		enc = zapcore.NewJSONEncoder(encCfg)
	default:
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(cfg.Output)), zap.NewAtomicLevelAt(ParseLevel(cfg.Level)))
	logger := zap.New(core, zap.AddCaller())
	if cfg.Name != "" {
		logger = logger.Named(cfg.Name)
	}
	return logger
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
