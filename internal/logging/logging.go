// Package logging provides structured logging functionality.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string
	Console    bool
	File       bool
	FilePath   string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
}

var levelLabels = map[string]struct {
	label string
	attr  color.Attribute
}{
	"debug": {"DBG", color.FgCyan},
	"info":  {"INF", color.FgGreen},
	"warn":  {"WRN", color.FgYellow},
	"error": {"ERR", color.FgRed},
}

// NewLoggerWithConfig creates a logger writing to stderr and, when enabled,
// a rotating file. With neither writer the logger discards everything.
func NewLoggerWithConfig(cfg LogConfig) zerolog.Logger {
	var writers []io.Writer

	if cfg.Console {
		writers = append(writers, consoleWriter(os.Stderr, color.NoColor))
	}

	// File writer with rotation
	if cfg.File && cfg.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0755); err == nil {
			writers = append(writers, &lumberjack.Logger{
				Filename:   cfg.FilePath,
				MaxSize:    cfg.MaxSize,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAge,
				Compress:   true,
			})
		}
	}

	var writer io.Writer
	switch len(writers) {
	case 0:
		writer = io.Discard
	case 1:
		writer = writers[0]
	default:
		writer = zerolog.MultiLevelWriter(writers...)
	}

	return zerolog.New(writer).
		Level(ParseLevel(cfg.Level)).
		With().
		Timestamp().
		Str("app", "arbmon").
		Logger()
}

func consoleWriter(out io.Writer, noColor bool) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:        out,
		NoColor:    noColor,
		TimeFormat: time.TimeOnly,
		FormatLevel: func(i interface{}) string {
			ll, ok := i.(string)
			if !ok {
				return "???"
			}
			l, known := levelLabels[ll]
			if !known {
				return strings.ToUpper(ll)
			}
			if noColor {
				return l.label
			}
			return color.New(l.attr).Sprint(l.label)
		},
	}
}

// ParseLevel maps a config string to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	l, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || l == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return l
}

// WithSymbol adds a symbol to the logger context.
func WithSymbol(logger zerolog.Logger, symbol string) zerolog.Logger {
	return logger.With().Str("symbol", symbol).Logger()
}

// WithStrategy adds a strategy name to the logger context.
func WithStrategy(logger zerolog.Logger, strategy string) zerolog.Logger {
	return logger.With().Str("strategy", strategy).Logger()
}

// WithOperation adds an operation name to the logger context.
func WithOperation(logger zerolog.Logger, operation string) zerolog.Logger {
	return logger.With().Str("operation", operation).Logger()
}

// LogFetch logs the outcome of a market data fetch. Fallback snapshots are
// logged at warn.
func LogFetch(logger zerolog.Logger, symbol, provenance string, spot float64, duration time.Duration, diagnostic string) {
	event := logger.Info()
	if provenance == "fallback" {
		event = logger.Warn()
	}
	event.
		Str("event", "fetch").
		Str("symbol", symbol).
		Str("provenance", provenance).
		Float64("spot", spot).
		Dur("duration", duration).
		Str("diagnostic", diagnostic).
		Msg("Snapshot fetched")
}

// LogSourceCall logs one attempt against a market data source.
func LogSourceCall(logger zerolog.Logger, source, symbol string, duration time.Duration, err error) {
	event := logger.Debug().
		Str("event", "source_call").
		Str("source", source).
		Str("symbol", symbol).
		Dur("duration", duration)

	if err != nil {
		event.Err(err).Msg("Source failed")
	} else {
		event.Msg("Source answered")
	}
}

// LogOpportunity logs a detected opportunity.
func LogOpportunity(logger zerolog.Logger, strategy, symbol, signal string, netPnL float64) {
	logger.Info().
		Str("event", "opportunity").
		Str("strategy", strategy).
		Str("symbol", symbol).
		Str("signal", signal).
		Float64("net_pnl", netPnL).
		Msg("Opportunity detected")
}
