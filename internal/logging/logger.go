// Stridesync - Activity Sync and Ingestion Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stridesync

package logging

import (
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logging configuration.
type Config struct {
	// Level is the minimum log level: trace, debug, info, warn, error, fatal, panic.
	// Default: info
	Level string

	// Format is the output format: json or console.
	// Default: json
	Format string

	// Caller includes caller file and line number in logs.
	Caller bool

	// Timestamp enables timestamps in log output.
	// Default: true
	Timestamp bool

	// Output is the writer for log output.
	// Default: os.Stderr
	Output io.Writer
}

// DefaultConfig is info level JSON with timestamps on stderr.
func DefaultConfig() Config {
	return Config{Level: "info", Format: "json", Timestamp: true, Output: os.Stderr}
}

// current holds the global logger. Swapped whole on Init and SetLogger so
// readers never see a half-configured logger.
var current atomic.Pointer[zerolog.Logger]

//nolint:gochecknoinits // logging must work before main() calls Init
func init() {
	cfg := DefaultConfig()
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		cfg.Level = lvl
	}
	Init(cfg)
}

// Init configures the global logger. Safe to call more than once; empty
// fields take the DefaultConfig value.
func Init(cfg Config) {
	def := DefaultConfig()
	if cfg.Level == "" {
		cfg.Level = def.Level
	}
	if cfg.Output == nil {
		cfg.Output = def.Output
	}

	zerolog.SetGlobalLevel(parseLevel(cfg.Level))
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.TimestampFieldName = "time"
	zerolog.MessageFieldName = "message"

	out := cfg.Output
	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: cfg.Output, TimeFormat: time.TimeOnly}
	}

	ctx := zerolog.New(out).With()
	if cfg.Timestamp {
		ctx = ctx.Timestamp()
	}
	if cfg.Caller {
		ctx = ctx.Caller()
	}
	l := ctx.Logger()
	current.Store(&l)
}

// parseLevel accepts zerolog level names plus "warning". Anything it does
// not recognise means info.
func parseLevel(level string) zerolog.Level {
	if strings.EqualFold(level, "warning") {
		return zerolog.WarnLevel
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// Logger returns a copy of the global logger.
func Logger() zerolog.Logger {
	return *current.Load()
}

// SetLogger replaces the global logger. Used by tests to capture output.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func SetLogger(l zerolog.Logger) {
	current.Store(&l)
}

// With creates a child logger context with additional fields.
func With() zerolog.Context {
	return current.Load().With()
}

// Trace starts a trace level message.
func Trace() *zerolog.Event { return current.Load().Trace() }

// Debug starts a debug level message.
func Debug() *zerolog.Event { return current.Load().Debug() }

// Info starts an info level message.
//
//	logging.Info().Str("user_id", id).Msg("Sync started")
func Info() *zerolog.Event { return current.Load().Info() }

// Warn starts a warn level message.
func Warn() *zerolog.Event { return current.Load().Warn() }

// Error starts an error level message.
//
//	logging.Error().Err(err).Str("item_id", id).Msg("Status write failed")
func Error() *zerolog.Event { return current.Load().Error() }

// Fatal starts a fatal level message. os.Exit(1) follows the write.
func Fatal() *zerolog.Event { return current.Load().Fatal() }

// Err starts an error level message with err attached, or an info level
// one when err is nil.
func Err(err error) *zerolog.Event { return current.Load().Err(err) }

// WithComponent creates a child logger tagged with a component field.
//
//	providerLog := logging.WithComponent("provider")
func WithComponent(component string) zerolog.Logger {
	return With().Str("component", component).Logger()
}

// SetLevelString updates the global log level.
func SetLevelString(level string) {
	zerolog.SetGlobalLevel(parseLevel(level))
}

// NewTestLogger creates a JSON logger writing to w.
func NewTestLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Logger()
}
