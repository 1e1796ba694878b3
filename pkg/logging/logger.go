// Package logging configures zerolog for the scraper: one global logger and
// per-component child loggers.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel is the minimum level written.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	Level LogLevel

	// Pretty switches from JSON lines to the console writer.
	Pretty bool

	// Output defaults to os.Stderr so stdout stays free for progress lines.
	Output io.Writer
}

// DefaultConfig returns the configuration used by the CLI.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: true,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly}
	}

	logger := zerolog.New(out).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// ValidLevel reports an error for level names Setup would not recognise.
func ValidLevel(level string) error {
	switch strings.ToLower(level) {
	case "debug", "info", "warn", "warning", "error":
		return nil
	}
	return fmt.Errorf("unknown log level %q", level)
}

func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger returns a child of the global logger tagged with component.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log level usage:
//
// Debug: per-request detail
//   - page URL, cache hit/miss, batch timings, committed row counts
//
// Info: run milestones
//   - bootstrap, run plan (total pages, pages to fetch), empty pages, run summary
//
// Warn: recovered failures
//   - failed page fetches (skipped), cache and run state publish errors, cancellation
//
// Error: fatal conditions
//   - bootstrap failure, output write failure, configuration errors
//
// Common fields:
//   - component: feed-client, scheduler, sink, runner, runstate, cache
//   - run_id: identifier of the run
//   - page: page number
//   - error_class: http_status, transport, decode, invalid
//   - status_code: HTTP status of a failed page
