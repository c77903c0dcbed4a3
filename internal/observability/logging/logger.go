// Package logging provides structured logging with zerolog.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds logging configuration.
type Config struct {
	Level      string    // debug, info, warn, error
	Format     string    // json, console
	TimeFormat string    // RFC3339, Unix, etc.
	Output     io.Writer // defaults to stdout
}

// DefaultConfig returns sensible default logging configuration.
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "json",
		TimeFormat: time.RFC3339,
	}
}

// Init initializes the global zerolog logger.
func Init(cfg Config) {
	if cfg.TimeFormat != "" {
		zerolog.TimeFieldFormat = cfg.TimeFormat
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	output := out
	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.Kitchen,
		}
	}

	log.Logger = zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Logger()
}

// Logger returns the global service logger.
func Logger() zerolog.Logger {
	return log.Logger
}

// WithSession returns a child of parent tagged with the session id.
func WithSession(parent zerolog.Logger, sessionID string) zerolog.Logger {
	return parent.With().
		Str("sessionId", sessionID).
		Logger()
}

// WithCall returns a child of parent with the identifiers of an exported call.
func WithCall(parent zerolog.Logger, sessionID, callID, agentID string) zerolog.Logger {
	return parent.With().
		Str("sessionId", sessionID).
		Str("callId", callID).
		Str("agentId", agentID).
		Logger()
}

// WithComponent returns a child of parent with a component tag.
func WithComponent(parent zerolog.Logger, component string) zerolog.Logger {
	return parent.With().
		Str("component", component).
		Logger()
}
