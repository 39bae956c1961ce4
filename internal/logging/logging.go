// Package logging builds the zerolog logger shared by progressd components.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Options configures New.
type Options struct {
	Level  string    // trace, debug, info, warn, error; unknown values mean info
	Format string    // "json" or "console"
	Output io.Writer // defaults to stderr; stdout belongs to the stdio transport
}

// New returns a logger for opts. Logs go to stderr by default so they never
// interleave with JSON-RPC traffic on stdout.
func New(opts Options) zerolog.Logger {
	level, err := zerolog.ParseLevel(opts.Level)
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	if opts.Format != "json" {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		}
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}
