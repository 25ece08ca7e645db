// Package logging builds the zerolog logger shared by the commands.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options selects the logger output.
type Options struct {
	Level  string    `mapstructure:"level" yaml:"level"`
	Format string    `mapstructure:"format" yaml:"format"` // console or json
	Out    io.Writer `mapstructure:"-" yaml:"-"`
}

// DefaultOptions logs at info level to stderr in console format.
func DefaultOptions() Options {
	return Options{Level: "info", Format: "console"}
}

// New creates a logger from opts.
func New(opts Options) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(opts.Level)))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("log level %q: %w", opts.Level, err)
	}
	if level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	switch strings.ToLower(opts.Format) {
	case "", "console":
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly}
	case "json":
	default:
		return zerolog.Nop(), fmt.Errorf("unknown log format %q", opts.Format)
	}

	return zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Logger(), nil
}

// Component returns a child logger tagged with the component name.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}
