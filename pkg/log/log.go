// Package log builds the zerolog logger used by every command.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/natefinch/lumberjack"
	"github.com/rs/zerolog"
)

// Defaults for the rotated log file
const (
	DefaultMaxSizeMB  = 50
	DefaultMaxBackups = 7
	DefaultMaxAgeDays = 28
)

// Options configures New
type Options struct {
	Level string
	// File enables JSON logging into a rotated file in addition to stderr
	File string
	// Console overrides the human readable output, stderr by default
	Console io.Writer
}

// New creates a logger writing human readable lines to stderr and,
// when a file is configured, JSON lines into that file.
func New(opts Options) (zerolog.Logger, error) {
	lvl := zerolog.InfoLevel
	if opts.Level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		lvl = parsed
	}

	out, noColor := opts.Console, true
	if out == nil {
		out, noColor = os.Stderr, false
	}
	writers := []io.Writer{zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
		w.Out = out
		w.NoColor = noColor
		w.TimeFormat = time.RFC3339
	})}

	if opts.File != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    DefaultMaxSizeMB,
			MaxBackups: DefaultMaxBackups,
			MaxAge:     DefaultMaxAgeDays,
			Compress:   true,
		})
	}

	return zerolog.New(io.MultiWriter(writers...)).Level(lvl).With().Timestamp().Logger(), nil
}
