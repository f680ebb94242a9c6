// Package rlog wraps zerolog with the reconciler's console/quiet/verbose
// conventions, threaded through context.Context the way the rest of the
// example corpus does (spec.md §1 EXPANDED ambient stack).
package rlog

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

type ctxKey string

const loggerKey ctxKey = "rlog.logger"

// New builds a console-formatted logger at the given level. quiet drops
// everything below Warn; verbose enables Debug.
func New(quiet, verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	switch {
	case quiet:
		level = zerolog.WarnLevel
	case verbose:
		level = zerolog.DebugLevel
	}
	out := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// NewWithWriter builds a plain (non-console) logger writing JSON lines
// to w, useful for tests and non-interactive log capture.
func NewWithWriter(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Logger()
}

// WithContext stores logger in ctx.
func WithContext(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext retrieves the logger stored by WithContext, or a default
// logger if none was stored.
func FromContext(ctx context.Context) zerolog.Logger {
	if logger, ok := ctx.Value(loggerKey).(zerolog.Logger); ok {
		return logger
	}
	return New(false, false)
}
