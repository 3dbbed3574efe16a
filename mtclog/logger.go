// Package mtclog adapts zerolog into the fluent Logger interface every
// component of this module accepts at construction, in the same shape the
// teacher repository's mtglib.Logger is used (BindStr/BindInt chaining,
// Info/Warning/Debug verbs) even though that interface's definition was not
// itself part of the retrieved reference pack.
package mtclog

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger is the structured logging contract every package in this module
// depends on. Implementations must be safe for concurrent use.
type Logger interface {
	BindStr(key, value string) Logger
	BindInt(key string, value int) Logger
	Named(name string) Logger

	Debug(msg string)
	Info(msg string)
	Warning(msg string)
	WarningError(msg string, err error)
	Error(msg string)
	ErrorError(msg string, err error)
}

type zlogger struct {
	logger zerolog.Logger
}

// New builds a Logger writing to w at the given level. Pass os.Stderr and
// zerolog.InfoLevel for typical CLI use.
func New(w io.Writer, level zerolog.Level) Logger {
	if w == nil {
		w = os.Stderr
	}

	return &zlogger{
		logger: zerolog.New(w).Level(level).With().Timestamp().Logger(),
	}
}

// Noop returns a Logger that discards everything, for tests and for
// callers that genuinely have nowhere to send logs.
func Noop() Logger {
	return New(io.Discard, zerolog.Disabled)
}

func (z *zlogger) BindStr(key, value string) Logger {
	return &zlogger{logger: z.logger.With().Str(key, value).Logger()}
}

func (z *zlogger) BindInt(key string, value int) Logger {
	return &zlogger{logger: z.logger.With().Int(key, value).Logger()}
}

func (z *zlogger) Named(name string) Logger {
	return &zlogger{logger: z.logger.With().Str("component", name).Logger()}
}

func (z *zlogger) Debug(msg string) {
	z.logger.Debug().Msg(msg)
}

func (z *zlogger) Info(msg string) {
	z.logger.Info().Msg(msg)
}

func (z *zlogger) Warning(msg string) {
	z.logger.Warn().Msg(msg)
}

func (z *zlogger) WarningError(msg string, err error) {
	z.logger.Warn().Err(err).Msg(msg)
}

func (z *zlogger) Error(msg string) {
	z.logger.Error().Msg(msg)
}

func (z *zlogger) ErrorError(msg string, err error) {
	z.logger.Error().Err(err).Msg(msg)
}
