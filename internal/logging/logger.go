package logging

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Interface is the small logging surface the pipeline and hub rely on.
type Interface interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
	Warnf(format string, args ...interface{})
}

type Options struct {
	Level  string // debug|info|warn|error
	Format string // json|console
	Out    io.Writer
}

var (
	globalLogger *Logger
	once         sync.Once
)

// Default returns a lazily initialized info-level JSON logger on stderr.
func Default() *Logger {
	once.Do(func() {
		globalLogger = New(Options{})
	})
	return globalLogger
}

func New(opts Options) *Logger {
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	if strings.EqualFold(opts.Format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}
	base := zerolog.New(out).Level(ParseLevel(opts.Level)).With().Timestamp().Logger()
	return &Logger{log: base}
}

// Nop discards everything.
func Nop() *Logger {
	return &Logger{log: zerolog.Nop()}
}

// ParseLevel maps a config string to a zerolog level, defaulting to info.
func ParseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

type Logger struct {
	log zerolog.Logger
}

// Zerolog exposes the underlying logger for structured fields.
func (l *Logger) Zerolog() *zerolog.Logger { return &l.log }

// With returns a child logger carrying one extra string field.
func (l *Logger) With(key, value string) *Logger {
	return &Logger{log: l.log.With().Str(key, value).Logger()}
}

func (l *Logger) Infof(format string, args ...interface{}) {
	l.log.Info().Msgf(format, args...)
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	l.log.Error().Msgf(format, args...)
}

func (l *Logger) Debugf(format string, args ...interface{}) {
	l.log.Debug().Msgf(format, args...)
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	l.log.Warn().Msgf(format, args...)
}
