// Package logger provides the logging collaborator handed to every gridmon
// component. Components depend only on the Logger interface; the daemon
// wires in a zerolog-backed implementation and tests use BufferLogger.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// Logger defines the interface for logging operations.
// All methods accept a format string and arguments, similar to fmt.Printf.
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
}

// Zerolog implements Logger on top of a zerolog.Logger.
type Zerolog struct {
	zl zerolog.Logger
}

// New creates a zerolog-backed logger writing to w at the given level.
// Unknown levels fall back to info. When w is a terminal the output is
// rendered with zerolog's console writer, otherwise as JSON lines.
func New(w io.Writer, level, component string) *Zerolog {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	out := w
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	zl := zerolog.New(out).Level(lvl).With().Timestamp().Logger()
	if component != "" {
		zl = zl.With().Str("component", component).Logger()
	}
	return &Zerolog{zl: zl}
}

// With returns a child logger tagged with another component name.
func (l *Zerolog) With(component string) *Zerolog {
	return &Zerolog{zl: l.zl.With().Str("component", component).Logger()}
}

// WithField returns a child logger carrying one extra string field, used
// to stamp the poll cycle ID onto every line of a cycle.
func (l *Zerolog) WithField(key, value string) Logger {
	return &Zerolog{zl: l.zl.With().Str(key, value).Logger()}
}

func (l *Zerolog) Debug(format string, args ...interface{}) {
	l.zl.Debug().Msgf(format, args...)
}

func (l *Zerolog) Info(format string, args ...interface{}) {
	l.zl.Info().Msgf(format, args...)
}

func (l *Zerolog) Warn(format string, args ...interface{}) {
	l.zl.Warn().Msgf(format, args...)
}

func (l *Zerolog) Error(format string, args ...interface{}) {
	l.zl.Error().Msgf(format, args...)
}

// ValidLevel reports whether level is a level name zerolog understands.
func ValidLevel(level string) bool {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	return err == nil && lvl != zerolog.NoLevel
}

// Fielder is implemented by loggers that can attach a key/value pair to
// every subsequent line.
type Fielder interface {
	WithField(key, value string) Logger
}

// WithField attaches key=value when l supports it and returns l unchanged
// otherwise.
func WithField(l Logger, key, value string) Logger {
	if f, ok := l.(Fielder); ok {
		return f.WithField(key, value)
	}
	return l
}

// noopLogger implements Logger but discards all messages.
type noopLogger struct{}

// Noop returns a logger that discards all messages.
func Noop() Logger {
	return &noopLogger{}
}

func (l *noopLogger) Debug(format string, args ...interface{}) {}
func (l *noopLogger) Info(format string, args ...interface{})  {}
func (l *noopLogger) Warn(format string, args ...interface{})  {}
func (l *noopLogger) Error(format string, args ...interface{}) {}

// LogMessage represents a captured log message.
type LogMessage struct {
	Level   string
	Message string
}

// BufferLogger captures log messages for testing.
type BufferLogger struct {
	mu       sync.Mutex
	Messages []LogMessage
}

// NewBufferLogger creates a logger that captures messages for inspection.
func NewBufferLogger() *BufferLogger {
	return &BufferLogger{
		Messages: make([]LogMessage, 0),
	}
}

func (l *BufferLogger) record(level, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Messages = append(l.Messages, LogMessage{Level: level, Message: fmt.Sprintf(format, args...)})
}

func (l *BufferLogger) Debug(format string, args ...interface{}) {
	l.record("debug", format, args...)
}

func (l *BufferLogger) Info(format string, args ...interface{}) {
	l.record("info", format, args...)
}

func (l *BufferLogger) Warn(format string, args ...interface{}) {
	l.record("warn", format, args...)
}

func (l *BufferLogger) Error(format string, args ...interface{}) {
	l.record("error", format, args...)
}

// HasLevel returns true if any message was logged at the given level.
func (l *BufferLogger) HasLevel(level string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range l.Messages {
		if m.Level == level {
			return true
		}
	}
	return false
}

// Contains returns true if a message at level contains substr.
func (l *BufferLogger) Contains(level, substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range l.Messages {
		if m.Level == level && strings.Contains(m.Message, substr) {
			return true
		}
	}
	return false
}

// Clear removes all captured messages.
func (l *BufferLogger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Messages = l.Messages[:0]
}
