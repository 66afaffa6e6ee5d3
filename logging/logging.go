// Package logging provides the zerolog-backed implementation of the core
// Logger protocol.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/careloop-ai/assistant-core/core/agent"
)

// ZeroLogger implements agent.Logger on top of zerolog.
type ZeroLogger struct {
	l zerolog.Logger
}

// New creates a ZeroLogger writing JSON lines to w at the given level.
// Unknown levels default to info.
func New(w io.Writer, level string) *ZeroLogger {
	if w == nil {
		w = os.Stderr
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return &ZeroLogger{
		l: zerolog.New(w).Level(lvl).With().Timestamp().Logger(),
	}
}

// NewConsole creates a ZeroLogger with human-readable console output.
func NewConsole(level string) *ZeroLogger {
	zl := New(zerolog.ConsoleWriter{Out: os.Stderr}, level)
	return zl
}

// Debug implements agent.Logger.
func (z *ZeroLogger) Debug(msg string, fields ...any) {
	applyFields(z.l.Debug(), fields).Msg(msg)
}

// Info implements agent.Logger.
func (z *ZeroLogger) Info(msg string, fields ...any) {
	applyFields(z.l.Info(), fields).Msg(msg)
}

// Warn implements agent.Logger.
func (z *ZeroLogger) Warn(msg string, fields ...any) {
	applyFields(z.l.Warn(), fields).Msg(msg)
}

// Error implements agent.Logger.
func (z *ZeroLogger) Error(msg string, fields ...any) {
	applyFields(z.l.Error(), fields).Msg(msg)
}

// Bind implements agent.Logger, returning a child logger with the given
// key/value pairs attached to every entry.
func (z *ZeroLogger) Bind(fields ...any) agent.Logger {
	ctx := z.l.With()
	for i := 0; i+1 < len(fields); i += 2 {
		ctx = ctx.Interface(keyAt(fields, i), fields[i+1])
	}
	return &ZeroLogger{l: ctx.Logger()}
}

func applyFields(ev *zerolog.Event, fields []any) *zerolog.Event {
	for i := 0; i+1 < len(fields); i += 2 {
		ev = ev.Interface(keyAt(fields, i), fields[i+1])
	}
	return ev
}

func keyAt(fields []any, i int) string {
	if s, ok := fields[i].(string); ok {
		return s
	}
	return fmt.Sprintf("field_%d", i)
}

var _ agent.Logger = (*ZeroLogger)(nil)
