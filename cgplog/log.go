// Package cgplog provides thin logging helpers on top of log/slog, with
// additional levels for protocol transcripts.
//
// Protocol traces are written as quoted strings below level debug, so a
// transcript of a session can be enabled without also enabling all debug
// logging of an application. Authentication lines are written at a separate,
// even lower level, so transcripts can be logged while keeping credentials
// out of them.
package cgplog

import (
	"context"
	"log/slog"
	"strconv"
)

// Log levels for protocol transcripts, in decreasing order of importance.
// LevelTraceauth additionally includes lines carrying credentials.
const (
	LevelTrace     slog.Level = slog.LevelDebug - 4
	LevelTraceauth slog.Level = slog.LevelDebug - 6
)

// Log wraps an slog.Logger, adding convenience methods that take an error and
// trace logging of protocol data.
type Log struct {
	*slog.Logger
}

// New returns a Log that adds field "pkg" to each logged line. A nil elog uses
// slog.Default.
func New(pkg string, elog *slog.Logger) Log {
	if elog == nil {
		elog = slog.Default()
	}
	return Log{elog.With(slog.String("pkg", pkg))}
}

// WithFunc returns a Log that calls fn for additional attributes on each
// logged line, for dynamic fields such as time deltas.
func (l Log) WithFunc(fn func() []slog.Attr) Log {
	return Log{slog.New(handlerFunc{l.Logger.Handler(), fn})}
}

type handlerFunc struct {
	slog.Handler
	fn func() []slog.Attr
}

func (h handlerFunc) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(h.fn()...)
	return h.Handler.Handle(ctx, r)
}

func (h handlerFunc) WithAttrs(attrs []slog.Attr) slog.Handler {
	return handlerFunc{h.Handler.WithAttrs(attrs), h.fn}
}

func (h handlerFunc) WithGroup(name string) slog.Handler {
	return handlerFunc{h.Handler.WithGroup(name), h.fn}
}

// Trace logs data, prefixed with prefix, as a quoted string at the given trace
// level. Data is not logged if the level is not enabled.
func (l Log) Trace(level slog.Level, prefix string, data []byte) {
	if l.Logger.Enabled(context.Background(), level) {
		l.Logger.Log(context.Background(), level, prefix+strconv.QuoteToASCII(string(data)))
	}
}

func (l Log) Debug(msg string, attrs ...slog.Attr) {
	l.Logger.LogAttrs(context.Background(), slog.LevelDebug, msg, attrs...)
}

// Debugx logs at debug level, adding a field "err" when err is not nil.
func (l Log) Debugx(msg string, err error, attrs ...slog.Attr) {
	if err != nil {
		attrs = append([]slog.Attr{slog.Any("err", err)}, attrs...)
	}
	l.Debug(msg, attrs...)
}

func (l Log) Info(msg string, attrs ...slog.Attr) {
	l.Logger.LogAttrs(context.Background(), slog.LevelInfo, msg, attrs...)
}

func (l Log) Infox(msg string, err error, attrs ...slog.Attr) {
	if err != nil {
		attrs = append([]slog.Attr{slog.Any("err", err)}, attrs...)
	}
	l.Info(msg, attrs...)
}

func (l Log) Error(msg string, attrs ...slog.Attr) {
	l.Logger.LogAttrs(context.Background(), slog.LevelError, msg, attrs...)
}

func (l Log) Errorx(msg string, err error, attrs ...slog.Attr) {
	if err != nil {
		attrs = append([]slog.Attr{slog.Any("err", err)}, attrs...)
	}
	l.Error(msg, attrs...)
}
