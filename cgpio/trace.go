// Package cgpio has I/O helpers for logging protocol transcripts.
package cgpio

import (
	"io"
	"log/slog"

	"github.com/webnames-ca/cgpro/cgplog"
)

// TraceWriter logs all writes before passing them on to the underlying
// writer.
type TraceWriter struct {
	log    cgplog.Log
	prefix string
	w      io.Writer
	level  slog.Level
}

// NewTraceWriter wraps "w" into a writer that logs all writes to "log" with
// log level trace, prefixed with "prefix".
func NewTraceWriter(log cgplog.Log, prefix string, w io.Writer) *TraceWriter {
	return &TraceWriter{log, prefix, w, cgplog.LevelTrace}
}

// Write logs a trace line for buf, then writes it to the underlying writer.
func (w *TraceWriter) Write(buf []byte) (int, error) {
	w.log.Trace(w.level, w.prefix, buf)
	return w.w.Write(buf)
}

// SetTrace changes the level at which data is logged, e.g. for not logging
// credentials during authentication.
func (w *TraceWriter) SetTrace(level slog.Level) {
	w.level = level
}

// TraceReader logs all reads from the underlying reader.
type TraceReader struct {
	log    cgplog.Log
	prefix string
	r      io.Reader
	level  slog.Level
}

// NewTraceReader wraps reader "r" into a reader that logs all reads to "log"
// with log level trace, prefixed with "prefix".
func NewTraceReader(log cgplog.Log, prefix string, r io.Reader) *TraceReader {
	return &TraceReader{log, prefix, r, cgplog.LevelTrace}
}

// Read does a single Read on the underlying reader, logging any data read.
func (r *TraceReader) Read(buf []byte) (int, error) {
	n, err := r.r.Read(buf)
	if n > 0 {
		r.log.Trace(r.level, r.prefix, buf[:n])
	}
	return n, err
}

// SetTrace changes the level at which data is logged.
func (r *TraceReader) SetTrace(level slog.Level) {
	r.level = level
}
