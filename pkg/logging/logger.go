// Copyright (C) 2026 CoSim Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging provides structured logging shared by every component of
// the coordination plane (gateway, simulation, signaling, documents).
//
// # Architecture
//
// Built on log/slog, with support for writing to stderr and an optional
// log file simultaneously, plus an extension point for shipping entries to
// an external sink:
//
//	logger := logging.New(logging.Config{
//	    Level:   logging.LevelInfo,
//	    Service: "simulation",
//	})
//	logger.Info("session created", "session_id", sessionID, "engine", "mujoco")
//
// Per-request or per-session loggers are derived with With(), which carries
// the parent's destinations forward:
//
//	sessLogger := logger.With("session_id", sessionID)
//	sessLogger.Info("lease acquired")
//	sessLogger.Warn("lease renewal failed", "error", err)
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Level represents log severity, ordered Debug < Info < Warn < Error.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) toSlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config configures a Logger. A zero-value Config logs Debug+ to stderr as
// text.
type Config struct {
	// Level is the minimum level written. The zero value is LevelDebug.
	Level Level

	// LogDir, when set, additionally writes JSON logs to
	// "{LogDir}/{Service}_{YYYY-MM-DD}.log". Supports a leading "~".
	LogDir string

	// Service tags every entry, e.g. "gateway", "simulation", "signaling",
	// "documents". Also used as the log file's name prefix.
	Service string

	// JSON selects JSON-formatted stderr output instead of text. File
	// output is always JSON regardless of this setting.
	JSON bool

	// Quiet disables stderr output while a log file is open (the Exporter
	// and file, if configured, still receive entries). With no log file
	// open, New falls back to a stderr text handler. Useful for daemons
	// under a supervisor that captures the log file directly.
	Quiet bool

	// Exporter optionally receives every entry asynchronously, e.g. to
	// ship logs to an aggregator. Nil disables export.
	Exporter LogExporter
}

// LogExporter receives log entries for external delivery. Implementations
// must not block the caller; buffer internally and flush in Flush.
type LogExporter interface {
	Export(ctx context.Context, entry LogEntry) error
	Flush(ctx context.Context) error
	Close() error
}

// LogEntry is the structured form handed to a LogExporter.
type LogEntry struct {
	Timestamp time.Time
	Level     Level
	Message   string
	Service   string
	Attrs     map[string]any
}

// Logger wraps slog.Logger with multi-destination output and an export
// hook. Safe for concurrent use.
type Logger struct {
	slog     *slog.Logger
	config   Config
	file     *os.File
	exporter LogExporter
	mu       sync.Mutex
}

// New builds a Logger from config.
func New(config Config) *Logger {
	var handlers []slog.Handler
	opts := &slog.HandlerOptions{Level: config.Level.toSlogLevel()}

	if !config.Quiet {
		if config.JSON {
			handlers = append(handlers, slog.NewJSONHandler(os.Stderr, opts))
		} else {
			handlers = append(handlers, slog.NewTextHandler(os.Stderr, opts))
		}
	}

	logger := &Logger{config: config, exporter: config.Exporter}

	if config.LogDir != "" {
		if dir := expandPath(config.LogDir); dir != "" {
			if err := os.MkdirAll(dir, 0o750); err == nil {
				service := config.Service
				if service == "" {
					service = "cosim"
				}
				name := fmt.Sprintf("%s_%s.log", service, time.Now().Format("2006-01-02"))
				if f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640); err == nil {
					logger.file = f
					handlers = append(handlers, slog.NewJSONHandler(f, opts))
				}
			}
		}
	}

	var handler slog.Handler
	switch len(handlers) {
	case 0:
		handler = slog.NewTextHandler(os.Stderr, opts)
	case 1:
		handler = handlers[0]
	default:
		handler = &multiHandler{handlers: handlers}
	}

	if config.Service != "" {
		handler = handler.WithAttrs([]slog.Attr{slog.String("service", config.Service)})
	}

	logger.slog = slog.New(handler)
	return logger
}

// Default returns an Info-level, stderr-only logger tagged "cosim".
func Default() *Logger {
	return New(Config{Level: LevelInfo, Service: "cosim"})
}

func (l *Logger) Debug(msg string, args ...any) { l.log(LevelDebug, msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.log(LevelInfo, msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.log(LevelWarn, msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.log(LevelError, msg, args...) }

// With returns a child Logger carrying the given attributes on every
// subsequent entry. The parent is unaffected and the destinations (file,
// exporter) are shared.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{slog: l.slog.With(args...), config: l.config, file: l.file, exporter: l.exporter}
}

// Slog exposes the underlying slog.Logger for call sites that need
// slog.LogAttrs or similar.
func (l *Logger) Slog() *slog.Logger { return l.slog }

// Close flushes the exporter (if any) and closes the log file (if any).
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var errs []error
	if l.exporter != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.exporter.Flush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flush exporter: %w", err))
		}
		if err := l.exporter.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close exporter: %w", err))
		}
	}
	if l.file != nil {
		if err := l.file.Sync(); err != nil {
			errs = append(errs, fmt.Errorf("sync log file: %w", err))
		}
		if err := l.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close log file: %w", err))
		}
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

func (l *Logger) log(level Level, msg string, args ...any) {
	switch level {
	case LevelDebug:
		l.slog.Debug(msg, args...)
	case LevelInfo:
		l.slog.Info(msg, args...)
	case LevelWarn:
		l.slog.Warn(msg, args...)
	case LevelError:
		l.slog.Error(msg, args...)
	}

	if l.exporter != nil && level >= l.config.Level {
		entry := LogEntry{Timestamp: time.Now(), Level: level, Message: msg, Service: l.config.Service, Attrs: argsToMap(args)}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = l.exporter.Export(ctx, entry)
		}()
	}
}

type multiHandler struct{ handlers []slog.Handler }

func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, r.Level) {
			if err := handler.Handle(ctx, r); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		next[i] = handler.WithAttrs(attrs)
	}
	return &multiHandler{handlers: next}
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		next[i] = handler.WithGroup(name)
	}
	return &multiHandler{handlers: next}
}

func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

func argsToMap(args []any) map[string]any {
	result := make(map[string]any, len(args)/2)
	for i := 0; i < len(args)-1; i += 2 {
		if key, ok := args[i].(string); ok {
			result[key] = args[i+1]
		}
	}
	return result
}

// NopExporter discards every entry. Useful as an explicit no-op default.
type NopExporter struct{}

func (NopExporter) Export(context.Context, LogEntry) error { return nil }
func (NopExporter) Flush(context.Context) error             { return nil }
func (NopExporter) Close() error                            { return nil }

var _ LogExporter = NopExporter{}

// BufferedExporter collects log entries in memory. Useful in tests that
// want to assert on emitted entries without parsing stderr or a file:
//
//	exporter := logging.NewBufferedExporter()
//	logger := logging.New(logging.Config{Exporter: exporter})
//	logger.Info("lease acquired", "session_id", sessionID)
//	entries := exporter.Entries()
type BufferedExporter struct {
	mu      sync.Mutex
	entries []LogEntry
}

func NewBufferedExporter() *BufferedExporter {
	return &BufferedExporter{entries: make([]LogEntry, 0, 100)}
}

func (e *BufferedExporter) Export(_ context.Context, entry LogEntry) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.entries = append(e.entries, entry)
	return nil
}

func (e *BufferedExporter) Flush(context.Context) error { return nil }
func (e *BufferedExporter) Close() error                { return nil }

// Entries returns a copy of the collected entries; it is safe to call
// while the logger is still writing.
func (e *BufferedExporter) Entries() []LogEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	result := make([]LogEntry, len(e.entries))
	copy(result, e.entries)
	return result
}

var _ LogExporter = (*BufferedExporter)(nil)

// WriterExporter writes entries to an io.Writer, useful in tests that want
// to assert on emitted log lines without parsing stderr.
type WriterExporter struct {
	w  io.Writer
	mu sync.Mutex
}

func NewWriterExporter(w io.Writer) *WriterExporter { return &WriterExporter{w: w} }

func (e *WriterExporter) Export(_ context.Context, entry LogEntry) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, err := fmt.Fprintf(e.w, "[%s] %s: %s %v\n", entry.Timestamp.Format(time.RFC3339), entry.Level, entry.Message, entry.Attrs)
	return err
}

func (e *WriterExporter) Flush(context.Context) error { return nil }
func (e *WriterExporter) Close() error                { return nil }
