// Package logging configures log/slog for a run.
//
// Each run writes to its own file in the log directory, optionally teed to
// stderr. A CountingHandler tallies warnings and errors for the run summary.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// RunLogLayout names a run's log file after its start time.
const RunLogLayout = "trd_cli-2006-01-02_150405.log"

// ParseLevel converts a level name to slog.Level. Unknown names map to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "critical":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewHandler returns a text or JSON handler writing to w.
func NewHandler(w io.Writer, level, format string) slog.Handler {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if strings.ToLower(format) == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// Setup installs a counting logger writing to w as the slog default.
func Setup(w io.Writer, level, format string) (*slog.Logger, *CountingHandler) {
	counter := NewCountingHandler(NewHandler(w, level, format))
	logger := slog.New(counter)
	slog.SetDefault(logger)
	return logger, counter
}

// RunLog is the log file of a single run.
type RunLog struct {
	Path string
	file *lumberjack.Logger
}

// OpenRunLog creates the log directory if needed and opens the file for a
// run started at now.
func OpenRunLog(dir string, now time.Time) (*RunLog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	path := filepath.Join(dir, now.Format(RunLogLayout))
	return &RunLog{
		Path: path,
		file: &lumberjack.Logger{
			Filename:   path,
			MaxSize:    50, // megabytes
			MaxAge:     90, // days
			MaxBackups: 0,
			Compress:   true,
		},
	}, nil
}

func (l *RunLog) Write(p []byte) (int, error) {
	return l.file.Write(p)
}

// Close flushes and closes the file.
func (l *RunLog) Close() error {
	return l.file.Close()
}

// Lines returns the lines written to the file so far. The file is created
// on first write, so a missing file has no lines.
func (l *RunLog) Lines() ([]string, error) {
	data, err := os.ReadFile(l.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading run log: %w", err)
	}
	text := strings.TrimRight(string(data), "\n")
	if text == "" {
		return nil, nil
	}
	return strings.Split(text, "\n"), nil
}

// Tee returns a writer duplicating output to w and the run log.
func (l *RunLog) Tee(w io.Writer) io.Writer {
	return io.MultiWriter(w, l)
}

// CountingHandler wraps a handler and counts the warning and error records
// passed through it, including those of derived handlers.
type CountingHandler struct {
	slog.Handler
	counts *counts
}

type counts struct {
	warnings atomic.Int64
	errors   atomic.Int64
}

// NewCountingHandler wraps h.
func NewCountingHandler(h slog.Handler) *CountingHandler {
	return &CountingHandler{Handler: h, counts: &counts{}}
}

// Handle counts r and forwards it.
func (h *CountingHandler) Handle(ctx context.Context, r slog.Record) error {
	switch {
	case r.Level >= slog.LevelError:
		h.counts.errors.Add(1)
	case r.Level >= slog.LevelWarn:
		h.counts.warnings.Add(1)
	}
	return h.Handler.Handle(ctx, r)
}

// WithAttrs implements slog.Handler, sharing counts with h.
func (h *CountingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CountingHandler{Handler: h.Handler.WithAttrs(attrs), counts: h.counts}
}

// WithGroup implements slog.Handler, sharing counts with h.
func (h *CountingHandler) WithGroup(name string) slog.Handler {
	return &CountingHandler{Handler: h.Handler.WithGroup(name), counts: h.counts}
}

// Warnings returns the number of warning records seen.
func (h *CountingHandler) Warnings() int { return int(h.counts.warnings.Load()) }

// Errors returns the number of error records seen.
func (h *CountingHandler) Errors() int { return int(h.counts.errors.Load()) }
