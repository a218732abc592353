// Package diag collects the per-run diagnostics produced while parsing,
// converting and reconciling an export.
//
// A Sink is threaded explicitly through the export parser, the record
// converter, the snapshot indexer and the reconciliation engine. Every entry is
// kept in memory (so a run summary can list them) and also written to the slog
// logger the sink was created with.
package diag

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// Kind categorizes a diagnostic entry.
type Kind string

const (
	// KindDecode marks malformed embedded JSON in the export.
	KindDecode Kind = "decode"

	// KindClassification marks a response row that could not be matched to a
	// questionnaire or participant and was dropped.
	KindClassification Kind = "classification"

	// KindConsistency marks diverging study ids or instance numbers in the
	// registry snapshot.
	KindConsistency Kind = "consistency"

	// KindConversion marks an item or category missing from a response payload.
	KindConversion Kind = "conversion"

	// KindResolution marks a pending participant that could not be resolved.
	KindResolution Kind = "resolution"

	// KindUpload marks a shortfall reported by the registry import.
	KindUpload Kind = "upload"
)

// Entry is a single diagnostic.
type Entry struct {
	Level   slog.Level `json:"level"`
	Kind    Kind       `json:"kind"`
	Message string     `json:"message"`
}

func (e Entry) String() string {
	return fmt.Sprintf("%s [%s] %s", e.Level, e.Kind, e.Message)
}

// Sink accumulates diagnostics for one run.
//
// Thread-safety: all methods are safe for concurrent use.
type Sink struct {
	mu      sync.Mutex
	logger  *slog.Logger
	entries []Entry
}

// New creates a sink that also forwards every entry to logger.
// A nil logger discards log output but still collects entries.
func New(logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Sink{logger: logger}
}

// Discard returns a sink that logs nowhere. Entries are still collected.
func Discard() *Sink {
	return New(nil)
}

// Warnf records a warning.
func (s *Sink) Warnf(kind Kind, format string, args ...any) {
	s.add(slog.LevelWarn, kind, fmt.Sprintf(format, args...))
}

// Errorf records an error. Errors do not stop processing; callers decide
// whether the condition is fatal.
func (s *Sink) Errorf(kind Kind, format string, args ...any) {
	s.add(slog.LevelError, kind, fmt.Sprintf(format, args...))
}

func (s *Sink) add(level slog.Level, kind Kind, msg string) {
	s.mu.Lock()
	s.entries = append(s.entries, Entry{Level: level, Kind: kind, Message: msg})
	s.mu.Unlock()

	s.logger.Log(context.Background(), level, msg, "kind", string(kind))
}

// Entries returns a copy of the collected entries in insertion order.
func (s *Sink) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Messages returns the collected messages, optionally filtered by kind.
func (s *Sink) Messages(kinds ...Kind) []string {
	var out []string
	for _, e := range s.Entries() {
		if len(kinds) > 0 && !hasKind(kinds, e.Kind) {
			continue
		}
		out = append(out, e.Message)
	}
	return out
}

// Count returns the number of entries at exactly the given level.
func (s *Sink) Count(level slog.Level) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.entries {
		if e.Level == level {
			n++
		}
	}
	return n
}

// Len returns the total number of entries.
func (s *Sink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func hasKind(kinds []Kind, k Kind) bool {
	for _, want := range kinds {
		if want == k {
			return true
		}
	}
	return false
}
