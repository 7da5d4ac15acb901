// Package logging provides leveled logging and run tracing for crowdsim.
// It offers two complementary outputs:
//   - A leveled slog.Logger for stderr (operational output)
//   - A TraceLogger for structured JSONL tick and contact traces (.crowdsim/trace.jsonl)
package logging

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nvandessel/crowdsim/internal/epidemic"
)

// LevelTrace is a custom slog level below Debug for per-contact logging.
const LevelTrace = slog.LevelDebug - 4

// ParseLevel maps a string level name to a slog.Level.
// Supported values: "info", "debug", "trace" (case-insensitive).
// Unknown values default to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "trace":
		return LevelTrace
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a leveled slog.Logger writing to w.
func NewLogger(level string, w io.Writer) *slog.Logger {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// TraceLogger writes tick and contact events of a run to a JSONL file.
// It is safe for concurrent use. A nil TraceLogger is safe to use;
// all methods are no-ops on nil receiver.
type TraceLogger struct {
	mu    sync.Mutex
	file  *os.File
	runID string
	level slog.Level
}

// NewTraceLogger creates a trace logger writing to dir/trace.jsonl.
// At "info" level (the default), returns nil and no file is created.
// At "debug" ticks are traced; at "trace" every contact is traced too.
// Returns nil if the file cannot be opened.
func NewTraceLogger(dir, level, runID string) *TraceLogger {
	lvl := ParseLevel(level)
	if lvl == slog.LevelInfo {
		return nil
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil
	}

	path := filepath.Join(dir, "trace.jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil
	}

	return &TraceLogger{file: f, runID: runID, level: lvl}
}

// Log writes an event as a single JSONL line.
// "time" and "run_id" fields are added. The caller's map is not mutated.
func (tl *TraceLogger) Log(event map[string]any) {
	if tl == nil || tl.file == nil {
		return
	}

	entry := make(map[string]any, len(event)+2)
	for k, v := range event {
		entry[k] = v
	}
	entry["time"] = time.Now().UTC().Format(time.RFC3339Nano)
	if tl.runID != "" {
		entry["run_id"] = tl.runID
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')

	tl.mu.Lock()
	defer tl.mu.Unlock()
	if tl.file == nil {
		return
	}
	_, _ = tl.file.Write(data)
}

// LogTick records the outcome of one tick with the tally after it.
func (tl *TraceLogger) LogTick(res epidemic.TickResult, tally epidemic.Tally) {
	if tl == nil {
		return
	}
	tl.Log(map[string]any{
		"event":        "tick",
		"tick":         res.Tick,
		"moved":        res.Moved,
		"new_contacts": res.NewContacts,
		"converged":    res.Converged,
		"susceptible":  tally.Susceptible,
		"infected":     tally.Infected,
		"recovered":    tally.Recovered,
	})
}

// LogContacts records contacts at trace level only.
func (tl *TraceLogger) LogContacts(events []epidemic.ContactEvent) {
	if tl == nil || tl.level > LevelTrace {
		return
	}
	for _, ev := range events {
		tl.Log(map[string]any{
			"event":        "contact",
			"tick":         ev.Tick,
			"source":       ev.Source,
			"target":       ev.Target,
			"contaminated": ev.Contaminated,
		})
	}
}

// Close closes the underlying file. Safe to call on nil receiver.
func (tl *TraceLogger) Close() {
	if tl == nil {
		return
	}

	tl.mu.Lock()
	defer tl.mu.Unlock()

	if tl.file != nil {
		tl.file.Close()
		tl.file = nil
	}
}
