package mcp

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nvandessel/crowdsim/internal/constants"
)

// AuditEntry records one MCP tool invocation. It carries metadata only,
// never file paths supplied by the caller.
type AuditEntry struct {
	Timestamp  time.Time         `json:"timestamp"`
	Tool       string            `json:"tool"`
	DurationMs int64             `json:"duration_ms"`
	Status     string            `json:"status"` // "success" or "error"
	Error      string            `json:"error,omitempty"`
	RunID      string            `json:"run_id,omitempty"`
	Params     map[string]string `json:"params,omitempty"`
}

// AuditLogger appends entries to <dir>/.crowdsim/audit.jsonl. It is safe
// for concurrent use, and a nil *AuditLogger discards everything.
type AuditLogger struct {
	mu   sync.Mutex
	file *os.File
}

// NewAuditLogger opens the audit log under dir. It returns nil, after a
// warning on stderr, when the file cannot be opened.
func NewAuditLogger(dir string) *AuditLogger {
	path := filepath.Join(dir, constants.DirName, constants.AuditFileName)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		fmt.Fprintf(os.Stderr, "warning: cannot create audit log directory: %v\n", err)
		return nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: cannot open audit log: %v\n", err)
		return nil
	}
	return &AuditLogger{file: f}
}

// Log appends entry as one JSON line.
func (a *AuditLogger) Log(entry AuditEntry) {
	if a == nil {
		return
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return
	}
	_, _ = a.file.Write(append(data, '\n'))
}

// Close closes the log file.
func (a *AuditLogger) Close() error {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return nil
	}
	err := a.file.Close()
	a.file = nil
	return err
}

// Parameters whose values are logged verbatim.
var auditValueParams = map[string]bool{
	"agents":           true,
	"beta":             true,
	"recovery":         true,
	"contact_distance": true,
	"max_ticks":        true,
	"seed":             true,
	"runs":             true,
	"concurrency":      true,
	"limit":            true,
	"format":           true,
}

// Parameters logged as "(set)" only.
var auditPresenceParams = map[string]bool{
	"gif_path":     true,
	"chart_path":   true,
	"geojson_path": true,
	"output_path":  true,
	"input_path":   true,
	"run_ids":      true,
	"seeds":        true,
	"attractor":    true,
}

// sanitizeToolParams keeps the loggable subset of params. Zero values are
// treated as not provided. A "_param_count" key counts what was provided.
func sanitizeToolParams(params map[string]interface{}) map[string]string {
	if params == nil {
		return nil
	}

	result := make(map[string]string)
	provided := 0
	for key, val := range params {
		if isZeroParam(val) {
			continue
		}
		provided++
		if p, ok := val.(*float64); ok {
			val = *p
		}
		switch {
		case auditValueParams[key]:
			result[key] = fmt.Sprintf("%v", val)
		case auditPresenceParams[key]:
			result[key] = "(set)"
		}
	}
	result["_param_count"] = fmt.Sprintf("%d", provided)
	return result
}

func isZeroParam(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case int:
		return x == 0
	case int64:
		return x == 0
	case float64:
		return x == 0
	case *float64:
		return x == nil
	case []string:
		return len(x) == 0
	case []int64:
		return len(x) == 0
	}
	return false
}

// auditTool logs a finished tool invocation.
func (s *Server) auditTool(tool string, start time.Time, err error, runID string, params map[string]string) {
	entry := AuditEntry{
		Timestamp:  start,
		Tool:       tool,
		DurationMs: time.Since(start).Milliseconds(),
		Status:     "success",
		RunID:      runID,
		Params:     params,
	}
	if err != nil {
		entry.Status = "error"
		entry.Error = err.Error()
	}
	s.auditLogger.Log(entry)
}
