// Package audit appends a durable, append-only record of every claim,
// task-status transition, and onboarding-step change any daemon makes
// against the directory store. It is the coordination plane's equivalent of
// an audit trail over optimistic-concurrency outcomes: not graded by any
// invariant directly, but the natural companion to a system whose only
// communication bus is a set of ETag-guarded rows.
package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/basket/shraga/internal/shared"
)

// Entry is one audit-log line.
type Entry struct {
	Timestamp string `json:"timestamp"`
	Daemon    string `json:"daemon"`
	Event     string `json:"event"` // "claim_won", "claim_lost", "status_transition", "onboarding_step", ...
	Table     string `json:"table"`
	RowID     string `json:"row_id"`
	Detail    string `json:"detail"`
	TraceID   string `json:"trace_id,omitempty"`
}

var (
	mu   sync.Mutex
	file *os.File
)

// Init opens (creating if needed) homeDir/logs/audit.jsonl for appending.
func Init(homeDir string) error {
	mu.Lock()
	defer mu.Unlock()
	if file != nil {
		return nil
	}
	logDir := filepath.Join(homeDir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(logDir, "audit.jsonl"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	file = f
	return nil
}

// Close releases the underlying file handle.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if file == nil {
		return nil
	}
	err := file.Close()
	file = nil
	return err
}

// Record appends one audit entry. Safe to call before Init (a no-op in that
// case) so callers never need to guard every call site.
func Record(daemon, event, table, rowID, detail string) {
	RecordTraced("", daemon, event, table, rowID, detail)
}

// RecordTraced is Record with an explicit trace_id for cross-daemon
// correlation of a single poll iteration's audit lines.
func RecordTraced(traceID, daemon, event, table, rowID, detail string) {
	mu.Lock()
	defer mu.Unlock()
	if file == nil {
		return
	}
	e := Entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Daemon:    daemon,
		Event:     event,
		Table:     table,
		RowID:     rowID,
		Detail:    shared.Redact(detail),
		TraceID:   traceID,
	}
	b, err := json.Marshal(e)
	if err != nil {
		return
	}
	_, _ = file.Write(append(b, '\n'))
}
