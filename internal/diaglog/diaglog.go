// Package diaglog writes NDJSON diagnostic records for the player IPC link
// and the job lifecycle. It is enabled by WHISPERSUB_DEBUG=true; otherwise
// every Log call is a no-op and no file is created.
package diaglog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	EnvDebug = "WHISPERSUB_DEBUG"
	EnvPath  = "WHISPERSUB_DIAG_PATH"

	maxLogSize = 10 * 1024 * 1024
)

// Component labels.
const (
	ComponentPlayerIPC  = "player-ipc"
	ComponentSupervisor = "supervisor"
	ComponentPipeline   = "pipeline"
	ComponentEngine     = "engine"
	ComponentCore       = "core"
)

// Event names.
const (
	EventIPCSend       = "ipc_send"
	EventIPCRecv       = "ipc_recv"
	EventIPCConnect    = "ipc_connect"
	EventIPCDisconnect = "ipc_disconnect"
	EventJobStart      = "job_start"
	EventJobCancel     = "job_cancel"
	EventJobComplete   = "job_complete"
	EventJobFailed     = "job_failed"
	EventWindowDone    = "window_done"
	EventEngineHealth  = "engine_health"
)

// LogEntry is one record, written as a single JSON line.
type LogEntry struct {
	Timestamp string `json:"ts"`
	Component string `json:"component"`
	Event     string `json:"event"`
	SessionID string `json:"session_id,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// Logger writes entries to a size-capped NDJSON file. A nil or disabled
// Logger accepts every call.
type Logger struct {
	rw      *rollingWriter
	mu      sync.Mutex
	enabled bool
	path    string
}

// New opens the log at path, or returns a disabled logger when debug mode
// is off.
func New(path string) (*Logger, error) {
	if !IsDebugEnabled() {
		return &Logger{}, nil
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	rw, err := newRollingWriter(path, maxLogSize)
	if err != nil {
		return nil, err
	}
	return &Logger{rw: rw, enabled: true, path: path}, nil
}

// Log redacts the payload and appends entry to the file.
func (l *Logger) Log(entry LogEntry) {
	if l == nil || !l.enabled {
		return
	}
	if entry.Timestamp == "" {
		entry.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if entry.Payload != nil {
		entry.Payload = Redact(entry.Payload)
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.rw.Write(data)
}

// Event is shorthand for Log with the common fields.
func (l *Logger) Event(component, event, sessionID string, payload map[string]any) {
	l.Log(LogEntry{Component: component, Event: event, SessionID: sessionID, Payload: payload})
}

// Enabled reports whether entries are being written.
func (l *Logger) Enabled() bool {
	return l != nil && l.enabled
}

// Path returns the file being written, or "" when disabled.
func (l *Logger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Close flushes and closes the file.
func (l *Logger) Close() error {
	if l == nil || !l.enabled || l.rw == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rw.close()
}

// IsDebugEnabled reports whether WHISPERSUB_DEBUG is "true".
func IsDebugEnabled() bool {
	return os.Getenv(EnvDebug) == "true"
}

// DefaultPath returns WHISPERSUB_DIAG_PATH, falling back to a file in the
// temp directory.
func DefaultPath() string {
	if p := os.Getenv(EnvPath); p != "" {
		return p
	}
	return filepath.Join(os.TempDir(), "whispersub-diag.ndjson")
}

// NewNoOp returns a disabled logger, used when New fails.
func NewNoOp() *Logger {
	return &Logger{}
}
