package ipc

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// StatusFile is the name of the snapshot file inside the control dir.
const StatusFile = "status.json"

// StatusSnapshot is the monitor state at a point in time.
type StatusSnapshot struct {
	PID          int       `json:"pid"`
	Enabled      bool      `json:"enabled"`
	State        string    `json:"state"` // "idle" or "running"
	JobID        string    `json:"job_id,omitempty"`
	Path         string    `json:"path,omitempty"`
	Start        float64   `json:"start"`
	SubtitlePath string    `json:"subtitle_path,omitempty"`
	Windows      int       `json:"windows"`
	Records      int       `json:"records"`
	Language     string    `json:"language,omitempty"`
	LastEvent    string    `json:"last_event,omitempty"`
	LastError    string    `json:"last_error,omitempty"`
	Engine       string    `json:"engine"`
	Timestamp    time.Time `json:"timestamp"`
}

// WriteStatus persists status to dir using an atomic write.
func WriteStatus(dir string, status *StatusSnapshot) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return atomicWriteJSON(filepath.Join(dir, StatusFile), status)
}

// ReadStatus loads the snapshot from dir.
func ReadStatus(dir string) (*StatusSnapshot, error) {
	data, err := os.ReadFile(filepath.Join(dir, StatusFile))
	if err != nil {
		return nil, err
	}

	var status StatusSnapshot
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// atomicWriteJSON writes data to a file atomically using temp file + rename
func atomicWriteJSON(path string, data any) error {
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, "status-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpFile != nil {
			_ = tmpFile.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	encoder := json.NewEncoder(tmpFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return err
	}
	if err := tmpFile.Sync(); err != nil {
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	tmpFile = nil // Prevent defer cleanup

	return os.Rename(tmpPath, path)
}
