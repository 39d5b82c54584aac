package diaglog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// Version is set at link time.
var Version = "dev"

// DiagBundle is the header line of an exported bundle.
type DiagBundle struct {
	ExportedAt string `json:"exported_at"`
	Version    string `json:"whispersub_version"`
	GoVersion  string `json:"go_version"`
	OS         string `json:"os"`
	Arch       string `json:"arch"`
	LogFile    string `json:"log_file"`
	EntryCount int    `json:"entry_count"`
}

// Export copies the log at logPath into dest/whispersub-diag-<ts>.ndjson,
// prefixed with a DiagBundle line. Blank lines are dropped. It returns the
// written path and the number of entries copied.
func Export(logPath, dest string) (string, int, error) {
	data, err := os.ReadFile(logPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", 0, fmt.Errorf("log file not found at %s: %w", logPath, os.ErrNotExist)
		}
		return "", 0, fmt.Errorf("read log file: %w", err)
	}

	var lines [][]byte
	for line := range bytes.SplitSeq(data, []byte{'\n'}) {
		if len(bytes.TrimSpace(line)) > 0 {
			lines = append(lines, line)
		}
	}

	outPath := filepath.Join(dest, "whispersub-diag-"+time.Now().UTC().Format("20060102T150405")+".ndjson")
	out, err := os.OpenFile(outPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", 0, fmt.Errorf("create export file: %w", err)
	}
	defer func() { _ = out.Close() }()

	header, err := json.Marshal(DiagBundle{
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
		Version:    Version,
		GoVersion:  runtime.Version(),
		OS:         runtime.GOOS,
		Arch:       runtime.GOARCH,
		LogFile:    logPath,
		EntryCount: len(lines),
	})
	if err != nil {
		return "", 0, err
	}

	w := bufio.NewWriter(out)
	if err := writeLine(w, header); err != nil {
		return "", 0, err
	}
	for _, line := range lines {
		if err := writeLine(w, line); err != nil {
			return "", 0, err
		}
	}
	if err := w.Flush(); err != nil {
		return "", 0, err
	}
	return outPath, len(lines), nil
}

func writeLine(w io.Writer, line []byte) error {
	if _, err := w.Write(line); err != nil {
		return err
	}
	_, err := w.Write([]byte{'\n'})
	return err
}
