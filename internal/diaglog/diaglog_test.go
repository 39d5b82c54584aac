package diaglog

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func readEntries(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	var out []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var m map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &m); err != nil {
			t.Fatalf("invalid JSON line %q: %v", scanner.Text(), err)
		}
		out = append(out, m)
	}
	return out
}

func TestLogWritesNDJSON(t *testing.T) {
	t.Setenv(EnvDebug, "true")
	path := filepath.Join(t.TempDir(), "nested", "diag.ndjson")

	l, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Event(ComponentPlayerIPC, EventIPCConnect, "", nil)
	l.Event(ComponentSupervisor, EventJobStart, "job-1", map[string]any{"path": "/a.mkv", "token": "abc"})
	l.Log(LogEntry{Component: ComponentSupervisor, Event: EventJobCancel, SessionID: "job-1", Reason: "preempted"})
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	entries := readEntries(t, path)
	if len(entries) != 3 {
		t.Fatalf("want 3 entries, got %d", len(entries))
	}
	if entries[0]["ts"] == nil {
		t.Error("ts missing")
	}
	if entries[1]["session_id"] != "job-1" {
		t.Errorf("session_id = %v", entries[1]["session_id"])
	}
	payload := entries[1]["payload"].(map[string]any)
	if payload["token"] != redacted {
		t.Errorf("token not redacted: %v", payload["token"])
	}
	if entries[2]["reason"] != "preempted" {
		t.Errorf("reason = %v", entries[2]["reason"])
	}
}

func TestRollingWriterTruncates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roll.ndjson")
	const maxSize = 1024
	rw, err := newRollingWriter(path, maxSize)
	if err != nil {
		t.Fatalf("newRollingWriter: %v", err)
	}
	defer rw.close()

	chunk := []byte(strings.Repeat("x", 512) + "\n")
	for i := 0; i < 3; i++ {
		if _, err := rw.Write(chunk); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() > maxSize {
		t.Errorf("size %d exceeds %d", info.Size(), maxSize)
	}
}

func TestRedact(t *testing.T) {
	in := map[string]any{
		"Authorization": "Bearer x",
		"ok":            "keep",
		"nested":        map[string]any{"password": "p", "n": 1},
		"list":          []any{map[string]any{"secret": "s"}},
		"args":          map[string]string{"api_key": "k", "beam": "5"},
	}
	out := Redact(in).(map[string]any)

	if out["Authorization"] != redacted {
		t.Error("Authorization not redacted")
	}
	if out["ok"] != "keep" {
		t.Error("ok should be preserved")
	}
	if out["nested"].(map[string]any)["password"] != redacted {
		t.Error("nested password not redacted")
	}
	if out["list"].([]any)[0].(map[string]any)["secret"] != redacted {
		t.Error("list secret not redacted")
	}
	args := out["args"].(map[string]any)
	if args["api_key"] != redacted || args["beam"] != "5" {
		t.Errorf("string map redaction wrong: %v", args)
	}
	if in["Authorization"] != "Bearer x" {
		t.Error("input must not be mutated")
	}
}

func TestDisabledLoggerIsNoOp(t *testing.T) {
	t.Setenv(EnvDebug, "")
	path := filepath.Join(t.TempDir(), "noop.ndjson")

	l, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Event(ComponentCore, EventJobStart, "", nil)
	_ = l.Close()

	if l.Enabled() {
		t.Error("logger should be disabled")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("file should not exist when disabled")
	}

	var nilLogger *Logger
	nilLogger.Event(ComponentCore, EventJobStart, "", nil)
}

func TestDefaultPath(t *testing.T) {
	t.Setenv(EnvPath, "/var/tmp/custom.ndjson")
	if got := DefaultPath(); got != "/var/tmp/custom.ndjson" {
		t.Errorf("DefaultPath = %q", got)
	}
	t.Setenv(EnvPath, "")
	if got := DefaultPath(); filepath.Base(got) != "whispersub-diag.ndjson" {
		t.Errorf("DefaultPath = %q", got)
	}
}
