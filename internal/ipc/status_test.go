package ipc

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestStatusRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "control")
	want := &StatusSnapshot{
		PID:          42,
		Enabled:      true,
		State:        "running",
		JobID:        "job-1",
		Path:         "/media/show.mkv",
		Start:        30,
		SubtitlePath: "/subs/show.whisper.srt",
		Windows:      3,
		Records:      5,
		Language:     "ja",
		Engine:       "local_whisper",
		Timestamp:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	if err := WriteStatus(dir, want); err != nil {
		t.Fatalf("WriteStatus: %v", err)
	}
	got, err := ReadStatus(dir)
	if err != nil {
		t.Fatalf("ReadStatus: %v", err)
	}
	if *got != *want {
		t.Errorf("got %+v\nwant %+v", got, want)
	}

	// No temp files are left behind.
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("dir has %d entries, want 1", len(entries))
	}
}

func TestReadStatusMissing(t *testing.T) {
	if _, err := ReadStatus(t.TempDir()); !os.IsNotExist(err) {
		t.Errorf("err = %v, want not-exist", err)
	}
}
