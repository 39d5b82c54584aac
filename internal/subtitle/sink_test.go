package subtitle

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

const header = "0\n00:00:00,000 --> 00:00:00,500\ngenerated by whispersub\n\n"

func TestFormatTimestamp(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "00:00:00,000"},
		{3661.125, "01:01:01,125"},
		{59.9996, "00:01:00,000"},
		{15.0004, "00:00:15,000"},
		{360000.5, "100:00:00,500"},
		{-1, "00:00:00,000"},
	}
	for _, tt := range tests {
		if got := FormatTimestamp(tt.in); got != tt.want {
			t.Errorf("FormatTimestamp(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestClearIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subs", "show.whisper.srt")
	sink := NewSink(path, 0)

	for i := 0; i < 3; i++ {
		if err := sink.Clear(); err != nil {
			t.Fatalf("Clear: %v", err)
		}
		if got := readFile(t, path); got != header {
			t.Fatalf("after clear %d file = %q", i, got)
		}
		if sink.Next() != 1 {
			t.Fatalf("next = %d, want 1", sink.Next())
		}
	}
}

func TestClearTruncatesPreviousContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.srt")
	sink := NewSink(path, 0)
	if err := sink.Clear(); err != nil {
		t.Fatal(err)
	}
	err := sink.Append(func(s *Session) error {
		_, err := s.Write(1, 2, "old")
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := sink.Clear(); err != nil {
		t.Fatal(err)
	}
	if got := readFile(t, path); got != header {
		t.Fatalf("file = %q", got)
	}

	err = sink.Append(func(s *Session) error {
		idx, err := s.Write(3, 4, "new")
		if idx != 1 {
			t.Errorf("index after clear = %d, want 1", idx)
		}
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestAppendWritesNumberedBlocks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.srt")
	sink := NewSink(path, 0)
	if err := sink.Clear(); err != nil {
		t.Fatal(err)
	}

	err := sink.Append(func(s *Session) error {
		if _, err := s.Write(0.5, 2.25, "  first line "); err != nil {
			return err
		}
		_, err := s.Write(15.2, 3661.125, "second")
		return err
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	err = sink.Append(func(s *Session) error {
		_, err := s.Write(20, 21, "third")
		return err
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	want := header +
		"1\n00:00:00,500 --> 00:00:02,250\nfirst line\n\n" +
		"2\n00:00:15,200 --> 01:01:01,125\nsecond\n\n" +
		"3\n00:00:20,000 --> 00:00:21,000\nthird\n\n"
	if got := readFile(t, path); got != want {
		t.Errorf("file =\n%s\nwant\n%s", got, want)
	}
}

func TestAppendClosesOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.srt")
	sink := NewSink(path, 0)
	if err := sink.Clear(); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("stop")
	err := sink.Append(func(s *Session) error {
		if _, err := s.Write(1, 2, "kept"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if !strings.Contains(readFile(t, path), "kept") {
		t.Error("record written before the error should be flushed")
	}

	// The session was released, so a new one can open.
	if err := sink.Append(func(*Session) error { return nil }); err != nil {
		t.Fatalf("reopen: %v", err)
	}
}

func TestAppendClosesOnPanic(t *testing.T) {
	sink := NewSink(filepath.Join(t.TempDir(), "a.srt"), 0)
	if err := sink.Clear(); err != nil {
		t.Fatal(err)
	}
	func() {
		defer func() { _ = recover() }()
		_ = sink.Append(func(*Session) error { panic("boom") })
	}()
	if err := sink.Append(func(*Session) error { return nil }); err != nil {
		t.Fatalf("session should be released after panic: %v", err)
	}
}

func TestDoubleOpenPanics(t *testing.T) {
	sink := NewSink(filepath.Join(t.TempDir(), "a.srt"), 0)
	if err := sink.Clear(); err != nil {
		t.Fatal(err)
	}
	sess, err := sink.Open()
	if err != nil {
		t.Fatal(err)
	}
	defer sess.Close()

	defer func() {
		if recover() == nil {
			t.Error("expected panic on double open")
		}
	}()
	_, _ = sink.Open()
}

func TestOpenBeforeClear(t *testing.T) {
	sink := NewSink(filepath.Join(t.TempDir(), "a.srt"), 0)
	if _, err := sink.Open(); err == nil {
		t.Fatal("expected error when opening before Clear")
	}
}

func TestWrap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.srt")
	sink := NewSink(path, 12)
	if err := sink.Clear(); err != nil {
		t.Fatal(err)
	}
	err := sink.Append(func(s *Session) error {
		_, err := s.Write(0, 1, "the quick brown fox jumps")
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(readFile(t, path), "the quick\nbrown fox\njumps\n") {
		t.Errorf("text not wrapped:\n%s", readFile(t, path))
	}
}

func TestWriteOnClosedSession(t *testing.T) {
	sink := NewSink(filepath.Join(t.TempDir(), "a.srt"), 0)
	if err := sink.Clear(); err != nil {
		t.Fatal(err)
	}
	sess, err := sink.Open()
	if err != nil {
		t.Fatal(err)
	}
	if err := sess.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := sess.Write(0, 1, "x"); err == nil {
		t.Error("expected error writing to closed session")
	}
	if err := sess.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}
}

func TestClearLeavesFileWorldReadable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "show.whisper.srt")
	if err := NewSink(path, 0).Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := info.Mode().Perm(); got != 0o644 {
		t.Errorf("mode = %v, want 0644", got)
	}
}
