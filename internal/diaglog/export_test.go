package diaglog

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func seedLog(t *testing.T, n int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.ndjson")
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "{\"ts\":\"2026-01-01T00:00:00Z\",\"component\":\"core\",\"event\":\"e%d\"}\n", i)
	}
	b.WriteString("\n")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExportWritesHeaderAndEntries(t *testing.T) {
	src := seedLog(t, 7)
	dest := t.TempDir()

	path, n, err := Export(src, dest)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if n != 7 {
		t.Errorf("entries = %d, want 7", n)
	}
	if filepath.Dir(path) != dest || !strings.HasPrefix(filepath.Base(path), "whispersub-diag-") {
		t.Errorf("unexpected output path %q", path)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		t.Fatal("empty export")
	}
	var bundle DiagBundle
	if err := json.Unmarshal(scanner.Bytes(), &bundle); err != nil {
		t.Fatalf("header: %v", err)
	}
	if bundle.EntryCount != 7 || bundle.LogFile != src || bundle.GoVersion == "" {
		t.Errorf("bad header: %+v", bundle)
	}
	lines := 0
	for scanner.Scan() {
		lines++
	}
	if lines != 7 {
		t.Errorf("copied %d lines, want 7", lines)
	}
}

func TestExportMissingLog(t *testing.T) {
	_, _, err := Export(filepath.Join(t.TempDir(), "none.ndjson"), t.TempDir())
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("want ErrNotExist, got %v", err)
	}
}
