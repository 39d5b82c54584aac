package testutil

import (
	"bytes"
	"log/slog"
	"regexp"
	"strings"
	"sync"
)

// LogCapture collects slog output for assertions. It is safe for use from
// several goroutines.
type LogCapture struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

// NewLogCapture creates an empty capture.
func NewLogCapture() *LogCapture {
	return &LogCapture{}
}

// Logger returns a debug-level text logger writing into the capture.
func (lc *LogCapture) Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(lc, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// Write implements io.Writer.
func (lc *LogCapture) Write(p []byte) (int, error) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.buf.Write(p)
}

// String returns all captured output.
func (lc *LogCapture) String() string {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.buf.String()
}

// Reset clears the capture buffer
func (lc *LogCapture) Reset() {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.buf.Reset()
}

// Contains checks if the log output contains the given substring
func (lc *LogCapture) Contains(substr string) bool {
	return strings.Contains(lc.String(), substr)
}

// ContainsAll checks if the log output contains all given substrings
func (lc *LogCapture) ContainsAll(substrs ...string) bool {
	output := lc.String()
	for _, s := range substrs {
		if !strings.Contains(output, s) {
			return false
		}
	}
	return true
}

// MatchesPattern checks if the log output matches a regex pattern
func (lc *LogCapture) MatchesPattern(pattern string) bool {
	matched, err := regexp.MatchString(pattern, lc.String())
	return err == nil && matched
}

// Count returns the number of occurrences of substr
func (lc *LogCapture) Count(substr string) int {
	return strings.Count(lc.String(), substr)
}

// Lines returns captured output split into non-empty lines
func (lc *LogCapture) Lines() []string {
	var lines []string
	for _, line := range strings.Split(lc.String(), "\n") {
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
