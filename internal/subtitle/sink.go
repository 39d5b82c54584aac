// Package subtitle writes numbered SubRip blocks to a file incrementally,
// so a player can reload the track while later windows are still being
// transcribed.
package subtitle

import (
	"bufio"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mitchellh/go-wordwrap"
)

// HeaderText is the placeholder text of record 0.
const HeaderText = "generated by whispersub"

const fileMode os.FileMode = 0o644

// Sink appends subtitle records to one file. Record 0 is a header written
// by Clear; content records start at 1.
type Sink struct {
	path string
	wrap uint

	mu      sync.Mutex
	next    int
	session *Session
}

// NewSink binds a sink to path. wrap > 0 word-wraps record text at that
// many columns.
func NewSink(path string, wrap int) *Sink {
	return &Sink{path: path, wrap: uint(max(wrap, 0))}
}

// Path returns the output file path.
func (s *Sink) Path() string {
	return s.path
}

// Next returns the index the next record will get.
func (s *Sink) Next() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// Clear replaces the file with only the header record and resets
// numbering, so the next record is 1.
func (s *Sink) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil {
		panic("subtitle: Clear called with an open session")
	}

	var b strings.Builder
	writeBlock(&b, 0, 0, 0.5, HeaderText)
	if err := atomicWrite(s.path, []byte(b.String())); err != nil {
		return err
	}
	s.next = 1
	return nil
}

// Open starts an append session. Opening a second session before the
// first is closed is a programming error and panics.
func (s *Sink) Open() (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil {
		panic("subtitle: session already open for " + s.path)
	}
	if s.next == 0 {
		return nil, errors.New("subtitle: Open called before Clear")
	}
	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_APPEND, fileMode)
	if err != nil {
		return nil, fmt.Errorf("open subtitle file: %w", err)
	}
	s.session = &Session{sink: s, file: f, w: bufio.NewWriter(f)}
	return s.session, nil
}

// Append runs fn inside a session that is closed on every return path,
// including panics in fn.
func (s *Sink) Append(fn func(*Session) error) (err error) {
	sess, err := s.Open()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sess.Close(); err == nil {
			err = cerr
		}
	}()
	return fn(sess)
}

// Session is an open append handle.
type Session struct {
	sink   *Sink
	file   *os.File
	w      *bufio.Writer
	closed bool
}

// Write appends one record and returns its index. Times are absolute
// seconds.
func (sess *Session) Write(start, end float64, text string) (int, error) {
	if sess.closed {
		return 0, errors.New("subtitle: write on closed session")
	}
	text = strings.TrimSpace(text)
	if sess.sink.wrap > 0 {
		text = wordwrap.WrapString(text, sess.sink.wrap)
	}

	sess.sink.mu.Lock()
	index := sess.sink.next
	sess.sink.next++
	sess.sink.mu.Unlock()

	if _, err := sess.w.WriteString(formatBlock(index, start, end, text)); err != nil {
		return index, fmt.Errorf("write subtitle %d: %w", index, err)
	}
	return index, nil
}

// Close flushes and syncs the file so readers see every record written.
func (sess *Session) Close() error {
	if sess.closed {
		return nil
	}
	sess.closed = true
	err := sess.w.Flush()
	if serr := sess.file.Sync(); err == nil {
		err = serr
	}
	if cerr := sess.file.Close(); err == nil {
		err = cerr
	}

	sess.sink.mu.Lock()
	sess.sink.session = nil
	sess.sink.mu.Unlock()
	if err != nil {
		return fmt.Errorf("close subtitle file: %w", err)
	}
	return nil
}

// FormatTimestamp renders seconds as HH:MM:SS,mmm. Hours do not wrap.
func FormatTimestamp(seconds float64) string {
	ms := int64(math.Round(seconds * 1000))
	if ms < 0 {
		ms = 0
	}
	h := ms / 3_600_000
	m := ms / 60_000 % 60
	s := ms / 1000 % 60
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms%1000)
}

func formatBlock(index int, start, end float64, text string) string {
	var b strings.Builder
	writeBlock(&b, index, start, end, text)
	return b.String()
}

func writeBlock(b *strings.Builder, index int, start, end float64, text string) {
	fmt.Fprintf(b, "%d\n%s --> %s\n%s\n\n", index, FormatTimestamp(start), FormatTimestamp(end), text)
}

func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".subtitle-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write subtitle header: %w", err)
	}
	// CreateTemp uses 0600; the player and other users must be able to read.
	if err := tmp.Chmod(fileMode); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename subtitle file: %w", err)
	}
	return nil
}
