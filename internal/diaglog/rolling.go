package diaglog

import (
	"io"
	"os"
	"sync"
)

// rollingWriter truncates the file to zero when the next write would push
// it past maxSize, so the newest entries always survive.
type rollingWriter struct {
	mu      sync.Mutex
	f       *os.File
	size    int64
	maxSize int64
}

func newRollingWriter(path string, maxSize int64) (*rollingWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &rollingWriter{f: f, size: info.Size(), maxSize: maxSize}, nil
}

func (rw *rollingWriter) Write(p []byte) (int, error) {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.size+int64(len(p)) > rw.maxSize {
		if err := rw.f.Truncate(0); err != nil {
			return 0, err
		}
		if _, err := rw.f.Seek(0, io.SeekStart); err != nil {
			return 0, err
		}
		rw.size = 0
	}
	n, err := rw.f.Write(p)
	rw.size += int64(n)
	return n, err
}

func (rw *rollingWriter) close() error {
	_ = rw.f.Sync()
	return rw.f.Close()
}
