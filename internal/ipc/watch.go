package ipc

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// PollInterval is the fallback polling period of Watch.
const PollInterval = time.Second

// settle gives a writer time to finish before the file is read.
const settle = 50 * time.Millisecond

// Watch calls fn for every command written to dir until ctx is done. It
// uses fsnotify and polls the file as well, switching to polling alone if
// the watcher cannot be created or dies.
func Watch(ctx context.Context, dir string, logger *slog.Logger, fn func(Command)) error {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	dir = filepath.Clean(dir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create control dir: %w", err)
	}
	// Drop anything left over from a previous run.
	if _, err := ReadCommand(dir); err != nil {
		logger.Warn("failed to clear stale command", "error", err)
	}
	cmdPath := filepath.Join(dir, CommandFile)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("fsnotify not available, falling back to polling", "error", err)
		return poll(ctx, dir, logger, fn)
	}
	defer func() {
		if err := watcher.Close(); err != nil {
			logger.Warn("failed to close watcher", "error", err)
		}
	}()
	if err := watcher.Add(dir); err != nil {
		logger.Warn("failed to watch control dir, falling back to polling", "error", err)
		return poll(ctx, dir, logger, fn)
	}
	logger.Debug("command watcher started", "dir", dir, "mode", "fsnotify")

	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()
	lastCheck := time.Now()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				logger.Warn("fsnotify watcher closed, switching to polling")
				return poll(ctx, dir, logger, fn)
			}
			if event.Name == cmdPath && (event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Create)) {
				time.Sleep(settle)
				dispatch(dir, logger, fn)
				lastCheck = time.Now()
			}

		case <-ticker.C:
			if info, err := os.Stat(cmdPath); err == nil && info.ModTime().After(lastCheck) {
				time.Sleep(settle)
				dispatch(dir, logger, fn)
				lastCheck = time.Now()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				logger.Warn("fsnotify error channel closed, switching to polling")
				return poll(ctx, dir, logger, fn)
			}
			logger.Warn("file watcher error", "error", err)
		}
	}
}

func poll(ctx context.Context, dir string, logger *slog.Logger, fn func(Command)) error {
	logger.Debug("command watcher started", "dir", dir, "mode", "polling")
	cmdPath := filepath.Join(dir, CommandFile)
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()
	lastCheck := time.Now()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		info, err := os.Stat(cmdPath)
		if err != nil {
			continue
		}
		if info.ModTime().After(lastCheck) {
			time.Sleep(settle)
			dispatch(dir, logger, fn)
			lastCheck = time.Now()
		}
	}
}

func dispatch(dir string, logger *slog.Logger, fn func(Command)) {
	cmd, err := ReadCommand(dir)
	if err != nil {
		logger.Warn("failed to read command", "error", err)
		return
	}
	if cmd == "" {
		return
	}
	logger.Info("received command", "command", string(cmd))
	fn(cmd)
}
