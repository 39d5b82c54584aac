// Package router connects the player and the control file to the
// supervisor, and reflects job progress back to the player.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/tiroq/whispersub/internal/eventfeed"
	"github.com/tiroq/whispersub/internal/ipc"
	"github.com/tiroq/whispersub/internal/mpv"
	"github.com/tiroq/whispersub/internal/pipeline"
	"github.com/tiroq/whispersub/internal/supervisor"
)

// Player is the part of the mpv client the router drives.
type Player interface {
	BindEvent(name string, fn func(mpv.Event))
	BindKey(ctx context.Context, binding string, fn func()) error
	Command(ctx context.Context, args ...any) (json.RawMessage, error)
	ShowText(ctx context.Context, text string) error
}

// Controller is the supervisor surface the router uses.
type Controller interface {
	PlaybackStarted()
	PlaybackEnded()
	SetEnabled(enabled bool)
	Toggle() bool
	Snapshot() supervisor.Snapshot
}

// Publisher receives feed messages. *eventfeed.Hub implements it.
type Publisher interface {
	Publish(msg eventfeed.Message)
}

// Options configures a Router.
type Options struct {
	Player        Player
	ToggleBinding string
	// StatusDir receives status.json after every change; empty disables it.
	StatusDir string
	Engine    string
	Feed      Publisher
	// Quit is called for the quit command.
	Quit   func()
	Logger *slog.Logger
}

// Router implements supervisor.Observer.
type Router struct {
	opts   Options
	logger *slog.Logger
	ctrl   Controller

	mu           sync.Mutex
	subtitlePath string
	windows      int
	records      int
	language     string
	lastEvent    string
	lastError    string
}

var _ supervisor.Observer = (*Router)(nil)

// New creates a router. Call Attach before any event can arrive.
func New(opts Options) *Router {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.Quit == nil {
		opts.Quit = func() {}
	}
	return &Router{opts: opts, logger: logger}
}

// Attach binds player events and the toggle key to ctrl.
func (r *Router) Attach(ctx context.Context, ctrl Controller) error {
	r.ctrl = ctrl
	p := r.opts.Player
	p.BindEvent("start-file", func(mpv.Event) { r.ctrl.PlaybackStarted() })
	p.BindEvent("end-file", func(mpv.Event) { r.ctrl.PlaybackEnded() })
	if r.opts.ToggleBinding != "" {
		if err := p.BindKey(ctx, r.opts.ToggleBinding, r.Toggle); err != nil {
			return err
		}
	}
	r.WriteStatus()
	return nil
}

// Toggle flips auto-start and tells the viewer.
func (r *Router) Toggle() {
	r.announce(r.ctrl.Toggle())
}

func (r *Router) announce(enabled bool) {
	msg := "disabling whispersub"
	if enabled {
		msg = "enabling whispersub"
	}
	r.logger.Info(msg)
	r.show(msg)
	r.WriteStatus()
}

// HandleCommand applies a control-file command.
func (r *Router) HandleCommand(cmd ipc.Command) {
	r.logger.Info("control command", "command", string(cmd))
	switch cmd {
	case ipc.CmdStart:
		r.ctrl.SetEnabled(true)
		r.announce(true)
	case ipc.CmdStop:
		r.ctrl.SetEnabled(false)
		r.announce(false)
	case ipc.CmdToggle:
		r.Toggle()
	case ipc.CmdRestart:
		r.ctrl.PlaybackStarted()
	case ipc.CmdQuit:
		r.opts.Quit()
	default:
		r.logger.Warn("unknown control command", "command", string(cmd))
	}
}

// JobStarted implements supervisor.Observer.
func (r *Router) JobStarted(job supervisor.Job) {
	r.mu.Lock()
	r.subtitlePath, r.windows, r.records, r.language = "", 0, 0, job.Language
	r.lastEvent, r.lastError = "started", ""
	r.mu.Unlock()
	r.publish(eventfeed.Message{Type: "started", Job: job.ID, Path: job.Path, Start: &job.Start, Time: time.Now()})
	r.WriteStatus()
}

// JobEvent implements supervisor.Observer.
func (r *Router) JobEvent(job supervisor.Job, ev pipeline.Event) {
	switch e := ev.(type) {
	case pipeline.SinkCreated:
		r.mu.Lock()
		r.subtitlePath = e.Path
		r.mu.Unlock()
		r.command("sub-add", e.Path)
	case pipeline.SegmentWritten:
		r.command("sub-reload")
	case pipeline.Completed:
		r.show(fmt.Sprintf("completed whisper for %s", job.Path))
	}
	r.mu.Lock()
	r.lastEvent = pipeline.EventName(ev)
	if _, ok := ev.(pipeline.SegmentWritten); ok {
		r.records++
	}
	r.mu.Unlock()
	r.publish(eventfeed.FromEvent(job.ID, ev))
	r.WriteStatus()
}

// JobFinished implements supervisor.Observer.
func (r *Router) JobFinished(job supervisor.Job, summary pipeline.Summary, err error) {
	msg := eventfeed.Message{Job: job.ID, Path: summary.SubtitlePath, Time: time.Now()}
	r.mu.Lock()
	r.windows, r.records = summary.Windows, summary.Records
	if summary.Language != "" {
		r.language = summary.Language
	}
	switch {
	case err != nil:
		r.lastEvent, r.lastError = "failed", err.Error()
		msg.Type, msg.Error = "failed", err.Error()
	case summary.Cancelled:
		r.lastEvent = "cancelled"
		msg.Type = "cancelled"
	}
	r.mu.Unlock()

	if err != nil {
		r.show(fmt.Sprintf("whispersub failed: %v", err))
	}
	if msg.Type != "" {
		r.publish(msg)
	}
	r.WriteStatus()
}

// WriteStatus persists the current snapshot.
func (r *Router) WriteStatus() {
	if r.opts.StatusDir == "" || r.ctrl == nil {
		return
	}
	snap := r.ctrl.Snapshot()
	status := &ipc.StatusSnapshot{
		PID:       os.Getpid(),
		Enabled:   snap.Enabled,
		State:     snap.State.String(),
		Engine:    r.opts.Engine,
		Timestamp: time.Now(),
	}
	if snap.Job != nil {
		status.JobID = snap.Job.ID
		status.Path = snap.Job.Path
		status.Start = snap.Job.Start
	}
	r.mu.Lock()
	status.SubtitlePath = r.subtitlePath
	status.Windows = r.windows
	status.Records = r.records
	status.Language = r.language
	status.LastEvent = r.lastEvent
	status.LastError = r.lastError
	r.mu.Unlock()

	if err := ipc.WriteStatus(r.opts.StatusDir, status); err != nil {
		r.logger.Warn("failed to write status", "error", err)
	}
}

func (r *Router) command(args ...any) {
	if _, err := r.opts.Player.Command(context.Background(), args...); err != nil {
		r.logger.Warn("player command failed", "command", args[0], "error", err)
	}
}

func (r *Router) show(text string) {
	if err := r.opts.Player.ShowText(context.Background(), text); err != nil {
		r.logger.Warn("player show-text failed", "error", err)
	}
}

func (r *Router) publish(msg eventfeed.Message) {
	if r.opts.Feed != nil {
		r.opts.Feed.Publish(msg)
	}
}
