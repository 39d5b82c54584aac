// Package supervisor owns the single transcription worker and decides,
// from playback events, which job it should be running.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tiroq/whispersub/internal/diaglog"
	"github.com/tiroq/whispersub/internal/pipeline"
)

// State is the worker state.
type State int

const (
	Idle State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "idle"
}

// Job is one transcription run.
type Job struct {
	ID       string
	Path     string
	Start    float64
	Language string
	Token    *Token
	Created  time.Time
}

// Player exposes the playback properties a job starts from.
type Player interface {
	Path() (string, error)
	Position() (float64, error)
}

// Runner executes a job on the worker.
type Runner interface {
	Run(ctx context.Context, job pipeline.Job, emit func(pipeline.Event)) (pipeline.Summary, error)
}

// Observer is notified from the worker goroutine. Implementations must not
// block for long.
type Observer interface {
	JobStarted(job Job)
	JobEvent(job Job, ev pipeline.Event)
	JobFinished(job Job, summary pipeline.Summary, err error)
}

// Snapshot is a consistent view of the supervisor.
type Snapshot struct {
	Enabled bool
	State   State
	Job     *Job
}

// Options configures a Supervisor.
type Options struct {
	Player   Player
	Runner   Runner
	Observer Observer
	// Language is the configured hint copied into every job.
	Language string
	Logger   *slog.Logger
	Diag     *diaglog.Logger
}

// Supervisor runs at most one job at a time. Starting a job cancels the
// previous one without waiting for it; the preempted worker finishes the
// window it is on and then stops.
type Supervisor struct {
	opts   Options
	logger *slog.Logger

	mu      sync.Mutex
	enabled bool
	current *Job
	pending *Job
	active  *Job

	wake   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New starts the worker goroutine. Auto-start is enabled.
func New(opts Options) *Supervisor {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Supervisor{
		opts:    opts,
		logger:  logger,
		enabled: true,
		wake:    make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go s.worker()
	return s
}

// PlaybackStarted cancels any current job and, when enabled, starts a new
// one from the player's current path and position. If the path cannot be
// read no job is started.
func (s *Supervisor) PlaybackStarted() {
	s.mu.Lock()
	s.cancelLocked("preempted")
	enabled := s.enabled
	s.mu.Unlock()
	if !enabled {
		return
	}

	path, err := s.opts.Player.Path()
	if err != nil || path == "" {
		s.logger.Debug("no playback path, staying idle", "error", err)
		return
	}
	position, err := s.opts.Player.Position()
	if err != nil {
		position = 0
	}

	job := &Job{
		ID:       uuid.NewString(),
		Path:     path,
		Start:    position,
		Language: s.opts.Language,
		Token:    NewToken(),
		Created:  time.Now(),
	}

	s.mu.Lock()
	// A concurrent event may have queued a job while the player was queried.
	s.cancelLocked("preempted")
	s.current = job
	s.pending = job
	s.mu.Unlock()

	s.logger.Info("job queued", "job", job.ID, "path", path, "start", position)
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// PlaybackEnded cancels the current job. The worker returns to Idle when
// it next checks the token.
func (s *Supervisor) PlaybackEnded() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked("playback ended")
}

// SetEnabled switches auto-start. Disabling cancels the current job;
// enabling starts one from the current player state.
func (s *Supervisor) SetEnabled(enabled bool) {
	s.mu.Lock()
	s.enabled = enabled
	if !enabled {
		s.cancelLocked("disabled")
	}
	s.mu.Unlock()
	if enabled {
		s.PlaybackStarted()
	}
}

// Toggle flips auto-start and returns the new setting.
func (s *Supervisor) Toggle() bool {
	s.mu.Lock()
	enabled := !s.enabled
	s.mu.Unlock()
	s.SetEnabled(enabled)
	return enabled
}

// Enabled reports whether auto-start is on.
func (s *Supervisor) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// State reports Running from the moment a job is submitted until the
// worker has finished with it.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Supervisor) stateLocked() State {
	if s.active != nil || (s.pending != nil && !s.pending.Token.Cancelled()) {
		return Running
	}
	return Idle
}

// Snapshot returns the enabled flag, state and job. The job is the live
// one, queued or running; while a preempted job finishes its window with
// nothing queued behind it, that job is reported.
func (s *Supervisor) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{Enabled: s.enabled, State: s.stateLocked()}
	if snap.State == Idle {
		return snap
	}
	job := s.current
	if job == nil {
		job = s.active
	}
	if job != nil {
		copied := *job
		snap.Job = &copied
	}
	return snap
}

// Close cancels the current job, aborts any blocking call on the worker and
// waits for it to exit.
func (s *Supervisor) Close() {
	s.mu.Lock()
	s.cancelLocked("shutdown")
	s.mu.Unlock()
	s.cancel()
	<-s.done
}

func (s *Supervisor) cancelLocked(reason string) {
	if s.current == nil {
		return
	}
	job := s.current
	s.current = nil
	if job.Token.Cancel() {
		s.logger.Info("job cancelled", "job", job.ID, "reason", reason)
		s.opts.Diag.Log(diaglog.LogEntry{
			Component: diaglog.ComponentSupervisor,
			Event:     diaglog.EventJobCancel,
			SessionID: job.ID,
			Reason:    reason,
		})
	}
}

func (s *Supervisor) worker() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.wake:
		}

		// The job moves from pending to active under one lock so State never
		// reads Idle in between.
		s.mu.Lock()
		job := s.pending
		s.pending = nil
		skip := job != nil && job.Token.Cancelled()
		if job != nil && !skip {
			s.active = job
		}
		s.mu.Unlock()
		if job == nil {
			continue
		}
		if skip {
			s.logger.Debug("skipping cancelled job", "job", job.ID)
			continue
		}
		s.run(job)
	}
}

// run executes a job the worker has already marked active.
func (s *Supervisor) run(job *Job) {
	snapshot := *job
	s.logger.Info("job started", "job", job.ID, "path", job.Path, "start", job.Start)
	s.opts.Diag.Event(diaglog.ComponentSupervisor, diaglog.EventJobStart, job.ID, map[string]any{
		"path": job.Path, "start": job.Start, "language": job.Language,
	})
	if s.opts.Observer != nil {
		s.opts.Observer.JobStarted(snapshot)
	}

	summary, err := s.execute(job)

	s.mu.Lock()
	s.active = nil
	if s.current == job {
		s.current = nil
	}
	s.mu.Unlock()

	switch {
	case err != nil:
		s.logger.Error("job failed", "job", job.ID, "path", job.Path, "windows", summary.Windows, "error", err)
		s.opts.Diag.Log(diaglog.LogEntry{
			Component: diaglog.ComponentSupervisor,
			Event:     diaglog.EventJobFailed,
			SessionID: job.ID,
			Reason:    err.Error(),
		})
	case summary.Cancelled:
		s.logger.Info("job stopped", "job", job.ID, "windows", summary.Windows)
	default:
		s.logger.Info("job completed", "job", job.ID, "windows", summary.Windows, "records", summary.Records, "subtitles", summary.SubtitlePath)
		s.opts.Diag.Event(diaglog.ComponentSupervisor, diaglog.EventJobComplete, job.ID, map[string]any{
			"windows": summary.Windows, "records": summary.Records,
		})
	}
	if s.opts.Observer != nil {
		s.opts.Observer.JobFinished(snapshot, summary, err)
	}
}

// execute runs the pipeline and converts a panic into an error so one bad
// job cannot take the process down.
func (s *Supervisor) execute(job *Job) (summary pipeline.Summary, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()

	emit := func(ev pipeline.Event) {
		if s.opts.Observer != nil {
			s.opts.Observer.JobEvent(*job, ev)
		}
	}
	summary, err = s.opts.Runner.Run(s.ctx, pipeline.Job{
		ID:       job.ID,
		Source:   job.Path,
		Start:    job.Start,
		Language: job.Language,
		Token:    job.Token,
	}, emit)
	if err != nil && errors.Is(err, context.Canceled) && s.ctx.Err() != nil {
		summary.Cancelled = true
		return summary, nil
	}
	return summary, err
}
