package supervisor

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/tiroq/whispersub/internal/asr"
	"github.com/tiroq/whispersub/internal/audio"
	"github.com/tiroq/whispersub/internal/pipeline"
	"github.com/tiroq/whispersub/testutil"
)

const wait = 2 * time.Second

type fakePlayer struct {
	mu      sync.Mutex
	path    string
	pos     float64
	pathErr error
	posErr  error
}

func (p *fakePlayer) set(path string, pos float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.path, p.pos = path, pos
}

func (p *fakePlayer) Path() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.path, p.pathErr
}

func (p *fakePlayer) Position() (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pos, p.posErr
}

// gatedRunner emits one segment per window and blocks before each window
// until the gate yields.
type gatedRunner struct {
	mu         sync.Mutex
	started    []pipeline.Job
	running    int
	maxRunning int
	windows    int
	gate       chan struct{}
}

func newGatedRunner(windows int) *gatedRunner {
	return &gatedRunner{windows: windows, gate: make(chan struct{})}
}

func (r *gatedRunner) Run(ctx context.Context, job pipeline.Job, emit func(pipeline.Event)) (pipeline.Summary, error) {
	r.mu.Lock()
	r.started = append(r.started, job)
	r.running++
	r.maxRunning = max(r.maxRunning, r.running)
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.running--
		r.mu.Unlock()
	}()

	var summary pipeline.Summary
	for w := range r.windows {
		if job.Token.Cancelled() {
			summary.Cancelled = true
			return summary, nil
		}
		select {
		case <-r.gate:
		case <-ctx.Done():
			return summary, ctx.Err()
		}
		summary.Windows++
		emit(pipeline.SegmentWritten{Index: w + 1})
	}
	emit(pipeline.Completed{})
	return summary, nil
}

func (r *gatedRunner) jobs() []pipeline.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]pipeline.Job(nil), r.started...)
}

type finished struct {
	job     Job
	summary pipeline.Summary
	err     error
}

type recordingObserver struct {
	mu       sync.Mutex
	started  []Job
	events   []pipeline.Event
	finished chan finished
}

func newObserver() *recordingObserver {
	return &recordingObserver{finished: make(chan finished, 16)}
}

func (o *recordingObserver) JobStarted(job Job) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = append(o.started, job)
}

func (o *recordingObserver) JobEvent(_ Job, ev pipeline.Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, ev)
}

func (o *recordingObserver) JobFinished(job Job, summary pipeline.Summary, err error) {
	o.finished <- finished{job, summary, err}
}

func (o *recordingObserver) eventNames() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	var names []string
	for _, ev := range o.events {
		names = append(names, pipeline.EventName(ev))
	}
	return names
}

func newSupervisor(t *testing.T, player Player, runner Runner, obs Observer) *Supervisor {
	t.Helper()
	s := New(Options{Player: player, Runner: runner, Observer: obs, Language: "ja"})
	t.Cleanup(s.Close)
	return s
}

func TestTokenCancel(t *testing.T) {
	tok := NewToken()
	if tok.Cancelled() {
		t.Fatal("new token is cancelled")
	}
	if !tok.Cancel() {
		t.Error("first Cancel should report true")
	}
	if tok.Cancel() {
		t.Error("second Cancel should report false")
	}
	if !tok.Cancelled() {
		t.Error("token not cancelled after Cancel")
	}
}

func TestPlaybackStartedRunsJob(t *testing.T) {
	runner := newGatedRunner(2)
	close(runner.gate)
	obs := newObserver()
	s := newSupervisor(t, &fakePlayer{path: "/media/a.mkv", pos: 42}, runner, obs)

	s.PlaybackStarted()
	got := testutil.Receive(t, obs.finished, wait, "job finished")

	if got.err != nil {
		t.Fatalf("job error: %v", got.err)
	}
	if got.job.Path != "/media/a.mkv" || got.job.Start != 42 || got.job.Language != "ja" {
		t.Errorf("job = %+v", got.job)
	}
	if got.job.ID == "" {
		t.Error("job has no ID")
	}
	names := obs.eventNames()
	if len(names) != 3 || names[2] != "completed" {
		t.Errorf("events = %v", names)
	}
	testutil.WaitForCondition(t, func() bool { return s.State() == Idle }, wait, "state returns to idle")
}

func TestPreemptionCancelsWithoutWaiting(t *testing.T) {
	runner := newGatedRunner(3)
	player := &fakePlayer{path: "/media/a.mkv"}
	obs := newObserver()
	s := newSupervisor(t, player, runner, obs)

	s.PlaybackStarted()
	testutil.WaitForCondition(t, func() bool { return len(runner.jobs()) == 1 }, wait, "first job started")
	first := runner.jobs()[0]

	player.set("/media/b.mkv", 10)
	s.PlaybackStarted()

	if !first.Token.Cancelled() {
		t.Fatal("first job's token not set by PlaybackStarted")
	}
	if s.State() != Running {
		t.Error("state should stay running until the worker observes the token")
	}

	// Let the first job finish its current window; it then stops.
	runner.gate <- struct{}{}
	got := testutil.Receive(t, obs.finished, wait, "first job finished")
	if got.job.Path != "/media/a.mkv" || !got.summary.Cancelled || got.summary.Windows != 1 {
		t.Errorf("first job result = %+v", got)
	}

	testutil.WaitForCondition(t, func() bool { return len(runner.jobs()) == 2 }, wait, "second job started")
	second := runner.jobs()[1]
	if second.Source != "/media/b.mkv" || second.Start != 10 {
		t.Errorf("second job = %+v", second)
	}
	snap := s.Snapshot()
	if snap.State != Running || snap.Job == nil || snap.Job.Path != "/media/b.mkv" {
		t.Errorf("snapshot = %+v", snap)
	}

	runner.mu.Lock()
	defer runner.mu.Unlock()
	if runner.maxRunning != 1 {
		t.Errorf("max concurrent jobs = %d, want 1", runner.maxRunning)
	}
}

func TestQueuedJobReportsRunning(t *testing.T) {
	runner := newGatedRunner(3)
	player := &fakePlayer{path: "/media/a.mkv"}
	obs := newObserver()
	s := newSupervisor(t, player, runner, obs)

	s.PlaybackStarted()
	if s.State() != Running {
		t.Fatal("state should be running as soon as the job is submitted")
	}
	testutil.WaitForCondition(t, func() bool { return len(runner.jobs()) == 1 }, wait, "first job started")

	// The worker is blocked inside the first job, so the second stays queued.
	player.set("/media/b.mkv", 5)
	s.PlaybackStarted()
	snap := s.Snapshot()
	if snap.State != Running {
		t.Errorf("state = %v, want running while a job is queued", snap.State)
	}
	if snap.Job == nil || snap.Job.Path != "/media/b.mkv" || snap.Job.Start != 5 {
		t.Errorf("snapshot job = %+v, want the queued job", snap.Job)
	}

	// Ending playback cancels the queued job; the preempted one is still
	// finishing its window.
	s.PlaybackEnded()
	if snap := s.Snapshot(); snap.State != Running || snap.Job == nil || snap.Job.Path != "/media/a.mkv" {
		t.Errorf("snapshot while preempted job drains = %+v", snap)
	}

	runner.gate <- struct{}{}
	testutil.Receive(t, obs.finished, wait, "first job finished")
	testutil.WaitForCondition(t, func() bool { return s.State() == Idle }, wait, "idle after drain")
	if n := len(runner.jobs()); n != 1 {
		t.Errorf("runner saw %d jobs, want 1", n)
	}
}

func TestPlaybackEndedReturnsToIdle(t *testing.T) {
	runner := newGatedRunner(5)
	obs := newObserver()
	s := newSupervisor(t, &fakePlayer{path: "/media/a.mkv"}, runner, obs)

	s.PlaybackStarted()
	testutil.WaitForCondition(t, func() bool { return s.State() == Running }, wait, "job running")

	s.PlaybackEnded()
	if s.State() != Running {
		t.Error("PlaybackEnded should not wait for the worker")
	}
	runner.gate <- struct{}{}

	got := testutil.Receive(t, obs.finished, wait, "job finished")
	if !got.summary.Cancelled {
		t.Errorf("summary = %+v, want cancelled", got.summary)
	}
	testutil.WaitForCondition(t, func() bool { return s.State() == Idle }, wait, "state returns to idle")
}

func TestDisabledIgnoresPlayback(t *testing.T) {
	runner := newGatedRunner(1)
	close(runner.gate)
	obs := newObserver()
	s := newSupervisor(t, &fakePlayer{path: "/media/a.mkv"}, runner, obs)

	s.SetEnabled(false)
	s.PlaybackStarted()
	time.Sleep(50 * time.Millisecond)
	if n := len(runner.jobs()); n != 0 {
		t.Fatalf("%d jobs started while disabled", n)
	}

	if !s.Toggle() {
		t.Fatal("Toggle should enable")
	}
	testutil.Receive(t, obs.finished, wait, "job after enabling")
	if !s.Enabled() {
		t.Error("Enabled() = false after toggle")
	}
}

func TestDisablingCancelsRunningJob(t *testing.T) {
	runner := newGatedRunner(3)
	obs := newObserver()
	s := newSupervisor(t, &fakePlayer{path: "/media/a.mkv"}, runner, obs)

	s.PlaybackStarted()
	testutil.WaitForCondition(t, func() bool { return len(runner.jobs()) == 1 }, wait, "job started")
	if s.Toggle() {
		t.Fatal("Toggle should disable")
	}
	if !runner.jobs()[0].Token.Cancelled() {
		t.Error("disabling did not cancel the job")
	}
	runner.gate <- struct{}{}
	got := testutil.Receive(t, obs.finished, wait, "job finished")
	if !got.summary.Cancelled {
		t.Errorf("summary = %+v", got.summary)
	}
}

func TestPlayerUnavailable(t *testing.T) {
	tests := []struct {
		name      string
		player    *fakePlayer
		wantJob   bool
		wantStart float64
	}{
		{"path error", &fakePlayer{pathErr: errors.New("property unavailable")}, false, 0},
		{"empty path", &fakePlayer{}, false, 0},
		{"position error starts at zero", &fakePlayer{path: "/media/a.mkv", pos: 99, posErr: errors.New("unavailable")}, true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := newGatedRunner(1)
			close(runner.gate)
			obs := newObserver()
			s := newSupervisor(t, tt.player, runner, obs)

			s.PlaybackStarted()
			if !tt.wantJob {
				time.Sleep(50 * time.Millisecond)
				if n := len(runner.jobs()); n != 0 {
					t.Fatalf("%d jobs started", n)
				}
				if s.State() != Idle {
					t.Error("state should stay idle")
				}
				return
			}
			got := testutil.Receive(t, obs.finished, wait, "job finished")
			if got.job.Start != tt.wantStart {
				t.Errorf("start = %v, want %v", got.job.Start, tt.wantStart)
			}
		})
	}
}

type failingTranscriber struct{}

func (failingTranscriber) Transcribe(context.Context, audio.Window, string) ([]asr.Segment, string, error) {
	return nil, "", errors.New("engine exploded")
}

func TestEngineFailureEndsIdle(t *testing.T) {
	out := filepath.Join(t.TempDir(), "a.whisper.srt")
	runner := &pipeline.Runner{
		Decoder:       &testutil.ToneDecoder{Length: 22},
		Transcriber:   failingTranscriber{},
		SubtitlePath:  func(string) string { return out },
		ChunkDuration: 15,
	}
	obs := newObserver()
	s := newSupervisor(t, &fakePlayer{path: "/media/a.mkv"}, runner, obs)

	s.PlaybackStarted()
	got := testutil.Receive(t, obs.finished, wait, "job finished")
	testutil.AssertErrorContains(t, got.err, "engine exploded", "job error")
	testutil.WaitForCondition(t, func() bool { return s.State() == Idle }, wait, "state returns to idle")

	names := obs.eventNames()
	if len(names) != 1 || names[0] != "sink-created" {
		t.Errorf("events = %v", names)
	}

	// The supervisor keeps accepting work after a failure.
	s.PlaybackStarted()
	testutil.Receive(t, obs.finished, wait, "second job finished")
}

type panickingRunner struct{}

func (panickingRunner) Run(context.Context, pipeline.Job, func(pipeline.Event)) (pipeline.Summary, error) {
	panic("boom")
}

func TestPanicIsRecovered(t *testing.T) {
	obs := newObserver()
	s := newSupervisor(t, &fakePlayer{path: "/media/a.mkv"}, panickingRunner{}, obs)

	s.PlaybackStarted()
	got := testutil.Receive(t, obs.finished, wait, "job finished")
	testutil.AssertErrorContains(t, got.err, "boom", "panic error")
	testutil.WaitForCondition(t, func() bool { return s.State() == Idle }, wait, "state returns to idle")
}

func TestQueuedCancelledJobIsSkipped(t *testing.T) {
	runner := newGatedRunner(2)
	player := &fakePlayer{path: "/media/a.mkv"}
	obs := newObserver()
	s := newSupervisor(t, player, runner, obs)

	s.PlaybackStarted()
	testutil.WaitForCondition(t, func() bool { return len(runner.jobs()) == 1 }, wait, "first job started")

	// Queue a second job behind the busy worker, then end playback.
	player.set("/media/b.mkv", 0)
	s.PlaybackStarted()
	s.PlaybackEnded()

	runner.gate <- struct{}{}
	testutil.Receive(t, obs.finished, wait, "first job finished")
	testutil.WaitForCondition(t, func() bool { return s.State() == Idle }, wait, "state returns to idle")
	time.Sleep(50 * time.Millisecond)

	if n := len(runner.jobs()); n != 1 {
		t.Errorf("runner saw %d jobs, want 1", n)
	}
}

func TestCloseStopsBlockedJob(t *testing.T) {
	runner := newGatedRunner(2)
	obs := newObserver()
	s := New(Options{Player: &fakePlayer{path: "/media/a.mkv"}, Runner: runner, Observer: obs})

	s.PlaybackStarted()
	testutil.WaitForCondition(t, func() bool { return s.State() == Running }, wait, "job running")

	done := make(chan struct{})
	go func() {
		s.Close()
		close(done)
	}()
	testutil.Receive(t, done, wait, "Close returned")
	got := testutil.Receive(t, obs.finished, wait, "job finished")
	if got.err != nil || !got.summary.Cancelled {
		t.Errorf("result = %+v", got)
	}
}
