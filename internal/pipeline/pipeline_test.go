package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/tiroq/whispersub/internal/asr"
	"github.com/tiroq/whispersub/internal/audio"
	"github.com/tiroq/whispersub/testutil"
)

type flag struct{ v atomic.Bool }

func (f *flag) Cancelled() bool { return f.v.Load() }

// scriptedTranscriber returns one segment per window and can fail on a
// given call.
type scriptedTranscriber struct {
	calls    int
	failOn   int
	language string
	hints    []string
}

func (s *scriptedTranscriber) Transcribe(_ context.Context, w audio.Window, hint string) ([]asr.Segment, string, error) {
	s.calls++
	s.hints = append(s.hints, hint)
	if s.calls == s.failOn {
		return nil, "", errors.New("engine exploded")
	}
	return []asr.Segment{{Start: 0.5, End: 2.0, Text: " window text"}}, s.language, nil
}

func newRunner(t *testing.T, length float64, tr Transcriber) (*Runner, string) {
	t.Helper()
	out := filepath.Join(t.TempDir(), "show.whisper.srt")
	return &Runner{
		Decoder:       &testutil.ToneDecoder{Length: length},
		Transcriber:   tr,
		SubtitlePath:  func(string) string { return out },
		ChunkDuration: 15,
	}, out
}

func records(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return strings.Split(strings.TrimSpace(string(data)), "\n\n")
}

func TestRunWritesEveryWindow(t *testing.T) {
	tr := &scriptedTranscriber{}
	runner, out := newRunner(t, 22, tr)

	var events []Event
	summary, err := runner.Run(context.Background(), Job{ID: "j1", Source: "/media/show.mkv"}, func(e Event) {
		events = append(events, e)
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	recs := records(t, out)
	if len(recs) != 3 {
		t.Fatalf("got %d records, want header + 2:\n%v", len(recs), recs)
	}
	if !strings.HasPrefix(recs[1], "1\n00:00:00,500 --> 00:00:02,000\nwindow text") {
		t.Errorf("record 1 = %q", recs[1])
	}
	if !strings.HasPrefix(recs[2], "2\n00:00:15,500 --> 00:00:17,000") {
		t.Errorf("record 2 = %q", recs[2])
	}

	names := make([]string, len(events))
	for i, e := range events {
		names[i] = EventName(e)
	}
	want := "sink-created segment segment completed"
	if strings.Join(names, " ") != want {
		t.Errorf("events = %v, want %s", names, want)
	}
	if sc := events[0].(SinkCreated); sc.Path != out {
		t.Errorf("sink-created path = %q", sc.Path)
	}
	if sw := events[2].(SegmentWritten); sw.Index != 2 || sw.Start < 15.0 {
		t.Errorf("second segment = %+v", sw)
	}
	if summary.Windows != 2 || summary.Records != 2 || summary.Cancelled {
		t.Errorf("summary = %+v", summary)
	}
}

func TestRunEngineFailureKeepsEarlierRecords(t *testing.T) {
	tr := &scriptedTranscriber{failOn: 2}
	runner, out := newRunner(t, 40, tr)

	var events []Event
	_, err := runner.Run(context.Background(), Job{Source: "/media/show.mkv"}, func(e Event) {
		events = append(events, e)
	})
	if err == nil || !strings.Contains(err.Error(), "engine exploded") {
		t.Fatalf("err = %v", err)
	}
	if recs := records(t, out); len(recs) != 2 {
		t.Errorf("got %d records, want header + window 1", len(recs))
	}
	for _, e := range events {
		if _, ok := e.(Completed); ok {
			t.Error("completed must not be emitted after a failure")
		}
	}
}

func TestRunStopsAtCancellationBetweenWindows(t *testing.T) {
	tr := &scriptedTranscriber{}
	runner, out := newRunner(t, 60, tr)
	token := &flag{}

	var events []Event
	summary, err := runner.Run(context.Background(), Job{Source: "/media/show.mkv", Token: token}, func(e Event) {
		events = append(events, e)
		if _, ok := e.(SegmentWritten); ok {
			token.v.Store(true)
		}
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !summary.Cancelled || summary.Windows != 1 {
		t.Errorf("summary = %+v", summary)
	}
	if tr.calls != 1 {
		t.Errorf("transcriber called %d times after cancel", tr.calls)
	}
	if recs := records(t, out); len(recs) != 2 {
		t.Errorf("window 1 records should survive cancellation, got %d blocks", len(recs))
	}
	if _, ok := events[len(events)-1].(SegmentWritten); !ok {
		t.Errorf("nothing should follow the cancelled window, last event %T", events[len(events)-1])
	}
}

func TestRunAdoptsResolvedLanguage(t *testing.T) {
	tr := &scriptedTranscriber{language: "ja"}
	runner, _ := newRunner(t, 40, tr)

	summary, err := runner.Run(context.Background(), Job{Source: "/media/show.mkv"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if tr.hints[0] != "" || tr.hints[1] != "ja" || tr.hints[2] != "ja" {
		t.Errorf("hints = %v", tr.hints)
	}
	if summary.Language != "ja" {
		t.Errorf("summary language = %q", summary.Language)
	}
}

func TestRunHonoursStartPosition(t *testing.T) {
	tr := &scriptedTranscriber{}
	runner, out := newRunner(t, 40, tr)

	if _, err := runner.Run(context.Background(), Job{Source: "/media/show.mkv", Start: 30}, nil); err != nil {
		t.Fatal(err)
	}
	recs := records(t, out)
	if len(recs) != 2 || !strings.Contains(recs[1], "00:00:30,500 --> 00:00:32,000") {
		t.Errorf("records = %q", recs)
	}
	if opened := runner.Decoder.(*testutil.ToneDecoder).Opened; len(opened) != 1 || opened[0] != 30 {
		t.Errorf("decoder opened at %v", opened)
	}
}
