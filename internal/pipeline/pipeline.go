// Package pipeline drives one transcription job: it clears the subtitle
// file, walks the audio windows in order, transcribes each and appends the
// resulting records.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tiroq/whispersub/internal/asr"
	"github.com/tiroq/whispersub/internal/audio"
	"github.com/tiroq/whispersub/internal/diaglog"
	"github.com/tiroq/whispersub/internal/subtitle"
)

// Canceller reports whether a job has been asked to stop.
type Canceller interface {
	Cancelled() bool
}

// Transcriber turns one window into segments and a resolved language.
type Transcriber interface {
	Transcribe(ctx context.Context, w audio.Window, hint string) ([]asr.Segment, string, error)
}

// Job is the input of one run.
type Job struct {
	ID       string
	Source   string
	Start    float64
	Language string
	Token    Canceller
}

// Summary describes how a run ended.
type Summary struct {
	SubtitlePath string
	Windows      int
	Records      int
	Language     string
	Cancelled    bool
}

// Runner holds the collaborators shared by every job.
type Runner struct {
	Decoder       audio.Decoder
	Transcriber   Transcriber
	SubtitlePath  func(source string) string
	ChunkDuration float64
	Wrap          int
	NewResampler  audio.ResamplerFactory
	Logger        *slog.Logger
	Diag          *diaglog.Logger
}

// Run executes job, reporting progress through emit. The token is checked
// before each window and nowhere else, so a window already being
// transcribed is always finished and written. Records already written are
// never removed. Completed is emitted only when the stream ends without
// cancellation.
func (r *Runner) Run(ctx context.Context, job Job, emit func(Event)) (Summary, error) {
	logger := r.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("job", job.ID)
	if emit == nil {
		emit = func(Event) {}
	}

	summary := Summary{SubtitlePath: r.SubtitlePath(job.Source), Language: job.Language}
	sink := subtitle.NewSink(summary.SubtitlePath, r.Wrap)
	if err := sink.Clear(); err != nil {
		return summary, fmt.Errorf("prepare subtitle file: %w", err)
	}
	logger.Info("subtitle file created", "path", summary.SubtitlePath)
	emit(SinkCreated{Path: summary.SubtitlePath})

	seg, err := audio.Open(ctx, r.Decoder, job.Source, audio.Options{
		Start:        job.Start,
		Duration:     r.ChunkDuration,
		NewResampler: r.NewResampler,
	})
	if err != nil {
		return summary, err
	}
	defer seg.Close()

	for seg.Next() {
		if job.Token != nil && job.Token.Cancelled() {
			summary.Cancelled = true
			logger.Info("job cancelled", "windows", summary.Windows)
			return summary, nil
		}
		w := seg.Window()

		segments, lang, err := r.Transcriber.Transcribe(ctx, w, summary.Language)
		if err != nil {
			return summary, err
		}
		if summary.Language == "" && lang != "" {
			summary.Language = lang
		}

		var written []SegmentWritten
		err = sink.Append(func(s *subtitle.Session) error {
			for _, sg := range segments {
				start, end := w.Start+sg.Start, w.Start+sg.End
				idx, err := s.Write(start, end, sg.Text)
				if err != nil {
					return err
				}
				written = append(written, SegmentWritten{Index: idx, Start: start, End: end, Text: sg.Text})
			}
			return nil
		})
		if err != nil {
			return summary, err
		}
		for _, ev := range written {
			emit(ev)
		}

		summary.Windows++
		summary.Records += len(written)
		logger.Debug("window done", "index", w.Index, "start", w.Start, "segments", len(written), "language", summary.Language)
		r.Diag.Event(diaglog.ComponentPipeline, diaglog.EventWindowDone, job.ID, map[string]any{
			"index": w.Index, "start": w.Start, "segments": len(written),
		})
	}
	if err := seg.Err(); err != nil {
		return summary, err
	}

	emit(Completed{})
	return summary, nil
}
