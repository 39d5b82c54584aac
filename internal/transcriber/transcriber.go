// Package transcriber runs the configured engine tasks over one audio
// window and resolves the window's language.
package transcriber

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tiroq/whispersub/internal/asr"
	"github.com/tiroq/whispersub/internal/audio"
	"github.com/tiroq/whispersub/internal/config"
)

// Options configures a Transcriber.
type Options struct {
	Mode                config.Mode
	ConfidenceThreshold float64
	Model               string
	BeamSize            int
	Extra               map[string]any
}

// Transcriber wraps an engine with task-mode and language handling.
type Transcriber struct {
	engine asr.Engine
	opts   Options
	logger *slog.Logger
}

// New creates a Transcriber. An empty mode means transcribe.
func New(engine asr.Engine, opts Options, logger *slog.Logger) *Transcriber {
	if opts.Mode == "" {
		opts.Mode = config.ModeTranscribe
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Transcriber{engine: engine, opts: opts, logger: logger}
}

// Transcribe returns the window's segments and the resolved language.
//
// In both mode the transcription segments come first, followed by the
// translation segments of the same audio. A non-empty hint is returned
// unchanged. Without a hint the language detected by the first engine call
// is returned only when its probability reaches the confidence threshold;
// otherwise the result is "" and the caller should detect again next
// window. Engine errors are returned as-is without retrying.
func (t *Transcriber) Transcribe(ctx context.Context, w audio.Window, hint string) ([]asr.Segment, string, error) {
	var (
		segments []asr.Segment
		lang     = hint
		prob     = 1.0
		resolved = hint != ""
	)

	run := func(task asr.Task) error {
		res, err := t.engine.Transcribe(ctx, w.Samples, w.SampleRate, asr.Options{
			Task:     task,
			Language: lang,
			Model:    t.opts.Model,
			BeamSize: t.opts.BeamSize,
			Extra:    t.opts.Extra,
		})
		if err != nil {
			return fmt.Errorf("%s window at %.3fs: %w", task, w.Start, err)
		}
		segments = append(segments, res.Segments...)
		if !resolved {
			lang, prob = res.Language, res.LanguageProbability
			resolved = true
		}
		return nil
	}

	if t.opts.Mode == config.ModeTranscribe || t.opts.Mode == config.ModeBoth {
		if err := run(asr.TaskTranscribe); err != nil {
			return nil, "", err
		}
	}
	if t.opts.Mode == config.ModeTranslate || t.opts.Mode == config.ModeBoth {
		if err := run(asr.TaskTranslate); err != nil {
			return nil, "", err
		}
	}

	if hint != "" {
		return segments, hint, nil
	}
	if lang != "" && prob >= t.opts.ConfidenceThreshold {
		t.logger.Info("detected language", "language", lang, "probability", prob)
		return segments, lang, nil
	}
	t.logger.Debug("language detection below threshold", "language", lang, "probability", prob, "threshold", t.opts.ConfidenceThreshold)
	return segments, "", nil
}
