// Package asr defines the speech engine capability used by the transcriber
// and the registry that selects an engine by name.
package asr

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// Task selects between transcription and translation to English.
type Task string

const (
	TaskTranscribe Task = "transcribe"
	TaskTranslate  Task = "translate"
)

// Segment is one timed piece of text. Times are seconds relative to the
// start of the submitted audio.
type Segment struct {
	Start float64
	End   float64
	Text  string
}

// Result is the output of one engine call.
type Result struct {
	Segments            []Segment
	Language            string
	LanguageProbability float64
}

// Options configures one engine call.
type Options struct {
	Task     Task
	Language string // "" = auto-detect
	Model    string
	BeamSize int
	Extra    map[string]any
}

// HealthStatus reports engine health.
type HealthStatus struct {
	OK      bool
	Engine  string
	Message string
	Latency time.Duration
}

// Engine transcribes mono float samples in [-1, 1].
type Engine interface {
	Name() string
	Transcribe(ctx context.Context, samples []float32, sampleRate int, opts Options) (*Result, error)
	HealthCheck(ctx context.Context) (*HealthStatus, error)
}

// FormatOption renders an extra option value for a command line or form
// field. Booleans become "true"/"false"; numbers use their shortest form.
func FormatOption(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
