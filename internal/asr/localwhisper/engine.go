// Package localwhisper runs a whisper CLI once per audio window. The binary
// receives a WAV file and prints
// {"segments": [...], "language": "..", "language_probability": ..} on stdout.
package localwhisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"slices"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/tiroq/whispersub/internal/asr"
)

// Name is the engine identifier used in configuration.
const Name = "local_whisper"

// Config configures the CLI engine.
type Config struct {
	BinaryPath string
	ModelDir   string
	Model      string
	Threads    int
	Device     string
}

// Engine shells out to a whisper CLI binary.
type Engine struct {
	cfg Config
}

// New creates a CLI engine.
func New(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

func (e *Engine) Name() string {
	return Name
}

type cliSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type cliOutput struct {
	Segments            []cliSegment `json:"segments"`
	Language            string       `json:"language"`
	LanguageProbability float64      `json:"language_probability"`
}

// Transcribe writes the window to a temporary WAV file and runs the CLI on
// it. Cancelling ctx kills the whole process group.
func (e *Engine) Transcribe(ctx context.Context, samples []float32, sampleRate int, opts asr.Options) (*asr.Result, error) {
	wav, err := os.CreateTemp("", "whispersub-*.wav")
	if err != nil {
		return nil, fmt.Errorf("localwhisper: create temp wav: %w", err)
	}
	defer os.Remove(wav.Name())
	if err := asr.EncodeWAV(wav, samples, sampleRate); err != nil {
		_ = wav.Close()
		return nil, fmt.Errorf("localwhisper: write wav: %w", err)
	}
	if err := wav.Close(); err != nil {
		return nil, fmt.Errorf("localwhisper: write wav: %w", err)
	}

	cmd := exec.CommandContext(ctx, e.cfg.BinaryPath, e.buildArgs(wav.Name(), opts)...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = 2 * time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("localwhisper: %w", ctx.Err())
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("localwhisper: subprocess failed: %w: %s", err, lastLine(msg))
		}
		return nil, fmt.Errorf("localwhisper: subprocess failed: %w", err)
	}

	var out cliOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return nil, fmt.Errorf("localwhisper: parse output: %w", err)
	}
	result := &asr.Result{
		Language:            out.Language,
		LanguageProbability: out.LanguageProbability,
		Segments:            make([]asr.Segment, 0, len(out.Segments)),
	}
	for _, s := range out.Segments {
		result.Segments = append(result.Segments, asr.Segment{Start: s.Start, End: s.End, Text: s.Text})
	}
	return result, nil
}

// HealthCheck verifies the binary exists, is executable and starts.
func (e *Engine) HealthCheck(ctx context.Context) (*asr.HealthStatus, error) {
	status := &asr.HealthStatus{Engine: Name}

	path, err := exec.LookPath(e.cfg.BinaryPath)
	if err != nil {
		status.Message = fmt.Sprintf("binary %q not found: %v", e.cfg.BinaryPath, err)
		return status, nil
	}
	if e.cfg.ModelDir != "" {
		if _, err := os.Stat(e.cfg.ModelDir); err != nil {
			status.Message = fmt.Sprintf("model directory %q: %v", e.cfg.ModelDir, err)
			return status, nil
		}
	}

	start := time.Now()
	err = exec.CommandContext(ctx, path, "--help").Run()
	status.Latency = time.Since(start)
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		status.Message = fmt.Sprintf("binary failed to execute: %v", err)
		return status, nil
	}

	status.OK = true
	status.Message = "binary is available"
	return status, nil
}

func (e *Engine) buildArgs(wavPath string, opts asr.Options) []string {
	model := opts.Model
	if model == "" {
		model = e.cfg.Model
	}
	task := opts.Task
	if task == "" {
		task = asr.TaskTranscribe
	}

	args := []string{"--output-json", "--task", string(task)}
	if model != "" {
		args = append(args, "--model", model)
	}
	if e.cfg.ModelDir != "" {
		args = append(args, "--model-dir", e.cfg.ModelDir)
	}
	if opts.Language != "" {
		args = append(args, "--language", opts.Language)
	}
	if opts.BeamSize > 0 {
		args = append(args, "--beam-size", strconv.Itoa(opts.BeamSize))
	}
	if e.cfg.Threads > 0 {
		args = append(args, "--threads", strconv.Itoa(e.cfg.Threads))
	}
	if e.cfg.Device != "" {
		args = append(args, "--device", e.cfg.Device)
	}

	keys := make([]string, 0, len(opts.Extra))
	for k := range opts.Extra {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		args = append(args, "--"+strings.ReplaceAll(k, "_", "-"), asr.FormatOption(opts.Extra[k]))
	}
	return append(args, wavPath)
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
