// Package remotewhisper posts audio windows to a Whisper-compatible HTTP
// service.
package remotewhisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"mime/multipart"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/tiroq/whispersub/internal/asr"
	"github.com/tiroq/whispersub/internal/diaglog"
)

// Name is the engine identifier used in configuration.
const Name = "remote_whisper_api"

// Config configures the HTTP engine. Zero TimeoutSeconds means no timeout;
// zero Retries means a failed request is not repeated.
type Config struct {
	BaseURL        string
	Token          string
	TimeoutSeconds int
	Retries        int
	Model          string
}

// Client is an asr.Engine backed by a remote API.
type Client struct {
	cfg         Config
	client      *http.Client
	backoffBase time.Duration
	diag        *diaglog.Logger
}

// NewClient creates a client. diag may be nil.
func NewClient(cfg Config, diag *diaglog.Logger) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:         cfg,
		backoffBase: time.Second,
		diag:        diag,
		client:      &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
	}
}

func (c *Client) Name() string {
	return Name
}

type transcribeResponse struct {
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
	Language            string  `json:"language"`
	LanguageProbability float64 `json:"language_probability"`
}

// Transcribe uploads the window as WAV. Network errors and 5xx responses
// are retried up to Retries times with exponential backoff.
func (c *Client) Transcribe(ctx context.Context, samples []float32, sampleRate int, opts asr.Options) (*asr.Result, error) {
	wav, err := asr.WAVBytes(samples, sampleRate)
	if err != nil {
		return nil, fmt.Errorf("remotewhisper: encode wav: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.Retries; attempt++ {
		if attempt > 0 {
			backoff := c.backoff(attempt)
			c.diag.Event(diaglog.ComponentEngine, "transcribe_retry", "", map[string]any{
				"attempt": attempt, "backoff_ms": backoff.Milliseconds(), "error": lastErr.Error(),
			})
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("remotewhisper: %w", ctx.Err())
			case <-time.After(backoff):
			}
		}

		result, err := c.doTranscribe(ctx, wav, opts)
		if err == nil {
			return result, nil
		}
		var retry *retryableError
		if !errors.As(err, &retry) || ctx.Err() != nil {
			return nil, fmt.Errorf("remotewhisper: %w", err)
		}
		lastErr = err
	}
	return nil, fmt.Errorf("remotewhisper: %d attempts failed: %w", c.cfg.Retries+1, lastErr)
}

func (c *Client) doTranscribe(ctx context.Context, wav []byte, opts asr.Options) (*asr.Result, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "window.wav")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(wav); err != nil {
		return nil, fmt.Errorf("write audio: %w", err)
	}
	for _, field := range c.formFields(opts) {
		if err := writer.WriteField(field[0], field[1]); err != nil {
			return nil, fmt.Errorf("write field %s: %w", field[0], err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/transcribe", &body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("http request: %w", err)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode >= 500 {
		return nil, &retryableError{err: fmt.Errorf("server error %d: %s", resp.StatusCode, truncate(data, 200))}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, truncate(data, 200))
	}

	var parsed transcribeResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	result := &asr.Result{
		Language:            parsed.Language,
		LanguageProbability: parsed.LanguageProbability,
		Segments:            make([]asr.Segment, 0, len(parsed.Segments)),
	}
	for _, s := range parsed.Segments {
		result.Segments = append(result.Segments, asr.Segment{Start: s.Start, End: s.End, Text: s.Text})
	}
	return result, nil
}

func (c *Client) formFields(opts asr.Options) [][2]string {
	model := opts.Model
	if model == "" {
		model = c.cfg.Model
	}
	task := opts.Task
	if task == "" {
		task = asr.TaskTranscribe
	}
	fields := [][2]string{{"model", model}, {"task", string(task)}, {"language", opts.Language}}
	if opts.BeamSize > 0 {
		fields = append(fields, [2]string{"beam_size", strconv.Itoa(opts.BeamSize)})
	}
	keys := make([]string, 0, len(opts.Extra))
	for k := range opts.Extra {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fields = append(fields, [2]string{k, asr.FormatOption(opts.Extra[k])})
	}
	return fields
}

// HealthCheck queries GET /v1/health, expecting {"ok": true}.
func (c *Client) HealthCheck(ctx context.Context) (*asr.HealthStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/v1/health", nil)
	if err != nil {
		return nil, fmt.Errorf("create health request: %w", err)
	}
	c.authorize(req)

	start := time.Now()
	resp, err := c.client.Do(req)
	status := &asr.HealthStatus{Engine: Name, Latency: time.Since(start)}
	if err != nil {
		status.Message = fmt.Sprintf("health check failed: %v", err)
		return status, nil
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		status.Message = fmt.Sprintf("unhealthy: http %d: %s", resp.StatusCode, truncate(data, 200))
		return status, nil
	}
	var parsed struct {
		OK bool `json:"ok"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		status.Message = fmt.Sprintf("invalid health response: %v", err)
		return status, nil
	}
	status.OK = parsed.OK
	status.Message = "healthy"
	if !parsed.OK {
		status.Message = "service reports not ok"
	}
	return status, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
}

// retryableError marks failures worth another attempt.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// backoff returns base * 2^(attempt-1) plus up to 25% jitter.
func (c *Client) backoff(attempt int) time.Duration {
	delay := c.backoffBase
	if delay <= 0 {
		delay = time.Second
	}
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	return delay + time.Duration(rand.Int64N(int64(delay/4)+1))
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
