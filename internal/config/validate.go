package config

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

func (c *Config) normalize() error {
	var err error
	if c.Subtitle.Path, err = expandPath(strings.TrimSpace(c.Subtitle.Path)); err != nil {
		return fmt.Errorf("subtitle.path: %w", err)
	}
	if c.Control.Dir, err = expandPath(strings.TrimSpace(c.Control.Dir)); err != nil {
		return fmt.Errorf("control.dir: %w", err)
	}
	if c.Model.Local.BinaryPath != "" && strings.ContainsRune(c.Model.Local.BinaryPath, '/') {
		if c.Model.Local.BinaryPath, err = expandPath(c.Model.Local.BinaryPath); err != nil {
			return fmt.Errorf("model.local.binary_path: %w", err)
		}
	}
	if c.MPV.IPCSocket != "" {
		if c.MPV.IPCSocket, err = expandPath(c.MPV.IPCSocket); err != nil {
			return fmt.Errorf("mpv.ipc_socket: %w", err)
		}
	}

	c.Model.Backend = strings.ToLower(strings.TrimSpace(c.Model.Backend))
	c.Transcribe.Mode = Mode(strings.ToLower(strings.TrimSpace(string(c.Transcribe.Mode))))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))

	if lang := strings.TrimSpace(c.Transcribe.Language); lang != "" {
		normalized, err := NormalizeLanguage(lang)
		if err != nil {
			return fmt.Errorf("transcribe.language: %w", err)
		}
		c.Transcribe.Language = normalized
	}
	if c.Model.Args == nil {
		c.Model.Args = map[string]any{}
	}
	if c.MPV.StartArgs == nil {
		c.MPV.StartArgs = map[string]any{}
	}
	if err := checkScalarOptions("model.args", c.Model.Args); err != nil {
		return err
	}
	return checkScalarOptions("mpv.start_args", c.MPV.StartArgs)
}

// checkScalarOptions accepts strings, booleans and numbers; anything else
// has no command line rendering.
func checkScalarOptions(section string, options map[string]any) error {
	for key, value := range options {
		switch value.(type) {
		case string, bool, int64, float64:
		default:
			return fmt.Errorf("%s.%s: unsupported value %v (%T); use a string, boolean or number", section, key, value, value)
		}
	}
	return nil
}

// NormalizeLanguage parses a language tag and reduces it to the base
// language code the speech engines expect ("en-US" becomes "en").
func NormalizeLanguage(value string) (string, error) {
	tag, err := language.Parse(strings.TrimSpace(value))
	if err != nil {
		return "", fmt.Errorf("invalid language %q: %w", value, err)
	}
	base, _ := tag.Base()
	return base.String(), nil
}

// Validate checks Config for validity.
func (c *Config) Validate() error {
	var errs []error

	switch c.Model.Backend {
	case BackendLocalWhisper:
		if strings.TrimSpace(c.Model.Local.BinaryPath) == "" {
			errs = append(errs, errors.New("model.local.binary_path is required for the local_whisper backend"))
		}
	case BackendRemoteWhisper:
		if strings.TrimSpace(c.Model.Remote.BaseURL) == "" {
			errs = append(errs, errors.New("model.remote.base_url is required for the remote_whisper_api backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("model.backend must be %q or %q, got %q", BackendLocalWhisper, BackendRemoteWhisper, c.Model.Backend))
	}
	if c.Model.BeamSize < 1 {
		errs = append(errs, fmt.Errorf("model.beam_size must be at least 1, got %d", c.Model.BeamSize))
	}
	if c.Model.Remote.TimeoutSeconds < 0 || c.Model.Remote.Retries < 0 {
		errs = append(errs, errors.New("model.remote timeout_seconds and retries must not be negative"))
	}

	switch c.Transcribe.Mode {
	case ModeTranscribe, ModeTranslate, ModeBoth:
	default:
		errs = append(errs, fmt.Errorf("transcribe.mode must be transcribe, translate or both, got %q", c.Transcribe.Mode))
	}
	if c.Transcribe.ConfidenceThreshold < 0 || c.Transcribe.ConfidenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("transcribe.confidence_threshold must be between 0 and 1, got %g", c.Transcribe.ConfidenceThreshold))
	}
	if c.Transcribe.ChunkDuration <= 0 {
		errs = append(errs, fmt.Errorf("transcribe.chunk_duration must be positive, got %g", c.Transcribe.ChunkDuration))
	}

	if c.MPV.StartMPV && strings.TrimSpace(c.MPV.Executable) == "" {
		errs = append(errs, errors.New("mpv.executable is required when mpv.start_mpv is true"))
	}
	if !c.MPV.StartMPV && strings.TrimSpace(c.MPV.IPCSocket) == "" {
		errs = append(errs, errors.New("mpv.ipc_socket is required when mpv.start_mpv is false"))
	}
	if strings.TrimSpace(c.MPV.ToggleBinding) == "" {
		errs = append(errs, errors.New("mpv.toggle_binding must not be empty"))
	}

	if c.Subtitle.Path == "" {
		errs = append(errs, errors.New("subtitle.path must not be empty"))
	}
	if c.Subtitle.Wrap < 0 {
		errs = append(errs, fmt.Errorf("subtitle.wrap must not be negative, got %d", c.Subtitle.Wrap))
	}

	switch c.Logging.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}
