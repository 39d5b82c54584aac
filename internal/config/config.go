package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/tiroq/whispersub/internal/fileutil"
)

//go:embed sample_config.toml
var sampleConfig string

// ErrNotFound is returned by Load when no configuration file exists in any
// of the searched locations.
var ErrNotFound = errors.New("could not find configuration file")

// Mode selects which engine tasks run for every window.
type Mode string

const (
	ModeTranscribe Mode = "transcribe"
	ModeTranslate  Mode = "translate"
	ModeBoth       Mode = "both"
)

// Engine backend identifiers.
const (
	BackendLocalWhisper  = "local_whisper"
	BackendRemoteWhisper = "remote_whisper_api"
)

// LocalEngine configures the CLI subprocess engine.
type LocalEngine struct {
	BinaryPath string `toml:"binary_path"`
	ModelDir   string `toml:"model_dir"`
	Threads    int    `toml:"threads"`
	Device     string `toml:"device"`
}

// RemoteEngine configures the HTTP engine.
type RemoteEngine struct {
	BaseURL        string `toml:"base_url"`
	Token          string `toml:"token"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	Retries        int    `toml:"retries"`
}

// Model selects the speech engine and its arguments.
type Model struct {
	Backend  string         `toml:"backend"`
	Model    string         `toml:"model"`
	Args     map[string]any `toml:"args"`
	BeamSize int            `toml:"beam_size"`
	Local    LocalEngine    `toml:"local"`
	Remote   RemoteEngine   `toml:"remote"`
}

// Transcribe controls task mode, language resolution and windowing.
type Transcribe struct {
	Language            string  `toml:"language"`
	Mode                Mode    `toml:"mode"`
	ConfidenceThreshold float64 `toml:"confidence_threshold"`
	ChunkDuration       float64 `toml:"chunk_duration"`
}

// Audio names the decode tools.
type Audio struct {
	FFmpegBinary  string `toml:"ffmpeg_binary"`
	FFprobeBinary string `toml:"ffprobe_binary"`
}

// MPV configures the player and its control socket.
type MPV struct {
	Executable    string         `toml:"executable"`
	StartMPV      bool           `toml:"start_mpv"`
	StartArgs     map[string]any `toml:"start_args"`
	IPCSocket     string         `toml:"ipc_socket"`
	ToggleBinding string         `toml:"toggle_binding"`
}

// Subtitle configures where subtitle files are written.
type Subtitle struct {
	Path        string `toml:"path"`
	OnlyNetwork bool   `toml:"only_network"`
	Wrap        int    `toml:"wrap"`
}

// Logging contains configuration for log output.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Events configures the optional websocket progress feed.
type Events struct {
	Listen string `toml:"listen"`
}

// Control configures the out-of-band command/status directory.
type Control struct {
	Dir string `toml:"dir"`
}

// Config encapsulates all configuration values.
//
// Sections:
//   - Model: engine backend and arguments
//   - Transcribe: task mode, language hint, confidence threshold, window duration
//   - Audio: ffmpeg/ffprobe executables
//   - MPV: player executable, launch arguments, IPC socket, toggle key
//   - Subtitle: output directory and network-only policy
//   - Logging, Events, Control: ambient process settings
type Config struct {
	Model      Model      `toml:"model"`
	Transcribe Transcribe `toml:"transcribe"`
	Audio      Audio      `toml:"audio"`
	MPV        MPV        `toml:"mpv"`
	Subtitle   Subtitle   `toml:"subtitle"`
	Logging    Logging    `toml:"logging"`
	Events     Events     `toml:"events"`
	Control    Control    `toml:"control"`
}

// Default returns a configuration populated with documented defaults.
func Default() Config {
	return Config{
		Model: Model{
			Backend:  BackendLocalWhisper,
			Model:    "base",
			Args:     map[string]any{},
			BeamSize: 5,
			Local:    LocalEngine{Device: "auto"},
		},
		Transcribe: Transcribe{
			Mode:                ModeTranscribe,
			ConfidenceThreshold: 0.95,
			ChunkDuration:       15.0,
		},
		Audio: Audio{
			FFmpegBinary:  "ffmpeg",
			FFprobeBinary: "ffprobe",
		},
		MPV: MPV{
			Executable:    "mpv",
			StartMPV:      true,
			StartArgs:     map[string]any{},
			ToggleBinding: "ctrl+.",
		},
		Subtitle: Subtitle{
			Path: "~/.config/whispersub/subs",
		},
		Logging: Logging{
			Level:  "info",
			Format: "console",
		},
		Control: Control{
			Dir: "~/.cache/whispersub",
		},
	}
}

// SearchPaths lists the locations Load tries when no explicit path is given,
// in priority order.
func SearchPaths() []string {
	paths := []string{"whispersub.toml"}
	if base, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok && strings.TrimSpace(base) != "" {
		paths = append(paths, filepath.Join(base, "whispersub", "config.toml"))
	}
	paths = append(paths, "~/.config/whispersub/config.toml")
	return paths
}

// DefaultConfigPath returns the user configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/whispersub/config.toml")
}

// Load locates, strictly parses, normalizes and validates a configuration
// file. Unknown keys are rejected. When path is empty the SearchPaths are
// tried in order; if none exists ErrNotFound is returned.
func Load(path string) (*Config, string, error) {
	resolved, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", err
	}

	file, err := os.Open(resolved)
	if err != nil {
		return nil, "", fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	cfg := Default()
	decoder := toml.NewDecoder(file).DisallowUnknownFields()
	if err := decoder.Decode(&cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return nil, "", fmt.Errorf("parse config %s: unknown keys:\n%s", resolved, strict.String())
		}
		return nil, "", fmt.Errorf("parse config %s: %w", resolved, err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return &cfg, resolved, nil
}

func resolveConfigPath(path string) (string, error) {
	candidates := SearchPaths()
	if strings.TrimSpace(path) != "" {
		candidates = []string{path}
	}
	for _, candidate := range candidates {
		expanded, err := expandPath(candidate)
		if err != nil {
			return "", err
		}
		info, err := os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return "", fmt.Errorf("stat config: %w", err)
		}
		if info.IsDir() {
			continue
		}
		return expanded, nil
	}
	return "", fmt.Errorf("%w (searched %s)", ErrNotFound, strings.Join(candidates, ", "))
}

// EnsureDirectories creates the subtitle output and control directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Subtitle.Path, c.Control.Dir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// SubtitlePath resolves the subtitle output file for a media source. Network
// sources (anything containing "://") always go to the configured directory;
// local files go there too unless only_network is set, in which case the
// subtitle is written beside the source.
func (c *Config) SubtitlePath(source string) string {
	if !c.Subtitle.OnlyNetwork || strings.Contains(source, "://") {
		stem := fileutil.SubtitleStem(source)
		return filepath.Join(c.Subtitle.Path, stem+".whisper.srt")
	}
	return strings.TrimSuffix(source, filepath.Ext(source)) + ".whisper.srt"
}

// ExpandPath exposes the path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	pathValue = os.ExpandEnv(pathValue)
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// CreateSample writes the sample configuration file to path.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Marshal renders the effective configuration as TOML.
func (c *Config) Marshal() ([]byte, error) {
	return toml.Marshal(c)
}
