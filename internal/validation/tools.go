// Package validation checks that the external tools whispersub drives are
// installed and recent enough.
package validation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ValidationResult contains the result of a single check.
type ValidationResult struct {
	Name     string
	OK       bool
	Message  string
	Issues   []string
	Warnings []string
	Fixes    []string
}

// Minimum supported versions.
const (
	MinFFmpegMajor = 4
	MinMPVMinor    = 33
)

var versionPattern = regexp.MustCompile(`(\d+)\.(\d+)(?:\.(\d+))?`)

func parseVersion(s string) (major, minor int, ok bool) {
	m := versionPattern.FindStringSubmatch(s)
	if len(m) < 3 {
		return 0, 0, false
	}
	major, _ = strconv.Atoi(m[1])
	minor, _ = strconv.Atoi(m[2])
	return major, minor, true
}

// ValidateFFmpegVersion checks the first line of `ffmpeg -version`, e.g.
// "ffmpeg version 6.1.1-3ubuntu5 Copyright ...". Git builds such as
// "ffmpeg version N-113023-g..." are accepted with a warning.
func ValidateFFmpegVersion(output string) *ValidationResult {
	result := &ValidationResult{Name: "ffmpeg", OK: true}
	line := firstLine(output)
	rest, found := strings.CutPrefix(line, "ffmpeg version ")
	if !found {
		result.OK = false
		result.Message = fmt.Sprintf("Could not parse ffmpeg version: %q", line)
		result.Issues = append(result.Issues, "Unrecognised version output")
		result.Fixes = append(result.Fixes, "Install ffmpeg from your package manager or https://ffmpeg.org")
		return result
	}
	if strings.HasPrefix(rest, "N-") {
		result.Message = "ffmpeg development build"
		result.Warnings = append(result.Warnings, "Version of git builds cannot be verified")
		return result
	}
	major, minor, ok := parseVersion(rest)
	if !ok {
		result.OK = false
		result.Message = fmt.Sprintf("Could not parse ffmpeg version: %q", rest)
		result.Issues = append(result.Issues, "Invalid version format")
		return result
	}
	if major < MinFFmpegMajor {
		result.OK = false
		result.Issues = append(result.Issues, fmt.Sprintf("ffmpeg %d.%d is too old (requires %d.0+)", major, minor, MinFFmpegMajor))
		result.Fixes = append(result.Fixes, fmt.Sprintf("Update ffmpeg to %d.0 or later", MinFFmpegMajor))
		result.Message = fmt.Sprintf("ffmpeg %d.%d requires update", major, minor)
		return result
	}
	result.Message = fmt.Sprintf("ffmpeg %d.%d is compatible", major, minor)
	return result
}

// ValidateMPVVersion checks the first line of `mpv --version`, e.g.
// "mpv 0.37.0 Copyright © 2000-2023 mpv/MPlayer/mplayer2 projects" or
// "mpv v0.38.0-dirty".
func ValidateMPVVersion(output string) *ValidationResult {
	result := &ValidationResult{Name: "mpv", OK: true}
	line := firstLine(output)
	rest, found := strings.CutPrefix(line, "mpv ")
	if !found {
		result.OK = false
		result.Message = fmt.Sprintf("Could not parse mpv version: %q", line)
		result.Issues = append(result.Issues, "Unrecognised version output")
		result.Fixes = append(result.Fixes, "Install mpv from https://mpv.io/installation/")
		return result
	}
	major, minor, ok := parseVersion(strings.TrimPrefix(rest, "v"))
	if !ok {
		result.Message = "mpv development build"
		result.Warnings = append(result.Warnings, "Version of git builds cannot be verified")
		return result
	}
	if major == 0 && minor < MinMPVMinor {
		result.OK = false
		result.Issues = append(result.Issues, fmt.Sprintf("mpv %d.%d is too old (requires 0.%d+)", major, minor, MinMPVMinor))
		result.Fixes = append(result.Fixes, fmt.Sprintf("Update mpv to 0.%d or later for JSON IPC key bindings", MinMPVMinor))
		result.Message = fmt.Sprintf("mpv %d.%d requires update", major, minor)
		return result
	}
	result.Message = fmt.Sprintf("mpv %d.%d is compatible", major, minor)
	return result
}

// Tools names the executables to check. Empty entries are skipped.
type Tools struct {
	FFmpeg      string
	FFprobe     string
	MPV         string
	WhisperCLI  string
	MPVRequired bool
	Socket      string
}

// CheckExecutable resolves bin on PATH.
func CheckExecutable(name, bin string) *ValidationResult {
	result := &ValidationResult{Name: name, OK: true}
	path, err := exec.LookPath(bin)
	if err != nil {
		result.OK = false
		result.Message = fmt.Sprintf("%s not found", bin)
		result.Issues = append(result.Issues, err.Error())
		result.Fixes = append(result.Fixes, fmt.Sprintf("Install %s or set its path in the configuration", name))
		return result
	}
	result.Message = path
	return result
}

// CheckAll runs every applicable check. Each version probe is bounded by
// a short timeout.
func CheckAll(ctx context.Context, tools Tools) []*ValidationResult {
	var results []*ValidationResult

	if tools.FFmpeg != "" {
		results = append(results, versionCheck(ctx, "ffmpeg", tools.FFmpeg, "-version", ValidateFFmpegVersion))
	}
	if tools.FFprobe != "" {
		results = append(results, CheckExecutable("ffprobe", tools.FFprobe))
	}
	if tools.MPV != "" {
		r := versionCheck(ctx, "mpv", tools.MPV, "--version", ValidateMPVVersion)
		if !r.OK && !tools.MPVRequired {
			r.OK = true
			r.Warnings = append(r.Warnings, r.Issues...)
			r.Issues = nil
		}
		results = append(results, r)
	}
	if tools.WhisperCLI != "" {
		results = append(results, CheckExecutable("whisper cli", tools.WhisperCLI))
	}
	if tools.Socket != "" {
		results = append(results, CheckSocket(tools.Socket))
	}
	return results
}

// CheckSocket reports whether an mpv IPC socket path exists.
func CheckSocket(path string) *ValidationResult {
	result := &ValidationResult{Name: "ipc socket", OK: true}
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		result.OK = false
		result.Message = fmt.Sprintf("%s does not exist", path)
		result.Fixes = append(result.Fixes, "Start mpv with --input-ipc-server="+path)
	case err != nil:
		result.OK = false
		result.Message = err.Error()
	case info.Mode()&os.ModeSocket == 0:
		result.OK = false
		result.Message = fmt.Sprintf("%s is not a socket", path)
	default:
		result.Message = path
	}
	return result
}

func versionCheck(ctx context.Context, name, bin, flag string, validate func(string) *ValidationResult) *ValidationResult {
	if r := CheckExecutable(name, bin); !r.OK {
		return r
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, bin, flag).Output()
	if err != nil {
		return &ValidationResult{
			Name:    name,
			Message: fmt.Sprintf("%s %s failed: %v", bin, flag, err),
			Issues:  []string{err.Error()},
		}
	}
	return validate(string(out))
}

// Failed reports whether any result is not OK.
func Failed(results []*ValidationResult) bool {
	for _, r := range results {
		if !r.OK {
			return true
		}
	}
	return false
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
