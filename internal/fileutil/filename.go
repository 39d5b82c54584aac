package fileutil

import (
	"net/url"
	"path"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	illegalChars = regexp.MustCompile(`[\/\\:*?"<>|]`)
	whitespace   = regexp.MustCompile(`[\s_]+`)
)

// SanitizeForFilename sanitizes a string for safe use in filenames
func SanitizeForFilename(input string) string {
	// Replace illegal filename characters with underscores
	sanitized := illegalChars.ReplaceAllString(input, "_")

	// Collapse runs of spaces/underscores into a single hyphen
	sanitized = whitespace.ReplaceAllString(sanitized, "-")
	sanitized = strings.Trim(sanitized, "-.")

	// Keep names well under common filesystem limits
	if len(sanitized) > 120 {
		sanitized = strings.TrimRight(sanitized[:120], "-")
	}

	if sanitized == "" {
		return "stream"
	}
	return sanitized
}

// SubtitleStem derives a subtitle base name from a media source. Local paths
// use the file name without extension; URLs use the last path segment, or the
// host when the path is empty.
func SubtitleStem(source string) string {
	name := filepath.Base(source)
	if strings.Contains(source, "://") {
		if u, err := url.Parse(source); err == nil {
			name = path.Base(u.Path)
			if name == "/" || name == "." {
				return SanitizeForFilename(u.Host)
			}
		}
	}
	return SanitizeForFilename(strings.TrimSuffix(name, path.Ext(name)))
}
