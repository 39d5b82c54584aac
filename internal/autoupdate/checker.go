// Package autoupdate checks GitHub for newer whispersub releases.
package autoupdate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// ReleaseChannel defines which releases to check for
type ReleaseChannel string

const (
	ChannelStable     ReleaseChannel = "stable"     // Only stable releases
	ChannelPrerelease ReleaseChannel = "prerelease" // Stable + pre-releases (beta, rc)
	ChannelDev        ReleaseChannel = "dev"        // All releases including dev builds
)

// DefaultAPIURL is the GitHub API root for the whispersub repository.
const DefaultAPIURL = "https://api.github.com/repos/tiroq/whispersub"

// Release represents a GitHub release
type Release struct {
	TagName    string    `json:"tag_name"`
	Name       string    `json:"name"`
	HTMLURL    string    `json:"html_url"`
	Published  time.Time `json:"published_at"`
	Prerelease bool      `json:"prerelease"`
	Draft      bool      `json:"draft"`
}

// Checker compares the running version against published releases.
type Checker struct {
	CurrentVersion string
	Channel        ReleaseChannel
	APIURL         string
	Client         *http.Client
}

// NewChecker creates a checker for the stable channel.
func NewChecker(currentVersion string) *Checker {
	return &Checker{
		CurrentVersion: currentVersion,
		Channel:        ChannelStable,
		APIURL:         DefaultAPIURL,
		Client:         &http.Client{Timeout: 15 * time.Second},
	}
}

// ParseChannel validates a channel name.
func ParseChannel(s string) (ReleaseChannel, error) {
	switch c := ReleaseChannel(strings.ToLower(strings.TrimSpace(s))); c {
	case ChannelStable, ChannelPrerelease, ChannelDev:
		return c, nil
	case "":
		return ChannelStable, nil
	default:
		return "", fmt.Errorf("unknown release channel %q", s)
	}
}

// LatestRelease fetches the latest release matching the channel.
func (c *Checker) LatestRelease(ctx context.Context) (*Release, error) {
	// The "latest" endpoint only ever returns stable releases.
	if c.Channel == ChannelStable || c.Channel == "" {
		var release Release
		if err := c.get(ctx, "/releases/latest", &release); err != nil {
			return nil, err
		}
		return &release, nil
	}

	var releases []Release
	if err := c.get(ctx, "/releases?per_page=30", &releases); err != nil {
		return nil, err
	}
	for i := range releases {
		if c.matchesChannel(&releases[i]) {
			return &releases[i], nil
		}
	}
	return nil, fmt.Errorf("no releases found matching channel %s", c.Channel)
}

func (c *Checker) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(c.APIURL, "/")+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch releases: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("github API returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("parse releases: %w", err)
	}
	return nil
}

func (c *Checker) matchesChannel(release *Release) bool {
	if release.Draft {
		return false
	}
	switch c.Channel {
	case ChannelStable:
		return !release.Prerelease
	case ChannelPrerelease:
		return !isDevTag(release.TagName)
	case ChannelDev:
		return true
	default:
		return false
	}
}

// Check reports whether a newer release is available. The release is
// returned only when it is newer.
func (c *Checker) Check(ctx context.Context) (bool, *Release, error) {
	release, err := c.LatestRelease(ctx)
	if err != nil {
		return false, nil, err
	}
	latest := strings.TrimPrefix(release.TagName, "v")
	current := normalizeVersion(strings.TrimPrefix(c.CurrentVersion, "v"))
	if isNewer(latest, current) {
		return true, release, nil
	}
	return false, nil, nil
}

var gitDescribeSuffix = regexp.MustCompile(`(-\d+-g[0-9a-f]+)?(-dirty)?$`)

// normalizeVersion strips git describe decorations, e.g.
// "0.3.0-2-g5ea24ba-dirty" becomes "0.3.0".
func normalizeVersion(v string) string {
	return gitDescribeSuffix.ReplaceAllString(v, "")
}

func isDevTag(tag string) bool {
	return strings.Contains(strings.ToLower(tag), "dev")
}

// isNewer checks if version1 > version2, comparing numeric components.
func isNewer(version1, version2 string) bool {
	parts1 := strings.Split(version1, ".")
	parts2 := strings.Split(version2, ".")

	for i := 0; i < len(parts1) && i < len(parts2); i++ {
		var v1, v2 int
		if _, err := fmt.Sscanf(parts1[i], "%d", &v1); err != nil {
			v1 = 0
		}
		if _, err := fmt.Sscanf(parts2[i], "%d", &v2); err != nil {
			v2 = 0
		}

		if v1 > v2 {
			return true
		}
		if v1 < v2 {
			return false
		}
	}

	return len(parts1) > len(parts2)
}
