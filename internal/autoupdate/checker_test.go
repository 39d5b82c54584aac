package autoupdate

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

const releasesJSON = `[
	{"tag_name": "v0.5.0-dev.3", "prerelease": true},
	{"tag_name": "v0.5.0-draft", "draft": true},
	{"tag_name": "v0.4.0-rc1", "prerelease": true},
	{"tag_name": "v0.3.0", "html_url": "https://example.invalid/v0.3.0"}
]`

func newReleaseServer(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/releases/latest":
			fmt.Fprint(w, `{"tag_name": "v0.3.0", "html_url": "https://example.invalid/v0.3.0"}`)
		case "/releases":
			fmt.Fprint(w, releasesJSON)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestLatestReleaseByChannel(t *testing.T) {
	ts := newReleaseServer(t)
	tests := []struct {
		channel ReleaseChannel
		want    string
	}{
		{ChannelStable, "v0.3.0"},
		{ChannelPrerelease, "v0.4.0-rc1"},
		{ChannelDev, "v0.5.0-dev.3"},
	}
	for _, tt := range tests {
		t.Run(string(tt.channel), func(t *testing.T) {
			c := NewChecker("0.1.0")
			c.APIURL = ts.URL
			c.Channel = tt.channel
			release, err := c.LatestRelease(context.Background())
			if err != nil {
				t.Fatalf("LatestRelease: %v", err)
			}
			if release.TagName != tt.want {
				t.Errorf("tag = %q, want %q", release.TagName, tt.want)
			}
		})
	}
}

func TestCheck(t *testing.T) {
	ts := newReleaseServer(t)
	tests := []struct {
		current   string
		wantAvail bool
	}{
		{"0.1.0", true},
		{"v0.2.9-4-gabc1234-dirty", true},
		{"0.3.0", false},
		{"99.0.0", false},
	}
	for _, tt := range tests {
		t.Run(tt.current, func(t *testing.T) {
			c := NewChecker(tt.current)
			c.APIURL = ts.URL
			available, release, err := c.Check(context.Background())
			if err != nil {
				t.Fatalf("Check: %v", err)
			}
			if available != tt.wantAvail {
				t.Errorf("available = %v, want %v", available, tt.wantAvail)
			}
			if available && release.HTMLURL == "" {
				t.Error("release URL missing")
			}
		})
	}
}

func TestCheckHTTPError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer ts.Close()

	c := NewChecker("0.1.0")
	c.APIURL = ts.URL
	if _, _, err := c.Check(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
