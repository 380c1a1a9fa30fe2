package upstream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"

	"github.com/obentoo/nixbump/internal/common/github"
)

func testClients(server *httptest.Server) Clients {
	gh := github.NewClient("")
	gh.BaseURL = server.URL
	gh.Limiter = nil
	return Clients{
		HTTP:        NewRetryableHTTPClientWithConfig(NoRetryConfig()),
		GitHub:      gh,
		NPMRegistry: server.URL,
	}
}

func TestSourceConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     SourceConfig
		wantErr error
	}{
		{"github", SourceConfig{Source: "github", Repository: "o/r"}, nil},
		{"github without repository", SourceConfig{Source: "github"}, ErrMissingRepository},
		{"github bad tag pattern", SourceConfig{Source: "github", Repository: "o/r", TagPattern: "v.*"}, ErrNoCaptureGroup},
		{"github tags", SourceConfig{Source: "github-tags", Repository: "o/r", TagPattern: `^rel-(.+)$`}, nil},
		{"github tags without repository", SourceConfig{Source: "github-tags"}, ErrMissingRepository},
		{"npm", SourceConfig{Source: "npm", Package: "@factory/cli"}, nil},
		{"npm without package", SourceConfig{Source: "npm"}, ErrMissingPackage},
		{"json without path", SourceConfig{Source: "json", URL: "https://x"}, ErrMissingPath},
		{"regex without url", SourceConfig{Source: "regex", Pattern: "(x)"}, ErrMissingURL},
		{"regex without pattern", SourceConfig{Source: "regex", URL: "https://x"}, ErrMissingPattern},
		{"html without selector", SourceConfig{Source: "html", URL: "https://x"}, ErrNoSelectorOrXPath},
		{"unknown", SourceConfig{Source: "gitlab"}, ErrUnknownSource},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == nil && err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestGitHubReleaseSource(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repos/charmbracelet/crush/releases/latest":
			w.Write([]byte(`{"tag_name":"v0.7.1"}`))
		case "/repos/o/prefixed/releases/latest":
			w.Write([]byte(`{"tag_name":"cli-2.3.0"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"message":"Not Found"}`))
		}
	}))
	defer server.Close()
	clients := testClients(server)

	src, err := NewSource(SourceConfig{Source: "github", Repository: "charmbracelet/crush"}, clients)
	if err != nil {
		t.Fatalf("NewSource() error = %v", err)
	}
	if v, err := src.Latest(context.Background()); err != nil || v != "0.7.1" {
		t.Errorf("Latest() = %q, %v", v, err)
	}

	src, _ = NewSource(SourceConfig{Source: "github", Repository: "o/prefixed", TagPattern: `^cli-(.+)$`}, clients)
	if v, err := src.Latest(context.Background()); err != nil || v != "2.3.0" {
		t.Errorf("Latest() with tag pattern = %q, %v", v, err)
	}

	src, _ = NewSource(SourceConfig{Source: "github", Repository: "o/missing"}, clients)
	if _, err := src.Latest(context.Background()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGitHubTagsSource(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repos/o/tagged/tags":
			w.Write([]byte(`[{"name":"v1.9.0"},{"name":"v1.10.0"},{"name":"v1.10.0-rc1"},{"name":"nightly"}]`))
		case "/repos/o/mixed/tags":
			w.Write([]byte(`[{"name":"docs-2024"},{"name":"rel-3.1"},{"name":"rel-3.0"}]`))
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"message":"Not Found"}`))
		}
	}))
	defer server.Close()
	clients := testClients(server)
	ctx := context.Background()

	src, err := NewSource(SourceConfig{Source: "github-tags", Repository: "o/tagged", TagPattern: `^v(\d.*)$`}, clients)
	if err != nil {
		t.Fatalf("NewSource() error = %v", err)
	}
	if v, err := src.Latest(ctx); err != nil || v != "1.10.0" {
		t.Errorf("Latest() = %q, %v; want 1.10.0", v, err)
	}

	src, _ = NewSource(SourceConfig{Source: "github-tags", Repository: "o/mixed", TagPattern: `^rel-(.+)$`}, clients)
	if v, err := src.Latest(ctx); err != nil || v != "3.1" {
		t.Errorf("Latest() = %q, %v; want 3.1", v, err)
	}

	src, _ = NewSource(SourceConfig{Source: "github-tags", Repository: "o/mixed", TagPattern: `^cli-(.+)$`}, clients)
	if _, err := src.Latest(ctx); !errors.Is(err, ErrNotFound) {
		t.Errorf("no matching tags: expected ErrNotFound, got %v", err)
	}

	src, _ = NewSource(SourceConfig{Source: "github-tags", Repository: "o/missing"}, clients)
	if _, err := src.Latest(ctx); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing repository: expected ErrNotFound, got %v", err)
	}
}

func TestGitHubRateLimitIsVisibleThroughSource(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"message":"secondary rate limit"}`))
	}))
	defer server.Close()

	src, _ := NewSource(SourceConfig{Source: "github", Repository: "o/r"}, testClients(server))
	_, err := src.Latest(context.Background())
	if !errors.Is(err, ErrNetwork) || !github.IsRateLimited(err) {
		t.Errorf("expected a rate limited network error, got %v", err)
	}
}

func TestGitHubReleaseServerErrorIsNetwork(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	src, _ := NewSource(SourceConfig{Source: "github", Repository: "o/r"}, testClients(server))
	if _, err := src.Latest(context.Background()); !errors.Is(err, ErrNetwork) {
		t.Errorf("expected ErrNetwork, got %v", err)
	}
}

func TestVersionFromTag(t *testing.T) {
	if v, err := VersionFromTag("v1.2.3", nil); err != nil || v != "1.2.3" {
		t.Errorf("VersionFromTag(v1.2.3) = %q, %v", v, err)
	}
	if v, err := VersionFromTag("1.2.3", nil); err != nil || v != "1.2.3" {
		t.Errorf("VersionFromTag(1.2.3) = %q, %v", v, err)
	}
	if _, err := VersionFromTag("v", nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("VersionFromTag(v) = %v", err)
	}
	re := regexp.MustCompile(`^release-(\d+\.\d+)$`)
	if _, err := VersionFromTag("nightly", re); !errors.Is(err, ErrNotFound) {
		t.Errorf("non-matching tag = %v", err)
	}
}

func TestNPMRegistrySource(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.EscapedPath() {
		case "/@factory%2Fcli/latest":
			w.Write([]byte(`{"name":"@factory/cli","version":"0.22.3"}`))
		case "/broken/latest":
			w.Write([]byte(`{"name":"broken"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()
	clients := testClients(server)

	src, _ := NewSource(SourceConfig{Source: "npm", Package: "@factory/cli"}, clients)
	if v, err := src.Latest(context.Background()); err != nil || v != "0.22.3" {
		t.Errorf("Latest() = %q, %v", v, err)
	}

	src, _ = NewSource(SourceConfig{Source: "npm", Package: "broken"}, clients)
	if _, err := src.Latest(context.Background()); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing version: %v", err)
	}

	src, _ = NewSource(SourceConfig{Source: "npm", Package: "absent"}, clients)
	if _, err := src.Latest(context.Background()); !errors.Is(err, ErrNotFound) {
		t.Errorf("404: %v", err)
	}
}

func TestPageSources(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/cli":
			w.Write([]byte("#!/bin/sh\nVER=\"0.22.3\"\n"))
		case "/api":
			if r.Header.Get("X-Channel") != "stable" {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			w.Write([]byte(`{"channels":[{"version":"4.0.1"}]}`))
		case "/downloads":
			w.Write([]byte(releasePage))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()
	clients := testClients(server)

	tests := []struct {
		name string
		cfg  SourceConfig
		want string
	}{
		{"regex", SourceConfig{Source: "regex", URL: server.URL + "/cli", Pattern: `VER="([^"]+)"`}, "0.22.3"},
		{"json with headers", SourceConfig{Source: "json", URL: server.URL + "/api", Path: "channels[0].version",
			Headers: map[string]string{"X-Channel": "stable"}}, "4.0.1"},
		{"html", SourceConfig{Source: "html", URL: server.URL + "/downloads", Selector: ".version", Pattern: `([0-9.]+)`}, "3.1.4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := NewSource(tt.cfg, clients)
			if err != nil {
				t.Fatalf("NewSource() error = %v", err)
			}
			got, err := src.Latest(context.Background())
			if err != nil {
				t.Fatalf("Latest() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Latest() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPageSourceErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/fail":
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			w.Write([]byte("no version here"))
		}
	}))
	defer server.Close()
	clients := testClients(server)

	src, _ := NewSource(SourceConfig{Source: "regex", URL: server.URL + "/fail", Pattern: `(x)`}, clients)
	if _, err := src.Latest(context.Background()); !errors.Is(err, ErrNetwork) {
		t.Errorf("503: expected ErrNetwork, got %v", err)
	}

	src, _ = NewSource(SourceConfig{Source: "regex", URL: server.URL + "/page", Pattern: `v([0-9]+)`}, clients)
	if _, err := src.Latest(context.Background()); !errors.Is(err, ErrNotFound) {
		t.Errorf("no match: expected ErrNotFound, got %v", err)
	}

	src, _ = NewSource(SourceConfig{Source: "regex", URL: "http://127.0.0.1:1/unreachable", Pattern: `(x)`}, clients)
	if _, err := src.Latest(context.Background()); !errors.Is(err, ErrNetwork) {
		t.Errorf("unreachable: expected ErrNetwork, got %v", err)
	}
}

func TestDescribe(t *testing.T) {
	tests := map[string]SourceConfig{
		"github:o/r":          {Source: "github", Repository: "o/r"},
		"npm:@factory/cli":    {Source: "npm", Package: "@factory/cli"},
		"regex:https://x/cli": {Source: "regex", URL: "https://x/cli"},
	}
	for want, cfg := range tests {
		if got := cfg.Describe(); got != want {
			t.Errorf("Describe() = %q, want %q", got, want)
		}
	}
}
