package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/obentoo/nixbump/internal/common/command"
	"github.com/obentoo/nixbump/internal/common/config"
	"github.com/obentoo/nixbump/internal/common/github"
	"github.com/obentoo/nixbump/internal/common/output"
	"github.com/obentoo/nixbump/internal/manifest"
	"github.com/obentoo/nixbump/internal/pipeline"
	"github.com/obentoo/nixbump/internal/upstream"
	"github.com/spf13/cobra"
)

func init() {
	output.NoColor()
}

// TestSubcommandsRegistered tests that every subcommand is attached to root
func TestSubcommandsRegistered(t *testing.T) {
	want := []string{"update", "check", "docs", "hash", "config", "version"}
	for _, name := range want {
		t.Run(name, func(t *testing.T) {
			found := false
			for _, cmd := range rootCmd.Commands() {
				if strings.HasPrefix(cmd.Use, name) {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("%s subcommand should exist", name)
			}
		})
	}
}

// TestGlobalFlags tests that the persistent flags are present
func TestGlobalFlags(t *testing.T) {
	for _, name := range []string{"verbose", "quiet", "no-color", "color", "log-file", "repo"} {
		if rootCmd.PersistentFlags().Lookup(name) == nil {
			t.Errorf("root command should have --%s flag", name)
		}
	}
	if f := rootCmd.PersistentFlags().ShorthandLookup("v"); f == nil || f.Name != "verbose" {
		t.Error("-v should be the shorthand for --verbose")
	}
}

// TestCommandFlags tests the per-command flags
func TestCommandFlags(t *testing.T) {
	tests := []struct {
		cmd   *cobra.Command
		flags []string
	}{
		{updateCmd, []string{"skip-upstream-check", "no-docs"}},
		{checkCmd, []string{"force", "workers"}},
		{docsCmd, []string{"expr"}},
		{hashPlatformsCmd, []string{"system", "set", "workers"}},
		{configInitCmd, []string{"force"}},
	}

	for _, tt := range tests {
		for _, name := range tt.flags {
			if tt.cmd.Flags().Lookup(name) == nil {
				t.Errorf("%s command should have --%s flag", tt.cmd.Name(), name)
			}
		}
	}
	if hashCmd.PersistentFlags().Lookup("unpack") == nil {
		t.Error("hash command should have --unpack flag")
	}
}

// TestUpdateRequiresThreeArgs tests argument validation of update
func TestUpdateRequiresThreeArgs(t *testing.T) {
	tests := []struct {
		args    []string
		wantErr bool
	}{
		{[]string{"package", "crush"}, true},
		{[]string{"package", "crush", "1.0"}, false},
		{[]string{"package", "crush", "1.0", "extra"}, true},
	}

	for _, tt := range tests {
		err := updateCmd.Args(updateCmd, tt.args)
		if (err != nil) != tt.wantErr {
			t.Errorf("Args(%v) error = %v, wantErr %v", tt.args, err, tt.wantErr)
		}
	}
}

func TestParsePairs(t *testing.T) {
	tests := []struct {
		name    string
		in      []string
		want    map[string]string
		wantErr bool
	}{
		{"empty", nil, map[string]string{}, false},
		{"pairs", []string{"x86_64-linux=linux-x64", "aarch64-darwin = darwin-arm64"},
			map[string]string{"x86_64-linux": "linux-x64", "aarch64-darwin": "darwin-arm64"}, false},
		{"value with equals", []string{"q=a=b"}, map[string]string{"q": "a=b"}, false},
		{"missing equals", []string{"x86_64-linux"}, nil, true},
		{"empty key", []string{"=x"}, nil, true},
		{"duplicate", []string{"a=1", "a=2"}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parsePairs(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parsePairs() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("parsePairs() = %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("parsePairs()[%q] = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}

func TestReportOutcomeExitCodes(t *testing.T) {
	n := 4
	target := pipeline.UpdateTarget{Kind: pipeline.KindPackage, Name: "crush", CurrentVersion: "0.1.0"}
	tests := []struct {
		name string
		out  pipeline.Outcome
		want int
	}{
		{"up to date", pipeline.Outcome{Kind: pipeline.OutcomeUpToDate, Target: target}, 0},
		{"no changes", pipeline.Outcome{Kind: pipeline.OutcomeNoChanges, Target: target, Reason: "no changes"}, 0},
		{"published", pipeline.Outcome{
			Kind: pipeline.OutcomePublished, Target: target, NewVersion: "0.2.0",
			PullRequest: &pipeline.PullRequestDescriptor{Branch: "update/crush", Number: &n},
			Warnings:    []pipeline.Warning{{Stage: pipeline.StageAutoMerge, Message: "disabled"}},
		}, 0},
		{"failed with command output", pipeline.Outcome{
			Kind: pipeline.OutcomeFailed, Target: target, Stage: pipeline.StageValidate,
			Err: &pipeline.StageError{Stage: pipeline.StageValidate, Err: &command.Error{
				Invocation: command.New("nix", "build"), ExitCode: 1, Stderr: "boom\n",
			}},
		}, 1},
		{"failed plain", pipeline.Outcome{
			Kind: pipeline.OutcomeFailed, Target: target, Stage: pipeline.StageScope,
			Err: &pipeline.StageError{Stage: pipeline.StageScope, Err: errors.New("outside scope")},
		}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := reportOutcome(tt.out); got != tt.want {
				t.Errorf("reportOutcome() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestManifestVersion(t *testing.T) {
	dir := t.TempDir()
	pkgDir := filepath.Join(dir, "crush")
	if err := os.MkdirAll(pkgDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(pkgDir, "sources.json"), []byte(`{"version": "0.7.1"}`), 0644); err != nil {
		t.Fatal(err)
	}

	current := manifestVersion(dir, manifest.Config{"crush": {Manifest: "sources.json"}})
	got, err := current("crush")
	if err != nil {
		t.Fatalf("manifestVersion() error = %v", err)
	}
	if got != "0.7.1" {
		t.Errorf("manifestVersion() = %q, want 0.7.1", got)
	}

	if _, err := current("droid"); err == nil {
		t.Error("manifestVersion() should fail for a package without a manifest")
	}
}

func TestFirstNonEmpty(t *testing.T) {
	if got := firstNonEmpty("", "", "c"); got != "c" {
		t.Errorf("firstNonEmpty() = %q, want c", got)
	}
	if got := firstNonEmpty(); got != "" {
		t.Errorf("firstNonEmpty() = %q, want empty", got)
	}
}

func TestUpstreamLatest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"release": {"version": "2.0.0"}}`))
	}))
	defer srv.Close()

	manifests := manifest.Config{
		"crush": {SourceConfig: upstream.SourceConfig{Source: upstream.SourceJSON, URL: srv.URL, Path: "release.version"}},
	}
	clients := upstream.Clients{HTTP: upstream.NewRetryableHTTPClientWithConfig(upstream.NoRetryConfig())}
	latest := upstreamLatest(manifests, clients)
	ctx := context.Background()

	v, known, err := latest(ctx, pipeline.UpdateTarget{Kind: pipeline.KindPackage, Name: "crush", CurrentVersion: "1.0.0"})
	if err != nil || !known || v != "2.0.0" {
		t.Errorf("latest(crush) = %q, %v, %v; want 2.0.0, true, nil", v, known, err)
	}

	if _, known, _ := latest(ctx, pipeline.UpdateTarget{Kind: pipeline.KindPackage, Name: "droid", CurrentVersion: "1"}); known {
		t.Error("a package without a source entry should be unknown")
	}
	if _, known, _ := latest(ctx, pipeline.UpdateTarget{Kind: pipeline.KindExternalInput, Name: "crush", CurrentVersion: "1"}); known {
		t.Error("flake inputs should be unknown")
	}
}

func TestWriteDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nixbump", "config.yaml")
	repo := t.TempDir()

	if err := writeDefaultConfig(path, repo, false); err != nil {
		t.Fatalf("writeDefaultConfig() error = %v", err)
	}
	cfg, err := config.LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.Repository.Path != repo {
		t.Errorf("Repository.Path = %q, want %q", cfg.Repository.Path, repo)
	}
	if cfg.Repository.PackagesDir != config.DefaultPackagesDir {
		t.Errorf("Repository.PackagesDir = %q, want default", cfg.Repository.PackagesDir)
	}

	if err := writeDefaultConfig(path, "", false); err == nil {
		t.Error("writeDefaultConfig() should refuse to overwrite without force")
	}
	if err := writeDefaultConfig(path, "", true); err != nil {
		t.Errorf("writeDefaultConfig(force) error = %v", err)
	}
}

func TestUpstreamLatestRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"message":"API rate limit exceeded"}`))
	}))
	defer srv.Close()

	gh := github.NewClient("")
	gh.BaseURL = srv.URL
	gh.Limiter = nil
	manifests := manifest.Config{
		"crush": {SourceConfig: upstream.SourceConfig{Source: upstream.SourceGitHub, Repository: "charmbracelet/crush"}},
	}
	latest := upstreamLatest(manifests, upstream.Clients{GitHub: gh})

	_, known, err := latest(context.Background(), pipeline.UpdateTarget{Kind: pipeline.KindPackage, Name: "crush", CurrentVersion: "1.0.0"})
	if !known || err == nil {
		t.Fatalf("latest() = %v, %v; want a known failure", known, err)
	}
	if !github.IsRateLimited(err) || !strings.Contains(err.Error(), "--skip-upstream-check") {
		t.Errorf("error should name the rate limit and the escape hatch, got %v", err)
	}
}

func TestCheckAll(t *testing.T) {
	current := func(string) (string, error) { return "1.0.0", nil }
	checker := upstream.NewChecker(map[string]upstream.SourceConfig{}, upstream.Clients{}, current)

	outcomes, err := checkAll(context.Background(), checker, []string{"crush", "droid"}, 2, false)
	if err != nil {
		t.Fatalf("checkAll() error = %v", err)
	}
	if len(outcomes) != 2 || outcomes[0].name != "crush" || outcomes[1].name != "droid" {
		t.Fatalf("checkAll() = %+v", outcomes)
	}
	for _, o := range outcomes {
		if !errors.Is(o.err, upstream.ErrPackageNotConfigured) {
			t.Errorf("%s: err = %v, want ErrPackageNotConfigured", o.name, o.err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := checkAll(ctx, checker, []string{"crush"}, 1, false); !errors.Is(err, context.Canceled) {
		t.Errorf("checkAll() on a cancelled context = %v, want context.Canceled", err)
	}
}
