package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
)

var (
	ErrMissingToken  = errors.New("GH_TOKEN environment variable is required")
	ErrInvalidLayout = errors.New("invalid repository layout path")
)

// Environment variables read by Resolve.
const (
	EnvSystem        = "SYSTEM"
	EnvLabels        = "PR_LABELS"
	EnvAutoMerge     = "AUTO_MERGE"
	EnvToken         = "GH_TOKEN"
	EnvTokenFallback = "GITHUB_TOKEN"
	EnvSmokePackages = "SMOKE_PACKAGES"
	EnvBaseBranch    = "BASE_BRANCH"
)

// NixPath is exported to every child process so that <nixpkgs> lookups
// resolve through the flake registry.
const NixPath = "nixpkgs=flake:nixpkgs"

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// Runtime is the fully resolved per-invocation configuration.
type Runtime struct {
	RepoDir         string
	System          string
	Labels          []string
	AutoMerge       bool
	Token           string
	Remote          string
	BaseBranch      string
	PackagesDir     string
	LockFile        string
	DocsFile        string
	FormatterChecks []string
	SmokePackages   []string
	// Env holds variables added to every child process.
	Env map[string]string
}

// Resolve merges the file configuration with the environment. It fails with
// ErrMissingToken before anything touches the repository.
func Resolve(cfg *Config, repoDir string, lookup LookupFunc) (*Runtime, error) {
	if cfg == nil {
		cfg = Default()
	}
	if lookup == nil {
		lookup = os.LookupEnv
	}

	get := func(key string) string {
		v, ok := lookup(key)
		if !ok {
			return ""
		}
		return strings.TrimSpace(v)
	}

	token := get(EnvToken)
	if token == "" {
		token = get(EnvTokenFallback)
	}
	if token == "" {
		token = cfg.GitHub.Token
	}
	if token == "" {
		return nil, ErrMissingToken
	}

	rt := &Runtime{
		RepoDir:         repoDir,
		System:          firstNonEmpty(get(EnvSystem), cfg.Validation.System, DefaultSystem),
		Remote:          firstNonEmpty(cfg.Repository.Remote, DefaultRemote),
		BaseBranch:      firstNonEmpty(get(EnvBaseBranch), cfg.Repository.BaseBranch, DefaultBaseBranch),
		FormatterChecks: cfg.Validation.FormatterChecks,
		Token:           token,
		AutoMerge:       cfg.PullRequest.AutoMerge,
	}
	layout := []struct {
		key   string
		value string
		dst   *string
	}{
		{"packages_dir", firstNonEmpty(cfg.Repository.PackagesDir, DefaultPackagesDir), &rt.PackagesDir},
		{"lock_file", firstNonEmpty(cfg.Repository.LockFile, DefaultLockFile), &rt.LockFile},
		{"docs_file", firstNonEmpty(cfg.Repository.DocsFile, DefaultDocsFile), &rt.DocsFile},
	}
	for _, l := range layout {
		clean, err := CleanRelPath(l.value)
		if err != nil {
			return nil, fmt.Errorf("repository.%s: %w", l.key, err)
		}
		*l.dst = clean
	}

	if len(rt.FormatterChecks) == 0 {
		rt.FormatterChecks = DefaultFormatterChecks
	}

	if raw, ok := lookup(EnvLabels); ok {
		rt.Labels = SplitLabels(raw)
	} else if len(cfg.PullRequest.Labels) > 0 {
		rt.Labels = SplitLabels(strings.Join(cfg.PullRequest.Labels, ","))
	} else {
		rt.Labels = append([]string(nil), DefaultLabels...)
	}

	if raw := get(EnvAutoMerge); raw != "" {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s value %q: %w", EnvAutoMerge, raw, err)
		}
		rt.AutoMerge = enabled
	}

	// a set but empty SMOKE_PACKAGES disables smoke builds
	if raw, ok := lookup(EnvSmokePackages); ok {
		rt.SmokePackages = strings.Fields(raw)
	} else {
		smokeFile := firstNonEmpty(cfg.Validation.SmokePackagesFile, DefaultSmokePackagesFile)
		if !filepath.IsAbs(smokeFile) {
			smokeFile = filepath.Join(repoDir, smokeFile)
		}
		pkgs, err := ReadListFile(smokeFile)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read smoke packages: %w", err)
		}
		rt.SmokePackages = pkgs
	}

	rt.Env = map[string]string{
		"NIX_PATH": NixPath,
		EnvToken:   token,
	}

	return rt, nil
}

// CleanRelPath canonicalises a slash separated path relative to the
// repository root. Absolute paths, the root itself and paths escaping it
// wrap ErrInvalidLayout.
func CleanRelPath(p string) (string, error) {
	clean := path.Clean(filepath.ToSlash(strings.TrimSpace(p)))
	switch {
	case path.IsAbs(clean):
		return "", fmt.Errorf("%w: %q is absolute", ErrInvalidLayout, p)
	case clean == ".":
		return "", fmt.Errorf("%w: %q names the repository root", ErrInvalidLayout, p)
	case clean == ".." || strings.HasPrefix(clean, "../"):
		return "", fmt.Errorf("%w: %q leaves the repository", ErrInvalidLayout, p)
	}
	return clean, nil
}

// SplitLabels splits a comma separated label list, trimming whitespace and
// dropping empty and repeated entries while keeping first-seen order.
func SplitLabels(raw string) []string {
	seen := make(map[string]struct{})
	labels := []string{}
	for _, l := range strings.Split(raw, ",") {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		labels = append(labels, l)
	}
	return labels
}

// ReadListFile reads one entry per line, ignoring blank lines and text after
// a '#'.
func ReadListFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ParseList(f)
}

// ParseList parses the line-oriented list format used by the smoke package
// file and the nix-update argument files.
func ParseList(r interface{ Read([]byte) (int, error) }) ([]string, error) {
	var out []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.Index(line, "#"); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
