// Package hash computes the content hashes a Nix package pins: source
// archives via nix store prefetch-file, and dependency lock hashes by
// building against a placeholder and reading the hash nix reports.
package hash

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/obentoo/nixbump/internal/common/command"
	"github.com/obentoo/nixbump/internal/common/logger"
	"github.com/obentoo/nixbump/internal/common/parallel"
)

// DummyHash is written in place of a dependency hash before the build
// that reveals the real one.
const DummyHash = "sha256-AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA="

var (
	// ErrPlaceholderAccepted means the build succeeded with DummyHash in place,
	// so no hash could be learned from it.
	ErrPlaceholderAccepted = errors.New("build succeeded with placeholder hash")
	// ErrMalformedPrefetch means prefetch-file printed something other than
	// {"hash": ..., "storePath": ...}
	ErrMalformedPrefetch = errors.New("malformed nix store prefetch-file output")
	ErrEmptyURL          = errors.New("url is empty")
	ErrEmptyTarget       = errors.New("build target is empty")
)

// BuildError is returned when the placeholder build failed without
// reporting a hash. Output is the full combined build log.
type BuildError struct {
	Target string
	Output string
	Err    error
}

func (e *BuildError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "could not extract hash from failed build of %s", e.Target)
	if out := strings.TrimRight(e.Output, "\n"); out != "" {
		b.WriteString("\n--- build output ---\n")
		b.WriteString(out)
	}
	return b.String()
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

var hashPatterns = []*regexp.Regexp{
	regexp.MustCompile(`got:\s+(sha256-[A-Za-z0-9+/=]+)`),
	regexp.MustCompile(`got\s+(sha256-[A-Za-z0-9+/=]+)`),
	regexp.MustCompile(`actual:\s+(sha256-[A-Za-z0-9+/=]+)`),
}

// ExtractFromBuildOutput finds the hash nix reports on a fixed-output
// hash mismatch.
func ExtractFromBuildOutput(output string) (string, bool) {
	for _, re := range hashPatterns {
		if m := re.FindStringSubmatch(output); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// Calculator runs nix to compute hashes.
type Calculator struct {
	runner command.Runner
	// Workers bounds PlatformHashes; zero means one per platform.
	Workers int
}

// NewCalculator creates a Calculator that runs nix through runner.
func NewCalculator(runner command.Runner) *Calculator {
	return &Calculator{runner: runner}
}

type prefetchResult struct {
	Hash      *string `json:"hash"`
	StorePath *string `json:"storePath"`
}

// ForURL returns the SRI sha256 of the file at url, or of its unpacked
// contents when unpack is set.
func (c *Calculator) ForURL(ctx context.Context, url string, unpack bool) (string, error) {
	if url == "" {
		return "", ErrEmptyURL
	}

	args := []string{"store", "prefetch-file", "--json", "--hash-type", "sha256"}
	if unpack {
		args = append(args, "--unpack")
	}
	args = append(args, url)

	res, err := c.runner.Run(ctx, command.New("nix", args...))
	if err != nil {
		return "", err
	}

	var out prefetchResult
	if err := json.Unmarshal([]byte(res.Stdout), &out); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedPrefetch, err)
	}
	if out.Hash == nil || *out.Hash == "" {
		return "", fmt.Errorf("%w: missing hash", ErrMalformedPrefetch)
	}
	if out.StorePath == nil {
		return "", fmt.Errorf("%w: missing storePath", ErrMalformedPrefetch)
	}
	return *out.Hash, nil
}

// ForDependencyLock learns a dependency hash by trust on first failure:
// write stores DummyHash, the target is built, and the hash nix reports in
// the mismatch error is returned. The caller persists the result.
func (c *Calculator) ForDependencyLock(ctx context.Context, target string, write func(hash string) error) (string, error) {
	if target == "" {
		return "", ErrEmptyTarget
	}
	if err := write(DummyHash); err != nil {
		return "", fmt.Errorf("write placeholder hash: %w", err)
	}

	inv := command.New("nix", "build", "--log-format", "bar-with-logs", "--accept-flake-config", target)
	res, err := c.runner.Run(ctx, inv)
	if err == nil {
		return "", fmt.Errorf("%w: %s", ErrPlaceholderAccepted, target)
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	output := res.Combined()
	var cmdErr *command.Error
	if output == "" && errors.As(err, &cmdErr) {
		output = cmdErr.Output()
	}

	h, ok := ExtractFromBuildOutput(output)
	if !ok {
		return "", &BuildError{Target: target, Output: output, Err: err}
	}
	logger.Debug("dependency hash for %s: %s", target, h)
	return h, nil
}

// PlatformHashes hashes one download per platform. systems maps a Nix
// system (x86_64-linux) to the value substituted for {platform} in tmpl;
// vars supplies the remaining {key} placeholders. The result is keyed by
// Nix system.
func (c *Calculator) PlatformHashes(ctx context.Context, tmpl string, systems map[string]string, vars map[string]string, unpack bool) (map[string]string, error) {
	names := make([]string, 0, len(systems))
	for sys := range systems {
		names = append(names, sys)
	}
	sort.Strings(names)

	hashes, err := parallel.Map(ctx, names, c.Workers, func(ctx context.Context, sys string) (string, error) {
		url := Expand(tmpl, vars, map[string]string{"platform": systems[sys]})
		h, err := c.ForURL(ctx, url, unpack)
		if err != nil {
			return "", fmt.Errorf("%s: %w", sys, err)
		}
		logger.Info("Fetched hash for %s", sys)
		return h, nil
	})
	if err != nil {
		return nil, err
	}

	out := make(map[string]string, len(names))
	for i, sys := range names {
		out[sys] = hashes[i]
	}
	return out, nil
}

var placeholder = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// Expand replaces {key} placeholders from the given maps, later maps
// taking precedence. Unknown placeholders are left as they are.
func Expand(tmpl string, vars ...map[string]string) string {
	return placeholder.ReplaceAllStringFunc(tmpl, func(m string) string {
		key := m[1 : len(m)-1]
		for i := len(vars) - 1; i >= 0; i-- {
			if v, ok := vars[i][key]; ok {
				return v
			}
		}
		return m
	})
}
