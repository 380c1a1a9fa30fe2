package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/obentoo/nixbump/internal/common/github"
)

var (
	// ErrNotFound means upstream answered but has no version to offer
	ErrNotFound = errors.New("upstream version not found")
	// ErrNetwork means upstream could not be reached
	ErrNetwork = errors.New("upstream unreachable")

	ErrUnknownSource     = errors.New("unknown source type")
	ErrMissingRepository = errors.New("missing required field: repository")
	ErrMissingPackage    = errors.New("missing required field: package")
	ErrMissingURL        = errors.New("missing required field: url")
	ErrMissingPath       = errors.New("missing required field: path")
	ErrMissingPattern    = errors.New("missing required field: pattern")
)

// Source types accepted in packages.toml
const (
	SourceGitHub     = "github"
	SourceGitHubTags = "github-tags"
	SourceNPM        = "npm"
	SourceJSON       = "json"
	SourceRegex      = "regex"
	SourceHTML       = "html"
)

// DefaultNPMRegistry is the registry queried by npm sources
const DefaultNPMRegistry = "https://registry.npmjs.org"

// Source reports the latest upstream version of one package.
type Source interface {
	Latest(ctx context.Context) (string, error)
}

// SourceConfig is the upstream half of a package entry in
// .nixbump/packages.toml.
type SourceConfig struct {
	// Source is one of github, github-tags, npm, json, regex or html
	Source string `toml:"source"`
	// Repository is owner/name for github and github-tags sources
	Repository string `toml:"repository,omitempty"`
	// TagPattern optionally extracts the version from a tag. For
	// github-tags sources, tags that do not match are skipped.
	TagPattern string `toml:"tag_pattern,omitempty"`
	// Package is the npm package name
	Package string `toml:"package,omitempty"`
	// URL is the page fetched by json, regex and html sources
	URL string `toml:"url,omitempty"`
	// Path is the JSON path for json sources
	Path string `toml:"path,omitempty"`
	// Pattern is the capturing regex for regex sources, or the optional
	// post-filter for html sources
	Pattern  string            `toml:"pattern,omitempty"`
	Selector string            `toml:"selector,omitempty"`
	XPath    string            `toml:"xpath,omitempty"`
	Headers  map[string]string `toml:"headers,omitempty"`
}

// Validate checks that the fields required by the source type are set.
func (c SourceConfig) Validate() error {
	switch c.Source {
	case SourceGitHub, SourceGitHubTags:
		if c.Repository == "" {
			return ErrMissingRepository
		}
		if c.TagPattern != "" {
			if _, err := compileCapturing(c.TagPattern); err != nil {
				return fmt.Errorf("tag_pattern: %w", err)
			}
		}
	case SourceNPM:
		if c.Package == "" {
			return ErrMissingPackage
		}
	case SourceJSON:
		if c.URL == "" {
			return ErrMissingURL
		}
		if c.Path == "" {
			return ErrMissingPath
		}
	case SourceRegex:
		if c.URL == "" {
			return ErrMissingURL
		}
		if c.Pattern == "" {
			return ErrMissingPattern
		}
	case SourceHTML:
		if c.URL == "" {
			return ErrMissingURL
		}
		if c.Selector == "" && c.XPath == "" {
			return ErrNoSelectorOrXPath
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSource, c.Source)
	}
	return nil
}

// Clients bundles the transports a Source may need.
type Clients struct {
	HTTP        *RetryableHTTPClient
	GitHub      *github.Client
	NPMRegistry string
}

// NewSource builds the Source described by cfg.
func NewSource(cfg SourceConfig, clients Clients) (Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Source {
	case SourceGitHub:
		s := &GitHubRelease{Client: clients.GitHub, Repository: cfg.Repository}
		if cfg.TagPattern != "" {
			s.tagPattern, _ = compileCapturing(cfg.TagPattern)
		}
		return s, nil
	case SourceGitHubTags:
		s := &GitHubTags{Client: clients.GitHub, Repository: cfg.Repository}
		if cfg.TagPattern != "" {
			s.tagPattern, _ = compileCapturing(cfg.TagPattern)
		}
		return s, nil
	case SourceNPM:
		return &NPMRegistry{Client: clients.HTTP, Registry: clients.NPMRegistry, Package: cfg.Package}, nil
	}

	var (
		ex  Extractor
		err error
	)
	switch cfg.Source {
	case SourceJSON:
		ex = &JSONExtractor{Path: cfg.Path}
	case SourceRegex:
		ex, err = NewRegexExtractor(cfg.Pattern)
	case SourceHTML:
		ex, err = NewHTMLExtractor(cfg.Selector, cfg.XPath, cfg.Pattern)
	}
	if err != nil {
		return nil, err
	}
	return &Page{Client: clients.HTTP, URL: cfg.URL, Headers: cfg.Headers, Extractor: ex}, nil
}

// GitHubRelease reads the tag of the latest GitHub release.
type GitHubRelease struct {
	Client     *github.Client
	Repository string
	tagPattern *regexp.Regexp
}

func (s *GitHubRelease) Latest(ctx context.Context) (string, error) {
	release, err := s.Client.LatestRelease(ctx, s.Repository)
	if err != nil {
		if github.IsNotFound(err) || errors.Is(err, github.ErrMalformedResponse) {
			return "", fmt.Errorf("%w: %s: %v", ErrNotFound, s.Repository, err)
		}
		return "", fmt.Errorf("%w: %s: %w", ErrNetwork, s.Repository, err)
	}
	return VersionFromTag(release.TagName, s.tagPattern)
}

// GitHubTags picks the highest version among a repository's tags, for
// projects that tag without publishing releases.
type GitHubTags struct {
	Client     *github.Client
	Repository string
	tagPattern *regexp.Regexp
}

func (s *GitHubTags) Latest(ctx context.Context) (string, error) {
	tags, err := s.Client.Tags(ctx, s.Repository)
	if err != nil {
		if github.IsNotFound(err) {
			return "", fmt.Errorf("%w: %s: %v", ErrNotFound, s.Repository, err)
		}
		return "", fmt.Errorf("%w: %s: %w", ErrNetwork, s.Repository, err)
	}

	best := ""
	for _, tag := range tags {
		v, err := VersionFromTag(tag.Name, s.tagPattern)
		if err != nil {
			continue
		}
		if best == "" || CompareVersions(v, best) > 0 {
			best = v
		}
	}
	if best == "" {
		return "", fmt.Errorf("%w: %s has no matching tags", ErrNotFound, s.Repository)
	}
	return best, nil
}

// VersionFromTag applies pattern to tag, or strips a leading v when
// pattern is nil.
func VersionFromTag(tag string, pattern *regexp.Regexp) (string, error) {
	if pattern == nil {
		v := strings.TrimPrefix(tag, "v")
		if v == "" {
			return "", fmt.Errorf("%w: empty tag", ErrNotFound)
		}
		return v, nil
	}
	m := pattern.FindStringSubmatch(tag)
	if m == nil || m[1] == "" {
		return "", fmt.Errorf("%w: tag %q does not match %s", ErrNotFound, tag, pattern)
	}
	return m[1], nil
}

// NPMRegistry reads the latest dist-tag of an npm package.
type NPMRegistry struct {
	Client *RetryableHTTPClient
	// Registry defaults to DefaultNPMRegistry
	Registry string
	Package  string
}

func (s *NPMRegistry) Latest(ctx context.Context) (string, error) {
	registry := s.Registry
	if registry == "" {
		registry = DefaultNPMRegistry
	}
	// scoped packages keep their @ but escape the slash
	endpoint := strings.TrimSuffix(registry, "/") + "/" + url.PathEscape(s.Package) + "/latest"

	body, err := fetch(ctx, s.Client, endpoint, nil)
	if err != nil {
		return "", err
	}

	var doc struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrNotFound, s.Package, err)
	}
	if doc.Version == "" {
		return "", fmt.Errorf("%w: %s: response has no version", ErrNotFound, s.Package)
	}
	return doc.Version, nil
}

// Page fetches a URL and hands the body to an Extractor.
type Page struct {
	Client    *RetryableHTTPClient
	URL       string
	Headers   map[string]string
	Extractor Extractor
}

func (s *Page) Latest(ctx context.Context) (string, error) {
	body, err := fetch(ctx, s.Client, s.URL, s.Headers)
	if err != nil {
		return "", err
	}
	v, err := s.Extractor.Extract(body)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrNotFound, s.URL, err)
	}
	return v, nil
}

// maxBody caps how much of a page is read
const maxBody = 10 << 20

func fetch(ctx context.Context, client *RetryableHTTPClient, rawURL string, headers map[string]string) ([]byte, error) {
	resp, err := client.Get(ctx, rawURL, headers)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNetwork, rawURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNetwork, rawURL, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s: HTTP 404", ErrNotFound, rawURL)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("%w: %s: HTTP %d", ErrNetwork, rawURL, resp.StatusCode)
	}
	return body, nil
}
