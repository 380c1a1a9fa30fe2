package upstream

import (
	"context"
	"errors"
	"fmt"

	"github.com/obentoo/nixbump/internal/common/logger"
)

// ErrPackageNotConfigured is returned when a package has no source entry
var ErrPackageNotConfigured = errors.New("package has no upstream source configured")

// CheckResult is the outcome of comparing one package against upstream.
type CheckResult struct {
	Name      string
	Current   string
	Latest    string
	HasUpdate bool
	FromCache bool
}

// CurrentVersionFunc returns the version a package is currently pinned at
type CurrentVersionFunc func(name string) (string, error)

// Checker answers "is there something newer upstream" for configured
// packages, consulting the cache first unless forced.
type Checker struct {
	sources map[string]SourceConfig
	clients Clients
	current CurrentVersionFunc
	cache   *Cache
}

// CheckerOption configures a Checker
type CheckerOption func(*Checker)

// WithCache enables the version cache
func WithCache(cache *Cache) CheckerOption {
	return func(c *Checker) {
		c.cache = cache
	}
}

// NewChecker creates a Checker over the given source entries.
func NewChecker(sources map[string]SourceConfig, clients Clients, current CurrentVersionFunc, opts ...CheckerOption) *Checker {
	c := &Checker{sources: sources, clients: clients, current: current}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check looks up name upstream. With force the cache is bypassed but
// still refreshed.
func (c *Checker) Check(ctx context.Context, name string, force bool) (*CheckResult, error) {
	cfg, ok := c.sources[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPackageNotConfigured, name)
	}

	current, err := c.current(name)
	if err != nil {
		return nil, fmt.Errorf("read current version of %s: %w", name, err)
	}
	result := &CheckResult{Name: name, Current: current}

	if c.cache != nil && !force {
		if entry, ok := c.cache.Get(name); ok {
			logger.Debug("%s: cached upstream version %s from %s", name, entry.Version, entry.Source)
			result.Latest = entry.Version
			result.FromCache = true
			result.HasUpdate = ShouldUpdate(current, entry.Version)
			return result, nil
		}
	}

	src, err := NewSource(cfg, c.clients)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	latest, err := src.Latest(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	if c.cache != nil {
		if err := c.cache.Set(name, latest, cfg.Describe()); err != nil {
			logger.Warn("could not update version cache: %v", err)
		}
	}

	result.Latest = latest
	result.HasUpdate = ShouldUpdate(current, latest)
	return result, nil
}

// Describe names where a source looks, for logs and the cache.
func (c SourceConfig) Describe() string {
	switch c.Source {
	case SourceGitHub, SourceGitHubTags:
		return c.Source + ":" + c.Repository
	case SourceNPM:
		return "npm:" + c.Package
	}
	return c.Source + ":" + c.URL
}
