package manifest

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/obentoo/nixbump/internal/common/logger"
	"github.com/obentoo/nixbump/internal/hash"
	"github.com/obentoo/nixbump/internal/upstream"
)

// Result describes what Update did.
type Result struct {
	Name    string
	Current string
	Latest  string
	Updated bool
}

// Updater bumps packages whose update is declared in packages.toml.
type Updater struct {
	// PackagesDir is the directory holding one subdirectory per package
	PackagesDir string
	Clients     upstream.Clients
	Hashes      *hash.Calculator
	// NewSource defaults to upstream.NewSource
	NewSource func(upstream.SourceConfig, upstream.Clients) (upstream.Source, error)
}

// ManifestPath returns the manifest location for name.
func (u *Updater) ManifestPath(name string, cfg PackageConfig) string {
	return filepath.Join(u.PackagesDir, name, cfg.ManifestFile())
}

// Update checks upstream and, when it is newer, rewrites the manifest with
// the new version and every configured hash. The tree is left untouched
// when the package is already up to date.
func (u *Updater) Update(ctx context.Context, name string, cfg PackageConfig) (*Result, error) {
	if err := cfg.Validate(name); err != nil {
		return nil, err
	}

	path := u.ManifestPath(name, cfg)
	doc, err := ReadDocument(path)
	if err != nil {
		return nil, err
	}
	current, err := doc.String("version")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	newSource := u.NewSource
	if newSource == nil {
		newSource = upstream.NewSource
	}
	src, err := newSource(cfg.SourceConfig, u.Clients)
	if err != nil {
		return nil, fmt.Errorf("package %s: %w", name, err)
	}
	latest, err := src.Latest(ctx)
	if err != nil {
		return nil, fmt.Errorf("package %s: %w", name, err)
	}

	res := &Result{Name: name, Current: current, Latest: latest}
	logger.Info("Current: %s, Latest: %s", current, latest)
	if !upstream.ShouldUpdate(current, latest) {
		logger.Info("Already up to date")
		return res, nil
	}

	vars := map[string]string{"version": latest}
	if err := doc.Set("version", latest); err != nil {
		return nil, err
	}

	if sh := cfg.SourceHash; sh != nil {
		h, err := u.Hashes.ForURL(ctx, hash.Expand(sh.URL, vars), sh.Unpack)
		if err != nil {
			return nil, fmt.Errorf("package %s: source hash: %w", name, err)
		}
		if err := doc.Set(sh.field(), h); err != nil {
			return nil, err
		}
	}

	tables := make([]string, 0, len(cfg.PlatformHashes))
	for t := range cfg.PlatformHashes {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	for _, t := range tables {
		ph := cfg.PlatformHashes[t]
		hashes, err := u.Hashes.PlatformHashes(ctx, ph.URL, ph.Systems, vars, ph.Unpack)
		if err != nil {
			return nil, fmt.Errorf("package %s: platform_hashes.%s: %w", name, t, err)
		}
		if err := doc.Set(t, hashes); err != nil {
			return nil, err
		}
	}

	if dh := cfg.DependencyHash; dh != nil {
		write := func(h string) error {
			if err := doc.Set(dh.Field, h); err != nil {
				return err
			}
			return WriteDocument(path, doc)
		}
		h, err := u.Hashes.ForDependencyLock(ctx, dh.target(name), write)
		if err != nil {
			return nil, fmt.Errorf("package %s: %s: %w", name, dh.Field, err)
		}
		if err := doc.Set(dh.Field, h); err != nil {
			return nil, err
		}
	}

	if err := WriteDocument(path, doc); err != nil {
		return nil, err
	}
	res.Updated = true
	logger.Info("Updated to %s", latest)
	return res, nil
}
