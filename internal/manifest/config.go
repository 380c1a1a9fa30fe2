// Package manifest is the built-in per-package updater. It reads a
// package's hashes.json, asks upstream for a newer version and rewrites the
// manifest with fresh hashes, as declared in .nixbump/packages.toml.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"

	"github.com/obentoo/nixbump/internal/upstream"
)

// ConfigPath is the repository-relative location of the updater config
const ConfigPath = ".nixbump/packages.toml"

// DefaultManifest is the manifest file name inside packages/<name>/
const DefaultManifest = "hashes.json"

// DefaultSourceHashField is the manifest key that receives the source hash
const DefaultSourceHashField = "hash"

var (
	ErrMissingHashURL     = errors.New("missing required field: url")
	ErrMissingHashField   = errors.New("missing required field: field")
	ErrMissingSystems     = errors.New("missing required field: systems")
	ErrReservedField      = errors.New("field name is reserved")
	ErrDuplicateHashField = errors.New("manifest field written twice")
	ErrNotConfigured      = errors.New("package has no entry in " + ConfigPath)
)

// URLHash hashes one download, e.g. the source tarball.
type URLHash struct {
	URL    string `toml:"url"`
	Unpack bool   `toml:"unpack,omitempty"`
	// Field defaults to DefaultSourceHashField
	Field string `toml:"field,omitempty"`
}

// DependencyHash learns a fixed-output dependency hash (vendorHash,
// npmDepsHash, ...) by building against a placeholder.
type DependencyHash struct {
	Field string `toml:"field"`
	// Target defaults to .#<name>
	Target string `toml:"target,omitempty"`
}

// PlatformHashes hashes one download per Nix system. URL may use {platform}
// and {version}.
type PlatformHashes struct {
	URL     string            `toml:"url"`
	Systems map[string]string `toml:"systems"`
	Unpack  bool              `toml:"unpack,omitempty"`
}

// PackageConfig is one [name] table of packages.toml.
type PackageConfig struct {
	upstream.SourceConfig

	// Manifest is relative to packages/<name>/ and defaults to hashes.json
	Manifest       string                    `toml:"manifest,omitempty"`
	SourceHash     *URLHash                  `toml:"source_hash,omitempty"`
	DependencyHash *DependencyHash           `toml:"dependency_hash,omitempty"`
	PlatformHashes map[string]PlatformHashes `toml:"platform_hashes,omitempty"`
}

// Config maps package names to their updater configuration.
type Config map[string]PackageConfig

// LoadConfig reads .nixbump/packages.toml from repoDir. A missing file is
// an empty Config.
func LoadConfig(repoDir string) (Config, error) {
	path := filepath.Join(repoDir, ConfigPath)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Config{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ConfigPath, err)
	}

	cfg := Config{}
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", ConfigPath, err)
	}
	return cfg, nil
}

// Names returns the configured package names, sorted.
func (c Config) Names() []string {
	names := make([]string, 0, len(c))
	for n := range c {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Sources returns the upstream half of every entry.
func (c Config) Sources() map[string]upstream.SourceConfig {
	out := make(map[string]upstream.SourceConfig, len(c))
	for n, p := range c {
		out[n] = p.SourceConfig
	}
	return out
}

// ManifestFile returns the manifest file name.
func (p PackageConfig) ManifestFile() string {
	if p.Manifest == "" {
		return DefaultManifest
	}
	return p.Manifest
}

// Validate checks the entry for name. Every manifest field is written at
// most once and "version" is never a hash field.
func (p PackageConfig) Validate(name string) error {
	if err := p.SourceConfig.Validate(); err != nil {
		return fmt.Errorf("package %s: %w", name, err)
	}

	seen := map[string]string{"version": "version"}
	claim := func(field, owner string) error {
		if prev, ok := seen[field]; ok {
			if prev == "version" {
				return fmt.Errorf("package %s: %s: %w: %q", name, owner, ErrReservedField, field)
			}
			return fmt.Errorf("package %s: %s and %s: %w: %q", name, prev, owner, ErrDuplicateHashField, field)
		}
		seen[field] = owner
		return nil
	}

	if p.SourceHash != nil {
		if p.SourceHash.URL == "" {
			return fmt.Errorf("package %s: source_hash: %w", name, ErrMissingHashURL)
		}
		if err := claim(p.SourceHash.field(), "source_hash"); err != nil {
			return err
		}
	}

	tables := make([]string, 0, len(p.PlatformHashes))
	for t := range p.PlatformHashes {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	for _, t := range tables {
		ph := p.PlatformHashes[t]
		if ph.URL == "" {
			return fmt.Errorf("package %s: platform_hashes.%s: %w", name, t, ErrMissingHashURL)
		}
		if len(ph.Systems) == 0 {
			return fmt.Errorf("package %s: platform_hashes.%s: %w", name, t, ErrMissingSystems)
		}
		if err := claim(t, "platform_hashes."+t); err != nil {
			return err
		}
	}

	if p.DependencyHash != nil {
		if p.DependencyHash.Field == "" {
			return fmt.Errorf("package %s: dependency_hash: %w", name, ErrMissingHashField)
		}
		if err := claim(p.DependencyHash.Field, "dependency_hash"); err != nil {
			return err
		}
	}
	return nil
}

func (h *URLHash) field() string {
	if h.Field == "" {
		return DefaultSourceHashField
	}
	return h.Field
}

func (d *DependencyHash) target(name string) string {
	if d.Target == "" {
		return ".#" + name
	}
	return d.Target
}
