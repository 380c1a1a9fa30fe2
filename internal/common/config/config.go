package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

var (
	ErrRepositoryNotFound = errors.New("repository path does not exist")
	ErrNotAFlake          = errors.New("repository has no flake.nix")
)

// Default values applied when neither the config file nor the environment
// provide one.
const (
	DefaultSystem            = "x86_64-linux"
	DefaultRemote            = "origin"
	DefaultBaseBranch        = "main"
	DefaultPackagesDir       = "packages"
	DefaultLockFile          = "flake.lock"
	DefaultDocsFile          = "README.md"
	DefaultSmokePackagesFile = ".github/smokePackages.txt"
	DefaultCacheTTL          = 3600
)

// DefaultLabels are applied to pull requests when PR_LABELS is unset.
var DefaultLabels = []string{"dependencies", "automated"}

// DefaultFormatterChecks are the flake checks run after every update.
var DefaultFormatterChecks = []string{"pkgs-formatter-check", "pkgs-formatter-denoCheck"}

// Config represents the user configuration file
type Config struct {
	Repository  RepositoryConfig  `yaml:"repository"`
	PullRequest PullRequestConfig `yaml:"pull_request"`
	GitHub      GitHubConfig      `yaml:"github"`
	Validation  ValidationConfig  `yaml:"validation"`
	Cache       CacheConfig       `yaml:"cache"`
}

// RepositoryConfig describes the flake repository layout
type RepositoryConfig struct {
	Path        string `yaml:"path,omitempty"`
	Remote      string `yaml:"remote"`
	BaseBranch  string `yaml:"base_branch"`
	PackagesDir string `yaml:"packages_dir"`
	LockFile    string `yaml:"lock_file"`
	DocsFile    string `yaml:"docs_file"`
}

// PullRequestConfig holds defaults for published pull requests
type PullRequestConfig struct {
	Labels    []string `yaml:"labels"`
	AutoMerge bool     `yaml:"auto_merge"`
}

// GitHubConfig holds GitHub API settings
type GitHubConfig struct {
	Token  string `yaml:"token,omitempty"` // Used when GH_TOKEN and GITHUB_TOKEN are unset
	APIURL string `yaml:"api_url,omitempty"`
}

// ValidationConfig controls the check plan
type ValidationConfig struct {
	System            string   `yaml:"system"`
	FormatterChecks   []string `yaml:"formatter_checks"`
	SmokePackagesFile string   `yaml:"smoke_packages_file"`
}

// CacheConfig controls the upstream version cache
type CacheConfig struct {
	Dir string `yaml:"dir,omitempty"`
	TTL int    `yaml:"ttl"` // seconds
}

// Default returns a configuration populated with built-in defaults
func Default() *Config {
	return &Config{
		Repository: RepositoryConfig{
			Remote:      DefaultRemote,
			BaseBranch:  DefaultBaseBranch,
			PackagesDir: DefaultPackagesDir,
			LockFile:    DefaultLockFile,
			DocsFile:    DefaultDocsFile,
		},
		PullRequest: PullRequestConfig{
			Labels: append([]string(nil), DefaultLabels...),
		},
		Validation: ValidationConfig{
			System:            DefaultSystem,
			FormatterChecks:   append([]string(nil), DefaultFormatterChecks...),
			SmokePackagesFile: DefaultSmokePackagesFile,
		},
		Cache: CacheConfig{
			TTL: DefaultCacheTTL,
		},
	}
}

// ConfigPaths returns all possible config file paths in priority order
// 1. ~/.config/nixbump/config.yaml (XDG standard - priority)
// 2. ~/.nixbump/config.yaml (fallback)
func ConfigPaths() ([]string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return nil, err
	}

	xdgConfig := os.Getenv("XDG_CONFIG_HOME")
	if xdgConfig == "" {
		xdgConfig = filepath.Join(home, ".config")
	}

	return []string{
		filepath.Join(xdgConfig, "nixbump", "config.yaml"),
		filepath.Join(home, ".nixbump", "config.yaml"),
	}, nil
}

// DefaultConfigPath returns the default config file path (XDG standard)
func DefaultConfigPath() (string, error) {
	paths, err := ConfigPaths()
	if err != nil {
		return "", err
	}
	return paths[0], nil
}

// FindConfigPath returns the first existing config file path
// Returns the default path if no config file exists yet
func FindConfigPath() (string, error) {
	paths, err := ConfigPaths()
	if err != nil {
		return "", err
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return paths[0], nil
}

// Load reads configuration from the first available config file
func Load() (*Config, error) {
	configPath, err := FindConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(configPath)
}

// LoadFrom reads configuration from a specific file path. A missing file
// yields built-in defaults and is not created.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.fillDefaults()

	return cfg, nil
}

// fillDefaults restores defaults for keys the file set to empty values
func (c *Config) fillDefaults() {
	d := Default()
	if c.Repository.Remote == "" {
		c.Repository.Remote = d.Repository.Remote
	}
	if c.Repository.BaseBranch == "" {
		c.Repository.BaseBranch = d.Repository.BaseBranch
	}
	if c.Repository.PackagesDir == "" {
		c.Repository.PackagesDir = d.Repository.PackagesDir
	}
	if c.Repository.LockFile == "" {
		c.Repository.LockFile = d.Repository.LockFile
	}
	if c.Repository.DocsFile == "" {
		c.Repository.DocsFile = d.Repository.DocsFile
	}
	if c.Validation.System == "" {
		c.Validation.System = d.Validation.System
	}
	if len(c.Validation.FormatterChecks) == 0 {
		c.Validation.FormatterChecks = d.Validation.FormatterChecks
	}
	if c.Validation.SmokePackagesFile == "" {
		c.Validation.SmokePackagesFile = d.Validation.SmokePackagesFile
	}
	if c.Cache.TTL <= 0 {
		c.Cache.TTL = d.Cache.TTL
	}
}

// SaveTo writes configuration to a specific file path
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// RepositoryPath returns the expanded repository path. An unset path means
// the current working directory. The directory must contain flake.nix.
func (c *Config) RepositoryPath() (string, error) {
	path := c.Repository.Path
	if path == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		path = wd
	}

	path, err := homedir.Expand(path)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return "", ErrRepositoryNotFound
	}

	if _, err := os.Stat(filepath.Join(path, "flake.nix")); err != nil {
		return "", ErrNotAFlake
	}

	return path, nil
}

// CacheDir returns the expanded cache directory, defaulting to
// $XDG_CACHE_HOME/nixbump.
func (c *Config) CacheDir() (string, error) {
	if c.Cache.Dir != "" {
		return homedir.Expand(c.Cache.Dir)
	}

	xdgCache := os.Getenv("XDG_CACHE_HOME")
	if xdgCache == "" {
		home, err := homedir.Dir()
		if err != nil {
			return "", err
		}
		xdgCache = filepath.Join(home, ".cache")
	}
	return filepath.Join(xdgCache, "nixbump"), nil
}

// CacheTTL returns the version cache TTL
func (c *Config) CacheTTL() time.Duration {
	if c.Cache.TTL <= 0 {
		return DefaultCacheTTL * time.Second
	}
	return time.Duration(c.Cache.TTL) * time.Second
}
