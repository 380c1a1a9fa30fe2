package upstream

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrCacheCorrupted is returned by Load when versions.json cannot be parsed
var ErrCacheCorrupted = errors.New("version cache is corrupted")

// DefaultCacheTTL is how long a looked-up version stays fresh
const DefaultCacheTTL = time.Hour

// CacheFileName is the file the cache persists to inside its directory
const CacheFileName = "versions.json"

// CacheEntry is one remembered upstream lookup.
type CacheEntry struct {
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
	// Source describes where the version came from, e.g. "github:o/r"
	Source string `json:"source"`
}

type cacheFile struct {
	Entries map[string]CacheEntry `json:"entries"`
}

// Cache remembers upstream versions for `nixbump check` with TTL expiry.
// The update pipeline never reads it.
type Cache struct {
	TTL     time.Duration
	path    string
	mu      sync.RWMutex
	entries map[string]CacheEntry
	nowFunc func() time.Time
}

// CacheOption configures a Cache
type CacheOption func(*Cache)

// WithTTL overrides DefaultCacheTTL
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) {
		c.TTL = ttl
	}
}

// WithNowFunc replaces the clock
func WithNowFunc(fn func() time.Time) CacheOption {
	return func(c *Cache) {
		c.nowFunc = fn
	}
}

// NewCache opens the cache stored in dir, creating dir if needed. A
// corrupted file is discarded and rewritten on the next Set.
func NewCache(dir string, opts ...CacheOption) (*Cache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	c := &Cache{
		TTL:     DefaultCacheTTL,
		path:    filepath.Join(dir, CacheFileName),
		entries: make(map[string]CacheEntry),
		nowFunc: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		c.entries = make(map[string]CacheEntry)
	}
	return c, nil
}

func (c *Cache) load() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return err
	}
	var cf cacheFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheCorrupted, err)
	}
	if cf.Entries != nil {
		c.entries = cf.Entries
	}
	return nil
}

// Path returns the backing file
func (c *Cache) Path() string {
	return c.path
}

// Get returns the cached version for name unless it is missing or stale.
func (c *Cache) Get(name string) (CacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[name]
	if !ok || c.expired(entry) {
		return CacheEntry{}, false
	}
	return entry, true
}

func (c *Cache) expired(e CacheEntry) bool {
	return c.nowFunc().Sub(e.Timestamp) >= c.TTL
}

// Set stores version for name and persists the cache.
func (c *Cache) Set(name, version, source string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[name] = CacheEntry{Version: version, Timestamp: c.nowFunc(), Source: source}
	return c.save()
}

// Prune drops stale entries and entries whose name keep rejects, then
// persists the cache if anything was removed. A nil keep retains every name.
func (c *Cache) Prune(keep func(name string) bool) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for name, e := range c.entries {
		if c.expired(e) || (keep != nil && !keep(name)) {
			delete(c.entries, name)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	return removed, c.save()
}

// Len returns the number of entries, stale ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// save writes to a temp file and renames it over the cache. Callers hold mu.
func (c *Cache) save() error {
	data, err := json.MarshalIndent(cacheFile{Entries: c.entries}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache: %w", err)
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write cache: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace cache: %w", err)
	}
	return nil
}
