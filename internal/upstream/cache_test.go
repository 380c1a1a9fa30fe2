package upstream

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// **Feature: version-cache, Property 1: TTL expiry**
func TestCacheTTLProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("an entry is fresh exactly while its age is below the TTL", prop.ForAll(
		func(ttlMinutes, ageMinutes int) bool {
			now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
			clock := now
			c, err := NewCache(t.TempDir(), WithTTL(time.Duration(ttlMinutes)*time.Minute), WithNowFunc(func() time.Time { return clock }))
			if err != nil {
				return false
			}
			if err := c.Set("crush", "0.7.1", "github:charmbracelet/crush"); err != nil {
				return false
			}

			clock = now.Add(time.Duration(ageMinutes) * time.Minute)
			_, ok := c.Get("crush")
			return ok == (ageMinutes < ttlMinutes)
		},
		gen.IntRange(1, 120), gen.IntRange(0, 240),
	))

	properties.TestingRun(t)
}

func TestNewCacheCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "nixbump")
	c, err := NewCache(dir)
	if err != nil {
		t.Fatalf("NewCache() error = %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("directory not created: %v", err)
	}
	if c.Path() != filepath.Join(dir, "versions.json") {
		t.Errorf("Path() = %q", c.Path())
	}
	if c.TTL != DefaultCacheTTL {
		t.Errorf("TTL = %v", c.TTL)
	}
}

func TestCachePersists(t *testing.T) {
	dir := t.TempDir()
	c, _ := NewCache(dir)
	if err := c.Set("droid", "0.22.3", "regex:https://app.factory.ai/cli"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	reopened, err := NewCache(dir)
	if err != nil {
		t.Fatalf("NewCache() error = %v", err)
	}
	entry, ok := reopened.Get("droid")
	if !ok {
		t.Fatal("entry lost on reopen")
	}
	if entry.Version != "0.22.3" || entry.Source != "regex:https://app.factory.ai/cli" {
		t.Errorf("entry = %+v", entry)
	}
	if _, err := os.Stat(filepath.Join(dir, "versions.json.tmp")); !os.IsNotExist(err) {
		t.Error("temp file left behind")
	}
}

func TestCacheCorruptedFileStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, CacheFileName), []byte("{not json"), 0644)

	c, err := NewCache(dir)
	if err != nil {
		t.Fatalf("NewCache() error = %v", err)
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
	if err := c.Set("a", "1", "npm:a"); err != nil {
		t.Fatalf("Set() over corrupted file error = %v", err)
	}
}

func TestCachePrune(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	clock := now
	dir := t.TempDir()
	c, _ := NewCache(dir, WithNowFunc(func() time.Time { return clock }))

	c.Set("old", "1.0", "npm:old")
	clock = now.Add(50 * time.Minute)
	c.Set("new", "2.0", "npm:new")
	c.Set("gone", "3.0", "npm:gone")

	clock = now.Add(90 * time.Minute)
	removed, err := c.Prune(func(name string) bool { return name != "gone" })
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if removed != 2 || c.Len() != 1 {
		t.Errorf("Prune() removed %d, Len() = %d; want 2, 1", removed, c.Len())
	}
	if _, ok := c.Get("new"); !ok {
		t.Error("fresh entry pruned")
	}

	reopened, _ := NewCache(dir, WithNowFunc(func() time.Time { return clock }))
	if reopened.Len() != 1 {
		t.Errorf("persisted Len() = %d, want 1", reopened.Len())
	}

	if removed, err := c.Prune(nil); err != nil || removed != 0 {
		t.Errorf("Prune(nil) = %d, %v; want 0, nil", removed, err)
	}
}
