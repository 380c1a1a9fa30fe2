package pipeline

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/obentoo/nixbump/internal/common/config"
	"github.com/obentoo/nixbump/internal/common/logger"
)

// newRepo creates a temporary repository layout with a package directory
// and a docs file.
func newRepo(t *testing.T, pkg string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "packages", pkg), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("# repo\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "flake.lock"), []byte("{}\n"), 0644))
	return dir
}

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func lookupFrom(env map[string]string) config.LookupFunc {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func newContext(t *testing.T, dir string, target UpdateTarget, env map[string]string) *PipelineContext {
	t.Helper()
	merged := map[string]string{"GH_TOKEN": "test-token"}
	for k, v := range env {
		merged[k] = v
	}
	rt, err := config.Resolve(config.Default(), dir, lookupFrom(merged))
	require.NoError(t, err)
	pc, err := NewPipelineContext(target, rt)
	require.NoError(t, err)
	return pc
}

func pkgTarget(name, version string) UpdateTarget {
	return UpdateTarget{Kind: KindPackage, Name: name, CurrentVersion: version}
}

func inputTarget(name, version string) UpdateTarget {
	return UpdateTarget{Kind: KindExternalInput, Name: name, CurrentVersion: version}
}

func testLogger() (*logger.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	l := logger.New(&buf)
	l.SetLevel(logger.LevelDebug)
	return l, &buf
}
