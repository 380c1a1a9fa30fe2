package pipeline

import (
	"path"
	"strings"
)

// ScopeGuard decides which repository paths an update may touch.
type ScopeGuard struct {
	target      UpdateTarget
	packagesDir string
	lockFile    string
	docsFile    string
}

// NewScopeGuard builds the guard for the context's target.
func NewScopeGuard(pc *PipelineContext) ScopeGuard {
	return ScopeGuard{
		target:      pc.Target(),
		packagesDir: path.Clean(pc.PackagesDir()),
		lockFile:    path.Clean(pc.LockFile()),
		docsFile:    path.Clean(pc.DocsFile()),
	}
}

// IsAllowed reports whether p, relative to the repository root, lies inside
// the target's scope. Paths are cleaned first so "a/../b" is judged as "b".
func (g ScopeGuard) IsAllowed(p string) bool {
	if p == "" {
		return false
	}
	clean := path.Clean(p)
	if clean == ".." || strings.HasPrefix(clean, "../") || path.IsAbs(clean) {
		return false
	}
	if clean == g.docsFile {
		return true
	}

	switch g.target.Kind {
	case KindPackage:
		dir := g.packageDir()
		return clean == dir || strings.HasPrefix(clean, dir+"/")
	case KindExternalInput:
		return clean == g.lockFile
	}
	return false
}

func (g ScopeGuard) packageDir() string {
	return path.Join(g.packagesDir, g.target.Name)
}

// StagingPaths returns what git add receives on publish.
func (g ScopeGuard) StagingPaths() []string {
	if g.target.Kind == KindPackage {
		return []string{g.packageDir(), g.docsFile}
	}
	return []string{g.lockFile, g.docsFile}
}

// Violations returns the paths that are not allowed, in input order.
func (g ScopeGuard) Violations(paths []string) []string {
	var out []string
	for _, p := range paths {
		if !g.IsAllowed(p) {
			out = append(out, p)
		}
	}
	return out
}
