package pipeline

import (
	"context"
	"sort"

	"github.com/obentoo/nixbump/internal/common/git"
)

// ChangeSet is what the working tree holds after mutation.
type ChangeSet struct {
	Changed   []string
	Untracked []string
}

// All returns the sorted union of changed and untracked paths.
func (c ChangeSet) All() []string {
	seen := make(map[string]bool, len(c.Changed)+len(c.Untracked))
	var all []string
	for _, list := range [][]string{c.Changed, c.Untracked} {
		for _, p := range list {
			if p == "" || seen[p] {
				continue
			}
			seen[p] = true
			all = append(all, p)
		}
	}
	sort.Strings(all)
	return all
}

// ChangeInspector answers questions about the working tree.
type ChangeInspector struct {
	git git.Executor
}

// NewChangeInspector wraps g.
func NewChangeInspector(g git.Executor) *ChangeInspector {
	return &ChangeInspector{git: g}
}

// EnsureClean fails with a DirtyTreeError listing every porcelain entry.
func (i *ChangeInspector) EnsureClean(ctx context.Context) error {
	entries, err := i.git.Status(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	dirty := &DirtyTreeError{Entries: make([]string, len(entries))}
	for n, e := range entries {
		dirty.Entries[n] = e.String()
	}
	return dirty
}

// HasChanges reports whether tracked files differ from the index.
func (i *ChangeInspector) HasChanges(ctx context.Context) (bool, error) {
	return i.git.HasUnstagedChanges(ctx)
}

// ChangeSet collects modified tracked files and untracked files.
func (i *ChangeInspector) ChangeSet(ctx context.Context) (ChangeSet, error) {
	changed, err := i.git.ChangedFiles(ctx)
	if err != nil {
		return ChangeSet{}, err
	}
	untracked, err := i.git.UntrackedFiles(ctx)
	if err != nil {
		return ChangeSet{}, err
	}
	return ChangeSet{Changed: changed, Untracked: untracked}, nil
}
