package git

import "context"

// Executor defines the git operations the update pipeline needs.
// This interface allows for mocking git operations in tests.
type Executor interface {
	// Status returns the current git status as a list of StatusEntry
	Status(ctx context.Context) ([]StatusEntry, error)

	// HasUnstagedChanges reports whether tracked files differ from the index
	HasUnstagedChanges(ctx context.Context) (bool, error)

	// ChangedFiles lists tracked files with unstaged modifications
	ChangedFiles(ctx context.Context) ([]string, error)

	// UntrackedFiles lists new files not covered by ignore rules
	UntrackedFiles(ctx context.Context) ([]string, error)

	// SwitchCreate switches to branch, creating or resetting it at HEAD
	SwitchCreate(ctx context.Context, branch string) error

	// Add stages exactly the given paths
	Add(ctx context.Context, paths ...string) error

	// HasStagedChanges reports whether the index differs from HEAD
	HasStagedChanges(ctx context.Context) (bool, error)

	// Commit records the index with the given options
	Commit(ctx context.Context, opts CommitOptions) error

	// Push pushes branch to remote and sets it as upstream
	Push(ctx context.Context, remote, branch string, force bool) error

	// WorkDir returns the working directory of the git repository
	WorkDir() string
}

// CommitOptions configures a commit.
type CommitOptions struct {
	Message  string
	Signoff  bool
	Trailers []string
}
