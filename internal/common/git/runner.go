package git

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/obentoo/nixbump/internal/common/command"
)

var (
	ErrFileNotFound    = errors.New("file not found")
	ErrPathOutsideRepo = errors.New("path is outside repository")
	ErrInvalidPath     = errors.New("invalid path")
	ErrGitCommand      = errors.New("git command failed")
	ErrEmptyBranch     = errors.New("branch name is empty")
	ErrEmptyMessage    = errors.New("commit message is empty")
	ErrNoPathsToAdd    = errors.New("no paths to add")
)

// Runner executes git commands in a specific working directory
type Runner struct {
	workDir string
	cmd     command.Runner
}

// NewRunner creates a Runner for workDir that spawns git processes directly.
func NewRunner(workDir string) *Runner {
	return NewRunnerWith(workDir, command.NewExecRunner(workDir, nil))
}

// NewRunnerWith creates a Runner that delegates process execution to cmd.
func NewRunnerWith(workDir string, cmd command.Runner) *Runner {
	return &Runner{
		workDir: workDir,
		cmd:     cmd,
	}
}

// WorkDir returns the working directory of the Runner
func (g *Runner) WorkDir() string {
	return g.workDir
}

// run executes a git command and returns stdout
func (g *Runner) run(ctx context.Context, args ...string) (string, error) {
	res, err := g.cmd.Run(ctx, command.New("git", args...))
	if err != nil {
		return res.Stdout, errors.Join(ErrGitCommand, err)
	}
	return res.Stdout, nil
}

// quiet runs a git command whose exit status answers a yes/no question:
// 0 means false, 1 means true, anything else is an error.
func (g *Runner) quiet(ctx context.Context, args ...string) (bool, error) {
	_, err := g.cmd.Run(ctx, command.New("git", args...))
	if err == nil {
		return false, nil
	}
	if code, ok := command.ExitCode(err); ok && code == 1 {
		return true, nil
	}
	return false, errors.Join(ErrGitCommand, err)
}

// StatusEntry represents a single entry from git status --porcelain
type StatusEntry struct {
	Status   string // A, M, D, R, ??
	FilePath string
}

func (e StatusEntry) String() string {
	return e.Status + " " + e.FilePath
}

// Status returns the current git status as a list of StatusEntry
func (g *Runner) Status(ctx context.Context) ([]StatusEntry, error) {
	stdout, err := g.run(ctx, "status", "--porcelain")
	if err != nil {
		return nil, err
	}

	return ParseStatusOutput(stdout), nil
}

// ParseStatusOutput parses git status --porcelain output into StatusEntry slice
func ParseStatusOutput(output string) []StatusEntry {
	var entries []StatusEntry

	for _, line := range strings.Split(output, "\n") {
		if len(line) < 3 {
			continue
		}

		// XY filename, X = index status, Y = worktree status
		status := strings.TrimSpace(line[:2])
		filePath := line[3:]

		// R  old -> new
		if strings.HasPrefix(status, "R") {
			parts := strings.Split(filePath, " -> ")
			if len(parts) == 2 {
				filePath = parts[1]
			}
		}

		entries = append(entries, StatusEntry{
			Status:   status,
			FilePath: filePath,
		})
	}

	return entries
}

// HasUnstagedChanges runs git diff --quiet
func (g *Runner) HasUnstagedChanges(ctx context.Context) (bool, error) {
	return g.quiet(ctx, "diff", "--quiet")
}

// HasStagedChanges runs git diff --cached --quiet
func (g *Runner) HasStagedChanges(ctx context.Context) (bool, error) {
	return g.quiet(ctx, "diff", "--cached", "--quiet")
}

// ChangedFiles runs git diff --name-only
func (g *Runner) ChangedFiles(ctx context.Context) ([]string, error) {
	stdout, err := g.run(ctx, "diff", "--name-only")
	if err != nil {
		return nil, err
	}
	return ParseNameList(stdout), nil
}

// UntrackedFiles runs git ls-files --others --exclude-standard
func (g *Runner) UntrackedFiles(ctx context.Context) ([]string, error) {
	stdout, err := g.run(ctx, "ls-files", "--others", "--exclude-standard")
	if err != nil {
		return nil, err
	}
	return ParseNameList(stdout), nil
}

// ParseNameList splits newline separated paths, dropping blanks and
// duplicates, and returns them sorted.
func ParseNameList(output string) []string {
	seen := make(map[string]struct{})
	var names []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		names = append(names, line)
	}
	sort.Strings(names)
	return names
}

// SwitchCreate runs git switch -C branch
func (g *Runner) SwitchCreate(ctx context.Context, branch string) error {
	if branch == "" {
		return ErrEmptyBranch
	}
	_, err := g.run(ctx, "switch", "-C", branch)
	return err
}

// Add stages the given paths after checking each one stays inside the
// repository. Paths that do not exist are rejected.
func (g *Runner) Add(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		return ErrNoPathsToAdd
	}

	for _, path := range paths {
		if err := g.validatePath(path); err != nil {
			return err
		}
	}

	args := append([]string{"add", "--"}, paths...)
	_, err := g.run(ctx, args...)
	return err
}

// validatePath resolves path against workDir and checks it exists inside it
func (g *Runner) validatePath(path string) error {
	var absPath string
	if filepath.IsAbs(path) {
		absPath = path
	} else {
		absPath = filepath.Join(g.workDir, path)
	}

	absPath = filepath.Clean(absPath)
	workDirAbs := filepath.Clean(g.workDir)

	relPath, err := filepath.Rel(workDirAbs, absPath)
	if err != nil {
		return errors.Join(ErrInvalidPath, err)
	}

	if relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) {
		return ErrPathOutsideRepo
	}

	if !fileExists(absPath) {
		return errors.Join(ErrFileNotFound, errors.New(path))
	}

	return nil
}

// fileExists checks if a file or directory exists using os.Stat
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Commit creates a git commit. Trailers become a final message paragraph.
func (g *Runner) Commit(ctx context.Context, opts CommitOptions) error {
	if strings.TrimSpace(opts.Message) == "" {
		return ErrEmptyMessage
	}

	args := []string{"commit", "-m", opts.Message}
	if len(opts.Trailers) > 0 {
		args = append(args, "-m", strings.Join(opts.Trailers, "\n"))
	}
	if opts.Signoff {
		args = append(args, "--signoff")
	}

	_, err := g.run(ctx, args...)
	return err
}

// Push runs git push [--force] --set-upstream remote branch
func (g *Runner) Push(ctx context.Context, remote, branch string, force bool) error {
	if branch == "" {
		return ErrEmptyBranch
	}

	args := []string{"push"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, "--set-upstream", remote, branch)

	_, err := g.run(ctx, args...)
	return err
}

var _ Executor = (*Runner)(nil)
