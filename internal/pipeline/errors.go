package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/obentoo/nixbump/internal/common/command"
)

// Stage names one step of a run. A failing run reports the stage it
// stopped in.
type Stage string

const (
	StageVersionCheck   Stage = "version-check"
	StagePrecondition   Stage = "precondition"
	StageMutate         Stage = "mutate"
	StageEarlyNoOp      Stage = "early-noop"
	StageDocRegen       Stage = "doc-regen"
	StageFormat         Stage = "format"
	StagePostFormatNoOp Stage = "post-format-noop"
	StageResolveVersion Stage = "resolve-version"
	StageValidate       Stage = "validate"
	StageChangeSet      Stage = "change-set"
	StageScope          Stage = "scope"
	StagePublish        Stage = "publish"
	StageAutoMerge      Stage = "auto-merge"
)

var (
	// ErrExpectedChangesButClean means the tree looked modified earlier in the
	// run but no changed or untracked file is left to publish.
	ErrExpectedChangesButClean = errors.New("expected changes but the working tree is clean")
	// ErrNothingStaged means git add staged nothing on the update branch.
	ErrNothingStaged = errors.New("nothing staged for commit")
	ErrNoPullRequest = errors.New("pull request not found after creation")
)

// DirtyTreeError is returned when the working tree has changes before the
// run mutates anything.
type DirtyTreeError struct {
	Entries []string
}

func (e *DirtyTreeError) Error() string {
	return "working tree is not clean:\n  " + strings.Join(e.Entries, "\n  ")
}

// ScopeViolationError lists every changed path outside the target's scope.
type ScopeViolationError struct {
	Target UpdateTarget
	Paths  []string
}

func (e *ScopeViolationError) Error() string {
	return fmt.Sprintf("changes outside the scope of %s:\n  %s", e.Target, strings.Join(e.Paths, "\n  "))
}

// StageError wraps the error that stopped a run.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// CapturedOutput returns the stdout and stderr of the command behind err,
// if any.
func CapturedOutput(err error) (stdout, stderr string, ok bool) {
	var cmdErr *command.Error
	if errors.As(err, &cmdErr) {
		return cmdErr.Stdout, cmdErr.Stderr, true
	}
	return "", "", false
}
