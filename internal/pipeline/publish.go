package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/obentoo/nixbump/internal/common/git"
	"github.com/obentoo/nixbump/internal/common/github"
	"github.com/obentoo/nixbump/internal/common/logger"
	"github.com/obentoo/nixbump/internal/common/version"
)

// PullRequestDescriptor describes the pull request for one update branch.
type PullRequestDescriptor struct {
	Branch string
	Title  string
	Body   string
	URL    string
	// Number is nil until the pull request is known to exist.
	Number *int
}

// AutoMergeResult reports whether auto-merge was enabled. Failure is a
// warning, never an error.
type AutoMergeResult struct {
	Enabled bool
	Warning *Warning
}

// BranchNameFor returns the update branch of t. Re-running for the same
// target always reuses the same branch.
func BranchNameFor(t UpdateTarget) string {
	if t.Kind == KindExternalInput {
		return "update/external-input/" + t.Name
	}
	return "update/" + t.Name
}

// Title returns the pull request and commit title.
func Title(t UpdateTarget, newVersion, lockFile string) string {
	if t.Kind == KindExternalInput {
		return fmt.Sprintf("%s: Update %s", filepath.Base(lockFile), t.Name)
	}
	return fmt.Sprintf("%s: %s -> %s", t.Name, t.CurrentVersion, newVersion)
}

// Body returns the pull request description.
func Body(t UpdateTarget, newVersion string) string {
	if t.Kind == KindExternalInput {
		return fmt.Sprintf("This PR updates the flake input `%s`.\n\n- %s: `%s` → `%s`",
			t.Name, t.Name, t.CurrentVersion, newVersion)
	}
	return fmt.Sprintf("Automated update of %s from %s to %s.", t.Name, t.CurrentVersion, newVersion)
}

// PublishAgent turns a validated tree into a pushed branch and an open
// pull request.
type PublishAgent struct {
	git   git.Executor
	prs   github.PullRequests
	pc    *PipelineContext
	guard ScopeGuard
	log   *logger.Logger
}

// NewPublishAgent creates a PublishAgent for pc.
func NewPublishAgent(g git.Executor, prs github.PullRequests, pc *PipelineContext, log *logger.Logger) *PublishAgent {
	if log == nil {
		log = logger.Default()
	}
	return &PublishAgent{git: g, prs: prs, pc: pc, guard: NewScopeGuard(pc), log: log}
}

// CommitAndPush switches to branch, stages the target's paths, commits with
// a sign-off and force-pushes. Staging paths missing from the tree are
// skipped.
func (a *PublishAgent) CommitAndPush(ctx context.Context, branch, title string) error {
	if err := a.git.SwitchCreate(ctx, branch); err != nil {
		return err
	}

	var paths []string
	for _, p := range a.guard.StagingPaths() {
		if fileExists(filepath.Join(a.git.WorkDir(), p)) {
			paths = append(paths, p)
		} else {
			a.log.Debug("skipping %s: not present", p)
		}
	}
	if len(paths) == 0 {
		return ErrNothingStaged
	}
	if err := a.git.Add(ctx, paths...); err != nil {
		return err
	}

	staged, err := a.git.HasStagedChanges(ctx)
	if err != nil {
		return err
	}
	if !staged {
		return ErrNothingStaged
	}

	if err := a.git.Commit(ctx, git.CommitOptions{
		Message:  title,
		Signoff:  true,
		Trailers: []string{version.Trailer()},
	}); err != nil {
		return err
	}
	return a.git.Push(ctx, a.pc.Remote(), branch, true)
}

// FindOpenPullRequest returns the open pull request for branch, or nil.
func (a *PublishAgent) FindOpenPullRequest(ctx context.Context, branch string) (*PullRequestDescriptor, error) {
	pr, err := a.prs.FindOpen(ctx, branch)
	if err != nil || pr == nil {
		return nil, err
	}
	n := pr.Number
	return &PullRequestDescriptor{Branch: branch, Title: pr.Title, URL: pr.URL, Number: &n}, nil
}

// CreateOrUpdatePullRequest edits the open pull request for desc.Branch in
// place, or opens one against the base branch. The returned descriptor has
// Number set unless the new pull request could not be found again.
func (a *PublishAgent) CreateOrUpdatePullRequest(ctx context.Context, desc PullRequestDescriptor) (PullRequestDescriptor, error) {
	existing, err := a.FindOpenPullRequest(ctx, desc.Branch)
	if err != nil {
		return desc, err
	}

	if existing != nil {
		a.log.Info("Updating existing PR #%d", *existing.Number)
		err := a.prs.Edit(ctx, *existing.Number, github.PullRequestEdit{
			Title:  desc.Title,
			Body:   desc.Body,
			Labels: a.pc.Labels(),
		})
		if err != nil {
			return desc, err
		}
		desc.Number = existing.Number
		desc.URL = existing.URL
		return desc, nil
	}

	a.log.Info("Creating new PR")
	err = a.prs.Create(ctx, github.NewPullRequest{
		Base:   a.pc.BaseBranch(),
		Head:   desc.Branch,
		Title:  desc.Title,
		Body:   desc.Body,
		Labels: a.pc.Labels(),
	})
	if err != nil {
		return desc, err
	}

	created, err := a.FindOpenPullRequest(ctx, desc.Branch)
	if err != nil {
		return desc, err
	}
	if created != nil {
		desc.Number = created.Number
		desc.URL = created.URL
	}
	return desc, nil
}

// EnableAutoMerge asks for a squash auto-merge of pull request number.
func (a *PublishAgent) EnableAutoMerge(ctx context.Context, number int) AutoMergeResult {
	a.log.Info("Enabling auto-merge for PR #%d", number)
	if err := a.prs.EnableAutoMerge(ctx, number, github.MergeSquash); err != nil {
		a.log.Debug("auto-merge: %v", err)
		return AutoMergeResult{Warning: &Warning{
			Stage:   StageAutoMerge,
			Message: fmt.Sprintf("could not enable auto-merge for PR #%d (branch protection rules may be required): %v", number, err),
		}}
	}
	return AutoMergeResult{Enabled: true}
}
