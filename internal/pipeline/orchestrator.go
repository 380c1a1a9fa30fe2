package pipeline

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/obentoo/nixbump/internal/common/command"
	"github.com/obentoo/nixbump/internal/common/git"
	"github.com/obentoo/nixbump/internal/common/logger"
	"github.com/obentoo/nixbump/internal/upstream"
)

// DocRegenerator rewrites the generated region of the docs file.
type DocRegenerator interface {
	Run(ctx context.Context, path string) (bool, error)
}

// LatestFunc looks up the newest upstream version of t. known is false when
// t has no configured upstream source.
type LatestFunc func(ctx context.Context, t UpdateTarget) (latest string, known bool, err error)

// Orchestrator runs the stages of one update in order. A run must not
// share its working tree with another run.
type Orchestrator struct {
	Context   *PipelineContext
	Git       git.Executor
	Runner    command.Runner
	Mutator   Mutator
	Validator *Validator
	Publisher *PublishAgent
	// Docs is optional.
	Docs DocRegenerator
	// Latest, when set, short-circuits the run with OutcomeUpToDate if the
	// upstream version is not newer than the current one.
	Latest LatestFunc
	Log    *logger.Logger
}

func (o *Orchestrator) logger() *logger.Logger {
	if o.Log == nil {
		return logger.Default()
	}
	return o.Log
}

func (o *Orchestrator) section(title string) {
	o.logger().Info("=== %s ===", title)
}

// Run executes the pipeline and reports how it ended. Errors are carried in
// the Outcome rather than returned.
func (o *Orchestrator) Run(ctx context.Context) Outcome {
	pc := o.Context
	t := pc.Target()
	log := o.logger()
	inspector := NewChangeInspector(o.Git)

	if o.Latest != nil {
		latest, known, err := o.Latest(ctx, t)
		if err != nil {
			return failed(t, StageVersionCheck, err)
		}
		if known && !upstream.ShouldUpdate(t.CurrentVersion, latest) {
			log.Info("%s is up to date (%s)", t.Name, t.CurrentVersion)
			return Outcome{Kind: OutcomeUpToDate, Target: t, NewVersion: t.CurrentVersion}
		}
	}

	if err := inspector.EnsureClean(ctx); err != nil {
		return failed(t, StagePrecondition, err)
	}

	o.section("Update " + t.String())
	if err := o.Mutator.Mutate(ctx, pc); err != nil {
		return failed(t, StageMutate, err)
	}

	changed, err := inspector.HasChanges(ctx)
	if err != nil {
		return failed(t, StageEarlyNoOp, err)
	}
	if !changed {
		log.Info("No changes detected; skipping PR.")
		return Outcome{Kind: OutcomeNoChanges, Target: t, Reason: "no changes after update"}
	}

	if o.Docs != nil {
		docs := filepath.Join(pc.RepoDir(), pc.DocsFile())
		if fileExists(docs) {
			log.Info("Regenerating %s package docs (if needed)...", pc.DocsFile())
			if _, err := o.Docs.Run(ctx, docs); err != nil {
				return failed(t, StageDocRegen, err)
			}
		} else {
			log.Debug("%s not found; skipping doc regeneration", pc.DocsFile())
		}
	}

	log.Info("Formatting repository...")
	if _, err := o.Runner.Run(ctx, command.New("nix", "fmt")); err != nil {
		return failed(t, StageFormat, err)
	}

	changed, err = inspector.HasChanges(ctx)
	if err != nil {
		return failed(t, StagePostFormatNoOp, err)
	}
	if !changed {
		log.Info("No changes detected after formatting; skipping PR.")
		return Outcome{Kind: OutcomeNoChanges, Target: t, Reason: "no changes after formatting"}
	}

	newVersion, err := ResolveNewVersion(ctx, o.Runner, pc)
	if err != nil {
		return failed(t, StageResolveVersion, err)
	}

	o.section("Validation")
	if _, err := o.Validator.Run(ctx, ValidationPlan(pc)); err != nil {
		return failed(t, StageValidate, err)
	}

	set, err := inspector.ChangeSet(ctx)
	if err != nil {
		return failed(t, StageChangeSet, err)
	}
	files := set.All()
	if len(files) == 0 {
		return failed(t, StageChangeSet, ErrExpectedChangesButClean)
	}
	o.section("Worktree changes")
	log.Info("%s", strings.Join(files, "\n"))

	if bad := NewScopeGuard(pc).Violations(files); len(bad) > 0 {
		return failed(t, StageScope, &ScopeViolationError{Target: t, Paths: bad})
	}

	desc := PullRequestDescriptor{
		Branch: BranchNameFor(t),
		Title:  Title(t, newVersion, pc.LockFile()),
		Body:   Body(t, newVersion),
	}
	o.section("Create/Update PR")
	log.Info("branch=%s", desc.Branch)
	log.Info("title=%s", desc.Title)

	if err := o.Publisher.CommitAndPush(ctx, desc.Branch, desc.Title); err != nil {
		return failed(t, StagePublish, err)
	}
	desc, err = o.Publisher.CreateOrUpdatePullRequest(ctx, desc)
	if err != nil {
		return failed(t, StagePublish, err)
	}

	out := Outcome{Kind: OutcomePublished, Target: t, NewVersion: newVersion, PullRequest: &desc}
	if pc.AutoMerge() {
		if desc.Number == nil {
			out.Warnings = append(out.Warnings, Warning{Stage: StageAutoMerge, Message: ErrNoPullRequest.Error()})
		} else if res := o.Publisher.EnableAutoMerge(ctx, *desc.Number); res.Warning != nil {
			log.Warn("%s", res.Warning.Message)
			out.Warnings = append(out.Warnings, *res.Warning)
		}
	}
	return out
}
