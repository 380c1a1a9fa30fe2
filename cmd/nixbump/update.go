package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/obentoo/nixbump/internal/common/command"
	"github.com/obentoo/nixbump/internal/common/config"
	"github.com/obentoo/nixbump/internal/common/git"
	"github.com/obentoo/nixbump/internal/common/github"
	"github.com/obentoo/nixbump/internal/common/logger"
	"github.com/obentoo/nixbump/internal/common/output"
	"github.com/obentoo/nixbump/internal/common/version"
	"github.com/obentoo/nixbump/internal/docs"
	"github.com/obentoo/nixbump/internal/hash"
	"github.com/obentoo/nixbump/internal/manifest"
	"github.com/obentoo/nixbump/internal/pipeline"
	"github.com/obentoo/nixbump/internal/upstream"
	"github.com/spf13/cobra"
)

var (
	// updateSkipUpstream disables the upstream version gate
	updateSkipUpstream bool
	// updateNoDocs skips README regeneration
	updateNoDocs bool
)

var updateCmd = &cobra.Command{
	Use:   "update <kind> <name> <currentVersion>",
	Short: "Update one package or flake input and publish a pull request",
	Long: `Run the full update pipeline for one target: mutate the tree, regenerate
docs, format, validate, check the change scope and publish a pull request.

Kinds:
  package         a package under packages/<name>
  external-input  a flake input in flake.lock (alias: flake-input)

Environment:
  GH_TOKEN        GitHub token (falls back to GITHUB_TOKEN; required)
  SYSTEM          nix system to validate on (default x86_64-linux)
  PR_LABELS       comma separated labels (default dependencies,automated)
  AUTO_MERGE      enable squash auto-merge when true
  SMOKE_PACKAGES  packages built after a flake input update
  BASE_BRANCH     pull request base (default main)

Examples:
  nixbump update package crush 0.7.1
  nixbump update external-input nixpkgs 3c6b9d1e`,
	Args: cobra.ExactArgs(3),
	Run:  runUpdate,
}

func init() {
	updateCmd.Flags().BoolVar(&updateSkipUpstream, "skip-upstream-check", false, "Do not consult the configured upstream source before mutating")
	updateCmd.Flags().BoolVar(&updateNoDocs, "no-docs", false, "Skip README package docs regeneration")

	rootCmd.AddCommand(updateCmd)
}

func runUpdate(cmd *cobra.Command, args []string) {
	kind, err := pipeline.ParseKind(args[0])
	if err != nil {
		output.PrintError("%v", err)
		os.Exit(1)
	}
	target := pipeline.UpdateTarget{Kind: kind, Name: args[1], CurrentVersion: args[2]}

	cfg, repoDir, err := loadRepository()
	if err != nil {
		output.PrintError("%v", err)
		os.Exit(1)
	}

	rt, err := config.Resolve(cfg, repoDir, os.LookupEnv)
	if err != nil {
		if errors.Is(err, config.ErrMissingToken) {
			output.PrintError("Error: %v", err)
		} else {
			output.PrintError("%v", err)
		}
		os.Exit(1)
	}

	pc, err := pipeline.NewPipelineContext(target, rt)
	if err != nil {
		output.PrintError("%v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orch, err := buildOrchestrator(ctx, cfg, pc)
	if err != nil {
		output.PrintError("%v", err)
		os.Exit(1)
	}

	out := orch.Run(ctx)
	code := reportOutcome(out)
	logger.Default().Close()
	os.Exit(code)
}

// newClients builds the transports used by upstream sources.
func newClients(cfg *config.Config, token string, retry upstream.RetryConfig) upstream.Clients {
	httpClient := upstream.NewRetryableHTTPClientWithConfig(retry)
	httpClient.SetGitHubToken(token)
	httpClient.SetDefaultHeaders(map[string]string{"User-Agent": version.UserAgent()})

	gh := github.NewClient(token)
	if cfg.GitHub.APIURL != "" {
		gh.BaseURL = cfg.GitHub.APIURL
	}
	return upstream.Clients{HTTP: httpClient, GitHub: gh, NPMRegistry: upstream.DefaultNPMRegistry}
}

func buildOrchestrator(ctx context.Context, cfg *config.Config, pc *pipeline.PipelineContext) (*pipeline.Orchestrator, error) {
	log := logger.Default().With("target", pc.Target().Name)

	runner := command.NewExecRunner(pc.RepoDir(), pc.Environment())
	if verbose {
		runner.Tee = os.Stderr
	}

	manifests, err := manifest.LoadConfig(pc.RepoDir())
	if err != nil {
		return nil, err
	}

	// the pipeline never retries network lookups
	token := pc.Environment()[config.EnvToken]
	clients := newClients(cfg, token, upstream.NoRetryConfig())

	updater := &manifest.Updater{
		PackagesDir: filepath.Join(pc.RepoDir(), pc.PackagesDir()),
		Clients:     clients,
		Hashes:      hash.NewCalculator(runner),
	}

	gitExec := git.NewRunnerWith(pc.RepoDir(), runner)
	orch := &pipeline.Orchestrator{
		Context:   pc,
		Git:       gitExec,
		Runner:    runner,
		Mutator:   pipeline.NewNixMutator(runner, &pipeline.ManifestUpdater{Config: manifests, Updater: updater}, log.With("stage", string(pipeline.StageMutate))),
		Validator: pipeline.NewValidator(runner, log.With("stage", string(pipeline.StageValidate))),
		Publisher: pipeline.NewPublishAgent(gitExec, github.NewCLI(runner), pc, log.With("stage", string(pipeline.StagePublish))),
		Log:       log,
	}

	if !updateNoDocs {
		orch.Docs = docs.NewRegenerator(&docs.NixMetadataRenderer{
			Runner:   runner,
			RepoDir:  pc.RepoDir(),
			FlakeRef: docs.ResolveFlakeRef(ctx, os.LookupEnv, runner, pc.Remote()),
		})
	}

	if !updateSkipUpstream {
		orch.Latest = upstreamLatest(manifests, clients)
	}
	return orch, nil
}

// upstreamLatest looks up packages that declare an upstream source in
// packages.toml. Everything else is unknown and goes through the mutator.
func upstreamLatest(manifests manifest.Config, clients upstream.Clients) pipeline.LatestFunc {
	return func(ctx context.Context, t pipeline.UpdateTarget) (string, bool, error) {
		if t.Kind != pipeline.KindPackage {
			return "", false, nil
		}
		pkg, ok := manifests[t.Name]
		if !ok {
			return "", false, nil
		}
		src, err := upstream.NewSource(pkg.SourceConfig, clients)
		if err != nil {
			return "", true, err
		}
		latest, err := src.Latest(ctx)
		if err != nil {
			if github.IsRateLimited(err) {
				return "", true, fmt.Errorf("GitHub rate limit reached, retry later or pass --skip-upstream-check: %w", err)
			}
			return "", true, err
		}
		logger.Info("Current: %s, Latest: %s", t.CurrentVersion, latest)
		return latest, true, nil
	}
}

// reportOutcome prints the result of a run and returns the exit code.
func reportOutcome(out pipeline.Outcome) int {
	label := output.FormatOutcome(string(out.Kind))
	name := output.FormatPackage(string(out.Target.Kind), out.Target.Name)

	switch out.Kind {
	case pipeline.OutcomeUpToDate:
		output.PrintSuccess("%s %s is up to date (%s)", label, name, out.Target.CurrentVersion)
	case pipeline.OutcomeNoChanges:
		output.PrintSuccess("%s %s: %s", label, name, out.Reason)
	case pipeline.OutcomePublished:
		output.PrintSuccess("%s %s %s", label, name, output.FormatVersionChange(out.Target.CurrentVersion, out.NewVersion))
		if pr := out.PullRequest; pr != nil {
			if pr.Number != nil {
				output.PrintInfo("PR #%d %s", *pr.Number, pr.URL)
			} else {
				output.PrintInfo("branch %s", pr.Branch)
			}
		}
		for _, w := range out.Warnings {
			output.PrintWarning("%s: %s", w.Stage, w.Message)
		}
	case pipeline.OutcomeFailed:
		var cmdErr *command.Error
		if errors.As(out.Err, &cmdErr) {
			output.PrintError("%s %s failed in stage %s: exit %d: %s", label, name, out.Stage, cmdErr.ExitCode, cmdErr.Invocation)
			output.Captured(os.Stderr, "stdout", cmdErr.Stdout)
			output.Captured(os.Stderr, "stderr", cmdErr.Stderr)
		} else {
			output.PrintError("%s %s failed in stage %s: %v", label, name, out.Stage, errors.Unwrap(out.Err))
		}
		return 1
	}
	return 0
}
