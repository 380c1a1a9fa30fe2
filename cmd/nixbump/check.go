package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/obentoo/nixbump/internal/common/config"
	"github.com/obentoo/nixbump/internal/common/github"
	"github.com/obentoo/nixbump/internal/common/logger"
	"github.com/obentoo/nixbump/internal/common/output"
	"github.com/obentoo/nixbump/internal/common/parallel"
	"github.com/obentoo/nixbump/internal/manifest"
	"github.com/obentoo/nixbump/internal/upstream"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

var (
	// checkForce ignores the version cache
	checkForce bool
	// checkWorkers bounds concurrent lookups
	checkWorkers int
)

// npmRequestsPerSecond paces registry.npmjs.org lookups
const npmRequestsPerSecond = 10

var checkCmd = &cobra.Command{
	Use:   "check [package...]",
	Short: "Check upstream for newer versions",
	Long: `Compare the version recorded in each package manifest with the newest
upstream version declared in .nixbump/packages.toml.

Without arguments every configured package is checked. Results are cached
for the configured TTL unless --force is given.

Examples:
  nixbump check              Check all configured packages
  nixbump check crush        Check one package
  nixbump check --force      Check ignoring cache`,
	Run: runCheck,
}

func init() {
	checkCmd.Flags().BoolVar(&checkForce, "force", false, "Ignore cache when checking")
	checkCmd.Flags().IntVar(&checkWorkers, "workers", 4, "Concurrent upstream lookups")

	rootCmd.AddCommand(checkCmd)
}

type checkOutcome struct {
	name   string
	result *upstream.CheckResult
	err    error
}

func runCheck(cmd *cobra.Command, args []string) {
	cfg, repoDir, err := loadRepository()
	if err != nil {
		output.PrintError("%v", err)
		os.Exit(1)
	}

	manifests, err := manifest.LoadConfig(repoDir)
	if err != nil {
		output.PrintError("%v", err)
		os.Exit(1)
	}
	if len(manifests) == 0 {
		output.PrintWarning("no packages configured in %s", manifest.ConfigPath)
		return
	}

	names := args
	if len(names) == 0 {
		names = manifests.Names()
	}

	cacheDir, err := cfg.CacheDir()
	if err != nil {
		output.PrintError("%v", err)
		os.Exit(1)
	}
	cache, err := upstream.NewCache(cacheDir, upstream.WithTTL(cfg.CacheTTL()))
	if err != nil {
		output.PrintError("%v", err)
		os.Exit(1)
	}
	configured := func(name string) bool {
		_, ok := manifests[name]
		return ok
	}
	if removed, err := cache.Prune(configured); err != nil {
		logger.Warn("pruning version cache: %v", err)
	} else if removed > 0 {
		logger.Debug("pruned %d cache entries", removed)
	}
	logger.Debug("version cache at %s (%d entries)", cache.Path(), cache.Len())

	clients := newClients(cfg, lookupToken(cfg), upstream.DefaultRetryConfig())
	clients.HTTP.SetHostLimit("registry.npmjs.org", rate.Limit(npmRequestsPerSecond), npmRequestsPerSecond)

	packagesDir := filepath.Join(repoDir, firstNonEmpty(cfg.Repository.PackagesDir, config.DefaultPackagesDir))
	checker := upstream.NewChecker(manifests.Sources(), clients, manifestVersion(packagesDir, manifests), upstream.WithCache(cache))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	outcomes, err := checkAll(ctx, checker, names, checkWorkers, checkForce)
	if err != nil {
		output.PrintError("check aborted: %v", err)
		os.Exit(1)
	}

	failed := false
	rateLimited := false
	updates := 0
	for _, o := range outcomes {
		pkg := output.FormatPackage("", o.name)
		switch {
		case o.err != nil:
			failed = true
			rateLimited = rateLimited || github.IsRateLimited(o.err)
			output.PrintError("%s: %v", pkg, o.err)
		case o.result.HasUpdate:
			updates++
			suffix := ""
			if o.result.FromCache {
				suffix = output.Sprintf(output.Dim, " (cached)")
			}
			output.PrintInfo("%s %s%s", pkg, output.FormatVersionChange(o.result.Current, o.result.Latest), suffix)
		default:
			output.PrintSuccess("%s is up to date (%s)", pkg, o.result.Current)
		}
	}

	if rateLimited {
		reportRateLimit(ctx, clients.GitHub)
	}
	if updates > 0 {
		output.Box(os.Stdout, "Updates available", fmt.Sprintf("%d of %d packages can be bumped", updates, len(outcomes)))
	}
	if failed {
		os.Exit(1)
	}
}

// checkAll looks up every package. Lookup errors are kept per package, so
// the returned error only reports an interrupted batch.
func checkAll(ctx context.Context, checker *upstream.Checker, names []string, workers int, force bool) ([]checkOutcome, error) {
	return parallel.Map(ctx, names, workers, func(ctx context.Context, name string) (checkOutcome, error) {
		res, err := checker.Check(ctx, name, force)
		return checkOutcome{name: name, result: res, err: err}, nil
	})
}

// reportRateLimit tells the user when the GitHub quota comes back.
func reportRateLimit(ctx context.Context, gh *github.Client) {
	remaining, reset, err := gh.RateLimitInfo(ctx)
	if err != nil {
		logger.Debug("rate limit status: %v", err)
		return
	}
	output.PrintWarning("GitHub rate limit: %d requests left, resets at %s", remaining, reset.Local().Format(time.Kitchen))
}

// manifestVersion reads the version field of a package's manifest.
func manifestVersion(packagesDir string, manifests manifest.Config) upstream.CurrentVersionFunc {
	return func(name string) (string, error) {
		pkg := manifests[name]
		doc, err := manifest.ReadDocument(filepath.Join(packagesDir, name, pkg.ManifestFile()))
		if err != nil {
			return "", err
		}
		return doc.String("version")
	}
}

// lookupToken returns a GitHub token if one is available. Checking works
// unauthenticated, with a lower rate limit.
func lookupToken(cfg *config.Config) string {
	return firstNonEmpty(os.Getenv(config.EnvToken), os.Getenv(config.EnvTokenFallback), cfg.GitHub.Token)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
