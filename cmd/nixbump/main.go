package main

import (
	"fmt"
	"os"

	"github.com/obentoo/nixbump/internal/common/config"
	"github.com/obentoo/nixbump/internal/common/logger"
	"github.com/obentoo/nixbump/internal/common/output"
	"github.com/spf13/cobra"
)

var (
	verbose    bool
	quiet      bool
	noColor    bool
	forceColor bool
	logFile    string
	repoPath   string
)

var rootCmd = &cobra.Command{
	Use:   "nixbump",
	Short: "Update nix flake packages and publish pull requests",
	Long: `Bump a package or flake input in a nix flake repository, validate the
result and publish it as a pull request.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Configure logging based on flags
		if verbose {
			logger.SetVerbose(true)
		}
		if quiet {
			logger.SetQuiet(true)
		}
		if noColor {
			output.NoColor()
		} else if forceColor {
			output.ForceColor()
		}

		var err error
		if logFile != "" {
			err = logger.Default().EnableFileLoggingAt(logFile)
		} else {
			err = logger.Default().EnableFileLogging()
		}
		if err != nil {
			logger.Debug("file logging disabled: %v", err)
		}
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Default().Close()
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress non-error output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&forceColor, "color", false, "Force colored output when stdout is not a terminal (e.g. CI logs)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write structured logs to this file (default $XDG_STATE_HOME/nixbump/logs/nixbump.log)")
	rootCmd.PersistentFlags().StringVarP(&repoPath, "repo", "C", "", "Path to the flake repository (default: config or current directory)")
}

// loadRepository reads the user configuration and locates the repository.
func loadRepository() (*config.Config, string, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, "", fmt.Errorf("loading config: %w", err)
	}
	if repoPath != "" {
		cfg.Repository.Path = repoPath
	}
	dir, err := cfg.RepositoryPath()
	if err != nil {
		return nil, "", err
	}
	return cfg, dir, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
