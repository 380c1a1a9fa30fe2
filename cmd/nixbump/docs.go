package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/obentoo/nixbump/internal/common/command"
	"github.com/obentoo/nixbump/internal/common/config"
	"github.com/obentoo/nixbump/internal/common/output"
	"github.com/obentoo/nixbump/internal/docs"
	"github.com/spf13/cobra"
)

// docsExpr overrides the metadata expression file
var docsExpr string

var docsCmd = &cobra.Command{
	Use:   "docs [file]",
	Short: "Regenerate the package docs region of the README",
	Long: `Evaluate package metadata with nix and rewrite the region between the
generated package docs markers. The file is only written when its content
changes.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runDocs,
}

func init() {
	docsCmd.Flags().StringVar(&docsExpr, "expr", docs.DefaultMetadataExpr, "Nix file evaluating to the package metadata")

	rootCmd.AddCommand(docsCmd)
}

func runDocs(cmd *cobra.Command, args []string) {
	cfg, repoDir, err := loadRepository()
	if err != nil {
		output.PrintError("%v", err)
		os.Exit(1)
	}

	file := firstNonEmpty(cfg.Repository.DocsFile, config.DefaultDocsFile)
	if len(args) == 1 {
		file = args[0]
	}
	if !filepath.IsAbs(file) {
		file = filepath.Join(repoDir, file)
	}

	ctx := context.Background()
	runner := command.NewExecRunner(repoDir, map[string]string{"NIX_PATH": config.NixPath})
	regen := docs.NewRegenerator(&docs.NixMetadataRenderer{
		Runner:   runner,
		RepoDir:  repoDir,
		ExprFile: docsExpr,
		FlakeRef: docs.ResolveFlakeRef(ctx, os.LookupEnv, runner, cfg.Repository.Remote),
	})

	changed, err := regen.Run(ctx, file)
	if err != nil {
		output.PrintError("%v", err)
		os.Exit(1)
	}
	if changed {
		output.PrintSuccess("Updated %s", file)
	} else {
		output.PrintInfo("%s is already up to date", file)
	}
}
