package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/obentoo/nixbump/internal/common/config"
	"github.com/obentoo/nixbump/internal/common/output"
	"github.com/spf13/cobra"
)

// configForce overwrites an existing config file
var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the nixbump user configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the built-in defaults",
	Long: `Write the built-in defaults to the user config file so they can be edited.
With --repo the repository path is recorded too.

The file is written to the first existing config location, or to
$XDG_CONFIG_HOME/nixbump/config.yaml when none exists.`,
	Args: cobra.NoArgs,
	Run:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file location",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		path, err := config.FindConfigPath()
		if err != nil {
			output.PrintError("%v", err)
			os.Exit(1)
		}
		fmt.Println(path)
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing config file")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) {
	path, err := config.FindConfigPath()
	if err != nil {
		output.PrintError("%v", err)
		os.Exit(1)
	}
	if err := writeDefaultConfig(path, repoPath, configForce); err != nil {
		output.PrintError("%v", err)
		os.Exit(1)
	}
	output.PrintSuccess("Wrote %s", path)
}

// writeDefaultConfig saves the defaults to path, refusing to replace an
// existing file unless force is set.
func writeDefaultConfig(path, repo string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config already exists at %s (use --force to overwrite)", path)
	}

	cfg := config.Default()
	if repo != "" {
		abs, err := filepath.Abs(repo)
		if err != nil {
			return err
		}
		cfg.Repository.Path = abs
	}
	return cfg.SaveTo(path)
}
