package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/obentoo/nixbump/internal/common/command"
	"github.com/obentoo/nixbump/internal/common/config"
	"github.com/obentoo/nixbump/internal/common/output"
	"github.com/obentoo/nixbump/internal/hash"
	"github.com/spf13/cobra"
)

var (
	// hashUnpack hashes the unpacked archive instead of the file
	hashUnpack bool
	// hashSystems maps nix systems to {platform} values
	hashSystems []string
	// hashVars supplies extra {key} substitutions
	hashVars []string
	// hashWorkers bounds concurrent prefetches
	hashWorkers int
)

var hashCmd = &cobra.Command{
	Use:   "hash",
	Short: "Compute nix hashes for downloads",
}

var hashURLCmd = &cobra.Command{
	Use:   "url <url>",
	Short: "Prefetch a URL and print its SRI hash",
	Args:  cobra.ExactArgs(1),
	Run:   runHashURL,
}

var hashPlatformsCmd = &cobra.Command{
	Use:   "platforms <template>",
	Short: "Prefetch one download per platform",
	Long: `Expand {platform} in the template once per --system and prefetch every
resulting URL concurrently. Other {key} placeholders come from --set.

Example:
  nixbump hash platforms 'https://example.com/{version}/{platform}/tool' \
    --set version=1.2.3 \
    --system x86_64-linux=linux-x64 --system aarch64-darwin=darwin-arm64`,
	Args: cobra.ExactArgs(1),
	Run:  runHashPlatforms,
}

func init() {
	hashCmd.PersistentFlags().BoolVar(&hashUnpack, "unpack", false, "Hash the unpacked archive")
	hashPlatformsCmd.Flags().StringArrayVar(&hashSystems, "system", nil, "system=platform pair (repeatable)")
	hashPlatformsCmd.Flags().StringArrayVar(&hashVars, "set", nil, "key=value substitution (repeatable)")
	hashPlatformsCmd.Flags().IntVar(&hashWorkers, "workers", 0, "Concurrent prefetches (0: one per system)")
	hashPlatformsCmd.MarkFlagRequired("system")

	hashCmd.AddCommand(hashURLCmd)
	hashCmd.AddCommand(hashPlatformsCmd)
	rootCmd.AddCommand(hashCmd)
}

func newCalculator() *hash.Calculator {
	return hash.NewCalculator(command.NewExecRunner("", map[string]string{"NIX_PATH": config.NixPath}))
}

func runHashURL(cmd *cobra.Command, args []string) {
	h, err := newCalculator().ForURL(context.Background(), args[0], hashUnpack)
	if err != nil {
		output.PrintError("%v", err)
		os.Exit(1)
	}
	fmt.Println(h)
}

func runHashPlatforms(cmd *cobra.Command, args []string) {
	systems, err := parsePairs(hashSystems)
	if err != nil {
		output.PrintError("--system: %v", err)
		os.Exit(1)
	}
	vars, err := parsePairs(hashVars)
	if err != nil {
		output.PrintError("--set: %v", err)
		os.Exit(1)
	}

	calc := newCalculator()
	calc.Workers = hashWorkers
	hashes, err := calc.PlatformHashes(context.Background(), args[0], systems, vars, hashUnpack)
	if err != nil {
		output.PrintError("%v", err)
		os.Exit(1)
	}

	names := make([]string, 0, len(hashes))
	for sys := range hashes {
		names = append(names, sys)
	}
	sort.Strings(names)
	for _, sys := range names {
		fmt.Printf("%s %s\n", sys, hashes[sys])
	}
}

// parsePairs parses key=value flags. Keys must be unique.
func parsePairs(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("expected key=value, got %q", p)
		}
		if _, dup := out[k]; dup {
			return nil, fmt.Errorf("%q given twice", k)
		}
		out[k] = strings.TrimSpace(v)
	}
	return out, nil
}
