package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/obentoo/nixbump/internal/common/command"
	"github.com/obentoo/nixbump/internal/common/config"
	"github.com/obentoo/nixbump/internal/common/logger"
	"github.com/obentoo/nixbump/internal/manifest"
)

// UpdateScript is the per-package updater run with deno when present.
const UpdateScript = "update.ts"

// UpdateArgsFiles are read in order for extra nix-update arguments.
var UpdateArgsFiles = []string{"nixUpdateArgs", "nix-update-args"}

// Mutator changes the working tree to bump the target.
type Mutator interface {
	Mutate(ctx context.Context, pc *PipelineContext) error
}

// NativeUpdater bumps packages declared in the repository configuration.
type NativeUpdater interface {
	Handles(name string) bool
	Update(ctx context.Context, name string) error
}

// ManifestUpdater adapts a manifest.Updater and its loaded configuration.
type ManifestUpdater struct {
	Config  manifest.Config
	Updater *manifest.Updater
}

func (m *ManifestUpdater) Handles(name string) bool {
	_, ok := m.Config[name]
	return ok
}

func (m *ManifestUpdater) Update(ctx context.Context, name string) error {
	cfg, ok := m.Config[name]
	if !ok {
		return fmt.Errorf("%w: %s", manifest.ErrNotConfigured, name)
	}
	_, err := m.Updater.Update(ctx, name, cfg)
	return err
}

// NixMutator picks, for a package, the update script, then the native
// updater, then nix-update. Flake inputs go through nix flake update.
type NixMutator struct {
	runner command.Runner
	native NativeUpdater
	log    *logger.Logger
}

// NewNixMutator creates a mutator. native may be nil.
func NewNixMutator(runner command.Runner, native NativeUpdater, log *logger.Logger) *NixMutator {
	if log == nil {
		log = logger.Default()
	}
	return &NixMutator{runner: runner, native: native, log: log}
}

func (m *NixMutator) Mutate(ctx context.Context, pc *PipelineContext) error {
	t := pc.Target()
	if t.Kind == KindExternalInput {
		m.log.Info("Running nix flake update %s", t.Name)
		_, err := m.runner.Run(ctx, command.New("nix", "flake", "update", t.Name))
		return err
	}

	script := pc.PackageDir() + "/" + UpdateScript
	if fileExists(filepath.Join(pc.RepoDir(), script)) {
		m.log.Info("Running %s", script)
		_, err := m.runner.Run(ctx, command.New("deno", "run",
			"--config", "deno.jsonc",
			"--allow-run", "--allow-read", "--allow-write", "--allow-env", "--allow-net",
			script))
		return err
	}

	if m.native != nil && m.native.Handles(t.Name) {
		m.log.Info("Updating %s from its manifest configuration", t.Name)
		return m.native.Update(ctx, t.Name)
	}

	args, err := m.updateArgs(pc)
	if err != nil {
		return err
	}
	m.log.Info("No %s for %s; running nix-update", UpdateScript, t.Name)
	_, err = m.runner.Run(ctx, command.New("nix-update", append([]string{"--flake", t.Name}, args...)...))
	return err
}

func (m *NixMutator) updateArgs(pc *PipelineContext) ([]string, error) {
	var found []string
	var args []string
	for _, name := range UpdateArgsFiles {
		rel := pc.PackageDir() + "/" + name
		data, err := os.ReadFile(filepath.Join(pc.RepoDir(), rel))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if len(found) == 0 {
			if args, err = config.ParseList(bytes.NewReader(data)); err != nil {
				return nil, fmt.Errorf("%s: %w", rel, err)
			}
		}
		found = append(found, rel)
	}
	if len(found) > 1 {
		m.log.Warn("both %s exist; using %s", strings.Join(found, " and "), found[0])
	}
	return args, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
