package pipeline

import (
	"path"

	"github.com/obentoo/nixbump/internal/common/config"
)

// PipelineContext is the configuration of one run. It is built once from
// the resolved runtime configuration and never changes afterwards; slice
// and map accessors return copies.
type PipelineContext struct {
	target          UpdateTarget
	repoDir         string
	system          string
	labels          []string
	autoMerge       bool
	remote          string
	baseBranch      string
	packagesDir     string
	lockFile        string
	docsFile        string
	formatterChecks []string
	smokePackages   []string
	env             map[string]string
}

// NewPipelineContext validates target and snapshots rt.
func NewPipelineContext(target UpdateTarget, rt *config.Runtime) (*PipelineContext, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}
	// normalise the legacy kind spelling
	target.Kind, _ = ParseKind(string(target.Kind))

	env := make(map[string]string, len(rt.Env))
	for k, v := range rt.Env {
		env[k] = v
	}

	return &PipelineContext{
		target:          target,
		repoDir:         rt.RepoDir,
		system:          rt.System,
		labels:          append([]string(nil), rt.Labels...),
		autoMerge:       rt.AutoMerge,
		remote:          rt.Remote,
		baseBranch:      rt.BaseBranch,
		packagesDir:     rt.PackagesDir,
		lockFile:        rt.LockFile,
		docsFile:        rt.DocsFile,
		formatterChecks: append([]string(nil), rt.FormatterChecks...),
		smokePackages:   append([]string(nil), rt.SmokePackages...),
		env:             env,
	}, nil
}

func (c *PipelineContext) Target() UpdateTarget { return c.target }
func (c *PipelineContext) RepoDir() string      { return c.repoDir }
func (c *PipelineContext) System() string       { return c.system }
func (c *PipelineContext) AutoMerge() bool      { return c.autoMerge }
func (c *PipelineContext) Remote() string       { return c.remote }
func (c *PipelineContext) BaseBranch() string   { return c.baseBranch }
func (c *PipelineContext) PackagesDir() string  { return c.packagesDir }
func (c *PipelineContext) LockFile() string     { return c.lockFile }
func (c *PipelineContext) DocsFile() string     { return c.docsFile }

func (c *PipelineContext) Labels() []string {
	return append([]string(nil), c.labels...)
}

func (c *PipelineContext) FormatterChecks() []string {
	return append([]string(nil), c.formatterChecks...)
}

func (c *PipelineContext) SmokePackages() []string {
	return append([]string(nil), c.smokePackages...)
}

// Environment returns the variables added to every child process.
func (c *PipelineContext) Environment() map[string]string {
	out := make(map[string]string, len(c.env))
	for k, v := range c.env {
		out[k] = v
	}
	return out
}

// PackageDir returns the repository-relative directory of a package target.
func (c *PipelineContext) PackageDir() string {
	return path.Join(c.packagesDir, c.target.Name)
}
