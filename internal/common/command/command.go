// Package command runs external tools (git, gh, nix, nix-update, deno) with
// captured output and a structured error carrying everything they printed.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
)

var (
	ErrNotFound = errors.New("executable not found")
	ErrEmpty    = errors.New("empty command")
)

// Invocation is a command name plus its arguments.
type Invocation struct {
	Name string
	Args []string
}

// New builds an Invocation.
func New(name string, args ...string) Invocation {
	return Invocation{Name: name, Args: args}
}

// String renders the invocation for logs, quoting arguments with spaces.
func (i Invocation) String() string {
	parts := make([]string, 0, len(i.Args)+1)
	parts = append(parts, i.Name)
	for _, a := range i.Args {
		if a == "" || strings.ContainsAny(a, " \t\n\"'") {
			a = fmt.Sprintf("%q", a)
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}

// Result holds the captured output of a finished command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Combined returns stdout followed by stderr.
func (r Result) Combined() string {
	return r.Stdout + r.Stderr
}

// Error is returned when a command exits non-zero or cannot be started.
type Error struct {
	Invocation Invocation
	ExitCode   int
	Stdout     string
	Stderr     string
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "command failed (exit %d): %s", e.ExitCode, e.Invocation)
	if e.Stdout != "" {
		b.WriteString("\n--- stdout ---\n")
		b.WriteString(strings.TrimRight(e.Stdout, "\n"))
	}
	if e.Stderr != "" {
		b.WriteString("\n--- stderr ---\n")
		b.WriteString(strings.TrimRight(e.Stderr, "\n"))
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Output returns stdout followed by stderr.
func (e *Error) Output() string {
	return e.Stdout + e.Stderr
}

// ExitCode reports the exit status carried by err, if err is a command Error.
func ExitCode(err error) (int, bool) {
	var cmdErr *Error
	if errors.As(err, &cmdErr) {
		return cmdErr.ExitCode, true
	}
	return 0, false
}

// Runner executes invocations.
type Runner interface {
	Run(ctx context.Context, inv Invocation) (Result, error)
}

// ExecRunner runs commands as local processes.
type ExecRunner struct {
	// Dir is the working directory; empty means the current one.
	Dir string
	// Env entries are appended to the inherited environment.
	Env map[string]string
	// Tee, when set, receives a live copy of stdout and stderr.
	Tee io.Writer
}

// NewExecRunner creates an ExecRunner rooted at dir with extra environment.
func NewExecRunner(dir string, env map[string]string) *ExecRunner {
	return &ExecRunner{Dir: dir, Env: env}
}

// Run executes inv and waits for it to finish.
func (r *ExecRunner) Run(ctx context.Context, inv Invocation) (Result, error) {
	if inv.Name == "" {
		return Result{}, ErrEmpty
	}

	cmd := exec.CommandContext(ctx, inv.Name, inv.Args...)
	cmd.Dir = r.Dir
	cmd.Env = mergeEnv(os.Environ(), r.Env)

	var stdout, stderr bytes.Buffer
	if r.Tee != nil {
		cmd.Stdout = io.MultiWriter(&stdout, r.Tee)
		cmd.Stderr = io.MultiWriter(&stderr, r.Tee)
	} else {
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
	}

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return res, nil
	}

	var exitErr *exec.ExitError
	switch {
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	case errors.Is(err, exec.ErrNotFound):
		res.ExitCode = 127
		err = fmt.Errorf("%w: %s", ErrNotFound, inv.Name)
	default:
		res.ExitCode = -1
	}

	return res, &Error{
		Invocation: inv,
		ExitCode:   res.ExitCode,
		Stdout:     res.Stdout,
		Stderr:     res.Stderr,
		Err:        err,
	}
}

// mergeEnv overlays extra on base. Keys from extra replace any existing entry.
func mergeEnv(base []string, extra map[string]string) []string {
	if len(extra) == 0 {
		return base
	}

	out := make([]string, 0, len(base)+len(extra))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if _, ok := extra[key]; ok {
			continue
		}
		out = append(out, kv)
	}

	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, k+"="+extra[k])
	}
	return out
}
