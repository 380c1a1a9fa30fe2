package command

import (
	"context"
	"strings"
	"sync"
)

// MockRunner implements Runner for testing. It records every invocation and
// answers from RunFunc, or from Responses keyed by the invocation prefix.
type MockRunner struct {
	RunFunc func(ctx context.Context, inv Invocation) (Result, error)

	// Responses maps an invocation prefix (e.g. "nix fmt") to a canned reply.
	// The longest matching prefix wins.
	Responses map[string]Response

	mu    sync.Mutex
	calls []Invocation
}

// Response is a canned reply for MockRunner.
type Response struct {
	Result Result
	Err    error
}

// Fail builds a Response for a command that exits with code and output.
func Fail(code int, stdout, stderr string) Response {
	return Response{
		Result: Result{Stdout: stdout, Stderr: stderr, ExitCode: code},
		Err:    &Error{ExitCode: code, Stdout: stdout, Stderr: stderr},
	}
}

// OK builds a Response for a successful command printing stdout.
func OK(stdout string) Response {
	return Response{Result: Result{Stdout: stdout}}
}

// Run records inv and returns the configured reply.
func (m *MockRunner) Run(ctx context.Context, inv Invocation) (Result, error) {
	m.mu.Lock()
	m.calls = append(m.calls, inv)
	m.mu.Unlock()

	if m.RunFunc != nil {
		return m.RunFunc(ctx, inv)
	}

	line := inv.String()
	best := ""
	found := false
	for prefix := range m.Responses {
		if strings.HasPrefix(line, prefix) && len(prefix) >= len(best) {
			best = prefix
			found = true
		}
	}
	if !found {
		return Result{}, nil
	}

	resp := m.Responses[best]
	if resp.Err != nil {
		if cmdErr, ok := resp.Err.(*Error); ok {
			withInv := *cmdErr
			withInv.Invocation = inv
			return resp.Result, &withInv
		}
	}
	return resp.Result, resp.Err
}

// Calls returns the recorded invocations in order.
func (m *MockRunner) Calls() []Invocation {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Invocation, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallLines returns the recorded invocations rendered with String.
func (m *MockRunner) CallLines() []string {
	calls := m.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.String()
	}
	return out
}

var _ Runner = (*MockRunner)(nil)
var _ Runner = (*ExecRunner)(nil)
