package git

import "context"

// MockRunner implements Executor for testing.
// Each method can be configured with a custom function to control behavior.
type MockRunner struct {
	StatusFunc             func(ctx context.Context) ([]StatusEntry, error)
	HasUnstagedChangesFunc func(ctx context.Context) (bool, error)
	ChangedFilesFunc       func(ctx context.Context) ([]string, error)
	UntrackedFilesFunc     func(ctx context.Context) ([]string, error)
	SwitchCreateFunc       func(ctx context.Context, branch string) error
	AddFunc                func(ctx context.Context, paths ...string) error
	HasStagedChangesFunc   func(ctx context.Context) (bool, error)
	CommitFunc             func(ctx context.Context, opts CommitOptions) error
	PushFunc               func(ctx context.Context, remote, branch string, force bool) error
	workDir                string
}

// NewMockRunner creates a new MockRunner with the specified working directory
func NewMockRunner(workDir string) *MockRunner {
	return &MockRunner{
		workDir: workDir,
	}
}

// Status returns the configured status, or a clean tree
func (m *MockRunner) Status(ctx context.Context) ([]StatusEntry, error) {
	if m.StatusFunc != nil {
		return m.StatusFunc(ctx)
	}
	return nil, nil
}

// HasUnstagedChanges returns the configured answer, or false
func (m *MockRunner) HasUnstagedChanges(ctx context.Context) (bool, error) {
	if m.HasUnstagedChangesFunc != nil {
		return m.HasUnstagedChangesFunc(ctx)
	}
	return false, nil
}

// ChangedFiles returns the configured list, or nil
func (m *MockRunner) ChangedFiles(ctx context.Context) ([]string, error) {
	if m.ChangedFilesFunc != nil {
		return m.ChangedFilesFunc(ctx)
	}
	return nil, nil
}

// UntrackedFiles returns the configured list, or nil
func (m *MockRunner) UntrackedFiles(ctx context.Context) ([]string, error) {
	if m.UntrackedFilesFunc != nil {
		return m.UntrackedFilesFunc(ctx)
	}
	return nil, nil
}

// SwitchCreate calls the configured function, or succeeds
func (m *MockRunner) SwitchCreate(ctx context.Context, branch string) error {
	if m.SwitchCreateFunc != nil {
		return m.SwitchCreateFunc(ctx, branch)
	}
	return nil
}

// Add calls the configured function, or succeeds
func (m *MockRunner) Add(ctx context.Context, paths ...string) error {
	if m.AddFunc != nil {
		return m.AddFunc(ctx, paths...)
	}
	return nil
}

// HasStagedChanges returns the configured answer, or true
func (m *MockRunner) HasStagedChanges(ctx context.Context) (bool, error) {
	if m.HasStagedChangesFunc != nil {
		return m.HasStagedChangesFunc(ctx)
	}
	return true, nil
}

// Commit calls the configured function, or succeeds
func (m *MockRunner) Commit(ctx context.Context, opts CommitOptions) error {
	if m.CommitFunc != nil {
		return m.CommitFunc(ctx, opts)
	}
	return nil
}

// Push calls the configured function, or succeeds
func (m *MockRunner) Push(ctx context.Context, remote, branch string, force bool) error {
	if m.PushFunc != nil {
		return m.PushFunc(ctx, remote, branch, force)
	}
	return nil
}

// WorkDir returns the working directory
func (m *MockRunner) WorkDir() string {
	return m.workDir
}

var _ Executor = (*MockRunner)(nil)
