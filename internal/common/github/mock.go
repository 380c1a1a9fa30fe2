package github

import "context"

// MockPullRequests implements PullRequests for testing.
// Each method can be configured with a custom function to control behavior.
type MockPullRequests struct {
	FindOpenFunc        func(ctx context.Context, head string) (*PullRequest, error)
	CreateFunc          func(ctx context.Context, pr NewPullRequest) error
	EditFunc            func(ctx context.Context, number int, edit PullRequestEdit) error
	EnableAutoMergeFunc func(ctx context.Context, number int, method MergeMethod) error
}

// FindOpen returns the configured pull request, or none
func (m *MockPullRequests) FindOpen(ctx context.Context, head string) (*PullRequest, error) {
	if m.FindOpenFunc != nil {
		return m.FindOpenFunc(ctx, head)
	}
	return nil, nil
}

// Create calls the configured function, or succeeds
func (m *MockPullRequests) Create(ctx context.Context, pr NewPullRequest) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, pr)
	}
	return nil
}

// Edit calls the configured function, or succeeds
func (m *MockPullRequests) Edit(ctx context.Context, number int, edit PullRequestEdit) error {
	if m.EditFunc != nil {
		return m.EditFunc(ctx, number, edit)
	}
	return nil
}

// EnableAutoMerge calls the configured function, or succeeds
func (m *MockPullRequests) EnableAutoMerge(ctx context.Context, number int, method MergeMethod) error {
	if m.EnableAutoMergeFunc != nil {
		return m.EnableAutoMergeFunc(ctx, number, method)
	}
	return nil
}

var _ PullRequests = (*MockPullRequests)(nil)
