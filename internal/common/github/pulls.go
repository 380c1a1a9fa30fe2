package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/obentoo/nixbump/internal/common/command"
)

var (
	ErrEmptyHead  = errors.New("pull request head branch is empty")
	ErrEmptyTitle = errors.New("pull request title is empty")
	ErrBadNumber  = errors.New("pull request number must be positive")
)

// MergeMethod selects how an auto-merged pull request lands
type MergeMethod string

const (
	MergeSquash MergeMethod = "squash"
	MergeRebase MergeMethod = "rebase"
	MergeCommit MergeMethod = "merge"
)

// PullRequest is an open pull request as reported by gh
type PullRequest struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	URL    string `json:"url"`
}

// NewPullRequest describes a pull request to open
type NewPullRequest struct {
	Base   string
	Head   string
	Title  string
	Body   string
	Labels []string
}

// PullRequestEdit describes an in-place update of an open pull request
type PullRequestEdit struct {
	Title  string
	Body   string
	Labels []string
}

// PullRequests is the set of pull request operations the publisher uses
type PullRequests interface {
	// FindOpen returns the open pull request whose head is branch, or nil
	FindOpen(ctx context.Context, head string) (*PullRequest, error)
	// Create opens a new pull request
	Create(ctx context.Context, pr NewPullRequest) error
	// Edit replaces title and body and adds labels on an open pull request
	Edit(ctx context.Context, number int, edit PullRequestEdit) error
	// EnableAutoMerge asks GitHub to merge the pull request once checks pass
	EnableAutoMerge(ctx context.Context, number int, method MergeMethod) error
}

// CLI implements PullRequests by shelling out to the gh CLI, which picks up
// GH_TOKEN from the environment.
type CLI struct {
	runner command.Runner
	// Repo, when set, is passed as --repo owner/name.
	Repo string
}

// NewCLI creates a gh-backed pull request client
func NewCLI(runner command.Runner) *CLI {
	return &CLI{runner: runner}
}

func (c *CLI) gh(ctx context.Context, args ...string) (string, error) {
	if c.Repo != "" {
		args = append(args, "--repo", c.Repo)
	}
	res, err := c.runner.Run(ctx, command.New("gh", args...))
	if err != nil {
		return "", err
	}
	return res.Stdout, nil
}

// FindOpen runs gh pr list --head branch --state open
func (c *CLI) FindOpen(ctx context.Context, head string) (*PullRequest, error) {
	if head == "" {
		return nil, ErrEmptyHead
	}

	out, err := c.gh(ctx, "pr", "list", "--head", head, "--state", "open", "--json", "number,title,url")
	if err != nil {
		return nil, err
	}

	prs, err := ParsePullRequestList([]byte(out))
	if err != nil {
		return nil, err
	}
	if len(prs) == 0 {
		return nil, nil
	}
	return &prs[0], nil
}

// ParsePullRequestList decodes gh pr list JSON output. Every entry must carry
// a positive number.
func ParsePullRequestList(data []byte) ([]PullRequest, error) {
	var prs []PullRequest
	if err := json.Unmarshal(data, &prs); err != nil {
		return nil, fmt.Errorf("%w: gh pr list: %v", ErrMalformedResponse, err)
	}
	for i, pr := range prs {
		if pr.Number <= 0 {
			return nil, fmt.Errorf("%w: gh pr list: entry %d has no number", ErrMalformedResponse, i)
		}
	}
	return prs, nil
}

// Create runs gh pr create
func (c *CLI) Create(ctx context.Context, pr NewPullRequest) error {
	if pr.Head == "" {
		return ErrEmptyHead
	}
	if pr.Title == "" {
		return ErrEmptyTitle
	}

	args := []string{"pr", "create",
		"--title", pr.Title,
		"--body", pr.Body,
		"--base", pr.Base,
		"--head", pr.Head,
	}
	for _, l := range pr.Labels {
		args = append(args, "--label", l)
	}

	_, err := c.gh(ctx, args...)
	return err
}

// Edit runs gh pr edit
func (c *CLI) Edit(ctx context.Context, number int, edit PullRequestEdit) error {
	if number <= 0 {
		return ErrBadNumber
	}
	if edit.Title == "" {
		return ErrEmptyTitle
	}

	args := []string{"pr", "edit", strconv.Itoa(number),
		"--title", edit.Title,
		"--body", edit.Body,
	}
	for _, l := range edit.Labels {
		args = append(args, "--add-label", l)
	}

	_, err := c.gh(ctx, args...)
	return err
}

// EnableAutoMerge runs gh pr merge --auto
func (c *CLI) EnableAutoMerge(ctx context.Context, number int, method MergeMethod) error {
	if number <= 0 {
		return ErrBadNumber
	}
	if method == "" {
		method = MergeSquash
	}

	_, err := c.gh(ctx, "pr", "merge", strconv.Itoa(number), "--auto", "--"+string(method))
	return err
}

var _ PullRequests = (*CLI)(nil)
