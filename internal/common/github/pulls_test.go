package github

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/obentoo/nixbump/internal/common/command"
)

func TestFindOpen(t *testing.T) {
	tests := []struct {
		name    string
		stdout  string
		want    *PullRequest
		wantErr error
	}{
		{"no open pull request", "[]\n", nil, nil},
		{"one open pull request", `[{"number":42,"title":"crush: 1.0 -> 1.1","url":"https://github.com/o/r/pull/42"}]`,
			&PullRequest{Number: 42, Title: "crush: 1.0 -> 1.1", URL: "https://github.com/o/r/pull/42"}, nil},
		{"not JSON", "gh: not logged in", nil, ErrMalformedResponse},
		{"entry without number", `[{"title":"x"}]`, nil, ErrMalformedResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &command.MockRunner{Responses: map[string]command.Response{"gh pr list": command.OK(tt.stdout)}}
			cli := NewCLI(runner)

			got, err := cli.FindOpen(context.Background(), "update/crush")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("FindOpen() = %+v, want %+v", got, tt.want)
			}

			want := "gh pr list --head update/crush --state open --json number,title,url"
			if lines := runner.CallLines(); len(lines) != 1 || lines[0] != want {
				t.Errorf("calls = %v", lines)
			}
		})
	}
}

func TestCreateCommandLine(t *testing.T) {
	runner := &command.MockRunner{}
	cli := NewCLI(runner)

	err := cli.Create(context.Background(), NewPullRequest{
		Base:   "main",
		Head:   "update/crush",
		Title:  "crush: 1.0 -> 1.1",
		Body:   "Automated update",
		Labels: []string{"dependencies", "automated"},
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	want := command.New("gh", "pr", "create",
		"--title", "crush: 1.0 -> 1.1",
		"--body", "Automated update",
		"--base", "main",
		"--head", "update/crush",
		"--label", "dependencies",
		"--label", "automated")
	if calls := runner.Calls(); len(calls) != 1 || !reflect.DeepEqual(calls[0], want) {
		t.Errorf("calls = %v", calls)
	}
}

func TestEditCommandLine(t *testing.T) {
	runner := &command.MockRunner{}
	cli := NewCLI(runner)
	cli.Repo = "o/r"

	if err := cli.Edit(context.Background(), 7, PullRequestEdit{Title: "t", Body: "b", Labels: []string{"deps"}}); err != nil {
		t.Fatalf("Edit() error = %v", err)
	}

	want := command.New("gh", "pr", "edit", "7", "--title", "t", "--body", "b", "--add-label", "deps", "--repo", "o/r")
	if calls := runner.Calls(); len(calls) != 1 || !reflect.DeepEqual(calls[0], want) {
		t.Errorf("calls = %v", calls)
	}
}

func TestEnableAutoMerge(t *testing.T) {
	runner := &command.MockRunner{}
	cli := NewCLI(runner)

	if err := cli.EnableAutoMerge(context.Background(), 12, ""); err != nil {
		t.Fatalf("EnableAutoMerge() error = %v", err)
	}
	if lines := runner.CallLines(); len(lines) != 1 || lines[0] != "gh pr merge 12 --auto --squash" {
		t.Errorf("calls = %v", lines)
	}
}

func TestPullRequestArgumentValidation(t *testing.T) {
	cli := NewCLI(&command.MockRunner{})
	ctx := context.Background()

	if _, err := cli.FindOpen(ctx, ""); !errors.Is(err, ErrEmptyHead) {
		t.Errorf("FindOpen(\"\") = %v", err)
	}
	if err := cli.Create(ctx, NewPullRequest{Head: "h"}); !errors.Is(err, ErrEmptyTitle) {
		t.Errorf("Create without title = %v", err)
	}
	if err := cli.Edit(ctx, 0, PullRequestEdit{Title: "t"}); !errors.Is(err, ErrBadNumber) {
		t.Errorf("Edit(0) = %v", err)
	}
	if err := cli.EnableAutoMerge(ctx, -1, MergeSquash); !errors.Is(err, ErrBadNumber) {
		t.Errorf("EnableAutoMerge(-1) = %v", err)
	}
}

func TestCommandFailurePropagates(t *testing.T) {
	runner := &command.MockRunner{Responses: map[string]command.Response{
		"gh pr merge": command.Fail(1, "", "auto-merge is not allowed for this repository"),
	}}
	err := NewCLI(runner).EnableAutoMerge(context.Background(), 3, MergeSquash)

	var cmdErr *command.Error
	if !errors.As(err, &cmdErr) || cmdErr.Stderr == "" {
		t.Errorf("expected command error with stderr, got %v", err)
	}
}
