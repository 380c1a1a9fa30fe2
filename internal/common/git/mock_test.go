package git

import (
	"context"
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// **Feature: git-executor, Property: Mock returns configured results**
func TestMockRunnerReturnsConfiguredResults(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)
	ctx := context.Background()

	properties.Property("MockRunner satisfies Executor for any workDir", prop.ForAll(
		func(workDir string) bool {
			var executor Executor = NewMockRunner(workDir)
			return executor.WorkDir() == workDir
		},
		gen.AnyString(),
	))

	properties.Property("ChangedFiles returns configured list", prop.ForAll(
		func(files []string) bool {
			mock := NewMockRunner("/repo")
			mock.ChangedFilesFunc = func(context.Context) ([]string, error) {
				return files, nil
			}
			got, err := mock.ChangedFiles(ctx)
			if err != nil || len(got) != len(files) {
				return false
			}
			for i := range files {
				if got[i] != files[i] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.Property("Push receives remote and branch", prop.ForAll(
		func(remote, branch string, force bool) bool {
			mock := NewMockRunner("/repo")
			var gotRemote, gotBranch string
			var gotForce bool
			mock.PushFunc = func(_ context.Context, r, b string, f bool) error {
				gotRemote, gotBranch, gotForce = r, b, f
				return nil
			}
			_ = mock.Push(ctx, remote, branch, force)
			return gotRemote == remote && gotBranch == branch && gotForce == force
		},
		gen.AlphaString(),
		gen.AlphaString(),
		gen.Bool(),
	))

	properties.Property("Commit propagates configured error", prop.ForAll(
		func(msg string) bool {
			mock := NewMockRunner("/repo")
			want := errors.New(msg)
			mock.CommitFunc = func(context.Context, CommitOptions) error { return want }
			return errors.Is(mock.Commit(ctx, CommitOptions{Message: "x"}), want)
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

// TestMockRunnerDefaultBehavior verifies default behavior when no functions are configured
func TestMockRunnerDefaultBehavior(t *testing.T) {
	mock := NewMockRunner("/test/dir")
	ctx := context.Background()

	t.Run("Status reports a clean tree", func(t *testing.T) {
		entries, err := mock.Status(ctx)
		if err != nil || entries != nil {
			t.Errorf("expected nil, nil; got %v, %v", entries, err)
		}
	})

	t.Run("HasUnstagedChanges is false", func(t *testing.T) {
		dirty, err := mock.HasUnstagedChanges(ctx)
		if err != nil || dirty {
			t.Errorf("expected false, nil; got %v, %v", dirty, err)
		}
	})

	t.Run("HasStagedChanges is true", func(t *testing.T) {
		staged, err := mock.HasStagedChanges(ctx)
		if err != nil || !staged {
			t.Errorf("expected true, nil; got %v, %v", staged, err)
		}
	})

	t.Run("mutating operations succeed", func(t *testing.T) {
		if err := mock.SwitchCreate(ctx, "update/crush"); err != nil {
			t.Errorf("SwitchCreate: %v", err)
		}
		if err := mock.Add(ctx, "packages/crush"); err != nil {
			t.Errorf("Add: %v", err)
		}
		if err := mock.Commit(ctx, CommitOptions{Message: "msg"}); err != nil {
			t.Errorf("Commit: %v", err)
		}
		if err := mock.Push(ctx, "origin", "update/crush", true); err != nil {
			t.Errorf("Push: %v", err)
		}
	})
}
