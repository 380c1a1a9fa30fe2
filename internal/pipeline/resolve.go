package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/obentoo/nixbump/internal/common/command"
)

// UnknownVersion is reported when the new version cannot be determined.
const UnknownVersion = "unknown"

// shortRevLen is how much of a locked revision appears in titles.
const shortRevLen = 8

var ErrMalformedLock = errors.New("malformed lock file")

// ResolveNewVersion determines the version the tree now holds. Packages are
// asked through nix eval; flake inputs are read from the lock file. An
// evaluation failure is not an error: the version is then unknown.
func ResolveNewVersion(ctx context.Context, runner command.Runner, pc *PipelineContext) (string, error) {
	t := pc.Target()
	if t.Kind == KindPackage {
		attr := fmt.Sprintf(".#packages.%s.%q.version", pc.System(), t.Name)
		res, err := runner.Run(ctx, command.New("nix", "eval", "--raw", "--impure", attr))
		if err != nil {
			return UnknownVersion, nil
		}
		if v := strings.TrimSpace(res.Stdout); v != "" {
			return v, nil
		}
		return UnknownVersion, nil
	}

	data, err := os.ReadFile(filepath.Join(pc.RepoDir(), pc.LockFile()))
	if err != nil {
		return "", err
	}
	return LockedRevision(data, t.Name)
}

// LockedRevision returns the first characters of nodes.<name>.locked.rev.
// A lock without a nodes object is malformed. Below it, absent entries give
// UnknownVersion and values of the wrong type are errors naming the field.
func LockedRevision(lock []byte, name string) (string, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal(lock, &doc); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedLock, err)
	}

	nodes, ok, err := object(doc, "nodes", "nodes")
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: nodes must be an object", ErrMalformedLock)
	}
	node, ok, err := object(nodes, name, "nodes."+name)
	if err != nil || !ok {
		return UnknownVersion, err
	}
	locked, ok, err := object(node, "locked", "nodes."+name+".locked")
	if err != nil || !ok {
		return UnknownVersion, err
	}

	raw, present := locked["rev"]
	if !present || raw == nil {
		return UnknownVersion, nil
	}
	rev, isString := raw.(string)
	if !isString {
		return "", fmt.Errorf("%w: nodes.%s.locked.rev must be a string", ErrMalformedLock, name)
	}
	if rev == "" {
		return UnknownVersion, nil
	}
	if len(rev) > shortRevLen {
		rev = rev[:shortRevLen]
	}
	return rev, nil
}

func object(parent map[string]interface{}, key, field string) (map[string]interface{}, bool, error) {
	raw, present := parent[key]
	if !present || raw == nil {
		return nil, false, nil
	}
	m, ok := raw.(map[string]interface{})
	if !ok {
		return nil, false, fmt.Errorf("%w: %s must be an object", ErrMalformedLock, field)
	}
	return m, true, nil
}
