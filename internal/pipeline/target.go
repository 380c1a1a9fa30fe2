// Package pipeline runs one update end to end: mutate the working tree,
// validate it, confine the change to the target's files and publish it as
// a pull request.
package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

// Kind distinguishes a packaged tool from a flake input.
type Kind string

const (
	KindPackage       Kind = "package"
	KindExternalInput Kind = "external-input"
)

var (
	ErrUnknownKind    = errors.New("unknown update kind")
	ErrEmptyName      = errors.New("target name is empty")
	ErrInvalidName    = errors.New("target name must be a single path component")
	ErrEmptyVersion   = errors.New("current version is empty")
	legacyInputKind   = "flake-input"
	allowedKindsUsage = "expected 'package' or 'external-input'"
)

// ParseKind accepts "package", "external-input" and the older spelling
// "flake-input".
func ParseKind(s string) (Kind, error) {
	switch s {
	case string(KindPackage):
		return KindPackage, nil
	case string(KindExternalInput), legacyInputKind:
		return KindExternalInput, nil
	}
	return "", fmt.Errorf("%w %q (%s)", ErrUnknownKind, s, allowedKindsUsage)
}

// UpdateTarget identifies what one run updates.
type UpdateTarget struct {
	Kind           Kind
	Name           string
	CurrentVersion string
}

// Validate rejects targets whose name could escape the package directory
// or break a branch name.
func (t UpdateTarget) Validate() error {
	if _, err := ParseKind(string(t.Kind)); err != nil {
		return err
	}
	if t.Name == "" {
		return ErrEmptyName
	}
	if t.Name == "." || strings.Contains(t.Name, "/") || strings.Contains(t.Name, "..") ||
		strings.ContainsAny(t.Name, " \t\r\n") {
		return fmt.Errorf("%w: %q", ErrInvalidName, t.Name)
	}
	if strings.TrimSpace(t.CurrentVersion) == "" {
		return ErrEmptyVersion
	}
	return nil
}

func (t UpdateTarget) String() string {
	return string(t.Kind) + " " + t.Name
}
