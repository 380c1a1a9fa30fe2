// Package docs keeps the generated package section of README.md in sync
// with the packages in the flake.
package docs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aymanbagabas/go-udiff"

	"github.com/obentoo/nixbump/internal/common/logger"
)

// Region markers in README.md
const (
	BeginMarker = "<!-- BEGIN GENERATED PACKAGE DOCS -->"
	EndMarker   = "<!-- END GENERATED PACKAGE DOCS -->"
)

var (
	ErrMarkersMissing    = errors.New("generated docs markers not found")
	ErrMarkersOutOfOrder = errors.New("END marker appears before BEGIN marker")
)

// Renderer produces the markdown placed between the markers.
type Renderer interface {
	Render(ctx context.Context) (string, error)
}

// RendererFunc adapts a function to Renderer
type RendererFunc func(ctx context.Context) (string, error)

func (f RendererFunc) Render(ctx context.Context) (string, error) {
	return f(ctx)
}

// Regenerator rewrites the generated region of a docs file.
type Regenerator struct {
	Renderer Renderer
}

// NewRegenerator creates a Regenerator using r.
func NewRegenerator(r Renderer) *Regenerator {
	return &Regenerator{Renderer: r}
}

// Run regenerates the region in path and reports whether the file changed.
// The file is only written when its content differs.
func (g *Regenerator) Run(ctx context.Context, path string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	content := string(data)

	// fail on bad markers before paying for a render
	if _, _, err := locate(content); err != nil {
		return false, fmt.Errorf("%s: %w", path, err)
	}

	generated, err := g.Renderer.Render(ctx)
	if err != nil {
		return false, fmt.Errorf("render package docs: %w", err)
	}

	updated, err := Splice(content, generated)
	if err != nil {
		return false, fmt.Errorf("%s: %w", path, err)
	}
	if updated == content {
		return false, nil
	}

	name := filepath.Base(path)
	logger.Debug("docs diff:\n%s", strings.TrimSpace(udiff.Unified("a/"+name, "b/"+name, content, updated)))

	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	if err := os.WriteFile(path, []byte(updated), info.Mode().Perm()); err != nil {
		return false, err
	}
	return true, nil
}

func locate(content string) (begin, end int, err error) {
	begin = strings.Index(content, BeginMarker)
	end = strings.Index(content, EndMarker)
	if begin < 0 || end < 0 {
		return 0, 0, ErrMarkersMissing
	}
	if end < begin {
		return 0, 0, ErrMarkersOutOfOrder
	}
	return begin, end, nil
}

// Splice replaces everything between the markers with a blank line,
// generated, and a newline. Text outside the markers is preserved.
func Splice(content, generated string) (string, error) {
	begin, end, err := locate(content)
	if err != nil {
		return "", err
	}
	return content[:begin+len(BeginMarker)] + "\n\n" + generated + "\n" + content[end:], nil
}
