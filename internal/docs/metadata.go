package docs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/obentoo/nixbump/internal/common/command"
)

// ErrInvalidMetadata is returned when nix eval output has the wrong shape
var ErrInvalidMetadata = errors.New("invalid package metadata")

// DefaultMetadataExpr is the Nix file, relative to the repository, that
// evaluates to an attrset of package metadata
const DefaultMetadataExpr = "scripts/generatePackageDocumentation.nix"

// CategoryOrder lists the categories rendered first, in this order. Any
// other category follows alphabetically.
var CategoryOrder = []string{
	"AI Coding Agents",
	"Codex Ecosystem",
	"Workflow & Project Management",
	"Code Review",
	"Utilities",
	"Uncategorized",
}

// PackageMetadata is what the docs need to know about one package.
type PackageMetadata struct {
	Description           string
	Version               string
	License               string
	Homepage              string
	SourceType            string
	HideFromDocumentation bool
	HasMainProgram        bool
	Category              string
}

// ParseMetadata decodes nix eval --json output. Null entries are skipped;
// every other entry must carry all fields with the right JSON types.
func ParseMetadata(data []byte) (map[string]PackageMetadata, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: nix eval output: %v", ErrInvalidMetadata, err)
	}

	out := make(map[string]PackageMetadata, len(raw))
	for name, msg := range raw {
		if string(msg) == "null" {
			continue
		}
		md, err := parseRecord(msg)
		if err != nil {
			return nil, fmt.Errorf("%w: metadata[%s]: %v", ErrInvalidMetadata, name, err)
		}
		out[name] = md
	}
	return out, nil
}

func parseRecord(msg json.RawMessage) (PackageMetadata, error) {
	var fields map[string]interface{}
	if err := json.Unmarshal(msg, &fields); err != nil || fields == nil {
		return PackageMetadata{}, errors.New("expected object")
	}

	str := func(key string) (string, error) {
		s, ok := fields[key].(string)
		if !ok {
			return "", fmt.Errorf("%s must be a string", key)
		}
		return s, nil
	}
	boolean := func(key string) (bool, error) {
		b, ok := fields[key].(bool)
		if !ok {
			return false, fmt.Errorf("%s must be a boolean", key)
		}
		return b, nil
	}

	var (
		md  PackageMetadata
		err error
	)
	if md.Description, err = str("description"); err != nil {
		return md, err
	}
	if md.Version, err = str("version"); err != nil {
		return md, err
	}
	if md.License, err = str("license"); err != nil {
		return md, err
	}
	if hp, present := fields["homepage"]; present && hp != nil {
		if md.Homepage, err = str("homepage"); err != nil {
			return md, err
		}
	}
	if md.SourceType, err = str("sourceType"); err != nil {
		return md, err
	}
	if md.HideFromDocumentation, err = boolean("hideFromDocumentation"); err != nil {
		return md, err
	}
	if md.HasMainProgram, err = boolean("hasMainProgram"); err != nil {
		return md, err
	}
	if md.Category, err = str("category"); err != nil {
		return md, err
	}
	return md, nil
}

// NixMetadataRenderer evaluates package metadata with nix and renders one
// collapsible entry per package, grouped by category.
type NixMetadataRenderer struct {
	Runner  command.Runner
	RepoDir string
	// ExprFile defaults to DefaultMetadataExpr
	ExprFile string
	// FlakeRef is used in the usage line, e.g. github:owner/repo
	FlakeRef string
}

func (r *NixMetadataRenderer) Render(ctx context.Context) (string, error) {
	expr := r.ExprFile
	if expr == "" {
		expr = DefaultMetadataExpr
	}

	res, err := r.Runner.Run(ctx, command.New("nix", "--accept-flake-config", "eval", "--json", "--file", expr))
	if err != nil {
		return "", err
	}
	md, err := ParseMetadata([]byte(res.Stdout))
	if err != nil {
		return "", err
	}
	return RenderMarkdown(md, r.FlakeRef, r.packageReadme), nil
}

// packageReadme reports the per-package README when one exists
func (r *NixMetadataRenderer) packageReadme(name string) (string, bool) {
	rel := "packages/" + name + "/README.md"
	if _, err := os.Stat(filepath.Join(r.RepoDir, rel)); err != nil {
		return "", false
	}
	return rel, true
}

// ReadmeFunc returns the repository-relative path of a package README
type ReadmeFunc func(name string) (string, bool)

// RenderMarkdown renders the generated region. Packages hidden from
// documentation are left out.
func RenderMarkdown(md map[string]PackageMetadata, flakeRef string, readme ReadmeFunc) string {
	if flakeRef == "" {
		flakeRef = "."
	}

	names := make([]string, 0, len(md))
	for name, m := range md {
		if !m.HideFromDocumentation {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	byCategory := make(map[string][]string)
	for _, name := range names {
		c := md[name].Category
		byCategory[c] = append(byCategory[c], name)
	}

	var categories []string
	known := make(map[string]bool, len(CategoryOrder))
	for _, c := range CategoryOrder {
		known[c] = true
		if len(byCategory[c]) > 0 {
			categories = append(categories, c)
		}
	}
	var rest []string
	for c := range byCategory {
		if !known[c] {
			rest = append(rest, c)
		}
	}
	sort.Strings(rest)
	categories = append(categories, rest...)

	var parts []string
	for _, c := range categories {
		parts = append(parts, "### "+c+"\n")
		for _, name := range byCategory[c] {
			parts = append(parts, renderEntry(name, md[name], flakeRef, readme))
		}
		parts = append(parts, "")
	}
	return strings.TrimRight(strings.Join(parts, "\n"), " \t\n")
}

func renderEntry(name string, m PackageMetadata, flakeRef string, readme ReadmeFunc) string {
	lines := []string{
		"<details>",
		fmt.Sprintf("<summary><strong>%s</strong> - %s</summary>", name, m.Description),
		"",
		"- **Source**: " + m.SourceType,
		"- **License**: " + m.License,
	}
	if m.Homepage != "" {
		lines = append(lines, "- **Homepage**: "+m.Homepage)
	}
	lines = append(lines,
		fmt.Sprintf("- **Usage**: `nix run %s#%s -- --help`", flakeRef, name),
		fmt.Sprintf("- **Nix**: [packages/%[1]s/package.nix](packages/%[1]s/package.nix)", name),
	)
	if readme != nil {
		if path, ok := readme(name); ok {
			lines = append(lines, fmt.Sprintf("- **Documentation**: See [%[1]s](%[1]s) for detailed usage", path))
		}
	}
	lines = append(lines, "", "</details>")
	return strings.Join(lines, "\n")
}

var remoteRepoPattern = regexp.MustCompile(`[:/]([A-Za-z0-9_.-]+)/([A-Za-z0-9_.-]+?)(?:\.git)?$`)

// ResolveFlakeRef picks the flake reference shown in usage lines:
// PACKAGE_DOCS_FLAKE, then github:$GITHUB_REPOSITORY, then the named git
// remote (origin when empty) if it is on GitHub, else ".".
func ResolveFlakeRef(ctx context.Context, lookup func(string) (string, bool), runner command.Runner, remoteName string) string {
	if v, ok := lookup("PACKAGE_DOCS_FLAKE"); ok && v != "" {
		return v
	}
	if v, ok := lookup("GITHUB_REPOSITORY"); ok && v != "" {
		return "github:" + v
	}

	if remoteName == "" {
		remoteName = "origin"
	}
	res, err := runner.Run(ctx, command.New("git", "remote", "get-url", remoteName))
	if err != nil {
		return "."
	}
	remote := strings.TrimSpace(res.Stdout)
	if !strings.Contains(remote, "github.com") {
		return "."
	}
	m := remoteRepoPattern.FindStringSubmatch(remote)
	if m == nil {
		return "."
	}
	return "github:" + m[1] + "/" + m[2]
}
