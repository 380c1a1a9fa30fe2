// Package upstream finds the latest released version of a packaged tool.
//
// A package's source is declared in .nixbump/packages.toml:
//
//	[crush]
//	source = "github"
//	repository = "charmbracelet/crush"
//
//	[droid]
//	source = "regex"
//	url = "https://app.factory.ai/cli"
//	pattern = 'VER="([^"]+)"'
//
// Supported source types are github (latest release tag), npm (registry
// dist-tag), json (JSON path into a fetched document), regex (first capture
// group) and html (CSS selector or XPath, optionally narrowed by a regex).
//
// Lookups return errors wrapping ErrNotFound when upstream answered without
// a usable version, or ErrNetwork when it could not be reached. The update
// pipeline performs a single attempt per lookup; the Checker behind
// `nixbump check` retries with backoff and caches answers in
// ~/.cache/nixbump/versions.json.
package upstream
