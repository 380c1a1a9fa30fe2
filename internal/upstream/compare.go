package upstream

import (
	"regexp"
	"strconv"
	"strings"
)

// Pre-release priorities (lower = earlier in release cycle)
var suffixPriority = map[string]int{
	"dev":   -5,
	"alpha": -4,
	"a":     -4,
	"beta":  -3,
	"b":     -3,
	"pre":   -2,
	"rc":    -1,
	"":      0, // release version
	"post":  1,
	"p":     1, // patch
}

// suffixRegex matches pre-release markers in the forms 1.0-rc.1, 1.0-beta2,
// 1.0rc1 and 1.0_rc1
var suffixRegex = regexp.MustCompile(`[-_.]?(dev|alpha|beta|pre|rc|post|a|b|p)[-_.]?(\d*)$`)

// buildRegex matches semver build metadata, which never affects ordering
var buildRegex = regexp.MustCompile(`\+.*$`)

// parsedVersion is a version broken into comparable parts
type parsedVersion struct {
	nums       []int
	suffix     string
	suffixNum  int
	unparsable bool
}

// parseVersion breaks a version string into components for comparison
func parseVersion(v string) parsedVersion {
	v = strings.TrimSpace(v)
	v = strings.TrimPrefix(strings.TrimPrefix(v, "v"), "V")
	v = buildRegex.ReplaceAllString(v, "")

	var pv parsedVersion
	if matches := suffixRegex.FindStringSubmatchIndex(v); matches != nil && matches[0] > 0 {
		pv.suffix = v[matches[2]:matches[3]]
		if matches[4] != matches[5] {
			pv.suffixNum, _ = strconv.Atoi(v[matches[4]:matches[5]])
		}
		v = v[:matches[0]]
	}

	if v == "" {
		pv.unparsable = true
		return pv
	}

	for _, p := range strings.Split(v, ".") {
		// 1.0a -> 1, 0
		numStr := strings.TrimRightFunc(p, func(r rune) bool { return r < '0' || r > '9' })
		if numStr == "" {
			pv.unparsable = true
			pv.nums = append(pv.nums, 0)
			continue
		}
		n, err := strconv.Atoi(numStr)
		if err != nil {
			pv.unparsable = true
		}
		pv.nums = append(pv.nums, n)
	}

	return pv
}

// compareIntSlices compares two slices of integers, padding the shorter
// one with zeros
func compareIntSlices(a, b []int) int {
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}

	for i := 0; i < maxLen; i++ {
		var av, bv int
		if i < len(a) {
			av = a[i]
		}
		if i < len(b) {
			bv = b[i]
		}

		if av < bv {
			return -1
		}
		if av > bv {
			return 1
		}
	}
	return 0
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	}
	return 0
}

// CompareVersions compares two dotted version strings.
// Returns: -1 if v1 < v2, 0 if v1 == v2, 1 if v1 > v2
func CompareVersions(v1, v2 string) int {
	p1 := parseVersion(v1)
	p2 := parseVersion(v2)

	if cmp := compareIntSlices(p1.nums, p2.nums); cmp != 0 {
		return cmp
	}

	// dev < alpha < beta < pre < rc < release < post
	if cmp := sign(suffixPriority[p1.suffix] - suffixPriority[p2.suffix]); cmp != 0 {
		return cmp
	}

	if cmp := sign(p1.suffixNum - p2.suffixNum); cmp != 0 {
		return cmp
	}

	// Versions that carry no usable numbers fall back to a plain string
	// comparison so that ordering stays total.
	if p1.unparsable || p2.unparsable {
		return strings.Compare(strings.TrimSpace(v1), strings.TrimSpace(v2))
	}
	return 0
}

// ShouldUpdate reports whether latest is strictly newer than current.
func ShouldUpdate(current, latest string) bool {
	if latest == "" {
		return false
	}
	if current == "" {
		return true
	}
	return CompareVersions(latest, current) > 0
}
