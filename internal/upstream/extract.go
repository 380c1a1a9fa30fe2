package upstream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
)

var (
	ErrPathNotFound      = errors.New("JSON path not found in document")
	ErrInvalidPath       = errors.New("invalid JSON path")
	ErrNoMatch           = errors.New("pattern did not match")
	ErrInvalidPattern    = errors.New("invalid regex pattern")
	ErrNoCaptureGroup    = errors.New("regex pattern must contain a capture group")
	ErrNoElement         = errors.New("no element matches")
	ErrNoSelectorOrXPath = errors.New("either selector or xpath must be set")
	ErrEmptyVersion      = errors.New("extracted version is empty")
)

// Extractor pulls a version string out of a fetched document.
type Extractor interface {
	Extract(content []byte) (string, error)
}

// JSONExtractor reads the value at a dotted path with optional [i]
// indexing, e.g. "dist-tags.latest" or "releases[0].version".
type JSONExtractor struct {
	Path string
}

func (e *JSONExtractor) Extract(content []byte) (string, error) {
	segments, err := splitPath(e.Path)
	if err != nil {
		return "", err
	}

	var doc interface{}
	if err := json.Unmarshal(content, &doc); err != nil {
		return "", fmt.Errorf("decode JSON: %w", err)
	}

	current := doc
	for _, seg := range segments {
		if seg.field != "" {
			obj, ok := current.(map[string]interface{})
			if !ok {
				return "", fmt.Errorf("%w: %q is not inside an object", ErrPathNotFound, seg.field)
			}
			v, ok := obj[seg.field]
			if !ok {
				return "", fmt.Errorf("%w: no field %q", ErrPathNotFound, seg.field)
			}
			current = v
			continue
		}

		arr, ok := current.([]interface{})
		if !ok {
			return "", fmt.Errorf("%w: index [%d] applied to a non-array", ErrPathNotFound, seg.index)
		}
		if seg.index >= len(arr) {
			return "", fmt.Errorf("%w: index [%d] out of range (len %d)", ErrPathNotFound, seg.index, len(arr))
		}
		current = arr[seg.index]
	}

	version, ok := scalarString(current)
	if !ok {
		return "", fmt.Errorf("%w: value at %q is not a scalar", ErrPathNotFound, e.Path)
	}
	if version == "" {
		return "", ErrEmptyVersion
	}
	return version, nil
}

// segment is a field name or, when field is empty, an array index
type segment struct {
	field string
	index int
}

func splitPath(path string) ([]segment, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidPath)
	}

	var segs []segment
	for _, part := range strings.Split(path, ".") {
		name := part
		var indexes string
		if i := strings.IndexByte(part, '['); i >= 0 {
			name, indexes = part[:i], part[i:]
		}
		if name == "" && indexes == "" {
			return nil, fmt.Errorf("%w: empty segment in %q", ErrInvalidPath, path)
		}
		if name != "" {
			segs = append(segs, segment{field: name})
		}

		for indexes != "" {
			end := strings.IndexByte(indexes, ']')
			if indexes[0] != '[' || end < 0 {
				return nil, fmt.Errorf("%w: malformed index in %q", ErrInvalidPath, part)
			}
			n, err := strconv.Atoi(indexes[1:end])
			if err != nil || n < 0 {
				return nil, fmt.Errorf("%w: bad index %q", ErrInvalidPath, indexes[1:end])
			}
			segs = append(segs, segment{index: n})
			indexes = indexes[end+1:]
		}
	}
	return segs, nil
}

func scalarString(v interface{}) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case float64:
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10), true
		}
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(val), true
	}
	return "", false
}

// RegexExtractor returns the first capture group of Pattern.
type RegexExtractor struct {
	re *regexp.Regexp
}

// NewRegexExtractor compiles pattern and checks it has a capture group.
func NewRegexExtractor(pattern string) (*RegexExtractor, error) {
	re, err := compileCapturing(pattern)
	if err != nil {
		return nil, err
	}
	return &RegexExtractor{re: re}, nil
}

func compileCapturing(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, fmt.Errorf("%w: empty pattern", ErrInvalidPattern)
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
	}
	if re.NumSubexp() < 1 {
		return nil, ErrNoCaptureGroup
	}
	return re, nil
}

func (e *RegexExtractor) Extract(content []byte) (string, error) {
	m := e.re.FindSubmatch(content)
	if m == nil {
		return "", fmt.Errorf("%w: %s", ErrNoMatch, e.re)
	}
	if len(m[1]) == 0 {
		return "", ErrEmptyVersion
	}
	return string(m[1]), nil
}

// HTMLExtractor selects an element by CSS selector (goquery) or XPath
// (htmlquery) and optionally narrows its text with a regex.
type HTMLExtractor struct {
	Selector string
	XPath    string
	re       *regexp.Regexp
}

// NewHTMLExtractor builds an HTMLExtractor. Selector wins when both
// selector and xpath are set.
func NewHTMLExtractor(selector, xpath, pattern string) (*HTMLExtractor, error) {
	if selector == "" && xpath == "" {
		return nil, ErrNoSelectorOrXPath
	}
	e := &HTMLExtractor{Selector: selector, XPath: xpath}
	if pattern != "" {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
		}
		e.re = re
	}
	return e, nil
}

func (e *HTMLExtractor) Extract(content []byte) (string, error) {
	var (
		text string
		err  error
	)
	if e.Selector != "" {
		text, err = e.selectCSS(content)
	} else {
		text, err = e.selectXPath(content)
	}
	if err != nil {
		return "", err
	}

	if e.re != nil {
		m := e.re.FindStringSubmatch(text)
		if m == nil {
			return "", fmt.Errorf("%w: %s", ErrNoMatch, e.re)
		}
		// first group when present, else the whole match
		text = m[0]
		if len(m) > 1 && m[1] != "" {
			text = m[1]
		}
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyVersion
	}
	return text, nil
}

func (e *HTMLExtractor) selectCSS(content []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("parse HTML: %w", err)
	}
	sel := doc.Find(e.Selector)
	if sel.Length() == 0 {
		return "", fmt.Errorf("%w: %s", ErrNoElement, e.Selector)
	}
	return sel.First().Text(), nil
}

func (e *HTMLExtractor) selectXPath(content []byte) (string, error) {
	doc, err := htmlquery.Parse(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("parse HTML: %w", err)
	}
	node, err := htmlquery.Query(doc, e.XPath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	if node == nil {
		return "", fmt.Errorf("%w: %s", ErrNoElement, e.XPath)
	}
	return htmlquery.InnerText(node), nil
}
