// Package parser splits and decodes the frontmatter block of a markdown
// source file.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/starford/bread/internal/apperr"
)

const delim = "---"

// DefaultTemplate is the page template used when frontmatter names none.
const DefaultTemplate = "base"

var bom = []byte("\xef\xbb\xbf")

// Result holds the output of parsing a markdown source file.
type Result struct {
	Title    string
	Date     time.Time
	Tags     []string
	Slug     string
	Template string
	Meta     map[string]any
	Body     []byte
	BodyLine int // 1-based line of the file where Body starts
}

// Parse decodes the frontmatter of the file at path (relative to the
// source root) and returns it together with the markdown body.
func Parse(path string, data []byte) (*Result, error) {
	block, body, bodyLine, err := splitFrontmatter(data)
	if err != nil {
		return nil, &apperr.ParseError{Path: path, Reason: err.Error()}
	}

	fields := decodeBlock(block)

	res := &Result{
		Body:     body,
		BodyLine: bodyLine,
		Template: DefaultTemplate,
		Meta:     map[string]any{},
	}
	for key, value := range fields {
		switch key {
		case "title":
			res.Title = strings.TrimSpace(scalar(value))
		case "date":
			d, err := parseDate(value)
			if err != nil {
				return nil, &apperr.ParseError{Path: path, Reason: "invalid date", Err: err}
			}
			res.Date = d
		case "tags":
			res.Tags = tagList(value)
		case "slug":
			res.Slug = scalar(value)
		case "template":
			if t := strings.TrimSpace(scalar(value)); t != "" {
				res.Template = t
			}
		default:
			res.Meta[key] = value
		}
	}

	if res.Title == "" {
		return nil, &apperr.ParseError{Path: path, Reason: "missing required field: title"}
	}

	explicit := res.Slug != ""
	if !explicit {
		res.Slug = stem(path)
	}
	res.Slug = Slugify(res.Slug)
	if res.Slug == "" {
		return nil, &apperr.ParseError{Path: path, Reason: "cannot derive slug"}
	}

	return res, nil
}

// splitFrontmatter separates the block between the leading --- lines from
// the body. A file that does not open with --- has no block.
func splitFrontmatter(data []byte) (block, body []byte, bodyLine int, err error) {
	data = bytes.TrimPrefix(data, bom)

	first, rest, found := cutLine(data)
	if !isDelim(first) {
		return nil, data, 1, nil
	}
	if !found {
		return nil, nil, 0, errors.New("unterminated frontmatter")
	}

	line := 2
	start := rest
	offset := 0
	for len(rest) > 0 {
		var l []byte
		l, rest, _ = cutLine(rest)
		if isDelim(l) {
			return start[:offset], rest, line + 1, nil
		}
		offset = len(start) - len(rest)
		line++
	}
	return nil, nil, 0, errors.New("unterminated frontmatter")
}

func cutLine(b []byte) (line, rest []byte, found bool) {
	line, rest, found = bytes.Cut(b, []byte("\n"))
	return bytes.TrimRight(line, " \t\r"), rest, found
}

func isDelim(line []byte) bool {
	return string(line) == delim
}

// decodeBlock decodes the block as YAML and falls back to line-wise
// "key: value" pairs when it is not valid YAML (e.g. "title: Go: a tour").
func decodeBlock(block []byte) map[string]any {
	if len(bytes.TrimSpace(block)) == 0 {
		return nil
	}
	var fm map[string]any
	if err := yaml.Unmarshal(block, &fm); err == nil && fm != nil {
		return fm
	}

	out := make(map[string]any)
	for _, line := range strings.Split(string(block), "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		out[key] = strings.TrimSpace(value)
	}
	return out
}

func scalar(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case time.Time:
		return t.Format(time.DateOnly)
	default:
		return fmt.Sprint(t)
	}
}

func parseDate(v any) (time.Time, error) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return t.UTC(), nil
	case string:
		s := strings.Trim(strings.TrimSpace(t), `"'`)
		if s == "" {
			return time.Time{}, nil
		}
		if d, err := time.Parse(time.DateOnly, s); err == nil {
			return d, nil
		}
		d, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("%q is not a YYYY-MM-DD date", s)
		}
		return d.UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported date value %v", t)
	}
}

func tagList(v any) []string {
	var raw []string
	switch t := v.(type) {
	case string:
		raw = strings.Split(t, ",")
	case []any:
		for _, item := range t {
			raw = append(raw, scalar(item))
		}
	case nil:
	default:
		raw = strings.Split(scalar(t), ",")
	}
	return NormalizeTags(raw)
}

func stem(p string) string {
	base := path.Base(p)
	return strings.TrimSuffix(base, path.Ext(base))
}
