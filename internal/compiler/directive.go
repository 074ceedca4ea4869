package compiler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/starford/bread/internal/models"
)

// parseDirective decodes the text between {{ and }}:
//
//	name key=value key2="quoted value"
func parseDirective(raw string) (*models.Directive, error) {
	rest := strings.TrimSpace(raw)
	if rest == "" {
		return nil, errors.New("empty directive")
	}

	name, rest := cutToken(rest)
	if !validIdent(name) {
		return nil, fmt.Errorf("invalid directive name %q", name)
	}

	params := make(map[string]string)
	rest = strings.TrimLeft(rest, " \t")
	for rest != "" {
		eq := strings.IndexAny(rest, "= \t")
		if eq < 0 || rest[eq] != '=' {
			tok, _ := cutToken(rest)
			return nil, fmt.Errorf("parameter %q is not key=value", tok)
		}
		key := rest[:eq]
		if key == "" {
			return nil, errors.New("parameter with empty name")
		}
		if !validIdent(key) {
			return nil, fmt.Errorf("invalid parameter name %q", key)
		}
		if _, dup := params[key]; dup {
			return nil, fmt.Errorf("parameter %q given twice", key)
		}
		rest = rest[eq+1:]

		var value string
		if strings.HasPrefix(rest, `"`) {
			var err error
			value, rest, err = unquote(rest)
			if err != nil {
				return nil, fmt.Errorf("parameter %q: %w", key, err)
			}
			if rest != "" && rest[0] != ' ' && rest[0] != '\t' {
				return nil, fmt.Errorf("parameter %q: unexpected text after closing quote", key)
			}
		} else {
			value, rest = cutToken(rest)
		}
		params[key] = value
		rest = strings.TrimLeft(rest, " \t")
	}

	return &models.Directive{Name: name, Params: params}, nil
}

func cutToken(s string) (token, rest string) {
	if i := strings.IndexAny(s, " \t"); i >= 0 {
		return s[:i], s[i:]
	}
	return s, ""
}

// unquote reads a double-quoted value from the start of s. Backslash escapes
// the next character.
func unquote(s string) (value, rest string, err error) {
	var b strings.Builder
	for i := 1; i < len(s); i++ {
		switch c := s[i]; c {
		case '\\':
			if i+1 >= len(s) {
				return "", "", errors.New("unterminated quote")
			}
			i++
			b.WriteByte(s[i])
		case '"':
			return b.String(), s[i+1:], nil
		default:
			b.WriteByte(c)
		}
	}
	return "", "", errors.New("unterminated quote")
}

func validIdent(s string) bool {
	if s == "" || s[0] < 'a' || s[0] > 'z' {
		return false
	}
	for i := 1; i < len(s); i++ {
		c := s[i]
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') && c != '_' && c != '-' {
			return false
		}
	}
	return true
}
