package coverage

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// ClassFilter decides which classes appear in final coverage output.
//
// Patterns are simple wildcard matches over fully qualified class names
// where '*' matches any run of characters. Exclusions take precedence:
// a name matching any exclude pattern is rejected even if an include
// pattern also matches it. With no include patterns every name that is
// not excluded passes.
type ClassFilter struct {
	includes []*regexp.Regexp
	excludes []*regexp.Regexp
}

// NewClassFilter compiles include and exclude wildcard patterns.
func NewClassFilter(includes, excludes []string) (*ClassFilter, error) {
	inc, err := compilePatterns(includes)
	if err != nil {
		return nil, err
	}
	exc, err := compilePatterns(excludes)
	if err != nil {
		return nil, err
	}
	return &ClassFilter{includes: inc, excludes: exc}, nil
}

// Includes reports whether the named class passes the filter.
func (f *ClassFilter) Includes(className string) bool {
	if f == nil {
		return true
	}
	if matchesAny(className, f.excludes) {
		return false
	}
	return len(f.includes) == 0 || matchesAny(className, f.includes)
}

func matchesAny(name string, patterns []*regexp.Regexp) bool {
	for _, p := range patterns {
		if p.MatchString(name) {
			return true
		}
	}
	return false
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	if len(patterns) == 0 {
		return nil, nil
	}
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, pat := range patterns {
		if err := validatePattern(pat); err != nil {
			return nil, err
		}
		out = append(out, regexp.MustCompile(wildcardToRegexp(pat)))
	}
	return out, nil
}

// validatePattern rejects patterns that could never match a fully
// qualified class name: empty strings and characters that cannot occur
// in a Java identifier or a '*' wildcard.
func validatePattern(pattern string) error {
	if pattern == "" {
		return fmt.Errorf("empty class pattern")
	}
	for _, r := range pattern {
		switch {
		case r == '*' || r == '.' || r == '$' || r == '_':
		case unicode.IsLetter(r) || unicode.IsDigit(r):
		default:
			return fmt.Errorf("invalid class pattern %q: unexpected character %q", pattern, r)
		}
	}
	return nil
}

// wildcardToRegexp converts a '*' wildcard pattern into an anchored
// regular expression, quoting everything else literally.
func wildcardToRegexp(pattern string) string {
	parts := strings.Split(pattern, "*")
	quoted := make([]string, len(parts))
	for i, part := range parts {
		quoted[i] = regexp.QuoteMeta(part)
	}
	return "^" + strings.Join(quoted, ".*") + "$"
}
