// Package glob compiles shell-style key patterns into anchored matchers.
// `*` matches zero or more characters, `?` matches exactly one; everything
// else is literal. Patterns are anchored at both ends, so "user:*" matches
// "user:1" but not "xuser:1".
package glob

import (
	"regexp"
	"strings"
)

// Compile translates pattern into an anchored regular expression.
func Compile(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteByte('^')
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteByte('.')
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteByte('$')
	return regexp.Compile(b.String())
}

// Match reports whether name matches pattern. Invalid patterns match nothing.
func Match(pattern, name string) bool {
	re, err := Compile(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(name)
}
