// Package pattern compiles glob-like object ID patterns into matchers.
//
// Identifiers are dot separated (adapter.0.channel.state). A pattern is turned
// into an anchored regular expression by applying, in order:
//
//  1. escape literal backslashes
//  2. escape literal dots
//  3. expand * to "any sequence of characters"
//  4. expand ! to a negative lookahead marker (?!)
//
// so "foo.*" matches "foo.bar.baz" and "foo." but not "fooo.bar", and
// "system.adapter.(!admin)*" excludes every admin instance. The lookahead
// consumes nothing, so "system.adapter.(!admin).*" demands a second dot
// right after "adapter." and matches no instance id at all.
//
// There is no escape for * or !. Identifiers containing those characters
// cannot be matched literally.
package pattern

import (
	"fmt"
	"strings"

	"github.com/dlclark/regexp2"
)

// Matcher tests dotted identifiers against a compiled pattern.
type Matcher struct {
	pattern string
	re      *regexp2.Regexp
}

// Translate returns the regular expression a pattern compiles to.
func Translate(pattern string) string {
	expr := strings.ReplaceAll(pattern, `\`, `\\`)
	expr = strings.ReplaceAll(expr, ".", `\.`)
	expr = strings.ReplaceAll(expr, "*", ".*")
	expr = strings.ReplaceAll(expr, "!", "?!")
	return "^" + expr + "$"
}

// Compile builds a Matcher. Lookahead needs a backtracking engine, so the
// expression runs on regexp2 with JavaScript semantics rather than RE2.
func Compile(pattern string) (*Matcher, error) {
	re, err := regexp2.Compile(Translate(pattern), regexp2.ECMAScript)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	return &Matcher{pattern: pattern, re: re}, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(pattern string) *Matcher {
	m, err := Compile(pattern)
	if err != nil {
		panic(err)
	}
	return m
}

// Test reports whether id matches the whole pattern.
func (m *Matcher) Test(id string) bool {
	ok, err := m.re.MatchString(id)
	return err == nil && ok
}

// String returns the source pattern.
func (m *Matcher) String() string {
	return m.pattern
}
