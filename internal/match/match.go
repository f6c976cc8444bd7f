// Package match evaluates text against sender and subject patterns. Three
// pattern styles are supported, distinguished by the presence of the wildcard
// marker '*': exact (full-string equality), wildcard (anchored segment
// matching, e.g. "*@domain.com", "order*", "*uber*"), and a literal substring
// fallback for contains-style fields. All comparisons are caseless.
package match

import (
	"strings"

	"golang.org/x/text/cases"
)

var folder = cases.Fold()

// fold normalizes text for caseless comparison.
func fold(s string) string {
	return folder.String(strings.TrimSpace(s))
}

// Matches reports whether value satisfies pattern. A pattern without a
// wildcard must equal the whole value; a pattern with wildcards is matched
// as anchored segments in order. The empty pattern never matches.
func Matches(pattern, value string) bool {
	pattern = fold(pattern)
	if pattern == "" {
		return false
	}
	value = fold(value)

	if !strings.Contains(pattern, "*") {
		return pattern == value
	}
	return wildcardMatch(pattern, value)
}

// Contains reports whether value contains pattern as a substring. Patterns
// carrying a wildcard fall through to Matches so that "*@shop.com" style
// entries keep their anchored meaning even in contains-style fields. The
// empty pattern never matches.
func Contains(pattern, value string) bool {
	pattern = fold(pattern)
	if pattern == "" {
		return false
	}
	if strings.Contains(pattern, "*") {
		return wildcardMatch(pattern, fold(value))
	}
	return strings.Contains(fold(value), pattern)
}

// ContainsAny reports whether value matches any of the given patterns and
// returns the first pattern that matched.
func ContainsAny(patterns []string, value string) (string, bool) {
	for _, p := range patterns {
		if Contains(p, value) {
			return p, true
		}
	}
	return "", false
}

// wildcardMatch checks the non-wildcard segments of pattern in order against
// value. A leading segment anchors the prefix, a trailing segment anchors the
// suffix.
func wildcardMatch(pattern, value string) bool {
	segments := strings.Split(pattern, "*")

	// "*" or "**" etc: all segments empty, matches anything.
	rest := value
	for i, seg := range segments {
		if seg == "" {
			continue
		}
		switch {
		case i == 0:
			if !strings.HasPrefix(rest, seg) {
				return false
			}
			rest = rest[len(seg):]
		case i == len(segments)-1:
			if !strings.HasSuffix(rest, seg) {
				return false
			}
			rest = ""
		default:
			idx := strings.Index(rest, seg)
			if idx < 0 {
				return false
			}
			rest = rest[idx+len(seg):]
		}
	}
	return true
}
