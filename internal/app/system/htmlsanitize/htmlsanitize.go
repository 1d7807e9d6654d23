// Package htmlsanitize strips markup from user-supplied free text such as
// deletion reasons and audit messages.
package htmlsanitize

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strict = bluemonday.StrictPolicy()

// Text removes every HTML element from s and trims the result.
// Entities produced by the policy are kept escaped.
func Text(s string) string {
	if s == "" {
		return ""
	}
	return strings.TrimSpace(strict.Sanitize(s))
}

// Limit sanitizes s and truncates it to at most n runes.
func Limit(s string, n int) string {
	out := Text(s)
	r := []rune(out)
	if n > 0 && len(r) > n {
		return string(r[:n])
	}
	return out
}
