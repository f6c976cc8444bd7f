// Package textutil prepares raw email content for classification and rule
// matching: HTML flattening, safe truncation and UTF-8 sanitizing.
package textutil

import (
	"strings"
	"unicode/utf8"

	"github.com/k3a/html2text"
)

// FlattenHTML converts an HTML body to plain text. Plain-text input passes
// through mostly unchanged apart from whitespace normalization.
func FlattenHTML(body string) string {
	if !strings.Contains(body, "<") {
		return body
	}
	return html2text.HTML2Text(body)
}

// Truncate cuts text to at most maxSize bytes while keeping the result valid
// UTF-8. A non-positive maxSize disables truncation.
func Truncate(text string, maxSize int) string {
	if maxSize <= 0 || len(text) <= maxSize {
		return text
	}

	truncated := text[:maxSize]
	for !utf8.ValidString(truncated) && len(truncated) > 0 {
		truncated = truncated[:len(truncated)-1]
	}
	return truncated
}

// SanitizeUTF8 replaces invalid UTF-8 sequences by dropping them.
func SanitizeUTF8(text string) string {
	if utf8.ValidString(text) {
		return text
	}

	result := make([]rune, 0, len(text))
	for i, r := range text {
		if r == utf8.RuneError {
			if _, size := utf8.DecodeRuneInString(text[i:]); size == 1 {
				continue
			}
		}
		result = append(result, r)
	}
	return string(result)
}

// Normalize flattens, truncates and sanitizes body text in one pass.
func Normalize(body string, maxSize int) string {
	return SanitizeUTF8(Truncate(FlattenHTML(body), maxSize))
}
