package textutil

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

var strictPolicy = bluemonday.StrictPolicy()

// StripTags removes all markup from value, unescapes entities and collapses whitespace.
func StripTags(value string) string {
	cleaned := html.UnescapeString(strictPolicy.Sanitize(value))
	return strings.Join(strings.Fields(cleaned), " ")
}

// CleanText strips markup and truncates the result to maxRunes. A non-positive limit disables
// truncation.
func CleanText(value string, maxRunes int) string {
	cleaned := StripTags(value)
	if maxRunes <= 0 || utf8.RuneCountInString(cleaned) <= maxRunes {
		return cleaned
	}
	runes := []rune(cleaned)
	return strings.TrimSpace(string(runes[:maxRunes]))
}
