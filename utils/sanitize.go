package utils

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// User text is stored and rendered as plain text, so every tag is stripped.
var textPolicy = bluemonday.StrictPolicy()

// a complete tag or comment; a bare "<" in prose ("x<y") is not one
var tagPattern = regexp.MustCompile(`<[A-Za-z!/?][^<>]*>`)

// SanitizeText removes markup from user supplied text and trims surrounding space.
// Text without any complete tag is kept verbatim.
func SanitizeText(input string) string {
	if !tagPattern.MatchString(input) {
		return strings.TrimSpace(input)
	}
	cleaned := textPolicy.Sanitize(input)
	// the policy escapes entities for HTML output; stored values are plain text
	return strings.TrimSpace(html.UnescapeString(cleaned))
}
