package pipeline

import (
	"regexp"
	"strings"
)

var (
	slugSpaces  = regexp.MustCompile(`\s+`)
	slugInvalid = regexp.MustCompile(`[^a-z0-9가-힣-]`)
)

// BuildSlug derives the stable product key from maker and model. The same
// inputs always produce the same slug: lowercase, runs of whitespace become
// a single hyphen, and everything outside ASCII alphanumerics, Hangul
// syllables and hyphens is dropped.
func BuildSlug(maker, model string) string {
	s := strings.ToLower(strings.TrimSpace(maker + " " + model))
	s = slugSpaces.ReplaceAllString(s, "-")
	s = slugInvalid.ReplaceAllString(s, "")
	return strings.Trim(s, "-")
}
