package augment

import (
	"html"
	"regexp"
	"strings"
)

var (
	htmlCommentRegex = regexp.MustCompile(`<!--[\s\S]*?-->`)
	htmlBreakRegex   = regexp.MustCompile(`<br\s*/?>|</(?:p|div|li|h[1-6]|blockquote|tr)>`)
	htmlTagRegex     = regexp.MustCompile(`<[^>]*>`)
	multiSpaceRegex  = regexp.MustCompile(`\s+`)
)

// StripTags removes markup from translator text: comments and tags go, block
// ends become spaces, entities are decoded, whitespace is collapsed.
func StripTags(s string) string {
	if s == "" {
		return ""
	}
	s = htmlCommentRegex.ReplaceAllString(s, "")
	s = htmlBreakRegex.ReplaceAllString(s, " ")
	s = htmlTagRegex.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	s = multiSpaceRegex.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// CollapseWhitespace folds runs of whitespace into single spaces and trims.
func CollapseWhitespace(s string) string {
	return strings.TrimSpace(multiSpaceRegex.ReplaceAllString(s, " "))
}
