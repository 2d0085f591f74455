package augment

import (
	"regexp"
	"strings"
)

// Academic and clerical titles recognized inside creator names. A trailing
// period on the token is ignored during the comparison.
var nameTitles = map[string]bool{
	"jr":     true,
	"sr":     true,
	"sj":     true,
	"s.j":    true,
	"(s.j.)": true,
	"fr":     true,
	"hr":     true,
	"dr":     true,
	"prof":   true,
	"em":     true,
}

// Ordinal affixes that move into the dedicated affix slot.
var nameAffixes = map[string]bool{
	"i":   true,
	"ii":  true,
	"iii": true,
	"iv":  true,
	"v":   true,
}

func isNameTitle(token string) bool {
	token = strings.TrimSuffix(token, ".")
	return nameTitles[strings.ToLower(token)]
}

func isNameAffix(token string) bool {
	return nameAffixes[strings.ToLower(token)]
}

// SplitCombinedName splits a display name at the last space. A name without
// a space lands entirely in the first-name slot for a later reparse.
func SplitCombinedName(combined string) (first, last string) {
	combined = CollapseWhitespace(combined)
	if idx := strings.LastIndex(combined, " "); idx >= 0 {
		return combined[:idx], combined[idx+1:]
	}
	return combined, ""
}

// NameNormalizer postprocesses creator names: it moves title and affix
// tokens into their own slots, strips blacklisted tokens, and reparses the
// name when one side ends up empty.
type NameNormalizer struct {
	blacklist *regexp.Regexp
}

// NewNameNormalizer compiles the blacklist tokens into a single word-bounded
// alternation. An empty list disables blacklist stripping.
func NewNameNormalizer(blacklistTokens []string) *NameNormalizer {
	n := &NameNormalizer{}
	if len(blacklistTokens) == 0 {
		return n
	}
	quoted := make([]string, 0, len(blacklistTokens))
	for _, token := range blacklistTokens {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		quoted = append(quoted, regexp.QuoteMeta(token))
	}
	if len(quoted) > 0 {
		n.blacklist = regexp.MustCompile(`\b(?:` + strings.Join(quoted, "|") + `)\b`)
	}
	return n
}

func (n *NameNormalizer) stripBlacklisted(s string) string {
	if n.blacklist == nil {
		return s
	}
	return CollapseWhitespace(n.blacklist.ReplaceAllString(s, ""))
}

// Postprocess rewrites one creator's first/last/title/affix slots in place.
func (n *NameNormalizer) Postprocess(c *Creator) {
	var firstParts, lastParts, titleParts, affixParts []string

	for _, token := range strings.Fields(c.FirstName) {
		if isNameTitle(token) {
			titleParts = append(titleParts, token)
		} else {
			firstParts = append(firstParts, token)
		}
	}
	for _, token := range strings.Fields(c.LastName) {
		switch {
		case isNameTitle(token):
			titleParts = append(titleParts, token)
		case isNameAffix(token):
			affixParts = append(affixParts, token)
		default:
			lastParts = append(lastParts, token)
		}
	}

	first := n.stripBlacklisted(strings.Join(firstParts, " "))
	last := n.stripBlacklisted(strings.Join(lastParts, " "))
	c.Title = strings.Join(titleParts, " ")
	c.Affix = strings.Join(affixParts, " ")

	switch {
	case first == "":
		c.FirstName, c.LastName = SplitCombinedName(last)
	case last == "":
		c.FirstName, c.LastName = SplitCombinedName(first)
	default:
		c.FirstName, c.LastName = first, last
	}
}
