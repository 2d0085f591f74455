package augment

import (
	"strings"

	"github.com/openbiblio/zotero-harvester/internal/config"
)

// originalValueSpecifier inside an override value substitutes the field's
// original content.
const originalValueSpecifier = "%org%"

// visitStrings walks every string leaf of a decoded JSON value, in nesting
// order. fn gets the owning key and the value; returning (replacement, true)
// writes the leaf back. Array elements inherit the array's key.
func visitStrings(name string, value any, assign func(any), fn func(name, value string) (string, bool)) {
	switch v := value.(type) {
	case string:
		if replacement, ok := fn(name, v); ok {
			assign(replacement)
		}
	case map[string]any:
		for key, entry := range v {
			visitStrings(key, entry, func(nv any) { v[key] = nv }, fn)
		}
	case []any:
		for i, entry := range v {
			visitStrings(name, entry, func(nv any) { v[i] = nv }, fn)
		}
	}
}

// ApplyFieldRules mutates one item in place: suppression rules blank matching
// values, then override rules rewrite fields, with %org% standing in for the
// original value. Runs before any typed interpretation of the item.
func ApplyFieldRules(item Item, journal *config.JournalParams) {
	if len(journal.Suppressions) > 0 {
		visitStrings("root", map[string]any(item), nil, func(name, value string) (string, bool) {
			for _, rule := range journal.Suppressions {
				if rule.Field == name && rule.Pattern.MatchString(value) {
					return "", true
				}
			}
			return "", false
		})
	}
	if len(journal.Overrides) > 0 {
		visitStrings("root", map[string]any(item), nil, func(name, value string) (string, bool) {
			for _, rule := range journal.Overrides {
				if rule.Field == name {
					return strings.ReplaceAll(rule.Value, originalValueSpecifier, value), true
				}
			}
			return "", false
		})
	}
}

// MatchesExclusion reports whether any exclusion rule matches a string leaf
// of the item, and which field fired. Matching items are skipped before
// conversion, counted as filter skips rather than errors.
func MatchesExclusion(item Item, journal *config.JournalParams) (string, bool) {
	var matchedField string
	visitStrings("root", map[string]any(item), nil, func(name, value string) (string, bool) {
		if matchedField != "" {
			return "", false
		}
		for _, rule := range journal.Exclusions {
			if rule.Field == name && rule.Pattern.MatchString(value) {
				matchedField = name
				return "", false
			}
		}
		return "", false
	})
	return matchedField, matchedField != ""
}
