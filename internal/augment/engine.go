package augment

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/openbiblio/zotero-harvester/internal/config"
	"github.com/openbiblio/zotero-harvester/internal/report"
)

// AuthorityLookup resolves a creator's combined name to a GND authority id
// using the group's lookup endpoints. Implementations cache and retry on
// their own; an empty result means no unambiguous match.
type AuthorityLookup interface {
	AuthorGND(ctx context.Context, name string, group *config.GroupParams) string
}

// Engine normalizes translator items into metadata records. Safe for
// concurrent use; all state is read-only after construction.
type Engine struct {
	authority AuthorityLookup
	names     *NameNormalizer
	logger    *zap.Logger
}

// NewEngine builds an Engine. authority may be nil to skip lookups.
func NewEngine(authority AuthorityLookup, names *NameNormalizer, logger *zap.Logger) *Engine {
	if names == nil {
		names = NewNameNormalizer(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{authority: authority, names: names, logger: logger}
}

// Augment converts one postprocessed item into a MetadataRecord and applies
// the normalization steps in their required order. Field rules must already
// have been applied to the item.
func (e *Engine) Augment(ctx context.Context, item Item, journal *config.JournalParams, group *config.GroupParams) (*MetadataRecord, error) {
	rec := itemToRecord(item)

	if rec.Date != "" {
		normalized, err := NormalizeDate(rec.Date, journal.StrptimeFormat)
		if err != nil {
			return nil, err
		}
		rec.Date = normalized
	}

	rec.Issue = strings.TrimLeft(rec.Issue, "0")
	rec.Volume = strings.TrimLeft(rec.Volume, "0")
	rec.Pages = NormalizePages(rec.Pages)

	// The configured journal name is authoritative over whatever the
	// translator scraped.
	rec.PublicationTitle = journal.Name

	if err := resolveSerialIdentity(rec, journal); err != nil {
		return nil, err
	}

	for i := range rec.Creators {
		creator := &rec.Creators[i]
		e.names.Postprocess(creator)
		if creator.LastName == "" || e.authority == nil {
			continue
		}
		if gnd := e.authority.AuthorGND(ctx, creator.CombinedName(), group); gnd != "" {
			creator.GNDNumber = gnd
			e.logger.Debug("resolved author authority id",
				zap.String("author", creator.CombinedName()),
				zap.String("gnd", gnd))
		}
	}

	e.resolveLanguage(rec, journal)

	if journal.License == "LF" {
		rec.License = journal.License
	}
	rec.SSGN = journal.SSGN

	if matched := reviewMatch(rec, journal); matched != "" {
		e.logger.Debug("review pattern matched", zap.String("source", matched))
		rec.ItemType = "review"
	}

	return rec, nil
}

// resolveSerialIdentity picks the canonical ISSN/PPN pair: online wins over
// print wins over whatever the translator reported. A chosen ISSN without a
// catalog id is a configuration error, fatal for this item.
func resolveSerialIdentity(rec *MetadataRecord, journal *config.JournalParams) error {
	switch {
	case journal.OnlineISSN != "":
		if journal.OnlinePPN == "" {
			return report.NewError(report.KindConfig,
				"cannot use online ISSN %q because no online PPN is configured", journal.OnlineISSN)
		}
		rec.ISSN = journal.OnlineISSN
		rec.SuperiorPPN = journal.OnlinePPN
		rec.SuperiorType = SuperiorOnline
	case journal.PrintISSN != "":
		if journal.PrintPPN == "" {
			return report.NewError(report.KindConfig,
				"cannot use print ISSN %q because no print PPN is configured", journal.PrintISSN)
		}
		rec.ISSN = journal.PrintISSN
		rec.SuperiorPPN = journal.PrintPPN
		rec.SuperiorType = SuperiorPrint
	default:
		return report.NewError(report.KindConfig,
			"no ISSN/PPN pair could be resolved (online %q, print %q, reported %q)",
			journal.OnlineISSN, journal.PrintISSN, rec.ISSN)
	}
	return nil
}

// resolveLanguage fills the language slot: forced or missing languages go
// through classification, anything else is only normalized to a three-letter
// code.
func (e *Engine) resolveLanguage(rec *MetadataRecord, journal *config.JournalParams) {
	langs := journal.ExpectedLanguages
	if !langs.ForceAutomatic && rec.Language != "" {
		rec.Language = NormalizeLanguageCode(rec.Language)
		return
	}

	switch len(langs.Codes) {
	case 0:
		return
	case 1:
		rec.Language = langs.Codes[0]
	default:
		text := languageDetectionText(rec, langs.Selector)
		if detected := DetectLanguage(text, langs.Codes); detected != "" {
			e.logger.Debug("detected language", zap.String("language", detected))
			rec.Language = detected
		}
	}
}

// reviewMatch reports which source (title, short title, keyword) matched the
// journal's review pattern, if any.
func reviewMatch(rec *MetadataRecord, journal *config.JournalParams) string {
	matcher := journal.ReviewRegex
	if matcher == nil {
		return ""
	}
	if matcher.MatchString(rec.Title) {
		return "title"
	}
	if matcher.MatchString(rec.ShortTitle) {
		return "short title"
	}
	for _, keyword := range rec.Keywords {
		if matcher.MatchString(keyword) {
			return "keyword"
		}
	}
	return ""
}

// articleLikeTypes are subject to the online-first and early-view checks.
var articleLikeTypes = map[string]bool{
	"journalArticle":  true,
	"magazineArticle": true,
	"review":          true,
}

// ExcludeOnlineFirst reports whether an article-like item without issue and
// volume must be skipped. A DOI rescues the item unless the unconditional
// flag is set.
func ExcludeOnlineFirst(rec *MetadataRecord, skipUnconditionally bool) bool {
	if !articleLikeTypes[rec.ItemType] {
		return false
	}
	if rec.Issue != "" || rec.Volume != "" {
		return false
	}
	if skipUnconditionally {
		return true
	}
	return rec.DOI == ""
}

// ExcludeEarlyView reports whether an article-like item carries the
// publisher's "not applicable" sentinel in its issue or volume.
func ExcludeEarlyView(rec *MetadataRecord) bool {
	if !articleLikeTypes[rec.ItemType] {
		return false
	}
	return rec.Issue == "n/a" || rec.Volume == "n/a"
}
