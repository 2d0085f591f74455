package marc

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/openbiblio/zotero-harvester/internal/augment"
	"github.com/openbiblio/zotero-harvester/internal/config"
)

// creatorRelatorTerms maps Zotero creator types onto MARC relator codes,
// see https://www.loc.gov/marc/relators/relaterm.html.
var creatorRelatorTerms = map[string]string{
	"artist":         "art",
	"attorneyAgent":  "csl",
	"author":         "aut",
	"bookAuthor":     "edc",
	"cartographer":   "ctg",
	"castMember":     "act",
	"commenter":      "cwt",
	"composer":       "cmp",
	"contributor":    "ctb",
	"cosponsor":      "spn",
	"director":       "drt",
	"editor":         "edt",
	"guest":          "pan",
	"interviewee":    "ive",
	"inventor":       "inv",
	"performer":      "prf",
	"podcaster":      "brd",
	"presenter":      "pre",
	"producer":       "pro",
	"programmer":     "prg",
	"recipient":      "rcp",
	"reviewedAuthor": "aut",
	"scriptwriter":   "aus",
	"seriesEditor":   "edt",
	"sponsor":        "spn",
	"translator":     "trl",
	"wordsBy":        "wam",
}

// ssgSubfieldValues maps the configured SSG notation onto 084 $a values.
var ssgSubfieldValues = map[string][]string{
	"FG_0":   {"0"},
	"FG_1":   {"1"},
	"FG_0/1": {"0", "1"},
	"FG_2,1": {"2,1"},
}

// Catalog flavors. They control the collection marks (935) and the flavor
// half of the ZID bookkeeping field.
const (
	flavorIxTheo  = "ixtheo"
	flavorKrimDok = "krimdok"
)

// flavorForGroup derives the catalog flavor from the delivery group. RelBib
// records are delivered through the IxTheo pipeline.
func flavorForGroup(group *config.GroupParams) string {
	name := strings.ToLower(group.Name)
	if name == "relbib" {
		return flavorIxTheo
	}
	return name
}

var placeholderRegex = regexp.MustCompile(`%([^%]+)%`)

// resolvePlaceholders substitutes %name% markers in a custom field template
// from the record's custom metadata. A single unresolvable marker rejects
// the whole template.
func resolvePlaceholders(spec string, custom map[string]string) (string, bool) {
	missing := false
	resolved := placeholderRegex.ReplaceAllStringFunc(spec, func(marker string) string {
		value, ok := custom[marker[1:len(marker)-1]]
		if !ok {
			missing = true
			return marker
		}
		return value
	})
	if missing {
		return "", false
	}
	return resolved, true
}

// Generator renders normalized metadata as catalog records.
type Generator struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewGenerator builds a Generator. logger may be nil.
func NewGenerator(logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{logger: logger, now: time.Now}
}

// Generate builds the MARC record for one normalized metadata record and
// returns it together with its content hash. The hash covers every field
// except the bookkeeping tags and doubles as the deduplication key; the 001
// control number embeds it along with the group name and the current date.
func (g *Generator) Generate(rec *augment.MetadataRecord, itemURL string, journal *config.JournalParams, group *config.GroupParams) (*Record, string, error) {
	r := NewRecord()

	// The 001 depends on the final record hash and is inserted last.
	r.InsertField(NewControlField("003", group.ISIL))

	if rec.SuperiorType == augment.SuperiorOnline {
		r.InsertField(NewControlField("007", "cr|||||"))
	} else {
		r.InsertField(NewControlField("007", "tu"))
	}

	// InsertField places a field before existing fields with the same tag,
	// so creators are walked in reverse to keep their order. The first
	// creator lands in 100, everyone else in 700.
	for i := len(rec.Creators) - 1; i >= 0; i-- {
		creator := &rec.Creators[i]

		tag := "700"
		if i == 0 {
			tag = "100"
		}
		field := Field{Tag: tag, Ind1: '1', Ind2: ' '}

		if creator.PPN != "" {
			field.AddSubfield('0', "(DE-627)"+creator.PPN)
		}
		if creator.GNDNumber != "" {
			field.AddSubfield('0', "(DE-588)"+creator.GNDNumber)
		}
		if creator.Type != "" {
			relator, ok := creatorRelatorTerms[creator.Type]
			if !ok {
				return nil, "", fmt.Errorf("creator type %q cannot be mapped to a relator code", creator.Type)
			}
			field.AddSubfield('4', relator)
		}
		field.AddSubfield('a', creator.LastName+", "+creator.FirstName)
		if creator.Affix != "" {
			field.AddSubfield('b', creator.Affix+".")
		}
		if creator.Title != "" {
			field.AddSubfield('c', creator.Title)
		}
		field.AddSubfield('e', "VerfasserIn")
		r.InsertField(field)

		if creator.PPN != "" || creator.GNDNumber != "" {
			r.InsertField(NewDataField("887", ' ', ' ',
				Sub('a', "Autor in der Zoterovorlage ["+creator.LastName+", "+creator.FirstName+"] maschinell zugeordnet"),
				Sub('2', "ixzom")))
		}
	}

	r.InsertField(NewDataField("040", ' ', ' ',
		Sub('a', "DE-627"), Sub('b', "ger"), Sub('c', "DE-627"), Sub('e', "rda")))

	if rec.Title == "" {
		return nil, "", fmt.Errorf("no title provided for item from URL %s", itemURL)
	}
	r.InsertField(NewDataField("245", '0', '0', Sub('a', rec.Title)))

	if rec.Language != "" {
		r.InsertField(NewDataField("041", ' ', ' ', Sub('a', rec.Language)))
	}
	if rec.AbstractNote != "" {
		r.InsertField(NewDataField("520", ' ', ' ', Sub('a', rec.AbstractNote)))
	}

	// Journal articles and reviews never carry a 362; their chronology
	// lives in 936/773 instead.
	if rec.Date != "" && rec.ItemType != "journalArticle" && rec.ItemType != "review" {
		r.InsertField(NewDataField("362", ' ', ' ', Sub('a', rec.Date)))
	}

	year, ok := augment.YearOf(rec.Date)
	if !ok {
		year = g.now().Format("2006")
	}
	r.InsertField(NewDataField("264", ' ', ' ', Sub('c', year)))

	if rec.URL != "" {
		field := Field{Tag: "856", Ind1: '4', Ind2: '0'}
		field.AddSubfield('u', rec.URL)
		if rec.License != "" {
			field.AddSubfield('z', rec.License)
		}
		r.InsertField(field)
	}

	if rec.DOI != "" {
		r.InsertField(NewDataField("024", '7', ' ', Sub('a', rec.DOI), Sub('2', "doi")))
		doiURL := "https://doi.org/" + rec.DOI
		if doiURL != rec.URL {
			field := Field{Tag: "856", Ind1: '4', Ind2: '0'}
			field.AddSubfield('u', doiURL)
			if rec.License != "" {
				field.AddSubfield('z', rec.License)
			}
			r.InsertField(field)
		}
	}

	if rec.ItemType == "review" {
		r.InsertField(NewDataField("655", ' ', '7',
			Sub('a', "Rezension"),
			Sub('0', "(DE-588)4049712-4"),
			Sub('0', "(DE-627)106186019"),
			Sub('2', "gnd-content")))
	}

	// Volume/issue/pagination, see the BSZ concordance for MARC 936.
	source := Field{Tag: "936", Ind1: 'u', Ind2: 'w'}
	if rec.Volume != "" {
		source.AddSubfield('d', rec.Volume)
		if rec.Issue != "" {
			source.AddSubfield('e', rec.Issue)
		}
	} else if rec.Issue != "" {
		source.AddSubfield('d', rec.Issue)
	}
	if rec.Pages != "" {
		source.AddSubfield('h', rec.Pages)
	}
	source.AddSubfield('j', year)
	r.InsertField(source)

	// Superior work. 773 $g carries the citation, e.g. "52 (2018), 1,
	// Seite 1-40"; the 0/8 indicators require both halves to be present.
	superior := Field{Tag: "773", Ind1: ' ', Ind2: ' '}
	if rec.PublicationTitle != "" {
		superior.AddSubfield('i', "In: ")
		superior.AddSubfield('t', rec.PublicationTitle)
	}
	if rec.ISSN != "" {
		superior.AddSubfield('x', rec.ISSN)
	}
	if rec.SuperiorPPN != "" {
		superior.AddSubfield('w', "(DE-627)"+rec.SuperiorPPN)
	}
	hasLinkage := len(superior.Subfields) > 0
	if rec.Volume != "" {
		citation := rec.Volume + " (" + year + ")"
		if rec.Issue != "" {
			citation += ", " + rec.Issue
		}
		if rec.Pages != "" {
			citation += ", Seite " + rec.Pages
		}
		superior.AddSubfield('g', citation)
		if hasLinkage {
			superior.Ind1, superior.Ind2 = '0', '8'
		}
	}
	r.InsertField(superior)

	for _, keyword := range rec.Keywords {
		r.InsertField(NewDataField("650", ' ', '4', Sub('a', augment.CollapseWhitespace(keyword))))
	}

	if values, ok := ssgSubfieldValues[rec.SSGN]; ok {
		field := Field{Tag: "084", Ind1: ' ', Ind2: ' '}
		for _, value := range values {
			field.AddSubfield('a', value)
		}
		field.AddSubfield('2', "ssgn")
		r.InsertField(field)
	}

	// Collection marks. Insertion order is reversed within the tag, so the
	// record ends up with the flavor marks ahead of the harvester sigil.
	flavor := flavorForGroup(group)
	r.InsertField(NewDataField("935", ' ', ' ', Sub('a', "zota"), Sub('2', "LOK")))
	switch flavor {
	case flavorIxTheo:
		r.InsertField(NewDataField("935", ' ', ' ', Sub('a', "ixzs"), Sub('2', "LOK")))
		r.InsertField(NewDataField("935", ' ', ' ', Sub('a', "mteo")))
	case flavorKrimDok:
		r.InsertField(NewDataField("935", ' ', ' ', Sub('a', "mkri")))
	}

	r.InsertField(NewDataField("852", ' ', ' ', Sub('a', group.ISIL)))

	// Bookkeeping fields for the pipeline itself. They are stripped before
	// upload and excluded from the hash.
	r.InsertField(NewDataField("URL", ' ', ' ', Sub('a', itemURL)))
	r.InsertField(NewDataField("ZID", ' ', ' ',
		Sub('a', strconv.Itoa(journal.ZederID)),
		Sub('b', flavor)))
	r.InsertField(NewDataField("JOU", ' ', ' ', Sub('a', journal.Name)))

	if err := g.insertCustomFields(r, rec, journal); err != nil {
		return nil, "", err
	}
	g.removeFilteredFields(r, journal)

	hash, err := Checksum(r, BookkeepingTags)
	if err != nil {
		return nil, "", fmt.Errorf("hash record: %w", err)
	}
	r.InsertField(NewControlField("001", group.Name+"#"+g.now().Format("2006-01-02")+"#"+hash))

	return r, hash, nil
}

// insertCustomFields appends the journal's configured extra fields.
// Templates whose placeholders have no value in the record's custom
// metadata are skipped; malformed templates are configuration errors.
func (g *Generator) insertCustomFields(r *Record, rec *augment.MetadataRecord, journal *config.JournalParams) error {
	for _, rule := range journal.AddFields {
		spec, ok := resolvePlaceholders(rule.Spec, rec.CustomMetadata)
		if !ok {
			g.logger.Debug("skipping custom field with unresolved placeholder",
				zap.String("journal", journal.Name),
				zap.String("spec", rule.Spec))
			continue
		}
		field, err := ParseFieldSpec(spec)
		if err != nil {
			return fmt.Errorf("custom field %q: %w", rule.Spec, err)
		}
		r.InsertField(field)
	}
	return nil
}

// removeFilteredFields drops fields matching the journal's removal filters.
func (g *Generator) removeFilteredFields(r *Record, journal *config.JournalParams) {
	for _, rule := range journal.RemoveFields {
		r.RemoveFields(func(f *Field) bool {
			if f.Tag != rule.Tag || !matchFilter(f, rule) {
				return false
			}
			g.logger.Debug("removed field per filter",
				zap.String("tag", rule.Tag),
				zap.String("pattern", rule.Pattern.String()))
			return true
		})
	}
}

// MatchesExclusionFilters reports whether any of the journal's exclusion
// filters matches the generated record, and which one. Matching records are
// dropped and counted, not delivered.
func MatchesExclusionFilters(r *Record, journal *config.JournalParams) (string, bool) {
	for _, rule := range journal.ExcludeFields {
		for _, field := range r.FieldsWithTag(rule.Tag) {
			if matchFilter(&field, rule) {
				return rule.Tag + "/" + rule.Pattern.String() + "/", true
			}
		}
	}
	return "", false
}

// matchFilter applies one filter rule to a field. When the rule names a
// subfield that the field actually has, the first such subfield value is
// matched; otherwise the whole field contents are.
func matchFilter(f *Field, rule config.MarcFilterRule) bool {
	if rule.HasSubfield {
		if value, ok := f.Subfield(rule.Subfield); ok {
			return rule.Pattern.MatchString(value)
		}
	}
	return rule.Pattern.MatchString(string(f.contents()))
}
