package marc

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openbiblio/zotero-harvester/internal/augment"
	"github.com/openbiblio/zotero-harvester/internal/config"
)

func fixedGenerator() *Generator {
	g := NewGenerator(nil)
	g.now = func() time.Time {
		return time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)
	}
	return g
}

func sampleRecord() *augment.MetadataRecord {
	return &augment.MetadataRecord{
		ItemType:         "journalArticle",
		Title:            "Grace and Works",
		AbstractNote:     "On the relation of grace and works.",
		PublicationTitle: "Zeitschrift für Theologie",
		Volume:           "12",
		Issue:            "3",
		Pages:            "4-7",
		Date:             "2023-12-24",
		DOI:              "10.1000/xyz",
		Language:         "eng",
		URL:              "https://example.org/grace",
		ISSN:             "1234-5678",
		SuperiorPPN:      "123456789",
		SuperiorType:     augment.SuperiorOnline,
		License:          "LF",
		SSGN:             "FG_0",
		Creators: []augment.Creator{
			{FirstName: "Jane", LastName: "Doe", Type: "author", GNDNumber: "118540238"},
			{FirstName: "Richard", LastName: "Roe", Type: "contributor"},
		},
		Keywords:       []string{"grace", "works"},
		CustomMetadata: map[string]string{},
	}
}

func sampleJournal() *config.JournalParams {
	return &config.JournalParams{Name: "Zeitschrift für Theologie", ZederID: 42, Group: "IxTheo"}
}

func sampleGroup() *config.GroupParams {
	return &config.GroupParams{Name: "IxTheo", ISIL: "DE-Tue135"}
}

func subfieldValues(f Field, code byte) []string {
	var out []string
	for _, sub := range f.Subfields {
		if sub.Code == code {
			out = append(out, sub.Value)
		}
	}
	return out
}

func TestGenerateFullRecord(t *testing.T) {
	t.Parallel()

	g := fixedGenerator()
	r, hash, err := g.Generate(sampleRecord(), "https://example.org/grace", sampleJournal(), sampleGroup())
	require.NoError(t, err)
	require.Len(t, hash, 64)

	require.Equal(t, "DE-Tue135", r.FirstField("003").Value)
	require.Equal(t, "cr|||||", r.FirstField("007").Value)

	first := r.FirstField("100")
	require.NotNil(t, first)
	require.Equal(t, byte('1'), first.Ind1)
	require.Equal(t, []Subfield{
		Sub('0', "(DE-588)118540238"),
		Sub('4', "aut"),
		Sub('a', "Doe, Jane"),
		Sub('e', "VerfasserIn"),
	}, first.Subfields)

	second := r.FirstField("700")
	require.NotNil(t, second)
	require.Equal(t, []Subfield{
		Sub('4', "ctb"),
		Sub('a', "Roe, Richard"),
		Sub('e', "VerfasserIn"),
	}, second.Subfields)

	// Only the resolved creator gets a provenance note.
	provenance := r.FieldsWithTag("887")
	require.Len(t, provenance, 1)
	require.Equal(t, []Subfield{
		Sub('a', "Autor in der Zoterovorlage [Doe, Jane] maschinell zugeordnet"),
		Sub('2', "ixzom"),
	}, provenance[0].Subfields)

	rda := r.FirstField("040")
	require.Equal(t, []Subfield{
		Sub('a', "DE-627"), Sub('b', "ger"), Sub('c', "DE-627"), Sub('e', "rda"),
	}, rda.Subfields)

	title := r.FirstField("245")
	require.Equal(t, byte('0'), title.Ind1)
	require.Equal(t, byte('0'), title.Ind2)
	require.Equal(t, []string{"Grace and Works"}, subfieldValues(*title, 'a'))

	require.Equal(t, []string{"eng"}, subfieldValues(*r.FirstField("041"), 'a'))
	require.Equal(t, []string{"On the relation of grace and works."}, subfieldValues(*r.FirstField("520"), 'a'))

	// Articles carry no 362; the year comes from the item date.
	require.Nil(t, r.FirstField("362"))
	require.Equal(t, []string{"2023"}, subfieldValues(*r.FirstField("264"), 'c'))

	doi := r.FirstField("024")
	require.Equal(t, byte('7'), doi.Ind1)
	require.Equal(t, []string{"10.1000/xyz"}, subfieldValues(*doi, 'a'))
	require.Equal(t, []string{"doi"}, subfieldValues(*doi, '2'))

	// The DOI resolver link differs from the item URL, so both appear. The
	// resolver link was inserted later and therefore stacks first.
	links := r.FieldsWithTag("856")
	require.Len(t, links, 2)
	require.Equal(t, []string{"https://doi.org/10.1000/xyz"}, subfieldValues(links[0], 'u'))
	require.Equal(t, []string{"https://example.org/grace"}, subfieldValues(links[1], 'u'))
	require.Equal(t, []string{"LF"}, subfieldValues(links[1], 'z'))

	source := r.FirstField("936")
	require.Equal(t, byte('u'), source.Ind1)
	require.Equal(t, byte('w'), source.Ind2)
	require.Equal(t, []Subfield{
		Sub('d', "12"), Sub('e', "3"), Sub('h', "4-7"), Sub('j', "2023"),
	}, source.Subfields)

	superior := r.FirstField("773")
	require.Equal(t, byte('0'), superior.Ind1)
	require.Equal(t, byte('8'), superior.Ind2)
	require.Equal(t, []Subfield{
		Sub('i', "In: "),
		Sub('t', "Zeitschrift für Theologie"),
		Sub('x', "1234-5678"),
		Sub('w', "(DE-627)123456789"),
		Sub('g', "12 (2023), 3, Seite 4-7"),
	}, superior.Subfields)

	// Keyword insertion stacks newest-first within the tag.
	keywords := r.FieldsWithTag("650")
	require.Len(t, keywords, 2)
	require.Equal(t, []string{"works"}, subfieldValues(keywords[0], 'a'))
	require.Equal(t, []string{"grace"}, subfieldValues(keywords[1], 'a'))

	ssg := r.FirstField("084")
	require.Equal(t, []Subfield{Sub('a', "0"), Sub('2', "ssgn")}, ssg.Subfields)

	var marks []string
	for _, f := range r.FieldsWithTag("935") {
		marks = append(marks, subfieldValues(f, 'a')[0])
	}
	require.Equal(t, []string{"mteo", "ixzs", "zota"}, marks)

	require.Equal(t, []string{"DE-Tue135"}, subfieldValues(*r.FirstField("852"), 'a'))

	require.Equal(t, []string{"https://example.org/grace"}, subfieldValues(*r.FirstField("URL"), 'a'))
	zid := r.FirstField("ZID")
	require.Equal(t, []string{"42"}, subfieldValues(*zid, 'a'))
	require.Equal(t, []string{"ixtheo"}, subfieldValues(*zid, 'b'))
	require.Equal(t, []string{"Zeitschrift für Theologie"}, subfieldValues(*r.FirstField("JOU"), 'a'))

	require.Equal(t, "IxTheo#2024-06-01#"+hash, r.ControlNumber())
}

func TestGeneratePrintAndKrimDok(t *testing.T) {
	t.Parallel()

	rec := sampleRecord()
	rec.SuperiorType = augment.SuperiorPrint

	group := &config.GroupParams{Name: "KrimDok", ISIL: "DE-21"}
	g := fixedGenerator()
	r, _, err := g.Generate(rec, rec.URL, sampleJournal(), group)
	require.NoError(t, err)

	require.Equal(t, "tu", r.FirstField("007").Value)

	var marks []string
	for _, f := range r.FieldsWithTag("935") {
		marks = append(marks, subfieldValues(f, 'a')[0])
	}
	require.Equal(t, []string{"mkri", "zota"}, marks)
	require.Equal(t, []string{"krimdok"}, subfieldValues(*r.FirstField("ZID"), 'b'))
}

func TestGenerateMagazineArticleKeepsDateField(t *testing.T) {
	t.Parallel()

	rec := sampleRecord()
	rec.ItemType = "magazineArticle"

	g := fixedGenerator()
	r, _, err := g.Generate(rec, rec.URL, sampleJournal(), sampleGroup())
	require.NoError(t, err)
	require.Equal(t, []string{"2023-12-24"}, subfieldValues(*r.FirstField("362"), 'a'))
}

func TestGenerateReviewGenre(t *testing.T) {
	t.Parallel()

	rec := sampleRecord()
	rec.ItemType = "review"

	g := fixedGenerator()
	r, _, err := g.Generate(rec, rec.URL, sampleJournal(), sampleGroup())
	require.NoError(t, err)

	genre := r.FirstField("655")
	require.NotNil(t, genre)
	require.Equal(t, byte('7'), genre.Ind2)
	require.Equal(t, []Subfield{
		Sub('a', "Rezension"),
		Sub('0', "(DE-588)4049712-4"),
		Sub('0', "(DE-627)106186019"),
		Sub('2', "gnd-content"),
	}, genre.Subfields)
	require.Nil(t, r.FirstField("362"))
}

func TestGenerateYearFallsBackToCurrentYear(t *testing.T) {
	t.Parallel()

	rec := sampleRecord()
	rec.Date = ""

	g := fixedGenerator()
	r, _, err := g.Generate(rec, rec.URL, sampleJournal(), sampleGroup())
	require.NoError(t, err)
	require.Equal(t, []string{"2024"}, subfieldValues(*r.FirstField("264"), 'c'))
}

func TestGenerateRequiresTitle(t *testing.T) {
	t.Parallel()

	rec := sampleRecord()
	rec.Title = ""

	g := fixedGenerator()
	_, _, err := g.Generate(rec, rec.URL, sampleJournal(), sampleGroup())
	require.ErrorContains(t, err, "no title")
}

func TestGenerateRejectsUnknownCreatorType(t *testing.T) {
	t.Parallel()

	rec := sampleRecord()
	rec.Creators[0].Type = "astrologer"

	g := fixedGenerator()
	_, _, err := g.Generate(rec, rec.URL, sampleJournal(), sampleGroup())
	require.ErrorContains(t, err, "astrologer")
}

func TestGenerateHashIgnoresBookkeeping(t *testing.T) {
	t.Parallel()

	g := fixedGenerator()
	journal := sampleJournal()
	group := sampleGroup()

	_, hash1, err := g.Generate(sampleRecord(), "https://example.org/grace", journal, group)
	require.NoError(t, err)
	_, hash2, err := g.Generate(sampleRecord(), "https://example.org/other-url", journal, group)
	require.NoError(t, err)
	require.Equal(t, hash1, hash2)

	changed := sampleRecord()
	changed.Title = "A different title"
	_, hash3, err := g.Generate(changed, "https://example.org/grace", journal, group)
	require.NoError(t, err)
	require.NotEqual(t, hash1, hash3)
}

func TestGenerateCustomFields(t *testing.T) {
	t.Parallel()

	journal := sampleJournal()
	journal.AddFields = []config.AddFieldRule{
		{Label: "volume mark", Spec: "VOL  a%volume-mark%"},
		{Label: "unresolved", Spec: "NOP  a%absent%"},
	}

	rec := sampleRecord()
	rec.CustomMetadata["volume-mark"] = "special issue"

	g := fixedGenerator()
	r, _, err := g.Generate(rec, rec.URL, journal, sampleGroup())
	require.NoError(t, err)

	require.Equal(t, []string{"special issue"}, subfieldValues(*r.FirstField("VOL"), 'a'))
	require.Nil(t, r.FirstField("NOP"))
}

func TestGenerateCustomFieldSpecErrors(t *testing.T) {
	t.Parallel()

	journal := sampleJournal()
	journal.AddFields = []config.AddFieldRule{{Label: "broken", Spec: "935 "}}

	g := fixedGenerator()
	_, _, err := g.Generate(sampleRecord(), "u", journal, sampleGroup())
	require.Error(t, err)
}

func TestGenerateRemoveFilters(t *testing.T) {
	t.Parallel()

	journal := sampleJournal()
	journal.RemoveFields = []config.MarcFilterRule{
		{Tag: "856", Subfield: 'u', HasSubfield: true, Pattern: regexp.MustCompile(`doi\.org`)},
	}

	g := fixedGenerator()
	r, _, err := g.Generate(sampleRecord(), "https://example.org/grace", journal, sampleGroup())
	require.NoError(t, err)

	links := r.FieldsWithTag("856")
	require.Len(t, links, 1)
	require.Equal(t, []string{"https://example.org/grace"}, subfieldValues(links[0], 'u'))
}

func TestGenerateRemoveFilterFallsBackToFieldContents(t *testing.T) {
	t.Parallel()

	// The rule names subfield 'z', which the 520 does not have, so the
	// pattern runs against the whole field contents instead.
	journal := sampleJournal()
	journal.RemoveFields = []config.MarcFilterRule{
		{Tag: "520", Subfield: 'z', HasSubfield: true, Pattern: regexp.MustCompile(`grace`)},
	}

	g := fixedGenerator()
	r, _, err := g.Generate(sampleRecord(), "u", journal, sampleGroup())
	require.NoError(t, err)
	require.Nil(t, r.FirstField("520"))
}

func TestMatchesExclusionFilters(t *testing.T) {
	t.Parallel()

	g := fixedGenerator()
	r, _, err := g.Generate(sampleRecord(), "u", sampleJournal(), sampleGroup())
	require.NoError(t, err)

	journal := sampleJournal()
	journal.ExcludeFields = []config.MarcFilterRule{
		{Tag: "650", Subfield: 'a', HasSubfield: true, Pattern: regexp.MustCompile(`^works$`)},
	}
	desc, excluded := MatchesExclusionFilters(r, journal)
	require.True(t, excluded)
	require.Equal(t, "650/^works$/", desc)

	journal.ExcludeFields = []config.MarcFilterRule{
		{Tag: "650", HasSubfield: false, Pattern: regexp.MustCompile(`astrology`)},
	}
	_, excluded = MatchesExclusionFilters(r, journal)
	require.False(t, excluded)
}
