package augment

import (
	"context"
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openbiblio/zotero-harvester/internal/config"
	"github.com/openbiblio/zotero-harvester/internal/report"
)

// stubAuthority resolves names from a fixed table and records lookups.
type stubAuthority struct {
	byName map[string]string
	calls  []string
}

func (s *stubAuthority) AuthorGND(_ context.Context, name string, _ *config.GroupParams) string {
	s.calls = append(s.calls, name)
	return s.byName[name]
}

func testJournal() *config.JournalParams {
	return &config.JournalParams{
		Name:           "Zeitschrift für Theologie",
		Group:          "IxTheo",
		OnlineISSN:     "1234-5678",
		OnlinePPN:      "123456789",
		SSGN:           "FG_0",
		License:        "LF",
		StrptimeFormat: "%d.%m.%Y",
	}
}

func testGroup() *config.GroupParams {
	return &config.GroupParams{Name: "IxTheo", ISIL: "DE-Tue135", UserAgent: "zotero-harvester/test"}
}

func TestAugmentNormalizesRecord(t *testing.T) {
	t.Parallel()

	authority := &stubAuthority{byName: map[string]string{"Doe, Jane": "118540238"}}
	engine := NewEngine(authority, NewNameNormalizer(nil), nil)

	item := Item{
		"itemType": "journalArticle",
		"title":    "Grace and Works",
		"volume":   "012",
		"issue":    "03",
		"pages":    "IV-VII",
		"date":     "24.12.2023",
		"creators": []any{
			map[string]any{"firstName": "Prof. Jane", "lastName": "Doe", "creatorType": "author"},
			map[string]any{"firstName": "Cher", "creatorType": "contributor"},
		},
	}

	rec, err := engine.Augment(context.Background(), item, testJournal(), testGroup())
	require.NoError(t, err)

	require.Equal(t, "2023-12-24", rec.Date)
	require.Equal(t, "12", rec.Volume)
	require.Equal(t, "3", rec.Issue)
	require.Equal(t, "4-7", rec.Pages)
	require.Equal(t, "Zeitschrift für Theologie", rec.PublicationTitle)
	require.Equal(t, "1234-5678", rec.ISSN)
	require.Equal(t, "123456789", rec.SuperiorPPN)
	require.Equal(t, SuperiorOnline, rec.SuperiorType)
	require.Equal(t, "LF", rec.License)
	require.Equal(t, "FG_0", rec.SSGN)

	require.Equal(t, "Prof.", rec.Creators[0].Title)
	require.Equal(t, "Jane", rec.Creators[0].FirstName)
	require.Equal(t, "Doe", rec.Creators[0].LastName)
	require.Equal(t, "118540238", rec.Creators[0].GNDNumber)

	// A mononym has no last name, so no lookup happens for it.
	require.Equal(t, []string{"Doe, Jane"}, authority.calls)
	require.Empty(t, rec.Creators[1].GNDNumber)
}

func TestAugmentPrintFallback(t *testing.T) {
	t.Parallel()

	engine := NewEngine(nil, nil, nil)
	journal := testJournal()
	journal.OnlineISSN = ""
	journal.OnlinePPN = ""
	journal.PrintISSN = "8765-4321"
	journal.PrintPPN = "987654321"

	rec, err := engine.Augment(context.Background(), Item{"itemType": "journalArticle"}, journal, testGroup())
	require.NoError(t, err)
	require.Equal(t, "8765-4321", rec.ISSN)
	require.Equal(t, "987654321", rec.SuperiorPPN)
	require.Equal(t, SuperiorPrint, rec.SuperiorType)
}

func TestAugmentRequiresCatalogIDForChosenISSN(t *testing.T) {
	t.Parallel()

	engine := NewEngine(nil, nil, nil)

	journal := testJournal()
	journal.OnlinePPN = ""
	_, err := engine.Augment(context.Background(), Item{"itemType": "journalArticle"}, journal, testGroup())
	require.Error(t, err)
	require.Equal(t, report.KindConfig, report.Classify(err))

	// No ISSN at all is a configuration error too.
	journal = testJournal()
	journal.OnlineISSN = ""
	journal.OnlinePPN = ""
	_, err = engine.Augment(context.Background(), Item{"itemType": "journalArticle"}, journal, testGroup())
	require.Error(t, err)
	require.Equal(t, report.KindConfig, report.Classify(err))
}

func TestAugmentReclassifiesReviews(t *testing.T) {
	t.Parallel()

	engine := NewEngine(nil, nil, nil)
	journal := testJournal()
	journal.ReviewRegex = regexp.MustCompile(`(?i)^rezension`)

	item := Item{"itemType": "journalArticle", "title": "Rezension zu: Grace and Works"}
	rec, err := engine.Augment(context.Background(), item, journal, testGroup())
	require.NoError(t, err)
	require.Equal(t, "review", rec.ItemType)

	// Keywords are checked as well.
	item = Item{
		"itemType": "journalArticle",
		"title":    "Grace and Works",
		"tags":     []any{map[string]any{"tag": "Rezension"}},
	}
	rec, err = engine.Augment(context.Background(), item, journal, testGroup())
	require.NoError(t, err)
	require.Equal(t, "review", rec.ItemType)

	// Without a match the item type survives.
	item = Item{"itemType": "journalArticle", "title": "Grace and Works"}
	rec, err = engine.Augment(context.Background(), item, journal, testGroup())
	require.NoError(t, err)
	require.Equal(t, "journalArticle", rec.ItemType)
}

func TestAugmentLanguageHandling(t *testing.T) {
	t.Parallel()

	engine := NewEngine(nil, nil, nil)

	// A reported language is only normalized.
	journal := testJournal()
	rec, err := engine.Augment(context.Background(),
		Item{"itemType": "journalArticle", "language": "en"}, journal, testGroup())
	require.NoError(t, err)
	require.Equal(t, "eng", rec.Language)

	// A single expected language fills an empty slot without classification.
	journal = testJournal()
	journal.ExpectedLanguages = config.ExpectedLanguages{Codes: []string{"ger"}}
	rec, err = engine.Augment(context.Background(),
		Item{"itemType": "journalArticle"}, journal, testGroup())
	require.NoError(t, err)
	require.Equal(t, "ger", rec.Language)

	// Forced detection overrides the reported language.
	journal = testJournal()
	journal.ExpectedLanguages = config.ExpectedLanguages{ForceAutomatic: true, Codes: []string{"eng"}}
	rec, err = engine.Augment(context.Background(),
		Item{"itemType": "journalArticle", "language": "fre"}, journal, testGroup())
	require.NoError(t, err)
	require.Equal(t, "eng", rec.Language)
}

func TestExcludeOnlineFirst(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		rec      MetadataRecord
		uncond   bool
		wantSkip bool
	}{
		{"no issue, no volume, no doi", MetadataRecord{ItemType: "journalArticle"}, false, true},
		{"doi rescues the item", MetadataRecord{ItemType: "journalArticle", DOI: "10.1/x"}, false, false},
		{"unconditional skip ignores the doi", MetadataRecord{ItemType: "journalArticle", DOI: "10.1/x"}, true, true},
		{"issue present", MetadataRecord{ItemType: "journalArticle", Issue: "3"}, false, false},
		{"volume present", MetadataRecord{ItemType: "review", Volume: "12"}, false, false},
		{"non-article type", MetadataRecord{ItemType: "book"}, false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.wantSkip, ExcludeOnlineFirst(&tc.rec, tc.uncond))
		})
	}
}

func TestExcludeEarlyView(t *testing.T) {
	t.Parallel()

	require.True(t, ExcludeEarlyView(&MetadataRecord{ItemType: "journalArticle", Issue: "n/a"}))
	require.True(t, ExcludeEarlyView(&MetadataRecord{ItemType: "magazineArticle", Volume: "n/a"}))
	require.False(t, ExcludeEarlyView(&MetadataRecord{ItemType: "journalArticle", Issue: "3", Volume: "12"}))
	require.False(t, ExcludeEarlyView(&MetadataRecord{ItemType: "webpage", Issue: "n/a"}))
}
