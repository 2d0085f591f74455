package augment

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openbiblio/zotero-harvester/internal/report"
)

func TestItemsFromJSON(t *testing.T) {
	t.Parallel()

	items, err := ItemsFromJSON([]byte(`[{"itemType":"journalArticle","title":"A"},{"itemType":"note","note":"x"}]`))
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, "journalArticle", items[0].String("itemType"))
	require.Equal(t, "x", items[1].String("note"))
}

func TestItemsFromJSONRejectsNonArray(t *testing.T) {
	t.Parallel()

	_, err := ItemsFromJSON([]byte(`{"itemType":"journalArticle"}`))
	require.Error(t, err)
	require.Equal(t, report.KindFailedToParseJSON, report.Classify(err))

	_, err = ItemsFromJSON([]byte(`["not an object"]`))
	require.Error(t, err)
	require.Equal(t, report.KindFailedToParseJSON, report.Classify(err))
}

func TestMergeNotes(t *testing.T) {
	t.Parallel()

	items, err := ItemsFromJSON([]byte(`[
		{"itemType":"journalArticle","title":"A"},
		{"itemType":"note","note":"ssgn:FG_0"},
		{"itemType":"note","note":"license:LF"},
		{"itemType":"journalArticle","title":"B"}
	]`))
	require.NoError(t, err)

	merged, err := MergeNotes(items)
	require.NoError(t, err)
	require.Len(t, merged, 2)

	notes := merged[0].Array("notes")
	require.Len(t, notes, 2)
	require.Equal(t, "ssgn:FG_0", Item(notes[0].(map[string]any)).String("note"))
	require.Equal(t, "license:LF", Item(notes[1].(map[string]any)).String("note"))

	// Entries without trailing notes still get an empty notes array.
	require.NotNil(t, merged[1].Array("notes"))
	require.Empty(t, merged[1].Array("notes"))
}

func TestMergeNotesRejectsLeadingNote(t *testing.T) {
	t.Parallel()

	items := []Item{{"itemType": "note", "note": "orphan"}}
	_, err := MergeNotes(items)
	require.Error(t, err)
}

func TestMergeNotesKeepsExistingNotesArray(t *testing.T) {
	t.Parallel()

	items, err := ItemsFromJSON([]byte(`[
		{"itemType":"journalArticle","notes":[{"note":"kept:yes"}]},
		{"itemType":"note","note":"added:yes"}
	]`))
	require.NoError(t, err)

	merged, err := MergeNotes(items)
	require.NoError(t, err)
	require.Len(t, merged[0].Array("notes"), 2)
}

func TestItemToRecordStripsMarkupAndMapsFields(t *testing.T) {
	t.Parallel()

	items, err := ItemsFromJSON([]byte(`[{
		"itemType": "journalArticle",
		"title": "<b>Grace</b> and <i>Works</i>",
		"abstractNote": "<p>First.</p><p>Second.</p>",
		"publicationTitle": "",
		"websiteTitle": "Theology Today",
		"volume": "12",
		"issue": "3",
		"pages": "5-9",
		"date": "2023-12-24",
		"DOI": "10.1000/xyz",
		"language": "eng",
		"url": "https://example.org/grace",
		"ISSN": "1234-5678",
		"creators": [
			{"firstName": "Jane", "lastName": "Doe", "creatorType": "author"},
			{"firstName": "", "lastName": "Reviewer", "creatorType": "reviewedAuthor"}
		],
		"tags": [{"tag": "grace"}, {"tag": ""}, "works"],
		"notes": [{"note": "ssgn:FG_0"}, {"note": "no colon here"}]
	}]`))
	require.NoError(t, err)

	rec := itemToRecord(items[0])
	require.Equal(t, "journalArticle", rec.ItemType)
	require.Equal(t, "Grace and Works", rec.Title)
	require.Equal(t, "First. Second.", rec.AbstractNote)
	require.Equal(t, "Theology Today", rec.PublicationTitle)
	require.Equal(t, "12", rec.Volume)
	require.Equal(t, "3", rec.Issue)
	require.Equal(t, "5-9", rec.Pages)
	require.Equal(t, "2023-12-24", rec.Date)
	require.Equal(t, "10.1000/xyz", rec.DOI)
	require.Equal(t, "https://example.org/grace", rec.URL)
	require.Equal(t, "1234-5678", rec.ISSN)

	require.Len(t, rec.Creators, 2)
	require.Equal(t, "Jane", rec.Creators[0].FirstName)
	require.Equal(t, "Doe", rec.Creators[0].LastName)
	require.Equal(t, "author", rec.Creators[0].Type)

	require.Equal(t, []string{"grace", "works"}, rec.Keywords)

	// Notes with a colon become custom metadata; the rest are dropped.
	require.Equal(t, map[string]string{"ssgn": "FG_0"}, rec.CustomMetadata)
}
