// Package augment turns raw translator JSON into normalized metadata records.
// It owns the rule-driven field rewrites, ISSN/PPN resolution, date, page and
// language normalization, creator name postprocessing with authority lookups,
// and the review/online-first heuristics.
package augment

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openbiblio/zotero-harvester/internal/report"
)

// SuperiorType says which half of the ISSN/PPN pair was resolved.
type SuperiorType int

const (
	SuperiorUnspecified SuperiorType = iota
	SuperiorOnline
	SuperiorPrint
)

// Creator is one author or contributor of an item.
type Creator struct {
	FirstName string
	LastName  string
	Title     string
	Affix     string
	Type      string
	PPN       string
	GNDNumber string
}

// CombinedName renders "last, first" for authority lookups.
func (c *Creator) CombinedName() string {
	if c.FirstName == "" {
		return c.LastName
	}
	return c.LastName + ", " + c.FirstName
}

// MetadataRecord is the typed, normalized intermediate between translator
// JSON and record generation. Created once per harvested item, consumed once.
type MetadataRecord struct {
	ItemType         string
	Title            string
	ShortTitle       string
	AbstractNote     string
	PublicationTitle string
	Volume           string
	Issue            string
	Pages            string
	Date             string
	DOI              string
	Language         string
	URL              string
	ISSN             string
	SuperiorPPN      string
	SuperiorType     SuperiorType
	License          string
	SSGN             string
	Creators         []Creator
	Keywords         []string
	CustomMetadata   map[string]string
}

// Item is one translator response entry: a JSON object with typed accessors
// that return zero values instead of aborting on shape mismatches.
type Item map[string]any

// String returns the string value under key, or "".
func (it Item) String(key string) string {
	s, _ := it[key].(string)
	return s
}

// Array returns the array value under key, or nil.
func (it Item) Array(key string) []any {
	a, _ := it[key].([]any)
	return a
}

// SetString stores a string value under key.
func (it Item) SetString(key, value string) {
	it[key] = value
}

// ItemsFromJSON decodes a translator response body into items. The body must
// be a JSON array of objects.
func ItemsFromJSON(data []byte) ([]Item, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, report.NewError(report.KindFailedToParseJSON, "response is not a JSON array: %v", err)
	}
	items := make([]Item, 0, len(raw))
	for i, entry := range raw {
		var item Item
		if err := json.Unmarshal(entry, &item); err != nil {
			return nil, report.NewError(report.KindFailedToParseJSON, "entry %d is not a JSON object: %v", i, err)
		}
		items = append(items, item)
	}
	return items, nil
}

// MergeNotes folds translator "note" entries into the notes array of the
// preceding regular entry. The translation server emits item notes as
// stand-alone objects following their parent.
func MergeNotes(items []Item) ([]Item, error) {
	merged := make([]Item, 0, len(items))
	var last Item
	for i, item := range items {
		if item.String("itemType") == "note" {
			if last == nil {
				return nil, fmt.Errorf("unexpected note object at entry %d", i)
			}
			notes := last.Array("notes")
			last["notes"] = append(notes, map[string]any{"note": item.String("note")})
			continue
		}
		if _, ok := item["notes"]; !ok {
			item["notes"] = []any{}
		}
		merged = append(merged, item)
		last = item
	}
	return merged, nil
}

// itemToRecord maps a postprocessed item onto a fresh MetadataRecord,
// stripping markup from every free-text field.
func itemToRecord(item Item) *MetadataRecord {
	rec := &MetadataRecord{
		ItemType:         StripTags(item.String("itemType")),
		Title:            StripTags(item.String("title")),
		ShortTitle:       StripTags(item.String("shortTitle")),
		AbstractNote:     StripTags(item.String("abstractNote")),
		PublicationTitle: StripTags(item.String("publicationTitle")),
		Volume:           StripTags(item.String("volume")),
		Issue:            StripTags(item.String("issue")),
		Pages:            StripTags(item.String("pages")),
		Date:             StripTags(item.String("date")),
		DOI:              StripTags(item.String("DOI")),
		Language:         StripTags(item.String("language")),
		URL:              StripTags(item.String("url")),
		ISSN:             StripTags(item.String("ISSN")),
		CustomMetadata:   make(map[string]string),
	}
	if rec.PublicationTitle == "" {
		rec.PublicationTitle = StripTags(item.String("websiteTitle"))
	}

	for _, entry := range item.Array("creators") {
		creator, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		rec.Creators = append(rec.Creators, Creator{
			FirstName: StripTags(Item(creator).String("firstName")),
			LastName:  StripTags(Item(creator).String("lastName")),
			Type:      StripTags(Item(creator).String("creatorType")),
		})
	}

	for _, entry := range item.Array("tags") {
		var tag string
		switch v := entry.(type) {
		case map[string]any:
			tag = Item(v).String("tag")
		case string:
			tag = v
		}
		if tag = StripTags(tag); tag != "" {
			rec.Keywords = append(rec.Keywords, tag)
		}
	}

	for _, entry := range item.Array("notes") {
		obj, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		note := Item(obj).String("note")
		if note == "" {
			continue
		}
		colon := strings.Index(note, ":")
		if colon < 0 {
			continue
		}
		rec.CustomMetadata[note[:colon]] = note[colon+1:]
	}

	return rec
}
