package feeds

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"
)

// Fetcher downloads and parses syndication feeds.
type Fetcher struct {
	parser  *gofeed.Parser
	timeout time.Duration
}

// NewFetcher builds a Fetcher. The user agent identifies the harvester to
// publisher sites; timeout bounds the whole download.
func NewFetcher(userAgent string, timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	parser := gofeed.NewParser()
	parser.UserAgent = userAgent
	parser.Client = &http.Client{Timeout: timeout}
	return &Fetcher{parser: parser, timeout: timeout}
}

// Fetch downloads and parses one feed. RSS and Atom both come back in
// gofeed's unified model.
func (f *Fetcher) Fetch(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	feed, err := f.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", feedURL, err)
	}
	return feed, nil
}

// BuildDate picks the feed's change marker: the last build date when the
// feed carries one, else the update date, else the publish date.
func BuildDate(feed *gofeed.Feed) time.Time {
	if feed.UpdatedParsed != nil {
		return feed.UpdatedParsed.UTC()
	}
	if feed.PublishedParsed != nil {
		return feed.PublishedParsed.UTC()
	}
	return time.Time{}
}

// ItemID returns the stable identifier for a feed item: the GUID when
// present, else the link.
func ItemID(item *gofeed.Item) string {
	if item.GUID != "" {
		return item.GUID
	}
	return item.Link
}
