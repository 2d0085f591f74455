package harvest

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/openbiblio/zotero-harvester/internal/crawl"
	"github.com/openbiblio/zotero-harvester/internal/metrics"
)

// harvestSite crawls the journal's start page and harvests every discovered
// page that passes both the process-wide supported-URL patterns and the
// journal's extraction regex. The crawl advances only as fast as pages are
// harvested here; the page channel is unbuffered.
func (r *run) harvestSite(ctx context.Context) {
	if r.h.opts.Crawler == nil {
		r.fail("", fmt.Errorf("journal %q is CRAWL but no crawler is configured", r.journal.Name))
		return
	}
	global := &r.h.opts.Config.Global

	crawlCtx := ctx
	if global.CrawlTimeout > 0 {
		var cancel context.CancelFunc
		crawlCtx, cancel = context.WithTimeout(ctx, global.CrawlTimeout)
		defer cancel()
	}

	site := crawl.Site{
		StartURL:       r.journal.URL,
		MaxDepth:       r.journal.MaxCrawlDepth,
		FollowRegex:    r.journal.CrawlURLRegex,
		UserAgent:      r.group.UserAgent,
		Delay:          global.DefaultDownloadDelay,
		MaxDelay:       global.MaxDownloadDelay,
		RequestTimeout: global.DownloadTimeout,
	}

	sess := r.h.opts.Crawler.Crawl(crawlCtx, site)
	for page := range sess.Pages() {
		if global.SupportedURLs != nil && !global.SupportedURLs.MatchString(page.URL) {
			metrics.ObserveSkip(r.journal.Name, "unsupported_url")
			r.logger.Debug("crawled url not supported", zap.String("url", page.URL))
			continue
		}
		if r.journal.ExtractionRegex != nil && !r.journal.ExtractionRegex.MatchString(page.URL) {
			metrics.ObserveSkip(r.journal.Name, "extraction_regex")
			continue
		}
		r.harvestURL(ctx, page.URL, page.RemainingDepth)
	}

	if err := sess.Err(); err != nil {
		r.fail("", fmt.Errorf("crawl %s: %w", site.StartURL, err))
	}
}
