// Package crawl walks a publisher site and hands discovered pages to the
// harvest dispatcher one at a time. The dispatcher only depends on the
// narrow contract here: describe a site, pull pages in discovery order,
// observe the remaining crawl depth. Politeness (per-host delays, robots)
// and the headless rendering fallback stay inside this package.
package crawl

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/openbiblio/zotero-harvester/internal/metrics"
)

// Site describes one journal site to crawl.
type Site struct {
	StartURL string
	// MaxDepth bounds link recursion; the start page is depth 1.
	MaxDepth int
	// FollowRegex gates which links are followed. Nil follows everything
	// colly's same-recursion rules allow.
	FollowRegex *regexp.Regexp
	UserAgent   string
	// Delay is the fixed inter-request pause per host; MaxDelay adds a
	// random component on top when larger than Delay.
	Delay    time.Duration
	MaxDelay time.Duration
	// RequestTimeout bounds each page download.
	RequestTimeout time.Duration
}

// Page is one discovered page. The body is the fetched (possibly rendered)
// HTML; the harvester only forwards the URL to the translation service, the
// body exists for link extraction and diagnostics.
type Page struct {
	URL            string
	RemainingDepth int
}

// Session is a running crawl. Pages arrive on an unbuffered channel, so the
// crawler advances only as fast as the consumer pulls.
type Session struct {
	pages chan Page

	mu  sync.Mutex
	err error
}

// Pages returns the discovery-ordered page stream. The channel closes when
// the crawl finishes or the context is canceled.
func (s *Session) Pages() <-chan Page {
	return s.pages
}

// Err reports the first fatal crawl error, valid after Pages closes.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Session) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

// Config controls crawler behavior shared across sites.
type Config struct {
	// IgnoreRobots skips robots.txt checks. Leave false for production.
	IgnoreRobots bool
}

// Crawler walks sites. Renderer and Detector are optional; with both set,
// pages the detector flags as script-rendered shells go through headless
// Chrome before link extraction.
type Crawler struct {
	cfg      Config
	renderer *Renderer
	detector *Detector
	logger   *zap.Logger
}

// New builds a Crawler.
func New(cfg Config, renderer *Renderer, detector *Detector, logger *zap.Logger) *Crawler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Crawler{cfg: cfg, renderer: renderer, detector: detector, logger: logger}
}

// Crawl starts walking the site and returns immediately. The caller drains
// Session.Pages; cancellation of ctx stops the walk after the in-flight
// request completes.
func (c *Crawler) Crawl(ctx context.Context, site Site) *Session {
	sess := &Session{pages: make(chan Page)}
	go c.run(ctx, site, sess)
	return sess
}

func (c *Crawler) run(ctx context.Context, site Site, sess *Session) {
	defer close(sess.pages)

	collector := colly.NewCollector(
		colly.MaxDepth(site.MaxDepth),
		colly.UserAgent(site.UserAgent),
		colly.StdlibContext(ctx),
	)
	collector.AllowURLRevisit = false
	collector.IgnoreRobotsTxt = c.cfg.IgnoreRobots
	if site.RequestTimeout > 0 {
		collector.SetRequestTimeout(site.RequestTimeout)
	}

	limit := &colly.LimitRule{DomainGlob: "*", Delay: site.Delay}
	if site.MaxDelay > site.Delay {
		limit.RandomDelay = site.MaxDelay - site.Delay
	}
	if err := collector.Limit(limit); err != nil {
		sess.setErr(fmt.Errorf("set crawl limits: %w", err))
		return
	}

	collector.OnHTML("a[href]", func(e *colly.HTMLElement) {
		c.follow(site, e.Request, e.Request.AbsoluteURL(e.Attr("href")))
	})

	collector.OnResponse(func(r *colly.Response) {
		if r.StatusCode != 200 || len(r.Body) == 0 {
			c.logger.Debug("skipping crawl response",
				zap.String("url", r.Request.URL.String()),
				zap.Int("status", r.StatusCode))
			return
		}
		c.maybeRender(ctx, site, r)

		remaining := site.MaxDepth - r.Request.Depth
		if remaining < 0 {
			remaining = 0
		}
		metrics.ObserveCrawlPage(site.StartURL, "discovered")
		select {
		case sess.pages <- Page{URL: r.Request.URL.String(), RemainingDepth: remaining}:
		case <-ctx.Done():
		}
	})

	collector.OnError(func(r *colly.Response, err error) {
		metrics.ObserveCrawlPage(site.StartURL, "failed")
		c.logger.Warn("crawl request failed",
			zap.String("url", r.Request.URL.String()),
			zap.Int("status", r.StatusCode),
			zap.Error(err))
	})

	if err := collector.Visit(site.StartURL); err != nil {
		sess.setErr(fmt.Errorf("visit %s: %w", site.StartURL, err))
		return
	}
	collector.Wait()
}

// follow enqueues a link when it passes the site's follow filter.
func (c *Crawler) follow(site Site, req *colly.Request, link string) {
	if link == "" {
		return
	}
	if site.FollowRegex != nil && !site.FollowRegex.MatchString(link) {
		metrics.ObserveCrawlPage(site.StartURL, "filtered")
		return
	}
	// Depth and revisit rules are enforced by the collector.
	_ = req.Visit(link)
}

// maybeRender replaces a script-rendered shell body with the headless DOM
// snapshot and enqueues the links only the rendered DOM contains.
func (c *Crawler) maybeRender(ctx context.Context, site Site, r *colly.Response) {
	if c.renderer == nil || c.detector == nil || !c.detector.ShouldPromote(r.Body) {
		return
	}
	html, err := c.renderer.Render(ctx, r.Request.URL.String())
	if err != nil {
		c.logger.Warn("headless render failed",
			zap.String("url", r.Request.URL.String()),
			zap.Error(err))
		return
	}
	metrics.ObserveCrawlPage(site.StartURL, "rendered")
	r.Body = []byte(html)

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(r.Body))
	if err != nil {
		return
	}
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		if href, ok := sel.Attr("href"); ok {
			c.follow(site, r.Request, r.Request.AbsoluteURL(href))
		}
	})
}
