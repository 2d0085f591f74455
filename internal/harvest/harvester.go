// Package harvest drives the per-journal harvest: URL discovery (direct,
// syndication, crawl), the recursive per-URL harvest operation with
// multiple-candidate resolution, asynchronous conversion, and delivery
// through the tracking store. A run never aborts on a single bad page; item
// failures land in the report collector and the batch continues.
package harvest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/openbiblio/zotero-harvester/internal/config"
	"github.com/openbiblio/zotero-harvester/internal/convert"
	"github.com/openbiblio/zotero-harvester/internal/crawl"
	"github.com/openbiblio/zotero-harvester/internal/feeds"
	"github.com/openbiblio/zotero-harvester/internal/logging"
	"github.com/openbiblio/zotero-harvester/internal/progress"
	"github.com/openbiblio/zotero-harvester/internal/publisher"
	"github.com/openbiblio/zotero-harvester/internal/report"
	"github.com/openbiblio/zotero-harvester/internal/storage"
	"github.com/openbiblio/zotero-harvester/internal/tracking"
	"github.com/openbiblio/zotero-harvester/internal/translation"
)

// Stats are the aggregate counts one harvest run reports. Skip counters are
// deliberate outcomes, not failures.
type Stats struct {
	Harvested           int `json:"harvested"`
	Records             int `json:"records"`
	PreviouslyDelivered int `json:"previously_delivered"`
	FilterSkips         int `json:"filter_skips"`
	OnlineFirstSkips    int `json:"online_first_skips"`
	EarlyViewSkips      int `json:"early_view_skips"`
	Errors              int `json:"errors"`
}

// Add merges other into s.
func (s *Stats) Add(other Stats) {
	s.Harvested += other.Harvested
	s.Records += other.Records
	s.PreviouslyDelivered += other.PreviouslyDelivered
	s.FilterSkips += other.FilterSkips
	s.OnlineFirstSkips += other.OnlineFirstSkips
	s.EarlyViewSkips += other.EarlyViewSkips
	s.Errors += other.Errors
}

// Clock supplies wall-clock time; tests substitute a fixed one.
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run ids.
type IDGenerator interface {
	NewID() (string, error)
}

// Options bundles the collaborators a Harvester needs.
type Options struct {
	Config      *config.HarvesterConfig
	Client      *translation.Client
	Scheduler   *convert.Scheduler
	Tracker     tracking.Tracker
	FeedStore   feeds.Store
	FeedFetcher *feeds.Fetcher
	Crawler     *crawl.Crawler
	Store       storage.Provider
	Publisher   publisher.Publisher
	Reporter    *report.Collector
	Emitter     progress.Emitter
	Clock       Clock
	IDs         IDGenerator
	Logger      *zap.Logger

	// OutputFormat selects the record artifact encoding: marc21, marcxml
	// or json (the raw translator arrays).
	OutputFormat string
	// TestMode ignores the feed last-build-date short-circuit and keeps
	// feed state unpersisted, so a test run can be repeated.
	TestMode bool
}

// Harvester runs journals. Safe for concurrent use per journal; each call
// owns its run state.
type Harvester struct {
	opts     Options
	registry *Registry
	logger   *zap.Logger
}

// New validates the options and builds a Harvester.
func New(opts Options) (*Harvester, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("harvester config is required")
	}
	if opts.Client == nil {
		return nil, fmt.Errorf("translation client is required")
	}
	if opts.Scheduler == nil {
		return nil, fmt.Errorf("conversion scheduler is required")
	}
	if opts.Tracker == nil {
		opts.Tracker = tracking.NewMemoryTracker()
	}
	if opts.FeedStore == nil {
		opts.FeedStore = feeds.NewMemoryStore()
	}
	if opts.Store == nil {
		opts.Store = storage.NoOpProvider{}
	}
	if opts.Publisher == nil {
		opts.Publisher = publisher.NoOpPublisher{}
	}
	if opts.Reporter == nil {
		opts.Reporter = report.NewCollector(nil)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.OutputFormat == "" {
		opts.OutputFormat = "marcxml"
	}
	switch opts.OutputFormat {
	case "marc21", "marcxml", "json":
	default:
		return nil, fmt.Errorf("unsupported output format %q", opts.OutputFormat)
	}
	return &Harvester{
		opts:     opts,
		registry: NewRegistry(),
		logger:   opts.Logger,
	}, nil
}

// Registry exposes run statuses for the status server.
func (h *Harvester) Registry() *Registry {
	return h.registry
}

// HarvestAll runs every configured journal in order and returns the merged
// counts. Per-journal failures are collected, not returned; the error is
// reserved for run-level problems such as an unresolvable group.
func (h *Harvester) HarvestAll(ctx context.Context) (Stats, error) {
	var total Stats
	for _, journal := range h.opts.Config.Journals {
		stats, err := h.HarvestJournal(ctx, journal)
		if err != nil {
			return total, err
		}
		total.Add(stats)
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
	}
	return total, nil
}

// HarvestJournal runs one journal with the strategy its configuration
// selects.
func (h *Harvester) HarvestJournal(ctx context.Context, journal *config.JournalParams) (Stats, error) {
	switch journal.Type {
	case config.HarvestDirect, config.HarvestRSS, config.HarvestCrawl:
	default:
		return Stats{}, fmt.Errorf("journal %q: unknown harvest type %q", journal.Name, journal.Type)
	}
	group, err := h.opts.Config.GroupFor(journal)
	if err != nil {
		return Stats{}, err
	}
	runID, err := h.runID()
	if err != nil {
		return Stats{}, err
	}

	r := &run{
		h:       h,
		id:      runID,
		journal: journal,
		group:   group,
		seen:    make(map[string]bool),
		logger:  logging.ForJournal(h.logger, journal.Name, group.Name),
	}
	h.registry.start(runID, journal.Name, group.Name, h.now())
	r.emit(progress.StageRunStart, "", 0)
	r.logger.Info("harvest starting",
		zap.String("run_id", runID),
		zap.String("type", string(journal.Type)),
		zap.String("mode", string(journal.DeliveryMode)))

	switch journal.Type {
	case config.HarvestDirect:
		r.harvestURL(ctx, journal.URL, 0)
	case config.HarvestRSS:
		r.harvestFeed(ctx)
	case config.HarvestCrawl:
		r.harvestSite(ctx)
	}

	r.collect(ctx)
	if err := r.saveArtifact(ctx); err != nil {
		r.fail("", err)
	}

	h.registry.finish(runID, r.stats, h.now())
	r.emit(progress.StageRunDone, "", 0)
	r.logger.Info("harvest finished",
		zap.Int("harvested", r.stats.Harvested),
		zap.Int("records", r.stats.Records),
		zap.Int("previously_delivered", r.stats.PreviouslyDelivered),
		zap.Int("filter_skips", r.stats.FilterSkips),
		zap.Int("online_first_skips", r.stats.OnlineFirstSkips),
		zap.Int("early_view_skips", r.stats.EarlyViewSkips),
		zap.Int("errors", r.stats.Errors))
	return r.stats, nil
}

func (h *Harvester) runID() (string, error) {
	if h.opts.IDs == nil {
		return fmt.Sprintf("run-%d", h.now().UnixNano()), nil
	}
	id, err := h.opts.IDs.NewID()
	if err != nil {
		return "", fmt.Errorf("generate run id: %w", err)
	}
	return id, nil
}

func (h *Harvester) now() time.Time {
	if h.opts.Clock != nil {
		return h.opts.Clock.Now()
	}
	return time.Now().UTC()
}
