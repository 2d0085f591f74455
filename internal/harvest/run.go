package harvest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/openbiblio/zotero-harvester/internal/config"
	"github.com/openbiblio/zotero-harvester/internal/convert"
	"github.com/openbiblio/zotero-harvester/internal/logging"
	"github.com/openbiblio/zotero-harvester/internal/marc"
	"github.com/openbiblio/zotero-harvester/internal/metrics"
	"github.com/openbiblio/zotero-harvester/internal/progress"
	"github.com/openbiblio/zotero-harvester/internal/publisher"
	"github.com/openbiblio/zotero-harvester/internal/report"
	"github.com/openbiblio/zotero-harvester/internal/translation"
)

// pending tracks one submitted conversion until collection.
type pending struct {
	url    string
	future *convert.Future
}

// run is the state of one journal harvest. Discovery is single-goroutine
// (the crawl channel is drained serially, recursion is serial), so seen and
// the counters need no locking; conversion concurrency lives behind the
// scheduler's futures.
type run struct {
	h       *Harvester
	id      string
	journal *config.JournalParams
	group   *config.GroupParams
	logger  *zap.Logger

	seen      map[string]bool
	processed int
	stats     Stats

	pending   []pending
	delivered []convert.GeneratedRecord
	rawBodies [][]byte
}

// harvestURL downloads one page through the translation service and queues
// its conversion. Already-seen URLs are skipped so cyclic candidate maps and
// crawl loops terminate.
func (r *run) harvestURL(ctx context.Context, pageURL string, remainingDepth int) {
	if ctx.Err() != nil {
		return
	}
	if r.seen[pageURL] {
		r.logger.Debug("url already handled this run", zap.String("url", pageURL))
		return
	}
	r.seen[pageURL] = true
	defer func() {
		r.processed++
		r.emit(progress.StageURLDone, pageURL, remainingDepth)
	}()

	res, err := r.h.opts.Client.Web(ctx, pageURL)
	if err != nil {
		if errors.Is(err, translation.ErrUnsupportedPage) {
			metrics.ObserveSkip(r.journal.Name, "unsupported_page")
			logging.ForURL(r.logger, pageURL).Debug("no translator for page")
			return
		}
		r.urlError(pageURL, err)
		return
	}
	if res.MultipleCandidates() {
		r.resolveMultiple(ctx, pageURL, res.Body, remainingDepth)
		return
	}
	r.submit(ctx, pageURL, res.Body)
}

// resolveMultiple handles a 300 response. When the body is a plain
// URL-to-title map, every key is harvested as its own page; any other shape
// is resubmitted once so the service can decide, and a second 300 is a
// failure.
func (r *run) resolveMultiple(ctx context.Context, pageURL string, body []byte, remainingDepth int) {
	var candidates map[string]json.RawMessage
	if err := json.Unmarshal(body, &candidates); err != nil {
		r.urlError(pageURL, fmt.Errorf("parse candidate json: %w", err))
		return
	}

	urlMap := len(candidates) > 0
	for _, raw := range candidates {
		var s string
		if json.Unmarshal(raw, &s) != nil {
			urlMap = false
			break
		}
	}

	if urlMap {
		urls := make([]string, 0, len(candidates))
		for u := range candidates {
			urls = append(urls, u)
		}
		sort.Strings(urls)
		r.logger.Debug("multiple candidates",
			zap.String("url", pageURL),
			zap.Int("count", len(urls)))
		for _, u := range urls {
			r.harvestURL(ctx, u, remainingDepth)
		}
		return
	}

	res, err := r.h.opts.Client.WebJSON(ctx, body)
	if err != nil {
		r.urlError(pageURL, err)
		return
	}
	if res.MultipleCandidates() {
		r.urlError(pageURL, report.NewError(report.KindDownloadMultipleFailed,
			"resubmitted candidate payload for %s still ambiguous", pageURL))
		return
	}
	r.submit(ctx, pageURL, res.Body)
}

// submit queues one translator response for conversion.
func (r *run) submit(ctx context.Context, pageURL string, body []byte) {
	if r.h.opts.OutputFormat == "json" {
		r.rawBodies = append(r.rawBodies, body)
	}
	future := r.h.opts.Scheduler.Submit(ctx, convert.Task{
		URL:     pageURL,
		Body:    body,
		Journal: r.journal,
		Group:   r.group,
	})
	r.pending = append(r.pending, pending{url: pageURL, future: future})
}

// collect awaits every submitted conversion and runs delivery tracking over
// the generated records.
func (r *run) collect(ctx context.Context) {
	for _, p := range r.pending {
		res, err := p.future.Await(ctx)
		if err != nil {
			r.urlError(p.url, err)
			continue
		}
		r.stats.FilterSkips += res.FilterSkips
		r.stats.OnlineFirstSkips += res.OnlineFirstSkips
		r.stats.EarlyViewSkips += res.EarlyViewSkips
		for _, itemErr := range res.Errors {
			r.urlError(p.url, itemErr)
		}
		for _, rec := range res.Records {
			r.deliver(ctx, p.url, rec)
		}
	}
	r.stats.Harvested = r.processed
}

// deliver applies the dedup decision for one record. Delivery is keyed on
// (url, mode); a matching hash with a clean previous delivery is a skip, a
// previous error means the delivery is retried.
func (r *run) deliver(ctx context.Context, pageURL string, rec convert.GeneratedRecord) {
	mode := string(r.journal.DeliveryMode)
	tracked := r.journal.DeliveryMode != config.DeliveryNone

	if tracked {
		already, prevErr, err := r.h.opts.Tracker.HasAlreadyDelivered(ctx, mode, pageURL, rec.Hash)
		if err != nil {
			r.urlError(pageURL, fmt.Errorf("delivery lookup: %w", err))
			return
		}
		if already {
			r.stats.PreviouslyDelivered++
			metrics.ObserveSkip(r.journal.Name, "previously_delivered")
			logging.ForURL(r.logger, pageURL).Debug("record already delivered",
				zap.String("hash", rec.Hash))
			return
		}
		if prevErr != "" {
			logging.ForURL(r.logger, pageURL).Info("retrying failed delivery",
				zap.String("previous_error", prevErr))
		}
	}

	r.delivered = append(r.delivered, rec)
	r.stats.Records++
	metrics.ObserveRecord(r.journal.Name, mode)

	if !tracked {
		return
	}
	if err := r.h.opts.Tracker.RecordDelivery(ctx, mode, pageURL, r.journal.Name, rec.Hash, ""); err != nil {
		r.urlError(pageURL, fmt.Errorf("record delivery: %w", err))
		return
	}
	if r.journal.DeliveryMode == config.DeliveryLive {
		err := r.h.opts.Publisher.Publish(ctx, publisher.Notification{
			Journal:      r.journal.Name,
			URL:          pageURL,
			DeliveryMode: mode,
			ContentHash:  rec.Hash,
			Object:       r.objectName(),
		})
		if err != nil {
			r.logger.Warn("delivery notification failed",
				zap.String("url", pageURL), zap.Error(err))
		}
	}
}

// saveArtifact writes the run's newly delivered records to the record store.
// Runs that produced nothing new write nothing.
func (r *run) saveArtifact(ctx context.Context) error {
	var buf bytes.Buffer
	switch r.h.opts.OutputFormat {
	case "json":
		if len(r.rawBodies) == 0 {
			return nil
		}
		merged := make([]json.RawMessage, 0, len(r.rawBodies))
		for _, body := range r.rawBodies {
			var items []json.RawMessage
			if err := json.Unmarshal(body, &items); err != nil {
				return fmt.Errorf("merge raw item arrays: %w", err)
			}
			merged = append(merged, items...)
		}
		if err := json.NewEncoder(&buf).Encode(merged); err != nil {
			return fmt.Errorf("encode raw item arrays: %w", err)
		}
	default:
		if len(r.delivered) == 0 {
			r.logger.Info("no new records this run")
			return nil
		}
		w, err := marc.NewWriter(&buf, r.h.opts.OutputFormat)
		if err != nil {
			return err
		}
		for _, rec := range r.delivered {
			if err := w.Write(rec.Record); err != nil {
				return fmt.Errorf("write record: %w", err)
			}
		}
		if err := w.Close(); err != nil {
			return fmt.Errorf("finish record file: %w", err)
		}
	}

	name := r.objectName()
	if err := r.h.opts.Store.Save(ctx, name, buf.Bytes()); err != nil {
		return fmt.Errorf("save %s: %w", name, err)
	}
	r.logger.Info("record file saved",
		zap.String("object", name),
		zap.Int("records", len(r.delivered)),
		zap.Int("bytes", buf.Len()))
	return nil
}

// objectName is the store path of this run's record artifact.
func (r *run) objectName() string {
	ext := map[string]string{"marc21": "mrc", "marcxml": "xml", "json": "json"}[r.h.opts.OutputFormat]
	return path.Join(r.group.OutputFolder, sanitizeName(r.journal.Name), r.id+"."+ext)
}

func sanitizeName(name string) string {
	return strings.Map(func(c rune) rune {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			return c
		case c == '-' || c == '_' || c == '.':
			return c
		default:
			return '_'
		}
	}, name)
}

// urlError files one per-URL failure with the report collector.
func (r *run) urlError(pageURL string, err error) {
	r.stats.Errors++
	r.h.opts.Reporter.AutoLogURL(r.journal.Name, pageURL, err)
}

// fail files a journal-level failure that has no URL context.
func (r *run) fail(pageURL string, err error) {
	if pageURL != "" {
		r.urlError(pageURL, err)
		return
	}
	r.stats.Errors++
	r.h.opts.Reporter.LogJournal(r.journal.Name, err.Error())
	r.emitNote(progress.StageRunError, err.Error())
}

func (r *run) emit(stage progress.Stage, pageURL string, remainingDepth int) {
	r.emitEvent(progress.Event{
		Stage:          stage,
		URL:            pageURL,
		RemainingDepth: remainingDepth,
	})
}

func (r *run) emitNote(stage progress.Stage, note string) {
	r.emitEvent(progress.Event{Stage: stage, Note: note})
}

func (r *run) emitEvent(evt progress.Event) {
	if r.h.opts.Emitter == nil {
		return
	}
	evt.RunID = r.id
	evt.TS = r.h.now()
	evt.Journal = r.journal.Name
	evt.Processed = r.processed
	evt.Records = r.stats.Records
	evt.PreviouslyDelivered = r.stats.PreviouslyDelivered
	r.h.opts.Emitter.Emit(evt)
}
