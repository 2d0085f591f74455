// Package convert schedules the conversion of translator responses into
// catalog records. Conversions run as tasklets: queued FIFO, promoted by a
// background loop while under the concurrency cap, with results exposed
// through futures so harvest operations can keep downloading while earlier
// items convert.
package convert

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/openbiblio/zotero-harvester/internal/augment"
	"github.com/openbiblio/zotero-harvester/internal/config"
	"github.com/openbiblio/zotero-harvester/internal/marc"
	"github.com/openbiblio/zotero-harvester/internal/metrics"
	"github.com/openbiblio/zotero-harvester/internal/report"
)

const (
	defaultMaxRunning = 8
	defaultTick       = 16 * time.Millisecond
)

// Task is one conversion request: the translator response body for one
// harvested URL, plus the journal and group it belongs to.
type Task struct {
	URL     string
	Body    []byte
	Journal *config.JournalParams
	Group   *config.GroupParams
}

// GeneratedRecord pairs a record with its content hash, which delivery
// tracking uses as the deduplication key.
type GeneratedRecord struct {
	Record *marc.Record
	Hash   string
}

// Result collects the outcome of one conversion. Deliberate skips are
// counted by cause; item-level failures land in Errors and do not abort the
// remaining items of the batch.
type Result struct {
	Records          []GeneratedRecord
	FilterSkips      int
	OnlineFirstSkips int
	EarlyViewSkips   int
	Errors           []error
}

// Tasklet states.
const (
	statePending int32 = iota
	stateRunning
	stateComplete
)

type tasklet struct {
	ctx    context.Context
	task   Task
	state  atomic.Int32
	result *Result
	err    error
	done   chan struct{}
}

func (t *tasklet) complete(result *Result, err error) {
	t.result = result
	t.err = err
	t.state.Store(stateComplete)
	close(t.done)
}

// Future is the caller's handle on a submitted conversion.
type Future struct {
	t *tasklet
}

// Poll returns the result if the conversion has completed.
func (f *Future) Poll() (*Result, bool) {
	if f.t.state.Load() != stateComplete {
		return nil, false
	}
	return f.t.result, true
}

// Await blocks until the conversion completes or ctx expires. A nil error
// with a nil result cannot happen; conversion errors are returned as-is.
func (f *Future) Await(ctx context.Context) (*Result, error) {
	select {
	case <-f.t.done:
		return f.t.result, f.t.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Scheduler runs conversion tasklets. Start launches the promotion loop;
// Stop halts promotion and joins the loop and all running tasklets.
type Scheduler struct {
	engine     *augment.Engine
	gen        *marc.Generator
	global     *config.GlobalParams
	logger     *zap.Logger
	maxRunning int
	tick       time.Duration

	mu       sync.Mutex
	queue    []*tasklet
	running  atomic.Int32
	stop     chan struct{}
	loopDone chan struct{}
	wg       sync.WaitGroup
}

// Option adjusts scheduler construction.
type Option func(*Scheduler)

// WithMaxRunning caps concurrent conversions.
func WithMaxRunning(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.maxRunning = n
		}
	}
}

// WithTick overrides the promotion loop interval.
func WithTick(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.tick = d
		}
	}
}

// NewScheduler builds a stopped scheduler.
func NewScheduler(engine *augment.Engine, gen *marc.Generator, global *config.GlobalParams, logger *zap.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		engine:     engine,
		gen:        gen,
		global:     global,
		logger:     logger,
		maxRunning: defaultMaxRunning,
		tick:       defaultTick,
		stop:       make(chan struct{}),
		loopDone:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the promotion loop.
func (s *Scheduler) Start() {
	go s.loop()
}

// Stop halts promotion and waits for the loop and every running tasklet.
// Tasklets still queued stay pending forever; submit nothing after Stop.
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.loopDone
	s.wg.Wait()
}

// Submit queues one conversion and returns its future. ctx bounds the
// conversion's authority lookups once the tasklet runs.
func (s *Scheduler) Submit(ctx context.Context, task Task) *Future {
	t := &tasklet{ctx: ctx, task: task, done: make(chan struct{})}
	s.mu.Lock()
	s.queue = append(s.queue, t)
	s.mu.Unlock()
	return &Future{t: t}
}

func (s *Scheduler) loop() {
	defer close(s.loopDone)
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.promote()
		}
	}
}

// promote moves queued tasklets into execution while below the cap.
func (s *Scheduler) promote() {
	for {
		if int(s.running.Load()) >= s.maxRunning {
			return
		}
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		t := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		s.running.Add(1)
		metrics.IncTaskletsRunning()
		t.state.Store(stateRunning)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer metrics.DecTaskletsRunning()
			defer s.running.Add(-1)
			s.run(t)
		}()
	}
}

// run converts one translator response.
func (s *Scheduler) run(t *tasklet) {
	items, err := augment.ItemsFromJSON(t.task.Body)
	if err == nil {
		items, err = augment.MergeNotes(items)
	}
	if err != nil {
		metrics.ObserveError(t.task.Journal.Name, string(report.Classify(err)))
		t.complete(nil, err)
		return
	}
	if len(items) == 0 {
		s.logger.Warn("no items in translator response",
			zap.String("journal", t.task.Journal.Name),
			zap.String("url", t.task.URL))
	}

	// Field rewrites apply to the whole response before any item is
	// interpreted.
	for _, item := range items {
		augment.ApplyFieldRules(item, t.task.Journal)
	}

	result := &Result{}
	for _, item := range items {
		s.convertItem(t.ctx, item, &t.task, result)
	}
	t.complete(result, nil)
}

func (s *Scheduler) convertItem(ctx context.Context, item augment.Item, task *Task, result *Result) {
	journal := task.Journal

	if field, excluded := augment.MatchesExclusion(item, journal); excluded {
		result.FilterSkips++
		metrics.ObserveSkip(journal.Name, "filter")
		s.logger.Debug("item excluded by field filter",
			zap.String("journal", journal.Name),
			zap.String("field", field))
		return
	}

	rec, err := s.engine.Augment(ctx, item, journal, task.Group)
	if err != nil {
		s.failItem(task, result, err)
		return
	}
	if rec.URL == "" {
		s.failItem(task, result, fmt.Errorf("no URL set for item from %s", task.URL))
		return
	}

	if augment.ExcludeOnlineFirst(rec, s.global.SkipOnlineFirstUncond) {
		result.OnlineFirstSkips++
		metrics.ObserveSkip(journal.Name, "online_first")
		return
	}
	if augment.ExcludeEarlyView(rec) {
		result.EarlyViewSkips++
		metrics.ObserveSkip(journal.Name, "early_view")
		return
	}

	record, hash, err := s.gen.Generate(rec, task.URL, journal, task.Group)
	if err != nil {
		s.failItem(task, result, err)
		return
	}

	if filter, excluded := marc.MatchesExclusionFilters(record, journal); excluded {
		result.FilterSkips++
		metrics.ObserveSkip(journal.Name, "filter")
		s.logger.Debug("record excluded by field filter",
			zap.String("journal", journal.Name),
			zap.String("filter", filter))
		return
	}

	result.Records = append(result.Records, GeneratedRecord{Record: record, Hash: hash})
	s.logger.Debug("generated record",
		zap.String("journal", journal.Name),
		zap.String("hash", hash))
}

func (s *Scheduler) failItem(task *Task, result *Result, err error) {
	result.Errors = append(result.Errors, err)
	metrics.ObserveError(task.Journal.Name, string(report.Classify(err)))
	s.logger.Warn("could not convert item",
		zap.String("journal", task.Journal.Name),
		zap.String("url", task.URL),
		zap.Error(err))
}
