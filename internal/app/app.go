// Package app wires the harvester's components from configuration and owns
// their lifecycles. Construction is all-or-nothing: any component that fails
// to initialize aborts startup, and Close releases everything that was built
// in reverse order.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/openbiblio/zotero-harvester/internal/api"
	"github.com/openbiblio/zotero-harvester/internal/augment"
	"github.com/openbiblio/zotero-harvester/internal/authority"
	"github.com/openbiblio/zotero-harvester/internal/clock/system"
	"github.com/openbiblio/zotero-harvester/internal/config"
	"github.com/openbiblio/zotero-harvester/internal/convert"
	"github.com/openbiblio/zotero-harvester/internal/crawl"
	"github.com/openbiblio/zotero-harvester/internal/database"
	"github.com/openbiblio/zotero-harvester/internal/feeds"
	"github.com/openbiblio/zotero-harvester/internal/harvest"
	"github.com/openbiblio/zotero-harvester/internal/id/uuid"
	"github.com/openbiblio/zotero-harvester/internal/logging"
	"github.com/openbiblio/zotero-harvester/internal/marc"
	"github.com/openbiblio/zotero-harvester/internal/metrics"
	"github.com/openbiblio/zotero-harvester/internal/progress"
	"github.com/openbiblio/zotero-harvester/internal/publisher"
	"github.com/openbiblio/zotero-harvester/internal/report"
	"github.com/openbiblio/zotero-harvester/internal/storage"
	"github.com/openbiblio/zotero-harvester/internal/tracking"
	"github.com/openbiblio/zotero-harvester/internal/translation"
)

// App is the assembled harvester.
type App struct {
	Cfg      config.Config
	Journals *config.HarvesterConfig
	Logger   *zap.Logger

	Client    *translation.Client
	Scheduler *convert.Scheduler
	Tracker   tracking.Tracker
	FeedStore feeds.Store
	Store     storage.Provider
	Publisher publisher.Publisher
	Reporter  *report.Collector
	Hub       *progress.Hub
	Harvester *harvest.Harvester
	Server    *api.Server

	db       database.Provider
	renderer *crawl.Renderer
}

// New builds the full component graph from configuration.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, err
	}
	metrics.Init()

	a := &App{Cfg: cfg, Logger: logger}
	if err := a.build(ctx); err != nil {
		a.Close(ctx)
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.Cfg

	journals, err := config.LoadJournals(cfg.Harvest.JournalConfigPath)
	if err != nil {
		return err
	}
	a.Journals = journals
	a.Logger.Info("journal config loaded",
		zap.Int("journals", len(journals.Journals)),
		zap.Int("groups", len(journals.Groups)))

	if err := a.buildStores(ctx); err != nil {
		return err
	}

	a.Client, err = translation.New(translation.Config{
		BaseURL:           journals.Global.TranslationServerURL,
		Timeout:           cfg.TranslationTimeout(),
		ConversionTimeout: cfg.ConversionTimeout(),
		MinProcessingTime: cfg.MinProcessingTime(),
	}, a.Logger)
	if err != nil {
		return err
	}

	lookup := authority.New(authority.Config{}, a.Logger)
	names := augment.NewNameNormalizer(journals.Global.AuthorNameBlacklist)
	engine := augment.NewEngine(lookup, names, a.Logger)

	a.Scheduler = convert.NewScheduler(engine, marc.NewGenerator(a.Logger), &journals.Global,
		a.Logger, convert.WithMaxRunning(cfg.Harvest.MaxTasklets))
	a.Scheduler.Start()

	crawler, err := a.buildCrawler()
	if err != nil {
		return err
	}

	if err := a.buildOutputs(ctx); err != nil {
		return err
	}

	a.Reporter = report.NewCollector(a.Logger)

	sinks := []progress.Sink{progress.NewLogSink(a.Logger)}
	if cfg.Harvest.ProgressFile != "" {
		sinks = append(sinks, progress.NewFileSink(cfg.Harvest.ProgressFile))
	}
	a.Hub = progress.NewHub(progress.Config{Logger: a.Logger}, sinks...)

	a.Harvester, err = harvest.New(harvest.Options{
		Config:       journals,
		Client:       a.Client,
		Scheduler:    a.Scheduler,
		Tracker:      a.Tracker,
		FeedStore:    a.FeedStore,
		Crawler:      crawler,
		Store:        a.Store,
		Publisher:    a.Publisher,
		Reporter:     a.Reporter,
		Emitter:      a.Hub,
		Clock:        system.New(),
		IDs:          uuid.NewUUIDGenerator(),
		Logger:       a.Logger,
		OutputFormat: cfg.Harvest.OutputFormat,
		TestMode:     cfg.Harvest.TestMode,
	})
	if err != nil {
		return err
	}

	if cfg.Server.Enabled {
		a.Server = api.New(api.Config{Addr: fmt.Sprintf(":%d", cfg.Server.Port)},
			a.Harvester.Registry(), a.Logger, a.readinessChecks()...)
	}
	return nil
}

// buildStores selects persistence: Postgres when a DSN is configured, memory
// otherwise. The tracking store and the feed state share one pool.
func (a *App) buildStores(ctx context.Context) error {
	if a.Cfg.DB.DSN == "" {
		a.db = database.NoOpProvider{}
		a.Tracker = tracking.NewMemoryTracker()
		a.FeedStore = feeds.NewMemoryStore()
		a.Logger.Warn("no database configured, delivery tracking is in-memory only")
		return nil
	}

	db, err := database.New(ctx, database.Config{DSN: a.Cfg.DB.DSN})
	if err != nil {
		return err
	}
	a.db = db
	if a.Tracker, err = tracking.NewPostgresTracker(db.Pool(), a.Logger); err != nil {
		return err
	}
	if a.FeedStore, err = feeds.NewPostgresStore(db.Pool()); err != nil {
		return err
	}
	return nil
}

func (a *App) buildCrawler() (*crawl.Crawler, error) {
	var detector *crawl.Detector
	if a.Cfg.Headless.Enabled {
		renderer, err := crawl.NewRenderer(crawl.RendererConfig{
			MaxParallel: a.Cfg.Headless.MaxParallel,
			NavTimeout:  time.Duration(a.Cfg.Headless.NavTimeoutSec) * time.Second,
		}, a.Logger)
		if err != nil {
			return nil, err
		}
		a.renderer = renderer
		detector = crawl.NewDetector(0, nil, nil)
	}
	return crawl.New(crawl.Config{IgnoreRobots: a.Cfg.Harvest.IgnoreRobots},
		a.renderer, detector, a.Logger), nil
}

// buildOutputs selects the record store and the delivery notification
// publisher.
func (a *App) buildOutputs(ctx context.Context) error {
	if a.Cfg.Storage.GCSBucket != "" {
		gcs, err := storage.NewGCSProvider(ctx, a.Cfg.Storage.GCSBucket, a.Logger)
		if err != nil {
			return err
		}
		a.Store = storage.Prefixed(gcs, a.Cfg.Storage.Prefix)
	} else {
		local, err := storage.NewLocalProvider(a.Cfg.Storage.Directory)
		if err != nil {
			return err
		}
		a.Store = storage.Prefixed(local, a.Cfg.Storage.Prefix)
	}

	if a.Cfg.PubSub.TopicName != "" {
		pub, err := publisher.NewPubSubPublisher(ctx, a.Cfg.PubSub.ProjectID, a.Cfg.PubSub.TopicName, a.Logger)
		if err != nil {
			return err
		}
		a.Publisher = pub
	} else {
		a.Publisher = publisher.NoOpPublisher{}
	}
	return nil
}

func (a *App) readinessChecks() []api.ReadinessCheck {
	var checks []api.ReadinessCheck
	if pool := a.db.Pool(); pool != nil {
		checks = append(checks, func(ctx context.Context) error {
			return pool.Ping(ctx)
		})
	}
	return checks
}

// Close tears components down in reverse construction order. Safe on a
// partially built App.
func (a *App) Close(ctx context.Context) {
	if a.Server != nil {
		if err := a.Server.Shutdown(ctx); err != nil {
			a.Logger.Warn("status server shutdown", zap.Error(err))
		}
	}
	if a.Hub != nil {
		if err := a.Hub.Close(ctx); err != nil {
			a.Logger.Warn("progress hub close", zap.Error(err))
		}
	}
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}
	if a.renderer != nil {
		a.renderer.Close()
	}
	if a.Publisher != nil {
		if err := a.Publisher.Close(); err != nil {
			a.Logger.Warn("publisher close", zap.Error(err))
		}
	}
	if a.Tracker != nil {
		a.Tracker.Close()
	}
	if a.FeedStore != nil {
		a.FeedStore.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
	_ = a.Logger.Sync()
}
