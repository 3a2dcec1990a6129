// Command cinequeued is the headless daemon entrypoint: it loads
// configuration, opens the catalog, wires every worker (C2-C11), and
// serves a minimal health/readiness endpoint. Grounded on the
// teacher's cmd/slipstream/main.go wiring style (config.Load, logger.New,
// construct-then-inject every service, echo for the HTTP surface).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/cinequeue/cinequeue/internal/catalog"
	"github.com/cinequeue/cinequeue/internal/config"
	"github.com/cinequeue/cinequeue/internal/decisioning"
	"github.com/cinequeue/cinequeue/internal/downloader"
	"github.com/cinequeue/cinequeue/internal/downloader/qbittorrent"
	"github.com/cinequeue/cinequeue/internal/downloader/sabnzbd"
	"github.com/cinequeue/cinequeue/internal/eventbus"
	"github.com/cinequeue/cinequeue/internal/importer"
	"github.com/cinequeue/cinequeue/internal/indexer"
	"github.com/cinequeue/cinequeue/internal/listsync"
	"github.com/cinequeue/cinequeue/internal/logger"
	"github.com/cinequeue/cinequeue/internal/prowlarr"
	"github.com/cinequeue/cinequeue/internal/queue"
	"github.com/cinequeue/cinequeue/internal/reputation"
	"github.com/cinequeue/cinequeue/internal/rsssync"
	"github.com/cinequeue/cinequeue/internal/scheduler"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "cinequeued:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(logger.Config{
		Level: cfg.Logging.Level, Format: cfg.Logging.Format, Path: cfg.Logging.Path,
		MaxSizeMB: cfg.Logging.MaxSizeMB, MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays, Compress: cfg.Logging.Compress,
	})
	defer log.Close()

	store, err := catalog.Open(cfg.Database.Path, log.Logger)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer store.Close()

	bus := eventbus.New(log.Logger)
	q := queue.New(store.DB(), queue.BackoffConfig{Base: cfg.Queue.BackoffBase, Max: cfg.Queue.BackoffMax}, log.Logger)

	indexerPool := buildIndexerPool(cfg, log.Logger)
	downloadClients, err := buildDownloadClients(cfg)
	if err != nil {
		return fmt.Errorf("build download clients: %w", err)
	}

	prober := importer.NewProber("ffprobe")
	pipeline := importer.NewPipeline(store, prober, bus, importer.Config{
		RuntimeTolerance:   time.Duration(cfg.Import.RuntimeToleranceMinutes) * time.Minute,
		AllowSuspect:       cfg.Import.AllowSuspect,
		MaxParallelImports: cfg.Import.MaxParallelImports,
		FolderTemplate:     importer.DefaultConfig().FolderTemplate,
		FileNameTemplate:   cfg.Import.TemplateMovie,
		VerifyContentHash:  cfg.Import.CrossFilesystemFallback == "copy-hash-verify",
	}, log.Logger)

	monitor := downloader.NewMonitor(store, downloadClients, q, bus, log.Logger)
	reputationCache := reputation.New(store.Reputation, reputation.DefaultConfig())

	rssWatcher := rsssync.New(store, indexerPool, q, reputationCache, cfg.Routing.DefaultDownloadClientID, rsssync.Config{
		LookbackWindow: cfg.RSS.LookbackWindow, BackoffThreshold: cfg.RSS.BackoffThreshold,
		MaxReleasesPerFeed: cfg.RSS.MaxReleasesPerFeed,
	}, log.Logger)

	var listSyncService *listsync.Service
	if len(cfg.ListSync.Lists) > 0 {
		lists, lerr := buildLists(cfg)
		if lerr != nil {
			return fmt.Errorf("build list-sync lists: %w", lerr)
		}
		source := listsync.NewHTTPSource(listsync.Config{RequestTimeout: cfg.ListSync.RequestTimeout, MaxEntries: cfg.ListSync.MaxEntries})
		listSyncService = listsync.New(store, source, bus, lists, listsync.Config{
			RequestTimeout: cfg.ListSync.RequestTimeout, MaxEntries: cfg.ListSync.MaxEntries,
		}, log.Logger)
	}

	schedCfg := scheduler.DefaultConfig()
	schedCfg.WorkerID = "cinequeued"
	schedCfg.LeaseDuration = cfg.Job.LeaseDuration
	schedCfg.ReapInterval = cfg.Health.ReapInterval
	schedCfg.MonitorInterval = cfg.Download.MonitorPollActive
	schedCfg.RssSyncInterval = cfg.RSS.SyncInterval
	schedCfg.Concurrency = map[catalog.JobKind]int{
		catalog.JobKindSearch: cfg.Worker.Search, catalog.JobKindGrab: cfg.Worker.Grab,
		catalog.JobKindMonitor: cfg.Worker.Monitor, catalog.JobKindImport: cfg.Worker.Import,
		catalog.JobKindRefresh: cfg.Worker.Grab, catalog.JobKindListSync: cfg.Worker.ListSync,
	}

	sched, err := scheduler.New(schedCfg, scheduler.Dependencies{
		Store: store, Queue: q, Bus: bus, Indexers: indexerPool, Importer: pipeline, Monitor: monitor,
		DownloadClients: downloadClients, DefaultDownloadClientID: cfg.Routing.DefaultDownloadClientID,
		ReputationCache: reputationCache, RssSync: rssWatcher, ListSync: wrapListSync(listSyncService),
	}, log.Logger)
	if err != nil {
		return fmt.Errorf("build scheduler: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go bus.Run(ctx)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	e := newHealthServer(store)
	go func() {
		if err := e.Start(":8181"); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("health server stopped unexpectedly")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.Grace+cfg.Shutdown.CancelGrace)
	defer cancel()
	_ = e.Shutdown(shutdownCtx)

	return sched.Stop(cfg.Shutdown.Grace)
}

// newHealthServer serves the minimal health/readiness endpoint
// SPEC_FULL.md §6 calls for, using the teacher's echo web framework
// with the REST surface itself left as future/adapter work.
func newHealthServer(store *catalog.Store) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/readyz", func(c echo.Context) error {
		if err := store.DB().PingContext(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "database unavailable"})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ready"})
	})
	return e
}

func buildIndexerPool(cfg *config.Config, log zerolog.Logger) *indexer.Pool {
	pool := indexer.NewPool(indexer.PoolConfig{
		PerIndexerTimeout: cfg.Indexer.RequestTimeout,
		AggregateTimeout:  cfg.Indexer.AggregateTimeout,
	}, log)

	for _, ic := range cfg.Indexers {
		if !ic.Enabled {
			continue
		}
		inst := indexer.Instance{
			ID: ic.ID, Name: ic.Name, Host: ic.Host, BaseURL: ic.BaseURL, APIKey: ic.APIKey,
			Categories: ic.Categories, Priority: ic.Priority, Protocol: decisioning.ProtocolTorrent, Enabled: ic.Enabled,
		}
		adapter, err := prowlarr.NewAdapter(inst, log)
		if err != nil {
			log.Warn().Err(err).Str("indexer", ic.Name).Msg("failed to build indexer adapter, skipping")
			continue
		}
		pool.Register(adapter)
	}
	return pool
}

func buildDownloadClients(cfg *config.Config) (downloader.ClientRegistry, error) {
	registry := downloader.StaticRegistry{}
	for _, dc := range cfg.DownloadClients {
		switch dc.Kind {
		case "qbittorrent":
			registry[dc.ID] = qbittorrent.New(qbittorrent.Config{
				BaseURL: dc.BaseURL, Username: dc.Username, Password: dc.Password, Category: dc.Category,
			})
		case "sabnzbd":
			registry[dc.ID] = sabnzbd.New(sabnzbd.Config{BaseURL: dc.BaseURL, APIKey: dc.APIKey, Category: dc.Category})
		default:
			return nil, fmt.Errorf("unknown download client kind %q for client %d", dc.Kind, dc.ID)
		}
	}
	return registry, nil
}

func buildLists(cfg *config.Config) ([]listsync.List, error) {
	lists := make([]listsync.List, 0, len(cfg.ListSync.Lists))
	for _, lc := range cfg.ListSync.Lists {
		exclusions := make(map[string]bool, len(lc.Exclusions))
		for _, key := range lc.Exclusions {
			exclusions[key] = true
		}
		strategy := listsync.ConflictStrategy(lc.Strategy)
		switch strategy {
		case listsync.StrategyKeepExisting, listsync.StrategyUseNew, listsync.StrategyIntelligent, listsync.StrategyRulesBased:
		default:
			return nil, fmt.Errorf("list %q has unknown conflict strategy %q", lc.Name, lc.Strategy)
		}
		lists = append(lists, listsync.List{
			Name: lc.Name, URL: lc.URL, Strategy: strategy, DefaultQualityProfileID: lc.DefaultQualityProfileID,
			Monitored: lc.Monitored, MinimumAvailability: catalog.Availability(lc.MinimumAvailability),
			RootPath: lc.RootPath, Exclusions: exclusions,
		})
	}
	return lists, nil
}

// wrapListSync adapts a possibly-nil *listsync.Service to a
// scheduler.ListSyncRunner, since a nil *listsync.Service boxed into
// the interface would not itself compare equal to nil.
func wrapListSync(svc *listsync.Service) scheduler.ListSyncRunner {
	if svc == nil {
		return nil
	}
	return svc
}
