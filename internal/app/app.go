// Package app builds the extraction engine from configuration. Both the
// HTTP server and the CLI start from here.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kiranshivaraju/reelscraper/internal/browser"
	"github.com/kiranshivaraju/reelscraper/internal/browser/chromium"
	"github.com/kiranshivaraju/reelscraper/internal/browser/sim"
	"github.com/kiranshivaraju/reelscraper/internal/cache"
	"github.com/kiranshivaraju/reelscraper/internal/config"
	"github.com/kiranshivaraju/reelscraper/internal/diagnostics"
	"github.com/kiranshivaraju/reelscraper/internal/extract"
	"github.com/kiranshivaraju/reelscraper/internal/iterate"
	"github.com/kiranshivaraju/reelscraper/internal/jobs"
	"github.com/kiranshivaraju/reelscraper/internal/locator"
	"github.com/kiranshivaraju/reelscraper/internal/navigation"
	"github.com/kiranshivaraju/reelscraper/internal/progress"
	"github.com/kiranshivaraju/reelscraper/internal/session"
	"github.com/kiranshivaraju/reelscraper/internal/sink"
	"github.com/kiranshivaraju/reelscraper/internal/store"
	"github.com/kiranshivaraju/reelscraper/pkg/links"
)

// Engine is the fully wired extraction engine.
type Engine struct {
	Config   *config.Config
	Links    links.Builder
	Sessions *session.Manager
	Runner   *jobs.Runner
	Service  *jobs.Service
	Tracker  progress.Tracker
	Sink     sink.Sink
	// Cache is nil unless a redis backend is configured.
	Cache cache.Cache

	orchestrator *jobs.Orchestrator
	closers      []func()
}

// New builds an Engine. Backends that need a connection are dialled and
// checked here so misconfiguration fails at startup.
func New(ctx context.Context, cfg *config.Config) (*Engine, error) {
	e := &Engine{Config: cfg}
	if err := e.build(ctx); err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

func (e *Engine) build(ctx context.Context) error {
	cfg := e.Config

	launcher, baseURL, err := newLauncher(cfg)
	if err != nil {
		return err
	}
	e.Links = links.New(baseURL)

	catalog, err := loadCatalog(cfg.Scraper.SelectorsFile)
	if err != nil {
		return err
	}

	var js jobs.JobStore
	var recorder progress.Recorder
	switch cfg.Storage.Backend {
	case "postgres":
		pool, err := store.Connect(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		e.closers = append(e.closers, pool.Close)
		if err := store.RunMigrations(cfg.Database.URL); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		pg := store.NewPostgresStore(pool)
		js = pg
		recorder = pg
		e.Sink = sink.NewPostgresSink(pg)
		slog.Info("database connected, migrations applied")
	default:
		e.Sink = sink.NewFileSink(cfg.Storage.OutputDir)
	}

	switch cfg.Progress.Backend {
	case "redis":
		rc, err := cache.NewRedisCache(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("create redis cache: %w", err)
		}
		e.closers = append(e.closers, func() { rc.Close() })
		if err := rc.Ping(ctx); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		e.Cache = rc
		e.Tracker = progress.NewRedisTracker(rc, cfg.Progress.TTL)
		slog.Info("redis connected")
	default:
		e.Tracker = progress.NewMemoryTracker(progress.WithTTL(cfg.Progress.TTL))
	}
	if recorder != nil {
		e.Tracker = progress.NewMirrored(e.Tracker, recorder)
	}

	var diag diagnostics.Hook = diagnostics.Nop{}
	if cfg.Scraper.DiagnosticsDir != "" {
		diag = diagnostics.FileCapture{Dir: cfg.Scraper.DiagnosticsDir}
	}

	timeouts := navigation.DefaultTimeouts()
	wait := cfg.Scraper.Wait

	e.Sessions = session.NewManager(
		launcher,
		session.FileArtifacts{Path: cfg.Scraper.SessionStatePath},
		catalog,
		e.Links,
		session.Credentials{Identity: cfg.Scraper.Username, Secret: cfg.Scraper.Password},
		diag,
		session.Config{Wait: wait, Timeouts: timeouts},
	)

	nav := navigation.NewController(e.Links, catalog, diag, navigation.Config{
		Retries:    cfg.Scraper.NavRetries,
		RetryDelay: cfg.Scraper.NavRetryDelay,
		Settle:     wait,
		Timeouts:   timeouts,
	})

	counter, err := extract.NormalizerFor(cfg.Scraper.CounterLocale)
	if err != nil {
		return err
	}
	extractor := extract.New(catalog, counter, extract.Config{
		Settle:           wait,
		MinCaptionLength: cfg.Scraper.MinCaptionLength,
	})
	items := iterate.New(catalog, extractor, iterate.Config{Wait: wait})

	e.orchestrator = jobs.NewOrchestrator(e.Sessions, nav, items, catalog, e.Links, e.Sink, e.Tracker,
		jobs.Config{Settle: wait, Timeouts: timeouts})
	e.Runner = jobs.NewRunner(e.orchestrator, e.Tracker, js, jobs.RunnerConfig{
		MaxConcurrent: int64(cfg.Jobs.MaxConcurrent),
		MaxItemLimit:  cfg.Jobs.MaxItemLimit,
	})
	e.Service = jobs.NewService(e.Tracker, js, e.Sink)

	slog.Info("engine ready",
		"driver", cfg.Browser.Driver,
		"storage", cfg.Storage.Backend,
		"progress", cfg.Progress.Backend,
		"max_concurrent_jobs", cfg.Jobs.MaxConcurrent)
	return nil
}

// Shutdown stops accepting jobs and waits for running ones to release
// their browsers.
func (e *Engine) Shutdown(ctx context.Context) error {
	if e.Runner == nil {
		return nil
	}
	return e.Runner.Shutdown(ctx)
}

// Close releases backend connections in reverse order of acquisition.
func (e *Engine) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
	e.closers = nil
}

// newLauncher returns the configured browser launcher and the base URL the
// engine should address. The sim driver serves its own base URL.
func newLauncher(cfg *config.Config) (browser.Launcher, string, error) {
	switch cfg.Browser.Driver {
	case "sim":
		site, err := sim.LoadSite(cfg.Browser.SimSiteDir)
		if err != nil {
			return nil, "", fmt.Errorf("load sim site: %w", err)
		}
		return sim.Launcher{Site: site}, site.BaseURL, nil
	case "chromium":
		return chromium.NewLauncher(chromium.Options{
			Bin:        cfg.Browser.Bin,
			ControlURL: cfg.Browser.ControlURL,
			Headless:   cfg.Browser.Headless,
			Locale:     cfg.Browser.Locale,
		}), cfg.Scraper.BaseURL, nil
	default:
		return nil, "", fmt.Errorf("unknown browser driver %q", cfg.Browser.Driver)
	}
}

func loadCatalog(path string) (*locator.Catalog, error) {
	if path == "" {
		return locator.DefaultCatalog()
	}
	c, err := locator.LoadCatalog(path)
	if err != nil {
		return nil, fmt.Errorf("load selectors: %w", err)
	}
	return c, nil
}
