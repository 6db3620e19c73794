// Package app initializes and holds long-lived application services, acting
// as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/madun/platform-nlp-dqm/internal/api"
	"github.com/madun/platform-nlp-dqm/internal/browser"
	"github.com/madun/platform-nlp-dqm/internal/clock/system"
	"github.com/madun/platform-nlp-dqm/internal/config"
	"github.com/madun/platform-nlp-dqm/internal/enrich"
	"github.com/madun/platform-nlp-dqm/internal/lexicon"
	"github.com/madun/platform-nlp-dqm/internal/logging"
	"github.com/madun/platform-nlp-dqm/internal/pipeline"
	"github.com/madun/platform-nlp-dqm/internal/quality"
	"github.com/madun/platform-nlp-dqm/internal/ratelimit"
	"github.com/madun/platform-nlp-dqm/internal/storage/memory"
	"github.com/madun/platform-nlp-dqm/internal/storage/postgres"
	"github.com/madun/platform-nlp-dqm/internal/youtube"
)

// Store is the full storage surface the application needs: the pipeline write
// side plus the read API. Both the postgres and the in-memory store satisfy it.
type Store interface {
	pipeline.Store
	api.Reader
}

// App holds the shared, long-lived services. It is initialized once at
// startup and passed to the commands that need it.
type App struct {
	cfg          config.Config
	logger       *zap.Logger
	store        Store
	whitelist    pipeline.WhitelistStore
	clock        pipeline.Clock
	orchestrator *pipeline.Orchestrator
	closers      []func()
}

// New builds the service graph from configuration. It fails fast if any
// critical service cannot be initialized.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &App{
		cfg:    cfg,
		logger: logger,
		clock:  system.Clock{},
	}

	if cfg.DB.DSN != "" {
		logger.Info("connecting to postgres")
		pg, err := postgres.NewStore(ctx, postgres.Config{
			DSN:             cfg.DB.DSN,
			MaxConns:        cfg.DB.MaxConns,
			MinConns:        cfg.DB.MinConns,
			MaxConnLifetime: time.Duration(cfg.DB.MaxConnLifetimeMin) * time.Minute,
		})
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
		a.store = pg
		a.whitelist = pg
		a.closers = append(a.closers, pg.Close)
	} else {
		logger.Info("no database configured, using in-memory store")
		a.store = memory.NewStore()
		a.whitelist = memory.NewWhitelist(whitelistEntries(cfg.YouTube.Targets)...)
	}

	gate := quality.NewGate(a.store, a.clock, logger, cfg.Quality.Weights, cfg.Quality.Thresholds)
	analyzer := enrich.NewAnalyzer(lexicon.Default(), enrich.AnalyzerConfig{
		ThresholdHigh: cfg.Sentiment.ThresholdHigh,
		ThresholdLow:  cfg.Sentiment.ThresholdLow,
		TopKeywords:   cfg.Sentiment.TopKeywords,
	})
	enricher := enrich.NewEngine(a.store, analyzer, a.clock, logger, cfg.Enrichment.Workers)

	orch, err := pipeline.NewOrchestrator(a.store, gate, enricher, a.clock, logger, cfg.Enrichment.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("init orchestrator: %w", err)
	}
	a.orchestrator = orch

	logger.Info("application services initialized")
	return a, nil
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config {
	return a.cfg
}

// Store exposes the storage layer, including the read API surface.
func (a *App) Store() Store {
	return a.store
}

// Orchestrator returns the pipeline orchestrator.
func (a *App) Orchestrator() *pipeline.Orchestrator {
	return a.orchestrator
}

// Acquirer builds the acquisition engine for the platform. Each engine gets
// its own throttle and backoff policy so platforms never share rate-limit
// state.
func (a *App) Acquirer(platform pipeline.Platform) (pipeline.Acquirer, error) {
	throttle := ratelimit.NewThrottle(a.cfg.RequestInterval(), a.clock)
	backoff := ratelimit.NewBackoffPolicy(a.cfg.BackoffBase(), a.cfg.RateLimit.BackoffMaxAttempts)
	backoff.Platform = string(platform)

	switch platform {
	case pipeline.PlatformTwitter:
		if !a.cfg.Browser.Enabled {
			return nil, errors.New("browser engine is disabled")
		}
		bc := a.cfg.Browser
		factory := func() (browser.Driver, error) {
			return browser.NewChromeDriver(browser.DriverConfig{
				UserAgent:  bc.UserAgent,
				Headless:   bc.Headless,
				NavTimeout: time.Duration(bc.NavTimeoutSec) * time.Second,
			}, a.logger)
		}
		return browser.NewEngine(factory, browser.Config{
			BaseURL:            bc.BaseURL,
			Username:           bc.Username,
			Password:           bc.Password,
			Verification:       bc.Verification,
			Keywords:           bc.Keywords,
			MaxItemsPerKeyword: bc.MaxItemsPerKeyword,
			StagnationLimit:    bc.StagnationLimit,
			ScrollDelay:        time.Duration(bc.ScrollDelaySec) * time.Second,
			MaxDeferred:        bc.MaxDeferred,
		}, throttle, backoff, a.clock, a.logger)

	case pipeline.PlatformYouTube:
		if !a.cfg.YouTube.Enabled {
			return nil, errors.New("youtube engine is disabled")
		}
		yc := a.cfg.YouTube
		quota := youtube.NewQuotaTracker(yc.QuotaBudget, a.logger)
		client, err := youtube.NewClient(youtube.ClientConfig{
			APIKey:  yc.APIKey,
			BaseURL: yc.BaseURL,
		}, quota, a.logger)
		if err != nil {
			return nil, fmt.Errorf("init youtube client: %w", err)
		}
		return youtube.NewEngine(client, a.whitelist, quota, throttle, backoff, a.clock, youtube.EngineConfig{
			MaxCommentsPerVideo: yc.MaxCommentsPerVideo,
			MaxVideosPerChannel: yc.MaxVideosPerChannel,
			CommentPageSize:     yc.CommentPageSize,
		}, a.logger)

	default:
		return nil, fmt.Errorf("unknown platform %q", platform)
	}
}

// APIServer builds the read-only HTTP server over the store.
func (a *App) APIServer() *api.Server {
	return api.NewServer(a.store, a.logger)
}

// Close shuts down services and flushes the logger.
func (a *App) Close() {
	a.logger.Info("shutting down application services")
	for _, closeFn := range a.closers {
		closeFn()
	}
	// Best effort; stderr sync fails on some platforms.
	_ = a.logger.Sync()
}

func whitelistEntries(targets []config.TargetConfig) []pipeline.WhitelistEntry {
	entries := make([]pipeline.WhitelistEntry, 0, len(targets))
	for _, t := range targets {
		entries = append(entries, pipeline.WhitelistEntry{
			Type:     pipeline.WhitelistTargetType(t.Type),
			TargetID: t.ID,
			Priority: t.Priority,
			MaxItems: t.MaxItems,
			Active:   true,
		})
	}
	return entries
}
