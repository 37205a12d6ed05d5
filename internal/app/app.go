// Package app wires long-lived services for the wescrape binary from
// configuration and owns their shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/vinematch/vinematch/internal/clock/system"
	"github.com/vinematch/vinematch/internal/config"
	collyfetcher "github.com/vinematch/vinematch/internal/fetcher/colly"
	"github.com/vinematch/vinematch/internal/fetcher/headless"
	"github.com/vinematch/vinematch/internal/hash/sha256"
	"github.com/vinematch/vinematch/internal/id/uuid"
	"github.com/vinematch/vinematch/internal/metrics"
	memorypub "github.com/vinematch/vinematch/internal/publisher/memory"
	"github.com/vinematch/vinematch/internal/publisher/pubsub"
	"github.com/vinematch/vinematch/internal/storage/gcs"
	"github.com/vinematch/vinematch/internal/storage/local"
	"github.com/vinematch/vinematch/internal/storage/memory"
	"github.com/vinematch/vinematch/internal/storage/postgres"
	"github.com/vinematch/vinematch/internal/wescrape"
)

// App holds the scraper and the services behind it.
type App struct {
	logger  *zap.Logger
	cfg     config.Config
	scraper *wescrape.Scraper
	clock   wescrape.Clock
	closers []func(context.Context) error
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Config returns the configuration the app was built from.
func (a *App) Config() config.Config { return a.cfg }

// Scraper returns the configured scraper.
func (a *App) Scraper() *wescrape.Scraper { return a.scraper }

// Now returns the app clock's current time.
func (a *App) Now() time.Time { return a.clock.Now() }

// New builds the browser engine, optional artifact/review/notification
// backends and the metrics endpoint described by cfg. Everything opened so
// far is closed again when a later step fails.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{logger: logger, cfg: cfg, clock: system.New()}
	opts := []wescrape.Option{
		wescrape.WithLogger(logger.Named("wescrape")),
		wescrape.WithClock(a.clock),
		wescrape.WithIDGenerator(uuid.New()),
		wescrape.WithHasher(sha256.New()),
		wescrape.WithRobotsPolicy(wescrape.NewRobotsPolicy(cfg.Scraper.RespectRobots, cfg.Browser.UserAgent, logger.Named("robots"))),
	}

	browser, err := newBrowser(cfg, logger)
	if err != nil {
		return nil, err
	}

	blobs, err := a.newBlobStore(ctx)
	if err != nil {
		return nil, a.abort(err)
	}
	if blobs != nil {
		opts = append(opts, wescrape.WithBlobStore(blobs))
	}

	if cfg.DB.DSN != "" {
		store, err := postgres.NewReviewStore(ctx, postgres.Config{
			DSN:             cfg.DB.DSN,
			Table:           cfg.DB.Table,
			MaxConns:        cfg.DB.MaxConns,
			MaxConnLifetime: cfg.DB.MaxConnLifetime,
		})
		if err != nil {
			return nil, a.abort(err)
		}
		a.onClose(func(context.Context) error { store.Close(); return nil })
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, a.abort(err)
		}
		logger.Info("review store ready", zap.String("table", cfg.DB.Table))
		opts = append(opts, wescrape.WithReviewStore(store))
	}

	switch cfg.PubSub.Backend {
	case "pubsub":
		pub, err := pubsub.Dial(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return nil, a.abort(err)
		}
		a.onClose(func(context.Context) error { return pub.Close() })
		opts = append(opts, wescrape.WithPublisher(pub))
	case "memory":
		opts = append(opts, wescrape.WithPublisher(memorypub.New()))
	}

	if cfg.Metrics.ListenAddr != "" {
		srv, err := metrics.Start(cfg.Metrics.ListenAddr, logger.Named("metrics"))
		if err != nil {
			return nil, a.abort(err)
		}
		a.onClose(srv.Shutdown)
	}

	a.scraper = wescrape.New(wescrape.Config{
		BaseURL:          cfg.Scraper.BaseURL,
		ListingTimeout:   cfg.Scraper.ListingTimeout,
		DetailTimeout:    cfg.Scraper.DetailTimeout,
		MaxAttempts:      cfg.Scraper.MaxAttempts,
		MaxQPS:           cfg.Scraper.MaxQPS,
		HumanPauses:      cfg.Scraper.HumanPauses,
		SaveHTML:         cfg.Scraper.SaveHTML,
		ManualChallenge:  cfg.Browser.ManualChallenge,
		ChallengeTimeout: cfg.Browser.ChallengeTimeout,
		CooldownMin:      cfg.Browser.CooldownMin,
		CooldownMax:      cfg.Browser.CooldownMax,
		Topic:            cfg.PubSub.TopicName,
	}, browser, opts...)

	logger.Info("scraper initialized",
		zap.String("engine", cfg.Scraper.Engine),
		zap.Bool("headless", cfg.Browser.Headless),
		zap.String("storage", cfg.Storage.Backend),
		zap.String("pubsub", cfg.PubSub.Backend),
	)
	return a, nil
}

func newBrowser(cfg config.Config, logger *zap.Logger) (wescrape.Browser, error) {
	switch cfg.Scraper.Engine {
	case "http":
		return collyfetcher.New(collyfetcher.Config{
			UserAgent:      cfg.Browser.UserAgent,
			AcceptLanguage: cfg.Browser.Locale,
			Timeout:        cfg.Browser.NavTimeout,
		}), nil
	case "browser", "":
		b, err := headless.NewChromedp(headless.Config{
			Headless:          cfg.Browser.Headless,
			UserDataDir:       cfg.Browser.UserDataDir,
			ExecPath:          cfg.Browser.ExecPath,
			StorageStatePath:  cfg.Browser.StorageStatePath,
			UserAgent:         cfg.Browser.UserAgent,
			Locale:            cfg.Browser.Locale,
			TimezoneID:        cfg.Browser.TimezoneID,
			ViewportMinWidth:  cfg.Browser.ViewportMinWidth,
			ViewportMaxWidth:  cfg.Browser.ViewportMaxWidth,
			ViewportMinHeight: cfg.Browser.ViewportMinHeight,
			ViewportMaxHeight: cfg.Browser.ViewportMaxHeight,
			NavigationTimeout: cfg.Browser.NavTimeout,
		}, logger.Named("chromedp"))
		if err != nil {
			return nil, fmt.Errorf("configure browser: %w", err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown scraper engine %q", cfg.Scraper.Engine)
	}
}

func (a *App) newBlobStore(ctx context.Context) (wescrape.BlobStore, error) {
	s := a.cfg.Storage
	switch s.Backend {
	case "":
		return nil, nil
	case "memory":
		return memory.NewBlobStore(), nil
	case "local":
		store, err := local.New(local.Config{BaseDir: s.BaseDir, Prefix: s.Prefix})
		if err != nil {
			return nil, fmt.Errorf("init local storage: %w", err)
		}
		return store, nil
	case "gcs":
		store, err := gcs.Dial(ctx, gcs.Config{Bucket: s.GCSBucket, Prefix: s.Prefix})
		if err != nil {
			return nil, fmt.Errorf("init gcs storage: %w", err)
		}
		a.onClose(func(context.Context) error { return store.Close() })
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", s.Backend)
	}
}

func (a *App) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

func (a *App) abort(err error) error {
	if cerr := a.Close(context.Background()); cerr != nil {
		return errors.Join(err, cerr)
	}
	return err
}

// Close shuts services down in reverse order of creation.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("error closing services", zap.Error(err))
		return err
	}
	return nil
}
