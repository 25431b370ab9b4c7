// Package app wires configuration into a ready scraper.Service for the
// command line tools.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/maltedev/catalog-price-scraper/internal/batch"
	"github.com/maltedev/catalog-price-scraper/internal/browser"
	"github.com/maltedev/catalog-price-scraper/internal/config"
	"github.com/maltedev/catalog-price-scraper/internal/events"
	"github.com/maltedev/catalog-price-scraper/internal/metrics"
	"github.com/maltedev/catalog-price-scraper/internal/scraper"
)

// App owns the long-lived resources behind a Service.
type App struct {
	Service *scraper.Service
	Metrics *metrics.Metrics

	closers []func() error
	logger  *slog.Logger
}

// Deps lets callers replace the launcher or the Redis client.
type Deps struct {
	Launcher browser.Launcher
	Redis    events.RedisClient
	Reporter batch.Reporter
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, deps Deps) (*App, error) {
	a := &App{
		Metrics: metrics.New(),
		logger:  logger.With("component", "app"),
	}

	launcher := deps.Launcher
	if launcher == nil {
		l, err := a.launcher(cfg)
		if err != nil {
			return nil, err
		}
		launcher = l
	}

	var publisher scraper.Publisher
	client := deps.Redis
	if client == nil && cfg.Redis.Addr != "" {
		rc := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rc.Ping(ctx).Err(); err != nil {
			rc.Close()
			a.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		client = rc
	}
	if client != nil {
		pub := events.NewPublisher(client, events.Config{
			PriceStream:        cfg.Redis.PriceStream,
			AvailabilityStream: cfg.Redis.AvailabilityStream,
			MaxLen:             cfg.Redis.MaxLen,
		}, logger)
		a.closers = append(a.closers, pub.Close)
		publisher = pub
		a.logger.Info("publishing outcomes to redis", "price_stream", cfg.Redis.PriceStream,
			"availability_stream", cfg.Redis.AvailabilityStream)
	}

	priceWait, err := browser.ParseWaitCondition(cfg.Scraper.PriceWaitUntil)
	if err != nil {
		a.Close()
		return nil, err
	}
	availWait, err := browser.ParseWaitCondition(cfg.Scraper.AvailabilityWaitUntil)
	if err != nil {
		a.Close()
		return nil, err
	}

	svc, err := scraper.NewService(scraper.Options{
		Launcher:              launcher,
		Policy:                cfg.RetryPolicy(),
		NavigationTimeout:     cfg.Scraper.NavigationTimeout,
		PriceWaitUntil:        priceWait,
		AvailabilityWaitUntil: availWait,
		Workers:               cfg.Scraper.Workers,
		Reporter:              deps.Reporter,
		Publisher:             publisher,
		Logger:                logger,
		Metrics:               a.Metrics,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Service = svc

	return a, nil
}

func (a *App) launcher(cfg *config.Config) (browser.Launcher, error) {
	opts := cfg.BrowserOptions()

	switch cfg.Scraper.Backend {
	case config.BackendHTTP:
		a.logger.Info("using http backend")
		return browser.NewHTTPLauncher(&http.Client{}, opts), nil
	default:
		b, err := browser.New(opts)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize browser: %w", err)
		}
		a.closers = append(a.closers, b.Close)
		a.logger.Info("using playwright backend", "headless", opts.Headless)
		return b, nil
	}
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
