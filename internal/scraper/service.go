package scraper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/maltedev/catalog-price-scraper/internal/batch"
	"github.com/maltedev/catalog-price-scraper/internal/browser"
	"github.com/maltedev/catalog-price-scraper/internal/metrics"
	"github.com/maltedev/catalog-price-scraper/internal/models"
	"github.com/maltedev/catalog-price-scraper/internal/retry"
)

const (
	OperationPrices       = "prices"
	OperationAvailability = "availability"

	DefaultNavigationTimeout = 30 * time.Second
)

// Publisher receives every finished outcome. Publishing errors are logged
// and never change the outcome.
type Publisher interface {
	PublishPrices(ctx context.Context, outcome models.ScrapeOutcome) error
	PublishAvailability(ctx context.Context, outcome models.AvailabilityOutcome) error
}

type Options struct {
	Launcher browser.Launcher

	// Zero values fall back to three attempts, a 5s backoff, a 30s
	// navigation timeout, load for prices and network idle for availability.
	Policy                retry.Policy
	Sleep                 retry.SleepFunc
	NavigationTimeout     time.Duration
	PriceWaitUntil        browser.WaitCondition
	AvailabilityWaitUntil browser.WaitCondition

	PriceSelectors        *PriceSelectors
	AvailabilitySelectors *AvailabilitySelectors

	Workers   int
	Reporter  batch.Reporter
	Publisher Publisher

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Service runs the price and availability operations for single URLs and
// for batches.
type Service struct {
	launcher  browser.Launcher
	prices    *retry.Retrier
	avail     *retry.Retrier
	extractor *PriceExtractor
	checker   *AvailabilityChecker
	runner    *batch.Runner
	publisher Publisher

	timeout   time.Duration
	priceWait browser.WaitCondition
	availWait browser.WaitCondition
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

func NewService(opts Options) (*Service, error) {
	if opts.Launcher == nil {
		return nil, errors.New("scraper: launcher is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Policy == (retry.Policy{}) {
		opts.Policy = retry.DefaultPolicy()
	}
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = DefaultNavigationTimeout
	}
	if opts.PriceWaitUntil == "" {
		opts.PriceWaitUntil = browser.WaitLoad
	}
	if opts.AvailabilityWaitUntil == "" {
		opts.AvailabilityWaitUntil = browser.WaitNetworkIdle
	}
	priceSel := DefaultPriceSelectors()
	if opts.PriceSelectors != nil {
		priceSel = *opts.PriceSelectors
	}
	availSel := DefaultAvailabilitySelectors()
	if opts.AvailabilitySelectors != nil {
		availSel = *opts.AvailabilitySelectors
	}

	retryOpts := []retry.Option{
		retry.WithLogger(opts.Logger),
		retry.WithMetrics(opts.Metrics),
		retry.WithClassifier(errorType),
	}
	if opts.Sleep != nil {
		retryOpts = append(retryOpts, retry.WithSleep(opts.Sleep))
	}

	return &Service{
		launcher:  opts.Launcher,
		prices:    retry.New(OperationPrices, opts.Policy, retryOpts...),
		avail:     retry.New(OperationAvailability, opts.Policy, retryOpts...),
		extractor: NewPriceExtractor(priceSel, opts.Logger, opts.Metrics),
		checker:   NewAvailabilityChecker(availSel),
		runner: batch.NewRunner(batch.Options{
			Workers:  opts.Workers,
			Reporter: opts.Reporter,
			Logger:   opts.Logger,
			Metrics:  opts.Metrics,
		}),
		publisher: opts.Publisher,
		timeout:   opts.NavigationTimeout,
		priceWait: opts.PriceWaitUntil,
		availWait: opts.AvailabilityWaitUntil,
		logger:    opts.Logger.With("component", "scraper"),
		metrics:   opts.Metrics,
	}, nil
}

// ScrapePrices scrapes every URL and returns one outcome per URL in
// completion order.
func (s *Service) ScrapePrices(ctx context.Context, urls []string) ([]models.ScrapeOutcome, error) {
	return batch.Run(ctx, s.runner, urls, s.ScrapePrice)
}

// CheckAvailability checks every URL and returns one outcome per URL in
// completion order.
func (s *Service) CheckAvailability(ctx context.Context, urls []string) ([]models.AvailabilityOutcome, error) {
	return batch.Run(ctx, s.runner, urls, s.CheckURL)
}

// ScrapePrice extracts the price table of one URL. Exhaustion yields an
// empty price list, never an error.
func (s *Service) ScrapePrice(ctx context.Context, url string) models.ScrapeOutcome {
	start := time.Now()
	lazy := browser.NewLazySession(s.launcher)
	defer s.closeSession(lazy, url)

	res := retry.Run(ctx, s.prices, url, []models.PriceRecord{},
		func(ctx context.Context, st *retry.State) ([]models.PriceRecord, error) {
			page, err := s.open(ctx, lazy, url, s.priceWait)
			if err != nil {
				return nil, err
			}
			return s.extractor.Extract(page, st)
		})

	outcome := models.ScrapeOutcome{URL: url, Prices: res.Value, Log: trail(res.Log)}
	s.finish(OperationPrices, url, start, res.Attempts, res.Err, "prices", len(outcome.Prices))

	if s.publisher != nil {
		if err := s.publisher.PublishPrices(ctx, outcome); err != nil {
			s.logger.Error("failed to publish price outcome", "url", url, "error", err)
		}
	}
	return outcome
}

// CheckURL decides whether one URL still shows a product. Exhaustion yields
// unavailable.
func (s *Service) CheckURL(ctx context.Context, url string) models.AvailabilityOutcome {
	start := time.Now()
	lazy := browser.NewLazySession(s.launcher)
	defer s.closeSession(lazy, url)

	res := retry.Run(ctx, s.avail, url, false,
		func(ctx context.Context, st *retry.State) (bool, error) {
			page, err := s.open(ctx, lazy, url, s.availWait)
			if err != nil {
				return false, err
			}
			return s.checker.Check(page, st)
		})

	outcome := models.AvailabilityOutcome{URL: url, Available: res.Value, Log: trail(res.Log)}
	s.finish(OperationAvailability, url, start, res.Attempts, res.Err, "available", outcome.Available)

	if s.publisher != nil {
		if err := s.publisher.PublishAvailability(ctx, outcome); err != nil {
			s.logger.Error("failed to publish availability outcome", "url", url, "error", err)
		}
	}
	return outcome
}

func (s *Service) open(ctx context.Context, lazy *browser.LazySession, url string, wait browser.WaitCondition) (browser.Session, error) {
	page, err := lazy.Get(ctx)
	if err != nil {
		return nil, err
	}
	if err := page.Navigate(url, browser.NavigateOptions{Timeout: s.timeout, WaitUntil: wait}); err != nil {
		return nil, err
	}
	return page, nil
}

func (s *Service) closeSession(lazy *browser.LazySession, url string) {
	if err := lazy.Close(); err != nil {
		s.logger.Debug("failed to close page session", "url", url, "error", err)
	}
}

func (s *Service) finish(op, url string, start time.Time, attempts int, err error, key string, value any) {
	elapsed := time.Since(start)
	s.metrics.ObserveURL(op, elapsed)

	status := outcomeStatus(err)
	s.metrics.IncOutcome(op, status)

	if err != nil {
		s.logger.Warn("url finished without result", "operation", op, "url", url,
			"status", status, "attempts", attempts, "elapsed", elapsed, "error", err)
		return
	}
	s.logger.Info("url finished", "operation", op, "url", url,
		"attempts", attempts, "elapsed", elapsed, key, value)
}

func outcomeStatus(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, retry.ErrExhausted):
		return "exhausted"
	default:
		return "aborted"
	}
}

func trail(log []string) []string {
	if log == nil {
		return []string{}
	}
	return log
}
