package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/catalog-price-scraper/internal/browser"
	"github.com/maltedev/catalog-price-scraper/internal/metrics"
	"github.com/maltedev/catalog-price-scraper/internal/models"
)

const (
	goodURL    = "https://catalog.test/producto/1"
	brokenURL  = "https://catalog.test/producto/2"
	missingURL = "https://catalog.test/producto/3"
	goneURL    = "https://catalog.test/producto/4"
	blankURL   = "https://catalog.test/producto/5"
)

var catalog = map[string]string{
	goodURL:   catalogPage,
	brokenURL: `<html><body><h1>Producto</h1></body></html>`,
	goneURL:   `<html><body><h3 class="title">Error 404</h3></body></html>`,
	blankURL:  `<html><body><p>cargando</p></body></html>`,
}

// trackingLauncher serves the catalog, records every navigation and can
// fail the first navigations with a timeout.
type trackingLauncher struct {
	static *browser.StaticLauncher

	mu        sync.Mutex
	timeouts  int
	opened    int
	closed    int
	navigated []browser.NavigateOptions
	openErr   error
}

func newTrackingLauncher(pages map[string]string) *trackingLauncher {
	return &trackingLauncher{static: browser.NewStaticLauncher(pages)}
}

func (l *trackingLauncher) NewSession(ctx context.Context) (browser.Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.openErr != nil {
		return nil, l.openErr
	}
	s, err := l.static.NewSession(ctx)
	if err != nil {
		return nil, err
	}
	l.opened++
	return &trackingSession{Session: s, launcher: l}, nil
}

type trackingSession struct {
	browser.Session
	launcher *trackingLauncher
}

func (s *trackingSession) Navigate(url string, opts browser.NavigateOptions) error {
	l := s.launcher
	l.mu.Lock()
	l.navigated = append(l.navigated, opts)
	if l.timeouts > 0 {
		l.timeouts--
		l.mu.Unlock()
		return fmt.Errorf("failed to navigate to %s: %w", url, browser.ErrNavigationTimeout)
	}
	l.mu.Unlock()
	return s.Session.Navigate(url, opts)
}

func (s *trackingSession) Close() error {
	s.launcher.mu.Lock()
	s.launcher.closed++
	s.launcher.mu.Unlock()
	return s.Session.Close()
}

type sleepCounter struct {
	mu    sync.Mutex
	slept []time.Duration
}

func (c *sleepCounter) sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slept = append(c.slept, d)
	return ctx.Err()
}

type recordingPublisher struct {
	mu           sync.Mutex
	prices       []models.ScrapeOutcome
	availability []models.AvailabilityOutcome
	err          error
}

func (p *recordingPublisher) PublishPrices(_ context.Context, o models.ScrapeOutcome) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices = append(p.prices, o)
	return p.err
}

func (p *recordingPublisher) PublishAvailability(_ context.Context, o models.AvailabilityOutcome) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.availability = append(p.availability, o)
	return p.err
}

func newTestService(t *testing.T, l browser.Launcher, mutate ...func(*Options)) (*Service, *sleepCounter) {
	t.Helper()
	sleeps := &sleepCounter{}
	opts := Options{
		Launcher: l,
		Sleep:    sleeps.sleep,
		Workers:  2,
	}
	for _, fn := range mutate {
		fn(&opts)
	}
	s, err := NewService(opts)
	require.NoError(t, err)
	return s, sleeps
}

func exhaustedLog(reason string) []string {
	return []string{
		"Attempt 1 failed: " + reason,
		"Retrying in 5 seconds...",
		"Attempt 2 failed: " + reason,
		"Retrying in 5 seconds...",
		"Attempt 3 failed: " + reason,
		"Max retries reached",
	}
}

func byURL[T any](outcomes []T, url func(T) string) map[string]T {
	m := make(map[string]T, len(outcomes))
	for _, o := range outcomes {
		m[url(o)] = o
	}
	return m
}

func TestNewServiceRequiresLauncher(t *testing.T) {
	_, err := NewService(Options{})
	assert.Error(t, err)
}

func TestScrapePricesBatch(t *testing.T) {
	l := newTrackingLauncher(catalog)
	m := metrics.New()
	pub := &recordingPublisher{}
	s, sleeps := newTestService(t, l, func(o *Options) {
		o.Metrics = m
		o.Publisher = pub
	})

	urls := []string{goodURL, brokenURL, missingURL}
	outcomes, err := s.ScrapePrices(context.Background(), urls)
	require.NoError(t, err)
	require.Len(t, outcomes, 3)

	got := byURL(outcomes, func(o models.ScrapeOutcome) string { return o.URL })
	require.Len(t, got, 3)

	good := got[goodURL]
	assert.True(t, good.Succeeded())
	assert.Equal(t, []models.PriceRecord{
		{Unit: "Pieza", Price: "$10.00", OfferLabel: "retail", RequiredUnits: "1"},
		{Price: "$9.00", OfferLabel: "Mayoreo", RequiredUnits: "10"},
	}, good.Prices)
	assert.Equal(t, []string{"Warning: tier 2 has no price, skipping"}, good.Log)

	broken := got[brokenURL]
	assert.NotNil(t, broken.Prices)
	assert.Empty(t, broken.Prices)
	assert.Equal(t, exhaustedLog("pricing container not found (div.product-info-price)"), broken.Log)

	missing := got[missingURL]
	assert.Empty(t, missing.Prices)
	assert.Equal(t, exhaustedLog("failed to navigate to "+missingURL+": no such page"), missing.Log)

	assert.Len(t, sleeps.slept, 4)
	for _, d := range sleeps.slept {
		assert.Equal(t, 5*time.Second, d)
	}

	assert.Equal(t, 3, l.opened, "one session per URL")
	assert.Equal(t, 3, l.closed)
	for _, opts := range l.navigated {
		assert.Equal(t, browser.WaitLoad, opts.WaitUntil)
		assert.Equal(t, 30*time.Second, opts.Timeout)
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(m.OutcomesTotal.WithLabelValues(OperationPrices, "success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.OutcomesTotal.WithLabelValues(OperationPrices, "exhausted")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ErrorsTotal.WithLabelValues(OperationPrices, "structural")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ErrorsTotal.WithLabelValues(OperationPrices, "other")))

	published := make([]string, 0, len(pub.prices))
	for _, o := range pub.prices {
		published = append(published, o.URL)
	}
	sort.Strings(published)
	assert.Equal(t, urls, published)
}

func TestExhaustedPriceOutcomeKeepsShape(t *testing.T) {
	s, _ := newTestService(t, newTrackingLauncher(catalog))

	outcome := s.ScrapePrice(context.Background(), brokenURL)

	raw, err := json.Marshal(outcome)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"url":"`+brokenURL+`"`)
	assert.Contains(t, string(raw), `"prices":[]`)
}

func TestScrapePriceRecoversFromNavigationTimeout(t *testing.T) {
	l := newTrackingLauncher(catalog)
	l.timeouts = 1
	m := metrics.New()
	s, sleeps := newTestService(t, l, func(o *Options) { o.Metrics = m })

	outcome := s.ScrapePrice(context.Background(), goodURL)

	assert.True(t, outcome.Succeeded())
	assert.Equal(t, []string{
		"Attempt 1 failed: failed to navigate to " + goodURL + ": navigation timeout",
		"Retrying in 5 seconds...",
		"Warning: tier 2 has no price, skipping",
	}, outcome.Log)
	assert.Len(t, sleeps.slept, 1)
	assert.Equal(t, 1, l.opened, "the session is reused across attempts")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ErrorsTotal.WithLabelValues(OperationPrices, "navigation_timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RetriesTotal.WithLabelValues(OperationPrices)))
}

func TestScrapePriceSessionOpenFailureIsAnAttempt(t *testing.T) {
	l := newTrackingLauncher(catalog)
	l.openErr = errors.New("browser crashed")
	s, _ := newTestService(t, l)

	outcome := s.ScrapePrice(context.Background(), goodURL)

	assert.Empty(t, outcome.Prices)
	assert.Equal(t, exhaustedLog("failed to open page session: browser crashed"), outcome.Log)
}

func TestScrapePriceAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	l := newTrackingLauncher(catalog)
	s, _ := newTestService(t, l)

	outcome := s.ScrapePrice(ctx, goodURL)

	assert.Equal(t, goodURL, outcome.URL)
	assert.Empty(t, outcome.Prices)
	assert.Equal(t, []string{"Retry aborted: context canceled"}, outcome.Log)
	assert.Zero(t, l.opened)
}

func TestCheckAvailabilityBatch(t *testing.T) {
	l := newTrackingLauncher(map[string]string{
		goodURL:  `<html><body><h3 class="title">Descripción</h3></body></html>`,
		goneURL:  catalog[goneURL],
		blankURL: catalog[blankURL],
	})
	pub := &recordingPublisher{err: errors.New("redis down")}
	s, _ := newTestService(t, l, func(o *Options) { o.Publisher = pub })

	urls := []string{goodURL, goneURL, blankURL}

	outcomes, err := s.CheckAvailability(context.Background(), urls)
	require.NoError(t, err)
	require.Len(t, outcomes, 3)

	got := byURL(outcomes, func(o models.AvailabilityOutcome) string { return o.URL })
	assert.True(t, got[goodURL].Available)
	assert.Equal(t, []string{}, got[goodURL].Log)
	assert.False(t, got[goneURL].Available)
	assert.Equal(t, []string{`Not found: title "Error 404"`}, got[goneURL].Log)
	assert.False(t, got[blankURL].Available)
	assert.Equal(t, exhaustedLog("title or heading not found (h3.title | h1)"), got[blankURL].Log)

	for _, opts := range l.navigated {
		assert.Equal(t, browser.WaitNetworkIdle, opts.WaitUntil)
	}
	assert.Len(t, pub.availability, 3, "publish errors do not stop the batch")
}

func TestCustomWaitConditions(t *testing.T) {
	l := newTrackingLauncher(catalog)
	s, _ := newTestService(t, l, func(o *Options) {
		o.PriceWaitUntil = browser.WaitDOMContentLoaded
		o.AvailabilityWaitUntil = browser.WaitLoad
		o.NavigationTimeout = 10 * time.Second
	})

	s.ScrapePrice(context.Background(), goodURL)
	s.CheckURL(context.Background(), goneURL)

	require.Len(t, l.navigated, 2)
	assert.Equal(t, browser.NavigateOptions{Timeout: 10 * time.Second, WaitUntil: browser.WaitDOMContentLoaded}, l.navigated[0])
	assert.Equal(t, browser.NavigateOptions{Timeout: 10 * time.Second, WaitUntil: browser.WaitLoad}, l.navigated[1])
}

func TestBatchRejectsMalformedInput(t *testing.T) {
	s, _ := newTestService(t, newTrackingLauncher(catalog))

	_, err := s.ScrapePrices(context.Background(), nil)
	assert.Error(t, err)

	_, err = s.CheckAvailability(context.Background(), []string{goodURL, "not a url"})
	assert.Error(t, err)
}
