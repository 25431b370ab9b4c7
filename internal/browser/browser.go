package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/playwright-community/playwright-go"
)

// Browser launches one chromium instance and hands out page sessions, each in
// its own browser context so cookies and storage never leak between URLs.
type Browser struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	opts    *Options
	logger  *slog.Logger
}

type Options struct {
	Headless       bool
	Timeout        time.Duration
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	ProxyServer    string
	ExtraHeaders   map[string]string
}

func DefaultOptions() *Options {
	return &Options{
		Headless:       true,
		Timeout:        30 * time.Second,
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		AcceptLanguage: "es-MX,es;q=0.9,en;q=0.8",
		TimezoneID:     "America/Mexico_City",
		Locale:         "es-MX",
		ExtraHeaders: map[string]string{
			"Accept": "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
			"DNT":    "1",
		},
	}
}

func New(opts *Options) (*Browser, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: &opts.Headless,
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
			"--disable-setuid-sandbox",
		},
	}

	if opts.ProxyServer != "" {
		launchOpts.Proxy = &playwright.Proxy{
			Server: opts.ProxyServer,
		}
	}

	browser, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	return &Browser{
		pw:      pw,
		browser: browser,
		opts:    opts,
		logger:  slog.Default().With("component", "browser"),
	}, nil
}

// NewSession opens a page in a fresh browser context.
func (b *Browser) NewSession(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bctx, err := b.browser.NewContext(b.contextOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		bctx.Close()
		return nil, fmt.Errorf("failed to create new page: %w", err)
	}
	page.SetDefaultTimeout(float64(b.opts.Timeout.Milliseconds()))

	return &pageSession{bctx: bctx, page: page, logger: b.logger}, nil
}

func (b *Browser) contextOptions() playwright.BrowserNewContextOptions {
	headers := make(map[string]string, len(b.opts.ExtraHeaders)+1)
	for k, v := range b.opts.ExtraHeaders {
		headers[k] = v
	}
	if b.opts.AcceptLanguage != "" {
		headers["Accept-Language"] = b.opts.AcceptLanguage
	}

	return playwright.BrowserNewContextOptions{
		UserAgent:         &b.opts.UserAgent,
		AcceptDownloads:   playwright.Bool(false),
		JavaScriptEnabled: playwright.Bool(true),
		Locale:            &b.opts.Locale,
		TimezoneId:        &b.opts.TimezoneID,
		Viewport: &playwright.Size{
			Width:  b.opts.ViewportWidth,
			Height: b.opts.ViewportHeight,
		},
		ExtraHttpHeaders: headers,
	}
}

func (b *Browser) Close() error {
	var errs []error

	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}

	if b.pw != nil {
		if err := b.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
	}

	return errors.Join(errs...)
}

// waitUntilState maps a wait condition onto playwright's load states.
func waitUntilState(w WaitCondition) *playwright.WaitUntilState {
	switch w {
	case WaitDOMContentLoaded:
		return playwright.WaitUntilStateDomcontentloaded
	case WaitNetworkIdle:
		return playwright.WaitUntilStateNetworkidle
	default:
		return playwright.WaitUntilStateLoad
	}
}

type pageSession struct {
	bctx   playwright.BrowserContext
	page   playwright.Page
	logger *slog.Logger
	closed bool
}

func (s *pageSession) Navigate(url string, opts NavigateOptions) error {
	if s.closed {
		return ErrSessionClosed
	}

	resp, err := s.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: waitUntilState(opts.WaitUntil),
		Timeout:   playwright.Float(float64(opts.Timeout.Milliseconds())),
	})
	if err != nil {
		if errors.Is(err, playwright.ErrTimeout) {
			return fmt.Errorf("%w after %s waiting for %s: %v", ErrNavigationTimeout, opts.Timeout, opts.WaitUntil, err)
		}
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}

	if resp != nil {
		s.logger.Debug("page loaded", "url", url, "status", resp.Status(), "wait_until", opts.WaitUntil)
	}
	return nil
}

func (s *pageSession) Query(selector string) Element {
	return &locatorElement{loc: s.page.Locator(selector)}
}

func (s *pageSession) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if err := s.page.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close page: %w", err))
	}
	if err := s.bctx.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close context: %w", err))
	}
	return errors.Join(errs...)
}

// locatorElement reads through a playwright locator. Every single-element
// read checks the match count first so an absent element fails fast instead
// of waiting for the default timeout.
type locatorElement struct {
	loc playwright.Locator
}

func (e *locatorElement) Query(selector string) Element {
	return &locatorElement{loc: e.loc.Locator(selector)}
}

func (e *locatorElement) Exists() (bool, error) {
	n, err := e.loc.Count()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (e *locatorElement) IsVisible() (bool, error) {
	ok, err := e.Exists()
	if err != nil || !ok {
		return false, err
	}
	return e.loc.First().IsVisible()
}

func (e *locatorElement) TextContent() (string, error) {
	ok, err := e.Exists()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrElementNotFound
	}
	return e.loc.First().TextContent()
}

func (e *locatorElement) Attribute(name string) (string, bool, error) {
	ok, err := e.Exists()
	if err != nil || !ok {
		return "", false, err
	}

	// GetAttribute reports a missing attribute as "", so ask the DOM directly.
	v, err := e.loc.First().Evaluate(`(el, name) => el.getAttribute(name)`, name)
	if err != nil {
		return "", false, err
	}
	s, ok := v.(string)
	return s, ok, nil
}

func (e *locatorElement) All() ([]Element, error) {
	locs, err := e.loc.All()
	if err != nil {
		return nil, err
	}
	out := make([]Element, len(locs))
	for i, l := range locs {
		out[i] = &locatorElement{loc: l}
	}
	return out, nil
}

func (e *locatorElement) Count() (int, error) {
	return e.loc.Count()
}
