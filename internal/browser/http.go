package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// HTTPLauncher opens Document sessions that load pages with a plain GET.
// Like a browser navigation, any HTTP status counts as a loaded page; the
// wait condition is met once the body is parsed.
type HTTPLauncher struct {
	client *http.Client
	opts   *Options
	logger *slog.Logger
}

func NewHTTPLauncher(client *http.Client, opts *Options) *HTTPLauncher {
	if client == nil {
		client = &http.Client{}
	}
	if opts == nil {
		opts = DefaultOptions()
	}
	return &HTTPLauncher{
		client: client,
		opts:   opts,
		logger: slog.Default().With("component", "http_launcher"),
	}
}

func (l *HTTPLauncher) NewSession(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return NewDocument(l.fetch), nil
}

func (l *HTTPLauncher) fetch(url string, opts NavigateOptions) (*goquery.Document, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = l.opts.Timeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", l.opts.UserAgent)
	if l.opts.AcceptLanguage != "" {
		req.Header.Set("Accept-Language", l.opts.AcceptLanguage)
	}
	for k, v := range l.opts.ExtraHeaders {
		req.Header.Set(k, v)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, navigationError(url, timeout, err)
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, navigationError(url, timeout, err)
	}

	l.logger.Debug("page loaded", "url", url, "status", resp.StatusCode)
	return doc, nil
}

func navigationError(url string, timeout time.Duration, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w after %s: %v", ErrNavigationTimeout, timeout, err)
	}
	return fmt.Errorf("failed to navigate to %s: %w", url, err)
}
