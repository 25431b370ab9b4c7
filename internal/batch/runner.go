package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/maltedev/catalog-price-scraper/internal/metrics"
	"github.com/maltedev/catalog-price-scraper/internal/queue"
)

var (
	ErrNoURLs     = errors.New("no URLs to process")
	ErrInvalidURL = errors.New("invalid URL")
)

// Options configures a Runner. Zero Workers means one per CPU.
type Options struct {
	Workers  int
	Reporter Reporter
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
}

// Runner fans URLs out to a fixed-width worker pool. The pool width is the
// only limit on how many page sessions are open at once.
type Runner struct {
	workers  int
	reporter Reporter
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

func NewRunner(opts Options) *Runner {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Reporter == nil {
		opts.Reporter = NopReporter{}
	}
	return &Runner{
		workers:  opts.Workers,
		reporter: opts.Reporter,
		logger:   opts.Logger.With("component", "batch"),
		metrics:  opts.Metrics,
	}
}

func (r *Runner) Workers() int {
	return r.workers
}

// Task produces the outcome for one URL. It must not fail: failures are
// expressed in the outcome value.
type Task[T any] func(ctx context.Context, url string) T

type completion[T any] struct {
	url   string
	value T
}

// Run executes task once per URL and returns the outcomes in completion
// order. Only malformed input is reported as an error.
func Run[T any](ctx context.Context, r *Runner, urls []string, task Task[T]) ([]T, error) {
	if err := Validate(urls); err != nil {
		return nil, err
	}

	logger := r.logger.With("run_id", uuid.New().String())
	workers := min(r.workers, len(urls))
	start := time.Now()

	q := queue.NewInMemoryQueue()
	for i, u := range urls {
		if err := q.Push(queue.NewTask(u, i)); err != nil {
			return nil, fmt.Errorf("failed to queue %s: %w", u, err)
		}
	}
	q.Close()

	logger.Info("batch started", "urls", len(urls), "workers", workers)

	// Workers drain the queue even after ctx is done so that every URL still
	// gets an outcome; the task itself gives up early on a done context.
	popCtx := context.WithoutCancel(ctx)
	results := make(chan completion[T], len(urls))

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for {
				t, err := q.Pop(popCtx)
				if errors.Is(err, queue.ErrQueueClosed) {
					return nil
				}
				if err != nil {
					return err
				}

				release := r.metrics.TrackInFlight()
				results <- completion[T]{url: t.URL, value: task(ctx, t.URL)}
				release()
			}
		})
	}

	var poolErr error
	go func() {
		poolErr = g.Wait()
		close(results)
	}()

	out := make([]T, 0, len(urls))
	for c := range results {
		out = append(out, c.value)
		if err := r.reporter.Completed(len(out), len(urls), c.url); err != nil {
			logger.Debug("progress report failed", "error", err)
		}
	}
	if poolErr != nil {
		logger.Error("worker pool stopped early", "error", poolErr)
	}

	logger.Info("batch finished", "urls", len(urls), "outcomes", len(out), "elapsed", time.Since(start))
	return out, nil
}

// Validate rejects an empty list and any entry that is not an absolute
// http(s) URL.
func Validate(urls []string) error {
	if len(urls) == 0 {
		return ErrNoURLs
	}
	for i, raw := range urls {
		if strings.TrimSpace(raw) != raw || raw == "" {
			return fmt.Errorf("%w at index %d: %q", ErrInvalidURL, i, raw)
		}
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("%w at index %d: %v", ErrInvalidURL, i, err)
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w at index %d: %q is not an absolute http(s) URL", ErrInvalidURL, i, raw)
		}
	}
	return nil
}
