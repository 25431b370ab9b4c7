// Package retry runs a page operation under a bounded, fixed-backoff retry
// loop and keeps a human-readable trail of every attempt.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/maltedev/catalog-price-scraper/internal/metrics"
)

const (
	DefaultMaxAttempts = 3
	DefaultBackoff     = 5 * time.Second
)

// ErrExhausted wraps the last attempt's error once no attempts remain.
var ErrExhausted = errors.New("retries exhausted")

// Policy bounds the retry loop. The backoff is fixed between attempts.
type Policy struct {
	MaxAttempts int
	Backoff     time.Duration
}

func DefaultPolicy() Policy {
	return Policy{MaxAttempts: DefaultMaxAttempts, Backoff: DefaultBackoff}
}

// SleepFunc waits between attempts. It returns early with the context's
// error when the context is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Retrier holds the policy and collaborators shared by every Run call of one
// operation kind.
type Retrier struct {
	operation string
	policy    Policy
	sleep     SleepFunc
	classify  func(error) string
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

type Option func(*Retrier)

// WithSleep replaces the backoff sleep.
func WithSleep(fn SleepFunc) Option {
	return func(r *Retrier) { r.sleep = fn }
}

// WithClassifier labels failed attempts for the error metrics.
func WithClassifier(fn func(error) string) Option {
	return func(r *Retrier) { r.classify = fn }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Retrier) { r.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Retrier) { r.metrics = m }
}

// New builds a Retrier for the named operation.
func New(operation string, policy Policy, opts ...Option) *Retrier {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.Backoff < 0 {
		policy.Backoff = 0
	}

	r := &Retrier{
		operation: operation,
		policy:    policy,
		sleep:     sleepContext,
		classify:  func(error) string { return "other" },
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "retry", "operation", operation)
	return r
}

func (r *Retrier) Policy() Policy {
	return r.policy
}

// State is the per-call retry state threaded through every attempt.
type State struct {
	URL         string
	Attempt     int
	MaxAttempts int
	Backoff     time.Duration
	Log         []string
	LastErr     error
}

// Logf appends a diagnostic line to the trail.
func (s *State) Logf(format string, args ...any) {
	s.Log = append(s.Log, fmt.Sprintf(format, args...))
}

// Result is what a Run call hands back. Err is nil on success.
type Result[T any] struct {
	Value    T
	Log      []string
	Attempts int
	Err      error
}

// Exhausted reports whether Value is the fallback.
func (r Result[T]) Exhausted() bool {
	return r.Err != nil
}

// Operation is one attempt. It may add lines to st.
type Operation[T any] func(ctx context.Context, st *State) (T, error)

// Run calls op until it succeeds or the policy's attempts are used up, in
// which case the fallback is returned. Run never returns an error directly:
// failures are reported through Result.Err and the log trail.
func Run[T any](ctx context.Context, r *Retrier, url string, fallback T, op Operation[T]) Result[T] {
	st := &State{
		URL:         url,
		MaxAttempts: r.policy.MaxAttempts,
		Backoff:     r.policy.Backoff,
	}

	for st.Attempt = 1; ; st.Attempt++ {
		if err := ctx.Err(); err != nil {
			return abort(st, st.Attempt-1, fallback, err)
		}

		r.logger.Debug("attempt started", "url", url, "attempt", st.Attempt)
		v, err := op(ctx, st)
		if err == nil {
			r.metrics.IncAttempt(r.operation, true)
			return Result[T]{Value: v, Log: st.Log, Attempts: st.Attempt}
		}

		st.LastErr = err
		r.metrics.IncAttempt(r.operation, false)
		r.metrics.IncError(r.operation, r.classify(err))
		r.logger.Warn("attempt failed", "url", url, "attempt", st.Attempt, "error", err)
		st.Logf("Attempt %d failed: %v", st.Attempt, err)

		if st.Attempt >= st.MaxAttempts {
			st.Logf("Max retries reached")
			return Result[T]{
				Value:    fallback,
				Log:      st.Log,
				Attempts: st.Attempt,
				Err:      fmt.Errorf("%w after %d attempts: %w", ErrExhausted, st.Attempt, err),
			}
		}

		st.Logf("Retrying in %s seconds...", formatSeconds(st.Backoff))
		r.metrics.IncRetry(r.operation)
		if err := r.sleep(ctx, st.Backoff); err != nil {
			return abort(st, st.Attempt, fallback, err)
		}
	}
}

func abort[T any](st *State, attempts int, fallback T, err error) Result[T] {
	st.Logf("Retry aborted: %v", err)
	return Result[T]{Value: fallback, Log: st.Log, Attempts: attempts, Err: err}
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
