package batch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type outcome struct {
	URL string
	OK  bool
}

func urlsN(n int) []string {
	urls := make([]string, n)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://shop.test/p/%d", i)
	}
	return urls
}

func TestRunYieldsOneOutcomePerURL(t *testing.T) {
	for _, n := range []int{1, 2, 7, 50} {
		t.Run(fmt.Sprintf("%d urls", n), func(t *testing.T) {
			urls := urlsN(n)
			r := NewRunner(Options{Workers: 4})

			out, err := Run(context.Background(), r, urls, func(ctx context.Context, url string) outcome {
				return outcome{URL: url, OK: len(url)%2 == 0}
			})
			require.NoError(t, err)
			require.Len(t, out, n)

			got := make([]string, len(out))
			for i, o := range out {
				got[i] = o.URL
			}
			sort.Strings(got)
			want := append([]string(nil), urls...)
			sort.Strings(want)
			assert.Equal(t, want, got)
		})
	}
}

func TestRunKeepsDuplicatesAsSeparateOutcomes(t *testing.T) {
	urls := []string{"https://shop.test/a", "https://shop.test/a"}

	out, err := Run(context.Background(), NewRunner(Options{Workers: 2}), urls, func(ctx context.Context, url string) string {
		return url
	})
	require.NoError(t, err)
	assert.Equal(t, urls, out)
}

func TestRunBoundsConcurrency(t *testing.T) {
	var inFlight, peak int32

	r := NewRunner(Options{Workers: 3})
	_, err := Run(context.Background(), r, urlsN(20), func(ctx context.Context, url string) bool {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return true
	})
	require.NoError(t, err)

	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
	assert.Greater(t, atomic.LoadInt32(&peak), int32(1))
}

func TestRunCollectsInCompletionOrder(t *testing.T) {
	urls := []string{"https://shop.test/slow", "https://shop.test/fast"}
	release := make(chan struct{})

	out, err := Run(context.Background(), NewRunner(Options{Workers: 2}), urls, func(ctx context.Context, url string) string {
		if url == "https://shop.test/slow" {
			<-release
		} else {
			defer close(release)
		}
		return url
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://shop.test/fast", "https://shop.test/slow"}, out)
}

func TestRunReportsProgress(t *testing.T) {
	var (
		mu    sync.Mutex
		calls [][2]int
	)
	reporter := ReporterFunc(func(done, total int, url string) error {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, [2]int{done, total})
		return errors.New("terminal detached")
	})

	out, err := Run(context.Background(), NewRunner(Options{Workers: 2, Reporter: reporter}), urlsN(5),
		func(ctx context.Context, url string) string { return url })
	require.NoError(t, err, "reporter errors are not fatal")
	assert.Len(t, out, 5)
	assert.Equal(t, [][2]int{{1, 5}, {2, 5}, {3, 5}, {4, 5}, {5, 5}}, calls)
}

func TestRunStillAnswersEveryURLAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := Run(ctx, NewRunner(Options{Workers: 2}), urlsN(6), func(ctx context.Context, url string) outcome {
		return outcome{URL: url, OK: ctx.Err() == nil}
	})
	require.NoError(t, err)
	require.Len(t, out, 6)
	for _, o := range out {
		assert.False(t, o.OK)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		urls    []string
		wantErr error
	}{
		{"empty list", nil, ErrNoURLs},
		{"blank entry", []string{"https://shop.test/a", ""}, ErrInvalidURL},
		{"padded entry", []string{" https://shop.test/a"}, ErrInvalidURL},
		{"relative", []string{"/p/1"}, ErrInvalidURL},
		{"ftp", []string{"ftp://shop.test/p/1"}, ErrInvalidURL},
		{"valid", []string{"https://shop.test/a", "http://shop.test/b?x=1"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.urls)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRunRejectsMalformedInputBeforeDispatch(t *testing.T) {
	called := false
	_, err := Run(context.Background(), NewRunner(Options{}), []string{"https://shop.test/a", "nope"},
		func(ctx context.Context, url string) bool {
			called = true
			return true
		})
	assert.ErrorIs(t, err, ErrInvalidURL)
	assert.False(t, called)
}

func TestNewRunnerDefaultsWorkers(t *testing.T) {
	assert.Greater(t, NewRunner(Options{}).Workers(), 0)
	assert.Equal(t, 5, NewRunner(Options{Workers: 5}).Workers())
}
