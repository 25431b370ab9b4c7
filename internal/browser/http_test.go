package browser

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func htmlResponder(status int, body string) httpmock.Responder {
	resp := httpmock.NewStringResponse(status, body)
	resp.Header.Set("Content-Type", "text/html")
	return httpmock.ResponderFromResponse(resp)
}

func newMockedLauncher(t *testing.T) (*HTTPLauncher, *httpmock.MockTransport) {
	t.Helper()
	transport := httpmock.NewMockTransport()
	return NewHTTPLauncher(&http.Client{Transport: transport}, DefaultOptions()), transport
}

func TestHTTPLauncherLoadsPage(t *testing.T) {
	l, transport := newMockedLauncher(t)
	transport.RegisterResponder("GET", "https://shop.test/p/1",
		htmlResponder(200, `<div class="product-info-price"><span class="price">$5</span></div>`))

	s, err := l.NewSession(context.Background())
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Navigate("https://shop.test/p/1", NavigateOptions{Timeout: time.Second, WaitUntil: WaitLoad}))

	text, err := s.Query("div.product-info-price span.price").TextContent()
	require.NoError(t, err)
	assert.Equal(t, "$5", text)
	assert.Equal(t, 1, transport.GetTotalCallCount())
}

func TestHTTPLauncherTreatsErrorStatusAsLoaded(t *testing.T) {
	l, transport := newMockedLauncher(t)
	transport.RegisterResponder("GET", "https://shop.test/gone",
		htmlResponder(404, `<h1>404 Not Found</h1>`))

	s, err := l.NewSession(context.Background())
	require.NoError(t, err)

	require.NoError(t, s.Navigate("https://shop.test/gone", NavigateOptions{Timeout: time.Second}))
	text, err := s.Query("h1").TextContent()
	require.NoError(t, err)
	assert.Equal(t, "404 Not Found", text)
}

func TestHTTPLauncherNavigationErrors(t *testing.T) {
	tests := []struct {
		name        string
		responder   httpmock.Responder
		wantTimeout bool
	}{
		{"deadline", httpmock.NewErrorResponder(context.DeadlineExceeded), true},
		{"connection refused", httpmock.NewErrorResponder(assert.AnError), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, transport := newMockedLauncher(t)
			transport.RegisterResponder("GET", "https://shop.test/slow", tt.responder)

			s, err := l.NewSession(context.Background())
			require.NoError(t, err)

			err = s.Navigate("https://shop.test/slow", NavigateOptions{Timeout: time.Second})
			require.Error(t, err)
			assert.Equal(t, tt.wantTimeout, errors.Is(err, ErrNavigationTimeout))
		})
	}
}
