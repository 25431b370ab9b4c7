package browser

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNavigationTimeout is wrapped by every navigation that did not reach
	// its wait condition in time.
	ErrNavigationTimeout = errors.New("navigation timeout")
	// ErrElementNotFound is returned by element reads on an empty match.
	ErrElementNotFound = errors.New("element not found")
	// ErrSessionClosed is returned when a closed session is used.
	ErrSessionClosed = errors.New("page session closed")
)

// WaitCondition is the page state a navigation waits for.
type WaitCondition string

const (
	WaitLoad             WaitCondition = "load"
	WaitDOMContentLoaded WaitCondition = "domcontentloaded"
	WaitNetworkIdle      WaitCondition = "networkidle"
)

// ParseWaitCondition validates a wait condition name.
func ParseWaitCondition(s string) (WaitCondition, error) {
	switch w := WaitCondition(s); w {
	case WaitLoad, WaitDOMContentLoaded, WaitNetworkIdle:
		return w, nil
	}
	return "", fmt.Errorf("unknown wait condition %q", s)
}

// NavigateOptions bounds a single navigation.
type NavigateOptions struct {
	Timeout   time.Duration
	WaitUntil WaitCondition
}

// Session is one isolated, navigable page. Sessions are not shared between
// URLs and are not safe for concurrent use.
type Session interface {
	Navigate(url string, opts NavigateOptions) error
	Query(selector string) Element
	Close() error
}

// Element is a lazy handle on the elements matching a selector. Reads that
// need a single element use the first match.
type Element interface {
	Query(selector string) Element
	Exists() (bool, error)
	IsVisible() (bool, error)
	TextContent() (string, error)
	// Attribute returns the attribute value and whether it was present.
	Attribute(name string) (string, bool, error)
	All() ([]Element, error)
	Count() (int, error)
}

// Launcher opens new page sessions.
type Launcher interface {
	NewSession(ctx context.Context) (Session, error)
}

// LazySession opens its session on first use, so that a failure to open
// counts as a failed attempt of whatever operation asked for it.
type LazySession struct {
	launcher Launcher
	session  Session
}

func NewLazySession(l Launcher) *LazySession {
	return &LazySession{launcher: l}
}

// Get returns the open session, opening it if needed.
func (l *LazySession) Get(ctx context.Context) (Session, error) {
	if l.session != nil {
		return l.session, nil
	}
	s, err := l.launcher.NewSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open page session: %w", err)
	}
	l.session = s
	return s, nil
}

// Close closes the session if one was opened.
func (l *LazySession) Close() error {
	if l.session == nil {
		return nil
	}
	err := l.session.Close()
	l.session = nil
	return err
}
