package browser

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// FetchFunc loads the DOM for a URL.
type FetchFunc func(url string, opts NavigateOptions) (*goquery.Document, error)

// Document is a session over a parsed HTML document. It runs no scripts, so
// it suits server-rendered catalog pages and fixtures.
type Document struct {
	fetch  FetchFunc
	doc    *goquery.Document
	closed bool
}

// NewDocument returns a session that loads pages through fetch.
func NewDocument(fetch FetchFunc) *Document {
	return &Document{fetch: fetch}
}

func (d *Document) Navigate(url string, opts NavigateOptions) error {
	if d.closed {
		return ErrSessionClosed
	}
	doc, err := d.fetch(url, opts)
	if err != nil {
		return err
	}
	d.doc = doc
	return nil
}

func (d *Document) Query(selector string) Element {
	if d.doc == nil {
		return &selectionElement{sel: &goquery.Selection{}}
	}
	return &selectionElement{sel: d.doc.Find(selector)}
}

func (d *Document) Close() error {
	d.closed = true
	d.doc = nil
	return nil
}

// StaticLauncher serves fixed HTML per URL.
type StaticLauncher struct {
	pages map[string]string
}

func NewStaticLauncher(pages map[string]string) *StaticLauncher {
	return &StaticLauncher{pages: pages}
}

func (l *StaticLauncher) NewSession(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return NewDocument(l.fetch), nil
}

func (l *StaticLauncher) fetch(url string, _ NavigateOptions) (*goquery.Document, error) {
	html, ok := l.pages[url]
	if !ok {
		return nil, fmt.Errorf("failed to navigate to %s: no such page", url)
	}
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

type selectionElement struct {
	sel *goquery.Selection
}

func (e *selectionElement) Query(selector string) Element {
	return &selectionElement{sel: e.sel.Find(selector)}
}

func (e *selectionElement) Exists() (bool, error) {
	return e.sel.Length() > 0, nil
}

// IsVisible approximates rendering with inline styles and the hidden
// attribute on the element and its ancestors.
func (e *selectionElement) IsVisible() (bool, error) {
	if e.sel.Length() == 0 {
		return false, nil
	}
	for s := e.sel.First(); s.Length() > 0; s = s.Parent() {
		if hiddenByMarkup(s) {
			return false, nil
		}
	}
	return true, nil
}

func (e *selectionElement) TextContent() (string, error) {
	if e.sel.Length() == 0 {
		return "", ErrElementNotFound
	}
	return e.sel.First().Text(), nil
}

func (e *selectionElement) Attribute(name string) (string, bool, error) {
	if e.sel.Length() == 0 {
		return "", false, nil
	}
	v, ok := e.sel.First().Attr(name)
	return v, ok, nil
}

func (e *selectionElement) All() ([]Element, error) {
	out := make([]Element, 0, e.sel.Length())
	e.sel.Each(func(_ int, s *goquery.Selection) {
		out = append(out, &selectionElement{sel: s})
	})
	return out, nil
}

func (e *selectionElement) Count() (int, error) {
	return e.sel.Length(), nil
}

func hiddenByMarkup(s *goquery.Selection) bool {
	if _, ok := s.Attr("hidden"); ok {
		return true
	}
	style := strings.ReplaceAll(strings.ToLower(s.AttrOr("style", "")), " ", "")
	return strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden")
}
