package scraper

import (
	"fmt"
	"strings"

	"github.com/maltedev/catalog-price-scraper/internal/browser"
)

// Probe looks for one known shape of an element below root.
type Probe interface {
	Find(root browser.Element) (browser.Element, bool, error)
	String() string
}

// SelectorProbe matches when the selector has at least one element.
type SelectorProbe string

func (p SelectorProbe) Find(root browser.Element) (browser.Element, bool, error) {
	el := root.Query(string(p))
	ok, err := el.Exists()
	if err != nil {
		return nil, false, fmt.Errorf("failed to probe %s: %w", p, err)
	}
	if !ok {
		return nil, false, nil
	}
	return el, true, nil
}

func (p SelectorProbe) String() string {
	return string(p)
}

// Probes are tried in order; the first match wins.
type Probes []Probe

// SelectorProbes builds a probe list from selectors in priority order.
func SelectorProbes(selectors ...string) Probes {
	ps := make(Probes, len(selectors))
	for i, s := range selectors {
		ps[i] = SelectorProbe(s)
	}
	return ps
}

func (ps Probes) First(root browser.Element) (browser.Element, bool, error) {
	for _, p := range ps {
		el, ok, err := p.Find(root)
		if err != nil {
			return nil, false, err
		}
		if ok {
			return el, true, nil
		}
	}
	return nil, false, nil
}

func (ps Probes) String() string {
	names := make([]string, len(ps))
	for i, p := range ps {
		names[i] = p.String()
	}
	return strings.Join(names, " | ")
}
