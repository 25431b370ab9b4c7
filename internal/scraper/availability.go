package scraper

import (
	"fmt"
	"strings"

	"github.com/maltedev/catalog-price-scraper/internal/browser"
)

// AvailabilitySelectors describe the "not found" signatures of a catalog.
type AvailabilitySelectors struct {
	Titles          string
	Heading         string
	NotFoundTitle   string
	NotFoundHeading string
}

func DefaultAvailabilitySelectors() AvailabilitySelectors {
	return AvailabilitySelectors{
		Titles:          "h3.title",
		Heading:         "h1",
		NotFoundTitle:   "Error 404",
		NotFoundHeading: "404 Not Found",
	}
}

type AvailabilityChecker struct {
	sel AvailabilitySelectors
}

func NewAvailabilityChecker(sel AvailabilitySelectors) *AvailabilityChecker {
	return &AvailabilityChecker{sel: sel}
}

// Check reports whether the loaded page shows a product. Title elements take
// priority over the heading; a page with neither is an error.
func (c *AvailabilityChecker) Check(page browser.Session, notes Notes) (bool, error) {
	if notes == nil {
		notes = discardNotes{}
	}

	titles, err := page.Query(c.sel.Titles).All()
	if err != nil {
		return false, fmt.Errorf("failed to list titles: %w", err)
	}
	if len(titles) > 0 {
		for _, title := range titles {
			text, err := title.TextContent()
			if err != nil {
				return false, fmt.Errorf("failed to read title: %w", err)
			}
			if strings.TrimSpace(text) == c.sel.NotFoundTitle {
				notes.Logf("Not found: title %q", c.sel.NotFoundTitle)
				return false, nil
			}
		}
		return true, nil
	}

	heading, ok, err := trimmedText(page.Query(c.sel.Heading))
	if err != nil {
		return false, fmt.Errorf("failed to read heading: %w", err)
	}
	if !ok {
		return false, missing("title or heading", c.sel.Titles+" | "+c.sel.Heading)
	}
	if heading == c.sel.NotFoundHeading {
		notes.Logf("Not found: heading %q", c.sel.NotFoundHeading)
		return false, nil
	}
	return true, nil
}
