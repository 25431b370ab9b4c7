package scraper

import (
	"errors"
	"fmt"

	"github.com/maltedev/catalog-price-scraper/internal/browser"
)

// ErrStructuralMismatch is wrapped by every error about an expected page
// element that is absent.
var ErrStructuralMismatch = errors.New("structural mismatch")

// StructuralError names the element that was missing.
type StructuralError struct {
	Element  string
	Selector string
}

func (e *StructuralError) Error() string {
	if e.Selector == "" {
		return e.Element + " not found"
	}
	return fmt.Sprintf("%s not found (%s)", e.Element, e.Selector)
}

func (e *StructuralError) Unwrap() error {
	return ErrStructuralMismatch
}

func missing(element, selector string) error {
	return &StructuralError{Element: element, Selector: selector}
}

// errorType labels a failed attempt for the error metrics.
func errorType(err error) string {
	switch {
	case errors.Is(err, browser.ErrNavigationTimeout):
		return "navigation_timeout"
	case errors.Is(err, ErrStructuralMismatch), errors.Is(err, browser.ErrElementNotFound):
		return "structural"
	default:
		return "other"
	}
}
