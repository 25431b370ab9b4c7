package scraper

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/maltedev/catalog-price-scraper/internal/browser"
	"github.com/maltedev/catalog-price-scraper/internal/metrics"
	"github.com/maltedev/catalog-price-scraper/internal/models"
)

// Notes receives diagnostic lines for the outcome log. *retry.State
// implements it.
type Notes interface {
	Logf(format string, args ...any)
}

type discardNotes struct{}

func (discardNotes) Logf(string, ...any) {}

// PriceSelectors describe where a catalog page keeps its price table.
type PriceSelectors struct {
	Container string

	// Retail probes the active retail element, inline first.
	Retail      Probes
	RetailLabel string
	RetailPrice string

	Tier string
	// TierQuantity probes the element carrying TierQuantityAttr.
	TierQuantity     Probes
	TierQuantityAttr string
	TierPrice        string
	TierSubtitle     string
}

func DefaultPriceSelectors() PriceSelectors {
	return PriceSelectors{
		Container:        "div.product-info-price",
		Retail:           SelectorProbes("span.active.prodPiece", "button.active.prodPiece"),
		RetailLabel:      "h4",
		RetailPrice:      "span.price",
		Tier:             "div.p-20-related",
		TierQuantity:     SelectorProbes("span.prodBox", "button.prodBox"),
		TierQuantityAttr: "data-pieze",
		TierPrice:        "div.price",
		TierSubtitle:     ".offer-subtitle",
	}
}

// PriceExtractor reads the retail price and the wholesale tiers from a
// loaded product page.
type PriceExtractor struct {
	sel     PriceSelectors
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewPriceExtractor(sel PriceSelectors, logger *slog.Logger, m *metrics.Metrics) *PriceExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &PriceExtractor{
		sel:     sel,
		logger:  logger.With("component", "price_extractor"),
		metrics: m,
	}
}

// Extract returns the retail record followed by the wholesale tiers in page
// order. A missing retail block fails the whole extraction; a tier without
// a price is skipped.
func (x *PriceExtractor) Extract(page browser.Session, notes Notes) ([]models.PriceRecord, error) {
	if notes == nil {
		notes = discardNotes{}
	}

	container := page.Query(x.sel.Container)
	ok, err := container.Exists()
	if err != nil {
		return nil, fmt.Errorf("failed to look up pricing container: %w", err)
	}
	if !ok {
		return nil, missing("pricing container", x.sel.Container)
	}

	retail, err := x.retail(container)
	if err != nil {
		return nil, err
	}

	tiers, err := container.Query(x.sel.Tier).All()
	if err != nil {
		return nil, fmt.Errorf("failed to list wholesale tiers: %w", err)
	}

	prices := make([]models.PriceRecord, 0, len(tiers)+1)
	prices = append(prices, retail)
	for i, tier := range tiers {
		rec, ok, err := x.tier(tier, i+1, notes)
		if err != nil {
			return nil, err
		}
		if ok {
			prices = append(prices, rec)
		}
	}

	return prices, nil
}

func (x *PriceExtractor) retail(container browser.Element) (models.PriceRecord, error) {
	active, ok, err := x.sel.Retail.First(container)
	if err != nil {
		return models.PriceRecord{}, err
	}
	if !ok {
		return models.PriceRecord{}, missing("retail price element", x.sel.Retail.String())
	}

	unit, err := requiredText(active, x.sel.RetailLabel, "retail unit label")
	if err != nil {
		return models.PriceRecord{}, err
	}
	price, err := requiredText(active, x.sel.RetailPrice, "retail price")
	if err != nil {
		return models.PriceRecord{}, err
	}

	return models.PriceRecord{
		Unit:          unit,
		Price:         price,
		OfferLabel:    models.OfferRetail,
		RequiredUnits: models.RetailRequiredUnits,
	}, nil
}

// tier reads one wholesale tier. ok is false when the tier has no price.
func (x *PriceExtractor) tier(tier browser.Element, n int, notes Notes) (models.PriceRecord, bool, error) {
	units := models.Unknown
	marker, found, err := x.sel.TierQuantity.First(tier)
	if err != nil {
		return models.PriceRecord{}, false, err
	}
	if found {
		v, ok, err := marker.Attribute(x.sel.TierQuantityAttr)
		if err != nil {
			return models.PriceRecord{}, false, fmt.Errorf("failed to read tier %d quantity: %w", n, err)
		}
		if v = strings.TrimSpace(v); ok && v != "" {
			units = v
		}
	}
	if units == models.Unknown {
		notes.Logf("Warning: tier %d has no %s, using %s", n, x.sel.TierQuantityAttr, models.Unknown)
		x.logger.Warn("wholesale tier without quantity", "tier", n)
	}

	price, ok, err := optionalText(tier, x.sel.TierPrice)
	if err != nil {
		return models.PriceRecord{}, false, fmt.Errorf("failed to read tier %d price: %w", n, err)
	}
	if !ok {
		notes.Logf("Warning: tier %d has no price, skipping", n)
		x.logger.Warn("wholesale tier without price skipped", "tier", n)
		x.metrics.IncDroppedTier()
		return models.PriceRecord{}, false, nil
	}

	label, ok, err := optionalText(tier, x.sel.TierSubtitle)
	if err != nil {
		return models.PriceRecord{}, false, fmt.Errorf("failed to read tier %d subtitle: %w", n, err)
	}
	if !ok || label == "" {
		label = models.Unknown
	}

	return models.PriceRecord{
		Price:         price,
		OfferLabel:    label,
		RequiredUnits: units,
	}, true, nil
}

func requiredText(root browser.Element, selector, name string) (string, error) {
	text, ok, err := optionalText(root, selector)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", name, err)
	}
	if !ok {
		return "", missing(name, selector)
	}
	return text, nil
}

// optionalText returns the trimmed text of the first match below root.
func optionalText(root browser.Element, selector string) (string, bool, error) {
	return trimmedText(root.Query(selector))
}

func trimmedText(el browser.Element) (string, bool, error) {
	ok, err := el.Exists()
	if err != nil || !ok {
		return "", false, err
	}
	text, err := el.TextContent()
	if err != nil {
		return "", false, err
	}
	return strings.TrimSpace(text), true, nil
}
