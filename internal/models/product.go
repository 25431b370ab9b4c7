package models

const (
	// OfferRetail labels the single retail record of a price table.
	OfferRetail = "retail"
	// RetailRequiredUnits is the purchase quantity of the retail record.
	RetailRequiredUnits = "1"
	// Unknown fills wholesale fields the page did not provide.
	Unknown = "Unknown"
)

// PriceRecord is one row of a product's price table. Values are the raw
// strings found on the page.
type PriceRecord struct {
	Unit          string `json:"unidad,omitempty"`
	Price         string `json:"precio"`
	OfferLabel    string `json:"oferta"`
	RequiredUnits string `json:"piezas_requeridas"`
}

// IsRetail reports whether the record is the retail price.
func (p PriceRecord) IsRetail() bool {
	return p.OfferLabel == OfferRetail
}

// ScrapeOutcome is the result of scraping the price table of one URL.
// Prices is empty when every attempt failed.
type ScrapeOutcome struct {
	URL    string        `json:"url"`
	Prices []PriceRecord `json:"prices"`
	Log    []string      `json:"log"`
}

// Succeeded reports whether a price table was extracted.
func (o ScrapeOutcome) Succeeded() bool {
	return len(o.Prices) > 0
}

// Retail returns the retail record, if any.
func (o ScrapeOutcome) Retail() (PriceRecord, bool) {
	if len(o.Prices) == 0 || !o.Prices[0].IsRetail() {
		return PriceRecord{}, false
	}
	return o.Prices[0], true
}

// Wholesale returns the wholesale tiers in page order.
func (o ScrapeOutcome) Wholesale() []PriceRecord {
	if _, ok := o.Retail(); !ok {
		return nil
	}
	return o.Prices[1:]
}

// AvailabilityOutcome is the result of checking whether one URL still
// shows a product.
type AvailabilityOutcome struct {
	URL       string   `json:"url"`
	Available bool     `json:"available"`
	Log       []string `json:"log"`
}
