package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/maltedev/catalog-price-scraper/internal/batch"
	"github.com/maltedev/catalog-price-scraper/internal/models"
)

// Scraper is the batch surface the handlers need. *scraper.Service
// implements it.
type Scraper interface {
	ScrapePrices(ctx context.Context, urls []string) ([]models.ScrapeOutcome, error)
	CheckAvailability(ctx context.Context, urls []string) ([]models.AvailabilityOutcome, error)
}

type Handlers struct {
	scraper Scraper
	logger  *slog.Logger
}

func NewHandlers(scraper Scraper, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		scraper: scraper,
		logger:  logger.With("component", "api"),
	}
}

// BatchRequest lists the product pages to process.
type BatchRequest struct {
	URLs []string `json:"urls"`
}

// PricesResponse carries one outcome per requested URL, in completion order.
type PricesResponse struct {
	Total     int                    `json:"total"`
	Succeeded int                    `json:"succeeded"`
	Outcomes  []models.ScrapeOutcome `json:"outcomes"`
}

type AvailabilityResponse struct {
	Total     int                          `json:"total"`
	Available int                          `json:"available"`
	Outcomes  []models.AvailabilityOutcome `json:"outcomes"`
}

// ScrapePrices handles batch price scraping requests
func (h *Handlers) ScrapePrices(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	outcomes, err := h.scraper.ScrapePrices(r.Context(), req.URLs)
	if err != nil {
		h.respondBatchError(w, err)
		return
	}

	resp := PricesResponse{Total: len(outcomes), Outcomes: outcomes}
	for _, o := range outcomes {
		if o.Succeeded() {
			resp.Succeeded++
		}
	}
	h.respondJSON(w, http.StatusOK, resp)
}

// CheckAvailability handles batch availability requests
func (h *Handlers) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	outcomes, err := h.scraper.CheckAvailability(r.Context(), req.URLs)
	if err != nil {
		h.respondBatchError(w, err)
		return
	}

	resp := AvailabilityResponse{Total: len(outcomes), Outcomes: outcomes}
	for _, o := range outcomes {
		if o.Available {
			resp.Available++
		}
	}
	h.respondJSON(w, http.StatusOK, resp)
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) decode(w http.ResponseWriter, r *http.Request) (BatchRequest, bool) {
	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return req, false
	}
	return req, true
}

func (h *Handlers) respondBatchError(w http.ResponseWriter, err error) {
	if errors.Is(err, batch.ErrNoURLs) || errors.Is(err, batch.ErrInvalidURL) {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.logger.Error("batch failed", "error", err)
	h.respondError(w, http.StatusInternalServerError, "batch failed")
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
