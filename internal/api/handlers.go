package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/maltedev/review-scraper/internal/extractor"
)

// Scraper runs one scrape for a page URL.
type Scraper interface {
	Scrape(ctx context.Context, pageURL string) (*extractor.Result, error)
}

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handlers struct {
	scraper Scraper
	db      Pinger
	logger  *slog.Logger
}

// NewHandlers wires the handlers. db may be nil when the run log is disabled.
func NewHandlers(scraper Scraper, db Pinger, logger *slog.Logger) *Handlers {
	return &Handlers{
		scraper: scraper,
		db:      db,
		logger:  logger.With("component", "api"),
	}
}

// ReviewsResponse is the body of a successful scrape
type ReviewsResponse struct {
	ReviewsCount int                `json:"reviews_count"`
	Reviews      []extractor.Review `json:"reviews"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// GetReviews handles GET /api/reviews?page=<url>
func (h *Handlers) GetReviews(w http.ResponseWriter, r *http.Request) {
	pageURL, err := validatePageURL(r.URL.Query().Get("page"))
	if err != nil {
		h.respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	result, err := h.scraper.Scrape(r.Context(), pageURL)
	if err != nil {
		h.logger.Error("failed to scrape reviews", "url", pageURL, "error", err)
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	reviews := result.Reviews
	if reviews == nil {
		reviews = []extractor.Review{}
	}
	h.respondJSON(w, http.StatusOK, ReviewsResponse{
		ReviewsCount: len(reviews),
		Reviews:      reviews,
	})
}

// Health reports liveness, and the run database when one is configured.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	health := map[string]string{"status": "ok"}
	status := http.StatusOK

	if h.db != nil {
		if err := h.db.Ping(r.Context()); err != nil {
			h.logger.Warn("database ping failed", "error", err)
			health["status"] = "error"
			health["database"] = "unavailable"
			status = http.StatusServiceUnavailable
		} else {
			health["database"] = "ok"
		}
	}

	h.respondJSON(w, status, health)
}

// validatePageURL accepts absolute http(s) URLs with a host.
func validatePageURL(raw string) (string, error) {
	if raw == "" {
		return "", errors.New("query parameter 'page' is required")
	}
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return "", errors.New("query parameter 'page' must be a valid URL")
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", errors.New("query parameter 'page' must be an absolute http or https URL")
	}
	return u.String(), nil
}

// Helper methods
func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, errorResponse{Detail: message})
}
