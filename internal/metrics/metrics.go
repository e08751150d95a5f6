// Package metrics holds the Prometheus collectors for the review scraper. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type Metrics struct {
	Registry       *prometheus.Registry
	ScrapesTotal   *prometheus.CounterVec
	ScrapeDuration prometheus.Histogram
	PagesTotal     prometheus.Counter
	ReviewsTotal   prometheus.Counter
	SkippedTotal   prometheus.Counter
	StopsTotal     *prometheus.CounterVec
	CacheTotal     *prometheus.CounterVec
	ErrorsTotal    *prometheus.CounterVec
}

// New registers all collectors on a dedicated registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	scrapes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "review_scraper_scrapes_total",
			Help: "Scrape requests by outcome.",
		},
		[]string{"status"},
	)
	duration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "review_scraper_scrape_duration_seconds",
			Help:    "Wall time of a scrape request from browser start to release.",
			Buckets: []float64{1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)
	pages := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "review_scraper_pages_total",
			Help: "Review pages visited.",
		},
	)
	reviews := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "review_scraper_reviews_extracted_total",
			Help: "Reviews extracted.",
		},
	)
	skipped := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "review_scraper_reviews_skipped_total",
			Help: "Review items skipped because a field could not be read.",
		},
	)
	stops := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "review_scraper_pagination_stops_total",
			Help: "Why pagination ended.",
		},
		[]string{"reason"},
	)
	cache := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "review_scraper_selector_cache_total",
			Help: "Selector cache lookups by result.",
		},
		[]string{"result"},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "review_scraper_errors_total",
			Help: "Failed scrape requests by error type.",
		},
		[]string{"error_type"},
	)

	registry.MustRegister(
		scrapes, duration, pages, reviews, skipped, stops, cache, errorsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Metrics{
		Registry:       registry,
		ScrapesTotal:   scrapes,
		ScrapeDuration: duration,
		PagesTotal:     pages,
		ReviewsTotal:   reviews,
		SkippedTotal:   skipped,
		StopsTotal:     stops,
		CacheTotal:     cache,
		ErrorsTotal:    errorsTotal,
	}
}

// ObserveScrape records one finished request.
func (m *Metrics) ObserveScrape(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.ScrapesTotal.WithLabelValues(status).Inc()
	m.ScrapeDuration.Observe(d.Seconds())
}

func (m *Metrics) IncPage() {
	if m == nil {
		return
	}
	m.PagesTotal.Inc()
}

func (m *Metrics) AddReviews(n int) {
	if m == nil {
		return
	}
	m.ReviewsTotal.Add(float64(n))
}

func (m *Metrics) IncSkipped() {
	if m == nil {
		return
	}
	m.SkippedTotal.Inc()
}

func (m *Metrics) IncStop(reason string) {
	if m == nil {
		return
	}
	m.StopsTotal.WithLabelValues(reason).Inc()
}

// IncCache counts a selector cache lookup, result is "hit" or "miss".
func (m *Metrics) IncCache(result string) {
	if m == nil {
		return
	}
	m.CacheTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}
