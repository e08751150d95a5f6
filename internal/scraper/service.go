package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/maltedev/review-scraper/internal/browser"
	"github.com/maltedev/review-scraper/internal/database"
	"github.com/maltedev/review-scraper/internal/extractor"
	"github.com/maltedev/review-scraper/internal/metrics"
	"github.com/maltedev/review-scraper/internal/selectors"
)

// RunRecorder stores the outcome of each scrape.
type RunRecorder interface {
	Insert(ctx context.Context, run *database.Run) error
}

type Options struct {
	// Timeout bounds a whole scrape, from browser start to the last page.
	Timeout time.Duration
	// Runs is optional.
	Runs    RunRecorder
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Service runs one scrape per call: start a browser, load the page, infer
// selectors, extract reviews and release the browser.
type Service struct {
	launcher  browser.Launcher
	inferrer  selectors.Inferrer
	extractor *extractor.Extractor
	runs      RunRecorder
	metrics   *metrics.Metrics
	logger    *slog.Logger
	timeout   time.Duration
}

func NewService(launcher browser.Launcher, inferrer selectors.Inferrer, ex *extractor.Extractor, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Minute
	}
	return &Service{
		launcher:  launcher,
		inferrer:  inferrer,
		extractor: ex,
		runs:      opts.Runs,
		metrics:   opts.Metrics,
		logger:    opts.Logger.With("component", "scraper"),
		timeout:   opts.Timeout,
	}
}

// Scrape collects the reviews reachable from pageURL. Only a failure to start
// the browser, load the first page or infer selectors is returned as an
// error. The scrape keeps running if the caller goes away and is bounded by
// the service timeout instead.
func (s *Service) Scrape(ctx context.Context, pageURL string) (result *extractor.Result, err error) {
	started := time.Now()
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	domain := u.Host
	logger := s.logger.With("url", pageURL)

	defer func() {
		s.record(ctx, pageURL, domain, started, result, err)
	}()

	session, err := s.launcher.Acquire(ctx)
	if err != nil {
		logger.Error("failed to start browser", "error", err)
		return nil, err
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			logger.Warn("failed to close browser session", "session_id", session.ID(), "error", cerr)
		}
	}()

	logger = logger.With("session_id", session.ID())
	page := session.Page()

	if err := page.Navigate(ctx, pageURL); err != nil {
		logger.Error("failed to load page", "error", err)
		return nil, fmt.Errorf("failed to load page: %w", err)
	}

	markup, err := page.Content()
	if err != nil {
		return nil, fmt.Errorf("failed to capture page content: %w", err)
	}

	sel, err := s.inferrer.Infer(ctx, markup, domain)
	if err != nil {
		logger.Error("failed to infer selectors", "error", err)
		return nil, err
	}

	res := s.extractor.Run(ctx, page, sel)
	logger.Info("scrape finished",
		"reviews", len(res.Reviews),
		"pages", res.Pages,
		"stop", res.Stop,
		"duration", time.Since(started))
	return &res, nil
}

func (s *Service) record(ctx context.Context, pageURL, domain string, started time.Time, result *extractor.Result, err error) {
	elapsed := time.Since(started)

	run := &database.Run{
		URL:       pageURL,
		Domain:    domain,
		Status:    database.RunSucceeded,
		StartedAt: started,
		Duration:  elapsed,
	}
	if err != nil {
		run.Status = database.RunFailed
		run.ErrorMessage = err.Error()
		s.metrics.IncError(ErrorType(err))
	}
	if result != nil {
		run.ReviewsCount = len(result.Reviews)
		run.Pages = result.Pages
		run.StopReason = string(result.Stop)
	}
	s.metrics.ObserveScrape(string(run.Status), elapsed)

	if s.runs == nil {
		return
	}
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if rerr := s.runs.Insert(recordCtx, run); rerr != nil {
		s.logger.Warn("failed to record run", "url", pageURL, "error", rerr)
	}
}

// ErrorType is the metrics label for a failed scrape.
func ErrorType(err error) string {
	var initErr *browser.BrowserInitError
	var inferErr *selectors.SelectorInferenceError
	switch {
	case errors.As(err, &initErr):
		return "browser_init"
	case errors.As(err, &inferErr):
		return "selector_inference"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "scrape"
	}
}
