// Package extractor walks a review listing page by page and collects the
// reviews it can read.
//
// Failures are absorbed at three levels. A field that cannot be read skips its
// review item. A container or next page control that cannot be used stops
// pagination. Nothing here fails the request: Run always returns a Result.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/maltedev/review-scraper/internal/browser"
	"github.com/maltedev/review-scraper/internal/metrics"
	"github.com/maltedev/review-scraper/internal/ratelimit"
	"github.com/maltedev/review-scraper/internal/selectors"
)

type Review struct {
	Title    string `json:"title"`
	Body     string `json:"body"`
	Rating   int    `json:"rating"`
	Reviewer string `json:"reviewer"`
}

// FieldError means one field of one review item could not be read.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("failed to read %s: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// StopReason says why pagination ended.
type StopReason string

const (
	StopContainerMissing StopReason = "container_missing"
	StopNoNextPage       StopReason = "no_next_page"
	StopNextUnavailable  StopReason = "next_unavailable"
	StopStalled          StopReason = "stalled"
	StopPageError        StopReason = "page_error"
	StopDeadline         StopReason = "deadline"
	StopMaxPages         StopReason = "max_pages"
)

type Result struct {
	Reviews []Review
	Pages   int
	Skipped int
	Stop    StopReason
}

// pageOutcome is what one page contributes. An empty stop means the next page
// was reached.
type pageOutcome struct {
	visited bool
	reviews []Review
	skipped int
	stop    StopReason
	err     error
}

type Options struct {
	// WaitTimeout bounds the container wait and the page transition wait.
	WaitTimeout time.Duration
	// MaxPages stops pagination after that many pages. 0 means no limit.
	MaxPages int
	// PageDelayMin and PageDelayMax space page transitions by a random
	// delay. Both zero means no delay.
	PageDelayMin time.Duration
	PageDelayMax time.Duration
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
}

type Extractor struct {
	waitTimeout  time.Duration
	maxPages     int
	pageDelayMin time.Duration
	pageDelayMax time.Duration
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

func New(opts Options) *Extractor {
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Extractor{
		waitTimeout:  opts.WaitTimeout,
		maxPages:     opts.MaxPages,
		pageDelayMin: opts.PageDelayMin,
		pageDelayMax: opts.PageDelayMax,
		logger:       opts.Logger.With("component", "extractor"),
		metrics:      opts.Metrics,
	}
}

// Run extracts reviews from the page already loaded in page, following the
// next page control until it is gone or stops working. ctx is checked before
// every item and page transition; reviews read before it ends are kept.
func (e *Extractor) Run(ctx context.Context, page browser.Page, sel selectors.SelectorMap) Result {
	result := Result{Reviews: []Review{}}

	// Stamp the first page load so the first transition is paced too.
	pacer := ratelimit.NewPacer(e.pageDelayMin, e.pageDelayMax)
	pacer.Mark()

	for {
		if ctx.Err() != nil {
			result.Stop = StopDeadline
			break
		}
		if e.maxPages > 0 && result.Pages >= e.maxPages {
			result.Stop = StopMaxPages
			break
		}

		out := e.scrapePage(ctx, pacer, page, sel, result.Pages+1)
		if out.visited {
			result.Pages++
			e.metrics.IncPage()
		}
		result.Reviews = append(result.Reviews, out.reviews...)
		result.Skipped += out.skipped

		if out.stop != "" {
			result.Stop = out.stop
			if out.err != nil {
				level := slog.LevelInfo
				if out.stop == StopPageError {
					level = slog.LevelError
				}
				e.logger.Log(ctx, level, "pagination stopped",
					"reason", out.stop, "page", result.Pages, "error", out.err)
			}
			break
		}
	}

	e.metrics.AddReviews(len(result.Reviews))
	e.metrics.IncStop(string(result.Stop))
	e.logger.Info("extraction finished",
		"reviews", len(result.Reviews),
		"skipped", result.Skipped,
		"pages", result.Pages,
		"stop", result.Stop)
	return result
}

func (e *Extractor) scrapePage(ctx context.Context, pacer *ratelimit.Pacer, page browser.Page, sel selectors.SelectorMap, n int) pageOutcome {
	containerSel, err := sel.Get(selectors.KeyContainer)
	if err != nil {
		return pageOutcome{stop: StopContainerMissing, err: err}
	}
	container, err := page.WaitFor(containerSel, e.waitTimeout)
	if err != nil {
		return pageOutcome{stop: StopContainerMissing, err: err}
	}

	out := pageOutcome{visited: true}

	wrapperSel, err := sel.Get(selectors.KeyWrapper)
	if err != nil {
		out.stop, out.err = StopPageError, err
		return out
	}
	items, err := container.QueryAll(wrapperSel)
	if err != nil {
		out.stop, out.err = StopPageError, fmt.Errorf("failed to list review items: %w", err)
		return out
	}

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			out.stop, out.err = StopDeadline, err
			return out
		}
		r, err := readReview(item, sel)
		if err != nil {
			e.logger.Warn("skipping review", "page", n, "item", i, "error", err)
			e.metrics.IncSkipped()
			out.skipped++
			continue
		}
		out.reviews = append(out.reviews, r)
	}
	e.logger.Debug("page extracted", "page", n, "items", len(items), "reviews", len(out.reviews))

	if err := ctx.Err(); err != nil {
		out.stop, out.err = StopDeadline, err
		return out
	}
	out.stop, out.err = e.advance(ctx, pacer, page, container, sel)
	return out
}

// advance activates the next page control and waits for the old container to
// detach. It returns an empty reason once the next page is showing.
func (e *Extractor) advance(ctx context.Context, pacer *ratelimit.Pacer, page browser.Page, container browser.Element, sel selectors.SelectorMap) (StopReason, error) {
	nextSel, err := sel.Get(selectors.KeyNextPage)
	if err != nil {
		return StopNoNextPage, err
	}

	next, err := page.Query(nextSel)
	if errors.Is(err, browser.ErrElementNotFound) {
		return StopNoNextPage, nil
	}
	if err != nil {
		return StopPageError, fmt.Errorf("failed to find next page control: %w", err)
	}

	visible, err := next.Visible()
	if err != nil {
		return StopPageError, err
	}
	enabled, err := next.Enabled()
	if err != nil {
		return StopPageError, err
	}
	if !visible || !enabled {
		return StopNextUnavailable, nil
	}

	if err := pacer.Wait(ctx); err != nil {
		return StopDeadline, err
	}
	if err := next.Activate(); err != nil {
		return StopPageError, fmt.Errorf("failed to activate next page control: %w", err)
	}

	if err := container.WaitDetached(e.waitTimeout); err != nil {
		if errors.Is(err, browser.ErrWaitTimeout) {
			return StopStalled, err
		}
		return StopPageError, err
	}
	return "", nil
}

func readReview(item browser.Element, sel selectors.SelectorMap) (Review, error) {
	var r Review
	var err error

	if r.Title, err = readText(item, sel, selectors.KeyTitle); err != nil {
		return Review{}, err
	}
	if r.Body, err = readText(item, sel, selectors.KeyBody); err != nil {
		return Review{}, err
	}

	ratingEl, err := find(item, sel, selectors.KeyRating)
	if err != nil {
		return Review{}, err
	}
	if r.Rating, err = resolveRating(ratingEl); err != nil {
		return Review{}, &FieldError{Field: selectors.KeyRating, Err: err}
	}

	if r.Reviewer, err = readText(item, sel, selectors.KeyReviewer); err != nil {
		return Review{}, err
	}
	return r, nil
}

func find(item browser.Element, sel selectors.SelectorMap, key string) (browser.Element, error) {
	s, err := sel.Get(key)
	if err != nil {
		return nil, &FieldError{Field: key, Err: err}
	}
	el, err := item.Query(s)
	if err != nil {
		return nil, &FieldError{Field: key, Err: err}
	}
	return el, nil
}

func readText(item browser.Element, sel selectors.SelectorMap, key string) (string, error) {
	el, err := find(item, sel, key)
	if err != nil {
		return "", err
	}
	text, err := el.Text()
	if err != nil {
		return "", &FieldError{Field: key, Err: err}
	}
	return strings.TrimSpace(text), nil
}
