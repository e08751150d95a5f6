package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/maltedev/review-scraper/internal/browser"
	"github.com/maltedev/review-scraper/internal/database"
	"github.com/maltedev/review-scraper/internal/extractor"
	"github.com/maltedev/review-scraper/internal/metrics"
	"github.com/maltedev/review-scraper/internal/selectors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const reviewsPage = `<html><body>
<section class="reviews">
  <article class="item"><h4>First</h4><p>Good</p><i class="r" data-rating="5"></i><b>Ann</b></article>
  <article class="item"><h4>Second</h4><p>Okay</p><i class="r">3 stars</i><b>Bob</b></article>
</section>
</body></html>`

var pageSelectors = selectors.SelectorMap{
	selectors.KeyContainer: "section.reviews",
	selectors.KeyWrapper:   "article.item",
	selectors.KeyTitle:     "h4",
	selectors.KeyBody:      "p",
	selectors.KeyRating:    "i.r",
	selectors.KeyReviewer:  "b",
	selectors.KeyNextPage:  "a.next",
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type MockInferrer struct {
	mock.Mock
}

func (m *MockInferrer) Infer(ctx context.Context, markup, domain string) (selectors.SelectorMap, error) {
	args := m.Called(ctx, markup, domain)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(selectors.SelectorMap), args.Error(1)
}

type MockRunRecorder struct {
	mock.Mock
}

func (m *MockRunRecorder) Insert(ctx context.Context, run *database.Run) error {
	return m.Called(ctx, run).Error(0)
}

type failingLauncher struct{ err error }

func (l failingLauncher) Acquire(context.Context) (browser.Session, error) { return nil, l.err }
func (l failingLauncher) Close() error                                      { return nil }

type trackingLauncher struct {
	browser.Launcher
	closed int
}

func (l *trackingLauncher) Acquire(ctx context.Context) (browser.Session, error) {
	s, err := l.Launcher.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &trackingSession{Session: s, launcher: l}, nil
}

type trackingSession struct {
	browser.Session
	launcher *trackingLauncher
}

func (s *trackingSession) Close() error {
	s.launcher.closed++
	return s.Session.Close()
}

func staticLauncher(t *testing.T, responders map[string]string) *trackingLauncher {
	t.Helper()

	transport := httpmock.NewMockTransport()
	for u, body := range responders {
		resp := httpmock.NewStringResponse(200, body)
		resp.Header.Set("Content-Type", "text/html")
		transport.RegisterResponder("GET", u, httpmock.ResponderFromResponse(resp))
	}

	opts := browser.DefaultOptions()
	opts.Driver = browser.DriverStatic
	opts.Logger = testLogger()
	return &trackingLauncher{Launcher: browser.NewStaticLauncher(opts, &http.Client{Transport: transport})}
}

func newService(l browser.Launcher, inf selectors.Inferrer, runs RunRecorder, m *metrics.Metrics) *Service {
	ex := extractor.New(extractor.Options{WaitTimeout: time.Second, Logger: testLogger(), Metrics: m})
	opts := Options{Timeout: time.Minute, Metrics: m, Logger: testLogger()}
	if runs != nil {
		opts.Runs = runs
	}
	return NewService(l, inf, ex, opts)
}

func TestService_Scrape(t *testing.T) {
	launcher := staticLauncher(t, map[string]string{"http://shop.test:8080/p/1": reviewsPage})

	inf := new(MockInferrer)
	inf.On("Infer", mock.Anything, reviewsPage, "shop.test:8080").Return(pageSelectors, nil).Once()

	runs := new(MockRunRecorder)
	runs.On("Insert", mock.Anything, mock.MatchedBy(func(r *database.Run) bool {
		return r.Status == database.RunSucceeded && r.ReviewsCount == 2 && r.Pages == 1 &&
			r.Domain == "shop.test:8080" && r.StopReason == string(extractor.StopNoNextPage)
	})).Return(nil).Once()

	m := metrics.New()
	res, err := newService(launcher, inf, runs, m).Scrape(context.Background(), "http://shop.test:8080/p/1")
	require.NoError(t, err)

	require.Len(t, res.Reviews, 2)
	assert.Equal(t, extractor.Review{Title: "First", Body: "Good", Rating: 5, Reviewer: "Ann"}, res.Reviews[0])
	assert.Equal(t, 3, res.Reviews[1].Rating)
	assert.Equal(t, 1, launcher.closed)

	inf.AssertExpectations(t)
	runs.AssertExpectations(t)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScrapesTotal.WithLabelValues("succeeded")))
}

func TestService_ScrapeFailures(t *testing.T) {
	tests := []struct {
		name      string
		launcher  func(t *testing.T) browser.Launcher
		inferErr  error
		wantMsg   string
		errorType string
	}{
		{
			name: "browser init",
			launcher: func(t *testing.T) browser.Launcher {
				return failingLauncher{err: &browser.BrowserInitError{Driver: "playwright", Err: errors.New("chromium not found")}}
			},
			wantMsg:   "Failed to initialize browser: chromium not found",
			errorType: "browser_init",
		},
		{
			name: "selector inference",
			launcher: func(t *testing.T) browser.Launcher {
				return staticLauncher(t, map[string]string{"http://shop.test/p/1": reviewsPage})
			},
			inferErr:  &selectors.SelectorInferenceError{Err: errors.New("rate limited")},
			wantMsg:   "Failed to analyze page structure: rate limited",
			errorType: "selector_inference",
		},
		{
			name: "navigation",
			launcher: func(t *testing.T) browser.Launcher {
				return staticLauncher(t, map[string]string{})
			},
			wantMsg:   "failed to load page",
			errorType: "scrape",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := tt.launcher(t)

			inf := new(MockInferrer)
			inf.On("Infer", mock.Anything, mock.Anything, mock.Anything).Return(nil, tt.inferErr).Maybe()

			runs := new(MockRunRecorder)
			runs.On("Insert", mock.Anything, mock.MatchedBy(func(r *database.Run) bool {
				return r.Status == database.RunFailed && r.ErrorMessage != ""
			})).Return(errors.New("db down")).Once()

			m := metrics.New()
			res, err := newService(l, inf, runs, m).Scrape(context.Background(), "http://shop.test/p/1")
			require.Error(t, err)
			assert.Nil(t, res)
			assert.Contains(t, err.Error(), tt.wantMsg)
			assert.Equal(t, tt.errorType, ErrorType(err))

			if tl, ok := l.(*trackingLauncher); ok {
				assert.Equal(t, 1, tl.closed)
			}
			runs.AssertExpectations(t)
			assert.Equal(t, 1.0, testutil.ToFloat64(m.ErrorsTotal.WithLabelValues(tt.errorType)))
		})
	}
}

func TestService_ScrapeOutlivesCaller(t *testing.T) {
	launcher := staticLauncher(t, map[string]string{"http://shop.test/p/1": reviewsPage})

	inf := new(MockInferrer)
	inf.On("Infer", mock.Anything, mock.Anything, "shop.test").Return(pageSelectors, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := newService(launcher, inf, nil, nil).Scrape(ctx, "http://shop.test/p/1")
	require.NoError(t, err)
	assert.Len(t, res.Reviews, 2)
}

func TestErrorType(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", &browser.BrowserInitError{Err: errors.New("x")})
	assert.Equal(t, "browser_init", ErrorType(wrapped))
	assert.Equal(t, "timeout", ErrorType(fmt.Errorf("failed to load page: %w", context.DeadlineExceeded)))
	assert.Equal(t, "scrape", ErrorType(errors.New("other")))
}
