// Package browser owns the per-request headless browser session and the small
// DOM surface the review extractor needs from it.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

var (
	ErrElementNotFound = errors.New("element not found")
	ErrWaitTimeout     = errors.New("wait timed out")
	ErrStaleElement    = errors.New("stale element reference")
	ErrSessionClosed   = errors.New("browser session closed")
)

// BrowserInitError is returned when a browser session could not be started.
type BrowserInitError struct {
	Driver string
	Err    error
}

func (e *BrowserInitError) Error() string {
	return fmt.Sprintf("Failed to initialize browser: %v", e.Err)
}

func (e *BrowserInitError) Unwrap() error {
	return e.Err
}

// Element is a live handle to a node of the current document.
type Element interface {
	Query(selector string) (Element, error)
	QueryAll(selector string) ([]Element, error)
	Text() (string, error)
	// Attribute returns "" when the attribute is absent.
	Attribute(name string) (string, error)
	Visible() (bool, error)
	Enabled() (bool, error)
	// Activate clicks the element from script, skipping actionability checks.
	Activate() error
	// WaitDetached blocks until the element is no longer attached to the
	// live document. Returns ErrWaitTimeout when the timeout elapses first.
	WaitDetached(timeout time.Duration) error
}

// Page is the document a session is looking at.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Content() (string, error)
	WaitFor(selector string, timeout time.Duration) (Element, error)
	Query(selector string) (Element, error)
}

// Session is exclusively owned by one request. Close is idempotent.
type Session interface {
	ID() string
	Page() Page
	Close() error
}

// Launcher starts sessions. Implementations are safe for concurrent use.
type Launcher interface {
	Acquire(ctx context.Context) (Session, error)
	Close() error
}

const (
	DriverPlaywright = "playwright"
	DriverRod        = "rod"
	DriverStatic     = "static"
)

type Options struct {
	Driver            string
	Headless          bool
	ImplicitWait      time.Duration
	NavigationTimeout time.Duration
	UserAgent         string
	ViewportWidth     int
	ViewportHeight    int
	Logger            *slog.Logger
}

func DefaultOptions() *Options {
	return &Options{
		Driver:            DriverPlaywright,
		Headless:          true,
		ImplicitWait:      10 * time.Second,
		NavigationTimeout: 30 * time.Second,
		UserAgent:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		ViewportWidth:     1920,
		ViewportHeight:    1080,
	}
}

// launchArgs are shared by the Chromium based drivers.
func launchArgs(opts *Options) []string {
	return []string{
		"--no-sandbox",
		"--disable-setuid-sandbox",
		"--disable-dev-shm-usage",
		"--disable-blink-features=AutomationControlled",
		fmt.Sprintf("--window-size=%d,%d", opts.ViewportWidth, opts.ViewportHeight),
	}
}

// NewLauncher returns the launcher for opts.Driver.
func NewLauncher(opts *Options) (Launcher, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	switch opts.Driver {
	case "", DriverPlaywright:
		return NewPlaywrightLauncher(opts), nil
	case DriverRod:
		return NewRodLauncher(opts), nil
	case DriverStatic:
		return NewStaticLauncher(opts, nil), nil
	default:
		return nil, fmt.Errorf("unknown browser driver %q", opts.Driver)
	}
}
