package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"
)

// PlaywrightLauncher launches one Chromium process per session. The
// playwright driver itself is started on first use and shared.
type PlaywrightLauncher struct {
	opts   *Options
	logger *slog.Logger

	mu sync.Mutex
	pw *playwright.Playwright
}

func NewPlaywrightLauncher(opts *Options) *PlaywrightLauncher {
	return &PlaywrightLauncher{
		opts:   opts,
		logger: opts.Logger.With("component", "browser", "driver", DriverPlaywright),
	}
}

func (l *PlaywrightLauncher) driver() (*playwright.Playwright, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pw != nil {
		return l.pw, nil
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}
	l.pw = pw
	return pw, nil
}

func (l *PlaywrightLauncher) Acquire(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, &BrowserInitError{Driver: DriverPlaywright, Err: err}
	}

	pw, err := l.driver()
	if err != nil {
		return nil, &BrowserInitError{Driver: DriverPlaywright, Err: err}
	}

	s := &playwrightSession{
		id:     uuid.NewString(),
		logger: l.logger,
	}

	b, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless:        playwright.Bool(l.opts.Headless),
		ChromiumSandbox: playwright.Bool(false),
		Args:            launchArgs(l.opts),
	})
	if err != nil {
		return nil, &BrowserInitError{Driver: DriverPlaywright, Err: fmt.Errorf("failed to launch browser: %w", err)}
	}
	s.browser = b

	bctx, err := b.NewContext(playwright.BrowserNewContextOptions{
		UserAgent:         playwright.String(l.opts.UserAgent),
		AcceptDownloads:   playwright.Bool(false),
		JavaScriptEnabled: playwright.Bool(true),
		Viewport: &playwright.Size{
			Width:  l.opts.ViewportWidth,
			Height: l.opts.ViewportHeight,
		},
	})
	if err != nil {
		s.Close()
		return nil, &BrowserInitError{Driver: DriverPlaywright, Err: fmt.Errorf("failed to create browser context: %w", err)}
	}
	s.context = bctx

	page, err := bctx.NewPage()
	if err != nil {
		s.Close()
		return nil, &BrowserInitError{Driver: DriverPlaywright, Err: fmt.Errorf("failed to create new page: %w", err)}
	}
	page.SetDefaultTimeout(float64(l.opts.NavigationTimeout.Milliseconds()))

	s.page = &playwrightPage{
		page:         page,
		implicitWait: l.opts.ImplicitWait,
		navTimeout:   l.opts.NavigationTimeout,
	}

	l.logger.Debug("session started", "session_id", s.id)
	return s, nil
}

// Close stops the shared playwright driver.
func (l *PlaywrightLauncher) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pw == nil {
		return nil
	}
	err := l.pw.Stop()
	l.pw = nil
	if err != nil {
		return fmt.Errorf("failed to stop playwright: %w", err)
	}
	return nil
}

type playwrightSession struct {
	id      string
	logger  *slog.Logger
	browser playwright.Browser
	context playwright.BrowserContext
	page    *playwrightPage

	once     sync.Once
	closeErr error
}

func (s *playwrightSession) ID() string { return s.id }

func (s *playwrightSession) Page() Page { return s.page }

func (s *playwrightSession) Close() error {
	s.once.Do(func() {
		var errs []error

		if s.context != nil {
			if err := s.context.Close(); err != nil {
				errs = append(errs, fmt.Errorf("failed to close context: %w", err))
			}
		}

		if s.browser != nil {
			if err := s.browser.Close(); err != nil {
				errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
			}
		}

		s.closeErr = errors.Join(errs...)
		s.logger.Debug("session closed", "session_id", s.id)
	})
	return s.closeErr
}

type playwrightPage struct {
	page         playwright.Page
	implicitWait time.Duration
	navTimeout   time.Duration
}

func (p *playwrightPage) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateLoad,
		Timeout:   millis(p.navTimeout),
	})
	if err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

func (p *playwrightPage) Content() (string, error) {
	return p.page.Content()
}

func (p *playwrightPage) WaitFor(selector string, timeout time.Duration) (Element, error) {
	h, err := p.page.WaitForSelector(pwSelector(selector), playwright.PageWaitForSelectorOptions{
		State:   playwright.WaitForSelectorStateAttached,
		Timeout: millis(timeout),
	})
	if err != nil {
		return nil, pwWaitErr(selector, err)
	}
	if h == nil {
		return nil, fmt.Errorf("%w: %s", ErrElementNotFound, selector)
	}
	return p.wrap(h), nil
}

func (p *playwrightPage) Query(selector string) (Element, error) {
	sel := pwSelector(selector)
	h, err := p.page.QuerySelector(sel)
	if err != nil {
		return nil, err
	}
	if h == nil && p.implicitWait > 0 {
		h, err = p.page.WaitForSelector(sel, playwright.PageWaitForSelectorOptions{
			State:   playwright.WaitForSelectorStateAttached,
			Timeout: millis(p.implicitWait),
		})
		if err != nil && !errors.Is(err, playwright.ErrTimeout) {
			return nil, err
		}
	}
	if h == nil {
		return nil, fmt.Errorf("%w: %s", ErrElementNotFound, selector)
	}
	return p.wrap(h), nil
}

func (p *playwrightPage) wrap(h playwright.ElementHandle) *playwrightElement {
	return &playwrightElement{page: p, handle: h}
}

type playwrightElement struct {
	page   *playwrightPage
	handle playwright.ElementHandle
}

func (e *playwrightElement) Query(selector string) (Element, error) {
	sel := pwSelector(selector)
	h, err := e.handle.QuerySelector(sel)
	if err != nil {
		return nil, err
	}
	if h == nil && e.page.implicitWait > 0 {
		h, err = e.handle.WaitForSelector(sel, playwright.ElementHandleWaitForSelectorOptions{
			State:   playwright.WaitForSelectorStateAttached,
			Timeout: millis(e.page.implicitWait),
		})
		if err != nil && !errors.Is(err, playwright.ErrTimeout) {
			return nil, err
		}
	}
	if h == nil {
		return nil, fmt.Errorf("%w: %s", ErrElementNotFound, selector)
	}
	return e.page.wrap(h), nil
}

func (e *playwrightElement) QueryAll(selector string) ([]Element, error) {
	sel := pwSelector(selector)
	handles, err := e.handle.QuerySelectorAll(sel)
	if err != nil {
		return nil, err
	}
	if len(handles) == 0 && e.page.implicitWait > 0 {
		// Give late renders the same grace period as single lookups.
		if _, err := e.handle.WaitForSelector(sel, playwright.ElementHandleWaitForSelectorOptions{
			State:   playwright.WaitForSelectorStateAttached,
			Timeout: millis(e.page.implicitWait),
		}); err == nil {
			if handles, err = e.handle.QuerySelectorAll(sel); err != nil {
				return nil, err
			}
		}
	}

	out := make([]Element, 0, len(handles))
	for _, h := range handles {
		out = append(out, e.page.wrap(h))
	}
	return out, nil
}

func (e *playwrightElement) Text() (string, error) {
	return e.handle.InnerText()
}

func (e *playwrightElement) Attribute(name string) (string, error) {
	return e.handle.GetAttribute(name)
}

func (e *playwrightElement) Visible() (bool, error) {
	return e.handle.IsVisible()
}

func (e *playwrightElement) Enabled() (bool, error) {
	return e.handle.IsEnabled()
}

func (e *playwrightElement) Activate() error {
	if _, err := e.handle.Evaluate(`node => node.click()`); err != nil {
		return fmt.Errorf("failed to activate element: %w", err)
	}
	return nil
}

func (e *playwrightElement) WaitDetached(timeout time.Duration) error {
	_, err := e.page.page.WaitForFunction(`node => !node.isConnected`, e.handle, playwright.PageWaitForFunctionOptions{
		Timeout: millis(timeout),
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, playwright.ErrTimeout) {
		return ErrWaitTimeout
	}
	// A full navigation destroys the handle's execution context, which is
	// the strongest form of staleness.
	return nil
}

func pwSelector(selector string) string {
	if expr, ok := XPath(selector); ok {
		return xpathPrefix + expr
	}
	return selector
}

func pwWaitErr(selector string, err error) error {
	if errors.Is(err, playwright.ErrTimeout) {
		return fmt.Errorf("%w: %s", ErrWaitTimeout, selector)
	}
	return err
}

func millis(d time.Duration) *float64 {
	return playwright.Float(float64(d.Milliseconds()))
}
