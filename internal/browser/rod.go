package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"
	"github.com/google/uuid"
)

// RodLauncher starts a dedicated Chrome per session through go-rod and opens
// a stealth page in it.
type RodLauncher struct {
	opts   *Options
	logger *slog.Logger
}

func NewRodLauncher(opts *Options) *RodLauncher {
	return &RodLauncher{
		opts:   opts,
		logger: opts.Logger.With("component", "browser", "driver", DriverRod),
	}
}

func (l *RodLauncher) Acquire(ctx context.Context) (Session, error) {
	s := &rodSession{
		id:     uuid.NewString(),
		logger: l.logger,
		ctx:    context.WithoutCancel(ctx),
	}

	ln := launcher.New().
		Context(s.ctx).
		Headless(l.opts.Headless).
		NoSandbox(true).
		Set("disable-dev-shm-usage").
		Set("disable-blink-features", "AutomationControlled").
		Set("user-agent", l.opts.UserAgent).
		Set("window-size", fmt.Sprintf("%d,%d", l.opts.ViewportWidth, l.opts.ViewportHeight))
	s.launcher = ln

	wsURL, err := ln.Launch()
	if err != nil {
		s.Close()
		return nil, &BrowserInitError{Driver: DriverRod, Err: fmt.Errorf("failed to launch chrome: %w", err)}
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		s.Close()
		return nil, &BrowserInitError{Driver: DriverRod, Err: fmt.Errorf("failed to connect to chrome: %w", err)}
	}
	s.browser = b

	page, err := stealth.Page(b)
	if err != nil {
		s.Close()
		return nil, &BrowserInitError{Driver: DriverRod, Err: fmt.Errorf("failed to create stealth page: %w", err)}
	}
	s.page = &rodPage{
		page:         page,
		ctx:          s.ctx,
		implicitWait: l.opts.ImplicitWait,
		navTimeout:   l.opts.NavigationTimeout,
	}

	l.logger.Debug("session started", "session_id", s.id)
	return s, nil
}

// Close is a no-op: rod sessions own their Chrome process.
func (l *RodLauncher) Close() error { return nil }

type rodSession struct {
	id       string
	logger   *slog.Logger
	ctx      context.Context
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rodPage

	once     sync.Once
	closeErr error
}

func (s *rodSession) ID() string { return s.id }

func (s *rodSession) Page() Page { return s.page }

func (s *rodSession) Close() error {
	s.once.Do(func() {
		var errs []error

		if s.page != nil {
			if err := s.page.page.Close(); err != nil {
				errs = append(errs, fmt.Errorf("failed to close page: %w", err))
			}
		}
		if s.browser != nil {
			if err := s.browser.Close(); err != nil {
				errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
			}
		}
		if s.launcher != nil {
			s.launcher.Kill()
			s.launcher.Cleanup()
		}

		s.closeErr = errors.Join(errs...)
		s.logger.Debug("session closed", "session_id", s.id)
	})
	return s.closeErr
}

type rodPage struct {
	page         *rod.Page
	ctx          context.Context
	implicitWait time.Duration
	navTimeout   time.Duration
}

func (p *rodPage) Navigate(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, p.navTimeout)
	defer cancel()

	page := p.page.Context(navCtx)
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("failed to wait for page load: %w", err)
	}
	return nil
}

func (p *rodPage) Content() (string, error) {
	return p.page.Context(p.ctx).HTML()
}

func (p *rodPage) WaitFor(selector string, timeout time.Duration) (Element, error) {
	el, err := p.lookup(selector, timeout)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s", ErrWaitTimeout, selector)
		}
		return nil, err
	}
	return el, nil
}

func (p *rodPage) Query(selector string) (Element, error) {
	return p.lookup(selector, p.implicitWait)
}

func (p *rodPage) lookup(selector string, timeout time.Duration) (Element, error) {
	tctx, cancel := context.WithTimeout(p.ctx, nonZero(timeout))
	defer cancel()

	page := p.page.Context(tctx)
	var (
		el  *rod.Element
		err error
	)
	if expr, ok := XPath(selector); ok {
		el, err = page.ElementX(expr)
	} else {
		el, err = page.Element(selector)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s: %w", ErrElementNotFound, selector, err)
		}
		return nil, err
	}
	return p.wrap(el), nil
}

func (p *rodPage) wrap(el *rod.Element) *rodElement {
	return &rodElement{page: p, el: el.Context(p.ctx)}
}

type rodElement struct {
	page *rodPage
	el   *rod.Element
}

func (e *rodElement) Query(selector string) (Element, error) {
	tctx, cancel := context.WithTimeout(e.page.ctx, nonZero(e.page.implicitWait))
	defer cancel()

	scoped := e.el.Context(tctx)
	var (
		child *rod.Element
		err   error
	)
	if expr, ok := XPath(selector); ok {
		child, err = scoped.ElementX(expr)
	} else {
		child, err = scoped.Element(selector)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s", ErrElementNotFound, selector)
		}
		return nil, err
	}
	return e.page.wrap(child), nil
}

func (e *rodElement) QueryAll(selector string) ([]Element, error) {
	var (
		found rod.Elements
		err   error
	)
	if expr, ok := XPath(selector); ok {
		found, err = e.el.ElementsX(expr)
	} else {
		found, err = e.el.Elements(selector)
	}
	if err != nil {
		return nil, err
	}

	out := make([]Element, 0, len(found))
	for _, el := range found {
		out = append(out, e.page.wrap(el))
	}
	return out, nil
}

func (e *rodElement) Text() (string, error) {
	return e.el.Text()
}

func (e *rodElement) Attribute(name string) (string, error) {
	v, err := e.el.Attribute(name)
	if err != nil || v == nil {
		return "", err
	}
	return *v, nil
}

func (e *rodElement) Visible() (bool, error) {
	return e.el.Visible()
}

func (e *rodElement) Enabled() (bool, error) {
	res, err := e.el.Eval(`() => !this.disabled`)
	if err != nil {
		return false, err
	}
	return res.Value.Bool(), nil
}

func (e *rodElement) Activate() error {
	if _, err := e.el.Eval(`() => this.click()`); err != nil {
		return fmt.Errorf("failed to activate element: %w", err)
	}
	return nil
}

func (e *rodElement) WaitDetached(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		res, err := e.el.Eval(`() => this.isConnected`)
		if err != nil || !res.Value.Bool() {
			// An evaluation error means the node's context is gone.
			return nil
		}
		if time.Now().After(deadline) {
			return ErrWaitTimeout
		}
		<-ticker.C
	}
}

func nonZero(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Millisecond
	}
	return d
}
