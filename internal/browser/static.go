package browser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"github.com/google/uuid"
	"golang.org/x/net/html"
)

const maxStaticBody = 16 << 20

// StaticLauncher serves sessions backed by plain HTTP fetches and a parsed
// DOM. No script runs, so activating a control only follows its link.
type StaticLauncher struct {
	opts   *Options
	client *http.Client
	logger *slog.Logger
}

// NewStaticLauncher uses client for all fetches. A nil client gets one with
// the navigation timeout.
func NewStaticLauncher(opts *Options, client *http.Client) *StaticLauncher {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if client == nil {
		client = &http.Client{Timeout: opts.NavigationTimeout}
	}
	return &StaticLauncher{
		opts:   opts,
		client: client,
		logger: opts.Logger.With("component", "browser", "driver", DriverStatic),
	}
}

func (l *StaticLauncher) Acquire(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, &BrowserInitError{Driver: DriverStatic, Err: err}
	}
	return &staticSession{
		id: uuid.NewString(),
		page: &staticPage{
			client:    l.client,
			userAgent: l.opts.UserAgent,
			ctx:       context.WithoutCancel(ctx),
		},
	}, nil
}

func (l *StaticLauncher) Close() error { return nil }

type staticSession struct {
	id   string
	page *staticPage
}

func (s *staticSession) ID() string { return s.id }

func (s *staticSession) Page() Page { return s.page }

func (s *staticSession) Close() error {
	s.page.closed = true
	return nil
}

type staticPage struct {
	client    *http.Client
	userAgent string
	ctx       context.Context
	closed    bool

	url        *url.URL
	raw        string
	doc        *goquery.Document
	generation int
}

func (p *staticPage) Navigate(ctx context.Context, rawURL string) error {
	if p.closed {
		return ErrSessionClosed
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("failed to navigate to %s: status %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxStaticBody))
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", rawURL, err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to parse HTML: %w", err)
	}

	p.url = req.URL
	if resp.Request != nil {
		p.url = resp.Request.URL
	}
	p.raw = string(body)
	p.doc = doc
	p.generation++
	p.ctx = context.WithoutCancel(ctx)
	return nil
}

func (p *staticPage) Content() (string, error) {
	if p.doc == nil {
		return "", errors.New("no document loaded")
	}
	return p.raw, nil
}

// WaitFor does not block: a static document never changes on its own.
func (p *staticPage) WaitFor(selector string, _ time.Duration) (Element, error) {
	el, err := p.Query(selector)
	if errors.Is(err, ErrElementNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrWaitTimeout, selector)
	}
	return el, err
}

func (p *staticPage) Query(selector string) (Element, error) {
	if p.closed {
		return nil, ErrSessionClosed
	}
	if p.doc == nil {
		return nil, errors.New("no document loaded")
	}
	found, err := find(p.doc.Selection, selector)
	if err != nil {
		return nil, err
	}
	if found.Length() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrElementNotFound, selector)
	}
	return p.wrap(found.First()), nil
}

func (p *staticPage) wrap(sel *goquery.Selection) *staticElement {
	return &staticElement{page: p, sel: sel, generation: p.generation}
}

type staticElement struct {
	page       *staticPage
	sel        *goquery.Selection
	generation int
}

func (e *staticElement) live() error {
	if e.page.closed {
		return ErrSessionClosed
	}
	if e.generation != e.page.generation {
		return ErrStaleElement
	}
	return nil
}

func (e *staticElement) Query(selector string) (Element, error) {
	if err := e.live(); err != nil {
		return nil, err
	}
	found, err := find(e.sel, selector)
	if err != nil {
		return nil, err
	}
	if found.Length() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrElementNotFound, selector)
	}
	return e.page.wrap(found.First()), nil
}

func (e *staticElement) QueryAll(selector string) ([]Element, error) {
	if err := e.live(); err != nil {
		return nil, err
	}
	found, err := find(e.sel, selector)
	if err != nil {
		return nil, err
	}

	out := make([]Element, 0, found.Length())
	found.Each(func(_ int, s *goquery.Selection) {
		out = append(out, e.page.wrap(s))
	})
	return out, nil
}

func (e *staticElement) Text() (string, error) {
	if err := e.live(); err != nil {
		return "", err
	}
	return e.sel.Text(), nil
}

func (e *staticElement) Attribute(name string) (string, error) {
	if err := e.live(); err != nil {
		return "", err
	}
	return e.sel.AttrOr(name, ""), nil
}

// Visible approximates layout with the hiding hints available in markup.
func (e *staticElement) Visible() (bool, error) {
	if err := e.live(); err != nil {
		return false, err
	}
	for n := e.sel.Get(0); n != nil && n.Type == html.ElementNode; n = n.Parent {
		if hidden(n) {
			return false, nil
		}
	}
	return true, nil
}

func (e *staticElement) Enabled() (bool, error) {
	if err := e.live(); err != nil {
		return false, err
	}
	if _, ok := e.sel.Attr("disabled"); ok {
		return false, nil
	}
	return !strings.EqualFold(e.sel.AttrOr("aria-disabled", ""), "true"), nil
}

// Activate follows the element's link, or that of its closest anchor.
// Controls without a usable target are a no-op, the same as a script click
// on an element with no handler.
func (e *staticElement) Activate() error {
	if err := e.live(); err != nil {
		return err
	}

	target := e.sel.AttrOr("href", e.sel.AttrOr("data-href", ""))
	if target == "" {
		target = e.sel.Closest("a[href]").AttrOr("href", "")
	}
	target = strings.TrimSpace(target)
	if target == "" || strings.HasPrefix(target, "#") || strings.HasPrefix(strings.ToLower(target), "javascript:") {
		return nil
	}

	next, err := e.page.url.Parse(target)
	if err != nil {
		return fmt.Errorf("failed to resolve %q: %w", target, err)
	}
	return e.page.Navigate(e.page.ctx, next.String())
}

// WaitDetached reports immediately: either a navigation already replaced the
// document or nothing ever will.
func (e *staticElement) WaitDetached(_ time.Duration) error {
	if e.live() != nil {
		return nil
	}
	return ErrWaitTimeout
}

func find(scope *goquery.Selection, selector string) (*goquery.Selection, error) {
	expr, ok := XPath(selector)
	if !ok {
		return scope.Find(selector), nil
	}

	var nodes []*html.Node
	for _, n := range scope.Nodes {
		matched, err := htmlquery.QueryAll(n, expr)
		if err != nil {
			return nil, fmt.Errorf("invalid xpath %q: %w", expr, err)
		}
		nodes = append(nodes, matched...)
	}
	return scope.FindNodes(nodes...), nil
}

func hidden(n *html.Node) bool {
	for _, a := range n.Attr {
		switch strings.ToLower(a.Key) {
		case "hidden":
			return true
		case "aria-hidden":
			if strings.EqualFold(a.Val, "true") {
				return true
			}
		case "type":
			if n.Data == "input" && strings.EqualFold(a.Val, "hidden") {
				return true
			}
		case "style":
			style := strings.ToLower(strings.ReplaceAll(a.Val, " ", ""))
			if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
				return true
			}
		}
	}
	return false
}
