package browser

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const firstPage = `<html><body>
<div id="reviews">
  <div class="review"><h3 class="title"> Great </h3><span class="stars" data-rating="5"></span></div>
  <div class="review"><h3 class="title">Meh</h3><span class="stars" content="3"></span></div>
</div>
<a class="next" href="/reviews?page=2"><span class="label">Next</span></a>
<button class="load-more" disabled>More</button>
<a class="ghost" href="/x" style="display: none">hidden</a>
<div aria-hidden="true"><a class="inner" href="/y">inner</a></div>
<a class="noop" href="#">top</a>
</body></html>`

const secondPage = `<html><body>
<div id="reviews"><div class="review"><h3 class="title">Last</h3></div></div>
</body></html>`

func newStaticSession(t *testing.T) (Session, *httpmock.MockTransport) {
	t.Helper()

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "http://shop.test/reviews", htmlResponder(firstPage))
	transport.RegisterResponder("GET", "http://shop.test/reviews?page=2", htmlResponder(secondPage))

	opts := DefaultOptions()
	opts.Driver = DriverStatic
	l := NewStaticLauncher(opts, &http.Client{Transport: transport})

	s, err := l.Acquire(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.Page().Navigate(context.Background(), "http://shop.test/reviews"))
	return s, transport
}

func htmlResponder(body string) httpmock.Responder {
	resp := httpmock.NewStringResponse(200, body)
	resp.Header.Set("Content-Type", "text/html")
	return httpmock.ResponderFromResponse(resp)
}

func TestStaticPage_Query(t *testing.T) {
	s, _ := newStaticSession(t)
	page := s.Page()

	content, err := page.Content()
	require.NoError(t, err)
	assert.True(t, strings.Contains(content, `id="reviews"`))

	container, err := page.WaitFor("#reviews", time.Second)
	require.NoError(t, err)

	items, err := container.QueryAll(".review")
	require.NoError(t, err)
	require.Len(t, items, 2)

	title, err := items[0].Query(".title")
	require.NoError(t, err)
	text, err := title.Text()
	require.NoError(t, err)
	assert.Equal(t, " Great ", text)

	stars, err := items[1].Query("xpath=.//span[@class='stars']")
	require.NoError(t, err)
	content3, err := stars.Attribute("content")
	require.NoError(t, err)
	assert.Equal(t, "3", content3)

	missing, err := stars.Attribute("data-rating")
	require.NoError(t, err)
	assert.Empty(t, missing)

	_, err = items[0].Query(".reviewer")
	assert.ErrorIs(t, err, ErrElementNotFound)

	_, err = page.WaitFor("#nope", time.Second)
	assert.ErrorIs(t, err, ErrWaitTimeout)
}

func TestStaticPage_XPathFromRoot(t *testing.T) {
	s, _ := newStaticSession(t)

	next, err := s.Page().Query("//a[@class='next']")
	require.NoError(t, err)

	href, err := next.Attribute("href")
	require.NoError(t, err)
	assert.Equal(t, "/reviews?page=2", href)

	_, err = s.Page().Query("//a[")
	assert.Error(t, err)
}

func TestStaticElement_VisibleEnabled(t *testing.T) {
	s, _ := newStaticSession(t)
	page := s.Page()

	tests := []struct {
		selector string
		visible  bool
		enabled  bool
	}{
		{"a.next", true, true},
		{"button.load-more", true, false},
		{"a.ghost", false, true},
		{"a.inner", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.selector, func(t *testing.T) {
			el, err := page.Query(tt.selector)
			require.NoError(t, err)

			visible, err := el.Visible()
			require.NoError(t, err)
			assert.Equal(t, tt.visible, visible)

			enabled, err := el.Enabled()
			require.NoError(t, err)
			assert.Equal(t, tt.enabled, enabled)
		})
	}
}

func TestStaticElement_ActivateFollowsLink(t *testing.T) {
	s, transport := newStaticSession(t)
	page := s.Page()

	container, err := page.WaitFor("#reviews", time.Second)
	require.NoError(t, err)

	label, err := page.Query("a.next .label")
	require.NoError(t, err)
	require.NoError(t, label.Activate())

	assert.NoError(t, container.WaitDetached(time.Second))
	_, err = container.QueryAll(".review")
	assert.ErrorIs(t, err, ErrStaleElement)

	fresh, err := page.WaitFor("#reviews", time.Second)
	require.NoError(t, err)
	items, err := fresh.QueryAll(".review")
	require.NoError(t, err)
	assert.Len(t, items, 1)

	assert.Equal(t, 1, transport.GetCallCountInfo()["GET http://shop.test/reviews?page=2"])
}

func TestStaticElement_ActivateWithoutTarget(t *testing.T) {
	s, _ := newStaticSession(t)
	page := s.Page()

	container, err := page.WaitFor("#reviews", time.Second)
	require.NoError(t, err)

	noop, err := page.Query("a.noop")
	require.NoError(t, err)
	require.NoError(t, noop.Activate())

	assert.ErrorIs(t, container.WaitDetached(time.Second), ErrWaitTimeout)
}

func TestStaticSession_Close(t *testing.T) {
	s, _ := newStaticSession(t)

	el, err := s.Page().Query("#reviews")
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = el.Text()
	assert.ErrorIs(t, err, ErrSessionClosed)
	_, err = s.Page().Query("#reviews")
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestStaticPage_NavigateErrorStatus(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "http://shop.test/gone", httpmock.NewStringResponder(404, "not found"))

	l := NewStaticLauncher(DefaultOptions(), &http.Client{Transport: transport})
	s, err := l.Acquire(context.Background())
	require.NoError(t, err)
	defer s.Close()

	err = s.Page().Navigate(context.Background(), "http://shop.test/gone")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")

	_, err = s.Page().Content()
	assert.Error(t, err)
}
