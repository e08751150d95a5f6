package browser

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	if !opts.Headless {
		t.Error("Expected headless to be true by default")
	}

	if opts.ImplicitWait != 10*time.Second {
		t.Errorf("Expected implicit wait to be 10s, got %v", opts.ImplicitWait)
	}

	if opts.Driver != DriverPlaywright {
		t.Errorf("Expected playwright driver by default, got %s", opts.Driver)
	}

	if opts.ViewportWidth != 1920 || opts.ViewportHeight != 1080 {
		t.Errorf("Expected viewport to be 1920x1080, got %dx%d", opts.ViewportWidth, opts.ViewportHeight)
	}
}

func TestLaunchArgs(t *testing.T) {
	args := launchArgs(DefaultOptions())

	assert.Contains(t, args, "--no-sandbox")
	assert.Contains(t, args, "--disable-dev-shm-usage")
	assert.Contains(t, args, "--window-size=1920,1080")
}

func TestXPath(t *testing.T) {
	tests := []struct {
		name     string
		selector string
		expr     string
		isXPath  bool
	}{
		{"Class selector", ".review", "", false},
		{"Attribute selector", `div[data-hook="review"]`, "", false},
		{"Absolute xpath", "//div[@class='review']", "//div[@class='review']", true},
		{"Grouped xpath", "(//a[@rel='next'])[1]", "(//a[@rel='next'])[1]", true},
		{"Prefixed xpath", "xpath=.//span", ".//span", true},
		{"Leading spaces", "  //li", "//li", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expr, ok := XPath(tt.selector)
			assert.Equal(t, tt.isXPath, ok)
			assert.Equal(t, tt.expr, expr)
		})
	}
}

func TestNewLauncher(t *testing.T) {
	t.Run("unknown driver", func(t *testing.T) {
		opts := DefaultOptions()
		opts.Driver = "selenium"

		_, err := NewLauncher(opts)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "selenium")
	})

	t.Run("static driver", func(t *testing.T) {
		opts := DefaultOptions()
		opts.Driver = DriverStatic

		l, err := NewLauncher(opts)
		require.NoError(t, err)
		assert.IsType(t, &StaticLauncher{}, l)
	})

	t.Run("playwright does not start until acquire", func(t *testing.T) {
		l, err := NewLauncher(nil)
		require.NoError(t, err)

		pl, ok := l.(*PlaywrightLauncher)
		require.True(t, ok)
		assert.Nil(t, pl.pw)
		assert.NoError(t, pl.Close())
	})
}

func TestBrowserInitError(t *testing.T) {
	cause := errors.New("chrome not found")
	err := error(&BrowserInitError{Driver: DriverRod, Err: cause})

	assert.Equal(t, "Failed to initialize browser: chrome not found", err.Error())
	assert.ErrorIs(t, err, cause)

	var initErr *BrowserInitError
	require.ErrorAs(t, err, &initErr)
	assert.Equal(t, DriverRod, initErr.Driver)
}
