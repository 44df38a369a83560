package browser

import (
	"fmt"
	"net/http"
	"time"
)

// Engine names a browsing engine implementation.
type Engine string

const (
	// EnginePlaywright drives Chromium through Playwright (default)
	EnginePlaywright Engine = "playwright"

	// EngineChromedp drives Chromium through the DevTools protocol
	EngineChromedp Engine = "chromedp"

	// EngineStatic fetches pages over HTTP without executing scripts
	EngineStatic Engine = "static"
)

// Options configures a Provider.
type Options struct {
	// Engine selects the implementation
	Engine Engine

	// Headless controls whether the browser runs without a visible window
	Headless bool

	// Viewport sets the initial viewport size
	Viewport *Viewport

	// Timeout is the default timeout for page operations
	Timeout time.Duration

	// Pages maps URLs to fixture HTML served by the static engine
	Pages map[string]string

	// HTTPClient overrides the static engine's HTTP client
	HTTPClient *http.Client

	// UserAgent is sent by the static engine
	UserAgent string
}

// Viewport represents the browser viewport dimensions.
type Viewport struct {
	Width  int
	Height int
}

// Default values for engine options
const (
	DefaultTimeout        = 30 * time.Second
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 720
	DefaultUserAgent      = "convoy/1.0 (+https://github.com/entrhq/convoy)"
	DefaultSnapshotLength = 200000
)

// withDefaults fills unset options.
func (o Options) withDefaults() Options {
	if o.Engine == "" {
		o.Engine = EnginePlaywright
	}
	if o.Viewport == nil {
		o.Viewport = &Viewport{
			Width:  DefaultViewportWidth,
			Height: DefaultViewportHeight,
		}
	}
	if o.Timeout == 0 {
		o.Timeout = DefaultTimeout
	}
	if o.UserAgent == "" {
		o.UserAgent = DefaultUserAgent
	}
	return o
}

// NewProvider returns the Provider for opts.Engine.
func NewProvider(opts Options) (Provider, error) {
	opts = opts.withDefaults()

	switch opts.Engine {
	case EnginePlaywright:
		return NewPlaywrightProvider(opts), nil
	case EngineChromedp:
		return NewChromedpProvider(opts), nil
	case EngineStatic:
		return NewStaticProvider(opts), nil
	default:
		return nil, fmt.Errorf("unknown browser engine: %s (must be 'playwright', 'chromedp', or 'static')", opts.Engine)
	}
}
