package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrElementNotFound is returned when a selector matches no element.
	ErrElementNotFound = errors.New("element not found")

	// ErrTimeout is returned when a bounded wait elapses.
	ErrTimeout = errors.New("timed out")

	// ErrScript is returned when page-side script evaluation throws.
	ErrScript = errors.New("script evaluation failed")

	// ErrUnsupported is returned when an engine cannot perform an operation.
	ErrUnsupported = errors.New("operation not supported by engine")

	// ErrClosed is returned by drivers whose context has been destroyed.
	ErrClosed = errors.New("browsing context closed")
)

// Driver is the page-level capability of a single browsing context.
// A Driver is not safe for concurrent use; callers serialize access.
type Driver interface {
	// Click clicks the first element matching selector.
	Click(ctx context.Context, selector string) error

	// Fill replaces the value of the input matching selector.
	Fill(ctx context.Context, selector, value string) error

	// Evaluate runs script in the page and returns its JSON-compatible result.
	Evaluate(ctx context.Context, script string) (any, error)

	// WaitForSelector blocks until selector is present or timeout elapses.
	WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error

	// Navigate points the page at url and waits for the load event.
	Navigate(ctx context.Context, url string) error

	// Screenshot captures the current viewport as an encoded image.
	Screenshot(ctx context.Context) ([]byte, error)
}

// TextExtractor is implemented by drivers that can read an element's text
// without a script round trip. found is false when nothing matches.
type TextExtractor interface {
	TextContent(ctx context.Context, selector string) (text string, found bool, err error)
}

// Provider creates and destroys isolated browsing contexts.
type Provider interface {
	// OpenContext creates a fresh, isolated browsing context.
	OpenContext(ctx context.Context) (Driver, error)

	// CloseContext destroys a context created by OpenContext.
	CloseContext(d Driver) error

	// Shutdown releases engine-wide resources (browser processes, drivers).
	Shutdown() error
}

// TextProbe returns a script that evaluates to the text content of the first
// element matching selector, or null when nothing matches.
func TextProbe(selector string) string {
	quoted, _ := json.Marshal(selector)
	return fmt.Sprintf(`(() => { const el = document.querySelector(%s); return el ? el.textContent : null; })()`, quoted)
}

// existsProbe returns a script that evaluates to true when selector matches.
func existsProbe(selector string) string {
	quoted, _ := json.Marshal(selector)
	return fmt.Sprintf(`document.querySelector(%s) !== null`, quoted)
}
