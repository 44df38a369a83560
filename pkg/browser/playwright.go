package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

// PlaywrightProvider launches one Chromium instance and hands out an isolated
// BrowserContext per session.
type PlaywrightProvider struct {
	mu          sync.Mutex
	opts        Options
	playwright  *playwright.Playwright
	browser     playwright.Browser
	initialized bool
}

// NewPlaywrightProvider creates a provider. Playwright is started lazily on the
// first OpenContext call.
func NewPlaywrightProvider(opts Options) *PlaywrightProvider {
	return &PlaywrightProvider{
		opts: opts.withDefaults(),
	}
}

// Initialize installs and starts Playwright and launches the browser.
// Calling it more than once is a no-op.
func (p *PlaywrightProvider) Initialize() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.initializeLocked()
}

func (p *PlaywrightProvider) initializeLocked() error {
	if p.initialized {
		return nil
	}

	// Keep driver output off stdout; the CLI writes the report there.
	runOpts := &playwright.RunOptions{
		Browsers: []string{"chromium"},
		Verbose:  false,
		Stdout:   io.Discard,
		Stderr:   io.Discard,
	}

	if err := playwright.Install(runOpts); err != nil {
		return fmt.Errorf("failed to install playwright: %w", err)
	}

	pw, err := playwright.Run(runOpts)
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}

	headless := p.opts.Headless
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: &headless,
	})
	if err != nil {
		_ = pw.Stop()
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	p.playwright = pw
	p.browser = browser
	p.initialized = true
	return nil
}

// OpenContext creates a new BrowserContext with a single page.
func (p *PlaywrightProvider) OpenContext(ctx context.Context) (Driver, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.initializeLocked(); err != nil {
		return nil, err
	}

	bctx, err := p.browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  p.opts.Viewport.Width,
			Height: p.opts.Viewport.Height,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create context: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	page.SetDefaultTimeout(float64(p.opts.Timeout.Milliseconds()))

	return &playwrightPage{
		context: bctx,
		page:    page,
		timeout: float64(p.opts.Timeout.Milliseconds()),
	}, nil
}

// CloseContext closes the page and its BrowserContext.
func (p *PlaywrightProvider) CloseContext(d Driver) error {
	pp, ok := d.(*playwrightPage)
	if !ok {
		return fmt.Errorf("driver %T was not created by the playwright engine", d)
	}
	return pp.close()
}

// Shutdown closes the browser and stops Playwright.
func (p *PlaywrightProvider) Shutdown() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		return nil
	}

	var errs []error
	if err := p.browser.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
	}
	if err := p.playwright.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
	}

	p.initialized = false
	return errors.Join(errs...)
}

// playwrightPage implements Driver on top of a Playwright page.
type playwrightPage struct {
	mu      sync.Mutex
	context playwright.BrowserContext
	page    playwright.Page
	timeout float64
	closed  bool
}

func (pp *playwrightPage) close() error {
	pp.mu.Lock()
	if pp.closed {
		pp.mu.Unlock()
		return nil
	}
	pp.closed = true
	pp.mu.Unlock()

	var errs []error
	if err := pp.page.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := pp.context.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ready reports whether a call may proceed.
func (pp *playwrightPage) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	pp.mu.Lock()
	defer pp.mu.Unlock()
	if pp.closed {
		return ErrClosed
	}
	return nil
}

// Click clicks an element matching the selector.
func (pp *playwrightPage) Click(ctx context.Context, selector string) error {
	if err := pp.ready(ctx); err != nil {
		return err
	}

	el, err := pp.page.QuerySelector(selector)
	if err != nil {
		return fmt.Errorf("selector query failed: %w", err)
	}
	if el == nil {
		return fmt.Errorf("%w: %s", ErrElementNotFound, selector)
	}

	if err := pp.page.Click(selector, playwright.PageClickOptions{Timeout: &pp.timeout}); err != nil {
		return fmt.Errorf("click failed: %w", classifyPlaywright(err))
	}
	return nil
}

// Fill fills an input element with the specified value.
func (pp *playwrightPage) Fill(ctx context.Context, selector, value string) error {
	if err := pp.ready(ctx); err != nil {
		return err
	}

	el, err := pp.page.QuerySelector(selector)
	if err != nil {
		return fmt.Errorf("selector query failed: %w", err)
	}
	if el == nil {
		return fmt.Errorf("%w: %s", ErrElementNotFound, selector)
	}

	if err := pp.page.Fill(selector, value, playwright.PageFillOptions{Timeout: &pp.timeout}); err != nil {
		return fmt.Errorf("fill failed: %w", classifyPlaywright(err))
	}
	return nil
}

// Evaluate executes JavaScript in the page.
func (pp *playwrightPage) Evaluate(ctx context.Context, script string) (any, error) {
	if err := pp.ready(ctx); err != nil {
		return nil, err
	}

	result, err := pp.page.Evaluate(script)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrScript, err)
	}
	return result, nil
}

// WaitForSelector waits for an element to be attached to the DOM.
func (pp *playwrightPage) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	if err := pp.ready(ctx); err != nil {
		return err
	}

	state := playwright.WaitForSelectorState("attached")
	ms := float64(timeout.Milliseconds())
	_, err := pp.page.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{
		State:   &state,
		Timeout: &ms,
	})
	if err != nil {
		return fmt.Errorf("wait failed: %w", classifyPlaywright(err))
	}
	return nil
}

// Navigate navigates the page to the specified URL.
func (pp *playwrightPage) Navigate(ctx context.Context, url string) error {
	if err := pp.ready(ctx); err != nil {
		return err
	}

	waitUntil := playwright.WaitUntilState("load")
	if _, err := pp.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: &waitUntil,
		Timeout:   &pp.timeout,
	}); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	return nil
}

// Screenshot captures the current viewport as PNG.
func (pp *playwrightPage) Screenshot(ctx context.Context) ([]byte, error) {
	if err := pp.ready(ctx); err != nil {
		return nil, err
	}

	data, err := pp.page.Screenshot()
	if err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}
	return data, nil
}

// TextContent returns the text of the first element matching selector.
func (pp *playwrightPage) TextContent(ctx context.Context, selector string) (string, bool, error) {
	if err := pp.ready(ctx); err != nil {
		return "", false, err
	}

	el, err := pp.page.QuerySelector(selector)
	if err != nil {
		return "", false, fmt.Errorf("%w: selector query failed: %v", ErrScript, err)
	}
	if el == nil {
		return "", false, nil
	}

	text, err := el.TextContent()
	if err != nil {
		return "", false, fmt.Errorf("%w: text extraction failed: %v", ErrScript, err)
	}
	return text, true, nil
}

// classifyPlaywright maps Playwright timeouts onto ErrTimeout.
func classifyPlaywright(err error) error {
	if errors.Is(err, playwright.ErrTimeout) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}
