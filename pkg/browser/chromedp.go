package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

// ChromedpProvider starts one Chromium process per session through the
// DevTools protocol.
type ChromedpProvider struct {
	opts Options

	mu   sync.Mutex
	tabs map[*chromedpTab]struct{}
}

// NewChromedpProvider creates a provider.
func NewChromedpProvider(opts Options) *ChromedpProvider {
	return &ChromedpProvider{
		opts: opts.withDefaults(),
		tabs: make(map[*chromedpTab]struct{}),
	}
}

// OpenContext launches a browser process and returns its first tab.
func (p *ChromedpProvider) OpenContext(ctx context.Context) (Driver, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", p.opts.Headless),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
		chromedp.Flag("mute-audio", true),
		chromedp.WindowSize(p.opts.Viewport.Width, p.opts.Viewport.Height),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(string, ...interface{}) {}),
	)

	// The first Run must use the tab context itself; a derived timeout context
	// would take the browser down with it.
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	tab := &chromedpTab{
		ctx:         tabCtx,
		cancel:      tabCancel,
		allocCancel: allocCancel,
		timeout:     p.opts.Timeout,
	}

	p.mu.Lock()
	p.tabs[tab] = struct{}{}
	p.mu.Unlock()

	return tab, nil
}

// CloseContext closes the tab and terminates its browser process.
func (p *ChromedpProvider) CloseContext(d Driver) error {
	tab, ok := d.(*chromedpTab)
	if !ok {
		return fmt.Errorf("driver %T was not created by the chromedp engine", d)
	}

	p.mu.Lock()
	delete(p.tabs, tab)
	p.mu.Unlock()

	return tab.close()
}

// Shutdown closes every tab still open.
func (p *ChromedpProvider) Shutdown() error {
	p.mu.Lock()
	tabs := make([]*chromedpTab, 0, len(p.tabs))
	for tab := range p.tabs {
		tabs = append(tabs, tab)
	}
	p.tabs = make(map[*chromedpTab]struct{})
	p.mu.Unlock()

	var errs []error
	for _, tab := range tabs {
		if err := tab.close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// chromedpTab implements Driver on top of a chromedp target context.
type chromedpTab struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	timeout     time.Duration

	closeOnce sync.Once
	closed    bool
	mu        sync.Mutex
}

func (t *chromedpTab) close() error {
	var err error
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.closed = true
		t.mu.Unlock()

		err = chromedp.Cancel(t.ctx)
		t.cancel()
		t.allocCancel()
	})
	return err
}

// run executes actions bounded by timeout and by the caller's ctx.
func (t *chromedpTab) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	runCtx, cancel := context.WithTimeout(t.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

func (t *chromedpTab) evaluate(ctx context.Context, script string) (any, error) {
	var res *runtime.RemoteObject
	err := t.run(ctx, t.timeout, chromedp.Evaluate(script, &res, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	}))
	if err != nil {
		return nil, err
	}
	if res == nil || res.Type == runtime.TypeUndefined || len(res.Value) == 0 {
		return nil, nil
	}

	var out any
	if err := json.Unmarshal([]byte(res.Value), &out); err != nil {
		return nil, fmt.Errorf("failed to decode script result: %w", err)
	}
	return out, nil
}

func (t *chromedpTab) exists(ctx context.Context, selector string) error {
	found, err := t.evaluate(ctx, existsProbe(selector))
	if err != nil {
		return fmt.Errorf("selector query failed: %w", err)
	}
	if ok, _ := found.(bool); !ok {
		return fmt.Errorf("%w: %s", ErrElementNotFound, selector)
	}
	return nil
}

// Click clicks an element matching the selector.
func (t *chromedpTab) Click(ctx context.Context, selector string) error {
	if err := t.exists(ctx, selector); err != nil {
		return err
	}
	if err := t.run(ctx, t.timeout, chromedp.Click(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("click failed: %w", classifyDeadline(err))
	}
	return nil
}

// Fill clears the input matching selector and types value into it.
func (t *chromedpTab) Fill(ctx context.Context, selector, value string) error {
	if err := t.exists(ctx, selector); err != nil {
		return err
	}
	err := t.run(ctx, t.timeout,
		chromedp.SetValue(selector, "", chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("fill failed: %w", classifyDeadline(err))
	}
	return nil
}

// Evaluate executes JavaScript in the page, awaiting returned promises.
func (t *chromedpTab) Evaluate(ctx context.Context, script string) (any, error) {
	out, err := t.evaluate(ctx, script)
	if err != nil {
		if errors.Is(err, ErrClosed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrScript, err)
	}
	return out, nil
}

// WaitForSelector waits until an element matching selector is ready.
func (t *chromedpTab) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	if err := t.run(ctx, timeout, chromedp.WaitReady(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("wait failed: %w", classifyDeadline(err))
	}
	return nil
}

// Navigate navigates the tab to url.
func (t *chromedpTab) Navigate(ctx context.Context, url string) error {
	if err := t.run(ctx, t.timeout, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	return nil
}

// Screenshot captures the current viewport as PNG.
func (t *chromedpTab) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := t.run(ctx, t.timeout, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}
	return buf, nil
}

// TextContent returns the text of the first element matching selector.
func (t *chromedpTab) TextContent(ctx context.Context, selector string) (string, bool, error) {
	out, err := t.Evaluate(ctx, TextProbe(selector))
	if err != nil {
		return "", false, err
	}
	text, ok := out.(string)
	if !ok {
		return "", false, nil
	}
	return text, true, nil
}

// classifyDeadline maps an elapsed chromedp timeout onto ErrTimeout.
func classifyDeadline(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}
