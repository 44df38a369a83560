package automation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/entrhq/convoy/pkg/browser"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n fake image")

// fakeProvider hands out in-memory drivers over a fixed set of pages.
type fakeProvider struct {
	// pages maps URL to selector to text
	pages map[string]map[string]string

	// scripts maps script body to its result; "throw" fails and "panic" panics
	scripts map[string]any

	// delay is slept (ctx-aware) by every driver call
	delay time.Duration

	openErr error

	mu      sync.Mutex
	opened  int
	closed  int
	drivers []*fakeDriver

	active    atomic.Int32
	maxActive atomic.Int32
}

func newFakeProvider(pages map[string]map[string]string) *fakeProvider {
	return &fakeProvider{pages: pages, scripts: map[string]any{}}
}

func (p *fakeProvider) OpenContext(ctx context.Context) (browser.Driver, error) {
	if p.openErr != nil {
		return nil, p.openErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.opened++
	d := &fakeDriver{provider: p, elements: map[string]string{}}
	p.drivers = append(p.drivers, d)
	return d, nil
}

func (p *fakeProvider) CloseContext(d browser.Driver) error {
	p.mu.Lock()
	p.closed++
	p.mu.Unlock()

	fd := d.(*fakeDriver)
	fd.mu.Lock()
	defer fd.mu.Unlock()
	if fd.isClosed {
		return errors.New("closed twice")
	}
	fd.isClosed = true
	return nil
}

func (p *fakeProvider) Shutdown() error { return nil }

func (p *fakeProvider) counts() (opened, closed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opened, p.closed
}

// driverAt returns the driver currently showing url.
func (p *fakeProvider) driverAt(url string) *fakeDriver {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, d := range p.drivers {
		if d.currentURL() == url {
			return d
		}
	}
	return nil
}

type fakeDriver struct {
	provider *fakeProvider

	mu       sync.Mutex
	url      string
	elements map[string]string
	calls    []string
	isClosed bool

	inFlight atomic.Int32
	overlap  atomic.Bool
}

func (d *fakeDriver) enter(ctx context.Context, call string) error {
	if d.inFlight.Add(1) > 1 {
		d.overlap.Store(true)
	}
	n := d.provider.active.Add(1)
	for {
		m := d.provider.maxActive.Load()
		if n <= m || d.provider.maxActive.CompareAndSwap(m, n) {
			break
		}
	}

	d.mu.Lock()
	closed := d.isClosed
	d.calls = append(d.calls, call)
	d.mu.Unlock()
	if closed {
		return browser.ErrClosed
	}

	if delay := d.provider.delay; delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (d *fakeDriver) leave() {
	d.inFlight.Add(-1)
	d.provider.active.Add(-1)
}

func (d *fakeDriver) lookup(selector string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	text, ok := d.elements[selector]
	return text, ok
}

func (d *fakeDriver) currentURL() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.url
}

func (d *fakeDriver) callLog() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

func (d *fakeDriver) Click(ctx context.Context, selector string) error {
	defer d.leave()
	if err := d.enter(ctx, "click "+selector); err != nil {
		return err
	}
	if _, ok := d.lookup(selector); !ok {
		return fmt.Errorf("click %s: %w", selector, browser.ErrElementNotFound)
	}
	return nil
}

func (d *fakeDriver) Fill(ctx context.Context, selector, value string) error {
	defer d.leave()
	if err := d.enter(ctx, "type "+selector); err != nil {
		return err
	}
	if _, ok := d.lookup(selector); !ok {
		return fmt.Errorf("fill %s: %w", selector, browser.ErrElementNotFound)
	}
	d.mu.Lock()
	d.elements[selector] = value
	d.mu.Unlock()
	return nil
}

func (d *fakeDriver) Evaluate(ctx context.Context, script string) (any, error) {
	defer d.leave()
	if err := d.enter(ctx, "script "+script); err != nil {
		return nil, err
	}
	switch script {
	case "throw":
		return nil, fmt.Errorf("%w: ReferenceError: x is not defined", browser.ErrScript)
	case "panic":
		panic("driver exploded")
	}
	return d.provider.scripts[script], nil
}

func (d *fakeDriver) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	defer d.leave()
	if err := d.enter(ctx, "wait "+selector); err != nil {
		return err
	}
	if _, ok := d.lookup(selector); !ok {
		return fmt.Errorf("waiting %s for %s: %w", timeout, selector, browser.ErrTimeout)
	}
	return nil
}

func (d *fakeDriver) Navigate(ctx context.Context, url string) error {
	defer d.leave()
	if err := d.enter(ctx, "navigate "+url); err != nil {
		return err
	}
	page, ok := d.provider.pages[url]
	if !ok {
		return fmt.Errorf("net::ERR_NAME_NOT_RESOLVED at %s", url)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.url = url
	d.elements = make(map[string]string, len(page))
	for k, v := range page {
		d.elements[k] = v
	}
	return nil
}

func (d *fakeDriver) Screenshot(ctx context.Context) ([]byte, error) {
	defer d.leave()
	if err := d.enter(ctx, "screenshot"); err != nil {
		return nil, err
	}
	return pngMagic, nil
}

func (d *fakeDriver) TextContent(ctx context.Context, selector string) (string, bool, error) {
	defer d.leave()
	if err := d.enter(ctx, "extract "+selector); err != nil {
		return "", false, err
	}
	text, ok := d.lookup(selector)
	return text, ok, nil
}

// evalOnlyDriver lacks TextContent, forcing extraction through Evaluate.
type evalOnlyDriver struct {
	result any
	err    error
	script string
}

func (d *evalOnlyDriver) Click(context.Context, string) error         { return nil }
func (d *evalOnlyDriver) Fill(context.Context, string, string) error { return nil }
func (d *evalOnlyDriver) Evaluate(_ context.Context, script string) (any, error) {
	d.script = script
	return d.result, d.err
}
func (d *evalOnlyDriver) WaitForSelector(context.Context, string, time.Duration) error { return nil }
func (d *evalOnlyDriver) Navigate(context.Context, string) error                       { return nil }
func (d *evalOnlyDriver) Screenshot(context.Context) ([]byte, error)                   { return nil, nil }

func boolPtr(b bool) *bool { return &b }
