package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// StaticProvider serves pages fetched over HTTP (or from fixtures) as parsed
// documents. It never executes JavaScript.
type StaticProvider struct {
	opts   Options
	client *http.Client
}

// NewStaticProvider creates a provider.
func NewStaticProvider(opts Options) *StaticProvider {
	opts = opts.withDefaults()

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{
			Timeout: opts.Timeout,
		}
	}

	return &StaticProvider{
		opts:   opts,
		client: client,
	}
}

// OpenContext returns an empty document context.
func (p *StaticProvider) OpenContext(ctx context.Context) (Driver, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &staticPage{provider: p}, nil
}

// CloseContext discards the document.
func (p *StaticProvider) CloseContext(d Driver) error {
	sp, ok := d.(*staticPage)
	if !ok {
		return fmt.Errorf("driver %T was not created by the static engine", d)
	}

	sp.mu.Lock()
	defer sp.mu.Unlock()
	sp.closed = true
	sp.doc = nil
	return nil
}

// Shutdown is a no-op; the static engine holds no processes.
func (p *StaticProvider) Shutdown() error {
	p.client.CloseIdleConnections()
	return nil
}

// load returns the document for rawURL from fixtures or over HTTP.
func (p *StaticProvider) load(ctx context.Context, rawURL string) (*goquery.Document, error) {
	if page, ok := p.opts.Pages[rawURL]; ok {
		return goquery.NewDocumentFromReader(strings.NewReader(page))
	}
	if rawURL == "about:blank" {
		return goquery.NewDocumentFromReader(strings.NewReader("<html><head></head><body></body></html>"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", p.opts.UserAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("received status code %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return doc, nil
}

// staticPage implements Driver over a goquery document.
type staticPage struct {
	provider *StaticProvider

	mu     sync.Mutex
	url    *url.URL
	doc    *goquery.Document
	closed bool
}

// find returns the first match for selector under the page lock.
func (sp *staticPage) find(ctx context.Context, selector string) (*goquery.Selection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sp.mu.Lock()
	defer sp.mu.Unlock()
	return sp.findLocked(selector)
}

// findLocked is find for callers already holding sp.mu.
func (sp *staticPage) findLocked(selector string) (*goquery.Selection, error) {
	if sp.closed {
		return nil, ErrClosed
	}
	if sp.doc == nil {
		return nil, fmt.Errorf("%w: %s (no page loaded)", ErrElementNotFound, selector)
	}

	sel := sp.doc.Find(selector).First()
	if sel.Length() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrElementNotFound, selector)
	}
	return sel, nil
}

// Click follows links; other elements are accepted without effect.
// The link and its base URL are read from the same document, so a
// concurrent Navigate cannot pair one page's href with another's URL.
func (sp *staticPage) Click(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	sp.mu.Lock()
	sel, err := sp.findLocked(selector)
	if err != nil {
		sp.mu.Unlock()
		return err
	}
	href, ok := sel.Attr("href")
	isLink := ok && goquery.NodeName(sel) == "a"
	base := sp.url
	sp.mu.Unlock()

	if !isLink {
		return nil
	}

	target, err := resolveHref(base, href)
	if err != nil {
		return fmt.Errorf("click failed: %w", err)
	}
	return sp.Navigate(ctx, target)
}

// Fill sets the value of an input, textarea or select.
func (sp *staticPage) Fill(ctx context.Context, selector, value string) error {
	sel, err := sp.find(ctx, selector)
	if err != nil {
		return err
	}

	sp.mu.Lock()
	defer sp.mu.Unlock()

	switch goquery.NodeName(sel) {
	case "input":
		sel.SetAttr("value", value)
	case "textarea":
		sel.SetText(value)
	case "select":
		sel.Find("option").RemoveAttr("selected")
		sel.Find("option").FilterFunction(func(_ int, opt *goquery.Selection) bool {
			v, _ := opt.Attr("value")
			return v == value
		}).SetAttr("selected", "selected")
	default:
		return fmt.Errorf("fill failed: element %q is not an input", goquery.NodeName(sel))
	}
	return nil
}

// Evaluate is not available without a JavaScript runtime.
func (sp *staticPage) Evaluate(ctx context.Context, script string) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: %w: static engine does not execute scripts", ErrScript, ErrUnsupported)
}

// WaitForSelector checks the loaded document once. A static document never
// changes, so a missing element is reported as a timeout straight away.
func (sp *staticPage) WaitForSelector(ctx context.Context, selector string, _ time.Duration) error {
	if _, err := sp.find(ctx, selector); err != nil {
		if errors.Is(err, ErrElementNotFound) {
			return fmt.Errorf("wait failed: %w: %s", ErrTimeout, selector)
		}
		return err
	}
	return nil
}

// Navigate loads rawURL into the page.
func (sp *staticPage) Navigate(ctx context.Context, rawURL string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("navigation failed: invalid url: %w", err)
	}

	sp.mu.Lock()
	closed := sp.closed
	sp.mu.Unlock()
	if closed {
		return ErrClosed
	}

	doc, err := sp.provider.load(ctx, parsed.String())
	if err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}

	sp.mu.Lock()
	defer sp.mu.Unlock()
	if sp.closed {
		return ErrClosed
	}
	sp.url = parsed
	sp.doc = doc
	return nil
}

// Screenshot returns a cleaned HTML snapshot of the document in place of pixels.
func (sp *staticPage) Screenshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sp.mu.Lock()
	defer sp.mu.Unlock()

	if sp.closed {
		return nil, ErrClosed
	}
	if sp.doc == nil {
		return nil, fmt.Errorf("screenshot failed: no page loaded")
	}

	snapshot := snapshotNode(sp.doc.Selection.Nodes[0], DefaultSnapshotLength)
	return []byte(snapshot.HTML), nil
}

// TextContent returns the trimmed text of the first match.
func (sp *staticPage) TextContent(ctx context.Context, selector string) (string, bool, error) {
	sel, err := sp.find(ctx, selector)
	if err != nil {
		if errors.Is(err, ErrElementNotFound) {
			return "", false, nil
		}
		return "", false, err
	}

	sp.mu.Lock()
	defer sp.mu.Unlock()
	return strings.TrimSpace(sel.Text()), true, nil
}

func resolveHref(base *url.URL, href string) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", fmt.Errorf("invalid href %q: %w", href, err)
	}
	if base == nil {
		return ref.String(), nil
	}
	return base.ResolveReference(ref).String(), nil
}
