// Package browser provides the browsing engines convoy drives automation through.
//
// The package separates two capabilities:
//
//  1. Provider: creates an isolated browsing context and destroys it on demand
//  2. Driver: the page-level capability of one context (click, fill, evaluate,
//     wait for selector, navigate, screenshot)
//
// The orchestration core in pkg/automation only ever sees these two interfaces.
//
// # Engines
//
// Three engines are available:
//
//   - playwright: Chromium through Playwright. One browser process per provider,
//     one BrowserContext and Page per session. This is the default.
//   - chromedp: Chromium through the DevTools protocol. One browser process per
//     session.
//   - static: plain HTTP fetches parsed with goquery. No JavaScript; useful for
//     server-rendered pages, fixtures and offline runs.
//
// # Errors
//
// Drivers report expected page-level conditions through the sentinel errors in
// this package (ErrElementNotFound, ErrTimeout, ErrScript, ErrUnsupported,
// ErrClosed), wrapped with fmt.Errorf("...: %w"). Callers classify with errors.Is.
//
// # Example Usage
//
//	provider, err := browser.NewProvider(browser.Options{Engine: browser.EnginePlaywright, Headless: true})
//	if err != nil {
//	    return err
//	}
//	defer provider.Shutdown()
//
//	driver, err := provider.OpenContext(ctx)
//	if err != nil {
//	    return err
//	}
//	defer provider.CloseContext(driver)
//
//	if err := driver.Navigate(ctx, "https://example.com"); err != nil {
//	    return err
//	}
//	title, err := driver.Evaluate(ctx, "document.title")
package browser
