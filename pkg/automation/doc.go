// Package automation coordinates browser actions across several sites.
//
// A Request names the sites to open and a list of declarative actions. The
// Orchestrator opens one isolated browsing context per site, runs the actions
// under the requested coordination and returns a Report holding one result per
// executed action in submission order.
//
// Architecture:
//
//	┌──────────────────────────────────────────────┐
//	│                 Orchestrator                  │
//	│  - Request validation                        │
//	│  - Time budget                               │
//	│  - Guaranteed session teardown               │
//	└───────┬───────────────────────────┬──────────┘
//	        │                           │
//	        ▼                           ▼
//	┌───────────────┐          ┌─────────────────┐
//	│   Registry    │◀─────────│     Engine      │
//	│  site → Session│          │ sequential /    │
//	└───────┬───────┘          │ parallel        │
//	        │                  └────────┬────────┘
//	        ▼                           ▼
//	┌───────────────┐          ┌─────────────────┐
//	│browser.Driver │◀─────────│    Executor     │
//	└───────────────┘          └─────────────────┘
//
// Coordination:
//
// Sequential runs execute one action at a time. With stop-on-failure set
// (batch-wide or per action) the first failure halts the run and the rest
// are reported as skipped. Actions on a site without a session fail with
// SessionNotFound and never halt the run. Data an action shares is merged into every open
// session's context.
//
// Parallel runs dispatch every action onto a bounded pool. Actions on
// different sites overlap; actions on the same site still run in submission
// order because a browsing context is not safe for concurrent use. Shared
// data only reaches the acting session.
//
// Shared data:
//
// Actions with shareData merge their output into session context. Object
// output merges key by key; other output is stored under shareAs, the
// selector (extract) or the kind name. Later actions reference context with
// {{key}} placeholders in their selector, value or waitFor, and
// {{key|urlquery}} escapes the value for a query string.
//
// Example usage:
//
//	provider, _ := browser.NewProvider(cfg.BrowserOptions())
//	defer provider.Shutdown()
//
//	orch := automation.New(provider, cfg)
//	report, err := orch.Run(ctx, &automation.Request{
//	    Sites: []automation.Site{
//	        {ID: "docs", URL: "https://go.dev/doc/"},
//	        {ID: "pkg", URL: "https://pkg.go.dev/"},
//	    },
//	    Actions: []automation.Action{
//	        {Kind: automation.ActionExtract, Site: "docs", Selector: "h1", ShareData: true, ShareAs: "title"},
//	        {Kind: automation.ActionNavigate, Site: "pkg", Value: "https://pkg.go.dev/search?q={{title|urlquery}}"},
//	    },
//	    Coordination: automation.Sequential,
//	})
//
// Errors:
//
// Action failures never abort a run. They are recorded on the ActionResult
// as an *Error whose Kind classifies the fault. Run itself only returns an
// error for an invalid request, before any session is opened. A run that
// exhausts its budget returns the results completed so far with a
// BatchTimeout marker in the summary.
package automation
