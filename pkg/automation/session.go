package automation

import (
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/entrhq/convoy/pkg/browser"
)

// Session is one open browsing context bound to a site.
//
// Driver calls are serialized by exec; state is guarded by mu. Closing a
// session only takes mu, so a close may race an in-flight driver call and
// that call then fails with SessionClosed or a driver error.
type Session struct {
	ID        string
	SiteID    string
	CreatedAt time.Time

	driver browser.Driver

	exec sync.Mutex

	mu           sync.Mutex
	target       string
	lastActivity time.Time
	values       map[string]any
	closed       bool
}

func newSession(siteID, target string, driver browser.Driver, initial map[string]any) *Session {
	now := time.Now()
	values := make(map[string]any, len(initial))
	maps.Copy(values, initial)

	return &Session{
		ID:           uuid.NewString(),
		SiteID:       siteID,
		CreatedAt:    now,
		driver:       driver,
		target:       target,
		lastActivity: now,
		values:       values,
	}
}

// Target returns the URL the session last navigated to through a navigate
// action. Pages reached by clicking a link are not reflected here.
func (s *Session) Target() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}

// LastActivity returns when the session last ran an action.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Closed reports whether the session has been closed.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Values returns a copy of the session context.
func (s *Session) Values() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.values)
}

// Lookup returns one context value.
func (s *Session) Lookup(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

// merge writes values into the context. Later writes win per key.
func (s *Session) merge(values map[string]any) {
	if len(values) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	maps.Copy(s.values, values)
}

func (s *Session) setTarget(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.target = url
}

// begin returns the driver for an action and stamps activity, or fails with
// SessionClosed.
func (s *Session) begin() (browser.Driver, *Error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, newError(KindSessionClosed, "session for site %q is closed", s.SiteID)
	}
	s.lastActivity = time.Now()
	return s.driver, nil
}

// markClosed flips the session to closed. It reports false if it already was.
func (s *Session) markClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	return true
}
