package automation

import (
	"context"
	"fmt"
	"sync"

	"github.com/entrhq/convoy/pkg/browser"
	"github.com/entrhq/convoy/pkg/logging"
	"github.com/entrhq/convoy/pkg/telemetry"
)

// Registry owns the sessions of one request, keyed by site id.
type Registry struct {
	provider browser.Provider
	logger   *logging.Logger
	metrics  *telemetry.Metrics

	mu       sync.RWMutex
	sessions map[string]*Session
	order    []string
}

// NewRegistry creates an empty registry. logger and metrics may be nil.
func NewRegistry(provider browser.Provider, logger *logging.Logger, metrics *telemetry.Metrics) *Registry {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Registry{
		provider: provider,
		logger:   logger,
		metrics:  metrics,
		sessions: make(map[string]*Session),
	}
}

// Open creates a browsing context, navigates it to url and registers it under
// siteID. A context whose navigation fails is closed before returning.
func (r *Registry) Open(ctx context.Context, siteID, url string, initial map[string]any) (*Session, error) {
	r.mu.RLock()
	_, exists := r.sessions[siteID]
	r.mu.RUnlock()
	if exists {
		return nil, newError(KindSessionOpen, "site %q already has an open session", siteID)
	}

	ctx, span := telemetry.StartSpan(ctx, "automation.session.open", telemetry.AttrSiteID.String(siteID))

	driver, err := r.provider.OpenContext(ctx)
	if err != nil {
		r.metrics.RecordSessionOpen(false)
		openErr := &Error{Kind: KindSessionOpen, Message: fmt.Sprintf("failed to open context for site %q: %v", siteID, err), Err: err}
		telemetry.EndSpan(span, openErr)
		return nil, openErr
	}

	if err := driver.Navigate(ctx, url); err != nil {
		if closeErr := r.provider.CloseContext(driver); closeErr != nil {
			r.logger.Warnf("failed to close context for site %q after navigation error: %v", siteID, closeErr)
		}
		r.metrics.RecordSessionOpen(false)
		openErr := &Error{Kind: KindSessionOpen, Message: fmt.Sprintf("failed to load %s for site %q: %v", url, siteID, err), Err: err}
		telemetry.EndSpan(span, openErr)
		return nil, openErr
	}

	session := newSession(siteID, url, driver, initial)
	span.SetAttributes(telemetry.AttrSessionID.String(session.ID))
	telemetry.EndSpan(span, nil)

	r.mu.Lock()
	r.sessions[siteID] = session
	r.order = append(r.order, siteID)
	r.mu.Unlock()

	r.metrics.RecordSessionOpen(true)
	r.logger.Debugf("opened session %s for site %q at %s", session.ID, siteID, url)
	return session, nil
}

// Get returns the open session for siteID.
func (r *Registry) Get(siteID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[siteID]
	return s, ok
}

// Sessions returns the registered sessions in open order.
func (r *Registry) Sessions() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.sessions[id])
	}
	return out
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CloseAll closes every session and empties the registry. Each session is
// attempted even if earlier ones fail; the failures are logged and returned.
func (r *Registry) CloseAll() []error {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.order))
	for _, id := range r.order {
		sessions = append(sessions, r.sessions[id])
	}
	r.sessions = make(map[string]*Session)
	r.order = nil
	r.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		if !s.markClosed() {
			continue
		}
		if err := r.closeDriver(s); err != nil {
			r.logger.Warnf("failed to close session %s for site %q: %v", s.ID, s.SiteID, err)
			errs = append(errs, fmt.Errorf("site %q: %w", s.SiteID, err))
		}
		r.metrics.RecordSessionClose()
	}
	return errs
}

func (r *Registry) closeDriver(s *Session) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic while closing context: %v", p)
		}
	}()
	return r.provider.CloseContext(s.driver)
}
