package automation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/entrhq/convoy/pkg/browser"
	"github.com/entrhq/convoy/pkg/logging"
	"github.com/entrhq/convoy/pkg/telemetry"
)

// Default executor bounds
const (
	DefaultWaitForTimeout = 10 * time.Second
	DefaultWait           = time.Second
)

// Executor performs single actions against a session's driver and turns
// every outcome into an ActionResult. It never returns an error; failures
// are recorded on the result.
//
// The zero value is usable.
type Executor struct {
	// WaitForTimeout bounds an action's waitFor step
	WaitForTimeout time.Duration

	// DefaultWait is the pause of a wait action with no value
	DefaultWait time.Duration

	// Captures stores screenshots; nil uses an in-memory store
	Captures CaptureStore

	// Limiter paces driver calls; nil means unlimited
	Limiter *rate.Limiter

	Metrics *telemetry.Metrics
	Logger  *logging.Logger

	captureOnce sync.Once
}

// Execute runs a against s. The caller must hold s's exec lock; Index on the
// returned result is left for the caller to set.
func (e *Executor) Execute(ctx context.Context, s *Session, a Action) (res ActionResult) {
	start := time.Now()
	res = ActionResult{
		Kind:     a.Kind,
		Site:     a.Site,
		Selector: a.Selector,
		Value:    string(a.Value),
	}

	ctx, span := telemetry.StartSpan(ctx, "automation.action",
		telemetry.AttrActionKind.String(string(a.Kind)),
		telemetry.AttrSiteID.String(a.Site),
		telemetry.AttrSessionID.String(s.ID),
	)

	defer func() {
		if p := recover(); p != nil {
			res.fail(newError(KindDriver, "driver panic during %s: %v", a.Kind, p))
		}
		elapsed := time.Since(start)
		res.DurationMs = elapsed.Milliseconds()

		outcome := "ok"
		var spanErr error
		if res.Error != nil {
			outcome = string(res.Error.Kind)
			spanErr = res.Error
			span.SetAttributes(telemetry.AttrErrorKind.String(outcome))
			e.logger().Debugf("%s on site %q failed: %v", a.Kind, a.Site, res.Error)
		}
		e.Metrics.RecordAction(string(a.Kind), outcome, elapsed)
		telemetry.EndSpan(span, spanErr)
	}()

	driver, closedErr := s.begin()
	if closedErr != nil {
		res.fail(closedErr)
		return res
	}

	if a.WaitFor != "" && a.Kind != ActionWait {
		if err := e.pace(ctx); err != nil {
			res.fail(err)
			return res
		}
		if err := driver.WaitForSelector(ctx, a.WaitFor, e.waitForTimeout()); err != nil {
			res.fail(classify(err, KindElementTimeout))
			return res
		}
	}

	if a.Kind != ActionWait {
		if err := e.pace(ctx); err != nil {
			res.fail(err)
			return res
		}
	}

	switch a.Kind {
	case ActionClick:
		if err := driver.Click(ctx, a.Selector); err != nil {
			res.fail(classify(err, KindDriver))
			return res
		}

	case ActionType:
		if err := driver.Fill(ctx, a.Selector, string(a.Value)); err != nil {
			res.fail(classify(err, KindDriver))
			return res
		}

	case ActionExtract:
		data, err := extractText(ctx, driver, a.Selector)
		if err != nil {
			res.fail(classify(err, KindScript))
			return res
		}
		res.Data = data

	case ActionScript:
		data, err := driver.Evaluate(ctx, string(a.Value))
		if err != nil {
			res.fail(classify(err, KindScript))
			return res
		}
		res.Data = data

	case ActionNavigate:
		if err := driver.Navigate(ctx, string(a.Value)); err != nil {
			res.fail(classify(err, KindNavigation))
			return res
		}
		s.setTarget(string(a.Value))

	case ActionWait:
		d, err := a.Value.Duration(e.defaultWait())
		if err != nil {
			res.fail(newError(KindDriver, "invalid wait value: %v", err))
			return res
		}
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			res.fail(wrapError(KindDriver, ctx.Err()))
			return res
		}

	case ActionScreenshot:
		image, err := driver.Screenshot(ctx)
		if err != nil {
			res.fail(classify(err, KindCapture))
			return res
		}
		handle, err := e.captures().Save(ctx, a.Site, image)
		if err != nil {
			res.fail(wrapError(KindCapture, err))
			return res
		}
		res.Data = handle

	default:
		res.fail(newError(KindDriver, "unknown action kind %q", a.Kind))
		return res
	}

	res.Success = true
	return res
}

// extractText returns the trimmed text of the first match, or nil when
// nothing matches.
func extractText(ctx context.Context, driver browser.Driver, selector string) (any, error) {
	if te, ok := driver.(browser.TextExtractor); ok {
		text, found, err := te.TextContent(ctx, selector)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, nil
		}
		return strings.TrimSpace(text), nil
	}

	v, err := driver.Evaluate(ctx, browser.TextProbe(selector))
	if err != nil {
		return nil, err
	}
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		return strings.TrimSpace(t), nil
	default:
		return t, nil
	}
}

// classify maps driver errors onto error kinds. Errors that carry no
// recognizable sentinel get fallback.
func classify(err error, fallback ErrorKind) *Error {
	var kind ErrorKind
	switch {
	case errors.Is(err, browser.ErrClosed):
		kind = KindSessionClosed
	case errors.Is(err, browser.ErrElementNotFound):
		kind = KindElementNotFound
	case errors.Is(err, browser.ErrTimeout) && fallback != KindNavigation && fallback != KindScript:
		kind = KindElementTimeout
	case errors.Is(err, browser.ErrScript):
		kind = KindScript
	default:
		kind = fallback
	}
	return wrapError(kind, err)
}

func (e *Executor) pace(ctx context.Context) *Error {
	if e.Limiter == nil {
		return nil
	}
	if err := e.Limiter.Wait(ctx); err != nil {
		return &Error{Kind: KindDriver, Message: fmt.Sprintf("action pacing interrupted: %v", err), Err: err}
	}
	return nil
}

func (e *Executor) captures() CaptureStore {
	e.captureOnce.Do(func() {
		if e.Captures == nil {
			e.Captures = NewMemoryCaptureStore()
		}
	})
	return e.Captures
}

func (e *Executor) waitForTimeout() time.Duration {
	if e.WaitForTimeout > 0 {
		return e.WaitForTimeout
	}
	return DefaultWaitForTimeout
}

func (e *Executor) defaultWait() time.Duration {
	if e.DefaultWait > 0 {
		return e.DefaultWait
	}
	return DefaultWait
}

func (e *Executor) logger() *logging.Logger {
	if e.Logger == nil {
		return logging.Discard()
	}
	return e.Logger
}
