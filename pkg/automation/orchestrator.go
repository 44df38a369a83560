package automation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/entrhq/convoy/pkg/browser"
	"github.com/entrhq/convoy/pkg/config"
	"github.com/entrhq/convoy/pkg/logging"
	"github.com/entrhq/convoy/pkg/telemetry"
)

// Orchestrator runs automation requests against a browser provider.
// It is safe for concurrent use; each run owns its own sessions.
type Orchestrator struct {
	provider browser.Provider
	cfg      *config.Config
	policy   *config.URLPolicy
	cfgErr   error
	logger   *logging.Logger
	metrics  *telemetry.Metrics
	captures CaptureStore
	limiter  *rate.Limiter
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(metrics *telemetry.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = metrics
	}
}

// WithCaptureStore sets where screenshots go. The default keeps them in memory.
func WithCaptureStore(store CaptureStore) Option {
	return func(o *Orchestrator) {
		o.captures = store
	}
}

// New creates an orchestrator. cfg may be nil for defaults. A URL policy
// that does not compile makes every Run fail with InvalidRequest.
func New(provider browser.Provider, cfg *config.Config, opts ...Option) *Orchestrator {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	policy, err := cfg.Policy()
	o := &Orchestrator{
		provider: provider,
		cfg:      cfg,
		policy:   policy,
	}
	if err != nil {
		o.cfgErr = wrapError(KindInvalidRequest, fmt.Errorf("invalid security configuration: %w", err))
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.logger == nil {
		o.logger = logging.Discard()
	}
	if o.captures == nil {
		o.captures = NewMemoryCaptureStore()
	}
	if r := cfg.Orchestration.ActionRate; r > 0 {
		burst := max(cfg.Orchestration.ActionBurst, 1)
		o.limiter = rate.NewLimiter(rate.Limit(r), burst)
	}

	return o
}

// Run validates req, opens a session per site, executes the actions under
// the requested coordination and returns the aggregated report.
//
// Only an invalid request yields an error, in which case no session was
// opened. Every opened session is closed before Run returns, including
// when the time budget runs out or a panic unwinds the call.
func (o *Orchestrator) Run(ctx context.Context, req *Request) (*Report, error) {
	if o.cfgErr != nil {
		o.logger.Errorf("rejected request: %v", o.cfgErr)
		return nil, o.cfgErr
	}
	if err := req.Validate(o.policy); err != nil {
		o.logger.Warnf("rejected request: %v", err)
		return nil, err
	}

	runID := uuid.NewString()
	started := time.Now()
	timeout := o.timeout(req)

	ctx, span := telemetry.StartSpan(ctx, "automation.run",
		telemetry.AttrRunID.String(runID),
		telemetry.AttrCoordination.String(string(req.Coordination)),
	)
	defer span.End()

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	logger := o.logger.With(runID[:8])
	logger.Infof("starting %s run: %d sites, %d actions, budget %s",
		req.Coordination, len(req.Sites), len(req.Actions), timeout)

	reg := NewRegistry(o.provider, logger, o.metrics)
	defer func() {
		if errs := reg.CloseAll(); len(errs) > 0 {
			logger.Warnf("%d sessions failed to close cleanly", len(errs))
		}
	}()

	for _, site := range req.Sites {
		if runCtx.Err() != nil {
			break
		}
		if _, err := reg.Open(runCtx, site.ID, site.URL, site.InitialContext); err != nil {
			logger.Warnf("%v", err)
		}
	}

	engine := &Engine{
		Executor: &Executor{
			WaitForTimeout: o.cfg.Orchestration.WaitForTimeout,
			DefaultWait:    o.cfg.Orchestration.DefaultWait,
			Captures:       o.captures,
			Limiter:        o.limiter,
			Metrics:        o.metrics,
			Logger:         logger,
		},
		Workers:       o.cfg.Orchestration.Workers,
		StopOnFailure: o.stopOnFailure(req),
		Policy:        o.policy,
		Logger:        logger,
	}
	outcome := engine.Run(runCtx, reg, req.Actions, req.Coordination)

	var markers []ErrorKind
	timedOut := false
	if outcome.Interrupted {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			timedOut = true
			markers = append(markers, KindBatchTimeout)
			logger.Warnf("run exceeded its %s budget; returning partial results", timeout)
		} else {
			markers = append(markers, KindCancelled)
			logger.Warnf("run cancelled; returning partial results")
		}
	}

	report := newReport(runID, req.Coordination, outcome.Results, len(req.Actions), started, time.Now(), markers...)
	o.metrics.RecordRun(string(req.Coordination), timedOut)
	logger.Infof("run finished in %s: %d succeeded, %d failed, %d skipped",
		report.Duration().Round(time.Millisecond), report.Summary.Succeeded, report.Summary.Failed, report.Summary.Skipped)

	return report, nil
}

func (o *Orchestrator) timeout(req *Request) time.Duration {
	if req.TimeoutMs > 0 {
		return time.Duration(req.TimeoutMs) * time.Millisecond
	}
	if d := o.cfg.Orchestration.DefaultTimeout; d > 0 {
		return d
	}
	return config.DefaultConfig().Orchestration.DefaultTimeout
}

func (o *Orchestrator) stopOnFailure(req *Request) bool {
	if req.StopOnFailure != nil {
		return *req.StopOnFailure
	}
	return o.cfg.Orchestration.StopOnFailure
}
