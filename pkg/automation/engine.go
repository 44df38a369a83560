package automation

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/entrhq/convoy/pkg/config"
	"github.com/entrhq/convoy/pkg/logging"
)

// Engine schedules a batch of actions over a registry's sessions.
//
// Sequential runs execute one action at a time in submission order and
// propagate shared data to every open session. Parallel runs dispatch all
// actions onto a bounded worker pool; actions on the same site still run in
// submission order, and shared data only reaches the acting session.
type Engine struct {
	Executor *Executor

	// Workers caps the parallel pool; 0 uses one worker per action up to
	// config.MaxWorkers
	Workers int

	// StopOnFailure halts a sequential run at the first failure unless the
	// action overrides it
	StopOnFailure bool

	// Policy vets navigate URLs produced by interpolation; nil allows all
	Policy *config.URLPolicy

	Logger *logging.Logger
}

// Outcome is what an engine run produced.
type Outcome struct {
	// Results holds one entry per executed action, in submission order
	Results []ActionResult

	// Halted is set when a sequential run stopped on a failure
	Halted bool

	// Interrupted is set when ctx ended before every action completed
	Interrupted bool
}

// Run executes actions under mode until they finish or ctx ends. When ctx
// ends first, Run returns immediately with the results completed so far;
// still-running actions are abandoned and their results discarded.
func (e *Engine) Run(ctx context.Context, reg *Registry, actions []Action, mode Coordination) Outcome {
	if e.Executor == nil {
		e.Executor = &Executor{}
	}
	col := newCollector(len(actions))
	done := make(chan struct{})

	go func() {
		defer close(done)
		if mode == Parallel {
			e.runParallel(ctx, reg, actions, col)
		} else {
			e.runSequential(ctx, reg, actions, col)
		}
	}()

	select {
	case <-done:
	case <-ctx.Done():
		select {
		case <-done:
		default:
			results, halted := col.snapshot()
			return Outcome{Results: results, Halted: halted, Interrupted: true}
		}
	}

	results, halted := col.snapshot()
	return Outcome{
		Results:     results,
		Halted:      halted,
		Interrupted: !halted && len(results) < len(actions),
	}
}

func (e *Engine) runSequential(ctx context.Context, reg *Registry, actions []Action, col *collector) {
	for i, a := range actions {
		if ctx.Err() != nil {
			return
		}
		res := e.runOne(ctx, reg, i, a, true)
		col.put(i, res)

		// A missing session is reported and skipped, never a reason to halt.
		if !res.Success && res.Error.Kind != KindSessionNotFound && e.stops(a) {
			e.logger().Infof("halting after action %d (%s on %q): %s", i, a.Kind, a.Site, res.Error.Kind)
			col.halt()
			return
		}
	}
}

func (e *Engine) runParallel(ctx context.Context, reg *Registry, actions []Action, col *collector) {
	var g errgroup.Group
	g.SetLimit(e.workers(len(actions)))

	// Each action waits for the previous action on its site to finish.
	gates := make(map[string]chan struct{})

	for i, a := range actions {
		if ctx.Err() != nil {
			break
		}
		prev := gates[a.Site]
		mine := make(chan struct{})
		gates[a.Site] = mine

		i, a := i, a
		g.Go(func() error {
			defer close(mine)
			if prev != nil {
				select {
				case <-prev:
				case <-ctx.Done():
					return nil
				}
			}
			if ctx.Err() != nil {
				return nil
			}
			col.put(i, e.runOne(ctx, reg, i, a, false))
			return nil
		})
	}

	// Units record failures on their results and never return errors.
	_ = g.Wait()
}

// runOne resolves and executes a single action, then applies its shared
// data. propagate spreads the data to every open session.
func (e *Engine) runOne(ctx context.Context, reg *Registry, index int, a Action, propagate bool) (res ActionResult) {
	defer func() {
		if p := recover(); p != nil {
			res = failedResult(index, a, newError(KindDriver, "panic while running action: %v", p))
		}
	}()

	s, ok := reg.Get(a.Site)
	if !ok {
		return failedResult(index, a, newError(KindSessionNotFound, "no open session for site %q", a.Site))
	}

	s.exec.Lock()
	defer s.exec.Unlock()

	resolved := resolve(a, s)
	if resolved.Kind == ActionNavigate && resolved.Value != a.Value {
		if err := checkURL(e.Policy, string(resolved.Value)); err != nil {
			return failedResult(index, resolved, newError(KindNavigation, "%v", err))
		}
	}

	res = e.Executor.Execute(ctx, s, resolved)
	res.Index = index

	if res.Success && a.ShareData {
		values := sharedValues(resolved, res.Data)
		s.merge(values)
		if propagate {
			for _, other := range reg.Sessions() {
				if other != s && !other.Closed() {
					other.merge(values)
				}
			}
		}
	}
	return res
}

// sharedValues derives the context entries an action contributes. Object
// output merges key by key; anything else lands under shareAs, the
// selector for extract, or the kind name. No output contributes nothing.
func sharedValues(a Action, data any) map[string]any {
	if data == nil {
		return nil
	}
	if m, ok := data.(map[string]any); ok {
		return m
	}

	key := a.ShareAs
	if key == "" && a.Kind == ActionExtract {
		key = a.Selector
	}
	if key == "" {
		key = string(a.Kind)
	}
	return map[string]any{key: data}
}

func failedResult(index int, a Action, err *Error) ActionResult {
	return ActionResult{
		Index:    index,
		Kind:     a.Kind,
		Site:     a.Site,
		Selector: a.Selector,
		Value:    string(a.Value),
		Error:    err,
	}
}

func (e *Engine) stops(a Action) bool {
	if a.StopOnFailure != nil {
		return *a.StopOnFailure
	}
	return e.StopOnFailure
}

func (e *Engine) workers(n int) int {
	if e.Workers > 0 {
		return min(e.Workers, config.MaxWorkers)
	}
	return max(1, min(n, config.MaxWorkers))
}

func (e *Engine) logger() *logging.Logger {
	if e.Logger == nil {
		return logging.Discard()
	}
	return e.Logger
}

// collector gathers results by submission index. Its snapshot may be taken
// while workers are still writing.
type collector struct {
	mu      sync.Mutex
	results []*ActionResult
	halted  bool
}

func newCollector(n int) *collector {
	return &collector{results: make([]*ActionResult, n)}
}

func (c *collector) put(i int, res ActionResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[i] = &res
}

func (c *collector) halt() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.halted = true
}

func (c *collector) snapshot() ([]ActionResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ActionResult, 0, len(c.results))
	for _, r := range c.results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, c.halted
}
