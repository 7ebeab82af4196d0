// Package backtest replays strategy timers over a virtual clock against the
// execution store.
package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/coachpo/tempo/errs"
	"github.com/coachpo/tempo/internal/clock"
	"github.com/coachpo/tempo/internal/execution"
	"github.com/coachpo/tempo/internal/observability"
)

const component = "backtest"

// DefaultStep is the clock increment used when none is configured.
const DefaultStep = time.Minute

// EventFunc handles a clock event routed to it by label.
type EventFunc func(ctx context.Context, event clock.TimeEvent) error

type engineConfig struct {
	step   time.Duration
	logger observability.Logger
}

// EngineOption configures optional engine behaviour.
type EngineOption func(*engineConfig)

// WithStep overrides how far the clock advances per iteration. A repeating
// tick due exactly at a step boundary is deferred to the next step, so when
// an alert shares that instant the dispatch order between them depends on
// the step size.
func WithStep(step time.Duration) EngineOption {
	return func(cfg *engineConfig) {
		if step > 0 {
			cfg.step = step
		}
	}
}

// WithLogger sets the run logger.
func WithLogger(logger observability.Logger) EngineOption {
	return func(cfg *engineConfig) {
		cfg.logger = logger
	}
}

// Engine drives a VirtualClock step by step and dispatches the events it
// fires. Events are handled on the calling goroutine in firing order.
type Engine struct {
	clock  *clock.VirtualClock
	db     execution.Database
	step   time.Duration
	logger observability.Logger

	routes map[clock.Label]EventFunc
}

// NewEngine creates a backtest engine over clk and db.
func NewEngine(clk *clock.VirtualClock, db execution.Database, opts ...EngineOption) *Engine {
	cfg := engineConfig{
		step:   DefaultStep,
		logger: observability.Log(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return &Engine{
		clock:  clk,
		db:     db,
		step:   cfg.step,
		logger: observability.Safe(cfg.logger),
		routes: make(map[clock.Label]EventFunc),
	}
}

// Clock returns the engine's clock.
func (e *Engine) Clock() *clock.VirtualClock { return e.clock }

// Database returns the engine's execution store.
func (e *Engine) Database() execution.Database { return e.db }

// Route sends events fired for label to fn instead of the clock's
// registered handler.
func (e *Engine) Route(label clock.Label, fn EventFunc) {
	if fn == nil {
		delete(e.routes, label)
		return
	}
	e.routes[label] = fn
}

// Run positions the clock at start and advances it to stop, dispatching
// every fired event. A handler error or context cancellation stops the
// run; the report then covers the events dispatched so far.
func (e *Engine) Run(ctx context.Context, start, stop time.Time) (Report, error) {
	if e.clock == nil || e.db == nil {
		return Report{}, errs.New(component, errs.CodeInvalid, errs.WithMessage("clock and database required"))
	}
	if !stop.After(start) {
		return Report{}, errs.New(component, errs.CodeInvalid,
			errs.WithMessage("stop must be after start"),
			errs.WithField("start", start.UTC().Format(time.RFC3339)),
			errs.WithField("stop", stop.UTC().Format(time.RFC3339)))
	}

	report := newReport(start, stop)
	e.clock.SetTime(start)
	e.logger.Info("backtest started",
		observability.F("start", start.UTC()),
		observability.F("stop", stop.UTC()),
		observability.F("step", e.step.String()),
		observability.F("timers", len(e.clock.TimerLabels())))

	for now := start.UTC(); now.Before(stop); {
		if err := ctx.Err(); err != nil {
			report.finish(e.db)
			return report, fmt.Errorf("backtest interrupted at %s: %w", now.Format(time.RFC3339), err)
		}
		next := now.Add(e.step)
		if next.After(stop) {
			next = stop.UTC()
		}
		fired, err := e.clock.IterateTime(next)
		if err != nil {
			report.finish(e.db)
			return report, fmt.Errorf("iterate clock: %w", err)
		}
		for _, h := range fired {
			if err := e.dispatch(ctx, h); err != nil {
				report.finish(e.db)
				return report, err
			}
			report.recordEvent(h.Event.Label)
		}
		report.Steps++
		now = next
	}

	report.finish(e.db)
	e.logger.Info("backtest finished",
		observability.F("events", report.EventsDispatched),
		observability.F("residual_orders", len(report.Residuals.WorkingOrders)),
		observability.F("residual_positions", len(report.Residuals.OpenPositions)))
	return report, nil
}

func (e *Engine) dispatch(ctx context.Context, h clock.TimeEventHandler) error {
	fn, ok := e.routes[h.Event.Label]
	if !ok {
		h.Handle()
		return nil
	}
	if err := fn(ctx, h.Event); err != nil {
		e.logger.Error("event handler failed",
			observability.F("label", string(h.Event.Label)),
			observability.F("at", h.Event.Timestamp),
			observability.F("error", err))
		return fmt.Errorf("handle %s at %s: %w", h.Event.Label, h.Event.Timestamp.Format(time.RFC3339), err)
	}
	return nil
}
