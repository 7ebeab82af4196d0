package clock

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/coachpo/tempo/errs"
	"github.com/coachpo/tempo/internal/observability"
	"github.com/coachpo/tempo/internal/telemetry"
)

// liveTimer is a registered timer plus the waiter that fires it.
type liveTimer struct {
	timer     *Timer
	cancel    context.CancelFunc
	cancelled atomic.Bool
}

// RealTimeClock fires timers against wall-clock time. Each timer or alert is
// served by its own waiter goroutine; the handler runs synchronously on that
// waiter, so one timer's firings never overlap while distinct timers fire
// independently.
type RealTimeClock struct {
	mu      sync.Mutex
	reg     registry
	live    map[Label]*liveTimer
	closed  bool
	waiters conc.WaitGroup

	now     func() time.Time
	metrics *clockMetrics
}

// NewRealTimeClock constructs a clock bound to wall-clock time.
func NewRealTimeClock(opts ...Option) *RealTimeClock {
	cfg := applyOptions(opts)
	c := &RealTimeClock{
		reg:     newRegistry(),
		live:    make(map[Label]*liveTimer),
		now:     cfg.now,
		metrics: newClockMetrics(cfg.meterProvider, telemetry.ClockKindRealtime),
	}
	if cfg.logger != nil {
		c.reg.setLogger(cfg.logger)
	}
	return c
}

// TimeNow returns the current UTC time.
func (c *RealTimeClock) TimeNow() time.Time {
	return c.now().UTC()
}

// GetDelta returns the time elapsed since start.
func (c *RealTimeClock) GetDelta(start time.Time) time.Duration {
	return c.TimeNow().Sub(start)
}

func (c *RealTimeClock) RegisterHandler(handler Handler) {
	c.mu.Lock()
	c.reg.handler = handler
	c.mu.Unlock()
}

func (c *RealTimeClock) RegisterLogger(logger observability.Logger) {
	c.mu.Lock()
	c.reg.setLogger(logger)
	c.mu.Unlock()
}

func (c *RealTimeClock) IsHandlerRegistered() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reg.handler != nil
}

func (c *RealTimeClock) IsLoggerRegistered() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reg.loggerSet
}

// SetTimeAlert schedules a one-shot alert. Past alert times fire immediately.
func (c *RealTimeClock) SetTimeAlert(label Label, alertTime time.Time) error {
	t, err := newAlert(label, alertTime)
	if err != nil {
		return err
	}
	return c.start(t)
}

// SetTimer schedules a repeating timer. A nil start means now.
func (c *RealTimeClock) SetTimer(label Label, interval time.Duration, start, stop *time.Time) error {
	from := c.TimeNow()
	if start != nil {
		from = *start
	}
	t, err := newTimer(label, interval, from, stop)
	if err != nil {
		return err
	}
	return c.start(t)
}

func (c *RealTimeClock) start(t *Timer) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errs.New(component, errs.CodeUnavailable,
			errs.WithMessage("clock shut down"),
			errs.WithField("label", string(t.Label)))
	}
	if _, exists := c.reg.timers[t.Label]; exists {
		return duplicateLabel(t.Label)
	}

	ctx, cancel := context.WithCancel(context.Background())
	lt := &liveTimer{timer: t, cancel: cancel}
	c.reg.timers[t.Label] = t
	c.live[t.Label] = lt
	c.waiters.Go(func() { c.wait(ctx, lt) })

	c.metrics.recordScheduled(t.Kind())
	c.reg.logger.Debug("timer scheduled", timerFields(t)...)
	return nil
}

// wait sleeps until each scheduled instant, fires, and re-arms from the
// original schedule until the timer is exhausted or cancelled.
func (c *RealTimeClock) wait(ctx context.Context, lt *liveTimer) {
	label := lt.timer.Label
	for {
		c.mu.Lock()
		scheduled := lt.timer.NextFireTime
		c.mu.Unlock()

		if delay := scheduled.Sub(c.TimeNow()); delay > 0 {
			sleeper := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				sleeper.Stop()
				return
			case <-sleeper.C:
			}
		}

		c.mu.Lock()
		if lt.cancelled.Load() {
			c.mu.Unlock()
			return
		}
		handler := c.reg.handler
		logger := c.reg.logger
		kind := lt.timer.Kind()
		rearm := lt.timer.advance()
		if !rearm {
			c.forgetLocked(lt)
		}
		c.mu.Unlock()

		firedAt := c.TimeNow()
		c.metrics.recordFired(kind, 1)
		c.metrics.recordLag(kind, firedAt.Sub(scheduled))
		if !c.dispatch(handler, logger, NewTimeEvent(label, firedAt), kind) {
			c.mu.Lock()
			c.forgetLocked(lt)
			c.mu.Unlock()
			return
		}
		if !rearm {
			if lt.timer.Repeating {
				logger.Debug("timer expired", observability.F("label", string(label)))
			}
			return
		}
	}
}

// dispatch runs the handler and reports false when it panicked.
func (c *RealTimeClock) dispatch(handler Handler, logger observability.Logger, event TimeEvent, kind string) (ok bool) {
	if handler == nil {
		logger.Warn("event fired without a registered handler", observability.F("label", string(event.Label)))
		return true
	}
	started := time.Now()
	defer func() {
		c.metrics.recordHandler(kind, time.Since(started))
		if r := recover(); r != nil {
			logger.Error("handler panicked, timer stopped",
				observability.F("label", string(event.Label)),
				observability.F("panic", fmt.Sprint(r)))
			ok = false
		}
	}()
	handler(event)
	return true
}

// forgetLocked drops lt from the registry if it is still the entry for its
// label.
func (c *RealTimeClock) forgetLocked(lt *liveTimer) {
	label := lt.timer.Label
	if c.live[label] == lt {
		delete(c.live, label)
		delete(c.reg.timers, label)
	}
	lt.cancel()
}

// CancelTimer stops the timer or alert. No firing for label starts after it
// returns; a handler already running is allowed to finish.
func (c *RealTimeClock) CancelTimer(label Label) {
	c.mu.Lock()
	defer c.mu.Unlock()
	lt, ok := c.live[label]
	if !ok {
		return
	}
	c.cancelLocked(lt)
	c.reg.logger.Debug("timer cancelled", observability.F("label", string(label)))
}

func (c *RealTimeClock) CancelAllTimers() {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.live)
	for _, lt := range c.live {
		c.cancelLocked(lt)
	}
	if n > 0 {
		c.reg.logger.Debug("all timers cancelled", observability.F("count", n))
	}
}

func (c *RealTimeClock) cancelLocked(lt *liveTimer) {
	lt.cancelled.Store(true)
	c.metrics.recordCancelled(lt.timer.Kind())
	c.forgetLocked(lt)
}

// Shutdown cancels every timer, rejects further scheduling and waits for
// all waiters to exit or ctx to expire.
func (c *RealTimeClock) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	for _, lt := range c.live {
		c.cancelLocked(lt)
	}
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.waiters.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("clock shutdown: %w", ctx.Err())
	}
}

func (c *RealTimeClock) TimerLabels() []Label {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reg.timerLabels()
}

func (c *RealTimeClock) NextFireTime(label Label) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reg.nextFireTime(label)
}

func (c *RealTimeClock) EventTimes() []time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reg.eventTimes()
}

func (c *RealTimeClock) NextEventTime() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reg.nextEventTime()
}

func (c *RealTimeClock) HasEventTimes() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reg.hasEventTimes()
}
