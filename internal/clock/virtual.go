package clock

import (
	"sync"
	"time"

	"github.com/google/btree"

	"github.com/coachpo/tempo/errs"
	"github.com/coachpo/tempo/internal/observability"
	"github.com/coachpo/tempo/internal/telemetry"
)

const queueDegree = 16

type fireItem struct {
	at    time.Time
	label Label
}

func lessFire(a, b fireItem) bool {
	if !a.at.Equal(b.at) {
		return a.at.Before(b.at)
	}
	return a.label < b.label
}

// VirtualClock is advanced explicitly. It never starts goroutines; every
// firing happens inside IterateTime and is returned to the caller in fire
// time order (ties broken by label).
type VirtualClock struct {
	mu      sync.Mutex
	now     time.Time
	reg     registry
	queue   *btree.BTreeG[fireItem]
	metrics *clockMetrics
}

// NewVirtualClock initialises a clock positioned at start.
func NewVirtualClock(start time.Time, opts ...Option) *VirtualClock {
	cfg := applyOptions(opts)
	c := &VirtualClock{
		now:     start.UTC(),
		reg:     newRegistry(),
		queue:   btree.NewG[fireItem](queueDegree, lessFire),
		metrics: newClockMetrics(cfg.meterProvider, telemetry.ClockKindVirtual),
	}
	if cfg.logger != nil {
		c.reg.setLogger(cfg.logger)
	}
	return c
}

// TimeNow returns the simulated instant.
func (c *VirtualClock) TimeNow() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// GetDelta returns the simulated time elapsed since start.
func (c *VirtualClock) GetDelta(start time.Time) time.Duration {
	return c.TimeNow().Sub(start)
}

// SetTime positions the clock at t without firing anything.
func (c *VirtualClock) SetTime(t time.Time) {
	c.mu.Lock()
	c.now = t.UTC()
	c.mu.Unlock()
}

func (c *VirtualClock) RegisterHandler(handler Handler) {
	c.mu.Lock()
	c.reg.handler = handler
	c.mu.Unlock()
}

func (c *VirtualClock) RegisterLogger(logger observability.Logger) {
	c.mu.Lock()
	c.reg.setLogger(logger)
	c.mu.Unlock()
}

func (c *VirtualClock) IsHandlerRegistered() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reg.handler != nil
}

func (c *VirtualClock) IsLoggerRegistered() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reg.loggerSet
}

// SetTimeAlert schedules a one-shot alert.
func (c *VirtualClock) SetTimeAlert(label Label, alertTime time.Time) error {
	t, err := newAlert(label, alertTime)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.insertLocked(t)
}

// SetTimer schedules a repeating timer. A nil start means the current
// simulated time.
func (c *VirtualClock) SetTimer(label Label, interval time.Duration, start, stop *time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	from := c.now
	if start != nil {
		from = *start
	}
	t, err := newTimer(label, interval, from, stop)
	if err != nil {
		return err
	}
	return c.insertLocked(t)
}

func (c *VirtualClock) insertLocked(t *Timer) error {
	if _, exists := c.reg.timers[t.Label]; exists {
		return duplicateLabel(t.Label)
	}
	c.reg.timers[t.Label] = t
	c.queue.ReplaceOrInsert(fireItem{at: t.NextFireTime, label: t.Label})
	c.metrics.recordScheduled(t.Kind())
	c.reg.logger.Debug("timer scheduled", timerFields(t)...)
	return nil
}

func (c *VirtualClock) CancelTimer(label Label) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.reg.timers[label]
	if !ok {
		return
	}
	c.removeLocked(t)
	c.metrics.recordCancelled(t.Kind())
	c.reg.logger.Debug("timer cancelled", observability.F("label", string(label)))
}

func (c *VirtualClock) CancelAllTimers() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.reg.timers {
		c.metrics.recordCancelled(t.Kind())
	}
	n := len(c.reg.timers)
	c.reg.timers = make(map[Label]*Timer)
	c.queue.Clear(false)
	if n > 0 {
		c.reg.logger.Debug("all timers cancelled", observability.F("count", n))
	}
}

func (c *VirtualClock) removeLocked(t *Timer) {
	c.queue.Delete(fireItem{at: t.NextFireTime, label: t.Label})
	delete(c.reg.timers, t.Label)
}

func (c *VirtualClock) TimerLabels() []Label {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reg.timerLabels()
}

func (c *VirtualClock) NextFireTime(label Label) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reg.nextFireTime(label)
}

func (c *VirtualClock) EventTimes() []time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reg.eventTimes()
}

func (c *VirtualClock) NextEventTime() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reg.nextEventTime()
}

func (c *VirtualClock) HasEventTimes() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reg.hasEventTimes()
}

// IterateTime advances the clock to `to` and returns every event fired on
// the way, paired with the handler registered now. Alerts due at or before
// `to` fire; repeating timers fire for each tick strictly before `to`, so a
// tick landing exactly on `to` stays pending for the next call. Exhausted
// timers and fired alerts are removed.
//
// Within one call events are ordered by time, then label. Across calls the
// deferral means an alert and a tick sharing an instant come out in label
// order only when `to` is past that instant; when `to` equals it the alert
// is returned first and the tick on the following call.
func (c *VirtualClock) IterateTime(to time.Time) ([]TimeEventHandler, error) {
	to = to.UTC()
	c.mu.Lock()
	defer c.mu.Unlock()

	if to.Before(c.now) {
		return nil, errs.New(component, errs.CodeInvalid,
			errs.WithMessage("cannot iterate backwards"),
			errs.WithField("now", c.now.Format(time.RFC3339Nano)),
			errs.WithField("to", to.Format(time.RFC3339Nano)))
	}

	handler := c.reg.handler
	var out []TimeEventHandler
	firedByKind := make(map[string]int, 2)
	for {
		item, ok := c.nextDueLocked(to)
		if !ok {
			break
		}
		c.queue.Delete(item)
		t := c.reg.timers[item.label]
		out = append(out, TimeEventHandler{Event: NewTimeEvent(t.Label, item.at), Handler: handler})
		firedByKind[t.Kind()]++
		if t.advance() {
			c.queue.ReplaceOrInsert(fireItem{at: t.NextFireTime, label: t.Label})
			continue
		}
		delete(c.reg.timers, t.Label)
		if t.Repeating {
			c.reg.logger.Debug("timer expired", observability.F("label", string(t.Label)), observability.F("fired", t.FireCount()))
		}
	}
	c.now = to

	for kind, n := range firedByKind {
		c.metrics.recordFired(kind, n)
	}
	if handler == nil && len(out) > 0 {
		c.reg.logger.Warn("events fired without a registered handler", observability.F("count", len(out)))
	}
	return out, nil
}

// nextDueLocked returns the earliest queue entry eligible to fire by `to`.
// Repeating ticks equal to `to` are skipped.
func (c *VirtualClock) nextDueLocked(to time.Time) (fireItem, bool) {
	var (
		found fireItem
		ok    bool
	)
	c.queue.Ascend(func(item fireItem) bool {
		if item.at.After(to) {
			return false
		}
		if item.at.Equal(to) && c.reg.timers[item.label].Repeating {
			return true
		}
		found, ok = item, true
		return false
	})
	return found, ok
}

// AdvanceTime is IterateTime(TimeNow() + d).
func (c *VirtualClock) AdvanceTime(d time.Duration) ([]TimeEventHandler, error) {
	return c.IterateTime(c.TimeNow().Add(d))
}
