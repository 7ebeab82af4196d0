package clock

import (
	"sort"
	"strings"
	"time"

	"github.com/coachpo/tempo/errs"
	"github.com/coachpo/tempo/internal/observability"
	"github.com/coachpo/tempo/internal/telemetry"
)

const component = "clock"

// Timer is a scheduled alert or repeating timer. The k-th fire of a repeating
// timer happens at StartTime + k*Interval.
type Timer struct {
	Label        Label
	Interval     time.Duration
	StartTime    time.Time
	StopTime     *time.Time
	NextFireTime time.Time
	Repeating    bool

	fired int
}

func newAlert(label Label, alertTime time.Time) (*Timer, error) {
	if err := validateLabel(label); err != nil {
		return nil, err
	}
	at := alertTime.UTC()
	return &Timer{Label: label, StartTime: at, NextFireTime: at}, nil
}

func newTimer(label Label, interval time.Duration, start time.Time, stop *time.Time) (*Timer, error) {
	if err := validateLabel(label); err != nil {
		return nil, err
	}
	if interval <= 0 {
		return nil, errs.New(component, errs.CodeInvalid,
			errs.WithMessage("interval must be >0"),
			errs.WithField("label", string(label)),
			errs.WithField("interval", interval.String()))
	}
	start = start.UTC()
	t := &Timer{Label: label, Interval: interval, StartTime: start, NextFireTime: start, Repeating: true}
	if stop != nil {
		s := stop.UTC()
		if !s.After(start) {
			return nil, errs.New(component, errs.CodeInvalid,
				errs.WithMessage("stop time must be after start time"),
				errs.WithField("label", string(label)),
				errs.WithField("start", start.Format(time.RFC3339Nano)),
				errs.WithField("stop", s.Format(time.RFC3339Nano)))
		}
		t.StopTime = &s
	}
	return t, nil
}

func validateLabel(label Label) error {
	if strings.TrimSpace(string(label)) == "" {
		return errs.New(component, errs.CodeInvalid, errs.WithMessage("label required"))
	}
	return nil
}

func duplicateLabel(label Label) error {
	return errs.New(component, errs.CodeAlreadyExists,
		errs.WithMessage("label already active"),
		errs.WithField("label", string(label)))
}

// advance records a firing at NextFireTime and moves to the next scheduled
// instant. It returns false when the timer is exhausted.
func (t *Timer) advance() bool {
	t.fired++
	if !t.Repeating {
		return false
	}
	next := t.StartTime.Add(time.Duration(t.fired) * t.Interval)
	if t.StopTime != nil && next.After(*t.StopTime) {
		return false
	}
	t.NextFireTime = next
	return true
}

// FireCount returns how many times the timer has fired.
func (t *Timer) FireCount() int { return t.fired }

// Kind returns the telemetry kind of the timer.
func (t *Timer) Kind() string {
	if t.Repeating {
		return telemetry.TimerKindTimer
	}
	return telemetry.TimerKindAlert
}

// registry holds the state common to both clocks. Callers serialise access.
type registry struct {
	handler   Handler
	logger    observability.Logger
	loggerSet bool
	timers    map[Label]*Timer
}

func newRegistry() registry {
	return registry{logger: observability.Noop(), timers: make(map[Label]*Timer)}
}

func (r *registry) setLogger(logger observability.Logger) {
	if logger == nil {
		r.logger = observability.Noop()
		r.loggerSet = false
		return
	}
	r.logger = observability.Safe(logger)
	r.loggerSet = true
}

func (r *registry) timerLabels() []Label {
	labels := make([]Label, 0, len(r.timers))
	for label, t := range r.timers {
		if t.Repeating {
			labels = append(labels, label)
		}
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i] < labels[j] })
	return labels
}

func (r *registry) eventTimes() []time.Time {
	times := make([]time.Time, 0, len(r.timers))
	for _, t := range r.timers {
		if !t.Repeating {
			times = append(times, t.NextFireTime)
		}
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	return times
}

func (r *registry) nextEventTime() (time.Time, bool) {
	var next time.Time
	found := false
	for _, t := range r.timers {
		if t.Repeating {
			continue
		}
		if !found || t.NextFireTime.Before(next) {
			next = t.NextFireTime
			found = true
		}
	}
	return next, found
}

func (r *registry) nextFireTime(label Label) (time.Time, bool) {
	t, ok := r.timers[label]
	if !ok {
		return time.Time{}, false
	}
	return t.NextFireTime, true
}

func (r *registry) hasEventTimes() bool {
	for _, t := range r.timers {
		if !t.Repeating {
			return true
		}
	}
	return false
}

func timerFields(t *Timer) []observability.Field {
	fields := []observability.Field{
		observability.F("label", string(t.Label)),
		observability.F("kind", t.Kind()),
		observability.F("next_fire", t.NextFireTime),
	}
	if t.Repeating {
		fields = append(fields, observability.F("interval", t.Interval.String()))
	}
	if t.StopTime != nil {
		fields = append(fields, observability.F("stop", *t.StopTime))
	}
	return fields
}
