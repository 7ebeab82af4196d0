// Package clock provides the time abstraction shared by live trading and
// backtests. RealTimeClock fires timers from wall-clock time on background
// waiters; VirtualClock is advanced explicitly and returns the events that
// would have fired, so the same schedule replays identically.
package clock

import (
	"time"

	"github.com/google/uuid"

	"github.com/coachpo/tempo/internal/observability"
)

// Label names a timer or alert. Labels are unique among the active entries
// of one clock.
type Label string

// Handler receives fired time events.
type Handler func(TimeEvent)

// TimeEvent is one firing of an alert or timer. Events are identified by ID
// alone: two firings with the same label and timestamp are distinct.
type TimeEvent struct {
	Label     Label
	ID        uuid.UUID
	Timestamp time.Time
}

// NewTimeEvent stamps a fresh event for label at ts.
func NewTimeEvent(label Label, ts time.Time) TimeEvent {
	return TimeEvent{Label: label, ID: uuid.New(), Timestamp: ts.UTC()}
}

// Equal compares events by ID.
func (e TimeEvent) Equal(other TimeEvent) bool { return e.ID == other.ID }

// Key returns the map key for the event.
func (e TimeEvent) Key() uuid.UUID { return e.ID }

// TimeEventHandler pairs a fired event with the handler registered when it
// fired.
type TimeEventHandler struct {
	Event   TimeEvent
	Handler Handler
}

// Handle dispatches the event. A nil handler drops it.
func (h TimeEventHandler) Handle() {
	if h.Handler != nil {
		h.Handler(h.Event)
	}
}

// Clock is the contract shared by the real-time and virtual clocks.
type Clock interface {
	// TimeNow returns the current instant in UTC.
	TimeNow() time.Time
	// GetDelta returns TimeNow() - start.
	GetDelta(start time.Time) time.Duration

	// RegisterHandler replaces the event handler. nil unregisters.
	RegisterHandler(handler Handler)
	// RegisterLogger replaces the diagnostic sink. nil restores the noop sink.
	RegisterLogger(logger observability.Logger)
	IsHandlerRegistered() bool
	IsLoggerRegistered() bool

	// SetTimeAlert schedules a one-shot alert. An alert time that is not in
	// the future fires at the next opportunity.
	SetTimeAlert(label Label, alertTime time.Time) error
	// SetTimer schedules a repeating timer firing at start, start+interval,
	// ... until the next fire would exceed stop. nil start means now; nil
	// stop repeats forever.
	SetTimer(label Label, interval time.Duration, start, stop *time.Time) error
	// CancelTimer removes the timer or alert. Unknown labels are ignored.
	CancelTimer(label Label)
	CancelAllTimers()

	// TimerLabels lists active repeating timers.
	TimerLabels() []Label
	// NextFireTime reports the pending fire time of any active timer or alert.
	NextFireTime(label Label) (time.Time, bool)

	// EventTimes lists pending alert times in ascending order. Repeating
	// timers are not included.
	EventTimes() []time.Time
	NextEventTime() (time.Time, bool)
	HasEventTimes() bool
}

var (
	_ Clock = (*RealTimeClock)(nil)
	_ Clock = (*VirtualClock)(nil)
)
