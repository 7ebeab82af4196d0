package clock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coachpo/tempo/errs"
	"github.com/coachpo/tempo/internal/observability"
)

func shutdownClock(t *testing.T, c *RealTimeClock) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.Shutdown(ctx))
}

func TestRealTimeClockNowAndDelta(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("EST", -5*3600))
	c := NewRealTimeClock(WithNow(func() time.Time { return fixed }))
	defer shutdownClock(t, c)

	require.Equal(t, time.UTC, c.TimeNow().Location())
	require.True(t, fixed.Equal(c.TimeNow()))
	require.Equal(t, time.Minute, c.GetDelta(fixed.Add(-time.Minute)))
}

func TestRealTimeClockAlertFiresOnce(t *testing.T) {
	c := NewRealTimeClock()
	defer shutdownClock(t, c)

	fired := make(chan TimeEvent, 4)
	pendingAtFire := make(chan int, 4)
	c.RegisterHandler(func(e TimeEvent) {
		pendingAtFire <- len(c.EventTimes())
		fired <- e
	})

	alertTime := c.TimeNow().Add(20 * time.Millisecond)
	require.NoError(t, c.SetTimeAlert("wake", alertTime))
	require.Equal(t, []time.Time{alertTime}, c.EventTimes())
	require.True(t, c.HasEventTimes())

	select {
	case e := <-fired:
		require.Equal(t, Label("wake"), e.Label)
		require.False(t, e.Timestamp.Before(alertTime))
		require.Zero(t, <-pendingAtFire)
	case <-time.After(2 * time.Second):
		t.Fatal("alert did not fire")
	}

	require.False(t, c.HasEventTimes())
	select {
	case <-fired:
		t.Fatal("alert fired twice")
	case <-time.After(50 * time.Millisecond):
	}
	require.NoError(t, c.SetTimeAlert("wake", c.TimeNow().Add(time.Hour)))
}

func TestRealTimeClockPastAlertFiresImmediately(t *testing.T) {
	c := NewRealTimeClock()
	defer shutdownClock(t, c)

	fired := make(chan TimeEvent, 1)
	c.RegisterHandler(func(e TimeEvent) { fired <- e })
	require.NoError(t, c.SetTimeAlert("late", c.TimeNow().Add(-time.Second)))

	select {
	case e := <-fired:
		require.Equal(t, Label("late"), e.Label)
	case <-time.After(time.Second):
		t.Fatal("past alert did not fire")
	}
}

func TestRealTimeClockTimerStopsAtStopTime(t *testing.T) {
	c := NewRealTimeClock()
	defer shutdownClock(t, c)

	var count atomic.Int32
	c.RegisterHandler(func(TimeEvent) { count.Add(1) })

	interval := 20 * time.Millisecond
	start := c.TimeNow().Add(10 * time.Millisecond)
	require.NoError(t, c.SetTimer("bounded", interval, &start, ptr(start.Add(2*interval))))
	require.Equal(t, []Label{"bounded"}, c.TimerLabels())

	require.Eventually(t, func() bool { return len(c.TimerLabels()) == 0 }, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, int32(3), count.Load())
}

func TestRealTimeClockCadenceIgnoresHandlerLatency(t *testing.T) {
	c := NewRealTimeClock()
	defer shutdownClock(t, c)

	interval := 30 * time.Millisecond
	start := c.TimeNow().Add(10 * time.Millisecond)
	nextFires := make(chan time.Time, 8)
	c.RegisterHandler(func(e TimeEvent) {
		next, ok := c.NextFireTime(e.Label)
		if ok {
			nextFires <- next
		}
		time.Sleep(15 * time.Millisecond)
	})
	require.NoError(t, c.SetTimer("cadence", interval, &start, nil))

	for k := 1; k <= 3; k++ {
		select {
		case next := <-nextFires:
			require.Equal(t, start.Add(time.Duration(k)*interval), next)
		case <-time.After(2 * time.Second):
			t.Fatalf("firing %d missing", k)
		}
	}
}

func TestRealTimeClockCancelStopsFirings(t *testing.T) {
	c := NewRealTimeClock()
	defer shutdownClock(t, c)

	var count atomic.Int32
	c.RegisterHandler(func(TimeEvent) { count.Add(1) })
	require.NoError(t, c.SetTimer("fast", 5*time.Millisecond, nil, nil))
	require.Eventually(t, func() bool { return count.Load() >= 2 }, 2*time.Second, time.Millisecond)

	c.CancelTimer("fast")
	c.CancelTimer("fast")
	before := count.Load()
	require.Empty(t, c.TimerLabels())
	_, ok := c.NextFireTime("fast")
	require.False(t, ok)

	time.Sleep(50 * time.Millisecond)
	require.LessOrEqual(t, count.Load(), before+1)
}

func TestRealTimeClockCancelAll(t *testing.T) {
	c := NewRealTimeClock()
	defer shutdownClock(t, c)

	var count atomic.Int32
	c.RegisterHandler(func(TimeEvent) { count.Add(1) })
	future := c.TimeNow().Add(time.Hour)
	require.NoError(t, c.SetTimer("a", time.Minute, &future, nil))
	require.NoError(t, c.SetTimer("b", time.Minute, &future, nil))
	require.NoError(t, c.SetTimeAlert("c", future))
	require.Equal(t, []Label{"a", "b"}, c.TimerLabels())

	c.CancelAllTimers()
	require.Empty(t, c.TimerLabels())
	require.False(t, c.HasEventTimes())
	require.Zero(t, count.Load())
}

func TestRealTimeClockRejectsDuplicateAndInvalid(t *testing.T) {
	c := NewRealTimeClock()
	defer shutdownClock(t, c)

	future := c.TimeNow().Add(time.Hour)
	require.NoError(t, c.SetTimeAlert("x", future))
	require.True(t, errs.Is(c.SetTimer("x", time.Second, &future, nil), errs.CodeAlreadyExists))
	require.True(t, errs.Is(c.SetTimer("y", 0, nil, nil), errs.CodeInvalid))
	require.True(t, errs.Is(c.SetTimer("y", time.Second, &future, &future), errs.CodeInvalid))
	require.Equal(t, []time.Time{future}, c.EventTimes())
	require.Empty(t, c.TimerLabels())
}

func TestRealTimeClockRecoversHandlerPanic(t *testing.T) {
	rec := observability.NewRecorder()
	c := NewRealTimeClock(WithLogger(rec))
	defer shutdownClock(t, c)
	require.True(t, c.IsLoggerRegistered())

	c.RegisterHandler(func(TimeEvent) { panic("boom") })
	require.NoError(t, c.SetTimer("boom", 5*time.Millisecond, nil, nil))

	require.Eventually(t, func() bool {
		return rec.Count(observability.LevelError, "handler panicked") == 1
	}, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(c.TimerLabels()) == 0 }, time.Second, 5*time.Millisecond)
}

func TestRealTimeClockShutdownRejectsScheduling(t *testing.T) {
	c := NewRealTimeClock()
	future := c.TimeNow().Add(time.Hour)
	require.NoError(t, c.SetTimer("a", time.Minute, &future, nil))

	shutdownClock(t, c)
	require.Empty(t, c.TimerLabels())
	err := c.SetTimeAlert("b", future)
	require.True(t, errs.Is(err, errs.CodeUnavailable))
}

func TestRealTimeClockConcurrentTimers(t *testing.T) {
	c := NewRealTimeClock()
	defer shutdownClock(t, c)

	var (
		mu     sync.Mutex
		counts = make(map[Label]int)
	)
	c.RegisterHandler(func(e TimeEvent) {
		mu.Lock()
		counts[e.Label]++
		mu.Unlock()
	})

	start := c.TimeNow()
	for _, label := range []Label{"t1", "t2", "t3", "t4"} {
		require.NoError(t, c.SetTimer(label, 5*time.Millisecond, &start, ptr(start.Add(20*time.Millisecond))))
	}
	require.Eventually(t, func() bool { return len(c.TimerLabels()) == 0 }, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for _, label := range []Label{"t1", "t2", "t3", "t4"} {
		require.Equal(t, 5, counts[label], "label %s", label)
	}
}
