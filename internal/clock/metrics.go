package clock

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/coachpo/tempo/internal/telemetry"
)

type clockMetrics struct {
	kind            string
	scheduled       metric.Int64Counter
	cancelled       metric.Int64Counter
	fired           metric.Int64Counter
	handlerDuration metric.Float64Histogram
	fireLag         metric.Float64Histogram
}

func newClockMetrics(provider metric.MeterProvider, kind string) *clockMetrics {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter("clock")
	m := &clockMetrics{kind: kind}
	m.scheduled, _ = meter.Int64Counter("clock.timers.scheduled",
		metric.WithDescription("Number of timers and alerts scheduled"),
		metric.WithUnit("{timer}"))
	m.cancelled, _ = meter.Int64Counter("clock.timers.cancelled",
		metric.WithDescription("Number of active timers and alerts cancelled"),
		metric.WithUnit("{timer}"))
	m.fired, _ = meter.Int64Counter("clock.events.fired",
		metric.WithDescription("Number of time events produced"),
		metric.WithUnit("{event}"))
	m.handlerDuration, _ = meter.Float64Histogram("clock.handler.duration",
		metric.WithDescription("Latency of handler invocations on real-time waiters"),
		metric.WithUnit("ms"))
	m.fireLag, _ = meter.Float64Histogram("clock.fire.lag",
		metric.WithDescription("Delay between scheduled and actual fire time"),
		metric.WithUnit("ms"))
	return m
}

func (m *clockMetrics) recordScheduled(timerKind string) {
	if m == nil || m.scheduled == nil {
		return
	}
	m.scheduled.Add(context.Background(), 1, metric.WithAttributes(telemetry.ClockAttributes(m.kind, timerKind)...))
}

func (m *clockMetrics) recordCancelled(timerKind string) {
	if m == nil || m.cancelled == nil {
		return
	}
	m.cancelled.Add(context.Background(), 1, metric.WithAttributes(telemetry.ClockAttributes(m.kind, timerKind)...))
}

func (m *clockMetrics) recordFired(timerKind string, n int) {
	if m == nil || m.fired == nil || n <= 0 {
		return
	}
	m.fired.Add(context.Background(), int64(n), metric.WithAttributes(telemetry.ClockAttributes(m.kind, timerKind)...))
}

func (m *clockMetrics) recordHandler(timerKind string, elapsed time.Duration) {
	if m == nil || m.handlerDuration == nil {
		return
	}
	m.handlerDuration.Record(context.Background(), float64(elapsed)/float64(time.Millisecond),
		metric.WithAttributes(telemetry.ClockAttributes(m.kind, timerKind)...))
}

func (m *clockMetrics) recordLag(timerKind string, lag time.Duration) {
	if m == nil || m.fireLag == nil {
		return
	}
	if lag < 0 {
		lag = 0
	}
	m.fireLag.Record(context.Background(), float64(lag)/float64(time.Millisecond),
		metric.WithAttributes(telemetry.ClockAttributes(m.kind, timerKind)...))
}
