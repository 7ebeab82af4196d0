package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys shared by tempo instruments, following the OpenTelemetry
// namespace.attribute_name convention.
const (
	// AttrEnvironment specifies the deployment environment (dev/staging/prod).
	AttrEnvironment = attribute.Key("environment")
	// AttrClockKind distinguishes realtime from virtual clocks.
	AttrClockKind = attribute.Key("clock.kind")
	// AttrTimerKind distinguishes one-shot alerts from repeating timers.
	AttrTimerKind = attribute.Key("timer.kind")
	// AttrTraderID labels store telemetry with the owning trader.
	AttrTraderID = attribute.Key("trader.id")
	// AttrResult records the outcome of an operation.
	AttrResult = attribute.Key("result")
)

// Clock kinds.
const (
	ClockKindRealtime = "realtime"
	ClockKindVirtual  = "virtual"
)

// Timer kinds.
const (
	TimerKindAlert = "alert"
	TimerKindTimer = "timer"
)

// ClockAttributes returns the attributes attached to clock counters.
func ClockAttributes(clockKind, timerKind string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{AttrClockKind.String(clockKind)}
	if timerKind != "" {
		attrs = append(attrs, AttrTimerKind.String(timerKind))
	}
	return attrs
}
