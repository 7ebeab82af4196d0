package clock

import (
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/coachpo/tempo/internal/observability"
)

// Option configures a clock.
type Option func(*options)

type options struct {
	now           func() time.Time
	meterProvider metric.MeterProvider
	logger        observability.Logger
}

func applyOptions(opts []Option) options {
	cfg := options{now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// WithNow overrides the wall-clock source of a RealTimeClock. Ignored by
// VirtualClock.
func WithNow(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithMeterProvider records clock instruments on provider instead of the
// global one.
func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(o *options) {
		o.meterProvider = provider
	}
}

// WithLogger registers a diagnostic sink at construction.
func WithLogger(logger observability.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}
