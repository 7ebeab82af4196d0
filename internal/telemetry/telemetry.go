// Package telemetry configures the OpenTelemetry meter provider for tempo
// binaries and holds the attribute conventions used by its instruments.
package telemetry

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	instrumentationsdk "go.opentelemetry.io/otel/sdk/instrumentation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/coachpo/tempo/internal/config"
)

const (
	serviceName           = "tempo"
	serviceVersion        = "0.1.0"
	defaultExportInterval = 15 * time.Second
)

// Provider owns the meter provider installed for the process. A nil SDK
// provider means telemetry is disabled and the global noop provider is used.
type Provider struct {
	meterProvider *sdkmetric.MeterProvider
	fallback      metric.MeterProvider
}

// NewProvider installs a global meter provider based on cfg. Without an
// endpoint, or with metrics disabled, a noop provider is installed.
func NewProvider(ctx context.Context, cfg config.TelemetryConfig) (*Provider, error) {
	endpoint := strings.TrimSpace(cfg.OTLPEndpoint)
	if endpoint == "" || !cfg.EnableMetrics {
		fallback := noop.NewMeterProvider()
		otel.SetMeterProvider(fallback)
		return &Provider{fallback: fallback}, nil
	}

	host, insecure, err := parseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(host)}
	if insecure || cfg.OTLPInsecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}

	interval := cfg.ExportInterval
	if interval <= 0 {
		interval = defaultExportInterval
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
		sdkmetric.WithView(histogramViews()...),
	)
	otel.SetMeterProvider(mp)
	return &Provider{meterProvider: mp}, nil
}

// Init is shorthand for NewProvider returning the installed provider and its
// shutdown func.
func Init(ctx context.Context, cfg config.TelemetryConfig) (metric.MeterProvider, func(context.Context) error, error) {
	provider, err := NewProvider(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return provider.MeterProvider(), provider.Shutdown, nil
}

// MeterProvider returns the installed provider.
func (p *Provider) MeterProvider() metric.MeterProvider {
	if p.meterProvider == nil {
		return p.fallback
	}
	return p.meterProvider
}

// Meter returns a meter with the given name.
func (p *Provider) Meter(name string, opts ...metric.MeterOption) metric.Meter {
	return p.MeterProvider().Meter(name, opts...)
}

// Enabled reports whether metrics are exported.
func (p *Provider) Enabled() bool { return p.meterProvider != nil }

// Shutdown flushes and stops the exporter.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.meterProvider == nil {
		return nil
	}
	if err := p.meterProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown meter: %w", err)
	}
	return nil
}

func newResource(ctx context.Context, cfg config.TelemetryConfig) (*resource.Resource, error) {
	service := strings.TrimSpace(cfg.ServiceName)
	if service == "" {
		service = serviceName
	}
	attrs := []resource.Option{
		resource.WithAttributes(
			semconv.ServiceNameKey.String(service),
			semconv.ServiceVersionKey.String(serviceVersion),
		),
	}
	if cfg.Environment != "" {
		attrs = append(attrs, resource.WithAttributes(AttrEnvironment.String(strings.ToLower(cfg.Environment))))
	}
	attrs = append(attrs, resource.WithProcessRuntimeName(), resource.WithProcessRuntimeVersion(), resource.WithHost())
	res, err := resource.New(ctx, attrs...)
	if err != nil {
		return nil, fmt.Errorf("create telemetry resource: %w", err)
	}
	return res, nil
}

// histogramViews pins explicit buckets for the latency instruments.
func histogramViews() []sdkmetric.View {
	return []sdkmetric.View{
		// Handler latency: 0.01ms - 1s
		sdkmetric.NewView(
			sdkmetric.Instrument{
				Name:  "clock.handler.duration",
				Kind:  sdkmetric.InstrumentKindHistogram,
				Unit:  "ms",
				Scope: instrumentationsdk.Scope{Attributes: attribute.Set{}},
			},
			sdkmetric.Stream{
				Aggregation: sdkmetric.AggregationExplicitBucketHistogram{
					Boundaries: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 50, 100, 250, 1000},
				},
			},
		),
		// Fire lag: how late a real-time waiter woke relative to schedule.
		sdkmetric.NewView(
			sdkmetric.Instrument{
				Name:  "clock.fire.lag",
				Kind:  sdkmetric.InstrumentKindHistogram,
				Unit:  "ms",
				Scope: instrumentationsdk.Scope{Attributes: attribute.Set{}},
			},
			sdkmetric.Stream{
				Aggregation: sdkmetric.AggregationExplicitBucketHistogram{
					Boundaries: []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 500},
				},
			},
		),
	}
}

func parseEndpoint(raw string) (string, bool, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("parse otlp endpoint: %w", err)
	}
	host := parsed.Host
	if host == "" {
		host = raw
	}
	insecure := parsed.Scheme != "https"
	return host, insecure, nil
}
