package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coachpo/tempo/internal/config"
)

func TestParseEndpoint(t *testing.T) {
	host, insecure, err := parseEndpoint("https://collector.internal:4318")
	require.NoError(t, err)
	require.Equal(t, "collector.internal:4318", host)
	require.False(t, insecure)

	host, insecure, err = parseEndpoint("http://localhost:4318")
	require.NoError(t, err)
	require.Equal(t, "localhost:4318", host)
	require.True(t, insecure)
}

func TestInitNoEndpointUsesNoop(t *testing.T) {
	provider, shutdown, err := Init(context.Background(), config.TelemetryConfig{EnableMetrics: true})
	require.NoError(t, err)
	require.NotNil(t, provider)
	require.NoError(t, shutdown(context.Background()))
}

func TestInitMetricsDisabledUsesNoop(t *testing.T) {
	provider, shutdown, err := Init(context.Background(), config.TelemetryConfig{OTLPEndpoint: "http://localhost:4318"})
	require.NoError(t, err)
	require.NotNil(t, provider)
	require.NoError(t, shutdown(context.Background()))
}

func TestInitInvalidEndpoint(t *testing.T) {
	_, _, err := Init(context.Background(), config.TelemetryConfig{OTLPEndpoint: "://bad", EnableMetrics: true})
	require.Error(t, err)
}

func TestInitWithEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	provider, shutdown, err := Init(context.Background(), config.TelemetryConfig{
		OTLPEndpoint:  srv.URL,
		ServiceName:   "tempo-test",
		EnableMetrics: true,
	})
	require.NoError(t, err)
	require.NotNil(t, provider)
	require.NoError(t, shutdown(context.Background()))
}

func TestClockAttributes(t *testing.T) {
	attrs := ClockAttributes(ClockKindVirtual, TimerKindAlert)
	require.Len(t, attrs, 2)
	require.Equal(t, "virtual", attrs[0].Value.AsString())
	require.Equal(t, "alert", attrs[1].Value.AsString())
	require.Len(t, ClockAttributes(ClockKindRealtime, ""), 1)
}

func TestProviderDisabledFallsBackToNoop(t *testing.T) {
	provider, err := NewProvider(context.Background(), config.TelemetryConfig{})
	require.NoError(t, err)
	require.False(t, provider.Enabled())
	require.NotNil(t, provider.Meter("clock"))
	require.NoError(t, provider.Shutdown(context.Background()))
}

func TestHistogramViewsCoverClockInstruments(t *testing.T) {
	require.Len(t, histogramViews(), 2)
}
