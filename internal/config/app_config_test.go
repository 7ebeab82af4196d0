package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatalf("expected error when config file missing")
	}
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Environment != EnvDev {
		t.Fatalf("expected dev environment, got %q", cfg.Environment)
	}
	if cfg.Backtest.Step != time.Minute {
		t.Fatalf("expected default step, got %s", cfg.Backtest.Step)
	}

	cfg, err = LoadOrDefault(context.Background(), "")
	if err != nil || cfg.Telemetry.ServiceName != "tempo" {
		t.Fatalf("expected default config, got %+v err=%v", cfg, err)
	}
}

func TestLoadFromYAML(t *testing.T) {
	path := writeConfig(t, `
environment: STAGING
telemetry:
  otlpEndpoint: http://localhost:4318
  serviceName: tempo-live
  enableMetrics: true
  exportInterval: 5s
logging:
  level: DEBUG
clock:
  timers:
    - label: heartbeat
      interval: 250ms
      startDelay: 1s
      stopAfter: 10s
  alerts:
    - label: " close-session "
      after: 30s
backtest:
  traderId: TESTER-001
  start: 2020-01-01T00:00:00Z
  stop: 2020-01-02T00:00:00Z
  step: 1m
  tradeInterval: 15m
`)
	cfg, err := Load(context.Background(), path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Environment != EnvStaging {
		t.Fatalf("expected staging, got %q", cfg.Environment)
	}
	if cfg.Telemetry.Environment != "staging" || cfg.Telemetry.ExportInterval != 5*time.Second {
		t.Fatalf("unexpected telemetry config %+v", cfg.Telemetry)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("expected normalised level, got %q", cfg.Logging.Level)
	}
	if len(cfg.Clock.Timers) != 1 || cfg.Clock.Timers[0].Interval != 250*time.Millisecond {
		t.Fatalf("unexpected timers %+v", cfg.Clock.Timers)
	}
	if cfg.Clock.Alerts[0].Label != "close-session" {
		t.Fatalf("expected trimmed alert label, got %q", cfg.Clock.Alerts[0].Label)
	}
	if cfg.Backtest.Stop.Sub(cfg.Backtest.Start) != 24*time.Hour {
		t.Fatalf("unexpected backtest window %s..%s", cfg.Backtest.Start, cfg.Backtest.Stop)
	}
	if cfg.Backtest.Symbol != "AUDUSD.FXCM" || cfg.Backtest.StrategyID != "S-001" {
		t.Fatalf("expected backtest defaults, got %+v", cfg.Backtest)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"environment must be one of":  "environment: qa\n",
		"interval must be >0":         "clock:\n  timers:\n    - label: a\n      interval: 0s\n",
		"stopAfter must exceed":       "clock:\n  timers:\n    - label: a\n      interval: 1s\n      startDelay: 5s\n      stopAfter: 5s\n",
		"duplicate label":             "clock:\n  timers:\n    - label: a\n      interval: 1s\n  alerts:\n    - label: a\n",
		"label required":              "clock:\n  alerts:\n    - after: 1s\n",
		"backtest stop must be after": "backtest:\n  start: 2020-01-02T00:00:00Z\n  stop: 2020-01-01T00:00:00Z\n",
		"exportInterval must be >=0":  "telemetry:\n  exportInterval: -1s\n",
	}
	for want, body := range cases {
		t.Run(want, func(t *testing.T) {
			_, err := Load(context.Background(), writeConfig(t, body))
			if err == nil {
				t.Fatalf("expected error containing %q", want)
			}
			if !strings.Contains(err.Error(), want) {
				t.Fatalf("expected error containing %q, got %v", want, err)
			}
		})
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("TEMPO_ENV", "Prod")
	t.Setenv("TEMPO_LOG_LEVEL", "warn")
	t.Setenv("OTEL_SERVICE_NAME", "tempo-override")

	cfg, err := Load(context.Background(), writeConfig(t, "environment: dev\nlogging:\n  level: debug\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Environment != EnvProd {
		t.Fatalf("expected env override, got %q", cfg.Environment)
	}
	if cfg.Logging.Level != "warn" {
		t.Fatalf("expected level override, got %q", cfg.Logging.Level)
	}
	if cfg.Telemetry.ServiceName != "tempo-override" {
		t.Fatalf("expected service override, got %q", cfg.Telemetry.ServiceName)
	}
}
