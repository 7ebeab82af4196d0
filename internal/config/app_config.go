// Package config manages application configuration loading and validation.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment enumerates deployment targets.
type Environment string

const (
	EnvDev     Environment = "dev"
	EnvStaging Environment = "staging"
	EnvProd    Environment = "prod"
)

// TelemetryConfig configures OTLP exporters (metrics only).
type TelemetryConfig struct {
	OTLPEndpoint   string        `yaml:"otlpEndpoint"`
	ServiceName    string        `yaml:"serviceName"`
	OTLPInsecure   bool          `yaml:"otlpInsecure"`
	EnableMetrics  bool          `yaml:"enableMetrics"`
	ExportInterval time.Duration `yaml:"exportInterval"`

	// Environment is copied from the top-level setting during Load.
	Environment string `yaml:"-"`
}

// LoggingConfig selects the zap logger level and encoder.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// TimerConfig declares a repeating timer relative to process start.
type TimerConfig struct {
	Label      string        `yaml:"label"`
	Interval   time.Duration `yaml:"interval"`
	StartDelay time.Duration `yaml:"startDelay"`
	StopAfter  time.Duration `yaml:"stopAfter"`
}

// AlertConfig declares a one-shot alert relative to process start.
type AlertConfig struct {
	Label string        `yaml:"label"`
	After time.Duration `yaml:"after"`
}

// ClockConfig lists the timers and alerts scheduled at startup.
type ClockConfig struct {
	Timers []TimerConfig `yaml:"timers"`
	Alerts []AlertConfig `yaml:"alerts"`
}

// BacktestConfig drives a replay over a virtual clock.
type BacktestConfig struct {
	TraderID      string        `yaml:"traderId"`
	StrategyID    string        `yaml:"strategyId"`
	Symbol        string        `yaml:"symbol"`
	Start         time.Time     `yaml:"start"`
	Stop          time.Time     `yaml:"stop"`
	Step          time.Duration `yaml:"step"`
	TradeInterval time.Duration `yaml:"tradeInterval"`
	OrderQuantity string        `yaml:"orderQuantity"`
}

// AppConfig is the unified tempo configuration sourced from YAML.
type AppConfig struct {
	Environment Environment     `yaml:"environment"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Logging     LoggingConfig   `yaml:"logging"`
	Clock       ClockConfig     `yaml:"clock"`
	Backtest    BacktestConfig  `yaml:"backtest"`
}

// Default returns the configuration used when no file is supplied,
// including environment variable overrides.
func Default() AppConfig {
	cfg := AppConfig{Environment: EnvDev}
	cfg.loadEnv()
	cfg.normalise()
	return cfg
}

// Load reads and validates an AppConfig from the provided YAML file.
func Load(ctx context.Context, configPath string) (AppConfig, error) {
	_ = ctx

	reader, closer, err := openConfigFile(configPath)
	if err != nil {
		return AppConfig{}, err
	}
	defer closer()

	bytes, err := io.ReadAll(reader)
	if err != nil {
		return AppConfig{}, fmt.Errorf("read config: %w", err)
	}

	var cfg AppConfig
	if err := yaml.Unmarshal(bytes, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.loadEnv()
	cfg.normalise()

	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// LoadOrDefault behaves like Load but returns Default when path is empty or
// the file does not exist.
func LoadOrDefault(ctx context.Context, configPath string) (AppConfig, error) {
	if strings.TrimSpace(configPath) == "" {
		return Default(), nil
	}
	cfg, err := Load(ctx, configPath)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// loadEnv applies environment variable overrides on top of YAML values.
func (c *AppConfig) loadEnv() {
	if env := strings.TrimSpace(os.Getenv("TEMPO_ENV")); env != "" {
		c.Environment = Environment(env)
	}
	if v := strings.TrimSpace(os.Getenv("TEMPO_LOG_LEVEL")); v != "" {
		c.Logging.Level = v
	}
	if v := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")); v != "" {
		c.Telemetry.OTLPEndpoint = v
	}
	if v := strings.TrimSpace(os.Getenv("OTEL_SERVICE_NAME")); v != "" {
		c.Telemetry.ServiceName = v
	}
}

func (c *AppConfig) normalise() {
	c.Environment = Environment(strings.ToLower(strings.TrimSpace(string(c.Environment))))
	if c.Environment == "" {
		c.Environment = EnvDev
	}

	c.Telemetry.OTLPEndpoint = strings.TrimSpace(c.Telemetry.OTLPEndpoint)
	c.Telemetry.ServiceName = strings.TrimSpace(c.Telemetry.ServiceName)
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "tempo"
	}
	c.Telemetry.Environment = string(c.Environment)

	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}

	for i := range c.Clock.Timers {
		c.Clock.Timers[i].Label = strings.TrimSpace(c.Clock.Timers[i].Label)
	}
	for i := range c.Clock.Alerts {
		c.Clock.Alerts[i].Label = strings.TrimSpace(c.Clock.Alerts[i].Label)
	}

	c.Backtest.applyDefaults()
}

func (b *BacktestConfig) applyDefaults() {
	b.TraderID = strings.TrimSpace(b.TraderID)
	if b.TraderID == "" {
		b.TraderID = "TESTER-000"
	}
	b.StrategyID = strings.TrimSpace(b.StrategyID)
	if b.StrategyID == "" {
		b.StrategyID = "S-001"
	}
	b.Symbol = strings.TrimSpace(b.Symbol)
	if b.Symbol == "" {
		b.Symbol = "AUDUSD.FXCM"
	}
	if b.Start.IsZero() {
		b.Start = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	b.Start = b.Start.UTC()
	if b.Stop.IsZero() {
		b.Stop = b.Start.Add(time.Hour)
	}
	b.Stop = b.Stop.UTC()
	if b.Step <= 0 {
		b.Step = time.Minute
	}
	if b.TradeInterval <= 0 {
		b.TradeInterval = 5 * time.Minute
	}
	b.OrderQuantity = strings.TrimSpace(b.OrderQuantity)
	if b.OrderQuantity == "" {
		b.OrderQuantity = "100000"
	}
}

// Validate performs semantic validation on the configuration.
func (c AppConfig) Validate() error {
	switch c.Environment {
	case EnvDev, EnvStaging, EnvProd:
	default:
		return fmt.Errorf("environment must be one of dev, staging, prod")
	}

	if c.Telemetry.ExportInterval < 0 {
		return fmt.Errorf("telemetry exportInterval must be >=0")
	}

	labels := make(map[string]struct{}, len(c.Clock.Timers)+len(c.Clock.Alerts))
	for i, timer := range c.Clock.Timers {
		if timer.Label == "" {
			return fmt.Errorf("clock.timers[%d]: label required", i)
		}
		if timer.Interval <= 0 {
			return fmt.Errorf("clock.timers[%d]: interval must be >0", i)
		}
		if timer.StartDelay < 0 {
			return fmt.Errorf("clock.timers[%d]: startDelay must be >=0", i)
		}
		if timer.StopAfter != 0 && timer.StopAfter <= timer.StartDelay {
			return fmt.Errorf("clock.timers[%d]: stopAfter must exceed startDelay", i)
		}
		if _, dup := labels[timer.Label]; dup {
			return fmt.Errorf("clock: duplicate label %q", timer.Label)
		}
		labels[timer.Label] = struct{}{}
	}
	for i, alert := range c.Clock.Alerts {
		if alert.Label == "" {
			return fmt.Errorf("clock.alerts[%d]: label required", i)
		}
		if alert.After < 0 {
			return fmt.Errorf("clock.alerts[%d]: after must be >=0", i)
		}
		if _, dup := labels[alert.Label]; dup {
			return fmt.Errorf("clock: duplicate label %q", alert.Label)
		}
		labels[alert.Label] = struct{}{}
	}

	if !c.Backtest.Stop.After(c.Backtest.Start) {
		return fmt.Errorf("backtest stop must be after start")
	}
	if c.Backtest.Step <= 0 {
		return fmt.Errorf("backtest step must be >0")
	}
	if c.Backtest.TradeInterval <= 0 {
		return fmt.Errorf("backtest tradeInterval must be >0")
	}
	return nil
}

func openConfigFile(path string) (io.Reader, func(), error) {
	candidate := filepath.Clean(strings.TrimSpace(path))

	file, err := os.Open(candidate) // #nosec G304 -- path is operator controlled.
	if err != nil {
		return nil, nil, fmt.Errorf("open app config: %w", err)
	}
	return file, func() { _ = file.Close() }, nil
}
