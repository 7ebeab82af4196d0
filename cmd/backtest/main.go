// Command backtest replays the scheduled trader over a virtual clock and
// prints the resulting execution store as JSON.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/coachpo/tempo/internal/backtest"
	"github.com/coachpo/tempo/internal/clock"
	"github.com/coachpo/tempo/internal/config"
	"github.com/coachpo/tempo/internal/domain/model"
	"github.com/coachpo/tempo/internal/execution"
	"github.com/coachpo/tempo/internal/observability"
	"github.com/coachpo/tempo/internal/telemetry"
)

const (
	defaultConfigPath        = "config/app.yaml"
	telemetryShutdownTimeout = 5 * time.Second
)

type options struct {
	configPath string
	start      string
	stop       string
	step       time.Duration
	interval   time.Duration
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "backtest: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := flag.NewFlagSet("backtest", flag.ContinueOnError)
	fs.StringVar(&opts.configPath, "config", defaultConfigPath, "Path to application configuration file")
	fs.StringVar(&opts.start, "start", "", "Replay start (RFC3339), overrides backtest.start")
	fs.StringVar(&opts.stop, "stop", "", "Replay stop (RFC3339), overrides backtest.stop")
	fs.DurationVar(&opts.step, "step", 0, "Clock step, overrides backtest.step")
	fs.DurationVar(&opts.interval, "interval", 0, "Trade interval, overrides backtest.tradeInterval")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	return opts, nil
}

func loadConfig(ctx context.Context, opts options) (config.AppConfig, error) {
	cfg, err := config.LoadOrDefault(ctx, opts.configPath)
	if err != nil {
		return config.AppConfig{}, fmt.Errorf("load config: %w", err)
	}
	if opts.start != "" {
		start, err := time.Parse(time.RFC3339, opts.start)
		if err != nil {
			return config.AppConfig{}, fmt.Errorf("parse -start: %w", err)
		}
		cfg.Backtest.Start = start.UTC()
	}
	if opts.stop != "" {
		stop, err := time.Parse(time.RFC3339, opts.stop)
		if err != nil {
			return config.AppConfig{}, fmt.Errorf("parse -stop: %w", err)
		}
		cfg.Backtest.Stop = stop.UTC()
	}
	if opts.step > 0 {
		cfg.Backtest.Step = opts.step
	}
	if opts.interval > 0 {
		cfg.Backtest.TradeInterval = opts.interval
	}
	if err := cfg.Validate(); err != nil {
		return config.AppConfig{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func run(ctx context.Context, args []string, out io.Writer) (err error) {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(ctx, opts)
	if err != nil {
		return err
	}

	zl, err := observability.NewZapProduction(cfg.Logging.Level, cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	logger := observability.NewZapLogger(zl)
	observability.SetLogger(logger)

	meterProvider, shutdownTelemetry, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("initialise telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
		defer cancel()
		// zap returns EINVAL syncing a terminal; ignored.
		_ = zl.Sync()
		if shutdownErr := observability.JoinErrors(logger, "backtest shutdown", shutdownTelemetry(shutdownCtx)); err == nil {
			err = shutdownErr
		}
	}()

	bt := cfg.Backtest
	quantity, err := decimal.NewFromString(bt.OrderQuantity)
	if err != nil {
		return fmt.Errorf("parse order quantity %q: %w", bt.OrderQuantity, err)
	}

	clk := clock.NewVirtualClock(bt.Start, clock.WithMeterProvider(meterProvider), clock.WithLogger(logger))
	db := execution.NewMemoryDatabase(model.TraderID(bt.TraderID), execution.WithLogger(logger))
	engine := backtest.NewEngine(clk, db, backtest.WithStep(bt.Step), backtest.WithLogger(logger))

	trader, err := backtest.NewScheduledTrader(db, backtest.TraderConfig{
		TraderID:   model.TraderID(bt.TraderID),
		StrategyID: model.StrategyID(bt.StrategyID),
		Symbol:     model.Symbol(bt.Symbol),
		Interval:   bt.TradeInterval,
		Quantity:   quantity,
	})
	if err != nil {
		return fmt.Errorf("create trader: %w", err)
	}
	stop := bt.Stop
	if err := trader.Attach(engine, &stop); err != nil {
		return fmt.Errorf("attach trader: %w", err)
	}

	report, err := engine.Run(ctx, bt.Start, bt.Stop)
	if err != nil {
		return err
	}
	logger.Info("backtest report",
		observability.F("steps", report.Steps),
		observability.F("events", report.EventsDispatched),
		observability.F("trades", trader.Trades()),
		observability.F("orders", report.OrdersTotal),
		observability.F("positions", report.PositionsTotal),
		observability.F("residual_positions", len(report.Residuals.OpenPositions)))

	if err := execution.WriteSnapshot(out, db); err != nil {
		return err
	}
	return db.Flush()
}
