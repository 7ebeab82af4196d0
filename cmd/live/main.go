// Command live runs the configured timers and alerts on the wall clock
// until a shutdown signal arrives.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"maps"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sourcegraph/conc"
	"golang.org/x/time/rate"

	"github.com/coachpo/tempo/internal/clock"
	"github.com/coachpo/tempo/internal/config"
	"github.com/coachpo/tempo/internal/observability"
	"github.com/coachpo/tempo/internal/telemetry"
)

const (
	defaultConfigPath            = "config/app.yaml"
	clockShutdownTimeout         = 5 * time.Second
	metricsServerShutdownTimeout = 5 * time.Second
	telemetryShutdownTimeout     = 5 * time.Second
	metricsReadHeaderTimeout     = 5 * time.Second
	// fireLogRate caps info-level fire logs; the rest go to debug.
	fireLogRate = 5
)

type options struct {
	configPath  string
	metricsAddr string
	duration    time.Duration
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "live: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := flag.NewFlagSet("live", flag.ContinueOnError)
	fs.StringVar(&opts.configPath, "config", defaultConfigPath, "Path to application configuration file")
	fs.StringVar(&opts.metricsAddr, "metrics", "", "Address to serve prometheus metrics on (disabled when empty)")
	fs.DurationVar(&opts.duration, "duration", 0, "Stop after this long (0 runs until signalled)")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	return opts, nil
}

// fireCounter tallies fired events per label.
type fireCounter struct {
	mu      sync.Mutex
	counts  map[string]int
	limiter *rate.Limiter
	logger  observability.Logger
	events  *prometheus.CounterVec
}

func newFireCounter(logger observability.Logger, reg prometheus.Registerer) *fireCounter {
	events := prometheus.NewCounterVec(prometheus.CounterOpts{ //nolint:exhaustruct
		Namespace: "tempo",
		Subsystem: "clock",
		Name:      "events_total",
		Help:      "Time events delivered to the live handler.",
	}, []string{"label"})
	reg.MustRegister(events)
	return &fireCounter{
		counts:  make(map[string]int),
		limiter: rate.NewLimiter(rate.Limit(fireLogRate), fireLogRate),
		logger:  logger,
		events:  events,
	}
}

func (f *fireCounter) handle(event clock.TimeEvent) {
	label := string(event.Label)
	f.mu.Lock()
	f.counts[label]++
	f.mu.Unlock()
	f.events.WithLabelValues(label).Inc()

	fields := []observability.Field{
		observability.F("label", label),
		observability.F("event_id", event.ID.String()),
		observability.F("at", event.Timestamp),
	}
	if f.limiter.Allow() {
		f.logger.Info("time event", fields...)
		return
	}
	f.logger.Debug("time event", fields...)
}

func (f *fireCounter) snapshot() map[string]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return maps.Clone(f.counts)
}

// schedule installs every configured timer and alert relative to now.
func schedule(clk clock.Clock, cfg config.ClockConfig) error {
	now := clk.TimeNow()
	for _, tc := range cfg.Timers {
		start := now.Add(tc.StartDelay)
		var stop *time.Time
		if tc.StopAfter > 0 {
			s := now.Add(tc.StopAfter)
			stop = &s
		}
		if err := clk.SetTimer(clock.Label(tc.Label), tc.Interval, &start, stop); err != nil {
			return fmt.Errorf("schedule timer %q: %w", tc.Label, err)
		}
	}
	for _, ac := range cfg.Alerts {
		if err := clk.SetTimeAlert(clock.Label(ac.Label), now.Add(ac.After)); err != nil {
			return fmt.Errorf("schedule alert %q: %w", ac.Label, err)
		}
	}
	return nil
}

func run(ctx context.Context, args []string, out io.Writer) (err error) {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}
	cfg, err := config.LoadOrDefault(ctx, opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
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

	if opts.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.duration)
		defer cancel()
	}

	reg := prometheus.NewRegistry()
	clk := clock.NewRealTimeClock(clock.WithMeterProvider(meterProvider), clock.WithLogger(logger))
	rt := liveRuntime{
		clock:             clk,
		counter:           newFireCounter(logger, reg),
		logger:            logger,
		shutdownTelemetry: shutdownTelemetry,
		syncLogger:        zl.Sync,
	}
	if opts.metricsAddr != "" {
		rt.server = &http.Server{
			Addr:              opts.metricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), //nolint:exhaustruct
			ReadHeaderTimeout: metricsReadHeaderTimeout,
		}
	}
	return rt.serve(ctx, func(c clock.Clock) error { return schedule(c, cfg.Clock) }, out)
}

// liveRuntime holds what serve starts and must stop.
type liveRuntime struct {
	clock             *clock.RealTimeClock
	counter           *fireCounter
	logger            observability.Logger
	server            *http.Server
	shutdownTelemetry func(context.Context) error
	syncLogger        func() error
}

// serve starts the metrics server, schedules the clock and waits for ctx.
// A scheduling failure skips the wait; every path goes through the same
// staged shutdown and prints the fire summary.
func (rt liveRuntime) serve(ctx context.Context, scheduleClock func(clock.Clock) error, out io.Writer) error {
	rt.clock.RegisterHandler(rt.counter.handle)

	var lifecycle conc.WaitGroup
	if rt.server != nil {
		lifecycle.Go(func() {
			if err := rt.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				rt.logger.Error("metrics server", observability.F("error", err.Error()))
			}
		})
		rt.logger.Info("metrics listening", observability.F("addr", rt.server.Addr))
	}

	scheduleErr := scheduleClock(rt.clock)
	if scheduleErr != nil {
		rt.logger.Error("schedule clock", observability.F("error", scheduleErr.Error()))
	} else {
		rt.logger.Info("live clock started", observability.F("timers", len(rt.clock.TimerLabels())))
		<-ctx.Done()
		rt.logger.Info("shutdown signal received")
	}

	shutdownStep := func(timeout time.Duration, fn func(context.Context) error) error {
		stepCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return fn(stepCtx)
	}
	shutdownErrs := []error{
		scheduleErr,
		shutdownStep(clockShutdownTimeout, rt.clock.Shutdown),
	}
	if rt.server != nil {
		shutdownErrs = append(shutdownErrs, shutdownStep(metricsServerShutdownTimeout, rt.server.Shutdown))
	}
	lifecycle.Wait()
	if rt.shutdownTelemetry != nil {
		shutdownErrs = append(shutdownErrs, shutdownStep(telemetryShutdownTimeout, rt.shutdownTelemetry))
	}
	if rt.syncLogger != nil {
		// zap returns EINVAL syncing a terminal; ignored.
		_ = rt.syncLogger()
	}

	if err := json.NewEncoder(out).Encode(map[string]any{"fired": rt.counter.snapshot()}); err != nil {
		shutdownErrs = append(shutdownErrs, fmt.Errorf("encode summary: %w", err))
	}
	return observability.JoinErrors(rt.logger, "live shutdown", shutdownErrs...)
}
