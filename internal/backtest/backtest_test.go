package backtest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/coachpo/tempo/errs"
	"github.com/coachpo/tempo/internal/clock"
	"github.com/coachpo/tempo/internal/execution"
	"github.com/coachpo/tempo/internal/observability"
)

var start = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

func newEngine(t *testing.T, opts ...EngineOption) (*Engine, *execution.MemoryDatabase) {
	t.Helper()
	db := execution.NewMemoryDatabase("TESTER-000")
	return NewEngine(clock.NewVirtualClock(start), db, opts...), db
}

func attachTrader(t *testing.T, engine *Engine, db execution.Database, stop time.Time) *ScheduledTrader {
	t.Helper()
	trader, err := NewScheduledTrader(db, TraderConfig{
		StrategyID: "S-001",
		Symbol:     "AUDUSD.FXCM",
		Interval:   5 * time.Minute,
		Quantity:   decimal.NewFromInt(100000),
	})
	require.NoError(t, err)
	require.NoError(t, trader.Attach(engine, &stop))
	return trader
}

func TestEngineRunLeavesOpenPositionAtWindowEnd(t *testing.T) {
	engine, db := newEngine(t)
	stop := start.Add(time.Hour)
	trader := attachTrader(t, engine, db, stop)

	report, err := engine.Run(context.Background(), start, stop)
	require.NoError(t, err)

	require.Equal(t, 60, report.Steps)
	require.Equal(t, 11, report.EventsDispatched)
	require.Equal(t, 11, report.LabelCounts[trader.Label()])
	require.Equal(t, 5, trader.Trades())
	require.Equal(t, 11, report.OrdersTotal)
	require.Equal(t, 11, report.OrdersCompleted)
	require.Equal(t, 6, report.PositionsTotal)
	require.Equal(t, 5, report.PositionsClosed)
	require.Empty(t, report.Residuals.WorkingOrders)
	require.Len(t, report.Residuals.OpenPositions, 1)
	require.Equal(t, stop, engine.Clock().TimeNow())

	next, ok := engine.Clock().NextFireTime(trader.Label())
	require.True(t, ok)
	require.Equal(t, stop, next)
}

func TestEngineRunEndsFlat(t *testing.T) {
	rec := observability.NewRecorder()
	db := execution.NewMemoryDatabase("TESTER-000", execution.WithLogger(rec))
	engine := NewEngine(clock.NewVirtualClock(start), db, WithLogger(rec))
	stop := start.Add(61 * time.Minute)
	trader := attachTrader(t, engine, db, stop)

	report, err := engine.Run(context.Background(), start, stop)
	require.NoError(t, err)

	require.Equal(t, 12, report.EventsDispatched)
	require.Equal(t, 6, trader.Trades())
	require.True(t, report.Residuals.Empty())
	require.Zero(t, rec.Count(observability.LevelWarn, "residual"))
	require.Equal(t, 1, rec.Count(observability.LevelInfo, "backtest finished"))

	for _, id := range db.GetPositionIDs(execution.Filter{StrategyID: "S-001"}) {
		require.Len(t, db.GetOrderIDsForPosition(id), 2)
		require.True(t, db.IsPositionClosed(id))
	}
	account := db.GetAccount("SIM-000")
	require.NotNil(t, account)
	require.Equal(t, start.Add(time.Hour), account.LastUpdated)
}

func TestEngineRunIsDeterministic(t *testing.T) {
	run := func() []string {
		engine, db := newEngine(t, WithStep(7*time.Minute))
		stop := start.Add(2 * time.Hour)
		attachTrader(t, engine, db, stop)
		_, err := engine.Run(context.Background(), start, stop)
		require.NoError(t, err)
		var ids []string
		for _, id := range db.GetOrderIDs(execution.Filter{}) {
			ids = append(ids, string(id))
		}
		return ids
	}

	first := run()
	require.NotEmpty(t, first)
	require.Equal(t, first, run())
}

func TestEngineRunDispatchesUnroutedToClockHandler(t *testing.T) {
	engine, _ := newEngine(t, WithStep(25*time.Minute))
	var got []clock.TimeEvent
	engine.Clock().RegisterHandler(func(ev clock.TimeEvent) { got = append(got, ev) })
	require.NoError(t, engine.Clock().SetTimeAlert("rebalance", start.Add(30*time.Minute)))
	require.NoError(t, engine.Clock().SetTimeAlert("close", start.Add(time.Hour)))

	report, err := engine.Run(context.Background(), start, start.Add(time.Hour))
	require.NoError(t, err)

	require.Equal(t, 3, report.Steps)
	require.Len(t, got, 2)
	require.Equal(t, clock.Label("rebalance"), got[0].Label)
	require.Equal(t, clock.Label("close"), got[1].Label)
	require.Equal(t, map[clock.Label]int{"rebalance": 1, "close": 1}, report.LabelCounts)
	require.False(t, engine.Clock().HasEventTimes())
}

func TestEngineRunStopsOnHandlerError(t *testing.T) {
	engine, _ := newEngine(t)
	boom := errors.New("boom")
	calls := 0
	require.NoError(t, engine.Clock().SetTimer("tick", time.Minute, nil, nil))
	engine.Route("tick", func(context.Context, clock.TimeEvent) error {
		calls++
		if calls == 3 {
			return boom
		}
		return nil
	})

	report, err := engine.Run(context.Background(), start, start.Add(time.Hour))
	require.ErrorIs(t, err, boom)
	require.Equal(t, 3, calls)
	require.Equal(t, 2, report.EventsDispatched)
}

func TestEngineRunHonoursCancellation(t *testing.T) {
	engine, _ := newEngine(t)
	require.NoError(t, engine.Clock().SetTimer("tick", time.Minute, nil, nil))
	ctx, cancel := context.WithCancel(context.Background())
	engine.Route("tick", func(context.Context, clock.TimeEvent) error {
		cancel()
		return nil
	})

	report, err := engine.Run(ctx, start, start.Add(time.Hour))
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, report.EventsDispatched)
	require.Less(t, report.Steps, 60)
}

func TestEngineRunValidatesWindow(t *testing.T) {
	engine, _ := newEngine(t)
	_, err := engine.Run(context.Background(), start, start)
	require.True(t, errs.Is(err, errs.CodeInvalid))

	_, err = NewEngine(nil, nil).Run(context.Background(), start, start.Add(time.Hour))
	require.True(t, errs.Is(err, errs.CodeInvalid))
}

func TestNewScheduledTraderValidates(t *testing.T) {
	db := execution.NewMemoryDatabase("TESTER-000")
	_, err := NewScheduledTrader(db, TraderConfig{Symbol: "AUDUSD.FXCM", Interval: time.Minute, Quantity: decimal.NewFromInt(1)})
	require.True(t, errs.Is(err, errs.CodeInvalid))
	_, err = NewScheduledTrader(db, TraderConfig{StrategyID: "S-001", Symbol: "AUDUSD.FXCM", Quantity: decimal.NewFromInt(1)})
	require.True(t, errs.Is(err, errs.CodeInvalid))
	_, err = NewScheduledTrader(db, TraderConfig{StrategyID: "S-001", Symbol: "AUDUSD.FXCM", Interval: time.Minute})
	require.True(t, errs.Is(err, errs.CodeInvalid))
	_, err = NewScheduledTrader(nil, TraderConfig{})
	require.True(t, errs.Is(err, errs.CodeInvalid))

	trader, err := NewScheduledTrader(db, TraderConfig{StrategyID: "S-001", Symbol: "AUDUSD.FXCM", Interval: time.Minute, Quantity: decimal.NewFromInt(1)})
	require.NoError(t, err)
	require.Equal(t, clock.Label("trade-S-001"), trader.Label())
}

func TestReportClone(t *testing.T) {
	r := newReport(start, start.Add(time.Hour))
	r.recordEvent("a")
	r.Residuals.OpenPositions = append(r.Residuals.OpenPositions, "P-1")

	c := r.Clone()
	c.recordEvent("a")
	c.Residuals.OpenPositions[0] = "P-2"

	require.Equal(t, 1, r.LabelCounts["a"])
	require.Equal(t, "P-1", string(r.Residuals.OpenPositions[0]))
}

func TestEngineStepDecidesOrderAtSharedInstant(t *testing.T) {
	order := func(step time.Duration) []clock.Label {
		engine, _ := newEngine(t, WithStep(step))
		at := start.Add(time.Minute)
		require.NoError(t, engine.Clock().SetTimer("a", 10*time.Minute, &at, nil))
		require.NoError(t, engine.Clock().SetTimeAlert("b", at))
		var got []clock.Label
		record := func(_ context.Context, ev clock.TimeEvent) error {
			got = append(got, ev.Label)
			return nil
		}
		engine.Route("a", record)
		engine.Route("b", record)
		_, err := engine.Run(context.Background(), start, start.Add(4*time.Minute))
		require.NoError(t, err)
		return got
	}

	require.Equal(t, []clock.Label{"b", "a"}, order(time.Minute))
	require.Equal(t, []clock.Label{"a", "b"}, order(2*time.Minute))
}
