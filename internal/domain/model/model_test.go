package model

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/coachpo/tempo/errs"
)

var epoch = time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)

func base(id ClientOrderID) OrderEventBase {
	return OrderEventBase{ClientOrderID: id, Timestamp: epoch}
}

func newTestOrder(t *testing.T, id ClientOrderID, qty int64) *Order {
	t.Helper()
	order, err := NewMarketOrder(id, "AUDUSD.FXCM", OrderSideBuy, decimal.NewFromInt(qty), epoch)
	require.NoError(t, err)
	return order
}

func TestOrderConstructorsValidate(t *testing.T) {
	_, err := NewMarketOrder("", "AUDUSD.FXCM", OrderSideBuy, decimal.NewFromInt(1), epoch)
	require.True(t, errs.Is(err, errs.CodeInvalid))

	_, err = NewMarketOrder("O-1", "AUDUSD.FXCM", OrderSideBuy, decimal.Zero, epoch)
	require.True(t, errs.Is(err, errs.CodeInvalid))

	_, err = NewLimitOrder("O-1", "AUDUSD.FXCM", OrderSideSell, decimal.NewFromInt(1), decimal.NewFromInt(-1), epoch)
	require.True(t, errs.Is(err, errs.CodeInvalid))

	_, err = NewStopOrder("O-1", "AUDUSD.FXCM", "HOLD", decimal.NewFromInt(1), decimal.NewFromInt(1), epoch)
	require.True(t, errs.Is(err, errs.CodeInvalid))

	order, err := NewLimitOrder("O-1", "AUDUSD.FXCM", OrderSideSell, decimal.NewFromInt(10), decimal.RequireFromString("0.71"), epoch)
	require.NoError(t, err)
	require.Equal(t, OrderTypeLimit, order.Type)
	require.Equal(t, OrderStatusInitialized, order.Status())
	require.True(t, order.IsWorking())
	require.NotNil(t, order.Price)
}

func TestOrderLifecycleToFilled(t *testing.T) {
	order := newTestOrder(t, "O-1", 10)

	require.NoError(t, order.Apply(OrderSubmitted{OrderEventBase: base("O-1"), AccountID: "FXCM-001"}))
	require.Equal(t, AccountID("FXCM-001"), order.AccountID())
	require.NoError(t, order.Apply(OrderAccepted{OrderEventBase: base("O-1")}))
	require.NoError(t, order.Apply(OrderWorking{OrderEventBase: base("O-1")}))
	require.True(t, order.IsWorking())

	require.NoError(t, order.Apply(OrderFilled{OrderEventBase: base("O-1"), FilledQuantity: decimal.NewFromInt(4), FillPrice: decimal.NewFromInt(100)}))
	require.Equal(t, OrderStatusPartiallyFilled, order.Status())
	require.False(t, order.IsCompleted())

	require.NoError(t, order.Apply(OrderFilled{OrderEventBase: base("O-1"), FilledQuantity: decimal.NewFromInt(6), FillPrice: decimal.NewFromInt(110)}))
	require.Equal(t, OrderStatusFilled, order.Status())
	require.True(t, order.IsCompleted())
	require.True(t, order.FilledQuantity().Equal(decimal.NewFromInt(10)))
	require.True(t, order.AveragePrice().Equal(decimal.NewFromInt(106)))
	require.Equal(t, 5, order.EventCount())
}

func TestOrderRejectsInvalidTransition(t *testing.T) {
	order := newTestOrder(t, "O-1", 1)

	err := order.Apply(OrderAccepted{OrderEventBase: base("O-1")})
	require.True(t, errs.Is(err, errs.CodeConflict))
	require.Equal(t, OrderStatusInitialized, order.Status())
	require.Nil(t, order.LastEvent())

	require.NoError(t, order.Apply(OrderSubmitted{OrderEventBase: base("O-1")}))
	require.NoError(t, order.Apply(OrderRejected{OrderEventBase: base("O-1"), Reason: "margin"}))
	require.True(t, order.IsCompleted())

	err = order.Apply(OrderCancelled{OrderEventBase: base("O-1")})
	require.True(t, errs.Is(err, errs.CodeConflict))
	require.Equal(t, OrderStatusRejected, order.Status())
}

func TestOrderRejectsForeignAndOverfill(t *testing.T) {
	order := newTestOrder(t, "O-1", 5)
	require.True(t, errs.Is(order.Apply(OrderSubmitted{OrderEventBase: base("O-2")}), errs.CodeInvalid))
	require.True(t, errs.Is(order.Apply(nil), errs.CodeInvalid))

	require.NoError(t, order.Apply(OrderSubmitted{OrderEventBase: base("O-1")}))
	require.NoError(t, order.Apply(OrderAccepted{OrderEventBase: base("O-1")}))
	err := order.Apply(OrderFilled{OrderEventBase: base("O-1"), FilledQuantity: decimal.NewFromInt(6), FillPrice: decimal.NewFromInt(1)})
	require.True(t, errs.Is(err, errs.CodeInvalid))
	require.True(t, order.FilledQuantity().IsZero())
	require.Equal(t, OrderStatusAccepted, order.Status())
}

func TestPositionNetsFillsUntilClosed(t *testing.T) {
	open := OrderFilled{
		OrderEventBase: base("O-1"),
		PositionID:     "P-1",
		Symbol:         "AUDUSD.FXCM",
		Side:           OrderSideBuy,
		FilledQuantity: decimal.NewFromInt(100),
		FillPrice:      decimal.RequireFromString("0.71"),
	}
	position, err := NewPosition(open)
	require.NoError(t, err)
	require.True(t, position.IsOpen())
	require.Equal(t, PositionStatusOpen, position.Status())
	_, closed := position.ClosedTime()
	require.False(t, closed)

	closing := open
	closing.OrderEventBase = OrderEventBase{ClientOrderID: "O-2", Timestamp: epoch.Add(time.Minute)}
	closing.Side = OrderSideSell
	require.NoError(t, position.Apply(closing))
	require.True(t, position.IsClosed())
	require.Equal(t, PositionStatusClosed, position.Status())
	closedAt, ok := position.ClosedTime()
	require.True(t, ok)
	require.Equal(t, epoch.Add(time.Minute), closedAt)
	require.Equal(t, []ClientOrderID{"O-1", "O-2"}, position.OrderIDs())
	require.Equal(t, 2, position.FillCount())

	err = position.Apply(open)
	require.True(t, errs.Is(err, errs.CodeInvalid))
}

func TestPositionShortSide(t *testing.T) {
	position, err := NewPosition(OrderFilled{
		OrderEventBase: base("O-1"),
		PositionID:     "P-1",
		Symbol:         "AUDUSD.FXCM",
		Side:           OrderSideSell,
		FilledQuantity: decimal.NewFromInt(3),
	})
	require.NoError(t, err)
	require.True(t, position.NetQuantity().Equal(decimal.NewFromInt(-3)))

	_, err = NewPosition(OrderFilled{OrderEventBase: base("O-1"), Symbol: "AUDUSD.FXCM", FilledQuantity: decimal.NewFromInt(1)})
	require.True(t, errs.Is(err, errs.CodeInvalid))

	err = position.Apply(OrderFilled{OrderEventBase: base("O-3"), PositionID: "P-1", Symbol: "GBPUSD.FXCM", Side: OrderSideBuy, FilledQuantity: decimal.NewFromInt(1)})
	require.True(t, errs.Is(err, errs.CodeInvalid))
}

func TestAccountReplacedWholesale(t *testing.T) {
	state := AccountState{
		ID:           uuid.New(),
		AccountID:    "FXCM-001",
		Currency:     "USD",
		CashBalance:  decimal.NewFromInt(1_000_000),
		CashStartDay: decimal.NewFromInt(1_000_000),
		MarginUsed:   decimal.NewFromInt(2_000),
		Timestamp:    epoch,
	}
	account, err := NewAccount(state)
	require.NoError(t, err)
	require.True(t, account.FreeEquity().Equal(decimal.NewFromInt(998_000)))

	next := state
	next.ID = uuid.New()
	next.CashBalance = decimal.NewFromInt(999_000)
	next.MarginUsed = decimal.Zero
	next.Timestamp = epoch.Add(time.Hour)
	require.NoError(t, account.Apply(next))
	require.True(t, account.MarginUsed.IsZero())
	require.Equal(t, epoch.Add(time.Hour), account.LastUpdated)

	foreign := next
	foreign.AccountID = "FXCM-002"
	require.True(t, errs.Is(account.Apply(foreign), errs.CodeInvalid))

	_, err = NewAccount(AccountState{})
	require.True(t, errs.Is(err, errs.CodeInvalid))
}

func TestIDGeneratorNumbersSequentially(t *testing.T) {
	gen := NewIDGenerator("O", "001", "EMA")
	require.Equal(t, "O-20240102-093000-001-EMA-1", gen.Next(epoch))
	require.Equal(t, "O-20240102-093000-001-EMA-2", gen.Next(epoch))
	require.Equal(t, 2, gen.Count())
	gen.Reset()
	require.Equal(t, "O-20240102-093000-001-EMA-1", gen.Next(epoch))
}
