package backtest

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/coachpo/tempo/errs"
	"github.com/coachpo/tempo/internal/clock"
	"github.com/coachpo/tempo/internal/domain/model"
	"github.com/coachpo/tempo/internal/execution"
)

// TraderConfig parameterises a ScheduledTrader.
type TraderConfig struct {
	TraderID   model.TraderID
	StrategyID model.StrategyID
	AccountID  model.AccountID
	Symbol     model.Symbol
	Interval   time.Duration
	Quantity   decimal.Decimal
	Price      decimal.Decimal
	Currency   string
	Balance    decimal.Decimal
}

// ScheduledTrader alternates between opening and closing one position on
// every tick of its timer. Orders fill immediately at the configured price.
type ScheduledTrader struct {
	cfg      TraderConfig
	db       execution.Database
	strategy model.Strategy
	label    clock.Label

	orderIDs    *model.IDGenerator
	positionIDs *model.IDGenerator

	account *model.Account
	open    *model.Position
	trades  int
}

// NewScheduledTrader validates cfg and binds the trader to db.
func NewScheduledTrader(db execution.Database, cfg TraderConfig) (*ScheduledTrader, error) {
	if db == nil {
		return nil, errs.New(component, errs.CodeInvalid, errs.WithMessage("database required"))
	}
	if cfg.StrategyID == "" || cfg.Symbol == "" {
		return nil, errs.New(component, errs.CodeInvalid, errs.WithMessage("strategy id and symbol required"))
	}
	if cfg.Interval <= 0 {
		return nil, errs.New(component, errs.CodeInvalid,
			errs.WithMessage("trade interval must be >0"),
			errs.WithField("strategy_id", string(cfg.StrategyID)))
	}
	if !cfg.Quantity.IsPositive() {
		return nil, errs.New(component, errs.CodeInvalid,
			errs.WithMessage("order quantity must be >0"),
			errs.WithField("strategy_id", string(cfg.StrategyID)))
	}
	if cfg.TraderID == "" {
		cfg.TraderID = db.TraderID()
	}
	if cfg.AccountID == "" {
		cfg.AccountID = model.AccountID("SIM-" + idTag(string(cfg.TraderID)))
	}
	if !cfg.Price.IsPositive() {
		cfg.Price = decimal.NewFromInt(1)
	}
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	if cfg.Balance.IsZero() {
		cfg.Balance = decimal.NewFromInt(1_000_000)
	}

	strategy := model.Strategy{ID: cfg.StrategyID, OrderIDTag: idTag(string(cfg.StrategyID))}
	traderTag := idTag(string(cfg.TraderID))
	return &ScheduledTrader{
		cfg:         cfg,
		db:          db,
		strategy:    strategy,
		label:       clock.Label("trade-" + string(cfg.StrategyID)),
		orderIDs:    model.NewIDGenerator("O", traderTag, strategy.OrderIDTag),
		positionIDs: model.NewIDGenerator("P", traderTag, strategy.OrderIDTag),
	}, nil
}

// idTag returns the segment after the last dash, e.g. "001" for "S-001".
func idTag(id string) string {
	if i := strings.LastIndex(id, "-"); i >= 0 && i < len(id)-1 {
		return id[i+1:]
	}
	return id
}

// Label returns the timer label the trader schedules.
func (t *ScheduledTrader) Label() clock.Label { return t.label }

// Trades returns the number of completed round trips.
func (t *ScheduledTrader) Trades() int { return t.trades }

// Attach registers the strategy and account with the store, schedules the
// trading timer one interval after the engine clock's current time and
// routes the timer's events to the trader.
func (t *ScheduledTrader) Attach(e *Engine, stop *time.Time) error {
	if err := t.db.AddStrategy(t.strategy); err != nil && !errs.Is(err, errs.CodeAlreadyExists) {
		return err
	}
	now := e.Clock().TimeNow()
	account, err := model.NewAccount(model.AccountState{
		ID:           uuid.New(),
		AccountID:    t.cfg.AccountID,
		Currency:     t.cfg.Currency,
		CashBalance:  t.cfg.Balance,
		CashStartDay: t.cfg.Balance,
		MarginUsed:   decimal.Zero,
		Timestamp:    now,
	})
	if err != nil {
		return err
	}
	if err := t.db.AddAccount(account); err != nil {
		if !errs.Is(err, errs.CodeAlreadyExists) {
			return err
		}
		account = t.db.GetAccount(t.cfg.AccountID)
	}
	t.account = account

	first := now.Add(t.cfg.Interval)
	if err := e.Clock().SetTimer(t.label, t.cfg.Interval, &first, stop); err != nil {
		return err
	}
	e.Route(t.label, t.OnEvent)
	return nil
}

// OnEvent opens a position when flat and closes it otherwise.
func (t *ScheduledTrader) OnEvent(_ context.Context, event clock.TimeEvent) error {
	if t.open == nil {
		return t.openPosition(event.Timestamp)
	}
	return t.closePosition(event.Timestamp)
}

func (t *ScheduledTrader) openPosition(ts time.Time) error {
	positionID := model.PositionID(t.positionIDs.Next(ts))
	fill, err := t.execute(ts, model.OrderSideBuy, positionID)
	if err != nil {
		return err
	}
	position, err := model.NewPosition(fill)
	if err != nil {
		return err
	}
	if err := t.db.AddPosition(position, t.strategy.ID); err != nil {
		return err
	}
	t.open = position
	return nil
}

func (t *ScheduledTrader) closePosition(ts time.Time) error {
	fill, err := t.execute(ts, model.OrderSideSell, t.open.ID)
	if err != nil {
		return err
	}
	if err := t.open.Apply(fill); err != nil {
		return err
	}
	if err := t.db.UpdatePosition(t.open); err != nil {
		return err
	}
	t.open = nil
	t.trades++

	if err := t.account.Apply(model.AccountState{
		ID:           uuid.New(),
		AccountID:    t.account.ID,
		Currency:     t.account.Currency,
		CashBalance:  t.account.CashBalance,
		CashStartDay: t.account.CashStartDay,
		MarginUsed:   decimal.Zero,
		Timestamp:    ts,
	}); err != nil {
		return err
	}
	return t.db.UpdateAccount(t.account)
}

// execute submits a market order for positionID and walks it through
// acceptance to a full fill, updating the store after every event.
func (t *ScheduledTrader) execute(ts time.Time, side model.OrderSide, positionID model.PositionID) (model.OrderFilled, error) {
	orderID := model.ClientOrderID(t.orderIDs.Next(ts))
	order, err := model.NewMarketOrder(orderID, t.cfg.Symbol, side, t.cfg.Quantity, ts)
	if err != nil {
		return model.OrderFilled{}, err
	}
	if err := t.db.AddOrder(order, positionID, t.strategy.ID); err != nil {
		return model.OrderFilled{}, err
	}

	base := model.OrderEventBase{ClientOrderID: orderID, Timestamp: ts}
	fill := model.OrderFilled{
		OrderEventBase: base,
		PositionID:     positionID,
		Symbol:         t.cfg.Symbol,
		Side:           side,
		FilledQuantity: t.cfg.Quantity,
		FillPrice:      t.cfg.Price,
	}
	events := []model.OrderEvent{
		model.OrderSubmitted{OrderEventBase: base, AccountID: t.cfg.AccountID},
		model.OrderAccepted{OrderEventBase: base},
		fill,
	}
	for _, ev := range events {
		if err := order.Apply(ev); err != nil {
			return model.OrderFilled{}, err
		}
		if err := t.db.UpdateOrder(order); err != nil {
			return model.OrderFilled{}, err
		}
	}
	return fill, nil
}
