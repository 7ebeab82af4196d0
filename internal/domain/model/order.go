package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/coachpo/tempo/errs"
)

const orderComponent = "model/order"

// OrderSide enumerates order directions.
type OrderSide string

const (
	// OrderSideBuy buys the instrument.
	OrderSideBuy OrderSide = "BUY"
	// OrderSideSell sells the instrument.
	OrderSideSell OrderSide = "SELL"
)

// OrderType enumerates supported order types.
type OrderType string

const (
	// OrderTypeMarket executes at the prevailing price.
	OrderTypeMarket OrderType = "MARKET"
	// OrderTypeLimit rests at a limit price.
	OrderTypeLimit OrderType = "LIMIT"
	// OrderTypeStop triggers at a stop price.
	OrderTypeStop OrderType = "STOP"
)

// OrderStatus is the lifecycle state derived from applied events.
type OrderStatus string

const (
	OrderStatusInitialized     OrderStatus = "INITIALIZED"
	OrderStatusSubmitted       OrderStatus = "SUBMITTED"
	OrderStatusAccepted        OrderStatus = "ACCEPTED"
	OrderStatusRejected        OrderStatus = "REJECTED"
	OrderStatusWorking         OrderStatus = "WORKING"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCancelled       OrderStatus = "CANCELLED"
	OrderStatusExpired         OrderStatus = "EXPIRED"
)

// IsCompleted reports whether the status is terminal.
func (s OrderStatus) IsCompleted() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusExpired, OrderStatusRejected:
		return true
	default:
		return false
	}
}

// Order tracks a single client order. Its status only changes through Apply.
type Order struct {
	ID       ClientOrderID
	Symbol   Symbol
	Side     OrderSide
	Type     OrderType
	Quantity decimal.Decimal
	Price    *decimal.Decimal
	InitTime time.Time

	status    OrderStatus
	filledQty decimal.Decimal
	avgPrice  decimal.Decimal
	accountID AccountID
	events    []OrderEvent
}

// NewMarketOrder constructs an initialized market order.
func NewMarketOrder(id ClientOrderID, symbol Symbol, side OrderSide, quantity decimal.Decimal, initTime time.Time) (*Order, error) {
	return newOrder(id, symbol, side, OrderTypeMarket, quantity, nil, initTime)
}

// NewLimitOrder constructs an initialized limit order.
func NewLimitOrder(id ClientOrderID, symbol Symbol, side OrderSide, quantity, price decimal.Decimal, initTime time.Time) (*Order, error) {
	return newOrder(id, symbol, side, OrderTypeLimit, quantity, &price, initTime)
}

// NewStopOrder constructs an initialized stop order.
func NewStopOrder(id ClientOrderID, symbol Symbol, side OrderSide, quantity, price decimal.Decimal, initTime time.Time) (*Order, error) {
	return newOrder(id, symbol, side, OrderTypeStop, quantity, &price, initTime)
}

func newOrder(id ClientOrderID, symbol Symbol, side OrderSide, typ OrderType, quantity decimal.Decimal, price *decimal.Decimal, initTime time.Time) (*Order, error) {
	if id == "" {
		return nil, errs.New(orderComponent, errs.CodeInvalid, errs.WithMessage("client order id required"))
	}
	if symbol == "" {
		return nil, errs.New(orderComponent, errs.CodeInvalid, errs.WithMessage("symbol required"), errs.WithField("order_id", string(id)))
	}
	if side != OrderSideBuy && side != OrderSideSell {
		return nil, errs.New(orderComponent, errs.CodeInvalid, errs.WithMessage("unsupported side"), errs.WithField("side", string(side)))
	}
	if !quantity.IsPositive() {
		return nil, errs.New(orderComponent, errs.CodeInvalid, errs.WithMessage("quantity must be >0"), errs.WithField("order_id", string(id)))
	}
	if price != nil && !price.IsPositive() {
		return nil, errs.New(orderComponent, errs.CodeInvalid, errs.WithMessage("price must be >0"), errs.WithField("order_id", string(id)))
	}
	return &Order{
		ID:        id,
		Symbol:    symbol,
		Side:      side,
		Type:      typ,
		Quantity:  quantity,
		Price:     price,
		InitTime:  initTime.UTC(),
		status:    OrderStatusInitialized,
		filledQty: decimal.Zero,
		avgPrice:  decimal.Zero,
	}, nil
}

// Status returns the current lifecycle status.
func (o *Order) Status() OrderStatus { return o.status }

// IsWorking reports whether the order has not reached a terminal status.
func (o *Order) IsWorking() bool { return !o.status.IsCompleted() }

// IsCompleted reports whether the order reached a terminal status.
func (o *Order) IsCompleted() bool { return o.status.IsCompleted() }

// FilledQuantity returns the cumulative filled quantity.
func (o *Order) FilledQuantity() decimal.Decimal { return o.filledQty }

// AveragePrice returns the volume-weighted fill price.
func (o *Order) AveragePrice() decimal.Decimal { return o.avgPrice }

// AccountID returns the account recorded at submission.
func (o *Order) AccountID() AccountID { return o.accountID }

// EventCount returns the number of applied events.
func (o *Order) EventCount() int { return len(o.events) }

// LastEvent returns the most recently applied event, or nil.
func (o *Order) LastEvent() OrderEvent {
	if len(o.events) == 0 {
		return nil
	}
	return o.events[len(o.events)-1]
}

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusSubmitted:       {OrderStatusInitialized},
	OrderStatusAccepted:        {OrderStatusSubmitted},
	OrderStatusRejected:        {OrderStatusSubmitted, OrderStatusAccepted},
	OrderStatusWorking:         {OrderStatusAccepted},
	OrderStatusCancelled:       {OrderStatusAccepted, OrderStatusWorking, OrderStatusPartiallyFilled},
	OrderStatusExpired:         {OrderStatusWorking, OrderStatusPartiallyFilled},
	OrderStatusPartiallyFilled: {OrderStatusAccepted, OrderStatusWorking, OrderStatusPartiallyFilled},
	OrderStatusFilled:          {OrderStatusAccepted, OrderStatusWorking, OrderStatusPartiallyFilled},
}

// Apply transitions the order with event. Invalid transitions leave the
// order untouched and return an errs.CodeConflict error.
func (o *Order) Apply(event OrderEvent) error {
	if event == nil {
		return errs.New(orderComponent, errs.CodeInvalid, errs.WithMessage("event required"))
	}
	if event.OrderID() != o.ID {
		return errs.New(orderComponent, errs.CodeInvalid,
			errs.WithMessage("event addressed to another order"),
			errs.WithField("order_id", string(o.ID)),
			errs.WithField("event_order_id", string(event.OrderID())))
	}

	switch ev := event.(type) {
	case OrderSubmitted:
		if err := o.transition(OrderStatusSubmitted); err != nil {
			return err
		}
		o.accountID = ev.AccountID
	case OrderAccepted:
		if err := o.transition(OrderStatusAccepted); err != nil {
			return err
		}
	case OrderRejected:
		if err := o.transition(OrderStatusRejected); err != nil {
			return err
		}
	case OrderWorking:
		if err := o.transition(OrderStatusWorking); err != nil {
			return err
		}
	case OrderCancelled:
		if err := o.transition(OrderStatusCancelled); err != nil {
			return err
		}
	case OrderExpired:
		if err := o.transition(OrderStatusExpired); err != nil {
			return err
		}
	case OrderFilled:
		if err := o.fill(ev); err != nil {
			return err
		}
	default:
		return errs.New(orderComponent, errs.CodeInvalid, errs.WithMessage(fmt.Sprintf("unsupported event %T", event)))
	}
	o.events = append(o.events, event)
	return nil
}

func (o *Order) transition(next OrderStatus) error {
	for _, from := range orderTransitions[next] {
		if o.status == from {
			o.status = next
			return nil
		}
	}
	return errs.New(orderComponent, errs.CodeConflict,
		errs.WithMessage("invalid status transition"),
		errs.WithField("order_id", string(o.ID)),
		errs.WithField("from", string(o.status)),
		errs.WithField("to", string(next)))
}

func (o *Order) fill(ev OrderFilled) error {
	if !ev.FilledQuantity.IsPositive() {
		return errs.New(orderComponent, errs.CodeInvalid, errs.WithMessage("fill quantity must be >0"), errs.WithField("order_id", string(o.ID)))
	}
	total := o.filledQty.Add(ev.FilledQuantity)
	if total.GreaterThan(o.Quantity) {
		return errs.New(orderComponent, errs.CodeInvalid,
			errs.WithMessage("fill exceeds order quantity"),
			errs.WithField("order_id", string(o.ID)),
			errs.WithField("filled", total.String()),
			errs.WithField("quantity", o.Quantity.String()))
	}
	next := OrderStatusPartiallyFilled
	if total.Equal(o.Quantity) {
		next = OrderStatusFilled
	}
	if err := o.transition(next); err != nil {
		return err
	}
	notional := o.avgPrice.Mul(o.filledQty).Add(ev.FillPrice.Mul(ev.FilledQuantity))
	o.filledQty = total
	o.avgPrice = notional.Div(total)
	return nil
}
