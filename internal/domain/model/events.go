package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderEvent is a domain event applied to an Order.
type OrderEvent interface {
	OrderID() ClientOrderID
	EventTime() time.Time
}

// OrderEventBase carries the fields shared by every order event.
type OrderEventBase struct {
	ClientOrderID ClientOrderID
	Timestamp     time.Time
}

// OrderID implements OrderEvent.
func (b OrderEventBase) OrderID() ClientOrderID { return b.ClientOrderID }

// EventTime implements OrderEvent.
func (b OrderEventBase) EventTime() time.Time { return b.Timestamp }

// OrderSubmitted records that the order was sent to the venue.
type OrderSubmitted struct {
	OrderEventBase
	AccountID AccountID
}

// OrderAccepted records venue acceptance.
type OrderAccepted struct {
	OrderEventBase
}

// OrderRejected records venue rejection.
type OrderRejected struct {
	OrderEventBase
	Reason string
}

// OrderWorking records that a resting order is live on the book.
type OrderWorking struct {
	OrderEventBase
}

// OrderCancelled records cancellation.
type OrderCancelled struct {
	OrderEventBase
}

// OrderExpired records expiry of a resting order.
type OrderExpired struct {
	OrderEventBase
}

// OrderFilled records a (possibly partial) execution.
type OrderFilled struct {
	OrderEventBase
	PositionID     PositionID
	Symbol         Symbol
	Side           OrderSide
	FilledQuantity decimal.Decimal
	FillPrice      decimal.Decimal
}

// AccountState snapshots account balances as reported by the venue.
type AccountState struct {
	ID           uuid.UUID
	AccountID    AccountID
	Currency     string
	CashBalance  decimal.Decimal
	CashStartDay decimal.Decimal
	MarginUsed   decimal.Decimal
	Timestamp    time.Time
}
