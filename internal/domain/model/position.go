package model

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/coachpo/tempo/errs"
)

const positionComponent = "model/position"

// PositionStatus is derived from the net quantity.
type PositionStatus string

const (
	// PositionStatusOpen holds a non-zero net quantity.
	PositionStatusOpen PositionStatus = "OPEN"
	// PositionStatusClosed returned to flat. Terminal.
	PositionStatusClosed PositionStatus = "CLOSED"
)

// Position aggregates fills for one symbol until it returns to flat.
type Position struct {
	ID         PositionID
	Symbol     Symbol
	EntrySide  OrderSide
	OpenedTime time.Time

	netQty     decimal.Decimal
	closedTime time.Time
	orderIDs   []ClientOrderID
	fillCount  int
}

// NewPosition opens a position from its first fill.
func NewPosition(fill OrderFilled) (*Position, error) {
	if fill.PositionID == "" {
		return nil, errs.New(positionComponent, errs.CodeInvalid, errs.WithMessage("position id required"))
	}
	if fill.Symbol == "" {
		return nil, errs.New(positionComponent, errs.CodeInvalid, errs.WithMessage("symbol required"), errs.WithField("position_id", string(fill.PositionID)))
	}
	if !fill.FilledQuantity.IsPositive() {
		return nil, errs.New(positionComponent, errs.CodeInvalid, errs.WithMessage("fill quantity must be >0"), errs.WithField("position_id", string(fill.PositionID)))
	}
	p := &Position{
		ID:         fill.PositionID,
		Symbol:     fill.Symbol,
		EntrySide:  fill.Side,
		OpenedTime: fill.Timestamp.UTC(),
		netQty:     decimal.Zero,
	}
	p.net(fill)
	return p, nil
}

// Apply nets a subsequent fill into the position.
func (p *Position) Apply(fill OrderFilled) error {
	if p.IsClosed() {
		return errs.New(positionComponent, errs.CodeInvalid,
			errs.WithMessage("position closed"),
			errs.WithField("position_id", string(p.ID)))
	}
	if fill.PositionID != "" && fill.PositionID != p.ID {
		return errs.New(positionComponent, errs.CodeInvalid,
			errs.WithMessage("fill addressed to another position"),
			errs.WithField("position_id", string(p.ID)),
			errs.WithField("fill_position_id", string(fill.PositionID)))
	}
	if fill.Symbol != p.Symbol {
		return errs.New(positionComponent, errs.CodeInvalid,
			errs.WithMessage("symbol mismatch"),
			errs.WithField("position_id", string(p.ID)),
			errs.WithField("symbol", string(fill.Symbol)))
	}
	if !fill.FilledQuantity.IsPositive() {
		return errs.New(positionComponent, errs.CodeInvalid, errs.WithMessage("fill quantity must be >0"), errs.WithField("position_id", string(p.ID)))
	}
	p.net(fill)
	return nil
}

func (p *Position) net(fill OrderFilled) {
	qty := fill.FilledQuantity
	if fill.Side == OrderSideSell {
		qty = qty.Neg()
	}
	p.netQty = p.netQty.Add(qty)
	p.fillCount++
	if !containsOrder(p.orderIDs, fill.ClientOrderID) {
		p.orderIDs = append(p.orderIDs, fill.ClientOrderID)
	}
	if p.netQty.IsZero() {
		p.closedTime = fill.Timestamp.UTC()
	}
}

func containsOrder(ids []ClientOrderID, id ClientOrderID) bool {
	for _, existing := range ids {
		if existing == id {
			return true
		}
	}
	return false
}

// NetQuantity returns the signed net quantity; negative when short.
func (p *Position) NetQuantity() decimal.Decimal { return p.netQty }

// Status returns Open or Closed.
func (p *Position) Status() PositionStatus {
	if p.netQty.IsZero() {
		return PositionStatusClosed
	}
	return PositionStatusOpen
}

// IsOpen reports a non-zero net quantity.
func (p *Position) IsOpen() bool { return !p.netQty.IsZero() }

// IsClosed reports whether the position returned to flat.
func (p *Position) IsClosed() bool { return p.netQty.IsZero() }

// ClosedTime returns when the position went flat, if it has.
func (p *Position) ClosedTime() (time.Time, bool) {
	if !p.IsClosed() {
		return time.Time{}, false
	}
	return p.closedTime, true
}

// OrderIDs returns the ids of every order that filled into the position.
func (p *Position) OrderIDs() []ClientOrderID {
	out := make([]ClientOrderID, len(p.orderIDs))
	copy(out, p.orderIDs)
	return out
}

// FillCount returns the number of fills applied.
func (p *Position) FillCount() int { return p.fillCount }
