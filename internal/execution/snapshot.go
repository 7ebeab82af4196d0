package execution

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"time"

	json "github.com/goccy/go-json"

	"github.com/coachpo/tempo/internal/domain/model"
)

// Snapshot is a point-in-time JSON view of a Database.
type Snapshot struct {
	TraderID   string           `json:"trader_id"`
	Counts     SnapshotCounts   `json:"counts"`
	Strategies []string         `json:"strategies"`
	Accounts   []AccountRecord  `json:"accounts"`
	Orders     []OrderRecord    `json:"orders"`
	Positions  []PositionRecord `json:"positions"`
}

// SnapshotCounts mirrors the bucket sizes.
type SnapshotCounts struct {
	Orders          int `json:"orders"`
	OrdersWorking   int `json:"orders_working"`
	OrdersCompleted int `json:"orders_completed"`
	Positions       int `json:"positions"`
	PositionsOpen   int `json:"positions_open"`
	PositionsClosed int `json:"positions_closed"`
}

type AccountRecord struct {
	ID          string    `json:"id"`
	Currency    string    `json:"currency"`
	CashBalance string    `json:"cash_balance"`
	MarginUsed  string    `json:"margin_used"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type OrderRecord struct {
	ID           string `json:"id"`
	Symbol       string `json:"symbol"`
	Side         string `json:"side"`
	Type         string `json:"type"`
	Quantity     string `json:"quantity"`
	Status       string `json:"status"`
	FilledQty    string `json:"filled_qty"`
	AveragePrice string `json:"avg_price,omitempty"`
	PositionID   string `json:"position_id,omitempty"`
	StrategyID   string `json:"strategy_id,omitempty"`
}

type PositionRecord struct {
	ID          string     `json:"id"`
	Symbol      string     `json:"symbol"`
	NetQuantity string     `json:"net_qty"`
	Status      string     `json:"status"`
	OpenedAt    time.Time  `json:"opened_at"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
	StrategyID  string     `json:"strategy_id,omitempty"`
	OrderIDs    []string   `json:"order_ids"`
}

// TakeSnapshot collects every record in id order.
func TakeSnapshot(db Database) Snapshot {
	snap := Snapshot{
		TraderID: string(db.TraderID()),
		Counts: SnapshotCounts{
			Orders:          db.OrdersTotalCount(),
			OrdersWorking:   db.OrdersWorkingCount(),
			OrdersCompleted: db.OrdersCompletedCount(),
			Positions:       db.PositionsTotalCount(),
			PositionsOpen:   db.PositionsOpenCount(),
			PositionsClosed: db.PositionsClosedCount(),
		},
		Strategies: []string{},
		Accounts:   []AccountRecord{},
		Orders:     []OrderRecord{},
		Positions:  []PositionRecord{},
	}
	for _, id := range db.GetStrategyIDs() {
		snap.Strategies = append(snap.Strategies, string(id))
	}

	accounts := db.GetAccounts()
	for _, id := range slices.Sorted(maps.Keys(accounts)) {
		a := accounts[id]
		snap.Accounts = append(snap.Accounts, AccountRecord{
			ID:          string(a.ID),
			Currency:    a.Currency,
			CashBalance: a.CashBalance.String(),
			MarginUsed:  a.MarginUsed.String(),
			UpdatedAt:   a.LastUpdated,
		})
	}

	orders := db.GetOrders(Filter{})
	for _, id := range slices.Sorted(maps.Keys(orders)) {
		snap.Orders = append(snap.Orders, orderRecord(db, orders[id]))
	}

	positions := db.GetPositions(Filter{})
	for _, id := range slices.Sorted(maps.Keys(positions)) {
		snap.Positions = append(snap.Positions, positionRecord(db, positions[id]))
	}
	return snap
}

func orderRecord(db Database, o *model.Order) OrderRecord {
	rec := OrderRecord{
		ID:        string(o.ID),
		Symbol:    string(o.Symbol),
		Side:      string(o.Side),
		Type:      string(o.Type),
		Quantity:  o.Quantity.String(),
		Status:    string(o.Status()),
		FilledQty: o.FilledQuantity().String(),
	}
	if o.FilledQuantity().IsPositive() {
		rec.AveragePrice = o.AveragePrice().String()
	}
	if pid, ok := db.GetPositionID(o.ID); ok {
		rec.PositionID = string(pid)
	}
	if sid, ok := db.GetStrategyForOrder(o.ID); ok {
		rec.StrategyID = string(sid)
	}
	return rec
}

func positionRecord(db Database, p *model.Position) PositionRecord {
	rec := PositionRecord{
		ID:          string(p.ID),
		Symbol:      string(p.Symbol),
		NetQuantity: p.NetQuantity().String(),
		Status:      string(p.Status()),
		OpenedAt:    p.OpenedTime,
		OrderIDs:    []string{},
	}
	if closed, ok := p.ClosedTime(); ok {
		rec.ClosedAt = &closed
	}
	if sid, ok := db.GetStrategyForPosition(p.ID); ok {
		rec.StrategyID = string(sid)
	}
	for _, id := range db.GetOrderIDsForPosition(p.ID) {
		rec.OrderIDs = append(rec.OrderIDs, string(id))
	}
	return rec
}

// WriteSnapshot encodes TakeSnapshot(db) as indented JSON.
func WriteSnapshot(w io.Writer, db Database) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(TakeSnapshot(db)); err != nil {
		return fmt.Errorf("encode execution snapshot: %w", err)
	}
	return nil
}
