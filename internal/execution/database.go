// Package execution holds the execution state store: the in-memory,
// multiply indexed registry of orders, positions, accounts and strategies
// that the trading layer reads and mutates between clock events.
package execution

import (
	"github.com/coachpo/tempo/internal/domain/model"
)

const component = "execution"

// Filter narrows order and position queries. Zero fields match anything;
// when both are set an entry must match both.
type Filter struct {
	Symbol     model.Symbol
	StrategyID model.StrategyID
}

// Residuals lists state left non-terminal at a checkpoint.
type Residuals struct {
	WorkingOrders []model.ClientOrderID
	OpenPositions []model.PositionID
}

// Empty reports whether nothing was left behind.
func (r Residuals) Empty() bool {
	return len(r.WorkingOrders) == 0 && len(r.OpenPositions) == 0
}

// Database is the execution state contract. Every mutation leaves all
// indices consistent before returning; queries never mutate and report
// absence with zero values instead of errors.
type Database interface {
	TraderID() model.TraderID

	AddAccount(account *model.Account) error
	AddOrder(order *model.Order, positionID model.PositionID, strategyID model.StrategyID) error
	AddPosition(position *model.Position, strategyID model.StrategyID) error
	AddStrategy(strategy model.Strategy) error

	UpdateAccount(account *model.Account) error
	UpdateOrder(order *model.Order) error
	UpdatePosition(position *model.Position) error

	DeleteStrategy(strategy model.Strategy)

	CheckResiduals() Residuals
	Reset()
	Flush() error

	GetAccount(id model.AccountID) *model.Account
	GetAccounts() map[model.AccountID]*model.Account
	GetStrategyIDs() []model.StrategyID

	GetOrder(id model.ClientOrderID) *model.Order
	GetOrderIDs(filter Filter) []model.ClientOrderID
	GetOrderIDsWorking(filter Filter) []model.ClientOrderID
	GetOrderIDsCompleted(filter Filter) []model.ClientOrderID
	GetOrders(filter Filter) map[model.ClientOrderID]*model.Order
	GetOrdersWorking(filter Filter) map[model.ClientOrderID]*model.Order
	GetOrdersCompleted(filter Filter) map[model.ClientOrderID]*model.Order

	GetPosition(id model.PositionID) *model.Position
	GetPositionID(orderID model.ClientOrderID) (model.PositionID, bool)
	GetPositionForOrder(orderID model.ClientOrderID) *model.Position
	GetPositionIDs(filter Filter) []model.PositionID
	GetPositionIDsOpen(filter Filter) []model.PositionID
	GetPositionIDsClosed(filter Filter) []model.PositionID
	GetPositions(filter Filter) map[model.PositionID]*model.Position
	GetPositionsOpen(filter Filter) map[model.PositionID]*model.Position
	GetPositionsClosed(filter Filter) map[model.PositionID]*model.Position

	GetOrderIDsForPosition(positionID model.PositionID) []model.ClientOrderID
	GetStrategyForOrder(orderID model.ClientOrderID) (model.StrategyID, bool)
	GetStrategyForPosition(positionID model.PositionID) (model.StrategyID, bool)

	OrderExists(id model.ClientOrderID) bool
	IsOrderWorking(id model.ClientOrderID) bool
	IsOrderCompleted(id model.ClientOrderID) bool
	PositionExists(id model.PositionID) bool
	PositionExistsForOrder(orderID model.ClientOrderID) bool
	PositionIndexedForOrder(orderID model.ClientOrderID) bool
	IsPositionOpen(id model.PositionID) bool
	IsPositionClosed(id model.PositionID) bool

	OrdersTotalCount() int
	OrdersWorkingCount() int
	OrdersCompletedCount() int
	PositionsTotalCount() int
	PositionsOpenCount() int
	PositionsClosedCount() int
}
