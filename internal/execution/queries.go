package execution

import (
	"github.com/coachpo/tempo/internal/domain/model"
)

// GetAccount returns the account or nil.
func (d *MemoryDatabase) GetAccount(id model.AccountID) *model.Account {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.accounts[id]
}

// GetAccounts returns every account keyed by id.
func (d *MemoryDatabase) GetAccounts() map[model.AccountID]*model.Account {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[model.AccountID]*model.Account, len(d.accounts))
	for id, account := range d.accounts {
		out[id] = account
	}
	return out
}

// GetStrategyIDs returns the registered strategy ids, sorted.
func (d *MemoryDatabase) GetStrategyIDs() []model.StrategyID {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return sortedIDs(d.strategies)
}

// GetOrder returns the order or nil.
func (d *MemoryDatabase) GetOrder(id model.ClientOrderID) *model.Order {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.orders[id]
}

func (d *MemoryDatabase) GetOrderIDs(filter Filter) []model.ClientOrderID {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.selectOrdersLocked(d.orderIDs, filter)
}

func (d *MemoryDatabase) GetOrderIDsWorking(filter Filter) []model.ClientOrderID {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.selectOrdersLocked(d.ordersWorking, filter)
}

func (d *MemoryDatabase) GetOrderIDsCompleted(filter Filter) []model.ClientOrderID {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.selectOrdersLocked(d.ordersCompleted, filter)
}

func (d *MemoryDatabase) GetOrders(filter Filter) map[model.ClientOrderID]*model.Order {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.ordersByIDLocked(d.selectOrdersLocked(d.orderIDs, filter))
}

func (d *MemoryDatabase) GetOrdersWorking(filter Filter) map[model.ClientOrderID]*model.Order {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.ordersByIDLocked(d.selectOrdersLocked(d.ordersWorking, filter))
}

func (d *MemoryDatabase) GetOrdersCompleted(filter Filter) map[model.ClientOrderID]*model.Order {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.ordersByIDLocked(d.selectOrdersLocked(d.ordersCompleted, filter))
}

// GetPosition returns the position or nil.
func (d *MemoryDatabase) GetPosition(id model.PositionID) *model.Position {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.positions[id]
}

// GetPositionID returns the position id associated with orderID, which may
// be known before the position exists.
func (d *MemoryDatabase) GetPositionID(orderID model.ClientOrderID) (model.PositionID, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.orderPosition[orderID]
	return id, ok
}

// GetPositionForOrder returns the position orderID filled into, or nil.
func (d *MemoryDatabase) GetPositionForOrder(orderID model.ClientOrderID) *model.Position {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.orderPosition[orderID]
	if !ok {
		return nil
	}
	return d.positions[id]
}

func (d *MemoryDatabase) GetPositionIDs(filter Filter) []model.PositionID {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.selectPositionsLocked(d.positionIDs, filter)
}

func (d *MemoryDatabase) GetPositionIDsOpen(filter Filter) []model.PositionID {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.selectPositionsLocked(d.positionsOpen, filter)
}

func (d *MemoryDatabase) GetPositionIDsClosed(filter Filter) []model.PositionID {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.selectPositionsLocked(d.positionsClosed, filter)
}

func (d *MemoryDatabase) GetPositions(filter Filter) map[model.PositionID]*model.Position {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.positionsByIDLocked(d.selectPositionsLocked(d.positionIDs, filter))
}

func (d *MemoryDatabase) GetPositionsOpen(filter Filter) map[model.PositionID]*model.Position {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.positionsByIDLocked(d.selectPositionsLocked(d.positionsOpen, filter))
}

func (d *MemoryDatabase) GetPositionsClosed(filter Filter) map[model.PositionID]*model.Position {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.positionsByIDLocked(d.selectPositionsLocked(d.positionsClosed, filter))
}

func (d *MemoryDatabase) GetStrategyForOrder(orderID model.ClientOrderID) (model.StrategyID, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.orderStrategy[orderID]
	return id, ok
}

func (d *MemoryDatabase) GetStrategyForPosition(positionID model.PositionID) (model.StrategyID, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.positionStrategy[positionID]
	return id, ok
}

// GetOrderIDsForPosition returns the orders associated with positionID, sorted.
func (d *MemoryDatabase) GetOrderIDsForPosition(positionID model.PositionID) []model.ClientOrderID {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return sortedIDs(d.positionOrders.get(positionID))
}

func (d *MemoryDatabase) OrderExists(id model.ClientOrderID) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.orderIDs.has(id)
}

func (d *MemoryDatabase) IsOrderWorking(id model.ClientOrderID) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.ordersWorking.has(id)
}

func (d *MemoryDatabase) IsOrderCompleted(id model.ClientOrderID) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.ordersCompleted.has(id)
}

func (d *MemoryDatabase) PositionExists(id model.PositionID) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.positionIDs.has(id)
}

// PositionExistsForOrder reports whether the position associated with
// orderID has been added.
func (d *MemoryDatabase) PositionExistsForOrder(orderID model.ClientOrderID) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.orderPosition[orderID]
	return ok && d.positionIDs.has(id)
}

// PositionIndexedForOrder reports whether orderID has a position id
// association, whether or not that position exists yet.
func (d *MemoryDatabase) PositionIndexedForOrder(orderID model.ClientOrderID) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.orderPosition[orderID]
	return ok
}

func (d *MemoryDatabase) IsPositionOpen(id model.PositionID) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.positionsOpen.has(id)
}

func (d *MemoryDatabase) IsPositionClosed(id model.PositionID) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.positionsClosed.has(id)
}

func (d *MemoryDatabase) OrdersTotalCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.orderIDs)
}

func (d *MemoryDatabase) OrdersWorkingCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.ordersWorking)
}

func (d *MemoryDatabase) OrdersCompletedCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.ordersCompleted)
}

func (d *MemoryDatabase) PositionsTotalCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.positionIDs)
}

func (d *MemoryDatabase) PositionsOpenCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.positionsOpen)
}

func (d *MemoryDatabase) PositionsClosedCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.positionsClosed)
}

func (d *MemoryDatabase) selectOrdersLocked(bucket idSet[model.ClientOrderID], filter Filter) []model.ClientOrderID {
	sets := []idSet[model.ClientOrderID]{bucket}
	if filter.Symbol != "" {
		sets = append(sets, d.ordersBySymbol.get(filter.Symbol))
	}
	if filter.StrategyID != "" {
		sets = append(sets, d.ordersByStrat.get(filter.StrategyID))
	}
	return intersect(sets...)
}

func (d *MemoryDatabase) selectPositionsLocked(bucket idSet[model.PositionID], filter Filter) []model.PositionID {
	sets := []idSet[model.PositionID]{bucket}
	if filter.Symbol != "" {
		sets = append(sets, d.positionsBySymbol.get(filter.Symbol))
	}
	if filter.StrategyID != "" {
		sets = append(sets, d.positionsByStrat.get(filter.StrategyID))
	}
	return intersect(sets...)
}

func (d *MemoryDatabase) ordersByIDLocked(ids []model.ClientOrderID) map[model.ClientOrderID]*model.Order {
	out := make(map[model.ClientOrderID]*model.Order, len(ids))
	for _, id := range ids {
		out[id] = d.orders[id]
	}
	return out
}

func (d *MemoryDatabase) positionsByIDLocked(ids []model.PositionID) map[model.PositionID]*model.Position {
	out := make(map[model.PositionID]*model.Position, len(ids))
	for _, id := range ids {
		out[id] = d.positions[id]
	}
	return out
}
