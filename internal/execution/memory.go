package execution

import (
	"sync"

	"github.com/coachpo/tempo/errs"
	"github.com/coachpo/tempo/internal/domain/model"
	"github.com/coachpo/tempo/internal/observability"
)

// Option configures a MemoryDatabase.
type Option func(*MemoryDatabase)

// WithLogger sets the diagnostic sink used for residual reports and resets.
func WithLogger(logger observability.Logger) Option {
	return func(d *MemoryDatabase) {
		d.logger = observability.Safe(logger)
	}
}

// MemoryDatabase keeps execution state in process memory. The primary maps
// are authoritative; every index is derived from them and rewritten under
// the same lock as the primary change, so readers never observe a partially
// indexed entry.
type MemoryDatabase struct {
	mu       sync.RWMutex
	traderID model.TraderID
	logger   observability.Logger

	accounts   map[model.AccountID]*model.Account
	orders     map[model.ClientOrderID]*model.Order
	positions  map[model.PositionID]*model.Position
	strategies idSet[model.StrategyID]

	orderIDs        idSet[model.ClientOrderID]
	ordersWorking   idSet[model.ClientOrderID]
	ordersCompleted idSet[model.ClientOrderID]
	ordersBySymbol  partition[model.Symbol, model.ClientOrderID]
	ordersByStrat   partition[model.StrategyID, model.ClientOrderID]

	positionIDs       idSet[model.PositionID]
	positionsOpen     idSet[model.PositionID]
	positionsClosed   idSet[model.PositionID]
	positionsBySymbol partition[model.Symbol, model.PositionID]
	positionsByStrat  partition[model.StrategyID, model.PositionID]

	orderPosition    map[model.ClientOrderID]model.PositionID
	orderStrategy    map[model.ClientOrderID]model.StrategyID
	positionStrategy map[model.PositionID]model.StrategyID
	positionOrders   partition[model.PositionID, model.ClientOrderID]
}

// NewMemoryDatabase constructs an empty store owned by traderID.
func NewMemoryDatabase(traderID model.TraderID, opts ...Option) *MemoryDatabase {
	d := &MemoryDatabase{traderID: traderID, logger: observability.Log()}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	d.logger = observability.Safe(d.logger)
	d.clear()
	return d
}

var _ Database = (*MemoryDatabase)(nil)

func (d *MemoryDatabase) clear() {
	d.accounts = make(map[model.AccountID]*model.Account)
	d.orders = make(map[model.ClientOrderID]*model.Order)
	d.positions = make(map[model.PositionID]*model.Position)
	d.strategies = make(idSet[model.StrategyID])

	d.orderIDs = make(idSet[model.ClientOrderID])
	d.ordersWorking = make(idSet[model.ClientOrderID])
	d.ordersCompleted = make(idSet[model.ClientOrderID])
	d.ordersBySymbol = make(partition[model.Symbol, model.ClientOrderID])
	d.ordersByStrat = make(partition[model.StrategyID, model.ClientOrderID])

	d.positionIDs = make(idSet[model.PositionID])
	d.positionsOpen = make(idSet[model.PositionID])
	d.positionsClosed = make(idSet[model.PositionID])
	d.positionsBySymbol = make(partition[model.Symbol, model.PositionID])
	d.positionsByStrat = make(partition[model.StrategyID, model.PositionID])

	d.orderPosition = make(map[model.ClientOrderID]model.PositionID)
	d.orderStrategy = make(map[model.ClientOrderID]model.StrategyID)
	d.positionStrategy = make(map[model.PositionID]model.StrategyID)
	d.positionOrders = make(partition[model.PositionID, model.ClientOrderID])
}

// TraderID returns the owner of the store.
func (d *MemoryDatabase) TraderID() model.TraderID { return d.traderID }

// -- Commands --

// AddAccount registers a new account.
func (d *MemoryDatabase) AddAccount(account *model.Account) error {
	if account == nil {
		return errs.New(component, errs.CodeInvalid, errs.WithMessage("account required"))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.accounts[account.ID]; exists {
		return errs.New(component, errs.CodeAlreadyExists,
			errs.WithMessage("account already added"),
			errs.WithField("account_id", string(account.ID)))
	}
	d.accounts[account.ID] = account
	d.logger.Debug("account added", observability.F("account_id", string(account.ID)))
	return nil
}

// AddOrder registers a new order under strategyID and records the position
// it will fill into, so lookups by order work before any fill exists.
func (d *MemoryDatabase) AddOrder(order *model.Order, positionID model.PositionID, strategyID model.StrategyID) error {
	if order == nil {
		return errs.New(component, errs.CodeInvalid, errs.WithMessage("order required"))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.orders[order.ID]; exists {
		return errs.New(component, errs.CodeAlreadyExists,
			errs.WithMessage("order already added"),
			errs.WithField("order_id", string(order.ID)))
	}

	d.orders[order.ID] = order
	d.orderIDs.add(order.ID)
	d.ordersBySymbol.add(order.Symbol, order.ID)
	if strategyID != "" {
		d.ordersByStrat.add(strategyID, order.ID)
		d.orderStrategy[order.ID] = strategyID
	}
	if positionID != "" {
		d.orderPosition[order.ID] = positionID
		d.positionOrders.add(positionID, order.ID)
	}
	d.bucketOrderLocked(order)

	d.logger.Debug("order added",
		observability.F("order_id", string(order.ID)),
		observability.F("position_id", string(positionID)),
		observability.F("strategy_id", string(strategyID)))
	return nil
}

// AddPosition registers a newly opened position under strategyID. An order
// already associated with another position is a CodeConflict.
func (d *MemoryDatabase) AddPosition(position *model.Position, strategyID model.StrategyID) error {
	if position == nil {
		return errs.New(component, errs.CodeInvalid, errs.WithMessage("position required"))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.positions[position.ID]; exists {
		return errs.New(component, errs.CodeAlreadyExists,
			errs.WithMessage("position already added"),
			errs.WithField("position_id", string(position.ID)))
	}
	if err := d.checkPositionOrdersLocked(position); err != nil {
		return err
	}

	d.positions[position.ID] = position
	d.positionIDs.add(position.ID)
	d.positionsBySymbol.add(position.Symbol, position.ID)
	if strategyID != "" {
		d.positionsByStrat.add(strategyID, position.ID)
		d.positionStrategy[position.ID] = strategyID
	}
	d.linkPositionOrdersLocked(position)
	d.bucketPositionLocked(position)

	d.logger.Debug("position added",
		observability.F("position_id", string(position.ID)),
		observability.F("strategy_id", string(strategyID)))
	return nil
}

// AddStrategy registers a strategy id.
func (d *MemoryDatabase) AddStrategy(strategy model.Strategy) error {
	if strategy.ID == "" {
		return errs.New(component, errs.CodeInvalid, errs.WithMessage("strategy id required"))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.strategies.has(strategy.ID) {
		return errs.New(component, errs.CodeAlreadyExists,
			errs.WithMessage("strategy already added"),
			errs.WithField("strategy_id", string(strategy.ID)))
	}
	d.strategies.add(strategy.ID)
	return nil
}

// UpdateAccount replaces the stored account record wholesale.
func (d *MemoryDatabase) UpdateAccount(account *model.Account) error {
	if account == nil {
		return errs.New(component, errs.CodeInvalid, errs.WithMessage("account required"))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.accounts[account.ID]; !exists {
		return notFound("account", string(account.ID))
	}
	d.accounts[account.ID] = account
	return nil
}

// UpdateOrder moves the order between the working and completed buckets
// according to its current status. The symbol is fixed at AddOrder.
func (d *MemoryDatabase) UpdateOrder(order *model.Order) error {
	if order == nil {
		return errs.New(component, errs.CodeInvalid, errs.WithMessage("order required"))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	existing, exists := d.orders[order.ID]
	if !exists {
		return notFound("order", string(order.ID))
	}
	if existing.Symbol != order.Symbol {
		return symbolConflict("order", string(order.ID), existing.Symbol, order.Symbol)
	}
	d.orders[order.ID] = order
	d.bucketOrderLocked(order)
	return nil
}

// UpdatePosition moves the position between the open and closed buckets
// and indexes any orders that filled into it since the last update. The
// symbol is fixed at AddPosition, and orders keep their first position.
func (d *MemoryDatabase) UpdatePosition(position *model.Position) error {
	if position == nil {
		return errs.New(component, errs.CodeInvalid, errs.WithMessage("position required"))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	existing, exists := d.positions[position.ID]
	if !exists {
		return notFound("position", string(position.ID))
	}
	if existing.Symbol != position.Symbol {
		return symbolConflict("position", string(position.ID), existing.Symbol, position.Symbol)
	}
	if err := d.checkPositionOrdersLocked(position); err != nil {
		return err
	}
	d.positions[position.ID] = position
	d.linkPositionOrdersLocked(position)
	d.bucketPositionLocked(position)
	return nil
}

// DeleteStrategy forgets the strategy id. Orders and positions indexed
// under it keep their entries.
func (d *MemoryDatabase) DeleteStrategy(strategy model.Strategy) {
	d.mu.Lock()
	d.strategies.remove(strategy.ID)
	d.mu.Unlock()
}

// CheckResiduals reports working orders and open positions. It never
// mutates the store.
func (d *MemoryDatabase) CheckResiduals() Residuals {
	d.mu.RLock()
	res := Residuals{
		WorkingOrders: sortedIDs(d.ordersWorking),
		OpenPositions: sortedIDs(d.positionsOpen),
	}
	d.mu.RUnlock()

	for _, id := range res.WorkingOrders {
		d.logger.Warn("residual working order", observability.F("order_id", string(id)))
	}
	for _, id := range res.OpenPositions {
		d.logger.Warn("residual open position", observability.F("position_id", string(id)))
	}
	return res
}

// Reset clears every record and index.
func (d *MemoryDatabase) Reset() {
	d.mu.Lock()
	d.clear()
	d.mu.Unlock()
	d.logger.Debug("execution database reset", observability.F("trader_id", string(d.traderID)))
}

// Flush is a no-op; the store holds nothing outside memory.
func (d *MemoryDatabase) Flush() error { return nil }

func (d *MemoryDatabase) bucketOrderLocked(order *model.Order) {
	if order.IsCompleted() {
		d.ordersWorking.remove(order.ID)
		d.ordersCompleted.add(order.ID)
		return
	}
	d.ordersCompleted.remove(order.ID)
	d.ordersWorking.add(order.ID)
}

func (d *MemoryDatabase) bucketPositionLocked(position *model.Position) {
	if position.IsClosed() {
		d.positionsOpen.remove(position.ID)
		d.positionsClosed.add(position.ID)
		return
	}
	d.positionsClosed.remove(position.ID)
	d.positionsOpen.add(position.ID)
}

// checkPositionOrdersLocked rejects a position holding an order that is
// already associated with a different position.
func (d *MemoryDatabase) checkPositionOrdersLocked(position *model.Position) error {
	for _, orderID := range position.OrderIDs() {
		if indexed, ok := d.orderPosition[orderID]; ok && indexed != position.ID {
			return errs.New(component, errs.CodeConflict,
				errs.WithMessage("order associated with another position"),
				errs.WithField("order_id", string(orderID)),
				errs.WithField("position_id", string(position.ID)),
				errs.WithField("indexed_position_id", string(indexed)))
		}
	}
	return nil
}

// linkPositionOrdersLocked indexes the position's orders. Callers run
// checkPositionOrdersLocked first.
func (d *MemoryDatabase) linkPositionOrdersLocked(position *model.Position) {
	for _, orderID := range position.OrderIDs() {
		d.orderPosition[orderID] = position.ID
		d.positionOrders.add(position.ID, orderID)
	}
}

func symbolConflict(kind, id string, indexed, incoming model.Symbol) error {
	return errs.New(component, errs.CodeConflict,
		errs.WithMessage(kind+" symbol changed"),
		errs.WithField(kind+"_id", id),
		errs.WithField("indexed_symbol", string(indexed)),
		errs.WithField("symbol", string(incoming)))
}

func notFound(kind, id string) error {
	return errs.New(component, errs.CodeNotFound,
		errs.WithMessage(kind+" not found"),
		errs.WithField(kind+"_id", id))
}
