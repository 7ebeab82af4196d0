package model

// Strategy partitions orders and positions in the execution store.
type Strategy struct {
	ID         StrategyID
	OrderIDTag string
}
