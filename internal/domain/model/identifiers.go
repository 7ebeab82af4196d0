// Package model holds the trading objects tracked by the execution store:
// orders, positions, accounts and strategies, plus the events that
// transition them.
package model

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// TraderID identifies the trader instance that owns a store.
type TraderID string

// StrategyID identifies a strategy; used as an index partition key.
type StrategyID string

// ClientOrderID identifies an order from the client's side.
type ClientOrderID string

// PositionID identifies a position.
type PositionID string

// AccountID identifies a brokerage account.
type AccountID string

// Symbol identifies a tradable instrument, e.g. "AUDUSD.FXCM".
type Symbol string

// IDGenerator produces monotonically numbered identifiers stamped with the
// supplied time, e.g. "O-20200101-000000-001-001-1".
type IDGenerator struct {
	prefix string
	trader string
	tag    string

	mu    sync.Mutex
	count int
}

// NewIDGenerator constructs a generator. prefix is typically "O" or "P".
func NewIDGenerator(prefix, traderTag, strategyTag string) *IDGenerator {
	return &IDGenerator{
		prefix: strings.TrimSpace(prefix),
		trader: strings.TrimSpace(traderTag),
		tag:    strings.TrimSpace(strategyTag),
	}
}

// Next returns the next identifier string for ts.
func (g *IDGenerator) Next(ts time.Time) string {
	g.mu.Lock()
	g.count++
	n := g.count
	g.mu.Unlock()
	return fmt.Sprintf("%s-%s-%s-%s-%d", g.prefix, ts.UTC().Format("20060102-150405"), g.trader, g.tag, n)
}

// Count returns how many identifiers were generated.
func (g *IDGenerator) Count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.count
}

// Reset restarts numbering from one.
func (g *IDGenerator) Reset() {
	g.mu.Lock()
	g.count = 0
	g.mu.Unlock()
}
