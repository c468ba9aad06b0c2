package domain

import "time"

// MarketStatus represents the lifecycle state of a market.
type MarketStatus string

const (
	MarketStatusActive   MarketStatus = "ACTIVE"
	MarketStatusClosed   MarketStatus = "CLOSED"
	MarketStatusResolved MarketStatus = "RESOLVED"
	MarketStatusArchived MarketStatus = "ARCHIVED"
)

// Valid reports whether s is one of the known lifecycle states.
func (s MarketStatus) Valid() bool {
	switch s {
	case MarketStatusActive, MarketStatusClosed, MarketStatusResolved, MarketStatusArchived:
		return true
	}
	return false
}

// MarketRecord is one ingested prediction market. Re-ingesting the same
// MarketID updates the row in place; rows are never deleted, only moved to
// ARCHIVED.
type MarketRecord struct {
	MarketID        string
	Title           string
	Status          MarketStatus
	AcceptingOrders bool
	Volume          float64
	Liquidity       float64
	OutcomePrices   []float64 // one probability in [0,1] per outcome
	ClobTokenIDs    []string  // CLOB token IDs, same order as OutcomePrices
	LastMidPrice    *float64  // nil until a mid price has been observed
	UpdatedAt       time.Time // touched on every upsert
	CreatedAt       time.Time // set once at first insert
}
