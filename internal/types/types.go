package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// TickLevel represents available tick size options for price aggregation
type TickLevel float64

const (
	Tick0001 TickLevel = 0.001
	Tick001  TickLevel = 0.01
	Tick01   TickLevel = 0.1
	Tick1    TickLevel = 1.0
	Tick10   TickLevel = 10.0
)

// AvailableTickLevels defines the available tick levels in order of precision
var AvailableTickLevels = []TickLevel{
	Tick0001,
	Tick001,
	Tick01,
	Tick1,
	Tick10,
}

// IsValid reports whether tick is one of AvailableTickLevels
func (t TickLevel) IsValid() bool {
	for _, tick := range AvailableTickLevels {
		if tick == t {
			return true
		}
	}
	return false
}

// Decimal returns the tick size as an exact decimal
func (t TickLevel) Decimal() decimal.Decimal {
	return decimal.NewFromFloat(float64(t))
}

// Side identifies one side of the book
type Side string

const (
	Bid Side = "bid"
	Ask Side = "ask"
)

// Ascending reports the canonical price order of the side: asks ascend,
// bids descend.
func (s Side) Ascending() bool {
	return s == Ask
}

// PriceLevel represents a single price level in the order book.
// A zero Quantity marks the price for removal and only ever appears inside
// an update that has not been merged yet.
type PriceLevel struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// IsEmpty reports whether the level is a removal marker
func (l PriceLevel) IsEmpty() bool {
	return l.Quantity.IsZero()
}

// Stats holds statistical information about the order book
type Stats struct {
	UpdatesApplied int64
	UpdatesDropped int64
	LastEventTime  time.Time
	BidLevels      int
	AskLevels      int
	BestBid        decimal.Decimal
	BestAsk        decimal.Decimal
	Spread         decimal.Decimal
	HasSpread      bool

	// Total quantities across all price levels
	TotalBidsQty decimal.Decimal
	TotalAsksQty decimal.Decimal
}
