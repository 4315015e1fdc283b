package orderbook

import (
	"fmt"

	"pegbook/internal/exchange"
	"pegbook/internal/types"

	"github.com/shopspring/decimal"
)

// OrderBook holds both sides of a single instrument's book.
//
// Bids are kept in descending and asks in ascending price order. Each side is
// replaced wholesale on every update and never modified in place, so a copy of
// the struct is a consistent, immutable view. OrderBook itself is not safe for
// concurrent mutation.
type OrderBook struct {
	bids []types.PriceLevel
	asks []types.PriceLevel
}

// Update carries the changed levels of one depth event. Each side must be
// sorted in the same direction as the corresponding book side.
type Update struct {
	Bids []types.PriceLevel
	Asks []types.PriceLevel
}

// New creates an OrderBook from already sorted sides
func New(bids, asks []types.PriceLevel) *OrderBook {
	return &OrderBook{
		bids: dropEmpty(bids),
		asks: dropEmpty(asks),
	}
}

// FromSnapshot builds an OrderBook from a full snapshot
func FromSnapshot(snapshot *exchange.Snapshot) (*OrderBook, error) {
	bids, err := ParseLevels(snapshot.Bids)
	if err != nil {
		return nil, fmt.Errorf("invalid bids: %w", err)
	}
	asks, err := ParseLevels(snapshot.Asks)
	if err != nil {
		return nil, fmt.Errorf("invalid asks: %w", err)
	}
	return New(bids, asks), nil
}

// ApplyUpdate merges an update into both sides. The sides are merged
// independently; a crossed result is not rejected.
func (ob *OrderBook) ApplyUpdate(update Update) {
	ob.bids = Merge(update.Bids, ob.bids, types.Bid.Ascending())
	ob.asks = Merge(update.Asks, ob.asks, types.Ask.Ascending())
}

// View returns a copy of the book that later updates to ob do not affect
func (ob *OrderBook) View() *OrderBook {
	view := *ob
	return &view
}

// BestBid returns the highest bid, if any
func (ob *OrderBook) BestBid() (types.PriceLevel, bool) {
	return first(ob.bids)
}

// BestAsk returns the lowest ask, if any
func (ob *OrderBook) BestAsk() (types.PriceLevel, bool) {
	return first(ob.asks)
}

// Spread returns best ask minus best bid. It reports false when either side
// is empty.
func (ob *OrderBook) Spread() (decimal.Decimal, bool) {
	bid, ok := ob.BestBid()
	if !ok {
		return decimal.Zero, false
	}
	ask, ok := ob.BestAsk()
	if !ok {
		return decimal.Zero, false
	}
	return ask.Price.Sub(bid.Price), true
}

// Bids returns the bid side, best first. Callers must not modify it.
func (ob *OrderBook) Bids() []types.PriceLevel {
	return ob.bids
}

// Asks returns the ask side, best first. Callers must not modify it.
func (ob *OrderBook) Asks() []types.PriceLevel {
	return ob.asks
}

// Stats returns depth and price statistics for the current book
func (ob *OrderBook) Stats() types.Stats {
	stats := types.Stats{
		BidLevels:    len(ob.bids),
		AskLevels:    len(ob.asks),
		TotalBidsQty: totalQuantity(ob.bids),
		TotalAsksQty: totalQuantity(ob.asks),
	}
	if bid, ok := ob.BestBid(); ok {
		stats.BestBid = bid.Price
	}
	if ask, ok := ob.BestAsk(); ok {
		stats.BestAsk = ask.Price
	}
	stats.Spread, stats.HasSpread = ob.Spread()
	return stats
}

func first(levels []types.PriceLevel) (types.PriceLevel, bool) {
	if len(levels) == 0 {
		return types.PriceLevel{}, false
	}
	return levels[0], true
}

func totalQuantity(levels []types.PriceLevel) decimal.Decimal {
	total := decimal.Zero
	for _, level := range levels {
		total = total.Add(level.Quantity)
	}
	return total
}
