package aggregation

import (
	"pegbook/internal/types"

	"github.com/shopspring/decimal"
)

// Aggregator groups price levels into tick-sized buckets
type Aggregator struct {
	currentTick types.TickLevel
}

// New creates a new Aggregator instance
func New(tick types.TickLevel) *Aggregator {
	return &Aggregator{
		currentTick: tick,
	}
}

// SetTickLevel updates the tick level for aggregation
func (a *Aggregator) SetTickLevel(tick types.TickLevel) {
	a.currentTick = tick
}

// GetTickLevel returns the current tick level
func (a *Aggregator) GetTickLevel() types.TickLevel {
	return a.currentTick
}

// AggregateBids buckets a bid side sorted best first, flooring prices.
// At most top buckets are returned; top <= 0 means all.
func (a *Aggregator) AggregateBids(levels []types.PriceLevel, top int) []types.PriceLevel {
	return a.aggregate(levels, top, a.roundToTickBid)
}

// AggregateAsks buckets an ask side sorted best first, ceiling prices.
// At most top buckets are returned; top <= 0 means all.
func (a *Aggregator) AggregateAsks(levels []types.PriceLevel, top int) []types.PriceLevel {
	return a.aggregate(levels, top, a.roundToTickAsk)
}

// aggregate relies on the input order: rounding is monotonic, so levels
// sharing a bucket are adjacent.
func (a *Aggregator) aggregate(levels []types.PriceLevel, top int, round func(decimal.Decimal) decimal.Decimal) []types.PriceLevel {
	aggregated := make([]types.PriceLevel, 0)

	for _, level := range levels {
		price := round(level.Price)

		last := len(aggregated) - 1
		if last >= 0 && aggregated[last].Price.Equal(price) {
			aggregated[last].Quantity = aggregated[last].Quantity.Add(level.Quantity)
			continue
		}
		if top > 0 && len(aggregated) == top {
			break
		}
		aggregated = append(aggregated, types.PriceLevel{Price: price, Quantity: level.Quantity})
	}

	return aggregated
}

// roundToTickBid rounds a bid price DOWN to maintain proper spread
func (a *Aggregator) roundToTickBid(price decimal.Decimal) decimal.Decimal {
	tickSize := a.currentTick.Decimal()
	if tickSize.IsZero() {
		return price
	}
	return price.Div(tickSize).Floor().Mul(tickSize)
}

// roundToTickAsk rounds an ask price UP to maintain proper spread
func (a *Aggregator) roundToTickAsk(price decimal.Decimal) decimal.Decimal {
	tickSize := a.currentTick.Decimal()
	if tickSize.IsZero() {
		return price
	}
	return price.Div(tickSize).Ceil().Mul(tickSize)
}

// Cumulative returns the running quantity total at each level
func Cumulative(levels []types.PriceLevel) []decimal.Decimal {
	totals := make([]decimal.Decimal, len(levels))
	sum := decimal.Zero
	for i, level := range levels {
		sum = sum.Add(level.Quantity)
		totals[i] = sum
	}
	return totals
}
