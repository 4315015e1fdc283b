package orderbook

import (
	"fmt"

	"pegbook/internal/exchange"
	"pegbook/internal/types"

	"github.com/shopspring/decimal"
)

// ParseLevels converts wire levels into decimal levels, keeping their order
func ParseLevels(levels []exchange.PriceLevel) ([]types.PriceLevel, error) {
	parsed := make([]types.PriceLevel, len(levels))
	for i, level := range levels {
		price, err := decimal.NewFromString(level.Price)
		if err != nil {
			return nil, fmt.Errorf("invalid price %s: %w", level.Price, err)
		}
		qty, err := decimal.NewFromString(level.Quantity)
		if err != nil {
			return nil, fmt.Errorf("invalid quantity %s: %w", level.Quantity, err)
		}
		parsed[i] = types.PriceLevel{Price: price, Quantity: qty}
	}
	return parsed, nil
}

// ParseUpdate converts a canonical depth update into an Update
func ParseUpdate(update *exchange.DepthUpdate) (Update, error) {
	bids, err := ParseLevels(update.Bids)
	if err != nil {
		return Update{}, fmt.Errorf("invalid bid update: %w", err)
	}
	asks, err := ParseLevels(update.Asks)
	if err != nil {
		return Update{}, fmt.Errorf("invalid ask update: %w", err)
	}
	return Update{Bids: bids, Asks: asks}, nil
}
