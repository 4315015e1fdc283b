package orderbook

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrNoOpposingOrder is returned when the side a price would be pegged to is empty
var ErrNoOpposingOrder = errors.New("pegged price cannot be calculated as there's no order in the book")

// ExceedsSpreadError means the pegged price would meet or cross the best
// price on the other side of the book.
type ExceedsSpreadError struct {
	Price      decimal.Decimal // best price the peg is anchored to
	OtherPrice decimal.Decimal // best price on the opposite side
	WouldBe    decimal.Decimal
}

func (e *ExceedsSpreadError) Error() string {
	return fmt.Sprintf("pegged price exceeds spread [price=%s, otherPrice=%s, wouldBe=%s]",
		e.Price, e.OtherPrice, e.WouldBe)
}

// ExceedsLimitError means the pegged price violates the caller's limit: a
// ceiling for bids, a floor for asks.
type ExceedsLimitError struct {
	Price   decimal.Decimal
	Buffer  decimal.Decimal
	Limit   decimal.Decimal
	WouldBe decimal.Decimal
}

func (e *ExceedsLimitError) Error() string {
	return fmt.Sprintf("pegged price exceeds limit [price=%s, buffer=%s, limit=%s, wouldBe=%s]",
		e.Price, e.Buffer, e.Limit, e.WouldBe)
}

// PegBid returns the best bid raised by buffer. The result must stay strictly
// below both the best ask and limit. Without any ask, limit is not checked.
func (ob *OrderBook) PegBid(buffer, limit decimal.Decimal) (decimal.Decimal, error) {
	best, ok := ob.BestBid()
	if !ok {
		return decimal.Zero, ErrNoOpposingOrder
	}
	pegged := best.Price.Add(buffer)

	ask, ok := ob.BestAsk()
	if !ok {
		return pegged, nil
	}
	if ask.Price.LessThanOrEqual(pegged) {
		return decimal.Zero, &ExceedsSpreadError{Price: best.Price, OtherPrice: ask.Price, WouldBe: pegged}
	}
	if limit.LessThanOrEqual(pegged) {
		return decimal.Zero, &ExceedsLimitError{Price: best.Price, Buffer: buffer, Limit: limit, WouldBe: pegged}
	}
	return pegged, nil
}

// PegAsk returns the best ask lowered by buffer. The result must stay strictly
// above both the best bid and limit. Without any bid, limit is not checked.
func (ob *OrderBook) PegAsk(buffer, limit decimal.Decimal) (decimal.Decimal, error) {
	best, ok := ob.BestAsk()
	if !ok {
		return decimal.Zero, ErrNoOpposingOrder
	}
	pegged := best.Price.Sub(buffer)

	bid, ok := ob.BestBid()
	if !ok {
		return pegged, nil
	}
	if bid.Price.GreaterThanOrEqual(pegged) {
		return decimal.Zero, &ExceedsSpreadError{Price: best.Price, OtherPrice: bid.Price, WouldBe: pegged}
	}
	if limit.GreaterThanOrEqual(pegged) {
		return decimal.Zero, &ExceedsLimitError{Price: best.Price, Buffer: buffer, Limit: limit, WouldBe: pegged}
	}
	return pegged, nil
}

// PegBidPrice is PegBid over decimal strings
func (ob *OrderBook) PegBidPrice(buffer, limit string) (string, error) {
	return pegPrice(ob.PegBid, buffer, limit)
}

// PegAskPrice is PegAsk over decimal strings
func (ob *OrderBook) PegAskPrice(buffer, limit string) (string, error) {
	return pegPrice(ob.PegAsk, buffer, limit)
}

func pegPrice(peg func(buffer, limit decimal.Decimal) (decimal.Decimal, error), buffer, limit string) (string, error) {
	b, err := decimal.NewFromString(buffer)
	if err != nil {
		return "", fmt.Errorf("invalid buffer %s: %w", buffer, err)
	}
	l, err := decimal.NewFromString(limit)
	if err != nil {
		return "", fmt.Errorf("invalid limit %s: %w", limit, err)
	}
	pegged, err := peg(b, l)
	if err != nil {
		return "", err
	}
	return PlainString(pegged), nil
}

// PlainString renders d without exponent, keeping the scale the arithmetic
// produced (25.00 + 0.1 is "25.10").
func PlainString(d decimal.Decimal) string {
	if exp := d.Exponent(); exp < 0 {
		return d.StringFixed(-exp)
	}
	return d.String()
}
