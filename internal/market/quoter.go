package market

import (
	"errors"
	"fmt"

	"pegbook/internal/config"
	"pegbook/internal/metrics"
	"pegbook/internal/orderbook"
	"pegbook/internal/types"

	"github.com/shopspring/decimal"
)

// Peg outcomes, as reported in quotes and metrics
const (
	OutcomeOK              = "ok"
	OutcomeNoOpposingOrder = "no_opposing_order"
	OutcomeExceedsSpread   = "exceeds_spread"
	OutcomeExceedsLimit    = "exceeds_limit"
	OutcomeError           = "error"
)

// Quote is the pegged price for one side, or the reason there is none
type Quote struct {
	Side    types.Side
	Price   string
	Outcome string
	Err     error
}

// OK reports whether the quote carries a price
func (q Quote) OK() bool {
	return q.Err == nil
}

// Quoter derives pegged bid and ask prices from a book
type Quoter struct {
	bidBuffer decimal.Decimal
	bidLimit  decimal.Decimal
	askBuffer decimal.Decimal
	askLimit  decimal.Decimal
	metrics   *metrics.Metrics
}

// NewQuoter parses the peg configuration
func NewQuoter(cfg config.PegConfig, m *metrics.Metrics) (*Quoter, error) {
	q := &Quoter{metrics: m}
	fields := []struct {
		name string
		src  string
		dst  *decimal.Decimal
	}{
		{"bid buffer", cfg.BidBuffer, &q.bidBuffer},
		{"bid limit", cfg.BidLimit, &q.bidLimit},
		{"ask buffer", cfg.AskBuffer, &q.askBuffer},
		{"ask limit", cfg.AskLimit, &q.askLimit},
	}
	for _, f := range fields {
		d, err := decimal.NewFromString(f.src)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", f.name, f.src, err)
		}
		*f.dst = d
	}
	return q, nil
}

// Quote computes both pegged prices against book
func (q *Quoter) Quote(book *orderbook.OrderBook) (bid, ask Quote) {
	bidPrice, bidErr := book.PegBid(q.bidBuffer, q.bidLimit)
	askPrice, askErr := book.PegAsk(q.askBuffer, q.askLimit)
	return q.quote(types.Bid, bidPrice, bidErr), q.quote(types.Ask, askPrice, askErr)
}

func (q *Quoter) quote(side types.Side, price decimal.Decimal, err error) Quote {
	quote := Quote{Side: side, Outcome: Outcome(err), Err: err}
	if err == nil {
		quote.Price = orderbook.PlainString(price)
	}
	q.metrics.PegOutcomes.WithLabelValues(string(side), quote.Outcome).Inc()
	return quote
}

// Outcome classifies a peg error
func Outcome(err error) string {
	var spreadErr *orderbook.ExceedsSpreadError
	var limitErr *orderbook.ExceedsLimitError
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, orderbook.ErrNoOpposingOrder):
		return OutcomeNoOpposingOrder
	case errors.As(err, &spreadErr):
		return OutcomeExceedsSpread
	case errors.As(err, &limitErr):
		return OutcomeExceedsLimit
	default:
		return OutcomeError
	}
}
