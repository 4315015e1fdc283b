package market

import (
	"context"
	"errors"
	"testing"
	"time"

	"pegbook/internal/config"
	"pegbook/internal/exchange"
	"pegbook/internal/metrics"
	"pegbook/internal/orderbook"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

// fakeExchange serves a fixed snapshot and a caller-fed update channel
type fakeExchange struct {
	snapshot *exchange.Snapshot
	err      error
	updates  chan *exchange.DepthUpdate
}

func newFakeExchange(snapshot *exchange.Snapshot) *fakeExchange {
	return &fakeExchange{snapshot: snapshot, updates: make(chan *exchange.DepthUpdate, 16)}
}

func (f *fakeExchange) GetName() exchange.ExchangeName        { return exchange.Binance }
func (f *fakeExchange) GetSymbol() string                     { return "ETHBTC" }
func (f *fakeExchange) Connect(ctx context.Context) error     { return nil }
func (f *fakeExchange) Close() error                          { return nil }
func (f *fakeExchange) Updates() <-chan *exchange.DepthUpdate { return f.updates }
func (f *fakeExchange) IsConnected() bool                     { return true }
func (f *fakeExchange) Health() exchange.HealthStatus         { return exchange.HealthStatus{Connected: true} }
func (f *fakeExchange) GetSnapshot(ctx context.Context) (*exchange.Snapshot, error) {
	return f.snapshot, f.err
}

func pl(price, qty string) exchange.PriceLevel {
	return exchange.PriceLevel{Price: price, Quantity: qty}
}

func testSnapshot() *exchange.Snapshot {
	return &exchange.Snapshot{
		LastUpdateID: 100,
		Bids:         []exchange.PriceLevel{pl("25.0", "1"), pl("24.9", "2")},
		Asks:         []exchange.PriceLevel{pl("35.0", "1"), pl("35.5", "2")},
	}
}

func newTestTracker(ex exchange.Exchange) (*Tracker, *metrics.Metrics) {
	m := metrics.New("ETHBTC")
	return NewTracker(ex, m, zerolog.Nop()), m
}

func TestTrackerInit(t *testing.T) {
	tracker, _ := newTestTracker(newFakeExchange(testSnapshot()))

	if tracker.IsInitialized() {
		t.Fatal("Expected tracker not initialized before Init")
	}
	if err := tracker.Init(context.Background()); err != nil {
		t.Fatalf("Init() error: %v", err)
	}

	view := tracker.View()
	if view == nil {
		t.Fatal("Expected a view after Init")
	}
	if view.Stats.BidLevels != 2 || view.Stats.AskLevels != 2 {
		t.Errorf("Expected 2/2 levels, got %d/%d", view.Stats.BidLevels, view.Stats.AskLevels)
	}
}

func TestTrackerInitError(t *testing.T) {
	ex := newFakeExchange(nil)
	ex.err = errors.New("rate limited")
	tracker, _ := newTestTracker(ex)

	if err := tracker.Init(context.Background()); err == nil {
		t.Fatal("Expected error")
	}
	if tracker.IsInitialized() {
		t.Error("Expected tracker to stay uninitialized")
	}
}

func TestTrackerApply(t *testing.T) {
	tracker, m := newTestTracker(newFakeExchange(testSnapshot()))
	if err := tracker.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	before := tracker.View()

	// Stale: fully covered by the snapshot
	if err := tracker.Apply(&exchange.DepthUpdate{
		FinalUpdateID: 100,
		Bids:          []exchange.PriceLevel{pl("25.0", "0")},
	}); err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	if tracker.View().Stats.BidLevels != 2 {
		t.Error("Expected stale update to be discarded")
	}

	if err := tracker.Apply(&exchange.DepthUpdate{
		FirstUpdateID: 99,
		FinalUpdateID: 103,
		EventTime:     time.UnixMilli(1700000000000),
		Bids:          []exchange.PriceLevel{pl("25.0", "0")},
		Asks:          []exchange.PriceLevel{pl("34.0", "3")},
	}); err != nil {
		t.Fatalf("Apply() error: %v", err)
	}

	view := tracker.View()
	if bid, _ := view.Book.BestBid(); orderbook.PlainString(bid.Price) != "24.9" {
		t.Errorf("Expected best bid 24.9, got %s", bid.Price)
	}
	if ask, _ := view.Book.BestAsk(); orderbook.PlainString(ask.Price) != "34.0" {
		t.Errorf("Expected best ask 34.0, got %s", ask.Price)
	}
	if view.Stats.UpdatesApplied != 1 || view.Stats.UpdatesDropped != 1 {
		t.Errorf("Expected 1 applied / 1 dropped, got %d / %d", view.Stats.UpdatesApplied, view.Stats.UpdatesDropped)
	}
	if !view.Stats.LastEventTime.Equal(time.UnixMilli(1700000000000)) {
		t.Errorf("Unexpected last event time: %v", view.Stats.LastEventTime)
	}

	if bid, _ := before.Book.BestBid(); orderbook.PlainString(bid.Price) != "25.0" {
		t.Errorf("Expected earlier view to keep best bid 25.0, got %s", bid.Price)
	}

	if got := testutil.ToFloat64(m.UpdatesApplied); got != 1 {
		t.Errorf("Expected updates_applied 1, got %g", got)
	}
	if got := testutil.ToFloat64(m.UpdatesDropped); got != 1 {
		t.Errorf("Expected updates_dropped 1, got %g", got)
	}
}

func TestTrackerSpreadGaugeResetWhenSideEmpties(t *testing.T) {
	tracker, m := newTestTracker(newFakeExchange(testSnapshot()))
	if err := tracker.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := testutil.ToFloat64(m.Spread); got != 10 {
		t.Fatalf("Expected spread 10 after Init, got %g", got)
	}

	if err := tracker.Apply(&exchange.DepthUpdate{
		FinalUpdateID: 101,
		Asks:          []exchange.PriceLevel{pl("35.0", "0"), pl("35.5", "0")},
	}); err != nil {
		t.Fatalf("Apply() error: %v", err)
	}

	if tracker.View().Stats.HasSpread {
		t.Fatal("Expected no spread with an empty ask side")
	}
	if got := testutil.ToFloat64(m.Spread); got != 0 {
		t.Errorf("Expected spread gauge reset to 0, got %g", got)
	}
}

func TestTrackerApplyBeforeLoad(t *testing.T) {
	tracker, _ := newTestTracker(newFakeExchange(testSnapshot()))

	if err := tracker.Apply(&exchange.DepthUpdate{FinalUpdateID: 1}); err == nil {
		t.Error("Expected error applying before snapshot")
	}
}

func TestTrackerRun(t *testing.T) {
	ex := newFakeExchange(testSnapshot())
	tracker, _ := newTestTracker(ex)
	if err := tracker.Init(context.Background()); err != nil {
		t.Fatal(err)
	}

	ex.updates <- &exchange.DepthUpdate{FinalUpdateID: 101, Asks: []exchange.PriceLevel{pl("35.0", "0")}}
	ex.updates <- &exchange.DepthUpdate{FinalUpdateID: 102, Asks: []exchange.PriceLevel{pl("35.5", "0")}}
	close(ex.updates)

	if err := tracker.Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	view := tracker.View()
	if _, ok := view.Book.BestAsk(); ok {
		t.Error("Expected ask side emptied")
	}
	if view.Stats.HasSpread {
		t.Error("Expected no spread on one-sided book")
	}
}

func TestTrackerRunMalformedUpdate(t *testing.T) {
	ex := newFakeExchange(testSnapshot())
	tracker, _ := newTestTracker(ex)
	if err := tracker.Init(context.Background()); err != nil {
		t.Fatal(err)
	}

	ex.updates <- &exchange.DepthUpdate{FinalUpdateID: 101, Bids: []exchange.PriceLevel{pl("x", "1")}}

	if err := tracker.Run(context.Background()); err == nil {
		t.Error("Expected error for malformed update")
	}
}

func TestTrackerRunCancelled(t *testing.T) {
	tracker, _ := newTestTracker(newFakeExchange(testSnapshot()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := tracker.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestQuoter(t *testing.T) {
	tests := []struct {
		name       string
		snapshot   *exchange.Snapshot
		peg        config.PegConfig
		bidOutcome string
		bidPrice   string
		askOutcome string
		askPrice   string
	}{
		{
			name:       "Both inside spread",
			snapshot:   testSnapshot(),
			peg:        config.PegConfig{BidBuffer: "0.1", BidLimit: "30.0", AskBuffer: "0.1", AskLimit: "30.0"},
			bidOutcome: OutcomeOK,
			bidPrice:   "25.1",
			askOutcome: OutcomeOK,
			askPrice:   "34.9",
		},
		{
			name:       "Limits violated",
			snapshot:   testSnapshot(),
			peg:        config.PegConfig{BidBuffer: "0.3", BidLimit: "25.2", AskBuffer: "0.3", AskLimit: "34.8"},
			bidOutcome: OutcomeExceedsLimit,
			askOutcome: OutcomeExceedsLimit,
		},
		{
			name: "Spread violated",
			snapshot: &exchange.Snapshot{
				Bids: []exchange.PriceLevel{pl("25.0", "1")},
				Asks: []exchange.PriceLevel{pl("26.0", "1")},
			},
			peg:        config.PegConfig{BidBuffer: "1.3", BidLimit: "30.0", AskBuffer: "1.3", AskLimit: "20.0"},
			bidOutcome: OutcomeExceedsSpread,
			askOutcome: OutcomeExceedsSpread,
		},
		{
			name:       "Empty book",
			snapshot:   &exchange.Snapshot{},
			peg:        config.PegConfig{BidBuffer: "0.3", BidLimit: "25.2", AskBuffer: "0.3", AskLimit: "25.2"},
			bidOutcome: OutcomeNoOpposingOrder,
			askOutcome: OutcomeNoOpposingOrder,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := metrics.New("ETHBTC")
			quoter, err := NewQuoter(tt.peg, m)
			if err != nil {
				t.Fatalf("NewQuoter() error: %v", err)
			}
			book, err := orderbook.FromSnapshot(tt.snapshot)
			if err != nil {
				t.Fatal(err)
			}

			bid, ask := quoter.Quote(book)

			if bid.Outcome != tt.bidOutcome || bid.Price != tt.bidPrice {
				t.Errorf("Expected bid %s %q, got %s %q", tt.bidOutcome, tt.bidPrice, bid.Outcome, bid.Price)
			}
			if ask.Outcome != tt.askOutcome || ask.Price != tt.askPrice {
				t.Errorf("Expected ask %s %q, got %s %q", tt.askOutcome, tt.askPrice, ask.Outcome, ask.Price)
			}
			if bid.OK() != (tt.bidOutcome == OutcomeOK) {
				t.Errorf("Expected bid OK %v", tt.bidOutcome == OutcomeOK)
			}
			if got := testutil.ToFloat64(m.PegOutcomes.WithLabelValues("bid", tt.bidOutcome)); got != 1 {
				t.Errorf("Expected one bid %s outcome recorded, got %g", tt.bidOutcome, got)
			}
		})
	}
}

func TestNewQuoterInvalid(t *testing.T) {
	cfg := config.Default().Peg
	cfg.AskLimit = "low"

	if _, err := NewQuoter(cfg, metrics.New("ETHBTC")); err == nil {
		t.Error("Expected error for invalid ask limit")
	}
}

func TestOutcome(t *testing.T) {
	if got := Outcome(errors.New("boom")); got != OutcomeError {
		t.Errorf("Expected %s, got %s", OutcomeError, got)
	}
}
