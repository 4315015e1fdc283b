package market

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"pegbook/internal/exchange"
	"pegbook/internal/metrics"
	"pegbook/internal/orderbook"
	"pegbook/internal/types"

	"github.com/rs/zerolog"
)

// View is an immutable, published state of the book
type View struct {
	Book  *orderbook.OrderBook
	Stats types.Stats
}

// Tracker keeps one order book current from an exchange's depth stream.
//
// Only the goroutine running Run (or the caller of Load/Apply) mutates the
// book. Every change is published as a new View, so readers on other
// goroutines never observe a partially applied update.
type Tracker struct {
	ex      exchange.Exchange
	metrics *metrics.Metrics
	logger  zerolog.Logger

	book         *orderbook.OrderBook
	lastUpdateID int64
	applied      int64
	dropped      int64
	lastEvent    time.Time

	view atomic.Pointer[View]
}

// NewTracker creates a Tracker for ex
func NewTracker(ex exchange.Exchange, m *metrics.Metrics, logger zerolog.Logger) *Tracker {
	return &Tracker{
		ex:      ex,
		metrics: m,
		logger:  logger,
	}
}

// Init fetches a snapshot from the exchange and loads it
func (t *Tracker) Init(ctx context.Context) error {
	snapshot, err := t.ex.GetSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("get snapshot: %w", err)
	}
	return t.Load(snapshot)
}

// Load replaces the book with snapshot
func (t *Tracker) Load(snapshot *exchange.Snapshot) error {
	book, err := orderbook.FromSnapshot(snapshot)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}

	t.book = book
	t.lastUpdateID = snapshot.LastUpdateID
	t.publish()

	t.logger.Info().
		Int64("last_update_id", snapshot.LastUpdateID).
		Int("bids", len(book.Bids())).
		Int("asks", len(book.Asks())).
		Msg("Snapshot loaded")
	return nil
}

// Apply merges one depth update into the book. Updates whose final id is not
// newer than the loaded snapshot are discarded. Ordering beyond that is the
// exchange's responsibility.
func (t *Tracker) Apply(update *exchange.DepthUpdate) error {
	if t.book == nil {
		return fmt.Errorf("apply update %d: no snapshot loaded", update.FinalUpdateID)
	}

	if update.FinalUpdateID != 0 && update.FinalUpdateID <= t.lastUpdateID {
		t.dropped++
		t.metrics.UpdatesDropped.Inc()
		t.logger.Debug().
			Int64("final_update_id", update.FinalUpdateID).
			Int64("last_update_id", t.lastUpdateID).
			Msg("Discarding stale update")
		return nil
	}

	parsed, err := orderbook.ParseUpdate(update)
	if err != nil {
		return fmt.Errorf("apply update %d: %w", update.FinalUpdateID, err)
	}

	t.book.ApplyUpdate(parsed)
	if update.FinalUpdateID != 0 {
		t.lastUpdateID = update.FinalUpdateID
	}
	t.applied++
	t.lastEvent = update.EventTime
	t.metrics.UpdatesApplied.Inc()
	t.publish()

	if e := t.logger.Debug(); e.Enabled() {
		e.Int64("final_update_id", update.FinalUpdateID).
			Int("ask_changes", len(parsed.Asks)).
			Int("bid_changes", len(parsed.Bids)).
			Int("asks", len(t.book.Asks())).
			Msg("Update applied")
	}
	return nil
}

// Run applies updates from the exchange until the stream closes or ctx is
// cancelled. It returns nil when the stream ends normally.
func (t *Tracker) Run(ctx context.Context) error {
	updates := t.ex.Updates()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				t.logger.Info().Msg("Update stream closed")
				return nil
			}
			if err := t.Apply(update); err != nil {
				return err
			}
		}
	}
}

// View returns the latest published state, or nil before the first snapshot
func (t *Tracker) View() *View {
	return t.view.Load()
}

// IsInitialized reports whether a snapshot has been loaded
func (t *Tracker) IsInitialized() bool {
	return t.view.Load() != nil
}

func (t *Tracker) publish() {
	book := t.book.View()

	stats := book.Stats()
	stats.UpdatesApplied = t.applied
	stats.UpdatesDropped = t.dropped
	stats.LastEventTime = t.lastEvent

	t.view.Store(&View{Book: book, Stats: stats})

	t.metrics.BookLevels.WithLabelValues(string(types.Bid)).Set(float64(stats.BidLevels))
	t.metrics.BookLevels.WithLabelValues(string(types.Ask)).Set(float64(stats.AskLevels))
	t.metrics.BestPrice.WithLabelValues(string(types.Bid)).Set(stats.BestBid.InexactFloat64())
	t.metrics.BestPrice.WithLabelValues(string(types.Ask)).Set(stats.BestAsk.InexactFloat64())
	if stats.HasSpread {
		t.metrics.Spread.Set(stats.Spread.InexactFloat64())
	} else {
		t.metrics.Spread.Set(0)
	}
}
