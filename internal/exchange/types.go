package exchange

import (
	"context"
	"time"
)

// ExchangeName represents supported exchange identifiers
type ExchangeName string

const (
	Binance ExchangeName = "binance"
)

// Exchange defines the market-data source feeding a single order book
type Exchange interface {
	// GetName returns the exchange name
	GetName() ExchangeName

	// GetSymbol returns the trading symbol
	GetSymbol() string

	// Connect establishes connection to the exchange
	Connect(ctx context.Context) error

	// Close closes the connection gracefully
	Close() error

	// GetSnapshot fetches a full orderbook snapshot
	GetSnapshot(ctx context.Context) (*Snapshot, error)

	// Updates returns a channel that receives depth updates in arrival order.
	// It is closed when the connection ends.
	Updates() <-chan *DepthUpdate

	// IsConnected returns connection status
	IsConnected() bool

	// Health returns connection health information
	Health() HealthStatus
}

// Snapshot represents a canonical orderbook snapshot.
// Bids are sorted descending and asks ascending by price.
type Snapshot struct {
	Exchange     ExchangeName
	Symbol       string
	LastUpdateID int64
	Bids         []PriceLevel
	Asks         []PriceLevel
	Timestamp    time.Time
}

// DepthUpdate represents a canonical depth update event.
// A level with quantity "0" removes that price from the book.
type DepthUpdate struct {
	Exchange      ExchangeName
	Symbol        string
	EventTime     time.Time
	FirstUpdateID int64
	FinalUpdateID int64
	Bids          []PriceLevel
	Asks          []PriceLevel
}

// PriceLevel represents a single price level [price, quantity]
type PriceLevel struct {
	Price    string // Price as string to avoid precision loss
	Quantity string // Quantity as string to avoid precision loss
}

// HealthStatus represents connection health information
type HealthStatus struct {
	Connected     bool
	LastPing      time.Time
	MessageCount  int64
	ErrorCount    int64
	ReconnectTime *time.Time
}
