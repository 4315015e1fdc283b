package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"pegbook/internal/exchange"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	defaultRESTBaseURL   = "https://api.binance.com"
	defaultWSBaseURL     = "wss://stream.binance.com:9443"
	defaultSnapshotLimit = 1000
	defaultBufferSize    = 1000
)

// SpotExchange implements the Exchange interface for Binance Spot
type SpotExchange struct {
	symbol     string
	wsURL      string
	restURL    string
	wsConn     *websocket.Conn
	httpClient *http.Client
	updateChan chan *exchange.DepthUpdate
	done       chan struct{}
	closeOnce  sync.Once
	ctx        context.Context
	cancel     context.CancelFunc
	health     atomic.Value // stores exchange.HealthStatus
	logger     zerolog.Logger
}

// NewSpotExchange creates a new Binance Spot exchange instance
func NewSpotExchange(config Config, logger zerolog.Logger) *SpotExchange {
	ctx, cancel := context.WithCancel(context.Background())

	restBase := config.RESTBaseURL
	if restBase == "" {
		restBase = defaultRESTBaseURL
	}
	wsBase := config.WSBaseURL
	if wsBase == "" {
		wsBase = defaultWSBaseURL
	}
	limit := config.SnapshotLimit
	if limit <= 0 {
		limit = defaultSnapshotLimit
	}
	bufferSize := config.BufferSize
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}

	wsURL := fmt.Sprintf("%s/stream?streams=%s@depth", wsBase, strings.ToLower(config.Symbol))
	restURL := fmt.Sprintf("%s/api/v3/depth?symbol=%s&limit=%d", restBase, strings.ToUpper(config.Symbol), limit)

	ex := &SpotExchange{
		symbol:     strings.ToUpper(config.Symbol),
		wsURL:      wsURL,
		restURL:    restURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		updateChan: make(chan *exchange.DepthUpdate, bufferSize),
		done:       make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
		logger:     logger.With().Str("exchange", string(exchange.Binance)).Str("symbol", strings.ToUpper(config.Symbol)).Logger(),
	}

	ex.health.Store(exchange.HealthStatus{})

	return ex
}

// GetName returns the exchange name
func (e *SpotExchange) GetName() exchange.ExchangeName {
	return exchange.Binance
}

// GetSymbol returns the trading symbol
func (e *SpotExchange) GetSymbol() string {
	return e.symbol
}

// Connect establishes WebSocket connection to Binance Spot
func (e *SpotExchange) Connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, e.wsURL, nil)
	if err != nil {
		e.incrementErrorCount()
		return fmt.Errorf("websocket connection failed: %w", err)
	}

	e.wsConn = conn
	e.updateConnectionStatus(true)
	e.logger.Info().Msg("WebSocket connected")

	go e.readMessages()

	return nil
}

// Close closes the WebSocket connection
func (e *SpotExchange) Close() error {
	e.cancel()

	if e.wsConn == nil {
		return nil
	}

	var err error
	e.closeOnce.Do(func() {
		close(e.done)

		if werr := e.wsConn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second)); werr != nil {
			e.logger.Debug().Err(werr).Msg("Error sending close message")
		}

		e.updateConnectionStatus(false)
		err = e.wsConn.Close()
	})
	return err
}

// GetSnapshot fetches the orderbook snapshot via REST API
func (e *SpotExchange) GetSnapshot(ctx context.Context) (*exchange.Snapshot, error) {
	e.logger.Info().Msg("Fetching orderbook snapshot")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.restURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		e.incrementErrorCount()
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		e.incrementErrorCount()
		return nil, fmt.Errorf("failed to get snapshot: unexpected status %s", resp.Status)
	}

	var binanceSnapshot SnapshotResponse
	if err := json.NewDecoder(resp.Body).Decode(&binanceSnapshot); err != nil {
		e.incrementErrorCount()
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}

	return e.convertSnapshot(&binanceSnapshot)
}

// Updates returns a channel that receives depth updates
func (e *SpotExchange) Updates() <-chan *exchange.DepthUpdate {
	return e.updateChan
}

// IsConnected checks if the WebSocket connection is active
func (e *SpotExchange) IsConnected() bool {
	return e.Health().Connected
}

// Health returns connection health information
func (e *SpotExchange) Health() exchange.HealthStatus {
	if status, ok := e.health.Load().(exchange.HealthStatus); ok {
		return status
	}
	return exchange.HealthStatus{}
}

// readMessages continuously reads WebSocket messages. Updates are never
// dropped: the book depends on seeing every event in order.
func (e *SpotExchange) readMessages() {
	defer close(e.updateChan)
	defer e.updateConnectionStatus(false)

	for {
		var msg WSMessage
		if err := e.wsConn.ReadJSON(&msg); err != nil {
			select {
			case <-e.done:
			default:
				e.incrementErrorCount()
				e.logger.Error().Err(err).Msg("WebSocket read error")
			}
			return
		}

		e.incrementMessageCount()
		e.updateLastPing()

		update, err := e.convertDepthUpdate(&msg.Data)
		if err != nil {
			e.incrementErrorCount()
			e.logger.Error().Err(err).Int64("final_update_id", msg.Data.FinalUpdateID).Msg("Malformed depth update")
			return
		}

		select {
		case e.updateChan <- update:
		case <-e.ctx.Done():
			return
		case <-e.done:
			return
		}
	}
}

// convertSnapshot converts Binance snapshot to canonical format
func (e *SpotExchange) convertSnapshot(snapshot *SnapshotResponse) (*exchange.Snapshot, error) {
	bids, err := convertLevels(snapshot.Bids)
	if err != nil {
		return nil, fmt.Errorf("snapshot bids: %w", err)
	}
	asks, err := convertLevels(snapshot.Asks)
	if err != nil {
		return nil, fmt.Errorf("snapshot asks: %w", err)
	}

	return &exchange.Snapshot{
		Exchange:     e.GetName(),
		Symbol:       e.symbol,
		LastUpdateID: snapshot.LastUpdateID,
		Bids:         bids,
		Asks:         asks,
		Timestamp:    time.Now(),
	}, nil
}

// convertDepthUpdate converts Binance depth update to canonical format
func (e *SpotExchange) convertDepthUpdate(update *DepthUpdate) (*exchange.DepthUpdate, error) {
	bids, err := convertLevels(update.Bids)
	if err != nil {
		return nil, fmt.Errorf("update bids: %w", err)
	}
	asks, err := convertLevels(update.Asks)
	if err != nil {
		return nil, fmt.Errorf("update asks: %w", err)
	}

	return &exchange.DepthUpdate{
		Exchange:      e.GetName(),
		Symbol:        update.Symbol,
		EventTime:     time.UnixMilli(update.EventTime),
		FirstUpdateID: update.FirstUpdateID,
		FinalUpdateID: update.FinalUpdateID,
		Bids:          bids,
		Asks:          asks,
	}, nil
}

func convertLevels(raw [][]string) ([]exchange.PriceLevel, error) {
	levels := make([]exchange.PriceLevel, len(raw))
	for i, level := range raw {
		if len(level) < 2 {
			return nil, fmt.Errorf("level %d has %d fields, want 2", i, len(level))
		}
		levels[i] = exchange.PriceLevel{
			Price:    level[0],
			Quantity: level[1],
		}
	}
	return levels, nil
}

// updateConnectionStatus updates the connection status in health
func (e *SpotExchange) updateConnectionStatus(connected bool) {
	status := e.Health()
	status.Connected = connected
	if !connected {
		now := time.Now()
		status.ReconnectTime = &now
	}
	e.health.Store(status)
}

// incrementMessageCount increments the message count in health
func (e *SpotExchange) incrementMessageCount() {
	status := e.Health()
	status.MessageCount++
	e.health.Store(status)
}

// incrementErrorCount increments the error count in health
func (e *SpotExchange) incrementErrorCount() {
	status := e.Health()
	status.ErrorCount++
	e.health.Store(status)
}

// updateLastPing updates the last ping time in health
func (e *SpotExchange) updateLastPing() {
	status := e.Health()
	status.LastPing = time.Now()
	e.health.Store(status)
}
