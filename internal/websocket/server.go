package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"pegbook/internal/aggregation"
	"pegbook/internal/market"
	"pegbook/internal/metrics"
	"pegbook/internal/orderbook"
	"pegbook/internal/types"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

type MessageType string

const (
	MessageTypeOrderbook MessageType = "orderbook"
	MessageTypeQuote     MessageType = "quote"
)

// ClientMessage represents messages sent from client to server
type ClientMessage struct {
	Type string  `json:"type"`
	Tick float64 `json:"tick,omitempty"`
}

type OrderbookMessage struct {
	Type      MessageType  `json:"type"`
	Symbol    string       `json:"symbol"`
	Tick      float64      `json:"tick"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	Timestamp int64        `json:"timestamp"`
}

type QuoteMessage struct {
	Type           MessageType `json:"type"`
	Symbol         string      `json:"symbol"`
	BestBid        string      `json:"bestBid,omitempty"`
	BestAsk        string      `json:"bestAsk,omitempty"`
	Spread         string      `json:"spread,omitempty"`
	PeggedBid      string      `json:"peggedBid,omitempty"`
	PeggedBidError string      `json:"peggedBidError,omitempty"`
	PeggedAsk      string      `json:"peggedAsk,omitempty"`
	PeggedAskError string      `json:"peggedAskError,omitempty"`
	UpdatesApplied int64       `json:"updatesApplied"`
	Timestamp      int64       `json:"timestamp"`
}

type PriceLevel struct {
	Price      string `json:"price"`
	Quantity   string `json:"quantity"`
	Cumulative string `json:"cumulative"`
}

// BookSource provides the latest published book state
type BookSource interface {
	View() *market.View
}

// Options configures a Server
type Options struct {
	Symbol       string
	Port         string
	Top          int
	PushInterval time.Duration
	Tick         types.TickLevel
}

type client struct {
	id   uuid.UUID
	conn *websocket.Conn
}

// Server pushes the aggregated book and pegged quotes to WebSocket clients
type Server struct {
	opts       Options
	source     BookSource
	quoter     *market.Quoter
	metrics    *metrics.Metrics
	logger     zerolog.Logger
	upgrader   websocket.Upgrader
	clients    map[*client]struct{}
	clientsMux sync.RWMutex
	broadcast  chan interface{}
	aggregator *aggregation.Aggregator
	tickMux    sync.RWMutex
}

func NewServer(source BookSource, quoter *market.Quoter, m *metrics.Metrics, opts Options, logger zerolog.Logger) *Server {
	return &Server{
		opts:       opts,
		source:     source,
		quoter:     quoter,
		metrics:    m,
		logger:     logger,
		clients:    make(map[*client]struct{}),
		broadcast:  make(chan interface{}, 100),
		aggregator: aggregation.New(opts.Tick),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Handler returns the HTTP routes served by the server
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/ws", s.handleWebSocket)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	return r
}

// Start serves until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.opts.Port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.runPush(ctx)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info().Str("port", s.opts.Port).Msg("Feed server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// runPush starts the goroutines that build and deliver feed messages
func (s *Server) runPush(ctx context.Context) {
	go s.broadcastMessages(ctx)
	go s.startDataPush(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.source.View() == nil {
		http.Error(w, "order book not initialized", http.StatusServiceUnavailable)
		return
	}
	w.Write([]byte("ok"))
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("WebSocket upgrade error")
		return
	}

	c := &client{id: uuid.New(), conn: conn}
	s.addClient(c)
	s.logger.Info().Str("client", c.id.String()).Str("remote", r.RemoteAddr).Msg("Feed client connected")

	defer func() {
		s.removeClient(c)
		s.logger.Info().Str("client", c.id.String()).Msg("Feed client disconnected")
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			break
		}

		var clientMsg ClientMessage
		if err := json.Unmarshal(message, &clientMsg); err != nil {
			s.logger.Warn().Err(err).Str("client", c.id.String()).Msg("Error parsing client message")
			continue
		}

		s.handleClientMessage(clientMsg)
	}
}

func (s *Server) addClient(c *client) {
	s.clientsMux.Lock()
	s.clients[c] = struct{}{}
	n := len(s.clients)
	s.clientsMux.Unlock()
	s.metrics.FeedClients.Set(float64(n))
}

func (s *Server) removeClient(c *client) {
	s.clientsMux.Lock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		c.conn.Close()
	}
	n := len(s.clients)
	s.clientsMux.Unlock()
	s.metrics.FeedClients.Set(float64(n))
}

func (s *Server) handleClientMessage(msg ClientMessage) {
	switch msg.Type {
	case "set_tick":
		s.setTickLevel(msg.Tick)
	default:
		s.logger.Warn().Str("type", msg.Type).Msg("Unknown message type")
	}
}

func (s *Server) setTickLevel(tick float64) {
	tickLevel := types.TickLevel(tick)

	if !tickLevel.IsValid() {
		s.logger.Warn().Float64("tick", tick).Msg("Invalid tick level, keeping current")
		return
	}

	s.tickMux.Lock()
	s.aggregator.SetTickLevel(tickLevel)
	s.tickMux.Unlock()

	s.logger.Info().Float64("tick", tick).Msg("Tick level changed")
}

// TickLevel returns the tick level currently used for aggregation
func (s *Server) TickLevel() types.TickLevel {
	s.tickMux.RLock()
	defer s.tickMux.RUnlock()
	return s.aggregator.GetTickLevel()
}

func (s *Server) broadcastMessages(ctx context.Context) {
	for {
		var msg interface{}
		select {
		case <-ctx.Done():
			return
		case msg = <-s.broadcast:
		}

		var failed []*client
		s.clientsMux.RLock()
		for c := range s.clients {
			if err := c.conn.WriteJSON(msg); err != nil {
				s.logger.Debug().Err(err).Str("client", c.id.String()).Msg("Error writing to client")
				failed = append(failed, c)
			}
		}
		s.clientsMux.RUnlock()

		for _, c := range failed {
			s.removeClient(c)
		}
	}
}

func (s *Server) startDataPush(ctx context.Context) {
	ticker := time.NewTicker(s.opts.PushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		s.clientsMux.RLock()
		hasClients := len(s.clients) > 0
		s.clientsMux.RUnlock()

		view := s.source.View()
		if !hasClients || view == nil {
			continue
		}

		timestamp := time.Now().UnixMilli()
		for _, msg := range []interface{}{
			s.buildOrderbookMessage(view, timestamp),
			s.buildQuoteMessage(view, timestamp),
		} {
			select {
			case s.broadcast <- msg:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *Server) buildOrderbookMessage(view *market.View, timestamp int64) OrderbookMessage {
	s.tickMux.RLock()
	tick := s.aggregator.GetTickLevel()
	bids := s.aggregator.AggregateBids(view.Book.Bids(), s.opts.Top)
	asks := s.aggregator.AggregateAsks(view.Book.Asks(), s.opts.Top)
	s.tickMux.RUnlock()

	return OrderbookMessage{
		Type:      MessageTypeOrderbook,
		Symbol:    s.opts.Symbol,
		Tick:      float64(tick),
		Bids:      toWire(bids),
		Asks:      toWire(asks),
		Timestamp: timestamp,
	}
}

func (s *Server) buildQuoteMessage(view *market.View, timestamp int64) QuoteMessage {
	msg := QuoteMessage{
		Type:           MessageTypeQuote,
		Symbol:         s.opts.Symbol,
		UpdatesApplied: view.Stats.UpdatesApplied,
		Timestamp:      timestamp,
	}

	if bid, ok := view.Book.BestBid(); ok {
		msg.BestBid = orderbook.PlainString(bid.Price)
	}
	if ask, ok := view.Book.BestAsk(); ok {
		msg.BestAsk = orderbook.PlainString(ask.Price)
	}
	if spread, ok := view.Book.Spread(); ok {
		msg.Spread = orderbook.PlainString(spread)
	}

	bid, ask := s.quoter.Quote(view.Book)
	msg.PeggedBid, msg.PeggedBidError = bid.Price, bid.Outcome
	msg.PeggedAsk, msg.PeggedAskError = ask.Price, ask.Outcome
	if bid.OK() {
		msg.PeggedBidError = ""
	}
	if ask.OK() {
		msg.PeggedAskError = ""
	}

	return msg
}

// toWire converts levels to wire format with cumulative sums
func toWire(levels []types.PriceLevel) []PriceLevel {
	cumulative := aggregation.Cumulative(levels)
	out := make([]PriceLevel, len(levels))
	for i, level := range levels {
		out[i] = PriceLevel{
			Price:      orderbook.PlainString(level.Price),
			Quantity:   orderbook.PlainString(level.Quantity),
			Cumulative: orderbook.PlainString(cumulative[i]),
		}
	}
	return out
}
