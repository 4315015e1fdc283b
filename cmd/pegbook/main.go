package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pegbook/internal/config"
	"pegbook/internal/exchange/binance"
	"pegbook/internal/logging"
	"pegbook/internal/market"
	"pegbook/internal/metrics"
	"pegbook/internal/orderbook"
	"pegbook/internal/types"
	"pegbook/internal/websocket"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	// Parse command line flags
	var symbol = flag.String("symbol", cfg.Exchange.Symbol, "Trading symbol to track")
	var logInterval = flag.Duration("log-interval", cfg.App.LogInterval, "Interval for logging book and pegged quotes")
	var bidBuffer = flag.String("bid-buffer", cfg.Peg.BidBuffer, "Amount added to the best bid")
	var bidLimit = flag.String("bid-limit", cfg.Peg.BidLimit, "Highest acceptable pegged bid (exclusive)")
	var askBuffer = flag.String("ask-buffer", cfg.Peg.AskBuffer, "Amount subtracted from the best ask")
	var askLimit = flag.String("ask-limit", cfg.Peg.AskLimit, "Lowest acceptable pegged ask (exclusive)")
	var port = flag.String("port", cfg.Server.Port, "Feed server port")
	var serve = flag.Bool("serve", cfg.Server.Enabled, "Run the feed server")
	var top = flag.Int("top", cfg.Display.Top, "Levels per side pushed to feed clients")
	var pushInterval = flag.Duration("push-interval", cfg.Display.UpdateInterval, "Interval between feed pushes")
	var tick = flag.Float64("tick", float64(cfg.App.DefaultTickLevel), "Default aggregation tick size")
	flag.Parse()

	cfg.Exchange.Symbol = *symbol
	cfg.App.LogInterval = *logInterval
	cfg.Peg = config.PegConfig{BidBuffer: *bidBuffer, BidLimit: *bidLimit, AskBuffer: *askBuffer, AskLimit: *askLimit}
	cfg.Server.Port = *port
	cfg.Server.Enabled = *serve
	cfg.SetDisplayTop(*top)
	cfg.SetUpdateInterval(*pushInterval)
	cfg.SetTickLevel(types.TickLevel(*tick))

	logger := logging.New(cfg.Logging)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("Stopped")
	}
	logger.Info().Msg("Goodbye!")
}

func run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	logger = logger.With().Str("symbol", cfg.Exchange.Symbol).Logger()
	m := metrics.New(cfg.Exchange.Symbol)

	quoter, err := market.NewQuoter(cfg.Peg, m)
	if err != nil {
		return err
	}

	ex := binance.NewSpotExchange(binance.Config{
		Symbol:        cfg.Exchange.Symbol,
		SnapshotLimit: cfg.Exchange.SnapshotLimit,
		RESTBaseURL:   cfg.Exchange.RESTBaseURL,
		WSBaseURL:     cfg.Exchange.WSBaseURL,
		BufferSize:    cfg.App.UpdateChannelSize,
	}, logger)

	// Subscribe before fetching the snapshot so no event in between is lost
	if err := ex.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer ex.Close()

	tracker := market.NewTracker(ex, m, logger)
	if err := tracker.Init(ctx); err != nil {
		return err
	}
	logBook(logger, tracker.View(), quoter)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := tracker.Run(gctx); err != nil {
			return err
		}
		return errors.New("market data stream ended")
	})

	if cfg.Server.Enabled {
		server := websocket.NewServer(tracker, quoter, m, websocket.Options{
			Symbol:       cfg.Exchange.Symbol,
			Port:         cfg.Server.Port,
			Top:          cfg.Display.Top,
			PushInterval: cfg.Display.UpdateInterval,
			Tick:         cfg.App.DefaultTickLevel,
		}, logger)
		g.Go(func() error {
			return server.Start(gctx)
		})
	}

	g.Go(func() error {
		ticker := time.NewTicker(cfg.App.LogInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				logBook(logger, tracker.View(), quoter)
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})

	return g.Wait()
}

// logBook reports best prices, spread and pegged quotes for the current view
func logBook(logger zerolog.Logger, view *market.View, quoter *market.Quoter) {
	if view == nil {
		return
	}

	event := logger.Info().
		Int("bid_levels", view.Stats.BidLevels).
		Int("ask_levels", view.Stats.AskLevels).
		Int64("updates", view.Stats.UpdatesApplied)

	if bid, ok := view.Book.BestBid(); ok {
		event = event.Str("best_bid", orderbook.PlainString(bid.Price)).Str("best_bid_qty", orderbook.PlainString(bid.Quantity))
	}
	if ask, ok := view.Book.BestAsk(); ok {
		event = event.Str("best_ask", orderbook.PlainString(ask.Price)).Str("best_ask_qty", orderbook.PlainString(ask.Quantity))
	}
	if spread, ok := view.Book.Spread(); ok {
		event = event.Str("spread", orderbook.PlainString(spread))
	}

	bid, ask := quoter.Quote(view.Book)
	for _, q := range []market.Quote{bid, ask} {
		if q.OK() {
			event = event.Str("pegged_"+string(q.Side), q.Price)
		} else {
			event = event.Str("pegged_"+string(q.Side)+"_error", q.Outcome)
		}
	}

	event.Msg("Order book")
}
