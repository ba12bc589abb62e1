package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/floroz/gavel-live/pkg/config"
	"github.com/floroz/gavel-live/pkg/logging"
	"github.com/floroz/gavel-live/services/bid-client/internal/app"
	"github.com/floroz/gavel-live/services/bid-client/internal/domain/auctions"
	"github.com/floroz/gavel-live/services/bid-client/internal/domain/bids"
	"github.com/floroz/gavel-live/services/bid-client/internal/domain/countdown"
)

func main() {
	auctionID := pflag.String("auction", "", "auction to watch (required)")
	bidAmount := pflag.Int64("bid", 0, "place a bid of this amount once the auction is loaded")
	buyNow := pflag.Bool("buy-now", false, "buy the auction at its buy-now price once loaded")
	transport := pflag.String("transport", "", "push transport: websocket, amqp, redis, nats or none")
	rejectStale := pflag.Bool("reject-stale", false, "ignore snapshots older than the one shown")
	pflag.Parse()

	// Load configuration (.env.local overrides .env)
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	if *transport != "" {
		cfg.Push.Transport = *transport
	}

	// Initialize structured logger
	logger, logCloser, err := logging.New(cfg.Log)
	if err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	if *auctionID == "" {
		logger.Error("--auction is required")
		os.Exit(1)
	}
	if *bidAmount > 0 && *buyNow {
		logger.Error("--bid and --buy-now are mutually exclusive")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. REST client
	backend, err := app.NewBackend(cfg.API, logger)
	if err != nil {
		logger.Error("Failed to create API client", "error", err)
		os.Exit(1)
	}

	detailCfg := app.DetailConfig{
		AuctionID:       auctions.ID(*auctionID),
		PollInterval:    cfg.API.DetailPollInterval,
		ReconnectPolicy: app.ReconnectPolicy(cfg.Push),
	}
	if *rejectStale {
		detailCfg.MergePolicy = auctions.RejectStale
	}

	// 2. Bidder identity (only needed to submit)
	submitting := *bidAmount > 0 || *buyNow
	if submitting {
		bidder, err := app.LoadBidder(cfg.API)
		if err != nil {
			logger.Error("Failed to load bidder identity", "error", err)
			os.Exit(1)
		}
		detailCfg.Bidder = bidder
		logger.Info("Bidding as", "bidder_id", bidder.ID, "name", bidder.Name)
	}

	// 3. Push transport
	subscriber, subCloser, err := app.NewSubscriber(cfg.Push, cfg.API.AccessToken, logger)
	if err != nil {
		logger.Error("Failed to create push subscriber", "error", err)
		os.Exit(1)
	}
	defer subCloser.Close()

	loaded := make(chan struct{})
	var loadOnce sync.Once
	opts := []app.DetailOption{
		app.WithViewHandler(func(v auctions.View) {
			renderView(v)
			if v.State == auctions.ViewReady {
				loadOnce.Do(func() { close(loaded) })
			}
		}),
		app.WithTickHandler(renderTick),
	}
	if subscriber != nil {
		opts = append(opts, app.WithPush(subscriber))
	}

	// 4. Notifications (optional)
	if cfg.Notify.Enabled && submitting {
		notifications, err := app.NewNotifications(cfg.Notify, logger)
		if err != nil {
			logger.Error("Failed to set up notifications", "error", err)
			os.Exit(1)
		}
		defer notifications.Close()
		opts = append(opts, app.WithNotifications(notifications.Notifier, notifications.Relay))
		logger.Info("RabbitMQ Connected")
	}

	// 5. Mount the view
	session := app.NewDetailSession(backend, detailCfg, logger, opts...)

	var wg sync.WaitGroup
	if submitting {
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case <-ctx.Done():
				return
			case <-loaded:
			}
			submit(ctx, session, *bidAmount, *buyNow, logger)
		}()
	}

	logger.Info("Watching auction", "auction_id", *auctionID, "transport", cfg.Push.Transport)
	err = session.Run(ctx)
	stop()
	wg.Wait()

	switch {
	case errors.Is(err, auctions.ErrAuctionNotFound):
		fmt.Println("This auction no longer exists.")
		os.Exit(1)
	case err != nil:
		logger.Error("Session failed", "error", err)
		os.Exit(1)
	}
}

func submit(ctx context.Context, session *app.DetailSession, amount int64, buyNow bool, logger *slog.Logger) {
	var (
		receipt *bids.Receipt
		err     error
	)
	if buyNow {
		receipt, err = session.BuyNow(ctx)
	} else {
		receipt, err = session.PlaceBid(ctx, amount)
	}

	var validation *bids.ValidationError
	var rejection *bids.RejectionError
	switch {
	case errors.As(err, &validation):
		fmt.Printf("Bid not sent: %s\n", validation.Error())
	case errors.As(err, &rejection):
		fmt.Printf("Bid rejected: %s\n", rejection.Message)
	case err != nil:
		logger.Error("Submission failed", "error", err)
	default:
		fmt.Printf("Accepted %s of %d, price is now %d\n", receipt.Kind, receipt.Amount, receipt.NewPrice)
	}
}

func renderView(v auctions.View) {
	switch v.State {
	case auctions.ViewLoading:
		if v.LastError != nil {
			fmt.Printf("Loading (last attempt failed: %v)\n", v.LastError)
		}
	case auctions.ViewReady:
		s := v.Snapshot
		fmt.Printf("%s | price %d | next bid %d | bids %d | views %d | %s\n",
			s.Title, s.CurrentPrice(), bids.MinNextBid(s.CurrentPrice()), s.BidCount, s.ViewCount, v.Overlay)
	}
}

func renderTick(t countdown.Tick) {
	if t.Changed {
		fmt.Printf("Status: %s\n", t.Status)
	}
	fmt.Printf("\r%s ", t.Text())
}
