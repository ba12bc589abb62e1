package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/floroz/gavel-live/pkg/config"
	"github.com/floroz/gavel-live/pkg/logging"
	"github.com/floroz/gavel-live/services/bid-client/internal/app"
	"github.com/floroz/gavel-live/services/bid-client/internal/domain/auctions"
	"github.com/floroz/gavel-live/services/bid-client/internal/domain/countdown"
)

func main() {
	category := pflag.String("category", "", "only list auctions in this category")
	keyword := pflag.String("keyword", "", "only list auctions matching this keyword")
	status := pflag.String("status", "", "only list auctions with this status")
	page := pflag.Int("page", 0, "result page")
	size := pflag.Int("size", 20, "page size")
	transport := pflag.String("transport", "", "push transport: websocket, amqp, redis, nats or none")
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. REST client
	backend, err := app.NewBackend(cfg.API, logger)
	if err != nil {
		logger.Error("Failed to create API client", "error", err)
		os.Exit(1)
	}

	// 2. Push transport
	subscriber, subCloser, err := app.NewSubscriber(cfg.Push, cfg.API.AccessToken, logger)
	if err != nil {
		logger.Error("Failed to create push subscriber", "error", err)
		os.Exit(1)
	}
	defer subCloser.Close()

	// 3. Mount the board
	boardCfg := app.BoardConfig{
		Query: auctions.ListQuery{
			Category: *category,
			Keyword:  *keyword,
			Status:   *status,
			Page:     *page,
			Size:     *size,
		},
		PollInterval:    cfg.API.ListPollInterval,
		ReconnectPolicy: app.ReconnectPolicy(cfg.Push),
	}

	opts := []app.BoardOption{
		app.WithSyncHandler(func(res auctions.SyncResult) {
			for _, cell := range res.Added {
				fmt.Printf("+ %s %s\n", cell.ID(), cell.View().Snapshot.Title)
			}
			for _, id := range res.Removed {
				fmt.Printf("- %s\n", id)
			}
		}),
		app.WithCardTickHandler(func(id auctions.ID, t countdown.Tick) {
			if t.Changed || t.Status == auctions.StatusEnded {
				fmt.Printf("%s: %s\n", id, t.Text())
			}
		}),
	}
	if subscriber != nil {
		opts = append(opts, app.WithBoardPush(subscriber))
	}
	session := app.NewBoardSession(backend, boardCfg, logger, opts...)

	logger.Info("Watching auction list", "category", *category, "transport", cfg.Push.Transport)
	if err := session.Run(ctx); err != nil {
		logger.Error("Session failed", "error", err)
		os.Exit(1)
	}
	logger.Info("Board closed", "cards", len(session.Board().IDs()))
}
