package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/floroz/gavel-live/services/bid-client/internal/domain/auctions"
	"github.com/floroz/gavel-live/services/bid-client/internal/domain/countdown"
)

// BoardConfig describes a filtered auction list view.
type BoardConfig struct {
	Query           auctions.ListQuery
	PollInterval    time.Duration
	MergePolicy     auctions.MergePolicy
	ReconnectPolicy auctions.ReconnectPolicy
}

// BoardOption configures a BoardSession.
type BoardOption func(*BoardSession)

// WithCardTickHandler is called with every countdown tick of every card.
func WithCardTickHandler(fn func(auctions.ID, countdown.Tick)) BoardOption {
	return func(s *BoardSession) {
		s.onTick = fn
	}
}

// WithSyncHandler is called after every list refresh.
func WithSyncHandler(fn func(auctions.SyncResult)) BoardOption {
	return func(s *BoardSession) {
		s.onSync = fn
	}
}

// WithCardTickerOptions configures the per-card tickers.
func WithCardTickerOptions(opts ...countdown.Option) BoardOption {
	return func(s *BoardSession) {
		s.tickerOpts = opts
	}
}

// WithBoardPush subscribes the board to live updates.
func WithBoardPush(sub auctions.Subscriber) BoardOption {
	return func(s *BoardSession) {
		s.subscriber = sub
	}
}

// BoardSession is the mounted list view: a board of cards kept in sync by
// a list poller and an optional push channel, with one countdown per card.
type BoardSession struct {
	cfg        BoardConfig
	subscriber auctions.Subscriber
	tickerOpts []countdown.Option
	onTick     func(auctions.ID, countdown.Tick)
	onSync     func(auctions.SyncResult)
	logger     *slog.Logger

	board  *auctions.Board
	poller *auctions.ListPoller
	push   *auctions.PushChannel

	mu      sync.Mutex
	tickers map[auctions.ID]*countdown.Ticker
	closed  bool
	wg      sync.WaitGroup
}

// NewBoardSession wires the components of a list view.
func NewBoardSession(lister auctions.Lister, cfg BoardConfig, logger *slog.Logger, opts ...BoardOption) *BoardSession {
	s := &BoardSession{
		cfg:     cfg,
		onTick:  func(auctions.ID, countdown.Tick) {},
		onSync:  func(auctions.SyncResult) {},
		logger:  logger.With("component", "board_session"),
		tickers: make(map[auctions.ID]*countdown.Ticker),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.board = auctions.NewBoard(auctions.WithMergePolicy(cfg.MergePolicy))
	s.poller = auctions.NewListPoller(lister, s.board, cfg.Query, cfg.PollInterval, s.synced, logger)

	if s.subscriber != nil {
		policy := cfg.ReconnectPolicy
		if policy == (auctions.ReconnectPolicy{}) {
			policy = auctions.DefaultReconnectPolicy
		}
		s.push = auctions.NewPushChannel(s.subscriber, s.board, logger, auctions.WithReconnectPolicy(policy))
	}
	return s
}

// Board returns the cards of the session.
func (s *BoardSession) Board() *auctions.Board {
	return s.board
}

// Run mounts the list until ctx is cancelled. Every card ticker is stopped
// before Run returns.
func (s *BoardSession) Run(ctx context.Context) error {
	defer s.stopAll()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.poller.Run(gctx)
	})

	if s.push != nil {
		g.Go(func() error {
			if err := s.push.Run(gctx); err != nil {
				s.logger.Error("Push channel stopped, falling back to polling", "error", err)
			}
			return nil
		})
	}

	return g.Wait()
}

// Tickers returns the number of cards with a running countdown.
func (s *BoardSession) Tickers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tickers)
}

func (s *BoardSession) synced(res auctions.SyncResult) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	var stopped []*countdown.Ticker
	for _, id := range res.Removed {
		if t, ok := s.tickers[id]; ok {
			stopped = append(stopped, t)
			delete(s.tickers, id)
		}
	}
	for _, cell := range res.Added {
		t := countdown.New(cell, s.tickerOpts...)
		s.tickers[cell.ID()] = t
		s.wg.Add(1)
		go s.forward(cell.ID(), t.Start())
	}
	s.mu.Unlock()

	for _, t := range stopped {
		t.Stop()
	}
	s.onSync(res)
}

func (s *BoardSession) forward(id auctions.ID, ticks <-chan countdown.Tick) {
	defer s.wg.Done()
	for t := range ticks {
		s.onTick(id, t)
	}
}

func (s *BoardSession) stopAll() {
	s.mu.Lock()
	s.closed = true
	tickers := s.tickers
	s.tickers = make(map[auctions.ID]*countdown.Ticker)
	s.mu.Unlock()

	for _, t := range tickers {
		t.Stop()
	}
	s.wg.Wait()
}
