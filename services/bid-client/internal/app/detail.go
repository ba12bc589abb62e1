package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/floroz/gavel-live/services/bid-client/internal/domain/auctions"
	"github.com/floroz/gavel-live/services/bid-client/internal/domain/bids"
	"github.com/floroz/gavel-live/services/bid-client/internal/domain/countdown"
)

// DetailConfig describes one auction detail view.
type DetailConfig struct {
	AuctionID       auctions.ID
	PollInterval    time.Duration
	MergePolicy     auctions.MergePolicy
	ReconnectPolicy auctions.ReconnectPolicy

	// Bidder enables submissions. Without it the session is read-only.
	Bidder *bids.Bidder
}

// DetailOption configures a DetailSession.
type DetailOption func(*DetailSession)

// WithViewHandler is called with every new view of the auction.
func WithViewHandler(fn func(auctions.View)) DetailOption {
	return func(s *DetailSession) {
		s.onView = fn
	}
}

// WithTickHandler is called with every countdown tick.
func WithTickHandler(fn func(countdown.Tick)) DetailOption {
	return func(s *DetailSession) {
		s.onTick = fn
	}
}

// WithTickerOptions configures the countdown ticker.
func WithTickerOptions(opts ...countdown.Option) DetailOption {
	return func(s *DetailSession) {
		s.tickerOpts = opts
	}
}

// WithClock sets the time source of the session and its countdown.
func WithClock(now func() time.Time) DetailOption {
	return func(s *DetailSession) {
		s.now = now
	}
}

// WithPush subscribes the view to live updates.
func WithPush(sub auctions.Subscriber) DetailOption {
	return func(s *DetailSession) {
		s.subscriber = sub
	}
}

// WithNotifications announces accepted submissions through notifier while
// relay runs alongside the session.
func WithNotifications(notifier bids.Notifier, relay Runner) DetailOption {
	return func(s *DetailSession) {
		s.notifier = notifier
		s.relay = relay
	}
}

// DetailSession is the mounted detail view of one auction: a cell kept in
// sync by a poller and an optional push channel, a countdown, and a
// submitter for bids.
type DetailSession struct {
	backend    Backend
	cfg        DetailConfig
	subscriber auctions.Subscriber
	notifier   bids.Notifier
	relay      Runner
	tickerOpts []countdown.Option
	onView     func(auctions.View)
	onTick     func(countdown.Tick)
	now        func() time.Time
	logger     *slog.Logger

	board     *auctions.Board
	cell      *auctions.Cell
	poller    *auctions.Poller
	push      *auctions.PushChannel
	submitter *bids.Submitter
}

// NewDetailSession wires the components of a detail view. Nothing runs
// until Run is called.
func NewDetailSession(backend Backend, cfg DetailConfig, logger *slog.Logger, opts ...DetailOption) *DetailSession {
	s := &DetailSession{
		backend: backend,
		cfg:     cfg,
		onView:  func(auctions.View) {},
		onTick:  func(countdown.Tick) {},
		now:     time.Now,
		logger:  logger.With("component", "detail_session", "auction_id", cfg.AuctionID),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.board = auctions.NewBoard(auctions.WithMergePolicy(cfg.MergePolicy))
	s.cell = s.board.Track(cfg.AuctionID)
	s.poller = auctions.NewPoller(backend, s.cell, cfg.PollInterval, logger)

	if s.subscriber != nil {
		policy := cfg.ReconnectPolicy
		if policy == (auctions.ReconnectPolicy{}) {
			policy = auctions.DefaultReconnectPolicy
		}
		s.push = auctions.NewPushChannel(s.subscriber, s.board, logger, auctions.WithReconnectPolicy(policy))
	}

	if cfg.Bidder != nil {
		submitterOpts := []bids.SubmitterOption{bids.WithRefresher(s.poller)}
		if s.notifier != nil {
			submitterOpts = append(submitterOpts, bids.WithNotifier(s.notifier))
		}
		s.submitter = bids.NewSubmitter(backend, s.cell, *cfg.Bidder, logger, submitterOpts...)
	}
	return s
}

// Cell returns the view-state cell of the session.
func (s *DetailSession) Cell() *auctions.Cell {
	return s.cell
}

// PushState reports the push channel state, ChannelIdle when push is off.
func (s *DetailSession) PushState() auctions.ChannelState {
	if s.push == nil {
		return auctions.ChannelIdle
	}
	return s.push.State()
}

// PlaceBid submits a bid of amount against the current view.
func (s *DetailSession) PlaceBid(ctx context.Context, amount int64) (*bids.Receipt, error) {
	if s.submitter == nil {
		return nil, ErrNoBidder
	}
	return s.submitter.PlaceBid(ctx, amount)
}

// BuyNow purchases the auction at its buy-now price.
func (s *DetailSession) BuyNow(ctx context.Context) (*bids.Receipt, error) {
	if s.submitter == nil {
		return nil, ErrNoBidder
	}
	return s.submitter.BuyNow(ctx)
}

// Run mounts the view until ctx is cancelled. It returns
// auctions.ErrAuctionNotFound when the auction disappears; push failures
// are logged and leave polling running.
func (s *DetailSession) Run(ctx context.Context) error {
	views, unwatch := s.cell.Watch()
	defer unwatch()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.poller.Run(gctx)
	})

	g.Go(func() error {
		return s.render(gctx, views)
	})

	g.Go(func() error {
		if err := s.backend.RecordView(gctx, s.cfg.AuctionID); err != nil && gctx.Err() == nil {
			s.logger.Warn("Failed to record view", "error", err)
		}
		return nil
	})

	if s.push != nil {
		g.Go(func() error {
			if err := s.push.Run(gctx); err != nil {
				s.logger.Error("Push channel stopped, falling back to polling", "error", err)
			}
			return nil
		})
	}

	if s.relay != nil {
		g.Go(func() error {
			if err := s.relay.Run(gctx); err != nil {
				s.logger.Error("Outbox relay stopped", "error", err)
			}
			return nil
		})
	}

	err := g.Wait()
	if errors.Is(err, auctions.ErrAuctionNotFound) {
		return auctions.ErrAuctionNotFound
	}
	return err
}

// render forwards views and ticks to the handlers. The countdown starts
// with the first loaded view, and a status change asks the poller for a
// fresh snapshot. A countdown that ran out starts again once the auction
// reopens, for instance when its end is extended.
func (s *DetailSession) render(ctx context.Context, views <-chan auctions.View) error {
	var (
		ticker  *countdown.Ticker
		ticks   <-chan countdown.Tick
		started bool
	)
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
	}()

	start := func(v auctions.View) {
		if ticker != nil || v.State != auctions.ViewReady {
			return
		}
		if started {
			if auctions.Resolve(s.now(), v.Snapshot.Window()).Status == auctions.StatusEnded {
				return
			}
			s.logger.Info("Auction reopened, restarting countdown")
		}
		opts := append([]countdown.Option{countdown.WithClock(s.now)}, s.tickerOpts...)
		ticker = countdown.New(s.cell, opts...)
		ticks = ticker.Start()
		started = true
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case v := <-views:
			s.onView(v)
			if v.State == auctions.ViewNotFound {
				return auctions.ErrAuctionNotFound
			}
			start(v)
		case t, ok := <-ticks:
			if !ok {
				// Ended. A nil channel blocks until a view reopens the auction.
				ticker.Stop()
				ticker, ticks = nil, nil
				start(s.cell.View())
				continue
			}
			s.onTick(t)
			if t.Changed {
				s.logger.Info("Auction status changed", "from", t.Previous, "to", t.Status)
				s.poller.Trigger()
			}
		}
	}
}
