package auctions

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

const (
	DefaultDetailPollInterval = 5 * time.Second
	DefaultListPollInterval   = 30 * time.Second
)

// Poller keeps one cell in sync with GET /auctions/{id}.
type Poller struct {
	fetcher  Fetcher
	cell     *Cell
	interval time.Duration
	trigger  chan struct{}
	logger   *slog.Logger
}

// NewPoller creates a poller for the cell's auction.
func NewPoller(fetcher Fetcher, cell *Cell, interval time.Duration, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultDetailPollInterval
	}
	return &Poller{
		fetcher:  fetcher,
		cell:     cell,
		interval: interval,
		trigger:  make(chan struct{}, 1),
		logger:   logger.With("component", "poller", "auction_id", cell.ID()),
	}
}

// Trigger requests a refresh ahead of the next tick. Repeated calls before
// the refresh runs collapse into one.
func (p *Poller) Trigger() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

// Run fetches immediately and then on every tick until ctx is cancelled.
// It returns ErrAuctionNotFound, after marking the cell, when the auction
// no longer exists.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// Initial run
	if err := p.refresh(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-p.trigger:
			ticker.Reset(p.interval)
		}
		if err := p.refresh(ctx); err != nil {
			return err
		}
	}
}

// refresh only returns an error when polling must stop.
func (p *Poller) refresh(ctx context.Context) error {
	snapshot, err := p.fetcher.GetAuction(ctx, p.cell.ID())
	switch {
	case errors.Is(err, ErrAuctionNotFound):
		p.logger.Warn("Auction not found, stopping poller")
		p.cell.MarkNotFound()
		return ErrAuctionNotFound
	case err != nil:
		if ctx.Err() != nil {
			return nil
		}
		p.logger.Error("Error refreshing auction", "error", err)
		p.cell.RecordFailure(err)
		return nil
	}

	if err := snapshot.Validate(); err != nil {
		p.logger.Warn("Auction snapshot failed validation", "error", err)
	}
	p.cell.Replace(*snapshot, SourcePoll)
	return nil
}

// ListPoller keeps a board in sync with GET /auctions.
type ListPoller struct {
	lister   Lister
	board    *Board
	query    ListQuery
	interval time.Duration
	onSync   func(SyncResult)
	logger   *slog.Logger
}

// NewListPoller creates a poller for a filtered auction list. onSync, when
// not nil, is called after every successful refresh.
func NewListPoller(lister Lister, board *Board, query ListQuery, interval time.Duration, onSync func(SyncResult), logger *slog.Logger) *ListPoller {
	if interval <= 0 {
		interval = DefaultListPollInterval
	}
	return &ListPoller{
		lister:   lister,
		board:    board,
		query:    query,
		interval: interval,
		onSync:   onSync,
		logger:   logger.With("component", "list_poller"),
	}
}

// Run fetches immediately and then on every tick until ctx is cancelled.
// Failures keep the board as it was.
func (p *ListPoller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.refresh(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.refresh(ctx)
		}
	}
}

func (p *ListPoller) refresh(ctx context.Context) {
	list, err := p.lister.ListAuctions(ctx, p.query)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Error("Error refreshing auction list", "error", err)
		}
		return
	}

	res := p.board.Sync(list)
	p.logger.Debug("Auction list refreshed",
		"count", len(list), "added", len(res.Added), "removed", len(res.Removed))
	if p.onSync != nil {
		p.onSync(res)
	}
}
