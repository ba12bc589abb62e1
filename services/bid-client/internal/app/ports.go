package app

import (
	"context"
	"fmt"

	"github.com/floroz/gavel-live/services/bid-client/internal/domain/auctions"
	"github.com/floroz/gavel-live/services/bid-client/internal/domain/bids"
)

var ErrNoBidder = fmt.Errorf("no bidder identity configured")

// Backend is the REST surface a session needs.
type Backend interface {
	auctions.Fetcher
	auctions.Lister
	bids.Gateway
	RecordView(ctx context.Context, id auctions.ID) error
}

// Runner is a background component stopped by cancelling ctx, such as the
// notification outbox relay.
type Runner interface {
	Run(ctx context.Context) error
}
