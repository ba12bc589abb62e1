package bids

import (
	"context"

	"github.com/floroz/gavel-live/services/bid-client/internal/domain/auctions"
)

// Gateway submits bids to the backend.
type Gateway interface {
	// PlaceBid returns a *RejectionError when the backend refuses the bid
	PlaceBid(ctx context.Context, req PlaceBidRequest) (*PlaceBidResult, error)

	// BuyNow returns a *RejectionError when the backend refuses the purchase
	BuyNow(ctx context.Context, id auctions.ID, req BuyNowRequest) error
}

// AuctionState is the view-state cell the submission flow reads and writes.
type AuctionState interface {
	View() auctions.View
	ApplyOptimistic(o auctions.Optimistic) bool
}

// Notifier delivers notifications to other users. Failures never affect the
// outcome of a submission.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Refresher requests an early authoritative refresh.
type Refresher interface {
	Trigger()
}
