package auctions

import (
	"context"
	"fmt"
)

var (
	ErrAuctionNotFound   = fmt.Errorf("auction not found")
	ErrMissingID         = fmt.Errorf("auction id is missing")
	ErrInvalidWindow     = fmt.Errorf("auction start must be before its end")
	ErrNegativeValue     = fmt.Errorf("auction prices and counters must not be negative")
	ErrInvalidHighestBid = fmt.Errorf("highest bid must exceed the start price")
	ErrChannelExhausted  = fmt.Errorf("push channel gave up reconnecting")
)

// Fetcher loads a single auction.
type Fetcher interface {
	// GetAuction returns ErrAuctionNotFound when the backend does not know id
	GetAuction(ctx context.Context, id ID) (*Snapshot, error)
}

// Lister loads a filtered page of auctions.
type Lister interface {
	ListAuctions(ctx context.Context, query ListQuery) ([]Snapshot, error)
}

// Sink receives everything a push transport produces during one connection.
type Sink interface {
	// Connected is called once the transport is subscribed
	Connected()

	// Deliver hands over one decoded update
	Deliver(update Update)
}

// Subscriber is a push transport. Subscribe blocks for the lifetime of one
// connection and returns when the connection is lost or ctx is cancelled.
type Subscriber interface {
	Subscribe(ctx context.Context, sink Sink) error
}
