package bids

import (
	"time"

	"github.com/google/uuid"

	"github.com/floroz/gavel-live/services/bid-client/internal/domain/auctions"
)

// Bidder identifies who places bids from this client.
type Bidder struct {
	ID   string
	Name string
}

// PlaceBidRequest is the body of POST /bids.
type PlaceBidRequest struct {
	AuctionID auctions.ID `json:"auctionId"`
	BidAmount int64       `json:"bidAmount"`
	Bidder    string      `json:"bidder"`
}

// PlaceBidResult is the backend's answer to POST /bids.
type PlaceBidResult struct {
	Success  bool   `json:"success"`
	NewPrice int64  `json:"newPrice"`
	Message  string `json:"message,omitempty"`
}

// BuyNowRequest is the body of POST /auctions/{id}/buy-now.
type BuyNowRequest struct {
	WinnerID   string `json:"winnerId"`
	WinnerName string `json:"winnerName"`
	Price      int64  `json:"price"`
}

// Kind distinguishes a regular bid from a buy-now purchase.
type Kind string

const (
	KindBid    Kind = "bid"
	KindBuyNow Kind = "buy_now"
)

// Receipt describes an accepted submission.
type Receipt struct {
	ID         uuid.UUID
	AuctionID  auctions.ID
	Kind       Kind
	Amount     int64
	NewPrice   int64
	Closed     bool
	Bidder     Bidder
	AcceptedAt time.Time
}

// NotificationType names a notification routed to another user.
type NotificationType string

const (
	NotificationBidReceived NotificationType = "notification.bid_received"
	NotificationBidPlaced   NotificationType = "notification.bid_placed"
	NotificationSold        NotificationType = "notification.auction_sold"
)

// Notification is the side effect of an accepted submission.
type Notification struct {
	Type        NotificationType
	RecipientID string
	AuctionID   auctions.ID
	Title       string
	BidderID    string
	BidderName  string
	Amount      int64
	OccurredAt  time.Time
}

// SubmissionState is a step of the submission state machine.
type SubmissionState int

const (
	StateIdle SubmissionState = iota
	StateValidating
	StateSubmitting
	StateSucceeded
	StateFailed
)

func (s SubmissionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateValidating:
		return "validating"
	case StateSubmitting:
		return "submitting"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the terminal result of the latest submission.
type Outcome struct {
	State   SubmissionState
	Receipt *Receipt
	Err     error
}
