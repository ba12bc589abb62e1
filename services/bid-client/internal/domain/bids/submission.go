package bids

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/floroz/gavel-live/services/bid-client/internal/domain/auctions"
)

var ErrSubmissionInProgress = fmt.Errorf("a submission is already in progress")

// RejectionError carries the backend's refusal. Its message is shown to the
// user verbatim.
type RejectionError struct {
	StatusCode int
	Message    string
}

func (e *RejectionError) Error() string {
	return e.Message
}

// Submitter drives one view's bid submissions through
// Idle → Validating → Submitting → Succeeded|Failed → Idle.
type Submitter struct {
	gateway   Gateway
	auction   AuctionState
	bidder    Bidder
	notifier  Notifier
	refresher Refresher
	now       func() time.Time
	observe   func(from, to SubmissionState)
	logger    *slog.Logger

	mu    sync.Mutex
	state SubmissionState
	last  Outcome
}

// SubmitterOption configures a Submitter.
type SubmitterOption func(*Submitter)

// WithNotifier sets where accepted submissions are announced.
func WithNotifier(n Notifier) SubmitterOption {
	return func(s *Submitter) {
		s.notifier = n
	}
}

// WithRefresher sets what is asked to refresh after an accepted submission.
func WithRefresher(r Refresher) SubmitterOption {
	return func(s *Submitter) {
		s.refresher = r
	}
}

// WithSubmitterClock overrides the time source used for validation.
func WithSubmitterClock(now func() time.Time) SubmitterOption {
	return func(s *Submitter) {
		s.now = now
	}
}

// WithTransitionHook is called on every state transition.
func WithTransitionHook(fn func(from, to SubmissionState)) SubmitterOption {
	return func(s *Submitter) {
		s.observe = fn
	}
}

// NewSubmitter creates a submitter for the auction held by state.
func NewSubmitter(gateway Gateway, state AuctionState, bidder Bidder, logger *slog.Logger, opts ...SubmitterOption) *Submitter {
	s := &Submitter{
		gateway: gateway,
		auction: state,
		bidder:  bidder,
		now:     time.Now,
		logger:  logger.With("component", "submitter"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current step.
func (s *Submitter) State() SubmissionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastOutcome returns the result of the latest submission. Its State is
// StateIdle when the attempt was refused locally and never sent.
func (s *Submitter) LastOutcome() Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// PlaceBid validates amount and submits it. A refused bid leaves the view
// untouched; an accepted bid is applied optimistically until the next
// authoritative write.
func (s *Submitter) PlaceBid(ctx context.Context, amount int64) (*Receipt, error) {
	if err := s.begin(); err != nil {
		return nil, err
	}

	view := s.auction.View()
	if err := ValidateFor(view, s.bidder, amount, s.now()); err != nil {
		s.end(StateIdle, Outcome{State: StateIdle, Err: err})
		return nil, err
	}
	snapshot := view.Snapshot

	s.transition(StateSubmitting)
	result, err := s.gateway.PlaceBid(ctx, PlaceBidRequest{
		AuctionID: snapshot.ID,
		BidAmount: amount,
		Bidder:    s.bidder.ID,
	})
	if err == nil && !result.Success {
		err = &RejectionError{Message: result.Message}
	}
	if err != nil {
		return nil, s.fail(snapshot.ID, KindBid, err)
	}

	newPrice := result.NewPrice
	if newPrice == 0 {
		newPrice = amount
	}
	closed := snapshot.BuyNowPrice != nil && amount >= *snapshot.BuyNowPrice

	return s.succeed(ctx, snapshot, KindBid, amount, newPrice, closed), nil
}

// BuyNow purchases the auction at its buy-now price.
func (s *Submitter) BuyNow(ctx context.Context) (*Receipt, error) {
	if err := s.begin(); err != nil {
		return nil, err
	}

	view := s.auction.View()
	if err := validateBuyNow(view, s.bidder, s.now()); err != nil {
		s.end(StateIdle, Outcome{State: StateIdle, Err: err})
		return nil, err
	}
	snapshot := view.Snapshot
	price := *snapshot.BuyNowPrice

	s.transition(StateSubmitting)
	err := s.gateway.BuyNow(ctx, snapshot.ID, BuyNowRequest{
		WinnerID:   s.bidder.ID,
		WinnerName: s.bidder.Name,
		Price:      price,
	})
	if err != nil {
		return nil, s.fail(snapshot.ID, KindBuyNow, err)
	}

	return s.succeed(ctx, snapshot, KindBuyNow, price, price, true), nil
}

func (s *Submitter) succeed(ctx context.Context, snapshot auctions.Snapshot, kind Kind, amount, newPrice int64, closed bool) *Receipt {
	receipt := &Receipt{
		ID:         uuid.New(),
		AuctionID:  snapshot.ID,
		Kind:       kind,
		Amount:     amount,
		NewPrice:   newPrice,
		Closed:     closed,
		Bidder:     s.bidder,
		AcceptedAt: s.now(),
	}

	s.auction.ApplyOptimistic(auctions.Optimistic{Price: newPrice, Close: closed})
	s.end(StateSucceeded, Outcome{State: StateSucceeded, Receipt: receipt})

	s.logger.Info("Submission accepted",
		"auction_id", snapshot.ID, "kind", kind, "amount", amount, "new_price", newPrice)

	s.announce(ctx, snapshot, receipt)
	if s.refresher != nil {
		s.refresher.Trigger()
	}
	return receipt
}

func (s *Submitter) fail(id auctions.ID, kind Kind, err error) error {
	var rejection *RejectionError
	if !errors.As(err, &rejection) {
		err = fmt.Errorf("failed to submit %s: %w", kind, err)
	}

	s.end(StateFailed, Outcome{State: StateFailed, Err: err})
	s.logger.Warn("Submission failed", "auction_id", id, "kind", kind, "error", err)
	return err
}

// announce tells the bidder their submission went through and the seller
// that their auction received it. The seller also learns when it sold.
func (s *Submitter) announce(ctx context.Context, snapshot auctions.Snapshot, r *Receipt) {
	if s.notifier == nil {
		return
	}

	base := Notification{
		AuctionID:  r.AuctionID,
		Title:      snapshot.Title,
		BidderID:   r.Bidder.ID,
		BidderName: r.Bidder.Name,
		Amount:     r.NewPrice,
		OccurredAt: r.AcceptedAt,
	}

	var notifications []Notification
	if r.Bidder.ID != "" {
		placed := base
		placed.Type = NotificationBidPlaced
		placed.RecipientID = r.Bidder.ID
		notifications = append(notifications, placed)
	}
	if snapshot.SellerID != "" {
		received := base
		received.Type = NotificationBidReceived
		received.RecipientID = snapshot.SellerID
		notifications = append(notifications, received)

		if r.Closed {
			sold := received
			sold.Type = NotificationSold
			notifications = append(notifications, sold)
		}
	}

	for _, n := range notifications {
		if err := s.notifier.Notify(ctx, n); err != nil {
			s.logger.Error("Failed to send notification", "type", n.Type, "recipient_id", n.RecipientID, "error", err)
		}
	}
}

func (s *Submitter) begin() error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrSubmissionInProgress
	}
	s.state = StateValidating
	s.mu.Unlock()

	s.notifyTransition(StateIdle, StateValidating)
	return nil
}

func (s *Submitter) transition(to SubmissionState) {
	s.mu.Lock()
	from := s.state
	s.state = to
	s.mu.Unlock()

	s.notifyTransition(from, to)
}

// end records the outcome and returns the machine to idle.
func (s *Submitter) end(terminal SubmissionState, outcome Outcome) {
	if terminal != StateIdle {
		s.transition(terminal)
	}

	s.mu.Lock()
	from := s.state
	s.state = StateIdle
	s.last = outcome
	s.mu.Unlock()

	s.notifyTransition(from, StateIdle)
}

func (s *Submitter) notifyTransition(from, to SubmissionState) {
	if s.observe != nil {
		s.observe(from, to)
	}
}
