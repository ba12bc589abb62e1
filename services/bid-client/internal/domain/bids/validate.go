package bids

import (
	"errors"
	"fmt"
	"time"

	"github.com/floroz/gavel-live/services/bid-client/internal/domain/auctions"
)

var (
	ErrBidTooLow         = errors.New("too low")
	ErrWrongStep         = errors.New("wrong step")
	ErrInvalidBidAmount  = fmt.Errorf("bid amount must be positive")
	ErrAuctionNotStarted = fmt.Errorf("auction has not started")
	ErrAuctionEnded      = fmt.Errorf("auction has ended")
	ErrAuctionNotLoaded  = fmt.Errorf("auction is not loaded")
	ErrSellerCannotBid   = fmt.Errorf("seller cannot bid on their own auction")
	ErrAboveBuyNowPrice  = fmt.Errorf("bid exceeds the buy-now price")
	ErrNoBuyNowPrice     = fmt.Errorf("auction has no buy-now price")
)

// ValidationError explains why an amount was refused locally.
type ValidationError struct {
	Reason     error
	Amount     int64
	MinNextBid int64
	Step       int64
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: bid %d, minimum %d, step %d", e.Reason, e.Amount, e.MinNextBid, e.Step)
}

func (e *ValidationError) Unwrap() error {
	return e.Reason
}

// Validate checks amount against the price tier of currentPrice. The amount
// must reach MinNextBid and raise currentPrice by a whole number of steps.
func Validate(amount, currentPrice int64) error {
	step := IncrementStep(currentPrice)
	minBid := currentPrice + step

	newErr := func(reason error) error {
		return &ValidationError{Reason: reason, Amount: amount, MinNextBid: minBid, Step: step}
	}

	if amount < minBid {
		return newErr(ErrBidTooLow)
	}
	if (amount-currentPrice)%step != 0 {
		return newErr(ErrWrongStep)
	}
	return nil
}

// ValidateFor runs every local check for bidder bidding amount on the
// auction in view at now. An amount equal to the buy-now price is accepted
// regardless of step.
func ValidateFor(view auctions.View, bidder Bidder, amount int64, now time.Time) error {
	if err := validateAuction(view, bidder, now); err != nil {
		return err
	}
	if amount <= 0 {
		return ErrInvalidBidAmount
	}

	s := view.Snapshot
	if s.BuyNowPrice != nil {
		if amount == *s.BuyNowPrice {
			return nil
		}
		if amount > *s.BuyNowPrice {
			return ErrAboveBuyNowPrice
		}
	}
	return Validate(amount, s.CurrentPrice())
}

// validateBuyNow runs the checks for an immediate purchase.
func validateBuyNow(view auctions.View, bidder Bidder, now time.Time) error {
	if err := validateAuction(view, bidder, now); err != nil {
		return err
	}
	if view.Snapshot.BuyNowPrice == nil {
		return ErrNoBuyNowPrice
	}
	return nil
}

func validateAuction(view auctions.View, bidder Bidder, now time.Time) error {
	if view.State != auctions.ViewReady {
		return ErrAuctionNotLoaded
	}

	switch auctions.Resolve(now, view.Snapshot.Window()).Status {
	case auctions.StatusScheduled:
		return ErrAuctionNotStarted
	case auctions.StatusEnded:
		return ErrAuctionEnded
	}

	if bidder.ID != "" && bidder.ID == view.Snapshot.SellerID {
		return ErrSellerCannotBid
	}
	return nil
}
