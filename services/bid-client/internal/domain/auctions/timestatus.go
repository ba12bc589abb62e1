package auctions

import "time"

// TimeStatus is the lifecycle phase of an auction derived from its window.
// The values are ordered: a later phase never precedes an earlier one.
type TimeStatus int

const (
	StatusScheduled TimeStatus = iota + 1
	StatusActive
	StatusEnded
)

func (s TimeStatus) String() string {
	switch s {
	case StatusScheduled:
		return "scheduled"
	case StatusActive:
		return "active"
	case StatusEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Window is the part of a snapshot that decides its time status.
type Window struct {
	StartAt time.Time
	EndAt   time.Time
	Closed  bool
}

// Resolution is the resolved status and the time left until the next
// transition. TransitionIn is zero once the auction has ended.
type Resolution struct {
	Status       TimeStatus
	TransitionIn time.Duration
}

// Resolve derives the lifecycle status of w at now.
//
// A closed auction is ended regardless of its window, and a window without an
// end time is treated as ended. The auction is active from StartAt inclusive
// and ended from EndAt inclusive.
func Resolve(now time.Time, w Window) Resolution {
	if w.Closed || w.EndAt.IsZero() {
		return Resolution{Status: StatusEnded}
	}

	if !w.StartAt.IsZero() && now.Before(w.StartAt) {
		return Resolution{Status: StatusScheduled, TransitionIn: w.StartAt.Sub(now)}
	}

	if now.Before(w.EndAt) {
		return Resolution{Status: StatusActive, TransitionIn: w.EndAt.Sub(now)}
	}

	return Resolution{Status: StatusEnded}
}
