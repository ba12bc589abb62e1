package countdown

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/floroz/gavel-live/services/bid-client/internal/domain/auctions"
)

// DefaultInterval is the display refresh rate.
const DefaultInterval = time.Second

// WindowSource supplies the current auction window on every tick.
type WindowSource interface {
	Window() auctions.Window
}

// State is the lifecycle of a Ticker.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Remaining is a duration split for display.
type Remaining struct {
	Days    int64
	Hours   int64
	Minutes int64
	Seconds int64
}

// Decompose splits d by floor division on whole milliseconds. Negative
// durations clamp to zero.
func Decompose(d time.Duration) Remaining {
	ms := d.Milliseconds()
	if ms < 0 {
		ms = 0
	}
	return Remaining{
		Days:    ms / (24 * 60 * 60 * 1000),
		Hours:   ms / (60 * 60 * 1000) % 24,
		Minutes: ms / (60 * 1000) % 60,
		Seconds: ms / 1000 % 60,
	}
}

func (r Remaining) String() string {
	if r.Days > 0 {
		return fmt.Sprintf("%dd %02dh %02dm %02ds", r.Days, r.Hours, r.Minutes, r.Seconds)
	}
	return fmt.Sprintf("%02dh %02dm %02ds", r.Hours, r.Minutes, r.Seconds)
}

// Tick is one emitted display update. Changed is set on the first tick
// after a status transition.
type Tick struct {
	Status    auctions.TimeStatus
	Previous  auctions.TimeStatus
	Changed   bool
	Remaining Remaining
	At        time.Time
}

// Text renders the tick for a card.
func (t Tick) Text() string {
	switch t.Status {
	case auctions.StatusScheduled:
		return "starts in " + t.Remaining.String()
	case auctions.StatusActive:
		return "ends in " + t.Remaining.String()
	default:
		return "ended"
	}
}

// Ticker recomputes an auction's status and remaining time every interval
// and emits the result. Every instance is independent.
type Ticker struct {
	source   WindowSource
	interval time.Duration
	now      func() time.Time

	mu     sync.Mutex
	state  State
	ticks  chan Tick
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Ticker.
type Option func(*Ticker)

// WithInterval overrides DefaultInterval.
func WithInterval(d time.Duration) Option {
	return func(t *Ticker) {
		t.interval = d
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Ticker) {
		t.now = now
	}
}

// New creates an idle ticker reading its window from source.
func New(source WindowSource, opts ...Option) *Ticker {
	t := &Ticker{
		source:   source,
		interval: DefaultInterval,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// State returns the lifecycle state.
func (t *Ticker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Start emits the current tick immediately and keeps ticking until the
// auction ends or Stop is called, then closes the channel. An auction that
// has already ended yields a single tick and starts no timer. Calling Start
// on a ticker that is not idle returns a closed channel.
func (t *Ticker) Start() <-chan Tick {
	ticks := make(chan Tick, 1)

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != StateIdle {
		close(ticks)
		return ticks
	}

	first := t.compute(0)
	ticks <- first
	t.ticks = ticks

	if first.Status == auctions.StatusEnded {
		t.state = StateStopped
		close(ticks)
		return ticks
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.state = StateRunning
	t.cancel = cancel
	t.done = make(chan struct{})

	go t.run(ctx, ticks, first.Status)
	return ticks
}

// Stop halts the ticker. It is idempotent, and once it returns no further
// tick is emitted: ticks still buffered are discarded.
func (t *Ticker) Stop() {
	t.mu.Lock()
	t.state = StateStopped
	cancel, done, ticks := t.cancel, t.done, t.ticks
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	if ticks != nil {
		for range ticks {
		}
	}
}

func (t *Ticker) run(ctx context.Context, ticks chan<- Tick, last auctions.TimeStatus) {
	timer := time.NewTicker(t.interval)
	defer func() {
		timer.Stop()
		close(ticks)

		t.mu.Lock()
		t.state = StateStopped
		t.mu.Unlock()
		close(t.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		tick := t.compute(last)
		select {
		case <-ctx.Done():
			return
		case ticks <- tick:
		}

		if tick.Status == auctions.StatusEnded {
			return
		}
		last = tick.Status
	}
}

// compute resolves the current tick. A zero previous status marks the first
// tick, which never reports a change.
func (t *Ticker) compute(previous auctions.TimeStatus) Tick {
	now := t.now()
	res := auctions.Resolve(now, t.source.Window())

	if previous == 0 {
		previous = res.Status
	}
	return Tick{
		Status:    res.Status,
		Previous:  previous,
		Changed:   res.Status != previous,
		Remaining: Decompose(res.TransitionIn),
		At:        now,
	}
}
