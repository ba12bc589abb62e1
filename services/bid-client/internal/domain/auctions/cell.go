package auctions

import (
	"sync"
	"time"
)

// ViewState tells a renderer what it can show for a cell.
type ViewState int

const (
	ViewLoading ViewState = iota
	ViewReady
	ViewNotFound
)

func (s ViewState) String() string {
	switch s {
	case ViewLoading:
		return "loading"
	case ViewReady:
		return "ready"
	case ViewNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Overlay tracks the optimistic write made after a successful bid.
type Overlay int

const (
	// OverlayAuthoritative means the cell holds server data only
	OverlayAuthoritative Overlay = iota
	// OverlayPending means an optimistic write has not been confirmed yet
	OverlayPending
	// OverlayReconciled means the first authoritative write after an
	// optimistic one has replaced it
	OverlayReconciled
)

func (o Overlay) String() string {
	switch o {
	case OverlayAuthoritative:
		return "authoritative"
	case OverlayPending:
		return "optimistic_pending"
	case OverlayReconciled:
		return "reconciled"
	default:
		return "unknown"
	}
}

// Source identifies who wrote the cell last.
type Source string

const (
	SourcePoll       Source = "poll"
	SourcePush       Source = "push"
	SourceList       Source = "list"
	SourceOptimistic Source = "optimistic"
)

// MergePolicy decides how concurrent sources are ordered.
type MergePolicy int

const (
	// LastWriteWins applies every write in arrival order
	LastWriteWins MergePolicy = iota
	// RejectStale drops writes whose non-zero version is older than the
	// version already held
	RejectStale
)

// View is an immutable copy of a cell's state.
type View struct {
	Snapshot        Snapshot
	State           ViewState
	Overlay         Overlay
	LastSource      Source
	LastError       error
	UpdatedAt       time.Time
	Revision        uint64
	Reconciliations int
}

// Optimistic is the local write applied after the backend accepted a bid.
type Optimistic struct {
	Price int64
	Close bool
}

// Cell is the single source of truth a view renders from. Poll, push and the
// submission flow all write here and every write replaces whole fields under
// the lock.
type Cell struct {
	mu       sync.RWMutex
	id       ID
	policy   MergePolicy
	now      func() time.Time
	view     View
	watchers map[chan View]struct{}
}

// CellOption configures a Cell.
type CellOption func(*Cell)

// WithMergePolicy sets how the cell orders writes.
func WithMergePolicy(p MergePolicy) CellOption {
	return func(c *Cell) {
		c.policy = p
	}
}

// WithClock overrides the time source used for UpdatedAt.
func WithClock(now func() time.Time) CellOption {
	return func(c *Cell) {
		c.now = now
	}
}

// NewCell creates an empty cell in the loading state.
func NewCell(id ID, opts ...CellOption) *Cell {
	c := &Cell{
		id:       id,
		now:      time.Now,
		watchers: make(map[chan View]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.view.Snapshot.ID = id
	return c
}

// ID returns the auction the cell tracks.
func (c *Cell) ID() ID {
	return c.id
}

// View returns a copy of the current state.
func (c *Cell) View() View {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.view
}

// Window returns the current time window, read by countdown tickers.
func (c *Cell) Window() Window {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.view.State != ViewReady {
		return Window{}
	}
	return c.view.Snapshot.Window()
}

// Replace writes a full authoritative snapshot. It reports whether the write
// was applied.
func (c *Cell) Replace(s Snapshot, src Source) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.view.State == ViewNotFound || s.ID != c.id {
		return false
	}
	if c.isStale(s.Version) {
		return false
	}

	c.commit(s, src)
	return true
}

// Merge writes a partial update on top of the current snapshot. Updates that
// arrive before the first full snapshot are dropped since they cannot produce
// a complete view.
func (c *Cell) Merge(u Update) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.view.State != ViewReady || u.ID != c.id {
		return false
	}
	if u.Version != nil && c.isStale(*u.Version) {
		return false
	}

	c.commit(u.ApplyTo(c.view.Snapshot), SourcePush)
	return true
}

// ApplyOptimistic records an accepted bid ahead of the next authoritative
// write.
func (c *Cell) ApplyOptimistic(o Optimistic) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.view.State != ViewReady {
		return false
	}

	s := c.view.Snapshot
	price := o.Price
	s.HighestBid = &price
	s.BidCount++
	if o.Close {
		s.IsClosed = true
	}

	c.view.Snapshot = s
	c.view.Overlay = OverlayPending
	c.view.LastSource = SourceOptimistic
	c.touch()
	return true
}

// RecordFailure keeps the last known good snapshot and remembers why the
// latest refresh failed.
func (c *Cell) RecordFailure(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.view.LastError = err
	c.touch()
}

// MarkNotFound moves the cell to its terminal not-found state.
func (c *Cell) MarkNotFound() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.view.State == ViewNotFound {
		return
	}
	c.view.State = ViewNotFound
	c.view.LastError = ErrAuctionNotFound
	c.touch()
}

// Watch returns a channel that always holds the latest view after a change.
// Intermediate views are coalesced. The returned func stops the watch.
func (c *Cell) Watch() (<-chan View, func()) {
	ch := make(chan View, 1)

	c.mu.Lock()
	c.watchers[ch] = struct{}{}
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.watchers, ch)
			c.mu.Unlock()
		})
	}
}

func (c *Cell) isStale(version int64) bool {
	if c.policy != RejectStale || c.view.State != ViewReady {
		return false
	}
	return version > 0 && c.view.Snapshot.Version > 0 && version < c.view.Snapshot.Version
}

// commit must be called with the lock held.
func (c *Cell) commit(s Snapshot, src Source) {
	if c.view.State == ViewReady && c.view.Snapshot.IsClosed {
		s.IsClosed = true
	}

	switch c.view.Overlay {
	case OverlayPending:
		c.view.Overlay = OverlayReconciled
		c.view.Reconciliations++
	case OverlayReconciled:
		c.view.Overlay = OverlayAuthoritative
	}

	c.view.Snapshot = s
	c.view.State = ViewReady
	c.view.LastSource = src
	c.view.LastError = nil
	c.touch()
}

// touch must be called with the lock held.
func (c *Cell) touch() {
	c.view.Revision++
	c.view.UpdatedAt = c.now()

	for ch := range c.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- c.view
	}
}
