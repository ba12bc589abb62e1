package auctions

import (
	"sort"
	"sync"

	"github.com/samber/lo"
)

// Board is the registry of cells a client currently shows. Push updates are
// routed through it by auction id; updates for untracked auctions are
// dropped.
type Board struct {
	mu      sync.RWMutex
	cells   map[ID]*Cell
	options []CellOption
}

// NewBoard creates an empty board. The options are applied to every cell it
// creates.
func NewBoard(opts ...CellOption) *Board {
	return &Board{
		cells:   make(map[ID]*Cell),
		options: opts,
	}
}

// Track returns the cell for id, creating it when needed.
func (b *Board) Track(id ID) *Cell {
	b.mu.Lock()
	defer b.mu.Unlock()

	if c, ok := b.cells[id]; ok {
		return c
	}
	c := NewCell(id, b.options...)
	b.cells[id] = c
	return c
}

// Untrack stops routing updates for id.
func (b *Board) Untrack(id ID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.cells, id)
}

// Lookup returns the cell for id if it is tracked.
func (b *Board) Lookup(id ID) (*Cell, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	c, ok := b.cells[id]
	return c, ok
}

// IDs returns the tracked ids in ascending order.
func (b *Board) IDs() []ID {
	b.mu.RLock()
	ids := lo.Keys(b.cells)
	b.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// SyncResult lists what a Sync changed on the board.
type SyncResult struct {
	Added   []*Cell
	Removed []ID
}

// Sync makes the board mirror a freshly fetched list: every listed auction
// is tracked and replaced, and auctions that dropped out of the list are
// untracked.
func (b *Board) Sync(list []Snapshot) SyncResult {
	listed := lo.KeyBy(list, func(s Snapshot) ID { return s.ID })

	var res SyncResult
	b.mu.Lock()
	for id := range b.cells {
		if _, ok := listed[id]; !ok {
			delete(b.cells, id)
			res.Removed = append(res.Removed, id)
		}
	}
	for _, s := range list {
		if _, ok := b.cells[s.ID]; !ok {
			c := NewCell(s.ID, b.options...)
			b.cells[s.ID] = c
			res.Added = append(res.Added, c)
		}
	}
	cells := lo.MapValues(b.cells, func(c *Cell, _ ID) *Cell { return c })
	b.mu.Unlock()

	for _, s := range list {
		cells[s.ID].Replace(s, SourceList)
	}
	return res
}

// Connected implements Sink.
func (b *Board) Connected() {}

// Deliver implements Sink by routing the update to its cell.
func (b *Board) Deliver(u Update) {
	if c, ok := b.Lookup(u.ID); ok {
		c.Merge(u)
	}
}
