// Package priceladder implements the FIFO price-level queue and the
// ordered per-side price ladder that the matching engine books resting
// orders against.
package priceladder

import (
	"container/list"

	"github.com/tidwall/btree"

	"matchcore/internal/domain"
)

// PriceLevel is a FIFO queue of live resting orders sharing one price.
// Arbitrary removal by order id is O(1) via the node index, which is
// the upgrade over a plain slice/queue that arbitrary cancellation
// requires.
type PriceLevel struct {
	Price    int64
	queue    *list.List
	nodes    map[string]*list.Element
	totalQty int64
}

func newPriceLevel(price int64) *PriceLevel {
	return &PriceLevel{
		Price: price,
		queue: list.New(),
		nodes: make(map[string]*list.Element),
	}
}

// Enqueue appends a resting order to the back of the queue.
func (pl *PriceLevel) Enqueue(o *domain.Order) {
	el := pl.queue.PushBack(o)
	pl.nodes[o.ID] = el
	pl.totalQty += o.RemainingQty
}

// Front returns the order at the head of the queue, or nil if empty.
func (pl *PriceLevel) Front() *domain.Order {
	if el := pl.queue.Front(); el != nil {
		return el.Value.(*domain.Order)
	}
	return nil
}

// Fill reduces the front order's remaining quantity by qty and keeps
// TotalQty in sync. If the front order is fully exhausted it is
// removed from the queue; drained reports whether that happened.
func (pl *PriceLevel) Fill(qty int64) (front *domain.Order, drained bool) {
	el := pl.queue.Front()
	o := el.Value.(*domain.Order)
	o.RemainingQty -= qty
	pl.totalQty -= qty
	if o.RemainingQty <= 0 {
		pl.queue.Remove(el)
		delete(pl.nodes, o.ID)
		return o, true
	}
	return o, false
}

// Remove deletes an arbitrary order from the queue by id, in O(1) via
// the node index. Returns nil if the id is not present at this level.
func (pl *PriceLevel) Remove(id string) *domain.Order {
	el, ok := pl.nodes[id]
	if !ok {
		return nil
	}
	o := el.Value.(*domain.Order)
	pl.queue.Remove(el)
	delete(pl.nodes, id)
	pl.totalQty -= o.RemainingQty
	return o
}

// Empty reports whether the level has no resting orders left.
func (pl *PriceLevel) Empty() bool {
	return pl.queue.Len() == 0
}

// TotalQty returns the sum of RemainingQty across all orders at this level.
func (pl *PriceLevel) TotalQty() int64 {
	return pl.totalQty
}

// Len returns the number of resting orders at this level.
func (pl *PriceLevel) Len() int {
	return pl.queue.Len()
}

// Orders returns the resting orders at this level in FIFO order. Used
// by depth/debug tooling and invariant checks, not by the matching loop.
func (pl *PriceLevel) Orders() []*domain.Order {
	out := make([]*domain.Order, 0, pl.queue.Len())
	for el := pl.queue.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(*domain.Order))
	}
	return out
}

// Ladder is a balanced ordered map of price -> PriceLevel for one side
// of the book. The comparator supplied at construction encodes the
// side's natural best-first order, so a full ascending scan over the
// tree already visits levels best price first.
type Ladder struct {
	tree *btree.BTreeG[*PriceLevel]
}

// NewBidLadder returns a ladder ordered highest price first.
func NewBidLadder() *Ladder {
	return &Ladder{tree: btree.NewBTreeG(func(a, b *PriceLevel) bool {
		return a.Price > b.Price
	})}
}

// NewAskLadder returns a ladder ordered lowest price first.
func NewAskLadder() *Ladder {
	return &Ladder{tree: btree.NewBTreeG(func(a, b *PriceLevel) bool {
		return a.Price < b.Price
	})}
}

// Best returns the best (first-priority) price level, if any.
func (l *Ladder) Best() (*PriceLevel, bool) {
	return l.tree.Min()
}

// Get returns the level at an exact price, if one exists.
func (l *Ladder) Get(price int64) (*PriceLevel, bool) {
	return l.tree.Get(&PriceLevel{Price: price})
}

// GetOrCreate returns the level at price, creating an empty one if needed.
func (l *Ladder) GetOrCreate(price int64) *PriceLevel {
	if lvl, ok := l.tree.Get(&PriceLevel{Price: price}); ok {
		return lvl
	}
	lvl := newPriceLevel(price)
	l.tree.Set(lvl)
	return lvl
}

// Remove deletes the level at an exact price.
func (l *Ladder) Remove(price int64) {
	l.tree.Delete(&PriceLevel{Price: price})
}

// Len returns the number of distinct price levels.
func (l *Ladder) Len() int {
	return l.tree.Len()
}

// Levels returns up to n price levels in best-first order. n <= 0
// means all levels.
func (l *Ladder) Levels(n int) []*PriceLevel {
	out := make([]*PriceLevel, 0)
	l.tree.Scan(func(lvl *PriceLevel) bool {
		out = append(out, lvl)
		return n <= 0 || len(out) < n
	})
	return out
}
