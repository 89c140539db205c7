// Package orderbook implements a single-instrument limit order book
// with price-time priority matching. The book is synchronous and not
// safe for concurrent use; a caller that needs concurrent submission
// should serialize access externally (see internal/bookservice).
package orderbook

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"matchcore/internal/domain"
	"matchcore/internal/priceladder"
)

// ErrInvalidOrder is wrapped by every validation rejection.
var ErrInvalidOrder = errors.New("orderbook: invalid order")

// IDFunc generates an opaque id for a new order or trade.
type IDFunc func() string

// Option configures a Book at construction.
type Option func(*Book)

// WithIDFunc overrides the book's id generator. The default draws
// RFC4122 UUIDs from crypto/rand. Simulation callers that need
// byte-for-byte reproducible runs should inject a generator seeded
// from their own scenario seed instead.
func WithIDFunc(f IDFunc) Option {
	return func(b *Book) { b.newID = f }
}

// DepthLevel is one row of a depth(n) query result.
type DepthLevel struct {
	Price int64 `json:"price"`
	Qty   int64 `json:"qty"`
}

// Book is a single-instrument limit order book.
type Book struct {
	InstrumentID string

	bids *priceladder.Ladder
	asks *priceladder.Ladder

	// orderIndex holds exactly the orders currently resting
	// (Booked or PartiallyFilledInPlace) in one of the ladders above.
	orderIndex map[string]*domain.Order

	trades []domain.Trade

	lastTradePrice int64
	lastTradeTime  int64
	hasTraded      bool

	newID IDFunc
}

// New creates an empty book for one instrument.
func New(instrumentID string, opts ...Option) *Book {
	if instrumentID == "" {
		panic("orderbook: instrument id must not be empty")
	}
	b := &Book{
		InstrumentID: instrumentID,
		bids:         priceladder.NewBidLadder(),
		asks:         priceladder.NewAskLadder(),
		orderIndex:   make(map[string]*domain.Order),
		newID:        func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Book) validate(order *domain.Order) error {
	if order == nil {
		return fmt.Errorf("%w: nil order", ErrInvalidOrder)
	}
	if order.OriginalQty <= 0 {
		return fmt.Errorf("%w: quantity must be positive, got %d", ErrInvalidOrder, order.OriginalQty)
	}
	if order.Side != domain.Buy && order.Side != domain.Sell {
		return fmt.Errorf("%w: unknown side %d", ErrInvalidOrder, order.Side)
	}
	switch order.Type {
	case domain.LimitOrder, domain.IOCOrder, domain.FOKOrder:
		if order.Price < 0 {
			return fmt.Errorf("%w: negative price %d", ErrInvalidOrder, order.Price)
		}
	case domain.MarketOrder:
		// price ignored
	default:
		return fmt.Errorf("%w: unknown order type %d", ErrInvalidOrder, order.Type)
	}
	return nil
}

func (b *Book) ladderFor(side domain.Side) *priceladder.Ladder {
	if side == domain.Buy {
		return b.bids
	}
	return b.asks
}

func (b *Book) oppositeLadder(side domain.Side) *priceladder.Ladder {
	return b.ladderFor(side.Opposite())
}

// Submit accepts a new order, matches it against resting liquidity
// under price-time priority, and returns the trades it generated. now
// is the caller-supplied submission timestamp; callers should keep it
// monotonically nondecreasing across calls, though the book's own
// FIFO tie-break never depends on it — ties within a price level are
// broken by call order, not by comparing timestamps.
func (b *Book) Submit(order *domain.Order, now int64) ([]domain.Trade, error) {
	if err := b.validate(order); err != nil {
		return nil, err
	}
	if order.ID == "" {
		order.ID = b.newID()
	}
	order.InstrumentID = b.InstrumentID
	order.Timestamp = now
	order.RemainingQty = order.OriginalQty

	crossing := b.classifyCrossing(order)

	if order.Type == domain.FOKOrder && crossing && !b.fokFeasible(order) {
		return []domain.Trade{}, nil
	}

	var trades []domain.Trade
	if crossing {
		trades = b.match(order, now)
	}

	if order.RemainingQty > 0 && order.Type == domain.LimitOrder {
		b.rest(order)
	}

	if trades == nil {
		trades = []domain.Trade{}
	}
	return trades, nil
}

// classifyCrossing reports whether order would immediately cross the
// opposite side of the book. MARKET orders always cross if there is
// anything to match against; LIMIT/IOC/FOK cross only if their limit
// touches the opposite best.
func (b *Book) classifyCrossing(order *domain.Order) bool {
	opposite := b.oppositeLadder(order.Side)
	best, ok := opposite.Best()
	if !ok {
		return false
	}
	if order.Type == domain.MarketOrder {
		return true
	}
	if order.Side == domain.Buy {
		return order.Price >= best.Price
	}
	return order.Price <= best.Price
}

// fokFeasible walks the opposite ladder best-first, summing available
// quantity at levels the order's limit still permits, until either the
// order's full quantity is covered (feasible) or the walk runs out of
// eligible levels (infeasible). This is the FOK pre-check: it never
// mutates book state, and Submit only proceeds to match() once this
// has confirmed the fill can be completed atomically.
func (b *Book) fokFeasible(order *domain.Order) bool {
	opposite := b.oppositeLadder(order.Side)
	var available int64
	for _, lvl := range opposite.Levels(0) {
		if order.Side == domain.Buy && lvl.Price > order.Price {
			break
		}
		if order.Side == domain.Sell && lvl.Price < order.Price {
			break
		}
		available += lvl.TotalQty()
		if available >= order.RemainingQty {
			return true
		}
	}
	return available >= order.RemainingQty
}

// match runs the price-time priority matching loop. The resting
// (passive) order's price always sets the trade's execution price;
// the aggressor never receives more price improvement than the book
// already offered.
func (b *Book) match(incoming *domain.Order, now int64) []domain.Trade {
	var trades []domain.Trade
	opposite := b.oppositeLadder(incoming.Side)

	for incoming.RemainingQty > 0 {
		level, ok := opposite.Best()
		if !ok {
			break
		}
		if incoming.Type != domain.MarketOrder {
			if incoming.Side == domain.Buy && incoming.Price < level.Price {
				break
			}
			if incoming.Side == domain.Sell && incoming.Price > level.Price {
				break
			}
		}

		resting := level.Front()
		tradeQty := min64(incoming.RemainingQty, resting.RemainingQty)
		incoming.RemainingQty -= tradeQty
		_, drained := level.Fill(tradeQty)

		trade := domain.Trade{
			ID:               b.newID(),
			InstrumentID:     b.InstrumentID,
			Price:            level.Price,
			Qty:              tradeQty,
			Timestamp:        now,
			AggressorOrderID: incoming.ID,
			PassiveOrderID:   resting.ID,
			RestingQueuePos:  1,
		}
		if incoming.Side == domain.Buy {
			trade.BuyOrderID, trade.SellOrderID = incoming.ID, resting.ID
			trade.BuyTrader, trade.SellTrader = incoming.TraderID, resting.TraderID
		} else {
			trade.SellOrderID, trade.BuyOrderID = incoming.ID, resting.ID
			trade.SellTrader, trade.BuyTrader = incoming.TraderID, resting.TraderID
		}

		if drained {
			delete(b.orderIndex, resting.ID)
		}

		trades = append(trades, trade)
		b.trades = append(b.trades, trade)
		b.lastTradePrice = trade.Price
		b.lastTradeTime = trade.Timestamp
		b.hasTraded = true

		if level.Empty() {
			opposite.Remove(level.Price)
		}
	}
	return trades
}

func (b *Book) rest(order *domain.Order) {
	level := b.ladderFor(order.Side).GetOrCreate(order.Price)
	level.Enqueue(order)
	b.orderIndex[order.ID] = order
}

// Cancel removes a resting order by id. It is idempotent: canceling an
// id that is absent, already filled, or already canceled returns
// false and changes no state.
func (b *Book) Cancel(orderID string) bool {
	order, ok := b.orderIndex[orderID]
	if !ok {
		return false
	}
	ladder := b.ladderFor(order.Side)
	level, ok := ladder.Get(order.Price)
	if !ok {
		panic(fmt.Sprintf("orderbook: invariant violation: indexed order %s has no price level at %d", orderID, order.Price))
	}
	removed := level.Remove(orderID)
	if removed == nil {
		panic(fmt.Sprintf("orderbook: invariant violation: order %s indexed but absent from its price level", orderID))
	}
	if level.Empty() {
		ladder.Remove(order.Price)
	}
	delete(b.orderIndex, orderID)
	return true
}

// BestBid returns the best bid price and aggregate quantity, if any.
func (b *Book) BestBid() (price, qty int64, ok bool) {
	lvl, found := b.bids.Best()
	if !found {
		return 0, 0, false
	}
	return lvl.Price, lvl.TotalQty(), true
}

// BestAsk returns the best ask price and aggregate quantity, if any.
func (b *Book) BestAsk() (price, qty int64, ok bool) {
	lvl, found := b.asks.Best()
	if !found {
		return 0, 0, false
	}
	return lvl.Price, lvl.TotalQty(), true
}

// Spread returns ask - bid. Undefined (ok=false) if either side is empty.
func (b *Book) Spread() (int64, bool) {
	bidPrice, _, bidOK := b.BestBid()
	askPrice, _, askOK := b.BestAsk()
	if !bidOK || !askOK {
		return 0, false
	}
	return askPrice - bidPrice, true
}

// MidPrice returns (bid+ask)/2. Undefined (ok=false) if either side is empty.
func (b *Book) MidPrice() (int64, bool) {
	bidPrice, _, bidOK := b.BestBid()
	askPrice, _, askOK := b.BestAsk()
	if !bidOK || !askOK {
		return 0, false
	}
	return (bidPrice + askPrice) / 2, true
}

// Depth returns up to n price levels per side, best-first, with
// aggregate resting quantity at each level. n <= 0 returns all levels.
func (b *Book) Depth(n int) (bids, asks []DepthLevel) {
	for _, lvl := range b.bids.Levels(n) {
		bids = append(bids, DepthLevel{Price: lvl.Price, Qty: lvl.TotalQty()})
	}
	for _, lvl := range b.asks.Levels(n) {
		asks = append(asks, DepthLevel{Price: lvl.Price, Qty: lvl.TotalQty()})
	}
	return bids, asks
}

// LastTrade returns the price and timestamp of the most recent trade.
// Undefined (ok=false) if no trade has ever occurred.
func (b *Book) LastTrade() (price, timestamp int64, ok bool) {
	return b.lastTradePrice, b.lastTradeTime, b.hasTraded
}

// Trades returns a copy of the full trade tape recorded so far.
func (b *Book) Trades() []domain.Trade {
	out := make([]domain.Trade, len(b.trades))
	copy(out, b.trades)
	return out
}

// QueuePosition returns the 1-based position of a resting order within
// its price level, or 0 if the order is not currently resting.
func (b *Book) QueuePosition(orderID string) int {
	order, ok := b.orderIndex[orderID]
	if !ok {
		return 0
	}
	level, ok := b.ladderFor(order.Side).Get(order.Price)
	if !ok {
		return 0
	}
	for i, o := range level.Orders() {
		if o.ID == orderID {
			return i + 1
		}
	}
	return 0
}

// AssertInvariants panics if any structural invariant is violated.
// The engine maintains these on every call; this is for tests and for
// callers that want a cheap consistency check after a batch of
// operations.
func (b *Book) AssertInvariants() {
	b.assertSide(domain.Buy, b.bids)
	b.assertSide(domain.Sell, b.asks)
	b.assertNotCrossed()
	b.assertIndexConsistency()
}

func (b *Book) assertSide(side domain.Side, ladder *priceladder.Ladder) {
	levels := ladder.Levels(0)
	var prev int64
	for i, lvl := range levels {
		if lvl.Empty() {
			panic(fmt.Sprintf("orderbook: invariant violation: empty price level %d left in %s ladder", lvl.Price, side))
		}
		var sum int64
		for _, o := range lvl.Orders() {
			if o.RemainingQty <= 0 {
				panic(fmt.Sprintf("orderbook: invariant violation: order %s has non-positive remaining qty %d", o.ID, o.RemainingQty))
			}
			sum += o.RemainingQty
		}
		if sum != lvl.TotalQty() {
			panic(fmt.Sprintf("orderbook: invariant violation: level %d totalQty %d != sum of orders %d", lvl.Price, lvl.TotalQty(), sum))
		}
		if i > 0 {
			ordered := prev > lvl.Price
			if side == domain.Sell {
				ordered = prev < lvl.Price
			}
			if !ordered {
				panic(fmt.Sprintf("orderbook: invariant violation: %s ladder not sorted best-first at price %d", side, lvl.Price))
			}
		}
		prev = lvl.Price
	}
}

func (b *Book) assertNotCrossed() {
	bidPrice, _, bidOK := b.BestBid()
	askPrice, _, askOK := b.BestAsk()
	if bidOK && askOK && bidPrice >= askPrice {
		panic(fmt.Sprintf("orderbook: invariant violation: book crossed, bid %d >= ask %d", bidPrice, askPrice))
	}
}

func (b *Book) assertIndexConsistency() {
	count := 0
	for _, lvl := range append(b.bids.Levels(0), b.asks.Levels(0)...) {
		for _, o := range lvl.Orders() {
			count++
			if _, ok := b.orderIndex[o.ID]; !ok {
				panic(fmt.Sprintf("orderbook: invariant violation: resting order %s missing from id index", o.ID))
			}
		}
	}
	if count != len(b.orderIndex) {
		panic(fmt.Sprintf("orderbook: invariant violation: id index has %d entries, ladders have %d resting orders", len(b.orderIndex), count))
	}
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
