// Package trader implements trading agents that react to signals
// with configurable latency.
package trader

import (
	"math/rand"
	"sort"

	"github.com/google/uuid"

	"matchcore/internal/domain"
	"matchcore/internal/latency"
)

// Agent represents a trader with latency and a strategy.
type Agent struct {
	ID       string
	Latency  *latency.Model
	Strategy *Strategy

	rng *rand.Rand

	// Active orders this agent has on the book.
	ActiveOrders map[string]*domain.Order
}

// NewAgent creates a new trading agent. idBase is folded into the
// agent's rng seed so two agents started from the same scenario seed
// still draw distinct, reproducible id streams.
func NewAgent(id string, lat *latency.Model, seed int64, idBase uint64) *Agent {
	return &Agent{
		ID:           id,
		Latency:      lat,
		Strategy:     NewStrategy(),
		rng:          rand.New(rand.NewSource(seed + int64(idBase))),
		ActiveOrders: make(map[string]*domain.Order),
	}
}

// allocateID draws a UUID from the agent's seeded rng rather than
// crypto/rand, so two runs started from the same seed produce
// byte-identical order ids.
func (a *Agent) allocateID() string {
	id, err := uuid.NewRandomFromReader(a.rng)
	if err != nil {
		panic("trader: id generation failed: " + err.Error())
	}
	return id.String()
}

// OnSignal processes a signal event and returns orders and cancel
// requests to submit. Returned values have DecisionTime set; the
// caller applies latency to get ArrivalTime.
func (a *Agent) OnSignal(signal *domain.Signal, bbo *domain.BBO, currentTime int64) ([]*domain.Order, []*domain.CancelRequest) {
	if bbo.BidPrice == 0 || bbo.AskPrice == 0 {
		return nil, nil // no market to trade against
	}

	return a.Strategy.Decide(a, signal, bbo, currentTime)
}

// OnFill notifies the agent that one of its orders was filled.
// Note: RemainingQty is already updated by the matching engine since
// we share the same *Order pointer. We only clean up ActiveOrders.
func (a *Agent) OnFill(trade *domain.Trade, orderID string) {
	order, exists := a.ActiveOrders[orderID]
	if !exists {
		return
	}
	if order.RemainingQty <= 0 {
		delete(a.ActiveOrders, orderID)
	}
}

// OnCancelAck notifies the agent that one of its orders was cancelled.
func (a *Agent) OnCancelAck(orderID string) {
	delete(a.ActiveOrders, orderID)
}

// Strategy defines the simple post-at-best + rebalance logic.
type Strategy struct {
	// ReQuoteInterval: how long to wait before re-quoting (in nanos).
	ReQuoteIntervalNs int64
	// CancelTimeoutNs: cancel unfilled orders after this duration.
	CancelTimeoutNs int64
	// CrossThreshold: if signal exceeds this, cross with market order.
	CrossThreshold float64
	// TargetQty: quantity to post.
	TargetQty int64

	lastSignalValue float64
	lastActionTime  int64
}

// NewStrategy creates a strategy with default parameters.
func NewStrategy() *Strategy {
	return &Strategy{
		ReQuoteIntervalNs: latency.MsToNs(100),
		CancelTimeoutNs:   latency.MsToNs(500),
		CrossThreshold:    1.0,
		TargetQty:         5,
	}
}

// Decide generates orders and cancel requests based on the current
// signal and book state.
func (s *Strategy) Decide(agent *Agent, signal *domain.Signal, bbo *domain.BBO, currentTime int64) ([]*domain.Order, []*domain.CancelRequest) {
	var orders []*domain.Order
	var cancels []*domain.CancelRequest

	// 1. Cancel stale orders that have been resting too long.
	// Sort keys for deterministic iteration.
	activeIDs := make([]string, 0, len(agent.ActiveOrders))
	for id := range agent.ActiveOrders {
		activeIDs = append(activeIDs, id)
	}
	sort.Strings(activeIDs)
	for _, id := range activeIDs {
		order := agent.ActiveOrders[id]
		age := currentTime - order.DecisionTime
		if age > s.CancelTimeoutNs {
			cancels = append(cancels, &domain.CancelRequest{
				ID:            agent.allocateID(),
				TraderID:      agent.ID,
				TargetOrderID: id,
				DecisionTime:  currentTime,
			})
		}
	}

	// 2. Decide action based on signal.
	// Strong signal → cross with market order.
	if signal.Value > s.CrossThreshold || signal.Value < -s.CrossThreshold {
		var side domain.Side
		if signal.Value > 0 {
			side = domain.Buy
		} else {
			side = domain.Sell
		}

		marketOrder := &domain.Order{
			ID:           agent.allocateID(),
			TraderID:     agent.ID,
			Side:         side,
			Type:         domain.MarketOrder,
			OriginalQty:  s.TargetQty,
			DecisionTime: currentTime,
		}
		orders = append(orders, marketOrder)
		s.lastSignalValue = signal.Value
		s.lastActionTime = currentTime
		return orders, cancels
	}

	// 3. Otherwise, post limit orders at best bid/ask.
	// Only if we don't already have orders on this side.
	hasBid, hasAsk := false, false
	for _, id := range activeIDs {
		o := agent.ActiveOrders[id]
		if o.Side == domain.Buy {
			hasBid = true
		}
		if o.Side == domain.Sell {
			hasAsk = true
		}
	}

	if !hasBid && bbo.BidPrice > 0 {
		bidOrder := &domain.Order{
			ID:           agent.allocateID(),
			TraderID:     agent.ID,
			Side:         domain.Buy,
			Type:         domain.LimitOrder,
			Price:        bbo.BidPrice,
			OriginalQty:  s.TargetQty,
			DecisionTime: currentTime,
		}
		orders = append(orders, bidOrder)
	}

	if !hasAsk && bbo.AskPrice > 0 {
		askOrder := &domain.Order{
			ID:           agent.allocateID(),
			TraderID:     agent.ID,
			Side:         domain.Sell,
			Type:         domain.LimitOrder,
			Price:        bbo.AskPrice,
			OriginalQty:  s.TargetQty,
			DecisionTime: currentTime,
		}
		orders = append(orders, askOrder)
	}

	s.lastSignalValue = signal.Value
	s.lastActionTime = currentTime
	return orders, cancels
}
