// Package domain defines the core types shared by the matching engine
// and the simulation harness: orders, trades, events, and supporting
// enums/constants.
package domain

import (
	"fmt"
	"strings"
)

// --- Price representation ---
// Prices are fixed-point int64 with 4 decimal places.
// e.g. $100.0050 is stored as 1_000_050. The engine never compares or
// arithmetics on binary floating point prices; float64 only appears
// at the display/parsing boundary.

const PriceScale = 10_000

// PriceToFloat converts a fixed-point price to float64 for display.
func PriceToFloat(p int64) float64 {
	return float64(p) / float64(PriceScale)
}

// FloatToPrice converts a float64 to fixed-point price.
func FloatToPrice(f float64) int64 {
	return int64(f * float64(PriceScale))
}

// FormatPrice returns a human-readable price string.
func FormatPrice(p int64) string {
	return fmt.Sprintf("%.4f", PriceToFloat(p))
}

// --- Enums ---

type Side int8

const (
	Buy  Side = 1
	Sell Side = -1
)

func (s Side) String() string {
	if s == Buy {
		return "BUY"
	}
	return "SELL"
}

func (s Side) Opposite() Side {
	return -s
}

// MarshalJSON serializes Side as a human-readable string.
func (s Side) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON deserializes Side from a string or integer.
func (s *Side) UnmarshalJSON(data []byte) error {
	str := strings.Trim(string(data), `"`)
	switch str {
	case "BUY", "1":
		*s = Buy
	case "SELL", "-1":
		*s = Sell
	default:
		return fmt.Errorf("unknown Side: %s", str)
	}
	return nil
}

// OrderType distinguishes the four order types the matching engine
// understands. Cancellation is a distinct OrderBook operation, not an
// order type — see CancelRequest below.
type OrderType int8

const (
	LimitOrder OrderType = iota
	MarketOrder
	IOCOrder
	FOKOrder
)

func (t OrderType) String() string {
	switch t {
	case LimitOrder:
		return "LIMIT"
	case MarketOrder:
		return "MARKET"
	case IOCOrder:
		return "IOC"
	case FOKOrder:
		return "FOK"
	default:
		return "UNKNOWN"
	}
}

// MarshalJSON serializes OrderType as a human-readable string.
func (t OrderType) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

// UnmarshalJSON deserializes OrderType from a string or integer.
func (t *OrderType) UnmarshalJSON(data []byte) error {
	str := strings.Trim(string(data), `"`)
	switch str {
	case "LIMIT", "0":
		*t = LimitOrder
	case "MARKET", "1":
		*t = MarketOrder
	case "IOC", "2":
		*t = IOCOrder
	case "FOK", "3":
		*t = FOKOrder
	default:
		return fmt.Errorf("unknown OrderType: %s", str)
	}
	return nil
}

type EventType int8

const (
	EventOrderAccepted EventType = iota
	EventCancelRequest
	EventOrderCanceled
	EventTradeExecuted
	EventBBOUpdate
	EventSignal
	EventReQuote
	EventSimStart
	EventSimEnd
)

func (e EventType) String() string {
	switch e {
	case EventOrderAccepted:
		return "ORDER_ACCEPTED"
	case EventCancelRequest:
		return "CANCEL_REQUEST"
	case EventOrderCanceled:
		return "ORDER_CANCELED"
	case EventTradeExecuted:
		return "TRADE_EXECUTED"
	case EventBBOUpdate:
		return "BBO_UPDATE"
	case EventSignal:
		return "SIGNAL"
	case EventReQuote:
		return "REQUOTE"
	case EventSimStart:
		return "SIM_START"
	case EventSimEnd:
		return "SIM_END"
	default:
		return "UNKNOWN"
	}
}

// MarshalJSON serializes EventType as a human-readable string.
func (e EventType) MarshalJSON() ([]byte, error) {
	return []byte(`"` + e.String() + `"`), nil
}

// UnmarshalJSON deserializes EventType from a string or integer.
func (e *EventType) UnmarshalJSON(data []byte) error {
	str := strings.Trim(string(data), `"`)
	switch str {
	case "ORDER_ACCEPTED", "0":
		*e = EventOrderAccepted
	case "CANCEL_REQUEST", "1":
		*e = EventCancelRequest
	case "ORDER_CANCELED", "2":
		*e = EventOrderCanceled
	case "TRADE_EXECUTED", "3":
		*e = EventTradeExecuted
	case "BBO_UPDATE", "4":
		*e = EventBBOUpdate
	case "SIGNAL", "5":
		*e = EventSignal
	case "REQUOTE", "6":
		*e = EventReQuote
	case "SIM_START", "7":
		*e = EventSimStart
	case "SIM_END", "8":
		*e = EventSimEnd
	default:
		return fmt.Errorf("unknown EventType: %s", str)
	}
	return nil
}

// --- Core structures ---

// Order represents a limit, market, IOC, or FOK instruction. Ids are
// opaque 128-bit values in UUID textual form, assigned on submission
// if the caller leaves ID empty.
type Order struct {
	ID           string    `json:"id"`
	InstrumentID string    `json:"instrument_id,omitempty"`
	TraderID     string    `json:"trader_id"`
	Side         Side      `json:"side"`
	Type         OrderType `json:"type"`
	Price        int64     `json:"price"` // ignored for MARKET
	OriginalQty  int64     `json:"original_qty"`
	RemainingQty int64     `json:"remaining_qty"`
	Timestamp    int64     `json:"timestamp"` // caller-supplied submission time, nanos

	// Harness-only fields: the matching engine never reads these.
	// They let the simulation's latency model distinguish "when the
	// trader decided" from "when the order actually arrived."
	DecisionTime int64 `json:"decision_time,omitempty"`
	ArrivalTime  int64 `json:"arrival_time,omitempty"`
	QueuePos     int   `json:"queue_pos,omitempty"` // 1-based queue position at placement
}

// IsFilled returns true if the order has been fully filled.
func (o *Order) IsFilled() bool {
	return o.RemainingQty <= 0
}

// CancelRequest is a harness-level intent to cancel a resting order.
// It is never submitted to the book as an Order; the harness dispatches
// it straight to OrderBook.Cancel.
type CancelRequest struct {
	ID            string `json:"id"`
	TraderID      string `json:"trader_id"`
	InstrumentID  string `json:"instrument_id,omitempty"`
	TargetOrderID string `json:"target_order_id"`
	DecisionTime  int64  `json:"decision_time,omitempty"`
	ArrivalTime   int64  `json:"arrival_time,omitempty"`
}

// Trade represents a matched execution.
type Trade struct {
	ID           string `json:"id"`
	InstrumentID string `json:"instrument_id,omitempty"`
	BuyOrderID   string `json:"buy_order_id"`
	SellOrderID  string `json:"sell_order_id"`
	BuyTrader    string `json:"buy_trader"`
	SellTrader   string `json:"sell_trader"`
	Price        int64  `json:"price"`
	Qty          int64  `json:"qty"`
	Timestamp    int64  `json:"timestamp"`
	// Explicit passive/aggressor identity for attribution in analytics.
	PassiveOrderID   string `json:"passive_order_id,omitempty"`
	AggressorOrderID string `json:"aggressor_order_id,omitempty"`
	// Queue position of the resting (passive) order at fill time. Always
	// 1 under strict FIFO matching since the engine only ever matches the
	// current front of a level; kept for schema stability with the
	// metrics layer.
	RestingQueuePos int `json:"resting_queue_pos,omitempty"`
}

// BBO represents a best bid and offer snapshot. A zero field means
// that side (or the mid) is undefined - no resting liquidity.
type BBO struct {
	BidPrice int64 `json:"bid_price"`
	BidQty   int64 `json:"bid_qty"`
	AskPrice int64 `json:"ask_price"`
	AskQty   int64 `json:"ask_qty"`
	MidPrice int64 `json:"mid_price"`
}

// Signal represents a trading signal broadcast to all traders.
type Signal struct {
	Value    float64 `json:"value"`
	MidPrice int64   `json:"mid_price"`
}

// Event is the core unit in the event loop and event log.
type Event struct {
	SeqNo     uint64    `json:"seq_no"`
	Timestamp int64     `json:"timestamp"`
	Type      EventType `json:"type"`
	TraderID  string    `json:"trader_id,omitempty"`

	// Exactly one of these is set depending on Type.
	Order  *Order         `json:"order,omitempty"`
	Cancel *CancelRequest `json:"cancel,omitempty"`
	Trade  *Trade         `json:"trade,omitempty"`
	BBO    *BBO           `json:"bbo,omitempty"`
	Signal *Signal        `json:"signal,omitempty"`
}
