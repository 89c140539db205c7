// Package bookservice hosts a single *orderbook.Book behind a
// request channel so multiple goroutines can submit, cancel, and
// query it without holding a lock themselves. One supervised
// goroutine owns the book; every other caller talks to it by
// round-tripping a request struct, the same shape the teacher uses
// to keep its own TCP session handler free of book-level locking.
package bookservice

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"matchcore/internal/domain"
	"matchcore/internal/instrument"
	"matchcore/internal/orderbook"
)

// ErrClosed is returned when a request reaches a Service whose writer
// goroutine has already exited.
var ErrClosed = errors.New("bookservice: closed")

// ErrLotViolation is wrapped by Submit rejections caused by a quantity
// that isn't a whole multiple of the hosted instrument's lot size.
var ErrLotViolation = errors.New("bookservice: quantity violates instrument lot size")

const requestChanSize = 256

// request carries one operation into the writer goroutine and a
// channel back out for its own reply. Exactly one of the op-specific
// fields is read by the writer, matched on kind.
type request struct {
	kind  kind
	order *domain.Order
	now   int64

	cancelID string

	depthN int

	reply chan response
}

type kind int

const (
	opSubmit kind = iota
	opCancel
	opBBO
	opDepth
	opLastTrade
	opTrades
)

type response struct {
	trades    []domain.Trade
	err       error
	canceled  bool
	bbo       domain.BBO
	hasBid    bool
	hasAsk    bool
	hasMid    bool
	bids      []orderbook.DepthLevel
	asks      []orderbook.DepthLevel
	lastPrice int64
	lastTime  int64
	hasTrade  bool
	allTrades []domain.Trade
}

// Service is the single-writer concurrency host around an
// *orderbook.Book. Its zero value is not usable; construct with New.
type Service struct {
	book        *orderbook.Book
	instruments *instrument.Registry
	reqs        chan request
	t           *tomb.Tomb
}

// Option configures a Service at construction.
type Option func(*Service)

// WithInstrumentRegistry attaches an instrument metadata registry.
// When set, every submitted order has its price snapped down to the
// hosted instrument's tick size and its quantity checked against the
// lot size before it ever reaches the book — the core itself stays
// oblivious to tick/lot concerns, but a live host canonicalizes input
// the way a real venue's gateway would.
func WithInstrumentRegistry(reg *instrument.Registry) Option {
	return func(s *Service) { s.instruments = reg }
}

// New starts the writer goroutine for book under t and returns a
// Service ready to accept requests. The goroutine runs until ctx is
// canceled or t is killed; Wait() returns the error the writer exited
// with. A panic inside the writer is not recovered.
func New(ctx context.Context, book *orderbook.Book, opts ...Option) *Service {
	t, ctx := tomb.WithContext(ctx)
	s := &Service{
		book: book,
		reqs: make(chan request, requestChanSize),
		t:    t,
	}
	for _, opt := range opts {
		opt(s)
	}
	t.Go(func() error {
		return s.run(ctx)
	})
	return s
}

// Wait blocks until the writer goroutine exits, returning the first
// error it reported (nil on a clean shutdown).
func (s *Service) Wait() error {
	return s.t.Wait()
}

// Stop signals the writer goroutine to exit and waits for it.
func (s *Service) Stop() error {
	s.t.Kill(nil)
	return s.t.Wait()
}

func (s *Service) run(ctx context.Context) error {
	log.Info().Str("instrument", s.book.InstrumentID).Msg("bookservice writer starting")
	defer log.Info().Str("instrument", s.book.InstrumentID).Msg("bookservice writer stopped")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.t.Dying():
			return nil
		case req := <-s.reqs:
			req.reply <- s.handle(req)
		}
	}
}

func (s *Service) handle(req request) response {
	switch req.kind {
	case opSubmit:
		if err := s.canonicalize(req.order); err != nil {
			log.Debug().Err(err).Str("order_id", req.order.ID).Msg("order rejected")
			return response{err: err}
		}
		trades, err := s.book.Submit(req.order, req.now)
		if err != nil {
			log.Debug().Err(err).Str("order_id", req.order.ID).Msg("order rejected")
		}
		s.book.AssertInvariants()
		return response{trades: trades, err: err}
	case opCancel:
		ok := s.book.Cancel(req.cancelID)
		s.book.AssertInvariants()
		return response{canceled: ok}
	case opBBO:
		bidPrice, bidQty, hasBid := s.book.BestBid()
		askPrice, askQty, hasAsk := s.book.BestAsk()
		mid, hasMid := s.book.MidPrice()
		return response{
			bbo: domain.BBO{
				BidPrice: bidPrice,
				BidQty:   bidQty,
				AskPrice: askPrice,
				AskQty:   askQty,
				MidPrice: mid,
			},
			hasBid: hasBid,
			hasAsk: hasAsk,
			hasMid: hasMid,
		}
	case opDepth:
		bids, asks := s.book.Depth(req.depthN)
		return response{bids: bids, asks: asks}
	case opLastTrade:
		price, ts, ok := s.book.LastTrade()
		return response{lastPrice: price, lastTime: ts, hasTrade: ok}
	case opTrades:
		return response{allTrades: s.book.Trades()}
	default:
		return response{err: fmt.Errorf("bookservice: unknown request kind %d", req.kind)}
	}
}

// canonicalize snaps order's price down to the hosted instrument's
// tick size and rejects it outright if its quantity doesn't divide
// evenly into the lot size. A no-op if no registry was attached or if
// the hosted instrument was never registered.
func (s *Service) canonicalize(order *domain.Order) error {
	if s.instruments == nil {
		return nil
	}
	meta, err := s.instruments.Get(s.book.InstrumentID)
	if err != nil {
		return nil
	}

	if order.Type != domain.MarketOrder {
		snapped, err := s.instruments.SnapToTick(meta.ID, order.Price)
		if err != nil {
			return err
		}
		order.Price = snapped
	}

	validLot, err := s.instruments.ValidLot(meta.ID, order.OriginalQty)
	if err != nil {
		return err
	}
	if !validLot {
		return fmt.Errorf("%w: qty %d is not a multiple of lot size %d", ErrLotViolation, order.OriginalQty, meta.LotSize)
	}
	return nil
}

func (s *Service) send(req request) (response, error) {
	req.reply = make(chan response, 1)
	select {
	case s.reqs <- req:
	case <-s.t.Dying():
		return response{}, ErrClosed
	}
	select {
	case resp := <-req.reply:
		return resp, nil
	case <-s.t.Dying():
		return response{}, ErrClosed
	}
}

// Submit enqueues an order for matching and returns the resulting
// trades, or an error if the order was rejected.
func (s *Service) Submit(order *domain.Order, now int64) ([]domain.Trade, error) {
	resp, err := s.send(request{kind: opSubmit, order: order, now: now})
	if err != nil {
		return nil, err
	}
	return resp.trades, resp.err
}

// Cancel requests removal of a resting order by id. Returns false if
// the order was not found (idempotent, matching orderbook.Book.Cancel).
func (s *Service) Cancel(orderID string) (bool, error) {
	resp, err := s.send(request{kind: opCancel, cancelID: orderID})
	if err != nil {
		return false, err
	}
	return resp.canceled, nil
}

// BBO returns a snapshot of the current best bid/offer.
func (s *Service) BBO() (domain.BBO, error) {
	resp, err := s.send(request{kind: opBBO})
	if err != nil {
		return domain.BBO{}, err
	}
	return resp.bbo, nil
}

// Depth returns up to n price levels per side.
func (s *Service) Depth(n int) (bids, asks []orderbook.DepthLevel, err error) {
	resp, err := s.send(request{kind: opDepth, depthN: n})
	if err != nil {
		return nil, nil, err
	}
	return resp.bids, resp.asks, nil
}

// LastTrade returns the most recent execution's price and timestamp.
func (s *Service) LastTrade() (price, timestamp int64, ok bool, err error) {
	resp, sendErr := s.send(request{kind: opLastTrade})
	if sendErr != nil {
		return 0, 0, false, sendErr
	}
	return resp.lastPrice, resp.lastTime, resp.hasTrade, nil
}

// Trades returns the full trade tape.
func (s *Service) Trades() ([]domain.Trade, error) {
	resp, err := s.send(request{kind: opTrades})
	if err != nil {
		return nil, err
	}
	return resp.allTrades, nil
}
