package bookservice

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matchcore/internal/domain"
	"matchcore/internal/instrument"
	"matchcore/internal/orderbook"
)

func newTestService(t *testing.T) (*Service, func()) {
	t.Helper()
	var n int
	idFunc := func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
	book := orderbook.New("XYZ", orderbook.WithIDFunc(idFunc))
	ctx, cancel := context.WithCancel(context.Background())
	svc := New(ctx, book)
	return svc, func() {
		cancel()
		_ = svc.Wait()
	}
}

func mkOrder(trader string, side domain.Side, typ domain.OrderType, price, qty int64) *domain.Order {
	return &domain.Order{
		TraderID:    trader,
		Side:        side,
		Type:        typ,
		Price:       price,
		OriginalQty: qty,
	}
}

func TestServiceSubmitMatchesRestingOrder(t *testing.T) {
	svc, stop := newTestService(t)
	defer stop()

	_, err := svc.Submit(mkOrder("maker", domain.Sell, domain.LimitOrder, 1_000_000, 10), 1)
	require.NoError(t, err)

	trades, err := svc.Submit(mkOrder("taker", domain.Buy, domain.LimitOrder, 1_000_000, 10), 2)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, int64(10), trades[0].Qty)
}

func TestServiceCancelIsIdempotent(t *testing.T) {
	svc, stop := newTestService(t)
	defer stop()

	resting := mkOrder("maker", domain.Sell, domain.LimitOrder, 1_000_000, 10)
	_, err := svc.Submit(resting, 1)
	require.NoError(t, err)
	require.NotEmpty(t, resting.ID)

	bids, asks, err := svc.Depth(5)
	require.NoError(t, err)
	assert.Empty(t, bids)
	require.Len(t, asks, 1)

	ok, err := svc.Cancel(resting.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.Cancel(resting.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestServiceBBOReflectsRestingLiquidity(t *testing.T) {
	svc, stop := newTestService(t)
	defer stop()

	_, err := svc.Submit(mkOrder("maker1", domain.Buy, domain.LimitOrder, 999_000, 5), 1)
	require.NoError(t, err)
	_, err = svc.Submit(mkOrder("maker2", domain.Sell, domain.LimitOrder, 1_001_000, 5), 2)
	require.NoError(t, err)

	bbo, err := svc.BBO()
	require.NoError(t, err)
	assert.Equal(t, int64(999_000), bbo.BidPrice)
	assert.Equal(t, int64(1_001_000), bbo.AskPrice)
	assert.Equal(t, int64(1_000_000), bbo.MidPrice)
}

func TestServiceLastTradeAndTape(t *testing.T) {
	svc, stop := newTestService(t)
	defer stop()

	_, err := svc.Submit(mkOrder("maker", domain.Sell, domain.LimitOrder, 1_000_000, 10), 1)
	require.NoError(t, err)
	_, err = svc.Submit(mkOrder("taker", domain.Buy, domain.LimitOrder, 1_000_000, 10), 2)
	require.NoError(t, err)

	price, _, ok, err := svc.LastTrade()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(1_000_000), price)

	trades, err := svc.Trades()
	require.NoError(t, err)
	assert.Len(t, trades, 1)
}

func TestServiceRejectsAfterStop(t *testing.T) {
	svc, stop := newTestService(t)
	stop()

	_, err := svc.Submit(mkOrder("taker", domain.Buy, domain.LimitOrder, 1_000_000, 1), 1)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestServiceCanonicalizeSnapsPriceToTick(t *testing.T) {
	var n int
	idFunc := func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
	book := orderbook.New("XYZ", orderbook.WithIDFunc(idFunc))
	reg := instrument.NewRegistry()
	require.NoError(t, reg.Register(instrument.Metadata{ID: "XYZ", TickSize: 100, LotSize: 10}))

	ctx, cancel := context.WithCancel(context.Background())
	svc := New(ctx, book, WithInstrumentRegistry(reg))
	defer func() {
		cancel()
		_ = svc.Wait()
	}()

	resting := mkOrder("maker", domain.Sell, domain.LimitOrder, 1_000_050, 10)
	_, err := svc.Submit(resting, 1)
	require.NoError(t, err)

	_, asks, err := svc.Depth(1)
	require.NoError(t, err)
	require.Len(t, asks, 1)
	assert.Equal(t, int64(1_000_000), asks[0].Price)
}

func TestServiceCanonicalizeRejectsLotViolation(t *testing.T) {
	svc, stop := newTestServiceWithInstrument(t, instrument.Metadata{ID: "XYZ", TickSize: 100, LotSize: 10})
	defer stop()

	_, err := svc.Submit(mkOrder("taker", domain.Buy, domain.LimitOrder, 1_000_000, 15), 1)
	assert.ErrorIs(t, err, ErrLotViolation)
}

func newTestServiceWithInstrument(t *testing.T, meta instrument.Metadata) (*Service, func()) {
	t.Helper()
	var n int
	idFunc := func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
	book := orderbook.New(meta.ID, orderbook.WithIDFunc(idFunc))
	reg := instrument.NewRegistry()
	require.NoError(t, reg.Register(meta))

	ctx, cancel := context.WithCancel(context.Background())
	svc := New(ctx, book, WithInstrumentRegistry(reg))
	return svc, func() {
		cancel()
		_ = svc.Wait()
	}
}

func TestServiceConcurrentSubmitsSerialize(t *testing.T) {
	svc, stop := newTestService(t)
	defer stop()

	_, err := svc.Submit(mkOrder("maker", domain.Sell, domain.LimitOrder, 1_000_000, 1000), 1)
	require.NoError(t, err)

	done := make(chan struct{})
	for i := 0; i < 20; i++ {
		go func() {
			_, _ = svc.Submit(mkOrder("taker", domain.Buy, domain.LimitOrder, 1_000_000, 10), 2)
			done <- struct{}{}
		}()
	}
	for i := 0; i < 20; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for concurrent submits")
		}
	}

	trades, err := svc.Trades()
	require.NoError(t, err)
	assert.Len(t, trades, 20)
}
