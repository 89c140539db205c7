package queryserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matchcore/internal/bookservice"
	"matchcore/internal/domain"
	"matchcore/internal/orderbook"
)

func newTestServer(t *testing.T) (*Server, func()) {
	t.Helper()
	book := orderbook.New("XYZ")
	ctx, cancel := context.WithCancel(context.Background())
	svc := bookservice.New(ctx, book)

	_, err := svc.Submit(&domain.Order{
		TraderID: "maker1", Side: domain.Buy, Type: domain.LimitOrder,
		Price: 999_000, OriginalQty: 5,
	}, 1)
	require.NoError(t, err)
	_, err = svc.Submit(&domain.Order{
		TraderID: "maker2", Side: domain.Sell, Type: domain.LimitOrder,
		Price: 1_001_000, OriginalQty: 5,
	}, 2)
	require.NoError(t, err)

	return New(svc), func() {
		cancel()
		_ = svc.Wait()
	}
}

func TestHandleBBO(t *testing.T) {
	srv, stop := newTestServer(t)
	defer stop()

	req := httptest.NewRequest(http.MethodGet, "/bbo", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body bboResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.InDelta(t, 99.9, body.BidPrice, 0.0001)
	assert.InDelta(t, 100.1, body.AskPrice, 0.0001)
}

func TestHandleDepthDefaultN(t *testing.T) {
	srv, stop := newTestServer(t)
	defer stop()

	req := httptest.NewRequest(http.MethodGet, "/depth", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body depthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Bids, 1)
	require.Len(t, body.Asks, 1)
	assert.Equal(t, int64(5), body.Bids[0].Qty)
}

func TestHandleDepthRejectsInvalidN(t *testing.T) {
	srv, stop := newTestServer(t)
	defer stop()

	req := httptest.NewRequest(http.MethodGet, "/depth?n=0", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleLastTradeBeforeAnyTrade(t *testing.T) {
	srv, stop := newTestServer(t)
	defer stop()

	req := httptest.NewRequest(http.MethodGet, "/trades/last", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body lastTradeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.HasTraded)
}

func TestHandleLastTradeAfterCross(t *testing.T) {
	book := orderbook.New("XYZ")
	ctx, cancel := context.WithCancel(context.Background())
	svc := bookservice.New(ctx, book)
	defer func() {
		cancel()
		_ = svc.Wait()
	}()

	_, err := svc.Submit(&domain.Order{
		TraderID: "maker", Side: domain.Sell, Type: domain.LimitOrder,
		Price: 1_000_000, OriginalQty: 10,
	}, 1)
	require.NoError(t, err)
	_, err = svc.Submit(&domain.Order{
		TraderID: "taker", Side: domain.Buy, Type: domain.LimitOrder,
		Price: 1_000_000, OriginalQty: 10,
	}, 2)
	require.NoError(t, err)

	srv := New(svc)
	req := httptest.NewRequest(http.MethodGet, "/trades/last", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body lastTradeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.HasTraded)
	assert.InDelta(t, 100.0, body.Price, 0.0001)
}
