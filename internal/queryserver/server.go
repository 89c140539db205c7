// Package queryserver exposes a read-only HTTP facade over a
// bookservice.Service: GET /bbo, GET /depth, GET /trades/last. It is
// a thin adapter over the existing query operations, not a new
// protocol, and never accepts order submissions or cancellations.
package queryserver

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"matchcore/internal/bookservice"
	"matchcore/internal/domain"
)

const defaultDepth = 10

// Server wraps a bookservice.Service behind an http.Handler.
type Server struct {
	svc    *bookservice.Service
	router *mux.Router
}

// New builds a Server routing the read-only query endpoints to svc.
func New(svc *bookservice.Service) *Server {
	s := &Server{
		svc:    svc,
		router: mux.NewRouter(),
	}
	s.router.HandleFunc("/bbo", s.handleBBO).Methods(http.MethodGet)
	s.router.HandleFunc("/depth", s.handleDepth).Methods(http.MethodGet)
	s.router.HandleFunc("/trades/last", s.handleLastTrade).Methods(http.MethodGet)
	return s
}

// ServeHTTP satisfies http.Handler, making Server usable directly
// with http.Server or httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type bboResponse struct {
	BidPrice float64 `json:"bid_price,omitempty"`
	BidQty   int64   `json:"bid_qty,omitempty"`
	AskPrice float64 `json:"ask_price,omitempty"`
	AskQty   int64   `json:"ask_qty,omitempty"`
	MidPrice float64 `json:"mid_price,omitempty"`
}

func (s *Server) handleBBO(w http.ResponseWriter, r *http.Request) {
	bbo, err := s.svc.BBO()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, bboResponse{
		BidPrice: priceToFloatIfSet(bbo.BidPrice),
		BidQty:   bbo.BidQty,
		AskPrice: priceToFloatIfSet(bbo.AskPrice),
		AskQty:   bbo.AskQty,
		MidPrice: priceToFloatIfSet(bbo.MidPrice),
	})
}

type depthLevelResponse struct {
	Price float64 `json:"price"`
	Qty   int64   `json:"qty"`
}

type depthResponse struct {
	Bids []depthLevelResponse `json:"bids"`
	Asks []depthLevelResponse `json:"asks"`
}

func (s *Server) handleDepth(w http.ResponseWriter, r *http.Request) {
	n := defaultDepth
	if raw := r.URL.Query().Get("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "invalid n query parameter", http.StatusBadRequest)
			return
		}
		n = parsed
	}

	bids, asks, err := s.svc.Depth(n)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := depthResponse{
		Bids: make([]depthLevelResponse, len(bids)),
		Asks: make([]depthLevelResponse, len(asks)),
	}
	for i, lvl := range bids {
		resp.Bids[i] = depthLevelResponse{Price: priceToFloatIfSet(lvl.Price), Qty: lvl.Qty}
	}
	for i, lvl := range asks {
		resp.Asks[i] = depthLevelResponse{Price: priceToFloatIfSet(lvl.Price), Qty: lvl.Qty}
	}
	writeJSON(w, resp)
}

type lastTradeResponse struct {
	Price     float64 `json:"price,omitempty"`
	Timestamp int64   `json:"timestamp,omitempty"`
	HasTraded bool    `json:"has_traded"`
}

func (s *Server) handleLastTrade(w http.ResponseWriter, r *http.Request) {
	price, ts, ok, err := s.svc.LastTrade()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, lastTradeResponse{
		Price:     priceToFloatIfSet(price),
		Timestamp: ts,
		HasTraded: ok,
	})
}

func writeServiceError(w http.ResponseWriter, err error) {
	log.Error().Err(err).Msg("query failed")
	http.Error(w, err.Error(), http.StatusServiceUnavailable)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func priceToFloatIfSet(p int64) float64 {
	return domain.PriceToFloat(p)
}
