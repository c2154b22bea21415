package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/marketscope/derivscope/internal/adapters"
)

// defaultArbSizeUSD is the notional used when the request omits ?size=.
const defaultArbSizeUSD = 10_000

// arbBookDepth is how many levels per side the arbitrage walk requests.
const arbBookDepth = 50

type errorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("json encode failed")
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	requestID, _ := r.Context().Value(requestIDKey{}).(string)
	s.writeJSON(w, status, errorResponse{
		Error:     http.StatusText(status),
		Message:   message,
		RequestID: requestID,
		Timestamp: time.Now().UTC(),
	})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	s.writeError(w, r, http.StatusNotFound, "no such endpoint")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	venues := make([]string, 0, len(s.deps.Exchanges))
	for _, ex := range s.deps.Exchanges {
		venues = append(venues, ex.Name())
	}

	health := map[string]interface{}{
		"status":    "ok",
		"uptime":    time.Since(s.started).Round(time.Second).String(),
		"venues":    venues,
		"timestamp": time.Now().UTC(),
	}
	if s.deps.Cache != nil {
		prices, oi := s.deps.Cache.SnapshotCounts()
		health["cached_price_series"] = len(prices)
		health["cached_oi_series"] = len(oi)
	}
	s.writeJSON(w, http.StatusOK, health)
}

func (s *Server) handleRegime(w http.ResponseWriter, r *http.Request) {
	analysis := s.deps.Regime.Last()
	if analysis == nil {
		s.writeError(w, r, http.StatusServiceUnavailable, "no regime analysis yet")
		return
	}
	s.writeJSON(w, http.StatusOK, analysis)
}

func (s *Server) handleRotation(w http.ResponseWriter, r *http.Request) {
	signal := s.deps.Rotation.Last()
	if signal == nil {
		s.writeError(w, r, http.StatusServiceUnavailable, "no rotation detection yet")
		return
	}
	s.writeJSON(w, http.StatusOK, signal)
}

func (s *Server) handleSqueeze(w http.ResponseWriter, r *http.Request) {
	symbol := symbolFromRequest(r)
	signals := s.deps.Scanner.Scan(r.Context(), []string{symbol})
	if len(signals) == 0 {
		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"symbol": symbol,
			"signal": nil,
		})
		return
	}
	s.writeJSON(w, http.StatusOK, signals[0])
}

func (s *Server) handlePressure(w http.ResponseWriter, r *http.Request) {
	symbol := symbolFromRequest(r)
	pressure, err := s.deps.Pressure.Calculate(r.Context(), symbol)
	if err != nil {
		s.writeError(w, r, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, pressure)
}

func (s *Server) handleArbitrage(w http.ResponseWriter, r *http.Request) {
	symbol := symbolFromRequest(r)

	sizeUSD := float64(defaultArbSizeUSD)
	if raw := r.URL.Query().Get("size"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil || parsed <= 0 {
			s.writeError(w, r, http.StatusBadRequest, "size must be a positive number")
			return
		}
		sizeUSD = parsed
	}

	books, price := s.fetchBooks(r, symbol)
	if len(books) < 2 {
		s.writeError(w, r, http.StatusBadGateway, "need order books from at least two venues")
		return
	}
	if price <= 0 {
		s.writeError(w, r, http.StatusBadGateway, "no price reference available")
		return
	}

	s.writeJSON(w, http.StatusOK, s.deps.Arb.Analyze(symbol, books, sizeUSD, price, 0))
}

// fetchBooks pulls depth from every venue concurrently; venues that fail are
// skipped. The price reference comes from the cache when seeded, otherwise
// from the mid of the first book.
func (s *Server) fetchBooks(r *http.Request, symbol string) (map[string]*adapters.OrderBook, float64) {
	var mu sync.Mutex
	books := make(map[string]*adapters.OrderBook)

	var wg sync.WaitGroup
	for _, ex := range s.deps.Exchanges {
		wg.Add(1)
		go func(ex adapters.Exchange) {
			defer wg.Done()
			book, err := ex.OrderBook(r.Context(), symbol, arbBookDepth)
			if err != nil {
				log.Warn().Err(err).Str("venue", ex.Name()).Str("symbol", symbol).
					Msg("order book fetch failed")
				return
			}
			mu.Lock()
			books[ex.Name()] = book
			mu.Unlock()
		}(ex)
	}
	wg.Wait()

	if s.deps.Cache != nil {
		if price, ok := s.deps.Cache.CachedPrice(symbol); ok {
			return books, price
		}
	}
	for _, book := range books {
		if bid, ask := book.BestBid(), book.BestAsk(); bid > 0 && ask > 0 {
			return books, (bid + ask) / 2
		}
	}
	return books, 0
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": s.deps.Alerts.Active(),
	})
}
