package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/henrysouchien/portfolio-risk-engine/internal/domain"
	"github.com/henrysouchien/portfolio-risk-engine/internal/modules/contracts"
)

func (s *Server) handleGetFuturesMonths(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	months, err := s.catalog.ListMonths(symbol, r.URL.Query().Get("session"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "symbol": symbol, "months": months})
}

func (s *Server) handleGetFuturesCurve(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	spec, ok := s.catalog.Lookup(symbol)
	if !ok {
		http.Error(w, fmt.Sprintf("unknown symbol %q", symbol), http.StatusBadRequest)
		return
	}
	months, err := s.catalog.ListMonths(symbol, r.URL.Query().Get("session"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "symbol": symbol, "contract": spec, "months": months})
}

func (s *Server) handlePreviewFuturesRoll(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID     string  `json:"user_id"`
		Symbol     string  `json:"symbol"`
		FrontMonth string  `json:"front_month"`
		BackMonth  string  `json:"back_month"`
		Direction  string  `json:"direction"`
		Quantity   float64 `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		req.UserID = "default"
	}
	if req.Direction == "" {
		req.Direction = string(contracts.LongRoll)
	}
	if req.Quantity <= 0 {
		req.Quantity = 1
	}

	spread, err := s.catalog.BuildRoll(req.Symbol, req.FrontMonth, req.BackMonth, contracts.Direction(req.Direction))
	if err != nil {
		writeError(w, err)
		return
	}
	spec, _ := s.catalog.Lookup(req.Symbol)

	deltas := map[string]float64{
		fmt.Sprintf("%s:%s", spread.Symbol, spread.Front.ContractMonth): rollLegSign(spread.Front.Action) * req.Quantity,
		fmt.Sprintf("%s:%s", spread.Symbol, spread.Back.ContractMonth):  rollLegSign(spread.Back.Action) * req.Quantity,
	}
	preview, err := s.trades.Create(domain.TradePreview{
		UserID:    req.UserID,
		Scope:     "futures",
		LegDeltas: deltas,
		EstCost:   domain.Money{Amount: req.Quantity * spec.TickValue(), Currency: spec.Currency},
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "spread": spread, "preview": preview})
}

func (s *Server) handleExecuteFuturesRoll(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	preview, err := s.trades.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if preview == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "error": "preview not found"})
		return
	}
	if preview.ExecutedAt != nil {
		writeJSON(w, http.StatusConflict, map[string]any{"success": false, "error": "preview already executed"})
		return
	}
	if err := s.trades.MarkExecuted(id, false); err != nil {
		writeError(w, err)
		return
	}
	s.svc.InvalidateForMutation(preview.UserID)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "preview_id": id})
}

func rollLegSign(action string) float64 {
	if action == "SELL" {
		return -1
	}
	return 1
}
