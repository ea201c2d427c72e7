package server

import (
	"encoding/json"
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/henrysouchien/portfolio-risk-engine/internal/domain"
	"github.com/henrysouchien/portfolio-risk-engine/internal/modules/canonicalizer"
	"github.com/henrysouchien/portfolio-risk-engine/internal/modules/factorintel"
	"github.com/henrysouchien/portfolio-risk-engine/internal/modules/optimize"
)

const (
	tradePreviewTTL   = 15 * time.Minute
	tradeDriftPercent = 0.01
)

func (s *Server) handlePreviewTrade(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID        string             `json:"user_id"`
		TargetWeights map[string]float64 `json:"target_weights"`
		DeltaChanges  map[string]float64 `json:"delta_changes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		req.UserID = "default"
	}
	change := optimize.ChangeRequest{TargetWeights: req.TargetWeights, DeltaChanges: req.DeltaChanges}
	scope := canonicalizer.Scope{Kind: canonicalizer.ScopeAll}

	scenario, err := s.svc.RunWhatIf(r.Context(), req.UserID, scope, change)
	if err != nil {
		writeError(w, err)
		return
	}
	risk, err := s.svc.AnalyzeRisk(r.Context(), req.UserID, scope)
	if err != nil {
		writeError(w, err)
		return
	}
	preview, err := s.trades.Create(buildTradePreview(req.UserID, scope.String(), scenario, risk.Portfolio.MarginTotal))
	if err != nil {
		writeError(w, err)
		return
	}
	if len(req.TargetWeights) > 0 {
		_ = s.targets.Set(req.UserID, scope.String(), req.TargetWeights)
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "preview": preview, "verdict": scenario.Verdict})
}

func (s *Server) handleExecuteTrade(w http.ResponseWriter, r *http.Request) {
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

	driftWarning := false
	if time.Since(preview.CreatedAt) > tradePreviewTTL {
		scope := canonicalizer.Scope{Kind: canonicalizer.ScopeAll}
		scenario, err := s.svc.RunWhatIf(r.Context(), preview.UserID, scope, optimize.ChangeRequest{DeltaChanges: preview.LegDeltas})
		if err == nil {
			riskOut, err := s.svc.AnalyzeRisk(r.Context(), preview.UserID, scope)
			if err == nil {
				fresh := buildTradePreview(preview.UserID, preview.Scope, scenario, riskOut.Portfolio.MarginTotal)
				driftWarning = tradeCostDrifted(preview.EstCost.Amount, fresh.EstCost.Amount)
			}
		}
	}

	if err := s.trades.MarkExecuted(id, driftWarning); err != nil {
		writeError(w, err)
		return
	}
	s.svc.InvalidateForMutation(preview.UserID)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "preview_id": id, "drift_warning": driftWarning})
}

func (s *Server) handlePreviewBasketTrade(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID     string `json:"user_id"`
		BasketName string `json:"basket_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		req.UserID = "default"
	}

	basket, err := s.baskets.Get(req.UserID, req.BasketName)
	if err != nil {
		writeError(w, err)
		return
	}
	if basket == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "error": "basket not found"})
		return
	}

	targets := factorintel.ResolveWeights(*basket, nil)
	scope := canonicalizer.Scope{Kind: canonicalizer.ScopeAll}
	scenario, err := s.svc.RunWhatIf(r.Context(), req.UserID, scope, optimize.ChangeRequest{TargetWeights: targets})
	if err != nil {
		writeError(w, err)
		return
	}
	risk, err := s.svc.AnalyzeRisk(r.Context(), req.UserID, scope)
	if err != nil {
		writeError(w, err)
		return
	}

	previewIDs := make([]string, 0, len(targets))
	for symbol, target := range targets {
		legScenario, err := s.svc.RunWhatIf(r.Context(), req.UserID, scope, optimize.ChangeRequest{TargetWeights: map[string]float64{symbol: target}})
		if err != nil {
			continue
		}
		preview, err := s.trades.Create(buildTradePreview(req.UserID, scope.String(), legScenario, risk.Portfolio.MarginTotal))
		if err != nil {
			continue
		}
		previewIDs = append(previewIDs, preview.ID)
	}

	group, err := s.trades.CreateBasketGroup(req.UserID, req.BasketName, previewIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	_ = s.targets.Set(req.UserID, scope.String(), targets)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "group": group, "verdict": scenario.Verdict})
}

func (s *Server) handleExecuteBasketTrade(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	group, previews, err := s.trades.GetBasketGroup(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if group == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "error": "basket trade group not found"})
		return
	}
	executed := 0
	for _, p := range previews {
		if p.ExecutedAt != nil {
			continue
		}
		if err := s.trades.MarkExecuted(p.ID, false); err == nil {
			executed++
		}
	}
	s.svc.InvalidateForMutation(group.UserID)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "group_id": id, "executed_legs": executed, "total_legs": len(previews)})
}

func buildTradePreview(userID, scope string, scenario optimize.Scenario, marginTotal float64) domain.TradePreview {
	deltas := make(map[string]float64, len(scenario.After.Weights))
	var turnover float64
	for symbol, after := range scenario.After.Weights {
		before := scenario.Before.Weights[symbol]
		d := after - before
		deltas[symbol] = d
		turnover += math.Abs(d)
	}
	return domain.TradePreview{
		UserID:     userID,
		Scope:      scope,
		LegDeltas:  deltas,
		EstCost:    domain.Money{Amount: turnover * marginTotal, Currency: "USD"},
		RiskBefore: scenario.Before.RiskScore,
		RiskAfter:  scenario.After.RiskScore,
	}
}

func tradeCostDrifted(original, fresh float64) bool {
	if original == 0 {
		return fresh != 0
	}
	return math.Abs(fresh-original)/math.Abs(original) > tradeDriftPercent
}
