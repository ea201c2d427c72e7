package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/henrysouchien/portfolio-risk-engine/internal/domain"
	"github.com/henrysouchien/portfolio-risk-engine/internal/modules/canonicalizer"
	"github.com/henrysouchien/portfolio-risk-engine/internal/modules/factorintel"
)

func (s *Server) handleGetLeverageCapacity(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = "default"
	}
	out, err := s.svc.AnalyzeRisk(r.Context(), userID, canonicalizer.Scope{Kind: canonicalizer.ScopeAll})
	if err != nil {
		writeError(w, err)
		return
	}
	profile, err := s.svc.GetRiskProfile(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	current := out.Portfolio.NotionalLeverage
	writeJSON(w, http.StatusOK, map[string]any{
		"success":            true,
		"current_leverage":   current,
		"max_leverage":       profile.MaxLeverage,
		"remaining_capacity": profile.MaxLeverage - current,
	})
}

func (s *Server) handleCheckExitSignals(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = "default"
	}
	out, err := s.svc.AnalyzeRisk(r.Context(), userID, canonicalizer.Scope{Kind: canonicalizer.ScopeAll})
	if err != nil {
		writeError(w, err)
		return
	}
	var signals []any
	for _, f := range out.Evaluation.Flags {
		if len(f.Code) >= len("single_stock:") && f.Code[:len("single_stock:")] == "single_stock:" {
			signals = append(signals, f)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "signals": signals, "signal_count": len(signals)})
}

func (s *Server) handleGetFactorRecommendations(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = "default"
	}
	mode := r.URL.Query().Get("mode")
	if mode == "" {
		mode = "portfolio"
	}

	analysis, err := s.svc.AnalyzeFactors(r.Context(), userID, nil, nil, nil, false)
	if err != nil {
		writeError(w, err)
		return
	}

	var factorName string
	switch mode {
	case "single":
		factorName = r.URL.Query().Get("overexposed_factor")
		if factorName == "" {
			http.Error(w, "overexposed_factor is required when mode=single", http.StatusBadRequest)
			return
		}
	default:
		risk, err := s.svc.AnalyzeRisk(r.Context(), userID, canonicalizer.Scope{Kind: canonicalizer.ScopeAll})
		if err != nil {
			writeError(w, err)
			return
		}
		profile, err := s.svc.GetRiskProfile(r.Context(), userID)
		if err != nil {
			writeError(w, err)
			return
		}
		factorName, _ = factorintel.RecommendForPortfolio(analysis.Panel, risk.Decomposition.BetaPort, profile.FactorBetaCaps)
		if factorName == "" {
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "factor": "", "offsets": []factorintel.Offset{}})
			return
		}
	}

	offsets := factorintel.RecommendOffsets(analysis.Panel, factorName)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "factor": factorName, "offsets": offsets})
}

func (s *Server) handleAnalyzeBasket(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = "default"
	}
	name := chi.URLParam(r, "name")

	basket, err := s.baskets.Get(userID, name)
	if err != nil {
		writeError(w, err)
		return
	}
	if basket == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "error": "basket not found"})
		return
	}

	out, err := s.svc.AnalyzeFactors(r.Context(), userID, []domain.Basket{*basket}, nil, nil, true)
	if err != nil {
		writeError(w, err)
		return
	}
	if out.Panel.ColumnIndex(basket.Name) < 0 {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": "basket has no appended return series", "warnings": out.Warnings})
		return
	}

	profile, err := factorintel.ComputeProfile(out.Panel, basket.Name, "Market", 0)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":               true,
		"profile":               profile,
		"bucketed_correlations": out.Bucketed,
		"overlay":               out.Overlay,
		"warnings":              out.Warnings,
	})
}
