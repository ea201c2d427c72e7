package mcptools

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/henrysouchien/portfolio-risk-engine/internal/apperr"
	"github.com/henrysouchien/portfolio-risk-engine/internal/domain"
	"github.com/henrysouchien/portfolio-risk-engine/internal/modules/canonicalizer"
	"github.com/henrysouchien/portfolio-risk-engine/internal/modules/factorintel"
)

// --- get_leverage_capacity ---

func getLeverageCapacityTool() mcp.Tool {
	return mcp.NewTool("get_leverage_capacity",
		mcp.WithDescription("Reports how much additional notional leverage the portfolio can take before breaching its risk profile's leverage cap."),
		mcp.WithString("user_id", mcp.Description("user identifier")),
	)
}

func (r *Registrar) handleGetLeverageCapacity(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := userIDFromArgs(req)

	out, err := r.svc.AnalyzeRisk(ctx, userID, canonicalizer.Scope{Kind: canonicalizer.ScopeAll})
	if err != nil {
		return mcp.NewToolResultText(errorResult(err)), nil
	}
	profile, err := r.svc.GetRiskProfile(ctx, userID)
	if err != nil {
		return mcp.NewToolResultText(errorResult(err)), nil
	}

	current := out.Portfolio.NotionalLeverage
	capacity := profile.MaxLeverage - current

	result := Result{
		Success: true,
		Summary: map[string]any{
			"current_leverage":  current,
			"max_leverage":      profile.MaxLeverage,
			"remaining_capacity": capacity,
		},
		Metadata: Metadata{AnalysisDate: time.Now(), UserID: userID, Scope: out.Portfolio.Scope},
	}
	return mcp.NewToolResultText(toJSON(result)), nil
}

// --- check_exit_signals ---

func checkExitSignalsTool() mcp.Tool {
	return mcp.NewTool("check_exit_signals",
		mcp.WithDescription("Surfaces positions whose concentration is approaching or breaching the single-stock weight limit, as candidates to trim or exit."),
		mcp.WithString("user_id", mcp.Description("user identifier")),
	)
}

func (r *Registrar) handleCheckExitSignals(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := userIDFromArgs(req)

	out, err := r.svc.AnalyzeRisk(ctx, userID, canonicalizer.Scope{Kind: canonicalizer.ScopeAll})
	if err != nil {
		return mcp.NewToolResultText(errorResult(err)), nil
	}

	var signals []Flag
	for _, f := range out.Evaluation.Flags {
		if len(f.Code) >= len("single_stock:") && f.Code[:len("single_stock:")] == "single_stock:" {
			signals = append(signals, Flag{Code: f.Code, Severity: string(f.Severity), Message: f.Message, Limit: f.Limit, Measured: f.Measured})
		}
	}

	result := Result{
		Success:  true,
		Summary:  map[string]any{"signal_count": len(signals)},
		Detail:   signals,
		Metadata: Metadata{AnalysisDate: time.Now(), UserID: userID, Scope: out.Portfolio.Scope},
		Flags:    signals,
	}
	if format := req.GetString("format", "full"); format == "agent" {
		verdict := "clear"
		if len(signals) > 0 {
			verdict = "signals_present"
		}
		result.Snapshot = &Snapshot{Verdict: verdict, Metrics: map[string]float64{"signal_count": float64(len(signals))}, Flags: flagCodes(signals)}
	}
	return mcp.NewToolResultText(toJSON(result)), nil
}

// --- get_factor_recommendations ---

func getFactorRecommendationsTool() mcp.Tool {
	return mcp.NewTool("get_factor_recommendations",
		mcp.WithDescription("Recommends offsetting factors or baskets for an overexposed factor: 'single' ranks offsets for an explicit factor, 'portfolio' auto-detects the worst factor-beta breach."),
		mcp.WithString("user_id", mcp.Description("user identifier")),
		mcp.WithString("mode", mcp.Description("single or portfolio"), mcp.DefaultString("portfolio")),
		mcp.WithString("overexposed_factor", mcp.Description("required when mode=single")),
		mcp.WithString("include_baskets", mcp.Description("true to include the caller's baskets as offset candidates"), mcp.DefaultString("false")),
	)
}

func (r *Registrar) handleGetFactorRecommendations(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := userIDFromArgs(req)
	mode := req.GetString("mode", "portfolio")
	includeBaskets := req.GetString("include_baskets", "false") == "true"

	var baskets []domain.Basket
	if includeBaskets {
		loaded, err := r.baskets.List(userID)
		if err != nil {
			return mcp.NewToolResultText(errorResult(err)), nil
		}
		baskets = loaded
	}

	analysis, err := r.svc.AnalyzeFactors(ctx, userID, baskets, nil, nil, includeBaskets)
	if err != nil {
		return mcp.NewToolResultText(errorResult(err)), nil
	}

	var factorName string
	switch mode {
	case "single":
		factorName = req.GetString("overexposed_factor", "")
		if factorName == "" {
			return mcp.NewToolResultText(errorResult(apperr.Validation("overexposed_factor is required when mode=single"))), nil
		}
	default:
		risk, err := r.svc.AnalyzeRisk(ctx, userID, canonicalizer.Scope{Kind: canonicalizer.ScopeAll})
		if err != nil {
			return mcp.NewToolResultText(errorResult(err)), nil
		}
		profile, err := r.svc.GetRiskProfile(ctx, userID)
		if err != nil {
			return mcp.NewToolResultText(errorResult(err)), nil
		}
		factorName, _ = factorintel.RecommendForPortfolio(analysis.Panel, risk.Decomposition.BetaPort, profile.FactorBetaCaps)
		if factorName == "" {
			result := Result{Success: true, Summary: map[string]any{"factor": "", "offsets": []factorintel.Offset{}}, Metadata: Metadata{AnalysisDate: time.Now(), UserID: userID}}
			return mcp.NewToolResultText(toJSON(result)), nil
		}
	}

	offsets := factorintel.RecommendOffsets(analysis.Panel, factorName)

	result := Result{
		Success:  true,
		Summary:  map[string]any{"factor": factorName, "offset_count": len(offsets)},
		Detail:   offsets,
		Metadata: Metadata{AnalysisDate: time.Now(), UserID: userID},
	}
	return mcp.NewToolResultText(toJSON(result)), nil
}
