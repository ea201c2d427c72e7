package mcptools

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

// --- get_positions ---

func getPositionsTool() mcp.Tool {
	return mcp.NewTool("get_positions",
		mcp.WithDescription("Returns the live canonical portfolio's legs: symbol, notional weight, and asset class."),
		mcp.WithString("user_id", mcp.Description("user identifier")),
		mcp.WithString("segment", mcp.Description("all, equities, or futures; the value is not applied and the whole portfolio is always used"), mcp.DefaultString("all")),
	)
}

// handleGetPositions re-runs the same canonicalization AnalyzeRisk does (the
// cache makes the repeat call free once a caller has already asked for
// get_risk_analysis) and returns just the leg weights, for callers that
// only need the holdings view.
func (r *Registrar) handleGetPositions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := userIDFromArgs(req)
	scope := scopeFromArgs(req)

	out, err := r.svc.AnalyzeRisk(ctx, userID, scope)
	if err != nil {
		return mcp.NewToolResultText(errorResult(err)), nil
	}

	type leg struct {
		Symbol     string  `json:"symbol"`
		Weight     float64 `json:"weight"`
		AssetClass string  `json:"asset_class"`
	}
	legs := make([]leg, 0, len(out.Portfolio.Legs))
	for _, l := range out.Portfolio.Legs {
		legs = append(legs, leg{Symbol: l.Symbol.Key(), Weight: l.WeightByNotional, AssetClass: string(l.Classification)})
	}

	result := Result{
		Success:  true,
		Summary:  map[string]any{"leg_count": len(legs), "notional_leverage": out.Portfolio.NotionalLeverage},
		Detail:   legs,
		Metadata: Metadata{AnalysisDate: time.Now(), UserID: userID, Scope: out.Portfolio.Scope},
	}
	return mcp.NewToolResultText(toJSON(result)), nil
}

// --- get_factor_analysis ---

func getFactorAnalysisTool() mcp.Tool {
	return mcp.NewTool("get_factor_analysis",
		mcp.WithDescription("Returns bucketed factor correlations for the shared factor-return panel. User baskets are not included and no basket overlay is returned."),
		mcp.WithString("user_id", mcp.Description("user identifier")),
	)
}

// handleGetFactorAnalysis calls AnalyzeFactors with no basket overlay: the
// basket-augmented view (get_factor_recommendations) needs the caller's
// basket tickers' return series assembled first, which create_basket's
// repository doesn't track on its own.
func (r *Registrar) handleGetFactorAnalysis(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := userIDFromArgs(req)

	out, err := r.svc.AnalyzeFactors(ctx, userID, nil, nil, nil, false)
	if err != nil {
		return mcp.NewToolResultText(errorResult(err)), nil
	}

	result := Result{
		Success:  true,
		Summary:  map[string]any{"factors": out.Panel.Factors, "frequency": out.Panel.Frequency},
		Detail:   map[string]any{"bucketed_correlations": out.Bucketed, "warnings": out.Warnings},
		Metadata: Metadata{AnalysisDate: time.Now(), UserID: userID},
	}
	return mcp.NewToolResultText(toJSON(result)), nil
}
