package mcptools

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/henrysouchien/portfolio-risk-engine/internal/apperr"
	"github.com/henrysouchien/portfolio-risk-engine/internal/domain"
	"github.com/henrysouchien/portfolio-risk-engine/internal/modules/factorintel"
)

// --- list_baskets / get_basket / create_basket / update_basket / delete_basket ---

func listBasketsTool() mcp.Tool {
	return mcp.NewTool("list_baskets",
		mcp.WithDescription("Lists every basket the user has defined."),
		mcp.WithString("user_id", mcp.Description("user identifier")),
	)
}

func (r *Registrar) handleListBaskets(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := userIDFromArgs(req)
	baskets, err := r.baskets.List(userID)
	if err != nil {
		return mcp.NewToolResultText(errorResult(err)), nil
	}
	result := Result{
		Success:  true,
		Summary:  map[string]any{"count": len(baskets)},
		Detail:   baskets,
		Metadata: Metadata{AnalysisDate: time.Now(), UserID: userID},
	}
	return mcp.NewToolResultText(toJSON(result)), nil
}

func getBasketTool() mcp.Tool {
	return mcp.NewTool("get_basket",
		mcp.WithDescription("Returns one named basket, or success=false if it doesn't exist."),
		mcp.WithString("user_id", mcp.Description("user identifier")),
		mcp.WithString("name", mcp.Description("basket name"), mcp.Required()),
	)
}

func (r *Registrar) handleGetBasket(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := userIDFromArgs(req)
	name := req.GetString("name", "")
	basket, err := r.baskets.Get(userID, name)
	if err != nil {
		return mcp.NewToolResultText(errorResult(err)), nil
	}
	if basket == nil {
		result := Result{Success: false, Summary: "basket not found", Metadata: Metadata{AnalysisDate: time.Now(), UserID: userID}}
		return mcp.NewToolResultText(toJSON(result)), nil
	}
	result := Result{
		Success:  true,
		Summary:  map[string]any{"name": basket.Name, "tickers": basket.Tickers},
		Detail:   basket,
		Metadata: Metadata{AnalysisDate: time.Now(), UserID: userID},
	}
	return mcp.NewToolResultText(toJSON(result)), nil
}

func createBasketTool() mcp.Tool {
	return mcp.NewTool("create_basket",
		mcp.WithDescription("Creates or replaces a named basket of tickers."),
		mcp.WithString("user_id", mcp.Description("user identifier")),
		mcp.WithString("name", mcp.Description("basket name"), mcp.Required()),
		mcp.WithString("tickers", mcp.Description("JSON array of ticker symbols"), mcp.Required()),
		mcp.WithString("weights", mcp.Description("JSON object: ticker -> weight, omit for equal/market_cap weighting")),
		mcp.WithString("weighting_method", mcp.Description("equal, market_cap, or custom"), mcp.DefaultString("equal")),
	)
}

func (r *Registrar) handleCreateBasket(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return r.upsertBasket(ctx, req)
}

func updateBasketTool() mcp.Tool {
	return mcp.NewTool("update_basket",
		mcp.WithDescription("Replaces an existing basket's tickers and/or weights."),
		mcp.WithString("user_id", mcp.Description("user identifier")),
		mcp.WithString("name", mcp.Description("basket name"), mcp.Required()),
		mcp.WithString("tickers", mcp.Description("JSON array of ticker symbols"), mcp.Required()),
		mcp.WithString("weights", mcp.Description("JSON object: ticker -> weight, omit for equal/market_cap weighting")),
		mcp.WithString("weighting_method", mcp.Description("equal, market_cap, or custom"), mcp.DefaultString("equal")),
	)
}

func (r *Registrar) handleUpdateBasket(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return r.upsertBasket(ctx, req)
}

func (r *Registrar) upsertBasket(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := userIDFromArgs(req)
	name := req.GetString("name", "")

	var tickers []string
	if err := parseJSONArg(req.GetString("tickers", ""), &tickers); err != nil {
		return mcp.NewToolResultText(errorResult(err)), nil
	}
	weights := parseWeightMap(req.GetString("weights", ""))

	basket := domain.Basket{
		UserID:          userID,
		Name:            name,
		Tickers:         tickers,
		Weights:         weights,
		WeightingMethod: req.GetString("weighting_method", "equal"),
		UpdatedAt:       time.Now(),
	}
	if err := r.baskets.Upsert(basket); err != nil {
		return mcp.NewToolResultText(errorResult(err)), nil
	}
	r.svc.InvalidateForMutation(userID)

	result := Result{
		Success:  true,
		Summary:  map[string]any{"name": name, "tickers": tickers},
		Metadata: Metadata{AnalysisDate: time.Now(), UserID: userID},
	}
	return mcp.NewToolResultText(toJSON(result)), nil
}

func deleteBasketTool() mcp.Tool {
	return mcp.NewTool("delete_basket",
		mcp.WithDescription("Deletes a named basket."),
		mcp.WithString("user_id", mcp.Description("user identifier")),
		mcp.WithString("name", mcp.Description("basket name"), mcp.Required()),
	)
}

func (r *Registrar) handleDeleteBasket(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := userIDFromArgs(req)
	name := req.GetString("name", "")
	if err := r.baskets.Delete(userID, name); err != nil {
		return mcp.NewToolResultText(errorResult(err)), nil
	}
	r.svc.InvalidateForMutation(userID)

	result := Result{
		Success:  true,
		Summary:  map[string]any{"name": name, "deleted": true},
		Metadata: Metadata{AnalysisDate: time.Now(), UserID: userID},
	}
	return mcp.NewToolResultText(toJSON(result)), nil
}

// --- analyze_basket ---

func analyzeBasketTool() mcp.Tool {
	return mcp.NewTool("analyze_basket",
		mcp.WithDescription("Appends a basket's own return series to the factor panel and reports its performance profile and factor correlations, the same schema get_factor_analysis uses for a standard factor."),
		mcp.WithString("user_id", mcp.Description("user identifier")),
		mcp.WithString("name", mcp.Description("basket name"), mcp.Required()),
	)
}

func (r *Registrar) handleAnalyzeBasket(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := userIDFromArgs(req)
	name := req.GetString("name", "")

	basket, err := r.baskets.Get(userID, name)
	if err != nil {
		return mcp.NewToolResultText(errorResult(err)), nil
	}
	if basket == nil {
		return mcp.NewToolResultText(errorResult(apperr.Validation("analyze_basket: basket %q not found", name))), nil
	}

	out, err := r.svc.AnalyzeFactors(ctx, userID, []domain.Basket{*basket}, nil, nil, true)
	if err != nil {
		return mcp.NewToolResultText(errorResult(err)), nil
	}

	if out.Panel.ColumnIndex(basket.Name) < 0 {
		result := Result{
			Success:  false,
			Summary:  "basket has no appended return series",
			Detail:   map[string]any{"warnings": out.Warnings},
			Metadata: Metadata{AnalysisDate: time.Now(), UserID: userID},
		}
		return mcp.NewToolResultText(toJSON(result)), nil
	}

	profile, err := factorintel.ComputeProfile(out.Panel, basket.Name, "Market", 0)
	if err != nil {
		return mcp.NewToolResultText(errorResult(err)), nil
	}

	result := Result{
		Success: true,
		Summary: map[string]any{"name": basket.Name, "annual_return": profile.AnnualReturn, "volatility": profile.Volatility},
		Detail: map[string]any{
			"profile":               profile,
			"bucketed_correlations": out.Bucketed,
			"overlay":               out.Overlay,
			"warnings":              out.Warnings,
		},
		Metadata: Metadata{AnalysisDate: time.Now(), UserID: userID},
	}
	return mcp.NewToolResultText(toJSON(result)), nil
}
