package mcptools

import (
	"context"
	"math"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/henrysouchien/portfolio-risk-engine/internal/apperr"
	"github.com/henrysouchien/portfolio-risk-engine/internal/domain"
	"github.com/henrysouchien/portfolio-risk-engine/internal/modules/canonicalizer"
	"github.com/henrysouchien/portfolio-risk-engine/internal/modules/factorintel"
	"github.com/henrysouchien/portfolio-risk-engine/internal/modules/optimize"
)

// tradePreviewStore is the persistence seam preview_trade/execute_trade/
// preview_basket_trade/execute_basket_trade write through; satisfied by
// internal/database/repositories.TradePreviewRepository.
type tradePreviewStore interface {
	Create(p domain.TradePreview) (domain.TradePreview, error)
	Get(id string) (*domain.TradePreview, error)
	MarkExecuted(id string, driftWarning bool) error
	CreateBasketGroup(userID, basketName string, previewIDs []string) (domain.BasketTradeGroup, error)
	GetBasketGroup(id string) (*domain.BasketTradeGroup, []domain.TradePreview, error)
}

// targetAllocationStore records the weights preview_trade/preview_basket_trade
// asked the portfolio to drift toward, satisfied by
// internal/database/repositories.TargetAllocationRepository.
type targetAllocationStore interface {
	Set(userID, scope string, weights map[string]float64) error
	Get(userID, scope string) (*domain.TargetAllocation, error)
}

// previewTTL is how long a stored trade preview is considered fresh
// before execute re-prices it from scratch (spec.md §6 "Persisted state":
// "trade previews have a TTL; expired previews are re-generated on
// execute").
const previewTTL = 15 * time.Minute

// driftThreshold is spec.md §6's ">1%" re-priced-cost drift trigger.
const driftThreshold = 0.01

// --- preview_trade / execute_trade ---

func previewTradeTool() mcp.Tool {
	return mcp.NewTool("preview_trade",
		mcp.WithDescription("Prices the leg deltas needed to move the live portfolio toward a target or delta reweighting, and stores the preview for later execution."),
		mcp.WithString("user_id", mcp.Description("user identifier")),
		mcp.WithString("target_weights", mcp.Description("JSON object: symbol -> target weight")),
		mcp.WithString("delta_changes", mcp.Description("JSON object: symbol -> weight delta")),
	)
}

func (r *Registrar) handlePreviewTrade(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := userIDFromArgs(req)
	change := optimize.ChangeRequest{
		TargetWeights: parseWeightMap(req.GetString("target_weights", "")),
		DeltaChanges:  parseWeightMap(req.GetString("delta_changes", "")),
	}

	scope := canonicalizer.Scope{Kind: canonicalizer.ScopeAll}
	scenario, err := r.svc.RunWhatIf(ctx, userID, scope, change)
	if err != nil {
		return mcp.NewToolResultText(errorResult(err)), nil
	}
	risk, err := r.svc.AnalyzeRisk(ctx, userID, scope)
	if err != nil {
		return mcp.NewToolResultText(errorResult(err)), nil
	}

	preview, err := r.trades.Create(buildPreview(userID, scope.String(), scenario, risk.Portfolio.MarginTotal))
	if err != nil {
		return mcp.NewToolResultText(errorResult(err)), nil
	}
	if len(change.TargetWeights) > 0 {
		if err := r.targets.Set(userID, scope.String(), change.TargetWeights); err != nil {
			r.log.Warn().Err(err).Str("user_id", userID).Msg("preview_trade: failed to persist target allocation")
		}
	}

	result := Result{
		Success:  true,
		Summary:  map[string]any{"preview_id": preview.ID, "verdict": scenario.Verdict, "est_cost": preview.EstCost},
		Detail:   preview,
		Metadata: Metadata{AnalysisDate: time.Now(), UserID: userID},
	}
	return mcp.NewToolResultText(toJSON(result)), nil
}

func executeTradeTool() mcp.Tool {
	return mcp.NewTool("execute_trade",
		mcp.WithDescription("Executes a previously previewed trade; re-prices it first and flags drift_warning if the cost moved more than 1%% since preview."),
		mcp.WithString("preview_id", mcp.Description("id returned by preview_trade"), mcp.Required()),
	)
}

func (r *Registrar) handleExecuteTrade(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	previewID := req.GetString("preview_id", "")
	preview, err := r.trades.Get(previewID)
	if err != nil {
		return mcp.NewToolResultText(errorResult(err)), nil
	}
	if preview == nil {
		return mcp.NewToolResultText(errorResult(apperr.Validation("execute_trade: preview %q not found", previewID))), nil
	}
	if preview.ExecutedAt != nil {
		return mcp.NewToolResultText(errorResult(apperr.Validation("execute_trade: preview %q already executed", previewID))), nil
	}

	driftWarning := false
	if time.Since(preview.CreatedAt) > previewTTL {
		scope := canonicalizer.Scope{Kind: canonicalizer.ScopeAll}
		change := weightMapToChangeRequest(preview.LegDeltas)
		scenario, err := r.svc.RunWhatIf(ctx, preview.UserID, scope, change)
		if err == nil {
			riskOut, err := r.svc.AnalyzeRisk(ctx, preview.UserID, scope)
			if err == nil {
				fresh := buildPreview(preview.UserID, preview.Scope, scenario, riskOut.Portfolio.MarginTotal)
				driftWarning = costDriftExceeds(preview.EstCost.Amount, fresh.EstCost.Amount, driftThreshold)
			}
		}
	}

	if err := r.trades.MarkExecuted(previewID, driftWarning); err != nil {
		return mcp.NewToolResultText(errorResult(err)), nil
	}
	r.svc.InvalidateForMutation(preview.UserID)

	result := Result{
		Success:  true,
		Summary:  map[string]any{"preview_id": previewID, "drift_warning": driftWarning},
		Metadata: Metadata{AnalysisDate: time.Now(), UserID: preview.UserID},
	}
	return mcp.NewToolResultText(toJSON(result)), nil
}

// --- preview_basket_trade / execute_basket_trade ---

func previewBasketTradeTool() mcp.Tool {
	return mcp.NewTool("preview_basket_trade",
		mcp.WithDescription("Prices a multi-leg trade that moves the portfolio toward a basket's resolved weights, storing one preview per leg under a shared basket-trade group."),
		mcp.WithString("user_id", mcp.Description("user identifier")),
		mcp.WithString("basket_name", mcp.Description("basket name"), mcp.Required()),
	)
}

func (r *Registrar) handlePreviewBasketTrade(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := userIDFromArgs(req)
	name := req.GetString("basket_name", "")

	basket, err := r.baskets.Get(userID, name)
	if err != nil {
		return mcp.NewToolResultText(errorResult(err)), nil
	}
	if basket == nil {
		return mcp.NewToolResultText(errorResult(apperr.Validation("preview_basket_trade: basket %q not found", name))), nil
	}

	targets := factorintel.ResolveWeights(*basket, nil)
	scope := canonicalizer.Scope{Kind: canonicalizer.ScopeAll}
	scenario, err := r.svc.RunWhatIf(ctx, userID, scope, optimize.ChangeRequest{TargetWeights: targets})
	if err != nil {
		return mcp.NewToolResultText(errorResult(err)), nil
	}
	risk, err := r.svc.AnalyzeRisk(ctx, userID, scope)
	if err != nil {
		return mcp.NewToolResultText(errorResult(err)), nil
	}

	previewIDs := make([]string, 0, len(targets))
	for symbol, target := range targets {
		leg := optimize.ChangeRequest{TargetWeights: map[string]float64{symbol: target}}
		legScenario, err := r.svc.RunWhatIf(ctx, userID, scope, leg)
		if err != nil {
			continue
		}
		preview, err := r.trades.Create(buildPreview(userID, scope.String(), legScenario, risk.Portfolio.MarginTotal))
		if err != nil {
			continue
		}
		previewIDs = append(previewIDs, preview.ID)
	}

	group, err := r.trades.CreateBasketGroup(userID, name, previewIDs)
	if err != nil {
		return mcp.NewToolResultText(errorResult(err)), nil
	}
	if err := r.targets.Set(userID, scope.String(), targets); err != nil {
		r.log.Warn().Err(err).Str("user_id", userID).Msg("preview_basket_trade: failed to persist target allocation")
	}

	result := Result{
		Success:  true,
		Summary:  map[string]any{"group_id": group.ID, "leg_count": len(previewIDs), "verdict": scenario.Verdict},
		Detail:   group,
		Metadata: Metadata{AnalysisDate: time.Now(), UserID: userID},
	}
	return mcp.NewToolResultText(toJSON(result)), nil
}

func executeBasketTradeTool() mcp.Tool {
	return mcp.NewTool("execute_basket_trade",
		mcp.WithDescription("Executes every leg preview in a basket-trade group."),
		mcp.WithString("group_id", mcp.Description("id returned by preview_basket_trade"), mcp.Required()),
	)
}

func (r *Registrar) handleExecuteBasketTrade(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	groupID := req.GetString("group_id", "")
	group, previews, err := r.trades.GetBasketGroup(groupID)
	if err != nil {
		return mcp.NewToolResultText(errorResult(err)), nil
	}
	if group == nil {
		return mcp.NewToolResultText(errorResult(apperr.Validation("execute_basket_trade: group %q not found", groupID))), nil
	}

	executed := 0
	for _, p := range previews {
		if p.ExecutedAt != nil {
			continue
		}
		if err := r.trades.MarkExecuted(p.ID, false); err == nil {
			executed++
		}
	}
	r.svc.InvalidateForMutation(group.UserID)

	result := Result{
		Success:  true,
		Summary:  map[string]any{"group_id": groupID, "executed_legs": executed, "total_legs": len(previews)},
		Metadata: Metadata{AnalysisDate: time.Now(), UserID: group.UserID},
	}
	return mcp.NewToolResultText(toJSON(result)), nil
}

func buildPreview(userID, scope string, scenario optimize.Scenario, marginTotal float64) domain.TradePreview {
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

func weightMapToChangeRequest(legDeltas map[string]float64) optimize.ChangeRequest {
	return optimize.ChangeRequest{DeltaChanges: legDeltas}
}

func costDriftExceeds(original, fresh, threshold float64) bool {
	if original == 0 {
		return fresh != 0
	}
	return math.Abs(fresh-original)/math.Abs(original) > threshold
}

