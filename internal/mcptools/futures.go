package mcptools

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/henrysouchien/portfolio-risk-engine/internal/apperr"
	"github.com/henrysouchien/portfolio-risk-engine/internal/domain"
	"github.com/henrysouchien/portfolio-risk-engine/internal/modules/contracts"
)

// --- get_futures_months ---

func getFuturesMonthsTool() mcp.Tool {
	return mcp.NewTool("get_futures_months",
		mcp.WithDescription("Lists the live contract months for a futures root symbol, sorted by last-trade date."),
		mcp.WithString("symbol", mcp.Description("futures root symbol, e.g. ES"), mcp.Required()),
		mcp.WithString("session", mcp.Description("broker session identifier, if the gateway requires one")),
	)
}

func (r *Registrar) handleGetFuturesMonths(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	symbol := req.GetString("symbol", "")
	session := req.GetString("session", "")

	months, err := r.catalog.ListMonths(symbol, session)
	if err != nil {
		return mcp.NewToolResultText(errorResult(err)), nil
	}

	result := Result{
		Success:  true,
		Summary:  map[string]any{"symbol": symbol, "count": len(months)},
		Detail:   months,
		Metadata: Metadata{AnalysisDate: time.Now()},
	}
	return mcp.NewToolResultText(toJSON(result)), nil
}

// --- get_futures_curve ---

func getFuturesCurveTool() mcp.Tool {
	return mcp.NewTool("get_futures_curve",
		mcp.WithDescription("Reports the listed contract months for a futures root plus its contract economics (multiplier, tick size, tick value); no live per-month quote feed is wired, so the curve carries contract terms, not prices."),
		mcp.WithString("symbol", mcp.Description("futures root symbol, e.g. ES"), mcp.Required()),
		mcp.WithString("session", mcp.Description("broker session identifier, if the gateway requires one")),
		mcp.WithString("format", mcp.Description("full, summary, or agent"), mcp.DefaultString("full")),
	)
}

func (r *Registrar) handleGetFuturesCurve(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	symbol := req.GetString("symbol", "")
	session := req.GetString("session", "")

	spec, ok := r.catalog.Lookup(symbol)
	if !ok {
		return mcp.NewToolResultText(errorResult(apperr.Validation("get_futures_curve: unknown symbol %q", symbol))), nil
	}
	months, err := r.catalog.ListMonths(symbol, session)
	if err != nil {
		return mcp.NewToolResultText(errorResult(err)), nil
	}

	result := Result{
		Success: true,
		Summary: map[string]any{"symbol": symbol, "month_count": len(months), "tick_value": spec.TickValue()},
		Detail:  map[string]any{"contract": spec, "months": months},
		Metadata: Metadata{AnalysisDate: time.Now()},
	}
	if req.GetString("format", "full") == "agent" {
		result.Snapshot = &Snapshot{Verdict: "curve_available", Metrics: map[string]float64{"tick_value": spec.TickValue(), "month_count": float64(len(months))}}
	}
	return mcp.NewToolResultText(toJSON(result)), nil
}

// --- preview_futures_roll / execute_futures_roll ---

func previewFuturesRollTool() mcp.Tool {
	return mcp.NewTool("preview_futures_roll",
		mcp.WithDescription("Builds the calendar-spread combo for rolling a futures position from front_month to back_month and stores it for later execution."),
		mcp.WithString("user_id", mcp.Description("user identifier")),
		mcp.WithString("symbol", mcp.Description("futures root symbol, e.g. ES"), mcp.Required()),
		mcp.WithString("front_month", mcp.Description("contract month being closed, YYYYMM"), mcp.Required()),
		mcp.WithString("back_month", mcp.Description("contract month being opened, YYYYMM"), mcp.Required()),
		mcp.WithString("direction", mcp.Description("long_roll or short_roll"), mcp.DefaultString("long_roll")),
		mcp.WithNumber("quantity", mcp.Description("number of contracts to roll")),
	)
}

func (r *Registrar) handlePreviewFuturesRoll(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := userIDFromArgs(req)
	symbol := req.GetString("symbol", "")
	front := req.GetString("front_month", "")
	back := req.GetString("back_month", "")
	direction := contracts.Direction(req.GetString("direction", string(contracts.LongRoll)))
	quantity := 1.0
	if v, ok := req.GetArguments()["quantity"].(float64); ok && v > 0 {
		quantity = v
	}

	spread, err := r.catalog.BuildRoll(symbol, front, back, direction)
	if err != nil {
		return mcp.NewToolResultText(errorResult(err)), nil
	}
	spec, _ := r.catalog.Lookup(symbol)

	deltas := map[string]float64{
		fmt.Sprintf("%s:%s", spread.Symbol, spread.Front.ContractMonth): legSign(spread.Front.Action) * quantity,
		fmt.Sprintf("%s:%s", spread.Symbol, spread.Back.ContractMonth):  legSign(spread.Back.Action) * quantity,
	}
	preview, err := r.trades.Create(domain.TradePreview{
		UserID:    userID,
		Scope:     "futures",
		LegDeltas: deltas,
		EstCost:   domain.Money{Amount: quantity * spec.TickValue(), Currency: spec.Currency},
	})
	if err != nil {
		return mcp.NewToolResultText(errorResult(err)), nil
	}

	result := Result{
		Success:  true,
		Summary:  map[string]any{"preview_id": preview.ID, "symbol": spread.Symbol, "direction": string(direction)},
		Detail:   map[string]any{"spread": spread, "preview": preview},
		Metadata: Metadata{AnalysisDate: time.Now(), UserID: userID},
	}
	return mcp.NewToolResultText(toJSON(result)), nil
}

func executeFuturesRollTool() mcp.Tool {
	return mcp.NewTool("execute_futures_roll",
		mcp.WithDescription("Executes a previously previewed futures roll."),
		mcp.WithString("preview_id", mcp.Description("id returned by preview_futures_roll"), mcp.Required()),
	)
}

func (r *Registrar) handleExecuteFuturesRoll(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	previewID := req.GetString("preview_id", "")
	preview, err := r.trades.Get(previewID)
	if err != nil {
		return mcp.NewToolResultText(errorResult(err)), nil
	}
	if preview == nil {
		return mcp.NewToolResultText(errorResult(apperr.Validation("execute_futures_roll: preview %q not found", previewID))), nil
	}
	if preview.ExecutedAt != nil {
		return mcp.NewToolResultText(errorResult(apperr.Validation("execute_futures_roll: preview %q already executed", previewID))), nil
	}

	if err := r.trades.MarkExecuted(previewID, false); err != nil {
		return mcp.NewToolResultText(errorResult(err)), nil
	}
	r.svc.InvalidateForMutation(preview.UserID)

	result := Result{
		Success:  true,
		Summary:  map[string]any{"preview_id": previewID, "symbol": preview.Scope},
		Metadata: Metadata{AnalysisDate: time.Now(), UserID: preview.UserID},
	}
	return mcp.NewToolResultText(toJSON(result)), nil
}

func legSign(action string) float64 {
	if action == "SELL" {
		return -1
	}
	return 1
}
