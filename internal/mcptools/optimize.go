package mcptools

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/henrysouchien/portfolio-risk-engine/internal/modules/canonicalizer"
	"github.com/henrysouchien/portfolio-risk-engine/internal/modules/optimize"
)

// --- run_optimization ---

func runOptimizationTool() mcp.Tool {
	return mcp.NewTool("run_optimization",
		mcp.WithDescription("Solves a constrained mean-variance optimization over the live portfolio and reports the resulting weights and compliance. The agent snapshot verdict is pass or breach; no rebalance-magnitude verdict is computed."),
		mcp.WithString("user_id", mcp.Description("user identifier")),
		mcp.WithString("objective", mcp.Description("min_variance or max_return"), mcp.DefaultString("min_variance")),
		mcp.WithString("portfolio", mcp.Description("all, equities, or futures; the value is not applied and the whole portfolio is always used"), mcp.DefaultString("all")),
		mcp.WithNumber("risk_aversion", mcp.Description("lambda penalty used by max_return, default 1.0")),
		mcp.WithString("format", mcp.Description("full, summary, or agent"), mcp.DefaultString("full")),
	)
}

func (r *Registrar) handleRunOptimization(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := userIDFromArgs(req)
	format := req.GetString("format", "full")
	lambda := 1.0
	if v, ok := req.GetArguments()["risk_aversion"].(float64); ok {
		lambda = v
	}

	objective := optimize.ObjectiveMinVariance
	if req.GetString("objective", "min_variance") == "max_return" {
		objective = optimize.ObjectiveMaxReturn
	}

	scope := canonicalizer.Scope{Kind: canonicalizer.ScopeAll, Value: req.GetString("portfolio", "all")}

	out, err := r.svc.RunOptimization(ctx, userID, scope, objective, lambda)
	if err != nil {
		return mcp.NewToolResultText(errorResult(err)), nil
	}

	weights := make(map[string]float64, len(out.Solution.Weights))
	for i, sym := range out.Solution.Symbols {
		weights[sym] = out.Solution.Weights[i]
	}

	flags := flagsToEnvelope(out.Evaluation.Flags)
	result := Result{
		Success: true,
		Summary: map[string]any{
			"pass":       out.Evaluation.Pass,
			"score":      out.Evaluation.Score,
			"volatility": out.Decomposition.VolPort,
		},
		Detail:   map[string]any{"weights": weights, "decomposition": out.Decomposition},
		Metadata: Metadata{AnalysisDate: time.Now(), UserID: userID},
		Flags:    flags,
	}
	if format == "agent" {
		verdict := "pass"
		if !out.Evaluation.Pass {
			verdict = "breach"
		}
		result.Snapshot = &Snapshot{
			Verdict: verdict,
			Metrics: map[string]float64{"score": out.Evaluation.Score, "volatility": out.Decomposition.VolPort},
			Flags:   flagCodes(flags),
		}
	}
	return mcp.NewToolResultText(toJSON(result)), nil
}
