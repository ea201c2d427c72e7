package mcptools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/henrysouchien/portfolio-risk-engine/internal/apperr"
	"github.com/henrysouchien/portfolio-risk-engine/internal/domain"
	"github.com/henrysouchien/portfolio-risk-engine/internal/modules/analysis"
	"github.com/henrysouchien/portfolio-risk-engine/internal/modules/canonicalizer"
	"github.com/henrysouchien/portfolio-risk-engine/internal/modules/contracts"
	"github.com/henrysouchien/portfolio-risk-engine/internal/modules/optimize"
	"github.com/henrysouchien/portfolio-risk-engine/internal/modules/risk"
)

// basketStore is the persistence seam list_baskets/get_basket/create_basket/
// update_basket/delete_basket write through; satisfied by
// internal/database/repositories.BasketRepository.
type basketStore interface {
	List(userID string) ([]domain.Basket, error)
	Get(userID, name string) (*domain.Basket, error)
	Upsert(b domain.Basket) error
	Delete(userID, name string) error
}

// Registrar wires spec.md §6's tool surface onto an MCP server, every
// handler delegating to the shared analysis.Service so internal/server's
// HTTP mirror never drifts from the MCP behavior.
type Registrar struct {
	svc     *analysis.Service
	baskets basketStore
	trades  tradePreviewStore
	targets targetAllocationStore
	catalog *contracts.Catalog
	log     zerolog.Logger
}

// NewRegistrar binds a Registrar to the shared orchestrator, basket store,
// trade-preview store, target-allocation store, and futures contract catalog.
func NewRegistrar(svc *analysis.Service, baskets basketStore, trades tradePreviewStore, targets targetAllocationStore, catalog *contracts.Catalog, log zerolog.Logger) *Registrar {
	return &Registrar{svc: svc, baskets: baskets, trades: trades, targets: targets, catalog: catalog, log: log.With().Str("component", "mcptools").Logger()}
}

// Register adds every implemented tool to s (cmd/server wires this at
// startup before calling server.ServeStdio or mounting the HTTP-streaming
// transport).
func (r *Registrar) Register(s *server.MCPServer) {
	s.AddTool(getRiskAnalysisTool(), r.handleGetRiskAnalysis)
	s.AddTool(getRiskScoreTool(), r.handleGetRiskScore)
	s.AddTool(runWhatIfTool(), r.handleRunWhatIf)
	s.AddTool(runOptimizationTool(), r.handleRunOptimization)
	s.AddTool(getRiskProfileTool(), r.handleGetRiskProfile)
	s.AddTool(setRiskProfileTool(), r.handleSetRiskProfile)
	s.AddTool(getPositionsTool(), r.handleGetPositions)
	s.AddTool(getFactorAnalysisTool(), r.handleGetFactorAnalysis)
	s.AddTool(getFactorRecommendationsTool(), r.handleGetFactorRecommendations)
	s.AddTool(getLeverageCapacityTool(), r.handleGetLeverageCapacity)
	s.AddTool(checkExitSignalsTool(), r.handleCheckExitSignals)
	s.AddTool(listBasketsTool(), r.handleListBaskets)
	s.AddTool(getBasketTool(), r.handleGetBasket)
	s.AddTool(createBasketTool(), r.handleCreateBasket)
	s.AddTool(updateBasketTool(), r.handleUpdateBasket)
	s.AddTool(deleteBasketTool(), r.handleDeleteBasket)
	s.AddTool(previewTradeTool(), r.handlePreviewTrade)
	s.AddTool(executeTradeTool(), r.handleExecuteTrade)
	s.AddTool(previewBasketTradeTool(), r.handlePreviewBasketTrade)
	s.AddTool(executeBasketTradeTool(), r.handleExecuteBasketTrade)
	s.AddTool(analyzeBasketTool(), r.handleAnalyzeBasket)
	s.AddTool(getFuturesMonthsTool(), r.handleGetFuturesMonths)
	s.AddTool(getFuturesCurveTool(), r.handleGetFuturesCurve)
	s.AddTool(previewFuturesRollTool(), r.handlePreviewFuturesRoll)
	s.AddTool(executeFuturesRollTool(), r.handleExecuteFuturesRoll)
}

func scopeFromArgs(req mcp.CallToolRequest) canonicalizer.Scope {
	segment := req.GetString("segment", "all")
	switch segment {
	case "equities", "futures":
		return canonicalizer.Scope{Kind: canonicalizer.ScopeAll, Value: segment}
	default:
		return canonicalizer.Scope{Kind: canonicalizer.ScopeAll}
	}
}

func userIDFromArgs(req mcp.CallToolRequest) string {
	return req.GetString("user_id", "default")
}

func worstSeverityBreach(flags []risk.Flag) bool {
	for _, f := range flags {
		if f.Severity == risk.SeverityBreach {
			return true
		}
	}
	return false
}

func flagsToEnvelope(flags []risk.Flag) []Flag {
	out := make([]Flag, 0, len(flags))
	for _, f := range flags {
		out = append(out, Flag{Code: f.Code, Severity: string(f.Severity), Message: f.Message, Limit: f.Limit, Measured: f.Measured})
	}
	return out
}

func flagCodes(flags []Flag) []string {
	out := make([]string, len(flags))
	for i, f := range flags {
		out[i] = f.Code
	}
	return out
}

// --- get_risk_analysis ---

func getRiskAnalysisTool() mcp.Tool {
	return mcp.NewTool("get_risk_analysis",
		mcp.WithDescription("Full factor risk decomposition and compliance evaluation for a portfolio scope."),
		mcp.WithString("user_id", mcp.Description("user identifier")),
		mcp.WithString("segment", mcp.Description("all, equities, or futures; the value is not applied and the whole portfolio is always used"), mcp.DefaultString("all")),
		mcp.WithString("format", mcp.Description("full, summary, or agent"), mcp.DefaultString("full")),
	)
}

func (r *Registrar) handleGetRiskAnalysis(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := userIDFromArgs(req)
	scope := scopeFromArgs(req)
	format := req.GetString("format", "full")

	out, err := r.svc.AnalyzeRisk(ctx, userID, scope)
	if err != nil {
		return mcp.NewToolResultText(errorResult(err)), nil
	}

	flags := flagsToEnvelope(out.Evaluation.Flags)
	result := Result{
		Success: true,
		Summary: map[string]any{
			"pass":        out.Evaluation.Pass,
			"score":       out.Evaluation.Score,
			"volatility":  out.Decomposition.VolPort,
			"factor_pct":  out.Decomposition.FactorPct,
			"idio_pct":    out.Decomposition.IdioPct,
		},
		Detail:   out.Decomposition,
		Metadata: Metadata{AnalysisDate: time.Now(), UserID: userID, Scope: out.Portfolio.Scope},
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

// --- get_risk_score ---

func getRiskScoreTool() mcp.Tool {
	return mcp.NewTool("get_risk_score",
		mcp.WithDescription("Composite risk score plus top contributing risk factors and recommendations."),
		mcp.WithString("user_id", mcp.Description("user identifier")),
		mcp.WithString("format", mcp.Description("full, summary, or agent"), mcp.DefaultString("full")),
	)
}

func (r *Registrar) handleGetRiskScore(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := userIDFromArgs(req)
	format := req.GetString("format", "full")

	out, err := r.svc.AnalyzeRisk(ctx, userID, canonicalizer.Scope{Kind: canonicalizer.ScopeAll})
	if err != nil {
		return mcp.NewToolResultText(errorResult(err)), nil
	}

	flags := flagsToEnvelope(out.Evaluation.Flags)
	result := Result{
		Success:  true,
		Summary:  map[string]any{"score": out.Evaluation.Score, "pass": out.Evaluation.Pass},
		Detail:   map[string]any{"factor_contributions": out.Decomposition.FactorDecomp, "beta_port": out.Decomposition.BetaPort},
		Metadata: Metadata{AnalysisDate: time.Now(), UserID: userID, Scope: out.Portfolio.Scope},
		Flags:    flags,
	}
	if format == "agent" {
		verdict := "pass"
		if worstSeverityBreach(out.Evaluation.Flags) {
			verdict = "breach"
		}
		result.Snapshot = &Snapshot{Verdict: verdict, Metrics: map[string]float64{"score": out.Evaluation.Score}, Flags: flagCodes(flags)}
	}
	return mcp.NewToolResultText(toJSON(result)), nil
}

// --- run_whatif ---

func runWhatIfTool() mcp.Tool {
	return mcp.NewTool("run_whatif",
		mcp.WithDescription("Re-evaluates the portfolio under a proposed target-weight or delta reweighting, without persisting anything."),
		mcp.WithString("user_id", mcp.Description("user identifier")),
		mcp.WithString("target_weights", mcp.Description("JSON object: symbol -> target weight")),
		mcp.WithString("delta_changes", mcp.Description("JSON object: symbol -> weight delta")),
		mcp.WithString("format", mcp.Description("full, summary, or agent"), mcp.DefaultString("full")),
	)
}

func parseWeightMap(raw string) map[string]float64 {
	if raw == "" {
		return nil
	}
	var out map[string]float64
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

func parseJSONArg(raw string, v any) error {
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return apperr.Validation("invalid JSON argument: %v", err)
	}
	return nil
}

func (r *Registrar) handleRunWhatIf(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := userIDFromArgs(req)
	format := req.GetString("format", "full")

	change := optimize.ChangeRequest{
		TargetWeights: parseWeightMap(req.GetString("target_weights", "")),
		DeltaChanges:  parseWeightMap(req.GetString("delta_changes", "")),
	}

	scenario, err := r.svc.RunWhatIf(ctx, userID, canonicalizer.Scope{Kind: canonicalizer.ScopeAll}, change)
	if err != nil {
		return mcp.NewToolResultText(errorResult(err)), nil
	}

	flags := flagsToEnvelope(scenario.After.Flags)
	result := Result{
		Success:  true,
		Summary:  map[string]any{"verdict": scenario.Verdict, "l1_distance": scenario.L1},
		Detail:   scenario,
		Metadata: Metadata{AnalysisDate: time.Now(), UserID: userID},
		Flags:    flags,
	}
	if format == "agent" {
		result.Snapshot = &Snapshot{
			Verdict: scenario.Verdict,
			Metrics: map[string]float64{"l1_distance": scenario.L1, "risk_score_before": scenario.Before.RiskScore, "risk_score_after": scenario.After.RiskScore},
			Flags:   flagCodes(flags),
		}
	}
	return mcp.NewToolResultText(toJSON(result)), nil
}

// --- get_risk_profile / set_risk_profile ---

func getRiskProfileTool() mcp.Tool {
	return mcp.NewTool("get_risk_profile",
		mcp.WithDescription("Returns the user's current risk profile limits."),
		mcp.WithString("user_id", mcp.Description("user identifier")),
	)
}

func (r *Registrar) handleGetRiskProfile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := userIDFromArgs(req)
	profile, err := r.svc.GetRiskProfile(ctx, userID)
	if err != nil {
		return mcp.NewToolResultText(errorResult(err)), nil
	}
	result := Result{
		Success:  true,
		Summary:  map[string]any{"name": profile.Name, "max_volatility": profile.MaxVolatility, "max_leverage": profile.MaxLeverage},
		Detail:   profile,
		Metadata: Metadata{AnalysisDate: time.Now(), UserID: userID},
	}
	return mcp.NewToolResultText(toJSON(result)), nil
}

func setRiskProfileTool() mcp.Tool {
	return mcp.NewTool("set_risk_profile",
		mcp.WithDescription("Sets the user's risk profile from a named template or explicit overrides."),
		mcp.WithString("user_id", mcp.Description("user identifier")),
		mcp.WithString("template", mcp.Description("income, growth, trading, or balanced")),
		mcp.WithNumber("max_volatility", mcp.Description("override: max portfolio volatility")),
		mcp.WithNumber("max_leverage", mcp.Description("override: max notional leverage")),
	)
}

func (r *Registrar) handleSetRiskProfile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := userIDFromArgs(req)
	template := req.GetString("template", "balanced")
	profile, ok := risk.DefaultTemplates().Lookup(template)
	if !ok {
		profile, _ = risk.DefaultTemplates().Lookup("balanced")
	}
	if v, ok := req.GetArguments()["max_volatility"].(float64); ok {
		profile.MaxVolatility = v
	}
	if v, ok := req.GetArguments()["max_leverage"].(float64); ok {
		profile.MaxLeverage = v
	}

	if err := r.svc.SetRiskProfile(ctx, userID, profile); err != nil {
		return mcp.NewToolResultText(errorResult(err)), nil
	}
	result := Result{
		Success:  true,
		Summary:  map[string]any{"template": template},
		Metadata: Metadata{AnalysisDate: time.Now(), UserID: userID},
	}
	return mcp.NewToolResultText(toJSON(result)), nil
}
