// Package analysis implements spec.md §4.10: the thin service-layer
// orchestrator that wires the canonicalizer, factor engine, risk
// evaluator, optimizer/what-if, and factor-intelligence packages behind a
// single result cache, so internal/mcptools and internal/server never
// diverge in semantics (spec.md §6). Grounded on the teacher's
// internal/modules/planning/service.go "thin orchestrator composing
// sub-services via constructor injection" pattern.
package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/henrysouchien/portfolio-risk-engine/internal/apperr"
	"github.com/henrysouchien/portfolio-risk-engine/internal/cache"
	"github.com/henrysouchien/portfolio-risk-engine/internal/domain"
	"github.com/henrysouchien/portfolio-risk-engine/internal/modules/canonicalizer"
	"github.com/henrysouchien/portfolio-risk-engine/internal/modules/factor"
	"github.com/henrysouchien/portfolio-risk-engine/internal/modules/factorintel"
	"github.com/henrysouchien/portfolio-risk-engine/internal/modules/optimize"
	"github.com/henrysouchien/portfolio-risk-engine/internal/modules/performance"
	"github.com/henrysouchien/portfolio-risk-engine/internal/modules/risk"
)

// PortfolioSource loads a user's positions and assembles the per-asset
// return series an Engine.Analyze call needs, already aligned to panel's
// date index. It is the seam between this orchestrator and
// internal/modules/providers + internal/modules/priceseries; supplied by
// whatever wires cmd/server together.
type PortfolioSource interface {
	Load(ctx context.Context, userID string, scope canonicalizer.Scope, panelDates []time.Time) (*domain.CanonicalPortfolio, []factor.AssetInput, map[string]domain.AssetClass, error)
}

// ProfileStore persists and retrieves a user's risk profile (spec.md §6
// set_risk_profile / get_risk_profile).
type ProfileStore interface {
	Get(ctx context.Context, userID string) (domain.RiskProfile, error)
	Set(ctx context.Context, userID string, profile domain.RiskProfile) error
}

// PanelSource supplies the shared factor-return panel, refreshed on its
// own schedule by internal/scheduler.
type PanelSource interface {
	Load(ctx context.Context) (*domain.FactorReturnPanel, error)
}

// Service is the analysis orchestrator. The read methods AnalyzeRisk,
// AnalyzeFactors and RealizedPerformance are cached under (operation,
// portfolio_fingerprint, parameters, data_version) per spec.md §4.10;
// RunWhatIf, RunOptimization and GetRiskProfile are not cached. Every
// mutation-shaped method (SetRiskProfile, basket
// writes handled by internal/mcptools directly against the basket
// repository) must call InvalidateUser afterward.
type Service struct {
	portfolios PortfolioSource
	profiles   ProfileStore
	panels     PanelSource
	engine     *factor.Engine
	cache      *cache.Cache
	dataVersion string
	ttl        time.Duration
	log        zerolog.Logger
}

// NewService wires the orchestrator's sub-services.
func NewService(portfolios PortfolioSource, profiles ProfileStore, panels PanelSource, engine *factor.Engine, c *cache.Cache, dataVersion string, ttl time.Duration, log zerolog.Logger) *Service {
	return &Service{
		portfolios:  portfolios,
		profiles:    profiles,
		panels:      panels,
		engine:      engine,
		cache:       c,
		dataVersion: dataVersion,
		ttl:         ttl,
		log:         log.With().Str("module", "analysis").Logger(),
	}
}

// RiskAnalysis is get_risk_analysis's result (spec.md §6): the factor
// decomposition plus the compliance evaluation for one scope.
type RiskAnalysis struct {
	Portfolio     *domain.CanonicalPortfolio
	Decomposition factor.Decomposition
	Evaluation    risk.Evaluation
	Excluded      map[string]string
	Regressions   []factor.AssetExposure
	Factors       []string
	FactorCov     *mat.SymDense
}

// AnalyzeRisk implements get_risk_analysis / get_risk_score (spec.md §6):
// canonicalize, run the factor engine, then evaluate against the user's
// risk profile, all behind the shared cache.
func (s *Service) AnalyzeRisk(ctx context.Context, userID string, scope canonicalizer.Scope) (RiskAnalysis, error) {
	key := cache.Key{UserID: userID, Operation: "risk_analysis", Parameters: scope.String(), DataVersion: s.dataVersion}

	panel, err := s.panels.Load(ctx)
	if err != nil {
		return RiskAnalysis{}, err
	}
	portfolio, inputs, classes, err := s.portfolios.Load(ctx, userID, scope, panel.Dates)
	if err != nil {
		return RiskAnalysis{}, err
	}
	key.PortfolioFingerprint = cache.FingerprintPortfolio(legWeights(portfolio))

	if cached, ok := s.cache.Get(key); ok {
		return cached.(RiskAnalysis), nil
	}

	profile, err := s.profiles.Get(ctx, userID)
	if err != nil {
		return RiskAnalysis{}, err
	}

	result := s.engine.Analyze(inputs, classes, panel)
	evaluation := risk.Evaluate(profile, result, legWeights(portfolio), portfolio.NotionalLeverage)

	analysis := RiskAnalysis{
		Portfolio:     portfolio,
		Decomposition: result.Decomposition,
		Evaluation:    evaluation,
		Excluded:      result.Excluded,
		Regressions:   result.Regressions,
		Factors:       result.Factors,
		FactorCov:     result.FactorCov,
	}
	s.cache.Set(key, analysis, s.ttl)
	return analysis, nil
}

// RunWhatIf implements run_whatif (spec.md §6 / §4.8): re-evaluates the
// portfolio under a proposed reweighting without persisting anything, so
// it is deliberately never cached — the whole point is to preview a
// hypothetical change, and caching it would return a stale scenario for a
// different request shaped the same way.
func (s *Service) RunWhatIf(ctx context.Context, userID string, scope canonicalizer.Scope, req optimize.ChangeRequest) (optimize.Scenario, error) {
	panel, err := s.panels.Load(ctx)
	if err != nil {
		return optimize.Scenario{}, err
	}
	_, inputs, classes, err := s.portfolios.Load(ctx, userID, scope, panel.Dates)
	if err != nil {
		return optimize.Scenario{}, err
	}
	profile, err := s.profiles.Get(ctx, userID)
	if err != nil {
		return optimize.Scenario{}, err
	}
	leverage := leverageOf(inputs)
	return optimize.RunWhatIf(s.engine, inputs, classes, panel, profile, leverage, req), nil
}

// OptimizationResult is run_optimization's result (spec.md §6): the
// solved weights plus the resulting decomposition/evaluation so a caller
// never has to re-run AnalyzeRisk to see what the proposal would do.
type OptimizationResult struct {
	Solution   optimize.Solution
	Decomposition factor.Decomposition
	Evaluation risk.Evaluation
}

// RunOptimization implements run_optimization (spec.md §4.8): builds the
// QP directly from the same AnalyzeRisk decomposition get_risk_analysis
// would produce (asset covariance implied by the fitted factor model,
// per-asset expected return from its annualized fitted regression alpha,
// the user's risk profile for the box/leverage/factor-beta constraints),
// solves it, then re-runs the factor engine and risk evaluation on the
// solved weights. The result holds the post-optimization view only.
// Never cached — like RunWhatIf, it previews a hypothetical the caller
// picks on the fly (here, an objective/lambda pair) rather than serving
// a stable query.
func (s *Service) RunOptimization(ctx context.Context, userID string, scope canonicalizer.Scope, objective optimize.Objective, lambda float64) (OptimizationResult, error) {
	panel, err := s.panels.Load(ctx)
	if err != nil {
		return OptimizationResult{}, err
	}
	_, inputs, classes, err := s.portfolios.Load(ctx, userID, scope, panel.Dates)
	if err != nil {
		return OptimizationResult{}, err
	}
	profile, err := s.profiles.Get(ctx, userID)
	if err != nil {
		return OptimizationResult{}, err
	}

	current := s.engine.Analyze(inputs, classes, panel)
	if len(current.Regressions) == 0 {
		return OptimizationResult{}, apperr.Validation("run_optimization: no assets with enough history to build a covariance matrix")
	}

	problem := buildOptimizationProblem(current, profile, objective, lambda)
	initial := make([]float64, len(problem.Symbols))
	for i, sym := range problem.Symbols {
		for _, exp := range current.Regressions {
			if exp.Symbol == sym {
				initial[i] = exp.Weight
			}
		}
	}

	solution, err := optimize.Solve(problem, initial)
	if err != nil {
		return OptimizationResult{}, err
	}

	reweighted := make([]factor.AssetInput, 0, len(inputs))
	for _, in := range inputs {
		w := 0.0
		for j, sym := range problem.Symbols {
			if sym == in.Symbol.Key() {
				w = solution.Weights[j]
			}
		}
		reweighted = append(reweighted, factor.AssetInput{Symbol: in.Symbol, Weight: w, Returns: in.Returns})
	}
	result := s.engine.Analyze(reweighted, classes, panel)
	legWeights := make(map[string]float64, len(reweighted))
	for _, in := range reweighted {
		legWeights[in.Symbol.Key()] += in.Weight
	}
	evaluation := risk.Evaluate(profile, result, legWeights, leverageOf(reweighted))
	return OptimizationResult{Solution: *solution, Decomposition: result.Decomposition, Evaluation: evaluation}, nil
}

// buildOptimizationProblem turns an already-run factor.Result and the
// user's risk profile into a QP: asset covariance from the fitted factor
// model (factor.AssetCovariance), expected return from each asset's
// fitted regression alpha (annualized), and constraints from the profile's
// single-stock cap, factor-beta caps, and leverage cap.
func buildOptimizationProblem(current factor.Result, profile domain.RiskProfile, objective optimize.Objective, lambda float64) optimize.Problem {
	n := len(current.Regressions)
	symbols := make([]string, n)
	expectedReturns := make([]float64, n)
	for i, exp := range current.Regressions {
		symbols[i] = exp.Symbol
		expectedReturns[i] = exp.Regression.Alpha * 12 // annualized fitted alpha; no forward factor-premium view available here
	}
	cov := factor.AssetCovariance(current.Regressions, current.Factors, current.FactorCov)

	loadings := make(map[string][]float64, len(current.Factors))
	for _, f := range current.Factors {
		col := make([]float64, n)
		for i, exp := range current.Regressions {
			for j, rf := range exp.Regression.Factors {
				if rf == f {
					col[i] = exp.Regression.Beta[j]
				}
			}
		}
		loadings[f] = col
	}

	return optimize.Problem{
		Symbols:         symbols,
		ExpectedReturns: expectedReturns,
		Cov:             cov,
		Objective:       objective,
		Lambda:          lambda,
		Constraints: optimize.Constraints{
			MaxSingleStock: profile.MaxSingleStockWeight,
			FactorLoadings: loadings,
			FactorBetaCaps: profile.FactorBetaCaps,
			MaxLeverage:    profile.MaxLeverage,
		},
	}
}

// PerformanceResult wraps the realized/hypothetical performance report
// (spec.md §6 get_performance).
type PerformanceResult struct {
	Report performance.Report
}

// RealizedPerformance implements get_performance(mode=realized): the
// caller supplies the already-chained monthly returns for the requested
// scope (built from internal/modules/performance's timeline/NAV/TWR
// pipeline — data ingestion is out of this orchestrator's scope) and
// gets back the standard report, cached like every other read.
func (s *Service) RealizedPerformance(ctx context.Context, userID, parameters string, monthlyReturns []float64, annualRiskFreeRate float64, dq performance.DataQuality, portfolioFingerprint string) (PerformanceResult, error) {
	key := cache.Key{UserID: userID, Operation: "performance_realized", Parameters: parameters, PortfolioFingerprint: portfolioFingerprint, DataVersion: s.dataVersion}
	if cached, ok := s.cache.Get(key); ok {
		return cached.(PerformanceResult), nil
	}
	result := PerformanceResult{Report: performance.BuildReport(monthlyReturns, annualRiskFreeRate, dq)}
	s.cache.Set(key, result, s.ttl)
	return result, nil
}

// FactorAnalysis implements get_factor_analysis / get_factor_recommendations
// (spec.md §6, §4.9): the shared panel, extended with a user's baskets
// when requested, plus its bucketed correlations and basket overlay. All
// of these are computed on every call; there is no per-view selection.
type FactorAnalysis struct {
	Panel      *domain.FactorReturnPanel
	Warnings   []string
	Bucketed   map[string]factorintel.Matrix
	Overlay    *factorintel.Matrix
}

// AnalyzeFactors implements get_factor_analysis. componentReturns must
// already be aligned to panel's date index for every ticker referenced by
// a basket.
func (s *Service) AnalyzeFactors(ctx context.Context, userID string, baskets []domain.Basket, componentReturns map[string][]float64, marketCaps map[string]float64, includeBaskets bool) (FactorAnalysis, error) {
	panel, err := s.panels.Load(ctx)
	if err != nil {
		return FactorAnalysis{}, err
	}

	fp := factorintel.Fingerprint(baskets)
	key := cache.Key{UserID: userID, Operation: "factor_analysis", Parameters: fmt.Sprintf("include_baskets=%v", includeBaskets), PortfolioFingerprint: fp, DataVersion: s.dataVersion}
	if cached, ok := s.cache.Get(key); ok {
		return cached.(FactorAnalysis), nil
	}

	working := panel
	var warnings []string
	if includeBaskets && len(baskets) > 0 {
		working, warnings = factorintel.AppendBasketColumns(panel, baskets, componentReturns, marketCaps)
	}

	result := FactorAnalysis{
		Panel:    working,
		Warnings: warnings,
		Bucketed: factorintel.BucketedCorrelations(working),
		Overlay:  factorintel.BasketOverlay(working),
	}
	s.cache.Set(key, result, s.ttl)
	return result, nil
}

// GetRiskProfile implements get_risk_profile: a direct profile-store
// read, not routed through AnalyzeRisk, since a user with no positions
// yet still has a profile to inspect.
func (s *Service) GetRiskProfile(ctx context.Context, userID string) (domain.RiskProfile, error) {
	return s.profiles.Get(ctx, userID)
}

// SetRiskProfile implements set_risk_profile and invalidates every
// cached analytical result for userID, per spec.md §4.10's "mutation ...
// invalidates the set of keys overlapping that user."
func (s *Service) SetRiskProfile(ctx context.Context, userID string, profile domain.RiskProfile) error {
	if err := s.profiles.Set(ctx, userID, profile); err != nil {
		return apperr.Wrap(err, "analysis: set risk profile for %s", userID)
	}
	s.cache.InvalidateUser(userID)
	return nil
}

// InvalidateForMutation is called by basket/portfolio-holdings mutation
// handlers in internal/mcptools and internal/server after a write, so
// the next read recomputes rather than serving a stale cached result.
func (s *Service) InvalidateForMutation(userID string) {
	s.cache.InvalidateUser(userID)
}

func legWeights(p *domain.CanonicalPortfolio) map[string]float64 {
	out := make(map[string]float64, len(p.Legs))
	for k, leg := range p.Legs {
		out[k] = leg.WeightByNotional
	}
	return out
}

func leverageOf(inputs []factor.AssetInput) float64 {
	var gross float64
	for _, in := range inputs {
		if in.Weight < 0 {
			gross += -in.Weight
		} else {
			gross += in.Weight
		}
	}
	return gross
}
