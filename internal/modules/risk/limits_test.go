package risk

import (
	"testing"

	"github.com/henrysouchien/portfolio-risk-engine/internal/domain"
	"github.com/henrysouchien/portfolio-risk-engine/internal/modules/factor"
)

func TestEvaluate_PassesWithinLimits(t *testing.T) {
	profile := domain.RiskProfile{
		MaxVolatility: 0.20, MaxLeverage: 2.0, MaxFactorContribution: 0.9,
		MaxSingleStockWeight: 0.25, MaxMarketContribution: 0.9,
	}
	decomp := factor.Decomposition{VolPort: 0.10, FactorPct: 0.5, FactorDecomp: map[string]float64{"SPY": 0.6}}
	eval := Evaluate(profile, factor.Result{Decomposition: decomp}, map[string]float64{"AAPL": 0.10}, 1.0)
	if !eval.Pass {
		t.Fatalf("expected pass, got flags: %+v", eval.Flags)
	}
	if eval.Score != 100 {
		t.Errorf("expected perfect score with no flags, got %v", eval.Score)
	}
}

func TestEvaluate_BreachesVolatilityLimit(t *testing.T) {
	profile := domain.RiskProfile{MaxVolatility: 0.10, MaxLeverage: 10, MaxFactorContribution: 1, MaxSingleStockWeight: 1, MaxMarketContribution: 1}
	decomp := factor.Decomposition{VolPort: 0.15, FactorDecomp: map[string]float64{}}
	eval := Evaluate(profile, factor.Result{Decomposition: decomp}, nil, 1.0)
	if eval.Pass {
		t.Fatal("expected breach to fail evaluation")
	}
	found := false
	for _, f := range eval.Flags {
		if f.Code == "volatility" && f.Severity == SeverityBreach {
			found = true
		}
	}
	if !found {
		t.Errorf("expected volatility breach flag, got %+v", eval.Flags)
	}
}

func TestEvaluate_FlagsOrderedLexicographically(t *testing.T) {
	profile := domain.RiskProfile{MaxVolatility: 0.01, MaxLeverage: 0.01, MaxFactorContribution: 1, MaxSingleStockWeight: 1, MaxMarketContribution: 1}
	decomp := factor.Decomposition{VolPort: 0.5, FactorDecomp: map[string]float64{}}
	eval := Evaluate(profile, factor.Result{Decomposition: decomp}, nil, 5.0)
	if len(eval.Flags) < 2 {
		t.Fatalf("expected multiple flags, got %d", len(eval.Flags))
	}
	for i := 1; i < len(eval.Flags); i++ {
		if severityRank(eval.Flags[i-1].Severity) == severityRank(eval.Flags[i].Severity) && eval.Flags[i-1].Code > eval.Flags[i].Code {
			t.Errorf("flags not lexicographically ordered within severity: %v before %v", eval.Flags[i-1].Code, eval.Flags[i].Code)
		}
	}
}

// TestEvaluate_FlagsOrderedBySeverityThenCode pins spec.md §4.6's ordering
// rule: severity desc first, code second — "leverage" sorts before
// "volatility" alphabetically, but a breach-level volatility flag must
// still come first when leverage is only a warning.
func TestEvaluate_FlagsOrderedBySeverityThenCode(t *testing.T) {
	profile := domain.RiskProfile{
		MaxVolatility: 0.10, MaxLeverage: 1.0, MaxFactorContribution: 1,
		MaxSingleStockWeight: 1, MaxMarketContribution: 1,
	}
	decomp := factor.Decomposition{VolPort: 0.20, FactorDecomp: map[string]float64{}}
	eval := Evaluate(profile, factor.Result{Decomposition: decomp}, nil, 0.85)
	if len(eval.Flags) != 2 {
		t.Fatalf("expected exactly 2 flags, got %+v", eval.Flags)
	}
	if eval.Flags[0].Code != "volatility" || eval.Flags[0].Severity != SeverityBreach {
		t.Errorf("expected breach-severity volatility flag first, got %+v", eval.Flags[0])
	}
	if eval.Flags[1].Code != "leverage" || eval.Flags[1].Severity != SeverityWarning {
		t.Errorf("expected warning-severity leverage flag second, got %+v", eval.Flags[1])
	}
}

// TestEvaluate_IndustryContributionBreach confirms FactorDecomp entries
// are attributed to their FactorProxySet category via FactorCategories
// rather than a hardcoded ticker, so a non-SPY industry proxy's
// contribution is still caught.
func TestEvaluate_IndustryContributionBreach(t *testing.T) {
	profile := domain.RiskProfile{
		MaxVolatility: 1, MaxLeverage: 10, MaxFactorContribution: 1,
		MaxSingleStockWeight: 1, MaxMarketContribution: 1, MaxIndustryContribution: 0.2,
	}
	decomp := factor.Decomposition{FactorPct: 0.8, FactorDecomp: map[string]float64{"XLK": 0.9}}
	result := factor.Result{Decomposition: decomp, FactorCategories: map[string]string{"XLK": "industry"}}
	eval := Evaluate(profile, result, nil, 1.0)
	if eval.Pass {
		t.Fatal("expected industry-contribution breach to fail evaluation")
	}
	found := false
	for _, f := range eval.Flags {
		if f.Code == "industry_contribution" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected industry_contribution flag, got %+v", eval.Flags)
	}
}

// TestEvaluate_SingleFactorLossBreach checks the per-factor annualized
// loss derived from FactorDecomp's share of VarFactor.
func TestEvaluate_SingleFactorLossBreach(t *testing.T) {
	profile := domain.RiskProfile{
		MaxVolatility: 1, MaxLeverage: 10, MaxFactorContribution: 1,
		MaxSingleStockWeight: 1, MaxMarketContribution: 1, MaxSingleFactorLoss: 0.05,
	}
	decomp := factor.Decomposition{VarFactor: 0.04, FactorDecomp: map[string]float64{"SPY": 1.0}}
	eval := Evaluate(profile, factor.Result{Decomposition: decomp}, nil, 1.0)
	if eval.Pass {
		t.Fatal("expected single-factor-loss breach to fail evaluation")
	}
	found := false
	for _, f := range eval.Flags {
		if f.Code == "single_factor_loss:SPY" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected single_factor_loss:SPY flag, got %+v", eval.Flags)
	}
}

func TestEvaluate_FactorBetaCapBreach(t *testing.T) {
	profile := domain.RiskProfile{
		MaxVolatility: 1, MaxLeverage: 10, MaxFactorContribution: 1, MaxSingleStockWeight: 1, MaxMarketContribution: 1,
		FactorBetaCaps: map[string][2]float64{"SPY": {-0.5, 1.2}},
	}
	decomp := factor.Decomposition{BetaPort: map[string]float64{"SPY": 1.8}, FactorDecomp: map[string]float64{}}
	eval := Evaluate(profile, factor.Result{Decomposition: decomp}, nil, 1.0)
	if eval.Pass {
		t.Fatal("expected beta-cap breach to fail")
	}
}

func TestCompositeScore_AnchorPoints(t *testing.T) {
	cases := []struct {
		ratio float64
		want  float64
	}{
		{0, 100},
		{1.0, 70},
		{2.0, 30},
		{5.0, 0},
		{10.0, 0},
	}
	for _, c := range cases {
		flags := []Flag{{Limit: 1.0, Measured: c.ratio}}
		got := CompositeScore(flags)
		if diff := got - c.want; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("ratio %v: score = %v, want %v", c.ratio, got, c.want)
		}
	}
}

func TestDefaultTemplates_AllFourLifecyclesPresent(t *testing.T) {
	catalog := DefaultTemplates()
	for _, name := range []string{"income", "balanced", "growth", "trading"} {
		if _, ok := catalog.Lookup(name); !ok {
			t.Errorf("expected built-in template %q", name)
		}
	}
}

func TestLoadTemplates_ParsesYAML(t *testing.T) {
	data := []byte(`
profiles:
  - name: custom
    max_volatility: 0.18
    max_leverage: 1.8
    factor_beta_caps:
      SPY: [-0.3, 1.5]
`)
	catalog, err := LoadTemplates(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p, ok := catalog.Lookup("custom")
	if !ok {
		t.Fatal("expected custom template to be loaded")
	}
	if p.MaxVolatility != 0.18 {
		t.Errorf("max_volatility = %v, want 0.18", p.MaxVolatility)
	}
	if caps, ok := p.FactorBetaCaps["SPY"]; !ok || caps[1] != 1.5 {
		t.Errorf("expected SPY beta cap ceiling 1.5, got %v", caps)
	}
}
