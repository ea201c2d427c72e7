package factorintel

import (
	"math"
	"testing"
	"time"

	"github.com/henrysouchien/portfolio-risk-engine/internal/domain"
)

func monthlyDates(n int) []time.Time {
	out := make([]time.Time, n)
	start := time.Date(2021, time.January, 31, 0, 0, 0, 0, time.UTC)
	for i := range out {
		out[i] = start.AddDate(0, i, 0)
	}
	return out
}

func syntheticSeries(n int, seed float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 0.01*math.Sin(seed+float64(i)*0.37) + 0.002*float64(i%5-2)
	}
	return out
}

func buildPanel(n int) *domain.FactorReturnPanel {
	factors := []string{"SPY", "MTUM"}
	returns := make([][]float64, n)
	for t := 0; t < n; t++ {
		returns[t] = []float64{syntheticSeries(n, 1)[t], syntheticSeries(n, 2)[t]}
	}
	return &domain.FactorReturnPanel{
		Dates: monthlyDates(n), Factors: factors, Returns: returns, Frequency: "monthly",
		Labels:     map[string]string{"SPY": "S&P 500", "MTUM": "Momentum"},
		Categories: map[string]string{"SPY": "market", "MTUM": "style"},
	}
}

func TestResolveWeights_EqualSplitsEvenly(t *testing.T) {
	basket := domain.Basket{Tickers: []string{"AAPL", "MSFT", "GOOG"}, WeightingMethod: "equal"}
	w := ResolveWeights(basket, nil)
	for _, t2 := range basket.Tickers {
		if math.Abs(w[t2]-1.0/3.0) > 1e-9 {
			t.Errorf("expected equal weight 1/3, got %v for %s", w[t2], t2)
		}
	}
}

func TestResolveWeights_MarketCapFallsBackToEqualWhenDataMissing(t *testing.T) {
	basket := domain.Basket{Tickers: []string{"AAPL", "MSFT"}, WeightingMethod: "market_cap"}
	w := ResolveWeights(basket, nil)
	if math.Abs(w["AAPL"]-0.5) > 1e-9 || math.Abs(w["MSFT"]-0.5) > 1e-9 {
		t.Errorf("expected equal fallback when market caps unknown, got %v", w)
	}
}

func TestBuildBasketSeries_RenormalizesAgainstAvailableComponents(t *testing.T) {
	weights := map[string]float64{"A": 0.5, "B": 0.5}
	componentReturns := map[string][]float64{
		"A": {0.10, math.NaN()},
		"B": {0.20, 0.30},
	}
	series, err := BuildBasketSeries(2, weights, componentReturns)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(series[0]-0.15) > 1e-9 {
		t.Errorf("date 0: expected weighted average 0.15, got %v", series[0])
	}
	if math.Abs(series[1]-0.30) > 1e-9 {
		t.Errorf("date 1: A missing, weight should renormalize fully onto B (0.30), got %v", series[1])
	}
}

func TestBuildBasketSeries_AllNaNFails(t *testing.T) {
	weights := map[string]float64{"A": 1.0}
	componentReturns := map[string][]float64{"A": {math.NaN(), math.NaN()}}
	_, err := BuildBasketSeries(2, weights, componentReturns)
	if err == nil {
		t.Fatal("expected error for a basket with no observed dates")
	}
}

func TestAppendBasketColumns_CollisionIsSkippedWithWarning(t *testing.T) {
	panel := buildPanel(36)
	baskets := []domain.Basket{{Name: "SPY", Tickers: []string{"AAPL"}, WeightingMethod: "equal"}}
	componentReturns := map[string][]float64{"AAPL": syntheticSeries(36, 3)}

	extended, warnings := AppendBasketColumns(panel, baskets, componentReturns, nil)
	if len(warnings) != 1 {
		t.Fatalf("expected one collision warning, got %v", warnings)
	}
	if len(extended.Factors) != len(panel.Factors) {
		t.Errorf("collided basket should not be appended, factors = %v", extended.Factors)
	}
}

func TestAppendBasketColumns_SuccessfulBasketTaggedUserBaskets(t *testing.T) {
	panel := buildPanel(36)
	baskets := []domain.Basket{{Name: "MyTechBasket", Tickers: []string{"AAPL", "MSFT"}, WeightingMethod: "equal"}}
	componentReturns := map[string][]float64{
		"AAPL": syntheticSeries(36, 3),
		"MSFT": syntheticSeries(36, 4),
	}

	extended, warnings := AppendBasketColumns(panel, baskets, componentReturns, nil)
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	if extended.Categories["MyTechBasket"] != "user_baskets" {
		t.Errorf("expected user_baskets category, got %v", extended.Categories["MyTechBasket"])
	}
	if extended.Labels["MyTechBasket"] != "Basket: MyTechBasket" {
		t.Errorf("expected display label, got %v", extended.Labels["MyTechBasket"])
	}
	if len(extended.Returns[0]) != len(panel.Factors)+1 {
		t.Errorf("expected one appended column per row, got row length %d", len(extended.Returns[0]))
	}
	// original panel must be untouched (Clone semantics)
	if len(panel.Factors) != 2 {
		t.Errorf("original panel mutated, factors = %v", panel.Factors)
	}
}

func TestBucketedCorrelations_ExcludesSingleMemberBucket(t *testing.T) {
	panel := buildPanel(36)
	panel.Categories["MTUM"] = "solo_bucket" // now "market" and "solo_bucket" both have 1 member
	result := BucketedCorrelations(panel)
	if _, ok := result["market"]; ok {
		t.Error("single-member bucket 'market' should be excluded")
	}
	if _, ok := result["solo_bucket"]; ok {
		t.Error("single-member bucket 'solo_bucket' should be excluded")
	}
}

func TestBucketedCorrelations_MultiMemberBucketIncluded(t *testing.T) {
	panel := buildPanel(36)
	panel.Categories["MTUM"] = "market" // now both columns share the "market" bucket
	result := BucketedCorrelations(panel)
	m, ok := result["market"]
	if !ok {
		t.Fatal("expected market bucket with 2 members to be present")
	}
	if len(m.Rows) != 2 || m.Entries[0][0] != 1.0 {
		t.Errorf("unexpected correlation matrix shape: %+v", m)
	}
}

func TestBasketOverlay_SingleBasketStillSurfaces(t *testing.T) {
	panel := buildPanel(36)
	baskets := []domain.Basket{{Name: "SoloBasket", Tickers: []string{"AAPL"}, WeightingMethod: "equal"}}
	componentReturns := map[string][]float64{"AAPL": syntheticSeries(36, 7)}
	extended, warnings := AppendBasketColumns(panel, baskets, componentReturns, nil)
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	overlay := BasketOverlay(extended)
	if overlay == nil {
		t.Fatal("expected a basket_overlay matrix even with a single basket")
	}
	if len(overlay.Rows) != 1 || overlay.Rows[0] != "SoloBasket" {
		t.Errorf("expected SoloBasket row, got %v", overlay.Rows)
	}
}

func TestFingerprint_StableForSameInputsDifferentOrder(t *testing.T) {
	updated := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	a := []domain.Basket{{UserID: "u1", Name: "tech", UpdatedAt: updated}, {UserID: "u1", Name: "bonds", UpdatedAt: updated}}
	b := []domain.Basket{{UserID: "u1", Name: "bonds", UpdatedAt: updated}, {UserID: "u1", Name: "tech", UpdatedAt: updated}}
	if Fingerprint(a) != Fingerprint(b) {
		t.Error("fingerprint should be order-independent")
	}
}

func TestFingerprint_ChangesWithUpdatedAt(t *testing.T) {
	b1 := []domain.Basket{{UserID: "u1", Name: "tech", UpdatedAt: time.Unix(0, 0)}}
	b2 := []domain.Basket{{UserID: "u1", Name: "tech", UpdatedAt: time.Unix(100, 0)}}
	if Fingerprint(b1) == Fingerprint(b2) {
		t.Error("fingerprint should change when UpdatedAt changes")
	}
}

func TestComputeProfile_SchemaMatchesStandardFactorOutput(t *testing.T) {
	panel := buildPanel(36)
	profile, err := ComputeProfile(panel, "MTUM", "SPY", 0.02)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if profile.Volatility <= 0 {
		t.Errorf("expected positive volatility, got %v", profile.Volatility)
	}
}
