package canonicalizer

import (
	"testing"
	"time"

	"github.com/henrysouchien/portfolio-risk-engine/internal/domain"
)

func sym(root string) *domain.Instrument {
	return domain.Intern(domain.Instrument{Root: root, Classification: domain.AssetEquity})
}

// TestNativeOverAggregator_Scenario2 implements spec.md §8 scenario 2
// verbatim: DSU held natively via Schwab (qty 2551) and via the Plaid
// aggregator mirror (qty 4500). Scope source=schwab must see the native
// quantity; scope source=plaid must exclude DSU and record the leakage.
func TestNativeOverAggregator_Scenario2(t *testing.T) {
	positions := []domain.Position{
		{Symbol: sym("DSU"), Quantity: 2551, UnitPrice: 10, ProviderSource: domain.SourceNativeSchwab, AccountID: "schwab-1"},
		{Symbol: sym("DSU"), Quantity: 4500, UnitPrice: 10, ProviderSource: domain.SourceAggregatorPlaid, AccountID: "plaid-mirror"},
	}

	schwabView, err := Canonicalize("u1", positions, Scope{Kind: ScopeSource, Value: "schwab"}, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	leg, ok := schwabView.Legs["DSU"]
	if !ok {
		t.Fatal("expected DSU present in schwab scope")
	}
	if leg.NotionalValue != 25510 {
		t.Errorf("expected native qty 2551 @ 10 = 25510 notional, got %v", leg.NotionalValue)
	}

	plaidView, err := Canonicalize("u1", positions, Scope{Kind: ScopeSource, Value: "plaid"}, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := plaidView.Legs["DSU"]; ok {
		t.Error("expected DSU excluded from plaid scope (native authoritative)")
	}
	if len(plaidView.CrossSourceLeakage) != 1 || plaidView.CrossSourceLeakage[0] != "DSU" {
		t.Errorf("expected DSU recorded in plaid scope's cross_source_leakage, got %v", plaidView.CrossSourceLeakage)
	}
}

// TestTwoNatives_Scenario3 implements spec.md §8 scenario 3 verbatim: SPY
// reported by two native brokers (Schwab and IBKR). This is genuine
// cross-source ambiguity — SPY must be excluded from every scope and
// recorded in cross_source_leakage.
func TestTwoNatives_Scenario3(t *testing.T) {
	positions := []domain.Position{
		{Symbol: sym("SPY"), Quantity: 10, UnitPrice: 500, ProviderSource: domain.SourceNativeSchwab, AccountID: "schwab-1"},
		{Symbol: sym("SPY"), Quantity: 5, UnitPrice: 500, ProviderSource: domain.SourceNativeIBKR, AccountID: "ibkr-1"},
	}

	schwabView, err := Canonicalize("u1", positions, Scope{Kind: ScopeSource, Value: "schwab"}, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := schwabView.Legs["SPY"]; ok {
		t.Error("expected SPY excluded due to genuine cross-source ambiguity")
	}
	if len(schwabView.CrossSourceLeakage) != 1 || schwabView.CrossSourceLeakage[0] != "SPY" {
		t.Errorf("expected SPY recorded in cross_source_leakage, got %v", schwabView.CrossSourceLeakage)
	}
}

func TestSingleSource_AllScopeIncludesSymbol(t *testing.T) {
	positions := []domain.Position{
		{Symbol: sym("AAPL"), Quantity: 10, UnitPrice: 150, ProviderSource: domain.SourceNativeSchwab, AccountID: "schwab-1"},
	}
	view, err := Canonicalize("u1", positions, Scope{Kind: ScopeAll}, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	leg, ok := view.Legs["AAPL"]
	if !ok {
		t.Fatal("expected AAPL present")
	}
	if leg.WeightByNotional != 1.0 {
		t.Errorf("sole position should carry full weight, got %v", leg.WeightByNotional)
	}
}

// TestMixedPortfolio_FuturesMarginNeverBorrowsQtyTimesPrice implements
// spec.md §8 scenario 1 against the full Canonicalize pipeline, not just
// ContractSpec.Notional() in isolation: 2 contracts of ES at 5600 (point
// value 50, so qty*price would be 11200, neither the real notional nor a
// real margin figure) held alongside 100 AAPL at 255. With no
// broker-reported margin for ES, its leg must contribute zero to
// margin_total — AAPL's cash value is the entire NAV, exactly as spec.md
// §8 states (`margin_value = 25500`).
func TestMixedPortfolio_FuturesMarginNeverBorrowsQtyTimesPrice(t *testing.T) {
	contract := &domain.ContractIdentity{Multiplier: 50, AssetClass: domain.FuturesEquityIndex}
	es := domain.Intern(domain.Instrument{Root: "ES", Classification: domain.AssetFutures, Contract: contract})
	positions := []domain.Position{
		{Symbol: sym("AAPL"), Quantity: 100, UnitPrice: 255, ProviderSource: domain.SourceNativeSchwab, AccountID: "schwab-1"},
		{Symbol: es, Quantity: 2, UnitPrice: 5600, ProviderSource: domain.SourceNativeIBKR, AccountID: "ibkr-1"},
	}

	view, err := Canonicalize("u1", positions, Scope{Kind: ScopeAll}, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	esLeg, ok := view.Legs["ES"]
	if !ok {
		t.Fatal("expected ES present")
	}
	if esLeg.NotionalValue != 560000 {
		t.Errorf("expected ES notional 560000, got %v", esLeg.NotionalValue)
	}
	if esLeg.MarginValue != 0 {
		t.Errorf("expected ES margin 0 (unreported), got %v", esLeg.MarginValue)
	}
	if view.MarginTotal != 25500 {
		t.Errorf("expected margin_total 25500 (AAPL only), got %v", view.MarginTotal)
	}

	// Per the general rule in spec.md §4.4 ("notional_leverage = Σ|notional|
	// / margin_total, = 1.0 for equity-only"), AAPL's own notional (equal to
	// its margin contribution) is part of the numerator alongside ES's —
	// see DESIGN.md's Open Question decisions for why this differs by
	// exactly 1.0x from the illustrative 560000/25500 = 21.96 figure in
	// spec.md §8, which isolates ES's marginal contribution only.
	wantLeverage := (25500.0 + 560000.0) / 25500.0
	if view.NotionalLeverage != wantLeverage {
		t.Errorf("expected notional_leverage %v, got %v", wantLeverage, view.NotionalLeverage)
	}
}

// TestFuturesMargin_UsesBrokerReportedValueWhenPresent confirms a
// reported BrokerMargin is used verbatim rather than ignored.
func TestFuturesMargin_UsesBrokerReportedValueWhenPresent(t *testing.T) {
	contract := &domain.ContractIdentity{Multiplier: 50, AssetClass: domain.FuturesEquityIndex}
	es := domain.Intern(domain.Instrument{Root: "ES", Classification: domain.AssetFutures, Contract: contract})
	margin := 13200.0
	positions := []domain.Position{
		{Symbol: es, Quantity: 1, UnitPrice: 5600, ProviderSource: domain.SourceNativeIBKR, AccountID: "ibkr-1", BrokerMargin: &margin},
	}

	view, err := Canonicalize("u1", positions, Scope{Kind: ScopeAll}, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if view.Legs["ES"].MarginValue != margin {
		t.Errorf("expected reported margin %v, got %v", margin, view.Legs["ES"].MarginValue)
	}
}

func TestFuturesNotional_FixedIncomeInjectsBondClass(t *testing.T) {
	contract := &domain.ContractIdentity{Multiplier: 1000, AssetClass: domain.FuturesFixedIncome}
	futuresSym := domain.Intern(domain.Instrument{Root: "ZB", Classification: domain.AssetFutures, Contract: contract})
	positions := []domain.Position{
		{Symbol: futuresSym, Quantity: 2, UnitPrice: 120, ProviderSource: domain.SourceNativeIBKR, AccountID: "ibkr-1"},
	}
	view, err := Canonicalize("u1", positions, Scope{Kind: ScopeAll}, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	leg := view.Legs["ZB"]
	if leg.Classification != domain.AssetBond {
		t.Errorf("expected fixed-income futures reclassified as bond, got %v", leg.Classification)
	}
	if leg.NotionalValue != 2*1000*120 {
		t.Errorf("expected notional = qty*multiplier*price = %v, got %v", 2*1000*120, leg.NotionalValue)
	}
}
