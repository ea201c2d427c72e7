// Package factor implements spec.md §4.5: per-asset OLS factor regression,
// portfolio factor exposures, variance decomposition, and Euler risk
// contributions. Grounded on the teacher's pkg/formulas (gonum stat/floats
// single-series statistics) generalized to multi-factor matrix regression
// via gonum/mat, which the teacher does not use but the example pack's
// gonum dependency supports directly.
package factor

import (
	"strings"

	"github.com/henrysouchien/portfolio-risk-engine/internal/domain"
)

// ProxyTable resolves an instrument's factor-proxy set (spec.md §3).
// Non-futures instruments get market/momentum/value/industry/subindustry
// proxies from a universe table; futures get asset-class-specific proxies
// only (no equity factors, to avoid contaminating the decomposition with
// equity noise per spec.md §3).
type ProxyTable struct {
	// byRoot maps an equity/ETF root symbol to its proxy set.
	byRoot map[string]domain.FactorProxySet
	// rateEligible is the configured set of canonical asset classes
	// eligible for the rate factor (spec.md §9 open question — default
	// {bond, real_estate}).
	rateEligible map[domain.AssetClass]bool
}

// DefaultRateEligibleClasses is spec.md §4.4's configured default.
func DefaultRateEligibleClasses() map[domain.AssetClass]bool {
	return map[domain.AssetClass]bool{
		domain.AssetBond:       true,
		domain.AssetRealEstate: true,
	}
}

// NewProxyTable constructs a table from a static universe map (symbol ->
// proxy set) plus the configured rate-eligible asset class set.
func NewProxyTable(universe map[string]domain.FactorProxySet, rateEligible map[domain.AssetClass]bool) *ProxyTable {
	normalized := make(map[string]domain.FactorProxySet, len(universe))
	for k, v := range universe {
		normalized[strings.ToUpper(k)] = v
	}
	if rateEligible == nil {
		rateEligible = DefaultRateEligibleClasses()
	}
	return &ProxyTable{byRoot: normalized, rateEligible: rateEligible}
}

// Resolve returns the factor-proxy set for a canonicalized position leg.
// Futures contracts receive asset-class-specific proxies (metals ->
// commodity=GLD, energy -> commodity=USO, fixed_income -> rate-eligible
// via canonical AssetBond) and never equity factors.
func (t *ProxyTable) Resolve(symbol *domain.Instrument, canonicalClass domain.AssetClass) domain.FactorProxySet {
	if symbol.Classification == domain.AssetFutures && symbol.Contract != nil {
		return t.resolveFutures(*symbol.Contract, canonicalClass)
	}
	if proxies, ok := t.byRoot[symbol.Key()]; ok {
		if t.rateEligible[canonicalClass] && len(proxies.Rate) == 0 {
			// Rate-eligible non-futures instruments (e.g. a bond ETF, or a
			// real-estate equity once reclassified) still pick up the rate
			// factor even though the static universe table didn't assign
			// one explicitly.
			proxies.Rate = []string{"IEF"}
		}
		return proxies
	}
	return domain.FactorProxySet{}
}

func (t *ProxyTable) resolveFutures(contract domain.ContractIdentity, canonicalClass domain.AssetClass) domain.FactorProxySet {
	proxies := domain.FactorProxySet{Market: []string{"SPY"}}
	switch contract.AssetClass {
	case domain.FuturesMetals:
		proxies.Commodity = []string{"GLD"}
	case domain.FuturesEnergy:
		proxies.Commodity = []string{"USO"}
	case domain.FuturesAgricultural:
		proxies.Commodity = []string{"DBA"}
	case domain.FuturesFX:
		proxies.Market = nil // pure currency exposure carries no equity-market beta
	case domain.FuturesFixedIncome:
		proxies.Market = nil
	case domain.FuturesEquityIndex:
		// keep SPY market proxy only
	}
	if t.rateEligible[canonicalClass] {
		proxies.Rate = []string{"IEF"}
	}
	return proxies
}
