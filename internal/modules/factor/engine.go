package factor

import (
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/henrysouchien/portfolio-risk-engine/internal/domain"
)

// AssetInput is one leg's monthly return series, aligned to a shared
// FactorReturnPanel's date index (NaN where the asset has no observation
// for that date).
type AssetInput struct {
	Symbol  *domain.Instrument
	Weight  float64
	Returns []float64 // aligned to panel.Dates, NaN for missing
}

// Result is the full per-scope factor decomposition output (spec.md §4.5).
type Result struct {
	Decomposition
	Regressions []AssetExposure
	Factors     []string      // factor axis Decomposition/Regressions are expressed against
	FactorCov   *mat.SymDense // annualized factor covariance for Factors, reused by internal/modules/optimize
	Excluded    map[string]string // symbol -> reason (insufficient history, no proxy)

	// FactorCategories maps each entry of Factors back to the
	// FactorProxySet category it was resolved from ("market", "momentum",
	// "value", "industry", "subindustry", "commodity", "rate"). Needed
	// because the factor axis itself is keyed by proxy ticker (e.g. the
	// industry proxy for a tech stock and for a financial stock are
	// different tickers), so a category-level limit check like
	// internal/modules/risk's industry-contribution check can't recover
	// "which FactorDecomp entries are industry exposure" from the ticker
	// name alone.
	FactorCategories map[string]string
}

// Engine runs factor regression and variance decomposition for a
// canonical portfolio against a shared factor-return panel.
type Engine struct {
	Proxies *ProxyTable
}

// NewEngine constructs a factor engine bound to a proxy table.
func NewEngine(proxies *ProxyTable) *Engine {
	return &Engine{Proxies: proxies}
}

// Analyze regresses each asset against its resolved factor-proxy columns
// and decomposes portfolio variance. canonicalClasses maps instrument key
// -> canonical asset class, used for rate-factor eligibility.
//
// Every asset's regression is run against only the columns its own proxy
// set names (spec.md §4.5's "two parallel code paths": an asset with a
// commodity proxy regresses against market+momentum+value+industry+
// subindustry+commodity; an asset without one regresses against the same
// set minus commodity — never a fabricated zero column). The union of all
// factors actually used across assets becomes the decomposition's factor
// axis.
func (e *Engine) Analyze(inputs []AssetInput, canonicalClasses map[string]domain.AssetClass, panel *domain.FactorReturnPanel) Result {
	excluded := make(map[string]string)
	legWeights := make(map[string]float64, len(inputs))
	regByKey := make(map[string]*AssetRegression, len(inputs))

	unionFactors := map[string]bool{}
	factorCategory := map[string]string{}

	for _, in := range inputs {
		key := in.Symbol.Key()
		legWeights[key] = legWeights[key] + in.Weight // aggregate same-symbol, different-account

		proxies := e.Proxies.Resolve(in.Symbol, canonicalClasses[key])
		factorNames, factorCols, categories := proxySetColumns(proxies, panel)
		if len(factorNames) == 0 {
			excluded[key] = "no factor proxies resolved"
			continue
		}

		reg, err := FitAssetRegression(key, in.Returns, factorNames, factorCols)
		if err != nil {
			excluded[key] = err.Error()
			continue
		}
		// Last regression per key wins; same-symbol legs from different
		// accounts share identical returns so this is deterministic.
		regByKey[key] = reg
		for i, f := range factorNames {
			unionFactors[f] = true
			factorCategory[f] = categories[i]
		}
	}

	factors := make([]string, 0, len(unionFactors))
	for f := range unionFactors {
		factors = append(factors, f)
	}
	sort.Strings(factors)

	exposures := AggregateByInstrument(legWeights, regByKey)
	if len(factors) == 0 || len(exposures) == 0 {
		return Result{Excluded: excluded}
	}

	factorReturns := make([][]float64, len(factors))
	for i, f := range factors {
		idx := panel.ColumnIndex(f)
		col := make([]float64, len(panel.Dates))
		for t := range col {
			if idx >= 0 {
				col[t] = panel.Returns[t][idx]
			}
		}
		factorReturns[i] = col
	}
	cov := FactorCovariance(factors, factorReturns)
	decomp := Decompose(exposures, factors, cov)

	return Result{Decomposition: decomp, Regressions: exposures, Factors: factors, FactorCov: cov, Excluded: excluded, FactorCategories: factorCategory}
}

// proxySetColumns flattens a FactorProxySet into the (factorName,
// factorReturnColumn, category) triples present in panel. Commodity and
// rate are included only when the proxy set actually names one — this is
// the second half of the "two parallel code paths" requirement.
//
// spec.md §3 documents subindustry (and, in principle, any category) as
// "either a proxy ticker or a list (for subindustry composites)"; this
// repo represents a composite by its first ticker only rather than
// averaging the list into a synthetic column, since the factor axis is a
// ticker name that must also resolve against panel.ColumnIndex elsewhere
// in Analyze — see DESIGN.md's Open Question decisions for the tradeoff.
func proxySetColumns(proxies domain.FactorProxySet, panel *domain.FactorReturnPanel) ([]string, [][]float64, []string) {
	var names []string
	var cols [][]float64
	var categories []string
	add := func(category string, tickers []string) {
		if len(tickers) == 0 {
			return
		}
		idx := panel.ColumnIndex(tickers[0])
		if idx < 0 {
			return
		}
		col := make([]float64, len(panel.Dates))
		for t := range col {
			col[t] = panel.Returns[t][idx]
		}
		names = append(names, tickers[0])
		cols = append(cols, col)
		categories = append(categories, category)
	}
	add("market", proxies.Market)
	add("momentum", proxies.Momentum)
	add("value", proxies.Value)
	add("industry", proxies.Industry)
	add("subindustry", proxies.Subindustry)
	if proxies.HasCommodity() {
		add("commodity", proxies.Commodity)
	}
	if proxies.HasRate() {
		add("rate", proxies.Rate)
	}
	return names, cols, categories
}
