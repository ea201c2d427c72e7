package canonicalizer

import (
	"sort"
	"time"

	"github.com/henrysouchien/portfolio-risk-engine/internal/apperr"
	"github.com/henrysouchien/portfolio-risk-engine/internal/domain"
)

// symbolGroup accumulates every position reporting a given instrument
// across all providers/accounts, before authority resolution.
type symbolGroup struct {
	key       string
	symbol    *domain.Instrument
	positions []domain.Position
}

// Canonicalize merges positions into a CanonicalPortfolio for the
// requested scope, applying spec.md §4.4's native-over-aggregator
// authority rule and recording genuine cross-source ambiguity. A source
// scope also records, as leakage, every symbol its rows report that is
// excluded because another source is authoritative for it.
func Canonicalize(userID string, positions []domain.Position, scope Scope, asOf time.Time) (*domain.CanonicalPortfolio, error) {
	groups := groupBySymbol(positions)

	portfolio := &domain.CanonicalPortfolio{
		UserID: userID,
		AsOf:   asOf,
		Scope:  scope.String(),
		Legs:   make(map[string]domain.PositionLeg),
	}

	for _, group := range groups {
		resolved, leakage := resolveAuthority(group)
		if leakage {
			portfolio.CrossSourceLeakage = append(portfolio.CrossSourceLeakage, group.key)
			continue
		}
		included := filterForScope(resolved.candidates, scope)
		if len(included) == 0 {
			if scope.Kind == ScopeSource && len(filterForScope(group.positions, scope)) > 0 {
				portfolio.CrossSourceLeakage = append(portfolio.CrossSourceLeakage, group.key)
			}
			continue
		}
		leg, err := buildLeg(group.symbol, included)
		if err != nil {
			return nil, err
		}
		portfolio.Legs[group.key] = leg
	}

	sort.Strings(portfolio.CrossSourceLeakage)
	finalizeTotals(portfolio)
	return portfolio, nil
}

func groupBySymbol(positions []domain.Position) []symbolGroup {
	index := make(map[string]*symbolGroup)
	var order []string
	for _, p := range positions {
		if p.IsCulled() {
			continue
		}
		key := p.Symbol.Key()
		g, ok := index[key]
		if !ok {
			g = &symbolGroup{key: key, symbol: p.Symbol}
			index[key] = g
			order = append(order, key)
		}
		g.positions = append(g.positions, p)
	}
	groups := make([]symbolGroup, 0, len(order))
	for _, k := range order {
		groups = append(groups, *index[k])
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].key < groups[j].key })
	return groups
}

// authorityResolution is the outcome of applying the native-over-aggregator
// rule to one symbol's cross-provider positions.
type authorityResolution struct {
	candidates []domain.Position // positions eligible for inclusion, pre-scope-filter
}

// resolveAuthority implements spec.md §4.4's rule exactly:
//
//   - |S| == 1: trivially no ambiguity, the sole source's positions carry
//     through.
//   - |S| > 1, S subset of NATIVE ∪ AGGREGATOR, |S ∩ NATIVE| == 1, no
//     unknown sources: the native source is authoritative; only its
//     positions are candidates (aggregator rows for the same symbol are
//     dropped, not merged).
//   - otherwise (two natives, two aggregators, or any unknown source):
//     genuine cross-source ambiguity — exclude from every scope.
func resolveAuthority(group symbolGroup) (authorityResolution, bool) {
	sources := map[domain.ProviderSource]bool{}
	for _, p := range group.positions {
		sources[p.ProviderSource] = true
	}

	if len(sources) == 1 {
		return authorityResolution{candidates: group.positions}, false
	}

	var nativeCount, unknownCount int
	var nativeSource domain.ProviderSource
	for s := range sources {
		switch {
		case s.IsNative():
			nativeCount++
			nativeSource = s
		case s.IsAggregator():
			// counted in sources, no action needed
		default:
			unknownCount++
		}
	}

	if nativeCount == 1 && unknownCount == 0 {
		var candidates []domain.Position
		for _, p := range group.positions {
			if p.ProviderSource == nativeSource {
				candidates = append(candidates, p)
			}
		}
		return authorityResolution{candidates: candidates}, false
	}

	return authorityResolution{}, true
}

// filterForScope narrows a symbol's authoritative candidates down to the
// ones visible in the requested scope.
func filterForScope(candidates []domain.Position, scope Scope) []domain.Position {
	if scope.Kind == ScopeAll {
		return candidates
	}
	var out []domain.Position
	for _, p := range candidates {
		switch scope.Kind {
		case ScopeSource:
			if sourceFamily(string(p.ProviderSource)) == scope.Value {
				out = append(out, p)
			}
		case ScopeInstitution:
			if p.BrokerageName == scope.Value {
				out = append(out, p)
			}
		case ScopeAccount:
			if p.AccountID == scope.Value {
				out = append(out, p)
			}
		}
	}
	return out
}

// buildLeg aggregates the positions retained for a symbol into a single
// canonical leg: quantities sum, notional/margin derive per instrument
// kind (futures branch below), weight is filled in later by finalizeTotals once the
// portfolio-wide notional total is known.
func buildLeg(symbol *domain.Instrument, positions []domain.Position) (domain.PositionLeg, error) {
	var totalQty float64
	var marginValue float64
	currency := positions[0].Currency
	classification := positions[0].InstrumentType
	if classification == "" {
		classification = symbol.Classification
	}
	isFutures := symbol.Classification == domain.AssetFutures

	for _, p := range positions {
		totalQty += p.Quantity
		if isFutures {
			// spec.md §3/§4.4: futures margin_value is the broker-reported
			// value, never derived from quantity*price (that's notional, a
			// different and much larger number). Unreported contributes
			// zero rather than a synthesized figure.
			if p.BrokerMargin != nil {
				marginValue += *p.BrokerMargin
			}
			continue
		}
		marginValue += p.Quantity * p.UnitPrice
	}

	notional := marginValue
	if isFutures {
		if symbol.Contract == nil {
			return domain.PositionLeg{}, apperr.Validation("canonicalizer: futures position %s missing contract identity", symbol.Key())
		}
		notional = totalQty * symbol.Contract.Multiplier * avgPrice(positions)
		// spec.md §4.1: fixed-income futures are injected into the "bond"
		// canonical asset class for rate-factor eligibility purposes.
		if symbol.Contract.AssetClass == domain.FuturesFixedIncome {
			classification = domain.AssetBond
		}
	}

	return domain.PositionLeg{
		Symbol:         symbol,
		MarginValue:    marginValue,
		NotionalValue:  notional,
		Currency:       currency,
		Classification: classification,
	}, nil
}

func avgPrice(positions []domain.Position) float64 {
	var qty, notional float64
	for _, p := range positions {
		qty += p.Quantity
		notional += p.Quantity * p.UnitPrice
	}
	if qty == 0 {
		return 0
	}
	return notional / qty
}

// finalizeTotals computes the portfolio's NAV (sum of margin values),
// notional leverage (sum |notional| / NAV), and per-leg notional weights.
func finalizeTotals(portfolio *domain.CanonicalPortfolio) {
	var marginTotal, notionalTotal float64
	for _, leg := range portfolio.Legs {
		marginTotal += leg.MarginValue
		notionalTotal += absFloat(leg.NotionalValue)
	}
	portfolio.MarginTotal = marginTotal
	if marginTotal != 0 {
		portfolio.NotionalLeverage = notionalTotal / absFloat(marginTotal)
	}
	for key, leg := range portfolio.Legs {
		if notionalTotal != 0 {
			leg.WeightByNotional = leg.NotionalValue / notionalTotal
		}
		portfolio.Legs[key] = leg
	}
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
