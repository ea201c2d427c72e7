// Package factorintel implements spec.md §4.9: user-basket factor
// intelligence layered on top of the shared factor-return panel —
// basket return-series construction, panel extension, bucketed and
// basket-overlay correlations, and a performance profile matching the
// standard-factor output schema. Grounded on the teacher's
// internal/modules/optimization/risk.go (sha256 cache-key hashing,
// gonum/stat correlation/covariance usage) and
// internal/modules/sequences/filters/correlation_aware.go (pairwise
// correlation over a filtered universe).
package factorintel

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/henrysouchien/portfolio-risk-engine/internal/domain"
)

// ResolveWeights turns a basket's weighting method into a concrete
// ticker -> weight map (spec.md §4.9 stage 2). marketCaps is consulted
// for "market_cap" (and for "custom" without explicit weights); a ticker
// missing from it gets zero weight, and when it covers none of the
// tickers the weights fall back to an equal split.
func ResolveWeights(basket domain.Basket, marketCaps map[string]float64) map[string]float64 {
	weights := make(map[string]float64, len(basket.Tickers))
	switch basket.WeightingMethod {
	case "custom":
		if len(basket.Weights) > 0 {
			for _, t := range basket.Tickers {
				weights[t] = basket.Weights[t]
			}
			return weights
		}
		fallthrough
	case "market_cap":
		var total float64
		for _, t := range basket.Tickers {
			total += marketCaps[t]
		}
		if total > 0 {
			for _, t := range basket.Tickers {
				weights[t] = marketCaps[t] / total
			}
			return weights
		}
		fallthrough
	default: // "equal", or any fallback above
		if len(basket.Tickers) == 0 {
			return weights
		}
		share := 1.0 / float64(len(basket.Tickers))
		for _, t := range basket.Tickers {
			weights[t] = share
		}
		return weights
	}
}

// Fingerprint is spec.md §4.9's basket cache-invalidation key:
// hash({(user_id, name, updated_at)}) over every basket, sorted by
// (user_id, name) for determinism. Returned even when every basket's
// return series later fails to build, so a no-basket cache entry is
// never conflated with a transient failure.
func Fingerprint(baskets []domain.Basket) string {
	keys := make([]string, len(baskets))
	for i, b := range baskets {
		keys[i] = fmt.Sprintf("%s|%s|%d", b.UserID, b.Name, b.UpdatedAt.UnixNano())
	}
	sort.Strings(keys)
	h := sha256.Sum256([]byte(strings.Join(keys, ";")))
	return hex.EncodeToString(h[:16])
}
