package factorintel

import (
	"fmt"
	"math"
	"strings"

	"github.com/henrysouchien/portfolio-risk-engine/internal/apperr"
	"github.com/henrysouchien/portfolio-risk-engine/internal/domain"
)

// BuildBasketSeries computes a basket's return series by inner-joining
// its component return series against dates: per date, only components
// with an observation contribute, and their weights are re-normalized
// against just those available components (spec.md §4.9 stage 3). A date
// with zero available components is left NaN. Returns an error — the
// basket should be skipped, not included with a degenerate series — when
// every date ends up NaN.
func BuildBasketSeries(dateCount int, weights map[string]float64, componentReturns map[string][]float64) ([]float64, error) {
	series := make([]float64, dateCount)
	var observed int
	for t := 0; t < dateCount; t++ {
		var weightedSum, weightTotal float64
		for ticker, w := range weights {
			col, ok := componentReturns[ticker]
			if !ok || t >= len(col) || math.IsNaN(col[t]) {
				continue
			}
			weightedSum += w * col[t]
			weightTotal += w
		}
		if weightTotal <= 0 {
			series[t] = math.NaN()
			continue
		}
		series[t] = weightedSum / weightTotal
		observed++
	}
	if observed == 0 {
		return nil, apperr.Validation("basket series has no observed dates")
	}
	return series, nil
}

// AppendBasketColumns clones panel and appends one column per basket that
// successfully builds a series, tagging each column "user_baskets" in
// Categories and registering a "Basket: <name>" display label (spec.md
// §4.9 stage 4). A basket whose name case-insensitively collides with an
// existing column, or whose series fails to build, is skipped with a
// warning rather than aborting the whole request.
func AppendBasketColumns(
	panel *domain.FactorReturnPanel,
	baskets []domain.Basket,
	componentReturns map[string][]float64,
	marketCaps map[string]float64,
) (*domain.FactorReturnPanel, []string) {
	cloned := panel.Clone()
	existing := make(map[string]bool, len(cloned.Factors))
	for _, f := range cloned.Factors {
		existing[strings.ToLower(f)] = true
	}

	var warnings []string
	for _, b := range baskets {
		key := strings.ToLower(b.Name)
		if existing[key] {
			warnings = append(warnings, fmt.Sprintf("basket %q skipped: name collides with an existing factor column", b.Name))
			continue
		}

		weights := ResolveWeights(b, marketCaps)
		series, err := BuildBasketSeries(len(cloned.Dates), weights, componentReturns)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("basket %q skipped: %v", b.Name, err))
			continue
		}

		cloned.Factors = append(cloned.Factors, b.Name)
		cloned.Labels[b.Name] = "Basket: " + b.Name
		cloned.Categories[b.Name] = "user_baskets"
		for t := range cloned.Returns {
			cloned.Returns[t] = append(cloned.Returns[t], series[t])
		}
		existing[key] = true
	}
	return cloned, warnings
}
