// recommend.go implements spec.md §4.9's hedge/offset recommendation: for
// an overexposed factor, surface the columns in the (possibly
// basket-augmented) panel most negatively correlated with it, so a caller
// overexposed to, say, market beta gets a ranked list of factors or
// baskets that would offset it. Grounded on the same pairwise-dropna
// correlation machinery correlation.go already uses for the basket
// overlay, since an offset candidate is just "the most negative entry in
// a one-row correlation query" rather than a new statistical method.
package factorintel

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/henrysouchien/portfolio-risk-engine/internal/domain"
)

// Offset is one candidate hedge/offset for an overexposed factor: a panel
// column (a standard factor or a "Basket: <name>" column) and its
// correlation against the target, most negative first.
type Offset struct {
	Factor      string
	Correlation float64
}

// RecommendOffsets ranks every panel column other than target by
// correlation against it, ascending (most negative — best offset —
// first). Pairs using fewer than two overlapping observations are
// skipped rather than reported as a spurious zero correlation.
func RecommendOffsets(panel *domain.FactorReturnPanel, target string) []Offset {
	targetCol := columnFor(panel, target)
	var out []Offset
	for _, f := range panel.Factors {
		if f == target {
			continue
		}
		a, b := pairwiseDropNA(targetCol, columnFor(panel, f))
		if len(a) < 2 {
			continue
		}
		out = append(out, Offset{Factor: f, Correlation: stat.Correlation(a, b, nil)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Correlation < out[j].Correlation })
	return out
}

// RecommendForPortfolio ranks offsets against whichever factor the
// portfolio's beta exposure is most overexposed on, given its beta_port
// map and the profile's per-factor cap. Returns the chosen factor plus
// its ranked offsets; an empty factor name means no factor exceeded its
// cap.
func RecommendForPortfolio(panel *domain.FactorReturnPanel, betaPort map[string]float64, caps map[string][2]float64) (string, []Offset) {
	worstFactor := ""
	worstRatio := 1.0
	for f, beta := range betaPort {
		cap, ok := caps[f]
		if !ok {
			continue
		}
		bound := cap[1]
		if beta < 0 {
			bound = math.Abs(cap[0])
		}
		if bound <= 0 {
			continue
		}
		ratio := math.Abs(beta) / bound
		if ratio > worstRatio {
			worstRatio = ratio
			worstFactor = f
		}
	}
	if worstFactor == "" {
		return "", nil
	}
	return worstFactor, RecommendOffsets(panel, worstFactor)
}
