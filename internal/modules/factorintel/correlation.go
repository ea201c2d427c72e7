package factorintel

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/henrysouchien/portfolio-risk-engine/internal/domain"
)

// Matrix is a symmetric or rectangular correlation table keyed by the
// factor names on each axis.
type Matrix struct {
	Rows    []string
	Cols    []string
	Entries [][]float64
}

// BucketedCorrelations computes an intra-bucket correlation matrix per
// taxonomy category in panel.Categories, excluding any bucket with fewer
// than two members (spec.md §4.9's "standard bucketed correlations
// exclude single-member buckets").
func BucketedCorrelations(panel *domain.FactorReturnPanel) map[string]Matrix {
	buckets := make(map[string][]string)
	for _, f := range panel.Factors {
		cat := panel.Categories[f]
		buckets[cat] = append(buckets[cat], f)
	}

	result := make(map[string]Matrix)
	for cat, members := range buckets {
		if len(members) < 2 {
			continue
		}
		result[cat] = symmetricCorrelation(panel, members)
	}
	return result
}

// BasketOverlay correlates every "user_baskets" column against every
// other factor column using pairwise dropna — not the bucket-exclusion
// rule above — so a single basket still surfaces its correlations
// (spec.md §4.9's dedicated basket_overlay matrix).
func BasketOverlay(panel *domain.FactorReturnPanel) *Matrix {
	var baskets, others []string
	for _, f := range panel.Factors {
		if panel.Categories[f] == "user_baskets" {
			baskets = append(baskets, f)
		} else {
			others = append(others, f)
		}
	}
	if len(baskets) == 0 || len(others) == 0 {
		return nil
	}

	entries := make([][]float64, len(baskets))
	for i, b := range baskets {
		bCol := columnFor(panel, b)
		entries[i] = make([]float64, len(others))
		for j, f := range others {
			fCol := columnFor(panel, f)
			a, c := pairwiseDropNA(bCol, fCol)
			if len(a) >= 2 {
				entries[i][j] = stat.Correlation(a, c, nil)
			}
		}
	}
	return &Matrix{Rows: baskets, Cols: others, Entries: entries}
}

func symmetricCorrelation(panel *domain.FactorReturnPanel, members []string) Matrix {
	n := len(members)
	cols := make([][]float64, n)
	for i, f := range members {
		cols[i] = columnFor(panel, f)
	}
	entries := make([][]float64, n)
	for i := range entries {
		entries[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		entries[i][i] = 1.0
		for j := i + 1; j < n; j++ {
			a, b := pairwiseDropNA(cols[i], cols[j])
			var c float64
			if len(a) >= 2 {
				c = stat.Correlation(a, b, nil)
			}
			entries[i][j] = c
			entries[j][i] = c
		}
	}
	return Matrix{Rows: members, Cols: members, Entries: entries}
}

func columnFor(panel *domain.FactorReturnPanel, factor string) []float64 {
	idx := panel.ColumnIndex(factor)
	col := make([]float64, len(panel.Dates))
	if idx < 0 {
		for i := range col {
			col[i] = math.NaN()
		}
		return col
	}
	for t := range col {
		col[t] = panel.Returns[t][idx]
	}
	return col
}

func pairwiseDropNA(a, b []float64) ([]float64, []float64) {
	var outA, outB []float64
	for i := range a {
		if i >= len(b) {
			break
		}
		if !math.IsNaN(a[i]) && !math.IsNaN(b[i]) {
			outA = append(outA, a[i])
			outB = append(outB, b[i])
		}
	}
	return outA, outB
}
