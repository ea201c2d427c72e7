package factorintel

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/henrysouchien/portfolio-risk-engine/internal/apperr"
	"github.com/henrysouchien/portfolio-risk-engine/internal/domain"
	"github.com/henrysouchien/portfolio-risk-engine/internal/modules/performance"
	"github.com/henrysouchien/portfolio-risk-engine/pkg/formulas"
)

// Profile is a single factor or basket column's performance summary.
// Schema matches the standard factor output exactly (spec.md §4.9):
// AnnualReturn, Volatility, and MaxDrawdown are percentages (12.3 means
// 12.3%); SharpeRatio and BetaToMarket are unitless ratios.
type Profile struct {
	AnnualReturn float64
	Volatility   float64
	SharpeRatio  float64
	MaxDrawdown  float64
	BetaToMarket float64
}

// ComputeProfile builds a Profile directly from panel's own appended
// series — basket columns need no external price fetch, satisfying
// spec.md §4.9's "compute directly from the appended series" rule.
func ComputeProfile(panel *domain.FactorReturnPanel, factorName, marketFactor string, annualRiskFreeRate float64) (Profile, error) {
	if panel.ColumnIndex(factorName) < 0 {
		return Profile{}, apperr.Validation("factorintel: unknown factor column %s", factorName)
	}
	returns := dropNaN(columnFor(panel, factorName))
	if len(returns) < 2 {
		return Profile{}, apperr.Validation("factorintel: insufficient observations for %s", factorName)
	}

	chained := performance.ChainReturns(returns)
	annualReturn := performance.Annualize(chained, len(returns))

	profile := Profile{
		AnnualReturn: annualReturn * 100,
		Volatility:   stat.StdDev(returns, nil) * math.Sqrt(12) * 100,
	}
	if sharpe := formulas.CalculateSharpeRatio(returns, annualRiskFreeRate, 12); sharpe != nil {
		profile.SharpeRatio = *sharpe
	}
	if dd := formulas.CalculateMaxDrawdown(cumulativeProduct(returns)); dd != nil {
		profile.MaxDrawdown = *dd * 100
	}

	if marketFactor != "" && panel.ColumnIndex(marketFactor) >= 0 {
		marketCol := columnFor(panel, marketFactor)
		targetCol := columnFor(panel, factorName)
		a, m := pairwiseDropNA(targetCol, marketCol)
		if len(a) >= 2 {
			marketVar := stat.Variance(m, nil)
			if marketVar > 0 {
				profile.BetaToMarket = stat.Covariance(a, m, nil) / marketVar
			}
		}
	}

	return profile, nil
}

func dropNaN(series []float64) []float64 {
	out := make([]float64, 0, len(series))
	for _, v := range series {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

func cumulativeProduct(returns []float64) []float64 {
	out := make([]float64, len(returns)+1)
	out[0] = 1.0
	for i, r := range returns {
		out[i+1] = out[i] * (1 + r)
	}
	return out
}
