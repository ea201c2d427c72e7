package performance

import (
	"github.com/henrysouchien/portfolio-risk-engine/pkg/formulas"
)

// Report is spec.md §4.7's full output set.
type Report struct {
	TotalReturn     float64
	AnnualizedReturn float64
	MonthlyReturns  []float64
	Sharpe          *float64
	Sortino         *float64
	MaxDrawdown     *float64
	WinRate         float64
	BestMonth       *MonthStat
	WorstMonth      *MonthStat
	DataQuality     DataQuality
}

// MonthStat names a month-index (0-based within the series) and its
// return, used for per-month best/worst reporting.
type MonthStat struct {
	Index  int
	Return float64
}

// DataQuality reports coverage, synthetic-position count, and
// per-account fingerprints (spec.md §4.7).
type DataQuality struct {
	CoverageRatio    float64
	SyntheticCount   int
	ExcludedSources  []string
	AccountFingerprints map[string]string
}

// BuildReport derives the final performance report from a monthly return
// series, reusing the teacher's Sharpe/Sortino/drawdown formulas
// (pkg/formulas/sharpe.go, pkg/formulas/drawdown.go) against the monthly
// cumulative price-equivalent series, per spec.md §4.7: "max drawdown
// (from cumulative product)".
func BuildReport(monthlyReturns []float64, annualRiskFreeRate float64, dq DataQuality) Report {
	report := Report{MonthlyReturns: monthlyReturns, DataQuality: dq}
	if len(monthlyReturns) == 0 {
		return report
	}

	report.TotalReturn = ChainReturns(monthlyReturns)
	report.AnnualizedReturn = Annualize(report.TotalReturn, len(monthlyReturns))
	report.Sharpe = formulas.CalculateSharpeRatio(monthlyReturns, annualRiskFreeRate, 12)
	report.Sortino = formulas.CalculateSortinoRatio(monthlyReturns, annualRiskFreeRate, annualRiskFreeRate, 12)

	cumulative := cumulativeProduct(monthlyReturns)
	report.MaxDrawdown = formulas.CalculateMaxDrawdown(cumulative)

	report.WinRate = winRate(monthlyReturns)
	report.BestMonth, report.WorstMonth = bestWorstMonth(monthlyReturns)
	return report
}

// cumulativeProduct converts a monthly return series into a
// cumulative-product "price" series starting at 1.0, the form
// pkg/formulas/drawdown.go's peak-tracking algorithm expects.
func cumulativeProduct(returns []float64) []float64 {
	out := make([]float64, len(returns)+1)
	out[0] = 1.0
	for i, r := range returns {
		out[i+1] = out[i] * (1 + r)
	}
	return out
}

func winRate(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	wins := 0
	for _, r := range returns {
		if r > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(returns))
}

func bestWorstMonth(returns []float64) (*MonthStat, *MonthStat) {
	if len(returns) == 0 {
		return nil, nil
	}
	best := MonthStat{Index: 0, Return: returns[0]}
	worst := MonthStat{Index: 0, Return: returns[0]}
	for i, r := range returns {
		if r > best.Return {
			best = MonthStat{Index: i, Return: r}
		}
		if r < worst.Return {
			worst = MonthStat{Index: i, Return: r}
		}
	}
	return &best, &worst
}
