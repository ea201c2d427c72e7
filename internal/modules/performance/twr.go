package performance

import (
	"math"
	"time"
)

// DailyReturns computes spec.md §4.7 stage 4's GIPS beginning-of-day TWR
// for each day after the first:
//
//	R_D = (V_D + |CF_out|) / (V_{D-1} + CF_in) - 1
//
// which degenerates correctly to the inflow-only, outflow-only, or
// flow-free forms since the unused term is simply zero; inflow and
// outflow are never netted against each other.
func DailyReturns(nav NAVSeries, flows map[time.Time]DailyFlow) []float64 {
	if nav.Len() < 2 {
		return nil
	}
	returns := make([]float64, nav.Len()-1)
	for i := 1; i < nav.Len(); i++ {
		prevNAV := nav.Values[i-1]
		flow := flows[nav.Dates[i]]
		denominator := prevNAV + flow.In
		numerator := nav.Values[i] + flow.Out
		if denominator == 0 {
			returns[i-1] = 0
			continue
		}
		returns[i-1] = numerator/denominator - 1
	}
	return returns
}

func (s NAVSeries) Len() int { return len(s.Dates) }

// ChainReturns compounds a sequence of periodic returns:
// (1+R1)(1+R2)...(1+Rn) - 1 (spec.md §4.7 stage 5).
func ChainReturns(returns []float64) float64 {
	product := 1.0
	for _, r := range returns {
		product *= 1 + r
	}
	return product - 1
}

// Annualize converts a chained period return over n months to an
// annualized rate: (1+R)^(12/n) - 1.
func Annualize(periodReturn float64, months int) float64 {
	if months <= 0 {
		return 0
	}
	return math.Pow(1+periodReturn, 12.0/float64(months)) - 1
}

// MonthlyReturns groups daily returns (aligned to dates) into monthly
// chained returns, the series feeding Sharpe/Sortino/drawdown outputs.
func MonthlyReturns(dates []time.Time, dailyReturns []float64) []float64 {
	if len(dailyReturns) == 0 {
		return nil
	}
	var out []float64
	var bucket []float64
	curMonth := dates[1].Month()
	curYear := dates[1].Year()
	for i, r := range dailyReturns {
		d := dates[i+1] // dailyReturns[i] is the return ending on dates[i+1]
		if d.Month() != curMonth || d.Year() != curYear {
			out = append(out, ChainReturns(bucket))
			bucket = nil
			curMonth, curYear = d.Month(), d.Year()
		}
		bucket = append(bucket, r)
	}
	if len(bucket) > 0 {
		out = append(out, ChainReturns(bucket))
	}
	return out
}

// AccountSeries is one account's NAV and flow series feeding
// per-account-aggregation.
type AccountSeries struct {
	AccountID string
	NAV       NAVSeries
	Flows     map[time.Time]DailyFlow
}

// SmallBaseThreshold is spec.md §4.7 stage 6's default small-base
// exclusion threshold (in account currency) below which an account is
// excluded from combined aggregation until its NAV first crosses it.
const SmallBaseThreshold = 500.0

// AggregateAccounts sums per-account daily NAV and flows onto a shared
// date axis, excluding each account's contribution on dates before its
// NAV first crosses SmallBaseThreshold (spec.md §4.7 stage 6), and
// returns the combined series for TWR computation.
func AggregateAccounts(accounts []AccountSeries, dates []time.Time) (NAVSeries, map[time.Time]DailyFlow) {
	combined := NAVSeries{Dates: append([]time.Time(nil), dates...), Values: make([]float64, len(dates))}
	combinedFlows := make(map[time.Time]DailyFlow)

	for _, acct := range accounts {
		crossed := false
		navByDate := make(map[time.Time]float64, len(acct.NAV.Dates))
		for i, d := range acct.NAV.Dates {
			navByDate[d] = acct.NAV.Values[i]
		}
		for i, d := range dates {
			v, ok := navByDate[d]
			if !ok {
				continue
			}
			if !crossed {
				if v < SmallBaseThreshold {
					continue
				}
				crossed = true
			}
			combined.Values[i] += v
			if f, ok := acct.Flows[d]; ok {
				bucket := combinedFlows[d]
				bucket.In += f.In
				bucket.Out += f.Out
				combinedFlows[d] = bucket
			}
		}
	}
	return combined, combinedFlows
}
