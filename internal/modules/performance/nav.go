package performance

import (
	"time"

	"github.com/henrysouchien/portfolio-risk-engine/internal/domain"
)

// PriceLookup resolves an instrument's price on a given date; ok is false
// when no price is available for that date (the caller should carry the
// last observation forward before calling, matching spec.md §4.2's
// forward-filled daily price series).
type PriceLookup func(symbol string, d time.Time) (price float64, ok bool)

// FXLookup resolves a currency's rate to the portfolio's base currency on
// a date; returns 1.0 for the base currency itself.
type FXLookup func(currency string, d time.Time) float64

// CashLookup resolves the cash balance (in base currency) on a date.
type CashLookup func(d time.Time) float64

// NAVSeries is a dated net-asset-value series.
type NAVSeries struct {
	Dates  []time.Time
	Values []float64
}

// DailyNAV computes spec.md §4.7 stage 3:
// NAV_D = sum_i(qty_{i,D} * price_{i,D} * fx_{i,D}) + cash_D, for each
// date in dates (assumed sorted ascending, already truncated to business
// dates).
func DailyNAV(timeline map[LegKey][]Lot, dates []time.Time, price PriceLookup, fx FXLookup, cash CashLookup) NAVSeries {
	out := NAVSeries{Dates: append([]time.Time(nil), dates...), Values: make([]float64, len(dates))}

	for t, d := range dates {
		var total float64
		for key, lots := range timeline {
			qty := quantityAsOf(lots, d)
			if qty == 0 {
				continue
			}
			p, ok := price(key.Symbol, d)
			if !ok {
				continue
			}
			rate := fx(key.Currency, d)
			total += qty * p * rate
		}
		total += cash(d)
		out.Values[t] = total
	}
	return out
}

func quantityAsOf(lots []Lot, d time.Time) float64 {
	var qty float64
	for _, lot := range lots {
		if !lot.Date.After(d) {
			qty += lot.Quantity
		}
	}
	return qty
}

// DailyFlow holds one business date's inflow and outflow totals, kept
// apart rather than netted (spec.md §4.7 stage 4).
type DailyFlow struct {
	In  float64
	Out float64
}

// DailyFlows buckets flow events by business date into DailyFlow totals,
// never netting inflow against outflow.
func DailyFlows(flows []domain.FlowEvent) map[time.Time]DailyFlow {
	out := make(map[time.Time]DailyFlow)
	for _, f := range flows {
		d := TruncateToBusinessDate(f.Date)
		bucket := out[d]
		if f.Direction == domain.FlowIn {
			bucket.In += f.Amount
		} else {
			bucket.Out += f.Amount
		}
		out[d] = bucket
	}
	return out
}
