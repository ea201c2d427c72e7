package performance

import (
	"math"
	"testing"
	"time"
)

func dateAt(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

// TestGIPSTWRRoundTrip implements spec.md §8's literal invariant: for a
// synthetic account with a single DEPOSIT of D on day k and constant
// prices thereafter, monthly TWR = 0 exactly for every month; total
// return = 0.
func TestGIPSTWRRoundTrip(t *testing.T) {
	dates := []time.Time{
		dateAt(2024, 1, 1), dateAt(2024, 1, 2), dateAt(2024, 1, 3),
		dateAt(2024, 2, 1), dateAt(2024, 2, 2),
		dateAt(2024, 3, 1), dateAt(2024, 3, 2),
	}
	// NAV jumps from 0 to 10000 on day 2 (the deposit lands), then holds
	// flat forever after (constant prices, no further flows).
	nav := NAVSeries{Dates: dates, Values: []float64{0, 10000, 10000, 10000, 10000, 10000, 10000}}
	flows := map[time.Time]DailyFlow{
		dates[1]: {In: 10000},
	}

	daily := DailyReturns(nav, flows)
	monthly := MonthlyReturns(dates, daily)

	for i, r := range monthly {
		if math.Abs(r) > 1e-12 {
			t.Errorf("month %d: TWR = %v, want exactly 0", i, r)
		}
	}

	total := ChainReturns(monthly)
	if math.Abs(total) > 1e-12 {
		t.Errorf("total return = %v, want exactly 0", total)
	}
}

func TestDailyReturns_DegenerateFlowFreeForm(t *testing.T) {
	dates := []time.Time{dateAt(2024, 1, 1), dateAt(2024, 1, 2)}
	nav := NAVSeries{Dates: dates, Values: []float64{100, 110}}
	returns := DailyReturns(nav, nil)
	if len(returns) != 1 {
		t.Fatalf("expected 1 return, got %d", len(returns))
	}
	if diff := returns[0] - 0.10; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected 10%% return, got %v", returns[0])
	}
}

func TestDailyReturns_InflowAndOutflowNeverNetted(t *testing.T) {
	dates := []time.Time{dateAt(2024, 1, 1), dateAt(2024, 1, 2)}
	// Same-day 1000 in and 1000 out should NOT cancel to a flow-free day;
	// the formula keeps them as distinct additive terms.
	nav := NAVSeries{Dates: dates, Values: []float64{5000, 4900}}
	flows := map[time.Time]DailyFlow{dates[1]: {In: 1000, Out: 1000}}
	returns := DailyReturns(nav, flows)
	want := (4900.0 + 1000.0) / (5000.0 + 1000.0) - 1
	if diff := returns[0] - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("returns[0] = %v, want %v", returns[0], want)
	}
}

func TestAggregateAccounts_SmallBaseThresholdExcludesTinyAccount(t *testing.T) {
	dates := []time.Time{dateAt(2024, 1, 1), dateAt(2024, 1, 2), dateAt(2024, 1, 3)}
	big := AccountSeries{AccountID: "big", NAV: NAVSeries{Dates: dates, Values: []float64{100000, 100000, 100000}}}
	tiny := AccountSeries{AccountID: "tiny", NAV: NAVSeries{Dates: dates, Values: []float64{10, 600, 600}}}

	combined, _ := AggregateAccounts([]AccountSeries{big, tiny}, dates)
	if combined.Values[0] != 100000 {
		t.Errorf("day 0: tiny account below threshold should be excluded, got %v", combined.Values[0])
	}
	if combined.Values[1] != 100600 {
		t.Errorf("day 1: tiny account crosses threshold and should be included, got %v", combined.Values[1])
	}
}

func TestChainReturns_And_Annualize(t *testing.T) {
	chained := ChainReturns([]float64{0.01, 0.02, -0.01})
	want := 1.01 * 1.02 * 0.99 - 1
	if diff := chained - want; diff > 1e-12 || diff < -1e-12 {
		t.Errorf("chained = %v, want %v", chained, want)
	}
	annual := Annualize(chained, 3)
	if annual <= chained {
		t.Errorf("3-month return annualized over 12 months should scale up, got %v vs period %v", annual, chained)
	}
}
