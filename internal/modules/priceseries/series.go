// Package priceseries implements spec.md §4.2: fetching, aligning, and
// caching daily/monthly total-return series and FX rates, with a primary
// vendor and a secondary-vendor fallback.
package priceseries

import (
	"sort"
	"time"
)

// Series is a date-indexed value series, always returned sorted ascending
// by date with no duplicate dates (spec.md §4.2 "monotonic in date").
type Series struct {
	Dates  []time.Time
	Values []float64
}

// Len returns the number of observations.
func (s Series) Len() int { return len(s.Dates) }

// At returns the value for date if present.
func (s Series) At(date time.Time) (float64, bool) {
	for i, d := range s.Dates {
		if d.Equal(date) {
			return s.Values[i], true
		}
	}
	return 0, false
}

// sortSeries sorts Dates/Values ascending by date in place.
func sortSeries(s *Series) {
	idx := make([]int, len(s.Dates))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return s.Dates[idx[a]].Before(s.Dates[idx[b]]) })

	dates := make([]time.Time, len(s.Dates))
	values := make([]float64, len(s.Values))
	for newPos, oldPos := range idx {
		dates[newPos] = s.Dates[oldPos]
		values[newPos] = s.Values[oldPos]
	}
	s.Dates, s.Values = dates, values
}

// ReindexDropNA reindexes series onto target, dropping (not filling) any
// target date with no matching observation — the single reindex+dropna
// policy spec.md §4.2 requires.
func ReindexDropNA(series Series, target []time.Time) Series {
	lookup := make(map[int64]float64, series.Len())
	for i, d := range series.Dates {
		lookup[d.UnixNano()] = series.Values[i]
	}

	out := Series{}
	for _, d := range target {
		if v, ok := lookup[d.UnixNano()]; ok {
			out.Dates = append(out.Dates, d)
			out.Values = append(out.Values, v)
		}
	}
	return out
}

// MonthlyReturns computes first-difference simple returns
// (p_t/p_{t-1} - 1), dropping the leading (undefined) observation.
func MonthlyReturns(series Series) Series {
	if series.Len() < 2 {
		return Series{}
	}
	out := Series{
		Dates:  make([]time.Time, 0, series.Len()-1),
		Values: make([]float64, 0, series.Len()-1),
	}
	for i := 1; i < series.Len(); i++ {
		prev := series.Values[i-1]
		if prev == 0 {
			continue
		}
		out.Dates = append(out.Dates, series.Dates[i])
		out.Values = append(out.Values, series.Values[i]/prev-1)
	}
	return out
}
