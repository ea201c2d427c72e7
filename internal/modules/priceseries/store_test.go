package priceseries

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeVendor struct {
	name   string
	series Series
	err    error
	calls  int
}

func (f *fakeVendor) Name() string { return f.name }

func (f *fakeVendor) DailyClose(ctx context.Context, symbol string, start, end time.Time) (Series, error) {
	f.calls++
	if f.err != nil {
		return Series{}, f.err
	}
	return f.series, nil
}

func (f *fakeVendor) DailyTotalReturnClose(ctx context.Context, symbol string, start, end time.Time) (Series, error) {
	return f.DailyClose(ctx, symbol, start, end)
}

func date(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

func TestMonthlyReturns(t *testing.T) {
	series := Series{
		Dates:  []time.Time{date(2024, 1, 31), date(2024, 2, 29), date(2024, 3, 31)},
		Values: []float64{100, 110, 99},
	}
	out := MonthlyReturns(series)
	if out.Len() != 2 {
		t.Fatalf("expected 2 returns (leading dropped), got %d", out.Len())
	}
	if diff := out.Values[0] - 0.10; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("first return = %v, want 0.10", out.Values[0])
	}
}

func TestReindexDropNA(t *testing.T) {
	series := Series{
		Dates:  []time.Time{date(2024, 1, 1), date(2024, 1, 3)},
		Values: []float64{1, 3},
	}
	target := []time.Time{date(2024, 1, 1), date(2024, 1, 2), date(2024, 1, 3)}
	out := ReindexDropNA(series, target)
	if out.Len() != 2 {
		t.Fatalf("expected missing date dropped, got %d entries", out.Len())
	}
}

func TestStoreFallsBackToSecondaryVendor(t *testing.T) {
	primary := &fakeVendor{name: "primary", err: errors.New("boom")}
	secondary := &fakeVendor{name: "secondary", series: Series{
		Dates:  []time.Time{date(2024, 1, 2)},
		Values: []float64{42},
	}}

	store := New(Config{Primary: primary, Secondary: secondary, CacheTTL: time.Minute, RequestsPerSecond: 1000}, testLogger())

	series, err := store.DailyClose(context.Background(), "AAPL", date(2024, 1, 1), date(2024, 1, 31))
	if err != nil {
		t.Fatalf("expected secondary vendor to satisfy request: %v", err)
	}
	if series.Len() != 1 || series.Values[0] != 42 {
		t.Errorf("unexpected series: %+v", series)
	}
}

func TestStoreFailsPriceUnavailableWhenBothVendorsFail(t *testing.T) {
	primary := &fakeVendor{name: "primary", err: errors.New("boom")}
	secondary := &fakeVendor{name: "secondary", err: errors.New("boom too")}

	store := New(Config{Primary: primary, Secondary: secondary, CacheTTL: time.Minute, RequestsPerSecond: 1000}, testLogger())

	_, err := store.DailyClose(context.Background(), "ZZZZ", date(2024, 1, 1), date(2024, 1, 31))
	if err == nil {
		t.Fatal("expected error when both vendors fail")
	}
}

func TestStoreCachesRepeatedRequests(t *testing.T) {
	primary := &fakeVendor{name: "primary", series: Series{Dates: []time.Time{date(2024, 1, 2)}, Values: []float64{1}}}
	secondary := &fakeVendor{name: "secondary"}
	store := New(Config{Primary: primary, Secondary: secondary, CacheTTL: time.Minute, RequestsPerSecond: 1000}, testLogger())

	for i := 0; i < 5; i++ {
		if _, err := store.DailyClose(context.Background(), "AAPL", date(2024, 1, 1), date(2024, 1, 31)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if primary.calls != 1 {
		t.Errorf("expected cache to dedupe repeated identical requests, got %d calls", primary.calls)
	}
}
