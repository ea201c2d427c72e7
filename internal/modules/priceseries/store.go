package priceseries

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/henrysouchien/portfolio-risk-engine/internal/apperr"
)

// Store fetches, caches, and aligns daily/monthly total-return series and
// FX rates from a primary vendor with a secondary-vendor fallback
// (spec.md §4.2).
type Store struct {
	primary   Vendor
	secondary Vendor
	cache     *seriesCache
	pool      *FetchPool
	log       zerolog.Logger
}

// Config configures a Store.
type Config struct {
	Primary           Vendor
	Secondary         Vendor
	CacheTTL          time.Duration
	WorkerPoolSize    int
	RequestsPerSecond float64
}

// New constructs a price & returns store. Both vendors are wrapped with a
// circuit breaker and rate limiter (see vendor.go).
func New(cfg Config, log zerolog.Logger) *Store {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Store{
		primary:   newGuardedVendor(cfg.Primary, rps),
		secondary: newGuardedVendor(cfg.Secondary, rps),
		cache:     newSeriesCache(ttl),
		pool:      NewFetchPool(cfg.WorkerPoolSize),
		log:       log.With().Str("component", "priceseries").Logger(),
	}
}

// fetchWithFallback tries the primary vendor, then the secondary, through
// the bounded worker pool, and fails with PRICE_UNAVAILABLE if both fail —
// callers MUST NOT substitute zeros (spec.md §4.2).
func (s *Store) fetchWithFallback(ctx context.Context, symbol, frequency string, start, end time.Time, fetch func(Vendor) (Series, error)) (Series, error) {
	if err := s.pool.Acquire(ctx); err != nil {
		return Series{}, apperr.Wrap(err, "priceseries: acquire worker slot for %s", symbol)
	}
	defer s.pool.Release()

	key := cacheKey{Symbol: symbol, Frequency: frequency, Start: start, End: end, Vendor: s.primary.Name()}
	series, err := s.cache.fetchOnce(key, func() (Series, error) { return fetch(s.primary) })
	if err == nil {
		return series, nil
	}
	s.log.Warn().Err(err).Str("symbol", symbol).Str("vendor", s.primary.Name()).Msg("primary vendor failed, trying secondary")

	secKey := cacheKey{Symbol: symbol, Frequency: frequency, Start: start, End: end, Vendor: s.secondary.Name()}
	series, err = s.cache.fetchOnce(secKey, func() (Series, error) { return fetch(s.secondary) })
	if err != nil {
		s.log.Error().Err(err).Str("symbol", symbol).Msg("all vendors failed")
		return Series{}, apperr.PriceUnavailable(symbol)
	}
	return series, nil
}

// DailyClose returns the daily close series for symbol over [start, end].
func (s *Store) DailyClose(ctx context.Context, symbol string, start, end time.Time) (Series, error) {
	return s.fetchWithFallback(ctx, symbol, "daily", start, end, func(v Vendor) (Series, error) {
		return v.DailyClose(ctx, symbol, start, end)
	})
}

// MonthlyTotalReturnClose returns a monthly total-return close series,
// with a monthly-close (non-total-return) fallback on vendor failure
// (spec.md §4.2).
func (s *Store) MonthlyTotalReturnClose(ctx context.Context, symbol string, start, end time.Time) (Series, error) {
	series, err := s.fetchWithFallback(ctx, symbol, "monthly_tr", start, end, func(v Vendor) (Series, error) {
		return v.DailyTotalReturnClose(ctx, symbol, start, end)
	})
	if err != nil {
		// Fallback: monthly close without total-return adjustment.
		series, err = s.fetchWithFallback(ctx, symbol, "monthly_close", start, end, func(v Vendor) (Series, error) {
			return v.DailyClose(ctx, symbol, start, end)
		})
		if err != nil {
			return Series{}, err
		}
	}
	return monthEndSample(series), nil
}

// FXDaily returns a daily FX rate series for base/quote, expressed as
// "1 base = rate quote".
func (s *Store) FXDaily(ctx context.Context, base, quote string, start, end time.Time) (Series, error) {
	pair := base + quote + "=X"
	return s.fetchWithFallback(ctx, pair, "fx_daily", start, end, func(v Vendor) (Series, error) {
		return v.DailyClose(ctx, pair, start, end)
	})
}

// monthEndSample down-samples a daily series to one observation per
// calendar month (the last trading day on or before month end).
func monthEndSample(daily Series) Series {
	out := Series{}
	var lastMonth time.Month
	var lastYear int
	for i, d := range daily.Dates {
		if i == 0 || d.Month() != lastMonth || d.Year() != lastYear {
			if i > 0 {
				out.Dates = append(out.Dates, daily.Dates[i-1])
				out.Values = append(out.Values, daily.Values[i-1])
			}
			lastMonth, lastYear = d.Month(), d.Year()
		}
	}
	if daily.Len() > 0 {
		out.Dates = append(out.Dates, daily.Dates[daily.Len()-1])
		out.Values = append(out.Values, daily.Values[daily.Len()-1])
	}
	return out
}

// EvictExpired sweeps the internal series cache. No scheduled job calls
// it: the scheduler's eviction job sweeps only the result cache
// (internal/cache).
func (s *Store) EvictExpired() int { return s.cache.EvictExpired() }
