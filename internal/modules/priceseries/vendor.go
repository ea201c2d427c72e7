package priceseries

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/henrysouchien/portfolio-risk-engine/internal/clients/stooq"
	"github.com/henrysouchien/portfolio-risk-engine/internal/clients/yahoo"
)

// Vendor fetches a raw daily close series for symbol. Both the primary
// and secondary vendor clients implement this boundary.
type Vendor interface {
	Name() string
	DailyClose(ctx context.Context, symbol string, start, end time.Time) (Series, error)
	DailyTotalReturnClose(ctx context.Context, symbol string, start, end time.Time) (Series, error)
}

// guardedVendor wraps a Vendor with a circuit breaker and a token-bucket
// rate limiter, grounded on sawpanic-cryptorun's provider resilience
// wrappers — the teacher's own yahoo client has no such wrapper at all.
type guardedVendor struct {
	inner   Vendor
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

func newGuardedVendor(inner Vendor, requestsPerSecond float64) *guardedVendor {
	settings := gobreaker.Settings{
		Name:        inner.Name(),
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &guardedVendor{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker(settings),
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), int(requestsPerSecond)+1),
	}
}

func (g *guardedVendor) Name() string { return g.inner.Name() }

func (g *guardedVendor) DailyClose(ctx context.Context, symbol string, start, end time.Time) (Series, error) {
	return g.call(ctx, func() (Series, error) { return g.inner.DailyClose(ctx, symbol, start, end) })
}

func (g *guardedVendor) DailyTotalReturnClose(ctx context.Context, symbol string, start, end time.Time) (Series, error) {
	return g.call(ctx, func() (Series, error) { return g.inner.DailyTotalReturnClose(ctx, symbol, start, end) })
}

func (g *guardedVendor) call(ctx context.Context, fetch func() (Series, error)) (Series, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return Series{}, fmt.Errorf("priceseries: rate limiter for %s: %w", g.Name(), err)
	}
	result, err := g.breaker.Execute(func() (interface{}, error) {
		return fetch()
	})
	if err != nil {
		return Series{}, err
	}
	return result.(Series), nil
}

// yahooVendor adapts the Yahoo client to the Vendor interface.
type yahooVendor struct{ client *yahoo.Client }

func NewYahooVendor(client *yahoo.Client) Vendor { return &yahooVendor{client: client} }

func (y *yahooVendor) Name() string { return "yahoo" }

func (y *yahooVendor) DailyClose(ctx context.Context, symbol string, start, end time.Time) (Series, error) {
	bars, err := y.client.GetDailyHistory(ctx, symbol, start, end)
	if err != nil {
		return Series{}, err
	}
	s := Series{Dates: make([]time.Time, len(bars)), Values: make([]float64, len(bars))}
	for i, b := range bars {
		s.Dates[i], s.Values[i] = b.Date, b.Close
	}
	sortSeries(&s)
	return s, nil
}

func (y *yahooVendor) DailyTotalReturnClose(ctx context.Context, symbol string, start, end time.Time) (Series, error) {
	bars, err := y.client.GetDailyHistory(ctx, symbol, start, end)
	if err != nil {
		return Series{}, err
	}
	s := Series{Dates: make([]time.Time, len(bars)), Values: make([]float64, len(bars))}
	for i, b := range bars {
		s.Dates[i], s.Values[i] = b.Date, b.AdjClose
	}
	sortSeries(&s)
	return s, nil
}

// stooqVendor adapts the stooq secondary client to the Vendor interface.
type stooqVendor struct{ client *stooq.Client }

func NewStooqVendor(client *stooq.Client) Vendor { return &stooqVendor{client: client} }

func (s *stooqVendor) Name() string { return "stooq" }

func (s *stooqVendor) DailyClose(ctx context.Context, symbol string, start, end time.Time) (Series, error) {
	bars, err := s.client.GetDailyHistory(ctx, symbol, start, end)
	if err != nil {
		return Series{}, err
	}
	out := Series{Dates: make([]time.Time, len(bars)), Values: make([]float64, len(bars))}
	for i, b := range bars {
		out.Dates[i], out.Values[i] = b.Date, b.Close
	}
	sortSeries(&out)
	return out, nil
}

// stooq has no dedicated total-return feed; it falls back to raw close,
// which the store's monthly-close fallback (spec.md §4.2) accounts for.
func (s *stooqVendor) DailyTotalReturnClose(ctx context.Context, symbol string, start, end time.Time) (Series, error) {
	return s.DailyClose(ctx, symbol, start, end)
}
