// Package wiring implements the internal/modules/analysis.PortfolioSource
// and PanelSource seams by fanning out to the provider adapters and price
// store built earlier in the pack, then running them through the
// canonicalizer and factor engine. This is the glue cmd/server assembles
// at startup; it exists so internal/modules/analysis stays ignorant of
// how positions and price history are actually fetched.
//
// Grounded on the teacher's provider fan-out pattern
// (internal/modules/portfolio's multi-broker aggregation, generalized
// here with golang.org/x/sync/errgroup per spec.md §5's "N parallel
// tasks joined before canonicalization").
package wiring

import (
	"context"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/henrysouchien/portfolio-risk-engine/internal/domain"
	"github.com/henrysouchien/portfolio-risk-engine/internal/modules/canonicalizer"
	"github.com/henrysouchien/portfolio-risk-engine/internal/modules/factor"
	"github.com/henrysouchien/portfolio-risk-engine/internal/modules/priceseries"
	"github.com/henrysouchien/portfolio-risk-engine/internal/modules/providers"
)

// PositionSource pairs one provider adapter with the normalizer for its
// kind/source, so Loader doesn't need to know how each broker's
// credentials were wired.
type PositionSource struct {
	Adapter    providers.Adapter
	Normalizer *providers.Normalizer
}

// Loader implements analysis.PortfolioSource by fetching every
// configured provider's positions concurrently, normalizing and merging
// them through the canonicalizer, then building per-leg return series
// aligned to the caller's panel date grid.
type Loader struct {
	sources    []PositionSource
	prices     *priceseries.Store
	returnFreq string // "monthly" or "daily", matching the panel's Frequency
}

// NewLoader constructs a Loader over the given provider sources and price
// store.
func NewLoader(sources []PositionSource, prices *priceseries.Store, returnFreq string) *Loader {
	if returnFreq == "" {
		returnFreq = "monthly"
	}
	return &Loader{sources: sources, prices: prices, returnFreq: returnFreq}
}

// Load implements analysis.PortfolioSource.
func (l *Loader) Load(ctx context.Context, userID string, scope canonicalizer.Scope, panelDates []time.Time) (*domain.CanonicalPortfolio, []factor.AssetInput, map[string]domain.AssetClass, error) {
	positions, err := l.fetchAllPositions(ctx)
	if err != nil {
		return nil, nil, nil, err
	}

	portfolio, err := canonicalizer.Canonicalize(userID, positions, scope, time.Now())
	if err != nil {
		return nil, nil, nil, err
	}

	inputs := make([]factor.AssetInput, 0, len(portfolio.Legs))
	classes := make(map[string]domain.AssetClass, len(portfolio.Legs))
	for key, leg := range portfolio.Legs {
		classes[key] = leg.Classification
		returns, err := l.alignedReturns(ctx, leg.Symbol.Root, panelDates)
		if err != nil {
			return nil, nil, nil, err
		}
		inputs = append(inputs, factor.AssetInput{Symbol: leg.Symbol, Weight: leg.WeightByNotional, Returns: returns})
	}

	return portfolio, inputs, classes, nil
}

// fetchAllPositions fans out FetchPositions across every configured
// provider adapter and normalizes the results, joining before returning
// (spec.md §5).
func (l *Loader) fetchAllPositions(ctx context.Context) ([]domain.Position, error) {
	raw := make([][]domain.Position, len(l.sources))
	g, gctx := errgroup.WithContext(ctx)
	for i, src := range l.sources {
		i, src := i, src
		g.Go(func() error {
			rawPositions, err := src.Adapter.FetchPositions(gctx)
			if err != nil {
				return err
			}
			out := make([]domain.Position, 0, len(rawPositions))
			for _, rp := range rawPositions {
				out = append(out, src.Normalizer.NormalizePosition(rp))
			}
			raw[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []domain.Position
	for _, batch := range raw {
		all = append(all, batch...)
	}
	return all, nil
}

// alignedReturns fetches symbol's return series and reindexes it onto
// panelDates, filling any date with no observation with NaN rather than
// dropping it, so the factor engine's per-asset regression sees the same
// date index length the panel does (factor.AssetInput's "NaN for
// missing" contract).
func (l *Loader) alignedReturns(ctx context.Context, symbol string, panelDates []time.Time) ([]float64, error) {
	if len(panelDates) == 0 {
		return nil, nil
	}
	start, end := panelDates[0], panelDates[len(panelDates)-1]

	var series priceseries.Series
	var err error
	if l.returnFreq == "daily" {
		series, err = l.prices.DailyClose(ctx, symbol, start, end)
	} else {
		series, err = l.prices.MonthlyTotalReturnClose(ctx, symbol, start, end)
	}
	if err != nil {
		return nil, err
	}
	returns := priceseries.MonthlyReturns(series)

	out := make([]float64, len(panelDates))
	for i, d := range panelDates {
		v, ok := returns.At(d)
		if !ok {
			out[i] = math.NaN()
			continue
		}
		out[i] = v
	}
	return out, nil
}
