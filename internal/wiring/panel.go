package wiring

import (
	"context"
	"sync"
	"time"

	"github.com/henrysouchien/portfolio-risk-engine/internal/domain"
	"github.com/henrysouchien/portfolio-risk-engine/internal/modules/priceseries"
)

// FactorSpec names one column of the shared factor-return panel: its
// proxy ticker, display label, and taxonomy bucket.
type FactorSpec struct {
	Ticker   string
	Label    string
	Category string
}

// PanelBuilder implements analysis.PanelSource and
// scheduler.PanelRefresher: it rebuilds the shared factor-return panel
// from each configured proxy ticker's monthly total-return series and
// caches the result in memory until the next Refresh, mirroring spec.md
// §4.5/§4.9's "shared resource, process-wide, read-heavy" policy.
type PanelBuilder struct {
	specs        []FactorSpec
	prices       *priceseries.Store
	windowMonths int

	mu      sync.RWMutex
	current *domain.FactorReturnPanel
}

// NewPanelBuilder constructs a PanelBuilder over the given factor specs.
// windowMonths bounds how far back the panel's date grid reaches.
func NewPanelBuilder(specs []FactorSpec, prices *priceseries.Store, windowMonths int) *PanelBuilder {
	if windowMonths <= 0 {
		windowMonths = 36
	}
	return &PanelBuilder{specs: specs, prices: prices, windowMonths: windowMonths}
}

// Load returns the current panel, building it on first use.
func (b *PanelBuilder) Load(ctx context.Context) (*domain.FactorReturnPanel, error) {
	b.mu.RLock()
	panel := b.current
	b.mu.RUnlock()
	if panel != nil {
		return panel, nil
	}
	return b.rebuild(ctx)
}

// Refresh rebuilds the panel unconditionally, implementing
// scheduler.PanelRefresher.
func (b *PanelBuilder) Refresh(ctx context.Context) error {
	_, err := b.rebuild(ctx)
	return err
}

func (b *PanelBuilder) rebuild(ctx context.Context) (*domain.FactorReturnPanel, error) {
	end := time.Now()
	start := end.AddDate(0, -b.windowMonths, 0)

	// Fetch the first series to establish the panel's date grid, then
	// reindex every other factor onto it and drop every date that any
	// column lacks (spec.md §4.2's single reindex+dropna policy; no gap is
	// filled).
	var dates []time.Time
	var missing []bool
	columns := make([][]float64, len(b.specs))
	for i, spec := range b.specs {
		series, err := b.prices.MonthlyTotalReturnClose(ctx, spec.Ticker, start, end)
		if err != nil {
			return nil, err
		}
		returns := priceseries.MonthlyReturns(series)
		if dates == nil {
			dates = returns.Dates
			missing = make([]bool, len(dates))
		}
		aligned := make([]float64, len(dates))
		for j, d := range dates {
			if v, ok := returns.At(d); ok {
				aligned[j] = v
			} else {
				missing[j] = true
			}
		}
		columns[i] = aligned
	}

	factors := make([]string, len(b.specs))
	labels := make(map[string]string, len(b.specs))
	categories := make(map[string]string, len(b.specs))
	for i, spec := range b.specs {
		factors[i] = spec.Ticker
		labels[spec.Ticker] = spec.Label
		categories[spec.Ticker] = spec.Category
	}

	var kept []time.Time
	var values [][]float64
	for t := range dates {
		if missing[t] {
			continue
		}
		row := make([]float64, len(b.specs))
		for k := range b.specs {
			row[k] = columns[k][t]
		}
		values = append(values, row)
		kept = append(kept, dates[t])
	}

	panel := &domain.FactorReturnPanel{
		Dates: kept, Factors: factors, Returns: values,
		Labels: labels, Categories: categories, Frequency: "monthly",
	}

	b.mu.Lock()
	b.current = panel
	b.mu.Unlock()
	return panel, nil
}
