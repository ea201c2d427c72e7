package providers

import (
	"context"

	"github.com/henrysouchien/portfolio-risk-engine/internal/clients/tradernet"
)

// TradernetAdapter adapts the teacher's Tradernet microservice client to
// the Adapter interface, tagged as a native broker source. Grounded
// directly on internal/modules/cash_flows/tradernet_adapter.go's
// wrap-and-convert shape.
type TradernetAdapter struct {
	client *tradernet.Client
	kind   Kind
}

// NewTradernetAdapter wraps a Tradernet client as a named ProviderKind
// (callers pick native_ibkr/native_schwab depending on deployment — the
// microservice itself is broker-agnostic).
func NewTradernetAdapter(client *tradernet.Client, kind Kind) *TradernetAdapter {
	return &TradernetAdapter{client: client, kind: kind}
}

func (a *TradernetAdapter) Kind() Kind { return a.kind }

func (a *TradernetAdapter) FetchPositions(ctx context.Context) ([]RawPosition, error) {
	positions, err := a.client.GetPortfolio()
	if err != nil {
		return nil, err
	}
	out := make([]RawPosition, len(positions))
	for i, p := range positions {
		out[i] = RawPosition{
			Ticker:        p.Symbol,
			Quantity:      p.Quantity,
			UnitPrice:     p.CurrentPrice,
			Currency:      p.Currency,
			CostBasis:     costBasisFromAvgPrice(p.AvgPrice, p.Quantity),
			BrokerageName: "tradernet",
		}
	}
	return out, nil
}

func costBasisFromAvgPrice(avgPrice, quantity float64) *float64 {
	if avgPrice == 0 {
		return nil // vendor did not report an average price: synthetic
	}
	total := avgPrice * quantity
	return &total
}

func (a *TradernetAdapter) FetchTransactions(ctx context.Context) ([]RawTransaction, error) {
	trades, err := a.client.GetExecutedTrades(500)
	if err != nil {
		return nil, err
	}
	out := make([]RawTransaction, len(trades))
	for i, t := range trades {
		out[i] = RawTransaction{
			TradeDate: t.ExecutedAt,
			Ticker:    t.Symbol,
			Quantity:  t.Quantity,
			Price:     t.Price,
			Amount:    t.Price * t.Quantity,
			Type:      t.Side,
		}
	}
	return out, nil
}
