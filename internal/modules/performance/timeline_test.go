package performance

import (
	"testing"
	"time"

	"github.com/henrysouchien/portfolio-risk-engine/internal/domain"
)

func TestBuildTimeline_SyntheticBuyForUnexplainedOpeningPosition(t *testing.T) {
	symbol := domain.Intern(domain.Instrument{Root: "AAPL", Classification: domain.AssetEquity})
	inception := dateAt(2023, 1, 1)
	openingPositions := []domain.Position{
		{Symbol: symbol, Quantity: 10, UnitPrice: 150, Currency: "USD", AccountID: "acct1"},
	}
	timeline, extraFlows := BuildTimeline(map[string]time.Time{"acct1": inception}, nil, openingPositions)

	key := LegKey{AccountID: "acct1", Symbol: "AAPL", Currency: "USD", Direction: "long"}
	lots, ok := timeline[key]
	if !ok || len(lots) != 1 {
		t.Fatalf("expected one synthetic lot, got %+v", timeline)
	}
	if !lots[0].Synthetic || !lots[0].Date.Equal(inception) {
		t.Errorf("expected synthetic BUY at inception, got %+v", lots[0])
	}
	if len(extraFlows) != 0 {
		t.Errorf("expected no extra flows for ordinary synthetic seeding, got %v", extraFlows)
	}
}

func TestBuildTimeline_SystemTransferEmitsExternalContribution(t *testing.T) {
	symbol := domain.Intern(domain.Instrument{Root: "MSFT", Classification: domain.AssetEquity})
	transferDate := dateAt(2024, 3, 15)
	txs := []domain.Transaction{
		{AccountID: "acct2", Symbol: symbol, Quantity: 5, Price: 300, Amount: 1500, Type: domain.TxSystemTransfer, TradeDate: transferDate},
	}
	openingPositions := []domain.Position{
		{Symbol: symbol, Quantity: 5, UnitPrice: 300, Currency: "USD", AccountID: "acct2"},
	}
	timeline, extraFlows := BuildTimeline(map[string]time.Time{"acct2": dateAt(2023, 1, 1)}, txs, openingPositions)

	key := LegKey{AccountID: "acct2", Symbol: "MSFT", Currency: "USD", Direction: "long"}
	lots, ok := timeline[key]
	if !ok || len(lots) != 1 {
		t.Fatalf("expected exactly one lot from the transfer transaction (no duplicate synthetic seed), got %+v", timeline)
	}
	if lots[0].Synthetic {
		t.Error("the SYSTEM_TRANSFER-derived lot should not double as the synthetic-inception lot")
	}
	if len(extraFlows) != 1 || !extraFlows[0].Date.Equal(transferDate) {
		t.Fatalf("expected one external contribution flow dated at transfer, got %+v", extraFlows)
	}
	if extraFlows[0].Classification != domain.FlowExternal {
		t.Errorf("expected SYSTEM_TRANSFER contribution classified external, got %v", extraFlows[0].Classification)
	}
}
