// Package providers normalizes raw broker/aggregator payloads into
// canonical positions, transactions, and derived cash-flow events
// (spec.md §4.3). Grounded on the teacher's vendor-adapter shape
// (internal/clients/tradernet/client.go's HTTP client +
// internal/modules/cash_flows/tradernet_adapter.go's payload-to-canonical
// conversion), generalized from Tradernet's single-vendor flexible-field
// handling to the spec's closed ProviderKind variant set.
package providers

import "context"

// Kind is the closed tagged variant of provider identities spec.md §9
// names explicitly: downstream code dispatches on this only at
// classification points (native-vs-aggregator); the numerical engines
// never see it.
type Kind string

const (
	KindNativeSchwab      Kind = "native_schwab"
	KindNativeIBKR        Kind = "native_ibkr"
	KindAggregatorPlaid   Kind = "aggregator_plaid"
	KindAggregatorSnaptrade Kind = "aggregator_snaptrade"
	KindManual            Kind = "manual"
)

var nativeKinds = map[Kind]bool{KindNativeSchwab: true, KindNativeIBKR: true}
var aggregatorKinds = map[Kind]bool{KindAggregatorPlaid: true, KindAggregatorSnaptrade: true}

func (k Kind) IsNative() bool     { return nativeKinds[k] }
func (k Kind) IsAggregator() bool { return aggregatorKinds[k] }

// RawPosition and RawTransaction are the vendor-shaped payloads an Adapter
// fetches before normalization, kept deliberately loose (map-like optional
// fields) to mirror the teacher's flexible-field handling for payloads
// whose vendors disagree on field names.
type RawPosition struct {
	Ticker            string
	Quantity          float64
	UnitPrice         float64
	Currency          string
	CostBasis         *float64 // nil => synthetic, cost basis unavailable upstream
	AccountID         string
	BrokerageName     string
	InstrumentType    string
	MarginRequirement *float64 // broker-reported margin for derivative positions; nil when unreported
}

type RawTransaction struct {
	TradeDate      string // RFC3339 or date-only
	BusinessDate   string // receipt/settlement business date, may differ from TradeDate
	SettlementDate string
	Ticker         string
	Quantity       float64
	Price          float64
	Amount         float64
	Type           string
	AccountID      string
}

// Adapter is the single interface every ProviderKind implements:
// fetch_positions and fetch_transactions (spec.md §9). Flow derivation is
// the package-level DeriveFlows, not an Adapter method.
type Adapter interface {
	Kind() Kind
	FetchPositions(ctx context.Context) ([]RawPosition, error)
	FetchTransactions(ctx context.Context) ([]RawTransaction, error)
}
