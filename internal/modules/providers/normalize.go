package providers

import (
	"strings"
	"time"

	"github.com/henrysouchien/portfolio-risk-engine/internal/domain"
)

// CashMap resolves a currency code to its cash-proxy ETF ticker (spec.md
// §4.3: "currency positions encoded as CUR:XXX and mapped to a cash-proxy
// ETF via a static cash_map").
type CashMap map[string]string

// DefaultCashMap is the built-in currency -> cash-proxy-ETF table.
func DefaultCashMap() CashMap {
	return CashMap{
		"USD": "BIL",
		"EUR": "ESTR",
		"GBP": "IB01",
		"CAD": "CBIL",
		"JPY": "2561.T",
	}
}

// Normalizer applies spec.md §4.3's provider-independent normalization
// rules to raw vendor payloads.
type Normalizer struct {
	kind    Kind
	source  domain.ProviderSource
	cashMap CashMap
}

// NewNormalizer binds a normalizer to one provider's kind/source pairing
// and the configured cash map.
func NewNormalizer(kind Kind, source domain.ProviderSource, cashMap CashMap) *Normalizer {
	if cashMap == nil {
		cashMap = DefaultCashMap()
	}
	return &Normalizer{kind: kind, source: source, cashMap: cashMap}
}

// NormalizeSymbol uppercases the ticker and rewrites currency-cash rows
// (`CUR:XXX`) to their configured cash-proxy ETF, classified as cash.
func (n *Normalizer) NormalizeSymbol(ticker string) *domain.Instrument {
	upper := strings.ToUpper(strings.TrimSpace(ticker))
	if strings.HasPrefix(upper, "CUR:") {
		ccy := strings.TrimPrefix(upper, "CUR:")
		if proxy, ok := n.cashMap[ccy]; ok {
			return domain.Intern(domain.Instrument{Root: proxy, Classification: domain.AssetCash})
		}
		return domain.Intern(domain.Instrument{Root: upper, Classification: domain.AssetCash})
	}
	return domain.Intern(domain.Instrument{Root: upper, Classification: domain.AssetEquity})
}

// NormalizePosition converts a vendor payload into a canonical Position,
// flagging it synthetic when cost basis is unavailable upstream (spec.md
// §4.3: "missing cost basis marks the position as synthetic").
func (n *Normalizer) NormalizePosition(raw RawPosition) domain.Position {
	costBasis := 0.0
	synthetic := true
	if raw.CostBasis != nil {
		costBasis = *raw.CostBasis
		synthetic = false
	}
	return domain.Position{
		Symbol:         n.NormalizeSymbol(raw.Ticker),
		Quantity:       raw.Quantity,
		UnitPrice:      raw.UnitPrice,
		Currency:       strings.ToUpper(raw.Currency),
		CostBasis:      costBasis,
		AccountID:      raw.AccountID,
		ProviderSource: n.source,
		BrokerageName:  raw.BrokerageName,
		InstrumentType: domain.AssetClass(raw.InstrumentType),
		Synthetic:      synthetic,
		BrokerMargin:   raw.MarginRequirement,
	}
}

// businessDate picks the date used for cash-flow bucketing. spec.md §4.3:
// "For providers that emit both trade_date and system time, the business
// date is used for cash flows (prevents near-midnight UTC flows landing in
// the wrong month). Specifically, CASH_RECEIPT uses the receipt business
// date so trades funded by the deposit are co-dated."
func (n *Normalizer) businessDate(raw RawTransaction) (time.Time, error) {
	dateStr := raw.BusinessDate
	if dateStr == "" {
		dateStr = raw.TradeDate
	}
	return parseFlexibleDate(dateStr)
}

func parseFlexibleDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return truncateToDate(t), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}

func truncateToDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// NormalizeTransaction converts a vendor transaction into a canonical
// Transaction using the business date for the trade date when the vendor
// supplies one, per spec.md §4.3.
func (n *Normalizer) NormalizeTransaction(raw RawTransaction) (domain.Transaction, error) {
	tradeDate, err := n.businessDate(raw)
	if err != nil {
		return domain.Transaction{}, err
	}
	settlement := tradeDate
	if raw.SettlementDate != "" {
		if t, err := parseFlexibleDate(raw.SettlementDate); err == nil {
			settlement = t
		}
	}
	txType := classifyType(raw.Type)
	return domain.Transaction{
		TradeDate:      tradeDate,
		SettlementDate: settlement,
		Symbol:         n.NormalizeSymbol(raw.Ticker),
		Quantity:       raw.Quantity,
		Price:          raw.Price,
		Amount:         raw.Amount,
		Type:           txType,
		AccountID:      raw.AccountID,
		ProviderSource: n.source,
	}, nil
}

// classifyType maps vendor-specific type strings onto the canonical
// TransactionType taxonomy, classifying cashback/reward tokens as
// CASHBACK (spec.md §4.3: "classified as external contributions").
func classifyType(raw string) domain.TransactionType {
	upper := strings.ToUpper(strings.TrimSpace(raw))
	switch upper {
	case "BUY", "SELL", "DIVIDEND", "INTEREST", "DEPOSIT", "WITHDRAWAL",
		"FEE", "CASHBACK", "TRANSFER_IN", "TRANSFER_OUT",
		"CORPORATE_ACTION", "SYSTEM_TRANSFER":
		return domain.TransactionType(upper)
	case "CASH_RECEIPT":
		return domain.TxDeposit
	case "REWARD", "CASH_BACK", "REBATE":
		return domain.TxCashback
	default:
		return domain.TransactionType(upper)
	}
}

// DeriveFlows classifies normalized transactions into FlowEvents:
// deposits, CASHBACK, transfers in and out, and SYSTEM_TRANSFER (its
// contribution leg, as an inflow) each yield one external flow (spec.md
// §3). Other transaction types yield no flow event.
func DeriveFlows(txs []domain.Transaction) []domain.FlowEvent {
	var flows []domain.FlowEvent
	for _, tx := range txs {
		switch tx.Type {
		case domain.TxDeposit, domain.TxCashback:
			flows = append(flows, domain.FlowEvent{Date: tx.TradeDate, AccountID: tx.AccountID, Direction: domain.FlowIn, Amount: absFloat(tx.Amount), Classification: domain.FlowExternal})
		case domain.TxWithdrawal:
			flows = append(flows, domain.FlowEvent{Date: tx.TradeDate, AccountID: tx.AccountID, Direction: domain.FlowOut, Amount: absFloat(tx.Amount), Classification: domain.FlowExternal})
		case domain.TxTransferIn:
			flows = append(flows, domain.FlowEvent{Date: tx.TradeDate, AccountID: tx.AccountID, Direction: domain.FlowIn, Amount: absFloat(tx.Amount), Classification: domain.FlowExternal})
		case domain.TxTransferOut:
			flows = append(flows, domain.FlowEvent{Date: tx.TradeDate, AccountID: tx.AccountID, Direction: domain.FlowOut, Amount: absFloat(tx.Amount), Classification: domain.FlowExternal})
		case domain.TxSystemTransfer:
			// spec.md §3: a SYSTEM_TRANSFER materializes a synthetic BUY at
			// transfer cost plus a matching *external* contribution — the
			// position migrated from another broker the user already owns,
			// but the contribution itself is treated as new external capital
			// for GIPS flow-accounting purposes.
			flows = append(flows, domain.FlowEvent{Date: tx.TradeDate, AccountID: tx.AccountID, Direction: domain.FlowIn, Amount: absFloat(tx.Amount), Classification: domain.FlowExternal})
		}
	}
	return flows
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// NarrowMergedSource resolves a row whose provider_source field carries a
// merged list (e.g. "plaid,schwab") to its native source, per spec.md
// §4.4's row-level variant: "when a single row carries merged sources,
// narrow to the native source before further processing." Returns the
// original value unchanged when it contains no comma or no native entry.
func NarrowMergedSource(raw string) domain.ProviderSource {
	if !strings.Contains(raw, ",") {
		return domain.ProviderSource(strings.TrimSpace(raw))
	}
	parts := strings.Split(raw, ",")
	for _, p := range parts {
		src := domain.ProviderSource(strings.TrimSpace(p))
		if src.IsNative() {
			return src
		}
	}
	return domain.ProviderSource(strings.TrimSpace(parts[0]))
}
