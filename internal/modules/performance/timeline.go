// Package performance reconstructs realized portfolio performance per
// spec.md §4.7: per-account inception, position timelines, daily NAV, GIPS
// beginning-of-day time-weighted returns, period chaining, and per-account
// aggregation with Sharpe/Sortino/max-drawdown outputs. Grounded on the
// teacher's attribution/cash-flow reconstruction style
// (internal/modules/portfolio/attribution.go,
// internal/modules/cash_flows/service.go,
// internal/modules/dividends/service.go), generalized to the spec's
// GIPS-compliant TWR formula the teacher does not implement.
package performance

import (
	"sort"
	"time"

	"github.com/henrysouchien/portfolio-risk-engine/internal/domain"
)

// LegKey is the timeline grouping key spec.md §4.7 names explicitly:
// (account_id, symbol, currency, direction).
type LegKey struct {
	AccountID string
	Symbol    string
	Currency  string
	Direction string // "long" or "short", derived from transaction sign
}

func directionFor(quantity float64) string {
	if quantity < 0 {
		return "short"
	}
	return "long"
}

// Lot is one timeline entry: a transaction or a synthesized compensating
// entry (synthetic BUY at inception, or the SYSTEM_TRANSFER BUY+external
// contribution pair).
type Lot struct {
	Date      time.Time
	Quantity  float64
	Price     float64
	Synthetic bool
}

// AccountInception resolves the earliest credible date for an account per
// spec.md §4.7 stage 1: earliest transaction/flow date; synthetic
// inception for a position lacking transaction history uses its first
// observed date; absent that, falls back to the account's earliest known
// date — never the global minimum across accounts.
func AccountInception(accountID string, txs []domain.Transaction, flows []domain.FlowEvent, firstObservedByPosition map[string]time.Time) time.Time {
	var earliest time.Time
	consider := func(t time.Time) {
		if earliest.IsZero() || t.Before(earliest) {
			earliest = t
		}
	}
	for _, tx := range txs {
		if tx.AccountID == accountID {
			consider(tx.TradeDate)
		}
	}
	for _, f := range flows {
		if f.AccountID == accountID {
			consider(f.Date)
		}
	}
	if !earliest.IsZero() {
		return earliest
	}
	// No transaction/flow history at all for this account: fall back to
	// the earliest first-observed date among its positions, never a
	// cross-account global minimum.
	for key, t := range firstObservedByPosition {
		if hasAccountPrefix(key, accountID) {
			consider(t)
		}
	}
	return earliest
}

func hasAccountPrefix(key, accountID string) bool {
	return len(key) >= len(accountID) && key[:len(accountID)] == accountID
}

// currencyFor resolves the trading currency for an (account, symbol) pair
// from the known opening positions, defaulting to "USD" when the symbol
// has no observed position yet (e.g. the very first BUY transaction for
// it) — transactions in this system do not carry their own currency field
// and always settle in the position's native currency.
func currencyFor(openingPositions []domain.Position, accountID, symbolKey string) string {
	for _, p := range openingPositions {
		if p.AccountID == accountID && p.Symbol.Key() == symbolKey {
			return p.Currency
		}
	}
	return "USD"
}

// BuildTimeline groups transactions by (account, symbol, currency,
// direction) and emits compensating synthetic entries for positions
// present at inception with unknown prior history (spec.md §4.7 stage 2).
//
// openingPositions are positions observed at the analysis's first date
// with no transaction history explaining how they were acquired; each
// gets a synthetic BUY at the account's inception date, priced at the
// position's observed unit price.
// SYSTEM_TRANSFER transactions additionally emit a matching external
// contribution FlowEvent on the transfer business date and use the
// transaction's own date as a per-symbol inception, bypassing synthetic
// inception seeding for that leg to avoid double counting.
func BuildTimeline(accountInceptions map[string]time.Time, txs []domain.Transaction, openingPositions []domain.Position) (map[LegKey][]Lot, []domain.FlowEvent) {
	timeline := make(map[LegKey][]Lot)
	var extraFlows []domain.FlowEvent
	perSymbolInception := make(map[LegKey]bool)

	for _, tx := range txs {
		symbolKey := tx.Symbol.Key()
		currency := currencyFor(openingPositions, tx.AccountID, symbolKey)
		key := LegKey{AccountID: tx.AccountID, Symbol: symbolKey, Currency: currency, Direction: directionFor(tx.Quantity)}
		timeline[key] = append(timeline[key], Lot{Date: tx.TradeDate, Quantity: tx.Quantity, Price: tx.Price})

		if tx.Type == domain.TxSystemTransfer {
			extraFlows = append(extraFlows, domain.FlowEvent{
				Date: tx.TradeDate, AccountID: tx.AccountID,
				Direction: domain.FlowIn, Amount: absFloat(tx.Amount), Classification: domain.FlowExternal,
			})
			perSymbolInception[key] = true
		}
	}

	for _, pos := range openingPositions {
		key := LegKey{AccountID: pos.AccountID, Symbol: pos.Symbol.Key(), Currency: pos.Currency, Direction: directionFor(pos.Quantity)}
		if perSymbolInception[key] {
			continue // SYSTEM_TRANSFER already seeded this leg
		}
		if _, explained := timeline[key]; explained {
			continue // transaction history already accounts for this position
		}
		inception := accountInceptions[pos.AccountID]
		timeline[key] = append(timeline[key], Lot{Date: inception, Quantity: pos.Quantity, Price: pos.UnitPrice, Synthetic: true})
	}

	for key := range timeline {
		sort.Slice(timeline[key], func(i, j int) bool { return timeline[key][i].Date.Before(timeline[key][j].Date) })
	}

	return timeline, extraFlows
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// TruncateToBusinessDate normalizes a near-midnight-UTC timestamp to its
// calendar date (spec.md §4.7 stage 3).
func TruncateToBusinessDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
