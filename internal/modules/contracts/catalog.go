// Package contracts implements spec.md §4.1, a static registry of futures
// contracts keyed by root symbol: multiplier, tick size, currency,
// exchange, and asset class. The catalog is loaded at process start and
// can be reloaded at runtime (LoadYAML swaps in a whole new spec map),
// following the teacher's treatment of read-mostly registries
// (internal/modules/universe/security_repository.go) generalized here to
// an in-memory map rather than a sqlite table.
package contracts

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/henrysouchien/portfolio-risk-engine/internal/domain"
)

// ContractSpec is an immutable futures contract definition.
type ContractSpec struct {
	Symbol     string                   `yaml:"symbol"`
	Multiplier float64                  `yaml:"multiplier"`
	TickSize   float64                  `yaml:"tick_size"`
	Currency   string                   `yaml:"currency"`
	Exchange   string                   `yaml:"exchange"`
	AssetClass domain.FuturesAssetClass `yaml:"asset_class"`
}

// TickValue returns tick_size * multiplier.
func (c ContractSpec) TickValue() float64 { return c.TickSize * c.Multiplier }

// Notional returns quantity * multiplier * price.
func (c ContractSpec) Notional(quantity, price float64) float64 {
	return quantity * c.Multiplier * price
}

// PnL returns the realized P&L for q contracts held from entry to exit:
// q * multiplier * (exit - entry).
func (c ContractSpec) PnL(q, entry, exit float64) float64 {
	return q * c.Multiplier * (exit - entry)
}

// ContractMonth is one listed expiry of a root symbol, as reported by a
// broker gateway session (spec.md §4.1 list_months).
type ContractMonth struct {
	ContractMonth string // YYYYMM
	LastTradeDate string // YYYY-MM-DD
	ConID         string
}

// MonthsGateway is the broker-gateway boundary list_months delegates to.
// Concrete implementations (a specific broker's contract-search API) are
// out of scope per spec.md §1; only this interface is specified.
type MonthsGateway interface {
	ListContractMonths(symbol, session string) ([]ContractMonth, error)
}

// Direction is the roll direction for BuildRoll.
type Direction string

const (
	LongRoll  Direction = "long_roll"
	ShortRoll Direction = "short_roll"
)

// RollLeg is one leg of a calendar spread.
type RollLeg struct {
	ContractMonth string
	Action        string // BUY or SELL
}

// CalendarSpread is a two-leg BAG combo produced by BuildRoll. The BAG's
// own Action follows spread convention: BUY regardless of leg actions.
type CalendarSpread struct {
	Symbol string
	Front  RollLeg
	Back   RollLeg
	Action string // always "BUY" — spread convention
}

// Catalog is the process-wide contract registry; LoadYAML replaces its
// contents as a whole.
type Catalog struct {
	mu      sync.RWMutex
	specs   map[string]ContractSpec
	gateway MonthsGateway
	log     zerolog.Logger
}

// New constructs an empty catalog. LoadYAML populates it.
func New(log zerolog.Logger, gateway MonthsGateway) *Catalog {
	return &Catalog{
		specs:   make(map[string]ContractSpec),
		gateway: gateway,
		log:     log.With().Str("component", "contracts").Logger(),
	}
}

// LoadYAML parses a YAML document of contract specs (a list under key
// "contracts") and installs them atomically, replacing any prior catalog.
func (c *Catalog) LoadYAML(data []byte) error {
	var doc struct {
		Contracts []ContractSpec `yaml:"contracts"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("contracts: parse catalog: %w", err)
	}

	specs := make(map[string]ContractSpec, len(doc.Contracts))
	for _, spec := range doc.Contracts {
		specs[normalizeRoot(spec.Symbol)] = spec
	}

	c.mu.Lock()
	c.specs = specs
	c.mu.Unlock()

	c.log.Info().Int("count", len(specs)).Msg("loaded contract catalog")
	return nil
}

func normalizeRoot(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Lookup returns the ContractSpec for symbol, or (ContractSpec{}, false)
// for unknown symbols. Callers must surface a clear error on a miss
// (spec.md §4.1); Lookup itself never errors.
func (c *Catalog) Lookup(symbol string) (ContractSpec, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	spec, ok := c.specs[normalizeRoot(symbol)]
	return spec, ok
}

// ListMonths delegates to the configured broker gateway, filters out
// expired contracts (a month without a LastTradeDate, or whose
// LastTradeDate is before today in UTC) and sorts the rest ascending by
// last-trade date.
func (c *Catalog) ListMonths(symbol, session string) ([]ContractMonth, error) {
	if _, ok := c.Lookup(symbol); !ok {
		return nil, fmt.Errorf("contracts: unknown symbol %q", symbol)
	}
	if c.gateway == nil {
		return nil, fmt.Errorf("contracts: no months gateway configured")
	}
	months, err := c.gateway.ListContractMonths(symbol, session)
	if err != nil {
		return nil, fmt.Errorf("contracts: list months for %s: %w", symbol, err)
	}

	today := time.Now().UTC().Format("2006-01-02")
	sorted := make([]ContractMonth, 0, len(months))
	for _, m := range months {
		if m.LastTradeDate == "" || m.LastTradeDate < today {
			continue
		}
		sorted = append(sorted, m)
	}
	sortByLastTradeDate(sorted)
	return sorted, nil
}

func sortByLastTradeDate(months []ContractMonth) {
	// Insertion sort: the broker gateway typically returns a small,
	// near-sorted roster (a handful of quarterly expiries), so this avoids
	// pulling in sort.Slice for a closure capturing a single field.
	for i := 1; i < len(months); i++ {
		j := i
		for j > 0 && months[j-1].LastTradeDate > months[j].LastTradeDate {
			months[j-1], months[j] = months[j], months[j-1]
			j--
		}
	}
}

// BuildRoll constructs a calendar-spread combo between front and back
// contract months. long_roll = SELL front + BUY back; short_roll = BUY
// front + SELL back. The BAG's own action is always BUY (spread
// convention), per spec.md §4.1.
func (c *Catalog) BuildRoll(symbol, frontMonth, backMonth string, direction Direction) (CalendarSpread, error) {
	if _, ok := c.Lookup(symbol); !ok {
		return CalendarSpread{}, fmt.Errorf("contracts: unknown symbol %q", symbol)
	}
	if frontMonth == "" || backMonth == "" || frontMonth == backMonth {
		return CalendarSpread{}, fmt.Errorf("contracts: invalid roll months front=%q back=%q", frontMonth, backMonth)
	}

	var frontAction, backAction string
	switch direction {
	case LongRoll:
		frontAction, backAction = "SELL", "BUY"
	case ShortRoll:
		frontAction, backAction = "BUY", "SELL"
	default:
		return CalendarSpread{}, fmt.Errorf("contracts: unknown roll direction %q", direction)
	}

	return CalendarSpread{
		Symbol: normalizeRoot(symbol),
		Front:  RollLeg{ContractMonth: frontMonth, Action: frontAction},
		Back:   RollLeg{ContractMonth: backMonth, Action: backAction},
		Action: "BUY",
	}, nil
}
