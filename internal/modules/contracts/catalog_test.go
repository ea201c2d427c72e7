package contracts

import (
	"testing"

	"github.com/henrysouchien/portfolio-risk-engine/pkg/logger"
)

const testYAML = `
contracts:
  - symbol: ES
    multiplier: 50
    tick_size: 0.25
    currency: USD
    exchange: CME
    asset_class: equity_index
  - symbol: ZB
    multiplier: 1000
    tick_size: 0.03125
    currency: USD
    exchange: CBOT
    asset_class: fixed_income
`

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	log := logger.New(logger.Config{Level: "error", Pretty: false})
	c := New(log, nil)
	if err := c.LoadYAML([]byte(testYAML)); err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	return c
}

func TestLookup(t *testing.T) {
	c := newTestCatalog(t)

	spec, ok := c.Lookup("es")
	if !ok {
		t.Fatal("expected ES to resolve case-insensitively")
	}
	if spec.Multiplier != 50 {
		t.Errorf("multiplier = %v, want 50", spec.Multiplier)
	}

	if _, ok := c.Lookup("ZZZZ"); ok {
		t.Error("expected unknown symbol to miss")
	}
}

func TestESNotionalScenario(t *testing.T) {
	// Concrete scenario from spec.md §8: 2 contracts of ES at 5600,
	// multiplier 50.
	c := newTestCatalog(t)
	spec, ok := c.Lookup("ES")
	if !ok {
		t.Fatal("ES must resolve")
	}

	notional := spec.Notional(2, 5600)
	if notional != 560000 {
		t.Errorf("notional = %v, want 560000", notional)
	}
	if spec.Multiplier != 50 {
		t.Errorf("point value = %v, want 50", spec.Multiplier)
	}
	tickValue := spec.TickValue()
	if tickValue != 12.50 {
		t.Errorf("tick value = %v, want 12.50", tickValue)
	}

	marginValue := 25500.0 // AAPL 100 @ 255
	leverage := notional / marginValue
	const want = 560000.0 / 25500.0
	if diff := leverage - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("notional leverage = %v, want %v", leverage, want)
	}
}

func TestBuildRoll(t *testing.T) {
	// Concrete scenario from spec.md §8: build_roll("ES", "202603",
	// "202606", "long_roll").
	c := newTestCatalog(t)

	spread, err := c.BuildRoll("ES", "202603", "202606", LongRoll)
	if err != nil {
		t.Fatalf("build roll: %v", err)
	}
	if spread.Front.ContractMonth != "202603" || spread.Front.Action != "SELL" {
		t.Errorf("front leg = %+v, want SELL 202603", spread.Front)
	}
	if spread.Back.ContractMonth != "202606" || spread.Back.Action != "BUY" {
		t.Errorf("back leg = %+v, want BUY 202606", spread.Back)
	}
	if spread.Action != "BUY" {
		t.Errorf("BAG action = %v, want BUY (spread convention)", spread.Action)
	}
}

func TestBuildRollShort(t *testing.T) {
	c := newTestCatalog(t)

	spread, err := c.BuildRoll("ES", "202603", "202606", ShortRoll)
	if err != nil {
		t.Fatalf("build roll: %v", err)
	}
	if spread.Front.Action != "BUY" || spread.Back.Action != "SELL" {
		t.Errorf("short roll legs = front:%s back:%s, want BUY/SELL", spread.Front.Action, spread.Back.Action)
	}
}

func TestBuildRollUnknownSymbol(t *testing.T) {
	c := newTestCatalog(t)
	if _, err := c.BuildRoll("ZZZZ", "202603", "202606", LongRoll); err == nil {
		t.Error("expected error for unknown symbol")
	}
}
