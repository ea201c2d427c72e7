// Package risk evaluates a canonical portfolio's factor decomposition
// against a configured RiskProfile's limits (spec.md §4.6): pass/fail
// checks, an ordered flag list, and a 0-100 composite score. Grounded on
// the teacher's allocation/rebalancing threshold-check-and-flag pattern
// (internal/modules/allocation/service.go's ConcentrationAlertService,
// internal/modules/rebalancing/service.go), generalized from the
// teacher's EUR-market-value concentration checks to the spec's factor,
// volatility, leverage, and single-stock limits.
package risk

import (
	"fmt"
	"math"
	"sort"

	"github.com/henrysouchien/portfolio-risk-engine/internal/domain"
	"github.com/henrysouchien/portfolio-risk-engine/internal/modules/factor"
)

// Severity mirrors the teacher's warning/critical two-tier classification,
// extended with "breach" for a hard limit violation (spec.md §4.6 distinguishes
// a soft approaching-limit flag from an outright breach).
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
	SeverityBreach   Severity = "breach"
)

// Flag is one limit violation or near-violation, ordered by severity
// (breach, critical, warning) and then by Code for deterministic output
// (spec.md §4.6).
type Flag struct {
	Code      string
	Severity  Severity
	Message   string
	Limit     float64
	Measured  float64
}

// Evaluation is the full risk-check result for one portfolio scope.
type Evaluation struct {
	Pass  bool
	Flags []Flag
	Score float64
}

// approachingLimitRatio is the fraction of a limit (spec.md's "80-90% of
// limit" band from the teacher's calculateSeverity) at which a breach-free
// measurement still earns a warning flag.
const approachingLimitRatio = 0.80
const criticalLimitRatio = 0.90

// severityFor classifies a measured/limit ratio using the teacher's
// calculateSeverity thresholds, adding a hard breach tier above 1.0.
func severityFor(measured, limit float64) (Severity, bool) {
	if limit <= 0 {
		return "", false
	}
	ratio := measured / limit
	switch {
	case ratio >= 1.0:
		return SeverityBreach, true
	case ratio >= criticalLimitRatio:
		return SeverityCritical, true
	case ratio >= approachingLimitRatio:
		return SeverityWarning, true
	default:
		return "", false
	}
}

// severityRank orders severities for flag sorting, breach first.
func severityRank(s Severity) int {
	switch s {
	case SeverityBreach:
		return 0
	case SeverityCritical:
		return 1
	case SeverityWarning:
		return 2
	default:
		return 3
	}
}

// flagLess orders flags lexicographically on (severity desc, code) per
// spec.md §4.6, so the ordering is stable for diffing across evaluations.
func flagLess(a, b Flag) bool {
	ra, rb := severityRank(a.Severity), severityRank(b.Severity)
	if ra != rb {
		return ra < rb
	}
	return a.Code < b.Code
}

// industryContribution sums FactorDecomp's fraction-of-var_factor entries
// across every factor result.FactorCategories attributes to "industry",
// then scales by FactorPct the same way market_contribution scales the
// SPY entry — FactorDecomp values are shares of var_factor, not of total
// portfolio variance.
func industryContribution(result factor.Result) float64 {
	var industryPct float64
	for f, pct := range result.Decomposition.FactorDecomp {
		if result.FactorCategories[f] == "industry" {
			industryPct += pct
		}
	}
	return industryPct * result.Decomposition.FactorPct
}

// singleFactorLosses converts each factor's share of var_factor into an
// annualized volatility figure (sqrt of its absolute variance
// contribution), used as the "potential loss from this one factor"
// measure checked against MaxSingleFactorLoss.
func singleFactorLosses(decomp factor.Decomposition) map[string]float64 {
	losses := make(map[string]float64, len(decomp.FactorDecomp))
	for f, pct := range decomp.FactorDecomp {
		variance := pct * decomp.VarFactor
		if variance < 0 {
			variance = 0
		}
		losses[f] = math.Sqrt(variance)
	}
	return losses
}

func checkUpperBound(code string, measured, limit float64, msgf string) *Flag {
	sev, flagged := severityFor(measured, limit)
	if !flagged {
		return nil
	}
	return &Flag{Code: code, Severity: sev, Message: fmt.Sprintf(msgf, measured, limit), Limit: limit, Measured: measured}
}

// Evaluate checks a portfolio's decomposition and per-leg weights against
// a RiskProfile, producing an ordered flag list, a pass/fail verdict (pass
// iff no flag reaches SeverityBreach), and a composite score. result
// carries FactorCategories alongside the decomposition so the
// industry-contribution check can attribute FactorDecomp entries (keyed
// by proxy ticker) back to the "industry" category rather than guessing
// from the ticker name.
func Evaluate(profile domain.RiskProfile, result factor.Result, legWeights map[string]float64, leverage float64) Evaluation {
	decomp := result.Decomposition
	var flags []Flag

	if f := checkUpperBound("volatility", decomp.VolPort, profile.MaxVolatility, "portfolio volatility %.4f exceeds limit %.4f"); f != nil {
		flags = append(flags, *f)
	}
	if f := checkUpperBound("leverage", leverage, profile.MaxLeverage, "notional leverage %.2fx exceeds limit %.2fx"); f != nil {
		flags = append(flags, *f)
	}
	if f := checkUpperBound("factor_contribution", decomp.FactorPct, profile.MaxFactorContribution, "factor contribution %.4f exceeds limit %.4f"); f != nil {
		flags = append(flags, *f)
	}
	if marketPct, ok := decomp.FactorDecomp["SPY"]; ok {
		if f := checkUpperBound("market_contribution", marketPct*decomp.FactorPct, profile.MaxMarketContribution, "market-factor contribution %.4f exceeds limit %.4f"); f != nil {
			flags = append(flags, *f)
		}
	}
	if f := checkUpperBound("industry_contribution", industryContribution(result), profile.MaxIndustryContribution, "industry-factor contribution %.4f exceeds limit %.4f"); f != nil {
		flags = append(flags, *f)
	}
	for factorName, loss := range singleFactorLosses(decomp) {
		if f := checkUpperBound("single_factor_loss:"+factorName, loss, profile.MaxSingleFactorLoss, "factor's annualized loss contribution %.4f exceeds limit %.4f"); f != nil {
			flags = append(flags, *f)
		}
	}

	for symbol, weight := range legWeights {
		abs := weight
		if abs < 0 {
			abs = -abs
		}
		if f := checkUpperBound("single_stock:"+symbol, abs, profile.MaxSingleStockWeight, "position %s weight %.4f exceeds limit %.4f"); f != nil {
			flags = append(flags, *f)
		}
	}

	for fac, lohi := range profile.FactorBetaCaps {
		beta, ok := decomp.BetaPort[fac]
		if !ok {
			continue
		}
		lo, hi := lohi[0], lohi[1]
		if beta < lo {
			flags = append(flags, Flag{Code: "factor_beta:" + fac, Severity: SeverityBreach, Message: fmt.Sprintf("%s beta %.4f below floor %.4f", fac, beta, lo), Limit: lo, Measured: beta})
		} else if beta > hi {
			flags = append(flags, Flag{Code: "factor_beta:" + fac, Severity: SeverityBreach, Message: fmt.Sprintf("%s beta %.4f above ceiling %.4f", fac, beta, hi), Limit: hi, Measured: beta})
		}
	}

	sort.Slice(flags, func(i, j int) bool { return flagLess(flags[i], flags[j]) })

	pass := true
	for _, f := range flags {
		if f.Severity == SeverityBreach {
			pass = false
			break
		}
	}

	return Evaluation{Pass: pass, Flags: flags, Score: CompositeScore(flags)}
}
