// whatif.go implements spec.md §4.8's what-if scenario: apply a proposed
// change to the current canonical portfolio's weights, re-normalize,
// re-run the factor decomposition and risk-limit evaluation, and report
// before/after snapshots plus a verdict. Grounded on the teacher's
// internal/modules/evaluation/simulation.go re-evaluation pattern
// (recompute downstream metrics from a perturbed input rather than
// mutating live state) and internal/modules/optimization/returns.go's
// expected-return/weight conventions.
package optimize

import (
	"github.com/henrysouchien/portfolio-risk-engine/internal/domain"
	"github.com/henrysouchien/portfolio-risk-engine/internal/modules/factor"
	"github.com/henrysouchien/portfolio-risk-engine/internal/modules/risk"
)

// ChangeRequest is a what-if scenario input: either absolute target
// weights or additive deltas, keyed by instrument. Supplying both is
// allowed; deltas apply after targets.
type ChangeRequest struct {
	TargetWeights map[string]float64
	DeltaChanges  map[string]float64
}

// ApplyChanges applies req to current, then re-normalizes every non-cash
// weight so the portfolio still sums to 1 while leaving cash weights
// untouched — spec.md §4.8's "re-normalization over non-cash" rule.
// cashKeys identifies which symbol keys are cash-classified.
func ApplyChanges(current map[string]float64, cashKeys map[string]bool, req ChangeRequest) map[string]float64 {
	result := make(map[string]float64, len(current))
	for k, v := range current {
		result[k] = v
	}
	for k, v := range req.TargetWeights {
		result[k] = v
	}
	for k, d := range req.DeltaChanges {
		result[k] += d
	}

	var cashTotal, nonCashTotal float64
	for k, v := range result {
		if cashKeys[k] {
			cashTotal += v
		} else {
			nonCashTotal += v
		}
	}
	wantNonCash := 1 - cashTotal
	if nonCashTotal <= 0 || wantNonCash <= 0 {
		return result
	}
	scale := wantNonCash / nonCashTotal
	for k, v := range result {
		if !cashKeys[k] {
			result[k] = v * scale
		}
	}
	return result
}

// Snapshot is one side (before or after) of a what-if comparison.
type Snapshot struct {
	Weights       map[string]float64
	Decomposition factor.Decomposition
	RiskScore     float64
	Flags         []risk.Flag
}

// Scenario is the full what-if output: both snapshots, the L1-distance
// verdict, and the post-change risk flags that drive it.
type Scenario struct {
	Before  Snapshot
	After   Snapshot
	L1      float64
	Verdict string
}

// RunWhatIf re-weights inputs per req, re-runs the factor engine and risk
// evaluation on both the current and proposed weights, and derives a
// verdict from how far the proposal moves the portfolio.
func RunWhatIf(
	engine *factor.Engine,
	inputs []factor.AssetInput,
	canonicalClasses map[string]domain.AssetClass,
	panel *domain.FactorReturnPanel,
	profile domain.RiskProfile,
	leverage float64,
	req ChangeRequest,
) Scenario {
	currentWeights := make(map[string]float64, len(inputs))
	cashKeys := make(map[string]bool, len(inputs))
	for _, in := range inputs {
		key := in.Symbol.Key()
		currentWeights[key] += in.Weight
		if canonicalClasses[key] == domain.AssetCash {
			cashKeys[key] = true
		}
	}

	before := evaluateSnapshot(engine, reweight(inputs, currentWeights), canonicalClasses, panel, profile, leverage)

	proposedWeights := ApplyChanges(currentWeights, cashKeys, req)
	after := evaluateSnapshot(engine, reweight(inputs, proposedWeights), canonicalClasses, panel, profile, leverage)

	l1 := L1Distance(currentWeights, proposedWeights)
	hasViolations := !evaluationPasses(after)
	verdict := DeriveVerdict(l1, hasViolations)

	return Scenario{Before: before, After: after, L1: l1, Verdict: verdict}
}

// reweight returns a copy of inputs with each asset's Weight replaced by
// weights[key], preserving its Symbol and Returns (the return series does
// not change in a what-if — only the allocation does).
func reweight(inputs []factor.AssetInput, weights map[string]float64) []factor.AssetInput {
	out := make([]factor.AssetInput, len(inputs))
	for i, in := range inputs {
		out[i] = factor.AssetInput{Symbol: in.Symbol, Weight: weights[in.Symbol.Key()], Returns: in.Returns}
	}
	return out
}

func evaluateSnapshot(
	engine *factor.Engine,
	inputs []factor.AssetInput,
	canonicalClasses map[string]domain.AssetClass,
	panel *domain.FactorReturnPanel,
	profile domain.RiskProfile,
	leverage float64,
) Snapshot {
	result := engine.Analyze(inputs, canonicalClasses, panel)
	weights := make(map[string]float64, len(inputs))
	for _, in := range inputs {
		weights[in.Symbol.Key()] += in.Weight
	}
	evalResult := risk.Evaluate(profile, result, weights, leverage)
	return Snapshot{
		Weights:       weights,
		Decomposition: result.Decomposition,
		RiskScore:     risk.CompositeScore(evalResult.Flags),
		Flags:         evalResult.Flags,
	}
}

func evaluationPasses(s Snapshot) bool {
	for _, f := range s.Flags {
		if f.Severity == risk.SeverityBreach {
			return false
		}
	}
	return true
}
