package optimize

import "sort"

// Rebalance-magnitude thresholds on L1 distance between current and
// proposed weights (spec.md §4.8's verdict derivation). An L1 distance of
// 1.0 would mean the entire portfolio turned over; these anchors were
// picked so a single-position trim/add lands "minor" and a full
// liquidation-and-reallocation lands "major" (DESIGN.md open question).
const (
	verdictEpsilon         = 1e-9
	thresholdMinorRebal    = 0.05
	thresholdModerateRebal = 0.15
	thresholdMajorRebal    = 0.35
)

// L1Distance sums |a_k - b_k| over the union of keys in a and b.
func L1Distance(a, b map[string]float64) float64 {
	keys := map[string]bool{}
	for k := range a {
		keys[k] = true
	}
	for k := range b {
		keys[k] = true
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted) // deterministic iteration, no effect on the sum but keeps callers' diffs reproducible

	var total float64
	for _, k := range sorted {
		d := a[k] - b[k]
		if d < 0 {
			d = -d
		}
		total += d
	}
	return total
}

// DeriveVerdict classifies a proposed change by its L1 distance from the
// current portfolio, with any post-change risk-limit breach forcing
// has_violations regardless of how small the rebalance is.
func DeriveVerdict(l1 float64, hasViolations bool) string {
	if hasViolations {
		return "has_violations"
	}
	switch {
	case l1 < verdictEpsilon:
		return "no_changes"
	case l1 < thresholdMinorRebal:
		return "minor_rebalance"
	case l1 < thresholdModerateRebal:
		return "moderate_rebalance"
	default:
		return "major_rebalance"
	}
}
