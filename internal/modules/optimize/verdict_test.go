package optimize

import "testing"

func TestL1Distance_UnionOfKeys(t *testing.T) {
	a := map[string]float64{"AAPL": 0.5, "MSFT": 0.5}
	b := map[string]float64{"AAPL": 0.3, "GOOG": 0.2, "MSFT": 0.5}
	got := L1Distance(a, b)
	want := 0.2 + 0.2 // |0.5-0.3| + |0-0.2|, MSFT unchanged
	if got != want {
		t.Errorf("L1Distance = %v, want %v", got, want)
	}
}

func TestDeriveVerdict_Anchors(t *testing.T) {
	cases := []struct {
		l1   float64
		want string
	}{
		{0, "no_changes"},
		{0.01, "minor_rebalance"},
		{0.10, "moderate_rebalance"},
		{0.50, "major_rebalance"},
	}
	for _, c := range cases {
		if got := DeriveVerdict(c.l1, false); got != c.want {
			t.Errorf("DeriveVerdict(%v, false) = %v, want %v", c.l1, got, c.want)
		}
	}
}

func TestDeriveVerdict_ViolationsOverrideMagnitude(t *testing.T) {
	if got := DeriveVerdict(0, true); got != "has_violations" {
		t.Errorf("expected has_violations even with zero L1 distance, got %v", got)
	}
}
