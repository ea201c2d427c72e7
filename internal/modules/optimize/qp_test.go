package optimize

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func diag(vals ...float64) *mat.SymDense {
	n := len(vals)
	d := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		d.SetSym(i, i, vals[i])
	}
	return d
}

func TestSolve_MinVarianceEqualDiagonalGivesEqualWeights(t *testing.T) {
	problem := Problem{
		Symbols:   []string{"A", "B", "C"},
		Cov:       diag(0.04, 0.04, 0.04),
		Objective: ObjectiveMinVariance,
		Constraints: Constraints{
			MaxSingleStock: 1.0,
		},
	}
	sol, err := Solve(problem, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, w := range sol.Weights {
		if math.Abs(w-1.0/3.0) > 1e-3 {
			t.Errorf("expected equal weights for equal-variance assets, got %v", sol.Weights)
		}
	}
}

func TestSolve_RespectsSingleStockCap(t *testing.T) {
	problem := Problem{
		Symbols:   []string{"A", "B"},
		Cov:       diag(0.01, 0.25), // A much lower variance, min-var would overweight it
		Objective: ObjectiveMinVariance,
		Constraints: Constraints{
			MaxSingleStock: 0.6,
		},
	}
	sol, err := Solve(problem, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, w := range sol.Weights {
		if w > 0.6+1e-3 {
			t.Errorf("weight %v exceeds single-stock cap 0.6", w)
		}
	}
	sum := sol.Weights[0] + sol.Weights[1]
	if math.Abs(sum-1.0) > 1e-3 {
		t.Errorf("weights do not sum to 1: %v", sol.Weights)
	}
}

func TestSolve_InfeasibleFactorBetaCapReportsInfeasible(t *testing.T) {
	problem := Problem{
		Symbols:   []string{"A", "B"},
		Cov:       diag(0.04, 0.04),
		Objective: ObjectiveMinVariance,
		Constraints: Constraints{
			MaxSingleStock: 1.0,
			FactorLoadings: map[string][]float64{"market": {2.0, 2.0}},
			// Every feasible weight vector (on the simplex, both assets beta=2)
			// produces portfolio beta 2.0, but the cap demands <= 0.1.
			FactorBetaCaps: map[string][2]float64{"market": {-0.1, 0.1}},
		},
	}
	_, err := Solve(problem, nil)
	if err == nil {
		t.Fatal("expected INFEASIBLE error, got nil")
	}
}

func TestSolve_MaxReturnFavorsHigherExpectedReturnAsset(t *testing.T) {
	problem := Problem{
		Symbols:         []string{"A", "B"},
		ExpectedReturns: []float64{0.10, 0.02},
		Cov:             diag(0.04, 0.04),
		Objective:       ObjectiveMaxReturn,
		Lambda:          0.5,
		Constraints:     Constraints{MaxSingleStock: 1.0},
	}
	sol, err := Solve(problem, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sol.Weights[0] <= sol.Weights[1] {
		t.Errorf("expected higher weight on higher-expected-return asset, got %v", sol.Weights)
	}
}
