// Package optimize implements spec.md §4.8: constrained mean-variance
// optimization and what-if re-evaluation. Grounded directly on the
// teacher's internal/modules/optimization/mv_optimizer.go, which already
// solves mean-variance problems in-process with gonum/optimize rather
// than proxying to the Python pypfopt microservice the rest of that
// package talks to — this module keeps that exact shape (penalty-method
// objective/gradient pair handed to optimize.Minimize, BFGS with a
// NelderMead fallback, bounds enforced by clamp-then-renormalize) and
// generalizes the constraint set from the teacher's sector buckets to
// spec.md's factor-beta caps and leverage cap.
package optimize

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/henrysouchien/portfolio-risk-engine/internal/apperr"
)

// Objective selects the QP's objective function (spec.md §4.8).
type Objective string

const (
	ObjectiveMinVariance Objective = "min_variance"
	ObjectiveMaxReturn   Objective = "max_return"
)

// Constraints is the box/linear constraint set spec.md §4.8 names:
// Σw=1 is always enforced; MaxSingleStock bounds each w_i; FactorBetaCaps
// box-constrains Bᵀw per factor; MaxLeverage bounds Σ|w_i|.
type Constraints struct {
	MaxSingleStock float64
	FactorLoadings map[string][]float64  // factor -> per-asset beta vector, length == n
	FactorBetaCaps map[string][2]float64 // factor -> [min, max]
	MaxLeverage    float64
}

// Problem is one QP instance.
type Problem struct {
	Symbols         []string
	ExpectedReturns []float64 // annualized, aligned to Symbols
	Cov             *mat.SymDense
	Objective       Objective
	Lambda          float64 // risk-aversion penalty for ObjectiveMaxReturn
	Constraints     Constraints
}

// Solution is a converged, constraint-satisfying weight vector.
type Solution struct {
	Symbols    []string
	Weights    []float64
	Iterations int
}

const (
	defaultTolerance = 1e-6
	penaltyWeight    = 1000.0
)

var successStatuses = map[optimize.Status]bool{
	optimize.Success:             true,
	optimize.GradientThreshold:   true,
	optimize.FunctionConvergence: true,
}

// Solve runs the penalty-method QP with one automatic retry at a relaxed
// feasibility tolerance (2x) before reporting INFEASIBLE, per spec.md
// §4.8's required distinction between an unsatisfiable constraint set and
// a solver numerical failure.
func Solve(problem Problem, initial []float64) (*Solution, error) {
	sol, err := solveOnce(problem, initial, defaultTolerance)
	if err == nil {
		return sol, nil
	}
	if appErr, ok := apperr.As(err); ok && appErr.Kind == apperr.KindInfeasible {
		if retrySol, retryErr := solveOnce(problem, initial, defaultTolerance*2); retryErr == nil {
			return retrySol, nil
		}
	}
	return nil, err
}

func solveOnce(problem Problem, initial []float64, feasibilityTol float64) (*Solution, error) {
	n := len(problem.Symbols)
	if n == 0 {
		return nil, apperr.Validation("optimize: empty universe")
	}

	lo, hi := boxBounds(problem.Constraints.MaxSingleStock, n)
	x0 := make([]float64, n)
	if len(initial) == n {
		copy(x0, initial)
	} else {
		for i := range x0 {
			x0[i] = 1.0 / float64(n)
		}
	}

	optProblem := optimize.Problem{
		Func: objectiveFunc(problem, lo, hi),
		Grad: gradientFunc(problem, lo, hi),
	}

	result, err := optimize.Minimize(optProblem, x0, &optimize.Settings{}, &optimize.BFGS{})
	if err != nil || !successStatuses[result.Status] {
		result, err = optimize.Minimize(optProblem, x0, &optimize.Settings{}, &optimize.NelderMead{})
		if err != nil {
			return nil, apperr.SolverError(err)
		}
	}
	if !successStatuses[result.Status] {
		return nil, apperr.SolverError(nil)
	}

	xFinal := projectToBounds(result.X, lo, hi)
	sum := sumOf(xFinal)
	if sum <= 0 || math.IsNaN(sum) {
		return nil, apperr.SolverError(nil)
	}
	weights := make([]float64, n)
	for i, xi := range xFinal {
		weights[i] = math.Max(0, xi/sum)
	}
	finalSum := sumOf(weights)
	if finalSum > 0 {
		for i := range weights {
			weights[i] /= finalSum
		}
	}
	// Renormalizing can lift a clamped weight back over its cap; move that
	// excess onto the weights still below their cap.
	var excess, free float64
	for i := range weights {
		if weights[i] > hi[i] {
			excess += weights[i] - hi[i]
			weights[i] = hi[i]
		} else if weights[i] < hi[i] {
			free += weights[i]
		}
	}
	for i := range weights {
		if excess > 0 && free > 0 && weights[i] < hi[i] {
			weights[i] += excess * weights[i] / free
		}
	}

	binding := checkConstraints(problem, weights, feasibilityTol)
	if len(binding) > 0 {
		return nil, apperr.Infeasible(binding)
	}

	return &Solution{Symbols: problem.Symbols, Weights: weights, Iterations: result.Stats.MajorIterations}, nil
}

// objectiveFunc builds the scalar objective handed to optimize.Minimize:
// the base mean-variance term plus a quadratic exterior penalty per
// violated constraint, mirroring mv_optimizer.go's sector-penalty style
// generalized to factor-beta caps and leverage.
func objectiveFunc(problem Problem, lo, hi []float64) func([]float64) float64 {
	return func(x []float64) float64 {
		xProj := projectToBounds(x, lo, hi)
		sigmaW := sigmaMul(problem.Cov, xProj)
		variance := dot(xProj, sigmaW)

		var obj float64
		switch problem.Objective {
		case ObjectiveMaxReturn:
			ret := dot(problem.ExpectedReturns, xProj)
			obj = -(ret - problem.Lambda*variance)
		default: // ObjectiveMinVariance
			obj = variance
		}

		sum := sumOf(xProj)
		obj += penaltyWeight * (sum - 1.0) * (sum - 1.0)
		obj += factorBetaPenalty(problem, xProj)
		obj += leveragePenalty(problem, xProj)
		return obj
	}
}

func gradientFunc(problem Problem, lo, hi []float64) func(grad, x []float64) {
	return func(grad, x []float64) {
		xProj := projectToBounds(x, lo, hi)
		n := len(xProj)
		sigmaW := sigmaMul(problem.Cov, xProj)

		switch problem.Objective {
		case ObjectiveMaxReturn:
			for i := 0; i < n; i++ {
				mu := 0.0
				if i < len(problem.ExpectedReturns) {
					mu = problem.ExpectedReturns[i]
				}
				grad[i] = -mu + 2*problem.Lambda*sigmaW[i]
			}
		default:
			for i := 0; i < n; i++ {
				grad[i] = 2 * sigmaW[i]
			}
		}

		sum := sumOf(xProj)
		for i := range grad {
			grad[i] += 2 * penaltyWeight * (sum - 1.0)
		}
		addFactorBetaPenaltyGradient(problem, xProj, grad)
		addLeveragePenaltyGradient(problem, xProj, grad)
	}
}

func factorBetaPenalty(problem Problem, x []float64) float64 {
	var penalty float64
	for factor, loadings := range problem.Constraints.FactorLoadings {
		caps, ok := problem.Constraints.FactorBetaCaps[factor]
		if !ok || len(loadings) != len(x) {
			continue
		}
		beta := dot(loadings, x)
		if beta < caps[0] {
			d := caps[0] - beta
			penalty += penaltyWeight * d * d
		} else if beta > caps[1] {
			d := beta - caps[1]
			penalty += penaltyWeight * d * d
		}
	}
	return penalty
}

func addFactorBetaPenaltyGradient(problem Problem, x []float64, grad []float64) {
	for factor, loadings := range problem.Constraints.FactorLoadings {
		caps, ok := problem.Constraints.FactorBetaCaps[factor]
		if !ok || len(loadings) != len(x) {
			continue
		}
		beta := dot(loadings, x)
		if beta < caps[0] {
			d := 2 * penaltyWeight * (caps[0] - beta)
			for i := range grad {
				grad[i] -= d * loadings[i]
			}
		} else if beta > caps[1] {
			d := 2 * penaltyWeight * (beta - caps[1])
			for i := range grad {
				grad[i] += d * loadings[i]
			}
		}
	}
}

func leveragePenalty(problem Problem, x []float64) float64 {
	if problem.Constraints.MaxLeverage <= 0 {
		return 0
	}
	leverage := sumAbs(x)
	if leverage > problem.Constraints.MaxLeverage {
		excess := leverage - problem.Constraints.MaxLeverage
		return penaltyWeight * excess * excess
	}
	return 0
}

func addLeveragePenaltyGradient(problem Problem, x []float64, grad []float64) {
	if problem.Constraints.MaxLeverage <= 0 {
		return
	}
	leverage := sumAbs(x)
	if leverage > problem.Constraints.MaxLeverage {
		d := 2 * penaltyWeight * (leverage - problem.Constraints.MaxLeverage)
		for i, xi := range x {
			grad[i] += d * sign(xi)
		}
	}
}

// boxBounds returns the per-asset [lo, hi] bounds: always 0 on the low
// side, MaxSingleStock on the high side (defaulting to 1.0 when unset).
func boxBounds(maxSingleStock float64, n int) (lo, hi []float64) {
	hiVal := maxSingleStock
	if hiVal <= 0 {
		hiVal = 1.0
	}
	lo = make([]float64, n)
	hi = make([]float64, n)
	for i := range hi {
		hi[i] = hiVal
	}
	return lo, hi
}

func projectToBounds(x, lo, hi []float64) []float64 {
	proj := make([]float64, len(x))
	for i := range x {
		proj[i] = math.Max(lo[i], math.Min(hi[i], x[i]))
	}
	return proj
}

// checkConstraints verifies the final solution against every hard
// constraint within tol, returning the names of every binding (violated)
// constraint — empty when feasible.
func checkConstraints(problem Problem, w []float64, tol float64) []string {
	var binding []string

	sum := sumOf(w)
	if math.Abs(sum-1.0) > tol {
		binding = append(binding, "sum_to_one")
	}
	for i, wi := range w {
		if wi < -tol || (problem.Constraints.MaxSingleStock > 0 && wi > problem.Constraints.MaxSingleStock+tol) {
			binding = append(binding, "single_stock_bound:"+problem.Symbols[i])
		}
	}
	for factor, loadings := range problem.Constraints.FactorLoadings {
		caps, ok := problem.Constraints.FactorBetaCaps[factor]
		if !ok || len(loadings) != len(w) {
			continue
		}
		beta := dot(loadings, w)
		if beta < caps[0]-tol || beta > caps[1]+tol {
			binding = append(binding, "factor_beta:"+factor)
		}
	}
	if problem.Constraints.MaxLeverage > 0 {
		if leverage := sumAbs(w); leverage > problem.Constraints.MaxLeverage+tol {
			binding = append(binding, "leverage")
		}
	}
	return binding
}

func sigmaMul(cov *mat.SymDense, x []float64) []float64 {
	n := len(x)
	xVec := mat.NewVecDense(n, x)
	var sw mat.VecDense
	sw.MulVec(cov, xVec)
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = sw.AtVec(i)
	}
	return out
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		if i >= len(b) {
			break
		}
		s += a[i] * b[i]
	}
	return s
}

func sumOf(x []float64) float64 {
	var s float64
	for _, v := range x {
		s += v
	}
	return s
}

func sumAbs(x []float64) float64 {
	var s float64
	for _, v := range x {
		s += math.Abs(v)
	}
	return s
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	if v > 0 {
		return 1
	}
	return 0
}
