package factor

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// AssetExposure pairs a fitted regression with the portfolio weight backing
// it, after same-symbol-different-account aggregation.
type AssetExposure struct {
	Symbol     string
	Weight     float64// fraction of portfolio notional, signed
	Regression *AssetRegression
}

// AggregateByInstrument sums weights for positions sharing the same
// instrument key across accounts (spec.md §4.5's tie-break rule: positions
// in the same symbol held in different accounts are aggregated into one
// weight before regression, never regressed twice). legWeights and
// regressions must share the same symbol-key universe.
func AggregateByInstrument(legWeights map[string]float64, regressions map[string]*AssetRegression) []AssetExposure {
	out := make([]AssetExposure, 0, len(legWeights))
	for symbol, weight := range legWeights {
		reg, ok := regressions[symbol]
		if !ok {
			continue // excluded by insufficient history
		}
		out = append(out, AssetExposure{Symbol: symbol, Weight: weight, Regression: reg})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// PortfolioExposures computes beta_port,k = sum_i w_i * beta_i,k for every
// factor present in any asset's regression. Factors absent from a given
// asset's regression (e.g. commodity/rate on equities) contribute zero for
// that asset, which is the first of the "two parallel code paths" spec.md
// §4.5 requires: assets without a commodity or rate proxy are simply
// skipped for that column rather than causing the whole decomposition to
// fail.
func PortfolioExposures(exposures []AssetExposure, factors []string) map[string]float64 {
	betaPort := make(map[string]float64, len(factors))
	for _, f := range factors {
		betaPort[f] = 0
	}
	for _, exp := range exposures {
		for j, f := range exp.Regression.Factors {
			betaPort[f] += exp.Weight * exp.Regression.Beta[j]
		}
	}
	return betaPort
}

// AnnualizedFactorVols computes sigma_k = stddev(f_k, monthly) * sqrt(12)
// for each factor column, skipping NaNs pairwise per column.
func AnnualizedFactorVols(factorNames []string, factorReturns [][]float64) map[string]float64 {
	vols := make(map[string]float64, len(factorNames))
	for i, name := range factorNames {
		var clean []float64
		for _, v := range factorReturns[i] {
			if !math.IsNaN(v) {
				clean = append(clean, v)
			}
		}
		if len(clean) < 2 {
			vols[name] = 0
			continue
		}
		vols[name] = math.Sqrt(stat.Variance(clean, nil) * 12)
	}
	return vols
}

// FactorCovariance builds the annualized factor covariance matrix from the
// panel's column order, using pairwise-complete observations per column
// pair (NaNs dropped for that pair only, not globally — spec.md §4.5).
func FactorCovariance(factorNames []string, factorReturns [][]float64) *mat.SymDense {
	k := len(factorNames)
	cov := mat.NewSymDense(k, nil)
	for i := 0; i < k; i++ {
		for j := i; j < k; j++ {
			a, b := pairwiseComplete(factorReturns[i], factorReturns[j])
			var c float64
			if len(a) >= 2 {
				c = stat.Covariance(a, b, nil) * 12
			}
			cov.SetSym(i, j, c)
		}
	}
	return cov
}

func pairwiseComplete(a, b []float64) ([]float64, []float64) {
	var outA, outB []float64
	for i := range a {
		if !math.IsNaN(a[i]) && !math.IsNaN(b[i]) {
			outA = append(outA, a[i])
			outB = append(outB, b[i])
		}
	}
	return outA, outB
}

// Decomposition is the variance-decomposition result for one portfolio
// scope (spec.md §4.5).
type Decomposition struct {
	VarFactor     float64
	VarIdio       float64
	VarPort       float64
	VolPort       float64
	FactorPct     float64
	IdioPct       float64
	FactorDecomp  map[string]float64 // factor -> fraction of var_factor
	BetaPort      map[string]float64
	RiskContribs  map[string]float64 // symbol -> Euler volatility contribution (sums to VolPort)
}

// Decompose runs the full spec.md §4.5 variance decomposition:
// var_factor = beta^T * Sigma_f * beta, var_idio = sum(w_i^2 * idio_var_i)
// assuming idiosyncratic independence across assets, var_port = their sum,
// and Euler risk contributions allocate var_port back to each asset such
// that sum_i RC_i = vol_port within numerical tolerance.
func Decompose(exposures []AssetExposure, factors []string, factorCov *mat.SymDense) Decomposition {
	betaPort := PortfolioExposures(exposures, factors)
	betaVec := mat.NewVecDense(len(factors), nil)
	for i, f := range factors {
		betaVec.SetVec(i, betaPort[f])
	}

	var tmp mat.VecDense
	tmp.MulVec(factorCov, betaVec)
	varFactor := mat.Dot(betaVec, &tmp)

	var varIdio float64
	for _, exp := range exposures {
		varIdio += exp.Weight * exp.Weight * exp.Regression.ResidualStdDev * exp.Regression.ResidualStdDev
	}

	varPort := varFactor + varIdio
	volPort := math.Sqrt(math.Max(varPort, 0))

	factorDecomp := make(map[string]float64, len(factors))
	if varFactor > 0 {
		for i, f := range factors {
			// Marginal contribution of factor f to var_factor:
			// beta_f * (Sigma_f * beta)_f, normalized by var_factor.
			factorDecomp[f] = betaVec.AtVec(i) * tmp.AtVec(i) / varFactor
		}
	}

	riskContribs := eulerRiskContributions(exposures, factors, factorCov, volPort, varPort)

	var factorPct, idioPct float64
	if varPort > 0 {
		factorPct = varFactor / varPort
		idioPct = varIdio / varPort
	}

	return Decomposition{
		VarFactor:    varFactor,
		VarIdio:      varIdio,
		VarPort:      varPort,
		VolPort:      volPort,
		FactorPct:    factorPct,
		IdioPct:      idioPct,
		FactorDecomp: factorDecomp,
		BetaPort:     betaPort,
		RiskContribs: riskContribs,
	}
}

// eulerRiskContributions allocates portfolio volatility to each asset via
// Euler's theorem for the homogeneous-degree-1 risk measure sigma_port:
// RC_i = w_i * dsigma_port/dw_i = w_i * Cov(r_i, r_port) / sigma_port.
// Cov(r_i, r_port) is decomposed into the asset's factor-driven covariance
// with the portfolio's factor exposure plus its own idiosyncratic variance
// share (cross-asset idiosyncratic covariance is assumed zero, matching
// the var_idio independence assumption above).
func eulerRiskContributions(exposures []AssetExposure, factors []string, factorCov *mat.SymDense, volPort float64, varPort float64) map[string]float64 {
	contribs := make(map[string]float64, len(exposures))
	if volPort == 0 {
		for _, exp := range exposures {
			contribs[exp.Symbol] = 0
		}
		return contribs
	}

	betaPort := PortfolioExposures(exposures, factors)
	betaPortVec := mat.NewVecDense(len(factors), nil)
	for i, f := range factors {
		betaPortVec.SetVec(i, betaPort[f])
	}
	var sigmaBetaPort mat.VecDense
	sigmaBetaPort.MulVec(factorCov, betaPortVec)

	for _, exp := range exposures {
		betaAsset := mat.NewVecDense(len(factors), nil)
		for j, f := range exp.Regression.Factors {
			idx := indexOf(factors, f)
			if idx >= 0 {
				betaAsset.SetVec(idx, exp.Regression.Beta[j])
			}
		}
		factorCovWithPort := mat.Dot(betaAsset, &sigmaBetaPort)
		idioCovWithPort := exp.Weight * exp.Regression.ResidualStdDev * exp.Regression.ResidualStdDev
		covWithPort := factorCovWithPort + idioCovWithPort
		contribs[exp.Symbol] = exp.Weight * covWithPort / volPort
	}
	return contribs
}

// AssetCovariance builds the annualized asset-by-asset covariance matrix
// implied by the fitted factor model: Sigma = B * Sigma_f * B^T + D, where
// B is the exposures x factors beta matrix (zero where an asset's own
// regression never named that factor) and D is the diagonal of annualized
// residual variances. This is the same factor-model assumption the
// variance decomposition above already makes (idiosyncratic independence
// across assets); internal/modules/optimize's QP consumes the result
// directly as its objective's Cov matrix. Order matches exposures, which
// AggregateByInstrument already returns sorted by symbol.
func AssetCovariance(exposures []AssetExposure, factors []string, factorCov *mat.SymDense) *mat.SymDense {
	n := len(exposures)
	beta := mat.NewDense(n, len(factors), nil)
	for i, exp := range exposures {
		for j, f := range exp.Regression.Factors {
			idx := indexOf(factors, f)
			if idx >= 0 {
				beta.Set(i, idx, exp.Regression.Beta[j])
			}
		}
	}

	var bSigma mat.Dense
	bSigma.Mul(beta, factorCov)
	var bSigmaBT mat.Dense
	bSigmaBT.Mul(&bSigma, beta.T())

	cov := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := bSigmaBT.At(i, j)
			if i == j {
				v += exposures[i].Regression.ResidualStdDev * exposures[i].Regression.ResidualStdDev
			}
			cov.SetSym(i, j, v)
		}
	}
	return cov
}

func indexOf(s []string, v string) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}
