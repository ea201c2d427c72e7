package factor

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/henrysouchien/portfolio-risk-engine/internal/apperr"
)

// MinObservations is spec.md §4.5's default minimum-history requirement for
// a per-asset regression; assets with fewer paired observations than this
// are excluded from factor decomposition rather than regressed on partial
// history.
const MinObservations = 24

// AssetRegression is the fitted single-asset factor model
// r_asset = alpha + sum_k beta_k * f_k + epsilon.
type AssetRegression struct {
	Symbol         string
	Factors        []string
	Beta           []float64
	Alpha          float64
	ResidualStdDev float64 // annualized
	RSquared       float64
	Observations   int
}

// FitAssetRegression runs an OLS regression of an asset's monthly return
// series against a set of factor return columns, using a gonum/mat QR
// least-squares solve. Grounded on the teacher's single-series
// statistics style (pkg/formulas/stats.go) generalized to a multi-factor
// design matrix, since the teacher never regresses against more than one
// explanatory series at once.
//
// Rows with a NaN in any column (pairwise missing-data handling per
// spec.md §4.5 — dropped per-asset, not globally) are excluded before the
// fit. If fewer than MinObservations rows remain, the asset is excluded
// and a validation error is returned.
func FitAssetRegression(symbol string, assetReturns []float64, factorNames []string, factorReturns [][]float64) (*AssetRegression, error) {
	n := len(assetReturns)
	k := len(factorNames)
	if k == 0 {
		return nil, apperr.Validation("factor: at least one factor column is required for %s", symbol)
	}
	for _, col := range factorReturns {
		if len(col) != n {
			return nil, apperr.Internal("factor-panel-misaligned", nil)
		}
	}

	var rows [][]float64 // [y, f1..fk]
	for t := 0; t < n; t++ {
		y := assetReturns[t]
		if math.IsNaN(y) {
			continue
		}
		row := make([]float64, k+1)
		row[0] = y
		complete := true
		for j := 0; j < k; j++ {
			v := factorReturns[j][t]
			if math.IsNaN(v) {
				complete = false
				break
			}
			row[j+1] = v
		}
		if !complete {
			continue
		}
		rows = append(rows, row)
	}

	if len(rows) < MinObservations {
		return nil, apperr.Validation("factor: %s has %d paired observations, need >= %d", symbol, len(rows), MinObservations)
	}

	obs := len(rows)
	// Design matrix X with an intercept column, response vector y.
	xData := make([]float64, obs*(k+1))
	yData := make([]float64, obs)
	for i, row := range rows {
		xData[i*(k+1)] = 1.0 // intercept
		for j := 0; j < k; j++ {
			xData[i*(k+1)+j+1] = row[j+1]
		}
		yData[i] = row[0]
	}
	x := mat.NewDense(obs, k+1, xData)
	y := mat.NewVecDense(obs, yData)

	var coef mat.VecDense
	var qr mat.QR
	qr.Factorize(x)
	if err := qr.SolveVecTo(&coef, false, y); err != nil {
		return nil, apperr.SolverError(err)
	}

	alpha := coef.AtVec(0)
	beta := make([]float64, k)
	for j := 0; j < k; j++ {
		beta[j] = coef.AtVec(j + 1)
	}

	// Residuals, R^2, and annualized residual (idiosyncratic) volatility.
	var fitted mat.VecDense
	fitted.MulVec(x, &coef)
	residuals := make([]float64, obs)
	for i := 0; i < obs; i++ {
		residuals[i] = yData[i] - fitted.AtVec(i)
	}
	residualVar := stat.Variance(residuals, nil)
	rSquared := stat.RSquaredFrom(fitted.RawVector().Data, yData, nil)

	return &AssetRegression{
		Symbol:         symbol,
		Factors:        factorNames,
		Beta:           beta,
		Alpha:          alpha,
		ResidualStdDev: math.Sqrt(residualVar * 12), // monthly -> annualized
		RSquared:       rSquared,
		Observations:   obs,
	}, nil
}
