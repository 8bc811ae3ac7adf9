package services

import (
	"math"

	"github.com/montanaflynn/stats"
	"github.com/sirupsen/logrus"

	"github.com/volpulse/volpulse/internal/config"
	"github.com/volpulse/volpulse/internal/models"
)

// FeatureRow is one observation of the VRP regression inputs, recorded once
// per evaluation cycle.
type FeatureRow struct {
	VRP        float64
	Skew       float64
	TermSpread float64
	Dvol       float64
}

// MispricingEstimator fits an ordinary least squares model of VRP on the
// one-step lagged skew, term spread and DVOL, and flags the current residual
// when it deviates beyond the configured sigma threshold.
type MispricingEstimator struct {
	config config.RegressionConfig
	logger *logrus.Logger
}

// NewMispricingEstimator creates an estimator bound to the configured
// lookback and threshold.
func NewMispricingEstimator(cfg *config.Config, logger *logrus.Logger) *MispricingEstimator {
	return &MispricingEstimator{
		config: cfg.Regression,
		logger: logger,
	}
}

// Fit runs the regression over the trailing lookback window of rows, oldest
// first. It fails with ErrModel when fewer lagged samples are available than
// regressors plus one, or when the design matrix is rank deficient.
func (e *MispricingEstimator) Fit(rows []FeatureRow) (models.RegressionFit, error) {
	if len(rows) > e.config.Lookback+1 {
		rows = rows[len(rows)-e.config.Lookback-1:]
	}

	// Lag by one step: row i's VRP is explained by row i-1's features.
	n := len(rows) - 1
	const regressors = 4 // intercept + skew + term + dvol
	if n < e.config.MinSamples || n < regressors+1 {
		return models.RegressionFit{}, modelErrorf("%d lagged samples, need at least %d",
			n, maxInt(e.config.MinSamples, regressors+1))
	}

	y := make([]float64, n)
	x := make([][]float64, n)
	for i := 0; i < n; i++ {
		y[i] = rows[i+1].VRP
		x[i] = []float64{1.0, rows[i].Skew, rows[i].TermSpread, rows[i].Dvol}
	}

	beta, err := solveNormalEquations(x, y, regressors)
	if err != nil {
		return models.RegressionFit{}, err
	}

	residuals := make([]float64, n)
	for i := 0; i < n; i++ {
		predicted := dot(x[i], beta)
		residuals[i] = y[i] - predicted
	}

	residStd, err := stats.StandardDeviationSample(residuals)
	if err != nil {
		return models.RegressionFit{}, modelErrorf("residual stddev: %v", err)
	}

	lastResid := residuals[n-1]
	z := 0.0
	if residStd > 1e-12 {
		z = lastResid / residStd
	}

	fit := models.RegressionFit{
		Coefficients: beta,
		ExpectedVRP:  y[n-1] - lastResid,
		Residual:     lastResid,
		ResidualZ:    z,
		Mispricing:   math.Abs(z) >= e.config.SigmaThreshold,
		SampleSize:   n,
	}

	e.logger.WithFields(logrus.Fields{
		"samples":    n,
		"residual_z": z,
		"mispricing": fit.Mispricing,
	}).Debug("VRP regression fitted")

	return fit, nil
}

// solveNormalEquations computes beta = (X'X)^-1 X'y by Gaussian elimination
// with partial pivoting. A vanishing pivot means the design matrix is rank
// deficient.
func solveNormalEquations(x [][]float64, y []float64, k int) ([]float64, error) {
	// Build the augmented system [X'X | X'y].
	a := make([][]float64, k)
	for i := 0; i < k; i++ {
		a[i] = make([]float64, k+1)
	}
	for _, row := range x {
		for i := 0; i < k; i++ {
			for j := 0; j < k; j++ {
				a[i][j] += row[i] * row[j]
			}
		}
	}
	for idx, row := range x {
		for i := 0; i < k; i++ {
			a[i][k] += row[i] * y[idx]
		}
	}

	for col := 0; col < k; col++ {
		pivot := col
		for r := col + 1; r < k; r++ {
			if math.Abs(a[r][col]) > math.Abs(a[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(a[pivot][col]) < 1e-12 {
			return nil, modelErrorf("design matrix is rank deficient at column %d", col)
		}
		a[col], a[pivot] = a[pivot], a[col]

		for r := 0; r < k; r++ {
			if r == col {
				continue
			}
			factor := a[r][col] / a[col][col]
			for c := col; c <= k; c++ {
				a[r][c] -= factor * a[col][c]
			}
		}
	}

	beta := make([]float64, k)
	for i := 0; i < k; i++ {
		beta[i] = a[i][k] / a[i][i]
	}
	return beta, nil
}

func dot(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
