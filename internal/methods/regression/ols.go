package regression

import (
	"errors"
	"math"

	"github.com/mapforge/spatialkit/internal/analysis"
	"github.com/mapforge/spatialkit/internal/numeric"
)

// olsFit is a closed-form normal-equations fit. The design matrix
// carries the intercept as its first column.
type olsFit struct {
	coefficients []float64
	stdErrors    []float64
	residuals    []float64
	r2           float64
	adjR2        float64
	sigma2       float64
	n            int
	k            int
}

// fitOLS solves X'X b = X'y. A singular or near-singular cross-product
// matrix fails with a collinearity error instead of returning
// numerically unstable coefficients.
func fitOLS(x [][]float64, y []float64) (*olsFit, error) {
	return fitWLS(x, y, nil)
}

// fitWLS is the weighted variant used by GWR; nil weights mean
// ordinary least squares.
func fitWLS(x [][]float64, y []float64, weights []float64) (*olsFit, error) {
	n := len(x)
	if n == 0 || len(y) != n {
		return nil, analysis.ErrInvalidParameter("design matrix and response length mismatch")
	}
	k := len(x[0])
	if n <= k {
		return nil, analysis.ErrInvalidParameter(
			"need more observations (%d) than parameters (%d)", n, k)
	}

	wAt := func(i int) float64 {
		if weights == nil {
			return 1
		}
		return weights[i]
	}

	xtx := make([][]float64, k)
	xty := make([]float64, k)
	for a := 0; a < k; a++ {
		xtx[a] = make([]float64, k)
		for i := 0; i < n; i++ {
			w := wAt(i)
			xty[a] += w * x[i][a] * y[i]
			for b := 0; b < k; b++ {
				xtx[a][b] += w * x[i][a] * x[i][b]
			}
		}
	}

	inv, err := numeric.Invert(xtx)
	if err != nil {
		if errors.Is(err, numeric.ErrSingular) {
			return nil, analysis.ErrCollinearity("design matrix is singular or near-singular")
		}
		return nil, err
	}

	coef := make([]float64, k)
	for a := 0; a < k; a++ {
		for b := 0; b < k; b++ {
			coef[a] += inv[a][b] * xty[b]
		}
	}

	fit := &olsFit{coefficients: coef, n: n, k: k, residuals: make([]float64, n)}

	var wSum, yMeanW float64
	for i := 0; i < n; i++ {
		wSum += wAt(i)
		yMeanW += wAt(i) * y[i]
	}
	yMean := yMeanW / wSum

	var rss, tss float64
	for i := 0; i < n; i++ {
		var pred float64
		for a := 0; a < k; a++ {
			pred += coef[a] * x[i][a]
		}
		fit.residuals[i] = y[i] - pred
		w := wAt(i)
		rss += w * fit.residuals[i] * fit.residuals[i]
		tss += w * (y[i] - yMean) * (y[i] - yMean)
	}

	if tss > 0 {
		fit.r2 = 1 - rss/tss
		fit.adjR2 = 1 - (1-fit.r2)*float64(n-1)/float64(n-k)
	}
	fit.sigma2 = rss / float64(n-k)

	fit.stdErrors = make([]float64, k)
	for a := 0; a < k; a++ {
		fit.stdErrors[a] = math.Sqrt(fit.sigma2 * inv[a][a])
	}
	return fit, nil
}
