package forecast

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	DefaultIterations = 1000
	DefaultTolerance  = 1e-4
)

var ErrNegativeLambda = errors.New("negative lambda")

// lasso fits L1 regularized weights by coordinate descent. The first column is the intercept
// and is never penalized. A lambda of 0 converges to ordinary least squares.
type lasso struct {
	lambda     float64
	iterations int
	tolerance  float64
}

func newLasso(opt *Options) (lasso, error) {
	if opt.Lambda < 0 {
		return lasso{}, ErrNegativeLambda
	}
	l := lasso{lambda: opt.Lambda, iterations: opt.Iterations, tolerance: opt.Tolerance}
	if l.iterations <= 0 {
		l.iterations = DefaultIterations
	}
	if l.tolerance <= 0 {
		l.tolerance = DefaultTolerance
	}
	return l, nil
}

func (l lasso) fit(x mat.Matrix, y []float64) []float64 {
	m, n := x.Dims()

	cols := make([][]float64, n)
	colDot := make([]float64, n)
	gamma := make([]float64, n)
	for j := range n {
		cols[j] = mat.Col(nil, j, x)
		colDot[j] = floats.Dot(cols[j], cols[j])
		if j > 0 && colDot[j] > 0 {
			gamma[j] = l.lambda / colDot[j]
		}
	}

	beta := make([]float64, n)
	residual := make([]float64, m)
	copy(residual, y)

	for i := range l.iterations {
		maxCoef, maxUpdate := 0.0, 0.0
		for j := range n {
			curr := beta[j]
			if (i != 0 && curr == 0) || colDot[j] == 0 {
				continue
			}
			next := softThreshold(floats.Dot(cols[j], residual)/colDot[j]+curr, gamma[j])
			if delta := next - curr; delta != 0 {
				floats.AddScaled(residual, -delta, cols[j])
			}
			beta[j] = next

			maxCoef = math.Max(maxCoef, math.Abs(next))
			maxUpdate = math.Max(maxUpdate, math.Abs(next-curr))
		}
		if maxUpdate <= l.tolerance*maxCoef {
			break
		}
	}
	return beta
}

// softThreshold shrinks x towards 0 by gamma, returning 0 within the threshold
func softThreshold(x, gamma float64) float64 {
	res := math.Max(0, math.Abs(x)-gamma)
	if math.Signbit(x) {
		return -res
	}
	return res
}
