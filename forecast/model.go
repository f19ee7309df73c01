package forecast

import (
	"fmt"
	"math"

	"github.com/aouyang1/go-scenesml/ml"
	"gonum.org/v1/gonum/stat/distuv"
)

// Model is a fitted harmonic regression. Sample index i of the training window maps to the
// feature vector [1, i/n, sin(2πk·i/L), cos(2πk·i/L), ...].
type Model struct {
	n           int
	terms       []fourierTerm
	weights     []float64
	residualStd float64
	rSquared    float64
}

func (m *Model) numFeatures() int {
	return 2 + 2*len(m.terms)
}

func (m *Model) appendFeatures(dst []float64, i int) []float64 {
	dst = append(dst, 1.0, float64(i)/float64(m.n))
	for _, term := range m.terms {
		rad := 2.0 * math.Pi * float64(term.order) * float64(i) / float64(term.period)
		dst = append(dst, math.Sin(rad), math.Cos(rad))
	}
	return dst
}

func (m *Model) predictAt(i int, buf []float64) float64 {
	buf = m.appendFeatures(buf[:0], i)
	var res float64
	for j, w := range m.weights {
		res += w * buf[j]
	}
	return res
}

// PredictInSample predicts over every point of the training window including masked ones
func (m *Model) PredictInSample(interval float64) (ml.Prediction, error) {
	if m == nil {
		return ml.Prediction{}, ErrNilModel
	}
	return m.predictRange(0, m.n, interval)
}

// Predict forecasts steps points immediately following the training window
func (m *Model) Predict(steps int, interval float64) (ml.Prediction, error) {
	if m == nil {
		return ml.Prediction{}, ErrNilModel
	}
	if steps < 0 {
		return ml.Prediction{}, fmt.Errorf("got %d, %w", steps, ErrNegativeSteps)
	}
	return m.predictRange(m.n, m.n+steps, interval)
}

func (m *Model) predictRange(from, to int, interval float64) (ml.Prediction, error) {
	if err := validInterval(interval); err != nil {
		return ml.Prediction{}, err
	}

	buf := make([]float64, 0, m.numFeatures())
	point := make([]float64, to-from)
	for i := range point {
		point[i] = m.predictAt(from+i, buf)
	}
	res := ml.Prediction{Point: point}
	if interval == 0 {
		return res, nil
	}

	width := m.residualStd * distuv.UnitNormal.Quantile(0.5+interval/2)
	res.Lower = make([]float64, len(point))
	res.Upper = make([]float64, len(point))
	for i, p := range point {
		res.Lower[i] = p - width
		res.Upper[i] = p + width
	}
	return res, nil
}

// ResidualStd is the standard deviation of the training residuals
func (m *Model) ResidualStd() float64 {
	if m == nil {
		return 0
	}
	return m.residualStd
}

// Score is the coefficient of determination over the training points
func (m *Model) Score() float64 {
	if m == nil {
		return 0
	}
	return m.rSquared
}

// Weights returns a copy of the fitted coefficients
func (m *Model) Weights() []float64 {
	if m == nil {
		return nil
	}
	w := make([]float64, len(m.weights))
	copy(w, m.weights)
	return w
}
