package baseline

import (
	"errors"
	"time"

	"github.com/aouyang1/go-scenesml/ml"
)

var errFit = errors.New("fit failed")

// fakeModel predicts the sample index in and out of sample with bounds one unit away
type fakeModel struct {
	point, lower, upper []float64
	noFutureBounds      bool
	steps               []int
}

func newFakeModel(n int) *fakeModel {
	m := &fakeModel{
		point: make([]float64, n),
		lower: make([]float64, n),
		upper: make([]float64, n),
	}
	for i := 0; i < n; i++ {
		m.point[i] = float64(i)
		m.lower[i] = float64(i) - 1
		m.upper[i] = float64(i) + 1
	}
	return m
}

func (m *fakeModel) PredictInSample(interval float64) (ml.Prediction, error) {
	p := ml.Prediction{Point: m.point}
	if interval > 0 {
		p.Lower = m.lower
		p.Upper = m.upper
	}
	return p, nil
}

func (m *fakeModel) Predict(steps int, interval float64) (ml.Prediction, error) {
	m.steps = append(m.steps, steps)
	n := len(m.point)
	p := ml.Prediction{Point: make([]float64, steps)}
	for i := range p.Point {
		p.Point[i] = float64(n + i)
	}
	if interval > 0 && !m.noFutureBounds {
		p.Lower = make([]float64, steps)
		p.Upper = make([]float64, steps)
		for i, v := range p.Point {
			p.Lower[i] = v - 1
			p.Upper[i] = v + 1
		}
	}
	return p, nil
}

// constForecaster fits a model predicting a constant with fixed bounds over the training grid
func constForecaster(point, lower, upper float64) ml.Forecaster {
	return ml.ForecasterFunc(func(t []time.Time, y []float64, seasonLengths []int, interval float64) (ml.Model, error) {
		return &constModel{n: len(t), point: point, lower: lower, upper: upper}, nil
	})
}

type constModel struct {
	n                   int
	point, lower, upper float64
}

func (m *constModel) fill(n int, interval float64) ml.Prediction {
	p := ml.Prediction{Point: make([]float64, n)}
	for i := range p.Point {
		p.Point[i] = m.point
	}
	if interval > 0 {
		p.Lower = make([]float64, n)
		p.Upper = make([]float64, n)
		for i := range p.Lower {
			p.Lower[i] = m.lower
			p.Upper[i] = m.upper
		}
	}
	return p
}

func (m *constModel) PredictInSample(interval float64) (ml.Prediction, error) {
	return m.fill(m.n, interval), nil
}

func (m *constModel) Predict(steps int, interval float64) (ml.Prediction, error) {
	return m.fill(steps, interval), nil
}
