// Package forecast is a harmonic regression forecaster. The model is an intercept, a linear
// trend and a Fourier series per season length, fit by least squares. Prediction intervals are
// derived from the spread of the in-sample residuals.
package forecast

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/aouyang1/go-scenesml/ml"
	"github.com/rickar/cal/v2"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ModelHarmonic is the model type the forecaster registers under
const ModelHarmonic ml.ModelType = "harmonic"

const DefaultOrders = 3

var (
	ErrDatasetLenMismatch       = errors.New("time and value slices have different lengths")
	ErrInsufficientTrainingData = errors.New("insufficient training data for the number of features")
	ErrSingularDesignMatrix     = errors.New("design matrix is singular")
	ErrInvalidInterval          = errors.New("interval must be in [0, 1)")
	ErrNegativeSteps            = errors.New("number of steps must not be negative")
	ErrNilModel                 = errors.New("model has not been fit")
)

// Options configures the harmonic forecaster
type Options struct {
	// Orders is the maximum number of Fourier pairs per season length. Each season length is
	// capped at (length-1)/2 pairs.
	Orders int `json:"orders" yaml:"orders"`

	// Holidays are masked out of training along with HolidayDurBefore and HolidayDurAfter
	// around each observed day.
	Holidays         []*cal.Holiday `json:"-" yaml:"-"`
	HolidayDurBefore time.Duration  `json:"holiday_dur_before" yaml:"holiday_dur_before"`
	HolidayDurAfter  time.Duration  `json:"holiday_dur_after" yaml:"holiday_dur_after"`

	// Events are arbitrary spans masked out of training
	Events []Event `json:"events" yaml:"events"`

	// Lambda is the L1 regularization of the seasonal and trend weights. 0 fits by least
	// squares.
	Lambda     float64 `json:"lambda" yaml:"lambda"`
	Iterations int     `json:"iterations" yaml:"iterations"`
	Tolerance  float64 `json:"tolerance" yaml:"tolerance"`
}

func NewDefaultOptions() *Options {
	return &Options{
		Orders: DefaultOrders,
	}
}

// Forecaster fits harmonic regression models. It implements ml.Forecaster.
type Forecaster struct {
	opt *Options
}

func New(opt *Options) *Forecaster {
	if opt == nil {
		opt = NewDefaultOptions()
	}
	if opt.Orders <= 0 {
		opt.Orders = DefaultOrders
	}
	if opt.Lambda < 0 {
		opt.Lambda = 0
	}
	return &Forecaster{opt: opt}
}

// Backend returns a backend for registration in an ml.Backends registry
func Backend(opt *Options) ml.Backend {
	return ml.Backend{Forecaster: New(opt)}
}

// Fit trains a model over uniformly sampled data. Missing values are NaN and are skipped along
// with any point covered by a holiday or event.
func (f *Forecaster) Fit(t []time.Time, y []float64, seasonLengths []int, interval float64) (ml.Model, error) {
	if len(t) != len(y) {
		return nil, fmt.Errorf("%d timestamps, %d values, %w", len(t), len(y), ErrDatasetLenMismatch)
	}
	if err := validInterval(interval); err != nil {
		return nil, err
	}

	m := &Model{
		n:     len(y),
		terms: fourierTerms(seasonLengths, f.opt.Orders),
	}

	mask := eventMask(t, f.events(t))
	var rows []int
	for i, v := range y {
		if math.IsNaN(v) || math.IsInf(v, 0) || mask[i] {
			continue
		}
		rows = append(rows, i)
	}

	cols := m.numFeatures()
	if len(rows) <= cols {
		return nil, fmt.Errorf("%d training points for %d features, %w", len(rows), cols, ErrInsufficientTrainingData)
	}

	xData := make([]float64, 0, len(rows)*cols)
	yData := make([]float64, 0, len(rows))
	for _, i := range rows {
		xData = m.appendFeatures(xData, i)
		yData = append(yData, y[i])
	}
	x := mat.NewDense(len(rows), cols, xData)
	yv := mat.NewVecDense(len(rows), yData)

	w := new(mat.VecDense)
	if f.opt.Lambda > 0 {
		l, err := newLasso(f.opt)
		if err != nil {
			return nil, err
		}
		w = mat.NewVecDense(cols, l.fit(x, yData))
	} else if err := w.SolveVec(x, yv); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) || math.IsInf(float64(cond), 1) {
			return nil, fmt.Errorf("%w, %w", ErrSingularDesignMatrix, err)
		}
		slog.Warn("ill-conditioned design matrix, fit may be inaccurate", "condition", float64(cond))
	}
	m.weights = mat.Col(nil, 0, w)

	var fitted mat.VecDense
	fitted.MulVec(x, w)
	residuals := make([]float64, len(rows))
	for i := range residuals {
		residuals[i] = yData[i] - fitted.AtVec(i)
	}
	m.residualStd = stat.StdDev(residuals, nil)
	m.rSquared = stat.RSquaredFrom(mat.Col(nil, 0, &fitted), yData, nil)
	return m, nil
}

func (f *Forecaster) events(t []time.Time) []Event {
	events := append([]Event{}, f.opt.Events...)
	if len(t) == 0 {
		return events
	}
	start, end := t[0], t[len(t)-1]
	for _, hol := range f.opt.Holidays {
		events = append(events, HolidayEvents(hol, start, end, f.opt.HolidayDurBefore, f.opt.HolidayDurAfter)...)
	}

	valid := events[:0]
	for _, evt := range events {
		if err := evt.Valid(); err != nil {
			slog.Warn("not masking invalid event", "name", evt.Name, "error", err.Error())
			continue
		}
		valid = append(valid, evt)
	}
	return valid
}

type fourierTerm struct {
	period int
	order  int
}

func fourierTerms(seasonLengths []int, orders int) []fourierTerm {
	var terms []fourierTerm
	for _, l := range seasonLengths {
		maxOrder := min(orders, (l-1)/2)
		for k := 1; k <= maxOrder; k++ {
			terms = append(terms, fourierTerm{period: l, order: k})
		}
	}
	return terms
}

func validInterval(interval float64) error {
	if math.IsNaN(interval) || interval < 0 || interval >= 1 {
		return fmt.Errorf("got %f, %w", interval, ErrInvalidInterval)
	}
	return nil
}
