package timedataset

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	ErrNoTrainingData     = errors.New("no training data")
	ErrNonMontonic        = errors.New("time feature is not monotonic")
	ErrDatasetLenMismatch = errors.New("time feature has a different length than observations")
	ErrCannotInferFreq    = errors.New("cannot infer frequency from time data")
)

// TimeDataset represents a time series storing a slice of time points and values.
// Both must be of the same length. A NaN value marks a missing observation.
type TimeDataset struct {
	T []time.Time
	Y []float64
}

// NewUnivariateDataset returns an instance of a TimeDataset given a time and value slice.
// The input is copied and time must be strictly increasing.
func NewUnivariateDataset(t []time.Time, y []float64) (*TimeDataset, error) {
	if len(y) == 0 {
		return nil, ErrNoTrainingData
	}
	if len(t) != len(y) {
		return nil, fmt.Errorf(
			"time feature has length of %d, but values has a length of %d, %w",
			len(t), len(y), ErrDatasetLenMismatch,
		)
	}

	for i := 1; i < len(t); i++ {
		if !t[i].After(t[i-1]) {
			return nil, fmt.Errorf("non-monotonic at %d, %w", i, ErrNonMontonic)
		}
	}

	tSeries := make([]time.Time, len(t))
	ySeries := make([]float64, len(t))
	copy(tSeries, t)
	copy(ySeries, y)
	return &TimeDataset{
		T: tSeries,
		Y: ySeries,
	}, nil
}

// Copy returns a deep copy of the dataset
func (td *TimeDataset) Copy() *TimeDataset {
	if td == nil {
		return nil
	}
	tSeries := make([]time.Time, len(td.T))
	ySeries := make([]float64, len(td.Y))
	copy(tSeries, td.T)
	copy(ySeries, td.Y)
	return &TimeDataset{
		T: tSeries,
		Y: ySeries,
	}
}

// Len returns the number of samples
func (td *TimeDataset) Len() int {
	if td == nil {
		return 0
	}
	return len(td.T)
}

// Range is the duration between the first and last sample.
func (td *TimeDataset) Range() time.Duration {
	if td == nil {
		return 0
	}
	ts := TimeSlice(td.T)
	return ts.EndTime().Sub(ts.StartTime())
}

// Freq is the sampling frequency inferred from the first two samples.
func (td *TimeDataset) Freq() (time.Duration, error) {
	if td == nil {
		return 0, ErrCannotInferFreq
	}
	return TimeSlice(td.T).Freq()
}

// Slice returns the samples within [from, to] inclusive. A zero from or to leaves that
// side of the range open.
func (td *TimeDataset) Slice(from, to time.Time) *TimeDataset {
	if td == nil {
		return nil
	}
	res := &TimeDataset{
		T: make([]time.Time, 0, len(td.T)),
		Y: make([]float64, 0, len(td.Y)),
	}
	for i, ct := range td.T {
		if !from.IsZero() && ct.Before(from) {
			continue
		}
		if !to.IsZero() && ct.After(to) {
			continue
		}
		res.T = append(res.T, ct)
		res.Y = append(res.Y, td.Y[i])
	}
	return res
}

// DropNan removes all samples where the value is NaN
func (td *TimeDataset) DropNan() *TimeDataset {
	if td == nil {
		return nil
	}
	res := &TimeDataset{
		T: make([]time.Time, 0, len(td.T)),
		Y: make([]float64, 0, len(td.Y)),
	}
	for i, y := range td.Y {
		if math.IsNaN(y) {
			continue
		}
		res.T = append(res.T, td.T[i])
		res.Y = append(res.Y, y)
	}
	return res
}

// Index maps each sample time in unix milliseconds to its value. Used to align
// observations against a regenerated time grid.
func (td *TimeDataset) Index() map[int64]float64 {
	if td == nil {
		return nil
	}
	idx := make(map[int64]float64, len(td.T))
	for i, ct := range td.T {
		idx[ct.UnixMilli()] = td.Y[i]
	}
	return idx
}

// Align returns the observed value for every input time, NaN where there is no sample.
func (td *TimeDataset) Align(t []time.Time) []float64 {
	idx := td.Index()
	res := make([]float64, len(t))
	for i, ct := range t {
		val, exists := idx[ct.UnixMilli()]
		if !exists {
			res[i] = math.NaN()
			continue
		}
		res[i] = val
	}
	return res
}

// GenerateGrid creates n evenly spaced timestamps starting at start and incrementing by freq.
func GenerateGrid(n int, freq time.Duration, start time.Time) []time.Time {
	if n <= 0 {
		return []time.Time{}
	}
	t := make([]time.Time, 0, n)
	for i := 0; i < n; i++ {
		t = append(t, start.Add(time.Duration(i)*freq))
	}
	return t
}
