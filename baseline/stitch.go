package baseline

import (
	"errors"
	"fmt"
	"time"

	"github.com/aouyang1/go-scenesml/ml"
	"github.com/aouyang1/go-scenesml/query"
	"github.com/aouyang1/go-scenesml/timedataset"
)

var (
	ErrInvalidFreq = errors.New("sampling frequency must be positive")
	ErrNilModel    = errors.New("nil model")
)

// Segment is a prediction over a contiguous time grid. Lower and Upper are either both nil or
// have the same length as Times and Point.
type Segment struct {
	Times []time.Time
	Point []float64
	Lower []float64
	Upper []float64
}

func (s Segment) Len() int {
	return len(s.Times)
}

func (s Segment) HasIntervals() bool {
	return s.Lower != nil && s.Upper != nil
}

// TrainingGrid is the uniform time grid the training data is fit on: trainingRange/freq + 1
// points starting at start.
func TrainingGrid(start time.Time, trainingRange, freq time.Duration) []time.Time {
	if freq <= 0 || trainingRange < 0 {
		return nil
	}
	return timedataset.GenerateGrid(int(trainingRange/freq)+1, freq, start)
}

// Stitch builds a gap free prediction over the display window from the in-sample predictions
// of the model and, when the window extends past the training grid, its forecast. Without a
// window the in-sample predictions over the whole training grid are returned.
//
// The in-sample part keeps every grid time within [From, To]. Forecast steps are only
// requested for grid times after the last training time, and when the window starts after the
// training grid the steps before From are forecast and dropped so the output starts on the
// grid. Bounds are omitted entirely when either part lacks them.
func Stitch(model ml.Model, start time.Time, trainingRange, freq time.Duration, window *query.TimeRange, interval float64) (Segment, error) {
	if model == nil {
		return Segment{}, ErrNilModel
	}
	if freq <= 0 {
		return Segment{}, fmt.Errorf("got %s, %w", freq, ErrInvalidFreq)
	}

	inSample, err := model.PredictInSample(interval)
	if err != nil {
		return Segment{}, fmt.Errorf("unable to predict in sample, %w", err)
	}

	grid := TrainingGrid(start, trainingRange, freq)
	n := min(len(grid), len(inSample.Point))
	seg := Segment{
		Times: grid[:n],
		Point: inSample.Point[:n],
	}
	if inSample.HasIntervals() && len(inSample.Lower) >= n && len(inSample.Upper) >= n {
		seg.Lower = inSample.Lower[:n]
		seg.Upper = inSample.Upper[:n]
	}
	if window == nil || n == 0 {
		return seg.copy(), nil
	}

	fromIdx, toIdx := windowBounds(seg.Times, window.From, window.To)
	seg = seg.slice(fromIdx, toIdx)

	last := grid[n-1]
	if !window.To.After(last) {
		return seg.copy(), nil
	}

	// future step k lands on last + k*freq
	firstStep := 1
	if window.From.After(last) {
		firstStep = int((window.From.Sub(last) + freq - 1) / freq)
	}
	lastStep := int(window.To.Sub(last) / freq)
	if lastStep < firstStep {
		return seg.copy(), nil
	}

	future, err := model.Predict(lastStep, interval)
	if err != nil {
		return Segment{}, fmt.Errorf("unable to predict %d steps out of sample, %w", lastStep, err)
	}
	gap := firstStep - 1
	steps := min(lastStep, len(future.Point)) - gap
	if steps <= 0 {
		return seg.copy(), nil
	}

	out := Segment{
		Times: append(seg.Times[:len(seg.Times):len(seg.Times)], timedataset.GenerateGrid(steps, freq, last.Add(time.Duration(firstStep)*freq))...),
		Point: append(seg.Point[:len(seg.Point):len(seg.Point)], future.Point[gap:gap+steps]...),
	}
	if seg.HasIntervals() && future.HasIntervals() && len(future.Lower) >= gap+steps && len(future.Upper) >= gap+steps {
		out.Lower = append(seg.Lower[:len(seg.Lower):len(seg.Lower)], future.Lower[gap:gap+steps]...)
		out.Upper = append(seg.Upper[:len(seg.Upper):len(seg.Upper)], future.Upper[gap:gap+steps]...)
	}
	return out.copy(), nil
}

// windowBounds returns the half open index range of the times within [from, to]
func windowBounds(times []time.Time, from, to time.Time) (int, int) {
	fromIdx := len(times)
	for i, t := range times {
		if !t.Before(from) {
			fromIdx = i
			break
		}
	}
	toIdx := fromIdx
	for toIdx < len(times) && !times[toIdx].After(to) {
		toIdx++
	}
	return fromIdx, toIdx
}

func (s Segment) slice(from, to int) Segment {
	res := Segment{
		Times: s.Times[from:to],
		Point: s.Point[from:to],
	}
	if s.HasIntervals() {
		res.Lower = s.Lower[from:to]
		res.Upper = s.Upper[from:to]
	}
	return res
}

func (s Segment) copy() Segment {
	res := Segment{
		Times: append([]time.Time{}, s.Times...),
		Point: append([]float64{}, s.Point...),
	}
	if s.HasIntervals() {
		res.Lower = append([]float64{}, s.Lower...)
		res.Upper = append([]float64{}, s.Upper...)
	}
	return res
}
