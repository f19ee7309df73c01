package timedataset

import (
	"math"
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/floats"
)

// GenerateT creates n timestamps at the given interval ending just before the minute
// truncated nowFunc.
func GenerateT(n int, interval time.Duration, nowFunc func() time.Time) []time.Time {
	end := time.Unix(nowFunc().Unix()/60*60, 0).UTC()
	return GenerateGrid(n, interval, end.Add(-time.Duration(n)*interval))
}

// Series is a builder for simulated values
type Series []float64

func (s Series) Add(src Series) Series {
	floats.Add(s, src)
	return s
}

// SetConst overwrites values in [start, end) with val
func (s Series) SetConst(t []time.Time, val float64, start, end time.Time) Series {
	for i := range s {
		if !t[i].Before(start) && t[i].Before(end) {
			s[i] = val
		}
	}
	return s
}

// MaskWithTimeRange zeroes every value outside of [start, end]
func (s Series) MaskWithTimeRange(start, end time.Time, t []time.Time) Series {
	for i := range s {
		if t[i].Before(start) || t[i].After(end) {
			s[i] = 0.0
		}
	}
	return s
}

// WithGaps replaces every n-th value, starting at offset, with NaN
func (s Series) WithGaps(n, offset int) Series {
	if n <= 0 {
		return s
	}
	for i := offset; i < len(s); i += n {
		if i < 0 {
			continue
		}
		s[i] = math.NaN()
	}
	return s
}

func GenerateConstY(n int, val float64) Series {
	y := make(Series, n)
	for i := range y {
		y[i] = val
	}
	return y
}

func GenerateWaveY(t []time.Time, amp, periodSec, order, timeOffset float64) Series {
	y := make(Series, len(t))
	for i := range t {
		y[i] = amp * math.Sin(2.0*math.Pi*order/periodSec*(float64(t[i].Unix())+timeOffset))
	}
	return y
}

// GenerateNoise creates gaussian noise with a scale that can oscillate with the given
// period. A nil rng falls back to the global source.
func GenerateNoise(rng *rand.Rand, t []time.Time, noiseScale, amp, periodSec, order, timeOffset float64) Series {
	norm := rand.NormFloat64
	if rng != nil {
		norm = rng.NormFloat64
	}
	y := make(Series, len(t))
	for i := range t {
		scale := noiseScale + amp*math.Sin(2.0*math.Pi*order/periodSec*(float64(t[i].Unix())+timeOffset))
		y[i] = norm() * scale
	}
	return y
}

// GenerateChange adds a level shift of bias at chpt followed by a slope per minute
func GenerateChange(t []time.Time, chpt time.Time, bias, slope float64) Series {
	y := make(Series, len(t))
	for i := range t {
		if !t[i].Before(chpt) {
			y[i] = bias + slope*t[i].Sub(chpt).Minutes()
		}
	}
	return y
}
