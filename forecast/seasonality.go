package forecast

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	DefaultMinLag      = 2
	DefaultMaxLagRatio = 1.0 / 3.0
	DefaultThreshold   = 0.3
	DefaultMaxSeasons  = 3
)

// AutocorrelationDetector discovers season lengths from the peaks of the sample
// autocorrelation function. It implements ml.SeasonalityDetector.
type AutocorrelationDetector struct {
	// MinLag is the smallest lag considered
	MinLag int `json:"min_lag" yaml:"min_lag"`
	// MaxLagRatio bounds the largest lag as a fraction of the series length
	MaxLagRatio float64 `json:"max_lag_ratio" yaml:"max_lag_ratio"`
	// Threshold is the minimum autocorrelation of a peak
	Threshold float64 `json:"threshold" yaml:"threshold"`
	// MaxSeasons caps the number of returned lengths, keeping the strongest peaks
	MaxSeasons int `json:"max_seasons" yaml:"max_seasons"`
}

func NewAutocorrelationDetector() *AutocorrelationDetector {
	return &AutocorrelationDetector{
		MinLag:      DefaultMinLag,
		MaxLagRatio: DefaultMaxLagRatio,
		Threshold:   DefaultThreshold,
		MaxSeasons:  DefaultMaxSeasons,
	}
}

// Seasonalities returns the detected season lengths in ascending order. Missing values are
// replaced by the mean of the observed values.
func (d *AutocorrelationDetector) Seasonalities(y []float64) ([]int, error) {
	if d == nil {
		d = NewAutocorrelationDetector()
	}
	acf := Autocorrelation(y, int(float64(len(y))*d.MaxLagRatio))
	if len(acf) == 0 {
		return nil, nil
	}

	type peak struct {
		lag  int
		corr float64
	}
	var peaks []peak
	for lag := max(d.MinLag, 1); lag < len(acf)-1; lag++ {
		if acf[lag] > d.Threshold && acf[lag] > acf[lag-1] && acf[lag] >= acf[lag+1] {
			peaks = append(peaks, peak{lag: lag, corr: acf[lag]})
		}
	}
	sort.SliceStable(peaks, func(i, j int) bool {
		return peaks[i].corr > peaks[j].corr
	})
	if d.MaxSeasons > 0 && len(peaks) > d.MaxSeasons {
		peaks = peaks[:d.MaxSeasons]
	}

	lengths := make([]int, len(peaks))
	for i, p := range peaks {
		lengths[i] = p.lag
	}
	sort.Ints(lengths)
	return lengths, nil
}

// Autocorrelation computes the sample autocorrelation for lags 0 through maxLag. A constant or
// empty series has no autocorrelation and returns nil.
func Autocorrelation(y []float64, maxLag int) []float64 {
	observed := make([]float64, 0, len(y))
	for _, v := range y {
		if !math.IsNaN(v) {
			observed = append(observed, v)
		}
	}
	if len(observed) == 0 {
		return nil
	}
	mean := stat.Mean(observed, nil)

	centered := make([]float64, len(y))
	for i, v := range y {
		if math.IsNaN(v) {
			continue
		}
		centered[i] = v - mean
	}
	denom := floats.Dot(centered, centered)
	if denom == 0 {
		return nil
	}

	maxLag = min(maxLag, len(y)-1)
	if maxLag < 0 {
		return nil
	}
	acf := make([]float64, maxLag+1)
	for lag := range acf {
		acf[lag] = floats.Dot(centered[:len(y)-lag], centered[lag:]) / denom
	}
	return acf
}
