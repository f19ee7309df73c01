// Package ml defines the contracts of the numerical collaborators used by the overlays:
// forecasting, seasonality discovery, outlier detection, clustering and changepoint detection.
// Implementations live outside of the overlay packages and are treated as black boxes.
package ml

import (
	"errors"
	"time"

	"gonum.org/v1/gonum/mat"
)

var (
	ErrUnknownModelType = errors.New("unknown model type")
	ErrNoBackend        = errors.New("no backend registered")
)

// Prediction holds point estimates and, if intervals were computed, the lower and upper
// prediction interval bounds. All populated slices have the same length.
type Prediction struct {
	Point []float64 `json:"point"`
	Lower []float64 `json:"lower,omitempty"`
	Upper []float64 `json:"upper,omitempty"`
}

// HasIntervals reports whether both bounds are present
func (p Prediction) HasIntervals() bool {
	return p.Lower != nil && p.Upper != nil
}

// Model is a fitted forecasting model bound to one training window
type Model interface {
	// PredictInSample predicts over the training window
	PredictInSample(interval float64) (Prediction, error)
	// Predict forecasts steps samples past the end of the training window
	Predict(steps int, interval float64) (Prediction, error)
}

// Forecaster fits a model given uniformly sampled training data. NaN values are missing
// observations. An interval of 0 disables interval estimation.
type Forecaster interface {
	Fit(t []time.Time, y []float64, seasonLengths []int, interval float64) (Model, error)
}

// ForecasterFunc adapts a function into a Forecaster
type ForecasterFunc func(t []time.Time, y []float64, seasonLengths []int, interval float64) (Model, error)

func (f ForecasterFunc) Fit(t []time.Time, y []float64, seasonLengths []int, interval float64) (Model, error) {
	return f(t, y, seasonLengths, interval)
}

// SeasonalityDetector discovers season lengths, in samples, present in a series
type SeasonalityDetector interface {
	Seasonalities(y []float64) ([]int, error)
}

// OutlierDetector prepares a set of equally sized series for outlier detection
type OutlierDetector interface {
	Preprocess(series [][]float64) (LoadedOutlierDetector, error)
}

// LoadedOutlierDetector runs detection over preprocessed data and can be retuned without
// preprocessing again.
type LoadedOutlierDetector interface {
	Detect() (OutlierOutput, error)
	UpdateDetector(opt OutlierOptions) error
}

// OutlierOptions configures an outlier detector
type OutlierOptions struct {
	// Sensitivity in (0, 1). Higher values flag more series.
	Sensitivity float64 `json:"sensitivity"`
}

// OutlierOutput is the result of an outlier detection run
type OutlierOutput struct {
	OutlyingSeries []int          `json:"outlyingSeries"`
	ClusterBand    Band           `json:"clusterBand"`
	SeriesResults  []SeriesResult `json:"seriesResults"`
}

// Band is the min and max of the main cluster at each timestamp
type Band struct {
	Min []float64 `json:"min"`
	Max []float64 `json:"max"`
}

// SeriesResult holds the outlying intervals for a single series
type SeriesResult struct {
	OutlierIntervals []OutlierInterval `json:"outlierIntervals"`
}

// OutlierInterval is a range of sample indices. A nil End means the interval is still open at
// the end of the data.
type OutlierInterval struct {
	Start int  `json:"start"`
	End   *int `json:"end,omitempty"`
}

// DistanceMeasure computes pairwise distances between series, e.g. dynamic time warping
type DistanceMeasure interface {
	DistanceMatrix(series [][]float64) (*mat.SymDense, error)
}

// Noise is the cluster label for series which do not belong to any cluster
const Noise = -1

// ClusterOptions configures a density based clusterer
type ClusterOptions struct {
	Epsilon        float64 `json:"epsilon"`
	MinClusterSize int     `json:"min_cluster_size"`
}

// Clusterer assigns a cluster label to each series of a distance matrix
type Clusterer interface {
	Cluster(dist mat.Symmetric, opt ClusterOptions) ([]int, error)
}

// ChangepointDetector returns the indices at which the series changes behaviour
type ChangepointDetector interface {
	Detect(y []float64) ([]int, error)
}
