package baseline

import (
	"net/url"
	"slices"
	"strconv"

	"github.com/aouyang1/go-scenesml/forecast"
	"github.com/aouyang1/go-scenesml/ml"
	"github.com/aouyang1/go-scenesml/query"
)

const (
	DefaultInterval               = 0.95
	DefaultTrainingLookbackFactor = 4.0
	DefaultModel                  = forecast.ModelHarmonic
)

// TrainingLookbackFactorOptions are the supported training lookback factors
var TrainingLookbackFactorOptions = []float64{1, 4, 10}

const (
	URLKeyInterval               = "interval"
	URLKeyDiscoverSeasonalities  = "discoverSeasonalities"
	URLKeyTrainingLookbackFactor = "trainingLookbackFactor"
)

// State of a baseliner
type State struct {
	// Interval is the prediction interval in (0, 1). Zero disables baselining.
	Interval float64 `json:"interval" yaml:"interval" validate:"gte=0,lt=1"`
	// DiscoverSeasonalities adds season lengths found in the data to the default ones
	DiscoverSeasonalities bool `json:"discover_seasonalities" yaml:"discover_seasonalities"`
	// TrainingLookbackFactor multiplies the displayed range to get the training range. Zero
	// uses DefaultTrainingLookbackFactor.
	TrainingLookbackFactor float64 `json:"training_lookback_factor" yaml:"training_lookback_factor" validate:"gte=0"`
	// Pinned freezes the last output
	Pinned bool `json:"pinned" yaml:"pinned"`
	// Model selects the forecasting backend. Empty uses DefaultModel.
	Model ml.ModelType `json:"model" yaml:"model"`
}

func (s State) Enabled() bool {
	return s.Interval > 0
}

// LookbackFactor is the effective training lookback factor
func (s State) LookbackFactor() float64 {
	if s.TrainingLookbackFactor <= 0 {
		return DefaultTrainingLookbackFactor
	}
	return s.TrainingLookbackFactor
}

// ModelType is the effective model type
func (s State) ModelType() ml.ModelType {
	if s.Model == "" {
		return DefaultModel
	}
	return s.Model
}

// Rerun decides what must run again when the state changes from prev to next. Nothing runs while
// the baseline is pinned and enabled. Enabling, disabling or changing the lookback needs new
// training data, other changes only reprocess the last results.
func Rerun(prev, next State) query.Rerun {
	if next.Pinned && next.Enabled() {
		return query.Rerun{}
	}
	if prev.Enabled() != next.Enabled() || prev.LookbackFactor() != next.LookbackFactor() {
		return query.Rerun{Query: true}
	}
	if prev.Interval != next.Interval ||
		prev.DiscoverSeasonalities != next.DiscoverSeasonalities ||
		prev.Pinned != next.Pinned ||
		prev.ModelType() != next.ModelType() {
		return query.Rerun{Processor: true}
	}
	return query.Rerun{}
}

// URLValues serializes the state for URL synchronization
func (s State) URLValues() url.Values {
	values := url.Values{}
	if s.Enabled() {
		values.Set(URLKeyInterval, strconv.FormatFloat(s.Interval, 'f', -1, 64))
	}
	if s.DiscoverSeasonalities {
		values.Set(URLKeyDiscoverSeasonalities, "true")
	}
	if s.TrainingLookbackFactor > 0 {
		values.Set(URLKeyTrainingLookbackFactor, strconv.FormatFloat(s.TrainingLookbackFactor, 'f', -1, 64))
	}
	return values
}

// FromURL applies URL values onto the state. Values are only applied when an interval or a
// lookback factor is present, in which case the baseline is enabled: an unparsable interval
// falls back to DefaultInterval and an unsupported lookback factor to
// DefaultTrainingLookbackFactor.
func (s State) FromURL(values url.Values) (State, bool) {
	if !values.Has(URLKeyInterval) && !values.Has(URLKeyTrainingLookbackFactor) {
		return s, false
	}

	if factor, err := strconv.ParseFloat(values.Get(URLKeyTrainingLookbackFactor), 64); err == nil && factor != 0 {
		if slices.Contains(TrainingLookbackFactorOptions, factor) {
			s.TrainingLookbackFactor = factor
		} else {
			s.TrainingLookbackFactor = DefaultTrainingLookbackFactor
		}
	}

	s.Interval = DefaultInterval
	if interval, err := strconv.ParseFloat(values.Get(URLKeyInterval), 64); err == nil && interval > 0 && interval < 1 {
		s.Interval = interval
	}

	s.DiscoverSeasonalities = values.Get(URLKeyDiscoverSeasonalities) == "true"
	return s, true
}
