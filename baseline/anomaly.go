package baseline

import (
	"math"
	"time"

	"github.com/grafana/grafana-plugin-sdk-go/data"
)

// Direction of an anomaly relative to the prediction interval
type Direction string

const (
	DirectionUpper Direction = "upper"
	DirectionLower Direction = "lower"
)

// Anomaly is an observed value outside of the prediction interval
type Anomaly struct {
	Direction Direction   `json:"direction"`
	Index     int         `json:"idx"`
	Time      time.Time   `json:"time"`
	Field     *data.Field `json:"-"`
}

// DetectAnomalies compares the observed values against the bounds at each index and calls fn for
// every value below lower or above upper. Indices where the observed value or either bound is
// missing are skipped, as are all indices when either bounds slice is empty.
func DetectAnomalies(original []float64, times []time.Time, lower, upper []float64, field *data.Field, fn func(Anomaly)) {
	if fn == nil || len(lower) == 0 || len(upper) == 0 {
		return
	}

	n := min(len(original), len(times), len(lower), len(upper))
	for idx := 0; idx < n; idx++ {
		value, lo, hi := original[idx], lower[idx], upper[idx]
		if math.IsNaN(value) || math.IsNaN(lo) || math.IsNaN(hi) {
			continue
		}
		switch {
		case value < lo:
			fn(Anomaly{Direction: DirectionLower, Index: idx, Time: times[idx], Field: field})
		case value > hi:
			fn(Anomaly{Direction: DirectionUpper, Index: idx, Time: times[idx], Field: field})
		}
	}
}
