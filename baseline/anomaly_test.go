package baseline

import (
	"math"
	"testing"
	"time"

	"github.com/grafana/grafana-plugin-sdk-go/data"
	"github.com/stretchr/testify/assert"
)

func msTimes(ms ...int64) []time.Time {
	t := make([]time.Time, len(ms))
	for i, v := range ms {
		t[i] = time.UnixMilli(v).UTC()
	}
	return t
}

func repeat(v float64, n int) []float64 {
	res := make([]float64, n)
	for i := range res {
		res[i] = v
	}
	return res
}

func TestDetectAnomalies(t *testing.T) {
	times := msTimes(1000, 2000, 3000, 4000, 5000)
	nan := math.NaN()

	testData := map[string]struct {
		original []float64
		lower    []float64
		upper    []float64
		expected []Anomaly
	}{
		"values around one": {
			original: []float64{1.0, 0.1, 2.5, 1.0, 1.0},
			lower:    repeat(0.5, 5),
			upper:    repeat(1.5, 5),
			expected: []Anomaly{
				{Direction: DirectionLower, Index: 1, Time: times[1]},
				{Direction: DirectionUpper, Index: 2, Time: times[2]},
			},
		},
		"values around fifty": {
			original: []float64{50, 10, 95, 55, 48},
			lower:    repeat(20, 5),
			upper:    repeat(80, 5),
			expected: []Anomaly{
				{Direction: DirectionLower, Index: 1, Time: times[1]},
				{Direction: DirectionUpper, Index: 2, Time: times[2]},
			},
		},
		"missing originals are never compared": {
			original: []float64{nan, nan, 100, nan, nan},
			lower:    repeat(20, 5),
			upper:    repeat(80, 5),
			expected: []Anomaly{
				{Direction: DirectionUpper, Index: 2, Time: times[2]},
			},
		},
		"missing bounds are skipped": {
			original: []float64{0, 0, 0, 0, 0},
			lower:    []float64{nan, 1, nan, 1, nan},
			upper:    repeat(2, 5),
			expected: []Anomaly{
				{Direction: DirectionLower, Index: 1, Time: times[1]},
				{Direction: DirectionLower, Index: 3, Time: times[3]},
			},
		},
		"empty lower": {
			original: []float64{0, 10, 0, 10, 0},
			lower:    []float64{},
			upper:    repeat(5, 5),
		},
		"empty upper": {
			original: []float64{0, 10, 0, 10, 0},
			lower:    repeat(5, 5),
		},
		"value on the bounds is not anomalous": {
			original: []float64{20, 80, 20, 80, 20},
			lower:    repeat(20, 5),
			upper:    repeat(80, 5),
		},
		"shorter original only compares overlapping indices": {
			original: []float64{0, 100},
			lower:    repeat(20, 5),
			upper:    repeat(80, 5),
			expected: []Anomaly{
				{Direction: DirectionLower, Index: 0, Time: times[0]},
				{Direction: DirectionUpper, Index: 1, Time: times[1]},
			},
		},
	}

	field := data.NewField("value", nil, []float64{})
	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			var res []Anomaly
			DetectAnomalies(td.original, times, td.lower, td.upper, field, func(a Anomaly) {
				res = append(res, a)
			})

			for i := range td.expected {
				td.expected[i].Field = field
			}
			assert.Equal(t, td.expected, res)
		})
	}
}

func TestDetectAnomaliesNilCallback(t *testing.T) {
	assert.NotPanics(t, func() {
		DetectAnomalies([]float64{0}, msTimes(1000), []float64{1}, []float64{2}, nil, nil)
	})
}
