package timedataset

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUnivariateDataset(t *testing.T) {
	testData := map[string]struct {
		t        []time.Time
		y        []float64
		expected *TimeDataset
		err      error
	}{
		"no training data": {
			err: ErrNoTrainingData,
		},
		"length mismatch": {
			y:   []float64{1},
			err: ErrDatasetLenMismatch,
		},
		"non increasing time": {
			t: []time.Time{
				time.Date(1970, 1, 2, 0, 0, 0, 0, time.UTC),
				time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC),
			},
			y:   []float64{1, 2},
			err: ErrNonMontonic,
		},
		"duplicate time": {
			t: []time.Time{
				time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC),
				time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC),
			},
			y:   []float64{1, 2},
			err: ErrNonMontonic,
		},
		"valid": {
			t: []time.Time{
				time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC),
				time.Date(1970, 1, 2, 0, 0, 0, 0, time.UTC),
			},
			y: []float64{1, 2},
			expected: &TimeDataset{
				T: []time.Time{
					time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC),
					time.Date(1970, 1, 2, 0, 0, 0, 0, time.UTC),
				},
				Y: []float64{1, 2},
			},
		},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			ds, err := NewUnivariateDataset(td.t, td.y)
			if td.err != nil {
				assert.ErrorIs(t, err, td.err)
				return
			}
			require.Nil(t, err)
			assert.Equal(t, td.expected, ds)
		})
	}
}

func TestCopy(t *testing.T) {
	tSeries := []time.Time{
		time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(1970, 1, 2, 0, 0, 0, 0, time.UTC),
	}

	ds, err := NewUnivariateDataset(tSeries, []float64{0, 1})
	require.Nil(t, err)

	nextDs := ds.Copy()
	require.Equal(t, ds, nextDs)

	ds.Y[0] = 10
	require.NotEqual(t, nextDs, ds)

	var nilDs *TimeDataset
	assert.Nil(t, nilDs.Copy())
}

func TestRangeAndFreq(t *testing.T) {
	start := time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
	ds, err := NewUnivariateDataset(GenerateGrid(5, time.Minute, start), GenerateConstY(5, 1))
	require.Nil(t, err)

	assert.Equal(t, 4*time.Minute, ds.Range())
	freq, err := ds.Freq()
	require.Nil(t, err)
	assert.Equal(t, time.Minute, freq)

	single, err := NewUnivariateDataset([]time.Time{start}, []float64{1})
	require.Nil(t, err)
	_, err = single.Freq()
	assert.ErrorIs(t, err, ErrCannotInferFreq)
}

func TestSlice(t *testing.T) {
	start := time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
	ds, err := NewUnivariateDataset(GenerateGrid(5, time.Hour, start), []float64{0, 1, 2, 3, 4})
	require.Nil(t, err)

	testData := map[string]struct {
		from, to time.Time
		expected []float64
	}{
		"open range":  {expected: []float64{0, 1, 2, 3, 4}},
		"inclusive":   {from: start.Add(time.Hour), to: start.Add(3 * time.Hour), expected: []float64{1, 2, 3}},
		"open from":   {to: start.Add(time.Hour), expected: []float64{0, 1}},
		"outside all": {from: start.Add(10 * time.Hour), expected: []float64{}},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			res := ds.Slice(td.from, td.to)
			assert.Equal(t, td.expected, res.Y)
			assert.Len(t, res.T, len(td.expected))
		})
	}
}

func TestDropNan(t *testing.T) {
	testData := map[string]struct {
		tdset    *TimeDataset
		expected *TimeDataset
	}{
		"nil input for nan drop": {tdset: nil, expected: nil},
		"no data to drop": {
			tdset: &TimeDataset{},
			expected: &TimeDataset{
				T: []time.Time{},
				Y: []float64{},
			},
		},
		"data with NaNs": {
			tdset: &TimeDataset{
				T: []time.Time{
					time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC),
					time.Date(1970, 1, 2, 0, 0, 0, 0, time.UTC),
					time.Date(1970, 1, 3, 0, 0, 0, 0, time.UTC),
					time.Date(1970, 1, 4, 0, 0, 0, 0, time.UTC),
				},
				Y: []float64{math.NaN(), 2, 3, math.NaN()},
			},
			expected: &TimeDataset{
				T: []time.Time{
					time.Date(1970, 1, 2, 0, 0, 0, 0, time.UTC),
					time.Date(1970, 1, 3, 0, 0, 0, 0, time.UTC),
				},
				Y: []float64{2, 3},
			},
		},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			res := td.tdset.DropNan()
			assert.Equal(t, td.expected, res)
		})
	}
}

func TestAlign(t *testing.T) {
	start := time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
	ds, err := NewUnivariateDataset(GenerateGrid(3, time.Minute, start), []float64{1, 2, 3})
	require.Nil(t, err)

	res := ds.Align(GenerateGrid(5, time.Minute, start.Add(time.Minute)))
	require.Len(t, res, 5)
	assert.Equal(t, []float64{2, 3}, res[:2])
	for _, v := range res[2:] {
		assert.True(t, math.IsNaN(v))
	}
}

func TestGenerateGrid(t *testing.T) {
	start := time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, []time.Time{}, GenerateGrid(0, time.Second, start))

	res := GenerateGrid(3, time.Second, start)
	assert.Equal(t, []time.Time{start, start.Add(time.Second), start.Add(2 * time.Second)}, res)
}
