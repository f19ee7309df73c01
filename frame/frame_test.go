package frame

import (
	"math"
	"testing"
	"time"

	"github.com/grafana/grafana-plugin-sdk-go/data"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ms(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

func fp(v float64) *float64 {
	return &v
}

func TestFindFields(t *testing.T) {
	testData := map[string]struct {
		frame   *data.Frame
		timeIdx int
		numIdx  int
	}{
		"nil frame": {
			timeIdx: -1,
			numIdx:  -1,
		},
		"string only": {
			frame:   data.NewFrame("a", data.NewField("s", nil, []string{"a"})),
			timeIdx: -1,
			numIdx:  -1,
		},
		"value before time": {
			frame: data.NewFrame("a",
				data.NewField("s", nil, []string{"a"}),
				data.NewField("v", nil, []float64{1}),
				data.NewField("t", nil, []time.Time{ms(1)}),
			),
			timeIdx: 2,
			numIdx:  1,
		},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			idx, ok := FindTimeField(td.frame)
			assert.Equal(t, td.timeIdx, idx)
			assert.Equal(t, td.timeIdx >= 0, ok)

			idx, ok = FindNumberField(td.frame)
			assert.Equal(t, td.numIdx, idx)
			assert.Equal(t, td.numIdx >= 0, ok)
		})
	}
}

func TestTimes(t *testing.T) {
	t1 := ms(1000)

	res, err := Times(data.NewField("t", nil, []*time.Time{&t1}))
	require.Nil(t, err)
	assert.Equal(t, []time.Time{t1}, res)

	_, err = Times(data.NewField("t", nil, []*time.Time{nil}))
	assert.ErrorIs(t, err, ErrNullTime)

	_, err = Times(data.NewField("v", nil, []float64{1}))
	assert.ErrorIs(t, err, ErrNotTimeField)

	_, err = Times(nil)
	assert.ErrorIs(t, err, ErrNilField)
}

func TestFloats(t *testing.T) {
	res, err := Floats(data.NewField("v", nil, []*float64{fp(1.5), nil}))
	require.Nil(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, 1.5, res[0])
	assert.True(t, math.IsNaN(res[1]))

	res, err = Floats(data.NewField("v", nil, []int64{3, 4}))
	require.Nil(t, err)
	assert.Equal(t, []float64{3, 4}, res)

	_, err = Floats(data.NewField("s", nil, []string{"a"}))
	assert.ErrorIs(t, err, ErrNotNumberField)
}

func TestNullableFloats(t *testing.T) {
	res := NullableFloats([]float64{1, math.NaN()})
	require.Len(t, res, 2)
	assert.Equal(t, 1.0, *res[0])
	assert.Nil(t, res[1])
}

func TestDisplayName(t *testing.T) {
	field := data.NewField("value", nil, []float64{1})
	assert.Equal(t, "value", DisplayName(data.NewFrame(""), field))
	assert.Equal(t, "cpu", DisplayName(data.NewFrame("cpu"), field))

	field.SetConfig(&data.FieldConfig{DisplayNameFromDS: "host a"})
	assert.Equal(t, "host a", DisplayName(data.NewFrame("cpu"), field))
}

func TestOuterJoin(t *testing.T) {
	a := data.NewFrame("a",
		data.NewField("time", nil, []time.Time{ms(1000), ms(2000), ms(3000)}),
		data.NewField("value", nil, []float64{1, 2, 3}),
	)
	b := data.NewFrame("b",
		data.NewField("time", nil, []time.Time{ms(4000), ms(2000)}),
		data.NewField("value", nil, []*float64{fp(20), fp(40)}),
	)
	noTime := data.NewFrame("c", data.NewField("value", nil, []float64{1}))

	joined, ok := OuterJoin([]*data.Frame{a, noTime, b})
	require.True(t, ok)
	require.Len(t, joined.Fields, 3)

	times, err := Times(joined.Fields[0])
	require.Nil(t, err)
	assert.Equal(t, []time.Time{ms(1000), ms(2000), ms(3000), ms(4000)}, times)

	first, err := Floats(joined.Fields[1])
	require.Nil(t, err)
	assert.Equal(t, []float64{1, 2, 3}, first[:3])
	assert.True(t, math.IsNaN(first[3]))

	second, err := Floats(joined.Fields[2])
	require.Nil(t, err)
	assert.True(t, math.IsNaN(second[0]))
	assert.Equal(t, 40.0, second[1])
	assert.True(t, math.IsNaN(second[2]))
	assert.Equal(t, 20.0, second[3])

	assert.Equal(t, "a", joined.Fields[1].Config.DisplayNameFromDS)
	assert.Equal(t, "b", joined.Fields[2].Config.DisplayNameFromDS)

	_, ok = OuterJoin([]*data.Frame{noTime})
	assert.False(t, ok)
	_, ok = OuterJoin(nil)
	assert.False(t, ok)
}
