// Package frame holds helpers for reading and building data frames
package frame

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/grafana/grafana-plugin-sdk-go/data"
)

var (
	ErrNilField       = errors.New("nil field")
	ErrNotTimeField   = errors.New("field is not a time field")
	ErrNotNumberField = errors.New("field is not a numeric field")
	ErrNullTime       = errors.New("null time value")
)

// FindTimeField returns the index of the first time field
func FindTimeField(f *data.Frame) (int, bool) {
	return findField(f, func(ft data.FieldType) bool { return ft.Time() })
}

// FindNumberField returns the index of the first numeric field
func FindNumberField(f *data.Frame) (int, bool) {
	return findField(f, func(ft data.FieldType) bool { return ft.Numeric() })
}

func findField(f *data.Frame, match func(data.FieldType) bool) (int, bool) {
	if f == nil {
		return -1, false
	}
	for i, field := range f.Fields {
		if field != nil && match(field.Type()) {
			return i, true
		}
	}
	return -1, false
}

// NumberFields returns every numeric field of the frame in order
func NumberFields(f *data.Frame) []*data.Field {
	if f == nil {
		return nil
	}
	var fields []*data.Field
	for _, field := range f.Fields {
		if field != nil && field.Type().Numeric() {
			fields = append(fields, field)
		}
	}
	return fields
}

// Times reads a time or nullable time field. Null times are an error.
func Times(field *data.Field) ([]time.Time, error) {
	if field == nil {
		return nil, ErrNilField
	}
	if !field.Type().Time() {
		return nil, fmt.Errorf("%q, %w", field.Name, ErrNotTimeField)
	}

	t := make([]time.Time, field.Len())
	for i := range t {
		switch v := field.At(i).(type) {
		case time.Time:
			t[i] = v
		case *time.Time:
			if v == nil {
				return nil, fmt.Errorf("%q at index %d, %w", field.Name, i, ErrNullTime)
			}
			t[i] = *v
		}
	}
	return t, nil
}

// Floats reads a numeric field as float64 values. Null values are returned as NaN.
func Floats(field *data.Field) ([]float64, error) {
	if field == nil {
		return nil, ErrNilField
	}
	if !field.Type().Numeric() {
		return nil, fmt.Errorf("%q, %w", field.Name, ErrNotNumberField)
	}

	y := make([]float64, field.Len())
	for i := range y {
		v, err := field.NullableFloatAt(i)
		if err != nil {
			return nil, fmt.Errorf("%q at index %d, %w", field.Name, i, err)
		}
		if v == nil {
			y[i] = math.NaN()
			continue
		}
		y[i] = *v
	}
	return y, nil
}

// NullableFloats converts NaN values to nulls for a nullable float64 field
func NullableFloats(y []float64) []*float64 {
	res := make([]*float64, len(y))
	for i, v := range y {
		if math.IsNaN(v) {
			continue
		}
		val := v
		res[i] = &val
	}
	return res
}

// DisplayName is the name a series is shown under: the data source display name, then the
// frame name, then the field name.
func DisplayName(f *data.Frame, field *data.Field) string {
	if field != nil && field.Config != nil && field.Config.DisplayNameFromDS != "" {
		return field.Config.DisplayNameFromDS
	}
	if f != nil && f.Name != "" {
		return f.Name
	}
	if field != nil {
		return field.Name
	}
	return ""
}

// OuterJoin joins frames on their time field. The result has the union of all timestamps,
// ascending and deduplicated, followed by every numeric field of every frame as a nullable
// float64 field aligned to the joined time axis. Frames without a time field or any numeric
// field are skipped. The boolean is false when no frame could be joined.
func OuterJoin(frames []*data.Frame) (*data.Frame, bool) {
	type source struct {
		frame  *data.Frame
		times  []time.Time
		fields []*data.Field
	}

	var sources []source
	var axis []time.Time
	for _, f := range frames {
		tIdx, ok := FindTimeField(f)
		if !ok {
			continue
		}
		fields := NumberFields(f)
		if len(fields) == 0 {
			continue
		}
		t, err := Times(f.Fields[tIdx])
		if err != nil {
			continue
		}
		sources = append(sources, source{frame: f, times: t, fields: fields})
		axis = append(axis, t...)
	}
	if len(sources) == 0 {
		return nil, false
	}

	slices.SortFunc(axis, func(a, b time.Time) int { return a.Compare(b) })
	axis = slices.CompactFunc(axis, func(a, b time.Time) bool { return a.Equal(b) })
	pos := make(map[int64]int, len(axis))
	for i, t := range axis {
		pos[t.UnixNano()] = i
	}

	joined := data.NewFrame("", data.NewField(data.TimeSeriesTimeFieldName, nil, axis))
	for _, src := range sources {
		for _, field := range src.fields {
			y, err := Floats(field)
			if err != nil {
				continue
			}
			values := make([]*float64, len(axis))
			for i, v := range y {
				if i >= len(src.times) || math.IsNaN(v) {
					continue
				}
				val := v
				values[pos[src.times[i].UnixNano()]] = &val
			}

			out := data.NewField(field.Name, field.Labels.Copy(), values)
			conf := &data.FieldConfig{}
			if field.Config != nil {
				*conf = *field.Config
			}
			if conf.DisplayNameFromDS == "" && src.frame.Name != "" && len(src.fields) == 1 {
				conf.DisplayNameFromDS = src.frame.Name
			}
			out.SetConfig(conf)
			joined.Fields = append(joined.Fields, out)
		}
	}
	return joined, true
}
