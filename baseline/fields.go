package baseline

import (
	"github.com/aouyang1/go-scenesml/frame"
	"github.com/grafana/grafana-plugin-sdk-go/data"
)

const baselineColor = "blue"

// NewFields reshapes a segment into display fields: the time field, the point estimates and, if
// the segment has intervals, the lower and upper bounds shaded between each other.
func NewFields(name string, timeField *data.Field, seg Segment) []*data.Field {
	timeName := "time"
	var labels data.Labels
	if timeField != nil {
		timeName = timeField.Name
		labels = timeField.Labels
	}
	tf := data.NewField(timeName, labels, seg.Times)
	if timeField != nil && timeField.Config != nil {
		conf := *timeField.Config
		tf.SetConfig(&conf)
	}

	baselineName := name + " - baseline"
	fields := []*data.Field{
		tf,
		frame.WithConfig(
			data.NewField(baselineName, nil, frame.NullableFloats(seg.Point)),
			baselineName, baselineColor, frame.CustomConfig{},
		),
	}
	if !seg.HasIntervals() {
		return fields
	}

	lowerName, upperName := name+" - lower", name+" - upper"
	fields = append(fields,
		frame.WithConfig(
			data.NewField(lowerName, nil, frame.NullableFloats(seg.Lower)),
			lowerName, baselineColor, frame.CustomConfig{LineWidth: 1, HideFromLegend: true},
		),
		frame.WithConfig(
			data.NewField(upperName, nil, frame.NullableFloats(seg.Upper)),
			upperName, baselineColor, frame.CustomConfig{FillBelowTo: lowerName, LineWidth: 1, HideFromLegend: true},
		),
	)
	return fields
}
