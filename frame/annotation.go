package frame

import (
	"time"

	"github.com/grafana/grafana-plugin-sdk-go/data"
)

// Annotation marks a point in time, or a region when End is set
type Annotation struct {
	Time time.Time
	End  *time.Time
	Text string
}

// IsRegion reports whether the annotation spans a time range
func (a Annotation) IsRegion() bool {
	return a.End != nil
}

// NewAnnotations builds an annotation frame. The timeEnd and isRegion fields are only added
// when at least one annotation is a region.
func NewAnnotations(name string, annotations []Annotation) *data.Frame {
	times := make([]time.Time, len(annotations))
	texts := make([]string, len(annotations))
	var hasRegion bool
	for i, a := range annotations {
		times[i] = a.Time
		texts[i] = a.Text
		hasRegion = hasRegion || a.IsRegion()
	}

	f := data.NewFrame(name, data.NewField("time", nil, times))
	if hasRegion {
		ends := make([]*time.Time, len(annotations))
		regions := make([]bool, len(annotations))
		for i, a := range annotations {
			if a.End != nil {
				end := *a.End
				ends[i] = &end
			}
			regions[i] = a.IsRegion()
		}
		f.Fields = append(f.Fields, data.NewField("timeEnd", nil, ends))
		f.Fields = append(f.Fields, data.NewField("text", nil, texts))
		f.Fields = append(f.Fields, data.NewField("isRegion", nil, regions))
	} else {
		f.Fields = append(f.Fields, data.NewField("text", nil, texts))
	}
	f.Meta = &data.FrameMeta{DataTopic: data.DataTopicAnnotations}
	return f
}

// IsAnnotations reports whether the frame carries annotations rather than series
func IsAnnotations(f *data.Frame) bool {
	return f != nil && f.Meta != nil && f.Meta.DataTopic == data.DataTopicAnnotations
}
