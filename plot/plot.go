// Package plot renders panel data as echarts line charts
package plot

import (
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/aouyang1/go-scenesml/frame"
	"github.com/aouyang1/go-scenesml/query"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/grafana/grafana-plugin-sdk-go/data"
)

// TimeLayout formats the x axis categories
const TimeLayout = "2006-01-02 15:04:05"

// missing is the value echarts skips when drawing a line
const missing = "-"

type marker struct {
	t    time.Time
	text string
}

// LineTSeries generates a multi-line chart for series which share the time slice t. Every
// series in y must have the same length as t. NaN values are left as gaps.
func LineTSeries(title string, seriesName []string, t []time.Time, y [][]float64) *charts.Line {
	return lineTSeries(title, seriesName, t, y)
}

// lineTSeries applies firstOpts to the first series only
func lineTSeries(title string, seriesName []string, t []time.Time, y [][]float64, firstOpts ...charts.SeriesOpts) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: title}),
		charts.WithTooltipOpts(opts.Tooltip{Trigger: "axis"}),
	)

	x := make([]string, len(t))
	for i, ts := range t {
		x[i] = ts.UTC().Format(TimeLayout)
	}
	line.SetXAxis(x)

	for i, name := range seriesName {
		if i >= len(y) {
			break
		}
		lineData := make([]opts.LineData, len(t))
		for j := range lineData {
			lineData[j] = opts.LineData{Value: missing}
			if j < len(y[i]) && !math.IsNaN(y[i][j]) {
				lineData[j] = opts.LineData{Value: y[i][j]}
			}
		}
		if i == 0 {
			line.AddSeries(name, lineData, firstOpts...)
			continue
		}
		line.AddSeries(name, lineData)
	}
	return line
}

// LineFrame charts every numeric field of a frame against its time field. Annotations are drawn
// as vertical mark lines on the first series.
func LineFrame(f *data.Frame, annotations []*data.Frame) (*charts.Line, error) {
	tIdx, ok := frame.FindTimeField(f)
	if !ok {
		return nil, fmt.Errorf("frame %q, %w", f.Name, frame.ErrNotTimeField)
	}
	t, err := frame.Times(f.Fields[tIdx])
	if err != nil {
		return nil, err
	}

	var names []string
	var y [][]float64
	for _, field := range frame.NumberFields(f) {
		values, err := frame.Floats(field)
		if err != nil {
			return nil, err
		}
		names = append(names, frame.DisplayName(nil, field))
		y = append(y, values)
	}

	title := f.Name
	if title == "" {
		title = f.RefID
	}
	var markOpts []charts.SeriesOpts
	if markers := annotationMarkers(annotations); len(markers) > 0 {
		items := make([]opts.MarkLineNameXAxisItem, 0, len(markers))
		for _, m := range markers {
			items = append(items, opts.MarkLineNameXAxisItem{Name: m.text, XAxis: m.t.UTC().Format(TimeLayout)})
		}
		markOpts = append(markOpts, charts.WithMarkLineNameXAxisItemOpts(items...))
	}
	return lineTSeries(title, names, t, y, markOpts...), nil
}

func annotationMarkers(annotations []*data.Frame) []marker {
	var markers []marker
	for _, ann := range annotations {
		timeField, _ := ann.FieldByName("time")
		textField, _ := ann.FieldByName("text")
		if timeField == nil {
			continue
		}
		t, err := frame.Times(timeField)
		if err != nil {
			continue
		}
		for i, ts := range t {
			m := marker{t: ts}
			if textField != nil && i < textField.Len() {
				if text, ok := textField.At(i).(string); ok {
					m.text = text
				}
			}
			markers = append(markers, m)
		}
	}
	return markers
}

// Page builds one chart per series frame of the panel data. Frames which cannot be charted are
// skipped.
func Page(pd query.PanelData) *components.Page {
	page := components.NewPage()
	for _, f := range pd.Series {
		line, err := LineFrame(f, pd.Annotations)
		if err != nil {
			continue
		}
		page.AddCharts(line)
	}
	return page
}

func Render(w io.Writer, pd query.PanelData) error {
	return Page(pd).Render(w)
}

// RenderFile writes the HTML page of the panel data to path
func RenderFile(path string, pd query.PanelData) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return Render(file, pd)
}
