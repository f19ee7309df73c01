// Package outlier highlights series which move away from the group of series they are displayed
// with and draws the band of the main cluster.
package outlier

import (
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/aouyang1/go-scenesml/frame"
	"github.com/aouyang1/go-scenesml/metrics"
	"github.com/aouyang1/go-scenesml/ml"
	"github.com/aouyang1/go-scenesml/query"
	"github.com/grafana/grafana-plugin-sdk-go/data"
)

const (
	componentName = "outlier"

	DefaultSensitivity = 0.5

	OutlierColor    = "#f5b73d"
	NotOutlierColor = "#ffffff"
	BandColor       = "gray"

	URLKeySensitivity    = "outlierSensitivity"
	URLKeyAddAnnotations = "outlierAddAnnotations"
)

// State of an outlier detector
type State struct {
	// Sensitivity in (0, 1). Zero disables outlier detection.
	Sensitivity float64 `json:"sensitivity" yaml:"sensitivity" validate:"gte=0,lt=1"`
	// AddAnnotations adds a region annotation for every outlying interval
	AddAnnotations bool `json:"add_annotations" yaml:"add_annotations"`
}

func (s State) Enabled() bool {
	return s.Sensitivity > 0
}

// Rerun requires a new query when detection is toggled and reprocessing for any other change
func Rerun(prev, next State) query.Rerun {
	if prev.Enabled() != next.Enabled() {
		return query.Rerun{Query: true}
	}
	if prev.Sensitivity != next.Sensitivity || prev.AddAnnotations != next.AddAnnotations {
		return query.Rerun{Processor: true}
	}
	return query.Rerun{}
}

func (s State) URLValues() url.Values {
	values := url.Values{}
	if s.Enabled() {
		values.Set(URLKeySensitivity, strconv.FormatFloat(s.Sensitivity, 'f', -1, 64))
		values.Set(URLKeyAddAnnotations, strconv.FormatBool(s.AddAnnotations))
	}
	return values
}

// FromURL applies URL values when either key is present. A missing or invalid sensitivity
// uses DefaultSensitivity and annotations stay on unless explicitly disabled.
func (s State) FromURL(values url.Values) (State, bool) {
	if !values.Has(URLKeySensitivity) && !values.Has(URLKeyAddAnnotations) {
		return s, false
	}
	s.Sensitivity = DefaultSensitivity
	if sensitivity, err := strconv.ParseFloat(values.Get(URLKeySensitivity), 64); err == nil && sensitivity > 0 && sensitivity < 1 {
		s.Sensitivity = sensitivity
	}
	s.AddAnnotations = values.Get(URLKeyAddAnnotations) != "false"
	return s, true
}

// Outlier is an interval over which a series is outside of the main cluster
type Outlier struct {
	Series int       `json:"series"`
	Name   string    `json:"name"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
}

// Options configures an outlier detector
type Options struct {
	State State
	// Detector defaults to the DBSCAN detector
	Detector ml.OutlierDetector
	// OnOutlierDetected runs with the query runner's lock held and must not change the state of
	// any overlay on the same panel.
	OnOutlierDetected func(Outlier)

	Logger  *slog.Logger
	Metrics *metrics.Recorder
}

func NewDefaultOptions() *Options {
	return &Options{
		State:    State{Sensitivity: DefaultSensitivity, AddAnnotations: true},
		Detector: NewDBSCANDetector(),
	}
}

// Detector runs outlier detection over the primary series of a panel. The preprocessed
// detector is retained so that a sensitivity change only retunes it.
type Detector struct {
	query.Notifier

	opt    *Options
	logger *slog.Logger

	mu          sync.Mutex
	state       State
	input       [][]float64
	loaded      ml.LoadedOutlierDetector
	sensitivity float64
}

var _ query.PrimaryProcessor = (*Detector)(nil)

func New(opt *Options) *Detector {
	if opt == nil {
		opt = NewDefaultOptions()
	}
	if opt.Detector == nil {
		opt.Detector = NewDBSCANDetector()
	}
	logger := opt.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{
		opt:    opt,
		logger: logger.With("component", componentName),
		state:  opt.State,
	}
}

func (d *Detector) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Detector) SetState(next State) {
	d.mu.Lock()
	prev := d.state
	d.state = next
	d.mu.Unlock()

	d.Notify(Rerun(prev, next))
}

// Toggle enables detection with the default sensitivity or disables it
func (d *Detector) Toggle() {
	next := d.State()
	if next.Enabled() {
		next.Sensitivity = 0
	} else {
		next.Sensitivity = DefaultSensitivity
	}
	d.SetState(next)
}

func (d *Detector) SetSensitivity(sensitivity float64) {
	next := d.State()
	next.Sensitivity = sensitivity
	d.SetState(next)
}

func (d *Detector) SetAddAnnotations(add bool) {
	next := d.State()
	next.AddAnnotations = add
	d.SetState(next)
}

func (d *Detector) URLValues() url.Values {
	return d.State().URLValues()
}

func (d *Detector) UpdateFromURL(values url.Values) {
	next, ok := d.State().FromURL(values)
	if !ok {
		return
	}
	d.SetState(next)
}

// Process joins the primary series on time, recolors them by whether they are outlying and adds
// the main cluster band. Outlying intervals become region annotations when enabled. The detector
// is the primary processor of its panel so the recolored series replace the raw ones; when
// detection is disabled or fails the primary data is returned unchanged.
func (d *Detector) Process(primary query.PanelData) query.PanelData {
	st := d.State()
	if !st.Enabled() {
		return primary
	}

	start := time.Now()
	defer func() {
		d.opt.Metrics.RecordLatency(componentName, time.Since(start))
	}()

	joined, ok := frame.OuterJoin(primary.Series)
	if !ok {
		return primary
	}
	times, err := frame.Times(joined.Fields[0])
	if err != nil {
		d.drop("invalid", err)
		return primary
	}
	seriesFields := joined.Fields[1:]
	matrix := make([][]float64, len(seriesFields))
	for i, field := range seriesFields {
		if matrix[i], err = frame.Floats(field); err != nil {
			d.drop("invalid", err)
			return primary
		}
	}

	res, err := d.detect(matrix, st.Sensitivity)
	if err != nil {
		d.drop("detect", err)
		return primary
	}

	outlying := make(map[int]bool, len(res.OutlyingSeries))
	for _, s := range res.OutlyingSeries {
		outlying[s] = true
	}
	notOutlier := frame.Alpha(NotOutlierColor, 1/math.Sqrt(1+float64(len(seriesFields))/2))

	fields := []*data.Field{joined.Fields[0]}
	for i, field := range seriesFields {
		color := notOutlier
		if outlying[i] {
			color = OutlierColor
		}
		fields = append(fields, frame.WithConfig(field, "", color, frame.CustomConfig{}))
	}
	if len(res.ClusterBand.Min) == len(times) && len(res.ClusterBand.Max) == len(times) {
		fields = append(fields, BandFields("clusterMin", "clusterMax", "Cluster Min", "Cluster Max", res.ClusterBand.Min, res.ClusterBand.Max)...)
	}
	out := primary
	out.Series = []*data.Frame{data.NewFrame(joined.Name, fields...)}

	var annotations []frame.Annotation
	for s, sr := range res.SeriesResults {
		if s >= len(seriesFields) {
			break
		}
		name := frame.DisplayName(nil, seriesFields[s])
		for _, iv := range sr.OutlierIntervals {
			o, ok := toOutlier(s, name, iv, times)
			if !ok {
				continue
			}
			d.opt.Metrics.RecordOutlier()
			if d.opt.OnOutlierDetected != nil {
				d.opt.OnOutlierDetected(o)
			}
			end := o.End
			annotations = append(annotations, frame.Annotation{
				Time: o.Start,
				End:  &end,
				Text: fmt.Sprintf("Outlier detected in series %s", name),
			})
		}
	}
	if st.AddAnnotations {
		out.Annotations = append(slices.Clone(primary.Annotations), frame.NewAnnotations("outliers", annotations))
	}
	d.opt.Metrics.RecordFrameProcessed(componentName)
	return out
}

func toOutlier(series int, name string, iv ml.OutlierInterval, times []time.Time) (Outlier, bool) {
	last := len(times) - 1
	if iv.Start < 0 || iv.Start > last {
		return Outlier{}, false
	}
	end := last
	if iv.End != nil && *iv.End < last {
		end = max(*iv.End, iv.Start)
	}
	return Outlier{Series: series, Name: name, Start: times[iv.Start], End: times[end]}, true
}

// detect preprocesses the matrix only when it differs from the last one and retunes the retained
// detector when only the sensitivity changed
func (d *Detector) detect(matrix [][]float64, sensitivity float64) (ml.OutlierOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.loaded == nil || !sameMatrix(d.input, matrix) {
		loaded, err := d.opt.Detector.Preprocess(matrix)
		if err != nil {
			d.loaded, d.input = nil, nil
			return ml.OutlierOutput{}, fmt.Errorf("unable to preprocess series, %w", err)
		}
		d.loaded, d.input, d.sensitivity = loaded, matrix, math.NaN()
	}
	if d.sensitivity != sensitivity {
		if err := d.loaded.UpdateDetector(ml.OutlierOptions{Sensitivity: sensitivity}); err != nil {
			return ml.OutlierOutput{}, fmt.Errorf("unable to update detector, %w", err)
		}
		d.sensitivity = sensitivity
	}
	return d.loaded.Detect()
}

func (d *Detector) drop(reason string, err error) {
	d.logger.Warn("dropping outlier output", "error", err.Error())
	d.opt.Metrics.RecordFrameDropped(componentName, reason)
}

func sameMatrix(a, b [][]float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if len(a[i]) != len(b[i]) {
			return false
		}
		for j := range a[i] {
			if math.Float64bits(a[i][j]) != math.Float64bits(b[i][j]) {
				return false
			}
		}
	}
	return true
}

// BandFields builds a min and max field pair drawn as a shaded gray band hidden from the legend
func BandFields(minName, maxName, minDisplay, maxDisplay string, lower, upper []float64) []*data.Field {
	return []*data.Field{
		frame.WithConfig(
			data.NewField(minName, nil, frame.NullableFloats(lower)),
			minDisplay, BandColor, frame.CustomConfig{HideLine: true, HideFromLegend: true},
		),
		frame.WithConfig(
			data.NewField(maxName, nil, frame.NullableFloats(upper)),
			maxDisplay, BandColor, frame.CustomConfig{FillBelowTo: minDisplay, HideLine: true, HideFromLegend: true},
		),
	}
}
