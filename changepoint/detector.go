package changepoint

import (
	"log/slog"
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
	componentName = "changepoint"

	DefaultLookbackFactor = 4.0

	AnnotationText = "Changepoint detected"

	URLKeyLookbackFactor = "changepointLookbackFactor"
	URLKeyEnabled        = "changepointEnabled"
)

// LookbackFactorOptions are the supported multiples of the displayed range to detect over
var LookbackFactorOptions = []float64{1, 4, 10}

// State of a changepoint detector
type State struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	// LookbackFactor multiplies the displayed range into the range to detect changes over.
	// Zero uses DefaultLookbackFactor.
	LookbackFactor float64 `json:"lookback_factor" yaml:"lookback_factor" validate:"gte=0"`
}

func (s State) lookbackFactor() float64 {
	if s.LookbackFactor <= 0 {
		return DefaultLookbackFactor
	}
	return s.LookbackFactor
}

// Rerun requires a new query when detection is toggled or, while enabled, the lookback changes
func Rerun(prev, next State) query.Rerun {
	if prev.Enabled != next.Enabled {
		return query.Rerun{Query: true}
	}
	if next.Enabled && prev.lookbackFactor() != next.lookbackFactor() {
		return query.Rerun{Query: true}
	}
	return query.Rerun{}
}

func (s State) URLValues() url.Values {
	values := url.Values{}
	if s.LookbackFactor > 0 {
		values.Set(URLKeyLookbackFactor, strconv.FormatFloat(s.LookbackFactor, 'f', -1, 64))
	}
	values.Set(URLKeyEnabled, strconv.FormatBool(s.Enabled))
	return values
}

// FromURL applies URL values when either key is present. An unsupported lookback factor uses
// DefaultLookbackFactor.
func (s State) FromURL(values url.Values) (State, bool) {
	rawFactor, rawEnabled := values.Get(URLKeyLookbackFactor), values.Get(URLKeyEnabled)
	if rawFactor == "" && rawEnabled == "" {
		return s, false
	}
	if rawFactor != "" {
		s.LookbackFactor = DefaultLookbackFactor
		if factor, err := strconv.ParseFloat(rawFactor, 64); err == nil && slices.Contains(LookbackFactorOptions, factor) {
			s.LookbackFactor = factor
		}
	}
	if rawEnabled != "" {
		s.Enabled = rawEnabled == "true" || rawEnabled == "1"
	}
	return s, true
}

// Options configures a changepoint detector
type Options struct {
	State State
	// Detector defaults to binary segmentation
	Detector ml.ChangepointDetector
	// OnChangepointDetected runs with the query runner's lock held and must not change the state
	// of any overlay on the same panel.
	OnChangepointDetected func(Changepoint)

	Logger  *slog.Logger
	Metrics *metrics.Recorder
}

func NewDefaultOptions() *Options {
	return &Options{
		Detector: NewBinarySegmentation(),
	}
}

// Detector adds a request over the lookback range and turns the changepoints of every numeric
// field into annotations
type Detector struct {
	query.Notifier

	opt    *Options
	logger *slog.Logger

	mu    sync.Mutex
	state State
}

func New(opt *Options) *Detector {
	if opt == nil {
		opt = NewDefaultOptions()
	}
	if opt.Detector == nil {
		opt.Detector = NewBinarySegmentation()
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

func (d *Detector) SetEnabled(enabled bool) {
	next := d.State()
	next.Enabled = enabled
	d.SetState(next)
}

func (d *Detector) SetLookbackFactor(factor float64) {
	next := d.State()
	next.LookbackFactor = factor
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

func (d *Detector) SupplementaryRequests(primary query.Request) []query.Supplementary {
	st := d.State()
	if !st.Enabled {
		return nil
	}
	req := primary
	req.Range = primary.Range.WithLookback(st.lookbackFactor())
	req.Targets = append([]query.Target{}, primary.Targets...)
	return []query.Supplementary{{Request: req, Processor: d.Process}}
}

// Process returns no series and one annotation frame per secondary frame
func (d *Detector) Process(_, secondary query.PanelData) query.PanelData {
	start := time.Now()
	defer func() {
		d.opt.Metrics.RecordLatency(componentName, time.Since(start))
	}()

	out := query.PanelData{
		Request:     secondary.Request,
		TimeRange:   secondary.TimeRange,
		State:       secondary.State,
		Series:      []*data.Frame{},
		Annotations: make([]*data.Frame, 0, len(secondary.Series)),
	}
	for _, f := range secondary.Series {
		out.Annotations = append(out.Annotations, d.annotate(f))
	}
	return out
}

func (d *Detector) annotate(f *data.Frame) *data.Frame {
	tIdx, ok := frame.FindTimeField(f)
	if !ok {
		return frame.NewAnnotations("", nil)
	}
	times, err := frame.Times(f.Fields[tIdx])
	if err != nil {
		d.logger.Warn("skipping changepoints of frame", "frame", f.RefID, "error", err.Error())
		d.opt.Metrics.RecordFrameDropped(componentName, "invalid")
		return frame.NewAnnotations(f.Name, nil)
	}

	var annotations []frame.Annotation
	for _, field := range frame.NumberFields(f) {
		y, err := frame.Floats(field)
		if err != nil {
			d.logger.Warn("skipping changepoints of field", "field", field.Name, "error", err.Error())
			continue
		}
		indices, err := d.opt.Detector.Detect(y)
		if err != nil {
			d.logger.Warn("unable to detect changepoints", "field", field.Name, "error", err.Error())
			d.opt.Metrics.RecordFrameDropped(componentName, "detect")
			continue
		}
		for _, i := range indices {
			if i < 0 || i+1 >= len(times) {
				continue
			}
			cp := Changepoint{T: times[i+1], Name: frame.DisplayName(f, field), Field: field}
			annotations = append(annotations, frame.Annotation{Time: cp.T, Text: AnnotationText})
			d.opt.Metrics.RecordChangepoint()
			if d.opt.OnChangepointDetected != nil {
				d.opt.OnChangepointDetected(cp)
			}
		}
	}
	d.opt.Metrics.RecordFrameProcessed(componentName)
	return frame.NewAnnotations(f.Name, annotations)
}
