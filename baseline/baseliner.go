// Package baseline overlays a forecast baseline with prediction intervals on time series and
// flags observations which fall outside of the interval.
package baseline

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/aouyang1/go-scenesml/forecast"
	"github.com/aouyang1/go-scenesml/frame"
	"github.com/aouyang1/go-scenesml/metrics"
	"github.com/aouyang1/go-scenesml/ml"
	"github.com/aouyang1/go-scenesml/query"
	"github.com/aouyang1/go-scenesml/season"
	"github.com/aouyang1/go-scenesml/timedataset"
	"github.com/grafana/grafana-plugin-sdk-go/data"
)

const (
	componentName = "baseline"

	// MinTrainingPoints is the minimum length of the first field of a frame to fit a baseline
	MinTrainingPoints = 10

	// RefIDSuffix is appended to the ref id of every output frame
	RefIDSuffix = "-baseline-training"
)

var ErrProcessorPanic = errors.New("panic while processing frame")

// TrainingMeta marks an output frame as a baseline over training data
type TrainingMeta struct {
	IsBaselineTrainingQuery bool   `json:"isBaselineTrainingQuery"`
	OrigRefID               string `json:"origRefId"`
}

// Options configures a baseliner
type Options struct {
	State State
	// Backends are the forecasting backends selectable by State.Model. Defaults to the
	// harmonic forecaster.
	Backends ml.Backends
	// Detector discovers extra season lengths when State.DiscoverSeasonalities is set
	Detector ml.SeasonalityDetector
	// ExtraSeasonalities are considered along with the default seasonalities
	ExtraSeasonalities []time.Duration
	// OnAnomalyDetected is called for every observation outside of the prediction interval. It
	// runs while the query runner processes results with its lock held and must not change the
	// state of any overlay on the same panel.
	OnAnomalyDetected func(Anomaly)

	Logger  *slog.Logger
	Metrics *metrics.Recorder
}

func NewDefaultOptions() *Options {
	return &Options{
		State:    State{Interval: DefaultInterval},
		Backends: ml.Backends{forecast.ModelHarmonic: forecast.Backend(nil)},
		Detector: forecast.NewAutocorrelationDetector(),
	}
}

// Baseliner adds a supplementary request for training data over a longer range than the one
// displayed and turns its result into baseline and bound fields.
type Baseliner struct {
	query.Notifier

	opt    *Options
	logger *slog.Logger

	mu       sync.Mutex
	state    State
	snapshot *query.PanelData
}

func New(opt *Options) *Baseliner {
	if opt == nil {
		opt = NewDefaultOptions()
	}
	if opt.Backends == nil {
		opt.Backends = ml.Backends{forecast.ModelHarmonic: forecast.Backend(nil)}
	}
	logger := opt.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Baseliner{
		opt:    opt,
		logger: logger.With("component", componentName),
		state:  opt.State,
	}
}

func (b *Baseliner) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// SetState replaces the state and notifies subscribers of the required rerun. The pinned
// snapshot is discarded when unpinning, disabling or whenever a rerun is required.
func (b *Baseliner) SetState(next State) {
	b.mu.Lock()
	prev := b.state
	b.state = next
	rr := Rerun(prev, next)
	if rr.ShouldRerun() || !next.Enabled() || (prev.Pinned && !next.Pinned) {
		b.snapshot = nil
	}
	b.mu.Unlock()

	b.Notify(rr)
}

func (b *Baseliner) update(fn func(*State)) {
	next := b.State()
	fn(&next)
	b.SetState(next)
}

// Toggle enables the baseline with the default interval or disables and unpins it
func (b *Baseliner) Toggle() {
	b.update(func(s *State) {
		if s.Enabled() {
			s.Interval = 0
			s.Pinned = false
			return
		}
		s.Interval = DefaultInterval
	})
}

func (b *Baseliner) SetInterval(interval float64) {
	b.update(func(s *State) { s.Interval = interval })
}

func (b *Baseliner) SetDiscoverSeasonalities(discover bool) {
	b.update(func(s *State) { s.DiscoverSeasonalities = discover })
}

func (b *Baseliner) SetTrainingLookbackFactor(factor float64) {
	b.update(func(s *State) { s.TrainingLookbackFactor = factor })
}

func (b *Baseliner) SetPinned(pinned bool) {
	b.update(func(s *State) { s.Pinned = pinned })
}

func (b *Baseliner) SetModel(mt ml.ModelType) {
	b.update(func(s *State) { s.Model = mt })
}

func (b *Baseliner) URLValues() url.Values {
	return b.State().URLValues()
}

// UpdateFromURL applies URL values if they carry any baseline state
func (b *Baseliner) UpdateFromURL(values url.Values) {
	next, ok := b.State().FromURL(values)
	if !ok {
		return
	}
	b.SetState(next)
}

// SupplementaryRequests asks for the same targets over the training lookback range while the
// baseline is enabled.
func (b *Baseliner) SupplementaryRequests(primary query.Request) []query.Supplementary {
	st := b.State()
	if !st.Enabled() {
		return nil
	}
	req := primary
	req.Range = primary.Range.WithLookback(st.LookbackFactor())
	req.Targets = append([]query.Target{}, primary.Targets...)
	return []query.Supplementary{{Request: req, Processor: b.Process}}
}

// Process turns each training frame of the secondary result into a baseline frame over the
// display window of the primary result. Frames which fail are logged and dropped. While pinned
// the last output is returned unchanged.
func (b *Baseliner) Process(primary, secondary query.PanelData) query.PanelData {
	b.mu.Lock()
	st, snapshot := b.state, b.snapshot
	b.mu.Unlock()

	if !st.Enabled() {
		return secondary
	}
	if st.Pinned && snapshot != nil {
		return *snapshot
	}

	start := time.Now()
	window := displayWindow(primary)

	out := secondary
	out.Series = make([]*data.Frame, 0, len(secondary.Series))
	for _, f := range secondary.Series {
		res, err := b.processFrameSafe(st, f, window)
		if err != nil {
			b.logger.Warn("dropping frame from baseline output", "frame", f.RefID, "error", err.Error())
			b.opt.Metrics.RecordFrameDropped(componentName, dropReason(err))
			continue
		}
		out.Series = append(out.Series, res)
		b.opt.Metrics.RecordFrameProcessed(componentName)
	}
	b.opt.Metrics.RecordLatency(componentName, time.Since(start))

	b.mu.Lock()
	b.snapshot = &out
	b.mu.Unlock()
	return out
}

func displayWindow(primary query.PanelData) *query.TimeRange {
	window := primary.TimeRange
	if window == (query.TimeRange{}) {
		window = primary.Request.Range
	}
	if window == (query.TimeRange{}) {
		return nil
	}
	return &window
}

type frameError struct {
	reason string
	err    error
}

func (e *frameError) Error() string {
	return e.err.Error()
}

func (e *frameError) Unwrap() error {
	return e.err
}

func dropReason(err error) string {
	var fe *frameError
	if errors.As(err, &fe) {
		return fe.reason
	}
	return "unknown"
}

func (b *Baseliner) processFrameSafe(st State, f *data.Frame, window *query.TimeRange) (res *data.Frame, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			res = nil
			err = &frameError{reason: "panic", err: fmt.Errorf("%v, %w", rec, ErrProcessorPanic)}
		}
	}()
	return b.processFrame(st, f, window)
}

func (b *Baseliner) processFrame(st State, f *data.Frame, window *query.TimeRange) (*data.Frame, error) {
	if f == nil {
		return nil, &frameError{reason: "invalid", err: frame.ErrNilField}
	}
	timeIdx, numIdx, ok := canAddBaseline(f)
	if !ok {
		return wrapFrame(f, f.Fields), nil
	}
	timeField, numField := f.Fields[timeIdx], f.Fields[numIdx]

	times, err := frame.Times(timeField)
	if err != nil {
		return nil, &frameError{reason: "invalid", err: err}
	}
	values, err := frame.Floats(numField)
	if err != nil {
		return nil, &frameError{reason: "invalid", err: err}
	}
	td, err := timedataset.NewUnivariateDataset(times, values)
	if err != nil {
		return nil, &frameError{reason: "invalid", err: err}
	}
	freq, err := td.Freq()
	if err != nil {
		return nil, &frameError{reason: "invalid", err: err}
	}
	trainingRange := td.Range()

	var discovered []int
	if st.DiscoverSeasonalities && b.opt.Detector != nil {
		discovered, err = b.opt.Detector.Seasonalities(values)
		if err != nil {
			b.logger.Warn("unable to discover seasonalities", "frame", f.RefID, "error", err.Error())
			discovered = nil
		}
	}
	seasonLengths := season.Lengths(trainingRange, freq, b.opt.ExtraSeasonalities, discovered)

	backend, err := b.opt.Backends.Get(st.ModelType())
	if err != nil {
		return nil, &frameError{reason: "backend", err: err}
	}
	if backend.RequiresSeasonality && len(seasonLengths) == 0 {
		return wrapFrame(f, f.Fields), nil
	}

	grid := TrainingGrid(times[0], trainingRange, freq)
	model, err := backend.Forecaster.Fit(grid, td.Align(grid), seasonLengths, st.Interval)
	if err != nil {
		return nil, &frameError{reason: "fit", err: fmt.Errorf("unable to fit %s model, %w", st.ModelType(), err)}
	}

	seg, err := Stitch(model, times[0], trainingRange, freq, window, st.Interval)
	if err != nil {
		return nil, &frameError{reason: "predict", err: err}
	}

	DetectAnomalies(td.Align(seg.Times), seg.Times, seg.Lower, seg.Upper, numField, b.emitAnomaly)

	name := frame.DisplayName(f, numField)
	return wrapFrame(f, NewFields(name, timeField, seg)), nil
}

func (b *Baseliner) emitAnomaly(a Anomaly) {
	b.opt.Metrics.RecordAnomaly(string(a.Direction))
	if b.opt.OnAnomalyDetected != nil {
		b.opt.OnAnomalyDetected(a)
	}
}

// canAddBaseline reports the time and number field indices of a frame with at least two
// fields whose first field has at least MinTrainingPoints values.
func canAddBaseline(f *data.Frame) (int, int, bool) {
	timeIdx, hasTime := frame.FindTimeField(f)
	numIdx, hasNum := frame.FindNumberField(f)
	if len(f.Fields) < 2 || f.Fields[0].Len() < MinTrainingPoints || !hasTime || !hasNum {
		return -1, -1, false
	}
	return timeIdx, numIdx, true
}

func wrapFrame(src *data.Frame, fields []*data.Field) *data.Frame {
	out := data.NewFrame(src.Name, fields...)
	out.RefID = src.RefID + RefIDSuffix
	meta := &data.FrameMeta{}
	if src.Meta != nil {
		*meta = *src.Meta
	}
	meta.Custom = TrainingMeta{
		IsBaselineTrainingQuery: true,
		OrigRefID:               src.RefID,
	}
	out.Meta = meta
	return out
}
