// Package cluster groups the series of a panel by shape and draws a band for every group of
// similar series.
package cluster

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
	componentName = "cluster"

	DefaultEpsilon        = 0.8
	DefaultMinClusterSize = 3

	BandColor = "gray"

	URLKeyEpsilon = "clusterepsilon"
)

// State of a clusterer
type State struct {
	// Epsilon scales the range of the data into the maximum distance between neighbouring
	// series. Zero disables clustering.
	Epsilon float64 `json:"epsilon" yaml:"epsilon" validate:"gte=0"`
	// Pinned keeps the last clusters regardless of new data
	Pinned bool `json:"pinned" yaml:"pinned"`
}

func (s State) Enabled() bool {
	return s.Epsilon > 0
}

// Rerun never reruns while pinned. Toggling clustering requires a query; changing epsilon or
// unpinning only reprocesses.
func Rerun(prev, next State) query.Rerun {
	switch {
	case next.Pinned:
		return query.Rerun{}
	case prev.Enabled() != next.Enabled():
		return query.Rerun{Query: true}
	case prev.Epsilon != next.Epsilon || prev.Pinned != next.Pinned:
		return query.Rerun{Processor: true}
	}
	return query.Rerun{}
}

func (s State) URLValues() url.Values {
	values := url.Values{}
	if s.Enabled() {
		values.Set(URLKeyEpsilon, strconv.FormatFloat(s.Epsilon, 'f', -1, 64))
	}
	return values
}

// FromURL applies the epsilon URL value. An unparseable or zero epsilon uses DefaultEpsilon.
func (s State) FromURL(values url.Values) (State, bool) {
	raw := values.Get(URLKeyEpsilon)
	if raw == "" {
		return s, false
	}
	s.Epsilon = DefaultEpsilon
	if epsilon, err := strconv.ParseFloat(raw, 64); err == nil && epsilon > 0 && !math.IsInf(epsilon, 0) {
		s.Epsilon = epsilon
	}
	return s, true
}

// Cluster is a group of series with the band they span
type Cluster struct {
	Label  int       `json:"label"`
	Series []int     `json:"series"`
	Min    []float64 `json:"min"`
	Max    []float64 `json:"max"`
	Mid    []float64 `json:"mid"`
}

// Options configures a clusterer
type Options struct {
	State State
	// MinClusterSize is the minimum number of neighbouring series forming a cluster
	MinClusterSize int
	// Distance defaults to DTW
	Distance ml.DistanceMeasure
	// Clusterer defaults to DBSCAN
	Clusterer ml.Clusterer

	Logger  *slog.Logger
	Metrics *metrics.Recorder
}

func NewDefaultOptions() *Options {
	return &Options{
		State:          State{Epsilon: DefaultEpsilon},
		MinClusterSize: DefaultMinClusterSize,
		Distance:       NewDTW(),
		Clusterer:      NewDBSCAN(),
	}
}

// Clusterer replaces the primary series with one band per cluster of similar series
type Clusterer struct {
	query.Notifier

	opt    *Options
	logger *slog.Logger

	mu       sync.Mutex
	state    State
	clusters []Cluster
	snapshot *query.PanelData
}

func New(opt *Options) *Clusterer {
	if opt == nil {
		opt = NewDefaultOptions()
	}
	if opt.MinClusterSize <= 0 {
		opt.MinClusterSize = DefaultMinClusterSize
	}
	if opt.Distance == nil {
		opt.Distance = NewDTW()
	}
	if opt.Clusterer == nil {
		opt.Clusterer = NewDBSCAN()
	}
	logger := opt.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Clusterer{
		opt:    opt,
		logger: logger.With("component", componentName),
		state:  opt.State,
	}
}

func (c *Clusterer) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetState replaces the state. The pinned snapshot is discarded when unpinning or disabling.
func (c *Clusterer) SetState(next State) {
	c.mu.Lock()
	prev := c.state
	c.state = next
	if !next.Enabled() || !next.Pinned {
		c.snapshot = nil
	}
	c.mu.Unlock()

	c.Notify(Rerun(prev, next))
}

func (c *Clusterer) update(fn func(*State)) {
	next := c.State()
	fn(&next)
	c.SetState(next)
}

// Toggle enables clustering with the default epsilon or disables it
func (c *Clusterer) Toggle() {
	c.update(func(s *State) {
		if s.Enabled() {
			s.Epsilon = 0
			return
		}
		s.Epsilon = DefaultEpsilon
	})
}

func (c *Clusterer) SetEpsilon(epsilon float64) {
	c.update(func(s *State) { s.Epsilon = epsilon })
}

func (c *Clusterer) SetPinned(pinned bool) {
	c.update(func(s *State) { s.Pinned = pinned })
}

// Clusters returns the clusters of the last processed data ordered by label
func (c *Clusterer) Clusters() []Cluster {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Cluster(nil), c.clusters...)
}

func (c *Clusterer) URLValues() url.Values {
	return c.State().URLValues()
}

func (c *Clusterer) UpdateFromURL(values url.Values) {
	next, ok := c.State().FromURL(values)
	if !ok {
		return
	}
	c.SetState(next)
}

// SupplementaryRequests adds a request without targets. Its processor clusters the primary
// series.
func (c *Clusterer) SupplementaryRequests(primary query.Request) []query.Supplementary {
	if !c.State().Enabled() {
		return nil
	}
	req := primary
	req.Targets = []query.Target{}
	return []query.Supplementary{{Request: req, Processor: c.Process}}
}

// Process joins the primary series on time and outputs the time field followed by the min,
// mid and max fields of every cluster
func (c *Clusterer) Process(primary, secondary query.PanelData) query.PanelData {
	c.mu.Lock()
	st, snapshot := c.state, c.snapshot
	c.mu.Unlock()

	if !st.Enabled() {
		return secondary
	}
	if st.Pinned && snapshot != nil {
		return *snapshot
	}

	start := time.Now()
	defer func() {
		c.opt.Metrics.RecordLatency(componentName, time.Since(start))
	}()

	joined, ok := frame.OuterJoin(primary.Series)
	if !ok {
		return secondary
	}
	clusters, err := c.cluster(joined, st.Epsilon)
	if err != nil {
		c.logger.Warn("dropping cluster output", "error", err.Error())
		c.opt.Metrics.RecordFrameDropped(componentName, "cluster")
		return secondary
	}

	fields := []*data.Field{joined.Fields[0]}
	for k, cl := range clusters {
		fields = append(fields, BandFields(k, cl)...)
	}
	out := secondary
	out.Series = []*data.Frame{data.NewFrame(joined.Name, fields...)}
	c.opt.Metrics.RecordFrameProcessed(componentName)

	c.mu.Lock()
	c.clusters = clusters
	c.snapshot = &out
	c.mu.Unlock()
	return out
}

func (c *Clusterer) cluster(joined *data.Frame, epsilon float64) ([]Cluster, error) {
	series := make([][]float64, 0, len(joined.Fields)-1)
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, field := range joined.Fields[1:] {
		y, err := frame.Floats(field)
		if err != nil {
			return nil, err
		}
		for _, v := range y {
			if math.IsNaN(v) {
				continue
			}
			lo, hi = math.Min(lo, v), math.Max(hi, v)
		}
		series = append(series, y)
	}
	maxDistance := (hi - lo) * epsilon
	if !(maxDistance > 0) || math.IsInf(maxDistance, 0) {
		return nil, fmt.Errorf("maximum distance of %f from range [%f, %f], %w", maxDistance, lo, hi, ErrInvalidEpsilon)
	}

	dist, err := c.opt.Distance.DistanceMatrix(series)
	if err != nil {
		return nil, fmt.Errorf("unable to compute distance matrix, %w", err)
	}
	labels, err := c.opt.Clusterer.Cluster(dist, ml.ClusterOptions{Epsilon: maxDistance, MinClusterSize: c.opt.MinClusterSize})
	if err != nil {
		return nil, fmt.Errorf("unable to cluster series, %w", err)
	}
	return Bands(series, labels), nil
}

// Bands computes the band of every cluster ordered by label. Noise is not part of any band.
func Bands(series [][]float64, labels []int) []Cluster {
	byLabel := map[int]*Cluster{}
	var order []int
	for s, label := range labels {
		if label == ml.Noise || s >= len(series) {
			continue
		}
		y := series[s]
		cl, exists := byLabel[label]
		if !exists {
			cl = &Cluster{
				Label: label,
				Min:   nanSlice(len(y)),
				Max:   nanSlice(len(y)),
				Mid:   nanSlice(len(y)),
			}
			byLabel[label] = cl
			order = append(order, label)
		}
		cl.Series = append(cl.Series, s)
		for i := 0; i < len(y) && i < len(cl.Min); i++ {
			if math.IsNaN(y[i]) {
				continue
			}
			if math.IsNaN(cl.Min[i]) || y[i] < cl.Min[i] {
				cl.Min[i] = y[i]
			}
			if math.IsNaN(cl.Max[i]) || y[i] > cl.Max[i] {
				cl.Max[i] = y[i]
			}
			cl.Mid[i] = (cl.Min[i] + cl.Max[i]) / 2
		}
	}

	slices.Sort(order)
	clusters := make([]Cluster, 0, len(order))
	for _, label := range order {
		clusters = append(clusters, *byLabel[label])
	}
	return clusters
}

func nanSlice(n int) []float64 {
	res := make([]float64, n)
	for i := range res {
		res[i] = math.NaN()
	}
	return res
}

// BandFields builds the min, mid and max fields of the k-th cluster
func BandFields(k int, cl Cluster) []*data.Field {
	minName := fmt.Sprintf("clusterMin%d", k)
	return []*data.Field{
		frame.WithConfig(
			data.NewField(minName, nil, frame.NullableFloats(cl.Min)),
			fmt.Sprintf("Cluster %d Min", k), BandColor,
			frame.CustomConfig{HideLine: true, HideFromLegend: true},
		),
		frame.WithConfig(
			data.NewField(fmt.Sprintf("clusterMid%d", k), nil, frame.NullableFloats(cl.Mid)),
			fmt.Sprintf("Cluster %d Midpoint", k), "",
			frame.CustomConfig{LineWidth: 1},
		),
		frame.WithConfig(
			data.NewField(fmt.Sprintf("clusterMax%d", k), nil, frame.NullableFloats(cl.Max)),
			fmt.Sprintf("Cluster %d Max", k), BandColor,
			frame.CustomConfig{FillBelowTo: minName, HideLine: true, HideFromLegend: true},
		),
	}
}
