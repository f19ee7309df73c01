// Package metrics records pipeline activity with Prometheus. A nil *Recorder is valid and
// records nothing.
package metrics

import (
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"
)

const namespace = "scenesml"

// Run outcomes
const (
	OutcomeDone       = "done"
	OutcomeError      = "error"
	OutcomeSuperseded = "superseded"
)

// Recorder holds the pipeline metrics on its own registry
type Recorder struct {
	reg *prometheus.Registry

	framesProcessed *prometheus.CounterVec
	framesDropped   *prometheus.CounterVec
	anomalies       *prometheus.CounterVec
	outliers        prometheus.Counter
	changepoints    prometheus.Counter
	runs            *prometheus.CounterVec
	latency         *prometheus.HistogramVec
}

// New creates a recorder registered on a fresh registry
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Recorder{
		reg: reg,
		framesProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "frames_processed_total",
				Help:      "Total number of frames processed by a component",
			},
			[]string{"component"},
		),
		framesDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "frames_dropped_total",
				Help:      "Total number of frames dropped from a component's output",
			},
			[]string{"component", "reason"},
		),
		anomalies: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "anomalies_total",
				Help:      "Total number of observations outside of the baseline bounds",
			},
			[]string{"direction"},
		),
		outliers: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "outliers_total",
				Help:      "Total number of outlying series intervals",
			},
		),
		changepoints: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "changepoints_total",
				Help:      "Total number of detected changepoints",
			},
		),
		runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Total number of query runs by outcome",
			},
			[]string{"outcome"},
		),
		latency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "processing_duration_seconds",
				Help:      "Duration of a component's processing in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"component"},
		),
	}
}

// Registry exposes the registry for serving or gathering
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.reg
}

// RecordFrameProcessed records a frame which made it into a component's output
func (r *Recorder) RecordFrameProcessed(component string) {
	if r == nil {
		return
	}
	r.framesProcessed.WithLabelValues(component).Inc()
}

// RecordFrameDropped records a frame excluded from a component's output
func (r *Recorder) RecordFrameDropped(component, reason string) {
	if r == nil {
		return
	}
	r.framesDropped.WithLabelValues(component, reason).Inc()
}

func (r *Recorder) RecordAnomaly(direction string) {
	if r == nil {
		return
	}
	r.anomalies.WithLabelValues(direction).Inc()
}

func (r *Recorder) RecordOutlier() {
	if r == nil {
		return
	}
	r.outliers.Inc()
}

func (r *Recorder) RecordChangepoint() {
	if r == nil {
		return
	}
	r.changepoints.Inc()
}

func (r *Recorder) RecordRun(outcome string) {
	if r == nil {
		return
	}
	r.runs.WithLabelValues(outcome).Inc()
}

// RecordLatency records how long a component took to process its input
func (r *Recorder) RecordLatency(component string, d time.Duration) {
	if r == nil {
		return
	}
	r.latency.WithLabelValues(component).Observe(d.Seconds())
}

// WriteText writes every gathered metric family in the Prometheus text exposition format
func (r *Recorder) WriteText(w io.Writer) error {
	if r == nil {
		return nil
	}
	families, err := r.reg.Gather()
	if err != nil {
		return fmt.Errorf("unable to gather metrics, %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("unable to write metric family %s, %w", mf.GetName(), err)
		}
	}
	return nil
}
