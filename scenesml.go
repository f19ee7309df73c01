// Package scenesml composes the machine learning overlays of a time series panel: forecast
// baselines with anomaly flagging, outlier highlighting, series clustering and changepoint
// markers. Every enabled overlay contributes supplementary requests to a single query runner
// whose merged output is the panel data.
package scenesml

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/url"
	"time"

	"github.com/aouyang1/go-scenesml/baseline"
	"github.com/aouyang1/go-scenesml/changepoint"
	"github.com/aouyang1/go-scenesml/cluster"
	"github.com/aouyang1/go-scenesml/config"
	"github.com/aouyang1/go-scenesml/metrics"
	"github.com/aouyang1/go-scenesml/outlier"
	"github.com/aouyang1/go-scenesml/query"
)

var ErrNoOverlays = errors.New("no overlays configured")

// Options configures a panel. A nil component option leaves the overlay out of the panel.
type Options struct {
	Query       *query.Options
	Baseline    *baseline.Options
	Outlier     *outlier.Options
	Cluster     *cluster.Options
	Changepoint *changepoint.Options
	// TimeCompare draws the targets shifted back by this duration when positive
	TimeCompare time.Duration

	Logger  *slog.Logger
	Metrics *metrics.Recorder
}

// NewDefaultOptions returns options for a panel with a baseline overlay
func NewDefaultOptions() *Options {
	return &Options{
		Query:    query.NewDefaultOptions(),
		Baseline: baseline.NewDefaultOptions(),
	}
}

// NewOptionsFromConfig maps a configuration onto panel options. Every overlay is present so it
// can be enabled at runtime; the configuration decides which ones start enabled.
func NewOptionsFromConfig(c *config.Config, logger *slog.Logger, recorder *metrics.Recorder) (*Options, error) {
	bopt, err := c.BaselineOptions()
	if err != nil {
		return nil, fmt.Errorf("unable to configure baseline, %w", err)
	}
	return &Options{
		Query:       c.Query.RunnerOptions(),
		Baseline:    bopt,
		Outlier:     c.Outlier.Options(),
		Cluster:     c.Cluster.Options(),
		Changepoint: c.Changepoint.Options(),
		Logger:      logger,
		Metrics:     recorder,
	}, nil
}

// Panel is a query runner along with the overlays feeding it
type Panel struct {
	runner *query.Runner

	baseliner   *baseline.Baseliner
	outliers    *outlier.Detector
	clusterer   *cluster.Clusterer
	changepoint *changepoint.Detector
	compare     *query.TimeCompare
}

// New wires the configured overlays into a query runner over the data source
func New(ds query.DataSource, opt *Options) (*Panel, error) {
	if opt == nil {
		opt = NewDefaultOptions()
	}
	if opt.Baseline == nil && opt.Outlier == nil && opt.Cluster == nil && opt.Changepoint == nil && opt.TimeCompare <= 0 {
		return nil, ErrNoOverlays
	}

	p := &Panel{}
	var suppliers []query.Supplier
	var primary query.PrimaryProcessor

	if opt.Baseline != nil {
		bopt := *opt.Baseline
		inheritAmbient(&bopt.Logger, &bopt.Metrics, opt)
		p.baseliner = baseline.New(&bopt)
		suppliers = append(suppliers, p.baseliner)
	}
	if opt.Outlier != nil {
		oopt := *opt.Outlier
		inheritAmbient(&oopt.Logger, &oopt.Metrics, opt)
		p.outliers = outlier.New(&oopt)
		primary = p.outliers
	}
	if opt.Cluster != nil {
		copt := *opt.Cluster
		inheritAmbient(&copt.Logger, &copt.Metrics, opt)
		p.clusterer = cluster.New(&copt)
		suppliers = append(suppliers, p.clusterer)
	}
	if opt.Changepoint != nil {
		cpopt := *opt.Changepoint
		inheritAmbient(&cpopt.Logger, &cpopt.Metrics, opt)
		p.changepoint = changepoint.New(&cpopt)
		suppliers = append(suppliers, p.changepoint)
	}
	p.compare = query.NewTimeCompare(opt.TimeCompare)
	suppliers = append(suppliers, p.compare)

	qopt := query.NewDefaultOptions()
	if opt.Query != nil {
		qopt = new(query.Options)
		*qopt = *opt.Query
	}
	inheritAmbient(&qopt.Logger, &qopt.Metrics, opt)

	runner, err := query.NewRunner(ds, qopt, primary, suppliers...)
	if err != nil {
		return nil, err
	}
	p.runner = runner
	return p, nil
}

func inheritAmbient(logger **slog.Logger, recorder **metrics.Recorder, opt *Options) {
	if *logger == nil {
		*logger = opt.Logger
	}
	if *recorder == nil {
		*recorder = opt.Metrics
	}
}

// Activate makes the panel rerun whenever an overlay changes state
func (p *Panel) Activate(ctx context.Context) {
	p.runner.Activate(ctx)
}

func (p *Panel) Deactivate() {
	p.runner.Deactivate()
}

// Run queries the time range and returns the merged panel data
func (p *Panel) Run(ctx context.Context, tr query.TimeRange) (query.PanelData, error) {
	return p.runner.Run(ctx, tr)
}

// Reprocess reruns the overlays over the last query results
func (p *Panel) Reprocess() (query.PanelData, error) {
	return p.runner.Reprocess()
}

// Data is the last merged panel data
func (p *Panel) Data() query.PanelData {
	return p.runner.Data()
}

func (p *Panel) Runner() *query.Runner {
	return p.runner
}

// Baseliner returns nil when the panel has no baseline overlay
func (p *Panel) Baseliner() *baseline.Baseliner {
	return p.baseliner
}

func (p *Panel) OutlierDetector() *outlier.Detector {
	return p.outliers
}

func (p *Panel) Clusterer() *cluster.Clusterer {
	return p.clusterer
}

func (p *Panel) ChangepointDetector() *changepoint.Detector {
	return p.changepoint
}

func (p *Panel) TimeCompare() *query.TimeCompare {
	return p.compare
}

type urlSyncer interface {
	URLValues() url.Values
	UpdateFromURL(url.Values)
}

func (p *Panel) urlSyncers() []urlSyncer {
	var res []urlSyncer
	if p.baseliner != nil {
		res = append(res, p.baseliner)
	}
	if p.outliers != nil {
		res = append(res, p.outliers)
	}
	if p.clusterer != nil {
		res = append(res, p.clusterer)
	}
	if p.changepoint != nil {
		res = append(res, p.changepoint)
	}
	return res
}

// URLValues merges the URL state of every overlay
func (p *Panel) URLValues() url.Values {
	values := url.Values{}
	for _, s := range p.urlSyncers() {
		maps.Copy(values, s.URLValues())
	}
	return values
}

// UpdateFromURL restores the state of every overlay from URL values
func (p *Panel) UpdateFromURL(values url.Values) {
	for _, s := range p.urlSyncers() {
		s.UpdateFromURL(values)
	}
}
