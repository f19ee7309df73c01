package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/aouyang1/go-scenesml/metrics"
	"github.com/google/uuid"
	"github.com/grafana/grafana-plugin-sdk-go/data"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultMaxDataPoints = 1000
	DefaultMinInterval   = time.Second
)

var ErrNoResults = errors.New("no results to reprocess")

// Options configures a runner
type Options struct {
	Targets []Target `json:"targets"`
	// MinInterval is the lower limit of the request interval
	MinInterval   time.Duration `json:"min_interval"`
	MaxDataPoints int           `json:"max_data_points"`

	Logger  *slog.Logger      `json:"-"`
	Metrics *metrics.Recorder `json:"-"`
	// OnData receives every merged panel update. It is called with the runner's lock held and
	// must not call back into the runner.
	OnData func(PanelData) `json:"-"`
}

func NewDefaultOptions() *Options {
	return &Options{
		Targets:       []Target{{RefID: "A"}},
		MinInterval:   DefaultMinInterval,
		MaxDataPoints: DefaultMaxDataPoints,
	}
}

type runResults struct {
	primary     PanelData
	secondaries []PanelData
	processors  map[string]ProcessorFunc
}

// Runner executes the primary request of a panel concurrently with the supplementary requests
// of its suppliers and merges the processed results. Starting a run cancels the previous one and
// results of a superseded run are never applied.
type Runner struct {
	ds        DataSource
	opt       *Options
	logger    *slog.Logger
	primary   PrimaryProcessor
	suppliers []Supplier

	mu        sync.Mutex
	baseCtx   context.Context
	active    bool
	unsubs    []func()
	gen       uint64
	cancel    context.CancelFunc
	timeRange *TimeRange
	results   *runResults
	data      PanelData
}

// NewRunner creates a runner over the data source. The primary processor may be nil.
func NewRunner(ds DataSource, opt *Options, primary PrimaryProcessor, suppliers ...Supplier) (*Runner, error) {
	if ds == nil {
		return nil, ErrNoDataSource
	}
	if opt == nil {
		opt = NewDefaultOptions()
	}
	logger := opt.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		ds:        ds,
		opt:       opt,
		logger:    logger,
		primary:   primary,
		suppliers: slices.Clone(suppliers),
		baseCtx:   context.Background(),
		data:      PanelData{State: StateNotStarted},
	}, nil
}

// Activate subscribes to the rerun decisions of the primary processor and every supplier.
// Reruns triggered by a state change use ctx.
func (r *Runner) Activate(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active {
		return
	}
	r.active = true
	r.baseCtx = ctx

	if r.primary != nil {
		r.unsubs = append(r.unsubs, r.primary.Subscribe(r.onRerun))
	}
	for _, s := range r.suppliers {
		r.unsubs = append(r.unsubs, s.Subscribe(r.onRerun))
	}
}

// Deactivate cancels in-flight work and unsubscribes from all components
func (r *Runner) Deactivate() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.active = false
	r.gen++
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	for _, unsub := range r.unsubs {
		unsub()
	}
	r.unsubs = nil
}

func (r *Runner) onRerun(rr Rerun) {
	switch {
	case rr.Query:
		r.mu.Lock()
		active, ctx, tr := r.active, r.baseCtx, r.timeRange
		r.mu.Unlock()
		if !active || tr == nil {
			return
		}
		if _, err := r.Run(ctx, *tr); err != nil && !errors.Is(err, ErrSuperseded) {
			r.logger.Warn("unable to rerun queries", "error", err.Error())
		}
	case rr.Processor:
		if _, err := r.Reprocess(); err != nil && !errors.Is(err, ErrNoResults) {
			r.logger.Warn("unable to rerun processors", "error", err.Error())
		}
	}
}

// Run issues the primary and supplementary requests for the time range and returns the merged
// result. A failed primary request produces an error state. Failed supplementary requests are
// logged and left out of the merge.
func (r *Runner) Run(ctx context.Context, tr TimeRange) (PanelData, error) {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	r.gen++
	gen := r.gen
	r.cancel = cancel
	r.timeRange = &tr
	r.mu.Unlock()

	start := time.Now()
	primaryReq := r.primaryRequest(tr)
	supplementary := r.supplementaryRequests(primaryReq)

	var primary PanelData
	secondaries := make([]*PanelData, len(supplementary))

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		res, err := r.ds.Query(gctx, primaryReq)
		if err != nil {
			return fmt.Errorf("primary request %s, %w", primaryReq.ID, err)
		}
		primary = withRequest(res, primaryReq)
		return nil
	})
	for i, s := range supplementary {
		g.Go(func() error {
			res, err := r.ds.Query(gctx, s.Request)
			if err != nil {
				r.logger.Warn("dropping failed supplementary request", "request_id", s.Request.ID, "error", err.Error())
				return nil
			}
			res = withRequest(res, s.Request)
			secondaries[i] = &res
			return nil
		})
	}
	err := g.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()

	if gen != r.gen {
		r.opt.Metrics.RecordRun(metrics.OutcomeSuperseded)
		return PanelData{}, ErrSuperseded
	}
	r.cancel = nil
	r.opt.Metrics.RecordLatency("runner", time.Since(start))

	if err != nil {
		r.results = nil
		r.data = PanelData{
			Request:   primaryReq,
			TimeRange: tr,
			State:     StateError,
			Errors:    []error{err},
		}
		r.opt.Metrics.RecordRun(metrics.OutcomeError)
		r.deliver()
		return r.data, err
	}

	results := &runResults{
		primary:    primary,
		processors: make(map[string]ProcessorFunc, len(supplementary)),
	}
	for i, s := range supplementary {
		results.processors[s.Request.ID] = s.Processor
		if secondaries[i] != nil {
			results.secondaries = append(results.secondaries, *secondaries[i])
		}
	}
	r.results = results
	r.data = r.process()
	r.opt.Metrics.RecordRun(metrics.OutcomeDone)
	r.deliver()
	return r.data, nil
}

// Reprocess runs the processors again over the last unprocessed results without issuing any
// request.
func (r *Runner) Reprocess() (PanelData, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.results == nil {
		return PanelData{}, ErrNoResults
	}
	r.data = r.process()
	r.deliver()
	return r.data, nil
}

// Data returns the last merged panel update
func (r *Runner) Data() PanelData {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.data
}

func (r *Runner) deliver() {
	if r.opt.OnData != nil {
		r.opt.OnData(r.data)
	}
}

func (r *Runner) primaryRequest(tr TimeRange) Request {
	interval := r.opt.MinInterval
	if r.opt.MaxDataPoints > 0 {
		if d := tr.Duration() / time.Duration(r.opt.MaxDataPoints); d > interval {
			interval = d
		}
	}
	return Request{
		ID:            uuid.NewString(),
		Range:         tr,
		Interval:      interval,
		MaxDataPoints: r.opt.MaxDataPoints,
		Targets:       slices.Clone(r.opt.Targets),
	}
}

func (r *Runner) supplementaryRequests(primary Request) []Supplementary {
	var res []Supplementary
	for _, s := range r.suppliers {
		for _, supp := range s.SupplementaryRequests(primary) {
			supp.Request.ID = uuid.NewString()
			if supp.Processor == nil {
				supp.Processor = func(_, secondary PanelData) PanelData { return secondary }
			}
			res = append(res, supp)
		}
	}
	return res
}

// process merges the processed primary series with the processed supplementary series.
// Callers must hold the lock.
func (r *Runner) process() PanelData {
	primary := r.results.primary

	processed := primary
	if r.primary != nil {
		if p, ok := r.safeProcess("primary", func() PanelData { return r.primary.Process(primary) }); ok {
			processed = p
		}
	}

	out := processed
	out.Series = slices.Clone(processed.Series)
	out.Annotations = slices.Clone(processed.Annotations)
	for _, secondary := range r.results.secondaries {
		proc := r.results.processors[secondary.Request.ID]
		p, ok := r.safeProcess(secondary.Request.ID, func() PanelData { return proc(primary, secondary) })
		if !ok {
			continue
		}
		out.Series = append(out.Series, p.Series...)
		out.Annotations = append(out.Annotations, p.Annotations...)
	}
	if out.State == "" {
		out.State = StateDone
	}
	return out
}

func (r *Runner) safeProcess(id string, fn func() PanelData) (res PanelData, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("processor panicked, dropping its result", "request_id", id, "panic", fmt.Sprint(rec))
			ok = false
		}
	}()
	return fn(), true
}

func withRequest(pd PanelData, req Request) PanelData {
	pd.Request = req
	if pd.TimeRange == (TimeRange{}) {
		pd.TimeRange = req.Range
	}
	if pd.State == "" {
		pd.State = StateDone
	}
	if pd.Series == nil {
		pd.Series = []*data.Frame{}
	}
	return pd
}
