// Package query runs a primary data request together with the supplementary requests of the
// overlays in a panel and merges their processed results into one panel update.
package query

import (
	"context"
	"errors"
	"time"

	"github.com/grafana/grafana-plugin-sdk-go/data"
)

var (
	ErrNoDataSource = errors.New("no data source")
	ErrNoTimeRange  = errors.New("no time range has been run")
	ErrSuperseded   = errors.New("run superseded by a newer run")
	ErrInactive     = errors.New("runner is not active")
)

// TimeRange is an inclusive [From, To] display window
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

func (r TimeRange) Duration() time.Duration {
	return r.To.Sub(r.From)
}

// WithLookback extends the range back in time so that it spans factor times its duration,
// keeping the end fixed.
func (r TimeRange) WithLookback(factor float64) TimeRange {
	return TimeRange{
		From: r.To.Add(-time.Duration(factor * float64(r.Duration()))),
		To:   r.To,
	}
}

// Shift moves both ends of the range by d
func (r TimeRange) Shift(d time.Duration) TimeRange {
	return TimeRange{From: r.From.Add(d), To: r.To.Add(d)}
}

// LoadingState of a panel update
type LoadingState string

const (
	StateNotStarted LoadingState = "NotStarted"
	StateLoading    LoadingState = "Loading"
	StateDone       LoadingState = "Done"
	StateError      LoadingState = "Error"
)

// Target is a single query of a request
type Target struct {
	RefID string `json:"refId"`
	// Expr selects the series to return, interpreted by the data source
	Expr string `json:"expr"`
}

// Request is a data request issued to a data source
type Request struct {
	ID            string        `json:"requestId"`
	Range         TimeRange     `json:"range"`
	Interval      time.Duration `json:"interval"`
	MaxDataPoints int           `json:"maxDataPoints"`
	Targets       []Target      `json:"targets"`
}

// PanelData is the result of a request, or the merged result of a run
type PanelData struct {
	Request     Request       `json:"request"`
	TimeRange   TimeRange     `json:"timeRange"`
	State       LoadingState  `json:"state"`
	Series      []*data.Frame `json:"series"`
	Annotations []*data.Frame `json:"annotations,omitempty"`
	Errors      []error       `json:"-"`
}

// DataSource executes requests
type DataSource interface {
	Query(ctx context.Context, req Request) (PanelData, error)
}

// DataSourceFunc adapts a function into a DataSource
type DataSourceFunc func(ctx context.Context, req Request) (PanelData, error)

func (f DataSourceFunc) Query(ctx context.Context, req Request) (PanelData, error) {
	return f(ctx, req)
}

// ProcessorFunc transforms the result of a supplementary request. It receives the unprocessed
// primary result alongside its own result.
type ProcessorFunc func(primary, secondary PanelData) PanelData

// Supplementary is an extra request issued alongside the primary one
type Supplementary struct {
	Request   Request
	Processor ProcessorFunc
}

// Rerun describes the work required after a component's state changed
type Rerun struct {
	// Query reissues every request
	Query bool
	// Processor reprocesses the last unprocessed results
	Processor bool
}

func (r Rerun) ShouldRerun() bool {
	return r.Query || r.Processor
}

// Subscriber notifies of rerun decisions. The returned function cancels the subscription.
type Subscriber interface {
	Subscribe(fn func(Rerun)) (unsubscribe func())
}

// Supplier adds supplementary requests to a run
type Supplier interface {
	Subscriber
	SupplementaryRequests(primary Request) []Supplementary
}

// PrimaryProcessor transforms the primary result of a run
type PrimaryProcessor interface {
	Subscriber
	Process(primary PanelData) PanelData
}
