package query

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/aouyang1/go-scenesml/frame"
	"github.com/aouyang1/go-scenesml/timedataset"
	"github.com/grafana/grafana-plugin-sdk-go/data"
)

var ErrUnknownSeries = errors.New("unknown series")

// MemorySource is a DataSource over named in-memory datasets. A target with an empty expression
// selects every dataset.
type MemorySource struct {
	mu     sync.RWMutex
	series map[string]*timedataset.TimeDataset
}

func NewMemorySource() *MemorySource {
	return &MemorySource{series: make(map[string]*timedataset.TimeDataset)}
}

// Add registers or replaces a dataset under the name
func (m *MemorySource) Add(name string, td *timedataset.TimeDataset) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.series[name] = td.Copy()
}

// Names returns the registered dataset names in sorted order
func (m *MemorySource) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.series))
	for name := range m.series {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Query returns one frame per selected dataset restricted to the request range
func (m *MemorySource) Query(ctx context.Context, req Request) (PanelData, error) {
	if err := ctx.Err(); err != nil {
		return PanelData{}, err
	}

	names := m.Names()

	m.mu.RLock()
	defer m.mu.RUnlock()

	var frames []*data.Frame
	for _, target := range req.Targets {
		selected := names
		if target.Expr != "" {
			if _, exists := m.series[target.Expr]; !exists {
				return PanelData{}, fmt.Errorf("%q, %w", target.Expr, ErrUnknownSeries)
			}
			selected = []string{target.Expr}
		}
		for _, name := range selected {
			td := m.series[name].Slice(req.Range.From, req.Range.To)
			f := data.NewFrame(name,
				data.NewField("time", nil, td.T),
				data.NewField("value", nil, frame.NullableFloats(td.Y)),
			)
			f.RefID = target.RefID
			frames = append(frames, f)
		}
	}

	return PanelData{
		Request:   req,
		TimeRange: req.Range,
		State:     StateDone,
		Series:    frames,
	}, nil
}
