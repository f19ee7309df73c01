package query

import (
	"sync"
	"time"

	"github.com/aouyang1/go-scenesml/frame"
	"github.com/grafana/grafana-plugin-sdk-go/data"
)

// TimeCompare adds a request for the same targets shifted back in time so the previous period
// can be drawn over the current one.
type TimeCompare struct {
	Notifier

	mu          sync.Mutex
	compareWith time.Duration
}

func NewTimeCompare(compareWith time.Duration) *TimeCompare {
	return &TimeCompare{compareWith: compareWith}
}

func (c *TimeCompare) CompareWith() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.compareWith
}

// SetCompareWith changes the shift. A non-positive shift disables the comparison.
func (c *TimeCompare) SetCompareWith(d time.Duration) {
	c.mu.Lock()
	changed := c.compareWith != d
	c.compareWith = d
	c.mu.Unlock()

	c.Notify(Rerun{Query: changed})
}

func (c *TimeCompare) SupplementaryRequests(primary Request) []Supplementary {
	d := c.CompareWith()
	if d <= 0 || len(primary.Targets) == 0 {
		return nil
	}
	req := primary
	req.Range = primary.Range.Shift(-d)
	req.Targets = append([]Target{}, primary.Targets...)
	return []Supplementary{{Request: req, Processor: timeShiftProcessor(d)}}
}

// timeShiftProcessor moves the comparison series forward onto the primary time range
func timeShiftProcessor(d time.Duration) ProcessorFunc {
	return func(_, secondary PanelData) PanelData {
		out := secondary
		out.Series = make([]*data.Frame, 0, len(secondary.Series))
		for _, f := range secondary.Series {
			tIdx, ok := frame.FindTimeField(f)
			if !ok {
				continue
			}
			times, err := frame.Times(f.Fields[tIdx])
			if err != nil {
				continue
			}
			for i := range times {
				times[i] = times[i].Add(d)
			}

			shifted := data.NewFrame(f.Name)
			shifted.RefID = f.RefID + "-compare"
			for i, field := range f.Fields {
				if i == tIdx {
					shifted.Fields = append(shifted.Fields, data.NewField(field.Name, field.Labels, times))
					continue
				}
				shifted.Fields = append(shifted.Fields, field)
			}
			shifted.Meta = &data.FrameMeta{Custom: map[string]interface{}{
				"timeCompare": map[string]interface{}{
					"diffMs":           d.Milliseconds(),
					"isTimeShiftQuery": true,
				},
			}}
			out.Series = append(out.Series, shifted)
		}
		out.TimeRange = secondary.TimeRange.Shift(d)
		return out
	}
}
