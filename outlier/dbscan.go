package outlier

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/aouyang1/go-scenesml/ml"
)

var (
	ErrNoSeries           = errors.New("no series to detect outliers in")
	ErrSeriesLenMismatch  = errors.New("series have different lengths")
	ErrInvalidSensitivity = errors.New("sensitivity must be in (0, 1)")
)

// DBSCANDetector flags series which leave the main cluster of series. At each timestamp the
// values are clustered with a one dimensional DBSCAN whose epsilon shrinks as the sensitivity
// grows; the main cluster is the one holding a majority of the series.
type DBSCANDetector struct{}

func NewDBSCANDetector() *DBSCANDetector {
	return &DBSCANDetector{}
}

func (d *DBSCANDetector) Preprocess(series [][]float64) (ml.LoadedOutlierDetector, error) {
	if len(series) == 0 {
		return nil, ErrNoSeries
	}
	n := len(series[0])
	lo, hi := math.Inf(1), math.Inf(-1)
	for i, s := range series {
		if len(s) != n {
			return nil, fmt.Errorf("series %d has %d values, expected %d, %w", i, len(s), n, ErrSeriesLenMismatch)
		}
		for _, v := range s {
			if math.IsNaN(v) {
				continue
			}
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	spread := 0.0
	if hi > lo {
		spread = hi - lo
	}

	loaded := &loadedDBSCAN{series: series, n: n, spread: spread}
	if err := loaded.UpdateDetector(ml.OutlierOptions{Sensitivity: DefaultSensitivity}); err != nil {
		return nil, err
	}
	return loaded, nil
}

type loadedDBSCAN struct {
	series [][]float64
	n      int
	spread float64
	eps    float64
}

func (l *loadedDBSCAN) UpdateDetector(opt ml.OutlierOptions) error {
	if opt.Sensitivity <= 0 || opt.Sensitivity >= 1 {
		return fmt.Errorf("got %f, %w", opt.Sensitivity, ErrInvalidSensitivity)
	}
	l.eps = l.spread * (1 - opt.Sensitivity) / 2
	return nil
}

type point struct {
	series int
	value  float64
}

func (l *loadedDBSCAN) Detect() (ml.OutlierOutput, error) {
	out := ml.OutlierOutput{
		OutlyingSeries: []int{},
		ClusterBand: ml.Band{
			Min: make([]float64, l.n),
			Max: make([]float64, l.n),
		},
		SeriesResults: make([]ml.SeriesResult, len(l.series)),
	}

	outlying := make([][]bool, len(l.series))
	for i := range outlying {
		outlying[i] = make([]bool, l.n)
	}

	points := make([]point, 0, len(l.series))
	for ts := 0; ts < l.n; ts++ {
		points = points[:0]
		for s, values := range l.series {
			if !math.IsNaN(values[ts]) {
				points = append(points, point{series: s, value: values[ts]})
			}
		}
		if len(points) == 0 {
			out.ClusterBand.Min[ts] = math.NaN()
			out.ClusterBand.Max[ts] = math.NaN()
			continue
		}
		sort.Slice(points, func(i, j int) bool {
			return points[i].value < points[j].value
		})

		start, end := mainCluster(points, l.eps)
		if 2*(end-start) <= len(points) {
			// no majority, nothing stands out
			start, end = 0, len(points)
		}
		out.ClusterBand.Min[ts] = points[start].value
		out.ClusterBand.Max[ts] = points[end-1].value
		for i, p := range points {
			if i < start || i >= end {
				outlying[p.series][ts] = true
			}
		}
	}

	for s, flags := range outlying {
		intervals := toIntervals(flags)
		out.SeriesResults[s] = ml.SeriesResult{OutlierIntervals: intervals}
		if len(intervals) > 0 {
			out.OutlyingSeries = append(out.OutlyingSeries, s)
		}
	}
	return out, nil
}

// mainCluster returns the half open range of the largest chain of sorted points whose
// consecutive gaps are at most eps
func mainCluster(points []point, eps float64) (int, int) {
	bestStart, bestEnd := 0, 1
	start := 0
	for i := 1; i <= len(points); i++ {
		if i < len(points) && points[i].value-points[i-1].value <= eps {
			continue
		}
		if i-start > bestEnd-bestStart {
			bestStart, bestEnd = start, i
		}
		start = i
	}
	return bestStart, bestEnd
}

func toIntervals(flags []bool) []ml.OutlierInterval {
	intervals := []ml.OutlierInterval{}
	for i := 0; i < len(flags); i++ {
		if !flags[i] {
			continue
		}
		start := i
		for i < len(flags) && flags[i] {
			i++
		}
		iv := ml.OutlierInterval{Start: start}
		if i < len(flags) {
			end := i
			iv.End = &end
		}
		intervals = append(intervals, iv)
	}
	return intervals
}
