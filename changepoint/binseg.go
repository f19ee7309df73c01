package changepoint

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"
)

const (
	DefaultMinSegment      = 5
	DefaultMaxChangepoints = 10

	// scales a median absolute deviation into a standard deviation for normal data
	madScale = 1.4826
)

// BinarySegmentation detects shifts in the mean of a series by recursively splitting it where
// the reduction in squared error is largest. A split is kept when the reduction exceeds the
// penalty, which defaults to a BIC style 2*sigma^2*ln(n) with sigma estimated from the
// differences of the series.
type BinarySegmentation struct {
	MinSegment      int
	MaxChangepoints int
	Penalty         float64
}

func NewBinarySegmentation() *BinarySegmentation {
	return &BinarySegmentation{
		MinSegment:      DefaultMinSegment,
		MaxChangepoints: DefaultMaxChangepoints,
	}
}

// Detect returns the ascending indices of the last sample before each change. Missing values
// are filled with the previous observation.
func (b *BinarySegmentation) Detect(y []float64) ([]int, error) {
	minSeg := max(b.MinSegment, 1)
	filled, ok := fillMissing(y)
	if !ok || len(filled) < 2*minSeg {
		return []int{}, nil
	}

	n := len(filled)
	sum := make([]float64, n+1)
	sumSq := make([]float64, n+1)
	for i, v := range filled {
		sum[i+1] = sum[i] + v
		sumSq[i+1] = sumSq[i] + v*v
	}
	cost := func(from, to int) float64 {
		s := sum[to] - sum[from]
		return sumSq[to] - sumSq[from] - s*s/float64(to-from)
	}

	penalty := b.Penalty
	if penalty <= 0 {
		sigma := noiseStd(filled)
		penalty = 2 * sigma * sigma * math.Log(float64(n))
	}
	// guards against splitting on floating point noise of constant segments
	minGain := 1e-9 * (1 + cost(0, n))

	maxCp := b.MaxChangepoints
	if maxCp <= 0 {
		maxCp = DefaultMaxChangepoints
	}

	type segment struct{ from, to int }
	var splits []int
	pending := []segment{{0, n}}
	for len(pending) > 0 && len(splits) < maxCp {
		// split the segment with the largest gain first
		bestSeg, bestSplit, bestGain := -1, -1, 0.0
		for p, seg := range pending {
			total := cost(seg.from, seg.to)
			for k := seg.from + minSeg; k <= seg.to-minSeg; k++ {
				gain := total - cost(seg.from, k) - cost(k, seg.to)
				if gain > bestGain {
					bestSeg, bestSplit, bestGain = p, k, gain
				}
			}
		}
		if bestSeg < 0 || bestGain <= penalty || bestGain <= minGain {
			break
		}
		seg := pending[bestSeg]
		pending = slices.Delete(pending, bestSeg, bestSeg+1)
		pending = append(pending, segment{seg.from, bestSplit}, segment{bestSplit, seg.to})
		splits = append(splits, bestSplit-1)
	}
	slices.Sort(splits)
	if splits == nil {
		splits = []int{}
	}
	return splits, nil
}

func fillMissing(y []float64) ([]float64, bool) {
	first := slices.IndexFunc(y, func(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) })
	if first < 0 {
		return nil, false
	}
	filled := make([]float64, len(y))
	last := y[first]
	for i, v := range y {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			last = v
		}
		filled[i] = last
	}
	return filled, true
}

// noiseStd estimates the noise standard deviation from the median absolute deviation of the
// first differences, which is robust to the level shifts being detected
func noiseStd(y []float64) float64 {
	if len(y) < 3 {
		return 0
	}
	diffs := make([]float64, len(y)-1)
	for i := range diffs {
		diffs[i] = y[i+1] - y[i]
	}
	slices.Sort(diffs)
	med := stat.Quantile(0.5, stat.Empirical, diffs, nil)
	for i, d := range diffs {
		diffs[i] = math.Abs(d - med)
	}
	slices.Sort(diffs)
	return madScale * stat.Quantile(0.5, stat.Empirical, diffs, nil) / math.Sqrt2
}
