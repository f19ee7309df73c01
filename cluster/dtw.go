package cluster

import (
	"errors"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

const DefaultWindow = 10

var ErrNoSeries = errors.New("no series to compute distances for")

// DTW is a dynamic time warping distance with a Sakoe-Chiba band of Window samples and a
// euclidean point cost. Missing values cost nothing to match.
type DTW struct {
	Window int
}

func NewDTW() *DTW {
	return &DTW{Window: DefaultWindow}
}

// DistanceMatrix computes the pairwise distances between all series. Rows are computed
// concurrently.
func (d *DTW) DistanceMatrix(series [][]float64) (*mat.SymDense, error) {
	n := len(series)
	if n == 0 {
		return nil, ErrNoSeries
	}
	window := d.Window
	if window <= 0 {
		window = DefaultWindow
	}

	dist := mat.NewSymDense(n, nil)
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := 0; i < n; i++ {
		g.Go(func() error {
			for j := i + 1; j < n; j++ {
				v := Distance(series[i], series[j], window)
				if math.IsNaN(v) {
					return fmt.Errorf("distance between series %d and %d is NaN", i, j)
				}
				dist.SetSym(i, j, v)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return dist, nil
}

// Distance is the DTW distance between a and b. The window is widened to the difference in
// length of the two series so that a path always exists.
func Distance(a, b []float64, window int) float64 {
	n, m := len(a), len(b)
	if n == 0 || m == 0 {
		if n == m {
			return 0
		}
		return math.Inf(1)
	}
	window = max(window, abs(n-m))

	prev := make([]float64, m+1)
	curr := make([]float64, m+1)
	for j := range prev {
		prev[j] = math.Inf(1)
	}
	prev[0] = 0

	for i := 1; i <= n; i++ {
		for j := range curr {
			curr[j] = math.Inf(1)
		}
		lo, hi := max(1, i-window), min(m, i+window)
		for j := lo; j <= hi; j++ {
			c := cost(a[i-1], b[j-1])
			curr[j] = c + min(prev[j], curr[j-1], prev[j-1])
		}
		prev, curr = curr, prev
	}
	return math.Sqrt(prev[m])
}

func cost(x, y float64) float64 {
	if math.IsNaN(x) || math.IsNaN(y) {
		return 0
	}
	diff := x - y
	return diff * diff
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
