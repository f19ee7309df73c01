package cluster

import (
	"errors"
	"fmt"

	"github.com/aouyang1/go-scenesml/ml"
	"gonum.org/v1/gonum/mat"
)

var (
	ErrInvalidEpsilon        = errors.New("epsilon must be positive")
	ErrInvalidMinClusterSize = errors.New("minimum cluster size must be at least 1")
)

const unvisited = -2

// DBSCAN clusters series over a precomputed distance matrix. A series is a core point when at
// least MinClusterSize series, itself included, are within Epsilon of it. Labels are assigned
// in order of discovery starting from 0.
type DBSCAN struct{}

func NewDBSCAN() *DBSCAN {
	return &DBSCAN{}
}

func (c *DBSCAN) Cluster(dist mat.Symmetric, opt ml.ClusterOptions) ([]int, error) {
	if opt.Epsilon <= 0 {
		return nil, fmt.Errorf("got %f, %w", opt.Epsilon, ErrInvalidEpsilon)
	}
	if opt.MinClusterSize < 1 {
		return nil, fmt.Errorf("got %d, %w", opt.MinClusterSize, ErrInvalidMinClusterSize)
	}

	n := dist.SymmetricDim()
	labels := make([]int, n)
	for i := range labels {
		labels[i] = unvisited
	}

	neighbors := func(i int) []int {
		var res []int
		for j := 0; j < n; j++ {
			if dist.At(i, j) <= opt.Epsilon {
				res = append(res, j)
			}
		}
		return res
	}

	label := 0
	for i := 0; i < n; i++ {
		if labels[i] != unvisited {
			continue
		}
		seeds := neighbors(i)
		if len(seeds) < opt.MinClusterSize {
			labels[i] = ml.Noise
			continue
		}
		labels[i] = label
		for k := 0; k < len(seeds); k++ {
			j := seeds[k]
			if labels[j] == ml.Noise {
				// border point
				labels[j] = label
			}
			if labels[j] != unvisited {
				continue
			}
			labels[j] = label
			if nb := neighbors(j); len(nb) >= opt.MinClusterSize {
				seeds = append(seeds, nb...)
			}
		}
		label++
	}
	return labels, nil
}
