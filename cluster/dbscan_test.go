package cluster

import (
	"testing"

	"github.com/aouyang1/go-scenesml/ml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// positions on a line as a distance matrix
func lineDistances(pos ...float64) *mat.SymDense {
	dist := mat.NewSymDense(len(pos), nil)
	for i := range pos {
		for j := i + 1; j < len(pos); j++ {
			d := pos[i] - pos[j]
			if d < 0 {
				d = -d
			}
			dist.SetSym(i, j, d)
		}
	}
	return dist
}

func TestDBSCANCluster(t *testing.T) {
	testData := map[string]struct {
		dist     *mat.SymDense
		opt      ml.ClusterOptions
		expected []int
	}{
		"two clusters and noise": {
			dist:     lineDistances(0, 0.5, 1, 10, 10.5, 11, 50),
			opt:      ml.ClusterOptions{Epsilon: 1, MinClusterSize: 3},
			expected: []int{0, 0, 0, 1, 1, 1, ml.Noise},
		},
		"chain through core points": {
			dist:     lineDistances(0, 1, 2, 3, 4),
			opt:      ml.ClusterOptions{Epsilon: 1, MinClusterSize: 3},
			expected: []int{0, 0, 0, 0, 0},
		},
		"border point joins after being marked noise": {
			dist:     lineDistances(0, 1, 1.5, 2),
			opt:      ml.ClusterOptions{Epsilon: 1, MinClusterSize: 3},
			expected: []int{0, 0, 0, 0},
		},
		"all noise": {
			dist:     lineDistances(0, 10, 20),
			opt:      ml.ClusterOptions{Epsilon: 1, MinClusterSize: 2},
			expected: []int{ml.Noise, ml.Noise, ml.Noise},
		},
		"min cluster size of one": {
			dist:     lineDistances(0, 10),
			opt:      ml.ClusterOptions{Epsilon: 1, MinClusterSize: 1},
			expected: []int{0, 1},
		},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			labels, err := NewDBSCAN().Cluster(td.dist, td.opt)
			require.Nil(t, err)
			assert.Equal(t, td.expected, labels)
		})
	}
}

func TestDBSCANClusterErrors(t *testing.T) {
	dist := lineDistances(0, 1)
	_, err := NewDBSCAN().Cluster(dist, ml.ClusterOptions{Epsilon: 0, MinClusterSize: 1})
	assert.ErrorIs(t, err, ErrInvalidEpsilon)

	_, err = NewDBSCAN().Cluster(dist, ml.ClusterOptions{Epsilon: 1, MinClusterSize: 0})
	assert.ErrorIs(t, err, ErrInvalidMinClusterSize)
}
