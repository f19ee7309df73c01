package scenesml

import (
	"context"
	"errors"
	"math/rand/v2"
	"net/url"
	"testing"
	"time"

	"github.com/aouyang1/go-scenesml/baseline"
	"github.com/aouyang1/go-scenesml/changepoint"
	"github.com/aouyang1/go-scenesml/cluster"
	"github.com/aouyang1/go-scenesml/config"
	"github.com/aouyang1/go-scenesml/frame"
	"github.com/aouyang1/go-scenesml/metrics"
	"github.com/aouyang1/go-scenesml/outlier"
	"github.com/aouyang1/go-scenesml/query"
	"github.com/aouyang1/go-scenesml/timedataset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var testEnd = time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)

func testSource(t testing.TB, names ...string) *query.MemorySource {
	t.Helper()
	n := 8 * 60
	ts := timedataset.GenerateT(n, time.Minute, func() time.Time { return testEnd })

	rng := rand.New(rand.NewPCG(1, 2))
	src := query.NewMemorySource()
	for i, name := range names {
		y := timedataset.GenerateConstY(n, 10*float64(i+1)).
			Add(timedataset.GenerateWaveY(ts, 5, 3600, 1, 0)).
			Add(timedataset.GenerateNoise(rng, ts, 0.1, 0, 3600, 1, 0))
		td, err := timedataset.NewUnivariateDataset(ts, y)
		require.Nil(t, err)
		src.Add(name, td)
	}
	return src
}

func displayRange() query.TimeRange {
	return query.TimeRange{From: testEnd.Add(-time.Hour), To: testEnd}
}

func TestNew(t *testing.T) {
	_, err := New(nil, nil)
	assert.ErrorIs(t, err, query.ErrNoDataSource)

	_, err = New(query.NewMemorySource(), &Options{})
	assert.ErrorIs(t, err, ErrNoOverlays)

	p, err := New(query.NewMemorySource(), nil)
	require.Nil(t, err)
	assert.NotNil(t, p.Baseliner())
	assert.Nil(t, p.OutlierDetector())
	assert.Nil(t, p.Clusterer())
	assert.Nil(t, p.ChangepointDetector())
	assert.NotNil(t, p.TimeCompare())
	assert.NotNil(t, p.Runner())
}

func TestRunBaseline(t *testing.T) {
	var anomalies int
	opt := NewDefaultOptions()
	opt.Metrics = metrics.New()
	opt.Baseline.OnAnomalyDetected = func(baseline.Anomaly) {
		anomalies++
	}

	p, err := New(testSource(t, "cpu"), opt)
	require.Nil(t, err)

	res, err := p.Run(context.Background(), displayRange())
	require.Nil(t, err)
	assert.Equal(t, query.StateDone, res.State)
	require.Len(t, res.Series, 2)
	assert.Equal(t, "A", res.Series[0].RefID)
	assert.Equal(t, "A"+baseline.RefIDSuffix, res.Series[1].RefID)
	// roughly 5% of the displayed hour falls outside a 95% interval
	assert.Less(t, anomalies, 30)
	assert.Equal(t, res, p.Data())
}

func TestRunAllOverlays(t *testing.T) {
	c := config.Default()
	c.Outlier.Enabled = true
	c.Cluster.Enabled = true
	c.Changepoint.Enabled = true

	opt, err := NewOptionsFromConfig(c, nil, metrics.New())
	require.Nil(t, err)
	opt.TimeCompare = 24 * time.Hour

	p, err := New(testSource(t, "a", "b", "c"), opt)
	require.Nil(t, err)

	res, err := p.Run(context.Background(), displayRange())
	require.Nil(t, err)
	assert.Equal(t, query.StateDone, res.State)

	var refIDs []string
	for _, f := range res.Series {
		refIDs = append(refIDs, f.RefID)
	}
	// primary series are hidden in favour of the recolored outlier output
	assert.NotContains(t, refIDs, "A")
	assert.Contains(t, refIDs, "A"+baseline.RefIDSuffix)

	annotationFrames := 0
	for _, ann := range res.Annotations {
		if frame.IsAnnotations(ann) {
			annotationFrames++
		}
	}
	// outlier regions plus one changepoint frame per series
	assert.Equal(t, 4, annotationFrames)
}

func TestRunOutliersWithFailingSupplementary(t *testing.T) {
	src := testSource(t, "a", "b", "c")
	failing := query.DataSourceFunc(func(ctx context.Context, req query.Request) (query.PanelData, error) {
		if len(req.Targets) == 0 {
			return query.PanelData{}, errors.New("request without targets")
		}
		return src.Query(ctx, req)
	})

	p, err := New(failing, &Options{
		Outlier: outlier.NewDefaultOptions(),
		Cluster: cluster.NewDefaultOptions(),
	})
	require.Nil(t, err)

	res, err := p.Run(context.Background(), displayRange())
	require.Nil(t, err)
	assert.Equal(t, query.StateDone, res.State)

	// the failed cluster request only drops the cluster bands
	require.Len(t, res.Series, 1)
	fields := res.Series[0].Fields
	require.Len(t, fields, 6)
	for _, field := range fields[1:4] {
		require.NotNil(t, field.Config)
		assert.NotNil(t, field.Config.Color)
	}
	assert.Equal(t, "clusterMin", fields[4].Name)
	assert.Equal(t, "clusterMax", fields[5].Name)
}

func TestActivateReprocesses(t *testing.T) {
	opt := NewDefaultOptions()
	opt.Outlier = outlier.NewDefaultOptions()

	var updates int
	opt.Query.OnData = func(query.PanelData) {
		updates++
	}
	p, err := New(testSource(t, "a", "b", "c"), opt)
	require.Nil(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Activate(ctx)
	defer p.Deactivate()

	_, err = p.Run(ctx, displayRange())
	require.Nil(t, err)
	assert.Equal(t, 1, updates)

	p.OutlierDetector().SetSensitivity(0.9)
	assert.Equal(t, 2, updates)

	p.Baseliner().SetInterval(0.8)
	assert.Equal(t, 3, updates)
}

func TestURLState(t *testing.T) {
	opt := NewDefaultOptions()
	opt.Outlier = outlier.NewDefaultOptions()
	opt.Cluster = cluster.NewDefaultOptions()
	opt.Changepoint = changepoint.NewDefaultOptions()
	p, err := New(query.NewMemorySource(), opt)
	require.Nil(t, err)

	values := p.URLValues()
	assert.Equal(t, "0.95", values.Get(baseline.URLKeyInterval))
	assert.Equal(t, "0.5", values.Get(outlier.URLKeySensitivity))
	assert.Equal(t, "0.8", values.Get(cluster.URLKeyEpsilon))
	assert.Equal(t, "false", values.Get(changepoint.URLKeyEnabled))

	p.UpdateFromURL(url.Values{
		baseline.URLKeyInterval:      {"0.9"},
		cluster.URLKeyEpsilon:        {"0.3"},
		changepoint.URLKeyEnabled:    {"true"},
		outlier.URLKeySensitivity:    {"0.2"},
		outlier.URLKeyAddAnnotations: {"false"},
	})
	assert.Equal(t, 0.9, p.Baseliner().State().Interval)
	assert.Equal(t, 0.3, p.Clusterer().State().Epsilon)
	assert.True(t, p.ChangepointDetector().State().Enabled)
	assert.Equal(t, outlier.State{Sensitivity: 0.2}, p.OutlierDetector().State())
}
