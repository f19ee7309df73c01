package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aouyang1/go-scenesml/forecast"
	"github.com/aouyang1/go-scenesml/query"
	"github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/us"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	c := Default()
	require.Nil(t, c.Validate())

	assert.Equal(t, "info", c.Log.Level)
	assert.Equal(t, []string{"A"}, c.Query.RefIDs)
	assert.Equal(t, time.Second, c.Query.MinInterval)
	assert.Equal(t, 1000, c.Query.MaxDataPoints)
	assert.True(t, c.Baseline.Enabled)
	assert.Equal(t, 0.95, c.Baseline.Interval)
	assert.Equal(t, 4.0, c.Baseline.TrainingLookbackFactor)
	assert.Equal(t, string(forecast.ModelHarmonic), c.Baseline.Model)
	assert.Equal(t, 3, c.Forecast.Orders)
	assert.False(t, c.Outlier.Enabled)
	assert.Equal(t, 0.5, c.Outlier.Sensitivity)
	assert.True(t, c.Outlier.AddAnnotations)
	assert.Equal(t, 0.8, c.Cluster.Epsilon)
	assert.Equal(t, 10, c.Cluster.DTWWindow)
	assert.Equal(t, 4.0, c.Changepoint.LookbackFactor)
}

func TestParse(t *testing.T) {
	testData := map[string]struct {
		yaml  string
		check func(t *testing.T, c *Config)
		err   bool
	}{
		"empty uses defaults": {
			yaml: "",
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, Default(), c)
			},
		},
		"explicit false overrides a true default": {
			yaml: "baseline:\n  enabled: false\noutlier:\n  add_annotations: false\n",
			check: func(t *testing.T, c *Config) {
				assert.False(t, c.Baseline.Enabled)
				assert.False(t, c.Outlier.AddAnnotations)
				assert.Equal(t, 0.95, c.Baseline.Interval)
			},
		},
		"sections": {
			yaml: `
query:
  ref_ids: [A, B]
  min_interval: 1m
baseline:
  interval: 0.8
  training_lookback_factor: 10
  extra_seasonalities: [12h]
forecast:
  holidays: [christmas_day, thanksgiving_day]
  holiday_dur_after: 24h
outlier:
  enabled: true
  sensitivity: 0.7
changepoint:
  enabled: true
  lookback_factor: 1
`,
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, []string{"A", "B"}, c.Query.RefIDs)
				assert.Equal(t, time.Minute, c.Query.MinInterval)
				assert.Equal(t, 0.8, c.Baseline.Interval)
				assert.Equal(t, 10.0, c.Baseline.TrainingLookbackFactor)
				assert.Equal(t, []time.Duration{12 * time.Hour}, c.Baseline.ExtraSeasonalities)
				assert.Equal(t, []string{"christmas_day", "thanksgiving_day"}, c.Forecast.Holidays)
				assert.True(t, c.Outlier.Enabled)
				assert.Equal(t, 1.0, c.Changepoint.LookbackFactor)
			},
		},
		"invalid yaml": {
			yaml: "baseline: [",
			err:  true,
		},
		"interval out of range": {
			yaml: "baseline:\n  interval: 1.5\n",
			err:  true,
		},
		"unsupported lookback": {
			yaml: "changepoint:\n  lookback_factor: 3\n",
			err:  true,
		},
		"unknown holiday": {
			yaml: "forecast:\n  holidays: [festivus]\n",
			err:  true,
		},
		"negative lambda": {
			yaml: "forecast:\n  lambda: -1\n",
			err:  true,
		},
		"unknown log format": {
			yaml: "log:\n  format: xml\n",
			err:  true,
		},
		"event ending before start": {
			yaml: "forecast:\n  events:\n    - name: outage\n      start: 2024-01-02T00:00:00Z\n      end: 2024-01-01T00:00:00Z\n",
			err:  true,
		},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			c, err := Parse([]byte(td.yaml))
			if td.err {
				assert.NotNil(t, err)
				return
			}
			require.Nil(t, err)
			td.check(t, c)
		})
	}
}

func TestLoad(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.NotNil(t, err)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.Nil(t, os.WriteFile(path, []byte("cluster:\n  enabled: true\n  epsilon: 0.3\n"), 0o644))
	c, err := Load(path)
	require.Nil(t, err)

	opt := c.Cluster.Options()
	assert.Equal(t, 0.3, opt.State.Epsilon)
	assert.Equal(t, 3, opt.MinClusterSize)
}

func TestOptions(t *testing.T) {
	c := Default()
	c.Forecast.Holidays = []string{"christmas_day"}
	c.Forecast.Lambda = 0.5
	c.Forecast.Events = []Event{{
		Name:  "outage",
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	}}

	bopt, err := c.BaselineOptions()
	require.Nil(t, err)
	assert.Equal(t, 0.95, bopt.State.Interval)
	_, err = bopt.Backends.Get(forecast.ModelHarmonic)
	assert.Nil(t, err)

	fopt, err := c.Forecast.Options()
	require.Nil(t, err)
	assert.Equal(t, []*cal.Holiday{us.ChristmasDay}, fopt.Holidays)
	require.Len(t, fopt.Events, 1)
	assert.Nil(t, fopt.Events[0].Valid())
	assert.Equal(t, 0.5, fopt.Lambda)

	c.Baseline.Enabled = false
	bopt, err = c.BaselineOptions()
	require.Nil(t, err)
	assert.False(t, bopt.State.Enabled())

	c.Forecast.Holidays = []string{"festivus"}
	_, err = c.BaselineOptions()
	assert.ErrorIs(t, err, ErrUnknownHoliday)

	assert.False(t, c.Outlier.Options().State.Enabled())
	assert.True(t, c.Outlier.Options().State.AddAnnotations)
	assert.False(t, c.Cluster.Options().State.Enabled())
	assert.False(t, c.Changepoint.Options().State.Enabled)

	ropt := c.Query.RunnerOptions()
	assert.Equal(t, []query.Target{{RefID: "A"}}, ropt.Targets)
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	Log{Level: "warn", Format: "json"}.Logger(&buf).Info("hidden")
	assert.Empty(t, buf.String())

	Log{Level: "debug", Format: "json"}.Logger(&buf).Debug("shown", "key", 1)
	assert.Contains(t, buf.String(), `"msg":"shown"`)
}
