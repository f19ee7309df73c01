package main

import (
	"bufio"
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.Nil(t, os.WriteFile(path, []byte("log:\n  level: error\n"), 0o644))
	return path
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	require.Nil(t, err)
	assert.Equal(t, "dev\n", out)
}

func TestReadSeries(t *testing.T) {
	in := `[{"name":"cpu","t":[0,60000,120000],"y":[1.5,null,3]}]`
	series, err := readSeries(strings.NewReader(in))
	require.Nil(t, err)
	require.Len(t, series, 1)

	td, err := series[0].dataset()
	require.Nil(t, err)
	assert.Equal(t, 3, td.Len())
	assert.Equal(t, time.UnixMilli(60000).UTC(), td.T[1].UTC())
	assert.Equal(t, 1.5, td.Y[0])
	assert.True(t, math.IsNaN(td.Y[1]))

	_, err = readSeries(strings.NewReader(`{"name":1}`))
	assert.NotNil(t, err)
}

func TestSimulate(t *testing.T) {
	now := func() time.Time { return time.Date(2024, 3, 1, 12, 0, 30, 0, time.UTC) }
	series := simulate(2, 1, 7, now)
	require.Len(t, series, 2)
	for i, s := range series {
		assert.Len(t, s.T, 24*60, "series %d", i)
		assert.Len(t, s.Y, 24*60, "series %d", i)
	}
	assert.Equal(t, "series_1", series[1].Name)
	assert.Equal(t, time.Date(2024, 3, 1, 11, 59, 0, 0, time.UTC).UnixMilli(), series[0].T[len(series[0].T)-1])
	assert.Empty(t, cmp.Diff(series[0].T, series[1].T))

	again := simulate(2, 1, 7, now)
	assert.Empty(t, cmp.Diff(series, again), "simulation is deterministic for a seed")
}

func TestNewSource(t *testing.T) {
	one, two := 1.0, 2.0
	src, end, err := newSource([]inputSeries{
		{Name: "a", T: []int64{0, 60000}, Y: []*float64{&one, &two}},
		{Name: "b", T: []int64{0, 60000, 120000}, Y: []*float64{&one, &two, nil}},
	})
	require.Nil(t, err)
	assert.Equal(t, []string{"a", "b"}, src.Names())
	assert.Equal(t, int64(120000), end.UnixMilli())

	_, _, err = newSource([]inputSeries{{Name: "bad", T: []int64{0}, Y: nil}})
	assert.NotNil(t, err)
}

func TestBaselineCmd(t *testing.T) {
	dir := t.TempDir()
	outPath := filepath.Join(dir, "panel.json")
	htmlPath := filepath.Join(dir, "panel.html")

	out, err := execute(t,
		"baseline",
		"--config", writeConfig(t),
		"--simulate", "2",
		"--days", "2",
		"--window", "6h",
		"--changepoints",
		"--output", outPath,
		"--html", htmlPath,
	)
	require.Nil(t, err)

	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		var rec anomalyRecord
		require.Nil(t, json.Unmarshal(scanner.Bytes(), &rec))
		assert.NotEmpty(t, rec.Direction)
	}

	b, err := os.ReadFile(outPath)
	require.Nil(t, err)
	var res struct {
		State       string            `json:"state"`
		Series      []json.RawMessage `json:"series"`
		Annotations []json.RawMessage `json:"annotations"`
	}
	require.Nil(t, json.Unmarshal(b, &res))
	assert.Equal(t, "Done", res.State)
	assert.Len(t, res.Series, 4, "one primary and one baseline frame per series")
	assert.Len(t, res.Annotations, 2, "one changepoint frame per series")

	html, err := os.ReadFile(htmlPath)
	require.Nil(t, err)
	assert.Contains(t, string(html), "echarts")
}

func TestBaselineCmdErrors(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "bad.json")
	require.Nil(t, os.WriteFile(bad, []byte("not json"), 0o644))

	testData := map[string]struct {
		args []string
	}{
		"invalid window":      {args: []string{"--window", "0s"}},
		"nothing to simulate": {args: []string{"--simulate", "0"}},
		"missing input":       {args: []string{"--input", filepath.Join(t.TempDir(), "missing.json")}},
		"invalid input":       {args: []string{"--input", bad}},
		"unexpected argument": {args: []string{"extra"}},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			args := append([]string{"baseline", "--config", writeConfig(t)}, td.args...)
			_, err := execute(t, args...)
			assert.NotNil(t, err)
		})
	}
}

func TestRootCmdInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.Nil(t, os.WriteFile(path, []byte("log:\n  level: loud\n"), 0o644))
	_, err := execute(t, "baseline", "--config", path)
	assert.NotNil(t, err)
}
