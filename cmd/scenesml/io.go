package main

import (
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"os"
	"time"

	"github.com/aouyang1/go-scenesml/baseline"
	"github.com/aouyang1/go-scenesml/query"
	"github.com/aouyang1/go-scenesml/timedataset"
	"github.com/goccy/go-json"
	"github.com/grafana/grafana-plugin-sdk-go/data"
)

// inputSeries is a named series of epoch millisecond timestamps and values, null for missing
type inputSeries struct {
	Name string     `json:"name"`
	T    []int64    `json:"t"`
	Y    []*float64 `json:"y"`
}

func readSeries(r io.Reader) ([]inputSeries, error) {
	var series []inputSeries
	if err := json.NewDecoder(r).Decode(&series); err != nil {
		return nil, fmt.Errorf("unable to decode input series, %w", err)
	}
	return series, nil
}

func readSeriesFile(path string) ([]inputSeries, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return readSeries(file)
}

func (s inputSeries) dataset() (*timedataset.TimeDataset, error) {
	y := make([]float64, len(s.Y))
	for i, v := range s.Y {
		y[i] = math.NaN()
		if v != nil {
			y[i] = *v
		}
	}
	td, err := timedataset.NewUnivariateDataset(timedataset.FromMillis(s.T), y)
	if err != nil {
		return nil, fmt.Errorf("series %q, %w", s.Name, err)
	}
	return td, nil
}

func newSource(series []inputSeries) (*query.MemorySource, time.Time, error) {
	src := query.NewMemorySource()
	var end time.Time
	for _, s := range series {
		td, err := s.dataset()
		if err != nil {
			return nil, time.Time{}, err
		}
		if td.Len() > 0 && td.T[td.Len()-1].After(end) {
			end = td.T[td.Len()-1]
		}
		src.Add(s.Name, td)
	}
	return src, end, nil
}

// simulate creates count minutely series over the given number of days with an hourly and
// daily pattern, noise, a level shift two thirds of the way in and one spike near the end
func simulate(count, days int, seed uint64, now func() time.Time) []inputSeries {
	rng := rand.New(rand.NewPCG(seed, seed))
	n := days * 24 * 60
	t := timedataset.GenerateT(n, time.Minute, now)
	millis := timedataset.TimeSlice(t).Millis()

	series := make([]inputSeries, count)
	for i := range series {
		y := timedataset.GenerateConstY(n, 100+10*float64(i)).
			Add(timedataset.GenerateWaveY(t, 5, 3600, 1, 0)).
			Add(timedataset.GenerateWaveY(t, 20, 86400, 1, float64(i)*600)).
			Add(timedataset.GenerateNoise(rng, t, 1, 0, 86400, 1, 0)).
			Add(timedataset.GenerateChange(t, t[n*2/3], 15, 0))
		y[n-30] += 40

		values := make([]*float64, n)
		for j := range y {
			v := y[j]
			values[j] = &v
		}
		series[i] = inputSeries{Name: fmt.Sprintf("series_%d", i), T: millis, Y: values}
	}
	return series
}

type output struct {
	State       query.LoadingState `json:"state"`
	From        time.Time          `json:"from"`
	To          time.Time          `json:"to"`
	Series      []*data.Frame      `json:"series"`
	Annotations []*data.Frame      `json:"annotations"`
	Errors      []string           `json:"errors,omitempty"`
}

func newOutput(pd query.PanelData) output {
	errs := make([]string, 0, len(pd.Errors))
	for _, err := range pd.Errors {
		errs = append(errs, err.Error())
	}
	return output{
		State:       pd.State,
		From:        pd.TimeRange.From,
		To:          pd.TimeRange.To,
		Series:      pd.Series,
		Annotations: pd.Annotations,
		Errors:      errs,
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeJSONLine(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}

func writeJSONFile(path string, v any) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return writeJSON(file, v)
}

// anomalyRecord is a single line of anomaly output
type anomalyRecord struct {
	Series    string             `json:"series"`
	Time      time.Time          `json:"time"`
	Direction baseline.Direction `json:"direction"`
}
