package main

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"sync"
	"time"

	scenesml "github.com/aouyang1/go-scenesml"
	"github.com/aouyang1/go-scenesml/baseline"
	"github.com/aouyang1/go-scenesml/plot"
	"github.com/aouyang1/go-scenesml/query"
	"github.com/spf13/cobra"
)

type baselineFlags struct {
	input        string
	output       string
	html         string
	window       time.Duration
	simulate     int
	days         int
	seed         uint64
	outliers     bool
	clusters     bool
	changepoints bool
	timeCompare  time.Duration
}

func newBaselineCmd(root *rootFlags) *cobra.Command {
	flags := &baselineFlags{}
	cmd := &cobra.Command{
		Use:   "baseline",
		Short: "Fit baselines over series and report the anomalies in the display window",
		Long: `Runs the panel overlays over the series read from --input, or over simulated
series when no input is given. The display window ends at the last observation. Merged
panel data is written as JSON to --output and anomalies are written to stdout one per line.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := root.setup()
			if err != nil {
				return err
			}
			runErr := runBaseline(cmd.Context(), cmd.OutOrStdout(), e, flags)
			if err := root.teardown(e); err != nil && runErr == nil {
				runErr = err
			}
			return runErr
		},
	}
	cmd.Flags().StringVarP(&flags.input, "input", "i", "", "JSON file of series with name, t in epoch millis and y")
	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "write the panel data as JSON to this file")
	cmd.Flags().StringVar(&flags.html, "html", "", "write an HTML chart of the panel data to this file")
	cmd.Flags().DurationVarP(&flags.window, "window", "w", 24*time.Hour, "duration of the display window")
	cmd.Flags().IntVar(&flags.simulate, "simulate", 3, "number of series to simulate when there is no input")
	cmd.Flags().IntVar(&flags.days, "days", 7, "days of minutely data to simulate")
	cmd.Flags().Uint64Var(&flags.seed, "seed", 1, "random seed of the simulated noise")
	cmd.Flags().BoolVar(&flags.outliers, "outliers", false, "enable outlier detection")
	cmd.Flags().BoolVar(&flags.clusters, "clusters", false, "enable series clustering")
	cmd.Flags().BoolVar(&flags.changepoints, "changepoints", false, "enable changepoint detection")
	cmd.Flags().DurationVar(&flags.timeCompare, "time-compare", 0, "also draw the series shifted back by this duration")
	return cmd
}

// anomalyCollector gathers anomalies from concurrent frame processing
type anomalyCollector struct {
	mu      sync.Mutex
	records []anomalyRecord
}

func (c *anomalyCollector) add(a baseline.Anomaly) {
	rec := anomalyRecord{Time: a.Time, Direction: a.Direction}
	if a.Field != nil {
		rec.Series = a.Field.Name
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, rec)
}

func (c *anomalyCollector) sorted() []anomalyRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	res := slices.Clone(c.records)
	slices.SortStableFunc(res, func(a, b anomalyRecord) int {
		if d := a.Time.Compare(b.Time); d != 0 {
			return d
		}
		return cmp.Compare(a.Series, b.Series)
	})
	return res
}

func runBaseline(ctx context.Context, w io.Writer, e *env, flags *baselineFlags) error {
	if flags.window <= 0 {
		return fmt.Errorf("invalid display window %s", flags.window)
	}

	series, err := loadSeries(e.logger, flags)
	if err != nil {
		return err
	}
	src, end, err := newSource(series)
	if err != nil {
		return err
	}
	if end.IsZero() {
		return fmt.Errorf("no observations to run over")
	}

	cfg := *e.cfg
	cfg.Outlier.Enabled = cfg.Outlier.Enabled || flags.outliers
	cfg.Cluster.Enabled = cfg.Cluster.Enabled || flags.clusters
	cfg.Changepoint.Enabled = cfg.Changepoint.Enabled || flags.changepoints

	opt, err := scenesml.NewOptionsFromConfig(&cfg, e.logger, e.recorder)
	if err != nil {
		return err
	}
	opt.TimeCompare = flags.timeCompare

	anomalies := &anomalyCollector{}
	opt.Baseline.OnAnomalyDetected = anomalies.add

	panel, err := scenesml.New(src, opt)
	if err != nil {
		return err
	}

	tr := query.TimeRange{From: end.Add(-flags.window), To: end}
	e.logger.Info("running panel",
		"series", len(series),
		"from", tr.From.Format(time.RFC3339),
		"to", tr.To.Format(time.RFC3339),
	)
	pd, err := panel.Run(ctx, tr)
	if err != nil {
		return fmt.Errorf("unable to run panel, %w", err)
	}
	for _, perr := range pd.Errors {
		e.logger.Warn("panel error", "error", perr.Error())
	}

	records := anomalies.sorted()
	e.logger.Info("panel complete",
		"state", string(pd.State),
		"frames", len(pd.Series),
		"annotations", len(pd.Annotations),
		"anomalies", len(records),
	)
	for _, rec := range records {
		if err := writeJSONLine(w, rec); err != nil {
			return err
		}
	}

	if flags.output != "" {
		if err := writeJSONFile(flags.output, newOutput(pd)); err != nil {
			return fmt.Errorf("unable to write output, %w", err)
		}
		e.logger.Info("wrote panel data", "path", flags.output)
	}
	if flags.html != "" {
		if err := plot.RenderFile(flags.html, pd); err != nil {
			return fmt.Errorf("unable to render chart, %w", err)
		}
		e.logger.Info("wrote chart", "path", flags.html)
	}
	return nil
}

func loadSeries(logger *slog.Logger, flags *baselineFlags) ([]inputSeries, error) {
	if flags.input == "-" {
		return readSeries(os.Stdin)
	}
	if flags.input != "" {
		return readSeriesFile(flags.input)
	}
	if flags.simulate <= 0 || flags.days <= 0 {
		return nil, fmt.Errorf("nothing to simulate with %d series over %d days", flags.simulate, flags.days)
	}
	logger.Debug("simulating series", "count", flags.simulate, "days", flags.days, "seed", flags.seed)
	return simulate(flags.simulate, flags.days, flags.seed, time.Now), nil
}
