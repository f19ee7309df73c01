// Package config loads the YAML configuration of a panel and maps it onto component options
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/aouyang1/go-scenesml/baseline"
	"github.com/aouyang1/go-scenesml/changepoint"
	"github.com/aouyang1/go-scenesml/cluster"
	"github.com/aouyang1/go-scenesml/forecast"
	"github.com/aouyang1/go-scenesml/ml"
	"github.com/aouyang1/go-scenesml/outlier"
	"github.com/aouyang1/go-scenesml/query"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/us"
	"gopkg.in/yaml.v3"
)

var ErrUnknownHoliday = errors.New("unknown holiday")

// Holidays are the holidays which can be masked out of baseline training by name
var Holidays = map[string]*cal.Holiday{
	"new_year":         us.NewYear,
	"mlk_day":          us.MlkDay,
	"presidents_day":   us.PresidentsDay,
	"memorial_day":     us.MemorialDay,
	"juneteenth":       us.Juneteenth,
	"independence_day": us.IndependenceDay,
	"labor_day":        us.LaborDay,
	"columbus_day":     us.ColumbusDay,
	"veterans_day":     us.VeteransDay,
	"thanksgiving_day": us.ThanksgivingDay,
	"christmas_day":    us.ChristmasDay,
}

type Config struct {
	Log         Log         `yaml:"log"`
	Query       Query       `yaml:"query"`
	Baseline    Baseline    `yaml:"baseline"`
	Forecast    Forecast    `yaml:"forecast"`
	Outlier     Outlier     `yaml:"outlier"`
	Cluster     Cluster     `yaml:"cluster"`
	Changepoint Changepoint `yaml:"changepoint"`
}

type Log struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" default:"text" validate:"oneof=text json"`
}

type Query struct {
	RefIDs        []string      `yaml:"ref_ids" default:"[\"A\"]" validate:"min=1,dive,required"`
	MinInterval   time.Duration `yaml:"min_interval" default:"1s" validate:"gte=0"`
	MaxDataPoints int           `yaml:"max_data_points" default:"1000" validate:"gt=0"`
}

type Baseline struct {
	Enabled                bool            `yaml:"enabled" default:"true"`
	Interval               float64         `yaml:"interval" default:"0.95" validate:"gt=0,lt=1"`
	DiscoverSeasonalities  bool            `yaml:"discover_seasonalities"`
	TrainingLookbackFactor float64         `yaml:"training_lookback_factor" default:"4" validate:"lookback"`
	Model                  string          `yaml:"model" default:"harmonic" validate:"required"`
	ExtraSeasonalities     []time.Duration `yaml:"extra_seasonalities" validate:"dive,gt=0"`
}

type Forecast struct {
	Orders           int           `yaml:"orders" default:"3" validate:"gte=1"`
	Holidays         []string      `yaml:"holidays" validate:"dive,holiday"`
	HolidayDurBefore time.Duration `yaml:"holiday_dur_before" validate:"gte=0"`
	HolidayDurAfter  time.Duration `yaml:"holiday_dur_after" validate:"gte=0"`
	Events           []Event       `yaml:"events" validate:"dive"`
	// Lambda enables L1 regularized fitting when positive
	Lambda float64 `yaml:"lambda" validate:"gte=0"`
}

type Event struct {
	Name  string    `yaml:"name" validate:"required"`
	Start time.Time `yaml:"start" validate:"required"`
	End   time.Time `yaml:"end" validate:"required,gtfield=Start"`
}

type Outlier struct {
	Enabled        bool    `yaml:"enabled"`
	Sensitivity    float64 `yaml:"sensitivity" default:"0.5" validate:"gt=0,lt=1"`
	AddAnnotations bool    `yaml:"add_annotations" default:"true"`
}

type Cluster struct {
	Enabled        bool    `yaml:"enabled"`
	Epsilon        float64 `yaml:"epsilon" default:"0.8" validate:"gt=0"`
	MinClusterSize int     `yaml:"min_cluster_size" default:"3" validate:"gte=1"`
	DTWWindow      int     `yaml:"dtw_window" default:"10" validate:"gte=1"`
}

type Changepoint struct {
	Enabled         bool    `yaml:"enabled"`
	LookbackFactor  float64 `yaml:"lookback_factor" default:"4" validate:"lookback"`
	MinSegment      int     `yaml:"min_segment" default:"5" validate:"gte=1"`
	MaxChangepoints int     `yaml:"max_changepoints" default:"10" validate:"gte=1"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterValidation("lookback", func(fl validator.FieldLevel) bool {
		return slices.Contains(baseline.TrainingLookbackFactorOptions, fl.Field().Float())
	})
	v.RegisterValidation("holiday", func(fl validator.FieldLevel) bool {
		_, exists := Holidays[fl.Field().String()]
		return exists
	})
	return v
}

// Default returns a configuration with every default applied
func Default() *Config {
	c := &Config{}
	if err := defaults.Set(c); err != nil {
		// defaults are static, a failure here is a broken tag
		panic(err)
	}
	return c
}

// Load reads a YAML configuration file on top of the defaults and validates it
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config, %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML on top of the defaults and validates the result
func Parse(b []byte) (*Config, error) {
	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config, %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("validate config, %w", err)
	}
	return nil
}

// Logger builds a slog logger writing to w
func (l Log) Logger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(l.Level))); err != nil {
		level = slog.LevelInfo
	}
	opt := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opt))
	}
	return slog.New(slog.NewTextHandler(w, opt))
}

func (q Query) RunnerOptions() *query.Options {
	opt := query.NewDefaultOptions()
	opt.Targets = make([]query.Target, 0, len(q.RefIDs))
	for _, refID := range q.RefIDs {
		opt.Targets = append(opt.Targets, query.Target{RefID: refID})
	}
	opt.MinInterval = q.MinInterval
	opt.MaxDataPoints = q.MaxDataPoints
	return opt
}

func (f Forecast) Options() (*forecast.Options, error) {
	opt := forecast.NewDefaultOptions()
	opt.Orders = f.Orders
	opt.HolidayDurBefore = f.HolidayDurBefore
	opt.HolidayDurAfter = f.HolidayDurAfter
	opt.Lambda = f.Lambda
	for _, name := range f.Holidays {
		hol, exists := Holidays[name]
		if !exists {
			return nil, fmt.Errorf("%q, %w", name, ErrUnknownHoliday)
		}
		opt.Holidays = append(opt.Holidays, hol)
	}
	for _, e := range f.Events {
		opt.Events = append(opt.Events, forecast.Event{Name: e.Name, Start: e.Start, End: e.End})
	}
	return opt, nil
}

// BaselineOptions maps the baseline and forecast sections onto baseliner options using the
// harmonic forecaster
func (c *Config) BaselineOptions() (*baseline.Options, error) {
	fopt, err := c.Forecast.Options()
	if err != nil {
		return nil, err
	}
	opt := baseline.NewDefaultOptions()
	opt.Backends = ml.Backends{forecast.ModelHarmonic: forecast.Backend(fopt)}
	opt.ExtraSeasonalities = c.Baseline.ExtraSeasonalities
	opt.State = baseline.State{
		DiscoverSeasonalities:  c.Baseline.DiscoverSeasonalities,
		TrainingLookbackFactor: c.Baseline.TrainingLookbackFactor,
		Model:                  ml.ModelType(c.Baseline.Model),
	}
	if c.Baseline.Enabled {
		opt.State.Interval = c.Baseline.Interval
	}
	return opt, nil
}

func (o Outlier) Options() *outlier.Options {
	opt := outlier.NewDefaultOptions()
	opt.State = outlier.State{AddAnnotations: o.AddAnnotations}
	if o.Enabled {
		opt.State.Sensitivity = o.Sensitivity
	}
	return opt
}

func (c Cluster) Options() *cluster.Options {
	opt := cluster.NewDefaultOptions()
	opt.MinClusterSize = c.MinClusterSize
	opt.Distance = &cluster.DTW{Window: c.DTWWindow}
	if c.Enabled {
		opt.State.Epsilon = c.Epsilon
	} else {
		opt.State.Epsilon = 0
	}
	return opt
}

func (c Changepoint) Options() *changepoint.Options {
	opt := changepoint.NewDefaultOptions()
	opt.State = changepoint.State{Enabled: c.Enabled, LookbackFactor: c.LookbackFactor}
	opt.Detector = &changepoint.BinarySegmentation{
		MinSegment:      c.MinSegment,
		MaxChangepoints: c.MaxChangepoints,
	}
	return opt
}
