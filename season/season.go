// Package season derives the candidate season lengths, in samples, a forecast model is fit with.
package season

import (
	"slices"
	"time"
)

const (
	LabelSeasHourly = "hourly"
	LabelSeasDaily  = "daily"
	LabelSeasWeekly = "weekly"
	LabelSeasYearly = "yearly"
)

// Seasonality is a named periodic pattern
type Seasonality struct {
	Name   string        `json:"name"`
	Period time.Duration `json:"period"`
}

// DefaultSeasonalities are always considered before any extra seasonalities
var DefaultSeasonalities = []Seasonality{
	{Name: LabelSeasHourly, Period: time.Hour},
	{Name: LabelSeasDaily, Period: 24 * time.Hour},
	{Name: LabelSeasWeekly, Period: 7 * 24 * time.Hour},
	{Name: LabelSeasYearly, Period: 365 * 24 * time.Hour},
}

// Lengths determines the season length for each candidate seasonality given the observed range
// and sampling frequency of the data. For example data sampled every 5 minutes over 4 weeks
// yields hourly, daily and weekly lengths of [12, 288, 2016].
//
// A seasonality is only kept if its period is less than half the observed range, otherwise
// there are not enough cycles to learn from, and if it spans more than one sample. Discovered
// lengths are already in samples and are merged after filtering. The result is deduplicated
// and sorted in ascending order.
func Lengths(rng, freq time.Duration, extra []time.Duration, discovered []int) []int {
	if freq <= 0 {
		return nil
	}

	periods := make([]time.Duration, 0, len(DefaultSeasonalities)+len(extra))
	for _, s := range DefaultSeasonalities {
		periods = append(periods, s.Period)
	}
	periods = append(periods, extra...)

	lengths := make([]int, 0, len(periods)+len(discovered))
	for _, period := range periods {
		if period >= rng/2 {
			continue
		}
		lengths = append(lengths, int(period/freq))
	}
	lengths = append(lengths, discovered...)
	return removeDuplicates(lengths)
}

func removeDuplicates(lengths []int) []int {
	res := make([]int, 0, len(lengths))
	for _, l := range lengths {
		if l > 1 {
			res = append(res, l)
		}
	}
	slices.Sort(res)
	return slices.Compact(res)
}
