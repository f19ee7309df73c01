package forecast

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/us"
)

var (
	ErrStartAfterEnd = errors.New("event start time is after end time")
	ErrUnsetTime     = errors.New("unset event start or end time")
	ErrNoEventName   = errors.New("no event name")
)

// Event is a time span excluded from training
type Event struct {
	Name  string    `json:"name"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (e Event) Valid() error {
	if e.Start.IsZero() || e.End.IsZero() {
		return ErrUnsetTime
	}
	if e.Start.After(e.End) {
		return ErrStartAfterEnd
	}
	if e.Name == "" {
		return ErrNoEventName
	}
	return nil
}

// Contains reports whether t falls within [Start, End)
func (e Event) Contains(t time.Time) bool {
	return !t.Before(e.Start) && t.Before(e.End)
}

// DefaultHolidays are the US holidays whose traffic rarely resembles a regular day
var DefaultHolidays = []*cal.Holiday{
	us.NewYear,
	us.MemorialDay,
	us.IndependenceDay,
	us.LaborDay,
	us.ThanksgivingDay,
	us.ChristmasDay,
}

// HolidayEvents returns one event per observed occurrence of the holiday between start and end.
// Each event covers the observed day in the location of start, widened by durBefore and durAfter.
func HolidayEvents(hol *cal.Holiday, start, end time.Time, durBefore, durAfter time.Duration) []Event {
	if hol == nil {
		return nil
	}
	startLoc := start.Location()

	var events []Event
	for year := start.Year(); year <= end.Year(); year++ {
		_, observed := hol.Calc(year)
		if observed.IsZero() {
			continue
		}
		day := time.Date(observed.Year(), observed.Month(), observed.Day(), 0, 0, 0, 0, startLoc)
		evt := Event{
			Name:  strings.ReplaceAll(fmt.Sprintf("%s_%d", hol.Name, year), " ", "_"),
			Start: day.Add(-durBefore),
			End:   day.Add(24 * time.Hour).Add(durAfter),
		}
		if evt.End.Before(start) || evt.Start.After(end) {
			continue
		}
		events = append(events, evt)
	}
	return events
}

// eventMask flags each timestamp that falls within any of the events
func eventMask(t []time.Time, events []Event) []bool {
	mask := make([]bool, len(t))
	for i, ts := range t {
		for _, evt := range events {
			if evt.Contains(ts) {
				mask[i] = true
				break
			}
		}
	}
	return mask
}
