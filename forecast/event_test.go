package forecast

import (
	"testing"
	"time"

	"github.com/rickar/cal/v2/us"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventValid(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	testData := map[string]struct {
		evt Event
		err error
	}{
		"unset start": {
			evt: Event{Name: "a", End: start},
			err: ErrUnsetTime,
		},
		"start after end": {
			evt: Event{Name: "a", Start: start.Add(time.Hour), End: start},
			err: ErrStartAfterEnd,
		},
		"no name": {
			evt: Event{Start: start, End: start.Add(time.Hour)},
			err: ErrNoEventName,
		},
		"valid": {
			evt: Event{Name: "a", Start: start, End: start.Add(time.Hour)},
		},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			err := td.evt.Valid()
			if td.err != nil {
				assert.ErrorIs(t, err, td.err)
				return
			}
			assert.Nil(t, err)
		})
	}
}

func TestHolidayEvents(t *testing.T) {
	start := time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)

	events := HolidayEvents(us.ChristmasDay, start, end, time.Hour, 2*time.Hour)
	require.Len(t, events, 2)

	assert.Contains(t, events[0].Name, "_2023")
	assert.NotContains(t, events[0].Name, " ")
	assert.Equal(t, time.Date(2023, 12, 24, 23, 0, 0, 0, time.UTC), events[0].Start)
	assert.Equal(t, time.Date(2023, 12, 26, 2, 0, 0, 0, time.UTC), events[0].End)
	assert.Equal(t, time.Date(2024, 12, 24, 23, 0, 0, 0, time.UTC), events[1].Start)

	assert.Nil(t, HolidayEvents(nil, start, end, 0, 0))
}

func TestEventMask(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ts := []time.Time{start, start.Add(time.Hour), start.Add(2 * time.Hour)}
	events := []Event{{Name: "a", Start: start.Add(time.Hour), End: start.Add(2 * time.Hour)}}
	assert.Equal(t, []bool{false, true, false}, eventMask(ts, events))
}
