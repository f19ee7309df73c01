package timedataset

import "time"

type TimeSlice []time.Time

func (t TimeSlice) StartTime() time.Time {
	var startTime time.Time
	if len(t) < 1 {
		return startTime
	}
	return t[0]
}

func (t TimeSlice) EndTime() time.Time {
	var lastTime time.Time
	if len(t) < 1 {
		return lastTime
	}
	return t[len(t)-1]
}

// Freq returns the spacing between the first two samples. Series are assumed to be
// uniformly sampled so this is the frequency of the whole slice.
func (t TimeSlice) Freq() (time.Duration, error) {
	if len(t) < 2 {
		return 0, ErrCannotInferFreq
	}
	freq := t[1].Sub(t[0])
	if freq <= 0 {
		return 0, ErrCannotInferFreq
	}
	return freq, nil
}

// Millis converts every time to unix milliseconds
func (t TimeSlice) Millis() []int64 {
	res := make([]int64, len(t))
	for i, ct := range t {
		res[i] = ct.UnixMilli()
	}
	return res
}

// FromMillis converts unix milliseconds into UTC times
func FromMillis(ms []int64) TimeSlice {
	res := make(TimeSlice, len(ms))
	for i, m := range ms {
		res[i] = time.UnixMilli(m).UTC()
	}
	return res
}
