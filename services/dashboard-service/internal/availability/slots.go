package availability

import (
	"time"

	"github.com/tourdesk/tourdesk/services/dashboard-service/internal/model"
)

type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// OpenSlots lists slot-length intervals inside working hours that no block or live booking
// overlaps. Denied and cancelled bookings do not occupy time. Slots starting before now are
// skipped.
func OpenSlots(r Result, slot time.Duration, now time.Time) []Interval {
	busy := make([]Interval, 0, len(r.Availability)+len(r.Bookings))
	for _, e := range r.Availability {
		busy = append(busy, Interval{Start: e.Start, End: e.End})
	}
	for _, e := range r.Bookings {
		if e.Status == model.StatusDenied || e.Status == model.StatusCancelled {
			continue
		}
		busy = append(busy, Interval{Start: e.Start, End: e.End})
	}

	var out []Interval
	for _, wh := range r.WorkingHours {
		for _, t := range AvailableSlots(wh.Start, wh.End, slot, slot, busy, now) {
			out = append(out, Interval{Start: t, End: t.Add(slot)})
		}
	}
	return out
}

// AvailableSlots returns slot start times within [windowStart, windowEnd) where a booking of
// length duration would not overlap any of the busy intervals.
func AvailableSlots(windowStart, windowEnd time.Time, duration, step time.Duration, busy []Interval, now time.Time) []time.Time {
	if duration <= 0 || step <= 0 {
		return nil
	}
	if !windowEnd.After(windowStart) || windowStart.Add(duration).After(windowEnd) {
		return nil
	}

	var slots []time.Time
	for t := windowStart; !t.Add(duration).After(windowEnd); t = t.Add(step) {
		if t.Before(now) {
			continue
		}
		if !overlapsAny(t, t.Add(duration), busy) {
			slots = append(slots, t)
		}
	}
	return slots
}

func overlapsAny(start, end time.Time, busy []Interval) bool {
	for _, b := range busy {
		// Half-open intervals: [start,end) overlaps [b.Start,b.End) iff start < b.End && b.Start < end.
		if start.Before(b.End) && b.Start.Before(end) {
			return true
		}
	}
	return false
}
