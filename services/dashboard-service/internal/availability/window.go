package availability

import (
	"fmt"
	"strings"
	"time"
)

type Granularity string

const (
	Day   Granularity = "day"
	Week  Granularity = "week"
	Month Granularity = "month"
)

func ParseGranularity(raw string) (Granularity, error) {
	switch g := Granularity(strings.ToLower(strings.TrimSpace(raw))); g {
	case Day, Week, Month:
		return g, nil
	case "":
		return Week, nil
	}
	return "", fmt.Errorf("unknown granularity %q", raw)
}

// Window is the half-open rendering range [Start, End).
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (w Window) Intersects(start, end time.Time) bool {
	return start.Before(w.End) && w.Start.Before(end)
}

// Days returns the midnight of every calendar day in the window, in the window's location.
func (w Window) Days() []time.Time {
	var days []time.Time
	for d := Midnight(w.Start); d.Before(w.End); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// WindowFor returns the window enclosing anchor: that day, the week beginning on weekStart, or
// the calendar month. Bounds are midnights in loc.
func WindowFor(anchor time.Time, g Granularity, loc *time.Location, weekStart time.Weekday) Window {
	if loc == nil {
		loc = anchor.Location()
	}
	day := Midnight(anchor.In(loc))
	switch g {
	case Day:
		return Window{Start: day, End: day.AddDate(0, 0, 1)}
	case Month:
		first := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, loc)
		return Window{Start: first, End: first.AddDate(0, 1, 0)}
	default:
		back := (int(day.Weekday()) - int(weekStart) + 7) % 7
		start := day.AddDate(0, 0, -back)
		return Window{Start: start, End: start.AddDate(0, 0, 7)}
	}
}

func Midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// atClock returns the wall-clock time off after midnight of day's date in loc. It is DST safe,
// unlike adding off to midnight.
func atClock(day time.Time, off time.Duration, loc *time.Location) time.Time {
	h := int(off / time.Hour)
	m := int(off % time.Hour / time.Minute)
	s := int(off % time.Minute / time.Second)
	return time.Date(day.Year(), day.Month(), day.Day(), h, m, s, 0, loc)
}
