// Package projection turns bookings, blocks and preferences into the read model a calendar
// view renders for one anchor date and granularity.
package projection

import (
	"time"

	"github.com/tourdesk/tourdesk/services/dashboard-service/internal/availability"
	"github.com/tourdesk/tourdesk/services/dashboard-service/internal/model"
)

// Day and week views always show 06:00-20:00, whatever the working hours are, so bookings and
// blocks outside working hours stay visible.
const (
	VisibleFrom = 6 * time.Hour
	VisibleTo   = 20 * time.Hour
)

type ClockRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type Input struct {
	Anchor      time.Time
	Granularity availability.Granularity
	Preferences model.Preferences
	Blocks      []model.Block
	Bookings    []model.Booking
	Viewer      *time.Location
	WeekStart   time.Weekday
	Now         time.Time
}

type View struct {
	Anchor             string                   `json:"anchor"`
	Granularity        availability.Granularity `json:"granularity"`
	Window             availability.Window      `json:"window"`
	VisibleRange       *ClockRange              `json:"visible_range,omitempty"`
	Prev               string                   `json:"prev"`
	Next               string                   `json:"next"`
	BookingEvents      []availability.Event     `json:"booking_events"`
	WorkingHoursEvents []availability.Event     `json:"working_hours_events"`
	AvailabilityEvents []availability.Event     `json:"availability_events"`
	OpenSlots          []availability.Interval  `json:"open_slots,omitempty"`
	Preferences        model.Preferences        `json:"preferences"`

	// Degraded names the layers whose feed failed and rendered empty.
	Degraded []string `json:"degraded,omitempty"`
}

const dateLayout = "2006-01-02"

func Project(in Input) View {
	viewer := in.Viewer
	if viewer == nil {
		viewer = in.Preferences.Location()
	}
	anchor := availability.Midnight(in.Anchor.In(viewer))
	res := availability.ComputeEvents(availability.Input{
		Anchor:      anchor,
		Granularity: in.Granularity,
		Preferences: in.Preferences,
		Blocks:      in.Blocks,
		Bookings:    in.Bookings,
		Viewer:      viewer,
		WeekStart:   in.WeekStart,
	})

	v := View{
		Anchor:             anchor.Format(dateLayout),
		Granularity:        in.Granularity,
		Window:             res.Window,
		Prev:               Shift(anchor, in.Granularity, -1).Format(dateLayout),
		Next:               Shift(anchor, in.Granularity, 1).Format(dateLayout),
		BookingEvents:      nonNil(res.Bookings),
		WorkingHoursEvents: nonNil(res.WorkingHours),
		AvailabilityEvents: nonNil(res.Availability),
		Preferences:        in.Preferences,
	}
	if in.Granularity != availability.Month {
		v.VisibleRange = &ClockRange{Start: formatClock(VisibleFrom), End: formatClock(VisibleTo)}
		if in.Preferences.SlotLengthMinutes > 0 {
			v.OpenSlots = availability.OpenSlots(res, time.Duration(in.Preferences.SlotLengthMinutes)*time.Minute, in.Now)
		}
	}
	return v
}

// VisibleBounds returns the visible clock range on day's date.
func VisibleBounds(day time.Time) (time.Time, time.Time) {
	y, m, d := day.Date()
	loc := day.Location()
	return time.Date(y, m, d, int(VisibleFrom/time.Hour), 0, 0, 0, loc), time.Date(y, m, d, int(VisibleTo/time.Hour), 0, 0, 0, loc)
}

// Shift moves anchor by n units of g: days, weeks, or calendar months. A month step keeps the
// day of month, clamped to the target month's length.
func Shift(anchor time.Time, g availability.Granularity, n int) time.Time {
	switch g {
	case availability.Day:
		return anchor.AddDate(0, 0, n)
	case availability.Month:
		y, m, d := anchor.Date()
		first := time.Date(y, m+time.Month(n), 1, anchor.Hour(), anchor.Minute(), anchor.Second(), anchor.Nanosecond(), anchor.Location())
		if last := daysIn(first); d > last {
			d = last
		}
		return first.AddDate(0, 0, d-1)
	default:
		return anchor.AddDate(0, 0, 7*n)
	}
}

// Switch changes granularity; the anchor date is kept.
func Switch(in Input, to availability.Granularity) Input {
	in.Granularity = to
	return in
}

func daysIn(monthStart time.Time) int {
	return monthStart.AddDate(0, 1, -1).Day()
}

func formatClock(d time.Duration) string {
	return time.Date(0, 1, 1, 0, 0, 0, 0, time.UTC).Add(d).Format("15:04")
}

func nonNil(events []availability.Event) []availability.Event {
	if events == nil {
		return []availability.Event{}
	}
	return events
}
