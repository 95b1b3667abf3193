package availability

import (
	"testing"
	"time"

	"github.com/tourdesk/tourdesk/services/dashboard-service/internal/model"
)

func TestAvailableSlots_Basic(t *testing.T) {
	loc := time.UTC
	day := time.Date(2026, 1, 28, 0, 0, 0, 0, loc)
	windowStart := time.Date(2026, 1, 28, 9, 0, 0, 0, loc)
	windowEnd := time.Date(2026, 1, 28, 10, 0, 0, 0, loc)

	busy := []Interval{
		{Start: day.Add(9*time.Hour + 15*time.Minute), End: day.Add(9*time.Hour + 45*time.Minute)},
	}

	slots := AvailableSlots(windowStart, windowEnd, 15*time.Minute, 15*time.Minute, busy, day)
	if len(slots) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(slots))
	}
	if !slots[0].Equal(day.Add(9 * time.Hour)) {
		t.Fatalf("expected first slot 09:00, got %s", slots[0].Format(time.RFC3339))
	}
	if !slots[1].Equal(day.Add(9*time.Hour + 45*time.Minute)) {
		t.Fatalf("expected second slot 09:45, got %s", slots[1].Format(time.RFC3339))
	}
}

func TestOpenSlotsIgnoresCancelledBookings(t *testing.T) {
	loc := time.UTC
	day := time.Date(2026, 1, 28, 0, 0, 0, 0, loc)
	prefs := nineToFive()
	prefs.Timezone = "UTC"
	prefs.StartTime = "09:00"
	prefs.EndTime = "11:00"

	res := ComputeEvents(Input{
		Anchor:      day,
		Granularity: Day,
		Preferences: prefs,
		Viewer:      loc,
		Bookings: []model.Booking{
			{ID: "a", Status: model.StatusApproved, StartAt: day.Add(9 * time.Hour), EndAt: day.Add(10 * time.Hour)},
			{ID: "c", Status: model.StatusCancelled, StartAt: day.Add(10 * time.Hour), EndAt: day.Add(11 * time.Hour)},
		},
	})
	slots := OpenSlots(res, time.Hour, day)
	if len(slots) != 1 || !slots[0].Start.Equal(day.Add(10*time.Hour)) {
		t.Fatalf("expected a single 10:00 slot, got %+v", slots)
	}
}
