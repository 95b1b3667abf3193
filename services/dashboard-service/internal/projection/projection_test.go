package projection

import (
	"testing"
	"time"

	"github.com/tourdesk/tourdesk/services/dashboard-service/internal/availability"
	"github.com/tourdesk/tourdesk/services/dashboard-service/internal/model"
	"github.com/tourdesk/tourdesk/services/dashboard-service/internal/weekday"
)

func prefs() model.Preferences {
	return model.Preferences{
		StartTime:         "10:00",
		EndTime:           "14:00",
		Timezone:          "UTC",
		SlotLengthMinutes: 60,
		WorkingDays:       []weekday.UIDay{weekday.Monday, weekday.Wednesday},
	}
}

func TestProjectWeekKeepsOutOfHoursBookings(t *testing.T) {
	anchor := time.Date(2026, 1, 28, 0, 0, 0, 0, time.UTC)
	early := model.Booking{
		ID:      "early",
		Status:  model.StatusPending,
		StartAt: anchor.Add(7 * time.Hour),
		EndAt:   anchor.Add(7*time.Hour + 30*time.Minute),
	}
	v := Project(Input{
		Anchor:      anchor.Add(15 * time.Hour),
		Granularity: availability.Week,
		Preferences: prefs(),
		Bookings:    []model.Booking{early},
		Viewer:      time.UTC,
	})

	if v.VisibleRange == nil || v.VisibleRange.Start != "06:00" || v.VisibleRange.End != "20:00" {
		t.Fatalf("unexpected visible range %+v", v.VisibleRange)
	}
	if len(v.BookingEvents) != 1 {
		t.Fatalf("out-of-hours booking must render, got %d", len(v.BookingEvents))
	}
	if len(v.WorkingHoursEvents) != 2 {
		t.Fatalf("expected Monday and Wednesday working hours, got %d", len(v.WorkingHoursEvents))
	}
	if v.Anchor != "2026-01-28" || v.Prev != "2026-01-21" || v.Next != "2026-02-04" {
		t.Fatalf("unexpected navigation %s %s %s", v.Anchor, v.Prev, v.Next)
	}
}

func TestProjectMonthHasNoClockRange(t *testing.T) {
	v := Project(Input{
		Anchor:      time.Date(2026, 1, 28, 0, 0, 0, 0, time.UTC),
		Granularity: availability.Month,
		Preferences: prefs(),
		Viewer:      time.UTC,
		Blocks: []model.Block{{
			ID:        "h",
			Kind:      model.BlockHoliday,
			IsFullDay: true,
			StartAt:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			EndAt:     time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
		}},
	})
	if v.VisibleRange != nil {
		t.Fatal("month view has no clock range")
	}
	if len(v.WorkingHoursEvents) != 0 {
		t.Fatal("month view synthesizes no working hours")
	}
	if len(v.AvailabilityEvents) != 1 || !v.AvailabilityEvents[0].AllDay {
		t.Fatalf("expected all-day holiday, got %+v", v.AvailabilityEvents)
	}
	end := v.AvailabilityEvents[0].End
	if end.Hour() != 23 || end.Minute() != 59 || end.Second() != 59 || end.Nanosecond() != int(999*time.Millisecond) {
		t.Fatalf("unexpected all-day end %s", end)
	}
}

func TestShift(t *testing.T) {
	anchor := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		g    availability.Granularity
		n    int
		want time.Time
	}{
		{availability.Day, 1, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)},
		{availability.Week, -1, time.Date(2026, 1, 24, 0, 0, 0, 0, time.UTC)},
		{availability.Month, 1, time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)},
		{availability.Month, -2, time.Date(2025, 11, 30, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		if got := Shift(anchor, tc.g, tc.n); !got.Equal(tc.want) {
			t.Fatalf("Shift(%s, %d) = %s, want %s", tc.g, tc.n, got, tc.want)
		}
	}
}

func TestSwitchKeepsAnchor(t *testing.T) {
	in := Input{Anchor: time.Date(2026, 1, 28, 0, 0, 0, 0, time.UTC), Granularity: availability.Day, Preferences: prefs(), Viewer: time.UTC}
	v := Project(Switch(in, availability.Month))
	if v.Anchor != "2026-01-28" || v.Granularity != availability.Month {
		t.Fatalf("unexpected view %s %s", v.Anchor, v.Granularity)
	}
	if !v.Window.Start.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected window %+v", v.Window)
	}
}

func TestVisibleBounds(t *testing.T) {
	from, to := VisibleBounds(time.Date(2026, 1, 28, 13, 0, 0, 0, time.UTC))
	if from.Hour() != 6 || to.Hour() != 20 {
		t.Fatalf("unexpected bounds %s %s", from, to)
	}
}
