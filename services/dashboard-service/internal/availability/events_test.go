package availability

import (
	"testing"
	"time"

	"github.com/tourdesk/tourdesk/services/dashboard-service/internal/model"
	"github.com/tourdesk/tourdesk/services/dashboard-service/internal/weekday"
)

func nineToFive() model.Preferences {
	return model.Preferences{
		StartTime:         "09:00",
		EndTime:           "17:00",
		Timezone:          "America/New_York",
		SlotLengthMinutes: 30,
		WorkingDays:       []weekday.UIDay{1, 2, 3, 4, 5},
	}
}

func newYork(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return loc
}

func TestWeekWorkingHours(t *testing.T) {
	loc := newYork(t)
	res := ComputeEvents(Input{
		Anchor:      time.Date(2026, 1, 28, 12, 0, 0, 0, loc),
		Granularity: Week,
		Preferences: nineToFive(),
		Viewer:      loc,
	})

	if len(res.WorkingHours) != 5 {
		t.Fatalf("expected 5 working-hours intervals, got %d", len(res.WorkingHours))
	}
	want := []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}
	for i, ev := range res.WorkingHours {
		start := ev.Start.In(loc)
		end := ev.End.In(loc)
		if start.Weekday() != want[i] {
			t.Fatalf("interval %d on %s, want %s", i, start.Weekday(), want[i])
		}
		if start.Hour() != 9 || start.Minute() != 0 || end.Hour() != 17 || end.Minute() != 0 {
			t.Fatalf("interval %d is %s-%s", i, start.Format("15:04"), end.Format("15:04"))
		}
	}
}

func TestWorkingHoursAcrossDSTChange(t *testing.T) {
	loc := newYork(t)
	// Week of the March 2026 spring-forward (Sunday 8 March).
	res := ComputeEvents(Input{
		Anchor:      time.Date(2026, 3, 9, 12, 0, 0, 0, loc),
		Granularity: Week,
		Preferences: nineToFive(),
		Viewer:      loc,
	})
	for _, ev := range res.WorkingHours {
		if ev.Start.In(loc).Hour() != 9 {
			t.Fatalf("expected 09:00 local, got %s", ev.Start.In(loc))
		}
	}
}

func TestMonthSynthesizesNoWorkingHours(t *testing.T) {
	loc := newYork(t)
	res := ComputeEvents(Input{
		Anchor:      time.Date(2026, 1, 28, 12, 0, 0, 0, loc),
		Granularity: Month,
		Preferences: nineToFive(),
		Viewer:      loc,
	})
	if len(res.WorkingHours) != 0 {
		t.Fatalf("expected none, got %d", len(res.WorkingHours))
	}
}

func TestFullDayHolidayInMonth(t *testing.T) {
	loc := newYork(t)
	res := ComputeEvents(Input{
		Anchor:      time.Date(2026, 1, 5, 0, 0, 0, 0, loc),
		Granularity: Month,
		Preferences: nineToFive(),
		Viewer:      loc,
		Blocks: []model.Block{{
			ID:        "h1",
			Kind:      model.BlockHoliday,
			IsFullDay: true,
			StartAt:   time.Date(2026, 1, 19, 0, 0, 0, 0, loc),
			EndAt:     time.Date(2026, 1, 20, 0, 0, 0, 0, loc),
		}},
	})
	if len(res.Availability) != 1 {
		t.Fatalf("expected one block, got %d", len(res.Availability))
	}
	ev := res.Availability[0]
	if !ev.AllDay {
		t.Fatal("expected all-day event")
	}
	if !ev.Start.Equal(time.Date(2026, 1, 19, 0, 0, 0, 0, loc)) {
		t.Fatalf("unexpected start %s", ev.Start)
	}
	if !ev.End.Equal(time.Date(2026, 1, 19, 23, 59, 59, int(999*time.Millisecond), loc)) {
		t.Fatalf("unexpected end %s", ev.End)
	}
}

func TestLayersAreNotMerged(t *testing.T) {
	loc := newYork(t)
	day := time.Date(2026, 1, 28, 0, 0, 0, 0, loc)
	booking := model.Booking{
		ID:      "b1",
		Status:  model.StatusApproved,
		StartAt: day.Add(10 * time.Hour),
		EndAt:   day.Add(11 * time.Hour),
	}
	busy := model.Block{ID: "x1", Kind: model.BlockBusy, StartAt: day.Add(10 * time.Hour), EndAt: day.Add(12 * time.Hour)}
	personal := model.Block{ID: "x2", Kind: model.BlockPersonal, StartAt: day.Add(10 * time.Hour), EndAt: day.Add(10*time.Hour + 30*time.Minute)}

	res := ComputeEvents(Input{
		Anchor:      day,
		Granularity: Day,
		Preferences: nineToFive(),
		Viewer:      loc,
		Blocks:      []model.Block{busy, personal, busy},
		Bookings:    []model.Booking{booking, booking},
	})
	if len(res.Bookings) != 1 {
		t.Fatalf("duplicate booking ids must collapse, got %d", len(res.Bookings))
	}
	if len(res.Availability) != 2 {
		t.Fatalf("expected two distinct blocks, got %d", len(res.Availability))
	}
	if len(res.WorkingHours) != 1 {
		t.Fatalf("expected one working-hours interval, got %d", len(res.WorkingHours))
	}

	all := res.All()
	if len(all) != 4 {
		t.Fatalf("expected 4 events, got %d", len(all))
	}
	// At 10:00 the booking draws above busy, busy above personal.
	if all[1].Layer != LayerBooking || all[2].Kind != model.BlockBusy || all[3].Kind != model.BlockPersonal {
		t.Fatalf("unexpected order: %+v", all)
	}
}

func TestBookingsWithoutIDAreKept(t *testing.T) {
	loc := newYork(t)
	day := time.Date(2026, 1, 28, 0, 0, 0, 0, loc)
	first := model.Booking{Status: model.StatusPending, StartAt: day.Add(10 * time.Hour), EndAt: day.Add(11 * time.Hour)}
	second := model.Booking{Status: model.StatusPending, StartAt: day.Add(13 * time.Hour), EndAt: day.Add(14 * time.Hour)}

	res := ComputeEvents(Input{
		Anchor:      day,
		Granularity: Day,
		Preferences: nineToFive(),
		Viewer:      loc,
		Bookings:    []model.Booking{first, second},
	})
	if len(res.Bookings) != 2 {
		t.Fatalf("expected both id-less bookings, got %d", len(res.Bookings))
	}
	if res.Bookings[0].ID == res.Bookings[1].ID {
		t.Fatalf("event ids collide: %q", res.Bookings[0].ID)
	}
}

func TestBlocksOutsideWindowExcluded(t *testing.T) {
	loc := newYork(t)
	day := time.Date(2026, 1, 28, 0, 0, 0, 0, loc)
	res := ComputeEvents(Input{
		Anchor:      day,
		Granularity: Day,
		Preferences: nineToFive(),
		Viewer:      loc,
		Blocks: []model.Block{
			{ID: "before", Kind: model.BlockBusy, StartAt: day.Add(-2 * time.Hour), EndAt: day},
			{ID: "spans", Kind: model.BlockBusy, StartAt: day.Add(-2 * time.Hour), EndAt: day.Add(time.Hour)},
		},
	})
	if len(res.Availability) != 1 || res.Availability[0].SourceID != "spans" {
		t.Fatalf("unexpected blocks %+v", res.Availability)
	}
}

func TestWindowFor(t *testing.T) {
	loc := time.UTC
	anchor := time.Date(2026, 1, 28, 15, 0, 0, 0, loc) // Wednesday
	w := WindowFor(anchor, Week, loc, time.Sunday)
	if !w.Start.Equal(time.Date(2026, 1, 25, 0, 0, 0, 0, loc)) || !w.End.Equal(time.Date(2026, 2, 1, 0, 0, 0, 0, loc)) {
		t.Fatalf("unexpected week window %+v", w)
	}
	w = WindowFor(anchor, Week, loc, time.Monday)
	if !w.Start.Equal(time.Date(2026, 1, 26, 0, 0, 0, 0, loc)) {
		t.Fatalf("unexpected monday week start %s", w.Start)
	}
	w = WindowFor(anchor, Month, loc, time.Sunday)
	if !w.Start.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, loc)) || !w.End.Equal(time.Date(2026, 2, 1, 0, 0, 0, 0, loc)) {
		t.Fatalf("unexpected month window %+v", w)
	}
	if len(WindowFor(anchor, Day, loc, time.Sunday).Days()) != 1 {
		t.Fatal("day window should cover one day")
	}
}
