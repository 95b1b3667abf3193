// Package availability merges synthesized working hours, stored availability blocks and
// bookings into one labeled interval set for a calendar window.
package availability

import (
	"sort"
	"strconv"
	"time"

	"github.com/tourdesk/tourdesk/services/dashboard-service/internal/model"
)

type Layer string

const (
	LayerBooking      Layer = "booking"
	LayerWorkingHours Layer = "working-hours"
	LayerAvailability Layer = "availability"
)

// Rendering precedence for overlapping regions. It orders drawing only and never hides data.
const (
	PrecedenceWorkingHours = 1
	PrecedenceUnavailable  = 2
	PrecedenceBusy         = 3
	PrecedenceOffDay       = 4
	PrecedenceHoliday      = 5
	PrecedenceBooking      = 6
)

func Precedence(kind model.BlockKind) int {
	switch kind {
	case model.BlockHoliday:
		return PrecedenceHoliday
	case model.BlockOffDay:
		return PrecedenceOffDay
	case model.BlockBusy:
		return PrecedenceBusy
	case model.BlockUnavailable, model.BlockPersonal:
		return PrecedenceUnavailable
	}
	return PrecedenceWorkingHours
}

type Event struct {
	ID         string          `json:"id"`
	Layer      Layer           `json:"layer"`
	Kind       model.BlockKind `json:"kind,omitempty"`
	Status     model.Status    `json:"status,omitempty"`
	Start      time.Time       `json:"start"`
	End        time.Time       `json:"end"`
	AllDay     bool            `json:"all_day"`
	Title      string          `json:"title,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	Precedence int             `json:"precedence"`
	SourceID   string          `json:"source_id,omitempty"`
}

type Input struct {
	Anchor      time.Time
	Granularity Granularity
	Preferences model.Preferences
	Blocks      []model.Block
	Bookings    []model.Booking
	// Viewer is the location the calendar is rendered in. Nil means the preference timezone.
	Viewer    *time.Location
	WeekStart time.Weekday
}

type Result struct {
	Window       Window
	WorkingHours []Event
	Availability []Event
	Bookings     []Event
}

// All returns every layer in rendering order: start, then precedence (highest first), then id.
func (r Result) All() []Event {
	out := make([]Event, 0, len(r.WorkingHours)+len(r.Availability)+len(r.Bookings))
	out = append(out, r.WorkingHours...)
	out = append(out, r.Availability...)
	out = append(out, r.Bookings...)
	sortEvents(out)
	return out
}

func ComputeEvents(in Input) Result {
	viewer := in.Viewer
	if viewer == nil {
		viewer = in.Preferences.Location()
	}
	w := WindowFor(in.Anchor, in.Granularity, viewer, in.WeekStart)

	res := Result{Window: w}
	if in.Granularity == Day || in.Granularity == Week {
		res.WorkingHours = WorkingHours(w, in.Preferences)
	}
	res.Availability = blockEvents(w, in.Blocks, viewer)
	res.Bookings = bookingEvents(w, in.Bookings)
	sortEvents(res.WorkingHours)
	sortEvents(res.Availability)
	sortEvents(res.Bookings)
	return res
}

// Full-day blocks cover whole days in the viewer's location, not the preference timezone.
func blockEvents(w Window, blocks []model.Block, viewer *time.Location) []Event {
	seen := map[string]bool{}
	var out []Event
	for _, b := range blocks {
		start, end := b.StartAt, b.EndAt
		if b.IsFullDay {
			span := b.SpanFullDays(viewer)
			start, end = span.StartAt, span.EndAt
		}
		if !end.After(start) || !w.Intersects(start, end) {
			continue
		}
		if b.ID != "" {
			if seen[b.ID] {
				continue
			}
			seen[b.ID] = true
		}
		ev := Event{
			ID:         "block:" + b.ID,
			Layer:      LayerAvailability,
			Kind:       b.Kind,
			Start:      start,
			End:        end,
			AllDay:     b.IsFullDay,
			Title:      string(b.Kind),
			Reason:     b.Reason,
			Precedence: Precedence(b.Kind),
			SourceID:   b.ID,
		}
		if b.ID == "" {
			ev.ID = "block:" + string(b.Kind) + ":" + start.UTC().Format(time.RFC3339)
		}
		if b.IsFullDay {
			ev.End = end.Add(-time.Millisecond)
		}
		out = append(out, ev)
	}
	return out
}

func bookingEvents(w Window, bookings []model.Booking) []Event {
	seen := map[string]bool{}
	var out []Event
	for _, b := range bookings {
		if !w.Intersects(b.StartAt, b.EndAt) {
			continue
		}
		if b.ID != "" {
			if seen[b.ID] {
				continue
			}
			seen[b.ID] = true
		}
		ev := Event{
			ID:         "booking:" + b.ID,
			Layer:      LayerBooking,
			Status:     b.Status,
			Start:      b.StartAt,
			End:        b.EndAt,
			Title:      b.Visitor.Name,
			Precedence: PrecedenceBooking,
			SourceID:   b.ID,
		}
		if b.ID == "" {
			ev.ID = "booking:" + b.StartAt.UTC().Format(time.RFC3339) + ":" + strconv.Itoa(len(out))
		}
		out = append(out, ev)
	}
	return out
}

func sortEvents(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		if a.Precedence != b.Precedence {
			return a.Precedence > b.Precedence
		}
		return a.ID < b.ID
	})
}
