package availability

import (
	"github.com/teambition/rrule-go"

	"github.com/tourdesk/tourdesk/services/dashboard-service/internal/model"
	"github.com/tourdesk/tourdesk/services/dashboard-service/internal/weekday"
)

// Indexed by weekday.UIDay.
var rruleDays = [7]rrule.Weekday{rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA}

// WorkingHours synthesizes one interval per working day intersecting w, bounded by the
// preference start and end times in the preference timezone.
func WorkingHours(w Window, prefs model.Preferences) []Event {
	if len(prefs.WorkingDays) == 0 {
		return nil
	}
	startOff, endOff, err := prefs.Hours()
	if err != nil || endOff <= startOff {
		return nil
	}
	loc := prefs.Location()

	days := make([]rrule.Weekday, 0, len(prefs.WorkingDays))
	for _, d := range prefs.WorkingDays {
		if d.Valid() {
			days = append(days, rruleDays[d])
		}
	}
	if len(days) == 0 {
		return nil
	}

	// Start a day early so a viewer east of the preference timezone still sees the first day.
	first := Midnight(w.Start.In(loc)).AddDate(0, 0, -1)
	dtstart := atClock(first, startOff, loc)
	rule, err := rrule.NewRRule(rrule.ROption{
		Freq:      rrule.WEEKLY,
		Dtstart:   dtstart,
		Byweekday: days,
		Until:     w.End,
	})
	if err != nil {
		return nil
	}

	var out []Event
	for _, occ := range rule.Between(dtstart, w.End, true) {
		occ = occ.In(loc)
		start := atClock(occ, startOff, loc)
		end := atClock(occ, endOff, loc)
		if !w.Intersects(start, end) {
			continue
		}
		out = append(out, Event{
			ID:         "working-hours:" + start.Format("2006-01-02"),
			Layer:      LayerWorkingHours,
			Kind:       model.BlockWorkingHours,
			Start:      start,
			End:        end,
			Title:      weekday.FromWeekday(start.Weekday()).String(),
			Precedence: PrecedenceWorkingHours,
		})
	}
	return out
}
