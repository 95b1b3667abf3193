package handlers

import (
	"net/http"
	"time"

	"github.com/tourdesk/tourdesk/services/dashboard-service/internal/availability"
	"github.com/tourdesk/tourdesk/services/dashboard-service/internal/model"
	"github.com/tourdesk/tourdesk/services/dashboard-service/internal/workspace"
)

// Calendar serves GET /calendar?anchor=YYYY-MM-DD&granularity=day|week|month&tz=IANA.
func (a *API) Calendar(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	q := r.URL.Query()

	g, err := availability.ParseGranularity(q.Get("granularity"))
	if err != nil {
		a.writeError(w, r, model.Invalid("calendar", "%v", err))
		return
	}
	var viewer *time.Location
	if tz := q.Get("tz"); tz != "" {
		if viewer, err = time.LoadLocation(tz); err != nil {
			a.writeError(w, r, model.Invalid("calendar", "unknown timezone %q", tz))
			return
		}
	}
	var anchor time.Time
	if raw := q.Get("anchor"); raw != "" {
		if anchor, err = time.Parse("2006-01-02", raw); err != nil {
			a.writeError(w, r, model.Invalid("calendar", "anchor must be YYYY-MM-DD"))
			return
		}
	}

	view, err := a.registry.Calendar(r.Context(), workspace.CalendarRequest{
		UserID:      id.userID,
		UserType:    id.userType,
		Anchor:      anchor,
		Granularity: g,
		Viewer:      viewer,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// CalendarEvents serves the backend's combined feed for [from, to).
func (a *API) CalendarEvents(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	from, err := parseTimeParam(r, "from", true)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	to, err := parseTimeParam(r, "to", true)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if !to.After(from) {
		a.writeError(w, r, model.Invalid("calendar events", "to must be after from"))
		return
	}

	events, err := a.registry.Events(r.Context(), id.userID, availability.Window{Start: from, End: to})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}
