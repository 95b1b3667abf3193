package handlers

import (
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/tourdesk/tourdesk/services/dashboard-service/internal/lifecycle"
	"github.com/tourdesk/tourdesk/services/dashboard-service/internal/model"
)

type bookingView struct {
	model.Booking
	InFlight  bool   `json:"in_flight,omitempty"`
	LastError string `json:"last_error,omitempty"`
}

type listBookingsResponse struct {
	Bookings []bookingView `json:"bookings"`
	Degraded bool          `json:"degraded,omitempty"`
}

type bookingResponse struct {
	Booking bookingView `json:"booking"`
	// Pending is true when the backend has not confirmed the change yet.
	Pending bool `json:"pending"`
}

type transitionRequest struct {
	Reason string           `json:"reason"`
	Slots  []model.TimeSlot `json:"slots"`
}

func viewOf(m *lifecycle.Manager, b model.Booking) bookingView {
	v := bookingView{Booking: b, InFlight: m.InFlight(b.ID)}
	if err := m.LastFailure(b.ID); err != nil {
		v.LastError = err.Error()
	}
	return v
}

// ListBookings merges the requested page into the local collection and returns the matching
// local bookings. A failed fetch still answers with what is known locally.
func (a *API) ListBookings(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	var q model.BookingQuery
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, ok := model.ParseStatus(raw)
		if !ok {
			a.writeError(w, r, model.Invalid("list bookings", "unknown status %q", raw))
			return
		}
		q.Status = status
	}
	var err error
	if q.From, err = parseTimeParam(r, "from", false); err != nil {
		a.writeError(w, r, err)
		return
	}
	if q.To, err = parseTimeParam(r, "to", false); err != nil {
		a.writeError(w, r, err)
		return
	}

	m := a.registry.Get(id.userID, id.userType).Bookings
	resp := listBookingsResponse{Bookings: []bookingView{}}
	if err := m.Load(r.Context(), q); err != nil {
		if model.KindOf(err) == model.KindNotAuthenticated {
			a.writeError(w, r, err)
			return
		}
		a.logger.Warn("bookings fetch failed; serving local collection", "user_id", id.userID, "err", err)
		resp.Degraded = true
	}
	for _, b := range m.Snapshot() {
		if matches(q, b) {
			resp.Bookings = append(resp.Bookings, viewOf(m, b))
		}
	}
	sort.SliceStable(resp.Bookings, func(i, j int) bool {
		return resp.Bookings[i].StartAt.Before(resp.Bookings[j].StartAt)
	})
	writeJSON(w, http.StatusOK, resp)
}

func matches(q model.BookingQuery, b model.Booking) bool {
	if q.Status != "" && b.Status != q.Status {
		return false
	}
	if !q.From.IsZero() && !b.EndAt.After(q.From) {
		return false
	}
	if !q.To.IsZero() && !b.StartAt.Before(q.To) {
		return false
	}
	return true
}

func (a *API) GetBooking(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	m := a.registry.Get(id.userID, id.userType).Bookings
	b, ok, err := m.Lookup(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not_found", Message: "booking not found"})
		return
	}
	writeJSON(w, http.StatusOK, bookingResponse{Booking: viewOf(m, b), Pending: m.InFlight(b.ID)})
}

// CreateBooking answers 202 with the provisional booking, or with the settled booking when
// ?wait=true.
func (a *API) CreateBooking(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	var req model.ManualBooking
	if err := decodeBody(r, &req, false); err != nil {
		a.writeError(w, r, err)
		return
	}

	m := a.registry.Get(id.userID, id.userType).Bookings
	provisional, settlement, err := m.CreateManual(r.Context(), id.userID, req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.respondSettlement(w, r, m, provisional, settlement, http.StatusCreated)
}

// TransitionBooking serves POST /bookings/{id}/{approve|deny|reschedule|cancel}. A booking with a
// transition still in flight answers 409.
func (a *API) TransitionBooking(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	bookingID := chi.URLParam(r, "id")
	action := model.Action(chi.URLParam(r, "action"))

	var req transitionRequest
	if err := decodeBody(r, &req, true); err != nil {
		a.writeError(w, r, err)
		return
	}

	m := a.registry.Get(id.userID, id.userType).Bookings
	if m.InFlight(bookingID) {
		a.writeError(w, r, model.IllegalTransition(string(action), "booking %s has a change in flight", bookingID))
		return
	}
	if _, ok, err := m.Lookup(r.Context(), bookingID); err != nil {
		a.writeError(w, r, err)
		return
	} else if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not_found", Message: "booking not found"})
		return
	}

	var (
		settlement *lifecycle.Settlement
		err        error
	)
	switch action {
	case model.ActionApprove:
		settlement, err = m.Approve(r.Context(), id.userID, bookingID)
	case model.ActionDeny:
		settlement, err = m.Deny(r.Context(), id.userID, bookingID, req.Reason)
	case model.ActionReschedule:
		settlement, err = m.Reschedule(r.Context(), id.userID, bookingID, req.Slots, req.Reason)
	case model.ActionCancel:
		settlement, err = m.Cancel(r.Context(), id.userID, bookingID, req.Reason)
	default:
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not_found", Message: "unknown action"})
		return
	}
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	current, _ := m.Get(bookingID)
	a.respondSettlement(w, r, m, current, settlement, http.StatusOK)
}

func (a *API) respondSettlement(w http.ResponseWriter, r *http.Request, m *lifecycle.Manager, local model.Booking, s *lifecycle.Settlement, settledCode int) {
	if r.URL.Query().Get("wait") != "true" {
		writeJSON(w, http.StatusAccepted, bookingResponse{Booking: viewOf(m, local), Pending: true})
		return
	}
	settled, err := s.Wait(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, settledCode, bookingResponse{Booking: viewOf(m, settled)})
}
