package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/tourdesk/tourdesk/services/dashboard-service/internal/model"
)

func (c *Client) ListBookings(ctx context.Context, userID string, q model.BookingQuery) ([]model.Booking, error) {
	const op = "list bookings"
	query := url.Values{}
	if q.Status != "" {
		query.Set("status", string(q.Status))
	}
	if !q.From.IsZero() {
		query.Set("from", q.From.UTC().Format(time.RFC3339))
	}
	if !q.To.IsZero() {
		query.Set("to", q.To.UTC().Format(time.RFC3339))
	}

	var raw json.RawMessage
	if err := c.do(ctx, op, http.MethodGet, "/api/v1/users"+segments(userID, "bookings"), query, nil, &raw); err != nil {
		return nil, err
	}
	return decodeBookings(op, raw)
}

func decodeBookings(op string, raw json.RawMessage) ([]model.Booking, error) {
	items, err := unwrapList(raw)
	if err != nil {
		return nil, decodeFailure(op, err)
	}
	out := make([]model.Booking, 0, len(items))
	for _, item := range items {
		b, err := decodeBooking(item)
		if err != nil {
			return nil, decodeFailure(op, err)
		}
		out = append(out, b)
	}
	return out, nil
}

type transitionPayload struct {
	PerformedBy   string        `json:"performed_by"`
	Reason        string        `json:"reason,omitempty"`
	ProposedSlots []slotPayload `json:"proposed_slots,omitempty"`
}

// Transition invokes approve, deny, reschedule or cancel. A response without a body yields a
// zero Booking.
func (c *Client) Transition(ctx context.Context, req model.TransitionRequest) (model.Booking, error) {
	op := string(req.Action) + " booking"
	body := transitionPayload{PerformedBy: req.Actor, Reason: req.Reason}
	if req.Action == model.ActionReschedule {
		body.ProposedSlots = encodeSlots(req.Slots)
	}

	var raw json.RawMessage
	path := "/api/v1/bookings" + segments(req.BookingID, string(req.Action))
	if err := c.do(ctx, op, http.MethodPost, path, nil, body, &raw); err != nil {
		return model.Booking{}, err
	}
	return decodeOptionalBooking(op, raw)
}

type manualPayload struct {
	PropertyID   string `json:"property_id"`
	VisitorName  string `json:"visitor_name"`
	VisitorPhone string `json:"visitor_phone"`
	VisitorEmail string `json:"visitor_email,omitempty"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	Timezone     string `json:"timezone,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

// CreateManual asks the backend for an already-approved booking.
func (c *Client) CreateManual(ctx context.Context, userID string, req model.ManualBooking) (model.Booking, error) {
	const op = "create booking"
	body := manualPayload{
		PropertyID:   req.PropertyID,
		VisitorName:  req.Visitor.Name,
		VisitorPhone: req.Visitor.Phone,
		VisitorEmail: req.Visitor.Email,
		StartTime:    req.StartAt.Format(time.RFC3339),
		EndTime:      req.EndAt.Format(time.RFC3339),
		Timezone:     req.Timezone,
		Notes:        req.Notes,
	}
	var raw json.RawMessage
	if err := c.do(ctx, op, http.MethodPost, "/api/v1/users"+segments(userID, "bookings", "manual"), nil, body, &raw); err != nil {
		return model.Booking{}, err
	}
	return decodeOptionalBooking(op, raw)
}

func decodeOptionalBooking(op string, raw json.RawMessage) (model.Booking, error) {
	if len(raw) == 0 {
		return model.Booking{}, nil
	}
	b, err := decodeBooking(raw)
	if err != nil {
		return model.Booking{}, decodeFailure(op, err)
	}
	return b, nil
}
