package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/tourdesk/tourdesk/services/dashboard-service/internal/model"
)

func rangeQuery(from, to time.Time) url.Values {
	q := url.Values{}
	if !from.IsZero() {
		q.Set("from", from.UTC().Format(time.RFC3339))
	}
	if !to.IsZero() {
		q.Set("to", to.UTC().Format(time.RFC3339))
	}
	return q
}

func (c *Client) ListBlocks(ctx context.Context, userID string, from, to time.Time) ([]model.Block, error) {
	const op = "list availability"
	var raw json.RawMessage
	if err := c.do(ctx, op, http.MethodGet, "/api/v1/users"+segments(userID, "availability"), rangeQuery(from, to), nil, &raw); err != nil {
		return nil, err
	}
	return decodeBlocks(op, raw)
}

func decodeBlocks(op string, raw json.RawMessage) ([]model.Block, error) {
	items, err := unwrapList(raw)
	if err != nil {
		return nil, decodeFailure(op, err)
	}
	out := make([]model.Block, 0, len(items))
	for _, item := range items {
		b, err := decodeBlock(item)
		if err != nil {
			return nil, decodeFailure(op, err)
		}
		out = append(out, b)
	}
	return out, nil
}

type blockPayload struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	BlockType string `json:"block_type"`
	IsFullDay bool   `json:"is_full_day"`
	Reason    string `json:"reason,omitempty"`
}

func (c *Client) CreateBlock(ctx context.Context, userID string, b model.Block) (model.Block, error) {
	const op = "create availability"
	body := blockPayload{
		StartTime: b.StartAt.Format(time.RFC3339),
		EndTime:   b.EndAt.Format(time.RFC3339),
		BlockType: string(b.Kind),
		IsFullDay: b.IsFullDay,
		Reason:    b.Reason,
	}
	var raw json.RawMessage
	if err := c.do(ctx, op, http.MethodPost, "/api/v1/users"+segments(userID, "availability"), nil, body, &raw); err != nil {
		return model.Block{}, err
	}
	if len(raw) == 0 {
		return b, nil
	}
	created, err := decodeBlock(raw)
	if err != nil {
		return model.Block{}, decodeFailure(op, err)
	}
	return created, nil
}

func (c *Client) DeleteBlock(ctx context.Context, userID, blockID string) error {
	return c.do(ctx, "delete availability", http.MethodDelete, "/api/v1/users"+segments(userID, "availability", blockID), nil, nil, nil)
}

// CalendarEvents is the combined bookings + availability feed for a range.
type CalendarEvents struct {
	Bookings []model.Booking `json:"bookings"`
	Blocks   []model.Block   `json:"blocks"`
}

// CalendarEvents accepts either {"bookings": [...], "availability": [...]} or a flat list of
// tagged events.
func (c *Client) CalendarEvents(ctx context.Context, userID string, from, to time.Time) (CalendarEvents, error) {
	const op = "calendar events"
	var raw json.RawMessage
	if err := c.do(ctx, op, http.MethodGet, "/api/v1/users"+segments(userID, "calendar-events"), rangeQuery(from, to), nil, &raw); err != nil {
		return CalendarEvents{}, err
	}

	var out CalendarEvents
	if f, err := decodeFields(unwrapObject(raw)); err == nil && f.raw("bookings", "availability", "blocks") != nil {
		if v := f.raw("bookings"); v != nil {
			if out.Bookings, err = decodeBookings(op, v); err != nil {
				return CalendarEvents{}, err
			}
		}
		if v := f.raw("availability", "blocks"); v != nil {
			if out.Blocks, err = decodeBlocks(op, v); err != nil {
				return CalendarEvents{}, err
			}
		}
		return out, nil
	}

	items, err := unwrapList(raw)
	if err != nil {
		return CalendarEvents{}, decodeFailure(op, err)
	}
	for _, item := range items {
		if isBookingEvent(item) {
			b, err := decodeBooking(item)
			if err != nil {
				return CalendarEvents{}, decodeFailure(op, err)
			}
			out.Bookings = append(out.Bookings, b)
			continue
		}
		blk, err := decodeBlock(item)
		if err != nil {
			return CalendarEvents{}, decodeFailure(op, err)
		}
		out.Blocks = append(out.Blocks, blk)
	}
	return out, nil
}
