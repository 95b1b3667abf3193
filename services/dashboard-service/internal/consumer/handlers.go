package consumer

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/tourdesk/tourdesk/libs/kafkax"
	"github.com/tourdesk/tourdesk/services/dashboard-service/internal/cache"
)

const (
	TopicBookingChanged      = "booking.changed.v1"
	TopicAvailabilityChanged = "availability.changed.v1"
	TopicPreferencesChanged  = "calendar-preferences.changed.v1"
)

// Refresher re-reads a user's active booking page. It reports false when this instance holds no
// workspace for the user.
type Refresher interface {
	Refresh(ctx context.Context, userID string) (bool, error)
}

type changePayload struct {
	UserID    string `json:"user_id"`
	BookingID string `json:"booking_id,omitempty"`
}

// NewChangeHandler drops the cached kinds each event type makes stale. Booking changes also
// refresh the user's workspace so the next calendar read already has the new state.
func NewChangeHandler(c cache.Store, refresher Refresher, logger *slog.Logger) Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		var payload changePayload
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid change event", "err", err, "topic", msg.Topic)
			return nil
		}
		if payload.UserID == "" {
			logger.Error("change event without user_id", "topic", msg.Topic)
			return nil
		}

		switch kafkax.ExtractEventMeta(msg).EventType {
		case TopicBookingChanged:
			if err := cache.InvalidateKinds(ctx, c, payload.UserID, cache.KindBookings, cache.KindEvents); err != nil {
				return err
			}
			active, err := refresher.Refresh(ctx, payload.UserID)
			if err != nil {
				return err
			}
			logger.Debug("booking change applied", "user_id", payload.UserID, "booking_id", payload.BookingID, "refreshed", active)
		case TopicAvailabilityChanged:
			return cache.InvalidateKinds(ctx, c, payload.UserID, cache.KindBlocks, cache.KindEvents)
		case TopicPreferencesChanged:
			return cache.InvalidateKinds(ctx, c, payload.UserID, cache.KindPreferences)
		default:
			logger.Warn("unhandled change event", "topic", msg.Topic)
		}
		return nil
	}
}
