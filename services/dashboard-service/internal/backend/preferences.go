package backend

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/tourdesk/tourdesk/services/dashboard-service/internal/model"
)

func preferencesPath(userID string, userType model.UserType) string {
	return "/api/v1/users" + segments(string(userType), userID, "calendar-preferences")
}

// GetPreferences returns the stored preferences with working days in UI convention.
func (c *Client) GetPreferences(ctx context.Context, userID string, userType model.UserType) (model.Preferences, error) {
	const op = "get preferences"
	var raw json.RawMessage
	if err := c.do(ctx, op, http.MethodGet, preferencesPath(userID, userType), nil, nil, &raw); err != nil {
		return model.Preferences{}, err
	}
	p, err := decodePreferences(raw)
	if err != nil {
		return model.Preferences{}, decodeFailure(op, err)
	}
	return p, nil
}

// UpdatePreferences sends prefs with working days converted to backend convention. The
// response body is not trusted; callers re-fetch.
func (c *Client) UpdatePreferences(ctx context.Context, userID string, userType model.UserType, prefs model.Preferences) error {
	return c.do(ctx, "update preferences", http.MethodPut, preferencesPath(userID, userType), nil, encodePreferences(prefs), nil)
}
