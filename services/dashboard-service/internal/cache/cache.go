// Package cache holds per-user read-through pages (preferences, availability blocks, booking
// pages, calendar events). Entries carry a TTL and are dropped on every successful mutation.
package cache

import (
	"context"
	"encoding/json"
	"strings"
)

// Kinds of cached pages.
const (
	KindPreferences = "prefs"
	KindBlocks      = "blocks"
	KindBookings    = "bookings"
	KindEvents      = "events"
)

const keyPrefix = "tourdesk:cache:"

type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	DeletePrefix(ctx context.Context, prefix string) error
}

// Key builds a cache key scoped to a user, page kind and query parameters.
func Key(userID, kind string, params ...string) string {
	return KindPrefix(userID, kind) + strings.Join(params, "|")
}

func UserPrefix(userID string) string {
	return keyPrefix + userID + ":"
}

func KindPrefix(userID, kind string) string {
	return UserPrefix(userID) + kind + ":"
}

// InvalidateUser drops every cached page for userID.
func InvalidateUser(ctx context.Context, s Store, userID string) error {
	return s.DeletePrefix(ctx, UserPrefix(userID))
}

// InvalidateKinds drops the listed page kinds for userID.
func InvalidateKinds(ctx context.Context, s Store, userID string, kinds ...string) error {
	for _, kind := range kinds {
		if err := s.DeletePrefix(ctx, KindPrefix(userID, kind)); err != nil {
			return err
		}
	}
	return nil
}

func GetJSON[T any](ctx context.Context, s Store, key string) (T, bool, error) {
	var out T
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return out, false, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, false, err
	}
	return out, true, nil
}

func SetJSON(ctx context.Context, s Store, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.Set(ctx, key, raw)
}
