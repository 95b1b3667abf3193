package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryTTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 28, 9, 0, 0, 0, time.UTC)
	m := NewMemory(time.Minute)
	m.now = func() time.Time { return now }

	if err := m.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, ok, _ := m.Get(ctx, "k"); !ok {
		t.Fatal("expected hit before expiry")
	}
	now = now.Add(time.Minute)
	if _, ok, _ := m.Get(ctx, "k"); ok {
		t.Fatal("expected miss after expiry")
	}
}

func TestInvalidateUserKeepsOtherUsers(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Minute)
	_ = SetJSON(ctx, m, Key("u1", KindPreferences), map[string]string{"a": "b"})
	_ = SetJSON(ctx, m, Key("u1", KindBlocks, "2026-01-01"), []int{1})
	_ = SetJSON(ctx, m, Key("u10", KindPreferences), map[string]string{"c": "d"})

	if err := InvalidateUser(ctx, m, "u1"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, ok, _ := m.Get(ctx, Key("u1", KindPreferences)); ok {
		t.Fatal("u1 preferences should be gone")
	}
	if _, ok, _ := m.Get(ctx, Key("u1", KindBlocks, "2026-01-01")); ok {
		t.Fatal("u1 blocks should be gone")
	}
	got, ok, err := GetJSON[map[string]string](ctx, m, Key("u10", KindPreferences))
	if err != nil || !ok || got["c"] != "d" {
		t.Fatalf("u10 entry should survive, got %v %v %v", got, ok, err)
	}
}

func TestInvalidateKinds(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Minute)
	_ = m.Set(ctx, Key("u1", KindBookings, "q"), []byte("1"))
	_ = m.Set(ctx, Key("u1", KindPreferences), []byte("2"))

	if err := InvalidateKinds(ctx, m, "u1", KindBookings, KindEvents); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, ok, _ := m.Get(ctx, Key("u1", KindBookings, "q")); ok {
		t.Fatal("bookings page should be gone")
	}
	if _, ok, _ := m.Get(ctx, Key("u1", KindPreferences)); !ok {
		t.Fatal("preferences should survive")
	}
}
